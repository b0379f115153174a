package resilience

import (
	"context"

	"github.com/attercap/sennet/pkg/provider/tts"
)

// TTSFallback implements [tts.Synthesizer] with automatic failover across
// multiple TTS backends. Each backend has its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Synthesizer]
}

// Compile-time interface assertion.
var _ tts.Synthesizer = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Synthesizer, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional TTS backend as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Synthesizer) {
	f.group.AddFallback(name, provider)
}

// Synthesize renders the phrase against the first healthy backend. If the
// primary fails, subsequent fallbacks are tried with the same text.
func (f *TTSFallback) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	return ExecuteWithResult(f.group, func(p tts.Synthesizer) ([]byte, error) {
		return p.Synthesize(ctx, text, voice)
	})
}

// Format returns the container format of the primary backend. Fallbacks are
// expected to produce the same container; the speech engine caches by key
// and extension, so mixing formats across backends would poison the cache.
func (f *TTSFallback) Format() string {
	if len(f.group.entries) > 0 {
		return f.group.entries[0].value.Format()
	}
	return "wav"
}
