package resilience

import (
	"context"

	"github.com/attercap/sennet/pkg/audio"
	"github.com/attercap/sennet/pkg/provider/stt"
)

// STTFallback implements [stt.Transcriber] with automatic failover across
// multiple STT backends. Each backend has its own circuit breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

// Compile-time interface assertion.
var _ stt.Transcriber = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional STT backend as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Transcriber) {
	f.group.AddFallback(name, provider)
}

// Transcribe recognises the clip against the first healthy backend. If the
// primary fails, subsequent fallbacks are tried with the same clip.
func (f *STTFallback) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	return ExecuteWithResult(f.group, func(p stt.Transcriber) (string, error) {
		return p.Transcribe(ctx, clip)
	})
}
