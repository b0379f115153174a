package speech

import (
	"context"
	"fmt"
	"strings"

	"github.com/attercap/sennet/pkg/audio"
	"github.com/attercap/sennet/pkg/provider/stt"
)

// fillerText lists transcriptions the recogniser emits for breaths and
// silence. They carry no intent and are dropped before routing.
var fillerText = map[string]struct{}{
	"thank you":           {},
	"thanks for watching": {},
	"you":                 {},
	"uh":                  {},
	"um":                  {},
	"hmm":                 {},
	"mm":                  {},
}

// IsNoise reports whether text is a non-utterance: empty, a parenthesised or
// bracketed annotation like "(wind blowing)" or "[BLANK_AUDIO]", or trivial
// filler.
func IsNoise(text string) bool {
	cleaned := strings.TrimSpace(strings.Trim(strings.TrimSpace(text), "."))
	if cleaned == "" {
		return true
	}
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		return true
	}
	if strings.HasPrefix(cleaned, "[") && strings.HasSuffix(cleaned, "]") {
		return true
	}
	_, filler := fillerText[strings.ToLower(strings.Trim(cleaned, ".,!?"))]
	return filler
}

// Transcriber recognises utterance clips and filters out non-speech results.
type Transcriber struct {
	stt stt.Transcriber
}

// NewTranscriber wraps a speech-to-text provider.
func NewTranscriber(provider stt.Transcriber) *Transcriber {
	return &Transcriber{stt: provider}
}

// Transcribe recognises clip and returns the text. Results that [IsNoise]
// classifies as non-speech come back as an empty string with a nil error, the
// same shape the provider uses for silent clips.
func (t *Transcriber) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	text, err := t.stt.Transcribe(ctx, clip)
	if err != nil {
		return "", fmt.Errorf("speech: transcribe: %w", err)
	}
	if IsNoise(text) {
		return "", nil
	}
	return strings.TrimSpace(text), nil
}
