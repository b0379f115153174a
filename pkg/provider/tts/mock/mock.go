// Package mock provides a test double for the tts package interfaces.
//
// Use Synthesizer to control the audio payload returned per call and inspect
// the phrases that were synthesised.
//
// Example:
//
//	syn := &mock.Synthesizer{Payload: []byte("mp3-bytes")}
//	audio, _ := syn.Synthesize(ctx, "Listening.", "")
package mock

import (
	"context"
	"sync"

	"github.com/attercap/sennet/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesizer.Synthesize.
type SynthesizeCall struct {
	// Text is the phrase passed to Synthesize.
	Text string
	// Voice is the voice passed to Synthesize.
	Voice string
}

// Synthesizer is a mock implementation of tts.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// Payload is returned by every Synthesize call. If nil, Synthesize
	// returns a small placeholder payload.
	Payload []byte

	// Err, if non-nil, is returned by every Synthesize call.
	Err error

	// FormatExt is the value returned by Format. Defaults to "mp3".
	FormatExt string

	// --- Call records ---

	// SynthesizeCalls records every call to Synthesize, in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns Payload, Err.
func (s *Synthesizer) Synthesize(_ context.Context, text, voice string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SynthesizeCalls = append(s.SynthesizeCalls, SynthesizeCall{Text: text, Voice: voice})
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Payload == nil {
		return []byte("audio"), nil
	}
	return s.Payload, nil
}

// Format returns FormatExt, defaulting to "mp3".
func (s *Synthesizer) Format() string {
	if s.FormatExt == "" {
		return "mp3"
	}
	return s.FormatExt
}

// ResetCalls clears all recorded call history. Thread-safe.
func (s *Synthesizer) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SynthesizeCalls = nil
}

// Ensure Synthesizer implements tts.Synthesizer at compile time.
var _ tts.Synthesizer = (*Synthesizer)(nil)
