// Package mock provides a test double for the stt package interfaces.
//
// Use Transcriber to script the text returned for successive clips and
// inspect the clips that were submitted for recognition.
//
// Example:
//
//	tr := &mock.Transcriber{Results: []string{"check window two", ""}}
//	text, _ := tr.Transcribe(ctx, clip) // "check window two", then ""
package mock

import (
	"context"
	"sync"

	"github.com/attercap/sennet/pkg/audio"
	"github.com/attercap/sennet/pkg/provider/stt"
)

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Results is consumed one value per Transcribe call, in order. Once
	// exhausted, Transcribe returns Result.
	Results []string

	// Result is returned by Transcribe after Results is exhausted.
	Result string

	// Err, if non-nil, is returned by every Transcribe call.
	Err error

	// --- Call records ---

	// TranscribeCalls records every clip passed to Transcribe, in order.
	TranscribeCalls []audio.Clip

	next int
}

// Transcribe records the call and returns the next scripted result, Err.
func (t *Transcriber) Transcribe(_ context.Context, clip audio.Clip) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TranscribeCalls = append(t.TranscribeCalls, clip)
	if t.Err != nil {
		return "", t.Err
	}
	if t.next < len(t.Results) {
		r := t.Results[t.next]
		t.next++
		return r, nil
	}
	return t.Result, nil
}

// ResetCalls clears all recorded call history and rewinds Results.
// Thread-safe.
func (t *Transcriber) ResetCalls() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TranscribeCalls = nil
	t.next = 0
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)
