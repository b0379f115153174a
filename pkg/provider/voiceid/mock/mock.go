// Package mock provides a mock implementation of the voiceid.Embedder
// interface for testing.
//
// Example usage:
//
//	e := &mock.Embedder{Result: []float32{1, 0, 0}}
//	verifier := speech.NewVerifier(e, profilePath)
package mock

import (
	"context"
	"sync"

	"github.com/attercap/sennet/pkg/audio"
	"github.com/attercap/sennet/pkg/provider/voiceid"
)

// Ensure Embedder implements the voiceid.Embedder interface at compile time.
var _ voiceid.Embedder = (*Embedder)(nil)

// Embedder is a mock implementation of voiceid.Embedder.
type Embedder struct {
	mu sync.Mutex

	// Results holds embeddings returned by successive Embed calls. Once
	// exhausted, Result is returned for every further call.
	Results [][]float32

	// Result is the embedding returned when Results is empty or used up.
	Result []float32

	// Err, if set, is returned by every Embed call.
	Err error

	// DimensionsValue is returned by Dimensions. Defaults to len(Result)
	// when zero.
	DimensionsValue int

	// --- Call records ---

	// EmbedCalls records the clip of each Embed call. Samples are copied
	// so later mutation by the caller does not alter the record.
	EmbedCalls []audio.Clip

	next int
}

// Embed records the call and returns the next scripted embedding.
func (e *Embedder) Embed(_ context.Context, clip audio.Clip) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec := audio.Clip{Samples: append([]int16(nil), clip.Samples...), Rate: clip.Rate}
	e.EmbedCalls = append(e.EmbedCalls, rec)

	if e.Err != nil {
		return nil, e.Err
	}
	if e.next < len(e.Results) {
		r := e.Results[e.next]
		e.next++
		return r, nil
	}
	return e.Result, nil
}

// Dimensions returns DimensionsValue, or len(Result) when unset.
func (e *Embedder) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.DimensionsValue > 0 {
		return e.DimensionsValue
	}
	return len(e.Result)
}

// ResetCalls clears recorded calls and rewinds the scripted results.
func (e *Embedder) ResetCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.EmbedCalls = nil
	e.next = 0
}
