// Package voiceid defines the Embedder interface for speaker embedding backends.
//
// A voice embedding is a fixed-length vector characterising who is speaking,
// independent of what is said. The speech layer compares utterance embeddings
// against an enrolled profile by cosine similarity to decide whether a command
// came from the enrolled speaker or from someone else in the room.
//
// Implementations must be safe for concurrent use. Implementations holding
// native resources should also implement io.Closer; the application
// type-asserts and closes them at shutdown.
package voiceid

import (
	"context"

	"github.com/attercap/sennet/pkg/audio"
)

// Embedder is the abstraction over any speaker embedding backend.
type Embedder interface {
	// Embed computes the voice embedding for one utterance clip. The clip
	// should contain actual speech; near-silence yields vectors that compare
	// poorly against any profile. Returns a float32 slice of length
	// Dimensions() or an error if inference fails or ctx is cancelled.
	Embed(ctx context.Context, clip audio.Clip) ([]float32, error)

	// Dimensions returns the fixed length of every embedding vector produced
	// by this Embedder. Stored voice profiles are only comparable against
	// embeddings of the same length from the same model.
	Dimensions() int
}
