// Package tts defines the Synthesizer interface for text-to-speech backends.
//
// Synthesis is utterance-based: spoken replies and alerts are short phrases,
// so each call renders one complete phrase into an encoded audio payload. The
// speech engine writes payloads to disk (for the prompt cache) or to a scratch
// file handed to the external audio player, so Synthesizer deals in container
// bytes rather than raw PCM.
//
// Implementations must be safe for concurrent use. Implementations that hold
// releasable resources should also implement io.Closer.
package tts

import "context"

// Synthesizer renders text into encoded speech audio.
type Synthesizer interface {
	// Synthesize renders text in the given voice and returns the encoded
	// audio payload. An empty voice selects the implementation's default.
	// Synthesize blocks until the full payload is available or ctx is
	// cancelled.
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)

	// Format returns the container format of the payloads this synthesizer
	// produces as a file extension without the dot, e.g. "mp3" or "wav".
	Format() string
}
