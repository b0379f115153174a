// Package stt defines the Transcriber interface for speech-to-text backends.
//
// Transcription is clip-based: the capture pipeline segments the microphone
// stream into whole utterances and each utterance is recognised in a single
// call. This trades partial-result latency for a much simpler contract; the
// voice loop only ever acts on complete phrases.
//
// Implementations must be safe for concurrent use. Implementations that hold
// releasable resources (loaded models, connections) should also implement
// io.Closer; the application closes them at shutdown.
package stt

import (
	"context"

	"github.com/attercap/sennet/pkg/audio"
)

// Transcriber converts a captured utterance into text.
type Transcriber interface {
	// Transcribe runs speech recognition over one utterance clip and returns
	// the recognised text, trimmed of surrounding whitespace. An empty string
	// with a nil error means the clip contained no recognisable speech.
	//
	// Transcribe blocks until recognition completes or ctx is cancelled.
	Transcribe(ctx context.Context, clip audio.Clip) (string, error)
}
