package audio

import "context"

// Source delivers capture frames from a microphone platform.
//
// A Source is obtained from a platform package (e.g. audio/miniaudio) and
// remains valid until [Source.Close]. Implementations must be safe for
// concurrent use: the wake loop and the conversation loop share one source.
type Source interface {
	// ReadFrame blocks until the next frame is available, the context is
	// cancelled, or the source is closed ([ErrSourceClosed]).
	ReadFrame(ctx context.Context) (Frame, error)

	// Pause suspends frame delivery and discards anything buffered.
	// Used while the orchestrator is speaking so playback does not feed
	// back into capture. Safe to call when already paused.
	Pause()

	// Resume re-enables frame delivery after a [Source.Pause]. Frames
	// captured while paused are not replayed.
	Resume()

	// Close releases the capture device. Subsequent reads return
	// [ErrSourceClosed]. Safe to call more than once.
	Close() error
}
