// Package wake defines the Detector interface for wake-phrase detection backends.
//
// A wake detector consumes fixed-size PCM frames and reports a confidence score
// for a single configured wake phrase. Scoring is synchronous by design: Score
// returns immediately after ingesting one frame, making it suitable for the hot
// audio loop that gates the rest of the voice pipeline.
//
// A Detector accumulates internal state across frames (spectrogram and embedding
// windows), so a single Detector must not be shared across goroutines. Callers
// that interrupt the audio stream (pause, playback) should Reset the detector
// before feeding it fresh frames, otherwise audio context from before the
// interruption leaks into the first scores after it.
package wake

import "github.com/attercap/sennet/pkg/audio"

// Detector scores audio frames against a single wake phrase.
type Detector interface {
	// Score ingests one frame and returns the current detection confidence in
	// [0, 1]. The frame must hold exactly audio.FrameSamples samples at
	// audio.SampleRate; Score returns an error otherwise. Scores are smoothed
	// over a short trailing window, so a spoken wake phrase holds its peak for
	// a few hundred milliseconds rather than a single frame.
	//
	// Score is called from the audio pipeline loop and must not block.
	Score(frame audio.Frame) (float32, error)

	// Reset clears all accumulated audio context without closing the detector.
	// Call it after a detection fires and whenever the input stream resumes
	// after a gap, so one utterance cannot trigger twice and stale context
	// cannot skew fresh scores.
	Reset()

	// Close releases model resources. After Close, Score returns an error.
	// Calling Close more than once is safe and returns nil.
	Close() error
}
