package audio

import (
	"context"
	"fmt"
	"time"
)

// Energy-gate tuning. The floor tracks ambient room noise with a slow EWMA so
// a fan or HVAC hum does not read as speech; the absolute minimum keeps the
// gate sane on very quiet mics.
const (
	minStartRMS   = 300.0
	startFactor   = 2.0
	endFactor     = 1.4
	noiseAlpha    = 0.05
	initialFloor  = 150.0
	preRollFrames = 2
)

// ClipParams bounds a single [Segmenter.ReadClip] call.
type ClipParams struct {
	// WaitTimeout is how long to wait for speech to begin.
	// Zero means wait indefinitely (until ctx cancellation).
	WaitTimeout time.Duration

	// PhraseLimit caps the clip length once speech has begun.
	PhraseLimit time.Duration

	// Pause is the trailing silence that ends the clip.
	Pause time.Duration
}

// Segmenter turns a frame stream into speech clips using an adaptive energy
// gate. It owns no goroutines; each ReadClip call drives the source directly.
//
// The noise floor persists across calls, so back-to-back utterances in the
// same room share one calibration. Not safe for concurrent ReadClip calls.
type Segmenter struct {
	src        Source
	noiseFloor float64
}

// NewSegmenter wraps src with an energy-gate segmenter.
func NewSegmenter(src Source) *Segmenter {
	return &Segmenter{src: src, noiseFloor: initialFloor}
}

// ReadClip blocks until a complete utterance is captured and returns it.
//
// Returns [ErrListenTimeout] if no speech starts within p.WaitTimeout, the
// context error on cancellation, and the source error on device failure.
// The returned clip includes a short pre-roll so a clipped first syllable
// still transcribes.
func (s *Segmenter) ReadClip(ctx context.Context, p ClipParams) (Clip, error) {
	var (
		collected []int16
		preRoll   []Frame
		started   bool
		waitedFor time.Duration
		silentFor time.Duration
		voicedFor time.Duration
	)

	for {
		frame, err := s.src.ReadFrame(ctx)
		if err != nil {
			return Clip{}, fmt.Errorf("audio: read frame: %w", err)
		}

		rms := frame.RMS()
		startGate := s.noiseFloor * startFactor
		if startGate < minStartRMS {
			startGate = minStartRMS
		}
		endGate := s.noiseFloor * endFactor
		if endGate > startGate {
			endGate = startGate
		}

		if !started {
			if rms >= startGate {
				started = true
				for _, pf := range preRoll {
					collected = append(collected, pf...)
				}
				collected = append(collected, frame...)
				voicedFor = frame.Duration()
				continue
			}

			// Still waiting for speech; keep the floor calibrated and a
			// short pre-roll buffer. Waiting is measured in audio time so
			// behaviour is identical for live and replayed sources.
			s.noiseFloor += noiseAlpha * (rms - s.noiseFloor)
			preRoll = append(preRoll, frame)
			if len(preRoll) > preRollFrames {
				preRoll = preRoll[1:]
			}
			waitedFor += frame.Duration()
			if p.WaitTimeout > 0 && waitedFor >= p.WaitTimeout {
				return Clip{}, ErrListenTimeout
			}
			continue
		}

		collected = append(collected, frame...)
		voicedFor += frame.Duration()

		if rms < endGate {
			silentFor += frame.Duration()
		} else {
			silentFor = 0
		}

		if silentFor >= p.Pause || (p.PhraseLimit > 0 && voicedFor >= p.PhraseLimit) {
			return Clip{Samples: collected, Rate: SampleRate}, nil
		}
	}
}

// NoiseFloor returns the current ambient RMS estimate. Exposed for logging
// and tests.
func (s *Segmenter) NoiseFloor() float64 {
	return s.noiseFloor
}
