// Package audio defines the capture-side audio types for sennet: fixed-size
// PCM frames, variable-length clips, and the [Source] abstraction that
// microphone platforms implement.
//
// The whole pipeline runs at 16 kHz signed 16-bit mono. Frames are the unit
// the wake-word detector consumes; clips are the unit the transcriber and
// speaker verifier consume.
//
// This package lives under pkg/ because external code (alternative capture
// platforms) is expected to implement [Source].
package audio

import (
	"errors"
	"math"
	"time"
)

const (
	// SampleRate is the capture sample rate in Hz.
	SampleRate = 16000

	// FrameSamples is the number of samples per frame (80 ms at 16 kHz).
	FrameSamples = 1280
)

var (
	// ErrListenTimeout is returned when no speech begins within the wait window.
	ErrListenTimeout = errors.New("audio: timed out waiting for speech")

	// ErrSourceClosed is returned by reads on a closed source.
	ErrSourceClosed = errors.New("audio: source closed")
)

// Frame is one fixed-size chunk of mono PCM samples.
type Frame []int16

// Duration returns the frame length at [SampleRate].
func (f Frame) Duration() time.Duration {
	return time.Duration(len(f)) * time.Second / SampleRate
}

// RMS returns the root-mean-square energy of the frame. Silence is near zero;
// conversational speech at normal mic gain lands in the low thousands.
func (f Frame) RMS() float64 {
	if len(f) == 0 {
		return 0
	}
	var sum float64
	for _, s := range f {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(f)))
}

// Clip is a complete captured utterance.
type Clip struct {
	// Samples is mono PCM at Rate.
	Samples []int16

	// Rate is the sample rate in Hz.
	Rate int
}

// Duration returns the clip length.
func (c Clip) Duration() time.Duration {
	if c.Rate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.Rate)
}

// Float32 returns the samples normalised to [-1.0, 1.0], the input format of
// the whisper and ONNX inference paths.
func (c Clip) Float32() []float32 {
	out := make([]float32, len(c.Samples))
	for i, s := range c.Samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Bytes returns the samples as little-endian 16-bit PCM.
func (c Clip) Bytes() []byte {
	return Int16ToBytes(c.Samples)
}
