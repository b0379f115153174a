// Package mock provides an in-memory mock implementation of the
// [audio.Source] interface for use in unit tests.
//
// The mock is safe for concurrent use. It records every lifecycle call so
// that tests can assert on call counts, and it exposes exported fields the
// test can set to control return values.
//
// Typical usage:
//
//	src := &mock.Source{}
//	src.Append(mock.Silence(6), mock.Tone(10, 2000), mock.Silence(15))
//	clip, err := audio.NewSegmenter(src).ReadClip(ctx, params)
package mock

import (
	"context"
	"sync"

	"github.com/attercap/sennet/pkg/audio"
)

// Source is a mock implementation of [audio.Source] that replays scripted
// frames. When the script is exhausted it returns ExhaustedError (defaulting
// to [audio.ErrSourceClosed]) unless BlockWhenEmpty is set, in which case
// reads block until the context is cancelled or more frames are appended.
type Source struct {
	mu     sync.Mutex
	frames []audio.Frame
	more   chan struct{}

	// ExhaustedError is returned when the script runs out.
	ExhaustedError error

	// BlockWhenEmpty makes reads wait for Append instead of failing when
	// the script runs out.
	BlockWhenEmpty bool

	// ReadErr, when set, is returned by every ReadFrame call.
	ReadErr error

	// CallCountPause records how many times Pause was called.
	CallCountPause int

	// CallCountResume records how many times Resume was called.
	CallCountResume int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	closed bool
}

var _ audio.Source = (*Source)(nil)

// Append adds frames to the end of the script.
func (s *Source) Append(batches ...[]audio.Frame) {
	s.mu.Lock()
	for _, b := range batches {
		s.frames = append(s.frames, b...)
	}
	if s.more != nil {
		close(s.more)
		s.more = nil
	}
	s.mu.Unlock()
}

// ReadFrame implements [audio.Source]. It pops the next scripted frame.
func (s *Source) ReadFrame(ctx context.Context) (audio.Frame, error) {
	for {
		s.mu.Lock()
		if s.ReadErr != nil {
			err := s.ReadErr
			s.mu.Unlock()
			return nil, err
		}
		if s.closed {
			s.mu.Unlock()
			return nil, audio.ErrSourceClosed
		}
		if len(s.frames) > 0 {
			f := s.frames[0]
			s.frames = s.frames[1:]
			s.mu.Unlock()
			return f, nil
		}
		if !s.BlockWhenEmpty {
			err := s.ExhaustedError
			if err == nil {
				err = audio.ErrSourceClosed
			}
			s.mu.Unlock()
			return nil, err
		}
		if s.more == nil {
			s.more = make(chan struct{})
		}
		more := s.more
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-more:
		}
	}
}

// Pause implements [audio.Source].
func (s *Source) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountPause++
}

// Resume implements [audio.Source].
func (s *Source) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountResume++
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	s.closed = true
	return nil
}

// Silence returns n frames of all-zero samples.
func Silence(n int) []audio.Frame {
	frames := make([]audio.Frame, n)
	for i := range frames {
		frames[i] = make(audio.Frame, audio.FrameSamples)
	}
	return frames
}

// Tone returns n frames of a constant-amplitude square wave whose RMS is
// approximately amp. Loud enough values pass the segmenter's energy gate.
func Tone(n int, amp int16) []audio.Frame {
	frames := make([]audio.Frame, n)
	for i := range frames {
		f := make(audio.Frame, audio.FrameSamples)
		for j := range f {
			if j%2 == 0 {
				f[j] = amp
			} else {
				f[j] = -amp
			}
		}
		frames[i] = f
	}
	return frames
}
