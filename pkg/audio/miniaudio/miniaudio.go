// Package miniaudio implements [audio.Source] on top of the miniaudio
// capture backend (via malgo). It opens the default capture device at
// 16 kHz S16 mono and chunks the callback stream into fixed-size frames.
package miniaudio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/attercap/sennet/pkg/audio"
)

// frameQueueCap bounds the frame channel. At 80 ms per frame this is about
// 2.5 s of audio; when the consumer stalls longer than that the oldest
// frames are dropped rather than blocking the device callback.
const frameQueueCap = 32

// Source captures microphone audio through miniaudio.
type Source struct {
	mctx   *malgo.AllocatedContext
	device *malgo.Device

	frames chan audio.Frame

	mu      sync.Mutex
	pending []int16
	paused  bool
	closed  bool

	closeOnce sync.Once
	closeErr  error

	dropped int64
}

var _ audio.Source = (*Source)(nil)

// Option configures a [Source].
type Option func(*options)

type options struct {
	deviceLog func(string)
}

// WithBackendLog routes miniaudio backend messages to fn. By default they
// are discarded.
func WithBackendLog(fn func(string)) Option {
	return func(o *options) {
		o.deviceLog = fn
	}
}

// New opens the default capture device. The returned source is live
// immediately; call [Source.Close] to release the device.
func New(opts ...Option) (*Source, error) {
	o := &options{deviceLog: func(string) {}}
	for _, opt := range opts {
		opt(o)
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, o.deviceLog)
	if err != nil {
		return nil, fmt.Errorf("miniaudio: init context: %w", err)
	}

	s := &Source{
		mctx:   mctx,
		frames: make(chan audio.Frame, frameQueueCap),
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.SampleRate = audio.SampleRate
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = 1
	devCfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_ []byte, raw []byte, _ uint32) {
			s.onCapture(raw)
		},
	}

	device, err := malgo.InitDevice(mctx.Context, devCfg, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("miniaudio: init capture device: %w", err)
	}
	s.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("miniaudio: start capture: %w", err)
	}

	return s, nil
}

// Opener returns an [audio.OpenFunc] for use with [audio.Redialer].
func Opener(opts ...Option) audio.OpenFunc {
	return func(context.Context) (audio.Source, error) {
		return New(opts...)
	}
}

// onCapture runs on the miniaudio device thread. It must never block: full
// queues drop the oldest frame.
func (s *Source) onCapture(raw []byte) {
	if len(raw) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused || s.closed {
		return
	}

	s.pending = append(s.pending, audio.BytesToInt16(raw)...)
	for len(s.pending) >= audio.FrameSamples {
		frame := make(audio.Frame, audio.FrameSamples)
		copy(frame, s.pending[:audio.FrameSamples])
		s.pending = s.pending[audio.FrameSamples:]

		select {
		case s.frames <- frame:
		default:
			select {
			case <-s.frames:
			default:
			}
			s.frames <- frame
			s.dropped++
			if s.dropped%100 == 1 {
				slog.Warn("miniaudio: frame queue full, dropping oldest", "dropped_total", s.dropped)
			}
		}
	}
}

// ReadFrame implements [audio.Source].
func (s *Source) ReadFrame(ctx context.Context) (audio.Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case f, ok := <-s.frames:
		if !ok {
			return nil, audio.ErrSourceClosed
		}
		return f, nil
	}
}

// Pause implements [audio.Source]. The device keeps running; captured
// frames are discarded until [Source.Resume].
func (s *Source) Pause() {
	s.mu.Lock()
	s.paused = true
	s.pending = s.pending[:0]
	s.mu.Unlock()
	s.drainQueue()
}

// Resume implements [audio.Source].
func (s *Source) Resume() {
	s.drainQueue()
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
}

func (s *Source) drainQueue() {
	for {
		select {
		case <-s.frames:
		default:
			return
		}
	}
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		// Uninit stops the callback before the channel is closed, so
		// onCapture can no longer write.
		s.device.Uninit()
		if err := s.mctx.Uninit(); err != nil {
			s.closeErr = fmt.Errorf("miniaudio: uninit context: %w", err)
		}
		s.mctx.Free()
		close(s.frames)
	})
	return s.closeErr
}
