// Package whisper implements stt.Transcriber on the whisper.cpp Go bindings.
// The whisper.cpp static library (libwhisper.a) and headers (whisper.h) must be
// available at link time via LIBRARY_PATH and C_INCLUDE_PATH environment
// variables.
//
// The model is loaded once and shared across calls; each Transcribe creates
// its own inference context, so concurrent transcriptions do not interfere.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/attercap/sennet/pkg/audio"
	"github.com/attercap/sennet/pkg/provider/stt"
)

const defaultLanguage = "en"

// minSamples is one second of audio. whisper.cpp rejects shorter inputs, so
// clips are padded with trailing silence up to this length.
const minSamples = audio.SampleRate

// Compile-time assertion that Transcriber satisfies stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en",
// "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(t *Transcriber) { t.language = lang }
}

// WithThreads sets the number of inference threads per transcription. Zero
// leaves the whisper.cpp default in place.
func WithThreads(n int) Option {
	return func(t *Transcriber) { t.threads = n }
}

// Transcriber implements stt.Transcriber using a locally loaded whisper.cpp
// model.
type Transcriber struct {
	model    whisperlib.Model
	language string
	threads  int
}

// New loads the whisper.cpp model from modelPath. The caller must call Close
// when the transcriber is no longer needed.
func New(modelPath string, opts ...Option) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	t := &Transcriber{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Close releases the loaded model.
func (t *Transcriber) Close() error {
	if t.model != nil {
		return t.model.Close()
	}
	return nil
}

// Transcribe runs batch recognition over the clip. Inference itself cannot be
// interrupted; when ctx is cancelled mid-inference Transcribe returns early
// and the discarded run finishes in the background.
func (t *Transcriber) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	samples := clip.Samples
	if clip.Rate > 0 && clip.Rate != audio.SampleRate {
		samples = audio.ResampleMono(samples, clip.Rate, audio.SampleRate)
	}
	if len(samples) == 0 {
		return "", nil
	}
	if len(samples) < minSamples {
		padded := make([]int16, minSamples)
		copy(padded, samples)
		samples = padded
	}
	pcm := audio.Clip{Samples: samples, Rate: audio.SampleRate}.Float32()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := t.infer(pcm)
		done <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("whisper: transcription cancelled: %w", ctx.Err())
	case r := <-done:
		return r.text, r.err
	}
}

// infer runs whisper.cpp over the float32 samples using a fresh context and
// returns the concatenated segment text.
func (t *Transcriber) infer(samples []float32) (string, error) {
	// Each whisper context is single-use and not thread-safe; the model is
	// safe to share.
	wctx, err := t.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(t.language); err != nil {
		slog.Warn("whisper: failed to set language, using model default",
			"language", t.language, "error", err)
	}
	if t.threads > 0 {
		wctx.SetThreads(uint(t.threads))
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
