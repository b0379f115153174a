// Package onnx implements voiceid.Embedder with an ECAPA-TDNN style speaker
// embedding model running on ONNX Runtime.
//
// The model maps a fixed window of 16 kHz mono waveform to one embedding
// vector. Utterances longer than the window are embedded in successive
// windows whose vectors are length-normalised and averaged; shorter clips are
// zero-padded. The embedding length is read from the model's declared output
// shape, so exports with 192 or 512 dimensional embeddings both work without
// configuration.
package onnx

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/attercap/sennet/pkg/audio"
	"github.com/attercap/sennet/pkg/provider/voiceid"
)

const (
	windowSeconds = 3
	windowSamples = windowSeconds * audio.SampleRate
)

// The onnxruntime environment is process-wide and shared with every other
// ONNX-backed provider, so it is initialised once and left up for the life of
// the process.
var (
	ortMu sync.Mutex
	ortUp bool
)

func initRuntime(sharedLib string) error {
	ortMu.Lock()
	defer ortMu.Unlock()
	if ortUp || ort.IsInitialized() {
		return nil
	}
	if sharedLib != "" {
		ort.SetSharedLibraryPath(sharedLib)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return err
	}
	ortUp = true
	return nil
}

type settings struct {
	sharedLib string
	dims      int
}

// Option configures an Embedder.
type Option func(*settings)

// WithSharedLibrary sets the path of the onnxruntime shared library. It only
// takes effect for the first ONNX-backed provider constructed in the process.
func WithSharedLibrary(path string) Option {
	return func(s *settings) { s.sharedLib = path }
}

// WithDimensions overrides the embedding length for models whose export
// declares a fully dynamic output shape.
func WithDimensions(dims int) Option {
	return func(s *settings) { s.dims = dims }
}

// Embedder is the ONNX implementation of voiceid.Embedder. It is safe for
// concurrent use; inference calls are serialised on one session.
type Embedder struct {
	mu     sync.Mutex
	sess   *ort.AdvancedSession
	in     *ort.Tensor[float32]
	out    *ort.Tensor[float32]
	dims   int
	closed bool
}

var _ voiceid.Embedder = (*Embedder)(nil)

// New loads the speaker embedding model at modelPath and returns a ready
// Embedder.
func New(modelPath string, opts ...Option) (*Embedder, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("voiceid onnx: model path must not be empty")
	}
	var cfg settings
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := initRuntime(cfg.sharedLib); err != nil {
		return nil, fmt.Errorf("voiceid onnx: initialise onnxruntime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("voiceid onnx: inspect %s: %w", filepath.Base(modelPath), err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("voiceid onnx: %s: model declares no inputs or outputs", filepath.Base(modelPath))
	}

	dims := cfg.dims
	if dims == 0 {
		// Speaker model exports declare [batch, dims]; the batch axis is
		// usually dynamic, the embedding length is not.
		outDims := outputs[0].Dimensions
		if n := len(outDims); n > 0 && outDims[n-1] > 0 {
			dims = int(outDims[n-1])
		}
	}
	if dims <= 0 {
		return nil, fmt.Errorf("voiceid onnx: %s declares a dynamic embedding size; set WithDimensions", filepath.Base(modelPath))
	}

	e := &Embedder{dims: dims}
	ok := false
	defer func() {
		if !ok {
			e.destroy()
		}
	}()

	if e.in, err = ort.NewEmptyTensor[float32](ort.NewShape(1, windowSamples)); err != nil {
		return nil, fmt.Errorf("voiceid onnx: input tensor: %w", err)
	}
	if e.out, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dims))); err != nil {
		return nil, fmt.Errorf("voiceid onnx: output tensor: %w", err)
	}
	if e.sess, err = ort.NewAdvancedSession(modelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name},
		[]ort.Value{e.in}, []ort.Value{e.out}, nil); err != nil {
		return nil, fmt.Errorf("voiceid onnx: load %s: %w", filepath.Base(modelPath), err)
	}

	ok = true
	return e, nil
}

// Embed computes the voice embedding for clip, pooling across windows for
// clips longer than the model window.
func (e *Embedder) Embed(ctx context.Context, clip audio.Clip) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("voiceid onnx: embedder is closed")
	}

	if clip.Rate > 0 && clip.Rate != audio.SampleRate {
		clip = audio.Clip{
			Samples: audio.ResampleMono(clip.Samples, clip.Rate, audio.SampleRate),
			Rate:    audio.SampleRate,
		}
	}
	if len(clip.Samples) == 0 {
		return nil, fmt.Errorf("voiceid onnx: empty clip")
	}
	wave := clip.Float32()

	sum := make([]float32, e.dims)
	windows := 0
	for start := 0; start < len(wave); start += windowSamples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		in := e.in.GetData()
		n := copy(in, wave[start:])
		for i := n; i < len(in); i++ {
			in[i] = 0
		}

		if err := e.sess.Run(); err != nil {
			return nil, fmt.Errorf("voiceid onnx: inference: %w", err)
		}

		vec := e.out.GetData()
		if !l2Normalise(vec) {
			// A zero vector means the window carried no signal; skip it.
			continue
		}
		for i, v := range vec {
			sum[i] += v
		}
		windows++
	}
	if windows == 0 {
		return nil, fmt.Errorf("voiceid onnx: clip produced no usable windows")
	}

	for i := range sum {
		sum[i] /= float32(windows)
	}
	return sum, nil
}

// Dimensions returns the embedding length declared by the loaded model.
func (e *Embedder) Dimensions() int {
	return e.dims
}

// Close releases the ONNX session and tensors. The shared onnxruntime
// environment stays initialised for other providers.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.destroy()
	return nil
}

func (e *Embedder) destroy() {
	if e.sess != nil {
		e.sess.Destroy()
		e.sess = nil
	}
	for _, t := range []*ort.Tensor[float32]{e.in, e.out} {
		if t != nil {
			t.Destroy()
		}
	}
	e.in, e.out = nil, nil
}

// l2Normalise scales vec to unit length in place. It reports false and leaves
// vec untouched when the vector has zero magnitude.
func l2Normalise(vec []float32) bool {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return false
	}
	scale := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= scale
	}
	return true
}
