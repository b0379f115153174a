// Package openwake implements wake.Detector on the openWakeWord model family
// using ONNX Runtime.
//
// Detection runs as a three-stage pipeline: raw PCM chunks are converted to a
// mel spectrogram, spectrogram windows are folded into speech embeddings, and a
// per-phrase classifier scores the trailing embedding window. The melspectrogram
// and embedding models are shared across all openWakeWord phrases; only the
// classifier model is phrase-specific.
package openwake

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/attercap/sennet/pkg/audio"
	"github.com/attercap/sennet/pkg/provider/wake"
)

const (
	chunkSamples    = audio.FrameSamples // one 80 ms frame per Score call
	melBins         = 32                 // mel bands per spectrogram frame
	nMelFrames      = 5                  // spectrogram frames produced per chunk
	melWindowSize   = 76                 // spectrogram frames per embedding window
	melStepSize     = 8                  // spectrogram frames the window advances per embedding
	embeddingDim    = 96                 // features per embedding frame
	nEmbedFrames    = 16                 // embedding frames the classifier expects
	recentWindow    = 5                  // embedding slots fed live; older slots are zeroed
	scoreWindowSize = 5                  // trailing raw scores the reported score is maxed over
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
	melModel   string
	embedModel string
	wakeModel  string
	sharedLib  string
}

// Option configures a Detector.
type Option func(*settings)

// WithModelDir points the detector at a directory laid out the openWakeWord
// way: melspectrogram.onnx and embedding_model.onnx for the shared stages.
// The phrase classifier must still be named with WithWakeModel.
func WithModelDir(dir string) Option {
	return func(s *settings) {
		s.melModel = filepath.Join(dir, "melspectrogram.onnx")
		s.embedModel = filepath.Join(dir, "embedding_model.onnx")
	}
}

// WithMelspecModel sets the path of the shared melspectrogram model.
func WithMelspecModel(path string) Option {
	return func(s *settings) { s.melModel = path }
}

// WithEmbeddingModel sets the path of the shared speech-embedding model.
func WithEmbeddingModel(path string) Option {
	return func(s *settings) { s.embedModel = path }
}

// WithWakeModel sets the path of the phrase-specific classifier model.
func WithWakeModel(path string) Option {
	return func(s *settings) { s.wakeModel = path }
}

// WithSharedLibrary sets the path of the onnxruntime shared library. It only
// takes effect for the first ONNX-backed provider constructed in the process.
func WithSharedLibrary(path string) Option {
	return func(s *settings) { s.sharedLib = path }
}

// Detector is the openWakeWord implementation of wake.Detector. It is not safe
// for concurrent use; feed it from a single goroutine.
type Detector struct {
	melSess   *ort.AdvancedSession
	embedSess *ort.AdvancedSession
	wakeSess  *ort.AdvancedSession

	melIn, melOut     *ort.Tensor[float32]
	embedIn, embedOut *ort.Tensor[float32]
	wakeIn, wakeOut   *ort.Tensor[float32]

	melBuf   []float32 // rolling spectrogram frames, melBins values each
	embedBuf []float32 // nEmbedFrames * embeddingDim sliding window
	scores   [scoreWindowSize]float32
	scoreIdx int

	closed bool
}

var _ wake.Detector = (*Detector)(nil)

// New loads the three openWakeWord models and returns a ready Detector.
func New(opts ...Option) (*Detector, error) {
	var cfg settings
	for _, opt := range opts {
		opt(&cfg)
	}

	var missing []string
	if cfg.melModel == "" {
		missing = append(missing, "melspectrogram")
	}
	if cfg.embedModel == "" {
		missing = append(missing, "embedding")
	}
	if cfg.wakeModel == "" {
		missing = append(missing, "wake classifier")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("openwake: missing model paths: %s", strings.Join(missing, ", "))
	}

	if err := initRuntime(cfg.sharedLib); err != nil {
		return nil, fmt.Errorf("openwake: initialise onnxruntime: %w", err)
	}

	d := &Detector{
		melBuf:   make([]float32, 0, (melWindowSize+nMelFrames)*melBins),
		embedBuf: make([]float32, nEmbedFrames*embeddingDim),
	}
	ok := false
	defer func() {
		if !ok {
			d.destroy()
		}
	}()

	var err error
	if d.melIn, err = ort.NewEmptyTensor[float32](ort.NewShape(1, chunkSamples)); err != nil {
		return nil, fmt.Errorf("openwake: melspec input tensor: %w", err)
	}
	if d.melOut, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1, nMelFrames, melBins)); err != nil {
		return nil, fmt.Errorf("openwake: melspec output tensor: %w", err)
	}
	if d.embedIn, err = ort.NewEmptyTensor[float32](ort.NewShape(1, melWindowSize, melBins, 1)); err != nil {
		return nil, fmt.Errorf("openwake: embedding input tensor: %w", err)
	}
	if d.embedOut, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1, 1, embeddingDim)); err != nil {
		return nil, fmt.Errorf("openwake: embedding output tensor: %w", err)
	}
	if d.wakeIn, err = ort.NewEmptyTensor[float32](ort.NewShape(1, nEmbedFrames, embeddingDim)); err != nil {
		return nil, fmt.Errorf("openwake: classifier input tensor: %w", err)
	}
	if d.wakeOut, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1)); err != nil {
		return nil, fmt.Errorf("openwake: classifier output tensor: %w", err)
	}

	if d.melSess, err = newSession(cfg.melModel, d.melIn, d.melOut); err != nil {
		return nil, fmt.Errorf("openwake: %w", err)
	}
	if d.embedSess, err = newSession(cfg.embedModel, d.embedIn, d.embedOut); err != nil {
		return nil, fmt.Errorf("openwake: %w", err)
	}
	if d.wakeSess, err = newSession(cfg.wakeModel, d.wakeIn, d.wakeOut); err != nil {
		return nil, fmt.Errorf("openwake: %w", err)
	}

	ok = true
	return d, nil
}

func newSession(path string, in, out *ort.Tensor[float32]) (*ort.AdvancedSession, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", filepath.Base(path), err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("%s: model declares no inputs or outputs", filepath.Base(path))
	}
	sess, err := ort.NewAdvancedSession(path,
		[]string{inputs[0].Name}, []string{outputs[0].Name},
		[]ort.Value{in}, []ort.Value{out}, nil)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}
	return sess, nil
}

// Score runs one frame through the pipeline and returns the current smoothed
// confidence for the wake phrase.
func (d *Detector) Score(frame audio.Frame) (float32, error) {
	if d.closed {
		return 0, fmt.Errorf("openwake: detector is closed")
	}
	if len(frame) != chunkSamples {
		return 0, fmt.Errorf("openwake: frame has %d samples, want %d", len(frame), chunkSamples)
	}

	in := d.melIn.GetData()
	for i, s := range frame {
		in[i] = float32(s)
	}
	if err := d.melSess.Run(); err != nil {
		return 0, fmt.Errorf("openwake: melspectrogram: %w", err)
	}

	// Scale matches openWakeWord's training-time mel normalisation.
	mel := d.melOut.GetData()
	for f := 0; f < nMelFrames; f++ {
		for b := 0; b < melBins; b++ {
			d.melBuf = append(d.melBuf, mel[f*melBins+b]/10.0+2.0)
		}
	}

	newEmbed := false
	for len(d.melBuf)/melBins >= melWindowSize {
		copy(d.embedIn.GetData(), d.melBuf[:melWindowSize*melBins])
		if err := d.embedSess.Run(); err != nil {
			return 0, fmt.Errorf("openwake: embedding: %w", err)
		}
		eout := d.embedOut.GetData()
		copy(d.embedBuf, d.embedBuf[embeddingDim:])
		copy(d.embedBuf[(nEmbedFrames-1)*embeddingDim:], eout[:embeddingDim])
		newEmbed = true

		// Compact instead of reslicing so the backing array cannot grow
		// without bound.
		n := copy(d.melBuf, d.melBuf[melStepSize*melBins:])
		d.melBuf = d.melBuf[:n]
	}

	if newEmbed {
		// Only the most recent recentWindow embedding slots are fed as-is;
		// older slots are zeroed. Long stretches of silence would otherwise
		// fill the window with low-energy embeddings that suppress the
		// classifier.
		wdata := d.wakeIn.GetData()
		pad := (nEmbedFrames - recentWindow) * embeddingDim
		for i := 0; i < pad; i++ {
			wdata[i] = 0
		}
		copy(wdata[pad:], d.embedBuf[pad:])
		if err := d.wakeSess.Run(); err != nil {
			return 0, fmt.Errorf("openwake: classifier: %w", err)
		}
		d.scores[d.scoreIdx%scoreWindowSize] = d.wakeOut.GetData()[0]
		d.scoreIdx++
	}

	var max float32
	for _, s := range d.scores {
		if s > max {
			max = s
		}
	}
	return max, nil
}

// Reset discards all buffered audio context so the next Score starts from a
// clean window.
func (d *Detector) Reset() {
	d.melBuf = d.melBuf[:0]
	for i := range d.embedBuf {
		d.embedBuf[i] = 0
	}
	for i := range d.scores {
		d.scores[i] = 0
	}
	d.scoreIdx = 0
}

// Close releases the ONNX sessions and tensors. The shared onnxruntime
// environment stays initialised for other providers.
func (d *Detector) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.destroy()
	return nil
}

func (d *Detector) destroy() {
	for _, sess := range []*ort.AdvancedSession{d.melSess, d.embedSess, d.wakeSess} {
		if sess != nil {
			sess.Destroy()
		}
	}
	for _, t := range []*ort.Tensor[float32]{d.melIn, d.melOut, d.embedIn, d.embedOut, d.wakeIn, d.wakeOut} {
		if t != nil {
			t.Destroy()
		}
	}
	d.melSess, d.embedSess, d.wakeSess = nil, nil, nil
	d.melIn, d.melOut, d.embedIn, d.embedOut, d.wakeIn, d.wakeOut = nil, nil, nil, nil, nil, nil
}
