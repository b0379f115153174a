// Package speech assembles the spoken half of the orchestrator: utterance
// transcription with noise filtering ([Transcriber]), reply playback with
// barge-in interruption and a canned-phrase cache ([Engine]), and optional
// speaker verification against an enrolled voiceprint ([Verifier]).
//
// All exported types are safe for concurrent use.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/attercap/sennet/pkg/provider/tts"
)

// DefaultPlayer is the player argv used when none is configured. The audio
// file path is appended as the final argument.
var DefaultPlayer = []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"}

// Canned phrase keys pre-rendered by [Engine.Precache] at startup.
const (
	KeyBusy      = "busy"
	KeyListening = "listening"
	KeyError     = "error"
)

// CannedPhrases maps the stock keys to the phrases spoken for them.
var CannedPhrases = map[string]string{
	KeyBusy:      "One moment.",
	KeyListening: "Listening.",
	KeyError:     "Something went wrong.",
}

// CaptureGate pauses microphone capture while the engine is audible so
// playback does not feed back into wake detection. audio.Source satisfies it.
type CaptureGate interface {
	Pause()
	Resume()
}

// Engine renders replies through a Synthesizer and plays them with an
// external player subprocess. One reply plays at a time; starting a new one
// cuts off the old one, and [Engine.Stop] interrupts from any goroutine.
type Engine struct {
	synth    tts.Synthesizer
	voice    string
	player   []string
	cacheDir string
	gate     CaptureGate

	// mu guards the active player handoff between play and Stop.
	mu   sync.Mutex
	proc *os.Process
	done chan struct{}

	interrupted atomic.Bool
	speaking    atomic.Bool

	cacheMu sync.Mutex
	cache   map[string]string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithVoice selects the synthesizer voice. Empty means the synthesizer's
// default voice.
func WithVoice(voice string) EngineOption {
	return func(e *Engine) { e.voice = voice }
}

// WithPlayer replaces the player argv. The audio file path is appended as
// the final argument.
func WithPlayer(argv []string) EngineOption {
	return func(e *Engine) {
		if len(argv) > 0 {
			e.player = argv
		}
	}
}

// WithCacheDir sets the directory holding pre-rendered canned phrases.
func WithCacheDir(dir string) EngineOption {
	return func(e *Engine) {
		if dir != "" {
			e.cacheDir = dir
		}
	}
}

// WithCaptureGate pauses gate for the duration of every playback.
func WithCaptureGate(gate CaptureGate) EngineOption {
	return func(e *Engine) { e.gate = gate }
}

// NewEngine creates a playback engine over the given synthesizer.
func NewEngine(synth tts.Synthesizer, opts ...EngineOption) *Engine {
	e := &Engine{
		synth:    synth,
		player:   DefaultPlayer,
		cacheDir: defaultCacheDir(),
		cache:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "sennet", "tts")
	}
	return filepath.Join(base, "sennet", "tts")
}

// Speaking reports whether a reply is currently audible.
func (e *Engine) Speaking() bool {
	return e.speaking.Load()
}

// Speak renders text and plays it, blocking until playback finishes, ctx is
// cancelled, or the engine is stopped. A reply already playing is cut off
// first. Blank text is a no-op.
func (e *Engine) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	e.Stop()
	e.interrupted.Store(false)

	data, err := e.synth.Synthesize(ctx, text, e.voice)
	if err != nil {
		return fmt.Errorf("speech: synthesize: %w", err)
	}
	// Stop during synthesis means the caller moved on; drop the reply.
	if e.interrupted.Load() {
		return nil
	}

	f, err := os.CreateTemp("", "sennet-tts-*."+e.synth.Format())
	if err != nil {
		return fmt.Errorf("speech: scratch file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("speech: scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("speech: scratch file: %w", err)
	}

	return e.play(ctx, path)
}

// SpeakAsync plays text on a background goroutine. The returned channel is
// closed when playback ends, however it ends.
func (e *Engine) SpeakAsync(text string) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		if err := e.Speak(context.Background(), text); err != nil {
			slog.Warn("async speech failed", "err", err)
		}
	}()
	return ch
}

// Stop interrupts the current reply: SIGTERM, a one-second grace period,
// then SIGKILL. Safe to call at any time, from any goroutine, including when
// nothing is playing.
func (e *Engine) Stop() {
	e.interrupted.Store(true)

	e.mu.Lock()
	proc, done := e.proc, e.done
	e.mu.Unlock()
	if proc == nil {
		return
	}

	_ = proc.Signal(syscall.SIGTERM)
	select {
	case <-done:
	case <-time.After(time.Second):
		_ = proc.Kill()
	}
}

// Precache renders phrases to the cache directory so [Engine.PlayCached] can
// answer without synthesizer latency. Files already on disk are reused.
// Failures are logged and skipped; startup proceeds with whatever rendered.
func (e *Engine) Precache(ctx context.Context, phrases map[string]string) {
	if err := os.MkdirAll(e.cacheDir, 0o755); err != nil {
		slog.Warn("phrase cache unavailable", "dir", e.cacheDir, "err", err)
		return
	}
	for key, phrase := range phrases {
		path := filepath.Join(e.cacheDir, e.cacheName(key))
		if _, err := os.Stat(path); err == nil {
			e.remember(key, path)
			continue
		}
		data, err := e.synth.Synthesize(ctx, phrase, e.voice)
		if err != nil {
			slog.Warn("phrase cache render failed", "key", key, "err", err)
			continue
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			slog.Warn("phrase cache write failed", "key", key, "err", err)
			continue
		}
		e.remember(key, path)
		slog.Debug("phrase cached", "key", key, "path", path)
	}
}

// PlayCached plays a pre-rendered phrase without blocking. Unknown keys and
// missing files are a no-op.
func (e *Engine) PlayCached(key string) {
	path, ok := e.cached(key)
	if !ok {
		return
	}
	go func() {
		if err := e.play(context.Background(), path); err != nil {
			slog.Warn("cached phrase playback failed", "key", key, "err", err)
		}
	}()
}

// PlayCachedSync plays a pre-rendered phrase and waits for it to finish.
func (e *Engine) PlayCachedSync(ctx context.Context, key string) {
	path, ok := e.cached(key)
	if !ok {
		return
	}
	if err := e.play(ctx, path); err != nil {
		slog.Warn("cached phrase playback failed", "key", key, "err", err)
	}
}

func (e *Engine) cacheName(key string) string {
	voice := e.voice
	if voice == "" {
		voice = "default"
	}
	return key + "_" + voice + "." + e.synth.Format()
}

func (e *Engine) remember(key, path string) {
	e.cacheMu.Lock()
	e.cache[key] = path
	e.cacheMu.Unlock()
}

func (e *Engine) cached(key string) (string, bool) {
	e.cacheMu.Lock()
	path, ok := e.cache[key]
	e.cacheMu.Unlock()
	if !ok {
		return "", false
	}
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// play runs the player subprocess over path and blocks until it exits. The
// newest play call owns the proc/done pair; an older call finishing late must
// not clear the newer one's registration.
func (e *Engine) play(ctx context.Context, path string) error {
	argv := append(append([]string(nil), e.player...), path)
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("speech: start player %s: %w", argv[0], err)
	}

	done := make(chan struct{})
	e.mu.Lock()
	e.proc = cmd.Process
	e.done = done
	e.mu.Unlock()

	e.speaking.Store(true)
	if e.gate != nil {
		e.gate.Pause()
	}

	go func() {
		select {
		case <-ctx.Done():
			e.Stop()
		case <-done:
		}
	}()

	err := cmd.Wait()
	close(done)

	e.mu.Lock()
	owner := e.done == done
	if owner {
		e.proc = nil
		e.done = nil
	}
	e.mu.Unlock()

	if owner {
		e.speaking.Store(false)
		if e.gate != nil {
			e.gate.Resume()
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && !signaled(err) {
		return fmt.Errorf("speech: player: %w", err)
	}
	return nil
}

// signaled reports whether the player exited because Stop signalled it, as
// opposed to failing on its own.
func signaled(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	ws, ok := exitErr.Sys().(syscall.WaitStatus)
	return ok && ws.Signaled()
}
