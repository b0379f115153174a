package speech

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	ttsmock "github.com/attercap/sennet/pkg/provider/tts/mock"
)

// instantPlayer exits immediately, ignoring the appended file path.
var instantPlayer = []string{"true"}

// slowPlayer blocks for far longer than any test runs; the appended file
// path lands in $0 and is ignored.
var slowPlayer = []string{"sh", "-c", "sleep 30"}

type countingGate struct {
	mu      sync.Mutex
	pauses  int
	resumes int
}

func (g *countingGate) Pause() {
	g.mu.Lock()
	g.pauses++
	g.mu.Unlock()
}

func (g *countingGate) Resume() {
	g.mu.Lock()
	g.resumes++
	g.mu.Unlock()
}

func (g *countingGate) counts() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pauses, g.resumes
}

func TestSpeakBlankIsNoOp(t *testing.T) {
	synth := &ttsmock.Synthesizer{}
	e := NewEngine(synth, WithPlayer(instantPlayer))

	if err := e.Speak(context.Background(), "   \n"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if len(synth.SynthesizeCalls) != 0 {
		t.Errorf("Synthesize calls: got %d, want 0", len(synth.SynthesizeCalls))
	}
}

func TestSpeakRendersAndPlays(t *testing.T) {
	synth := &ttsmock.Synthesizer{Payload: []byte("AUDIO")}
	e := NewEngine(synth, WithPlayer(instantPlayer), WithVoice("en-GB-RyanNeural"))

	if err := e.Speak(context.Background(), "Listening."); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if len(synth.SynthesizeCalls) != 1 {
		t.Fatalf("Synthesize calls: got %d, want 1", len(synth.SynthesizeCalls))
	}
	call := synth.SynthesizeCalls[0]
	if call.Text != "Listening." || call.Voice != "en-GB-RyanNeural" {
		t.Errorf("Synthesize call: got (%q, %q)", call.Text, call.Voice)
	}
}

func TestSpeakSynthesizeError(t *testing.T) {
	synth := &ttsmock.Synthesizer{Err: errors.New("socket closed")}
	e := NewEngine(synth, WithPlayer(instantPlayer))

	err := e.Speak(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "synthesize") {
		t.Fatalf("Speak error: got %v, want synthesize failure", err)
	}
}

func TestSpeakPlayerMissing(t *testing.T) {
	synth := &ttsmock.Synthesizer{}
	e := NewEngine(synth, WithPlayer([]string{"/nonexistent/player-binary"}))

	if err := e.Speak(context.Background(), "hello"); err == nil {
		t.Fatal("expected error for missing player binary, got nil")
	}
}

func TestSpeakPausesCaptureDuringPlayback(t *testing.T) {
	gate := &countingGate{}
	e := NewEngine(&ttsmock.Synthesizer{}, WithPlayer(instantPlayer), WithCaptureGate(gate))

	if err := e.Speak(context.Background(), "hello"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	pauses, resumes := gate.counts()
	if pauses != 1 || resumes != 1 {
		t.Errorf("gate calls: got %d pauses, %d resumes, want 1 and 1", pauses, resumes)
	}
}

func TestStopInterruptsPlayback(t *testing.T) {
	e := NewEngine(&ttsmock.Synthesizer{}, WithPlayer(slowPlayer))

	done := e.SpeakAsync("long reply")
	waitUntil(t, e.Speaking, "engine did not start speaking")

	start := time.Now()
	e.Stop()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("playback did not end after Stop")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Stop took %v, want well under the grace period plus slack", elapsed)
	}
	if e.Speaking() {
		t.Error("Speaking after Stop: got true, want false")
	}
}

func TestStopWithoutPlaybackIsNoOp(t *testing.T) {
	e := NewEngine(&ttsmock.Synthesizer{}, WithPlayer(instantPlayer))
	e.Stop()
	e.Stop()
}

func TestSpeakContextCancel(t *testing.T) {
	e := NewEngine(&ttsmock.Synthesizer{}, WithPlayer(slowPlayer))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Speak(ctx, "long reply") }()
	waitUntil(t, e.Speaking, "engine did not start speaking")

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Speak error: got %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Speak did not return after cancel")
	}
}

func TestPrecacheAndPlayCached(t *testing.T) {
	synth := &ttsmock.Synthesizer{Payload: []byte("AUDIO")}
	dir := t.TempDir()
	e := NewEngine(synth, WithPlayer(instantPlayer), WithCacheDir(dir))

	e.Precache(context.Background(), CannedPhrases)

	for key := range CannedPhrases {
		path := filepath.Join(dir, key+"_default.mp3")
		if _, err := os.Stat(path); err != nil {
			t.Errorf("cached phrase %q: %v", key, err)
		}
	}
	if len(synth.SynthesizeCalls) != len(CannedPhrases) {
		t.Errorf("Synthesize calls: got %d, want %d", len(synth.SynthesizeCalls), len(CannedPhrases))
	}

	e.PlayCachedSync(context.Background(), KeyBusy)
	e.PlayCachedSync(context.Background(), "no-such-key")
}

func TestPrecacheReusesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	first := NewEngine(&ttsmock.Synthesizer{Payload: []byte("AUDIO")}, WithPlayer(instantPlayer), WithCacheDir(dir))
	first.Precache(context.Background(), CannedPhrases)

	// A second start with a failing synthesizer still serves the files
	// rendered last time.
	synth := &ttsmock.Synthesizer{Err: errors.New("tts down")}
	second := NewEngine(synth, WithPlayer(instantPlayer), WithCacheDir(dir))
	second.Precache(context.Background(), CannedPhrases)

	if len(synth.SynthesizeCalls) != 0 {
		t.Errorf("Synthesize calls on warm cache: got %d, want 0", len(synth.SynthesizeCalls))
	}
	second.PlayCachedSync(context.Background(), KeyListening)
}

func TestSpeakCutsPreviousReply(t *testing.T) {
	e := NewEngine(&ttsmock.Synthesizer{}, WithPlayer(slowPlayer))

	first := e.SpeakAsync("first reply")
	waitUntil(t, e.Speaking, "engine did not start speaking")

	// Swap to a fast player so the second reply finishes immediately.
	e.player = instantPlayer
	if err := e.Speak(context.Background(), "second reply"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	select {
	case <-first:
	case <-time.After(3 * time.Second):
		t.Fatal("first reply was not cut off")
	}
}

// waitUntil polls cond every 10ms and fails the test if it stays false for
// two seconds.
func waitUntil(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}
