package wake_test

import (
	"errors"
	"testing"
	"time"

	"github.com/attercap/sennet/internal/wake"
	"github.com/attercap/sennet/pkg/audio"
	wakemock "github.com/attercap/sennet/pkg/provider/wake/mock"
)

func frame() audio.Frame {
	return make(audio.Frame, audio.FrameSamples)
}

func TestGateFiresAtThreshold(t *testing.T) {
	t.Parallel()

	det := &wakemock.Detector{Scores: []float32{0.10, 0.34, 0.35}}
	g := wake.NewGate(det, 0.35)

	for i := 0; i < 2; i++ {
		fired, err := g.Feed(frame())
		if err != nil {
			t.Fatalf("Feed %d: %v", i, err)
		}
		if fired {
			t.Fatalf("Feed %d fired below threshold", i)
		}
	}
	fired, err := g.Feed(frame())
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if !fired {
		t.Fatal("want fire at threshold score")
	}
	if det.ResetCallCount != 1 {
		t.Fatalf("want detector reset once on fire, got %d", det.ResetCallCount)
	}
}

func TestGateCooldownSuppressesRefire(t *testing.T) {
	t.Parallel()

	det := &wakemock.Detector{DefaultScore: 0.9}
	now := time.Unix(1000, 0)
	g := wake.NewGate(det, 0.35,
		wake.WithCooldown(2*time.Second),
		wake.WithClock(func() time.Time { return now }),
	)

	fired, err := g.Feed(frame())
	if err != nil || !fired {
		t.Fatalf("first Feed: fired=%v err=%v, want fire", fired, err)
	}

	now = now.Add(500 * time.Millisecond)
	fired, err = g.Feed(frame())
	if err != nil {
		t.Fatalf("Feed in cooldown: %v", err)
	}
	if fired {
		t.Fatal("fired inside cooldown window")
	}

	now = now.Add(2 * time.Second)
	fired, err = g.Feed(frame())
	if err != nil || !fired {
		t.Fatalf("Feed after cooldown: fired=%v err=%v, want fire", fired, err)
	}
}

func TestGateScoreErrorWrapped(t *testing.T) {
	t.Parallel()

	scoreErr := errors.New("model exploded")
	det := &wakemock.Detector{ScoreErr: scoreErr}
	g := wake.NewGate(det, 0.35)

	_, err := g.Feed(frame())
	if !errors.Is(err, scoreErr) {
		t.Fatalf("want wrapped score error, got %v", err)
	}
}

func TestGateSetThreshold(t *testing.T) {
	t.Parallel()

	det := &wakemock.Detector{DefaultScore: 0.5}
	g := wake.NewGate(det, 0.9)

	fired, err := g.Feed(frame())
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if fired {
		t.Fatal("fired below configured threshold")
	}

	g.SetThreshold(0.4)
	if got := g.Threshold(); got != 0.4 {
		t.Fatalf("Threshold() = %v, want 0.4", got)
	}
	fired, err = g.Feed(frame())
	if err != nil || !fired {
		t.Fatalf("Feed after lowering threshold: fired=%v err=%v, want fire", fired, err)
	}
}

func TestGateResetForwardsToDetector(t *testing.T) {
	t.Parallel()

	det := &wakemock.Detector{}
	g := wake.NewGate(det, 0.35)

	g.Reset()
	g.Reset()
	if det.ResetCallCount != 2 {
		t.Fatalf("want 2 detector resets, got %d", det.ResetCallCount)
	}
}
