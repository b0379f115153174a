// Package wake arms the voice pipeline when the wake phrase is heard.
//
// The Gate applies detection policy (firing threshold, refractory cooldown) on
// top of a wake.Detector's raw confidence stream. The orchestrator feeds it
// frames while idle and transitions to listening when Feed reports a fire.
package wake

import (
	"fmt"
	"sync"
	"time"

	"github.com/attercap/sennet/pkg/audio"
	wakeprov "github.com/attercap/sennet/pkg/provider/wake"
)

const defaultCooldown = 2 * time.Second

// Gate decides when a wake-phrase detection fires. Feed must be called from a
// single goroutine; SetThreshold is safe to call concurrently from a config
// reload.
type Gate struct {
	det      wakeprov.Detector
	cooldown time.Duration
	now      func() time.Time

	mu        sync.Mutex
	threshold float32

	lastFire time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithCooldown sets the refractory period after a fire during which further
// threshold crossings are suppressed.
func WithCooldown(d time.Duration) Option {
	return func(g *Gate) { g.cooldown = d }
}

// WithClock overrides the time source used for cooldown bookkeeping. Tests
// only.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// NewGate wraps a detector with firing policy at the given threshold.
func NewGate(det wakeprov.Detector, threshold float32, opts ...Option) *Gate {
	g := &Gate{
		det:       det,
		threshold: threshold,
		cooldown:  defaultCooldown,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Feed scores one frame and reports whether the wake phrase fired. A fire
// resets the detector so the tail of the same utterance cannot trigger again,
// and starts the cooldown.
func (g *Gate) Feed(frame audio.Frame) (bool, error) {
	score, err := g.det.Score(frame)
	if err != nil {
		return false, fmt.Errorf("wake: score frame: %w", err)
	}
	if score < g.Threshold() {
		return false, nil
	}
	now := g.now()
	if !g.lastFire.IsZero() && now.Sub(g.lastFire) < g.cooldown {
		return false, nil
	}
	g.lastFire = now
	g.det.Reset()
	return true, nil
}

// Reset clears the detector's buffered audio context. Call it when the stream
// resumes after a gap so stale context cannot skew the next scores.
func (g *Gate) Reset() {
	g.det.Reset()
}

// SetThreshold replaces the firing threshold.
func (g *Gate) SetThreshold(t float32) {
	g.mu.Lock()
	g.threshold = t
	g.mu.Unlock()
}

// Threshold returns the current firing threshold.
func (g *Gate) Threshold() float32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.threshold
}
