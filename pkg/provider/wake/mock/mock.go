// Package mock provides a test double for the wake package interfaces.
//
// Use Detector to script the confidence returned for each frame and inspect
// the frames that were submitted for scoring.
//
// Example:
//
//	det := &mock.Detector{Scores: []float32{0.1, 0.2, 0.9}}
//	got, _ := det.Score(frame) // 0.1, then 0.2, then 0.9, then DefaultScore
package mock

import (
	"sync"

	"github.com/attercap/sennet/pkg/audio"
	"github.com/attercap/sennet/pkg/provider/wake"
)

// Detector is a mock implementation of wake.Detector.
type Detector struct {
	mu sync.Mutex

	// Scores is consumed one value per Score call, in order. Once exhausted,
	// Score returns DefaultScore.
	Scores []float32

	// DefaultScore is returned by Score after Scores is exhausted.
	DefaultScore float32

	// ScoreErr, if non-nil, is returned by every Score call.
	ScoreErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// ScoreCalls records a copy of every frame passed to Score, in order.
	ScoreCalls []audio.Frame

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	next int
}

// Score records the call and returns the next scripted score, ScoreErr.
func (d *Detector) Score(frame audio.Frame) (float32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make(audio.Frame, len(frame))
	copy(cp, frame)
	d.ScoreCalls = append(d.ScoreCalls, cp)
	if d.ScoreErr != nil {
		return 0, d.ScoreErr
	}
	if d.next < len(d.Scores) {
		s := d.Scores[d.next]
		d.next++
		return s, nil
	}
	return d.DefaultScore, nil
}

// Reset records the call by incrementing ResetCallCount.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ResetCallCount++
}

// Close records the call and returns CloseErr.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CloseCallCount++
	return d.CloseErr
}

// ResetCalls clears all recorded call history and rewinds Scores. Thread-safe.
func (d *Detector) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ScoreCalls = nil
	d.ResetCallCount = 0
	d.CloseCallCount = 0
	d.next = 0
}

// Ensure Detector implements wake.Detector at compile time.
var _ wake.Detector = (*Detector)(nil)
