// Package route turns recognised utterances into tmux actions. The
// [TaskRouter] drives windows (paste a prompt, press Enter, interrupt,
// switch) and tracks one assignment per window; the [FastRouter] is the
// deterministic first routing tier, an ordered regex table that handles
// window commands without any model in the loop.
package route

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// AssignmentStatus is the lifecycle state of a dispatched prompt.
type AssignmentStatus string

const (
	StatusActive    AssignmentStatus = "active"
	StatusCompleted AssignmentStatus = "completed"
	StatusCancelled AssignmentStatus = "cancelled"
	StatusErrored   AssignmentStatus = "errored"
)

// Assignment records a prompt dispatched to a window.
type Assignment struct {
	ID         string
	Window     int
	Prompt     string
	AssignedAt time.Time
	Status     AssignmentStatus
}

// Assignments is a mutex-guarded registry of the latest assignment per
// window. Safe for concurrent use.
type Assignments struct {
	mu       sync.Mutex
	byWindow map[int]*Assignment
}

// NewAssignments creates an empty registry.
func NewAssignments() *Assignments {
	return &Assignments{byWindow: make(map[int]*Assignment)}
}

// Record stores a fresh active assignment for the window, replacing any
// previous one.
func (a *Assignments) Record(window int, prompt string) Assignment {
	asg := Assignment{
		ID:         uuid.NewString(),
		Window:     window,
		Prompt:     prompt,
		AssignedAt: time.Now().UTC(),
		Status:     StatusActive,
	}
	a.mu.Lock()
	a.byWindow[window] = &asg
	a.mu.Unlock()
	return asg
}

// Active returns the window's assignment when it exists and is still active.
func (a *Assignments) Active(window int) (Assignment, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	asg, ok := a.byWindow[window]
	if !ok || asg.Status != StatusActive {
		return Assignment{}, false
	}
	return *asg, true
}

// Get returns the window's latest assignment regardless of status.
func (a *Assignments) Get(window int) (Assignment, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	asg, ok := a.byWindow[window]
	if !ok {
		return Assignment{}, false
	}
	return *asg, true
}

// SetStatus mutates the status of the window's assignment. It reports false
// when the window has no assignment.
func (a *Assignments) SetStatus(window int, status AssignmentStatus) (Assignment, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	asg, ok := a.byWindow[window]
	if !ok {
		return Assignment{}, false
	}
	asg.Status = status
	return *asg, true
}

// All returns a copy of every tracked assignment.
func (a *Assignments) All() []Assignment {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Assignment, 0, len(a.byWindow))
	for _, asg := range a.byWindow {
		out = append(out, *asg)
	}
	return out
}
