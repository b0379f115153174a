package route

import (
	"context"
	"fmt"
	"time"

	"github.com/attercap/sennet/internal/panes"
)

// pasteSettle is how long the router waits between pasting a prompt and
// pressing Enter, so TUI agents finish rendering the input first.
const pasteSettle = 100 * time.Millisecond

// Tmux is the subset of pane commands the router drives. *panes.Tmux
// satisfies it.
type Tmux interface {
	Paste(ctx context.Context, window int, text string) error
	SendEnter(ctx context.Context, window int) error
	SendInterrupt(ctx context.Context, window int) error
	SelectWindow(ctx context.Context, window int) error
	ListWindows(ctx context.Context) ([]panes.Window, error)
	CapturePane(ctx context.Context, window, lines int) (string, error)
}

// WindowStatus is one row of [TaskRouter.List]: a tmux window joined with
// its assignment, when one exists.
type WindowStatus struct {
	Window     panes.Window
	Task       string
	TaskStatus AssignmentStatus
}

// TaskRouter dispatches prompts to tmux windows and tracks the resulting
// assignments. tmux failures surface as errors; the caller decides what to
// speak.
type TaskRouter struct {
	tmux        Tmux
	assignments *Assignments
	settle      time.Duration
}

// TaskRouterOption configures a TaskRouter.
type TaskRouterOption func(*TaskRouter)

// WithSettle overrides the paste-to-Enter delay. Tests shrink it.
func WithSettle(d time.Duration) TaskRouterOption {
	return func(r *TaskRouter) {
		if d >= 0 {
			r.settle = d
		}
	}
}

// NewTaskRouter creates a router over the given tmux wrapper.
func NewTaskRouter(tmux Tmux, opts ...TaskRouterOption) *TaskRouter {
	r := &TaskRouter{
		tmux:        tmux,
		assignments: NewAssignments(),
		settle:      pasteSettle,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Assignments exposes the registry so the orchestrator can resolve pane
// transitions to prompts.
func (r *TaskRouter) Assignments() *Assignments {
	return r.assignments
}

// Assign pastes prompt into the window, waits for the paste to settle,
// presses Enter, and records an active assignment.
func (r *TaskRouter) Assign(ctx context.Context, window int, prompt string) (Assignment, error) {
	if err := r.tmux.Paste(ctx, window, prompt); err != nil {
		return Assignment{}, fmt.Errorf("route: assign window %d: %w", window, err)
	}
	select {
	case <-ctx.Done():
		return Assignment{}, ctx.Err()
	case <-time.After(r.settle):
	}
	if err := r.tmux.SendEnter(ctx, window); err != nil {
		return Assignment{}, fmt.Errorf("route: assign window %d: %w", window, err)
	}
	return r.assignments.Record(window, prompt), nil
}

// Type pastes text into the window without pressing Enter.
func (r *TaskRouter) Type(ctx context.Context, window int, text string) error {
	if err := r.tmux.Paste(ctx, window, text); err != nil {
		return fmt.Errorf("route: type into window %d: %w", window, err)
	}
	return nil
}

// Cancel sends Ctrl-C to the window and marks its assignment cancelled.
func (r *TaskRouter) Cancel(ctx context.Context, window int) error {
	if err := r.tmux.SendInterrupt(ctx, window); err != nil {
		return fmt.Errorf("route: cancel window %d: %w", window, err)
	}
	r.assignments.SetStatus(window, StatusCancelled)
	return nil
}

// Switch selects the window.
func (r *TaskRouter) Switch(ctx context.Context, window int) error {
	if err := r.tmux.SelectWindow(ctx, window); err != nil {
		return fmt.Errorf("route: switch to window %d: %w", window, err)
	}
	return nil
}

// Peek returns the window's trailing non-empty lines for a status check.
func (r *TaskRouter) Peek(ctx context.Context, window, lines int) (string, error) {
	out, err := r.tmux.CapturePane(ctx, window, panes.DefaultCaptureLines)
	if err != nil {
		return "", fmt.Errorf("route: peek window %d: %w", window, err)
	}
	return panes.Tail(out, lines), nil
}

// List joins the session's windows with their assignment status.
func (r *TaskRouter) List(ctx context.Context) ([]WindowStatus, error) {
	windows, err := r.tmux.ListWindows(ctx)
	if err != nil {
		return nil, fmt.Errorf("route: list windows: %w", err)
	}
	out := make([]WindowStatus, 0, len(windows))
	for _, w := range windows {
		ws := WindowStatus{Window: w}
		if asg, ok := r.assignments.Get(w.Index); ok {
			ws.Task = asg.Prompt
			ws.TaskStatus = asg.Status
		}
		out = append(out, ws)
	}
	return out, nil
}

// MarkCompleted marks the window's assignment completed. Called by the
// orchestrator on a working→idle pane transition.
func (r *TaskRouter) MarkCompleted(window int) (Assignment, bool) {
	if _, ok := r.assignments.Active(window); !ok {
		return Assignment{}, false
	}
	return r.assignments.SetStatus(window, StatusCompleted)
}

// MarkErrored marks the window's assignment errored.
func (r *TaskRouter) MarkErrored(window int) (Assignment, bool) {
	if _, ok := r.assignments.Active(window); !ok {
		return Assignment{}, false
	}
	return r.assignments.SetStatus(window, StatusErrored)
}
