package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/attercap/sennet/internal/panes"
)

type alertKind int

const (
	alertCompletion alertKind = iota
	alertError
)

// alertKey identifies a dedup slot: one per window and transition kind.
type alertKey struct {
	window int
	kind   alertKind
}

// ConsumeEvents drains the pane monitor's event stream until ctx is
// cancelled. Run it on its own goroutine.
func (o *Orchestrator) ConsumeEvents(ctx context.Context, events <-chan panes.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			o.handlePaneEvent(ctx, ev)
		}
	}
}

// handlePaneEvent turns a state transition into a spoken alert. Alerts are
// suppressed mid-conversation and deduplicated per window inside a time
// bucket so a flapping pane does not chant.
func (o *Orchestrator) handlePaneEvent(ctx context.Context, ev panes.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pane alert panicked", "panic", r, "window", ev.Window)
		}
	}()

	if ev.Old != panes.StateWorking {
		return
	}

	var (
		kind alertKind
		text string
	)
	switch ev.New {
	case panes.StateIdle:
		kind = alertCompletion
		text = fmt.Sprintf("Window %d has finished.", ev.Window)
		if o.deps.Marker != nil {
			if a, ok := o.deps.Marker.MarkCompleted(ev.Window); ok {
				text = fmt.Sprintf("Window %d has finished %s.", ev.Window, promptPrefix(a.Prompt))
			}
		}
	case panes.StateErrored:
		kind = alertError
		text = fmt.Sprintf("Window %d encountered an error.", ev.Window)
		if o.deps.Marker != nil {
			o.deps.Marker.MarkErrored(ev.Window)
		}
	default:
		return
	}

	if o.State() != StateIdle {
		slog.Debug("alert suppressed mid-conversation", "window", ev.Window)
		return
	}
	if !o.shouldSpeakAlert(ev.Window, kind) {
		return
	}

	slog.Info("speaking pane alert", "window", ev.Window, "state", ev.New)
	if err := o.deps.Speaker.Speak(ctx, text); err != nil {
		slog.Warn("pane alert failed", "err", err)
	}
}

// SetAlertWindows adjusts the dedup spans at runtime. Used by config hot
// reload.
func (o *Orchestrator) SetAlertWindows(completion, errored time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if completion > 0 {
		o.completionSpan = completion
	}
	if errored > 0 {
		o.errorSpan = errored
	}
}

// shouldSpeakAlert applies bucketed dedup: by default one completion alert
// per window per 30 seconds and one error alert per window per 60 seconds.
func (o *Orchestrator) shouldSpeakAlert(window int, kind alertKind) bool {
	o.mu.Lock()
	span := o.completionSpan
	if kind == alertError {
		span = o.errorSpan
	}
	o.mu.Unlock()
	bucket := o.now().Unix() / int64(span.Seconds())

	o.mu.Lock()
	defer o.mu.Unlock()
	key := alertKey{window: window, kind: kind}
	if last, ok := o.lastSaid[key]; ok && last == bucket {
		return false
	}
	o.lastSaid[key] = bucket
	return true
}
