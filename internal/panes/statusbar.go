package panes

import (
	"context"
	"log/slog"
)

// StatusSetter writes the tmux status-right string. *Tmux satisfies it.
type StatusSetter interface {
	SetStatusRight(ctx context.Context, value string) error
	ResetStatusRight(ctx context.Context) error
}

// StatusBar mirrors the conversation state into the tmux status line so a
// glance at the terminal shows whether the orchestrator is listening. A
// disabled bar is a no-op, which keeps call sites unconditional.
type StatusBar struct {
	tmux    StatusSetter
	enabled bool
}

// NewStatusBar creates a status-bar updater. With enabled false every call
// is a no-op.
func NewStatusBar(tmux StatusSetter, enabled bool) *StatusBar {
	return &StatusBar{tmux: tmux, enabled: enabled && tmux != nil}
}

// Show writes the indicator for the given conversation state.
func (b *StatusBar) Show(ctx context.Context, state string) {
	if !b.enabled {
		return
	}
	if err := b.tmux.SetStatusRight(ctx, "● "+state); err != nil {
		slog.Debug("status bar update failed", "err", err)
	}
}

// Clear restores the default status line.
func (b *StatusBar) Clear(ctx context.Context) {
	if !b.enabled {
		return
	}
	if err := b.tmux.ResetStatusRight(ctx); err != nil {
		slog.Debug("status bar reset failed", "err", err)
	}
}
