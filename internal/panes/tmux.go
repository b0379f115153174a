// Package panes watches tmux windows for activity changes. A Monitor polls
// each watched pane's tail, classifies it as working, idle, or errored from
// the captured text alone, and publishes state transitions to a bounded
// event channel. The package also carries the raw tmux command wrappers
// shared with the routing layer and a status-bar updater for the transient
// conversation indicator.
package panes

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Window describes one tmux window as reported by list-windows.
type Window struct {
	Index  int
	Name   string
	Active bool
}

// Tmux wraps the tmux CLI. All methods target windows in the current session
// by index (":N"). The zero value is not usable; construct with [NewTmux].
type Tmux struct {
	run func(ctx context.Context, args ...string) (string, error)
}

// TmuxOption configures a Tmux wrapper.
type TmuxOption func(*Tmux)

// WithRunner replaces the command executor. Tests use this to script tmux
// output without a server.
func WithRunner(run func(ctx context.Context, args ...string) (string, error)) TmuxOption {
	return func(t *Tmux) {
		if run != nil {
			t.run = run
		}
	}
}

// NewTmux creates a wrapper that shells out to the tmux binary on PATH.
func NewTmux(opts ...TmuxOption) *Tmux {
	t := &Tmux{run: runTmux}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func runTmux(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "tmux", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("panes: tmux %s: %w (%s)", args[0], err, msg)
		}
		return "", fmt.Errorf("panes: tmux %s: %w", args[0], err)
	}
	return stdout.String(), nil
}

// Available reports whether a tmux binary is on PATH.
func Available() bool {
	_, err := exec.LookPath("tmux")
	return err == nil
}

func target(window int) string {
	return ":" + strconv.Itoa(window)
}

// CapturePane returns the last lines of the window's visible output. The -J
// flag joins wrapped lines so prompts split across visual rows reassemble.
func (t *Tmux) CapturePane(ctx context.Context, window, lines int) (string, error) {
	return t.run(ctx, "capture-pane", "-p", "-J", "-t", target(window), "-S", fmt.Sprintf("-%d", lines))
}

// ListWindows returns the session's windows in index order.
func (t *Tmux) ListWindows(ctx context.Context) ([]Window, error) {
	out, err := t.run(ctx, "list-windows", "-F", "#{window_index}\t#{window_name}\t#{window_active}")
	if err != nil {
		return nil, err
	}
	var windows []Window
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}
		idx, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		windows = append(windows, Window{
			Index:  idx,
			Name:   parts[1],
			Active: parts[2] == "1",
		})
	}
	return windows, nil
}

// SelectWindow makes window the session's active window.
func (t *Tmux) SelectWindow(ctx context.Context, window int) error {
	_, err := t.run(ctx, "select-window", "-t", target(window))
	return err
}

// Paste stages text in the paste buffer and pastes it into the window
// without pressing Enter. The buffer round-trip keeps multi-word prompts
// intact where send-keys would interpret key names.
func (t *Tmux) Paste(ctx context.Context, window int, text string) error {
	if _, err := t.run(ctx, "set-buffer", "--", text); err != nil {
		return err
	}
	_, err := t.run(ctx, "paste-buffer", "-t", target(window))
	return err
}

// SendEnter presses Enter in the window.
func (t *Tmux) SendEnter(ctx context.Context, window int) error {
	_, err := t.run(ctx, "send-keys", "-t", target(window), "Enter")
	return err
}

// SendInterrupt sends Ctrl-C to the window.
func (t *Tmux) SendInterrupt(ctx context.Context, window int) error {
	_, err := t.run(ctx, "send-keys", "-t", target(window), "C-c")
	return err
}

// WindowExists reports whether the window index resolves in the current
// session.
func (t *Tmux) WindowExists(ctx context.Context, window int) bool {
	_, err := t.run(ctx, "display-message", "-t", target(window), "-p", "")
	return err == nil
}

// SetStatusRight replaces the session-global status-right string.
func (t *Tmux) SetStatusRight(ctx context.Context, value string) error {
	_, err := t.run(ctx, "set-option", "-g", "status-right", value)
	return err
}

// ResetStatusRight restores the default status-right.
func (t *Tmux) ResetStatusRight(ctx context.Context) error {
	_, err := t.run(ctx, "set-option", "-gu", "status-right")
	return err
}
