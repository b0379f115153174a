package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"
)

// DefaultHotkeyPoll is how often the sentinel file is checked.
const DefaultHotkeyPoll = 500 * time.Millisecond

// WatchHotkey polls for a sentinel file and treats its appearance as a wake
// event. A desktop keybinding touches the file; no audio involved. The file
// is removed before the turn starts so a held key does not queue turns.
func (o *Orchestrator) WatchHotkey(ctx context.Context, path string, interval time.Duration) {
	if path == "" {
		return
	}
	if interval <= 0 {
		interval = DefaultHotkeyPoll
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := os.Stat(path); err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					slog.Warn("hotkey sentinel check failed", "path", path, "err", err)
				}
				continue
			}
			if err := os.Remove(path); err != nil {
				slog.Warn("removing hotkey sentinel failed", "path", path, "err", err)
			}
			slog.Info("hotkey wake", "path", path)
			o.HandleWake(ctx)
		}
	}
}
