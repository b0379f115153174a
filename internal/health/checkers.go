package health

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/attercap/sennet/internal/panes"
	"github.com/attercap/sennet/pkg/provider/llm"
)

// Pinger is anything with a connectivity probe. Both postgres stores
// satisfy it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TmuxChecker verifies that a tmux binary is on PATH and the server
// answers. The daemon cannot route tasks or monitor panes without it.
func TmuxChecker(tmux *panes.Tmux) Checker {
	return Checker{
		Name: "tmux",
		Check: func(ctx context.Context) error {
			if !panes.Available() {
				return fmt.Errorf("tmux binary not found on PATH")
			}
			if _, err := tmux.ListWindows(ctx); err != nil {
				return fmt.Errorf("tmux server: %w", err)
			}
			return nil
		},
	}
}

// LLMChecker probes the local model endpoint. The daemon degrades without
// it (the quick-answer tier falls away) but readiness should surface it.
func LLMChecker(provider llm.Provider) Checker {
	return Checker{
		Name: "llm",
		Check: func(ctx context.Context) error {
			return provider.Ping(ctx)
		},
	}
}

// DatabaseChecker probes a postgres-backed store.
func DatabaseChecker(name string, p Pinger) Checker {
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			return p.Ping(ctx)
		},
	}
}

// BinaryChecker verifies that an external command the daemon shells out to
// (the brain agent, a TTS player) resolves on PATH.
func BinaryChecker(name, binary string) Checker {
	return Checker{
		Name: name,
		Check: func(_ context.Context) error {
			if binary == "" {
				return fmt.Errorf("no command configured")
			}
			if _, err := exec.LookPath(binary); err != nil {
				return fmt.Errorf("%s: %w", binary, err)
			}
			return nil
		},
	}
}
