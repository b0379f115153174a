package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/attercap/sennet/internal/wake"
	"github.com/attercap/sennet/pkg/audio"
)

// idleRecheck is how often the wake loop re-checks the conversation state
// while a turn owns the microphone.
const idleRecheck = 100 * time.Millisecond

// RunWakeLoop feeds microphone frames to the wake gate and opens a turn on
// each fire. The capture device is singly owned: while a conversation is
// running the loop stops reading frames entirely and polls the state
// instead, so the turn's segmenter sees the stream.
func (o *Orchestrator) RunWakeLoop(ctx context.Context, src audio.Source, gate *wake.Gate) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if o.State() != StateIdle {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(idleRecheck):
			}
			continue
		}

		frame, err := src.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		fired, err := gate.Feed(frame)
		if err != nil {
			slog.Warn("wake scoring failed", "err", err)
			continue
		}
		if fired {
			slog.Info("wake phrase detected")
			o.HandleWake(ctx)
		}
	}
}
