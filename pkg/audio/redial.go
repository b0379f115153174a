package audio

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Default redial parameters.
const (
	defaultMaxRetries = 10
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// OpenFunc opens a capture source. Platform packages provide one (e.g.
// wrapping miniaudio.New) so callers can retry device acquisition without
// knowing the platform.
type OpenFunc func(ctx context.Context) (Source, error)

// Redialer opens a [Source] with exponential backoff. USB mics and ALSA
// devices routinely fail a first open right after boot or replug; backing
// off and retrying covers that without special-casing the daemon startup.
type Redialer struct {
	open       OpenFunc
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
}

// RedialerConfig configures a [Redialer]. Zero fields take defaults
// (10 retries, 1 s initial backoff doubling to 30 s).
type RedialerConfig struct {
	Open       OpenFunc
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// NewRedialer creates a [Redialer] with the given configuration.
func NewRedialer(cfg RedialerConfig) *Redialer {
	r := &Redialer{
		open:       cfg.Open,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		maxBackoff: cfg.MaxBackoff,
	}
	if r.maxRetries <= 0 {
		r.maxRetries = defaultMaxRetries
	}
	if r.backoff <= 0 {
		r.backoff = defaultBackoff
	}
	if r.maxBackoff <= 0 {
		r.maxBackoff = defaultMaxBackoff
	}
	return r
}

// Open attempts to open the source, retrying with exponential backoff until
// it succeeds, the retry budget is exhausted, or ctx is cancelled.
func (r *Redialer) Open(ctx context.Context) (Source, error) {
	backoff := r.backoff
	var lastErr error

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		src, err := r.open(ctx)
		if err == nil {
			if attempt > 1 {
				slog.Info("audio device opened after retries", "attempt", attempt)
			}
			return src, nil
		}
		lastErr = err

		slog.Warn("audio device open failed",
			"attempt", attempt,
			"max_retries", r.maxRetries,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
	}

	return nil, fmt.Errorf("audio: open failed after %d attempts: %w", r.maxRetries, lastErr)
}
