package audio_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/attercap/sennet/pkg/audio"
	"github.com/attercap/sennet/pkg/audio/mock"
)

func TestRedialer_SucceedsFirstTry(t *testing.T) {
	t.Parallel()
	want := &mock.Source{}
	r := audio.NewRedialer(audio.RedialerConfig{
		Open: func(ctx context.Context) (audio.Source, error) {
			return want, nil
		},
	})

	got, err := r.Open(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("returned source is not the one opened")
	}
}

func TestRedialer_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	attempts := 0
	r := audio.NewRedialer(audio.RedialerConfig{
		Open: func(ctx context.Context) (audio.Source, error) {
			attempts++
			if attempts < 3 {
				return nil, errors.New("device busy")
			}
			return &mock.Source{}, nil
		},
		Backoff:    time.Millisecond,
		MaxBackoff: 5 * time.Millisecond,
	})

	_, err := r.Open(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts: got %d, want 3", attempts)
	}
}

func TestRedialer_GivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()
	openErr := errors.New("no such device")
	attempts := 0
	r := audio.NewRedialer(audio.RedialerConfig{
		Open: func(ctx context.Context) (audio.Source, error) {
			attempts++
			return nil, openErr
		},
		MaxRetries: 3,
		Backoff:    time.Millisecond,
		MaxBackoff: 2 * time.Millisecond,
	})

	_, err := r.Open(context.Background())
	if err == nil {
		t.Fatal("expected error after exhausting retries, got nil")
	}
	if !errors.Is(err, openErr) {
		t.Errorf("error should wrap the last open failure, got: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts: got %d, want 3", attempts)
	}
}

func TestRedialer_ContextCancelsBackoff(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	r := audio.NewRedialer(audio.RedialerConfig{
		Open: func(ctx context.Context) (audio.Source, error) {
			return nil, errors.New("device busy")
		},
		Backoff: time.Hour, // only cancellation can end the wait
	})

	done := make(chan error, 1)
	go func() {
		_, err := r.Open(ctx)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Open did not return after context cancellation")
	}
}
