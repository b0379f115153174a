package orchestrator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/attercap/sennet/internal/panes"
)

func alertOrchestrator(t *testing.T, marker *fakeMarker, now *time.Time) (*Orchestrator, *fakeSpeaker) {
	t.Helper()
	speaker := &fakeSpeaker{}
	o, err := New(Deps{
		Speaker:     speaker,
		Listener:    &fakeListener{},
		Transcriber: &fakeTranscriber{},
		Marker:      marker,
	}, WithClock(func() time.Time { return *now }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o, speaker
}

func TestAlert_CompletionWithAssignment(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	marker := &fakeMarker{prompt: "refactor the parser and update the tests to match the new API shape"}
	o, speaker := alertOrchestrator(t, marker, &now)

	o.handlePaneEvent(context.Background(), panes.Event{
		Window: 2,
		Old:    panes.StateWorking,
		New:    panes.StateIdle,
	})

	said := speaker.said()
	if len(said) != 1 {
		t.Fatalf("spoken = %v, want one alert", said)
	}
	if !strings.HasPrefix(said[0], "Window 2 has finished refactor the parser") {
		t.Fatalf("alert = %q, want the prompt prefix", said[0])
	}
	if len(said[0]) > len("Window 2 has finished .")+50 {
		t.Fatalf("alert %q carries more than 50 prompt characters", said[0])
	}
	if len(marker.completed) != 1 || marker.completed[0] != 2 {
		t.Fatalf("completed marks = %v", marker.completed)
	}
}

func TestAlert_CompletionWithoutAssignment(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	o, speaker := alertOrchestrator(t, &fakeMarker{}, &now)

	o.handlePaneEvent(context.Background(), panes.Event{
		Window: 3,
		Old:    panes.StateWorking,
		New:    panes.StateIdle,
	})

	said := speaker.said()
	if len(said) != 1 || said[0] != "Window 3 has finished." {
		t.Fatalf("spoken = %v", said)
	}
}

func TestAlert_ErrorTransition(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	marker := &fakeMarker{prompt: "deploy"}
	o, speaker := alertOrchestrator(t, marker, &now)

	o.handlePaneEvent(context.Background(), panes.Event{
		Window: 1,
		Old:    panes.StateWorking,
		New:    panes.StateErrored,
	})

	said := speaker.said()
	if len(said) != 1 || said[0] != "Window 1 encountered an error." {
		t.Fatalf("spoken = %v", said)
	}
	if len(marker.errored) != 1 || marker.errored[0] != 1 {
		t.Fatalf("errored marks = %v", marker.errored)
	}
}

func TestAlert_SuppressedMidConversation(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	marker := &fakeMarker{}
	o, speaker := alertOrchestrator(t, marker, &now)
	o.mu.Lock()
	o.state = StateListening
	o.mu.Unlock()

	o.handlePaneEvent(context.Background(), panes.Event{
		Window: 2,
		Old:    panes.StateWorking,
		New:    panes.StateIdle,
	})

	if said := speaker.said(); len(said) != 0 {
		t.Fatalf("suppressed alert still spoke %v", said)
	}
	// The assignment transition is still recorded even when nothing is
	// spoken about it.
	if len(marker.completed) != 1 {
		t.Fatalf("completed marks = %v, want the mark regardless", marker.completed)
	}
}

func TestAlert_Dedup(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	o, speaker := alertOrchestrator(t, &fakeMarker{}, &now)

	completion := panes.Event{Window: 2, Old: panes.StateWorking, New: panes.StateIdle}
	ctx := context.Background()

	o.handlePaneEvent(ctx, completion)
	now = now.Add(5 * time.Second)
	o.handlePaneEvent(ctx, completion)
	if said := speaker.said(); len(said) != 1 {
		t.Fatalf("repeat inside the bucket spoken, said = %v", said)
	}

	// A different window is not deduped against window 2.
	o.handlePaneEvent(ctx, panes.Event{Window: 4, Old: panes.StateWorking, New: panes.StateIdle})
	if said := speaker.said(); len(said) != 2 {
		t.Fatalf("other window deduped, said = %v", said)
	}

	// The next bucket speaks again.
	now = now.Add(completionDedup)
	o.handlePaneEvent(ctx, completion)
	if said := speaker.said(); len(said) != 3 {
		t.Fatalf("next bucket still deduped, said = %v", said)
	}
}

func TestAlert_SetAlertWindowsShrinksDedup(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	o, speaker := alertOrchestrator(t, &fakeMarker{}, &now)
	o.SetAlertWindows(5*time.Second, time.Minute)

	completion := panes.Event{Window: 2, Old: panes.StateWorking, New: panes.StateIdle}
	ctx := context.Background()

	o.handlePaneEvent(ctx, completion)
	now = now.Add(6 * time.Second)
	o.handlePaneEvent(ctx, completion)
	if said := speaker.said(); len(said) != 2 {
		t.Fatalf("shrunk window should allow a repeat after 6s, said = %v", said)
	}

	// Non-positive values leave the spans untouched.
	o.SetAlertWindows(0, -time.Second)
	now = now.Add(6 * time.Second)
	o.handlePaneEvent(ctx, completion)
	if said := speaker.said(); len(said) != 3 {
		t.Fatalf("zero-valued update changed the span, said = %v", said)
	}
}

func TestAlert_IgnoresNonWorkingTransitions(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	o, speaker := alertOrchestrator(t, &fakeMarker{}, &now)
	ctx := context.Background()

	for _, ev := range []panes.Event{
		{Window: 1, Old: panes.StateUnknown, New: panes.StateWorking},
		{Window: 1, Old: panes.StateIdle, New: panes.StateWorking},
		{Window: 1, Old: panes.StateErrored, New: panes.StateIdle},
		{Window: 1, Old: panes.StateWorking, New: panes.StateWorking},
	} {
		o.handlePaneEvent(ctx, ev)
	}

	if said := speaker.said(); len(said) != 0 {
		t.Fatalf("non-alert transitions spoke %v", said)
	}
}

func TestConsumeEvents_StopsOnClose(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	o, speaker := alertOrchestrator(t, &fakeMarker{}, &now)

	events := make(chan panes.Event, 2)
	events <- panes.Event{Window: 2, Old: panes.StateWorking, New: panes.StateIdle}
	close(events)

	done := make(chan struct{})
	go func() {
		o.ConsumeEvents(context.Background(), events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ConsumeEvents did not return on channel close")
	}
	if said := speaker.said(); len(said) != 1 {
		t.Fatalf("spoken = %v", said)
	}
}
