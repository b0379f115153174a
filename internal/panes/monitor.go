package panes

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"
)

// Defaults for the monitor's polling behaviour.
const (
	DefaultPollInterval  = 2500 * time.Millisecond
	DefaultCaptureLines  = 30
	DefaultStalledFactor = 2

	// eventBuffer bounds the transition queue. The oldest event is dropped
	// when a slow consumer lets it fill.
	eventBuffer = 64

	// tailLines is how many trailing lines ride along with each event.
	tailLines = 5
)

// Event is one observed pane state transition.
type Event struct {
	Window int
	Old    State
	New    State

	// Tail is the last few non-empty lines of the snapshot that triggered
	// the transition.
	Tail string
}

// Snapshotter captures a pane tail. *Tmux satisfies it.
type Snapshotter interface {
	CapturePane(ctx context.Context, window, lines int) (string, error)
}

// record is the monitor's per-pane bookkeeping. The monitor mutex guards the
// map and every field, so StateOf may read from any goroutine.
type record struct {
	state      State
	digest     uint64
	lastChange time.Time
	snapshot   string
}

// Monitor polls a set of tmux windows and publishes state transitions.
// Watch and Unwatch are safe from any goroutine; polling itself runs on the
// single goroutine started by [Monitor.Start].
type Monitor struct {
	tmux          Snapshotter
	interval      time.Duration
	captureLines  int
	stalledFactor int
	now           func() time.Time

	events chan Event

	mu      sync.Mutex
	records map[int]*record

	startOnce sync.Once
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithPollInterval sets the sampling period.
func WithPollInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithCaptureLines sets how many trailing lines each sample captures.
func WithCaptureLines(n int) MonitorOption {
	return func(m *Monitor) {
		if n > 0 {
			m.captureLines = n
		}
	}
}

// WithStalledFactor sets the multiple of the poll interval after which an
// unchanged working pane is re-examined.
func WithStalledFactor(n int) MonitorOption {
	return func(m *Monitor) {
		if n > 0 {
			m.stalledFactor = n
		}
	}
}

// WithMonitorClock substitutes the time source for tests.
func WithMonitorClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMonitor creates a monitor over the given pane source.
func NewMonitor(tmux Snapshotter, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		tmux:          tmux,
		interval:      DefaultPollInterval,
		captureLines:  DefaultCaptureLines,
		stalledFactor: DefaultStalledFactor,
		now:           time.Now,
		events:        make(chan Event, eventBuffer),
		records:       make(map[int]*record),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Events is the transition stream. The channel is never closed; consumers
// select against their own context.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// Watch begins monitoring a window. The first capture seeds the baseline
// state without firing a transition, so content already on screen does not
// alert. Watching an already-watched window is a no-op.
func (m *Monitor) Watch(ctx context.Context, window int) error {
	m.mu.Lock()
	_, exists := m.records[window]
	m.mu.Unlock()
	if exists {
		return nil
	}

	snapshot, err := m.tmux.CapturePane(ctx, window, m.captureLines)
	if err != nil {
		return err
	}
	rec := &record{
		state:      Classify(snapshot),
		digest:     digest(snapshot),
		lastChange: m.now(),
		snapshot:   snapshot,
	}

	m.mu.Lock()
	if _, exists := m.records[window]; !exists {
		m.records[window] = rec
	}
	m.mu.Unlock()
	slog.Info("watching pane", "window", window, "state", rec.state)
	return nil
}

// Unwatch stops monitoring a window and drops its record.
func (m *Monitor) Unwatch(window int) {
	m.mu.Lock()
	delete(m.records, window)
	m.mu.Unlock()
}

// Watched returns the currently monitored window indexes.
func (m *Monitor) Watched() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, 0, len(m.records))
	for w := range m.records {
		out = append(out, w)
	}
	return out
}

// StateOf returns the last classified state of a window, or StateUnknown
// when the window is not watched.
func (m *Monitor) StateOf(window int) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[window]
	if !ok {
		return StateUnknown
	}
	return rec.state
}

// Start launches the poll loop. It blocks until ctx is cancelled. Start may
// only be called once; later calls return immediately.
func (m *Monitor) Start(ctx context.Context) {
	started := false
	m.startOnce.Do(func() { started = true })
	if !started {
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// Poll runs one sampling pass over every watched window. Exposed for tests;
// Start calls it on each tick.
func (m *Monitor) Poll(ctx context.Context) {
	m.tick(ctx)
}

func (m *Monitor) tick(ctx context.Context) {
	m.mu.Lock()
	windows := make([]int, 0, len(m.records))
	for w := range m.records {
		windows = append(windows, w)
	}
	m.mu.Unlock()

	for _, window := range windows {
		m.poll(ctx, window)
	}
}

func (m *Monitor) poll(ctx context.Context, window int) {
	snapshot, err := m.tmux.CapturePane(ctx, window, m.captureLines)
	if err != nil {
		// The pane may be mid-respawn or the server briefly busy; the next
		// tick retries.
		slog.Debug("pane capture failed, skipping poll", "window", window, "err", err)
		return
	}

	now := m.now()
	d := digest(snapshot)
	newState := Classify(snapshot)

	m.mu.Lock()
	rec, ok := m.records[window]
	if !ok {
		m.mu.Unlock()
		return
	}
	if d == rec.digest {
		// Unchanged output. Re-examine only a working pane that has been
		// quiet long enough that an idle-return may have slipped between
		// polls.
		stalled := rec.state == StateWorking &&
			now.Sub(rec.lastChange) > time.Duration(m.stalledFactor)*m.interval
		if !stalled {
			m.mu.Unlock()
			return
		}
	}

	old := rec.state
	rec.digest = d
	rec.snapshot = snapshot
	if newState == old {
		m.mu.Unlock()
		return
	}
	rec.state = newState
	rec.lastChange = now
	m.mu.Unlock()

	m.publish(Event{
		Window: window,
		Old:    old,
		New:    newState,
		Tail:   Tail(snapshot, tailLines),
	})
}

// publish enqueues an event, dropping the oldest queued event when the
// consumer has fallen behind. The monitor never blocks on its consumer.
func (m *Monitor) publish(ev Event) {
	select {
	case m.events <- ev:
		return
	default:
	}
	select {
	case dropped := <-m.events:
		slog.Warn("pane event queue full, dropping oldest",
			"dropped_window", dropped.Window, "dropped_new", dropped.New)
	default:
	}
	select {
	case m.events <- ev:
	default:
	}
}

func digest(snapshot string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(snapshot))
	return h.Sum64()
}
