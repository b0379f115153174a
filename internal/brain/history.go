package brain

import (
	"sync"
	"time"
)

// Turn is one user/assistant exchange.
type Turn struct {
	User      string
	Assistant string
	At        time.Time
}

// History is a bounded ring of recent turns. Safe for concurrent use.
type History struct {
	mu    sync.Mutex
	turns []Turn
	size  int
}

// NewHistory creates a ring keeping the last size turns.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{size: size}
}

// Record appends a turn, evicting the oldest beyond the ring size.
func (h *History) Record(user, assistant string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, Turn{User: user, Assistant: assistant, At: time.Now().UTC()})
	if len(h.turns) > h.size {
		h.turns = h.turns[len(h.turns)-h.size:]
	}
}

// Turns returns a copy of the recorded turns, oldest first.
func (h *History) Turns() []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Clear drops all turns. The orchestrator calls this when a conversation
// ends so the next one starts fresh.
func (h *History) Clear() {
	h.mu.Lock()
	h.turns = nil
	h.mu.Unlock()
}
