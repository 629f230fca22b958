package session

import (
	"sync"

	"github.com/blakbro2k/YipeeWebServer-sub000/internal/engine"
)

type historyEntry struct {
	tick  uint64
	state engine.State
}

// History is a tick-ordered, size-bounded map of board snapshots. Keys only
// ever increase, so the oldest entry is always at the front.
type History struct {
	mu      sync.RWMutex
	limit   int
	entries []historyEntry
}

func NewHistory(limit int) *History {
	if limit < 1 {
		limit = 1
	}
	return &History{limit: limit, entries: make([]historyEntry, 0, limit+1)}
}

// Put stores state at tick and evicts the smallest ticks while the bound is
// exceeded. A tick older than the newest stored one is rejected; the same
// tick replaces the stored snapshot.
func (h *History) Put(tick uint64, state engine.State) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.entries); n > 0 {
		last := h.entries[n-1].tick
		if tick < last {
			return false
		}
		if tick == last {
			h.entries[n-1].state = state
			return true
		}
	}

	h.entries = append(h.entries, historyEntry{tick: tick, state: state})
	for len(h.entries) > h.limit {
		copy(h.entries, h.entries[1:])
		h.entries = h.entries[:len(h.entries)-1]
	}
	return true
}

func (h *History) At(tick uint64) (engine.State, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, e := range h.entries {
		if e.tick == tick {
			return e.state, true
		}
	}
	return engine.State{}, false
}

func (h *History) Latest() (uint64, engine.State, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.entries) == 0 {
		return 0, engine.State{}, false
	}
	e := h.entries[len(h.entries)-1]
	return e.tick, e.state, true
}

func (h *History) Ticks() []uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ticks := make([]uint64, len(h.entries))
	for i, e := range h.entries {
		ticks[i] = e.tick
	}
	return ticks
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = h.entries[:0]
}
