package report

import (
	"context"
	"sync"
)

const DefaultMemoryCapacity = 100

// MemorySink keeps the most recent reports in a bounded ring.
type MemorySink struct {
	mu    sync.RWMutex
	items []Report
	next  int
	full  bool
}

func NewMemorySink(capacity int) *MemorySink {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemorySink{items: make([]Report, capacity)}
}

func (m *MemorySink) Publish(_ context.Context, r Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[m.next] = r
	m.next = (m.next + 1) % len(m.items)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

// Recent returns up to limit reports, newest first. limit <= 0 returns all.
func (m *MemorySink) Recent(limit int) []Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := m.next
	if m.full {
		n = len(m.items)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Report, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (m.next - 1 - i + len(m.items)) % len(m.items)
		out = append(out, m.items[idx])
	}
	return out
}

// Latest returns the newest report, if any.
func (m *MemorySink) Latest() (Report, bool) {
	recent := m.Recent(1)
	if len(recent) == 0 {
		return Report{}, false
	}
	return recent[0], true
}
