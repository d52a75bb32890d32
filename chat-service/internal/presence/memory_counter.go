package presence

import (
	"context"
	"sync"
)

// MemoryCounter counts connections in process. It is exact for a single
// instance deployment.
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]int64)}
}

func (m *MemoryCounter) Incr(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[userID]++
	return m.counts[userID], nil
}

// Decr never goes below zero.
func (m *MemoryCounter) Decr(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.counts[userID] - 1
	if n <= 0 {
		delete(m.counts, userID)
		return 0, nil
	}
	m.counts[userID] = n
	return n, nil
}

func (m *MemoryCounter) Get(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[userID], nil
}
