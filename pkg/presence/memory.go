package presence

import (
	"context"
	"sync"
	"time"
)

// Memory keeps presence in process memory. It is lost on restart.
type Memory struct {
	mu       sync.Mutex
	conns    map[int64]int
	lastSeen map[int64]time.Time
	now      func() time.Time
}

// MemoryOption configures Memory.
type MemoryOption func(*Memory)

// WithMemoryClock sets the clock used for last seen times.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory returns an empty in-process tracker.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		conns:    make(map[int64]int),
		lastSeen: make(map[int64]time.Time),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect counts one more open connection for the user.
func (m *Memory) Connect(_ context.Context, userID int64) error {
	m.mu.Lock()
	m.conns[userID]++
	m.mu.Unlock()
	return nil
}

// Refresh is a no-op: memory counters never expire.
func (m *Memory) Refresh(context.Context, int64) error { return nil }

// Disconnect releases one connection. Releasing more than were taken is a no-op.
func (m *Memory) Disconnect(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.conns[userID]
	if !ok {
		return nil
	}
	if n <= 1 {
		delete(m.conns, userID)
		m.lastSeen[userID] = m.now()
		return nil
	}
	m.conns[userID] = n - 1
	return nil
}

// Status reports the user's live connection count and last seen time.
func (m *Memory) Status(_ context.Context, userID int64) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{Connections: m.conns[userID]}
	st.Online = st.Connections > 0
	if t, ok := m.lastSeen[userID]; ok {
		st.LastSeen = &t
	}
	return st, nil
}
