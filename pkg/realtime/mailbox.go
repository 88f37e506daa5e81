package realtime

import (
	"context"
	"sync"
	"time"
)

// DefaultMailboxCapacity bounds every per-user mailbox.
const DefaultMailboxCapacity = 100

// Mailbox is a bounded FIFO of envelopes owned by one user. On overflow the
// oldest entry is evicted; publishers never block.
type Mailbox struct {
	owner    int64
	capacity int
	refs     int // guarded by the owning Registry

	mu     sync.Mutex
	items  []Envelope
	closed bool

	ready chan struct{}
	done  chan struct{}
}

func newMailbox(owner int64, capacity int) *Mailbox {
	return &Mailbox{
		owner:    owner,
		capacity: capacity,
		items:    make([]Envelope, 0, capacity),
		ready:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Owner is the user the mailbox belongs to.
func (m *Mailbox) Owner() int64  { return m.owner }
func (m *Mailbox) Capacity() int { return m.capacity }

// Len reports the number of buffered envelopes.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// push appends env and reports whether the oldest entry had to be evicted.
// ok is false when the mailbox is already closed.
func (m *Mailbox) push(env Envelope) (evicted, ok bool) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false, false
	}
	if len(m.items) >= m.capacity {
		m.items[0] = Envelope{}
		m.items = m.items[1:]
		evicted = true
	}
	m.items = append(m.items, env)
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
	return evicted, true
}

func (m *Mailbox) pop() (Envelope, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		return Envelope{}, false
	}
	env := m.items[0]
	m.items[0] = Envelope{}
	m.items = m.items[1:]
	return env, true
}

// Next returns the oldest buffered envelope, waiting up to wait for one to
// arrive. It returns ErrWaitTimeout when nothing arrived in time,
// ErrMailboxClosed after the owner was unsubscribed and ctx.Err() on
// cancellation.
func (m *Mailbox) Next(ctx context.Context, wait time.Duration) (Envelope, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		if env, ok := m.pop(); ok {
			return env, nil
		}
		select {
		case <-m.ready:
		case <-m.done:
			return Envelope{}, ErrMailboxClosed
		case <-timer.C:
			return Envelope{}, ErrWaitTimeout
		case <-ctx.Done():
			return Envelope{}, ctx.Err()
		}
	}
}

// Drain removes and returns every buffered envelope without waiting.
func (m *Mailbox) Drain() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Envelope, len(m.items))
	copy(out, m.items)
	m.items = m.items[:0:0]
	return out
}

// Done is closed once the mailbox has been unsubscribed.
func (m *Mailbox) Done() <-chan struct{} { return m.done }

func (m *Mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.items = nil
	close(m.done)
}
