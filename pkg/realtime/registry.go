package realtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dmitrymomot/marketpulse/pkg/logger"
)

// Registry maps user ids to their mailboxes. One mutex covers the map and the
// check-evict-append step of every publish.
type Registry struct {
	mu        sync.Mutex
	mailboxes map[int64]*Mailbox
	closed    bool
	capacity  int
	log       *slog.Logger

	published   atomic.Uint64
	overflowed  atomic.Uint64
	undelivered atomic.Uint64
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithMailboxCapacity overrides DefaultMailboxCapacity.
func WithMailboxCapacity(n int) RegistryOption {
	if n <= 0 {
		panic("WithMailboxCapacity: capacity must be > 0")
	}
	return func(r *Registry) { r.capacity = n }
}

// WithRegistryLogger sets the logger that reports mailbox overflow.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		mailboxes: make(map[int64]*Mailbox),
		capacity:  DefaultMailboxCapacity,
		log:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe returns the user's mailbox, creating it when absent. Every call
// takes one reference that Release gives back; concurrent readers of the same
// user share the mailbox. After Close it returns a mailbox that is already closed.
func (r *Registry) Subscribe(userID int64) *Mailbox {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		mb := newMailbox(userID, r.capacity)
		mb.close()
		return mb
	}
	mb, ok := r.mailboxes[userID]
	if !ok {
		mb = newMailbox(userID, r.capacity)
		r.mailboxes[userID] = mb
	}
	mb.refs++
	return mb
}

// Release gives back a reference taken by Subscribe. The mailbox is removed
// once its last reader is gone. A mailbox that was already replaced or
// unsubscribed is left alone, so a reader reconnecting before the old one
// finished keeps its new mailbox.
func (r *Registry) Release(mb *Mailbox) {
	if mb == nil {
		return
	}
	r.mu.Lock()
	if r.mailboxes[mb.owner] != mb {
		r.mu.Unlock()
		return
	}
	mb.refs--
	last := mb.refs <= 0
	if last {
		delete(r.mailboxes, mb.owner)
	}
	r.mu.Unlock()
	if last {
		mb.close()
	}
}

// Unsubscribe removes the user's mailbox regardless of open readers and
// discards anything still buffered.
func (r *Registry) Unsubscribe(userID int64) {
	r.mu.Lock()
	mb, ok := r.mailboxes[userID]
	delete(r.mailboxes, userID)
	r.mu.Unlock()
	if ok {
		mb.close()
	}
}

// Subscribed reports whether the user currently owns a mailbox.
func (r *Registry) Subscribed(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.mailboxes[userID]
	return ok
}

// Publish appends an envelope to the user's mailbox. Without a mailbox the
// event is dropped and false is returned; no mailbox is created.
func (r *Registry) Publish(userID int64, kind string, payload Payload) bool {
	env := NewEnvelope(kind, payload)

	r.mu.Lock()
	mb, ok := r.mailboxes[userID]
	if !ok {
		r.mu.Unlock()
		r.undelivered.Add(1)
		return false
	}
	evicted, ok := mb.push(env)
	r.mu.Unlock()

	if !ok {
		r.undelivered.Add(1)
		return false
	}
	r.published.Add(1)
	if evicted {
		r.overflowed.Add(1)
		r.log.LogAttrs(context.Background(), slog.LevelWarn, "mailbox full, dropped oldest event",
			logger.UserID(userID),
			logger.Kind(kind),
			logger.Error(ErrOverflow),
		)
	}
	return true
}

// RegistryStats is a point-in-time snapshot of registry counters.
type RegistryStats struct {
	Mailboxes   int
	Published   uint64
	Overflowed  uint64
	Undelivered uint64
}

// Stats snapshots the mailbox count and delivery counters.
func (r *Registry) Stats() RegistryStats {
	r.mu.Lock()
	n := len(r.mailboxes)
	r.mu.Unlock()
	return RegistryStats{
		Mailboxes:   n,
		Published:   r.published.Load(),
		Overflowed:  r.overflowed.Load(),
		Undelivered: r.undelivered.Load(),
	}
}

// Close unsubscribes every user and refuses new subscriptions. Waiting
// readers wake with ErrMailboxClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	boxes := r.mailboxes
	r.mailboxes = make(map[int64]*Mailbox)
	r.closed = true
	r.mu.Unlock()
	for _, mb := range boxes {
		mb.close()
	}
}
