package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/dmitrymomot/marketpulse/pkg/logger"
)

// Handle is a live connection that can receive envelopes.
// Deliver must not block; a returned error evicts the handle from the group.
type Handle interface {
	ID() string
	Deliver(env Envelope) error
}

// Broadcaster fans envelopes out to named groups of handles.
type Broadcaster interface {
	Join(groupID string, h Handle) error
	Leave(groupID string, h Handle) bool
	Send(ctx context.Context, groupID string, env Envelope) int
}

// Bus is the in-process Broadcaster. Groups are created on first join and
// removed when their last member leaves.
type Bus struct {
	mu     sync.RWMutex
	groups map[string]*group
	closed bool
	log    *slog.Logger
}

type group struct {
	// sendMu serializes sends so every member sees issue order.
	sendMu  sync.Mutex
	mu      sync.RWMutex
	members map[string]Handle
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithBusLogger sets the logger used to report evicted members.
func WithBusLogger(l *slog.Logger) BusOption {
	return func(b *Bus) {
		if l != nil {
			b.log = l
		}
	}
}

// NewBus returns an empty bus ready for Join.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		groups: make(map[string]*group),
		log:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Join adds h to the group, creating the group when needed.
// Joining twice with the same handle id is a no-op.
func (b *Bus) Join(groupID string, h Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	g, ok := b.groups[groupID]
	if !ok {
		g = &group{members: make(map[string]Handle)}
		b.groups[groupID] = g
	}
	g.mu.Lock()
	g.members[h.ID()] = h
	g.mu.Unlock()
	return nil
}

// Leave removes h from the group and reports whether it was a member.
// Leaving a group one is not in is not an error.
func (b *Bus) Leave(groupID string, h Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.groups[groupID]
	if !ok {
		return false
	}
	g.mu.Lock()
	_, member := g.members[h.ID()]
	delete(g.members, h.ID())
	empty := len(g.members) == 0
	g.mu.Unlock()
	if empty {
		delete(b.groups, groupID)
	}
	return member
}

// Send delivers env to every current member and returns how many accepted it.
// A member that fails is removed without affecting the others. Sending to an
// unknown or empty group does nothing.
func (b *Bus) Send(ctx context.Context, groupID string, env Envelope) int {
	b.mu.RLock()
	g, ok := b.groups[groupID]
	b.mu.RUnlock()
	if !ok {
		return 0
	}

	g.sendMu.Lock()
	defer g.sendMu.Unlock()

	g.mu.RLock()
	members := lo.Values(g.members)
	g.mu.RUnlock()

	delivered := 0
	for _, h := range members {
		if err := deliver(h, env); err != nil {
			b.log.LogAttrs(ctx, slog.LevelWarn, "dropping unreachable group member",
				logger.BroadcastGroup(groupID),
				logger.SessionID(h.ID()),
				logger.Kind(env.Kind()),
				logger.Error(err),
			)
			b.Leave(groupID, h)
			continue
		}
		delivered++
	}
	return delivered
}

func deliver(h Handle, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: deliver panicked: %v", ErrTransport, r)
		}
	}()
	return h.Deliver(env)
}

// Members returns the sorted handle ids of a group.
func (b *Bus) Members(groupID string) []string {
	b.mu.RLock()
	g, ok := b.groups[groupID]
	b.mu.RUnlock()
	if !ok {
		return nil
	}
	g.mu.RLock()
	ids := lo.Keys(g.members)
	g.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// GroupCount reports how many non-empty groups exist.
func (b *Bus) GroupCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.groups)
}

// Close drops every group. Later joins fail with ErrBusClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.groups = make(map[string]*group)
}
