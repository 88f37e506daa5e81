package realtime

import "context"

// Fanout is the surface other parts of the system call after a successful
// write: Publish feeds the stream transport, Broadcast the socket transport.
type Fanout struct {
	registry *Registry
	bus      Broadcaster
}

// NewFanout wires a registry and a bus. Nil arguments get fresh instances.
func NewFanout(registry *Registry, bus Broadcaster) *Fanout {
	if registry == nil {
		registry = NewRegistry()
	}
	if bus == nil {
		bus = NewBus()
	}
	return &Fanout{registry: registry, bus: bus}
}

// Publish queues an event in the user's mailbox. It reports false when the
// user has no open stream.
func (f *Fanout) Publish(userID int64, kind string, payload Payload) bool {
	return f.registry.Publish(userID, kind, payload)
}

// Broadcast sends an event to every member of a group and returns the number
// of connections that accepted it.
func (f *Fanout) Broadcast(ctx context.Context, groupID, kind string, payload Payload) int {
	return f.bus.Send(ctx, groupID, NewEnvelope(kind, payload))
}

// Registry and Bus expose the two delivery paths the fanout writes to.
func (f *Fanout) Registry() *Registry { return f.registry }
func (f *Fanout) Bus() Broadcaster    { return f.bus }
