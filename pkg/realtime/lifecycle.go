package realtime

import "sync"

// SessionState is a connection lifecycle state.
type SessionState string

const (
	StateConnecting     SessionState = "connecting"
	StateAuthenticating SessionState = "authenticating"
	StateJoining        SessionState = "joining"
	StateActive         SessionState = "active"
	StateClosing        SessionState = "closing"
	StateClosed         SessionState = "closed"
	StateRejected       SessionState = "rejected"
)

// SessionEvent drives lifecycle transitions.
type SessionEvent string

const (
	EventOpen          SessionEvent = "open"
	EventAuthenticated SessionEvent = "authenticated"
	EventJoined        SessionEvent = "joined"
	EventReject        SessionEvent = "reject"
	EventClose         SessionEvent = "close"
	EventClosed        SessionEvent = "closed"
)

type transitionTable map[SessionState]map[SessionEvent]SessionState

func sessionTransitions() transitionTable {
	return transitionTable{
		StateConnecting: {
			EventOpen:  StateAuthenticating,
			EventClose: StateClosing,
		},
		StateAuthenticating: {
			EventAuthenticated: StateJoining,
			EventReject:        StateRejected,
			EventClose:         StateClosing,
		},
		StateJoining: {
			EventJoined: StateActive,
			EventReject: StateRejected,
			EventClose:  StateClosing,
		},
		StateActive: {
			EventClose: StateClosing,
		},
		StateClosing: {
			EventClosed: StateClosed,
		},
	}
}

// TransitionHook observes a completed transition.
type TransitionHook func(from, to SessionState, event SessionEvent)

// Lifecycle is a thread-safe state machine over the session states.
// Hooks run after the state changed, outside the lock, in registration order.
type Lifecycle struct {
	mu      sync.Mutex
	current SessionState
	table   transitionTable
	hooks   []TransitionHook
}

// NewLifecycle starts in StateConnecting.
func NewLifecycle(hooks ...TransitionHook) *Lifecycle {
	return &Lifecycle{
		current: StateConnecting,
		table:   sessionTransitions(),
		hooks:   hooks,
	}
}

// Current returns the state the machine is in.
func (l *Lifecycle) Current() SessionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Is reports whether the lifecycle is in state s.
func (l *Lifecycle) Is(s SessionState) bool {
	return l.Current() == s
}

// CanFire reports whether event is valid in the current state.
func (l *Lifecycle) CanFire(event SessionEvent) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.table[l.current][event]
	return ok
}

// Fire applies event and returns the new state.
func (l *Lifecycle) Fire(event SessionEvent) (SessionState, error) {
	l.mu.Lock()
	from := l.current
	to, ok := l.table[from][event]
	if !ok {
		l.mu.Unlock()
		return from, &NoTransitionError{State: from, Event: event}
	}
	l.current = to
	hooks := l.hooks
	l.mu.Unlock()

	for _, h := range hooks {
		h(from, to, event)
	}
	return to, nil
}

// Terminal reports whether no further transition is possible.
func (s SessionState) Terminal() bool {
	return s == StateClosed || s == StateRejected
}
