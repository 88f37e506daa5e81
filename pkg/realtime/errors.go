package realtime

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication means the credential was missing, malformed or expired.
	ErrAuthentication = errors.New("realtime: authentication failed")
	// ErrAuthorization means the caller is authenticated but may not join the target.
	ErrAuthorization = errors.New("realtime: not authorized")
	// ErrMalformedInput marks an inbound frame that could not be decoded or validated.
	ErrMalformedInput = errors.New("realtime: malformed input")
	// ErrNotFound marks a referenced conversation or message that does not exist.
	ErrNotFound = errors.New("realtime: not found")
	// ErrOverflow is logged when a mailbox evicts its oldest entry. It is never
	// returned to publishers.
	ErrOverflow = errors.New("realtime: mailbox overflow")
	// ErrTransport marks a write to a dead or saturated connection.
	ErrTransport = errors.New("realtime: transport failure")

	ErrBusClosed     = errors.New("realtime: broadcast bus closed")
	ErrMailboxClosed = errors.New("realtime: mailbox closed")
	ErrWaitTimeout   = errors.New("realtime: wait timed out")
	ErrServiceClosed = errors.New("realtime: service closed")
)

// Close codes sent after the socket was accepted.
const (
	CloseAuthenticationFailed = 4001
	CloseAuthorizationFailed  = 4003
	CloseServiceRestart       = 1012
)

// NoTransitionError is returned when a session event is not valid in the current state.
type NoTransitionError struct {
	State SessionState
	Event SessionEvent
}

// Error names the state and the event that has no transition.
func (e *NoTransitionError) Error() string {
	return fmt.Sprintf("realtime: no transition from %q on %q", e.State, e.Event)
}

// closeCodeFor maps a join failure to the close code the client sees.
func closeCodeFor(err error) int {
	switch {
	case errors.Is(err, ErrAuthentication):
		return CloseAuthenticationFailed
	case errors.Is(err, ErrServiceClosed), errors.Is(err, ErrBusClosed):
		return CloseServiceRestart
	default:
		return CloseAuthorizationFailed
	}
}
