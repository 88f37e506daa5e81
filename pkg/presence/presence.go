package presence

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps failures of the backing store.
var ErrUnavailable = errors.New("presence: store unavailable")

// Status is the online state of one user.
type Status struct {
	Online      bool
	Connections int
	LastSeen    *time.Time
}

// Tracker counts live connections per user. A user stays online while at
// least one connection is open; callers Refresh open connections to keep
// expiring stores from dropping them. Both implementations satisfy
// realtime.Presence.
type Tracker interface {
	Connect(ctx context.Context, userID int64) error
	Refresh(ctx context.Context, userID int64) error
	Disconnect(ctx context.Context, userID int64) error
	Status(ctx context.Context, userID int64) (Status, error)
}
