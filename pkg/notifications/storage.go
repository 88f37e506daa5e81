package notifications

import (
	"context"
	"time"
)

// Storage handles notification persistence and retrieval.
type Storage interface {
	// Create stores a new notification and assigns its ID.
	Create(ctx context.Context, notif *Notification) error

	// Get retrieves a single notification of the user.
	Get(ctx context.Context, userID, notifID int64) (Notification, error)

	// List returns notifications for a user, newest first.
	List(ctx context.Context, userID int64, opts ListOptions) ([]Notification, error)

	// MarkRead marks notification(s) as read and returns how many changed.
	// Ids of other users are ignored.
	MarkRead(ctx context.Context, userID int64, at time.Time, notifIDs ...int64) (int, error)

	// CountUnread returns unread count for user.
	CountUnread(ctx context.Context, userID int64) (int, error)
}

// ListOptions provides filtering and pagination options for listing notifications.
type ListOptions struct {
	Limit      int        // Maximum number of notifications to return (0 = no limit)
	Offset     int        // Number of notifications to skip for pagination
	OnlyUnread bool       // When true, only return unread notifications
	Types      []Type     // If specified, only return notifications of these types
	Since      *time.Time // If specified, only return notifications created after this time
}
