package notifications

import "errors"

var (
	ErrNotificationNotFound = errors.New("notifications: notification not found")
	ErrInvalidNotification  = errors.New("notifications: invalid notification")
	ErrStorage              = errors.New("notifications: storage failure")
)
