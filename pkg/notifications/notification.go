package notifications

import (
	"time"

	"github.com/dmitrymomot/marketpulse/pkg/realtime"
)

// Type is the notification category.
type Type string

const (
	TypeMessage        Type = "message"
	TypeListingSold    Type = "listing_sold"
	TypeListingExpired Type = "listing_expired"
	TypeSystem         Type = "system"
)

// Valid reports whether t is a known category.
func (t Type) Valid() bool {
	switch t {
	case TypeMessage, TypeListingSold, TypeListingExpired, TypeSystem:
		return true
	}
	return false
}

// Notification is an in-app notification of one recipient.
type Notification struct {
	ID          int64          `json:"id"`
	RecipientID int64          `json:"recipient_id"`
	Type        Type           `json:"notification_type"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	LinkURL     string         `json:"link_url"`
	Metadata    map[string]any `json:"metadata"`
	IsRead      bool           `json:"is_read"`
	ReadAt      *time.Time     `json:"read_at"`
	CreatedAt   time.Time      `json:"created_at"`
}

// MarkAsRead sets the read flag. An already read notification keeps its
// original read time.
func (n *Notification) MarkAsRead(at time.Time) bool {
	if n.IsRead {
		return false
	}
	n.IsRead = true
	n.ReadAt = &at
	return true
}

// Payload renders the notification the way clients receive it.
func (n Notification) Payload() realtime.Payload {
	metadata := n.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return realtime.Payload{
		"id":                n.ID,
		"notification_type": string(n.Type),
		"title":             n.Title,
		"message":           n.Message,
		"link_url":          n.LinkURL,
		"metadata":          metadata,
		"is_read":           n.IsRead,
		"read_at":           n.ReadAt,
		"created_at":        n.CreatedAt,
	}
}
