package realtime

import (
	"context"
	"time"
)

// IdentityResolver turns a bearer credential into a user id.
// Failures must wrap or equal ErrAuthentication.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (int64, error)
}

// ParticipantChecker answers whether a user takes part in a conversation.
// A missing conversation is reported as ErrNotFound.
type ParticipantChecker interface {
	IsParticipant(ctx context.Context, userID, conversationID int64) (bool, error)
}

// NewMessage is an inbound chat message ready to be persisted.
type NewMessage struct {
	ConversationID int64
	SenderID       int64
	Content        string
	Type           string
	OfferAmount    *float64
}

// ConversationStore is the message store the chat channel writes through.
type ConversationStore interface {
	ParticipantChecker
	// PersistMessage stores msg and returns the payload broadcast as chat_message,
	// conventionally {"message": {...}} with "id" and "sender_username" inside.
	PersistMessage(ctx context.Context, msg NewMessage) (Payload, error)
	// Counterpart returns the other participant of a two-party conversation.
	Counterpart(ctx context.Context, conversationID, userID int64) (int64, error)
}

// DeliveryStatus is the persisted receipt state of one message.
type DeliveryStatus struct {
	MessageID      int64
	ConversationID int64
	SenderID       int64
	IsDelivered    bool
	IsRead         bool
	DeliveredAt    *time.Time
	ReadAt         *time.Time
}

// DeliveryStore persists receipt state. SaveStatuses must never replace a
// non-null timestamp already stored.
type DeliveryStore interface {
	MessageStatus(ctx context.Context, messageID int64) (DeliveryStatus, error)
	UnreadMessages(ctx context.Context, conversationID, readerID int64) ([]DeliveryStatus, error)
	SaveStatuses(ctx context.Context, statuses ...DeliveryStatus) error
}

// MessageNotice describes a chat message that should raise a notification.
type MessageNotice struct {
	RecipientID    int64
	SenderID       int64
	SenderName     string
	ConversationID int64
	MessageID      int64
	Content        string
}

// Notifier creates and updates user notifications.
type Notifier interface {
	NewMessage(ctx context.Context, notice MessageNotice) error
	MarkRead(ctx context.Context, userID, notificationID int64) error
}

// Presence holds the online flag of connected users. Refresh is called on
// every heartbeat of an open session so stores with expiring keys keep the
// user online.
type Presence interface {
	Connect(ctx context.Context, userID int64) error
	Refresh(ctx context.Context, userID int64) error
	Disconnect(ctx context.Context, userID int64) error
}

type noopPresence struct{}

func (noopPresence) Connect(context.Context, int64) error    { return nil }
func (noopPresence) Refresh(context.Context, int64) error    { return nil }
func (noopPresence) Disconnect(context.Context, int64) error { return nil }
