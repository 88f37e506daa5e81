package realtime

import (
	"maps"
	"strconv"
	"time"
)

// Event kinds moved through the bus and the mailboxes.
const (
	KindConnected           = "connected"
	KindHeartbeat           = "heartbeat"
	KindPing                = "ping"
	KindPong                = "pong"
	KindError               = "error"
	KindChatMessage         = "chat_message"
	KindTyping              = "typing"
	KindMarkRead            = "mark_read"
	KindMarkDelivered       = "mark_delivered"
	KindMessagesRead        = "messages_read"
	KindMessageStatusUpdate = "message_status_update"
	KindNotificationCreated = "notification_created"
	KindNotificationRead    = "notification_read"
	KindUnreadCountUpdated  = "unread_count_updated"
)

// Payload is the JSON object carried by an envelope.
type Payload map[string]any

// Envelope is the immutable unit of delivery.
type Envelope struct {
	kind      string
	payload   Payload
	createdAt time.Time
}

// NewEnvelope copies payload so later changes by the caller are not observed.
func NewEnvelope(kind string, payload Payload) Envelope {
	return Envelope{
		kind:      kind,
		payload:   maps.Clone(payload),
		createdAt: time.Now().UTC(),
	}
}

// Kind is the event type sent to clients as "type" or the SSE event name.
func (e Envelope) Kind() string { return e.kind }

// Payload returns a copy of the envelope payload. It is never nil.
func (e Envelope) Payload() Payload {
	if e.payload == nil {
		return Payload{}
	}
	return maps.Clone(e.payload)
}

// CreatedAt is when the envelope was built, in UTC.
func (e Envelope) CreatedAt() time.Time { return e.createdAt }

// ChatGroup names the broadcast group of a conversation.
func ChatGroup(conversationID int64) string {
	return "chat_" + strconv.FormatInt(conversationID, 10)
}

// NotificationsGroup names the per-user notification group.
func NotificationsGroup(userID int64) string {
	return "notifications_" + strconv.FormatInt(userID, 10)
}
