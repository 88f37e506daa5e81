package chatstore

import (
	"time"

	"github.com/dmitrymomot/marketpulse/pkg/realtime"
)

// Message types.
const (
	MessageText   = "text"
	MessageOffer  = "offer"
	MessageSystem = "system"
)

// Conversation is a buyer/seller thread about one listing.
type Conversation struct {
	ID        int64     `db:"id"`
	ListingID int64     `db:"listing_id"`
	BuyerID   int64     `db:"buyer_id"`
	SellerID  int64     `db:"seller_id"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// HasParticipant reports whether userID is the buyer or the seller.
func (c Conversation) HasParticipant(userID int64) bool {
	return userID == c.BuyerID || userID == c.SellerID
}

// Counterpart returns the other participant, zero for outsiders.
func (c Conversation) Counterpart(userID int64) int64 {
	switch userID {
	case c.BuyerID:
		return c.SellerID
	case c.SellerID:
		return c.BuyerID
	default:
		return 0
	}
}

// Message is one stored chat message with its receipt columns.
type Message struct {
	ID             int64      `db:"id"`
	ConversationID int64      `db:"conversation_id"`
	SenderID       int64      `db:"sender_id"`
	SenderUsername string     `db:"sender_username"`
	Content        string     `db:"content"`
	MessageType    string     `db:"message_type"`
	OfferAmount    *float64   `db:"offer_amount"`
	IsDelivered    bool       `db:"is_delivered"`
	DeliveredAt    *time.Time `db:"delivered_at"`
	IsRead         bool       `db:"is_read"`
	ReadAt         *time.Time `db:"read_at"`
	CreatedAt      time.Time  `db:"created_at"`
}

// Status extracts the receipt state.
func (m Message) Status() realtime.DeliveryStatus {
	return realtime.DeliveryStatus{
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		IsDelivered:    m.IsDelivered,
		IsRead:         m.IsRead,
		DeliveredAt:    m.DeliveredAt,
		ReadAt:         m.ReadAt,
	}
}

// Payload is the chat_message event body: {"message": {...}}.
func (m Message) Payload() realtime.Payload {
	return realtime.Payload{
		"message": map[string]any{
			"id":              m.ID,
			"conversation":    m.ConversationID,
			"sender":          m.SenderID,
			"sender_username": m.SenderUsername,
			"content":         m.Content,
			"message_type":    m.MessageType,
			"offer_amount":    m.OfferAmount,
			"is_delivered":    m.IsDelivered,
			"is_read":         m.IsRead,
			"created_at":      m.CreatedAt,
		},
	}
}

// merge applies a receipt update without replacing stored timestamps.
// A read message is always delivered.
func (m *Message) merge(st realtime.DeliveryStatus) {
	m.IsDelivered = m.IsDelivered || st.IsDelivered || st.IsRead
	m.IsRead = m.IsRead || st.IsRead
	if m.DeliveredAt == nil {
		m.DeliveredAt = coalesce(st.DeliveredAt, st.ReadAt)
	}
	if m.ReadAt == nil {
		m.ReadAt = st.ReadAt
	}
}

func coalesce(ts ...*time.Time) *time.Time {
	for _, t := range ts {
		if t != nil {
			return t
		}
	}
	return nil
}
