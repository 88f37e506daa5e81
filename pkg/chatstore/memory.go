package chatstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/dmitrymomot/marketpulse/pkg/realtime"
)

// Memory is an in-process store for development and tests. It satisfies
// realtime.ConversationStore, realtime.DeliveryStore and
// notifications.PreferenceChecker.
type Memory struct {
	mu            sync.RWMutex
	users         map[int64]string
	conversations map[int64]Conversation
	messages      map[int64]*Message
	inApp         map[int64]bool
	nextConv      int64
	nextMsg       int64
	now           func() time.Time
}

// MemoryOption configures Memory.
type MemoryOption func(*Memory)

func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory returns an empty store. Seed it with AddUser and CreateConversation.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		users:         make(map[int64]string),
		conversations: make(map[int64]Conversation),
		messages:      make(map[int64]*Message),
		inApp:         make(map[int64]bool),
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddUser registers a username shown as sender_username.
func (m *Memory) AddUser(id int64, username string) {
	m.mu.Lock()
	m.users[id] = username
	m.mu.Unlock()
}

// SetInAppNotifications stores a user's in-app notification preference.
func (m *Memory) SetInAppNotifications(userID int64, enabled bool) {
	m.mu.Lock()
	m.inApp[userID] = enabled
	m.mu.Unlock()
}

// CreateConversation opens an active conversation between buyer and seller.
func (m *Memory) CreateConversation(listingID, buyerID, sellerID int64) (Conversation, error) {
	if buyerID <= 0 || sellerID <= 0 || buyerID == sellerID {
		return Conversation{}, fmt.Errorf("%w: buyer and seller must be distinct users", ErrInvalidConversation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextConv++
	now := m.now()
	c := Conversation{
		ID:        m.nextConv,
		ListingID: listingID,
		BuyerID:   buyerID,
		SellerID:  sellerID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.conversations[c.ID] = c
	return c, nil
}

// CloseConversation deactivates a conversation; new messages are refused.
func (m *Memory) CloseConversation(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	c.IsActive = false
	m.conversations[id] = c
	return nil
}

func (m *Memory) IsParticipant(_ context.Context, userID, conversationID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[conversationID]
	if !ok {
		return false, ErrConversationNotFound
	}
	return c.HasParticipant(userID), nil
}

func (m *Memory) PersistMessage(_ context.Context, msg realtime.NewMessage) (realtime.Payload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[msg.ConversationID]
	switch {
	case !ok:
		return nil, ErrConversationNotFound
	case !c.HasParticipant(msg.SenderID):
		return nil, ErrNotParticipant
	case !c.IsActive:
		return nil, ErrConversationClosed
	}

	m.nextMsg++
	stored := &Message{
		ID:             m.nextMsg,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		SenderUsername: m.users[msg.SenderID],
		Content:        msg.Content,
		MessageType:    lo.CoalesceOrEmpty(msg.Type, MessageText),
		OfferAmount:    msg.OfferAmount,
		CreatedAt:      m.now(),
	}
	m.messages[stored.ID] = stored
	c.UpdatedAt = stored.CreatedAt
	m.conversations[c.ID] = c
	return stored.Payload(), nil
}

func (m *Memory) Counterpart(_ context.Context, conversationID, userID int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[conversationID]
	if !ok {
		return 0, ErrConversationNotFound
	}
	other := c.Counterpart(userID)
	if other == 0 {
		return 0, ErrNotParticipant
	}
	return other, nil
}

func (m *Memory) MessageStatus(_ context.Context, messageID int64) (realtime.DeliveryStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[messageID]
	if !ok {
		return realtime.DeliveryStatus{}, ErrMessageNotFound
	}
	return msg.Status(), nil
}

func (m *Memory) UnreadMessages(_ context.Context, conversationID, readerID int64) ([]realtime.DeliveryStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := lo.Filter(lo.Values(m.messages), func(msg *Message, _ int) bool {
		return msg.ConversationID == conversationID && msg.SenderID != readerID && !msg.IsRead
	})
	slices.SortFunc(msgs, func(a, b *Message) int { return cmp.Compare(a.ID, b.ID) })
	return lo.Map(msgs, func(msg *Message, _ int) realtime.DeliveryStatus { return msg.Status() }), nil
}

// SaveStatuses merges receipts. Stored timestamps are never replaced.
func (m *Memory) SaveStatuses(_ context.Context, statuses ...realtime.DeliveryStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range statuses {
		if _, ok := m.messages[st.MessageID]; !ok {
			return ErrMessageNotFound
		}
	}
	for _, st := range statuses {
		m.messages[st.MessageID].merge(st)
	}
	return nil
}

// Messages returns the conversation history oldest first.
func (m *Memory) Messages(_ context.Context, conversationID int64) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.conversations[conversationID]; !ok {
		return nil, ErrConversationNotFound
	}
	msgs := lo.FilterMap(lo.Values(m.messages), func(msg *Message, _ int) (Message, bool) {
		return *msg, msg.ConversationID == conversationID
	})
	slices.SortFunc(msgs, func(a, b Message) int { return cmp.Compare(a.ID, b.ID) })
	return msgs, nil
}

// InAppEnabled defaults to true for users without a stored preference.
func (m *Memory) InAppEnabled(_ context.Context, userID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	enabled, ok := m.inApp[userID]
	return !ok || enabled, nil
}
