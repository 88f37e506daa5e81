package chatstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/marketpulse/pkg/chatstore"
	"github.com/dmitrymomot/marketpulse/pkg/notifications"
	"github.com/dmitrymomot/marketpulse/pkg/realtime"
)

var (
	_ realtime.ConversationStore      = (*chatstore.Memory)(nil)
	_ realtime.DeliveryStore          = (*chatstore.Memory)(nil)
	_ notifications.PreferenceChecker = (*chatstore.Memory)(nil)
	_ realtime.ConversationStore      = (*chatstore.Postgres)(nil)
	_ realtime.DeliveryStore          = (*chatstore.Postgres)(nil)
	_ notifications.PreferenceChecker = (*chatstore.Postgres)(nil)
	_ notifications.Storage           = (*chatstore.NotificationStore)(nil)
)

func newStore(t *testing.T) (*chatstore.Memory, chatstore.Conversation) {
	t.Helper()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := chatstore.NewMemory(chatstore.WithMemoryClock(func() time.Time { return now }))
	store.AddUser(1, "alice")
	store.AddUser(2, "bob")
	conv, err := store.CreateConversation(10, 1, 2)
	require.NoError(t, err)
	return store, conv
}

func TestMemory_CreateConversation(t *testing.T) {
	t.Parallel()

	store := chatstore.NewMemory()

	_, err := store.CreateConversation(1, 5, 5)
	assert.ErrorIs(t, err, chatstore.ErrInvalidConversation)

	_, err = store.CreateConversation(1, 0, 5)
	assert.ErrorIs(t, err, chatstore.ErrInvalidConversation)

	first, err := store.CreateConversation(1, 5, 6)
	require.NoError(t, err)
	second, err := store.CreateConversation(2, 5, 6)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, first.IsActive)
}

func TestMemory_IsParticipant(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, conv := newStore(t)

	ok, err := store.IsParticipant(ctx, 1, conv.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.IsParticipant(ctx, 2, conv.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.IsParticipant(ctx, 3, conv.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.IsParticipant(ctx, 1, 999)
	assert.ErrorIs(t, err, chatstore.ErrConversationNotFound)
	assert.ErrorIs(t, err, realtime.ErrNotFound)
}

func TestMemory_PersistMessage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("stores and returns payload", func(t *testing.T) {
		t.Parallel()
		store, conv := newStore(t)

		payload, err := store.PersistMessage(ctx, realtime.NewMessage{
			ConversationID: conv.ID,
			SenderID:       1,
			Content:        "hi",
		})
		require.NoError(t, err)

		msg, ok := payload["message"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, int64(1), msg["id"])
		assert.Equal(t, conv.ID, msg["conversation"])
		assert.Equal(t, "alice", msg["sender_username"])
		assert.Equal(t, "hi", msg["content"])
		assert.Equal(t, chatstore.MessageText, msg["message_type"])
		assert.Equal(t, false, msg["is_delivered"])

		history, err := store.Messages(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, "hi", history[0].Content)
	})

	t.Run("offer keeps amount", func(t *testing.T) {
		t.Parallel()
		store, conv := newStore(t)
		amount := 125.5

		payload, err := store.PersistMessage(ctx, realtime.NewMessage{
			ConversationID: conv.ID,
			SenderID:       2,
			Content:        "how about this",
			Type:           chatstore.MessageOffer,
			OfferAmount:    &amount,
		})
		require.NoError(t, err)
		msg := payload["message"].(map[string]any)
		assert.Equal(t, chatstore.MessageOffer, msg["message_type"])
		assert.Equal(t, &amount, msg["offer_amount"])
	})

	t.Run("rejects outsiders", func(t *testing.T) {
		t.Parallel()
		store, conv := newStore(t)

		_, err := store.PersistMessage(ctx, realtime.NewMessage{ConversationID: conv.ID, SenderID: 3, Content: "x"})
		assert.ErrorIs(t, err, chatstore.ErrNotParticipant)
		assert.ErrorIs(t, err, realtime.ErrAuthorization)
	})

	t.Run("rejects unknown conversation", func(t *testing.T) {
		t.Parallel()
		store, _ := newStore(t)

		_, err := store.PersistMessage(ctx, realtime.NewMessage{ConversationID: 42, SenderID: 1, Content: "x"})
		assert.ErrorIs(t, err, chatstore.ErrConversationNotFound)
	})

	t.Run("rejects closed conversation", func(t *testing.T) {
		t.Parallel()
		store, conv := newStore(t)
		require.NoError(t, store.CloseConversation(conv.ID))

		_, err := store.PersistMessage(ctx, realtime.NewMessage{ConversationID: conv.ID, SenderID: 1, Content: "x"})
		assert.ErrorIs(t, err, chatstore.ErrConversationClosed)
	})
}

func TestMemory_Counterpart(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, conv := newStore(t)

	other, err := store.Counterpart(ctx, conv.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), other)

	other, err = store.Counterpart(ctx, conv.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), other)

	_, err = store.Counterpart(ctx, conv.ID, 3)
	assert.ErrorIs(t, err, chatstore.ErrNotParticipant)

	_, err = store.Counterpart(ctx, 77, 1)
	assert.ErrorIs(t, err, chatstore.ErrConversationNotFound)
}

func TestMemory_SaveStatuses(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	first := time.Date(2025, 3, 1, 12, 5, 0, 0, time.UTC)
	later := first.Add(time.Hour)

	t.Run("never replaces timestamps", func(t *testing.T) {
		t.Parallel()
		store, conv := newStore(t)
		_, err := store.PersistMessage(ctx, realtime.NewMessage{ConversationID: conv.ID, SenderID: 1, Content: "hi"})
		require.NoError(t, err)

		require.NoError(t, store.SaveStatuses(ctx, realtime.DeliveryStatus{MessageID: 1, IsDelivered: true, DeliveredAt: &first}))
		require.NoError(t, store.SaveStatuses(ctx, realtime.DeliveryStatus{MessageID: 1, IsDelivered: true, DeliveredAt: &later}))

		st, err := store.MessageStatus(ctx, 1)
		require.NoError(t, err)
		assert.True(t, st.IsDelivered)
		require.NotNil(t, st.DeliveredAt)
		assert.Equal(t, first, *st.DeliveredAt)
		assert.False(t, st.IsRead)
		assert.Nil(t, st.ReadAt)
	})

	t.Run("read implies delivered", func(t *testing.T) {
		t.Parallel()
		store, conv := newStore(t)
		_, err := store.PersistMessage(ctx, realtime.NewMessage{ConversationID: conv.ID, SenderID: 1, Content: "hi"})
		require.NoError(t, err)

		require.NoError(t, store.SaveStatuses(ctx, realtime.DeliveryStatus{MessageID: 1, IsRead: true, ReadAt: &later}))

		st, err := store.MessageStatus(ctx, 1)
		require.NoError(t, err)
		assert.True(t, st.IsDelivered)
		assert.True(t, st.IsRead)
		require.NotNil(t, st.DeliveredAt)
		assert.Equal(t, later, *st.DeliveredAt)
		assert.Equal(t, later, *st.ReadAt)
	})

	t.Run("unknown message leaves others untouched", func(t *testing.T) {
		t.Parallel()
		store, conv := newStore(t)
		_, err := store.PersistMessage(ctx, realtime.NewMessage{ConversationID: conv.ID, SenderID: 1, Content: "hi"})
		require.NoError(t, err)

		err = store.SaveStatuses(ctx,
			realtime.DeliveryStatus{MessageID: 1, IsDelivered: true, DeliveredAt: &first},
			realtime.DeliveryStatus{MessageID: 99, IsDelivered: true, DeliveredAt: &first},
		)
		assert.ErrorIs(t, err, chatstore.ErrMessageNotFound)

		st, err := store.MessageStatus(ctx, 1)
		require.NoError(t, err)
		assert.False(t, st.IsDelivered)
	})
}

func TestMemory_UnreadMessages(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, conv := newStore(t)
	for _, sender := range []int64{1, 2, 1, 1} {
		_, err := store.PersistMessage(ctx, realtime.NewMessage{ConversationID: conv.ID, SenderID: sender, Content: "m"})
		require.NoError(t, err)
	}
	readAt := time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveStatuses(ctx, realtime.DeliveryStatus{MessageID: 3, IsRead: true, ReadAt: &readAt}))

	unread, err := store.UnreadMessages(ctx, conv.ID, 2)
	require.NoError(t, err)
	ids := make([]int64, len(unread))
	for i, st := range unread {
		ids[i] = st.MessageID
	}
	assert.Equal(t, []int64{1, 4}, ids)

	unread, err = store.UnreadMessages(ctx, conv.ID, 1)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, int64(2), unread[0].MessageID)
}

func TestMemory_MessageStatusNotFound(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t)
	_, err := store.MessageStatus(context.Background(), 5)
	assert.ErrorIs(t, err, chatstore.ErrMessageNotFound)
	assert.ErrorIs(t, err, realtime.ErrNotFound)
}

func TestMemory_InAppEnabled(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newStore(t)

	enabled, err := store.InAppEnabled(ctx, 1)
	require.NoError(t, err)
	assert.True(t, enabled)

	store.SetInAppNotifications(1, false)
	enabled, err = store.InAppEnabled(ctx, 1)
	require.NoError(t, err)
	assert.False(t, enabled)
}
