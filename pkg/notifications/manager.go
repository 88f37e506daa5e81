package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/marketpulse/pkg/logger"
	"github.com/dmitrymomot/marketpulse/pkg/realtime"
)

// messagePreviewRunes bounds the message text of new-message notifications.
const messagePreviewRunes = 100

// Publisher pushes events to connected clients. realtime.Fanout and
// realtime.Service satisfy it.
type Publisher interface {
	Publish(userID int64, kind string, payload realtime.Payload) bool
	Broadcast(ctx context.Context, groupID, kind string, payload realtime.Payload) int
}

// PreferenceChecker reports whether a user accepts in-app notifications.
type PreferenceChecker interface {
	InAppEnabled(ctx context.Context, userID int64) (bool, error)
}

// DeliveryStats counts realtime delivery outcomes since start.
type DeliveryStats struct {
	Delivered uint64 // reached at least one socket or stream
	Offline   uint64 // user had no live connection
	Failed    uint64 // delivery could not be completed
}

// Manager stores notifications and pushes them to the recipient's live
// connections. Storage errors are returned; delivery is best effort and a
// stored notification stays available for the next unread listing.
type Manager struct {
	storage     Storage
	publisher   Publisher
	preferences PreferenceChecker
	logger      *slog.Logger
	now         func() time.Time

	delivered atomic.Uint64
	offline   atomic.Uint64
	failed    atomic.Uint64
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger for the Manager.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithPreferences skips notifications for users who turned in-app delivery off.
func WithPreferences(p PreferenceChecker) ManagerOption {
	return func(m *Manager) { m.preferences = p }
}

// WithManagerClock replaces time.Now for read timestamps.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a new notification manager. A nil publisher stores
// notifications without pushing them.
func NewManager(storage Storage, publisher Publisher, opts ...ManagerOption) *Manager {
	m := &Manager{
		storage:   storage,
		publisher: publisher,
		logger:    logger.Discard(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send stores notif, then publishes notification_created and the new unread
// count to the recipient.
func (m *Manager) Send(ctx context.Context, notif Notification) (Notification, error) {
	if notif.RecipientID <= 0 {
		return Notification{}, fmt.Errorf("%w: recipient is required", ErrInvalidNotification)
	}
	if !notif.Type.Valid() {
		return Notification{}, fmt.Errorf("%w: unknown type %q", ErrInvalidNotification, notif.Type)
	}
	if notif.Title == "" {
		return Notification{}, fmt.Errorf("%w: title is required", ErrInvalidNotification)
	}
	if notif.CreatedAt.IsZero() {
		notif.CreatedAt = m.now()
	}
	notif.IsRead, notif.ReadAt = false, nil

	// Store first so the notification survives a failed push.
	if err := m.storage.Create(ctx, &notif); err != nil {
		return Notification{}, errors.Join(ErrStorage, err)
	}

	m.push(ctx, notif.RecipientID, notif.ID, realtime.KindNotificationCreated, realtime.Payload{
		"notification": notif.Payload(),
	})
	return notif, nil
}

// NewMessage raises a message notification for the recipient of a chat
// message. It implements realtime.Notifier.
func (m *Manager) NewMessage(ctx context.Context, notice realtime.MessageNotice) error {
	if m.preferences != nil {
		enabled, err := m.preferences.InAppEnabled(ctx, notice.RecipientID)
		if err != nil {
			m.logger.LogAttrs(ctx, slog.LevelWarn, "notification preferences unavailable",
				logger.UserID(notice.RecipientID),
				logger.Error(err),
			)
		} else if !enabled {
			return nil
		}
	}

	title := "New message"
	if notice.SenderName != "" {
		title = "New message from " + notice.SenderName
	}
	metadata := map[string]any{
		"conversation_id": notice.ConversationID,
		"sender_id":       notice.SenderID,
	}
	if notice.MessageID > 0 {
		metadata["message_id"] = notice.MessageID
	}

	_, err := m.Send(ctx, Notification{
		RecipientID: notice.RecipientID,
		Type:        TypeMessage,
		Title:       title,
		Message:     Preview(notice.Content),
		LinkURL:     "/chat/" + strconv.FormatInt(notice.ConversationID, 10),
		Metadata:    metadata,
	})
	return err
}

// ListingSold tells a seller their listing was marked as sold.
func (m *Manager) ListingSold(ctx context.Context, sellerID, listingID int64, listingTitle string) (Notification, error) {
	return m.Send(ctx, Notification{
		RecipientID: sellerID,
		Type:        TypeListingSold,
		Title:       "Listing marked as sold",
		Message:     fmt.Sprintf("Your listing %q has been marked as sold!", listingTitle),
		LinkURL:     "/listings/" + strconv.FormatInt(listingID, 10),
		Metadata:    map[string]any{"listing_id": listingID},
	})
}

// MarkRead marks one of the user's notifications read and pushes
// notification_read with the new unread count. Marking an already read
// notification succeeds without pushing anything.
func (m *Manager) MarkRead(ctx context.Context, userID, notificationID int64) error {
	if _, err := m.storage.Get(ctx, userID, notificationID); err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			return errors.Join(realtime.ErrNotFound, err)
		}
		return errors.Join(ErrStorage, err)
	}
	changed, err := m.storage.MarkRead(ctx, userID, m.now(), notificationID)
	if err != nil {
		return errors.Join(ErrStorage, err)
	}
	if changed == 0 {
		return nil
	}
	m.push(ctx, userID, notificationID, realtime.KindNotificationRead, realtime.Payload{
		"notification_id": notificationID,
	})
	return nil
}

// MarkAllRead marks every unread notification of the user and returns how many changed.
func (m *Manager) MarkAllRead(ctx context.Context, userID int64) (int, error) {
	unread, err := m.storage.List(ctx, userID, ListOptions{OnlyUnread: true})
	if err != nil {
		return 0, errors.Join(ErrStorage, err)
	}
	if len(unread) == 0 {
		return 0, nil
	}
	ids := make([]int64, len(unread))
	for i, n := range unread {
		ids[i] = n.ID
	}
	changed, err := m.storage.MarkRead(ctx, userID, m.now(), ids...)
	if err != nil {
		return 0, errors.Join(ErrStorage, err)
	}
	if changed > 0 {
		m.pushUnreadCount(ctx, userID)
	}
	return changed, nil
}

// List returns the user's notifications, newest first.
func (m *Manager) List(ctx context.Context, userID int64, opts ListOptions) ([]Notification, error) {
	return m.storage.List(ctx, userID, opts)
}

// UnreadCount counts the user's unread notifications.
func (m *Manager) UnreadCount(ctx context.Context, userID int64) (int, error) {
	return m.storage.CountUnread(ctx, userID)
}

// Stats returns the delivery counters.
func (m *Manager) Stats() DeliveryStats {
	return DeliveryStats{
		Delivered: m.delivered.Load(),
		Offline:   m.offline.Load(),
		Failed:    m.failed.Load(),
	}
}

// push sends one event to the user's notification sockets and stream,
// followed by the refreshed unread count.
func (m *Manager) push(ctx context.Context, userID, notificationID int64, kind string, payload realtime.Payload) {
	if m.publisher == nil {
		return
	}
	reached := m.publisher.Broadcast(ctx, realtime.NotificationsGroup(userID), kind, payload) > 0
	if m.publisher.Publish(userID, kind, payload) {
		reached = true
	}
	if !reached {
		m.offline.Add(1)
		m.logger.LogAttrs(ctx, slog.LevelDebug, "notification recipient offline",
			logger.UserID(userID),
			logger.NotificationID(notificationID),
			logger.Kind(kind),
		)
		return
	}
	if !m.pushUnreadCount(ctx, userID) {
		m.failed.Add(1)
		return
	}
	m.delivered.Add(1)
}

func (m *Manager) pushUnreadCount(ctx context.Context, userID int64) bool {
	if m.publisher == nil {
		return true
	}
	count, err := m.storage.CountUnread(ctx, userID)
	if err != nil {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "unread count unavailable, skipping update",
			logger.UserID(userID),
			logger.Error(err),
		)
		return false
	}
	payload := realtime.Payload{"count": count}
	m.publisher.Broadcast(ctx, realtime.NotificationsGroup(userID), realtime.KindUnreadCountUpdated, payload)
	m.publisher.Publish(userID, realtime.KindUnreadCountUpdated, payload)
	return true
}

// Preview shortens chat content for a notification body.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= messagePreviewRunes {
		return content
	}
	return string(runes[:messagePreviewRunes]) + "..."
}
