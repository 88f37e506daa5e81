package realtime

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/dmitrymomot/marketpulse/pkg/logger"
)

// DeliveryStage orders the receipt states of a message.
type DeliveryStage int

const (
	StageSent DeliveryStage = iota
	StageDelivered
	StageRead
)

// String returns the lowercase stage name.
func (s DeliveryStage) String() string {
	switch s {
	case StageDelivered:
		return "delivered"
	case StageRead:
		return "read"
	default:
		return "sent"
	}
}

// Stage derives the receipt stage from the stored flags.
func (s DeliveryStatus) Stage() DeliveryStage {
	switch {
	case s.IsRead:
		return StageRead
	case s.IsDelivered:
		return StageDelivered
	default:
		return StageSent
	}
}

// advance moves s forward to stage `to`, filling only missing flags and
// timestamps. Reaching StageRead always sets the delivered fields too.
func (s DeliveryStatus) advance(to DeliveryStage, at time.Time) (DeliveryStatus, bool) {
	changed := false
	if to >= StageDelivered {
		if !s.IsDelivered {
			s.IsDelivered = true
			changed = true
		}
		if s.DeliveredAt == nil {
			s.DeliveredAt = lo.ToPtr(at)
			changed = true
		}
	}
	if to >= StageRead {
		if !s.IsRead {
			s.IsRead = true
			changed = true
		}
		if s.ReadAt == nil {
			s.ReadAt = lo.ToPtr(at)
			changed = true
		}
	}
	return s, changed
}

// ReadReceipt summarises one bulk mark-read.
type ReadReceipt struct {
	ConversationID int64
	ReaderID       int64
	MessageIDs     []int64
	ReadAt         time.Time
}

// Tracker applies delivered/read acknowledgements and broadcasts the result
// to the conversation group.
type Tracker struct {
	store        DeliveryStore
	participants ParticipantChecker
	bus          Broadcaster
	log          *slog.Logger
	now          func() time.Time
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithTrackerLogger sets the logger for receipt broadcasts and store errors.
func WithTrackerLogger(l *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		if l != nil {
			t.log = l
		}
	}
}

// WithTrackerClock replaces time.Now, mostly for tests.
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker builds a tracker that persists statuses in store, checks
// membership with participants and announces changes on bus.
func NewTracker(store DeliveryStore, participants ParticipantChecker, bus Broadcaster, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		store:        store,
		participants: participants,
		bus:          bus,
		log:          logger.Discard(),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) authorize(ctx context.Context, userID, conversationID int64) error {
	ok, err := t.participants.IsParticipant(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAuthorization
	}
	return nil
}

// MarkDelivered records that ackerID received the message. Acknowledging one's
// own message or an already delivered one changes nothing.
func (t *Tracker) MarkDelivered(ctx context.Context, messageID, ackerID int64) (DeliveryStatus, error) {
	st, err := t.store.MessageStatus(ctx, messageID)
	if err != nil {
		return DeliveryStatus{}, err
	}
	if err := t.authorize(ctx, ackerID, st.ConversationID); err != nil {
		return DeliveryStatus{}, err
	}
	if st.SenderID == ackerID {
		return st, nil
	}

	next, changed := st.advance(StageDelivered, t.now())
	if !changed {
		return st, nil
	}
	if err := t.store.SaveStatuses(ctx, next); err != nil {
		return DeliveryStatus{}, err
	}

	t.bus.Send(ctx, ChatGroup(next.ConversationID), NewEnvelope(KindMessageStatusUpdate, Payload{
		"message_id":      next.MessageID,
		"conversation_id": next.ConversationID,
		"is_delivered":    next.IsDelivered,
		"delivered_at":    next.DeliveredAt,
	}))
	return next, nil
}

// MarkRead marks every unread message of the conversation that readerID did
// not send as read. Calling it again changes nothing.
func (t *Tracker) MarkRead(ctx context.Context, conversationID, readerID int64) (ReadReceipt, error) {
	receipt := ReadReceipt{ConversationID: conversationID, ReaderID: readerID, ReadAt: t.now()}

	if err := t.authorize(ctx, readerID, conversationID); err != nil {
		return receipt, err
	}

	unread, err := t.store.UnreadMessages(ctx, conversationID, readerID)
	if err != nil {
		return receipt, err
	}

	changed := lo.FilterMap(unread, func(s DeliveryStatus, _ int) (DeliveryStatus, bool) {
		if s.SenderID == readerID {
			return s, false
		}
		return s.advance(StageRead, receipt.ReadAt)
	})
	if len(changed) == 0 {
		return receipt, nil
	}
	if err := t.store.SaveStatuses(ctx, changed...); err != nil {
		return receipt, err
	}

	receipt.MessageIDs = lo.Map(changed, func(s DeliveryStatus, _ int) int64 { return s.MessageID })
	t.bus.Send(ctx, ChatGroup(conversationID), NewEnvelope(KindMessagesRead, Payload{
		"user_id":         readerID,
		"conversation_id": conversationID,
		"message_ids":     receipt.MessageIDs,
		"read_at":         receipt.ReadAt,
	}))
	t.log.LogAttrs(ctx, slog.LevelDebug, "messages marked read",
		logger.ConversationID(conversationID),
		logger.UserID(readerID),
		logger.Count("messages", len(receipt.MessageIDs)),
	)
	return receipt, nil
}

// IsAckError reports whether err is a client-side acknowledgement problem
// (unknown message or foreign conversation) rather than a store failure.
func IsAckError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrAuthorization)
}
