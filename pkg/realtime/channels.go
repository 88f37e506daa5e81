package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dmitrymomot/marketpulse/pkg/logger"
)

// Inbound frames. Validation tags run in Frame.Bind.
type (
	chatMessageFrame struct {
		Content     string   `json:"content" validate:"required,max=2000"`
		MessageType string   `json:"message_type" validate:"omitempty,oneof=text offer"`
		OfferAmount *float64 `json:"offer_amount" validate:"omitempty,gt=0"`
	}

	typingFrame struct {
		IsTyping bool `json:"is_typing"`
	}

	markDeliveredFrame struct {
		MessageID int64 `json:"message_id" validate:"required,gt=0"`
	}

	notificationReadFrame struct {
		NotificationID int64 `json:"notification_id" validate:"required,gt=0"`
	}
)

func unknownKind(kind string) error {
	return fmt.Errorf("%w: unknown event type %q", ErrMalformedInput, kind)
}

// errorCode is the machine-readable code of an error frame.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrDuplicateMessage):
		return "duplicate"
	case errors.Is(err, ErrMalformedInput):
		return "invalid_message"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAuthorization):
		return "forbidden"
	default:
		return "internal_error"
	}
}

// chatChannel serves /ws/chat/{conversationID}/.
type chatChannel struct {
	svc            *Service
	conversationID int64
}

func (c *chatChannel) Name() string { return "chat" }

func (c *chatChannel) Groups(ctx context.Context, userID int64) ([]string, error) {
	ok, err := c.svc.conversations.IsParticipant(ctx, userID, c.conversationID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAuthorization
	}
	return []string{ChatGroup(c.conversationID)}, nil
}

func (c *chatChannel) Handle(ctx context.Context, s *Session, f Frame) error {
	switch f.Type {
	case KindChatMessage:
		return c.chatMessage(ctx, s, f)
	case KindTyping:
		var in typingFrame
		if err := f.Bind(&in); err != nil {
			return err
		}
		c.svc.bus.Send(ctx, ChatGroup(c.conversationID), NewEnvelope(KindTyping, Payload{
			"user_id":         s.UserID(),
			"conversation_id": c.conversationID,
			"is_typing":       in.IsTyping,
		}))
		return nil
	case KindMarkRead:
		pctx, cancel := c.svc.persistContext(ctx)
		defer cancel()
		_, err := c.svc.tracker.MarkRead(pctx, c.conversationID, s.UserID())
		return err
	case KindMarkDelivered:
		var in markDeliveredFrame
		if err := f.Bind(&in); err != nil {
			return err
		}
		pctx, cancel := c.svc.persistContext(ctx)
		defer cancel()
		_, err := c.svc.tracker.MarkDelivered(pctx, in.MessageID, s.UserID())
		return err
	default:
		return unknownKind(f.Type)
	}
}

func (c *chatChannel) chatMessage(ctx context.Context, s *Session, f Frame) error {
	var in chatMessageFrame
	if err := f.Bind(&in); err != nil {
		s.replyError(errorCode(err), "message is invalid")
		return err
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		s.replyError("invalid_message", "message is empty")
		return fmt.Errorf("%w: blank content", ErrMalformedInput)
	}
	if in.MessageType == "" {
		in.MessageType = "text"
	}
	if in.MessageType == "offer" && in.OfferAmount == nil {
		s.replyError("invalid_message", "offer amount is required")
		return fmt.Errorf("%w: offer without amount", ErrMalformedInput)
	}

	if c.svc.throttle != nil {
		if err := c.svc.throttle.Allow(ctx, s.UserID(), content); err != nil {
			s.replyError(errorCode(err), err.Error())
			return err
		}
	}

	pctx, cancel := c.svc.persistContext(ctx)
	defer cancel()
	payload, err := c.svc.conversations.PersistMessage(pctx, NewMessage{
		ConversationID: c.conversationID,
		SenderID:       s.UserID(),
		Content:        content,
		Type:           in.MessageType,
		OfferAmount:    in.OfferAmount,
	})
	if err != nil {
		s.replyError(errorCode(err), "message could not be saved")
		return err
	}

	c.svc.bus.Send(ctx, ChatGroup(c.conversationID), NewEnvelope(KindChatMessage, payload))
	c.svc.notifyRecipient(pctx, c.conversationID, s.UserID(), content, payload)
	return nil
}

// notificationsChannel serves /ws/notifications/.
type notificationsChannel struct {
	svc *Service
}

func (c *notificationsChannel) Name() string { return "notifications" }

func (c *notificationsChannel) Groups(_ context.Context, userID int64) ([]string, error) {
	return []string{NotificationsGroup(userID)}, nil
}

func (c *notificationsChannel) Handle(ctx context.Context, s *Session, f Frame) error {
	switch f.Type {
	case KindMarkRead:
		var in notificationReadFrame
		if err := f.Bind(&in); err != nil {
			return err
		}
		if c.svc.notifier == nil {
			return nil
		}
		pctx, cancel := c.svc.persistContext(ctx)
		defer cancel()
		return c.svc.notifier.MarkRead(pctx, s.UserID(), in.NotificationID)
	default:
		return unknownKind(f.Type)
	}
}

// notifyRecipient hands a stored chat message to the other participant's
// stream and raises a notification. Failures are logged and never undo the
// message itself.
func (svc *Service) notifyRecipient(ctx context.Context, conversationID, senderID int64, content string, payload Payload) {
	recipient, err := svc.conversations.Counterpart(ctx, conversationID, senderID)
	if err != nil {
		svc.log.LogAttrs(ctx, slog.LevelWarn, "resolve message recipient",
			logger.ConversationID(conversationID),
			logger.Error(err),
		)
		return
	}
	svc.fanout.Publish(recipient, KindChatMessage, payload)

	if svc.notifier == nil {
		return
	}
	notice := MessageNotice{
		RecipientID:    recipient,
		SenderID:       senderID,
		ConversationID: conversationID,
		Content:        content,
	}
	if msg, ok := payload["message"].(map[string]any); ok {
		notice.MessageID, _ = msg["id"].(int64)
		notice.SenderName, _ = msg["sender_username"].(string)
	}
	if err := svc.notifier.NewMessage(ctx, notice); err != nil {
		svc.log.LogAttrs(ctx, slog.LevelWarn, "new message notification failed",
			logger.ConversationID(conversationID),
			logger.UserID(recipient),
			logger.Error(err),
		)
	}
}
