package chatstore

import (
	"errors"
	"fmt"

	"github.com/dmitrymomot/marketpulse/pkg/realtime"
)

// The realtime sentinels are wrapped so sessions map them to close codes and
// error frames.
var (
	ErrConversationNotFound = fmt.Errorf("chatstore: conversation not found: %w", realtime.ErrNotFound)
	ErrMessageNotFound      = fmt.Errorf("chatstore: message not found: %w", realtime.ErrNotFound)
	ErrNotParticipant       = fmt.Errorf("chatstore: not a participant: %w", realtime.ErrAuthorization)
	ErrConversationClosed   = fmt.Errorf("chatstore: conversation is closed: %w", realtime.ErrAuthorization)

	ErrInvalidConversation = errors.New("chatstore: invalid conversation")
	ErrQuery               = errors.New("chatstore: query failed")
)
