package realtime

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/dmitrymomot/marketpulse/pkg/logger"
	"github.com/dmitrymomot/marketpulse/pkg/ratelimiter"
)

var (
	ErrRateLimited      = errors.New("realtime: too many messages")
	ErrDuplicateMessage = errors.New("realtime: duplicate message")
)

// Throttle decides whether a user may post another chat message.
type Throttle interface {
	Allow(ctx context.Context, userID int64, content string) error
}

// DefaultDuplicateWindow rejects the same content from the same user posted again within it.
const DefaultDuplicateWindow = 5 * time.Second

type lastMessage struct {
	content string
	at      time.Time
}

// ChatThrottle combines a per-user token bucket with duplicate suppression.
// Limiter errors fail open: the message is allowed and the error logged.
type ChatThrottle struct {
	limiter ratelimiter.Limiter
	window  time.Duration
	log     *slog.Logger
	now     func() time.Time

	mu   sync.Mutex
	last map[int64]lastMessage
}

// ChatThrottleOption configures a ChatThrottle.
type ChatThrottleOption func(*ChatThrottle)

// WithDuplicateWindow overrides DefaultDuplicateWindow. Zero disables duplicate suppression.
func WithDuplicateWindow(d time.Duration) ChatThrottleOption {
	return func(t *ChatThrottle) { t.window = d }
}

// WithThrottleLogger sets the logger for limiter failures.
func WithThrottleLogger(l *slog.Logger) ChatThrottleOption {
	return func(t *ChatThrottle) {
		if l != nil {
			t.log = l
		}
	}
}

// WithThrottleClock replaces time.Now in tests.
func WithThrottleClock(now func() time.Time) ChatThrottleOption {
	return func(t *ChatThrottle) {
		if now != nil {
			t.now = now
		}
	}
}

// NewChatThrottle wraps limiter. A nil limiter disables rate limiting but
// keeps duplicate suppression.
func NewChatThrottle(limiter ratelimiter.Limiter, opts ...ChatThrottleOption) *ChatThrottle {
	t := &ChatThrottle{
		limiter: limiter,
		window:  DefaultDuplicateWindow,
		log:     logger.Discard(),
		now:     time.Now,
		last:    make(map[int64]lastMessage),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Allow records content as the user's last message in the same critical
// section that checks for a duplicate, so identical messages racing on two
// sockets let only one through. A rate-limited message gives the record back.
func (t *ChatThrottle) Allow(ctx context.Context, userID int64, content string) error {
	now := t.now()
	current := lastMessage{content: content, at: now}

	t.mu.Lock()
	prev, seen := t.last[userID]
	if seen && prev.content == content && now.Sub(prev.at) < t.window {
		t.mu.Unlock()
		return ErrDuplicateMessage
	}
	t.last[userID] = current
	if len(t.last) > 4096 {
		for id, m := range t.last {
			if now.Sub(m.at) >= t.window {
				delete(t.last, id)
			}
		}
	}
	t.mu.Unlock()

	if t.limiter == nil {
		return nil
	}
	res, err := t.limiter.Allow(ctx, "chat:"+strconv.FormatInt(userID, 10))
	switch {
	case err != nil:
		t.log.LogAttrs(ctx, slog.LevelWarn, "chat throttle unavailable, allowing message",
			logger.UserID(userID),
			logger.Error(err),
		)
	case !res.Allowed():
		t.mu.Lock()
		if t.last[userID] == current {
			if seen {
				t.last[userID] = prev
			} else {
				delete(t.last, userID)
			}
		}
		t.mu.Unlock()
		return ErrRateLimited
	}
	return nil
}
