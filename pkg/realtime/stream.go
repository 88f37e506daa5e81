package realtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/marketpulse/pkg/identity"
	"github.com/dmitrymomot/marketpulse/pkg/logger"
)

// DefaultStreamWait is how long the stream waits for an event before it sends a heartbeat.
const DefaultStreamWait = 15 * time.Second

// StreamHandler serves the Server-Sent Events stream of the authenticated
// user. It must run behind identity.Middleware.
func (svc *Service) StreamHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := identity.UserIDFromContext(r.Context())
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !svc.acquire() {
			writeJSONError(w, http.StatusServiceUnavailable, "too many connections")
			return
		}
		defer svc.release()

		rc := http.NewResponseController(w)
		// the server write timeout would cut the stream
		_ = rc.SetWriteDeadline(time.Time{})

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		svc.serveStream(r.Context(), w, rc.Flush, userID)
	})
}

// serveStream drains the user's mailbox into w until the client goes away,
// the mailbox is closed or a write fails. Its mailbox reference is always released.
func (svc *Service) serveStream(ctx context.Context, w io.Writer, flush func() error, userID int64) {
	log := svc.log.With(logger.UserID(userID), logger.Transport("sse"))

	mb := svc.registry.Subscribe(userID)
	defer svc.registry.Release(mb)

	write := func(env Envelope) error {
		if err := EncodeSSE(w, env); err != nil {
			return err
		}
		if err := flush(); err != nil {
			return errors.Join(ErrTransport, err)
		}
		return nil
	}

	if err := write(NewEnvelope(KindConnected, Payload{
		"user_id":   userID,
		"timestamp": time.Now().UTC(),
	})); err != nil {
		log.LogAttrs(ctx, slog.LevelDebug, "stream closed before connect", logger.Error(err))
		return
	}
	log.LogAttrs(ctx, slog.LevelDebug, "stream connected")

	for {
		env, err := mb.Next(ctx, svc.cfg.StreamWait)
		switch {
		case err == nil:
		case errors.Is(err, ErrWaitTimeout):
			env = NewEnvelope(KindHeartbeat, Payload{"timestamp": time.Now().UTC()})
		default:
			log.LogAttrs(ctx, slog.LevelDebug, "stream finished", logger.Error(err))
			return
		}
		if err := write(env); err != nil {
			log.LogAttrs(ctx, slog.LevelDebug, "stream write failed", logger.Kind(env.Kind()), logger.Error(err))
			return
		}
	}
}
