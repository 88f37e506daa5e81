package realtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/dmitrymomot/marketpulse/pkg/identity"
	"github.com/dmitrymomot/marketpulse/pkg/logger"
)

// Routes mounts every realtime endpoint on r. auth guards the plain HTTP
// endpoints; socket endpoints authenticate with the token query parameter.
func (svc *Service) Routes(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Get("/ws/chat/{conversationID}/", svc.ChatHandler().ServeHTTP)
	r.Get("/ws/notifications/", svc.NotificationsHandler().ServeHTTP)
	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Get("/api/events/stream/", svc.StreamHandler().ServeHTTP)
		r.Post("/api/messages/{messageID}/delivered/", svc.DeliveredHandler().ServeHTTP)
		r.Post("/api/conversations/{conversationID}/read/", svc.ReadHandler().ServeHTTP)
	})
}

// ChatHandler upgrades /ws/chat/{conversationID}/ connections.
func (svc *Service) ChatHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "conversationID")
		if !ok {
			writeJSONError(w, http.StatusNotFound, "conversation not found")
			return
		}
		svc.serveSocket(w, r, &chatChannel{svc: svc, conversationID: id})
	})
}

// NotificationsHandler upgrades /ws/notifications/ connections.
func (svc *Service) NotificationsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		svc.serveSocket(w, r, &notificationsChannel{svc: svc})
	})
}

// DeliveredHandler acknowledges delivery of one message.
func (svc *Service) DeliveredHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := identity.UserIDFromContext(r.Context())
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		messageID, ok := pathID(r, "messageID")
		if !ok {
			writeJSONError(w, http.StatusNotFound, "message not found")
			return
		}
		st, err := svc.tracker.MarkDelivered(r.Context(), messageID, userID)
		if err != nil {
			svc.writeAckError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message_id":   st.MessageID,
			"is_delivered": st.IsDelivered,
			"delivered_at": st.DeliveredAt,
		})
	})
}

// ReadHandler marks a whole conversation as read for the caller.
func (svc *Service) ReadHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := identity.UserIDFromContext(r.Context())
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		conversationID, ok := pathID(r, "conversationID")
		if !ok {
			writeJSONError(w, http.StatusNotFound, "conversation not found")
			return
		}
		receipt, err := svc.tracker.MarkRead(r.Context(), conversationID, userID)
		if err != nil {
			svc.writeAckError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"conversation_id": receipt.ConversationID,
			"marked_read":     len(receipt.MessageIDs),
			"message_ids":     lo.Ternary(receipt.MessageIDs == nil, []int64{}, receipt.MessageIDs),
		})
	})
}

func (svc *Service) writeAckError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, ErrAuthorization):
		writeJSONError(w, http.StatusForbidden, "not a participant")
	default:
		svc.log.LogAttrs(r.Context(), slog.LevelError, "acknowledgement failed", logger.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

// originChecker accepts any origin when the allow-list is empty. Requests
// without an Origin header come from non-browser clients and are accepted.
func originChecker(allowed []string) func(*http.Request) bool {
	allowed = lo.FilterMap(allowed, func(o string, _ int) (string, bool) {
		o = strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")
		return o, o != ""
	})
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := lo.Keyify(allowed)
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
