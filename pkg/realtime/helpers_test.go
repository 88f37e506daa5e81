package realtime_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/marketpulse/pkg/chatstore"
	"github.com/dmitrymomot/marketpulse/pkg/identity"
	"github.com/dmitrymomot/marketpulse/pkg/realtime"
)

const (
	alice int64 = 1
	bob   int64 = 2
	carol int64 = 3
)

type harness struct {
	svc      *realtime.Service
	srv      *httptest.Server
	store    *chatstore.Memory
	resolver *identity.Resolver
	fanout   *realtime.Fanout
	// conv is alice and bob talking; other is bob and carol.
	conv  chatstore.Conversation
	other chatstore.Conversation
}

// newHarness serves the realtime routes over a real listener. Each build
// callback runs after the store and fanout exist and returns one more option.
func newHarness(t *testing.T, cfg realtime.Config, build ...func(h *harness) realtime.Option) *harness {
	t.Helper()

	resolver, err := identity.NewResolver(identity.Config{Secret: "test-secret", TTL: time.Hour})
	require.NoError(t, err)

	store := chatstore.NewMemory()
	store.AddUser(alice, "alice")
	store.AddUser(bob, "bob")
	store.AddUser(carol, "carol")
	conv, err := store.CreateConversation(100, alice, bob)
	require.NoError(t, err)
	other, err := store.CreateConversation(200, carol, bob)
	require.NoError(t, err)

	h := &harness{
		store:    store,
		resolver: resolver,
		fanout:   realtime.NewFanout(realtime.NewRegistry(), realtime.NewBus()),
		conv:     conv,
		other:    other,
	}
	opts := []realtime.Option{realtime.WithConfig(cfg)}
	for _, b := range build {
		opts = append(opts, b(h))
	}
	h.svc = realtime.New(h.fanout, resolver, store, store, opts...)

	r := chi.NewRouter()
	h.svc.Routes(r, identity.Middleware(resolver))
	h.srv = httptest.NewServer(r)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.svc.Close(ctx)
		h.srv.Close()
	})
	return h
}

func (h *harness) token(t *testing.T, userID int64) string {
	t.Helper()
	tok, err := h.resolver.Issue(userID)
	require.NoError(t, err)
	return tok
}

func (h *harness) wsURL(path, token string) string {
	u := "ws" + strings.TrimPrefix(h.srv.URL, "http") + path
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func (h *harness) chatPath(conversationID int64) string {
	return "/ws/chat/" + strconv.FormatInt(conversationID, 10) + "/"
}

// dial opens a socket and fails the test when the handshake does not succeed.
func (h *harness) dial(t *testing.T, path string, userID int64) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(h.wsURL(path, h.token(t, userID)), nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// dialActive dials and waits until the service counts want active sessions.
func (h *harness) dialActive(t *testing.T, path string, userID int64, want int) *websocket.Conn {
	t.Helper()
	conn := h.dial(t, path, userID)
	require.Eventually(t, func() bool { return h.svc.ActiveSessions() == want }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

// readFrame returns the next frame whose type is not ping.
func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var frame map[string]any
		require.NoError(t, json.Unmarshal(data, &frame))
		if frame["type"] != realtime.KindPing {
			return frame
		}
	}
}

// readClose reads until the peer closes and returns the close code.
func readClose(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		require.ErrorAs(t, err, &ce)
		return ce.Code
	}
}

// expectSilence asserts nothing but pings arrives within d.
func expectSilence(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(d)))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			require.True(t, isTimeout(err), "unexpected read error: %v", err)
			return
		}
		var frame map[string]any
		require.NoError(t, json.Unmarshal(data, &frame))
		require.Equal(t, realtime.KindPing, frame["type"], "unexpected frame %s", data)
	}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
