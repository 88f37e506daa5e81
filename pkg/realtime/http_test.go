package realtime_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/marketpulse/pkg/realtime"
)

func (h *harness) post(t *testing.T, path, token string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, h.srv.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func (h *harness) persist(t *testing.T, sender int64, content string) int64 {
	t.Helper()
	payload, err := h.store.PersistMessage(context.Background(), realtime.NewMessage{
		ConversationID: h.conv.ID,
		SenderID:       sender,
		Content:        content,
	})
	require.NoError(t, err)
	return payload["message"].(map[string]any)["id"].(int64)
}

func TestDeliveredHandler(t *testing.T) {
	t.Parallel()

	h := newHarness(t, realtime.Config{})
	id := h.persist(t, alice, "hello")
	path := "/api/messages/" + strconv.FormatInt(id, 10) + "/delivered/"

	status, body := h.post(t, path, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "authentication required", body["error"])

	status, _ = h.post(t, path, h.token(t, carol))
	assert.Equal(t, http.StatusForbidden, status)

	status, body = h.post(t, path, h.token(t, alice))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["is_delivered"], "sender acks change nothing")

	status, body = h.post(t, path, h.token(t, bob))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(id), body["message_id"])
	assert.Equal(t, true, body["is_delivered"])
	assert.NotNil(t, body["delivered_at"])

	status, _ = h.post(t, "/api/messages/999/delivered/", h.token(t, bob))
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = h.post(t, "/api/messages/abc/delivered/", h.token(t, bob))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestReadHandler(t *testing.T) {
	t.Parallel()

	h := newHarness(t, realtime.Config{})
	first := h.persist(t, alice, "one")
	h.persist(t, bob, "two")
	third := h.persist(t, alice, "three")
	path := "/api/conversations/" + strconv.FormatInt(h.conv.ID, 10) + "/read/"

	a := h.dialActive(t, h.chatPath(h.conv.ID), alice, 1)

	status, body := h.post(t, path, h.token(t, bob))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["marked_read"])
	assert.Equal(t, []any{float64(first), float64(third)}, body["message_ids"])

	frame := readFrame(t, a)
	assert.Equal(t, realtime.KindMessagesRead, frame["type"])

	status, body = h.post(t, path, h.token(t, bob))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["marked_read"])
	assert.Equal(t, []any{}, body["message_ids"])

	status, _ = h.post(t, path, h.token(t, carol))
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = h.post(t, "/api/conversations/12345/read/", h.token(t, bob))
	assert.Equal(t, http.StatusNotFound, status)
}
