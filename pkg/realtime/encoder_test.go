package realtime_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/marketpulse/pkg/realtime"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestEncodeSSE(t *testing.T) {
	t.Parallel()

	t.Run("frame layout", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		env := realtime.NewEnvelope(realtime.KindChatMessage, realtime.Payload{"content": "hi"})

		require.NoError(t, realtime.EncodeSSE(&buf, env))
		assert.Equal(t, "event: chat_message\ndata: {\"content\":\"hi\"}\n\n", buf.String())
	})

	t.Run("empty payload", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, realtime.EncodeSSE(&buf, realtime.NewEnvelope(realtime.KindHeartbeat, nil)))
		assert.Equal(t, "event: heartbeat\ndata: {}\n\n", buf.String())
	})

	t.Run("kind stays on one line", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, realtime.EncodeSSE(&buf, realtime.NewEnvelope("bad\nkind", nil)))
		assert.Equal(t, "event: badkind\ndata: {}\n\n", buf.String())
	})

	t.Run("unencodable payload", func(t *testing.T) {
		t.Parallel()
		err := realtime.EncodeSSE(&bytes.Buffer{}, realtime.NewEnvelope("x", realtime.Payload{"ch": make(chan int)}))
		assert.ErrorIs(t, err, realtime.ErrMalformedInput)
	})

	t.Run("write failure", func(t *testing.T) {
		t.Parallel()
		err := realtime.EncodeSSE(failingWriter{}, realtime.NewEnvelope("x", nil))
		assert.ErrorIs(t, err, realtime.ErrTransport)
	})
}

func TestEncodeFrame(t *testing.T) {
	t.Parallel()

	data, err := realtime.EncodeFrame(realtime.NewEnvelope(realtime.KindTyping, realtime.Payload{
		"user_id": 5,
		"type":    "ignored",
	}))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, map[string]any{"type": "typing", "user_id": float64(5)}, got)
}

func TestDecodeFrame(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		want    string
		wantErr bool
	}{
		{name: "chat message", data: `{"type":"chat_message","content":"hi"}`, want: "chat_message"},
		{name: "ping", data: `{"type":"ping"}`, want: "ping"},
		{name: "missing type", data: `{"content":"hi"}`, wantErr: true},
		{name: "not json", data: `hello`, wantErr: true},
		{name: "wrong type", data: `{"type":5}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f, err := realtime.DecodeFrame([]byte(tt.data))
			if tt.wantErr {
				assert.ErrorIs(t, err, realtime.ErrMalformedInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Type)
		})
	}
}

func TestFrame_Bind(t *testing.T) {
	t.Parallel()

	type chatIn struct {
		Content string `json:"content" validate:"required,max=10"`
	}

	f, err := realtime.DecodeFrame([]byte(`{"type":"chat_message","content":"hi"}`))
	require.NoError(t, err)
	var in chatIn
	require.NoError(t, f.Bind(&in))
	assert.Equal(t, "hi", in.Content)

	f, err = realtime.DecodeFrame([]byte(`{"type":"chat_message","content":""}`))
	require.NoError(t, err)
	assert.ErrorIs(t, f.Bind(&chatIn{}), realtime.ErrMalformedInput)

	f, err = realtime.DecodeFrame([]byte(`{"type":"chat_message","content":"way too long for it"}`))
	require.NoError(t, err)
	assert.ErrorIs(t, f.Bind(&chatIn{}), realtime.ErrMalformedInput)
}

func TestGroupNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "chat_42", realtime.ChatGroup(42))
	assert.Equal(t, "notifications_7", realtime.NotificationsGroup(7))
}
