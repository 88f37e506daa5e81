package realtime_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/marketpulse/pkg/realtime"
)

func TestLifecycle_Fire(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		events []realtime.SessionEvent
		want   realtime.SessionState
	}{
		{
			name:   "happy path",
			events: []realtime.SessionEvent{realtime.EventOpen, realtime.EventAuthenticated, realtime.EventJoined},
			want:   realtime.StateActive,
		},
		{
			name:   "rejected during authentication",
			events: []realtime.SessionEvent{realtime.EventOpen, realtime.EventReject},
			want:   realtime.StateRejected,
		},
		{
			name:   "rejected during join",
			events: []realtime.SessionEvent{realtime.EventOpen, realtime.EventAuthenticated, realtime.EventReject},
			want:   realtime.StateRejected,
		},
		{
			name: "active then closed",
			events: []realtime.SessionEvent{
				realtime.EventOpen, realtime.EventAuthenticated, realtime.EventJoined,
				realtime.EventClose, realtime.EventClosed,
			},
			want: realtime.StateClosed,
		},
		{
			name:   "closed before open",
			events: []realtime.SessionEvent{realtime.EventClose, realtime.EventClosed},
			want:   realtime.StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fsm := realtime.NewLifecycle()
			assert.Equal(t, realtime.StateConnecting, fsm.Current())
			for _, ev := range tt.events {
				_, err := fsm.Fire(ev)
				require.NoError(t, err, "event %s", ev)
			}
			assert.Equal(t, tt.want, fsm.Current())
		})
	}
}

func TestLifecycle_InvalidTransition(t *testing.T) {
	t.Parallel()

	fsm := realtime.NewLifecycle()
	assert.False(t, fsm.CanFire(realtime.EventJoined))

	state, err := fsm.Fire(realtime.EventJoined)
	assert.Equal(t, realtime.StateConnecting, state)

	var nte *realtime.NoTransitionError
	require.True(t, errors.As(err, &nte))
	assert.Equal(t, realtime.StateConnecting, nte.State)
	assert.Equal(t, realtime.EventJoined, nte.Event)

	// Active sessions can only close.
	for _, ev := range []realtime.SessionEvent{realtime.EventOpen, realtime.EventAuthenticated, realtime.EventJoined} {
		_, err := fsm.Fire(ev)
		require.NoError(t, err)
	}
	assert.False(t, fsm.CanFire(realtime.EventReject))
	assert.True(t, fsm.CanFire(realtime.EventClose))
}

func TestLifecycle_Hooks(t *testing.T) {
	t.Parallel()

	type step struct {
		from, to realtime.SessionState
		event    realtime.SessionEvent
	}
	var first, second []step
	fsm := realtime.NewLifecycle(
		func(from, to realtime.SessionState, ev realtime.SessionEvent) {
			first = append(first, step{from, to, ev})
		},
		func(from, to realtime.SessionState, ev realtime.SessionEvent) {
			second = append(second, step{from, to, ev})
		},
	)

	_, err := fsm.Fire(realtime.EventOpen)
	require.NoError(t, err)
	_, err = fsm.Fire(realtime.EventReject)
	require.NoError(t, err)
	_, err = fsm.Fire(realtime.EventClose)
	require.Error(t, err)

	want := []step{
		{realtime.StateConnecting, realtime.StateAuthenticating, realtime.EventOpen},
		{realtime.StateAuthenticating, realtime.StateRejected, realtime.EventReject},
	}
	assert.Equal(t, want, first)
	assert.Equal(t, want, second)
}

func TestSessionState_Terminal(t *testing.T) {
	t.Parallel()

	assert.True(t, realtime.StateClosed.Terminal())
	assert.True(t, realtime.StateRejected.Terminal())
	assert.False(t, realtime.StateActive.Terminal())
	assert.False(t, realtime.StateClosing.Terminal())
}
