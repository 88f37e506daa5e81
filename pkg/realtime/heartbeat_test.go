package realtime

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHeartbeat(t *testing.T) {
	t.Parallel()

	var beats atomic.Int32
	hb := startHeartbeat(5*time.Millisecond, func() { beats.Add(1) })

	assert.Eventually(t, func() bool { return beats.Load() >= 3 }, time.Second, time.Millisecond)

	hb.Stop()
	stopped := beats.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, beats.Load(), "beat after Stop")

	assert.NotPanics(t, hb.Stop)
}

func TestHeartbeat_NilStop(t *testing.T) {
	t.Parallel()

	var hb *heartbeat
	assert.NotPanics(t, hb.Stop)
}
