package realtime

import (
	"sync"
	"time"
)

// DefaultHeartbeatInterval keeps idle sockets alive through proxies that reap
// connections after 30 seconds or more of silence.
const DefaultHeartbeatInterval = 25 * time.Second

// heartbeat calls beat on every tick until Stop. Once Stop returns, beat is
// never called again.
type heartbeat struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func startHeartbeat(interval time.Duration, beat func()) *heartbeat {
	h := &heartbeat{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-ticker.C:
				select {
				case <-h.stop:
					return
				default:
				}
				beat()
			}
		}
	}()
	return h
}

// Stop cancels the heartbeat and waits for its goroutine to exit.
// It is safe to call on a nil heartbeat and more than once.
func (h *heartbeat) Stop() {
	if h == nil {
		return
	}
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}
