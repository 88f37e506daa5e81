package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/dmitrymomot/marketpulse/pkg/logger"
)

// Config holds the env-tagged tunables of the realtime service.
type Config struct {
	HeartbeatInterval time.Duration `env:"REALTIME_HEARTBEAT_INTERVAL" envDefault:"25s"`
	StreamWait        time.Duration `env:"REALTIME_STREAM_WAIT" envDefault:"15s"`
	MailboxCapacity   int           `env:"REALTIME_MAILBOX_CAPACITY" envDefault:"100"`
	OutboundBuffer    int           `env:"REALTIME_OUTBOUND_BUFFER" envDefault:"64"`
	WriteTimeout      time.Duration `env:"REALTIME_WRITE_TIMEOUT" envDefault:"10s"`
	PersistTimeout    time.Duration `env:"REALTIME_PERSIST_TIMEOUT" envDefault:"5s"`
	MaxFrameBytes     int64         `env:"REALTIME_MAX_FRAME_BYTES" envDefault:"16384"`
	MaxConnections    int           `env:"REALTIME_MAX_CONNECTIONS" envDefault:"10000"`
	AllowedOrigins    []string      `env:"WS_ALLOWED_ORIGINS" envSeparator:","`
}

// DefaultConfig mirrors the envDefault tags.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: DefaultHeartbeatInterval,
		StreamWait:        DefaultStreamWait,
		MailboxCapacity:   DefaultMailboxCapacity,
		OutboundBuffer:    64,
		WriteTimeout:      10 * time.Second,
		PersistTimeout:    5 * time.Second,
		MaxFrameBytes:     16 << 10,
		MaxConnections:    10000,
	}
}

// withDefaults fills zero values so a partially filled Config stays usable.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	c.HeartbeatInterval = lo.CoalesceOrEmpty(c.HeartbeatInterval, d.HeartbeatInterval)
	c.StreamWait = lo.CoalesceOrEmpty(c.StreamWait, d.StreamWait)
	c.MailboxCapacity = lo.CoalesceOrEmpty(c.MailboxCapacity, d.MailboxCapacity)
	c.OutboundBuffer = lo.CoalesceOrEmpty(c.OutboundBuffer, d.OutboundBuffer)
	c.WriteTimeout = lo.CoalesceOrEmpty(c.WriteTimeout, d.WriteTimeout)
	c.PersistTimeout = lo.CoalesceOrEmpty(c.PersistTimeout, d.PersistTimeout)
	c.MaxFrameBytes = lo.CoalesceOrEmpty(c.MaxFrameBytes, d.MaxFrameBytes)
	return c
}

// Service owns the realtime state of one process: the mailbox registry, the
// broadcast bus, the delivery tracker and every live socket session.
// Construct it with New and release it with Close.
type Service struct {
	cfg           Config
	fanout        *Fanout
	registry      *Registry
	bus           Broadcaster
	tracker       *Tracker
	identity      IdentityResolver
	conversations ConversationStore
	notifier      Notifier
	presence      Presence
	throttle      Throttle
	log           *slog.Logger
	upgrader      websocket.Upgrader
	slots         chan struct{}

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// Option configures a Service.
type Option func(*Service)

// WithConfig replaces DefaultConfig. Zero fields keep their defaults;
// MaxConnections <= 0 disables the ceiling.
func WithConfig(cfg Config) Option {
	return func(s *Service) { s.cfg = cfg }
}

// WithLogger sets the service logger. Nil keeps the discarding default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithNotifier enables new-message notifications and notification read receipts.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithPresence sets the online flag holder.
func WithPresence(p Presence) Option {
	return func(s *Service) {
		if p != nil {
			s.presence = p
		}
	}
}

// WithThrottle limits inbound chat messages.
func WithThrottle(t Throttle) Option {
	return func(s *Service) { s.throttle = t }
}

// New builds a Service around fanout. deliveries backs the delivery tracker.
func New(fanout *Fanout, identity IdentityResolver, conversations ConversationStore, deliveries DeliveryStore, opts ...Option) *Service {
	svc := &Service{
		cfg:           DefaultConfig(),
		fanout:        fanout,
		registry:      fanout.Registry(),
		bus:           fanout.Bus(),
		identity:      identity,
		conversations: conversations,
		presence:      noopPresence{},
		log:           logger.Discard(),
		sessions:      make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.cfg = svc.cfg.withDefaults()
	svc.log = svc.log.With(logger.Component("realtime"))
	svc.tracker = NewTracker(deliveries, conversations, svc.bus, WithTrackerLogger(svc.log))
	svc.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(svc.cfg.AllowedOrigins),
	}
	if svc.cfg.MaxConnections > 0 {
		svc.slots = make(chan struct{}, svc.cfg.MaxConnections)
	}
	return svc
}

// Publish queues an event for the user's stream. See Fanout.Publish.
func (svc *Service) Publish(userID int64, kind string, payload Payload) bool {
	return svc.fanout.Publish(userID, kind, payload)
}

// Broadcast sends an event to a socket group. See Fanout.Broadcast.
func (svc *Service) Broadcast(ctx context.Context, groupID, kind string, payload Payload) int {
	return svc.fanout.Broadcast(ctx, groupID, kind, payload)
}

// Tracker returns the delivery tracker behind the ack endpoints.
func (svc *Service) Tracker() *Tracker   { return svc.tracker }
func (svc *Service) Registry() *Registry { return svc.registry }

// SessionCount reports the number of live socket sessions.
func (svc *Service) SessionCount() int {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return len(svc.sessions)
}

func (svc *Service) track(s *Session) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.closed {
		return ErrServiceClosed
	}
	svc.sessions[s.ID()] = s
	return nil
}

func (svc *Service) untrack(s *Session) {
	svc.mu.Lock()
	delete(svc.sessions, s.ID())
	svc.mu.Unlock()
}

func (svc *Service) acquire() bool {
	if svc.slots == nil {
		return true
	}
	select {
	case svc.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (svc *Service) release() {
	if svc.slots != nil {
		<-svc.slots
	}
}

func (svc *Service) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, svc.cfg.PersistTimeout)
}

// Close shuts every live session with a service-restart close frame, then
// clears the bus and the mailbox registry. It waits for sessions to finish
// teardown or for ctx to expire.
func (svc *Service) Close(ctx context.Context) error {
	svc.mu.Lock()
	svc.closed = true
	sessions := lo.Values(svc.sessions)
	svc.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.teardown(CloseServiceRestart, closeReason(CloseServiceRestart))
		}()
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if b, ok := svc.bus.(interface{ Close() }); ok {
		b.Close()
	}
	svc.registry.Close()
	svc.log.LogAttrs(ctx, slog.LevelInfo, "realtime service closed", logger.Count("sessions", len(sessions)))
	return err
}

func (svc *Service) serveSocket(w http.ResponseWriter, r *http.Request, ch Channel) {
	if !svc.acquire() {
		writeJSONError(w, http.StatusServiceUnavailable, "too many connections")
		return
	}
	defer svc.release()

	// Accept first: failures past this point are close frames, because some
	// hosting edges drop close frames sent before the upgrade completes.
	conn, err := svc.upgrader.Upgrade(w, r, nil)
	if err != nil {
		svc.log.LogAttrs(r.Context(), slog.LevelDebug, "websocket upgrade failed", logger.Error(err))
		return
	}

	s := newSession(r.Context(), svc, conn, ch)
	s.run(r.URL.Query().Get("token"))
}
