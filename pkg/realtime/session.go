package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/dmitrymomot/marketpulse/pkg/logger"
)

// Channel defines what a socket endpoint joins and which inbound kinds it accepts.
type Channel interface {
	Name() string
	// Groups authorizes userID and returns the groups the session joins.
	Groups(ctx context.Context, userID int64) ([]string, error)
	// Handle processes one inbound frame of an active session.
	Handle(ctx context.Context, s *Session, f Frame) error
}

// Session is one accepted socket connection. It is a Handle of every group it
// joined while Active.
type Session struct {
	id      string
	svc     *Service
	channel Channel
	conn    *websocket.Conn
	fsm     *Lifecycle
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	userID   atomic.Int64
	lastPong atomic.Int64
	dead     atomic.Bool

	mu            sync.Mutex
	groups        map[string]struct{}
	out           chan Envelope
	outClosed     bool
	writerStarted bool
	online        bool
	beat          *heartbeat

	writerDone chan struct{}
	closeOnce  sync.Once
	closed     chan struct{}
}

func newSession(ctx context.Context, svc *Service, conn *websocket.Conn, ch Channel) *Session {
	s := &Session{
		id:         uuid.NewString(),
		svc:        svc,
		channel:    ch,
		conn:       conn,
		groups:     make(map[string]struct{}),
		out:        make(chan Envelope, svc.cfg.OutboundBuffer),
		writerDone: make(chan struct{}),
		closed:     make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.log = svc.log.With(
		logger.SessionID(s.id),
		logger.Component(ch.Name()),
		logger.Transport("websocket"),
	)
	s.fsm = NewLifecycle(s.onTransition)
	return s
}

// ID, UserID, State and Done are safe to call from any goroutine.
// UserID is zero until the token is resolved.
func (s *Session) ID() string            { return s.id }
func (s *Session) UserID() int64         { return s.userID.Load() }
func (s *Session) State() SessionState   { return s.fsm.Current() }
func (s *Session) Done() <-chan struct{} { return s.closed }

// Groups returns the sorted ids of the groups the session believes it joined.
func (s *Session) Groups() []string {
	s.mu.Lock()
	ids := lo.Keys(s.groups)
	s.mu.Unlock()
	slices.Sort(ids)
	return ids
}

// LastPong returns when the client last answered a ping, zero if never.
func (s *Session) LastPong() time.Time {
	if n := s.lastPong.Load(); n > 0 {
		return time.Unix(0, n)
	}
	return time.Time{}
}

// Deliver queues env for the writer. It never blocks: a closed session or a
// full queue fails with ErrTransport, and a full queue also drops the
// connection because the client stopped reading.
func (s *Session) Deliver(env Envelope) error {
	if s.dead.Load() {
		return ErrTransport
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outClosed {
		return ErrTransport
	}
	select {
	case s.out <- env:
		return nil
	default:
		s.dead.Store(true)
		_ = s.conn.Close()
		return fmt.Errorf("%w: outbound queue full", ErrTransport)
	}
}

// Reply sends an envelope to this client only.
func (s *Session) Reply(kind string, payload Payload) error {
	return s.Deliver(NewEnvelope(kind, payload))
}

func (s *Session) replyError(code, message string) {
	_ = s.Reply(KindError, Payload{"code": code, "message": message})
}

// Close tears the session down with a normal closure frame.
func (s *Session) Close() {
	s.teardown(websocket.CloseNormalClosure, "")
}

// run drives the session from accept to Closed or Rejected. The socket has
// already been accepted, so every failure is reported with a close frame.
func (s *Session) run(token string) {
	defer s.cancel()

	if _, err := s.fsm.Fire(EventOpen); err != nil {
		return
	}

	userID, err := s.svc.identity.Resolve(s.ctx, token)
	if err != nil {
		s.reject(errors.Join(ErrAuthentication, err))
		return
	}
	s.userID.Store(userID)
	s.log = s.log.With(logger.UserID(userID))

	if _, err := s.fsm.Fire(EventAuthenticated); err != nil {
		s.teardown(0, "")
		return
	}

	if err := s.join(); err != nil {
		s.reject(err)
		return
	}

	if _, err := s.fsm.Fire(EventJoined); err != nil {
		// closed while joining
		s.leaveAll()
		s.teardown(0, "")
		return
	}
	if !s.activate() {
		s.leaveAll()
		return
	}

	s.readLoop()
	s.teardown(0, "")
}

func (s *Session) join() error {
	groups, err := s.channel.Groups(s.ctx, s.UserID())
	if err != nil {
		return err
	}
	if err := s.svc.track(s); err != nil {
		return err
	}
	for _, g := range groups {
		s.mu.Lock()
		s.groups[g] = struct{}{}
		s.mu.Unlock()
		if err := s.svc.bus.Join(g, s); err != nil {
			s.leaveAll()
			return err
		}
	}
	return nil
}

func (s *Session) activate() bool {
	s.mu.Lock()
	if s.outClosed {
		s.mu.Unlock()
		return false
	}
	s.writerStarted = true
	go s.writeLoop()
	s.beat = startHeartbeat(s.svc.cfg.HeartbeatInterval, s.ping)
	s.mu.Unlock()

	if err := s.svc.presence.Connect(s.ctx, s.UserID()); err != nil {
		s.log.LogAttrs(s.ctx, slog.LevelWarn, "presence connect failed", logger.Error(err))
	} else {
		s.mu.Lock()
		closed := s.outClosed
		s.online = !closed
		s.mu.Unlock()
		if closed {
			// teardown ran while Connect was in flight and saw no flag to release
			s.releasePresence()
		}
	}
	s.log.LogAttrs(s.ctx, slog.LevelDebug, "session active",
		slog.Any("groups", s.Groups()),
	)
	return true
}

// ping runs on every heartbeat tick. It also keeps the presence flag from
// expiring while the session stays open.
func (s *Session) ping() {
	_ = s.Deliver(NewEnvelope(KindPing, Payload{"timestamp": time.Now().UTC()}))

	s.mu.Lock()
	online := s.online
	s.mu.Unlock()
	if !online {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.svc.cfg.PersistTimeout)
	defer cancel()
	if err := s.svc.presence.Refresh(ctx, s.UserID()); err != nil {
		s.log.LogAttrs(ctx, slog.LevelWarn, "presence refresh failed", logger.Error(err))
	}
}

// releasePresence drops the online flag. The request context may already be gone.
func (s *Session) releasePresence() {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), s.svc.cfg.PersistTimeout)
	defer cancel()
	if err := s.svc.presence.Disconnect(ctx, s.UserID()); err != nil {
		s.log.LogAttrs(ctx, slog.LevelWarn, "presence release failed", logger.Error(err))
	}
}

func (s *Session) onTransition(from, to SessionState, event SessionEvent) {
	if from == StateActive {
		s.stopHeartbeat()
	}
	s.log.LogAttrs(context.Background(), slog.LevelDebug, "session transition",
		slog.String("from", string(from)),
		slog.String("to", string(to)),
		slog.String("event", string(event)),
	)
}

func (s *Session) stopHeartbeat() {
	s.mu.Lock()
	b := s.beat
	s.beat = nil
	s.mu.Unlock()
	b.Stop()
}

func (s *Session) readLoop() {
	s.conn.SetReadLimit(s.svc.cfg.MaxFrameBytes)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.dead.Load() && websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				s.log.LogAttrs(s.ctx, slog.LevelInfo, "socket closed unexpectedly", logger.Error(err))
			}
			return
		}
		s.handle(data)
	}
}

func (s *Session) handle(data []byte) {
	frame, err := DecodeFrame(data)
	if err != nil {
		s.log.LogAttrs(s.ctx, slog.LevelWarn, "ignoring malformed frame", logger.Error(err))
		return
	}
	if frame.Type == KindPong {
		s.lastPong.Store(time.Now().UnixNano())
		return
	}
	if !s.fsm.Is(StateActive) {
		return
	}
	if err := s.channel.Handle(s.ctx, s, frame); err != nil {
		s.logInbound(frame.Type, err)
	}
}

func (s *Session) logInbound(kind string, err error) {
	level := slog.LevelError
	msg := "inbound event failed"
	switch {
	case errors.Is(err, ErrMalformedInput):
		level, msg = slog.LevelWarn, "ignoring malformed frame"
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrDuplicateMessage):
		level, msg = slog.LevelDebug, "inbound message throttled"
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAuthorization):
		level, msg = slog.LevelInfo, "inbound event skipped"
	}
	s.log.LogAttrs(s.ctx, level, msg, logger.Kind(kind), logger.Error(err))
}

func (s *Session) writeLoop() {
	defer close(s.writerDone)
	for env := range s.out {
		if s.dead.Load() {
			continue
		}
		data, err := EncodeFrame(env)
		if err != nil {
			s.log.LogAttrs(s.ctx, slog.LevelError, "encode outbound frame", logger.Kind(env.Kind()), logger.Error(err))
			continue
		}
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.svc.cfg.WriteTimeout))
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.dead.Store(true)
			_ = s.conn.Close()
		}
	}
}

func (s *Session) leaveAll() {
	for _, g := range s.Groups() {
		s.svc.bus.Leave(g, s)
	}
}

func (s *Session) writeClose(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil &&
		!errors.Is(err, websocket.ErrCloseSent) {
		s.log.LogAttrs(s.ctx, slog.LevelDebug, "close frame not sent", logger.Error(err))
	}
}

// reject ends a session that never became active.
func (s *Session) reject(err error) {
	code := closeCodeFor(err)
	s.closeOnce.Do(func() {
		s.leaveAll()
		s.mu.Lock()
		s.outClosed = true
		close(s.out)
		s.mu.Unlock()

		s.writeClose(code, closeReason(code))
		_ = s.conn.Close()
		_, _ = s.fsm.Fire(EventReject)
		s.svc.untrack(s)
		s.cancel()
		close(s.closed)
	})
	s.log.LogAttrs(s.ctx, slog.LevelInfo, "session rejected", logger.CloseCode(code), logger.Error(err))
}

// teardown releases everything the session holds. A non-zero code sends a
// close frame first. Only the first call has an effect.
func (s *Session) teardown(code int, reason string) {
	s.closeOnce.Do(func() {
		_, _ = s.fsm.Fire(EventClose)

		s.mu.Lock()
		s.outClosed = true
		close(s.out)
		started := s.writerStarted
		beat := s.beat
		s.beat = nil
		online := s.online
		s.online = false
		s.mu.Unlock()

		beat.Stop()
		s.leaveAll()
		if online {
			s.releasePresence()
		}
		if started {
			<-s.writerDone
		}
		if code != 0 {
			s.writeClose(code, reason)
		}
		_ = s.conn.Close()
		s.cancel()
		_, _ = s.fsm.Fire(EventClosed)
		s.svc.untrack(s)
		close(s.closed)
		s.log.LogAttrs(context.Background(), slog.LevelDebug, "session closed")
	})
}

func closeReason(code int) string {
	switch code {
	case CloseAuthenticationFailed:
		return "authentication failed"
	case CloseAuthorizationFailed:
		return "not authorized"
	case CloseServiceRestart:
		return "service restarting"
	default:
		return ""
	}
}
