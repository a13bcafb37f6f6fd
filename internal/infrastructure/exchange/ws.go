package exchange

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SessionState tracks the WebSocket connection lifecycle.
type SessionState string

const (
	StateDisconnected SessionState = "disconnected"
	StateConnecting   SessionState = "connecting"
	StateOpen         SessionState = "open"
	StateReconnecting SessionState = "reconnecting"
)

const (
	defaultHandshakeTimeout  = 10 * time.Second
	defaultPingInterval      = 20 * time.Second
	defaultReadTimeout       = 60 * time.Second
	defaultMaxReconnectDelay = 60 * time.Second
	wsReconnectBase          = time.Second
)

// FrameHandler receives every inbound frame for one channel.
type FrameHandler func(channel string, frame []byte)

// SessionConfig carries the exchange-specific pieces of a WS session: the
// keepalive frame, pong recognition, channel extraction, the signed login
// payload for private sessions and the post-reconnect reconciliation hook.
type SessionConfig struct {
	Exchange string
	Name     string
	URL      string

	HandshakeTimeout  time.Duration
	PingInterval      time.Duration
	ReadTimeout       time.Duration
	MaxReconnectDelay time.Duration

	// PingMessage is the exchange keepalive frame ("ping" text,
	// {"method":"ping"} JSON, ...).
	PingMessage []byte
	// IsKeepalive recognizes pong/keepalive responses; matching frames are
	// dropped before reaching any handler.
	IsKeepalive func(frame []byte) bool
	// ChannelOf extracts the dispatch channel from a frame. Frames with no
	// channel are dropped.
	ChannelOf func(frame []byte) string
	// Login, when set, produces the signed authentication payload sent
	// before anything else on a private session.
	Login func(ts time.Time) ([]byte, error)
	// Reconcile runs after every (re)connect of a private session. It
	// re-fetches authoritative state over REST instead of replaying
	// WS-received state blindly.
	Reconcile func(ctx context.Context)

	Logger *zap.Logger
}

// Session manages one WebSocket connection: connect, keepalive,
// deduplicated subscription replay, exponential-backoff reconnection and
// per-channel fan-out dispatch.
type Session struct {
	cfg SessionConfig

	mu    sync.RWMutex
	conn  *websocket.Conn
	state SessionState
	subs  map[string][]byte // keyed by serialized payload, replayed on reconnect

	handlerMu sync.RWMutex
	handlers  map[string][]FrameHandler

	writeMu     sync.Mutex
	manualClose atomic.Bool
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = defaultMaxReconnectDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Session{
		cfg:      cfg,
		state:    StateDisconnected,
		subs:     make(map[string][]byte),
		handlers: make(map[string][]FrameHandler),
	}
}

// Connect dials the endpoint, authenticates when configured, replays every
// registered subscription and starts the read/keepalive loops.
func (s *Session) Connect(ctx context.Context) error {
	if s.manualClose.Load() {
		return fmt.Errorf("%s/%s: session closed", s.cfg.Exchange, s.cfg.Name)
	}

	s.setState(StateConnecting)

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("%s/%s: dial: %w", s.cfg.Exchange, s.cfg.Name, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateOpen
	s.mu.Unlock()

	// Private sessions authenticate before anything else is sent.
	if s.cfg.Login != nil {
		payload, err := s.cfg.Login(time.Now())
		if err != nil {
			s.closeConn(conn)
			return fmt.Errorf("%s/%s: build login: %w", s.cfg.Exchange, s.cfg.Name, err)
		}
		if err := s.write(conn, payload); err != nil {
			s.closeConn(conn)
			return fmt.Errorf("%s/%s: send login: %w", s.cfg.Exchange, s.cfg.Name, err)
		}
	}

	if err := s.replaySubscriptions(conn); err != nil {
		s.closeConn(conn)
		return err
	}

	stop := make(chan struct{})
	go s.readLoop(conn, stop)
	go s.pingLoop(conn, stop)

	if s.cfg.Reconcile != nil {
		// Fire-and-forget: callers needing "state is now consistent" must
		// poll the adapter's own accessors.
		go s.cfg.Reconcile(context.Background())
	}

	s.cfg.Logger.Info("ws connected",
		zap.String("exchange", s.cfg.Exchange),
		zap.String("session", s.cfg.Name),
		zap.Int("subscriptions", s.subCount()))
	return nil
}

// Disconnect closes the session and suppresses further reconnection.
func (s *Session) Disconnect() {
	s.manualClose.Store(true)
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.state = StateDisconnected
	s.mu.Unlock()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
}

// Subscribe registers a subscription payload and sends it when connected.
// Payloads are deduplicated by their serialized form, so re-subscribing is
// idempotent and each subscription is replayed exactly once per reconnect.
func (s *Session) Subscribe(payload []byte) error {
	key := string(payload)

	s.mu.Lock()
	if _, exists := s.subs[key]; exists {
		s.mu.Unlock()
		return nil
	}
	s.subs[key] = payload
	conn := s.conn
	open := s.state == StateOpen
	s.mu.Unlock()

	if open && conn != nil {
		return s.write(conn, payload)
	}
	return nil
}

// Unsubscribe removes the tracked subscription and sends the unsubscribe
// envelope when connected.
func (s *Session) Unsubscribe(subPayload, unsubPayload []byte) error {
	s.mu.Lock()
	delete(s.subs, string(subPayload))
	conn := s.conn
	open := s.state == StateOpen
	s.mu.Unlock()

	if open && conn != nil {
		return s.write(conn, unsubPayload)
	}
	return nil
}

// On registers a handler for one channel name. A single frame fans out to
// every handler registered for its channel.
func (s *Session) On(channel string, h FrameHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.handlers[channel] = append(s.handlers[channel], h)
}

// Send writes an arbitrary frame (order entry over WS, auth responses, ...).
func (s *Session) Send(payload []byte) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("%s/%s: not connected", s.cfg.Exchange, s.cfg.Name)
	}
	return s.write(conn, payload)
}

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) replaySubscriptions(conn *websocket.Conn) error {
	s.mu.RLock()
	payloads := make([][]byte, 0, len(s.subs))
	for _, p := range s.subs {
		payloads = append(payloads, p)
	}
	s.mu.RUnlock()

	for _, p := range payloads {
		if err := s.write(conn, p); err != nil {
			return fmt.Errorf("%s/%s: replay subscription: %w", s.cfg.Exchange, s.cfg.Name, err)
		}
	}
	return nil
}

func (s *Session) readLoop(conn *websocket.Conn, stop chan struct{}) {
	defer close(stop)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		_, frame, err := conn.ReadMessage()
		if err != nil {
			s.closeConn(conn)
			if s.manualClose.Load() {
				return
			}
			s.cfg.Logger.Warn("ws read failed",
				zap.String("exchange", s.cfg.Exchange),
				zap.String("session", s.cfg.Name),
				zap.Error(err))
			go s.reconnect()
			return
		}
		s.dispatch(frame)
	}
}

func (s *Session) pingLoop(conn *websocket.Conn, stop chan struct{}) {
	if len(s.cfg.PingMessage) == 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.write(conn, s.cfg.PingMessage); err != nil {
				s.closeConn(conn)
				return
			}
		}
	}
}

func (s *Session) dispatch(frame []byte) {
	if s.cfg.IsKeepalive != nil && s.cfg.IsKeepalive(frame) {
		return
	}
	if s.cfg.ChannelOf == nil {
		return
	}
	channel := s.cfg.ChannelOf(frame)
	if channel == "" {
		return
	}

	s.handlerMu.RLock()
	handlers := make([]FrameHandler, len(s.handlers[channel]))
	copy(handlers, s.handlers[channel])
	s.handlerMu.RUnlock()

	for _, h := range handlers {
		h(channel, frame)
	}
}

// reconnect re-dials with exponential backoff capped at MaxReconnectDelay
// until it succeeds or the session is manually closed.
func (s *Session) reconnect() {
	s.setState(StateReconnecting)

	for attempt := 0; ; attempt++ {
		if s.manualClose.Load() {
			return
		}

		delay := wsReconnectBase << uint(min(attempt, 30))
		if delay > s.cfg.MaxReconnectDelay {
			delay = s.cfg.MaxReconnectDelay
		}
		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HandshakeTimeout)
		err := s.Connect(ctx)
		cancel()
		if err == nil {
			return
		}
		if s.manualClose.Load() {
			return
		}
		s.cfg.Logger.Warn("ws reconnect failed",
			zap.String("exchange", s.cfg.Exchange),
			zap.String("session", s.cfg.Name),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
}

func (s *Session) write(conn *websocket.Conn, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *Session) closeConn(conn *websocket.Conn) {
	_ = conn.Close()
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
		s.state = StateDisconnected
	}
	s.mu.Unlock()
}

func (s *Session) setState(st SessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) subCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
