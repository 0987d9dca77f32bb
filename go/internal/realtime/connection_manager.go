package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/focusroom/go/internal/auth"
)

// State is the lifecycle state of the room connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// TokenTransport selects how the bearer credential reaches the server.
type TokenTransport string

const (
	TokenTransportHeader TokenTransport = "header"
	TokenTransportQuery  TokenTransport = "query"
)

// Config holds configuration for the room connection
type Config struct {
	URL                  string
	TokenTransport       TokenTransport
	PingInterval         time.Duration
	ConnectTimeout       time.Duration
	BackoffBase          time.Duration
	MaxReconnectAttempts int
	WriteTimeout         time.Duration
}

// DefaultConfig returns the default connection configuration
func DefaultConfig() Config {
	return Config{
		URL:                  "wss://api.monitus.io/ws",
		TokenTransport:       TokenTransportHeader,
		PingInterval:         54 * time.Second, // server idle timeout is 60s
		ConnectTimeout:       10 * time.Second,
		BackoffBase:          time.Second,
		MaxReconnectAttempts: 5,
		WriteTimeout:         10 * time.Second,
	}
}

// Handler receives inbound messages.
type Handler func(msg Message)

// ReconnectHandler is called after an automatic reconnect re-opens the channel.
type ReconnectHandler func(roomID string)

// Status is a point-in-time view of the manager.
type Status struct {
	State             string `json:"state"`
	RoomID            string `json:"room_id,omitempty"`
	ConnectionID      string `json:"connection_id,omitempty"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
	LastError         string `json:"last_error,omitempty"`
}

type connectAttempt struct {
	roomID string
	done   chan struct{}
	once   sync.Once
	err    error
}

func newConnectAttempt(roomID string) *connectAttempt {
	return &connectAttempt{roomID: roomID, done: make(chan struct{})}
}

func (a *connectAttempt) finish(err error) {
	a.once.Do(func() {
		a.err = err
		close(a.done)
	})
}

func (a *connectAttempt) wait(ctx context.Context) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type handlerEntry struct {
	id uint64
	fn Handler
}

type reconnectEntry struct {
	id uint64
	fn ReconnectHandler
}

// ConnectionManager keeps one live channel bound to one room, recovering from
// credential expiry and transient network loss.
//
// Every Connect and Disconnect bumps the generation; timers, pumps and dials
// started under an older generation discard their results.
type ConnectionManager struct {
	config  Config
	dialer  Dialer
	creds   auth.Provider
	clock   clockwork.Clock
	metrics MetricsCollector

	mu             sync.Mutex
	state          State
	roomID         string
	conn           Conn
	connID         string
	generation     uint64
	attempts       int
	authRetried    bool
	lastErr        error
	inflight       *connectAttempt
	runCancel      context.CancelFunc
	runCtx         context.Context
	reconnectTimer clockwork.Timer
	heartbeat      clockwork.Ticker
	heartbeatStop  chan struct{}

	writeMu sync.Mutex

	handlersMu        sync.RWMutex
	nextHandlerID     uint64
	handlers          []handlerEntry
	reconnectHandlers []reconnectEntry
}

type Option func(*ConnectionManager)

func WithClock(clock clockwork.Clock) Option {
	return func(cm *ConnectionManager) { cm.clock = clock }
}

func WithDialer(dialer Dialer) Option {
	return func(cm *ConnectionManager) { cm.dialer = dialer }
}

func WithMetrics(metrics MetricsCollector) Option {
	return func(cm *ConnectionManager) { cm.metrics = metrics }
}

// NewConnectionManager creates a new room connection manager
func NewConnectionManager(config Config, creds auth.Provider, opts ...Option) *ConnectionManager {
	cm := &ConnectionManager{
		config:  config,
		creds:   creds,
		dialer:  NewWebsocketDialer(),
		clock:   clockwork.NewRealClock(),
		metrics: &NoOpMetricsCollector{},
	}
	for _, opt := range opts {
		opt(cm)
	}
	return cm
}

// Connect opens the channel for roomID. It returns immediately when already
// open for roomID, joins an in-flight attempt for the same room, and closes
// any connection to a different room first.
func (cm *ConnectionManager) Connect(ctx context.Context, roomID string) error {
	if roomID == "" {
		return errors.New("room id is required")
	}

	cm.mu.Lock()
	if cm.roomID == roomID {
		if cm.state == StateOpen {
			cm.mu.Unlock()
			return nil
		}
		if a := cm.inflight; a != nil && a.roomID == roomID {
			cm.mu.Unlock()
			return a.wait(ctx)
		}
	}

	if cm.state != StateIdle {
		log.Info().
			Str("room_id", cm.roomID).
			Str("next_room_id", roomID).
			Msg("closing previous room connection")
	}
	old := cm.resetLocked()
	runCtx, runCancel := context.WithCancel(context.Background())
	cm.runCtx, cm.runCancel = runCtx, runCancel
	gen := cm.generation
	cm.state = StateConnecting
	cm.roomID = roomID
	cm.attempts = 0
	cm.authRetried = false
	cm.lastErr = nil
	a := newConnectAttempt(roomID)
	cm.inflight = a
	cm.mu.Unlock()

	if old != nil {
		cm.closeConn(old)
	}

	// The dial is bound to both the caller and the manager.
	dialCtx, cancelDial := context.WithCancel(ctx)
	defer cancelDial()
	stop := context.AfterFunc(runCtx, cancelDial)
	defer stop()

	cm.metrics.RecordConnectAttempt(roomID)
	started := cm.clock.Now()
	conn, err := cm.openWithTimeout(dialCtx, roomID, false, true)

	cm.mu.Lock()
	if cm.inflight == a {
		cm.inflight = nil
	}
	if gen != cm.generation {
		cm.mu.Unlock()
		if conn != nil {
			cm.closeConn(conn)
		}
		a.finish(ErrDisconnected)
		return ErrDisconnected
	}
	if err != nil {
		cm.abandonLocked(err)
		cm.mu.Unlock()
		cm.metrics.RecordConnectFailed(roomID, err)
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to connect to room")
		a.finish(err)
		return err
	}
	cm.activateLocked(conn, false)
	cm.mu.Unlock()

	cm.metrics.RecordConnected(roomID, cm.clock.Since(started))
	a.finish(nil)
	return nil
}

// Disconnect tears down the channel and every pending timer. No automatic
// reconnect happens until the next Connect.
func (cm *ConnectionManager) Disconnect() {
	cm.mu.Lock()
	roomID := cm.roomID
	cm.state = StateClosing
	cm.roomID = ""
	conn := cm.resetLocked()
	gen := cm.generation
	cm.mu.Unlock()

	if conn != nil {
		cm.closeConn(conn)
	}

	cm.mu.Lock()
	if gen == cm.generation {
		cm.state = StateIdle
		cm.attempts = 0
		cm.authRetried = false
		cm.lastErr = nil
	}
	cm.mu.Unlock()

	if roomID != "" {
		cm.metrics.RecordDisconnected(roomID, "manual")
		log.Info().Str("room_id", roomID).Msg("room connection closed")
	}
}

// Send writes msg if the channel is open. Otherwise the message is dropped
// and ErrNotConnected is returned; there is no retry queue.
func (cm *ConnectionManager) Send(msg Message) error {
	cm.mu.Lock()
	conn, state := cm.conn, cm.state
	cm.mu.Unlock()

	if state != StateOpen || conn == nil {
		log.Warn().
			Str("type", string(msg.Type)).
			Str("state", state.String()).
			Msg("connection not open, dropping outbound message")
		cm.metrics.RecordMessageDropped(string(msg.Type))
		return ErrNotConnected
	}
	return cm.writeMessage(conn, msg)
}

// OnMessage registers h and returns a function that unregisters it.
func (cm *ConnectionManager) OnMessage(h Handler) func() {
	cm.handlersMu.Lock()
	cm.nextHandlerID++
	id := cm.nextHandlerID
	cm.handlers = append(cm.handlers, handlerEntry{id: id, fn: h})
	cm.handlersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			cm.handlersMu.Lock()
			defer cm.handlersMu.Unlock()
			for i, e := range cm.handlers {
				if e.id == id {
					cm.handlers = append(cm.handlers[:i:i], cm.handlers[i+1:]...)
					return
				}
			}
		})
	}
}

// OnReconnect registers h for automatic reconnects and returns an unregister func.
func (cm *ConnectionManager) OnReconnect(h ReconnectHandler) func() {
	cm.handlersMu.Lock()
	cm.nextHandlerID++
	id := cm.nextHandlerID
	cm.reconnectHandlers = append(cm.reconnectHandlers, reconnectEntry{id: id, fn: h})
	cm.handlersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			cm.handlersMu.Lock()
			defer cm.handlersMu.Unlock()
			for i, e := range cm.reconnectHandlers {
				if e.id == id {
					cm.reconnectHandlers = append(cm.reconnectHandlers[:i:i], cm.reconnectHandlers[i+1:]...)
					return
				}
			}
		})
	}
}

func (cm *ConnectionManager) State() State {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.state
}

func (cm *ConnectionManager) IsConnected() bool {
	return cm.State() == StateOpen
}

// CurrentRoomID returns the bound room, or "" when none.
func (cm *ConnectionManager) CurrentRoomID() string {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.roomID
}

func (cm *ConnectionManager) ReconnectAttempts() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.attempts
}

// LastError returns the failure that moved the manager out of Open, if any.
func (cm *ConnectionManager) LastError() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.lastErr
}

func (cm *ConnectionManager) Status() Status {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	s := Status{
		State:             cm.state.String(),
		RoomID:            cm.roomID,
		ReconnectAttempts: cm.attempts,
	}
	if cm.state == StateOpen {
		s.ConnectionID = cm.connID
	}
	if cm.lastErr != nil {
		s.LastError = cm.lastErr.Error()
	}
	return s
}

// openWithTimeout bounds a whole open, credential fetches and any
// re-authenticated second dial included, by ConnectTimeout.
func (cm *ConnectionManager) openWithTimeout(ctx context.Context, roomID string, refreshFirst, allowAuthRetry bool) (Conn, error) {
	openCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var timedOut atomic.Bool
	timer := cm.clock.AfterFunc(cm.config.ConnectTimeout, func() {
		timedOut.Store(true)
		cancel()
	})
	defer timer.Stop()

	conn, err := cm.open(openCtx, roomID, refreshFirst, allowAuthRetry)
	if err != nil && timedOut.Load() {
		return nil, fmt.Errorf("%w after %s", ErrConnectTimeout, cm.config.ConnectTimeout)
	}
	return conn, err
}

// open performs one transport open. With allowAuthRetry, a credential
// rejection forces one refresh and one immediate retry.
func (cm *ConnectionManager) open(ctx context.Context, roomID string, refreshFirst, allowAuthRetry bool) (Conn, error) {
	var token string
	var err error
	if refreshFirst {
		token, err = cm.refresh(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
		}
	} else {
		token, err = cm.creds.Token(ctx)
		if err != nil {
			if errors.Is(err, auth.ErrNoCredential) {
				return nil, fmt.Errorf("%w: %w", ErrAuthUnavailable, err)
			}
			return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
		}
	}

	conn, err := cm.dial(ctx, roomID, token)
	if err == nil {
		return conn, nil
	}
	if !isAuthFailure(err) {
		return nil, err
	}
	if !allowAuthRetry {
		return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}

	log.Warn().Err(err).Str("room_id", roomID).Msg("connection rejected credential, refreshing and retrying once")
	token, err = cm.refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}
	conn, err = cm.dial(ctx, roomID, token)
	if err != nil {
		if isAuthFailure(err) {
			return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
		}
		return nil, err
	}
	return conn, nil
}

func (cm *ConnectionManager) refresh(ctx context.Context) (string, error) {
	token, err := cm.creds.ForceRefresh(ctx)
	cm.metrics.RecordAuthRefresh(err == nil)
	return token, err
}

func (cm *ConnectionManager) dial(ctx context.Context, roomID, token string) (Conn, error) {
	endpoint, header, err := cm.endpoint(roomID, token)
	if err != nil {
		return nil, err
	}

	return cm.dialer.Dial(ctx, endpoint, header)
}

func (cm *ConnectionManager) endpoint(roomID, token string) (string, http.Header, error) {
	u, err := url.Parse(cm.config.URL)
	if err != nil {
		return "", nil, fmt.Errorf("invalid websocket url: %w", err)
	}

	q := u.Query()
	q.Set("room_id", roomID)
	header := http.Header{}
	switch cm.config.TokenTransport {
	case TokenTransportQuery:
		q.Set("token", token)
	default:
		header.Set("Authorization", "Bearer "+token)
	}
	u.RawQuery = q.Encode()

	return u.String(), header, nil
}

// activateLocked installs conn as the open channel and starts its pumps.
// Any open but the re-authenticating one restores the auth retry allowance.
func (cm *ConnectionManager) activateLocked(conn Conn, afterAuthRetry bool) {
	cm.conn = conn
	cm.connID = uuid.New().String()
	cm.state = StateOpen
	cm.attempts = 0
	cm.lastErr = nil
	if !afterAuthRetry {
		cm.authRetried = false
	}
	cm.startHeartbeatLocked(conn)
	go cm.readPump(cm.generation, conn)

	log.Info().
		Str("room_id", cm.roomID).
		Str("connection_id", cm.connID).
		Msg("room connection established")
}

// resetLocked invalidates everything started under the current generation
// and returns the detached conn for the caller to close outside the lock.
func (cm *ConnectionManager) resetLocked() Conn {
	cm.generation++
	if cm.reconnectTimer != nil {
		cm.reconnectTimer.Stop()
		cm.reconnectTimer = nil
	}
	cm.stopHeartbeatLocked()
	if cm.runCancel != nil {
		cm.runCancel()
		cm.runCancel = nil
	}
	if a := cm.inflight; a != nil {
		cm.inflight = nil
		a.finish(ErrDisconnected)
	}
	conn := cm.conn
	cm.conn = nil
	return conn
}

// abandonLocked gives up on the room until the next explicit Connect.
func (cm *ConnectionManager) abandonLocked(err error) {
	cm.state = StateIdle
	cm.roomID = ""
	cm.lastErr = err
	if cm.runCancel != nil {
		cm.runCancel()
		cm.runCancel = nil
	}
}

func (cm *ConnectionManager) startHeartbeatLocked(conn Conn) {
	ticker := cm.clock.NewTicker(cm.config.PingInterval)
	stop := make(chan struct{})
	cm.heartbeat, cm.heartbeatStop = ticker, stop

	go func() {
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				if err := cm.writeMessage(conn, PingMessage()); err != nil {
					log.Warn().Err(err).Msg("failed to send heartbeat")
				}
			}
		}
	}()
}

func (cm *ConnectionManager) stopHeartbeatLocked() {
	if cm.heartbeat == nil {
		return
	}
	cm.heartbeat.Stop()
	close(cm.heartbeatStop)
	cm.heartbeat, cm.heartbeatStop = nil, nil
}

func (cm *ConnectionManager) readPump(gen uint64, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			cm.handleClose(gen, conn, err)
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Msg("failed to decode room message")
			continue
		}

		cm.markDelivered(gen, conn)
		cm.metrics.RecordMessageReceived(string(msg.Type))
		cm.dispatch(msg)
	}
}

// markDelivered restores the auth-retry allowance once the server has
// accepted the credential on this connection.
func (cm *ConnectionManager) markDelivered(gen uint64, conn Conn) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if gen == cm.generation && cm.conn == conn {
		cm.authRetried = false
	}
}

func (cm *ConnectionManager) dispatch(msg Message) {
	cm.handlersMu.RLock()
	handlers := make([]Handler, len(cm.handlers))
	for i, e := range cm.handlers {
		handlers[i] = e.fn
	}
	cm.handlersMu.RUnlock()

	for _, h := range handlers {
		cm.invoke(h, msg)
	}
}

func (cm *ConnectionManager) invoke(h Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("type", string(msg.Type)).
				Msg("message handler panicked")
		}
	}()
	h(msg)
}

func (cm *ConnectionManager) handleClose(gen uint64, conn Conn, cause error) {
	cm.mu.Lock()
	if gen != cm.generation || cm.conn != conn {
		cm.mu.Unlock()
		return
	}
	cm.stopHeartbeatLocked()
	cm.conn = nil
	roomID := cm.roomID
	authFailure := isAuthFailure(cause)

	switch {
	case authFailure && cm.authRetried:
		cm.abandonLocked(fmt.Errorf("%w: %w", ErrAuthenticationFailed, cause))
		cm.mu.Unlock()
		conn.Close()
		cm.metrics.RecordDisconnected(roomID, "auth")
		cm.metrics.RecordReconnectAbandoned(roomID)
		log.Error().Err(cause).Str("room_id", roomID).Msg("room connection rejected credential again, re-authentication required")

	case authFailure:
		cm.authRetried = true
		cm.state = StateReconnecting
		cm.lastErr = cause
		cm.mu.Unlock()
		conn.Close()
		cm.metrics.RecordDisconnected(roomID, "auth")
		log.Warn().Err(cause).Str("room_id", roomID).Msg("room connection closed with auth failure, refreshing credential")
		cm.reconnect(gen, roomID, true)

	default:
		cm.scheduleReconnectLocked(roomID, cause)
		cm.mu.Unlock()
		conn.Close()
		cm.metrics.RecordDisconnected(roomID, "transport")
	}
}

func (cm *ConnectionManager) scheduleReconnectLocked(roomID string, cause error) {
	if cm.attempts >= cm.config.MaxReconnectAttempts {
		log.Error().
			Err(cause).
			Str("room_id", roomID).
			Int("attempts", cm.attempts).
			Msg("giving up on room connection")
		cm.metrics.RecordReconnectAbandoned(roomID)
		cm.abandonLocked(fmt.Errorf("%w: %w", ErrReconnectExhausted, cause))
		return
	}

	delay := cm.config.BackoffBase << cm.attempts
	cm.attempts++
	cm.state = StateReconnecting
	cm.lastErr = cause
	gen := cm.generation
	cm.reconnectTimer = cm.clock.AfterFunc(delay, func() {
		cm.reconnect(gen, roomID, false)
	})

	log.Warn().
		Err(cause).
		Str("room_id", roomID).
		Int("attempt", cm.attempts).
		Dur("delay", delay).
		Msg("room connection lost, reconnect scheduled")
	cm.metrics.RecordReconnectScheduled(roomID, cm.attempts, delay)
}

// reconnect re-opens the channel for an automatic recovery. After an auth
// close it refreshes first and does not retry a second rejection.
func (cm *ConnectionManager) reconnect(gen uint64, roomID string, afterAuthFailure bool) {
	cm.mu.Lock()
	if gen != cm.generation || cm.state != StateReconnecting {
		cm.mu.Unlock()
		return
	}
	cm.reconnectTimer = nil
	ctx := cm.runCtx
	allowAuthRetry := !cm.authRetried
	attempt := cm.attempts
	cm.mu.Unlock()

	log.Info().
		Str("room_id", roomID).
		Int("attempt", attempt).
		Bool("reauth", afterAuthFailure).
		Msg("reconnecting to room")

	cm.metrics.RecordConnectAttempt(roomID)
	started := cm.clock.Now()
	conn, err := cm.openWithTimeout(ctx, roomID, afterAuthFailure, allowAuthRetry)

	cm.mu.Lock()
	if gen != cm.generation {
		cm.mu.Unlock()
		if conn != nil {
			cm.closeConn(conn)
		}
		return
	}
	if err != nil {
		if errors.Is(err, ErrAuthenticationFailed) || errors.Is(err, ErrAuthUnavailable) {
			cm.abandonLocked(err)
			cm.mu.Unlock()
			cm.metrics.RecordReconnectAbandoned(roomID)
			log.Error().Err(err).Str("room_id", roomID).Msg("reconnect failed authentication, re-authentication required")
			return
		}
		cm.scheduleReconnectLocked(roomID, err)
		cm.mu.Unlock()
		return
	}
	cm.activateLocked(conn, afterAuthFailure)
	cm.mu.Unlock()

	cm.metrics.RecordConnected(roomID, cm.clock.Since(started))
	cm.notifyReconnected(roomID)
}

func (cm *ConnectionManager) notifyReconnected(roomID string) {
	cm.handlersMu.RLock()
	handlers := make([]ReconnectHandler, len(cm.reconnectHandlers))
	for i, e := range cm.reconnectHandlers {
		handlers[i] = e.fn
	}
	cm.handlersMu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Msg("reconnect handler panicked")
				}
			}()
			h(roomID)
		}()
	}
}

func (cm *ConnectionManager) writeMessage(conn Conn, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	cm.writeMu.Lock()
	defer cm.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(cm.config.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (cm *ConnectionManager) closeConn(conn Conn) {
	cm.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	cm.writeMu.Unlock()
	conn.Close()
}
