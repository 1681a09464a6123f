// client.go: streaming protocol client for the vendor live feed
package feedclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Aidin1998/quotefeed/pkg/metrics"
)

var (
	ErrInvalidState       = errors.New("feed client: invalid connection state")
	ErrNotConnected       = errors.New("feed client: not connected")
	ErrAuthRejected       = errors.New("feed client: authentication rejected")
	ErrReconnectExhausted = errors.New("feed client: reconnect attempts exhausted")
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	readTimeout      = 60 * time.Second
	maxFrameSize     = 512 * 1024 // 512KB max message size
)

// Client owns one WebSocket connection to the vendor's live feed. It runs
// the connect/authenticate/subscribe handshake, decodes inbound frames into
// typed messages, fans events out to listeners, and reconnects with
// exponential backoff after unexpected closure, replaying every active
// subscription.
type Client struct {
	cfg      Config
	logger   *zap.Logger
	clock    clock.Clock
	clientID string

	// Connection state; guarded by mu.
	mu               sync.RWMutex
	state            ConnectionState
	conn             *websocket.Conn
	sessionID        string
	attempts         int
	closing          bool
	resubscribe      bool
	reconnectPending bool
	reconnectTimer   *clock.Timer
	stopChan         chan struct{}

	// Single-writer send path.
	writeMu sync.Mutex

	// Active-subscription registry; guarded by subsMu.
	subsMu sync.RWMutex
	subs   map[string]SubscriptionRequest

	// Registered listeners; guarded by listenersMu.
	listenersMu sync.RWMutex
	listeners   []Listener

	// Instrument id to raw symbol table; guarded by symbolsMu.
	symbolsMu   sync.RWMutex
	instruments map[int64]string

	backoff *backoff.ExponentialBackOff
}

// New creates a client with the wall clock.
func New(cfg Config, logger *zap.Logger) *Client {
	return NewWithClock(cfg, logger, clock.New())
}

// NewWithClock creates a client with an injected clock, used by tests to
// drive heartbeat and reconnect timers deterministically.
func NewWithClock(cfg Config, logger *zap.Logger, clk clock.Clock) *Client {
	cfg = cfg.withDefaults()

	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = cfg.InitialReconnectDelay
	boff.RandomizationFactor = 0
	boff.Multiplier = 2
	boff.MaxInterval = time.Duration(math.MaxInt64)
	boff.MaxElapsedTime = 0 // retries are bounded by attempt count, not wall time
	boff.Reset()

	return &Client{
		cfg:         cfg,
		logger:      logger.Named("feed-client"),
		clock:       clk,
		clientID:    uuid.NewString(),
		state:       StateDisconnected,
		subs:        make(map[string]SubscriptionRequest),
		instruments: make(map[int64]string),
		backoff:     boff,
	}
}

// Connect opens the socket and sends the authentication frame. It returns
// once the socket is open; authentication completes asynchronously and is
// reported through the Authenticated event. The client is not re-entrant:
// calling Connect outside the Disconnected state fails without changing
// state, including while a reconnect is pending.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected || c.reconnectPending {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: connect while %s", ErrInvalidState, state)
	}
	c.setState(StateConnecting)
	c.mu.Unlock()

	return c.dial(ctx)
}

// dial performs the socket open and auth-frame send shared by Connect and
// the reconnect path. The caller must have moved the state to Connecting.
func (c *Client) dial(ctx context.Context) error {
	c.logger.Info("Connecting to feed", zap.String("url", c.cfg.URL))

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		c.mu.Lock()
		c.setState(StateDisconnected)
		c.mu.Unlock()
		return fmt.Errorf("feed connection failed: %w", err)
	}

	conn.SetReadLimit(maxFrameSize)

	stop := make(chan struct{})
	c.mu.Lock()
	if c.state != StateConnecting {
		// Disconnect raced the dial; drop the fresh socket.
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("%w: connection aborted during dial", ErrInvalidState)
	}
	c.conn = conn
	c.closing = false
	c.stopChan = stop
	c.setState(StateAuthenticating)
	c.mu.Unlock()

	if err := c.sendJSON(map[string]interface{}{
		"action":   "auth",
		"apiKey":   c.cfg.APIKey,
		"clientId": c.clientID,
	}); err != nil {
		c.mu.Lock()
		c.conn = nil
		c.stopChan = nil
		c.setState(StateDisconnected)
		c.mu.Unlock()
		conn.Close()
		close(stop)
		return fmt.Errorf("auth frame send failed: %w", err)
	}

	go c.readPump(conn, stop)

	c.logger.Info("Feed socket open, authenticating")
	c.emit(Event{Type: EventConnected})
	return nil
}

// Subscribe sends a subscription control frame and records the request in
// the active-subscription registry so it can be replayed verbatim after a
// reconnect. It requires an authenticated session and does not wait for the
// acknowledgment; the Subscribed event arrives asynchronously.
func (c *Client) Subscribe(req SubscriptionRequest) error {
	if len(req.Symbols) == 0 {
		return fmt.Errorf("subscribe: no symbols given")
	}
	if req.Schema == "" {
		return fmt.Errorf("subscribe: no schema given")
	}
	if req.Dataset == "" {
		req.Dataset = DefaultDataset
	}
	if req.SType == "" {
		req.SType = STypeRawSymbol
	}

	c.mu.RLock()
	live := c.state.live()
	c.mu.RUnlock()
	if !live {
		return ErrNotConnected
	}

	if err := c.sendJSON(map[string]interface{}{
		"action":   "subscribe",
		"dataset":  req.Dataset,
		"schema":   string(req.Schema),
		"symbols":  req.Symbols,
		"stype":    string(req.SType),
		"snapshot": req.Snapshot,
	}); err != nil {
		return fmt.Errorf("subscribe send failed: %w", err)
	}

	c.subsMu.Lock()
	c.subs[req.key()] = req
	c.subsMu.Unlock()

	c.logger.Info("Subscription sent",
		zap.String("dataset", req.Dataset),
		zap.String("schema", string(req.Schema)),
		zap.Strings("symbols", req.Symbols))
	return nil
}

// Unsubscribe sends an unsubscribe control frame and removes every registry
// entry whose dataset equals the given dataset and whose symbol set
// intersects the given symbols.
func (c *Client) Unsubscribe(dataset string, symbols []string) error {
	if len(symbols) == 0 {
		return fmt.Errorf("unsubscribe: no symbols given")
	}
	if dataset == "" {
		dataset = DefaultDataset
	}

	c.mu.RLock()
	live := c.state.live()
	c.mu.RUnlock()
	if !live {
		return ErrNotConnected
	}

	if err := c.sendJSON(map[string]interface{}{
		"action":  "unsubscribe",
		"dataset": dataset,
		"symbols": symbols,
	}); err != nil {
		return fmt.Errorf("unsubscribe send failed: %w", err)
	}

	c.subsMu.Lock()
	for key, req := range c.subs {
		if req.matches(dataset, symbols) {
			delete(c.subs, key)
		}
	}
	c.subsMu.Unlock()

	c.logger.Info("Unsubscribed",
		zap.String("dataset", dataset),
		zap.Strings("symbols", symbols))
	return nil
}

// Disconnect cancels any pending reconnect and heartbeat timers, closes the
// socket, and resets the client to Disconnected with a cleared session and
// attempt counter. It is idempotent.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.reconnectPending = false
	c.resubscribe = false

	if c.state == StateDisconnected && c.conn == nil {
		c.attempts = 0
		c.backoff.Reset()
		c.mu.Unlock()
		return nil
	}

	c.closing = true
	if c.stopChan != nil {
		close(c.stopChan)
		c.stopChan = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.setState(StateDisconnected)
	c.sessionID = ""
	c.attempts = 0
	c.backoff.Reset()
	c.mu.Unlock()

	c.logger.Info("Disconnected")
	c.emit(Event{Type: EventDisconnected, Reason: "client disconnect"})
	return nil
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether the session is authenticated and able to carry
// subscription traffic.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.live()
}

// SessionID returns the vendor-assigned session identifier, empty until
// authenticated.
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Subscriptions returns a copy of the active-subscription registry, ordered
// by registry key.
func (c *Client) Subscriptions() []SubscriptionRequest {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()

	keys := make([]string, 0, len(c.subs))
	for key := range c.subs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	reqs := make([]SubscriptionRequest, 0, len(keys))
	for _, key := range keys {
		reqs = append(reqs, c.subs[key])
	}
	return reqs
}

// setState must be called with mu held.
func (c *Client) setState(s ConnectionState) {
	if c.state == s {
		return
	}
	c.logger.Debug("State change",
		zap.String("from", c.state.String()),
		zap.String("to", s.String()))
	c.state = s
	metrics.ConnectionState.Set(float64(s))
}

// sendJSON serializes all outbound frames through the single write path.
func (c *Client) sendJSON(v interface{}) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readPump handles inbound frames for one connection, one at a time in
// arrival order. It is the only goroutine that dispatches data events, so
// listeners observe messages in wire order.
func (c *Client) readPump(conn *websocket.Conn, stop chan struct{}) {
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("Feed read error", zap.Error(err))
			}
			c.handleDisconnection(conn, stop, err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		c.handleFrame(message)
	}
}

// handleFrame classifies one inbound frame. Control shapes are matched
// first, then market data by field shape; frames matching neither are
// dropped and counted.
func (c *Client) handleFrame(data []byte) {
	timer := prometheus.NewTimer(metrics.FrameHandleDuration)
	defer timer.ObserveDuration()

	f, ok := parseFrame(data)
	if !ok {
		metrics.DroppedFrames.Inc()
		c.logger.Debug("Dropping unparseable frame", zap.Int("size", len(data)))
		return
	}

	if authed, ok := f.boolean("authenticated"); ok {
		c.handleAuthResponse(authed, f)
		return
	}
	if f.has("subscriptionId") {
		c.handleSubscriptionAck(f)
		return
	}
	if f.has("msg") {
		c.handleSystem(f)
		return
	}
	if f.has("instrumentId") && f.has("rawSymbol") {
		c.handleSymbolMapping(f)
		return
	}

	kind, ok := classifyMarketData(f)
	if !ok {
		metrics.DroppedFrames.Inc()
		c.logger.Debug("Dropping unrecognized frame", zap.Int("size", len(data)))
		return
	}

	symbol := c.resolveSymbol(f)
	evt := Event{Type: EventMessage, Kind: kind}
	switch kind {
	case KindTrade:
		evt.Trade = decodeTrade(f, symbol)
	case KindDepth:
		evt.Depth = decodeDepth(f, symbol)
	case KindQuote:
		evt.Quote = decodeQuote(f, symbol)
	case KindBar:
		evt.Bar = decodeBar(f, symbol)
	}

	metrics.MessagesTotal.WithLabelValues(string(kind)).Inc()
	c.emit(evt)
}

func (c *Client) handleAuthResponse(authed bool, f frame) {
	if !authed {
		errText := f.str("error")
		c.mu.Lock()
		c.setState(StateError)
		conn := c.conn
		c.mu.Unlock()

		c.logger.Error("Authentication rejected", zap.String("error", errText))
		c.emit(Event{Type: EventError, Err: fmt.Errorf("%w: %s", ErrAuthRejected, errText)})
		if conn != nil {
			conn.Close()
		}
		return
	}

	session := f.str("sessionId")
	c.mu.Lock()
	c.sessionID = session
	c.setState(StateAuthenticated)
	c.attempts = 0
	c.backoff.Reset()
	replay := c.resubscribe
	c.resubscribe = false
	stop := c.stopChan
	c.mu.Unlock()

	c.logger.Info("Authenticated", zap.String("sessionId", session))
	c.startHeartbeat(stop)
	c.emit(Event{Type: EventAuthenticated, SessionID: session})

	if replay {
		c.replaySubscriptions()
	}
}

func (c *Client) handleSubscriptionAck(f frame) {
	id := f.str("subscriptionId")

	c.mu.Lock()
	if c.state == StateAuthenticated {
		c.setState(StateSubscribed)
	}
	c.mu.Unlock()

	c.logger.Info("Subscription confirmed", zap.String("subscriptionId", id))
	c.emit(Event{Type: EventSubscribed, SubscriptionID: id})
}

func (c *Client) handleSystem(f frame) {
	msg := decodeSystem(f)
	if msg.IsHeartbeat {
		c.logger.Debug("Feed heartbeat")
	} else {
		c.logger.Info("Feed system message",
			zap.String("msg", msg.Text),
			zap.Int("code", msg.Code))
	}

	metrics.MessagesTotal.WithLabelValues(string(KindSystem)).Inc()
	c.emit(Event{Type: EventMessage, Kind: KindSystem, System: msg})
}

func (c *Client) handleSymbolMapping(f frame) {
	id := f.int64("instrumentId")
	symbol := f.str("rawSymbol")
	if id == 0 || symbol == "" {
		metrics.DroppedFrames.Inc()
		return
	}

	c.symbolsMu.Lock()
	c.instruments[id] = symbol
	c.symbolsMu.Unlock()

	c.logger.Debug("Symbol mapping",
		zap.Int64("instrumentId", id),
		zap.String("symbol", symbol))
}

// resolveSymbol prefers the frame's symbol field and falls back to the
// instrument table populated by symbol-mapping messages.
func (c *Client) resolveSymbol(f frame) string {
	if s := f.str("symbol"); s != "" {
		return s
	}
	if f.has("instrumentId") {
		id := f.int64("instrumentId")
		c.symbolsMu.RLock()
		symbol, ok := c.instruments[id]
		c.symbolsMu.RUnlock()
		if ok {
			return symbol
		}
		return strconv.FormatInt(id, 10)
	}
	return ""
}

// startHeartbeat sends transport pings for one connection until its stop
// channel closes. Purely a liveness signal to the vendor.
func (c *Client) startHeartbeat(stop chan struct{}) {
	if stop == nil {
		return
	}

	go func() {
		ticker := c.clock.Ticker(c.cfg.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := c.ping(); err != nil {
					c.logger.Warn("Heartbeat ping failed", zap.Error(err))
					return
				}
			}
		}
	}()
}

func (c *Client) ping() error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		// Close so the read pump observes the dead connection.
		conn.Close()
		return err
	}
	return nil
}

// handleDisconnection runs when the read pump exits. Locally requested
// closes were already handled by Disconnect; everything else settles the
// state, reports the closure, and schedules a reconnect when enabled.
func (c *Client) handleDisconnection(conn *websocket.Conn, stop chan struct{}, cause error) {
	c.mu.Lock()
	if c.closing || c.stopChan != stop {
		c.mu.Unlock()
		return
	}
	close(stop)
	c.stopChan = nil
	c.conn = nil
	c.sessionID = ""
	fatal := c.state == StateError
	c.setState(StateDisconnected)
	reconnect := c.cfg.AutoReconnect && !fatal
	c.mu.Unlock()

	conn.Close()

	reason := "connection lost"
	if cause != nil {
		reason = cause.Error()
	}
	c.logger.Warn("Feed disconnected", zap.String("reason", reason))
	c.emit(Event{Type: EventDisconnected, Reason: reason})

	if reconnect {
		c.scheduleReconnect()
	}
}

// scheduleReconnect arms the backoff timer for the next attempt, or reports
// exhaustion once the attempt budget is spent. The attempt counter is
// incremented before the delay is computed, so attempt k waits
// initial delay doubled k-1 times.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.reconnectPending || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.mu.Unlock()
		c.logger.Error("Reconnect attempts exhausted",
			zap.Int("maxAttempts", c.cfg.MaxReconnectAttempts))
		c.emit(Event{Type: EventError, Err: ErrReconnectExhausted})
		return
	}
	c.attempts++
	attempt := c.attempts
	delay := c.backoff.NextBackOff()
	c.reconnectPending = true
	c.reconnectTimer = c.clock.AfterFunc(delay, c.attemptReconnect)
	c.mu.Unlock()

	metrics.ReconnectsTotal.Inc()
	c.logger.Warn("Scheduling reconnect",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay))
	c.emit(Event{Type: EventReconnecting, Attempt: attempt})
}

func (c *Client) attemptReconnect() {
	c.mu.Lock()
	if !c.reconnectPending {
		// Disconnect raced the timer.
		c.mu.Unlock()
		return
	}
	c.reconnectPending = false
	c.reconnectTimer = nil
	c.resubscribe = true
	c.setState(StateConnecting)
	c.mu.Unlock()

	if err := c.dial(context.Background()); err != nil {
		c.logger.Warn("Reconnect attempt failed", zap.Error(err))
		c.scheduleReconnect()
	}
}

// replaySubscriptions re-sends every registry entry after a reconnect. The
// registry is keyed by dataset, schema, and sorted symbols, so replaying
// through Subscribe writes each entry back to the same key: exactly one
// frame per active subscription, no duplicates.
func (c *Client) replaySubscriptions() {
	reqs := c.Subscriptions()
	for _, req := range reqs {
		if err := c.Subscribe(req); err != nil {
			c.logger.Error("Subscription replay failed",
				zap.String("dataset", req.Dataset),
				zap.String("schema", string(req.Schema)),
				zap.Strings("symbols", req.Symbols),
				zap.Error(err))
		}
	}
	if len(reqs) > 0 {
		c.logger.Info("Replayed active subscriptions", zap.Int("count", len(reqs)))
	}
}
