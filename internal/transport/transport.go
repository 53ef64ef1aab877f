// Package transport maintains one logical channel to the agent process on
// top of a WebSocket connection that may drop at any time. Consumers see a
// connected/connecting/disconnected status and an ordered message stream;
// physical reconnects stay internal.
package transport

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voco/internal/logging"
	"voco/internal/observability"
	"voco/internal/protocol"
)

// Status is the logical connection state, independent of how many physical
// dial attempts are in flight.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// ErrClosed is returned by Connect after an explicit Close.
var ErrClosed = errors.New("transport is closed")

// Config configures the endpoint and reconnect policy.
type Config struct {
	Endpoint      string
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.ReconnectBase <= 0 {
		out.ReconnectBase = time.Second
	}
	if out.ReconnectMax <= 0 {
		out.ReconnectMax = 30 * time.Second
	}
	if out.ReconnectMax < out.ReconnectBase {
		out.ReconnectMax = out.ReconnectBase
	}
	return out
}

// StatusFunc receives logical status transitions.
type StatusFunc func(Status)

// MessageFunc receives decoded inbound messages in receipt order.
type MessageFunc func(protocol.Message)

// Transport owns the physical connection and the reconnect loop.
type Transport struct {
	cfg     Config
	log     *logging.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	conn    *websocket.Conn
	status  Status
	dialing bool
	closed  bool
	attempt int
	timer   *time.Timer

	writeMu sync.Mutex

	subMu       sync.Mutex
	statusSubs  []StatusFunc
	messageSubs []MessageFunc

	// emitMu serializes subscriber notification so deliveries keep their
	// receipt order even when status changes race a read loop exit.
	emitMu sync.Mutex
}

// New creates a transport. Nothing is dialed until Connect.
func New(cfg Config, metrics *observability.Metrics) *Transport {
	if metrics == nil {
		metrics = observability.Nop()
	}
	return &Transport{
		cfg:     cfg.withDefaults(),
		log:     logging.ForComponent("transport"),
		metrics: metrics,
		status:  StatusDisconnected,
	}
}

// Status returns the current logical status.
func (t *Transport) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// OnStatus subscribes to status transitions. Subscribers are notified in
// subscription order.
func (t *Transport) OnStatus(fn StatusFunc) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	t.statusSubs = append(t.statusSubs, fn)
}

// OnMessage subscribes to decoded inbound messages.
func (t *Transport) OnMessage(fn MessageFunc) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	t.messageSubs = append(t.messageSubs, fn)
}

// Connect opens a connection to the endpoint. Calling it while a dial is
// outstanding or a connection is open is a no-op; calling it during a
// scheduled backoff wait cancels the wait and dials immediately.
func (t *Transport) Connect() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.dialing || t.conn != nil {
		t.mu.Unlock()
		return nil
	}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.dialing = true
	t.status = StatusConnecting
	t.mu.Unlock()

	t.emitStatus(StatusConnecting)
	go t.dial()
	return nil
}

func (t *Transport) dial() {
	conn, _, err := websocket.DefaultDialer.Dial(t.cfg.Endpoint, nil)

	t.mu.Lock()
	t.dialing = false
	if t.closed {
		t.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		t.status = StatusDisconnected
		t.scheduleReconnectLocked()
		t.mu.Unlock()
		t.log.Warn("dial %s: %v", t.cfg.Endpoint, err)
		t.emitStatus(StatusDisconnected)
		return
	}
	t.conn = conn
	t.attempt = 0
	t.status = StatusConnected
	t.mu.Unlock()

	t.metrics.Connects.Inc()
	t.log.Info("connected to %s", t.cfg.Endpoint)
	t.emitStatus(StatusConnected)
	go t.readLoop(conn)
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			// Malformed frames are dropped; the connection stays up.
			t.metrics.ParseFailures.Inc()
			t.log.Warn("discarding frame: %v", err)
			continue
		}
		t.metrics.MessagesIn.WithLabelValues(string(msg.MessageType())).Inc()
		t.emitMessage(msg)
	}
	_ = conn.Close()

	t.mu.Lock()
	if t.conn != conn {
		// A newer connection already replaced this one.
		t.mu.Unlock()
		return
	}
	t.conn = nil
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.status = StatusDisconnected
	t.scheduleReconnectLocked()
	t.mu.Unlock()

	t.log.Warn("connection lost, reconnecting")
	t.emitStatus(StatusDisconnected)
}

// scheduleReconnectLocked arms the backoff timer. Callers hold t.mu.
func (t *Transport) scheduleReconnectLocked() {
	delay := Backoff(t.attempt, t.cfg.ReconnectBase, t.cfg.ReconnectMax)
	t.attempt++
	t.metrics.Reconnects.Inc()
	t.log.Info("reconnect attempt %d in %s", t.attempt, delay)
	t.timer = time.AfterFunc(delay, func() {
		_ = t.Connect()
	})
}

// Backoff returns the reconnect delay for the given zero-based attempt:
// min(base * 2^attempt, max).
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// Send transmits a message on the current connection. When no connection is
// open the message is dropped: nothing is buffered across disconnects, and
// callers that need the message delivered re-send after the next connected
// status.
func (t *Transport) Send(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		t.metrics.DroppedSends.Inc()
		t.log.Debug("dropping %s: not connected", msg.MessageType())
		return nil
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	t.metrics.MessagesOut.WithLabelValues(string(msg.MessageType())).Inc()
	return nil
}

// Close shuts the transport down cleanly. No reconnect is scheduled.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.conn = nil
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.status = StatusDisconnected
	t.mu.Unlock()

	if conn != nil {
		t.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		t.writeMu.Unlock()
		_ = conn.Close()
	}
	t.emitStatus(StatusDisconnected)
	return nil
}

func (t *Transport) emitStatus(status Status) {
	t.subMu.Lock()
	subs := append([]StatusFunc(nil), t.statusSubs...)
	t.subMu.Unlock()

	t.emitMu.Lock()
	defer t.emitMu.Unlock()
	for _, fn := range subs {
		fn(status)
	}
}

func (t *Transport) emitMessage(msg protocol.Message) {
	t.subMu.Lock()
	subs := append([]MessageFunc(nil), t.messageSubs...)
	t.subMu.Unlock()

	t.emitMu.Lock()
	defer t.emitMu.Unlock()
	for _, fn := range subs {
		fn(msg)
	}
}
