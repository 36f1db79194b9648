// Package transport owns the single physical WebSocket connection to
// the game server. It republishes every raw inbound frame on the event
// bus under a server:* topic and reports its own lifecycle under ws:*
// topics, so nothing else in the process touches the socket.
package transport

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/emberloom/sagalink/internal/wire"
	"github.com/emberloom/sagalink/pkg/errors"
	"github.com/emberloom/sagalink/pkg/events"
)

// Transport status topics.
const (
	TopicConnected    = "ws:connected"
	TopicDisconnected = "ws:disconnected"
	TopicError        = "ws:error"
)

// RawTopic returns the bus topic a raw inbound event of the given wire
// type is republished under.
func RawTopic(eventType string) string {
	return "server:" + eventType
}

// Status is the payload published on the ws:* topics.
type Status struct {
	ConnectionID string
	Err          string
	Attempt      int
}

// Defaults for the reconnection policy.
const (
	DefaultMaxAttempts    = 5
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 10 * time.Second
)

// Config holds the adapter's connection parameters.
type Config struct {
	URL            string
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	return c
}

// Adapter manages one WebSocket connection with bounded automatic
// reconnection. One instance per client process.
type Adapter struct {
	cfg    Config
	bus    *events.Bus
	log    *zap.Logger
	dialer *websocket.Dialer

	mu           sync.Mutex
	conn         *websocket.Conn
	connected    bool
	connecting   bool
	connectionID string
	lastError    string
	cancel       context.CancelFunc

	writeMu sync.Mutex
}

// NewAdapter creates a disconnected adapter.
func NewAdapter(cfg Config, bus *events.Bus, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		cfg:    cfg.withDefaults(),
		bus:    bus,
		log:    log,
		dialer: websocket.DefaultDialer,
	}
}

// Connect starts the connection lifecycle. It is idempotent: when
// already connected it re-emits a synthetic ws:connected event, and
// when an attempt is in progress it does nothing. The actual handshake
// runs asynchronously; outcomes surface on the ws:* topics.
func (a *Adapter) Connect(ctx context.Context) {
	a.mu.Lock()
	if a.connected {
		id := a.connectionID
		a.mu.Unlock()
		a.bus.Publish(TopicConnected, Status{ConnectionID: id})
		return
	}
	if a.connecting {
		a.mu.Unlock()
		return
	}
	a.connecting = true
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	go a.run(runCtx)
}

// Disconnect tears the connection down and abandons any pending
// reconnection timers. Safe to call when already disconnected.
// Membership is connection-scoped: the tracker clears its records on
// the ws:disconnected event this publishes.
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	wasConnected := a.connected
	conn := a.conn
	a.conn = nil
	a.connected = false
	a.connecting = false
	a.connectionID = ""
	a.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if wasConnected {
		a.bus.Publish(TopicDisconnected, Status{})
	}
}

// Send writes one command frame. When disconnected the frame is
// dropped with a warning, never queued: the UI is responsible for
// surfacing connectivity to the user.
func (a *Adapter) Send(eventType string, payload interface{}) {
	a.mu.Lock()
	conn := a.conn
	connected := a.connected
	a.mu.Unlock()

	if !connected || conn == nil {
		a.log.Warn("dropping outbound command while disconnected",
			zap.String("type", eventType),
			zap.Error(errors.ErrNotConnected))
		return
	}

	data, err := wire.EncodeEnvelope(eventType, payload)
	if err != nil {
		a.log.Warn("failed to encode outbound command",
			zap.String("type", eventType),
			zap.Error(err))
		return
	}

	a.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	a.writeMu.Unlock()
	if err != nil {
		a.log.Warn("failed to write outbound command",
			zap.String("type", eventType),
			zap.Error(err))
	}
}

// Connected reports whether the transport currently has a live
// connection.
func (a *Adapter) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

// ConnectionID returns the server-assigned connection id, empty when
// disconnected or before the handshake acknowledgement.
func (a *Adapter) ConnectionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connectionID
}

// LastError returns the most recent transport-level error message.
func (a *Adapter) LastError() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastError
}

// run drives the dial/read/reconnect loop until the context is
// canceled or the attempt cap is exhausted.
func (a *Adapter) run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = a.cfg.InitialBackoff
	bo.MaxInterval = a.cfg.MaxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()

	attempts := 0
	for {
		conn, _, err := a.dialer.DialContext(ctx, a.cfg.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				a.stopConnecting()
				return
			}
			attempts++
			a.recordError(err.Error())
			a.bus.Publish(TopicError, Status{
				Err:     "connection failed: " + err.Error(),
				Attempt: attempts,
			})
			if attempts >= a.cfg.MaxAttempts {
				a.log.Warn("giving up on reconnection",
					zap.Int("attempts", attempts),
					zap.String("url", a.cfg.URL),
					zap.Error(errors.ErrReconnectExhausted))
				a.recordError(errors.ErrReconnectExhausted.Error())
				a.bus.Publish(TopicError, Status{
					Err:     errors.ErrReconnectExhausted.Error(),
					Attempt: attempts,
				})
				a.stopConnecting()
				return
			}
			select {
			case <-time.After(bo.NextBackOff()):
				continue
			case <-ctx.Done():
				a.stopConnecting()
				return
			}
		}

		attempts = 0
		bo.Reset()
		a.onConnected(conn)

		readErr := a.readLoop(ctx, conn)
		a.onDisconnected(readErr)
		if ctx.Err() != nil {
			a.stopConnecting()
			return
		}
		// connection dropped: fall through and reconnect
	}
}

func (a *Adapter) stopConnecting() {
	a.mu.Lock()
	a.connecting = false
	a.mu.Unlock()
}

func (a *Adapter) recordError(msg string) {
	a.mu.Lock()
	a.lastError = msg
	a.mu.Unlock()
}

func (a *Adapter) onConnected(conn *websocket.Conn) {
	a.mu.Lock()
	a.conn = conn
	a.connected = true
	a.connecting = false
	a.lastError = ""
	a.mu.Unlock()

	a.log.Info("connected", zap.String("url", a.cfg.URL))
	a.bus.Publish(TopicConnected, Status{})
}

func (a *Adapter) onDisconnected(err error) {
	a.mu.Lock()
	wasConnected := a.connected
	a.conn = nil
	a.connected = false
	a.connecting = true // reconnection in progress
	a.connectionID = ""
	if err != nil {
		a.lastError = err.Error()
	}
	a.mu.Unlock()

	if !wasConnected {
		return
	}
	a.log.Warn("connection lost", zap.Error(err))
	a.bus.Publish(TopicDisconnected, Status{Err: errString(err)})
}

// readLoop republishes every inbound frame verbatim under its server:*
// topic until the connection fails.
func (a *Adapter) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		env, err := wire.DecodeEnvelope(data)
		if err != nil {
			a.log.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		if env.Type == wire.EventConnected {
			var payload wire.ConnectedPayload
			if err := wire.DecodePayload(env.Payload, &payload); err == nil && payload.ConnectionID != "" {
				a.mu.Lock()
				a.connectionID = payload.ConnectionID
				a.mu.Unlock()
			}
		}
		a.bus.Publish(RawTopic(env.Type), env)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
