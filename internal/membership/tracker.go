// Package membership tracks which (session, participant) pairs hold an
// active joined handshake. Join and leave are idempotent so UI surfaces
// can call them on every mount without producing duplicate-join
// protocol errors. Records are connection-scoped: a disconnect clears
// them all, and a new connection must re-join every session.
package membership

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/emberloom/sagalink/internal/transport"
	"github.com/emberloom/sagalink/internal/wire"
	"github.com/emberloom/sagalink/pkg/errors"
	"github.com/emberloom/sagalink/pkg/events"
)

// DefaultJoinTimeout bounds how long a deferred join waits for
// connectivity before giving up.
const DefaultJoinTimeout = 10 * time.Second

// Conn is the slice of the transport the tracker needs.
type Conn interface {
	Connected() bool
	Send(eventType string, payload interface{})
}

// Key identifies one joined handshake.
type Key struct {
	SessionID     string
	ParticipantID string
}

// Tracker owns the joined-record set.
type Tracker struct {
	conn        Conn
	bus         *events.Bus
	log         *zap.Logger
	joinTimeout time.Duration

	mu     sync.Mutex
	joined map[Key]struct{}
}

// NewTracker creates a tracker and wires it to connection loss: every
// ws:disconnected event clears all joined records.
func NewTracker(conn Conn, bus *events.Bus, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Tracker{
		conn:        conn,
		bus:         bus,
		log:         log,
		joinTimeout: DefaultJoinTimeout,
		joined:      make(map[Key]struct{}),
	}
	bus.Subscribe(transport.TopicDisconnected, func(_ interface{}) {
		t.clearAll()
	})
	return t
}

// SetJoinTimeout overrides the deferred-join wait bound.
func (t *Tracker) SetJoinTimeout(d time.Duration) {
	if d > 0 {
		t.joinTimeout = d
	}
}

// Join ensures the participant is joined to the session. Connected and
// already joined is a no-op. Connected and not joined sends the join
// command fire-and-forget and marks the record optimistically; the
// server's joined_game acknowledgement is informational. Disconnected
// joins wait for the next ws:connected event, bounded by the join
// timeout, so the attempt is not silently lost.
func (t *Tracker) Join(ctx context.Context, sessionID, participantID string) error {
	key := Key{SessionID: sessionID, ParticipantID: participantID}

	if t.conn.Connected() {
		t.join(key)
		return nil
	}

	if err := t.waitConnected(ctx); err != nil {
		return errors.Wrap(err, "join deferred past timeout")
	}
	t.join(key)
	return nil
}

func (t *Tracker) join(key Key) {
	t.mu.Lock()
	if _, ok := t.joined[key]; ok {
		t.mu.Unlock()
		return
	}
	t.joined[key] = struct{}{}
	t.mu.Unlock()

	t.conn.Send(wire.CommandJoinGame, wire.JoinGameCommand{
		GameSessionID: key.SessionID,
		UserID:        key.ParticipantID,
	})
	t.log.Debug("joined session",
		zap.String("session_id", key.SessionID),
		zap.String("participant_id", key.ParticipantID))
}

// waitConnected blocks until the next ws:connected event, the context
// ends, or the join timeout elapses.
func (t *Tracker) waitConnected(ctx context.Context) error {
	ready := make(chan struct{}, 1)
	cancel := t.bus.SubscribeOnce(transport.TopicConnected, func(_ interface{}) {
		ready <- struct{}{}
	})
	defer cancel()

	// the connection may have arrived between the check and the
	// subscription
	if t.conn.Connected() {
		return nil
	}

	timer := time.NewTimer(t.joinTimeout)
	defer timer.Stop()
	select {
	case <-ready:
		return nil
	case <-timer.C:
		return errors.ErrConnectTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Leave removes the joined record and tells the server. Not joined is
// a no-op; nothing reaches the wire.
func (t *Tracker) Leave(sessionID, participantID string) {
	key := Key{SessionID: sessionID, ParticipantID: participantID}

	t.mu.Lock()
	if _, ok := t.joined[key]; !ok {
		t.mu.Unlock()
		return
	}
	delete(t.joined, key)
	t.mu.Unlock()

	t.conn.Send(wire.CommandLeaveGame, wire.LeaveGameCommand{
		GameSessionID: sessionID,
		UserID:        participantID,
	})
	t.log.Debug("left session",
		zap.String("session_id", sessionID),
		zap.String("participant_id", participantID))
}

// Joined reports whether the pair currently holds a joined record.
func (t *Tracker) Joined(sessionID, participantID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.joined[Key{SessionID: sessionID, ParticipantID: participantID}]
	return ok
}

func (t *Tracker) clearAll() {
	t.mu.Lock()
	n := len(t.joined)
	t.joined = make(map[Key]struct{})
	t.mu.Unlock()
	if n > 0 {
		t.log.Debug("cleared joined records on disconnect", zap.Int("count", n))
	}
}
