// Package client wires the sync layer together: one transport, one
// event bus, one membership tracker, one translator, one state store.
// The UI talks to this facade and subscribes to domain events; it
// never touches the socket or the wire format.
package client

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emberloom/sagalink/internal/config"
	"github.com/emberloom/sagalink/internal/game"
	"github.com/emberloom/sagalink/internal/membership"
	"github.com/emberloom/sagalink/internal/persist"
	"github.com/emberloom/sagalink/internal/rest"
	"github.com/emberloom/sagalink/internal/state"
	"github.com/emberloom/sagalink/internal/translate"
	"github.com/emberloom/sagalink/internal/transport"
	"github.com/emberloom/sagalink/internal/wire"
	"github.com/emberloom/sagalink/pkg/errors"
	"github.com/emberloom/sagalink/pkg/events"
)

// Transport is the connection surface the client depends on. The
// production implementation is transport.Adapter; tests substitute a
// fake.
type Transport interface {
	Connect(ctx context.Context)
	Disconnect()
	Send(eventType string, payload interface{})
	Connected() bool
}

// Client is the process-wide session sync client.
type Client struct {
	cfg        *config.Config
	log        *zap.Logger
	bus        *events.Bus
	transport  Transport
	tracker    *membership.Tracker
	translator *translate.Translator
	store      *state.Store
	api        *rest.Client
	persister  state.Persister
	closers    []func() error
}

// New builds a fully wired client from configuration. Redis backing is
// attached only when an address is configured; without it the store is
// in-memory only.
func New(cfg *config.Config, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var persister state.Persister
	var closers []func() error
	if cfg.RedisAddr != "" {
		rs, err := persist.NewRedisStore(persist.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, log)
		if err != nil {
			return nil, err
		}
		persister = rs
		closers = append(closers, rs.Close)
	}

	bus := events.NewBus(log)
	adapter := transport.NewAdapter(transport.Config{
		URL:            cfg.WSEndpoint,
		MaxAttempts:    cfg.ReconnectAttempts,
		InitialBackoff: cfg.ReconnectInitial,
		MaxBackoff:     cfg.ReconnectMax,
	}, bus, log)

	c := assemble(cfg, log, bus, adapter, persister)
	c.closers = closers
	return c, nil
}

// assemble wires the collaborators around a given transport. Tests use
// it directly with a fake.
func assemble(cfg *config.Config, log *zap.Logger, bus *events.Bus, tr Transport, persister state.Persister) *Client {
	storeOpts := []state.Option{state.WithDedupWindow(cfg.DedupWindow)}
	if persister != nil {
		storeOpts = append(storeOpts, state.WithPersister(persister))
	}
	store := state.NewStore(log, storeOpts...)

	tracker := membership.NewTracker(tr, bus, log)
	tracker.SetJoinTimeout(cfg.JoinTimeout)

	c := &Client{
		cfg:        cfg,
		log:        log,
		bus:        bus,
		transport:  tr,
		tracker:    tracker,
		translator: translate.New(bus, store, log),
		store:      store,
		persister:  persister,
	}
	if cfg.APIEndpoint != "" {
		c.api = rest.NewClient(cfg.APIEndpoint, store, log)
	}
	return c
}

// Connect starts the connection lifecycle. Idempotent.
func (c *Client) Connect(ctx context.Context) {
	c.transport.Connect(ctx)
}

// Close disconnects and releases resources.
func (c *Client) Close() {
	c.transport.Disconnect()
	for _, closer := range c.closers {
		if err := closer(); err != nil {
			c.log.Warn("close failed", zap.Error(err))
		}
	}
}

// Connected reports transport connectivity.
func (c *Client) Connected() bool {
	return c.transport.Connected()
}

// JoinSession ensures the participant is joined, restores any
// persisted history, and reconciles the REST copy of the log through
// the duplicate filter. REST failures degrade to push-only operation.
func (c *Client) JoinSession(ctx context.Context, sessionID, userID string) error {
	if err := c.tracker.Join(ctx, sessionID, userID); err != nil {
		return err
	}
	if c.persister != nil {
		if err := c.persister.SaveActiveSession(ctx, sessionID); err != nil {
			c.log.Warn("failed to record active session", zap.Error(err))
		}
		if err := c.store.Restore(ctx, sessionID); err != nil {
			c.log.Warn("failed to restore history", zap.Error(err))
		}
	}
	if c.api != nil {
		if _, err := c.api.SyncHistory(ctx, sessionID); err != nil {
			c.log.Warn("history sync failed, continuing push-only",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
	}
	return nil
}

// LeaveSession is the explicit end-session action: it leaves the
// realtime stream and clears the session's history. Ordinary UI
// teardown never calls this, so navigation does not evict the user.
func (c *Client) LeaveSession(ctx context.Context, sessionID, userID string) {
	c.tracker.Leave(sessionID, userID)
	c.store.ClearHistory(sessionID)
	if c.persister != nil {
		if err := c.persister.SaveActiveSession(ctx, ""); err != nil {
			c.log.Warn("failed to clear active session", zap.Error(err))
		}
	}
}

// ResumeActiveSession re-joins the session recorded by a previous run,
// if any. Returns the session id, empty when there was nothing to
// resume.
func (c *Client) ResumeActiveSession(ctx context.Context, userID string) (string, error) {
	if c.persister == nil {
		return "", nil
	}
	sessionID, err := c.persister.ActiveSession(ctx)
	if err != nil || sessionID == "" {
		return "", err
	}
	if err := c.JoinSession(ctx, sessionID, userID); err != nil {
		return "", err
	}
	return sessionID, nil
}

// SubmitAction sends a player action. The action is appended to the
// local log optimistically with a client-generated id; the server's
// message_added for it will dedup against the content window.
func (c *Client) SubmitAction(ctx context.Context, sessionID, userID, action string) error {
	if err := c.tracker.Join(ctx, sessionID, userID); err != nil {
		return err
	}
	c.store.AddMessage(game.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Origin:    game.OriginUser,
		Content:   action,
		Timestamp: time.Now().UTC(),
	})
	c.transport.Send(wire.CommandGameAction, wire.GameActionCommand{
		GameSessionID: sessionID,
		UserID:        userID,
		Action:        action,
	})
	return nil
}

// SubmitNPCAction sends an action directed at a specific NPC.
func (c *Client) SubmitNPCAction(ctx context.Context, sessionID, userID, npcID, action string) error {
	if err := c.tracker.Join(ctx, sessionID, userID); err != nil {
		return err
	}
	c.transport.Send(wire.CommandNPCAction, wire.NPCActionCommand{
		GameSessionID: sessionID,
		UserID:        userID,
		NPCID:         npcID,
		Action:        action,
	})
	return nil
}

// SendChat sends a table-chat line and records it locally.
func (c *Client) SendChat(ctx context.Context, sessionID, userID, text string) error {
	if err := c.tracker.Join(ctx, sessionID, userID); err != nil {
		return err
	}
	c.store.AddMessage(game.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Origin:    game.OriginUser,
		Content:   text,
		Timestamp: time.Now().UTC(),
	})
	c.transport.Send(wire.CommandChatMessage, wire.ChatCommand{
		GameSessionID: sessionID,
		UserID:        userID,
		Message:       text,
	})
	return nil
}

// Subscribe registers a handler for one domain event kind and returns
// an unsubscribe function.
func (c *Client) Subscribe(kind game.Kind, handler func(game.Event)) func() {
	return c.bus.Subscribe(kind.Topic(), func(data interface{}) {
		if event, ok := data.(game.Event); ok {
			handler(event)
		}
	})
}

// Messages returns the session's ordered message log.
func (c *Client) Messages(sessionID string) []game.Message {
	return c.store.Messages(sessionID)
}

// Choices returns the session's current selectable choices.
func (c *Client) Choices(sessionID string) []game.Choice {
	return c.store.Choices(sessionID)
}

// ActionInFlight reports whether the session is busy resolving an
// action.
func (c *Client) ActionInFlight(sessionID string) bool {
	return c.store.ActionInFlight(sessionID)
}

// Session fetches session metadata over REST.
func (c *Client) Session(ctx context.Context, sessionID string) (*rest.SessionInfo, error) {
	if c.api == nil {
		return nil, errors.ErrSessionNotFound
	}
	return c.api.Session(ctx, sessionID)
}

// Joined reports whether the pair currently holds a joined handshake.
func (c *Client) Joined(sessionID, userID string) bool {
	return c.tracker.Joined(sessionID, userID)
}
