// Package rest talks to the game's HTTP API. The REST surface races
// with the realtime push path for the same logical updates, so fetched
// messages are always reconciled through the state store's duplicate
// suppression filter, never appended directly.
package rest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/emberloom/sagalink/internal/game"
	"github.com/emberloom/sagalink/internal/state"
	"github.com/emberloom/sagalink/internal/wire"
	"github.com/emberloom/sagalink/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SessionInfo is the REST representation of a game session.
type SessionInfo struct {
	ID          string    `json:"id"`
	Title       string    `json:"title,omitempty"`
	Status      string    `json:"status,omitempty"`
	CharacterID string    `json:"character_id,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// Client fetches session state over HTTP, guarded by a circuit breaker
// so a failing API degrades to push-only operation instead of piling
// up requests.
type Client struct {
	base    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	store   *state.Store
	log     *zap.Logger
}

// NewClient creates a REST client rooted at the given base URL.
func NewClient(base string, store *state.Store, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		base: base,
		http: &http.Client{Timeout: 15 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "game-api",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
		store: store,
		log:   log.With(zap.String("module", "rest")),
	}
}

func (c *Client) get(ctx context.Context, path string, v interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, errors.ErrSessionNotFound
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return nil, json.Unmarshal(body, v)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return errors.Wrap(errors.ErrCircuitOpen, "game api")
	}
	return err
}

// Session fetches one session's metadata.
func (c *Client) Session(ctx context.Context, sessionID string) (*SessionInfo, error) {
	var info SessionInfo
	if err := c.get(ctx, "/api/sessions/"+sessionID, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SyncHistory fetches the session's persisted messages and reconciles
// them into the store. Returns how many were new; duplicates of
// already-pushed messages are silently discarded by the filter.
func (c *Client) SyncHistory(ctx context.Context, sessionID string) (int, error) {
	var messages []wire.Message
	if err := c.get(ctx, "/api/sessions/"+sessionID+"/messages", &messages); err != nil {
		return 0, err
	}

	added := 0
	for _, m := range messages {
		msg := game.Message{
			ID:        m.ID,
			SessionID: sessionID,
			Origin:    game.OriginFrom(m.SenderType),
			Content:   m.Content,
			Timestamp: m.Timestamp,
			Metadata:  m.Metadata,
		}
		if c.store.AddMessage(msg) {
			added++
		}
	}
	c.log.Debug("synced session history",
		zap.String("session_id", sessionID),
		zap.Int("fetched", len(messages)),
		zap.Int("added", added))
	return added, nil
}
