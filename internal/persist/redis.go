// Package persist backs the session state store with a key-value
// store so an interrupted client can restore its active session and
// message history on the next start.
package persist

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/emberloom/sagalink/internal/game"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config holds Redis configuration.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore persists session state under a namespaced key scheme:
// sagalink:session:<id>:history and sagalink:active_session.
type RedisStore struct {
	client *redis.Client
	kb     *KeyBuilder
	log    *zap.Logger
}

// NewRedisStore creates the store and verifies connectivity.
func NewRedisStore(cfg Config, log *zap.Logger) (*RedisStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client: client,
		kb:     NewKeyBuilder("sagalink"),
		log:    log.With(zap.String("module", "persist")),
	}, nil
}

// Close closes the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// SaveHistory stores the full message history for a session.
func (s *RedisStore) SaveHistory(ctx context.Context, sessionID string, messages []game.Message) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := s.client.Set(ctx, s.kb.History(sessionID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// LoadHistory returns the persisted history, nil when none exists.
func (s *RedisStore) LoadHistory(ctx context.Context, sessionID string) ([]game.Message, error) {
	data, err := s.client.Get(ctx, s.kb.History(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	var messages []game.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	return messages, nil
}

// ClearHistory deletes the persisted history for a session.
func (s *RedisStore) ClearHistory(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.kb.History(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// SaveActiveSession records the session the client should restore on
// the next start. An empty id clears the record.
func (s *RedisStore) SaveActiveSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return s.client.Del(ctx, s.kb.ActiveSession()).Err()
	}
	return s.client.Set(ctx, s.kb.ActiveSession(), sessionID, 0).Err()
}

// ActiveSession returns the recorded session id, empty when none.
func (s *RedisStore) ActiveSession(ctx context.Context) (string, error) {
	id, err := s.client.Get(ctx, s.kb.ActiveSession()).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", fmt.Errorf("failed to load active session: %w", err)
	}
	return id, nil
}
