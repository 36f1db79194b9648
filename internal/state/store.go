// Package state owns all per-session runtime state: the ordered
// message log, the current choice set, and the action-in-flight flag.
// Every mutation goes through the store's methods; the append path is
// guarded by duplicate suppression so the same logical message arriving
// over two delivery paths is stored once.
package state

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/emberloom/sagalink/internal/game"
	"github.com/emberloom/sagalink/pkg/errors"
)

// DefaultDedupWindow is the content-based duplicate suppression window
// for messages lacking a stable id. It is a tunable heuristic, not a
// server contract.
const DefaultDedupWindow = time.Second

// Persister is the optional key-value backing used for reload
// resilience. A nil Persister keeps the store purely in-memory.
type Persister interface {
	SaveHistory(ctx context.Context, sessionID string, messages []game.Message) error
	LoadHistory(ctx context.Context, sessionID string) ([]game.Message, error)
	ClearHistory(ctx context.Context, sessionID string) error
	SaveActiveSession(ctx context.Context, sessionID string) error
	ActiveSession(ctx context.Context) (string, error)
}

// sessionState is the runtime state of one session, created lazily on
// first reference.
type sessionState struct {
	messages []game.Message
	ids      map[string]struct{}
	choices  []game.Choice
	inFlight bool
}

func newSessionState() *sessionState {
	return &sessionState{ids: make(map[string]struct{})}
}

// Store is the single source of truth for session runtime state.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*sessionState
	window    time.Duration
	persister Persister
	log       *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithDedupWindow overrides the content-based dedup window.
func WithDedupWindow(window time.Duration) Option {
	return func(s *Store) {
		if window > 0 {
			s.window = window
		}
	}
}

// WithPersister attaches a persistence backend.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// NewStore creates an empty store.
func NewStore(log *zap.Logger, opts ...Option) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		sessions: make(map[string]*sessionState),
		window:   DefaultDedupWindow,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) session(sessionID string) *sessionState {
	ss, ok := s.sessions[sessionID]
	if !ok {
		ss = newSessionState()
		s.sessions[sessionID] = ss
	}
	return ss
}

// AddMessage appends a message to its session's log unless duplicate
// suppression rejects it. Returns true when the message was stored.
// A rejected duplicate is not an error; it is the designed idempotence
// boundary between the push and REST delivery paths.
func (s *Store) AddMessage(msg game.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ss := s.session(msg.SessionID)
	if reason := ss.duplicateOf(msg, s.window); reason != "" {
		s.log.Debug("dropping duplicate message",
			zap.String("session_id", msg.SessionID),
			zap.String("message_id", msg.ID),
			zap.String("reason", reason),
			zap.Error(errors.ErrDuplicateMessage))
		return false
	}

	ss.messages = append(ss.messages, msg)
	if msg.ID != "" {
		ss.ids[msg.ID] = struct{}{}
	}
	s.persistHistory(msg.SessionID, ss)
	return true
}

// SetChoices fully replaces the session's selectable choices. A nil
// slice clears them; there is no merging.
func (s *Store) SetChoices(sessionID string, choices []game.Choice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session(sessionID).choices = choices
}

// SetActionInFlight toggles the session's busy flag. The flag is
// advisory and tolerates out-of-order lifecycle events.
func (s *Store) SetActionInFlight(sessionID string, inFlight bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session(sessionID).inFlight = inFlight
}

// Messages returns the session's ordered log. An unreferenced session
// yields an empty slice, never an error.
func (s *Store) Messages(sessionID string) []game.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ss, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]game.Message, len(ss.messages))
	copy(out, ss.messages)
	return out
}

// Choices returns the session's current choice set, nil when none.
func (s *Store) Choices(sessionID string) []game.Choice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ss, ok := s.sessions[sessionID]
	if !ok || ss.choices == nil {
		return nil
	}
	out := make([]game.Choice, len(ss.choices))
	copy(out, ss.choices)
	return out
}

// ActionInFlight reports whether the session has an action being
// resolved server-side.
func (s *Store) ActionInFlight(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ss, ok := s.sessions[sessionID]
	return ok && ss.inFlight
}

// ClearHistory clears one session's state, or every session's when
// sessionID is empty.
func (s *Store) ClearHistory(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessionID == "" {
		for id := range s.sessions {
			s.clearPersisted(id)
		}
		s.sessions = make(map[string]*sessionState)
		return
	}
	delete(s.sessions, sessionID)
	s.clearPersisted(sessionID)
}

// Restore loads a session's persisted history into memory, replaying
// it through the duplicate filter so a restore over live state cannot
// double up messages. The merged log is re-sorted by timestamp, since
// live messages may already have arrived ahead of the older restored
// ones. No-ops without a persister.
func (s *Store) Restore(ctx context.Context, sessionID string) error {
	if s.persister == nil {
		return nil
	}
	history, err := s.persister.LoadHistory(ctx, sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ss := s.session(sessionID)
	for _, msg := range history {
		if ss.duplicateOf(msg, s.window) != "" {
			continue
		}
		ss.messages = append(ss.messages, msg)
		if msg.ID != "" {
			ss.ids[msg.ID] = struct{}{}
		}
	}
	sort.SliceStable(ss.messages, func(i, j int) bool {
		return ss.messages[i].Timestamp.Before(ss.messages[j].Timestamp)
	})
	return nil
}

func (s *Store) persistHistory(sessionID string, ss *sessionState) {
	if s.persister == nil {
		return
	}
	if err := s.persister.SaveHistory(context.Background(), sessionID, ss.messages); err != nil {
		s.log.Warn("failed to persist message history",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
}

func (s *Store) clearPersisted(sessionID string) {
	if s.persister == nil {
		return
	}
	if err := s.persister.ClearHistory(context.Background(), sessionID); err != nil {
		s.log.Warn("failed to clear persisted history",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
}
