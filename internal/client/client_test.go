package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/emberloom/sagalink/internal/config"
	"github.com/emberloom/sagalink/internal/game"
	"github.com/emberloom/sagalink/internal/state"
	"github.com/emberloom/sagalink/internal/transport"
	"github.com/emberloom/sagalink/internal/wire"
	"github.com/emberloom/sagalink/pkg/events"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeTransport satisfies Transport without a socket. Commands are
// recorded; connectivity is driven by the test.
type fakeTransport struct {
	bus *events.Bus

	mu        sync.Mutex
	connected bool
	sent      []string
}

func (f *fakeTransport) Connect(_ context.Context) {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	f.bus.Publish(transport.TopicConnected, transport.Status{})
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.bus.Publish(transport.TopicDisconnected, transport.Status{})
}

func (f *fakeTransport) Send(eventType string, _ interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, eventType)
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// push simulates a server frame arriving over the transport.
func (f *fakeTransport) push(t *testing.T, eventType string, payload interface{}) {
	t.Helper()
	data, err := wire.EncodeEnvelope(eventType, payload)
	require.NoError(t, err)
	env, err := wire.DecodeEnvelope(data)
	require.NoError(t, err)
	f.bus.Publish(transport.RawTopic(eventType), env)
}

func testConfig() *config.Config {
	return &config.Config{
		WSEndpoint:        "ws://localhost:8080/ws",
		ReconnectAttempts: 5,
		ReconnectInitial:  time.Second,
		ReconnectMax:      10 * time.Second,
		DedupWindow:       time.Second,
		JoinTimeout:       time.Second,
	}
}

func newTestClient(persister state.Persister) (*Client, *fakeTransport) {
	bus := events.NewBus(zap.NewNop())
	tr := &fakeTransport{bus: bus}
	cfg := testConfig()
	cfg.APIEndpoint = "" // no REST surface in these tests
	return assemble(cfg, zap.NewNop(), bus, tr, persister), tr
}

func TestSessionScenario(t *testing.T) {
	c, tr := newTestClient(nil)
	tr.Connect(context.Background())

	require.NoError(t, c.JoinSession(context.Background(), "s1", "u1"))
	assert.True(t, c.Joined("s1", "u1"))

	payload := wire.MessageAddedPayload{
		GameSessionID: "s1",
		Message: wire.Message{
			ID:         "m1",
			SenderType: "gm",
			Content:    "Hello",
			Timestamp:  t0,
		},
		Timestamp: t0,
	}
	tr.push(t, wire.EventMessageAdded, payload)

	messages := c.Messages("s1")
	require.Len(t, messages, 1)
	assert.Equal(t, game.OriginGM, messages[0].Origin)
	assert.Equal(t, "Hello", messages[0].Content)

	// network retry of the same payload
	tr.push(t, wire.EventMessageAdded, payload)
	assert.Len(t, c.Messages("s1"), 1)
}

func TestJoinSessionIdempotent(t *testing.T) {
	c, tr := newTestClient(nil)
	tr.Connect(context.Background())

	require.NoError(t, c.JoinSession(context.Background(), "s1", "u1"))
	require.NoError(t, c.JoinSession(context.Background(), "s1", "u1"))

	assert.Equal(t, []string{wire.CommandJoinGame}, tr.commands())
}

func TestSubmitActionOptimisticAppend(t *testing.T) {
	c, tr := newTestClient(nil)
	tr.Connect(context.Background())

	require.NoError(t, c.SubmitAction(context.Background(), "s1", "u1", "open the door"))

	assert.Equal(t, []string{wire.CommandJoinGame, wire.CommandGameAction}, tr.commands(), "submit must ensure membership first")
	messages := c.Messages("s1")
	require.Len(t, messages, 1)
	assert.Equal(t, game.OriginUser, messages[0].Origin)
	assert.Equal(t, "open the door", messages[0].Content)
	assert.NotEmpty(t, messages[0].ID, "optimistic messages carry a client-generated id")
}

func TestSendChat(t *testing.T) {
	c, tr := newTestClient(nil)
	tr.Connect(context.Background())

	require.NoError(t, c.SendChat(context.Background(), "s1", "u1", "hello table"))
	assert.Contains(t, tr.commands(), wire.CommandChatMessage)
	assert.Len(t, c.Messages("s1"), 1)
}

func TestSubmitNPCAction(t *testing.T) {
	c, tr := newTestClient(nil)
	tr.Connect(context.Background())

	require.NoError(t, c.SubmitNPCAction(context.Background(), "s1", "u1", "n1", "persuade"))
	assert.Equal(t, []string{wire.CommandJoinGame, wire.CommandNPCAction}, tr.commands())
}

func TestLeaveSessionClearsHistory(t *testing.T) {
	c, tr := newTestClient(nil)
	tr.Connect(context.Background())

	require.NoError(t, c.JoinSession(context.Background(), "s1", "u1"))
	tr.push(t, wire.EventMessageAdded, wire.MessageAddedPayload{
		GameSessionID: "s1",
		Message:       wire.Message{ID: "m1", SenderType: "gm", Content: "Hello", Timestamp: t0},
		Timestamp:     t0,
	})
	require.Len(t, c.Messages("s1"), 1)

	c.LeaveSession(context.Background(), "s1", "u1")

	assert.False(t, c.Joined("s1", "u1"))
	assert.Empty(t, c.Messages("s1"))
	assert.Contains(t, tr.commands(), wire.CommandLeaveGame)
}

func TestDisconnectRequiresRejoin(t *testing.T) {
	c, tr := newTestClient(nil)
	tr.Connect(context.Background())

	require.NoError(t, c.JoinSession(context.Background(), "s1", "u1"))
	tr.Disconnect()
	assert.False(t, c.Joined("s1", "u1"), "membership is connection-scoped")

	tr.Connect(context.Background())
	require.NoError(t, c.JoinSession(context.Background(), "s1", "u1"))
	assert.Equal(t, []string{wire.CommandJoinGame, wire.CommandJoinGame}, tr.commands())
}

func TestSubscribeToDomainEvents(t *testing.T) {
	c, tr := newTestClient(nil)
	tr.Connect(context.Background())

	var got []game.Event
	unsub := c.Subscribe(game.KindChoicesUpdate, func(e game.Event) {
		got = append(got, e)
	})
	defer unsub()

	tr.push(t, wire.EventChoicesUpdate, wire.ChoicesUpdatePayload{
		GameSessionID: "s1",
		Choices:       []wire.Choice{{Text: "Run"}},
		Timestamp:     t0,
	})

	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].SessionID)
	require.Len(t, c.Choices("s1"), 1)
	assert.Equal(t, "Run", c.Choices("s1")[0].Text)
}

// memPersister is an in-memory state.Persister.
type memPersister struct {
	histories map[string][]game.Message
	active    string
}

func newMemPersister() *memPersister {
	return &memPersister{histories: make(map[string][]game.Message)}
}

func (p *memPersister) SaveHistory(_ context.Context, sessionID string, messages []game.Message) error {
	p.histories[sessionID] = append([]game.Message(nil), messages...)
	return nil
}

func (p *memPersister) LoadHistory(_ context.Context, sessionID string) ([]game.Message, error) {
	return p.histories[sessionID], nil
}

func (p *memPersister) ClearHistory(_ context.Context, sessionID string) error {
	delete(p.histories, sessionID)
	return nil
}

func (p *memPersister) SaveActiveSession(_ context.Context, sessionID string) error {
	p.active = sessionID
	return nil
}

func (p *memPersister) ActiveSession(_ context.Context) (string, error) {
	return p.active, nil
}

func TestResumeActiveSession(t *testing.T) {
	persister := newMemPersister()
	persister.active = "s1"
	persister.histories["s1"] = []game.Message{
		{ID: "m1", SessionID: "s1", Origin: game.OriginGM, Content: "Welcome back", Timestamp: t0},
	}

	c, tr := newTestClient(persister)
	tr.Connect(context.Background())

	sessionID, err := c.ResumeActiveSession(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "s1", sessionID)
	assert.True(t, c.Joined("s1", "u1"))

	messages := c.Messages("s1")
	require.Len(t, messages, 1)
	assert.Equal(t, "Welcome back", messages[0].Content)
}

func TestResumeWithNothingRecorded(t *testing.T) {
	c, tr := newTestClient(newMemPersister())
	tr.Connect(context.Background())

	sessionID, err := c.ResumeActiveSession(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, sessionID)
	assert.Empty(t, tr.commands())
}
