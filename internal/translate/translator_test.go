package translate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/emberloom/sagalink/internal/game"
	"github.com/emberloom/sagalink/internal/state"
	"github.com/emberloom/sagalink/internal/transport"
	"github.com/emberloom/sagalink/internal/wire"
	"github.com/emberloom/sagalink/pkg/events"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	bus   *events.Bus
	store *state.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		bus:   events.NewBus(zap.NewNop()),
		store: state.NewStore(zap.NewNop()),
	}
	New(f.bus, f.store, zap.NewNop())
	return f
}

// push delivers a raw wire event the way the transport does.
func (f *fixture) push(t *testing.T, eventType string, payload interface{}) {
	t.Helper()
	data, err := wire.EncodeEnvelope(eventType, payload)
	require.NoError(t, err)
	env, err := wire.DecodeEnvelope(data)
	require.NoError(t, err)
	f.bus.Publish(transport.RawTopic(eventType), env)
}

// capture collects domain events published under a kind's topic.
func (f *fixture) capture(kind game.Kind) *[]game.Event {
	var captured []game.Event
	f.bus.Subscribe(kind.Topic(), func(data interface{}) {
		captured = append(captured, data.(game.Event))
	})
	return &captured
}

func TestMessageAddedScenario(t *testing.T) {
	f := newFixture(t)
	added := f.capture(game.KindMessageAdded)

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
	f.push(t, wire.EventMessageAdded, payload)

	messages := f.store.Messages("s1")
	require.Len(t, messages, 1)
	assert.Equal(t, game.OriginGM, messages[0].Origin)
	assert.Equal(t, "Hello", messages[0].Content)
	require.Len(t, *added, 1)

	// network retry of the identical payload
	f.push(t, wire.EventMessageAdded, payload)
	assert.Len(t, f.store.Messages("s1"), 1, "retried message_added must not duplicate")
}

func TestMessageAddedReplacesChoices(t *testing.T) {
	f := newFixture(t)

	f.push(t, wire.EventMessageAdded, wire.MessageAddedPayload{
		GameSessionID: "s1",
		Message:       wire.Message{ID: "m1", SenderType: "gm", Content: "Pick one", Timestamp: t0},
		Choices:       []wire.Choice{{Text: "Fight"}, {Text: "Flee"}},
		Timestamp:     t0,
	})

	choices := f.store.Choices("s1")
	require.Len(t, choices, 2)
	assert.Equal(t, "Fight", choices[0].Text)
}

func TestNarrativeUpdateAppends(t *testing.T) {
	f := newFixture(t)
	narratives := f.capture(game.KindNarrative)

	f.push(t, wire.EventNarrativeUpdate, wire.NarrativeUpdatePayload{
		GameSessionID: "s1",
		NarrativeType: "scene_change",
		Narrative:     "Night falls.",
		Timestamp:     t0,
	})

	assert.Len(t, f.store.Messages("s1"), 1)
	require.Len(t, *narratives, 1)
	assert.Equal(t, "Night falls.", (*narratives)[0].Narrative)
}

func TestCurrentSceneNeverPersisted(t *testing.T) {
	f := newFixture(t)
	narratives := f.capture(game.KindNarrative)

	f.push(t, wire.EventNarrativeUpdate, wire.NarrativeUpdatePayload{
		GameSessionID: "s1",
		NarrativeType: wire.NarrativeTypeCurrentScene,
		Narrative:     "You stand in the hall.",
		Timestamp:     t0,
	})

	assert.Empty(t, f.store.Messages("s1"), "current_scene is display-only")
	assert.Len(t, *narratives, 1, "the domain event still fires for redraws")
}

func TestActionResultExtraction(t *testing.T) {
	f := newFixture(t)
	results := f.capture(game.KindActionResult)

	f.push(t, wire.EventActionResult, wire.ActionResultPayload{
		GameSessionID: "s1",
		Action:        "open the door",
		Result: wire.ActionOutcome{
			Narrative: "The door creaks open.",
			Choices:   []wire.Choice{{Text: "Enter"}, {Text: "Wait"}},
		},
		Timestamp: t0,
	})

	messages := f.store.Messages("s1")
	require.Len(t, messages, 1)
	assert.Equal(t, "The door creaks open.", messages[0].Content)
	assert.Len(t, f.store.Choices("s1"), 2)
	require.Len(t, *results, 1)
	assert.Equal(t, "open the door", (*results)[0].Action)
}

func TestActionResultWithoutNarrative(t *testing.T) {
	f := newFixture(t)

	f.push(t, wire.EventActionResult, wire.ActionResultPayload{
		GameSessionID: "s1",
		Result:        wire.ActionOutcome{},
		Timestamp:     t0,
	})

	assert.Empty(t, f.store.Messages("s1"))
	assert.Nil(t, f.store.Choices("s1"))
}

func TestNarrativeRaceBetweenDeliveryPaths(t *testing.T) {
	f := newFixture(t)

	// the same narrative arrives via a push and via an embedded result
	// inside one round trip, in either order
	f.push(t, wire.EventNarrativeUpdate, wire.NarrativeUpdatePayload{
		GameSessionID: "s1",
		Narrative:     "A wolf howls.",
		Timestamp:     t0,
	})
	f.push(t, wire.EventActionResult, wire.ActionResultPayload{
		GameSessionID: "s1",
		Result:        wire.ActionOutcome{Narrative: "A wolf howls."},
		Timestamp:     t0.Add(400 * time.Millisecond),
	})

	assert.Len(t, f.store.Messages("s1"), 1, "both delivery paths must collapse to one message")
}

func TestChoicesUpdateReplaces(t *testing.T) {
	f := newFixture(t)

	f.push(t, wire.EventChoicesUpdate, wire.ChoicesUpdatePayload{
		GameSessionID: "s1",
		Choices:       []wire.Choice{{Text: "a"}, {Text: "b"}},
		Timestamp:     t0,
	})
	f.push(t, wire.EventChoicesUpdate, wire.ChoicesUpdatePayload{
		GameSessionID: "s1",
		Choices:       []wire.Choice{{Text: "c"}},
		Timestamp:     t0,
	})

	choices := f.store.Choices("s1")
	require.Len(t, choices, 1)
	assert.Equal(t, "c", choices[0].Text)
}

func TestProcessingLifecycle(t *testing.T) {
	f := newFixture(t)

	f.push(t, wire.EventProcessingStarted, wire.ProcessingStartedPayload{
		GameSessionID: "s1",
		Status:        "resolving",
		Timestamp:     t0,
	})
	assert.True(t, f.store.ActionInFlight("s1"))

	f.push(t, wire.EventProcessingCompleted, wire.ProcessingCompletedPayload{
		GameSessionID: "s1",
		Timestamp:     t0,
	})
	assert.False(t, f.store.ActionInFlight("s1"))
}

func TestProcessingCompletedOutOfOrder(t *testing.T) {
	f := newFixture(t)

	f.push(t, wire.EventProcessingCompleted, wire.ProcessingCompletedPayload{
		GameSessionID: "s1",
		Timestamp:     t0,
	})
	assert.False(t, f.store.ActionInFlight("s1"), "completion without a start simply clears the flag")
}

func TestSystemMessagePersisted(t *testing.T) {
	f := newFixture(t)

	f.push(t, wire.EventSystemMessage, wire.SystemMessagePayload{
		GameSessionID: "s1",
		Content:       "The session will end soon.",
		Timestamp:     t0,
	})

	messages := f.store.Messages("s1")
	require.Len(t, messages, 1)
	assert.Equal(t, game.OriginSystem, messages[0].Origin)
}

func TestChatMessagePersisted(t *testing.T) {
	f := newFixture(t)
	chats := f.capture(game.KindChat)

	f.push(t, wire.EventChatMessage, wire.ChatMessagePayload{
		GameSessionID: "s1",
		UserID:        "u2",
		Message:       "brb",
		Timestamp:     t0,
	})

	messages := f.store.Messages("s1")
	require.Len(t, messages, 1)
	assert.Equal(t, game.OriginUser, messages[0].Origin)
	require.Len(t, *chats, 1)
	assert.Equal(t, "u2", (*chats)[0].UserID)
}

func TestGameErrorLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	errors := f.capture(game.KindError)

	f.push(t, wire.EventGameError, wire.GameErrorPayload{
		GameSessionID: "s1",
		Message:       "invalid action",
		Timestamp:     t0,
	})

	assert.Empty(t, f.store.Messages("s1"))
	require.Len(t, *errors, 1)
	assert.Equal(t, "invalid action", (*errors)[0].ErrorText)
}

func TestNPCEncounterSingleAndBatched(t *testing.T) {
	f := newFixture(t)
	encounters := f.capture(game.KindNPCEncounter)

	f.push(t, wire.EventNPCEncounter, wire.NPCEncounterPayload{
		GameSessionID: "s1",
		NPC:           &wire.NPC{ID: "n1", Name: "Warden"},
		Choices:       []wire.Choice{{Text: "Greet"}},
		Timestamp:     t0,
	})
	f.push(t, wire.EventNPCEncounter, wire.NPCEncounterPayload{
		GameSessionID: "s1",
		NPCs:          []wire.NPC{{ID: "n2"}, {ID: "n3"}},
		Timestamp:     t0,
	})

	require.Len(t, *encounters, 2)
	assert.Len(t, (*encounters)[0].NPCs, 1)
	assert.Len(t, (*encounters)[1].NPCs, 2)
	// the second encounter carried no choices, so the first replacement
	// survives
	require.Len(t, f.store.Choices("s1"), 1)
	assert.Equal(t, "Greet", f.store.Choices("s1")[0].Text)
}

func TestNPCActionResult(t *testing.T) {
	f := newFixture(t)
	results := f.capture(game.KindNPCActionResult)

	f.push(t, wire.EventNPCActionResult, wire.NPCActionResultPayload{
		GameSessionID: "s1",
		NPCID:         "n1",
		Action:        "persuade",
		Result:        wire.ActionOutcome{Narrative: "The warden relents."},
		Timestamp:     t0,
	})

	require.Len(t, *results, 1)
	assert.Equal(t, "n1", (*results)[0].NPCID)
	assert.Len(t, f.store.Messages("s1"), 1)
}

func TestGameProgressRouting(t *testing.T) {
	f := newFixture(t)
	proposals := f.capture(game.KindSessionEndingProposal)
	ready := f.capture(game.KindSessionResultReady)
	generic := f.capture(game.KindProgress)

	f.push(t, wire.EventGameProgress, wire.GameProgressPayload{
		GameSessionID: "s1",
		ProgressType:  wire.ProgressSessionEndingProposal,
		Timestamp:     t0,
	})
	f.push(t, wire.EventGameProgress, wire.GameProgressPayload{
		GameSessionID: "s1",
		ProgressType:  wire.ProgressSessionResultReady,
		Timestamp:     t0,
	})
	f.push(t, wire.EventGameProgress, wire.GameProgressPayload{
		GameSessionID: "s1",
		ProgressType:  "chapter_complete",
		Timestamp:     t0,
	})

	assert.Len(t, *proposals, 1)
	assert.Len(t, *ready, 1)
	assert.Len(t, *generic, 1)
}

func TestSPEvents(t *testing.T) {
	f := newFixture(t)
	updates := f.capture(game.KindSPUpdate)
	insufficient := f.capture(game.KindSPInsufficient)

	f.push(t, wire.EventSPUpdate, wire.SPUpdatePayload{
		GameSessionID: "s1",
		Current:       7,
		Max:           10,
		Timestamp:     t0,
	})
	f.push(t, wire.EventSPInsufficient, wire.SPInsufficientPayload{
		GameSessionID: "s1",
		Required:      5,
		Current:       2,
		Timestamp:     t0,
	})

	require.Len(t, *updates, 1)
	assert.Equal(t, 7, (*updates)[0].SP.Current)
	require.Len(t, *insufficient, 1)
	assert.Equal(t, 2, (*insufficient)[0].SP.Current)
}

func TestConnectionLossBecomesDomainEvent(t *testing.T) {
	f := newFixture(t)
	dropped := f.capture(game.KindDisconnected)

	f.bus.Publish(transport.TopicDisconnected, transport.Status{Err: "read tcp: connection reset"})

	require.Len(t, *dropped, 1)
	assert.Equal(t, game.KindDisconnected, (*dropped)[0].Kind)
	assert.Equal(t, "read tcp: connection reset", (*dropped)[0].ErrorText)
	assert.False(t, (*dropped)[0].Timestamp.IsZero())
}

func TestEveryEventTypeHasHandler(t *testing.T) {
	f := newFixture(t)
	for _, eventType := range wire.EventTypes() {
		assert.Equal(t, 1, f.bus.Subscribers(transport.RawTopic(eventType)), eventType)
	}
}

func TestMalformedPayloadDropped(t *testing.T) {
	f := newFixture(t)
	added := f.capture(game.KindMessageAdded)

	f.bus.Publish(transport.RawTopic(wire.EventMessageAdded), wire.Envelope{
		Type:    wire.EventMessageAdded,
		Payload: []byte(`{"message":`),
	})

	assert.Empty(t, *added)
	assert.Empty(t, f.store.Messages("s1"))
}
