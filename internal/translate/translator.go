// Package translate maps raw server frames to typed domain events.
// It subscribes to every server:* topic, decodes the payload, applies
// the event's effect to the session state store, and republishes the
// result under the stable game:* topic for that kind. Wire-format
// changes stop here.
package translate

import (
	"time"

	"go.uber.org/zap"

	"github.com/emberloom/sagalink/internal/game"
	"github.com/emberloom/sagalink/internal/state"
	"github.com/emberloom/sagalink/internal/transport"
	"github.com/emberloom/sagalink/internal/wire"
	"github.com/emberloom/sagalink/pkg/events"
)

// Translator converts wire events into domain events.
type Translator struct {
	bus   *events.Bus
	store *state.Store
	log   *zap.Logger
}

// New creates a translator and subscribes it to every inbound wire
// event type.
func New(bus *events.Bus, store *state.Store, log *zap.Logger) *Translator {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Translator{bus: bus, store: store, log: log}

	handlers := map[string]func(payload []byte) (*game.Event, bool){
		wire.EventConnected:           t.connected,
		wire.EventJoinedGame:          t.joinedGame,
		wire.EventLeftGame:            t.leftGame,
		wire.EventGameStarted:         t.gameStarted,
		wire.EventNarrativeUpdate:     t.narrativeUpdate,
		wire.EventActionResult:        t.actionResult,
		wire.EventStateUpdate:         t.stateUpdate,
		wire.EventGameError:           t.gameError,
		wire.EventChatMessage:         t.chatMessage,
		wire.EventNotification:        t.notification,
		wire.EventSPUpdate:            t.spUpdate,
		wire.EventSPInsufficient:      t.spInsufficient,
		wire.EventNPCEncounter:        t.npcEncounter,
		wire.EventNPCActionResult:     t.npcActionResult,
		wire.EventChoicesUpdate:       t.choicesUpdate,
		wire.EventSystemMessage:       t.systemMessage,
		wire.EventMessageAdded:        t.messageAdded,
		wire.EventProcessingStarted:   t.processingStarted,
		wire.EventProcessingCompleted: t.processingCompleted,
		wire.EventGameProgress:        t.gameProgress,
	}
	for eventType, handler := range handlers {
		h := handler
		typ := eventType
		bus.Subscribe(transport.RawTopic(typ), func(data interface{}) {
			env, ok := data.(wire.Envelope)
			if !ok {
				return
			}
			event, ok := h(env.Payload)
			if !ok || event == nil {
				return
			}
			t.bus.Publish(event.Kind.Topic(), *event)
		})
	}

	// Connection loss has no wire frame; it is surfaced from the
	// transport's status topic so consumers can stay on game:* topics.
	bus.Subscribe(transport.TopicDisconnected, func(data interface{}) {
		status, _ := data.(transport.Status)
		t.bus.Publish(game.KindDisconnected.Topic(), game.Event{
			Kind:      game.KindDisconnected,
			Timestamp: time.Now(),
			ErrorText: status.Err,
		})
	})
	return t
}

// decode unmarshals a payload, logging and dropping it on failure.
// A malformed frame is never fatal.
func (t *Translator) decode(eventType string, payload []byte, v interface{}) bool {
	if err := wire.DecodePayload(payload, v); err != nil {
		t.log.Warn("dropping undecodable event payload",
			zap.String("type", eventType),
			zap.Error(err))
		return false
	}
	return true
}

func (t *Translator) connected(payload []byte) (*game.Event, bool) {
	var p wire.ConnectedPayload
	if !t.decode(wire.EventConnected, payload, &p) {
		return nil, false
	}
	return &game.Event{Kind: game.KindConnected, Timestamp: p.Timestamp}, true
}

func (t *Translator) joinedGame(payload []byte) (*game.Event, bool) {
	var p wire.JoinedGamePayload
	if !t.decode(wire.EventJoinedGame, payload, &p) {
		return nil, false
	}
	return &game.Event{
		Kind:      game.KindJoined,
		SessionID: p.GameSessionID,
		UserID:    p.UserID,
		Timestamp: p.Timestamp,
	}, true
}

func (t *Translator) leftGame(payload []byte) (*game.Event, bool) {
	var p wire.LeftGamePayload
	if !t.decode(wire.EventLeftGame, payload, &p) {
		return nil, false
	}
	return &game.Event{
		Kind:      game.KindLeft,
		SessionID: p.GameSessionID,
		UserID:    p.UserID,
		Timestamp: p.Timestamp,
	}, true
}

func (t *Translator) gameStarted(payload []byte) (*game.Event, bool) {
	var p wire.GameStartedPayload
	if !t.decode(wire.EventGameStarted, payload, &p) {
		return nil, false
	}
	return &game.Event{
		Kind:        game.KindStarted,
		SessionID:   p.GameSessionID,
		InitialData: p.InitialState,
		Timestamp:   p.Timestamp,
	}, true
}

// narrativeUpdate appends the fragment to the session log unless it is
// a current_scene refresh: those redraw existing state and must not
// grow the persisted history.
func (t *Translator) narrativeUpdate(payload []byte) (*game.Event, bool) {
	var p wire.NarrativeUpdatePayload
	if !t.decode(wire.EventNarrativeUpdate, payload, &p) {
		return nil, false
	}
	if p.NarrativeType != wire.NarrativeTypeCurrentScene {
		t.store.AddMessage(game.Message{
			SessionID: p.GameSessionID,
			Origin:    game.OriginGM,
			Content:   p.Narrative,
			Timestamp: p.Timestamp,
		})
	}
	return &game.Event{
		Kind:      game.KindNarrative,
		SessionID: p.GameSessionID,
		Narrative: p.Narrative,
		Status:    p.NarrativeType,
		Timestamp: p.Timestamp,
	}, true
}

// actionResult extracts the embedded narrative through the same dedup
// append path as any other message, and the embedded choices as a full
// replacement of the current set.
func (t *Translator) actionResult(payload []byte) (*game.Event, bool) {
	var p wire.ActionResultPayload
	if !t.decode(wire.EventActionResult, payload, &p) {
		return nil, false
	}
	t.applyOutcome(p.GameSessionID, p.Result, p.Timestamp)
	return &game.Event{
		Kind:      game.KindActionResult,
		SessionID: p.GameSessionID,
		Action:    p.Action,
		Narrative: p.Result.Narrative,
		Choices:   toDomainChoices(p.Result.Choices),
		Timestamp: p.Timestamp,
	}, true
}

func (t *Translator) applyOutcome(sessionID string, outcome wire.ActionOutcome, at time.Time) {
	if outcome.Narrative != "" {
		t.store.AddMessage(game.Message{
			SessionID: sessionID,
			Origin:    game.OriginGM,
			Content:   outcome.Narrative,
			Timestamp: at,
		})
	}
	if outcome.Choices != nil {
		t.store.SetChoices(sessionID, toDomainChoices(outcome.Choices))
	}
}

func (t *Translator) stateUpdate(payload []byte) (*game.Event, bool) {
	var p wire.StateUpdatePayload
	if !t.decode(wire.EventStateUpdate, payload, &p) {
		return nil, false
	}
	return &game.Event{
		Kind:      game.KindStateUpdate,
		SessionID: p.GameSessionID,
		Update:    p.Update,
		Timestamp: p.Timestamp,
	}, true
}

// gameError surfaces as a user-visible notification; session state is
// untouched.
func (t *Translator) gameError(payload []byte) (*game.Event, bool) {
	var p wire.GameErrorPayload
	if !t.decode(wire.EventGameError, payload, &p) {
		return nil, false
	}
	return &game.Event{
		Kind:      game.KindError,
		SessionID: p.GameSessionID,
		ErrorText: p.Message,
		Timestamp: p.Timestamp,
	}, true
}

func (t *Translator) chatMessage(payload []byte) (*game.Event, bool) {
	var p wire.ChatMessagePayload
	if !t.decode(wire.EventChatMessage, payload, &p) {
		return nil, false
	}
	t.store.AddMessage(game.Message{
		SessionID: p.GameSessionID,
		Origin:    game.OriginUser,
		Content:   p.Message,
		Timestamp: p.Timestamp,
	})
	return &game.Event{
		Kind:      game.KindChat,
		SessionID: p.GameSessionID,
		UserID:    p.UserID,
		Narrative: p.Message,
		Timestamp: p.Timestamp,
	}, true
}

func (t *Translator) notification(payload []byte) (*game.Event, bool) {
	var p wire.NotificationPayload
	if !t.decode(wire.EventNotification, payload, &p) {
		return nil, false
	}
	return &game.Event{
		Kind:      game.KindNotification,
		SessionID: p.GameSessionID,
		Narrative: p.Message,
		Status:    p.Level,
		Timestamp: p.Timestamp,
	}, true
}

func (t *Translator) spUpdate(payload []byte) (*game.Event, bool) {
	var p wire.SPUpdatePayload
	if !t.decode(wire.EventSPUpdate, payload, &p) {
		return nil, false
	}
	return &game.Event{
		Kind:      game.KindSPUpdate,
		SessionID: p.GameSessionID,
		SP:        &game.StoryPoints{Current: p.Current, Max: p.Max},
		Timestamp: p.Timestamp,
	}, true
}

func (t *Translator) spInsufficient(payload []byte) (*game.Event, bool) {
	var p wire.SPInsufficientPayload
	if !t.decode(wire.EventSPInsufficient, payload, &p) {
		return nil, false
	}
	return &game.Event{
		Kind:      game.KindSPInsufficient,
		SessionID: p.GameSessionID,
		SP:        &game.StoryPoints{Current: p.Current, Max: p.Required},
		Timestamp: p.Timestamp,
	}, true
}

// npcEncounter accepts the single and batched forms and carries every
// NPC in one domain event. Encounter choices replace the current set.
func (t *Translator) npcEncounter(payload []byte) (*game.Event, bool) {
	var p wire.NPCEncounterPayload
	if !t.decode(wire.EventNPCEncounter, payload, &p) {
		return nil, false
	}
	if p.Choices != nil {
		t.store.SetChoices(p.GameSessionID, toDomainChoices(p.Choices))
	}
	return &game.Event{
		Kind:      game.KindNPCEncounter,
		SessionID: p.GameSessionID,
		NPCs:      toDomainNPCs(p.All()),
		Choices:   toDomainChoices(p.Choices),
		Timestamp: p.Timestamp,
	}, true
}

func (t *Translator) npcActionResult(payload []byte) (*game.Event, bool) {
	var p wire.NPCActionResultPayload
	if !t.decode(wire.EventNPCActionResult, payload, &p) {
		return nil, false
	}
	t.applyOutcome(p.GameSessionID, p.Result, p.Timestamp)
	return &game.Event{
		Kind:      game.KindNPCActionResult,
		SessionID: p.GameSessionID,
		NPCID:     p.NPCID,
		Action:    p.Action,
		Narrative: p.Result.Narrative,
		Choices:   toDomainChoices(p.Result.Choices),
		Timestamp: p.Timestamp,
	}, true
}

// choicesUpdate fully replaces the session's choice set; there is no
// merging. An explicit empty list clears it.
func (t *Translator) choicesUpdate(payload []byte) (*game.Event, bool) {
	var p wire.ChoicesUpdatePayload
	if !t.decode(wire.EventChoicesUpdate, payload, &p) {
		return nil, false
	}
	choices := toDomainChoices(p.Choices)
	t.store.SetChoices(p.GameSessionID, choices)
	return &game.Event{
		Kind:      game.KindChoicesUpdate,
		SessionID: p.GameSessionID,
		Choices:   choices,
		Timestamp: p.Timestamp,
	}, true
}

func (t *Translator) systemMessage(payload []byte) (*game.Event, bool) {
	var p wire.SystemMessagePayload
	if !t.decode(wire.EventSystemMessage, payload, &p) {
		return nil, false
	}
	t.store.AddMessage(game.Message{
		SessionID: p.GameSessionID,
		Origin:    game.OriginSystem,
		Content:   p.Content,
		Timestamp: p.Timestamp,
	})
	return &game.Event{
		Kind:      game.KindSystemMessage,
		SessionID: p.GameSessionID,
		Narrative: p.Content,
		Timestamp: p.Timestamp,
	}, true
}

// messageAdded is the canonical persistence path. The server-assigned
// message id is normative for duplicate suppression, so a network
// retry of the same payload stores nothing twice.
func (t *Translator) messageAdded(payload []byte) (*game.Event, bool) {
	var p wire.MessageAddedPayload
	if !t.decode(wire.EventMessageAdded, payload, &p) {
		return nil, false
	}
	sessionID := p.GameSessionID
	if sessionID == "" {
		sessionID = p.Message.GameSessionID
	}
	msg := game.Message{
		ID:        p.Message.ID,
		SessionID: sessionID,
		Origin:    game.OriginFrom(p.Message.SenderType),
		Content:   p.Message.Content,
		Timestamp: p.Message.Timestamp,
		Metadata:  p.Message.Metadata,
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = p.Timestamp
	}
	t.store.AddMessage(msg)
	if p.Choices != nil {
		t.store.SetChoices(sessionID, toDomainChoices(p.Choices))
	}
	return &game.Event{
		Kind:      game.KindMessageAdded,
		SessionID: sessionID,
		Message:   &msg,
		Choices:   toDomainChoices(p.Choices),
		Timestamp: p.Timestamp,
	}, true
}

func (t *Translator) processingStarted(payload []byte) (*game.Event, bool) {
	var p wire.ProcessingStartedPayload
	if !t.decode(wire.EventProcessingStarted, payload, &p) {
		return nil, false
	}
	t.store.SetActionInFlight(p.GameSessionID, true)
	return &game.Event{
		Kind:      game.KindProcessingStarted,
		SessionID: p.GameSessionID,
		Status:    p.Status,
		Timestamp: p.Timestamp,
	}, true
}

// processingCompleted clears the busy flag unconditionally: a
// completion with no observed start still leaves the session idle.
func (t *Translator) processingCompleted(payload []byte) (*game.Event, bool) {
	var p wire.ProcessingCompletedPayload
	if !t.decode(wire.EventProcessingCompleted, payload, &p) {
		return nil, false
	}
	t.store.SetActionInFlight(p.GameSessionID, false)
	return &game.Event{
		Kind:      game.KindProcessingCompleted,
		SessionID: p.GameSessionID,
		Timestamp: p.Timestamp,
	}, true
}

// gameProgress routes by progress type: session lifecycle milestones
// get their own domain kinds, everything else stays a generic progress
// event.
func (t *Translator) gameProgress(payload []byte) (*game.Event, bool) {
	var p wire.GameProgressPayload
	if !t.decode(wire.EventGameProgress, payload, &p) {
		return nil, false
	}
	kind := game.KindProgress
	switch p.ProgressType {
	case wire.ProgressSessionEndingProposal:
		kind = game.KindSessionEndingProposal
	case wire.ProgressSessionResultReady:
		kind = game.KindSessionResultReady
	}
	return &game.Event{
		Kind:      kind,
		SessionID: p.GameSessionID,
		Progress:  p.ProgressType,
		Narrative: p.Message,
		Timestamp: p.Timestamp,
	}, true
}

func toDomainChoices(choices []wire.Choice) []game.Choice {
	if choices == nil {
		return nil
	}
	out := make([]game.Choice, len(choices))
	for i, c := range choices {
		out[i] = game.Choice{ID: c.ID, Text: c.Text, Difficulty: c.Difficulty}
	}
	return out
}

func toDomainNPCs(npcs []wire.NPC) []game.NPC {
	if npcs == nil {
		return nil
	}
	out := make([]game.NPC, len(npcs))
	for i, n := range npcs {
		out[i] = game.NPC{
			ID:          n.ID,
			Name:        n.Name,
			Description: n.Description,
			Disposition: n.Disposition,
		}
	}
	return out
}
