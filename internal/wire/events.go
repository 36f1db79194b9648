// Package wire defines the JSON shapes exchanged with the game server
// over the realtime connection, and the codec used to read and write
// them. Everything outside this package works with translated domain
// types; wire field names never leak past the translator.
package wire

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/emberloom/sagalink/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Inbound event types pushed by the server.
const (
	EventConnected           = "connected"
	EventJoinedGame          = "joined_game"
	EventLeftGame            = "left_game"
	EventGameStarted         = "game_started"
	EventNarrativeUpdate     = "narrative_update"
	EventActionResult        = "action_result"
	EventStateUpdate         = "state_update"
	EventGameError           = "game_error"
	EventChatMessage         = "chat_message"
	EventNotification        = "notification"
	EventSPUpdate            = "sp_update"
	EventSPInsufficient      = "sp_insufficient"
	EventNPCEncounter        = "npc_encounter"
	EventNPCActionResult     = "npc_action_result"
	EventChoicesUpdate       = "choices_update"
	EventSystemMessage       = "system_message"
	EventMessageAdded        = "message_added"
	EventProcessingStarted   = "processing_started"
	EventProcessingCompleted = "processing_completed"
	EventGameProgress        = "game_progress"
)

// NarrativeTypeCurrentScene marks a display-only narrative refresh.
// Such updates redraw existing state and are never persisted.
const NarrativeTypeCurrentScene = "current_scene"

// Progress types carried by game_progress events.
const (
	ProgressSessionEndingProposal = "session_ending_proposal"
	ProgressSessionResultReady    = "session_result_ready"
)

// EventTypes lists every inbound event type the client understands.
func EventTypes() []string {
	return []string{
		EventConnected,
		EventJoinedGame,
		EventLeftGame,
		EventGameStarted,
		EventNarrativeUpdate,
		EventActionResult,
		EventStateUpdate,
		EventGameError,
		EventChatMessage,
		EventNotification,
		EventSPUpdate,
		EventSPInsufficient,
		EventNPCEncounter,
		EventNPCActionResult,
		EventChoicesUpdate,
		EventSystemMessage,
		EventMessageAdded,
		EventProcessingStarted,
		EventProcessingCompleted,
		EventGameProgress,
	}
}

// Envelope is the frame exchanged on the wire in both directions.
type Envelope struct {
	Type    string              `json:"type"`
	Payload jsoniter.RawMessage `json:"payload,omitempty"`
}

// DecodeEnvelope parses a raw frame.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return env, nil
}

// EncodeEnvelope serializes a frame for the wire.
func EncodeEnvelope(eventType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: eventType, Payload: raw})
}

// DecodePayload parses an envelope payload into the given shape.
func DecodePayload(payload []byte, v interface{}) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return nil
}

// Message is a server-persisted message as it appears on the wire.
type Message struct {
	ID            string                 `json:"id,omitempty"`
	GameSessionID string                 `json:"game_session_id,omitempty"`
	SenderType    string                 `json:"sender_type,omitempty"`
	Content       string                 `json:"content"`
	Timestamp     time.Time              `json:"timestamp"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// Choice is one selectable option as it appears on the wire.
type Choice struct {
	ID         string `json:"id,omitempty"`
	Text       string `json:"text"`
	Difficulty int    `json:"difficulty,omitempty"`
}

// NPC describes a non-player character in an encounter payload.
type NPC struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Disposition string `json:"disposition,omitempty"`
}

// ActionOutcome is the embedded result object carried by action_result
// and npc_action_result. All fields are optional; the server fills in
// whatever the resolved action produced.
type ActionOutcome struct {
	Narrative    string                 `json:"narrative,omitempty"`
	Choices      []Choice               `json:"choices,omitempty"`
	Success      *bool                  `json:"success,omitempty"`
	StateChanges map[string]interface{} `json:"state_changes,omitempty"`
	SPCost       int                    `json:"sp_cost,omitempty"`
}

// ConnectedPayload acknowledges the transport handshake.
type ConnectedPayload struct {
	ConnectionID string    `json:"connection_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// JoinedGamePayload acknowledges a join_game command.
type JoinedGamePayload struct {
	GameSessionID string    `json:"game_session_id"`
	UserID        string    `json:"user_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// LeftGamePayload acknowledges a leave_game command.
type LeftGamePayload struct {
	GameSessionID string    `json:"game_session_id"`
	UserID        string    `json:"user_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// GameStartedPayload announces that the session narrative has begun.
type GameStartedPayload struct {
	GameSessionID string              `json:"game_session_id"`
	InitialState  jsoniter.RawMessage `json:"initial_state,omitempty"`
	Timestamp     time.Time           `json:"timestamp"`
}

// NarrativeUpdatePayload carries a narrative fragment.
type NarrativeUpdatePayload struct {
	GameSessionID string    `json:"game_session_id"`
	NarrativeType string    `json:"narrative_type,omitempty"`
	Narrative     string    `json:"narrative"`
	Timestamp     time.Time `json:"timestamp"`
}

// ActionResultPayload reports the outcome of a submitted action.
type ActionResultPayload struct {
	GameSessionID string        `json:"game_session_id"`
	Action        string        `json:"action,omitempty"`
	Result        ActionOutcome `json:"result"`
	Timestamp     time.Time     `json:"timestamp"`
}

// StateUpdatePayload carries an opaque server-side state delta.
type StateUpdatePayload struct {
	GameSessionID string              `json:"game_session_id"`
	Update        jsoniter.RawMessage `json:"update,omitempty"`
	Timestamp     time.Time           `json:"timestamp"`
}

// GameErrorPayload reports a protocol-level error.
type GameErrorPayload struct {
	GameSessionID string    `json:"game_session_id,omitempty"`
	Message       string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
}

// ChatMessagePayload carries a chat line from another participant.
type ChatMessagePayload struct {
	GameSessionID string    `json:"game_session_id"`
	UserID        string    `json:"user_id,omitempty"`
	Message       string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
}

// NotificationPayload carries an out-of-band notice for the user.
type NotificationPayload struct {
	GameSessionID string    `json:"game_session_id,omitempty"`
	Message       string    `json:"message"`
	Level         string    `json:"level,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// SPUpdatePayload reports the participant's story-point balance.
type SPUpdatePayload struct {
	GameSessionID string    `json:"game_session_id"`
	Current       int       `json:"current"`
	Max           int       `json:"max,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// SPInsufficientPayload reports a rejected action due to SP shortage.
type SPInsufficientPayload struct {
	GameSessionID string    `json:"game_session_id"`
	Required      int       `json:"required,omitempty"`
	Current       int       `json:"current,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NPCEncounterPayload announces one NPC or a batch of them. Servers
// send either npc or npcs; both are accepted.
type NPCEncounterPayload struct {
	GameSessionID string    `json:"game_session_id"`
	NPC           *NPC      `json:"npc,omitempty"`
	NPCs          []NPC     `json:"npcs,omitempty"`
	Choices       []Choice  `json:"choices,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// All returns the encounter's NPCs regardless of single/batched form.
func (p NPCEncounterPayload) All() []NPC {
	if len(p.NPCs) > 0 {
		return p.NPCs
	}
	if p.NPC != nil {
		return []NPC{*p.NPC}
	}
	return nil
}

// NPCActionResultPayload reports the outcome of an npc_action command.
type NPCActionResultPayload struct {
	GameSessionID string        `json:"game_session_id"`
	NPCID         string        `json:"npc_id"`
	Action        string        `json:"action,omitempty"`
	Result        ActionOutcome `json:"result"`
	Timestamp     time.Time     `json:"timestamp"`
}

// ChoicesUpdatePayload replaces the session's selectable choices.
type ChoicesUpdatePayload struct {
	GameSessionID string    `json:"game_session_id"`
	Choices       []Choice  `json:"choices"`
	Timestamp     time.Time `json:"timestamp"`
}

// SystemMessagePayload carries a system-originated message.
type SystemMessagePayload struct {
	GameSessionID string    `json:"game_session_id"`
	Content       string    `json:"content"`
	Timestamp     time.Time `json:"timestamp"`
}

// MessageAddedPayload is the canonical path for a server-persisted
// message. The message id is always present and is normative for
// duplicate suppression.
type MessageAddedPayload struct {
	GameSessionID string    `json:"game_session_id"`
	Message       Message   `json:"message"`
	Choices       []Choice  `json:"choices,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// ProcessingStartedPayload signals the server began resolving an action.
type ProcessingStartedPayload struct {
	GameSessionID string    `json:"game_session_id"`
	Status        string    `json:"status,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// ProcessingCompletedPayload signals the server finished resolving.
type ProcessingCompletedPayload struct {
	GameSessionID string    `json:"game_session_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// GameProgressPayload reports a narrative milestone.
type GameProgressPayload struct {
	GameSessionID string    `json:"game_session_id"`
	ProgressType  string    `json:"progress_type"`
	Message       string    `json:"message,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
