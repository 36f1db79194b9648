// Package game defines the translated domain model: typed session
// events with stable topic names, and the message/choice types the
// session state store owns. Wire field names stop at the translator;
// everything downstream subscribes to these.
package game

import "time"

// Kind identifies a domain event variant. The set is closed: the
// translator produces exactly one Kind per wire event, and consumers
// can switch over it exhaustively.
type Kind string

const (
	KindConnected             Kind = "connected"
	KindDisconnected          Kind = "disconnected"
	KindJoined                Kind = "joined"
	KindLeft                  Kind = "left"
	KindStarted               Kind = "started"
	KindNarrative             Kind = "narrative"
	KindActionResult          Kind = "action_result"
	KindStateUpdate           Kind = "state_update"
	KindError                 Kind = "error"
	KindChat                  Kind = "chat"
	KindNotification          Kind = "notification"
	KindSPUpdate              Kind = "sp_update"
	KindSPInsufficient        Kind = "sp_insufficient"
	KindNPCEncounter          Kind = "npc_encounter"
	KindNPCActionResult       Kind = "npc_action_result"
	KindChoicesUpdate         Kind = "choices_update"
	KindSystemMessage         Kind = "system_message"
	KindMessageAdded          Kind = "message_added"
	KindProcessingStarted     Kind = "processing_started"
	KindProcessingCompleted   Kind = "processing_completed"
	KindProgress              Kind = "progress"
	KindSessionEndingProposal Kind = "session_ending_proposal"
	KindSessionResultReady    Kind = "session_result_ready"
)

// Topic returns the bus topic a domain event of this kind is published
// under. Topics are stable internal names, independent of wire types.
func (k Kind) Topic() string {
	return "game:" + string(k)
}

// Event is the translated representation of one server push or one
// synthetic transport notification.
type Event struct {
	Kind      Kind
	SessionID string
	Timestamp time.Time

	// Variant payloads. Exactly the fields relevant to Kind are set.
	Message     *Message
	Choices     []Choice
	NPCs        []NPC
	NPCID       string
	Action      string
	Narrative   string
	ErrorText   string
	Status      string
	SP          *StoryPoints
	Update      []byte
	InitialData []byte
	UserID      string
	Progress    string
}

// Origin identifies who authored a message.
type Origin string

const (
	OriginUser   Origin = "user"
	OriginGM     Origin = "gm"
	OriginSystem Origin = "system"
)

// OriginFrom maps a wire sender_type to an Origin, defaulting to system
// for anything unrecognized.
func OriginFrom(senderType string) Origin {
	switch senderType {
	case string(OriginUser):
		return OriginUser
	case string(OriginGM):
		return OriginGM
	default:
		return OriginSystem
	}
}

// Message is one entry in a session's ordered log. Identity is ID when
// present; id-less messages are identified by content plus a timestamp
// window during duplicate suppression.
type Message struct {
	ID        string                 `json:"id,omitempty"`
	SessionID string                 `json:"session_id"`
	Origin    Origin                 `json:"origin"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Choice is one selectable option presented to the player.
type Choice struct {
	ID         string `json:"id,omitempty"`
	Text       string `json:"text"`
	Difficulty int    `json:"difficulty,omitempty"`
}

// NPC is a non-player character surfaced by an encounter.
type NPC struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Disposition string `json:"disposition,omitempty"`
}

// StoryPoints is the participant's SP balance.
type StoryPoints struct {
	Current int
	Max     int
}
