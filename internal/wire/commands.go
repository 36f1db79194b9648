package wire

// Outbound command types sent to the server.
const (
	CommandJoinGame    = "join_game"
	CommandLeaveGame   = "leave_game"
	CommandGameAction  = "game_action"
	CommandNPCAction   = "npc_action"
	CommandChatMessage = "chat_message"
)

// JoinGameCommand subscribes the participant to a session's stream.
type JoinGameCommand struct {
	GameSessionID string `json:"game_session_id"`
	UserID        string `json:"user_id"`
}

// LeaveGameCommand removes the participant from a session's stream.
type LeaveGameCommand struct {
	GameSessionID string `json:"game_session_id"`
	UserID        string `json:"user_id"`
}

// GameActionCommand submits a free-form or choice-driven player action.
type GameActionCommand struct {
	GameSessionID string `json:"game_session_id"`
	UserID        string `json:"user_id"`
	Action        string `json:"action"`
}

// NPCActionCommand submits an action directed at a specific NPC.
type NPCActionCommand struct {
	GameSessionID string `json:"game_session_id"`
	UserID        string `json:"user_id"`
	NPCID         string `json:"npc_id"`
	Action        string `json:"action"`
}

// ChatCommand sends a table-chat line to the session.
type ChatCommand struct {
	GameSessionID string `json:"game_session_id"`
	UserID        string `json:"user_id"`
	Message       string `json:"message"`
}
