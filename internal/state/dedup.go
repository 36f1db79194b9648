package state

import (
	"time"

	"github.com/emberloom/sagalink/internal/game"
)

// duplicateOf reports why an incoming message is a duplicate of an
// already-stored one, or "" when it is not.
//
// Two rules, in order:
//  1. id match — the server-assigned id already exists in this session.
//  2. content match within the window — an id-less race between the
//     push path and an embedded-result path reporting the same
//     narrative. The window is a heuristic: two genuinely distinct,
//     identical narrations inside one window are collapsed, a
//     documented trade-off.
func (ss *sessionState) duplicateOf(msg game.Message, window time.Duration) string {
	if msg.ID != "" {
		if _, ok := ss.ids[msg.ID]; ok {
			return "id"
		}
	}
	for i := range ss.messages {
		existing := &ss.messages[i]
		if existing.Content != msg.Content {
			continue
		}
		if absDuration(existing.Timestamp.Sub(msg.Timestamp)) <= window {
			return "content-window"
		}
	}
	return ""
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
