package persist

import "strings"

// KeyBuilder builds Redis keys according to our naming convention.
type KeyBuilder struct {
	namespace string
}

// NewKeyBuilder creates a KeyBuilder with the given namespace.
func NewKeyBuilder(namespace string) *KeyBuilder {
	return &KeyBuilder{namespace: strings.ToLower(namespace)}
}

// History returns the key holding a session's message history.
func (kb *KeyBuilder) History(sessionID string) string {
	return strings.Join([]string{kb.namespace, "session", sessionID, "history"}, ":")
}

// ActiveSession returns the key holding the active session id.
func (kb *KeyBuilder) ActiveSession() string {
	return strings.Join([]string{kb.namespace, "active_session"}, ":")
}
