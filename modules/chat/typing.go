package chat

import "github.com/example/multiroom-chat/protocol"

// TypingBroadcast describes where a typing edge goes.
type TypingBroadcast struct {
	Room    string
	Exclude string
	Update  protocol.TypingUpdate
}

// TypingTracker turns typing edges into room broadcasts. It keeps no flags
// of its own: each edge is forwarded independently and clients fold them
// into their per-room typing sets.
type TypingTracker struct {
	registry *Registry
}

// NewTypingTracker creates a tracker backed by registry.
func NewTypingTracker(registry *Registry) *TypingTracker {
	return &TypingTracker{registry: registry}
}

// Update resolves the broadcast for a typing edge from connID.
// It reports false when the connection has no session.
func (t *TypingTracker) Update(connID string, isTyping bool) (TypingBroadcast, bool) {
	u, ok := t.registry.Lookup(connID)
	if !ok {
		return TypingBroadcast{}, false
	}
	return TypingBroadcast{
		Room:    u.Room,
		Exclude: connID,
		Update:  protocol.TypingUpdate{Username: u.Username, IsTyping: isTyping},
	}, true
}
