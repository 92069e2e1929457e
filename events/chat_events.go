package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// UserJoinedEvent is emitted when a user registers a session and enters
// the initial room.
type UserJoinedEvent struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Room      string    `json:"room"`
	Timestamp time.Time `json:"timestamp"`
}

// UserLeftEvent is emitted when a user's connection terminates.
type UserLeftEvent struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Room      string    `json:"room"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomSwitchedEvent is emitted when a user moves between rooms.
type RoomSwitchedEvent struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageSentEvent is emitted when a message is appended to a room.
type MessageSentEvent struct {
	MessageID string    `json:"message_id"`
	Room      string    `json:"room"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Length    int       `json:"length"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomCreatedEvent is emitted when a room comes into existence, either
// explicitly or by the first switch into it.
type RoomCreatedEvent struct {
	Room      string    `json:"room"`
	CreatedBy string    `json:"created_by,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Event definitions for the chat domain.
var (
	UserJoinedV1 = helper.EventDefinition[UserJoinedEvent](
		"chat",
		"UserJoined",
		"v1",
	)

	UserLeftV1 = helper.EventDefinition[UserLeftEvent](
		"chat",
		"UserLeft",
		"v1",
	)

	RoomSwitchedV1 = helper.EventDefinition[RoomSwitchedEvent](
		"chat",
		"RoomSwitched",
		"v1",
	)

	MessageSentV1 = helper.EventDefinition[MessageSentEvent](
		"chat",
		"MessageSent",
		"v1",
	)

	RoomCreatedV1 = helper.EventDefinition[RoomCreatedEvent](
		"chat",
		"RoomCreated",
		"v1",
	)
)
