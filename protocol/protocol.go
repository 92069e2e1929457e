// Package protocol defines the WebSocket event protocol shared by the chat
// server and its clients. Every WebSocket text message carries one Frame.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/example/multiroom-chat/domain/chat"
)

// Client to server events.
const (
	EventJoin        = "join"
	EventRoomJoin    = "room:join"
	EventRoomCreate  = "room:create"
	EventMessageSend = "message:send"
	EventTypingStart = "typing:start"
	EventTypingStop  = "typing:stop"
)

// Server to client events.
const (
	EventSession        = "session"
	EventJoinSuccess    = "join:success"
	EventJoinError      = "join:error"
	EventRoomsList      = "rooms:list"
	EventRoomUsers      = "room:users"
	EventMessageReceive = "message:receive"
	EventMessageHistory = "message:history"
	EventPresenceJoined = "presence:joined"
	EventPresenceLeft   = "presence:left"
	EventTypingUpdate   = "typing:update"
)

// ErrUsernameTaken is the join:error payload for a duplicate username.
const ErrUsernameTaken = "Username already taken"

// Frame is the envelope of every event on the wire.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Session tells a fresh connection its identifier.
type Session struct {
	ID string `json:"id"`
}

// JoinSuccess is the snapshot unicast to a user after a successful join.
type JoinSuccess struct {
	Username       string             `json:"username"`
	Room           string             `json:"room"`
	Messages       []chat.Message     `json:"messages"`
	Users          []chat.Member      `json:"users"`
	AvailableRooms []chat.RoomSummary `json:"availableRooms"`
}

// Presence announces a user arriving in or leaving a room.
type Presence struct {
	Username string `json:"username"`
	ID       string `json:"id"`
}

// TypingUpdate reports a typing edge for one user.
type TypingUpdate struct {
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// Encode builds the wire form of an event. A nil payload produces a frame
// without data.
func Encode(event string, payload any) ([]byte, error) {
	frame := Frame{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event, err)
		}
		frame.Data = data
	}
	return json.Marshal(frame)
}

// Decode parses a wire frame.
func Decode(raw []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if frame.Event == "" {
		return Frame{}, fmt.Errorf("decode frame: missing event name")
	}
	return frame, nil
}

// Text extracts a string payload. Missing or non-string data yields "".
func (f Frame) Text() string {
	var s string
	if len(f.Data) == 0 {
		return ""
	}
	if err := json.Unmarshal(f.Data, &s); err != nil {
		return ""
	}
	return s
}

// Bind decodes the payload into v.
func (f Frame) Bind(v any) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%s: empty payload", f.Event)
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("%s: %w", f.Event, err)
	}
	return nil
}
