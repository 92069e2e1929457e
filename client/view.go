package client

import (
	"encoding/json"
	"fmt"

	domain "github.com/example/multiroom-chat/domain/chat"
	"github.com/example/multiroom-chat/protocol"
)

// View is the client's local picture of the server. Folding a frame always
// produces a new View; existing values are never modified.
type View struct {
	SessionID string
	Connected bool
	User      *domain.User
	Rooms     []domain.RoomSummary
	Members   []domain.Member
	Messages  []domain.Message
	Typing    map[string]struct{}
	Error     string
}

// TypingUsers returns the usernames currently typing, in no particular order.
func (v View) TypingUsers() []string {
	out := make([]string, 0, len(v.Typing))
	for name := range v.Typing {
		out = append(out, name)
	}
	return out
}

type foldFunc func(View, json.RawMessage) (View, error)

var folds = map[string]foldFunc{
	protocol.EventSession:        foldSession,
	protocol.EventJoinSuccess:    foldJoinSuccess,
	protocol.EventJoinError:      foldJoinError,
	protocol.EventRoomsList:      foldRooms,
	protocol.EventRoomUsers:      foldMembers,
	protocol.EventMessageHistory: foldHistory,
	protocol.EventMessageReceive: foldMessage,
	protocol.EventTypingUpdate:   foldTyping,
	protocol.EventPresenceJoined: foldNoop,
	protocol.EventPresenceLeft:   foldPresenceLeft,
}

// Fold applies one server frame to v. Unknown events leave v unchanged.
func Fold(v View, f protocol.Frame) (View, error) {
	fn, ok := folds[f.Event]
	if !ok {
		return v, nil
	}
	next, err := fn(v, f.Data)
	if err != nil {
		return v, fmt.Errorf("fold %s: %w", f.Event, err)
	}
	return next, nil
}

func decode[T any](data json.RawMessage) (T, error) {
	var out T
	if len(data) == 0 {
		return out, fmt.Errorf("empty payload")
	}
	err := json.Unmarshal(data, &out)
	return out, err
}

func foldSession(v View, data json.RawMessage) (View, error) {
	s, err := decode[protocol.Session](data)
	if err != nil {
		return v, err
	}
	v.SessionID = s.ID
	v.Connected = true
	return v, nil
}

func foldJoinSuccess(v View, data json.RawMessage) (View, error) {
	snap, err := decode[protocol.JoinSuccess](data)
	if err != nil {
		return v, err
	}
	v.User = &domain.User{ID: v.SessionID, Username: snap.Username, Room: snap.Room}
	v.Rooms = snap.AvailableRooms
	v.Members = snap.Users
	v.Messages = snap.Messages
	v.Typing = nil
	v.Error = ""
	return v, nil
}

func foldJoinError(v View, data json.RawMessage) (View, error) {
	msg, err := decode[string](data)
	if err != nil {
		return v, err
	}
	v.Error = msg
	return v, nil
}

func foldRooms(v View, data json.RawMessage) (View, error) {
	rooms, err := decode[[]domain.RoomSummary](data)
	if err != nil {
		return v, err
	}
	v.Rooms = rooms
	return v, nil
}

func foldMembers(v View, data json.RawMessage) (View, error) {
	members, err := decode[[]domain.Member](data)
	if err != nil {
		return v, err
	}
	v.Members = members
	return v, nil
}

// foldHistory replaces the transcript after a room switch. Typing state
// belonged to the old room.
func foldHistory(v View, data json.RawMessage) (View, error) {
	msgs, err := decode[[]domain.Message](data)
	if err != nil {
		return v, err
	}
	v.Messages = msgs
	v.Typing = nil
	return v, nil
}

func foldMessage(v View, data json.RawMessage) (View, error) {
	msg, err := decode[domain.Message](data)
	if err != nil {
		return v, err
	}
	msgs := make([]domain.Message, len(v.Messages), len(v.Messages)+1)
	copy(msgs, v.Messages)
	v.Messages = append(msgs, msg)
	return v, nil
}

func foldTyping(v View, data json.RawMessage) (View, error) {
	u, err := decode[protocol.TypingUpdate](data)
	if err != nil {
		return v, err
	}
	typing := cloneSet(v.Typing)
	if u.IsTyping {
		typing[u.Username] = struct{}{}
	} else {
		delete(typing, u.Username)
	}
	v.Typing = typing
	return v, nil
}

// foldPresenceLeft forgets a departed user's typing state; a user who
// leaves mid-burst never sends typing:stop.
func foldPresenceLeft(v View, data json.RawMessage) (View, error) {
	p, err := decode[protocol.Presence](data)
	if err != nil {
		return v, err
	}
	if _, ok := v.Typing[p.Username]; ok {
		typing := cloneSet(v.Typing)
		delete(typing, p.Username)
		v.Typing = typing
	}
	return v, nil
}

func foldNoop(v View, _ json.RawMessage) (View, error) {
	return v, nil
}

func cloneSet(s map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(s)+1)
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}
