package chat

import (
	domain "github.com/example/multiroom-chat/domain/chat"
)

// Defaults for the engine.
const (
	DefaultInitialRoom = "General"
	DefaultMaxHistory  = 100
)

// Service names registered in the chat module's service container.
const (
	ServiceListRooms  = "list-rooms"
	ServiceGetHistory = "get-history"
	ServiceGetMembers = "get-members"
	ServiceCreateRoom = "create-room"
)

// ListRoomsRequest is the request for list-rooms.
type ListRoomsRequest struct{}

// ListRoomsResponse lists rooms in creation order.
type ListRoomsResponse struct {
	Rooms []domain.RoomSummary `json:"rooms"`
}

// GetHistoryRequest asks for the most recent messages of a room.
// A non-positive limit returns the whole buffer.
type GetHistoryRequest struct {
	Room  string `json:"room"`
	Limit int    `json:"limit"`
}

// GetHistoryResponse carries a room's history, oldest first.
type GetHistoryResponse struct {
	Room     string           `json:"room"`
	Found    bool             `json:"found"`
	Messages []domain.Message `json:"messages"`
}

// GetMembersRequest asks for a room roster.
type GetMembersRequest struct {
	Room string `json:"room"`
}

// GetMembersResponse carries a room roster.
type GetMembersResponse struct {
	Room    string          `json:"room"`
	Found   bool            `json:"found"`
	Members []domain.Member `json:"members"`
}

// CreateRoomRequest creates a room outside any session.
type CreateRoomRequest struct {
	Name string `json:"name"`
}

// CreateRoom outcomes.
const (
	CreateStatusCreated = "created"
	CreateStatusExists  = "exists"
	CreateStatusInvalid = "invalid"
)

// CreateRoomResponse reports the outcome of create-room.
type CreateRoomResponse struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Stats is a point-in-time view of the engine.
type Stats struct {
	Sessions int `json:"sessions"`
	Rooms    int `json:"rooms"`
	Messages int `json:"messages"`
}
