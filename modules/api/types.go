package api

import (
	domain "github.com/example/multiroom-chat/domain/chat"
	"github.com/example/multiroom-chat/modules/activity"
)

// CreateRoomRequest is the API request to create a room.
type CreateRoomRequest struct {
	Name string `json:"name"`
}

// RoomListResponse is the API response for listing rooms.
type RoomListResponse struct {
	Rooms []domain.RoomSummary `json:"rooms"`
}

// HistoryResponse is the API response for message history.
type HistoryResponse struct {
	Room     string           `json:"room"`
	Messages []domain.Message `json:"messages"`
}

// MembersResponse is the API response for a room roster.
type MembersResponse struct {
	Room    string          `json:"room"`
	Members []domain.Member `json:"members"`
}

// StatsResponse combines live connection counts with activity counters.
type StatsResponse struct {
	ConnectedClients int              `json:"connectedClients"`
	Activity         activity.Summary `json:"activity"`
}

// ErrorResponse is the API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the API health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}
