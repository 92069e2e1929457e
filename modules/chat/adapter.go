package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"

	domain "github.com/example/multiroom-chat/domain/chat"
)

// ChatPort is the service-container view of the chat module used by the
// HTTP API.
type ChatPort interface {
	ListRooms(ctx context.Context) ([]domain.RoomSummary, error)
	GetHistory(ctx context.Context, room string, limit int) ([]domain.Message, error)
	GetMembers(ctx context.Context, room string) ([]domain.Member, error)
	CreateRoom(ctx context.Context, name string) error
}

// ChatAdapter implements ChatPort using the service container.
type ChatAdapter struct {
	container mono.ServiceContainer
}

// NewChatAdapter creates a new ChatAdapter.
func NewChatAdapter(container mono.ServiceContainer) ChatPort {
	if container == nil {
		panic("chat: ServiceContainer is nil")
	}
	return &ChatAdapter{container: container}
}

// ListRooms returns every room in creation order.
func (a *ChatAdapter) ListRooms(ctx context.Context) ([]domain.RoomSummary, error) {
	req := ListRoomsRequest{}
	var resp ListRoomsResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceListRooms,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return resp.Rooms, nil
}

// GetHistory returns the last limit messages of a room.
func (a *ChatAdapter) GetHistory(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	req := GetHistoryRequest{Room: room, Limit: limit}
	var resp GetHistoryResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceGetHistory,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	if !resp.Found {
		return nil, fmt.Errorf("history of %q: %w", room, ErrRoomNotFound)
	}
	return resp.Messages, nil
}

// GetMembers returns the roster of a room.
func (a *ChatAdapter) GetMembers(ctx context.Context, room string) ([]domain.Member, error) {
	req := GetMembersRequest{Room: room}
	var resp GetMembersResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceGetMembers,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	if !resp.Found {
		return nil, fmt.Errorf("members of %q: %w", room, ErrRoomNotFound)
	}
	return resp.Members, nil
}

// CreateRoom creates a room and maps the outcome back to the chat errors.
func (a *ChatAdapter) CreateRoom(ctx context.Context, name string) error {
	req := CreateRoomRequest{Name: name}
	var resp CreateRoomResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceCreateRoom,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	switch resp.Status {
	case CreateStatusCreated:
		return nil
	case CreateStatusExists:
		return fmt.Errorf("create room %q: %w", name, ErrRoomAlreadyExists)
	case CreateStatusInvalid:
		return fmt.Errorf("create room %q: %w", name, ErrInvalidInput)
	default:
		return fmt.Errorf("create room %q: unexpected status %q", name, resp.Status)
	}
}
