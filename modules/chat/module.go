package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/multiroom-chat/events"
)

const healthTimeout = 2 * time.Second

// Module runs the coordination engine and exposes its read side and room
// creation as request-reply services.
type Module struct {
	engine   *Engine
	eventBus mono.EventBus
	logger   types.Logger
	cancel   context.CancelFunc
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
	_ Notifier                   = (*Module)(nil)
)

// NewModule creates a new chat module delivering events through router.
func NewModule(router Router, logger types.Logger, opts ...Option) *Module {
	m := &Module{logger: logger}
	m.engine = NewEngine(router, m, logger, opts...)
	return m
}

// Name returns the module name.
func (m *Module) Name() string {
	return "chat"
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.UserJoinedV1.ToBase(),
		events.UserLeftV1.ToBase(),
		events.RoomSwitchedV1.ToBase(),
		events.MessageSentV1.ToBase(),
		events.RoomCreatedV1.ToBase(),
	}
}

// RegisterServices registers this module's services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceListRooms, json.Unmarshal, json.Marshal, m.listRooms,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceListRooms, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceGetHistory, json.Unmarshal, json.Marshal, m.getHistory,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetHistory, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceGetMembers, json.Unmarshal, json.Marshal, m.getMembers,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetMembers, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceCreateRoom, json.Unmarshal, json.Marshal, m.createRoom,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceCreateRoom, err)
	}

	m.logger.Info("Registered chat services",
		"services", []string{ServiceListRooms, ServiceGetHistory, ServiceGetMembers, ServiceCreateRoom})
	return nil
}

func (m *Module) listRooms(ctx context.Context, _ ListRoomsRequest, _ *mono.Msg) (ListRoomsResponse, error) {
	rooms, err := m.engine.Rooms(ctx)
	if err != nil {
		return ListRoomsResponse{}, err
	}
	return ListRoomsResponse{Rooms: rooms}, nil
}

func (m *Module) getHistory(ctx context.Context, req GetHistoryRequest, _ *mono.Msg) (GetHistoryResponse, error) {
	msgs, err := m.engine.History(ctx, req.Room, req.Limit)
	if errors.Is(err, ErrRoomNotFound) {
		return GetHistoryResponse{Room: req.Room}, nil
	}
	if err != nil {
		return GetHistoryResponse{}, err
	}
	return GetHistoryResponse{Room: req.Room, Found: true, Messages: msgs}, nil
}

func (m *Module) getMembers(ctx context.Context, req GetMembersRequest, _ *mono.Msg) (GetMembersResponse, error) {
	members, err := m.engine.Members(ctx, req.Room)
	if errors.Is(err, ErrRoomNotFound) {
		return GetMembersResponse{Room: req.Room}, nil
	}
	if err != nil {
		return GetMembersResponse{}, err
	}
	return GetMembersResponse{Room: req.Room, Found: true, Members: members}, nil
}

func (m *Module) createRoom(ctx context.Context, req CreateRoomRequest, _ *mono.Msg) (CreateRoomResponse, error) {
	err := m.engine.AddRoom(ctx, req.Name)
	switch {
	case err == nil:
		return CreateRoomResponse{Name: req.Name, Status: CreateStatusCreated}, nil
	case errors.Is(err, ErrRoomAlreadyExists):
		return CreateRoomResponse{Name: req.Name, Status: CreateStatusExists}, nil
	case errors.Is(err, ErrInvalidInput):
		return CreateRoomResponse{Name: req.Name, Status: CreateStatusInvalid}, nil
	default:
		return CreateRoomResponse{}, err
	}
}

// Start launches the engine loop.
func (m *Module) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.engine.Run(ctx)
	m.logger.Info("Chat engine started", "initialRoom", m.engine.initialRoom)
	return nil
}

// Stop halts the engine loop and waits for it to exit.
func (m *Module) Stop(ctx context.Context) error {
	if m.cancel == nil {
		return nil
	}
	m.cancel()
	select {
	case <-m.engine.done:
	case <-ctx.Done():
		return fmt.Errorf("chat engine did not stop: %w", ctx.Err())
	}
	m.logger.Info("Chat module stopped")
	return nil
}

// Health returns the health status.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	stats, err := m.engine.Stats(ctx)
	if err != nil {
		return mono.HealthStatus{Healthy: false, Message: err.Error()}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"sessions": stats.Sessions,
			"rooms":    stats.Rooms,
			"messages": stats.Messages,
		},
	}
}

// Engine returns the coordination engine for the transport layer.
func (m *Module) Engine() *Engine {
	return m.engine
}

// Notifier implementation: publish domain events on the EventBus.
// Publishing failures never affect the chat protocol.

// UserJoined publishes UserJoined.v1.
func (m *Module) UserJoined(ev events.UserJoinedEvent) {
	m.publish("UserJoined", func(bus mono.EventBus) error {
		return events.UserJoinedV1.Publish(bus, ev, nil)
	})
}

// UserLeft publishes UserLeft.v1.
func (m *Module) UserLeft(ev events.UserLeftEvent) {
	m.publish("UserLeft", func(bus mono.EventBus) error {
		return events.UserLeftV1.Publish(bus, ev, nil)
	})
}

// RoomSwitched publishes RoomSwitched.v1.
func (m *Module) RoomSwitched(ev events.RoomSwitchedEvent) {
	m.publish("RoomSwitched", func(bus mono.EventBus) error {
		return events.RoomSwitchedV1.Publish(bus, ev, nil)
	})
}

// MessageSent publishes MessageSent.v1.
func (m *Module) MessageSent(ev events.MessageSentEvent) {
	m.publish("MessageSent", func(bus mono.EventBus) error {
		return events.MessageSentV1.Publish(bus, ev, nil)
	})
}

// RoomCreated publishes RoomCreated.v1.
func (m *Module) RoomCreated(ev events.RoomCreatedEvent) {
	m.publish("RoomCreated", func(bus mono.EventBus) error {
		return events.RoomCreatedV1.Publish(bus, ev, nil)
	})
}

func (m *Module) publish(name string, fn func(mono.EventBus) error) {
	if m.eventBus == nil {
		return
	}
	if err := fn(m.eventBus); err != nil {
		m.logger.Warn("Failed to publish event", "event", name, "error", err)
	}
}
