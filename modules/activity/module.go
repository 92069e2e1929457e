// Package activity keeps running counters of chat activity by consuming the
// chat module's domain events.
package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/multiroom-chat/events"
)

// Module implements the activity consumer module.
type Module struct {
	store  *Store
	logger types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
)

// NewModule creates a new activity module.
func NewModule(logger types.Logger) *Module {
	return &Module{
		store:  NewStore(),
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "activity"
}

// RegisterEventConsumers subscribes to every chat event.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(registry, events.UserJoinedV1, m.handleUserJoined, m); err != nil {
		return fmt.Errorf("failed to register UserJoined consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.UserLeftV1, m.handleUserLeft, m); err != nil {
		return fmt.Errorf("failed to register UserLeft consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.RoomSwitchedV1, m.handleRoomSwitched, m); err != nil {
		return fmt.Errorf("failed to register RoomSwitched consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.RoomCreatedV1, m.handleRoomCreated, m); err != nil {
		return fmt.Errorf("failed to register RoomCreated consumer: %w", err)
	}

	sentDef, ok := registry.GetEventByName("MessageSent", "v1", "chat")
	if !ok {
		return fmt.Errorf("event MessageSent.v1 not found")
	}
	if err := registry.RegisterEventConsumer(sentDef, m.handleMessageSent, m); err != nil {
		return fmt.Errorf("failed to register MessageSent consumer: %w", err)
	}

	m.logger.Info("Registered event consumers",
		"events", []string{"UserJoined.v1", "UserLeft.v1", "RoomSwitched.v1", "RoomCreated.v1", "MessageSent.v1"})
	return nil
}

func (m *Module) handleUserJoined(_ context.Context, ev events.UserJoinedEvent, _ *mono.Msg) error {
	m.store.RecordJoin(ev.Room)
	m.logger.Debug("Recorded join", "username", ev.Username, "room", ev.Room)
	return nil
}

func (m *Module) handleUserLeft(_ context.Context, ev events.UserLeftEvent, _ *mono.Msg) error {
	m.store.RecordLeave(ev.Room)
	m.logger.Debug("Recorded leave", "username", ev.Username, "room", ev.Room)
	return nil
}

func (m *Module) handleRoomSwitched(_ context.Context, ev events.RoomSwitchedEvent, _ *mono.Msg) error {
	m.store.RecordSwitch(ev.From, ev.To)
	return nil
}

func (m *Module) handleRoomCreated(_ context.Context, ev events.RoomCreatedEvent, _ *mono.Msg) error {
	m.store.RecordRoomCreated(ev.Room, ev.Timestamp)
	m.logger.Info("Recorded room creation", "room", ev.Room, "createdBy", ev.CreatedBy)
	return nil
}

func (m *Module) handleMessageSent(_ context.Context, msg *mono.Msg) error {
	var ev events.MessageSentEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		m.logger.Error("Failed to unmarshal MessageSent event", "error", err)
		return nil // Don't retry on unmarshal errors
	}
	m.store.RecordMessage(ev.Room, ev.Timestamp)
	return nil
}

// RegisterServices registers this module's services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := container.RegisterRequestReplyService(ServiceGetActivity, m.handleGetActivity); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetActivity, err)
	}
	m.logger.Info("Registered activity services", "services", []string{ServiceGetActivity})
	return nil
}

// handleGetActivity returns the summary, or a single room's counters when
// the request names one.
func (m *Module) handleGetActivity(_ context.Context, msg *mono.Msg) ([]byte, error) {
	var req GetActivityRequest
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return nil, fmt.Errorf("invalid request: %w", err)
		}
	}

	summary := m.store.Summary()
	if req.Room != "" {
		rooms := make([]RoomActivity, 0, 1)
		if r, ok := m.store.Room(req.Room); ok {
			rooms = append(rooms, r)
		}
		summary.Rooms = rooms
	}
	return json.Marshal(summary)
}

// Start initializes the activity module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Activity module started")
	return nil
}

// Stop gracefully shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Activity module stopped")
	return nil
}

// Store returns the activity store.
func (m *Module) Store() *Store {
	return m.store
}
