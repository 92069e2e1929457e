package chat

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/oklog/ulid/v2"

	domain "github.com/example/multiroom-chat/domain/chat"
	"github.com/example/multiroom-chat/events"
	"github.com/example/multiroom-chat/modules/broadcast"
	"github.com/example/multiroom-chat/protocol"
)

// Router delivers events to connections.
type Router interface {
	Attach(connID string, sink broadcast.Sink)
	Detach(connID string)
	Subscribe(connID, room string)
	Publish(room, event string, payload any, exclude ...string)
	PublishAll(event string, payload any)
	Unicast(connID, event string, payload any)
}

// Notifier receives domain events after each committed action.
type Notifier interface {
	UserJoined(events.UserJoinedEvent)
	UserLeft(events.UserLeftEvent)
	RoomSwitched(events.RoomSwitchedEvent)
	MessageSent(events.MessageSentEvent)
	RoomCreated(events.RoomCreatedEvent)
}

type nopNotifier struct{}

func (nopNotifier) UserJoined(events.UserJoinedEvent)     {}
func (nopNotifier) UserLeft(events.UserLeftEvent)         {}
func (nopNotifier) RoomSwitched(events.RoomSwitchedEvent) {}
func (nopNotifier) MessageSent(events.MessageSentEvent)   {}
func (nopNotifier) RoomCreated(events.RoomCreatedEvent)   {}

// Option configures an Engine.
type Option func(*Engine)

// WithInitialRoom sets the room new users land in.
func WithInitialRoom(name string) Option {
	return func(e *Engine) {
		e.initialRoom = name
	}
}

// WithDefaultRooms seeds rooms at construction, in order.
func WithDefaultRooms(names ...string) Option {
	return func(e *Engine) {
		e.defaultRooms = names
	}
}

// WithMaxHistory sets the per-room history cap.
func WithMaxHistory(n int) Option {
	return func(e *Engine) {
		e.maxHistory = n
	}
}

// WithClock overrides the time source used to stamp messages.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine is the authoritative chat state machine. All state lives in one
// goroutine (Run); every action is queued and runs to completion, including
// its broadcasts, before the next one starts.
type Engine struct {
	registry *Registry
	store    *RoomStore
	typing   *TypingTracker
	router   Router
	notifier Notifier
	logger   types.Logger

	initialRoom  string
	defaultRooms []string
	maxHistory   int
	now          func() time.Time
	entropy      io.Reader

	actions chan func()
	done    chan struct{}
}

// NewEngine creates an engine. Call Run to start processing actions.
func NewEngine(router Router, notifier Notifier, logger types.Logger, opts ...Option) *Engine {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	e := &Engine{
		router:      router,
		notifier:    notifier,
		logger:      logger,
		initialRoom: DefaultInitialRoom,
		maxHistory:  DefaultMaxHistory,
		now:         time.Now,
		entropy:     ulid.Monotonic(crand.Reader, 0),
		actions:     make(chan func()),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.registry = NewRegistry(e.initialRoom)
	e.store = NewRoomStore(e.registry, e.maxHistory)
	e.typing = NewTypingTracker(e.registry)
	for _, name := range e.defaultRooms {
		e.store.EnsureRoom(name)
	}
	return e
}

// Run processes actions until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Engine stopping", "sessions", e.registry.Count())
			return
		case act := <-e.actions:
			act()
		}
	}
}

// Wait blocks until Run has returned.
func (e *Engine) Wait() {
	<-e.done
}

// do queues fn on the engine goroutine and waits for its result.
func (e *Engine) do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	select {
	case e.actions <- func() { result <- fn() }:
	case <-e.done:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-e.done:
		return ErrEngineStopped
	}
}

func query[T any](ctx context.Context, e *Engine, fn func() (T, error)) (T, error) {
	var out T
	err := e.do(ctx, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

// Connect attaches a fresh connection to the all-connections topic and
// tells it its id.
func (e *Engine) Connect(ctx context.Context, connID string, sink broadcast.Sink) error {
	return e.do(ctx, func() error {
		e.router.Attach(connID, sink)
		e.router.Unicast(connID, protocol.EventSession, protocol.Session{ID: connID})
		return nil
	})
}

// Join registers a session for connID and places the user in the initial room.
func (e *Engine) Join(ctx context.Context, connID, username string) error {
	return e.do(ctx, func() error { return e.join(connID, username) })
}

func (e *Engine) join(connID, username string) error {
	name := strings.TrimSpace(username)
	if name == "" {
		return fmt.Errorf("join: empty username: %w", ErrInvalidInput)
	}

	user, err := e.registry.Register(connID, name)
	if err != nil {
		if errors.Is(err, ErrDuplicateUsername) {
			e.router.Unicast(connID, protocol.EventJoinError, protocol.ErrUsernameTaken)
		}
		return fmt.Errorf("join %q: %w", name, err)
	}

	room := user.Room
	if e.store.EnsureRoom(room) {
		e.notifier.RoomCreated(events.RoomCreatedEvent{Room: room, Timestamp: e.now()})
	}
	e.router.Subscribe(connID, room)

	e.router.Publish(room, protocol.EventPresenceJoined, protocol.Presence{Username: user.Username, ID: connID})
	e.router.Unicast(connID, protocol.EventJoinSuccess, protocol.JoinSuccess{
		Username:       user.Username,
		Room:           room,
		Messages:       e.store.HistoryOf(room),
		Users:          e.store.MembersOf(room),
		AvailableRooms: e.store.List(),
	})
	e.router.PublishAll(protocol.EventRoomsList, e.store.List())
	e.router.Publish(room, protocol.EventRoomUsers, e.store.MembersOf(room))

	e.notifier.UserJoined(events.UserJoinedEvent{
		UserID:    connID,
		Username:  user.Username,
		Room:      room,
		Timestamp: e.now(),
	})
	e.logger.Info("User joined", "username", user.Username, "room", room, "connID", connID)
	return nil
}

// SwitchRoom moves the session's user to room, creating it if needed.
// Switching to the current room replays the full sequence.
func (e *Engine) SwitchRoom(ctx context.Context, connID, room string) error {
	return e.do(ctx, func() error { return e.switchRoom(connID, room) })
}

func (e *Engine) switchRoom(connID, room string) error {
	user, ok := e.registry.Lookup(connID)
	if !ok {
		return fmt.Errorf("switch room: %w", ErrNoActiveSession)
	}
	room = strings.TrimSpace(room)
	if room == "" {
		return fmt.Errorf("switch room: empty name: %w", ErrInvalidInput)
	}

	oldRoom := user.Room
	created := e.store.EnsureRoom(room)
	e.registry.UpdateRoom(connID, room)
	e.router.Subscribe(connID, room)

	presence := protocol.Presence{Username: user.Username, ID: connID}
	e.router.Publish(oldRoom, protocol.EventPresenceLeft, presence, connID)
	e.router.Publish(oldRoom, protocol.EventRoomUsers, e.store.MembersOf(oldRoom))
	e.router.Publish(room, protocol.EventPresenceJoined, presence)
	e.router.Publish(room, protocol.EventRoomUsers, e.store.MembersOf(room))
	e.router.Unicast(connID, protocol.EventMessageHistory, e.store.HistoryOf(room))
	e.router.PublishAll(protocol.EventRoomsList, e.store.List())

	now := e.now()
	if created {
		e.notifier.RoomCreated(events.RoomCreatedEvent{Room: room, CreatedBy: user.Username, Timestamp: now})
	}
	e.notifier.RoomSwitched(events.RoomSwitchedEvent{
		UserID:    connID,
		Username:  user.Username,
		From:      oldRoom,
		To:        room,
		Timestamp: now,
	})
	e.logger.Debug("User moved", "username", user.Username, "from", oldRoom, "to", room)
	return nil
}

// SendMessage appends a text message to the sender's room and echoes it to
// every connection in that room, the sender included.
func (e *Engine) SendMessage(ctx context.Context, connID, content string) error {
	return e.do(ctx, func() error { return e.sendMessage(connID, content) })
}

func (e *Engine) sendMessage(connID, content string) error {
	user, ok := e.registry.Lookup(connID)
	if !ok {
		return fmt.Errorf("send message: %w", ErrNoActiveSession)
	}

	msg := domain.Message{
		ID:         e.newMessageID(),
		SenderID:   connID,
		SenderName: user.Username,
		Content:    content,
		Timestamp:  e.now(),
		Kind:       domain.KindText,
	}
	if !e.store.AppendMessage(user.Room, msg) {
		return fmt.Errorf("send message to %q: %w", user.Room, ErrRoomNotFound)
	}
	e.router.Publish(user.Room, protocol.EventMessageReceive, msg)

	e.notifier.MessageSent(events.MessageSentEvent{
		MessageID: msg.ID,
		Room:      user.Room,
		UserID:    connID,
		Username:  user.Username,
		Length:    len(content),
		Timestamp: msg.Timestamp,
	})
	return nil
}

// CreateRoom creates a room on behalf of a session. The creator stays in
// its current room.
func (e *Engine) CreateRoom(ctx context.Context, connID, name string) error {
	return e.do(ctx, func() error {
		user, ok := e.registry.Lookup(connID)
		if !ok {
			return fmt.Errorf("create room: %w", ErrNoActiveSession)
		}
		return e.createRoom(name, user.Username)
	})
}

// AddRoom creates a room without a session, for administrative callers.
func (e *Engine) AddRoom(ctx context.Context, name string) error {
	return e.do(ctx, func() error { return e.createRoom(name, "") })
}

func (e *Engine) createRoom(name, createdBy string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("create room: empty name: %w", ErrInvalidInput)
	}
	if err := e.store.CreateRoom(name); err != nil {
		return fmt.Errorf("create room %q: %w", name, err)
	}
	e.router.PublishAll(protocol.EventRoomsList, e.store.List())

	e.notifier.RoomCreated(events.RoomCreatedEvent{Room: name, CreatedBy: createdBy, Timestamp: e.now()})
	e.logger.Info("Room created", "room", name, "createdBy", createdBy)
	return nil
}

// SetTyping forwards a typing edge to the rest of the user's room.
func (e *Engine) SetTyping(ctx context.Context, connID string, isTyping bool) error {
	return e.do(ctx, func() error {
		b, ok := e.typing.Update(connID, isTyping)
		if !ok {
			return fmt.Errorf("typing: %w", ErrNoActiveSession)
		}
		e.router.Publish(b.Room, protocol.EventTypingUpdate, b.Update, b.Exclude)
		return nil
	})
}

// Disconnect tears down the connection. Calling it for a connection
// without a session, or twice, only detaches it from the router.
func (e *Engine) Disconnect(ctx context.Context, connID string) error {
	return e.do(ctx, func() error { return e.disconnect(connID) })
}

func (e *Engine) disconnect(connID string) error {
	e.router.Detach(connID)

	user, ok := e.registry.Remove(connID)
	if !ok {
		return fmt.Errorf("disconnect: %w", ErrNoActiveSession)
	}

	room := user.Room
	e.router.Publish(room, protocol.EventPresenceLeft, protocol.Presence{Username: user.Username, ID: connID})
	e.router.Publish(room, protocol.EventRoomUsers, e.store.MembersOf(room))
	e.router.PublishAll(protocol.EventRoomsList, e.store.List())

	e.notifier.UserLeft(events.UserLeftEvent{
		UserID:    connID,
		Username:  user.Username,
		Room:      room,
		Timestamp: e.now(),
	})
	e.logger.Info("User left", "username", user.Username, "room", room, "connID", connID)
	return nil
}

// Rooms returns every room with its member count, in creation order.
func (e *Engine) Rooms(ctx context.Context) ([]domain.RoomSummary, error) {
	return query(ctx, e, func() ([]domain.RoomSummary, error) {
		return e.store.List(), nil
	})
}

// History returns the last limit messages of a room.
func (e *Engine) History(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	return query(ctx, e, func() ([]domain.Message, error) {
		if !e.store.Exists(room) {
			return nil, ErrRoomNotFound
		}
		return e.store.Recent(room, limit), nil
	})
}

// Members returns the roster of a room.
func (e *Engine) Members(ctx context.Context, room string) ([]domain.Member, error) {
	return query(ctx, e, func() ([]domain.Member, error) {
		if !e.store.Exists(room) {
			return nil, ErrRoomNotFound
		}
		return e.store.MembersOf(room), nil
	})
}

// Session returns the user bound to connID.
func (e *Engine) Session(ctx context.Context, connID string) (domain.User, error) {
	return query(ctx, e, func() (domain.User, error) {
		u, ok := e.registry.Lookup(connID)
		if !ok {
			return domain.User{}, ErrNoActiveSession
		}
		return u, nil
	})
}

// Stats returns counters for health reporting.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	return query(ctx, e, func() (Stats, error) {
		return Stats{
			Sessions: e.registry.Count(),
			Rooms:    e.store.Len(),
			Messages: e.store.MessageCount(),
		}, nil
	})
}

func (e *Engine) newMessageID() string {
	ts := ulid.Timestamp(e.now())
	id, err := ulid.New(ts, e.entropy)
	if err != nil {
		// Monotonic entropy overflowed within one millisecond.
		id = ulid.MustNew(ts, crand.Reader)
	}
	return id.String()
}
