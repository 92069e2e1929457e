package chat

import (
	"time"

	domain "github.com/example/multiroom-chat/domain/chat"
)

type room struct {
	name      string
	createdAt time.Time
	history   []domain.Message
}

// RoomStore holds rooms and their bounded message history. Membership is
// not stored here; it is derived from the Registry on demand.
// Like the Registry it is owned by the Engine goroutine.
type RoomStore struct {
	registry   *Registry
	rooms      map[string]*room
	order      []string // room names in creation order
	maxHistory int
}

// NewRoomStore creates a store whose rooms keep at most maxHistory messages.
func NewRoomStore(registry *Registry, maxHistory int) *RoomStore {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &RoomStore{
		registry:   registry,
		rooms:      make(map[string]*room),
		maxHistory: maxHistory,
	}
}

// EnsureRoom creates an empty room if absent and reports whether it did.
func (s *RoomStore) EnsureRoom(name string) bool {
	if _, ok := s.rooms[name]; ok {
		return false
	}
	s.rooms[name] = &room{
		name:      name,
		createdAt: time.Now(),
		history:   make([]domain.Message, 0),
	}
	s.order = append(s.order, name)
	return true
}

// CreateRoom is the explicit creation path. Unlike EnsureRoom it fails
// with ErrRoomAlreadyExists when the name is taken.
func (s *RoomStore) CreateRoom(name string) error {
	if !s.EnsureRoom(name) {
		return ErrRoomAlreadyExists
	}
	return nil
}

// Exists reports whether a room with the exact name exists.
func (s *RoomStore) Exists(name string) bool {
	_, ok := s.rooms[name]
	return ok
}

// MembersOf returns the roster of a room.
func (s *RoomStore) MembersOf(name string) []domain.Member {
	users := s.registry.InRoom(name)
	members := make([]domain.Member, 0, len(users))
	for _, u := range users {
		members = append(members, u.Member())
	}
	return members
}

// AppendMessage adds msg to the room history, evicting the oldest entries
// beyond the cap. It returns false if the room does not exist.
func (s *RoomStore) AppendMessage(name string, msg domain.Message) bool {
	r, ok := s.rooms[name]
	if !ok {
		return false
	}
	r.history = append(r.history, msg)
	if len(r.history) > s.maxHistory {
		r.history = r.history[len(r.history)-s.maxHistory:]
	}
	return true
}

// HistoryOf returns a copy of the full history, oldest first.
func (s *RoomStore) HistoryOf(name string) []domain.Message {
	return s.Recent(name, 0)
}

// Recent returns a copy of the last limit messages, oldest first.
// A non-positive limit returns the whole buffer.
func (s *RoomStore) Recent(name string, limit int) []domain.Message {
	r, ok := s.rooms[name]
	if !ok {
		return make([]domain.Message, 0)
	}
	if limit <= 0 || limit > len(r.history) {
		limit = len(r.history)
	}
	result := make([]domain.Message, limit)
	copy(result, r.history[len(r.history)-limit:])
	return result
}

// List returns every room with its member count, in creation order.
func (s *RoomStore) List() []domain.RoomSummary {
	counts := s.registry.Occupancy()
	result := make([]domain.RoomSummary, 0, len(s.order))
	for _, name := range s.order {
		result = append(result, domain.RoomSummary{Name: name, Count: counts[name]})
	}
	return result
}

// Len returns the number of rooms.
func (s *RoomStore) Len() int {
	return len(s.rooms)
}

// MessageCount returns the number of buffered messages across all rooms.
func (s *RoomStore) MessageCount() int {
	n := 0
	for _, r := range s.rooms {
		n += len(r.history)
	}
	return n
}
