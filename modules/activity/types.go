package activity

import (
	"sort"
	"sync"
	"time"
)

// ServiceGetActivity is the request-reply service exposing the summary.
const ServiceGetActivity = "get-activity"

// RoomActivity counts what happened in one room since startup.
type RoomActivity struct {
	Room          string    `json:"room"`
	Messages      int64     `json:"messages"`
	Joins         int64     `json:"joins"`
	Leaves        int64     `json:"leaves"`
	SwitchesIn    int64     `json:"switchesIn"`
	SwitchesOut   int64     `json:"switchesOut"`
	CreatedAt     time.Time `json:"createdAt,omitzero"`
	LastMessageAt time.Time `json:"lastMessageAt,omitzero"`
}

// Summary is the whole-server view.
type Summary struct {
	TotalMessages int64          `json:"totalMessages"`
	TotalJoins    int64          `json:"totalJoins"`
	TotalLeaves   int64          `json:"totalLeaves"`
	RoomsCreated  int64          `json:"roomsCreated"`
	OnlineUsers   int64          `json:"onlineUsers"`
	Rooms         []RoomActivity `json:"rooms"`
}

// GetActivityRequest optionally narrows the summary to one room.
type GetActivityRequest struct {
	Room string `json:"room,omitempty"`
}

// Store provides thread-safe storage for activity counters.
type Store struct {
	mu           sync.RWMutex
	rooms        map[string]*RoomActivity
	messages     int64
	joins        int64
	leaves       int64
	roomsCreated int64
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{rooms: make(map[string]*RoomActivity)}
}

// room returns the counters for name, creating them. Callers hold mu.
func (s *Store) room(name string) *RoomActivity {
	r, ok := s.rooms[name]
	if !ok {
		r = &RoomActivity{Room: name}
		s.rooms[name] = r
	}
	return r
}

// RecordJoin counts a user entering the server.
func (s *Store) RecordJoin(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joins++
	s.room(room).Joins++
}

// RecordLeave counts a user leaving the server.
func (s *Store) RecordLeave(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaves++
	s.room(room).Leaves++
}

// RecordSwitch counts a move between rooms.
func (s *Store) RecordSwitch(from, to string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room(from).SwitchesOut++
	s.room(to).SwitchesIn++
}

// RecordMessage counts a message posted in room at.
func (s *Store) RecordMessage(room string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages++
	r := s.room(room)
	r.Messages++
	if at.After(r.LastMessageAt) {
		r.LastMessageAt = at
	}
}

// RecordRoomCreated counts a new room.
func (s *Store) RecordRoomCreated(room string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomsCreated++
	s.room(room).CreatedAt = at
}

// Room returns a copy of the counters for name.
func (s *Store) Room(name string) (RoomActivity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[name]
	if !ok {
		return RoomActivity{}, false
	}
	return *r, true
}

// Summary returns totals plus per-room counters sorted by room name.
func (s *Store) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]RoomActivity, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, *r)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Room < rooms[j].Room })

	return Summary{
		TotalMessages: s.messages,
		TotalJoins:    s.joins,
		TotalLeaves:   s.leaves,
		RoomsCreated:  s.roomsCreated,
		OnlineUsers:   s.joins - s.leaves,
		Rooms:         rooms,
	}
}
