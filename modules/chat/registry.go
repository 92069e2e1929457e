package chat

import (
	domain "github.com/example/multiroom-chat/domain/chat"
)

// Registry maps live connections to users and keeps usernames unique,
// compared case-insensitively. It is owned by the Engine goroutine and is
// not safe for concurrent use.
type Registry struct {
	initialRoom string
	users       map[string]*domain.User // connID -> user
	names       map[string]string       // folded username -> connID
	order       []string                // connIDs in registration order
}

// NewRegistry creates a registry that places new users in initialRoom.
func NewRegistry(initialRoom string) *Registry {
	if initialRoom == "" {
		initialRoom = DefaultInitialRoom
	}
	return &Registry{
		initialRoom: initialRoom,
		users:       make(map[string]*domain.User),
		names:       make(map[string]string),
	}
}

// InitialRoom returns the room new users are assigned to.
func (r *Registry) InitialRoom() string {
	return r.initialRoom
}

// Register binds username to connID. It fails with ErrDuplicateUsername
// when any registered user has the same name ignoring case, and with
// ErrAlreadyJoined when the connection already has a session.
func (r *Registry) Register(connID, username string) (domain.User, error) {
	if _, ok := r.users[connID]; ok {
		return domain.User{}, ErrAlreadyJoined
	}
	key := domain.FoldUsername(username)
	if _, taken := r.names[key]; taken {
		return domain.User{}, ErrDuplicateUsername
	}

	u := &domain.User{ID: connID, Username: username, Room: r.initialRoom}
	r.users[connID] = u
	r.names[key] = connID
	r.order = append(r.order, connID)
	return *u, nil
}

// Lookup returns the user bound to connID.
func (r *Registry) Lookup(connID string) (domain.User, bool) {
	u, ok := r.users[connID]
	if !ok {
		return domain.User{}, false
	}
	return *u, true
}

// UpdateRoom changes the user's current room. The caller moves the room
// subscription in the same step.
func (r *Registry) UpdateRoom(connID, room string) bool {
	u, ok := r.users[connID]
	if !ok {
		return false
	}
	u.Room = room
	return true
}

// Remove deletes the session for connID and returns the prior user.
func (r *Registry) Remove(connID string) (domain.User, bool) {
	u, ok := r.users[connID]
	if !ok {
		return domain.User{}, false
	}
	delete(r.users, connID)
	delete(r.names, domain.FoldUsername(u.Username))
	for i, id := range r.order {
		if id == connID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return *u, true
}

// InRoom returns the users whose current room is room, in registration order.
func (r *Registry) InRoom(room string) []domain.User {
	out := make([]domain.User, 0)
	for _, id := range r.order {
		if u := r.users[id]; u.Room == room {
			out = append(out, *u)
		}
	}
	return out
}

// Occupancy returns the number of users per room.
func (r *Registry) Occupancy() map[string]int {
	counts := make(map[string]int)
	for _, u := range r.users {
		counts[u.Room]++
	}
	return counts
}

// Count returns the number of registered users.
func (r *Registry) Count() int {
	return len(r.users)
}
