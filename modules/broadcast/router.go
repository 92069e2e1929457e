package broadcast

import (
	"sync"

	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/multiroom-chat/protocol"
)

// Sink receives encoded frames for one connection.
// Send must not block; it reports false when the frame was not accepted.
type Sink interface {
	Send(data []byte) bool
	Close()
}

type subscriber struct {
	id   string
	sink Sink
	room string
}

// Router fans events out to subscribers. Every attached connection belongs
// to the all-connections topic and to at most one room topic.
// The router is the only writer to connection sinks.
type Router struct {
	mu     sync.RWMutex
	conns  map[string]*subscriber            // connID -> subscriber
	topics map[string]map[string]*subscriber // room -> connID -> subscriber
	logger types.Logger
}

// NewRouter creates an empty router.
func NewRouter(logger types.Logger) *Router {
	return &Router{
		conns:  make(map[string]*subscriber),
		topics: make(map[string]map[string]*subscriber),
		logger: logger,
	}
}

// Attach adds a connection to the all-connections topic. Attaching an id
// twice replaces the previous sink, which is closed.
func (r *Router) Attach(connID string, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.conns[connID]; ok {
		r.dropLocked(prev)
		prev.sink.Close()
	}
	r.conns[connID] = &subscriber{id: connID, sink: sink}
	r.logger.Debug("Connection attached", "connID", connID)
}

// Detach removes a connection from every topic and closes its sink.
// Detaching an unknown connection is a no-op.
func (r *Router) Detach(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.conns[connID]
	if !ok {
		return
	}
	r.dropLocked(sub)
	delete(r.conns, connID)
	sub.sink.Close()
	r.logger.Debug("Connection detached", "connID", connID)
}

// Subscribe moves a connection onto a room topic, leaving its previous one.
func (r *Router) Subscribe(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.conns[connID]
	if !ok {
		return
	}
	r.dropLocked(sub)

	sub.room = room
	if r.topics[room] == nil {
		r.topics[room] = make(map[string]*subscriber)
	}
	r.topics[room][connID] = sub
}

// dropLocked removes sub from its room topic. Caller holds r.mu.
func (r *Router) dropLocked(sub *subscriber) {
	if sub.room == "" {
		return
	}
	if members := r.topics[sub.room]; members != nil {
		delete(members, sub.id)
		if len(members) == 0 {
			delete(r.topics, sub.room)
		}
	}
	sub.room = ""
}

// Publish sends an event to every subscriber of a room, skipping the
// excluded connection ids.
func (r *Router) Publish(room, event string, payload any, exclude ...string) {
	data, ok := r.encode(event, payload)
	if !ok {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, sub := range r.topics[room] {
		if excluded(id, exclude) {
			continue
		}
		r.deliver(sub, event, data)
	}
}

// PublishAll sends an event to every attached connection.
func (r *Router) PublishAll(event string, payload any) {
	data, ok := r.encode(event, payload)
	if !ok {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, sub := range r.conns {
		r.deliver(sub, event, data)
	}
}

// Unicast sends an event to a single connection.
func (r *Router) Unicast(connID, event string, payload any) {
	data, ok := r.encode(event, payload)
	if !ok {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if sub, ok := r.conns[connID]; ok {
		r.deliver(sub, event, data)
	}
}

func (r *Router) encode(event string, payload any) ([]byte, bool) {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		r.logger.Error("Failed to encode event", "event", event, "error", err)
		return nil, false
	}
	return data, true
}

func (r *Router) deliver(sub *subscriber, event string, data []byte) {
	if !sub.sink.Send(data) {
		r.logger.Warn("Outbox full, dropping frame", "connID", sub.id, "event", event)
	}
}

func excluded(id string, exclude []string) bool {
	for _, x := range exclude {
		if x == id {
			return true
		}
	}
	return false
}

// CloseAll detaches every connection.
func (r *Router) CloseAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.conns)
	for _, sub := range r.conns {
		sub.sink.Close()
	}
	r.conns = make(map[string]*subscriber)
	r.topics = make(map[string]map[string]*subscriber)
	return n
}

// ClientCount returns the number of attached connections.
func (r *Router) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// TopicCount returns the number of connections subscribed to a room.
func (r *Router) TopicCount(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics[room])
}

// RoomOf returns the room topic a connection is subscribed to.
func (r *Router) RoomOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.conns[connID]
	if !ok || sub.room == "" {
		return "", false
	}
	return sub.room, true
}
