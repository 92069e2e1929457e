package chat

import (
	"context"
	"sync"
	"testing"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/require"

	"github.com/example/multiroom-chat/events"
	"github.com/example/multiroom-chat/modules/broadcast"
	"github.com/example/multiroom-chat/protocol"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any)          {}
func (m *mockLogger) Info(msg string, args ...any)           {}
func (m *mockLogger) Warn(msg string, args ...any)           {}
func (m *mockLogger) Error(msg string, args ...any)          {}
func (m *mockLogger) With(args ...any) types.Logger          { return m }
func (m *mockLogger) WithError(err error) types.Logger       { return m }
func (m *mockLogger) WithModule(module string) types.Logger { return m }

// recordingSink captures frames delivered to one connection.
type recordingSink struct {
	mu     sync.Mutex
	frames []protocol.Frame
	closed bool
}

func (s *recordingSink) Send(data []byte) bool {
	f, err := protocol.Decode(data)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return true
}

func (s *recordingSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// take returns the frames received so far and forgets them.
func (s *recordingSink) take() []protocol.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.frames
	s.frames = nil
	return out
}

func eventNames(frames []protocol.Frame) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Event)
	}
	return out
}

// recordingNotifier captures domain events.
type recordingNotifier struct {
	mu       sync.Mutex
	joined   []events.UserJoinedEvent
	left     []events.UserLeftEvent
	switched []events.RoomSwitchedEvent
	sent     []events.MessageSentEvent
	created  []events.RoomCreatedEvent
}

func (n *recordingNotifier) UserJoined(ev events.UserJoinedEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.joined = append(n.joined, ev)
}

func (n *recordingNotifier) UserLeft(ev events.UserLeftEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.left = append(n.left, ev)
}

func (n *recordingNotifier) RoomSwitched(ev events.RoomSwitchedEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.switched = append(n.switched, ev)
}

func (n *recordingNotifier) MessageSent(ev events.MessageSentEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, ev)
}

func (n *recordingNotifier) RoomCreated(ev events.RoomCreatedEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, ev)
}

type harness struct {
	t        *testing.T
	ctx      context.Context
	engine   *Engine
	router   *broadcast.Router
	notifier *recordingNotifier
	sinks    map[string]*recordingSink
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	router := broadcast.NewRouter(&mockLogger{})
	notifier := &recordingNotifier{}
	engine := NewEngine(router, notifier, &mockLogger{}, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	go engine.Run(ctx)
	t.Cleanup(func() {
		cancel()
		engine.Wait()
	})

	return &harness{
		t:        t,
		ctx:      context.Background(),
		engine:   engine,
		router:   router,
		notifier: notifier,
		sinks:    make(map[string]*recordingSink),
	}
}

// connect attaches a connection and drops its session frame.
func (h *harness) connect(connID string) *recordingSink {
	h.t.Helper()
	sink := &recordingSink{}
	require.NoError(h.t, h.engine.Connect(h.ctx, connID, sink))
	frames := sink.take()
	require.Len(h.t, frames, 1)
	require.Equal(h.t, protocol.EventSession, frames[0].Event)
	h.sinks[connID] = sink
	return sink
}

// join connects and joins, then clears every sink.
func (h *harness) join(connID, username string) *recordingSink {
	h.t.Helper()
	sink := h.connect(connID)
	require.NoError(h.t, h.engine.Join(h.ctx, connID, username))
	h.drain()
	return sink
}

func (h *harness) drain() {
	for _, s := range h.sinks {
		s.take()
	}
}
