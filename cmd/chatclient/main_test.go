package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/multiroom-chat/client"
	domain "github.com/example/multiroom-chat/domain/chat"
	"github.com/example/multiroom-chat/protocol"
)

type sent struct {
	event   string
	payload any
}

type fakeTransport struct {
	mu     sync.Mutex
	sent   []sent
	frames chan protocol.Frame
	once   sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{frames: make(chan protocol.Frame, 16)}
}

func (f *fakeTransport) Send(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{event: event, payload: payload})
	return nil
}

func (f *fakeTransport) Frames() <-chan protocol.Frame { return f.frames }

func (f *fakeTransport) Close() error {
	f.once.Do(func() { close(f.frames) })
	return nil
}

func (f *fakeTransport) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.event)
	}
	return out
}

func startAgent(t *testing.T) (*client.Agent, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	agent := client.New(func(context.Context) (client.Transport, error) {
		return tr, nil
	}, client.WithTypingIdle(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = agent.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return agent, tr
}

func TestHandleLine(t *testing.T) {
	agent, tr := startAgent(t)
	ctx := context.Background()
	var out bytes.Buffer

	require.NoError(t, handleLine(ctx, agent, "   ", &out))
	require.NoError(t, handleLine(ctx, agent, "/create dev", &out))
	require.NoError(t, handleLine(ctx, agent, "hello there", &out))
	assert.ErrorIs(t, handleLine(ctx, agent, "/join dev", &out), client.ErrNotJoined)
	assert.ErrorIs(t, handleLine(ctx, agent, "/quit", &out), errQuit)
	assert.Error(t, handleLine(ctx, agent, "/name   ", &out))

	assert.Equal(t, []string{
		protocol.EventRoomCreate,
		protocol.EventTypingStart,
		protocol.EventMessageSend,
		protocol.EventTypingStop,
	}, tr.events())
}

func TestReadCommands_KeepsReadingAfterIntentError(t *testing.T) {
	prev := username
	t.Cleanup(func() { username = prev })
	agent, tr := startAgent(t)
	var out bytes.Buffer

	in := strings.NewReader("/join dev\n/name carol\n/create dev\n")
	err := readCommands(context.Background(), agent, in, &out)

	assert.ErrorIs(t, err, errQuit)
	assert.Contains(t, out.String(), "! not joined")
	assert.Equal(t, []string{protocol.EventJoin, protocol.EventRoomCreate}, tr.events())
	assert.Equal(t, "carol", username)
}

func TestFatal(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{err: errQuit, want: true},
		{err: client.ErrNotRunning, want: true},
		{err: client.ErrDisconnected, want: true},
		{err: fmt.Errorf("send: %w", client.ErrTransportClosed), want: true},
		{err: context.Canceled, want: true},
		{err: client.ErrNotJoined, want: false},
		{err: errors.New("usage: /name <username>"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, fatal(tt.err))
		})
	}
}

func TestRender(t *testing.T) {
	ts := time.Date(2026, 1, 2, 15, 4, 0, 0, time.Local)
	msg := domain.Message{SenderName: "alice", Content: "hi", Timestamp: ts}
	view := client.View{
		User:     &domain.User{Username: "alice", Room: "General"},
		Members:  []domain.Member{{ID: "1", Username: "alice"}, {ID: "2", Username: "bob"}},
		Messages: []domain.Message{msg},
	}

	tests := []struct {
		name  string
		event string
		data  string
		want  string
	}{
		{name: "join", event: protocol.EventJoinSuccess, want: "* joined General as alice\n[15:04] alice: hi\n* here: alice, bob\n"},
		{name: "message", event: protocol.EventMessageReceive, want: "[15:04] alice: hi\n"},
		{name: "presence", event: protocol.EventPresenceLeft, data: `{"username":"bob","id":"2"}`, want: "* bob left\n"},
		{name: "rooms list is quiet", event: protocol.EventRoomsList, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			f := protocol.Frame{Event: tt.event}
			if tt.data != "" {
				f.Data = []byte(tt.data)
			}
			render(&out, f, view)
			assert.Equal(t, tt.want, out.String())
		})
	}
}
