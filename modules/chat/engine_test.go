package chat

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/example/multiroom-chat/domain/chat"
	"github.com/example/multiroom-chat/modules/broadcast"
	"github.com/example/multiroom-chat/protocol"
)

func defaultRooms() Option {
	return WithDefaultRooms("General", "Random", "Tech")
}

func TestEngine_JoinSuccess(t *testing.T) {
	h := newHarness(t, defaultRooms())
	alice := h.connect("a")

	require.NoError(t, h.engine.Join(h.ctx, "a", "alice"))

	frames := alice.take()
	assert.Equal(t, []string{
		protocol.EventPresenceJoined,
		protocol.EventJoinSuccess,
		protocol.EventRoomsList,
		protocol.EventRoomUsers,
	}, eventNames(frames))

	var presence protocol.Presence
	require.NoError(t, frames[0].Bind(&presence))
	assert.Equal(t, protocol.Presence{Username: "alice", ID: "a"}, presence)

	var snap protocol.JoinSuccess
	require.NoError(t, frames[1].Bind(&snap))
	assert.Equal(t, "alice", snap.Username)
	assert.Equal(t, "General", snap.Room)
	assert.NotNil(t, snap.Messages)
	assert.Empty(t, snap.Messages)
	assert.Equal(t, []domain.Member{{ID: "a", Username: "alice"}}, snap.Users)
	assert.Equal(t, []domain.RoomSummary{
		{Name: "General", Count: 1},
		{Name: "Random", Count: 0},
		{Name: "Tech", Count: 0},
	}, snap.AvailableRooms)

	var users []domain.Member
	require.NoError(t, frames[3].Bind(&users))
	assert.Equal(t, []domain.Member{{ID: "a", Username: "alice"}}, users)

	require.Len(t, h.notifier.joined, 1)
	assert.Equal(t, "General", h.notifier.joined[0].Room)
}

func TestEngine_JoinBroadcastsToOthers(t *testing.T) {
	h := newHarness(t, defaultRooms())
	alice := h.join("a", "alice")
	idle := h.connect("idle")

	h.join("b", "bob")

	carol := h.connect("c")
	require.NoError(t, h.engine.Join(h.ctx, "c", "carol"))

	aliceFrames := alice.take()
	assert.Equal(t, []string{
		protocol.EventPresenceJoined,
		protocol.EventRoomsList,
		protocol.EventRoomUsers,
	}, eventNames(aliceFrames))

	// A connection without a session still gets the global room list.
	assert.Equal(t, []string{protocol.EventRoomsList}, eventNames(idle.take()))
	assert.Len(t, carol.take(), 4)
}

func TestEngine_JoinDuplicateUsername(t *testing.T) {
	h := newHarness(t, defaultRooms())
	alice := h.join("a", "alice")
	bob := h.connect("b")

	err := h.engine.Join(h.ctx, "b", "Alice")
	require.ErrorIs(t, err, ErrDuplicateUsername)

	frames := bob.take()
	require.Len(t, frames, 1)
	assert.Equal(t, protocol.EventJoinError, frames[0].Event)
	assert.Equal(t, "Username already taken", frames[0].Text())

	assert.Empty(t, alice.take(), "a rejected join must not broadcast")

	_, err = h.engine.Session(h.ctx, "b")
	assert.ErrorIs(t, err, ErrNoActiveSession)

	members, err := h.engine.Members(h.ctx, "General")
	require.NoError(t, err)
	assert.Equal(t, []domain.Member{{ID: "a", Username: "alice"}}, members)
}

func TestEngine_JoinSilentFailures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(h *harness)
		username string
		wantErr  error
	}{
		{
			name:     "empty username",
			username: "",
			wantErr:  ErrInvalidInput,
		},
		{
			name:     "whitespace username",
			username: "   ",
			wantErr:  ErrInvalidInput,
		},
		{
			name: "second join on same connection",
			setup: func(h *harness) {
				require.NoError(h.t, h.engine.Join(h.ctx, "x", "first"))
				h.drain()
			},
			username: "second",
			wantErr:  ErrAlreadyJoined,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			sink := h.connect("x")
			if tt.setup != nil {
				tt.setup(h)
			}

			err := h.engine.Join(h.ctx, "x", tt.username)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, sink.take())
		})
	}
}

func TestEngine_JoinTrimsUsername(t *testing.T) {
	h := newHarness(t)
	h.join("a", "  alice ")

	user, err := h.engine.Session(h.ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
}

func TestEngine_JoinCreatesInitialRoomLazily(t *testing.T) {
	h := newHarness(t, WithInitialRoom("Lobby"))
	h.join("a", "alice")

	rooms, err := h.engine.Rooms(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.RoomSummary{{Name: "Lobby", Count: 1}}, rooms)
	require.Len(t, h.notifier.created, 1)
	assert.Equal(t, "Lobby", h.notifier.created[0].Room)
}

func TestEngine_SendMessageEchoesToRoom(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, defaultRooms(), WithClock(func() time.Time { return now }))
	alice := h.join("a", "alice")
	bob := h.join("b", "bob")
	carol := h.join("c", "carol")
	require.NoError(t, h.engine.SwitchRoom(h.ctx, "c", "Tech"))
	h.drain()

	require.NoError(t, h.engine.SendMessage(h.ctx, "a", "hello"))

	for name, sink := range map[string]*recordingSink{"alice": alice, "bob": bob} {
		frames := sink.take()
		require.Len(t, frames, 1, name)
		var msg domain.Message
		require.NoError(t, frames[0].Bind(&msg))
		assert.NotEmpty(t, msg.ID)
		assert.Equal(t, "a", msg.SenderID)
		assert.Equal(t, "alice", msg.SenderName)
		assert.Equal(t, "hello", msg.Content)
		assert.Equal(t, domain.KindText, msg.Kind)
		assert.True(t, now.Equal(msg.Timestamp))
	}
	assert.Empty(t, carol.take(), "other rooms must not see the message")

	history, err := h.engine.History(h.ctx, "General", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Content)

	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, 5, h.notifier.sent[0].Length)
}

func TestEngine_HistoryKeepsLatestHundred(t *testing.T) {
	h := newHarness(t, defaultRooms())
	h.join("a", "alice")

	for i := 1; i <= 101; i++ {
		require.NoError(t, h.engine.SendMessage(h.ctx, "a", strconv.Itoa(i)))
	}

	history, err := h.engine.History(h.ctx, "General", 0)
	require.NoError(t, err)
	require.Len(t, history, 100)
	assert.Equal(t, "2", history[0].Content)
	assert.Equal(t, "101", history[99].Content)

	for i := 1; i < len(history); i++ {
		assert.Less(t, history[i-1].ID, history[i].ID, "message ids sort in arrival order")
	}
}

func TestEngine_ActionsWithoutSession(t *testing.T) {
	h := newHarness(t, defaultRooms())
	alice := h.join("a", "alice")
	ghost := h.connect("ghost")

	actions := map[string]func() error{
		"switch": func() error { return h.engine.SwitchRoom(h.ctx, "ghost", "Tech") },
		"send":   func() error { return h.engine.SendMessage(h.ctx, "ghost", "boo") },
		"create": func() error { return h.engine.CreateRoom(h.ctx, "ghost", "haunt") },
		"typing": func() error { return h.engine.SetTyping(h.ctx, "ghost", true) },
		"leave":  func() error { return h.engine.Disconnect(h.ctx, "never-connected") },
	}

	for name, act := range actions {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, act(), ErrNoActiveSession)
			assert.Empty(t, alice.take())
			assert.Empty(t, ghost.take())
		})
	}

	rooms, err := h.engine.Rooms(h.ctx)
	require.NoError(t, err)
	assert.Len(t, rooms, 3, "no room may be created by a sessionless connection")
}

func TestEngine_CreateRoomThenSwitch(t *testing.T) {
	h := newHarness(t, defaultRooms())
	alice := h.join("a", "alice")
	bob := h.join("b", "bob")

	require.NoError(t, h.engine.CreateRoom(h.ctx, "a", "dev"))

	for _, sink := range []*recordingSink{alice, bob} {
		frames := sink.take()
		require.Equal(t, []string{protocol.EventRoomsList}, eventNames(frames))
		var rooms []domain.RoomSummary
		require.NoError(t, frames[0].Bind(&rooms))
		assert.Equal(t, domain.RoomSummary{Name: "dev", Count: 0}, rooms[len(rooms)-1])
	}

	// Creating does not move the creator.
	user, err := h.engine.Session(h.ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "General", user.Room)

	require.NoError(t, h.engine.SwitchRoom(h.ctx, "b", "dev"))

	aliceFrames := alice.take()
	assert.Equal(t, []string{
		protocol.EventPresenceLeft,
		protocol.EventRoomUsers,
		protocol.EventRoomsList,
	}, eventNames(aliceFrames))
	var left protocol.Presence
	require.NoError(t, aliceFrames[0].Bind(&left))
	assert.Equal(t, protocol.Presence{Username: "bob", ID: "b"}, left)
	var generalUsers []domain.Member
	require.NoError(t, aliceFrames[1].Bind(&generalUsers))
	assert.Equal(t, []domain.Member{{ID: "a", Username: "alice"}}, generalUsers)

	bobFrames := bob.take()
	assert.Equal(t, []string{
		protocol.EventPresenceJoined,
		protocol.EventRoomUsers,
		protocol.EventMessageHistory,
		protocol.EventRoomsList,
	}, eventNames(bobFrames))
	var devUsers []domain.Member
	require.NoError(t, bobFrames[1].Bind(&devUsers))
	assert.Equal(t, []domain.Member{{ID: "b", Username: "bob"}}, devUsers)
	assert.JSONEq(t, `[]`, string(bobFrames[2].Data))

	// Exactly one room holds bob.
	general, err := h.engine.Members(h.ctx, "General")
	require.NoError(t, err)
	dev, err := h.engine.Members(h.ctx, "dev")
	require.NoError(t, err)
	assert.NotContains(t, general, domain.Member{ID: "b", Username: "bob"})
	assert.Contains(t, dev, domain.Member{ID: "b", Username: "bob"})

	require.Len(t, h.notifier.switched, 1)
	assert.Equal(t, "General", h.notifier.switched[0].From)
	assert.Equal(t, "dev", h.notifier.switched[0].To)
}

func TestEngine_SwitchRoomCreatesRoomLazily(t *testing.T) {
	h := newHarness(t, defaultRooms())
	h.join("a", "alice")

	require.NoError(t, h.engine.SwitchRoom(h.ctx, "a", "  brand-new "))

	rooms, err := h.engine.Rooms(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomSummary{Name: "brand-new", Count: 1}, rooms[len(rooms)-1])
	assert.Equal(t, domain.RoomSummary{Name: "General", Count: 0}, rooms[0])
	require.Len(t, h.notifier.created, 1)
	assert.Equal(t, "alice", h.notifier.created[0].CreatedBy)
}

func TestEngine_SwitchToSameRoomReplays(t *testing.T) {
	h := newHarness(t, defaultRooms())
	alice := h.join("a", "alice")
	bob := h.join("b", "bob")
	require.NoError(t, h.engine.SendMessage(h.ctx, "a", "hi"))
	h.drain()

	require.NoError(t, h.engine.SwitchRoom(h.ctx, "b", "General"))

	assert.Equal(t, []string{
		protocol.EventPresenceLeft,
		protocol.EventRoomUsers,
		protocol.EventPresenceJoined,
		protocol.EventRoomUsers,
		protocol.EventRoomsList,
	}, eventNames(alice.take()))

	bobFrames := bob.take()
	assert.Equal(t, []string{
		protocol.EventRoomUsers,
		protocol.EventPresenceJoined,
		protocol.EventRoomUsers,
		protocol.EventMessageHistory,
		protocol.EventRoomsList,
	}, eventNames(bobFrames))
	var history []domain.Message
	require.NoError(t, bobFrames[3].Bind(&history))
	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0].Content)
}

func TestEngine_SwitchRoomBlankName(t *testing.T) {
	h := newHarness(t, defaultRooms())
	alice := h.join("a", "alice")

	require.ErrorIs(t, h.engine.SwitchRoom(h.ctx, "a", "  "), ErrInvalidInput)
	assert.Empty(t, alice.take())
}

func TestEngine_CreateRoomSilentFailures(t *testing.T) {
	h := newHarness(t, defaultRooms())
	alice := h.join("a", "alice")

	require.ErrorIs(t, h.engine.CreateRoom(h.ctx, "a", "   "), ErrInvalidInput)
	require.ErrorIs(t, h.engine.CreateRoom(h.ctx, "a", "Tech"), ErrRoomAlreadyExists)
	require.ErrorIs(t, h.engine.CreateRoom(h.ctx, "a", " Tech "), ErrRoomAlreadyExists)
	assert.Empty(t, alice.take())

	require.NoError(t, h.engine.AddRoom(h.ctx, "ops"))
	assert.Equal(t, []string{protocol.EventRoomsList}, eventNames(alice.take()))
	require.ErrorIs(t, h.engine.AddRoom(h.ctx, "ops"), ErrRoomAlreadyExists)
}

func TestEngine_TypingExcludesSender(t *testing.T) {
	h := newHarness(t, defaultRooms())
	alice := h.join("a", "alice")
	bob := h.join("b", "bob")
	carol := h.join("c", "carol")
	require.NoError(t, h.engine.SwitchRoom(h.ctx, "c", "Random"))
	h.drain()

	require.NoError(t, h.engine.SetTyping(h.ctx, "a", true))
	require.NoError(t, h.engine.SetTyping(h.ctx, "a", false))

	assert.Empty(t, alice.take())
	assert.Empty(t, carol.take())

	frames := bob.take()
	require.Len(t, frames, 2)
	var start, stop protocol.TypingUpdate
	require.NoError(t, frames[0].Bind(&start))
	require.NoError(t, frames[1].Bind(&stop))
	assert.Equal(t, protocol.TypingUpdate{Username: "alice", IsTyping: true}, start)
	assert.Equal(t, protocol.TypingUpdate{Username: "alice", IsTyping: false}, stop)
}

func TestEngine_DisconnectIsIdempotent(t *testing.T) {
	h := newHarness(t, defaultRooms())
	alice := h.join("a", "alice")
	bob := h.join("b", "bob")

	require.NoError(t, h.engine.Disconnect(h.ctx, "b"))
	assert.True(t, bob.closed)

	frames := alice.take()
	assert.Equal(t, []string{
		protocol.EventPresenceLeft,
		protocol.EventRoomUsers,
		protocol.EventRoomsList,
	}, eventNames(frames))
	var users []domain.Member
	require.NoError(t, frames[1].Bind(&users))
	assert.Equal(t, []domain.Member{{ID: "a", Username: "alice"}}, users)

	require.ErrorIs(t, h.engine.Disconnect(h.ctx, "b"), ErrNoActiveSession)
	assert.Empty(t, alice.take(), "second disconnect must not broadcast")
	assert.Len(t, h.notifier.left, 1)

	// The username is free again.
	h.join("b2", "BOB")
	user, err := h.engine.Session(h.ctx, "b2")
	require.NoError(t, err)
	assert.Equal(t, "BOB", user.Username)
}

func TestEngine_DisconnectWithoutSessionDetaches(t *testing.T) {
	h := newHarness(t)
	sink := h.connect("x")

	require.ErrorIs(t, h.engine.Disconnect(h.ctx, "x"), ErrNoActiveSession)
	assert.True(t, sink.closed)
	assert.Equal(t, 0, h.router.ClientCount())
}

func TestEngine_QueriesUnknownRoom(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.History(h.ctx, "nope", 10)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, err = h.engine.Members(h.ctx, "nope")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestEngine_Stats(t *testing.T) {
	h := newHarness(t, defaultRooms())
	h.join("a", "alice")
	require.NoError(t, h.engine.SendMessage(h.ctx, "a", "one"))

	stats, err := h.engine.Stats(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Sessions: 1, Rooms: 3, Messages: 1}, stats)
}

func TestEngine_StoppedEngineRejectsActions(t *testing.T) {
	router := broadcast.NewRouter(&mockLogger{})
	engine := NewEngine(router, nil, &mockLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	go engine.Run(ctx)
	cancel()
	engine.Wait()

	err := engine.Join(context.Background(), "a", "alice")
	assert.ErrorIs(t, err, ErrEngineStopped)
}

func TestEngine_ActionHonoursContext(t *testing.T) {
	engine := NewEngine(broadcast.NewRouter(&mockLogger{}), nil, &mockLogger{})
	// Run is never started, so the action can only end through ctx.

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := engine.Join(ctx, "a", "alice")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEngine_ConcurrentJoinsKeepNamesUnique(t *testing.T) {
	h := newHarness(t)

	const n = 20
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		id := "c" + strconv.Itoa(i)
		require.NoError(t, h.engine.Connect(h.ctx, id, &recordingSink{}))
		go func(id string, upper bool) {
			name := "alice"
			if upper {
				name = "ALICE"
			}
			errs <- h.engine.Join(h.ctx, id, name)
		}(id, i%2 == 0)
	}

	succeeded := 0
	for i := 0; i < n; i++ {
		if err := <-errs; err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrDuplicateUsername)
		}
	}
	assert.Equal(t, 1, succeeded)

	stats, err := h.engine.Stats(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sessions)
}
