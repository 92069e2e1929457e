// Package client keeps a local view of a chat session in sync with the
// server and turns user intents into protocol events.
package client

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	domain "github.com/example/multiroom-chat/domain/chat"
	"github.com/example/multiroom-chat/protocol"
)

var (
	// ErrNotRunning is returned by intents submitted after Run has returned.
	ErrNotRunning = errors.New("agent not running")
	// ErrDisconnected is returned by Run when the server closes the connection.
	ErrDisconnected = errors.New("disconnected from server")
	// ErrNotJoined is returned by intents that need a joined session.
	ErrNotJoined = errors.New("not joined")
)

// Observer is called after every frame folded into the view.
type Observer func(f protocol.Frame, v View)

// Option configures an Agent.
type Option func(*Agent)

// WithTypingIdle sets how long after the last keystroke typing:stop is sent.
func WithTypingIdle(d time.Duration) Option {
	return func(a *Agent) {
		a.idle = d
	}
}

// WithObserver registers a callback for folded frames.
func WithObserver(o Observer) Option {
	return func(a *Agent) {
		a.observer = o
	}
}

// WithLogger sets the agent's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = l
	}
}

type intent struct {
	run  func() error
	done chan error
}

// Agent owns one connection at a time. Frames, intents and typing expiry are
// all handled on the Run goroutine.
type Agent struct {
	dial     Dialer
	idle     time.Duration
	observer Observer
	logger   *slog.Logger

	intents chan intent
	expired chan struct{}
	stopped chan struct{}

	mu   sync.RWMutex
	view View

	// Owned by Run.
	transport Transport
	typing    bool
	debounce  *Debouncer
}

// New creates an Agent that connects with dial once Run is called.
func New(dial Dialer, opts ...Option) *Agent {
	a := &Agent{
		dial:    dial,
		idle:    DefaultTypingIdle,
		logger:  slog.Default(),
		intents: make(chan intent),
		expired: make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// View returns a snapshot of the current view.
func (a *Agent) View() View {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.view
}

func (a *Agent) setView(v View) {
	a.mu.Lock()
	a.view = v
	a.mu.Unlock()
}

// Run connects and processes events until ctx ends or the connection drops.
func (a *Agent) Run(ctx context.Context) error {
	defer close(a.stopped)

	t, err := a.dial(ctx)
	if err != nil {
		return err
	}
	a.transport = t
	a.debounce = NewDebouncer(a.idle, func() {
		select {
		case a.expired <- struct{}{}:
		default:
		}
	})
	defer func() {
		a.debounce.Cancel()
		_ = a.transport.Close()
		v := a.View()
		v.Connected = false
		a.setView(v)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-a.transport.Frames():
			if !ok {
				return ErrDisconnected
			}
			a.apply(f)
		case in := <-a.intents:
			in.done <- in.run()
		case <-a.expired:
			a.typingIdle()
		}
	}
}

func (a *Agent) apply(f protocol.Frame) {
	next, err := Fold(a.View(), f)
	if err != nil {
		a.logger.Warn("ignoring frame", "event", f.Event, "error", err)
		return
	}
	a.setView(next)
	if a.observer != nil {
		a.observer(f, next)
	}
}

// submit runs fn on the Run goroutine and waits for its result.
func (a *Agent) submit(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	select {
	case a.intents <- intent{run: fn, done: done}:
	case <-a.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join asks the server for a session under username.
func (a *Agent) Join(ctx context.Context, username string) error {
	return a.submit(ctx, func() error {
		v := a.View()
		v.Error = ""
		a.setView(v)
		return a.transport.Send(protocol.EventJoin, username)
	})
}

// SwitchRoom moves to room. The view's room changes immediately; the new
// roster and history arrive as frames.
func (a *Agent) SwitchRoom(ctx context.Context, room string) error {
	room = strings.TrimSpace(room)
	if room == "" {
		return nil
	}
	return a.submit(ctx, func() error {
		v := a.View()
		if v.User == nil {
			return ErrNotJoined
		}
		a.debounce.Cancel()
		a.stopTyping()
		if err := a.transport.Send(protocol.EventRoomJoin, room); err != nil {
			return err
		}
		user := *v.User
		user.Room = room
		v.User = &user
		a.setView(v)
		return nil
	})
}

// Send posts a message. Blank input is ignored. Sending ends any typing burst.
func (a *Agent) Send(ctx context.Context, content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	return a.submit(ctx, func() error {
		if err := a.transport.Send(protocol.EventMessageSend, content); err != nil {
			return err
		}
		// Fire signals expired on this goroutine; consume it here so
		// typing:stop is sent before Send returns.
		a.debounce.Fire()
		select {
		case <-a.expired:
			a.typingIdle()
		default:
		}
		return nil
	})
}

// CreateRoom asks the server for a new room. Blank names are ignored.
func (a *Agent) CreateRoom(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	return a.submit(ctx, func() error {
		return a.transport.Send(protocol.EventRoomCreate, name)
	})
}

// Keystroke records input activity. The first keystroke of a burst sends
// typing:start; every keystroke restarts the idle timer.
func (a *Agent) Keystroke(ctx context.Context) error {
	return a.submit(ctx, func() error {
		if !a.typing {
			if err := a.transport.Send(protocol.EventTypingStart, nil); err != nil {
				return err
			}
			a.typing = true
		}
		a.debounce.Arm()
		return nil
	})
}

// StopTyping ends a typing burst now.
func (a *Agent) StopTyping(ctx context.Context) error {
	return a.submit(ctx, func() error {
		a.debounce.Cancel()
		a.stopTyping()
		return nil
	})
}

// Logout drops the session by reconnecting. The view is cleared.
func (a *Agent) Logout(ctx context.Context) error {
	return a.submit(ctx, func() error {
		a.debounce.Cancel()
		a.typing = false
		_ = a.transport.Close()
		a.setView(View{})

		t, err := a.dial(ctx)
		if err != nil {
			return err
		}
		a.transport = t
		return nil
	})
}

// typingIdle ends the burst unless a keystroke re-armed the debouncer
// after it fired.
func (a *Agent) typingIdle() {
	if !a.debounce.Armed() {
		a.stopTyping()
	}
}

// stopTyping sends typing:stop if a burst is open.
func (a *Agent) stopTyping() {
	if !a.typing {
		return
	}
	a.typing = false
	if err := a.transport.Send(protocol.EventTypingStop, nil); err != nil {
		a.logger.Debug("typing:stop not sent", "error", err)
	}
}

// CurrentUser returns the joined user, if any.
func (a *Agent) CurrentUser() (domain.User, bool) {
	v := a.View()
	if v.User == nil {
		return domain.User{}, false
	}
	return *v.User, true
}
