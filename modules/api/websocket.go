package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"github.com/example/multiroom-chat/modules/broadcast"
	"github.com/example/multiroom-chat/modules/chat"
	"github.com/example/multiroom-chat/protocol"
)

const (
	maxFrameBytes = 64 * 1024
	closeGrace    = time.Second
)

var (
	errUnknownEvent = errors.New("unknown event")
	errRateLimited  = errors.New("rate limited")
)

// handleWebSocket runs one chat connection: a write loop draining the
// connection's outbox and a read loop turning frames into engine actions.
func (m *APIModule) handleWebSocket(c *websocket.Conn) {
	connID := uuid.New().String()
	log := m.logger.With("connID", connID)
	ctx := context.Background()

	outbox := broadcast.NewOutbox(m.outboxSize)
	if err := m.engine.Connect(ctx, connID, outbox); err != nil {
		log.Warn("Rejecting WebSocket connection", "error", err)
		return
	}
	log.Debug("WebSocket client connected", "remote", c.RemoteAddr().String())

	written := make(chan struct{})
	go func() {
		defer close(written)
		m.writeLoop(c, outbox, log)
	}()

	c.SetReadLimit(maxFrameBytes)
	m.readLoop(ctx, c, connID, log)

	if err := m.engine.Disconnect(ctx, connID); err != nil && !errors.Is(err, chat.ErrNoActiveSession) {
		log.Warn("Disconnect failed", "error", err)
	}
	// Disconnect already closed it unless the engine is gone.
	outbox.Close()
	<-written

	m.limiter.Forget(ctx, connID)
	log.Debug("WebSocket client disconnected")
}

// writeLoop is the only writer on the socket. It ends when the outbox is
// closed, sending a close frame so the peer hangs up too.
func (m *APIModule) writeLoop(c *websocket.Conn, outbox *broadcast.Outbox, log types.Logger) {
	for data := range outbox.C() {
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debug("WebSocket write failed", "error", err)
			_ = c.Close()
			// Drain until the router closes the outbox.
			for range outbox.C() {
			}
			return
		}
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace)); err == nil {
		_ = c.SetReadDeadline(time.Now().Add(closeGrace))
	}
}

func (m *APIModule) readLoop(ctx context.Context, c *websocket.Conn, connID string, log types.Logger) {
	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Debug("WebSocket read ended", "error", err)
			}
			return
		}

		frame, err := protocol.Decode(raw)
		if err != nil {
			log.Debug("Dropping malformed frame", "error", err)
			continue
		}

		err = m.dispatch(ctx, connID, frame)
		switch {
		case err == nil:
		case errors.Is(err, chat.ErrEngineStopped):
			return
		case errors.Is(err, errRateLimited):
			log.Warn("Message dropped by rate limit")
		default:
			log.Debug("Action ignored", "event", frame.Event, "error", err)
		}
	}
}

// dispatch maps a client event onto the engine.
func (m *APIModule) dispatch(ctx context.Context, connID string, f protocol.Frame) error {
	switch f.Event {
	case protocol.EventJoin:
		return m.engine.Join(ctx, connID, f.Text())
	case protocol.EventRoomJoin:
		return m.engine.SwitchRoom(ctx, connID, f.Text())
	case protocol.EventRoomCreate:
		return m.engine.CreateRoom(ctx, connID, f.Text())
	case protocol.EventMessageSend:
		allowed, err := m.limiter.Allow(ctx, connID)
		if err != nil {
			// Limiter errors fail open.
			m.logger.Warn("Rate limiter unavailable", "error", err)
		} else if !allowed {
			return errRateLimited
		}
		return m.engine.SendMessage(ctx, connID, f.Text())
	case protocol.EventTypingStart:
		return m.engine.SetTyping(ctx, connID, true)
	case protocol.EventTypingStop:
		return m.engine.SetTyping(ctx, connID, false)
	default:
		return fmt.Errorf("%w: %q", errUnknownEvent, f.Event)
	}
}
