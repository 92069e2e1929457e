package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/multiroom-chat/protocol"
)

// ErrTransportClosed is returned by Send after Close.
var ErrTransportClosed = errors.New("transport closed")

// Transport is one connection to the chat server.
type Transport interface {
	Send(event string, payload any) error
	// Frames yields inbound frames and is closed when the connection ends.
	Frames() <-chan protocol.Frame
	Close() error
}

// Dialer opens a fresh Transport.
type Dialer func(ctx context.Context) (Transport, error)

const writeWait = 5 * time.Second

type wsTransport struct {
	conn   *websocket.Conn
	frames chan protocol.Frame
	done   chan struct{}
	logger *slog.Logger

	mu     sync.Mutex // serializes writes
	closed bool
}

// DialWebSocket returns a Dialer for the server's /ws endpoint, e.g.
// "ws://localhost:3001/ws".
func DialWebSocket(url string, logger *slog.Logger) Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) (Transport, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", url, err)
		}
		t := &wsTransport{
			conn:   conn,
			frames: make(chan protocol.Frame, 64),
			done:   make(chan struct{}),
			logger: logger,
		}
		go t.readLoop()
		return t, nil
	}
}

func (t *wsTransport) readLoop() {
	defer close(t.frames)
	for {
		_, raw, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Warn("connection lost", "error", err)
			}
			return
		}
		f, err := protocol.Decode(raw)
		if err != nil {
			t.logger.Debug("dropping malformed frame", "error", err)
			continue
		}
		select {
		case t.frames <- f:
		case <-t.done:
			return
		}
	}
}

func (t *wsTransport) Send(event string, payload any) error {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Frames() <-chan protocol.Frame {
	return t.frames
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	return t.conn.Close()
}
