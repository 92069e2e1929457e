package broadcast

import "sync"

// Outbox is a bounded per-connection frame queue. The router enqueues,
// the connection's write loop drains C until it is closed.
type Outbox struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

// NewOutbox creates an outbox holding up to size frames.
func NewOutbox(size int) *Outbox {
	if size <= 0 {
		size = 256
	}
	return &Outbox{ch: make(chan []byte, size)}
}

// Send enqueues data without blocking.
func (o *Outbox) Send(data []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return false
	}
	select {
	case o.ch <- data:
		return true
	default:
		return false
	}
}

// Close stops accepting frames. Frames already queued stay readable.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}

// C returns the channel the write loop drains.
func (o *Outbox) C() <-chan []byte {
	return o.ch
}
