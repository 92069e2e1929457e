package client

import (
	"sync"
	"time"
)

// DefaultTypingIdle is how long after the last keystroke typing stops.
const DefaultTypingIdle = 2 * time.Second

// Debouncer calls fire once the idle period passes without another Arm.
type Debouncer struct {
	mu    sync.Mutex
	idle  time.Duration
	fire  func()
	timer *time.Timer
	gen   uint64
	armed bool
}

// NewDebouncer creates a disarmed Debouncer.
func NewDebouncer(idle time.Duration, fire func()) *Debouncer {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &Debouncer{idle: idle, fire: fire}
}

// Arm starts or restarts the idle timer. It reports whether the debouncer
// was idle before the call.
func (d *Debouncer) Arm() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	wasIdle := !d.armed
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.armed = true
	d.timer = time.AfterFunc(d.idle, func() { d.expire(gen) })
	return wasIdle
}

// Cancel disarms without firing. It reports whether it was armed.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disarmLocked()
}

// Fire disarms and calls fire immediately if armed.
func (d *Debouncer) Fire() {
	d.mu.Lock()
	armed := d.disarmLocked()
	d.mu.Unlock()
	if armed {
		d.fire()
	}
}

// Armed reports whether a timer is pending.
func (d *Debouncer) Armed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}

func (d *Debouncer) disarmLocked() bool {
	if !d.armed {
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.armed = false
	return true
}

// expire runs on the timer goroutine; a timer superseded by Arm or Cancel
// is ignored.
func (d *Debouncer) expire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || !d.armed {
		d.mu.Unlock()
		return
	}
	d.armed = false
	d.timer = nil
	d.mu.Unlock()
	d.fire()
}
