package socketio

import (
	"sync"
	"time"
)

// BroadcastDebouncer collapses rapid state changes into one broadcast.
// Changes within the debounce window result in a single callback once the
// window elapses without further triggers.
type BroadcastDebouncer struct {
	window   time.Duration
	callback func()

	mu      sync.Mutex
	pending bool
	timer   *time.Timer
	stopped bool
}

// NewBroadcastDebouncer creates a debouncer with the given window duration.
func NewBroadcastDebouncer(window time.Duration, callback func()) *BroadcastDebouncer {
	return &BroadcastDebouncer{
		window:   window,
		callback: callback,
	}
}

// Trigger records a change. The callback is deferred until the debounce
// window elapses without further triggers.
func (d *BroadcastDebouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.pending = true

	// Reset the timer
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush fires the callback if a change is pending.
func (d *BroadcastDebouncer) flush() {
	d.mu.Lock()
	fire := d.pending && !d.stopped
	d.pending = false
	d.mu.Unlock()

	if fire && d.callback != nil {
		d.callback()
	}
}

// Stop prevents any further callbacks from firing.
func (d *BroadcastDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = false
}
