package watcher

import (
	"sync"
	"time"
)

// coalescer collapses bursts of raw events per logical file into one event,
// emitted once the window elapses without further triggers for that file.
type coalescer struct {
	window time.Duration
	emit   func(FileEvent)

	mu      sync.Mutex
	pending map[string]*pendingEvent
	stopped bool
	wg      sync.WaitGroup
}

type pendingEvent struct {
	kind  Kind
	gen   uint64
	timer *time.Timer
}

func newCoalescer(window time.Duration, emit func(FileEvent)) *coalescer {
	return &coalescer{
		window:  window,
		emit:    emit,
		pending: make(map[string]*pendingEvent),
	}
}

// Trigger records a raw event and (re)arms the file's timer.
func (c *coalescer) Trigger(ev FileEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}

	p := c.pending[ev.File]
	if p == nil {
		p = &pendingEvent{}
		c.pending[ev.File] = p
	}
	p.kind = ev.Kind
	p.gen++

	// Reset the timer
	if p.timer != nil && p.timer.Stop() {
		c.wg.Done()
	}
	gen := p.gen
	c.wg.Add(1)
	p.timer = time.AfterFunc(c.window, func() {
		defer c.wg.Done()
		c.flush(ev.File, gen)
	})
}

func (c *coalescer) flush(file string, gen uint64) {
	c.mu.Lock()
	p := c.pending[file]
	if p == nil || p.gen != gen || c.stopped {
		c.mu.Unlock()
		return
	}
	delete(c.pending, file)
	kind := p.kind
	c.mu.Unlock()

	c.emit(FileEvent{File: file, Kind: kind})
}

// Stop cancels pending events and waits for running flushes.
func (c *coalescer) Stop() {
	c.mu.Lock()
	c.stopped = true
	for file, p := range c.pending {
		if p.timer != nil && p.timer.Stop() {
			c.wg.Done()
		}
		delete(c.pending, file)
	}
	c.mu.Unlock()

	c.wg.Wait()
}
