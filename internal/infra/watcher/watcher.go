// Package watcher observes the communication directory and emits one event
// per logical protocol file for each burst of filesystem changes.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// ErrUnwatchable is returned when the directory cannot be watched even
// after a re-subscription. The daemon cannot run without it.
var ErrUnwatchable = errors.New("communication directory unwatchable")

// ErrRunning is returned by Start when the watcher is already running.
var ErrRunning = errors.New("watcher already running")

// Default timings.
const (
	DefaultWindow           = 30 * time.Millisecond
	DefaultResubscribeDelay = 250 * time.Millisecond
)

// Kind is the coalesced change kind.
type Kind int

// Kinds.
const (
	KindWrite Kind = iota
	KindCreate
	KindRemove
	// KindResync is emitted for every file after a re-subscription, since
	// changes may have been missed in between.
	KindResync
)

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindRemove:
		return "remove"
	case KindResync:
		return "resync"
	default:
		return "write"
	}
}

// FileEvent reports that a logical file changed.
type FileEvent struct {
	File string
	Kind Kind
}

// Options configures a Watcher.
type Options struct {
	// Files are the base names to report. Anything else is ignored.
	Files []string
	// Window is the coalescing window per file.
	Window time.Duration
	// ResubscribeDelay is the pause before the single re-subscription.
	ResubscribeDelay time.Duration
	// Prepare runs before every subscription, e.g. to recreate missing
	// files. Its error is logged, never returned.
	Prepare func() error
}

type backend interface {
	Add(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsBackend struct{ w *fsnotify.Watcher }

func (b fsBackend) Add(name string) error         { return b.w.Add(name) }
func (b fsBackend) Close() error                  { return b.w.Close() }
func (b fsBackend) Events() <-chan fsnotify.Event { return b.w.Events }
func (b fsBackend) Errors() <-chan error          { return b.w.Errors }

func newFSBackend() (backend, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return fsBackend{w: w}, nil
}

// Watcher watches one directory. It can be started again after Close.
type Watcher struct {
	dir        string
	opts       Options
	files      map[string]bool
	newBackend func() (backend, error)

	events chan FileEvent
	errs   chan error

	mu      sync.Mutex
	running bool
	quit    chan struct{}
	done    chan struct{}
	coal    *coalescer
}

// New creates a watcher for dir. Zero option values take defaults.
func New(dir string, opts Options) *Watcher {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.ResubscribeDelay <= 0 {
		opts.ResubscribeDelay = DefaultResubscribeDelay
	}

	files := make(map[string]bool, len(opts.Files))
	for _, f := range opts.Files {
		files[f] = true
	}

	return &Watcher{
		dir:        filepath.Clean(dir),
		opts:       opts,
		files:      files,
		newBackend: newFSBackend,
		events:     make(chan FileEvent, 16),
		errs:       make(chan error, 1),
	}
}

// Events returns the coalesced event stream. The channel is never closed.
func (w *Watcher) Events() <-chan FileEvent { return w.events }

// Errors delivers ErrUnwatchable when the watch is lost for good.
func (w *Watcher) Errors() <-chan error { return w.errs }

// Start subscribes to the directory and begins emitting events.
// A failed subscription is retried once before ErrUnwatchable is returned.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return ErrRunning
	}

	b, err := w.subscribe()
	if err != nil {
		log.Warn().Err(err).Str("dir", w.dir).Msg("Watch subscription failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.opts.ResubscribeDelay):
		}
		if b, err = w.subscribe(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnwatchable, err)
		}
	}

	quit := make(chan struct{})
	w.quit = quit
	w.done = make(chan struct{})
	w.coal = newCoalescer(w.opts.Window, func(ev FileEvent) {
		select {
		case w.events <- ev:
		case <-quit:
		}
	})
	w.running = true

	go w.run(ctx, b, w.coal, quit, w.done)

	log.Info().Str("dir", w.dir).Msg("Watching communication directory")
	return nil
}

// Close stops the watcher. Pending coalesced events are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	close(w.quit)
	<-w.done
	w.coal.Stop()
	w.running = false
	return nil
}

func (w *Watcher) subscribe() (backend, error) {
	if w.opts.Prepare != nil {
		if err := w.opts.Prepare(); err != nil {
			log.Warn().Err(err).Str("dir", w.dir).Msg("Failed to prepare communication directory")
		}
	}

	b, err := w.newBackend()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := b.Add(w.dir); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("watch %s: %w", w.dir, err)
	}
	return b, nil
}

func (w *Watcher) run(ctx context.Context, b backend, coal *coalescer, quit, done chan struct{}) {
	defer close(done)
	defer func() { _ = b.Close() }()

	for {
		var failure error

		select {
		case <-ctx.Done():
			return
		case <-quit:
			return

		case ev, ok := <-b.Events():
			if !ok {
				failure = errors.New("event stream closed")
				break
			}
			if filepath.Clean(ev.Name) == w.dir && ev.Has(fsnotify.Remove|fsnotify.Rename) {
				failure = errors.New("directory removed")
				break
			}
			if fe, ok := w.translate(ev); ok {
				coal.Trigger(fe)
			}

		case err, ok := <-b.Errors():
			if !ok {
				err = errors.New("error stream closed")
			}
			failure = err
		}

		if failure == nil {
			continue
		}

		log.Warn().Err(failure).Str("dir", w.dir).Msg("Watch backend failed, re-subscribing")
		_ = b.Close()

		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case <-time.After(w.opts.ResubscribeDelay):
		}

		nb, err := w.subscribe()
		if err != nil {
			log.Error().Err(err).Str("dir", w.dir).Msg("Re-subscription failed")
			select {
			case w.errs <- fmt.Errorf("%w: %v", ErrUnwatchable, err):
			default:
			}
			return
		}
		b = nb

		for _, f := range w.opts.Files {
			coal.Trigger(FileEvent{File: f, Kind: KindResync})
		}
	}
}

func (w *Watcher) translate(ev fsnotify.Event) (FileEvent, bool) {
	name := filepath.Base(ev.Name)
	if !w.files[name] {
		return FileEvent{}, false
	}

	switch {
	case ev.Has(fsnotify.Create):
		return FileEvent{File: name, Kind: KindCreate}, true
	case ev.Has(fsnotify.Write):
		return FileEvent{File: name, Kind: KindWrite}, true
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return FileEvent{File: name, Kind: KindRemove}, true
	default:
		return FileEvent{}, false
	}
}
