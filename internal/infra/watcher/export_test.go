package watcher

import "github.com/fsnotify/fsnotify"

// Backend exposes the subscription seam to tests.
type Backend interface {
	Add(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

// SetBackendFactory replaces how subscriptions are created.
func (w *Watcher) SetBackendFactory(f func() (Backend, error)) {
	w.newBackend = func() (backend, error) {
		b, err := f()
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}
