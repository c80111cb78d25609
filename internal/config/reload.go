package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultReloadDebounce collapses editor write bursts into one reload.
const DefaultReloadDebounce = 500 * time.Millisecond

// Holder holds the configuration and swaps it atomically on reload.
// Readers always see a complete document.
type Holder struct {
	mu       sync.RWMutex
	current  *Config
	path     string
	debounce time.Duration

	listenMu  sync.RWMutex
	listeners []chan *Config
}

// NewHolder creates a holder with an initial configuration.
func NewHolder(initial *Config, path string) *Holder {
	return &Holder{
		current:  initial,
		path:     path,
		debounce: DefaultReloadDebounce,
	}
}

// SetDebounce changes the reload debounce. Used by tests.
func (h *Holder) SetDebounce(d time.Duration) { h.debounce = d }

// Get returns the current configuration. Callers must not modify it.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Path returns the watched file.
func (h *Holder) Path() string { return h.path }

// Reload loads and validates the file. On failure the old configuration is
// kept.
func (h *Holder) Reload() error {
	cfg, err := Load(h.path)
	if err != nil {
		log.Error().Err(err).Str("path", h.path).Msg("Config reload failed, keeping previous configuration")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	old := h.current
	h.current = cfg
	h.mu.Unlock()

	logChanges(old, cfg)
	h.notify(cfg)

	log.Info().Str("path", h.path).Msg("Configuration reloaded")
	return nil
}

// RegisterListener registers a channel that receives each reloaded
// configuration. Sends never block; a configuration still queued in the
// channel is replaced by the newer one.
func (h *Holder) RegisterListener(ch chan *Config) {
	h.listenMu.Lock()
	defer h.listenMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

func (h *Holder) notify(cfg *Config) {
	h.listenMu.RLock()
	defer h.listenMu.RUnlock()

	for _, ch := range h.listeners {
		select {
		case ch <- cfg:
			continue
		default:
		}
		select {
		case <-ch:
			log.Debug().Msg("Replacing unapplied configuration")
		default:
		}
		select {
		case ch <- cfg:
		default:
			log.Warn().Msg("Config listener busy, skipping notification")
		}
	}
}

// Watch reloads the configuration whenever the file changes, until ctx is
// done. The parent directory is watched so that editors replacing the file
// by rename are noticed.
func (h *Holder) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(h.path)
	if err := watcher.Add(dir); err != nil {
		// No config directory: nothing to reload
		log.Debug().Err(err).Str("dir", dir).Msg("Config directory not watchable")
		<-ctx.Done()
		return nil
	}
	log.Debug().Str("path", h.path).Msg("Watching config file")

	name := filepath.Clean(h.path)
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(h.debounce)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			h.Reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

// logChanges logs the settings that differ between two configurations.
func logChanges(old, cfg *Config) {
	if old == nil {
		return
	}
	if old.Communication.Directory != cfg.Communication.Directory {
		log.Warn().
			Str("old", old.Communication.Directory).
			Str("new", cfg.Communication.Directory).
			Msg("communication.directory changed; restart to apply")
	}
	if old.MediaControls != cfg.MediaControls {
		log.Info().Msg("config changed: media_controls")
	}
	if old.RPC != cfg.RPC {
		log.Info().Msg("config changed: rpc")
	}
	if old.DetachOnStop != cfg.DetachOnStop || old.ExitWithPlugin != cfg.ExitWithPlugin {
		log.Info().
			Bool("detach_on_stop", cfg.DetachOnStop).
			Bool("exit_with_plugin", cfg.ExitWithPlugin).
			Msg("config changed: lifecycle")
	}
	if old.Logging.Level != cfg.Logging.Level {
		log.Info().Str("old", old.Logging.Level).Str("new", cfg.Logging.Level).Msg("config changed: logging.level")
	}
}
