package daemon

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/beebridge/internal/config"
	"github.com/edumarques81/beebridge/internal/domain/controls"
	"github.com/edumarques81/beebridge/internal/domain/lifecycle"
	"github.com/edumarques81/beebridge/internal/infra/remote"
	"github.com/edumarques81/beebridge/internal/metrics"
)

// remoteCommands is the runner handed to the bridge and the mailbox. A
// config reload swaps the underlying runner and notify switch.
type remoteCommands struct {
	mu     sync.RWMutex
	runner controls.RemoteRunner
	pinned bool
	notify string
}

func (r *remoteCommands) fixed(runner controls.RemoteRunner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runner = runner
	r.pinned = true
}

func (r *remoteCommands) configure(cfg *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.pinned {
		r.runner = remote.NewRunner(cfg.Commands.WineCommand, cfg.WinePrefix(), cfg.Commands.PlayerLocation)
	}
	r.notify = cfg.MediaControls.NotifyCommand
}

// Run implements controls.RemoteRunner.
func (r *remoteCommands) Run(ctx context.Context, args ...string) error {
	r.mu.RLock()
	runner := r.runner
	r.mu.RUnlock()
	return runner.Run(ctx, args...)
}

// Notify runs the notify switch, if any, after an action was written.
func (r *remoteCommands) Notify(ctx context.Context) error {
	r.mu.RLock()
	runner, notify := r.runner, r.notify
	r.mu.RUnlock()
	if notify == "" {
		return nil
	}
	return runner.Run(ctx, notify)
}

// applyConfig installs a reloaded configuration. The communication
// directory, the status server and the presence service keep their startup
// settings until restart.
func (d *Daemon) applyConfig(cfg *config.Config) {
	old := d.cfg
	d.cfg = cfg

	vars, err := cfg.Vars()
	if err != nil {
		log.Error().Err(err).Msg("Failed to resolve path variables")
	}
	if err := d.paths.Swap(cfg.Tables(), vars); err != nil {
		log.Error().Err(err).Msg("Dropped invalid path mapping rules")
	}

	d.runner.configure(cfg)
	if cfg.Commands.WatchProcess && d.process == nil {
		d.process = remote.NewProcessWatch(cfg.Commands.PlayerLocation)
	}

	d.bridge.SetOptions(bridgeOptions(cfg))
	d.lifecycle.SetOptions(lifecycleOptions(cfg))

	snap := d.state.Snapshot()
	switch {
	case !cfg.MediaControls.Enabled && d.bridge.Registered():
		if err := d.bridge.Detach(); err != nil {
			log.Warn().Err(err).Str("component", "controls").Msg("Failed to unregister media session")
		}
	case cfg.MediaControls.Enabled && !old.MediaControls.Enabled && d.lifecycle.SessionUp():
		if err := d.bridge.Attach(snap); err != nil {
			log.Warn().Err(err).Str("component", "controls").Msg("Failed to register media session")
		}
	}

	if cfg.Communication.Directory != old.Communication.Directory {
		log.Warn().
			Str("current", old.Communication.Directory).
			Str("configured", cfg.Communication.Directory).
			Msg("Communication directory change takes effect after restart")
	}
	if cfg.RPC != old.RPC || !cfg.Status.Equal(old.Status) {
		log.Warn().Msg("Presence and status server changes take effect after restart")
	}

	// Re-translate the current artwork with the new rules
	if m := snap.Metadata; m.ArtworkPath != "" {
		if d.state.UpdateMetadata(m, d.localArtwork(m.ArtworkPath)) {
			snap = d.state.Snapshot()
			if err := d.bridge.PublishMetadata(snap); err != nil {
				log.Warn().Err(err).Str("component", "controls").Msg("Failed to publish metadata")
			}
			if d.mirror != nil {
				d.mirror.Update(snap)
			}
			d.notify()
		}
	}
}

func recordTransition(dec lifecycle.Decision) {
	metrics.RecordTransition(dec.To.String(), dec.To == lifecycle.Attached)
}
