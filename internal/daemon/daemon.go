// Package daemon runs the bridge: it watches the communication directory,
// keeps the cached player state, and drives the media session, the presence
// mirror and the status transport from it.
package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/edumarques81/beebridge/internal/config"
	"github.com/edumarques81/beebridge/internal/domain/artwork"
	"github.com/edumarques81/beebridge/internal/domain/controls"
	"github.com/edumarques81/beebridge/internal/domain/lifecycle"
	"github.com/edumarques81/beebridge/internal/domain/pathmap"
	"github.com/edumarques81/beebridge/internal/domain/player"
	"github.com/edumarques81/beebridge/internal/domain/protocol"
	"github.com/edumarques81/beebridge/internal/infra/commdir"
	"github.com/edumarques81/beebridge/internal/infra/remote"
	"github.com/edumarques81/beebridge/internal/infra/watcher"
)

// DefaultProcessInterval is how often the remote player process is checked
// while attached.
const DefaultProcessInterval = 5 * time.Second

// StateListener is told when the cached state changed.
// *socketio.Server implements it.
type StateListener interface {
	Notify()
}

// ProcessWatcher reports whether the remote player process is running.
type ProcessWatcher interface {
	Alive() (bool, error)
}

// Mirror is the presence mirror. *presence.Mirror implements it.
type Mirror interface {
	Update(snap player.Snapshot)
	Attach()
	Detach()
	Run(ctx context.Context) error
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithSession sets the host media session. Without one the bridge keeps
// its state to itself.
func WithSession(s controls.Session) Option {
	return func(d *Daemon) { d.session = s }
}

// WithRunner replaces the remote command runner built from the config.
func WithRunner(r controls.RemoteRunner) Option {
	return func(d *Daemon) { d.runner.fixed(r) }
}

// WithMirror enables the presence mirror.
func WithMirror(m Mirror) Option {
	return func(d *Daemon) { d.mirror = m }
}

// WithProcessWatch replaces the /proc scan used for commands.watch_process.
func WithProcessWatch(p ProcessWatcher) Option {
	return func(d *Daemon) { d.process = p }
}

// WithStateListener adds a listener for state changes.
func WithStateListener(l StateListener) Option {
	return func(d *Daemon) { d.listeners = append(d.listeners, l) }
}

// WithWatchWindow sets the watcher coalescing window.
func WithWatchWindow(w time.Duration) Option {
	return func(d *Daemon) { d.window = w }
}

// WithProcessInterval sets the process check period.
func WithProcessInterval(i time.Duration) Option {
	return func(d *Daemon) { d.processInterval = i }
}

// Daemon owns the cached player state and the lifecycle manager. Everything
// that mutates them runs on the goroutine executing Run.
type Daemon struct {
	holder *config.Holder
	cfg    *config.Config

	dir       *commdir.Dir
	mailbox   *commdir.Mailbox
	watcher   *watcher.Watcher
	state     *player.State
	paths     *pathmap.Translator
	lifecycle *lifecycle.Manager
	bridge    *controls.Bridge
	session   controls.Session
	runner    *remoteCommands
	mirror    Mirror
	process   ProcessWatcher
	listeners []StateListener

	window          time.Duration
	processInterval time.Duration
	reloads         chan *config.Config
	exit            bool
}

// New builds a daemon from the holder's current configuration.
func New(holder *config.Holder, opts ...Option) *Daemon {
	cfg := holder.Get()

	d := &Daemon{
		holder:          holder,
		cfg:             cfg,
		state:           player.NewState(),
		runner:          &remoteCommands{},
		processInterval: DefaultProcessInterval,
		reloads:         make(chan *config.Config, 1),
	}
	for _, o := range opts {
		o(d)
	}

	vars, err := cfg.Vars()
	if err != nil {
		log.Error().Err(err).Msg("Failed to resolve path variables")
	}
	d.paths, err = pathmap.NewTranslator(cfg.Tables(), vars)
	if err != nil {
		log.Error().Err(err).Msg("Dropped invalid path mapping rules")
	}

	d.runner.configure(cfg)
	if cfg.Commands.WatchProcess && d.process == nil {
		d.process = remote.NewProcessWatch(cfg.Commands.PlayerLocation)
	}

	d.dir = commdir.New(cfg.Communication.Directory)
	d.mailbox = commdir.NewMailbox(d.dir)
	d.mailbox.SetNotifier(d.runner.Notify)

	d.bridge = controls.NewBridge(d.session, d.mailbox, bridgeOptions(cfg),
		controls.WithRunner(d.runner),
		controls.WithPathMapper(d.paths),
		controls.WithArtResolver(artwork.NewResolver(artwork.NewFilesystemFinder(musicRoot(cfg, vars)))),
	)
	d.lifecycle = lifecycle.NewManager(lifecycleOptions(cfg))
	d.watcher = watcher.New(d.dir.Root(), watcher.Options{
		Files:   protocol.Files,
		Window:  d.window,
		Prepare: d.dir.EnsureLayout,
	})
	return d
}

// State returns the cached player state.
func (d *Daemon) State() *player.State { return d.state }

// AddListener adds a listener for state changes. Call before Run.
func (d *Daemon) AddListener(l StateListener) {
	d.listeners = append(d.listeners, l)
}

// Commands returns the sink for host commands from other transports.
func (d *Daemon) Commands() *controls.Bridge { return d.bridge }

// Run starts the daemon and blocks until ctx is done, the remote plugin
// deactivates with exit_with_plugin set, or the communication directory
// becomes unwatchable. Only the latter is returned as an error.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.dir.EnsureLayout(); err != nil {
		log.Warn().Err(err).Str("dir", d.dir.Root()).Msg("Failed to prepare communication directory")
	}
	if err := d.watcher.Start(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error { return d.mailbox.Run(gctx) })
	if d.mirror != nil {
		g.Go(func() error { return d.mirror.Run(gctx) })
	}
	if d.holder != nil && d.holder.Path() != "" {
		d.holder.RegisterListener(d.reloads)
		g.Go(func() error {
			if err := d.holder.Watch(gctx); err != nil {
				log.Warn().Err(err).Str("path", d.holder.Path()).Msg("Config reload disabled")
			}
			return nil
		})
	}
	g.Go(func() error {
		// Other tasks stop once the loop has shut the session down
		defer cancel()
		return d.loop(gctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info().Msg("Bridge stopped")
	return err
}

func (d *Daemon) loop(ctx context.Context) error {
	defer d.shutdown()

	d.sync(ctx)

	ticker := time.NewTicker(d.processInterval)
	defer ticker.Stop()

	for !d.exit {
		select {
		case <-ctx.Done():
			return nil

		case ev := <-d.watcher.Events():
			d.handleEvent(ctx, ev)

		case err := <-d.watcher.Errors():
			log.Error().Err(err).Str("dir", d.dir.Root()).Msg("Lost the communication directory")
			return err

		case cmd := <-d.bridge.Commands():
			if err := d.bridge.Handle(ctx, cmd); err != nil {
				log.Warn().Err(err).Str("action", cmd.Kind.String()).Msg("Failed to handle control command")
			}

		case cfg := <-d.reloads:
			d.applyConfig(cfg)

		case <-ticker.C:
			d.checkHost()
		}
	}
	log.Info().Msg("Remote plugin deactivated, exiting")
	return nil
}

// shutdown releases the watcher and the session. The presence mirror stops
// with the task group afterwards.
func (d *Daemon) shutdown() {
	if err := d.watcher.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close watcher")
	}
	if d.cfg.ExitWithPlugin {
		if err := d.dir.WriteActivation(false); err != nil {
			log.Warn().Err(err).Msg("Failed to reset activation flag")
		}
	}
	if err := d.bridge.Close(); err != nil {
		log.Warn().Err(err).Str("component", "controls").Msg("Failed to release media session")
	}
}

// apply feeds an event to the lifecycle manager and carries out its effect.
func (d *Daemon) apply(ev lifecycle.Event) {
	dec := d.lifecycle.Apply(ev)
	if dec.Transitioned() {
		recordTransition(dec)
		log.Info().
			Str("from", dec.From.String()).
			Str("to", dec.To.String()).
			Str("effect", dec.Effect.String()).
			Msg("Lifecycle transition")
	}

	snap := d.state.Snapshot()
	switch dec.Effect {
	case lifecycle.EffectAttach:
		if err := d.bridge.Attach(snap); err != nil {
			log.Warn().Err(err).Str("component", "controls").Msg("Failed to register media session")
		}
		if d.mirror != nil {
			d.mirror.Attach()
			d.mirror.Update(snap)
		}
	case lifecycle.EffectDetach:
		if err := d.bridge.Detach(); err != nil {
			log.Warn().Err(err).Str("component", "controls").Msg("Failed to unregister media session")
		}
		if d.mirror != nil {
			d.mirror.Detach()
		}
	case lifecycle.EffectShutdown:
		d.exit = true
	}
}

// checkHost detaches when the remote player process is gone.
func (d *Daemon) checkHost() {
	if d.process == nil || !d.cfg.Commands.WatchProcess || d.lifecycle.State() != lifecycle.Attached {
		return
	}
	alive, err := d.process.Alive()
	if err != nil {
		log.Debug().Err(err).Msg("Process check failed")
		return
	}
	if !alive {
		log.Info().Str("player", d.cfg.Commands.PlayerLocation).Msg("Remote player process exited")
		d.apply(lifecycle.HostExited)
	}
}

func (d *Daemon) notify() {
	for _, l := range d.listeners {
		l.Notify()
	}
}

func bridgeOptions(cfg *config.Config) controls.Options {
	return controls.Options{
		Enabled:          cfg.MediaControls.Enabled,
		SeekAmount:       cfg.SeekAmount(),
		SendVolume:       cfg.MediaControls.SendVolume,
		VolumeAckTimeout: cfg.MediaControls.VolumeAckTimeout,
		NotifyCommand:    cfg.MediaControls.NotifyCommand,
	}
}

func lifecycleOptions(cfg *config.Config) lifecycle.Options {
	return lifecycle.Options{
		DetachOnStop:   cfg.DetachOnStop,
		ExitWithPlugin: cfg.ExitWithPlugin,
	}
}

// musicRoot returns the local side of the first music rule, which bounds
// the cover folder search.
func musicRoot(cfg *config.Config, vars pathmap.Vars) string {
	for _, r := range cfg.MusicFileMapper {
		if root, err := pathmap.Expand(r.To, vars); err == nil {
			return root
		}
	}
	return ""
}
