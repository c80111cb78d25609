package controls

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/beebridge/internal/domain/artwork"
	"github.com/edumarques81/beebridge/internal/domain/player"
	"github.com/edumarques81/beebridge/internal/domain/protocol"
)

const (
	// DefaultSeekAmount is used for a relative seek without a delta.
	DefaultSeekAmount = 5 * time.Second
	// DefaultVolumeAckTimeout bounds how long a requested volume change
	// waits for its notification.
	DefaultVolumeAckTimeout = 2 * time.Second
)

// ErrNoRunner is returned for commands that need the remote command runner
// when none is configured.
var ErrNoRunner = errors.New("remote command runner not configured")

// Remote player command-line switches.
const (
	SwitchNext     = "/Next"
	SwitchPrevious = "/Previous"
	SwitchStop     = "/Stop"
	SwitchPlay     = "/Play"
)

// ActionSink receives actions for the remote player.
type ActionSink interface {
	Post(protocol.Action) (overwrote bool)
}

// RemoteRunner runs the remote player executable with arguments.
type RemoteRunner interface {
	Run(ctx context.Context, args ...string) error
}

// PathMapper maps local paths to the remote namespace.
type PathMapper interface {
	ToRemote(local string) string
}

// ArtResolver turns a translated artwork reference into a cover.
type ArtResolver interface {
	Resolve(ref string) artwork.ResolveResult
}

// Options are the media_controls settings.
type Options struct {
	Enabled          bool
	SeekAmount       time.Duration
	SendVolume       bool
	VolumeAckTimeout time.Duration
	// NotifyCommand, when set, is run after every action to wake the
	// remote plugin. It nudges the remote volume, so every action then
	// expects a volume notification.
	NotifyCommand string
}

func (o Options) withDefaults() Options {
	if o.SeekAmount <= 0 {
		o.SeekAmount = DefaultSeekAmount
	}
	if o.VolumeAckTimeout <= 0 {
		o.VolumeAckTimeout = DefaultVolumeAckTimeout
	}
	return o
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithRunner sets the remote command runner used for next, previous, stop
// and open-uri.
func WithRunner(r RemoteRunner) Option {
	return func(b *Bridge) { b.runner = r }
}

// WithPathMapper sets the mapper used for open-uri.
func WithPathMapper(m PathMapper) Option {
	return func(b *Bridge) { b.paths = m }
}

// WithArtResolver sets the cover resolver.
func WithArtResolver(r ArtResolver) Option {
	return func(b *Bridge) { b.art = r }
}

// WithClock sets the time source (useful for testing).
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) { b.now = now }
}

// Bridge is the two-way adapter between the host session and the protocol
// files. It is owned by a single goroutine and is not safe for concurrent use.
type Bridge struct {
	session Session
	sink    ActionSink
	runner  RemoteRunner
	paths   PathMapper
	art     ArtResolver
	opts    Options
	now     func() time.Time

	commands   chan Command
	wanted     bool
	registered bool
	status     protocol.Status
	marker     volumeMarker
}

// NewBridge creates a bridge. A nil session means no host session.
func NewBridge(session Session, sink ActionSink, opts Options, options ...Option) *Bridge {
	if session == nil {
		session = NoopSession{}
	}
	b := &Bridge{
		session:  session,
		sink:     sink,
		opts:     opts.withDefaults(),
		now:      time.Now,
		art:      artwork.NewResolver(nil),
		commands: make(chan Command, 8),
	}
	for _, o := range options {
		o(b)
	}
	return b
}

// Commands delivers user commands from the host session.
func (b *Bridge) Commands() <-chan Command { return b.commands }

// Submit queues a command from a source other than the host session. It
// never blocks and reports false when the queue is full. Safe for concurrent
// use.
func (b *Bridge) Submit(cmd Command) bool {
	select {
	case b.commands <- cmd:
		return true
	default:
		return false
	}
}

// SetOptions replaces the options, e.g. after a config reload.
func (b *Bridge) SetOptions(opts Options) { b.opts = opts.withDefaults() }

// Registered reports whether the host session is currently published.
func (b *Bridge) Registered() bool { return b.registered }

// VolumePending reports whether a requested volume change is still
// waiting for its notification.
func (b *Bridge) VolumePending() bool {
	b.marker.expire(b.now())
	return b.marker.pending
}

// Attach publishes the host session and pushes the current state.
// Repeated calls do not register again.
func (b *Bridge) Attach(snap player.Snapshot) error {
	if !b.opts.Enabled {
		return nil
	}
	b.wanted = true
	return b.ensureRegistered(snap)
}

func (b *Bridge) ensureRegistered(snap player.Snapshot) error {
	if b.registered || !b.wanted {
		return nil
	}
	if err := b.session.Register(b.commands); err != nil {
		return err
	}
	b.registered = true
	log.Info().Str("component", "controls").Msg("Media session registered")

	return errors.Join(
		b.pushMetadata(snap),
		b.pushPlayback(snap),
		b.pushVolume(snap.Volume),
	)
}

// Detach removes the host session.
func (b *Bridge) Detach() error {
	b.wanted = false
	if !b.registered {
		return nil
	}
	b.registered = false
	log.Info().Str("component", "controls").Msg("Media session unregistered")
	return b.session.Unregister()
}

// Close detaches and releases the session.
func (b *Bridge) Close() error {
	return errors.Join(b.Detach(), b.session.Close())
}

// PublishMetadata pushes now-playing information. A session whose
// registration failed earlier is retried here.
func (b *Bridge) PublishMetadata(snap player.Snapshot) error {
	if !b.registered {
		return b.ensureRegistered(snap)
	}
	return b.pushMetadata(snap)
}

// PublishPlayback pushes the playback status and position.
func (b *Bridge) PublishPlayback(snap player.Snapshot) error {
	b.status = snap.Playback.Status
	if !b.registered {
		return b.ensureRegistered(snap)
	}
	return b.pushPlayback(snap)
}

func (b *Bridge) pushMetadata(snap player.Snapshot) error {
	m := snap.Metadata
	return b.session.SetMetadata(NowPlaying{
		Title:  m.Title,
		Album:  m.Album,
		Artist: m.Artist,
		ArtURL: b.art.Resolve(snap.ArtworkPath).URL,
		Length: m.Duration,
	})
}

func (b *Bridge) pushPlayback(snap player.Snapshot) error {
	b.status = snap.Playback.Status
	return b.session.SetPlayback(HostStatusOf(snap.Playback.Status), snap.Elapsed(b.now()))
}

func (b *Bridge) pushVolume(volume int) error {
	if volume < 0 {
		return nil
	}
	return b.session.SetVolume(volume)
}

// ObserveVolume handles a volume notification from the remote side. A
// notification answering our own request is suppressed; any other one is
// forwarded to the host session. It reports whether it was forwarded.
func (b *Bridge) ObserveVolume(volume int) (bool, error) {
	if b.marker.consume(b.now()) {
		log.Debug().Int("volume", volume).Msg("Volume change acknowledged")
		return false, nil
	}
	if !b.registered {
		return false, nil
	}
	return true, b.pushVolume(volume)
}

// Handle turns a host command into an action or a remote command.
func (b *Bridge) Handle(ctx context.Context, cmd Command) error {
	log.Debug().Str("command", cmd.Kind.String()).Msg("Received control command")

	switch cmd.Kind {
	case CmdPlay:
		if b.status == protocol.StatusPlaying {
			return nil
		}
		b.post(protocol.Play())
	case CmdPause:
		if b.status != protocol.StatusPlaying {
			return nil
		}
		b.post(protocol.Play())
	case CmdPlayPause:
		b.post(protocol.Play())

	case CmdNext:
		return b.run(ctx, SwitchNext)
	case CmdPrevious:
		return b.run(ctx, SwitchPrevious)
	case CmdStop:
		return b.run(ctx, SwitchStop)
	case CmdOpenURI:
		return b.run(ctx, SwitchPlay, b.remoteURI(cmd.URI))

	case CmdSeek:
		offset := cmd.Offset
		if offset == 0 {
			offset = b.opts.SeekAmount
		}
		secs := int(offset.Round(time.Second) / time.Second)
		if secs == 0 {
			return nil
		}
		b.post(protocol.Seek(secs))
	case CmdSetPosition:
		b.post(protocol.SetPosition(int(cmd.Position / time.Second)))
	case CmdSetVolume:
		if !b.opts.SendVolume {
			return nil
		}
		b.post(protocol.SetVolume(cmd.Volume))
		b.marker.arm(b.now(), b.opts.VolumeAckTimeout)
	case CmdSetShuffle:
		b.post(protocol.Shuffle(cmd.Shuffle))
	case CmdSetRepeat:
		b.post(protocol.Repeat(cmd.Repeat))
	}
	return nil
}

func (b *Bridge) post(a protocol.Action) {
	if b.sink.Post(a) {
		log.Debug().Str("action", protocol.EncodeAction(a)).Msg("Replaced unconsumed action")
	}
	if b.opts.NotifyCommand != "" {
		b.marker.arm(b.now(), b.opts.VolumeAckTimeout)
	}
}

func (b *Bridge) run(ctx context.Context, args ...string) error {
	if b.runner == nil {
		return ErrNoRunner
	}
	return b.runner.Run(ctx, args...)
}

// remoteURI converts a file:// URI or an absolute local path to a remote
// path. Other URIs pass through.
func (b *Bridge) remoteURI(uri string) string {
	local := ""
	if strings.HasPrefix(uri, "/") {
		local = uri
	} else if u, err := url.Parse(uri); err == nil && u.Scheme == "file" {
		local = u.Path
	}
	if local == "" {
		return uri
	}
	if b.paths == nil {
		return "Z:" + local
	}
	return b.paths.ToRemote(local)
}
