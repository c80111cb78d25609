// Package mpris exposes the bridge as an MPRIS media player on the D-Bus
// session bus.
package mpris

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/beebridge/internal/domain/controls"
	"github.com/edumarques81/beebridge/internal/domain/protocol"
)

const (
	// DefaultBusName is the well-known name claimed while registered.
	DefaultBusName = "org.mpris.MediaPlayer2.musicbee"

	// DefaultIdentity is the player name shown by desktop shells.
	DefaultIdentity = "MusicBee"

	objectPath  dbus.ObjectPath = "/org/mpris/MediaPlayer2"
	rootIface                   = "org.mpris.MediaPlayer2"
	playerIface                 = "org.mpris.MediaPlayer2.Player"
)

// ErrNameTaken is returned when another process owns the bus name.
var ErrNameTaken = errors.New("mpris bus name already taken")

// Option configures a Session.
type Option func(*Session)

// WithBusName overrides the well-known bus name.
func WithBusName(name string) Option {
	return func(s *Session) {
		s.busName = name
	}
}

// WithIdentity overrides the player identity.
func WithIdentity(identity string) Option {
	return func(s *Session) {
		s.identity = identity
	}
}

// Session is an MPRIS player object. It implements controls.Session.
type Session struct {
	conn     *dbus.Conn
	busName  string
	identity string

	// mu guards props and the last published position. It is never held
	// while calling into props, whose setter runs our callbacks under its
	// own lock.
	mu          sync.Mutex
	props       *prop.Properties
	lastPos     time.Duration
	lastAt      time.Time
	lastPlaying bool

	cmdMu    sync.Mutex
	commands chan<- controls.Command
}

// Connect opens the session bus.
func Connect(opts ...Option) (*Session, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return NewSession(conn, opts...), nil
}

// NewSession wraps an existing bus connection.
func NewSession(conn *dbus.Conn, opts ...Option) *Session {
	s := &Session{
		conn:     conn,
		busName:  DefaultBusName,
		identity: DefaultIdentity,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register exports the player and claims the bus name.
func (s *Session) Register(commands chan<- controls.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.props != nil {
		return nil
	}

	root := &rootObject{}
	player := &playerObject{s: s}
	if err := s.conn.Export(root, objectPath, rootIface); err != nil {
		return fmt.Errorf("export root: %w", err)
	}
	if err := s.conn.Export(player, objectPath, playerIface); err != nil {
		s.unexport()
		return fmt.Errorf("export player: %w", err)
	}

	props, err := prop.Export(s.conn, objectPath, s.propertyMap())
	if err != nil {
		s.unexport()
		return fmt.Errorf("export properties: %w", err)
	}

	node := &introspect.Node{
		Name: string(objectPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name:       rootIface,
				Methods:    introspect.Methods(root),
				Properties: props.Introspection(rootIface),
			},
			{
				Name:       playerIface,
				Methods:    introspect.Methods(player),
				Properties: props.Introspection(playerIface),
				Signals: []introspect.Signal{{
					Name: "Seeked",
					Args: []introspect.Arg{{Name: "Position", Type: "x", Direction: "out"}},
				}},
			},
		},
	}
	if err := s.conn.Export(introspect.NewIntrospectable(node), objectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		s.unexport()
		return fmt.Errorf("export introspection: %w", err)
	}

	reply, err := s.conn.RequestName(s.busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		s.unexport()
		return fmt.Errorf("request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		s.unexport()
		return fmt.Errorf("%w: %s", ErrNameTaken, s.busName)
	}

	s.props = props
	s.setCommands(commands)
	log.Info().Str("name", s.busName).Msg("MPRIS session registered")
	return nil
}

// Unregister releases the bus name and removes the player object.
func (s *Session) Unregister() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.props == nil {
		return nil
	}
	_, err := s.conn.ReleaseName(s.busName)
	s.unexport()
	s.props = nil
	s.setCommands(nil)
	log.Info().Str("name", s.busName).Msg("MPRIS session unregistered")
	return err
}

func (s *Session) unexport() {
	for _, iface := range []string{rootIface, playerIface, "org.freedesktop.DBus.Properties", "org.freedesktop.DBus.Introspectable"} {
		s.conn.Export(nil, objectPath, iface)
	}
}

func (s *Session) properties() *prop.Properties {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.props
}

// SetMetadata publishes the current track.
func (s *Session) SetMetadata(np controls.NowPlaying) error {
	props := s.properties()
	if props == nil {
		return nil
	}
	props.SetMust(playerIface, "Metadata", metadataMap(np))
	return nil
}

// SetPlayback publishes status and position, signalling Seeked when the
// position jumps.
func (s *Session) SetPlayback(status controls.HostStatus, position time.Duration) error {
	s.mu.Lock()
	props := s.props
	if props == nil {
		s.mu.Unlock()
		return nil
	}
	now := time.Now()
	playing := status == controls.HostPlaying
	seeked := !s.lastAt.IsZero() && jumped(s.lastPos, s.lastAt, s.lastPlaying, position, now)
	s.lastPos, s.lastAt, s.lastPlaying = position, now, playing
	s.mu.Unlock()

	props.SetMust(playerIface, "PlaybackStatus", string(status))
	props.SetMust(playerIface, "Position", micros(position))
	if seeked {
		if err := s.conn.Emit(objectPath, playerIface+".Seeked", micros(position)); err != nil {
			return fmt.Errorf("emit seeked: %w", err)
		}
	}
	return nil
}

// SetVolume publishes the volume without raising a command.
func (s *Session) SetVolume(volume int) error {
	props := s.properties()
	if props == nil {
		return nil
	}
	props.SetMust(playerIface, "Volume", float64(volume)/100)
	return nil
}

// Close unregisters and closes the bus connection.
func (s *Session) Close() error {
	s.Unregister()
	return s.conn.Close()
}

func (s *Session) setCommands(ch chan<- controls.Command) {
	s.cmdMu.Lock()
	s.commands = ch
	s.cmdMu.Unlock()
}

// send forwards a command without blocking the bus dispatcher. It runs
// inside property callbacks and must not take mu.
func (s *Session) send(cmd controls.Command) {
	s.cmdMu.Lock()
	ch := s.commands
	s.cmdMu.Unlock()

	if ch == nil {
		return
	}
	select {
	case ch <- cmd:
	default:
		log.Warn().Str("action", cmd.Kind.String()).Msg("Command queue full, dropping MPRIS command")
	}
}

func (s *Session) propertyMap() map[string]map[string]*prop.Prop {
	return map[string]map[string]*prop.Prop{
		rootIface: {
			"CanQuit":             {Value: false, Emit: prop.EmitTrue},
			"CanRaise":            {Value: false, Emit: prop.EmitTrue},
			"HasTrackList":        {Value: false, Emit: prop.EmitTrue},
			"Identity":            {Value: s.identity, Emit: prop.EmitTrue},
			"DesktopEntry":        {Value: "musicbee", Emit: prop.EmitTrue},
			"SupportedUriSchemes": {Value: []string{"file"}, Emit: prop.EmitTrue},
			"SupportedMimeTypes":  {Value: []string{"audio/mpeg", "audio/flac", "audio/ogg", "audio/mp4", "audio/x-wav"}, Emit: prop.EmitTrue},
		},
		playerIface: {
			"PlaybackStatus": {Value: string(controls.HostStopped), Emit: prop.EmitTrue},
			"LoopStatus":     {Value: LoopNone, Writable: true, Emit: prop.EmitTrue, Callback: s.onLoopStatus},
			"Rate":           {Value: 1.0, Emit: prop.EmitTrue},
			"Shuffle":        {Value: false, Writable: true, Emit: prop.EmitTrue, Callback: s.onShuffle},
			"Metadata":       {Value: metadataMap(controls.NowPlaying{}), Emit: prop.EmitTrue},
			"Volume":         {Value: 1.0, Writable: true, Emit: prop.EmitTrue, Callback: s.onVolume},
			"Position":       {Value: int64(0), Emit: prop.EmitFalse},
			"MinimumRate":    {Value: 1.0, Emit: prop.EmitTrue},
			"MaximumRate":    {Value: 1.0, Emit: prop.EmitTrue},
			"CanGoNext":      {Value: true, Emit: prop.EmitTrue},
			"CanGoPrevious":  {Value: true, Emit: prop.EmitTrue},
			"CanPlay":        {Value: true, Emit: prop.EmitTrue},
			"CanPause":       {Value: true, Emit: prop.EmitTrue},
			"CanSeek":        {Value: true, Emit: prop.EmitTrue},
			"CanControl":     {Value: true, Emit: prop.EmitFalse},
		},
	}
}

func (s *Session) onVolume(c *prop.Change) *dbus.Error {
	v, ok := c.Value.(float64)
	if !ok {
		return prop.ErrInvalidArg
	}
	s.send(controls.SetVolume(percent(v)))
	return nil
}

func (s *Session) onShuffle(c *prop.Change) *dbus.Error {
	on, ok := c.Value.(bool)
	if !ok {
		return prop.ErrInvalidArg
	}
	mode := protocol.ShuffleOff
	if on {
		mode = protocol.ShuffleOn
	}
	s.send(controls.Command{Kind: controls.CmdSetShuffle, Shuffle: mode})
	return nil
}

func (s *Session) onLoopStatus(c *prop.Change) *dbus.Error {
	loop, _ := c.Value.(string)
	mode, ok := repeatOf(loop)
	if !ok {
		return prop.ErrInvalidArg
	}
	s.send(controls.Command{Kind: controls.CmdSetRepeat, Repeat: mode})
	return nil
}

// rootObject implements org.mpris.MediaPlayer2.
type rootObject struct{}

func (rootObject) Raise() *dbus.Error { return nil }
func (rootObject) Quit() *dbus.Error  { return nil }

// playerObject implements org.mpris.MediaPlayer2.Player.
type playerObject struct {
	s *Session
}

func (p *playerObject) Next() *dbus.Error {
	p.s.send(controls.Simple(controls.CmdNext))
	return nil
}

func (p *playerObject) Previous() *dbus.Error {
	p.s.send(controls.Simple(controls.CmdPrevious))
	return nil
}

func (p *playerObject) Pause() *dbus.Error {
	p.s.send(controls.Simple(controls.CmdPause))
	return nil
}

func (p *playerObject) PlayPause() *dbus.Error {
	p.s.send(controls.Simple(controls.CmdPlayPause))
	return nil
}

func (p *playerObject) Stop() *dbus.Error {
	p.s.send(controls.Simple(controls.CmdStop))
	return nil
}

func (p *playerObject) Play() *dbus.Error {
	p.s.send(controls.Simple(controls.CmdPlay))
	return nil
}

// Seek moves by offset microseconds. A zero offset is a no-op.
func (p *playerObject) Seek(offset int64) *dbus.Error {
	if offset == 0 {
		return nil
	}
	p.s.send(controls.Seek(fromMicros(offset)))
	return nil
}

func (p *playerObject) SetPosition(trackID dbus.ObjectPath, position int64) *dbus.Error {
	if trackID != trackPath || position < 0 {
		// Requests for a stale track id are ignored
		return nil
	}
	p.s.send(controls.SetPosition(fromMicros(position)))
	return nil
}

func (p *playerObject) OpenUri(uri string) *dbus.Error {
	p.s.send(controls.Command{Kind: controls.CmdOpenURI, URI: uri})
	return nil
}
