package controls

import (
	"time"

	"github.com/edumarques81/beebridge/internal/domain/protocol"
)

// HostStatus is the playback status vocabulary of the host media session.
type HostStatus string

// Host statuses.
const (
	HostPlaying HostStatus = "Playing"
	HostPaused  HostStatus = "Paused"
	HostStopped HostStatus = "Stopped"
)

// HostStatusOf maps a remote status to the host vocabulary.
// Loading has no host equivalent and is shown as paused.
func HostStatusOf(s protocol.Status) HostStatus {
	switch s {
	case protocol.StatusPlaying:
		return HostPlaying
	case protocol.StatusStopped:
		return HostStopped
	default:
		return HostPaused
	}
}

// NowPlaying is the track information pushed to the host session.
type NowPlaying struct {
	Title  string
	Album  string
	Artist string
	ArtURL string
	Length time.Duration
}

// Session is the host media-control session.
type Session interface {
	// Register publishes the session; user commands arrive on commands
	// until Unregister.
	Register(commands chan<- Command) error
	Unregister() error
	SetMetadata(NowPlaying) error
	SetPlayback(status HostStatus, position time.Duration) error
	// SetVolume updates the host-visible volume without raising a command.
	SetVolume(volume int) error
	Close() error
}

// NoopSession is used when no host session is available.
type NoopSession struct{}

func (NoopSession) Register(chan<- Command) error               { return nil }
func (NoopSession) Unregister() error                           { return nil }
func (NoopSession) SetMetadata(NowPlaying) error                { return nil }
func (NoopSession) SetPlayback(HostStatus, time.Duration) error { return nil }
func (NoopSession) SetVolume(int) error                         { return nil }
func (NoopSession) Close() error                                { return nil }
