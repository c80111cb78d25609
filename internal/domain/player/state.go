// Package player holds the cached view of the remote player, built from the
// protocol files in the communication directory.
package player

import (
	"sync"
	"time"

	"github.com/edumarques81/beebridge/internal/domain/protocol"
)

// Snapshot is an immutable copy of the cached state handed to consumers.
type Snapshot struct {
	Playback  protocol.PlaybackState
	Metadata  protocol.TrackMetadata
	Activated bool

	// Volume is -1 until the remote side reports one.
	Volume int

	// ArtworkPath is the metadata artwork path translated to the local
	// namespace. URLs pass through unchanged.
	ArtworkPath string

	// UpdatedAt is when Playback was last written.
	UpdatedAt time.Time
}

// Elapsed returns the playback position extrapolated to now while playing.
func (s Snapshot) Elapsed(now time.Time) time.Duration {
	pos := s.Playback.Position
	if s.Playback.Status == protocol.StatusPlaying && !s.UpdatedAt.IsZero() {
		pos += now.Sub(s.UpdatedAt)
	}
	if d := s.Metadata.Duration; d > 0 && pos > d {
		pos = d
	}
	if pos < 0 {
		pos = 0
	}
	return pos.Truncate(time.Second)
}

// State is the cached player state.
// Writes come from a single owner; reads are safe from any goroutine.
type State struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewState creates a new player state with default values.
func NewState() *State {
	return &State{
		snap: Snapshot{Volume: -1},
		now:  time.Now,
	}
}

// SetClock replaces the time source. Used by tests.
func (s *State) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// UpdatePlayback replaces the playback state wholesale and reports whether
// the status changed.
func (s *State) UpdatePlayback(p protocol.PlaybackState) (statusChanged bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	statusChanged = s.snap.Playback.Status != p.Status
	s.snap.Playback = p
	s.snap.UpdatedAt = s.now()
	return statusChanged
}

// UpdateMetadata replaces the track metadata and its translated artwork path.
// It reports whether anything changed.
func (s *State) UpdateMetadata(m protocol.TrackMetadata, artworkPath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.Metadata == m && s.snap.ArtworkPath == artworkPath {
		return false
	}
	s.snap.Metadata = m
	s.snap.ArtworkPath = artworkPath
	return true
}

// SetActivated records the activation flag and reports whether it changed.
func (s *State) SetActivated(active bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.Activated == active {
		return false
	}
	s.snap.Activated = active
	return true
}

// SetVolume sets the volume level (0-100) and reports whether it changed.
func (s *State) SetVolume(volume int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if volume < 0 {
		volume = 0
	} else if volume > 100 {
		volume = 100
	}
	if s.snap.Volume == volume {
		return false
	}
	s.snap.Volume = volume
	return true
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// ToJSON returns the state as a map suitable for JSON serialization.
// This matches the pushState format of the status transport.
func (s *State) ToJSON() map[string]interface{} {
	s.mu.RLock()
	snap, now := s.snap, s.now()
	s.mu.RUnlock()

	volume := interface{}(snap.Volume)
	if snap.Volume < 0 {
		volume = nil
	}

	return map[string]interface{}{
		"status":    snap.Playback.Status.String(),
		"seek":      snap.Elapsed(now).Milliseconds(),
		"title":     snap.Metadata.Title,
		"artist":    snap.Metadata.Artist,
		"album":     snap.Metadata.Album,
		"albumart":  snap.ArtworkPath,
		"duration":  int(snap.Metadata.Duration.Seconds()),
		"volume":    volume,
		"activated": snap.Activated,
	}
}
