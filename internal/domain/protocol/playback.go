package protocol

import (
	"strconv"
	"time"
)

// Status is the playback status reported by the remote player.
type Status int

// Status values. Loading is also the fallback for unknown tokens.
const (
	StatusLoading Status = iota
	StatusPlaying
	StatusPaused
	StatusStopped
)

// Wire tokens for Status.
const (
	tokenPlaying = "playing"
	tokenPaused  = "paused"
	tokenStopped = "stopped"
	tokenLoading = "loading"
)

// String returns the wire token.
func (s Status) String() string {
	switch s {
	case StatusPlaying:
		return tokenPlaying
	case StatusPaused:
		return tokenPaused
	case StatusStopped:
		return tokenStopped
	default:
		return tokenLoading
	}
}

// ParseStatus maps a wire token to a Status; unknown or blank → Loading.
func ParseStatus(token string) Status {
	switch token {
	case tokenPlaying:
		return StatusPlaying
	case tokenPaused:
		return StatusPaused
	case tokenStopped:
		return StatusStopped
	default:
		return StatusLoading
	}
}

// PlaybackState is the content of the playback file.
type PlaybackState struct {
	Status   Status
	Position time.Duration
}

// DecodePlayback decodes the playback file. It never fails.
func DecodePlayback(text string) PlaybackState {
	lines := splitLines(text)
	return PlaybackState{
		Status:   ParseStatus(line(lines, 0)),
		Position: seconds(line(lines, 1)),
	}
}

// ParsePlayback is DecodePlayback guarded by the two-line requirement.
func ParsePlayback(text string) (PlaybackState, error) {
	if len(splitLines(text)) < 2 {
		return PlaybackState{}, ErrIncomplete
	}
	return DecodePlayback(text), nil
}

// EncodePlayback renders a PlaybackState in the wire format.
func EncodePlayback(p PlaybackState) string {
	return p.Status.String() + "\n" + strconv.Itoa(int(p.Position/time.Second)) + "\n"
}

// seconds parses a non-negative integer number of seconds; anything else is 0.
func seconds(s string) time.Duration {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
