package mpris

import (
	"math"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/edumarques81/beebridge/internal/domain/controls"
	"github.com/edumarques81/beebridge/internal/domain/protocol"
)

// LoopStatus values.
const (
	LoopNone     = "None"
	LoopTrack    = "Track"
	LoopPlaylist = "Playlist"
)

// seekedThreshold is how far the reported position may drift from the
// extrapolated one before clients are told about a seek.
const seekedThreshold = 2 * time.Second

// trackPath is the track id of the current track. There is no track list,
// so one id serves every track.
const trackPath dbus.ObjectPath = "/org/beebridge/track/current"

func micros(d time.Duration) int64 { return d.Microseconds() }

func fromMicros(us int64) time.Duration { return time.Duration(us) * time.Microsecond }

// metadataMap renders track info as an MPRIS metadata dictionary.
func metadataMap(np controls.NowPlaying) map[string]dbus.Variant {
	md := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(trackPath),
		"xesam:title":   dbus.MakeVariant(np.Title),
		"xesam:album":   dbus.MakeVariant(np.Album),
	}
	if np.Artist != "" {
		md["xesam:artist"] = dbus.MakeVariant([]string{np.Artist})
	}
	if np.Length > 0 {
		md["mpris:length"] = dbus.MakeVariant(micros(np.Length))
	}
	if np.ArtURL != "" {
		md["mpris:artUrl"] = dbus.MakeVariant(np.ArtURL)
	}
	return md
}

// repeatOf maps a LoopStatus to the remote repeat mode.
func repeatOf(loop string) (protocol.RepeatMode, bool) {
	switch loop {
	case LoopNone:
		return protocol.RepeatNone, true
	case LoopTrack:
		return protocol.RepeatOne, true
	case LoopPlaylist:
		return protocol.RepeatAll, true
	default:
		return protocol.RepeatNone, false
	}
}

// percent converts an MPRIS volume (0.0-1.0, possibly out of range) to 0-100.
func percent(v float64) int {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 100
	}
	return int(math.Round(v * 100))
}

// jumped reports whether pos is a discontinuity given the previous report.
func jumped(prev time.Duration, prevAt time.Time, prevPlaying bool, pos time.Duration, now time.Time) bool {
	expected := prev
	if prevPlaying {
		expected += now.Sub(prevAt)
	}
	diff := pos - expected
	if diff < 0 {
		diff = -diff
	}
	return diff > seekedThreshold
}
