package presence

import (
	"strings"
	"time"

	"github.com/edumarques81/beebridge/internal/domain/player"
	"github.com/edumarques81/beebridge/internal/domain/protocol"
	"github.com/edumarques81/beebridge/internal/infra/discord"
)

// BuildActivity renders a snapshot as a presence payload. image is a public
// URL or asset key; empty means text only.
func BuildActivity(snap player.Snapshot, image string, now time.Time) *discord.Activity {
	md := snap.Metadata

	a := &discord.Activity{
		Type:    discord.ActivityListening,
		State:   md.Title,
		Details: joinNonEmpty(" - ", md.Artist, md.Album),
	}

	switch snap.Playback.Status {
	case protocol.StatusPlaying:
		start := now.Add(-snap.Elapsed(now))
		a.Timestamps = &discord.Timestamps{Start: start.Unix()}
		if md.Duration > 0 {
			a.Timestamps.End = start.Add(md.Duration).Unix()
		}
	case protocol.StatusPaused:
		if a.State != "" {
			a.State += " (paused)"
		}
	}

	if image != "" {
		a.Assets = &discord.Assets{LargeImage: image, LargeText: md.Album}
	}
	return a
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
