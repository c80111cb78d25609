package daemon

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/beebridge/internal/domain/artwork"
	"github.com/edumarques81/beebridge/internal/domain/lifecycle"
	"github.com/edumarques81/beebridge/internal/domain/protocol"
	"github.com/edumarques81/beebridge/internal/infra/watcher"
	"github.com/edumarques81/beebridge/internal/metrics"
)

// sync reads every protocol file once. Used at startup.
func (d *Daemon) sync(ctx context.Context) {
	for _, name := range []string{
		protocol.VolumeFile,
		protocol.MetadataFile,
		protocol.PlaybackFile,
		protocol.ActivationFile,
	} {
		d.readFile(ctx, name, false)
	}
}

func (d *Daemon) handleEvent(ctx context.Context, ev watcher.FileEvent) {
	switch ev.Kind {
	case watcher.KindRemove:
		log.Debug().Str("file", ev.File).Msg("Protocol file removed")
		return
	case watcher.KindResync:
		d.readFile(ctx, ev.File, false)
		return
	}
	d.readFile(ctx, ev.File, true)
}

// readFile reads one protocol file into the cache. live is false for reads
// that are not a notification from the remote side.
func (d *Daemon) readFile(ctx context.Context, name string, live bool) {
	if name == protocol.ActionFile {
		// Written by us, cleared by the remote player
		return
	}

	text, err := d.dir.ReadFile(ctx, name)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Str("file", name).Msg("Failed to read protocol file")
			metrics.RecordProtocolUpdate(name, metrics.ResultError)
		}
		return
	}

	switch name {
	case protocol.PlaybackFile:
		err = d.onPlayback(text)
	case protocol.MetadataFile:
		err = d.onMetadata(text)
	case protocol.ActivationFile:
		err = d.onActivation(text)
	case protocol.VolumeFile:
		err = d.onVolume(text, live)
	}

	switch {
	case errors.Is(err, protocol.ErrIncomplete):
		log.Debug().Str("file", name).Msg("Ignoring incomplete protocol data")
		metrics.RecordProtocolUpdate(name, metrics.ResultIncomplete)
	case err != nil:
		log.Warn().Err(err).Str("file", name).Msg("Failed to apply protocol update")
		metrics.RecordProtocolUpdate(name, metrics.ResultError)
	default:
		metrics.RecordProtocolUpdate(name, metrics.ResultOK)
	}
}

func (d *Daemon) onPlayback(text string) error {
	p, err := protocol.ParsePlayback(text)
	if err != nil {
		return err
	}
	statusChanged := d.state.UpdatePlayback(p)
	snap := d.state.Snapshot()

	log.Debug().
		Str("status", p.Status.String()).
		Dur("position", p.Position).
		Msg("Playback updated")

	if statusChanged {
		if p.Status == protocol.StatusStopped {
			d.apply(lifecycle.PlaybackStopped)
		} else {
			d.apply(lifecycle.PlaybackResumed)
		}
	}
	if err := d.bridge.PublishPlayback(snap); err != nil {
		log.Warn().Err(err).Str("component", "controls").Msg("Failed to publish playback")
	}
	if d.mirror != nil {
		d.mirror.Update(snap)
	}
	d.notify()
	return nil
}

func (d *Daemon) onMetadata(text string) error {
	m, err := protocol.ParseMetadata(text)
	if err != nil {
		return err
	}
	if !d.state.UpdateMetadata(m, d.localArtwork(m.ArtworkPath)) {
		return nil
	}
	snap := d.state.Snapshot()

	log.Debug().
		Str("title", m.Title).
		Str("artist", m.Artist).
		Str("album", m.Album).
		Msg("Metadata updated")

	if err := d.bridge.PublishMetadata(snap); err != nil {
		log.Warn().Err(err).Str("component", "controls").Msg("Failed to publish metadata")
	}
	if d.mirror != nil {
		d.mirror.Update(snap)
	}
	d.notify()
	return nil
}

func (d *Daemon) onActivation(text string) error {
	active, err := protocol.DecodeActivation(text)
	if err != nil {
		return err
	}
	if d.state.SetActivated(active) {
		d.notify()
	}
	if active {
		d.apply(lifecycle.ActivationOn)
	} else {
		d.apply(lifecycle.ActivationOff)
	}
	return nil
}

func (d *Daemon) onVolume(text string, live bool) error {
	volume, err := protocol.DecodeVolume(text)
	if err != nil {
		return err
	}
	if d.state.SetVolume(volume) {
		d.notify()
	}
	if !live {
		return nil
	}
	forwarded, err := d.bridge.ObserveVolume(volume)
	if err != nil {
		return err
	}
	if forwarded {
		log.Debug().Int("volume", volume).Msg("Remote volume change forwarded")
	}
	return nil
}

// localArtwork translates a remote artwork path. URLs pass through.
func (d *Daemon) localArtwork(ref string) string {
	if ref == "" || artwork.IsRemoteURL(ref) {
		return ref
	}
	return d.paths.Map(ref)
}
