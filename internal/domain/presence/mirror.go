// Package presence mirrors the now-playing state to a rich presence service.
// Updates are debounced, local covers are uploaded to a public image host,
// and a newer update cancels a stale upload instead of queuing behind it.
package presence

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/edumarques81/beebridge/internal/domain/artwork"
	"github.com/edumarques81/beebridge/internal/domain/player"
	"github.com/edumarques81/beebridge/internal/domain/protocol"
	"github.com/edumarques81/beebridge/internal/infra/cache"
	"github.com/edumarques81/beebridge/internal/infra/coverart"
	"github.com/edumarques81/beebridge/internal/infra/discord"
	"github.com/edumarques81/beebridge/internal/infra/upload"
	"github.com/edumarques81/beebridge/internal/metrics"
)

const (
	// DefaultDebounce coalesces bursts of state updates.
	DefaultDebounce = 250 * time.Millisecond

	// DefaultImage is shown when the track has no cover.
	DefaultImage = "https://www.getmusicbee.com/img/musicbee.png"
)

// Discord accepts five activity updates per twenty seconds.
var (
	DefaultRateLimit = rate.Every(4 * time.Second)
	DefaultRateBurst = 5
)

// Client is the presence service connection. *discord.Client implements it.
type Client interface {
	Connect(ctx context.Context) error
	SetActivity(ctx context.Context, a *discord.Activity) error
	ClearActivity(ctx context.Context) error
	Close() error
}

// Uploader publishes cover images. upload.Service implements it.
type Uploader interface {
	Name() string
	Upload(ctx context.Context, filename, mimeType string, data []byte) (*upload.Result, error)
	Delete(ctx context.Context, deleteHash string) error
	NeedsDeleting() bool
}

// ImagePreparer loads a cover for upload.
type ImagePreparer interface {
	Prepare(path string) (artwork.Image, error)
}

// ArtResolver turns an artwork reference into a local file or public URL.
type ArtResolver interface {
	Resolve(ref string) artwork.ResolveResult
}

// CoverFinder looks up a public cover by album. *coverart.Finder implements it.
type CoverFinder interface {
	Find(ctx context.Context, artist, album string) (string, error)
}

// Options configures the mirror.
type Options struct {
	Debounce     time.Duration
	DefaultImage string
	RateLimit    rate.Limit
	RateBurst    int
}

// Option configures optional collaborators.
type Option func(*Mirror)

// WithStore caches uploads in s instead of process memory.
func WithStore(s Store) Option {
	return func(m *Mirror) {
		m.store = s
	}
}

// WithImagePreparer replaces the default cover thumbnailer.
func WithImagePreparer(p ImagePreparer) Option {
	return func(m *Mirror) {
		m.images = p
	}
}

// WithArtResolver replaces the default artwork resolver.
func WithArtResolver(r ArtResolver) Option {
	return func(m *Mirror) {
		m.resolver = r
	}
}

// WithCoverFinder looks covers up online for tracks without usable artwork.
func WithCoverFinder(f CoverFinder) Option {
	return func(m *Mirror) {
		m.covers = f
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Mirror) {
		m.now = now
	}
}

// Mirror forwards snapshots to the presence service. Update, Attach and
// Detach never block; Run does the work.
type Mirror struct {
	client   Client
	uploader Uploader
	store    Store
	images   ImagePreparer
	resolver ArtResolver
	covers   CoverFinder
	opts     Options
	limiter  *rate.Limiter
	now      func() time.Time

	mu        sync.Mutex
	latest    player.Snapshot
	dirty     bool
	want      bool
	detachSeq uint64
	wake      chan struct{}

	// owned by the running publish
	connectWarned bool
}

type flight struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMirror creates a mirror. uploader may be nil, in which case local covers
// are not shown.
func NewMirror(client Client, uploader Uploader, opts Options, options ...Option) *Mirror {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.DefaultImage == "" {
		opts.DefaultImage = DefaultImage
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultRateLimit
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = DefaultRateBurst
	}

	m := &Mirror{
		client:   client,
		uploader: uploader,
		opts:     opts,
		now:      time.Now,
		wake:     make(chan struct{}, 1),
	}
	for _, o := range options {
		o(m)
	}
	if m.store == nil {
		m.store = newMemStore()
	}
	if m.images == nil {
		m.images = artwork.NewThumbnailer(artwork.DefaultUploadSize)
	}
	if m.resolver == nil {
		m.resolver = artwork.NewResolver(nil)
	}
	m.limiter = rate.NewLimiter(opts.RateLimit, opts.RateBurst)
	return m
}

// Update records the latest snapshot.
func (m *Mirror) Update(snap player.Snapshot) {
	m.mu.Lock()
	m.latest = snap
	m.dirty = true
	m.mu.Unlock()
	m.signal()
}

// Attach starts mirroring.
func (m *Mirror) Attach() {
	m.mu.Lock()
	m.want = true
	m.mu.Unlock()
	m.signal()
}

// Detach stops mirroring, disconnects and removes deletable uploads.
func (m *Mirror) Detach() {
	m.mu.Lock()
	if m.want {
		m.want = false
		m.detachSeq++
	}
	m.mu.Unlock()
	m.signal()
}

func (m *Mirror) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Run processes updates until ctx is done. Any in-flight upload is
// cancelled on return and the client is closed.
func (m *Mirror) Run(ctx context.Context) error {
	if n, err := m.store.PurgeExpired(m.now()); err != nil {
		log.Warn().Err(err).Msg("Failed to purge expired uploads")
	} else if n > 0 {
		log.Debug().Int64("count", n).Msg("Purged expired uploads")
	}

	var (
		timer       *time.Timer
		timerC      <-chan time.Time
		inflight    *flight
		attached    bool
		handledSeq  uint64
		pending     player.Snapshot
		havePending bool
	)

	stopFlight := func() {
		if inflight != nil {
			inflight.cancel()
			<-inflight.done
			inflight = nil
		}
	}
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timerC = nil
	}
	arm := func() {
		stopTimer()
		timer = time.NewTimer(m.opts.Debounce)
		timerC = timer.C
	}

	defer func() {
		stopTimer()
		stopFlight()
		m.client.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-m.wake:
			m.mu.Lock()
			want, seq, snap, dirty := m.want, m.detachSeq, m.latest, m.dirty
			m.dirty = false
			m.mu.Unlock()

			if seq != handledSeq {
				handledSeq = seq
				if attached {
					stopTimer()
					stopFlight()
					m.teardown(ctx)
					attached = false
					log.Info().Str("component", "presence").Msg("Presence detached")
				}
			}
			if want && !attached {
				attached = true
				log.Info().Str("component", "presence").Msg("Presence attached")
				if havePending && !dirty {
					arm()
				}
			}
			if dirty {
				pending = snap
				havePending = true
				if attached {
					arm()
				}
			}

		case <-timerC:
			timerC = nil
			if !attached || !havePending {
				continue
			}
			stopFlight()
			fctx, cancel := context.WithCancel(ctx)
			f := &flight{cancel: cancel, done: make(chan struct{})}
			inflight = f
			snap := pending
			go func() {
				defer close(f.done)
				defer cancel()
				m.publish(fctx, snap)
			}()
		}
	}
}

// publish sets or clears the presence for snap.
func (m *Mirror) publish(ctx context.Context, snap player.Snapshot) {
	if snap.Playback.Status == protocol.StatusStopped {
		if !m.connect(ctx) {
			return
		}
		if err := m.client.ClearActivity(ctx); err != nil {
			m.fail(ctx, err, "Failed to clear presence")
			return
		}
		metrics.RecordPresenceUpdate(metrics.ResultOK)
		log.Debug().Str("component", "presence").Msg("Presence cleared")
		return
	}

	image := m.imageFor(ctx, snap)
	if ctx.Err() != nil {
		metrics.RecordPresenceUpdate(metrics.ResultSkipped)
		return
	}
	if err := m.limiter.Wait(ctx); err != nil {
		metrics.RecordPresenceUpdate(metrics.ResultSkipped)
		return
	}
	if !m.connect(ctx) {
		return
	}

	act := BuildActivity(snap, image, m.now())
	if err := m.client.SetActivity(ctx, act); err != nil {
		m.fail(ctx, err, "Failed to set presence")
		return
	}
	metrics.RecordPresenceUpdate(metrics.ResultOK)
	log.Debug().
		Str("component", "presence").
		Str("title", snap.Metadata.Title).
		Bool("image", image != "").
		Msg("Presence updated")
}

func (m *Mirror) connect(ctx context.Context) bool {
	if err := m.client.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			metrics.RecordPresenceUpdate(metrics.ResultSkipped)
			return false
		}
		metrics.RecordPresenceUpdate(metrics.ResultError)
		if !m.connectWarned {
			m.connectWarned = true
			log.Warn().Err(err).Str("component", "presence").Msg("Presence service unavailable")
		}
		return false
	}
	m.connectWarned = false
	return true
}

func (m *Mirror) fail(ctx context.Context, err error, msg string) {
	if ctx.Err() != nil {
		metrics.RecordPresenceUpdate(metrics.ResultSkipped)
		return
	}
	metrics.RecordPresenceUpdate(metrics.ResultError)
	log.Warn().Err(err).Str("component", "presence").Msg(msg)
}

// imageFor returns the public image for the snapshot's cover, or "" when a
// local cover could not be uploaded and no online cover was found.
func (m *Mirror) imageFor(ctx context.Context, snap player.Snapshot) string {
	res := m.resolver.Resolve(snap.ArtworkPath)
	switch {
	case !res.Found():
		if url := m.findCover(ctx, snap); url != "" {
			return url
		}
		return m.opts.DefaultImage
	case !res.Local():
		return res.URL
	case m.uploader == nil:
		return m.findCover(ctx, snap)
	}

	url, err := m.uploadCover(ctx, res.FilePath)
	if err != nil {
		if ctx.Err() == nil {
			metrics.RecordUpload(metrics.ResultError)
			log.Warn().Err(err).Str("file", res.FilePath).Msg("Cover upload failed, showing text only")
		}
		return ""
	}
	return url
}

func (m *Mirror) findCover(ctx context.Context, snap player.Snapshot) string {
	if m.covers == nil {
		return ""
	}
	url, err := m.covers.Find(ctx, snap.Metadata.Artist, snap.Metadata.Album)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, coverart.ErrNotFound) {
			log.Debug().Err(err).Str("album", snap.Metadata.Album).Msg("Online cover lookup failed")
		}
		return ""
	}
	return url
}

func (m *Mirror) uploadCover(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	service := m.uploader.Name()

	cached, err := m.store.GetUpload(path, info.ModTime(), service, m.now())
	if err != nil {
		log.Warn().Err(err).Msg("Upload cache lookup failed")
	} else if cached != nil {
		metrics.RecordUpload(metrics.ResultCached)
		return cached.URL, nil
	}

	img, err := m.images.Prepare(path)
	if err != nil {
		return "", err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + artwork.GetExtensionForMime(img.MimeType)

	res, err := m.uploader.Upload(ctx, name, img.MimeType, img.Data)
	if err != nil {
		return "", err
	}
	metrics.RecordUpload(metrics.ResultOK)

	rec := &cache.Upload{
		FilePath:   path,
		ModTime:    info.ModTime(),
		Service:    service,
		URL:        res.URL,
		DeleteHash: res.DeleteHash,
		ExpiresAt:  res.ExpiresAt,
		CreatedAt:  m.now(),
	}
	if err := m.store.SaveUpload(rec); err != nil {
		log.Warn().Err(err).Msg("Failed to cache upload")
	}
	return res.URL, nil
}

// teardown disconnects and removes uploads the host keeps forever.
func (m *Mirror) teardown(ctx context.Context) {
	if err := m.client.Close(); err != nil {
		log.Debug().Err(err).Msg("Presence close failed")
	}
	m.connectWarned = false

	if m.uploader == nil || !m.uploader.NeedsDeleting() {
		return
	}
	uploads, err := m.store.DeletableUploads(m.uploader.Name())
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list uploads")
		return
	}
	for _, u := range uploads {
		if err := m.uploader.Delete(ctx, u.DeleteHash); err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Str("url", u.URL).Msg("Failed to delete upload")
			}
			continue
		}
		if err := m.store.DeleteUpload(u.ID); err != nil {
			log.Warn().Err(err).Msg("Failed to forget upload")
		}
	}
	log.Debug().Int("count", len(uploads)).Msg("Removed uploaded covers")
}
