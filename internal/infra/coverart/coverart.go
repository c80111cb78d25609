// Package coverart finds a public cover image for an album that has no local
// artwork, by searching MusicBrainz for the release and asking the Cover Art
// Archive for its front image.
package coverart

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/edumarques81/beebridge/internal/version"
)

const (
	// DefaultMusicBrainzURL is the MusicBrainz API base URL
	DefaultMusicBrainzURL = "https://musicbrainz.org/ws/2"

	// DefaultCoverArtURL is the Cover Art Archive API base URL
	DefaultCoverArtURL = "https://coverartarchive.org"

	// DefaultTimeout for HTTP requests
	DefaultTimeout = 10 * time.Second

	// DefaultRateLimit is 1 request per second (MusicBrainz guideline)
	DefaultRateLimit = rate.Limit(1)

	// FoundTTL and MissTTL bound how long lookups are remembered.
	FoundTTL = 24 * time.Hour
	MissTTL  = time.Hour

	// maxResponseSize caps API responses.
	maxResponseSize = 1 << 20
)

var (
	// ErrNotFound is returned when no cover exists for the album.
	ErrNotFound = errors.New("cover not found")

	// ErrRateLimited indicates rate limit was exceeded
	ErrRateLimited = errors.New("rate limited")

	// ErrTemporaryFailure indicates a temporary failure (should retry)
	ErrTemporaryFailure = errors.New("temporary failure")
)

// Option configures a Finder.
type Option func(*Finder)

// WithMusicBrainzURL sets a custom MusicBrainz base URL (useful for testing).
func WithMusicBrainzURL(url string) Option {
	return func(f *Finder) { f.mbURL = strings.TrimRight(url, "/") }
}

// WithCoverArtURL sets a custom Cover Art Archive base URL (useful for testing).
func WithCoverArtURL(url string) Option {
	return func(f *Finder) { f.caaURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Finder) { f.httpClient = client }
}

// WithRateLimit sets the request rate shared by both services.
func WithRateLimit(limit rate.Limit) Option {
	return func(f *Finder) { f.limiter = rate.NewLimiter(limit, 1) }
}

// WithClock sets the time source (useful for testing).
func WithClock(now func() time.Time) Option {
	return func(f *Finder) { f.now = now }
}

type entry struct {
	url     string
	expires time.Time
}

// Finder looks up album covers and remembers the answers. It is safe for
// concurrent use.
type Finder struct {
	mbURL      string
	caaURL     string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time

	mu    sync.Mutex
	cache map[string]entry
}

// New creates a Finder.
func New(opts ...Option) *Finder {
	f := &Finder{
		mbURL:      DefaultMusicBrainzURL,
		caaURL:     DefaultCoverArtURL,
		userAgent:  userAgent(),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(DefaultRateLimit, 1),
		now:        time.Now,
		cache:      make(map[string]entry),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// userAgent follows the MusicBrainz guidelines.
func userAgent() string {
	info := version.GetInfo()
	return info.Name + "/" + info.Version + " (https://github.com/edumarques81/beebridge)"
}

// Find returns a public URL of the album's front cover. A miss is remembered
// for MissTTL and reported as ErrNotFound; transient failures are not
// remembered.
func (f *Finder) Find(ctx context.Context, artist, album string) (string, error) {
	artist, album = strings.TrimSpace(artist), strings.TrimSpace(album)
	if artist == "" || album == "" {
		return "", ErrNotFound
	}
	key := strings.ToLower(artist) + "\x00" + strings.ToLower(album)

	if url, ok := f.cached(key); ok {
		if url == "" {
			return "", ErrNotFound
		}
		return url, nil
	}

	url, err := f.lookup(ctx, artist, album)
	switch {
	case errors.Is(err, ErrNotFound):
		f.remember(key, "", MissTTL)
		return "", err
	case err != nil:
		return "", err
	}

	log.Debug().
		Str("artist", artist).
		Str("album", album).
		Str("url", url).
		Msg("Found online cover")
	f.remember(key, url, FoundTTL)
	return url, nil
}

func (f *Finder) lookup(ctx context.Context, artist, album string) (string, error) {
	mbid, err := f.searchRelease(ctx, artist, album)
	if err != nil {
		return "", err
	}
	if mbid == "" {
		return "", ErrNotFound
	}
	return f.frontCover(ctx, mbid)
}

func (f *Finder) cached(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.cache[key]
	if !ok {
		return "", false
	}
	if !f.now().Before(e.expires) {
		delete(f.cache, key)
		return "", false
	}
	return e.url, true
}

func (f *Finder) remember(key, url string, ttl time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache[key] = entry{url: url, expires: f.now().Add(ttl)}
}

// get performs a rate-limited GET and classifies the status code.
func (f *Finder) get(ctx context.Context, url string) (*http.Response, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp, nil
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, ErrNotFound
	case http.StatusTooManyRequests:
		resp.Body.Close()
		log.Warn().Str("url", url).Msg("Cover lookup rate limit exceeded")
		return nil, ErrRateLimited
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		resp.Body.Close()
		return nil, ErrTemporaryFailure
	default:
		resp.Body.Close()
		return nil, &statusError{code: resp.StatusCode}
	}
}

type statusError struct{ code int }

func (e *statusError) Error() string {
	return "unexpected status: " + http.StatusText(e.code)
}
