package presence

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/edumarques81/beebridge/internal/domain/artwork"
	"github.com/edumarques81/beebridge/internal/domain/player"
	"github.com/edumarques81/beebridge/internal/domain/protocol"
	"github.com/edumarques81/beebridge/internal/infra/cache"
	"github.com/edumarques81/beebridge/internal/infra/coverart"
	"github.com/edumarques81/beebridge/internal/infra/discord"
	"github.com/edumarques81/beebridge/internal/infra/upload"
)

type fakeClient struct {
	mu         sync.Mutex
	connectErr error
	activities []*discord.Activity
	clears     int
	closes     int
}

func (c *fakeClient) Connect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectErr
}

func (c *fakeClient) SetActivity(_ context.Context, a *discord.Activity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activities = append(c.activities, a)
	return nil
}

func (c *fakeClient) ClearActivity(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clears++
	return nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *fakeClient) snapshot() (acts []*discord.Activity, clears, closes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*discord.Activity(nil), c.activities...), c.clears, c.closes
}

type fakeUploader struct {
	deletable bool
	// upload decides the result of each call; nil means success
	upload func(ctx context.Context, call int, name string) (*upload.Result, error)

	mu      sync.Mutex
	calls   int
	deletes []string
}

func (u *fakeUploader) Name() string        { return "fake" }
func (u *fakeUploader) NeedsDeleting() bool { return u.deletable }

func (u *fakeUploader) Upload(ctx context.Context, name, _ string, _ []byte) (*upload.Result, error) {
	u.mu.Lock()
	u.calls++
	call := u.calls
	u.mu.Unlock()
	if u.upload != nil {
		return u.upload(ctx, call, name)
	}
	return &upload.Result{URL: "https://img.example/" + name, DeleteHash: "hash-" + name}, nil
}

func (u *fakeUploader) Delete(_ context.Context, hash string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.deletes = append(u.deletes, hash)
	return nil
}

func (u *fakeUploader) callCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}

type fakePreparer struct{}

func (fakePreparer) Prepare(path string) (artwork.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return artwork.Image{}, err
	}
	return artwork.Image{Data: data, MimeType: "image/jpeg"}, nil
}

const testDebounce = 10 * time.Millisecond

func newTestMirror(t *testing.T, client *fakeClient, up Uploader, opts ...Option) *Mirror {
	t.Helper()
	opts = append([]Option{WithImagePreparer(fakePreparer{})}, opts...)
	m := NewMirror(client, up, Options{
		Debounce:     testDebounce,
		DefaultImage: DefaultImage,
		RateLimit:    rate.Inf,
	}, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return m
}

func writeCover(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte{0xFF, 0xD8, 0xFF, 0xE0}, 0644); err != nil {
		t.Fatalf("Failed to write cover: %v", err)
	}
	return path
}

func playing(title, cover string) player.Snapshot {
	return player.Snapshot{
		Playback:    protocol.PlaybackState{Status: protocol.StatusPlaying},
		Metadata:    protocol.TrackMetadata{Title: title, Artist: "Artist", Album: "Album"},
		ArtworkPath: cover,
		UpdatedAt:   time.Now(),
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func lastActivity(c *fakeClient) *discord.Activity {
	acts, _, _ := c.snapshot()
	if len(acts) == 0 {
		return nil
	}
	return acts[len(acts)-1]
}

func TestMirror_DebouncesBursts(t *testing.T) {
	client := &fakeClient{}
	m := newTestMirror(t, client, &fakeUploader{})
	m.Attach()

	for _, title := range []string{"a", "b", "c", "d", "e"} {
		m.Update(playing(title, ""))
	}

	eventually(t, "activity", func() bool { return lastActivity(client) != nil })
	time.Sleep(5 * testDebounce)

	acts, _, _ := client.snapshot()
	if len(acts) != 1 {
		t.Fatalf("expected 1 activity, got %d", len(acts))
	}
	if acts[0].State != "e" {
		t.Errorf("expected latest title %q, got %q", "e", acts[0].State)
	}
	if acts[0].Assets == nil || acts[0].Assets.LargeImage != DefaultImage {
		t.Errorf("expected default image, got %+v", acts[0].Assets)
	}
}

func TestMirror_NotAttached(t *testing.T) {
	client := &fakeClient{}
	m := newTestMirror(t, client, &fakeUploader{})

	m.Update(playing("a", ""))
	time.Sleep(5 * testDebounce)

	if acts, _, _ := client.snapshot(); len(acts) != 0 {
		t.Errorf("expected no activity while detached, got %d", len(acts))
	}

	// The pending snapshot is published once attached
	m.Attach()
	eventually(t, "activity after attach", func() bool { return lastActivity(client) != nil })
}

func TestMirror_RemoteArtworkNotUploaded(t *testing.T) {
	client := &fakeClient{}
	up := &fakeUploader{}
	m := newTestMirror(t, client, up)
	m.Attach()

	m.Update(playing("a", "https://covers.example/a.jpg"))
	eventually(t, "activity", func() bool { return lastActivity(client) != nil })

	if got := lastActivity(client).Assets.LargeImage; got != "https://covers.example/a.jpg" {
		t.Errorf("expected remote url, got %q", got)
	}
	if up.callCount() != 0 {
		t.Errorf("expected no uploads, got %d", up.callCount())
	}
}

type fakeFinder struct {
	mu    sync.Mutex
	url   string
	err   error
	calls []string
}

func (f *fakeFinder) Find(_ context.Context, artist, album string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, artist+"/"+album)
	return f.url, f.err
}

func (f *fakeFinder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestMirror_OnlineCoverFallback(t *testing.T) {
	tests := []struct {
		name     string
		finder   *fakeFinder
		uploader Uploader
		want     string
	}{
		{
			name:     "found online",
			finder:   &fakeFinder{url: "https://coverartarchive.org/front-500.jpg"},
			uploader: &fakeUploader{},
			want:     "https://coverartarchive.org/front-500.jpg",
		},
		{
			name:     "not found keeps default image",
			finder:   &fakeFinder{err: coverart.ErrNotFound},
			uploader: &fakeUploader{},
			want:     DefaultImage,
		},
		{
			name:     "lookup failure keeps default image",
			finder:   &fakeFinder{err: coverart.ErrTemporaryFailure},
			uploader: &fakeUploader{},
			want:     DefaultImage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{}
			m := newTestMirror(t, client, tt.uploader, WithCoverFinder(tt.finder))
			m.Attach()

			m.Update(playing("a", ""))
			eventually(t, "activity", func() bool { return lastActivity(client) != nil })

			if got := lastActivity(client).Assets.LargeImage; got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
			if tt.finder.callCount() != 1 || tt.finder.calls[0] != "Artist/Album" {
				t.Errorf("expected one lookup for Artist/Album, got %v", tt.finder.calls)
			}
		})
	}
}

func TestMirror_LocalCoverWithoutUploaderUsesFinder(t *testing.T) {
	cover := writeCover(t, t.TempDir(), "cover.jpg")
	client := &fakeClient{}
	finder := &fakeFinder{url: "https://coverartarchive.org/front.jpg"}
	m := newTestMirror(t, client, nil, WithCoverFinder(finder))
	m.Attach()

	m.Update(playing("a", cover))
	eventually(t, "activity", func() bool { return lastActivity(client) != nil })

	if got := lastActivity(client).Assets.LargeImage; got != finder.url {
		t.Errorf("expected online cover, got %q", got)
	}
}

func TestMirror_LocalCoverSkipsFinder(t *testing.T) {
	cover := writeCover(t, t.TempDir(), "cover.jpg")
	client := &fakeClient{}
	finder := &fakeFinder{url: "https://coverartarchive.org/front.jpg"}
	m := newTestMirror(t, client, &fakeUploader{}, WithCoverFinder(finder))
	m.Attach()

	m.Update(playing("a", cover))
	eventually(t, "activity", func() bool { return lastActivity(client) != nil })

	if finder.callCount() != 0 {
		t.Errorf("expected no online lookup for an uploadable cover, got %d", finder.callCount())
	}
}

func TestMirror_UploadFailureFallsBackToText(t *testing.T) {
	cover := writeCover(t, t.TempDir(), "cover.jpg")
	client := &fakeClient{}
	up := &fakeUploader{
		upload: func(_ context.Context, call int, name string) (*upload.Result, error) {
			if call == 1 {
				return nil, errors.New("host down")
			}
			return &upload.Result{URL: "https://img.example/" + name}, nil
		},
	}
	m := newTestMirror(t, client, up)
	m.Attach()

	m.Update(playing("first", cover))
	eventually(t, "text-only activity", func() bool { return lastActivity(client) != nil })
	if a := lastActivity(client); a.Assets != nil || a.State != "first" {
		t.Errorf("expected text-only activity, got %+v", a)
	}

	// The next update retries the upload
	m.Update(playing("second", cover))
	eventually(t, "activity with cover", func() bool {
		a := lastActivity(client)
		return a != nil && a.State == "second"
	})
	if a := lastActivity(client); a.Assets == nil || a.Assets.LargeImage != "https://img.example/cover.jpg" {
		t.Errorf("expected uploaded cover, got %+v", a.Assets)
	}
	if up.callCount() != 2 {
		t.Errorf("expected 2 upload attempts, got %d", up.callCount())
	}
}

func TestMirror_ReusesCachedUpload(t *testing.T) {
	cover := writeCover(t, t.TempDir(), "cover.jpg")
	client := &fakeClient{}
	up := &fakeUploader{}
	m := newTestMirror(t, client, up)
	m.Attach()

	m.Update(playing("one", cover))
	eventually(t, "first activity", func() bool { return lastActivity(client) != nil })

	m.Update(playing("two", cover))
	eventually(t, "second activity", func() bool { return lastActivity(client).State == "two" })

	if up.callCount() != 1 {
		t.Errorf("expected 1 upload, got %d", up.callCount())
	}
	if a := lastActivity(client); a.Assets == nil || a.Assets.LargeImage != "https://img.example/cover.jpg" {
		t.Errorf("expected cached cover, got %+v", a.Assets)
	}
}

func TestMirror_NewerUpdateCancelsStaleUpload(t *testing.T) {
	dir := t.TempDir()
	coverA := writeCover(t, dir, "a.jpg")
	coverB := writeCover(t, dir, "b.jpg")

	started := make(chan struct{})
	canceled := make(chan struct{})
	client := &fakeClient{}
	up := &fakeUploader{
		upload: func(ctx context.Context, _ int, name string) (*upload.Result, error) {
			if name == "a.jpg" {
				close(started)
				<-ctx.Done()
				close(canceled)
				return nil, ctx.Err()
			}
			return &upload.Result{URL: "https://img.example/" + name}, nil
		},
	}
	m := newTestMirror(t, client, up)
	m.Attach()

	m.Update(playing("one", coverA))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("upload never started")
	}

	m.Update(playing("two", coverB))
	select {
	case <-canceled:
	case <-time.After(2 * time.Second):
		t.Fatal("stale upload was not cancelled")
	}

	eventually(t, "latest activity", func() bool { return lastActivity(client) != nil })
	acts, _, _ := client.snapshot()
	for _, a := range acts {
		if a.State == "one" {
			t.Error("stale update should never be published")
		}
	}
	if a := lastActivity(client); a.State != "two" || a.Assets == nil || a.Assets.LargeImage != "https://img.example/b.jpg" {
		t.Errorf("unexpected activity %+v", a)
	}
}

func TestMirror_StoppedClearsPresence(t *testing.T) {
	client := &fakeClient{}
	m := newTestMirror(t, client, &fakeUploader{})
	m.Attach()

	snap := playing("a", "")
	snap.Playback.Status = protocol.StatusStopped
	m.Update(snap)

	eventually(t, "clear", func() bool {
		_, clears, _ := client.snapshot()
		return clears == 1
	})
	if acts, _, _ := client.snapshot(); len(acts) != 0 {
		t.Errorf("expected no activity, got %d", len(acts))
	}
}

func TestMirror_DetachRemovesDeletableUploads(t *testing.T) {
	cover := writeCover(t, t.TempDir(), "cover.jpg")
	store := newMemStore()
	client := &fakeClient{}
	up := &fakeUploader{deletable: true}
	m := newTestMirror(t, client, up, WithStore(store))
	m.Attach()

	m.Update(playing("a", cover))
	eventually(t, "activity", func() bool { return lastActivity(client) != nil })

	m.Detach()
	eventually(t, "delete", func() bool {
		up.mu.Lock()
		defer up.mu.Unlock()
		return len(up.deletes) == 1
	})

	if up.deletes[0] != "hash-cover.jpg" {
		t.Errorf("expected hash-cover.jpg, got %q", up.deletes[0])
	}
	if _, _, closes := client.snapshot(); closes < 1 {
		t.Error("expected client to be closed on detach")
	}
	if left, _ := store.DeletableUploads("fake"); len(left) != 0 {
		t.Errorf("expected store to be emptied, got %d", len(left))
	}

	// Detached mirror ignores updates
	m.Update(playing("b", ""))
	time.Sleep(5 * testDebounce)
	if a := lastActivity(client); a.State != "a" {
		t.Errorf("expected no activity after detach, got %q", a.State)
	}
}

func TestMirror_ConnectFailureSkipsUpdate(t *testing.T) {
	client := &fakeClient{connectErr: discord.ErrNoDiscord}
	m := newTestMirror(t, client, &fakeUploader{})
	m.Attach()

	m.Update(playing("a", ""))
	time.Sleep(5 * testDebounce)
	if acts, _, _ := client.snapshot(); len(acts) != 0 {
		t.Errorf("expected no activity, got %d", len(acts))
	}

	// Discord comes up; the next update goes through
	client.mu.Lock()
	client.connectErr = nil
	client.mu.Unlock()
	m.Update(playing("b", ""))
	eventually(t, "activity", func() bool { return lastActivity(client) != nil })
}

func TestMemStoreExpiry(t *testing.T) {
	s := newMemStore()
	mod := time.Unix(100, 0)
	now := time.Unix(1000, 0)
	s.SaveUpload(&cache.Upload{FilePath: "/a", ModTime: mod, Service: "x", URL: "u", ExpiresAt: now})

	if u, _ := s.GetUpload("/a", mod, "x", now.Add(-time.Second)); u == nil {
		t.Error("expected upload before expiry")
	}
	if u, _ := s.GetUpload("/a", mod, "x", now); u != nil {
		t.Error("expected no upload at expiry")
	}
	if n, _ := s.PurgeExpired(now); n != 1 {
		t.Errorf("expected 1 purged, got %d", n)
	}
}
