package cache_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edumarques81/beebridge/internal/infra/cache"
)

func openTestDB(t *testing.T) (*cache.DB, *cache.DAO) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")
	db := cache.NewDB(dbPath)
	if err := db.Open(); err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, cache.NewDAO(db)
}

func TestNewDB(t *testing.T) {
	db := cache.NewDB("")
	if db == nil {
		t.Fatal("NewDB should return a non-nil instance")
	}
	if db.Path() != cache.DefaultDBPath {
		t.Errorf("expected %q, got %q", cache.DefaultDBPath, db.Path())
	}
}

func TestDBOpenClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db := cache.NewDB(dbPath)

	if err := db.Open(); err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file should exist after Open()")
	}
	if err := db.Close(); err != nil {
		t.Errorf("Failed to close database: %v", err)
	}
	// Closing twice is harmless
	if err := db.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
}

func TestDBReopenKeepsSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db := cache.NewDB(dbPath)
	if err := db.Open(); err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	mod := time.Unix(1700000000, 0)
	if err := cache.NewDAO(db).SaveUpload(&cache.Upload{
		FilePath: "/music/a/cover.jpg", ModTime: mod, Service: "imgur", URL: "https://i.example/a.jpg",
	}); err != nil {
		t.Fatalf("SaveUpload failed: %v", err)
	}
	db.Close()

	if err := db.Open(); err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db.Close()

	u, err := cache.NewDAO(db).GetUpload("/music/a/cover.jpg", mod, "imgur", time.Now())
	if err != nil {
		t.Fatalf("GetUpload failed: %v", err)
	}
	if u == nil || u.URL != "https://i.example/a.jpg" {
		t.Errorf("expected upload to survive reopen, got %+v", u)
	}
}

func TestDAONotOpen(t *testing.T) {
	dao := cache.NewDAO(cache.NewDB(filepath.Join(t.TempDir(), "x.db")))
	if _, err := dao.GetUpload("/a", time.Now(), "imgur", time.Now()); err != cache.ErrNotOpen {
		t.Errorf("expected ErrNotOpen, got %v", err)
	}
	if err := dao.SaveUpload(&cache.Upload{}); err != cache.ErrNotOpen {
		t.Errorf("expected ErrNotOpen, got %v", err)
	}
}

func TestSaveAndGetUpload(t *testing.T) {
	_, dao := openTestDB(t)

	mod := time.Unix(1700000000, 123)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	u := &cache.Upload{
		FilePath:  "/music/album/cover.jpg",
		ModTime:   mod,
		Service:   "litterbox",
		URL:       "https://litter.example/abc.jpg",
		ExpiresAt: now.Add(12 * time.Hour),
	}
	if err := dao.SaveUpload(u); err != nil {
		t.Fatalf("SaveUpload failed: %v", err)
	}
	if u.ID == "" {
		t.Error("SaveUpload should assign an id")
	}

	got, err := dao.GetUpload("/music/album/cover.jpg", mod, "litterbox", now)
	if err != nil {
		t.Fatalf("GetUpload failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected an upload")
	}
	if got.URL != u.URL {
		t.Errorf("expected %q, got %q", u.URL, got.URL)
	}
	if !got.ModTime.Equal(mod) {
		t.Errorf("expected mod time %v, got %v", mod, got.ModTime)
	}
	if !got.ExpiresAt.Equal(u.ExpiresAt) {
		t.Errorf("expected expiry %v, got %v", u.ExpiresAt, got.ExpiresAt)
	}

	tests := []struct {
		name    string
		path    string
		mod     time.Time
		service string
	}{
		{"other service", "/music/album/cover.jpg", mod, "imgur"},
		{"newer file", "/music/album/cover.jpg", mod.Add(time.Second), "litterbox"},
		{"other file", "/music/other/cover.jpg", mod, "litterbox"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dao.GetUpload(tt.path, tt.mod, tt.service, now)
			if err != nil {
				t.Fatalf("GetUpload failed: %v", err)
			}
			if got != nil {
				t.Errorf("expected no upload, got %+v", got)
			}
		})
	}
}

func TestGetUploadExpired(t *testing.T) {
	_, dao := openTestDB(t)

	mod := time.Unix(1700000000, 0)
	expires := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	if err := dao.SaveUpload(&cache.Upload{
		FilePath: "/c.jpg", ModTime: mod, Service: "litterbox", URL: "https://l/c.jpg", ExpiresAt: expires,
	}); err != nil {
		t.Fatalf("SaveUpload failed: %v", err)
	}

	got, _ := dao.GetUpload("/c.jpg", mod, "litterbox", expires.Add(-time.Minute))
	if got == nil {
		t.Error("expected upload before expiry")
	}
	got, _ = dao.GetUpload("/c.jpg", mod, "litterbox", expires)
	if got != nil {
		t.Error("expected no upload at expiry")
	}
}

func TestSaveUploadReplaces(t *testing.T) {
	_, dao := openTestDB(t)

	mod := time.Unix(1700000000, 0)
	for _, url := range []string{"https://i/1.jpg", "https://i/2.jpg"} {
		if err := dao.SaveUpload(&cache.Upload{FilePath: "/c.jpg", ModTime: mod, Service: "imgur", URL: url}); err != nil {
			t.Fatalf("SaveUpload failed: %v", err)
		}
	}

	got, err := dao.GetUpload("/c.jpg", mod, "imgur", time.Now())
	if err != nil || got == nil {
		t.Fatalf("GetUpload failed: %v", err)
	}
	if got.URL != "https://i/2.jpg" {
		t.Errorf("expected %q, got %q", "https://i/2.jpg", got.URL)
	}
	if !got.ExpiresAt.IsZero() {
		t.Errorf("expected no expiry, got %v", got.ExpiresAt)
	}
}

func TestDeletableUploads(t *testing.T) {
	_, dao := openTestDB(t)

	mod := time.Unix(1700000000, 0)
	uploads := []*cache.Upload{
		{FilePath: "/a.jpg", ModTime: mod, Service: "imgur", URL: "https://i/a.jpg", DeleteHash: "ha"},
		{FilePath: "/b.jpg", ModTime: mod, Service: "imgur", URL: "https://i/b.jpg"},
		{FilePath: "/c.jpg", ModTime: mod, Service: "litterbox", URL: "https://l/c.jpg", DeleteHash: "hc"},
	}
	for _, u := range uploads {
		if err := dao.SaveUpload(u); err != nil {
			t.Fatalf("SaveUpload failed: %v", err)
		}
	}

	got, err := dao.DeletableUploads("imgur")
	if err != nil {
		t.Fatalf("DeletableUploads failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 deletable upload, got %d", len(got))
	}
	if got[0].DeleteHash != "ha" || got[0].FilePath != "/a.jpg" {
		t.Errorf("unexpected upload %+v", got[0])
	}

	if err := dao.DeleteUpload(got[0].ID); err != nil {
		t.Fatalf("DeleteUpload failed: %v", err)
	}
	if u, _ := dao.GetUpload("/a.jpg", mod, "imgur", time.Now()); u != nil {
		t.Error("expected upload to be deleted")
	}
}

func TestPurgeExpiredAndStats(t *testing.T) {
	db, dao := openTestDB(t)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	mod := time.Unix(1700000000, 0)
	uploads := []*cache.Upload{
		{FilePath: "/old.jpg", ModTime: mod, Service: "litterbox", URL: "https://l/old", ExpiresAt: now.Add(-time.Hour)},
		{FilePath: "/new.jpg", ModTime: mod, Service: "litterbox", URL: "https://l/new", ExpiresAt: now.Add(time.Hour)},
		{FilePath: "/keep.jpg", ModTime: mod, Service: "imgur", URL: "https://i/keep", DeleteHash: "h"},
	}
	for _, u := range uploads {
		if err := dao.SaveUpload(u); err != nil {
			t.Fatalf("SaveUpload failed: %v", err)
		}
	}

	stats, err := db.GetStats(now)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.UploadCount != 3 || stats.ExpiredCount != 1 || stats.DeletableCount != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.SchemaVersion != cache.CurrentSchemaVersion {
		t.Errorf("expected schema version %q, got %q", cache.CurrentSchemaVersion, stats.SchemaVersion)
	}

	n, err := dao.PurgeExpired(now)
	if err != nil {
		t.Fatalf("PurgeExpired failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged, got %d", n)
	}

	stats, _ = db.GetStats(now)
	if stats.UploadCount != 2 {
		t.Errorf("expected 2 uploads left, got %d", stats.UploadCount)
	}
}
