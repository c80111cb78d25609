// Package cache provides a SQLite-based cache of artwork uploads, so a cover
// is uploaded once per file version and reused until its link expires.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog/log"
)

const (
	// CurrentSchemaVersion is the current database schema version.
	CurrentSchemaVersion = "1"

	// DefaultDBPath is the default path for the cache database.
	DefaultDBPath = "uploads.db"
)

// ErrNotOpen is returned when the database is used before Open.
var ErrNotOpen = errors.New("database not open")

// DB represents the SQLite cache database.
type DB struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// NewDB creates a new cache database instance.
func NewDB(path string) *DB {
	if path == "" {
		path = DefaultDBPath
	}
	return &DB{
		path: path,
	}
}

// Path returns the database file path.
func (d *DB) Path() string { return d.path }

// Open opens the database and initializes the schema.
func (d *DB) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Ensure directory exists
	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", d.path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open cache database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	d.db = db

	if err := d.initSchema(); err != nil {
		d.db.Close()
		d.db = nil
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("path", d.path).Msg("Upload cache opened")
	return nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db != nil {
		err := d.db.Close()
		d.db = nil
		return err
	}
	return nil
}

// initSchema initializes the database schema.
func (d *DB) initSchema() error {
	currentVersion := d.getSchemaVersion()

	if currentVersion == "" {
		// Fresh database, create all tables
		if err := d.createSchema(); err != nil {
			return err
		}
		return d.setMeta("schema_version", CurrentSchemaVersion)
	}

	if currentVersion != CurrentSchemaVersion {
		log.Info().
			Str("current", currentVersion).
			Str("target", CurrentSchemaVersion).
			Msg("Migrating cache schema")
		return d.setMeta("schema_version", CurrentSchemaVersion)
	}

	return nil
}

// createSchema creates all database tables.
func (d *DB) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache_meta (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at TEXT
	);

	-- One row per uploaded cover version and service
	CREATE TABLE IF NOT EXISTS uploads (
		id TEXT PRIMARY KEY,
		file_path TEXT NOT NULL,
		mod_time INTEGER NOT NULL,
		service TEXT NOT NULL,
		url TEXT NOT NULL,
		delete_hash TEXT,
		expires_at TEXT,
		created_at TEXT DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(file_path, mod_time, service)
	);

	CREATE INDEX IF NOT EXISTS idx_uploads_expires ON uploads(expires_at);
	CREATE INDEX IF NOT EXISTS idx_uploads_service ON uploads(service);
	`

	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	log.Info().Msg("Cache schema created")
	return nil
}

// getSchemaVersion returns the current schema version.
func (d *DB) getSchemaVersion() string {
	var version string
	err := d.db.QueryRow("SELECT value FROM cache_meta WHERE key = 'schema_version'").Scan(&version)
	if err != nil {
		return ""
	}
	return version
}

// setMeta sets a metadata value.
func (d *DB) setMeta(key, value string) error {
	now := time.Now().Format(time.RFC3339)
	_, err := d.db.Exec(`
		INSERT INTO cache_meta (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = ?
	`, key, value, now, value, now)
	return err
}

// getMeta gets a metadata value.
func (d *DB) getMeta(key string) (string, error) {
	var value string
	err := d.db.QueryRow("SELECT value FROM cache_meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// GetStats returns cache statistics.
func (d *DB) GetStats(now time.Time) (*CacheStats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, ErrNotOpen
	}

	stats := &CacheStats{}
	if err := d.db.QueryRow("SELECT COUNT(*) FROM uploads").Scan(&stats.UploadCount); err != nil {
		return nil, err
	}
	err := d.db.QueryRow(
		"SELECT COUNT(*) FROM uploads WHERE expires_at IS NOT NULL AND expires_at <= ?",
		formatTime(now),
	).Scan(&stats.ExpiredCount)
	if err != nil {
		return nil, err
	}
	if err := d.db.QueryRow("SELECT COUNT(*) FROM uploads WHERE delete_hash IS NOT NULL").Scan(&stats.DeletableCount); err != nil {
		return nil, err
	}

	stats.SchemaVersion, _ = d.getMeta("schema_version")
	return stats, nil
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer the DAO methods.
func (d *DB) DB() *sql.DB {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db
}

// formatTime stores times as sortable UTC RFC3339 strings.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
