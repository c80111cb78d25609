package cache

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DAO provides data access operations for the cache.
type DAO struct {
	db *DB
}

// NewDAO creates a new DAO instance.
func NewDAO(db *DB) *DAO {
	return &DAO{db: db}
}

// GetUpload returns the usable upload of a cover version, or nil when there
// is none or it has expired.
func (dao *DAO) GetUpload(filePath string, modTime time.Time, service string, now time.Time) (*Upload, error) {
	db := dao.db.DB()
	if db == nil {
		return nil, ErrNotOpen
	}

	u := &Upload{}
	var deleteHash, expiresAt, createdAt sql.NullString
	var mod int64

	err := db.QueryRow(`
		SELECT id, file_path, mod_time, service, url, delete_hash, expires_at, created_at
		FROM uploads WHERE file_path = ? AND mod_time = ? AND service = ?
	`, filePath, modTime.UnixNano(), service).Scan(
		&u.ID, &u.FilePath, &mod, &u.Service, &u.URL, &deleteHash, &expiresAt, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	u.ModTime = time.Unix(0, mod)
	if deleteHash.Valid {
		u.DeleteHash = deleteHash.String
	}
	if expiresAt.Valid {
		u.ExpiresAt, _ = time.Parse(time.RFC3339Nano, expiresAt.String)
	}
	if createdAt.Valid {
		u.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt.String)
	}

	if u.Expired(now) {
		return nil, nil
	}
	return u, nil
}

// SaveUpload inserts or replaces the upload of a cover version.
func (dao *DAO) SaveUpload(u *Upload) error {
	db := dao.db.DB()
	if db == nil {
		return ErrNotOpen
	}

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}

	_, err := db.Exec(`
		INSERT INTO uploads (id, file_path, mod_time, service, url, delete_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_path, mod_time, service) DO UPDATE SET
			id = excluded.id, url = excluded.url, delete_hash = excluded.delete_hash,
			expires_at = excluded.expires_at, created_at = excluded.created_at
	`, u.ID, u.FilePath, u.ModTime.UnixNano(), u.Service, u.URL,
		nullString(u.DeleteHash), nullTime(u.ExpiresAt), formatTime(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save upload: %w", err)
	}
	return nil
}

// DeletableUploads returns the uploads of a service that can be deleted
// from the host.
func (dao *DAO) DeletableUploads(service string) ([]Upload, error) {
	db := dao.db.DB()
	if db == nil {
		return nil, ErrNotOpen
	}

	rows, err := db.Query(`
		SELECT id, file_path, mod_time, url, delete_hash
		FROM uploads WHERE service = ? AND delete_hash IS NOT NULL
		ORDER BY created_at
	`, service)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uploads []Upload
	for rows.Next() {
		u := Upload{Service: service}
		var mod int64
		if err := rows.Scan(&u.ID, &u.FilePath, &mod, &u.URL, &u.DeleteHash); err != nil {
			return nil, err
		}
		u.ModTime = time.Unix(0, mod)
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

// DeleteUpload removes an upload record.
func (dao *DAO) DeleteUpload(id string) error {
	db := dao.db.DB()
	if db == nil {
		return ErrNotOpen
	}
	_, err := db.Exec("DELETE FROM uploads WHERE id = ?", id)
	return err
}

// PurgeExpired removes uploads whose link expired before now.
func (dao *DAO) PurgeExpired(now time.Time) (int64, error) {
	db := dao.db.DB()
	if db == nil {
		return 0, ErrNotOpen
	}

	res, err := db.Exec("DELETE FROM uploads WHERE expires_at IS NOT NULL AND expires_at <= ?", formatTime(now))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.Debug().Int64("count", n).Msg("Purged expired uploads")
	}
	return n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}
