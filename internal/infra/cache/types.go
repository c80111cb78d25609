package cache

import "time"

// Upload is a cover uploaded to a public image host.
type Upload struct {
	ID         string    `json:"id"`
	FilePath   string    `json:"filePath"`   // Local cover path
	ModTime    time.Time `json:"modTime"`    // Cover modification time at upload
	Service    string    `json:"service"`    // 'litterbox', 'imgur'
	URL        string    `json:"url"`        // Public URL
	DeleteHash string    `json:"deleteHash"` // Set when the host supports deletion
	ExpiresAt  time.Time `json:"expiresAt"`  // Zero when the link never expires
	CreatedAt  time.Time `json:"createdAt"`
}

// Expired reports whether the link is no longer usable at now.
func (u *Upload) Expired(now time.Time) bool {
	return !u.ExpiresAt.IsZero() && !now.Before(u.ExpiresAt)
}

// CacheStats holds upload cache statistics.
type CacheStats struct {
	UploadCount    int    `json:"uploadCount"`
	ExpiredCount   int    `json:"expiredCount"`
	DeletableCount int    `json:"deletableCount"`
	SchemaVersion  string `json:"schemaVersion"`
}
