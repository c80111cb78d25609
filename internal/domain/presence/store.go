package presence

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edumarques81/beebridge/internal/infra/cache"
)

// Store remembers uploaded covers. *cache.DAO implements it.
type Store interface {
	GetUpload(filePath string, modTime time.Time, service string, now time.Time) (*cache.Upload, error)
	SaveUpload(u *cache.Upload) error
	DeletableUploads(service string) ([]cache.Upload, error)
	DeleteUpload(id string) error
	PurgeExpired(now time.Time) (int64, error)
}

// memStore is the in-process Store used when no database is configured.
type memStore struct {
	mu      sync.Mutex
	uploads map[string]cache.Upload
}

func newMemStore() *memStore {
	return &memStore{uploads: make(map[string]cache.Upload)}
}

func uploadKey(filePath string, modTime time.Time, service string) string {
	return fmt.Sprintf("%s\x00%d\x00%s", filePath, modTime.UnixNano(), service)
}

func (s *memStore) GetUpload(filePath string, modTime time.Time, service string, now time.Time) (*cache.Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uploads[uploadKey(filePath, modTime, service)]
	if !ok || u.Expired(now) {
		return nil, nil
	}
	return &u, nil
}

func (s *memStore) SaveUpload(u *cache.Upload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	s.uploads[uploadKey(u.FilePath, u.ModTime, u.Service)] = *u
	return nil
}

func (s *memStore) DeletableUploads(service string) ([]cache.Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []cache.Upload
	for _, u := range s.uploads {
		if u.Service == service && u.DeleteHash != "" {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *memStore) DeleteUpload(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, u := range s.uploads {
		if u.ID == id {
			delete(s.uploads, k)
		}
	}
	return nil
}

func (s *memStore) PurgeExpired(now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, u := range s.uploads {
		if u.Expired(now) {
			delete(s.uploads, k)
			n++
		}
	}
	return n, nil
}
