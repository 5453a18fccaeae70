package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/visualmatch/console/internal/domain"
)

const previewKeyPrefix = "preview:"

// Preview is a transient, locally served copy of an uploaded image
type Preview struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Name string `json:"name"`
}

// PreviewStore creates and releases preview resources
type PreviewStore interface {
	Create(ctx context.Context, file domain.ImageFile) (Preview, error)
	Revoke(ctx context.Context, id string) error
}

// CachePreviewStore keeps preview blobs in a CacheRepository
type CachePreviewStore struct {
	cache domain.CacheRepository
	ttl   time.Duration
}

// NewCachePreviewStore creates a preview store. ttl bounds how long an unreleased preview survives.
func NewCachePreviewStore(cache domain.CacheRepository, ttl time.Duration) *CachePreviewStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachePreviewStore{cache: cache, ttl: ttl}
}

// Create stores the file and returns its preview handle
func (s *CachePreviewStore) Create(ctx context.Context, file domain.ImageFile) (Preview, error) {
	data, err := json.Marshal(file)
	if err != nil {
		return Preview{}, fmt.Errorf("failed to encode preview: %w", err)
	}

	id := uuid.NewString()
	if err := s.cache.Set(ctx, previewKeyPrefix+id, data, s.ttl); err != nil {
		return Preview{}, fmt.Errorf("failed to store preview: %w", err)
	}
	return Preview{ID: id, URL: "/previews/" + id, Name: file.Name}, nil
}

// Revoke releases the preview blob
func (s *CachePreviewStore) Revoke(ctx context.Context, id string) error {
	return s.cache.Delete(ctx, previewKeyPrefix+id)
}

// Get returns the stored image behind a preview id
func (s *CachePreviewStore) Get(ctx context.Context, id string) (*domain.ImageFile, error) {
	data, err := s.cache.Get(ctx, previewKeyPrefix+id)
	if err != nil {
		if errors.Is(err, domain.ErrCacheMiss) {
			return nil, fmt.Errorf("%w: preview %s", domain.ErrCacheMiss, id)
		}
		return nil, err
	}

	var file domain.ImageFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode preview: %w", err)
	}
	return &file, nil
}
