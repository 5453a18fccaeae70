package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for blob caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// SearchClient defines the interface for interacting with the visual search API
type SearchClient interface {
	Health(ctx context.Context) (*HealthStatus, error)
	ListCategories(ctx context.Context) ([]string, error)
	ListTags(ctx context.Context) ([]string, error)
	Search(ctx context.Context, files []ImageFile, filters *Filters) (*SearchResponse, error)
	Precompute(ctx context.Context) (*PrecomputeAck, error)
	GetProduct(ctx context.Context, id string) (*Product, error)
}

// CatalogClient covers the matcher endpoints of the search API
type CatalogClient interface {
	ListItems(ctx context.Context, offset, limit int) ([]CatalogItem, error)
	SearchText(ctx context.Context, query string, topK int) (*MatchResponse, error)
	SearchImage(ctx context.Context, file ImageFile, topK int) (*MatchResponse, error)
}

// PreferenceStore persists small user preferences across restarts
type PreferenceStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// SearchRecorder observes search outcomes (for metrics)
type SearchRecorder interface {
	ObserveSearch(outcome string, duration time.Duration)
	ObserveToast(kind ToastKind)
}
