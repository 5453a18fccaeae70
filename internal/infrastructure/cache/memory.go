package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/visualmatch/console/internal/domain"
)

// cleanupInterval is how often expired entries are swept
const cleanupInterval = 10 * time.Minute

// cacheItem represents a single blob in the cache with expiration
type cacheItem struct {
	Value      []byte
	Expiration time.Time
}

// MemoryOption configures a MemoryCache
type MemoryOption func(*MemoryCache)

// WithMaxBytes bounds the total size of stored blobs. Zero means unbounded.
func WithMaxBytes(n int64) MemoryOption {
	return func(c *MemoryCache) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

// MemoryCache is a thread-safe in-memory blob cache with TTL support.
// With a byte budget, the entries closest to expiry are evicted first.
type MemoryCache struct {
	data     map[string]cacheItem
	bytes    int64
	maxBytes int64
	mutex    sync.RWMutex
	stop     chan struct{}
	once     sync.Once
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cache := &MemoryCache{
		data: make(map[string]cacheItem),
		stop: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(cache)
	}

	go cache.cleanupExpired(cleanupInterval)

	return cache
}

// Get retrieves a copy of the blob stored under key
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, exists := c.data[key]
	if !exists || time.Now().After(item.Expiration) {
		return nil, domain.ErrCacheMiss
	}

	return append([]byte(nil), item.Value...), nil
}

// Set stores a copy of value with TTL
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	size := int64(len(value))
	if c.maxBytes > 0 && size > c.maxBytes {
		return fmt.Errorf("%w: %d byte value exceeds the %d byte budget", domain.ErrCacheUnavailable, size, c.maxBytes)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.removeLocked(key)
	if c.maxBytes > 0 {
		c.evictLocked(c.bytes + size - c.maxBytes)
	}

	c.data[key] = cacheItem{
		Value:      append([]byte(nil), value...),
		Expiration: time.Now().Add(ttl),
	}
	c.bytes += size

	return nil
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.removeLocked(key)
	return nil
}

func (c *MemoryCache) removeLocked(key string) {
	if item, ok := c.data[key]; ok {
		c.bytes -= int64(len(item.Value))
		delete(c.data, key)
	}
}

// evictLocked frees at least need bytes, soonest expiry first
func (c *MemoryCache) evictLocked(need int64) {
	for need > 0 && len(c.data) > 0 {
		var victim string
		var earliest time.Time
		for key, item := range c.data {
			if victim == "" || item.Expiration.Before(earliest) {
				victim, earliest = key, item.Expiration
			}
		}
		need -= int64(len(c.data[victim].Value))
		c.removeLocked(victim)
	}
}

// Exists checks if a key exists in the cache and is not expired
func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, exists := c.data[key]
	if !exists {
		return false, nil
	}

	return !time.Now().After(item.Expiration), nil
}

// cleanupExpired removes expired entries periodically until Close is called
func (c *MemoryCache) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.removeExpired(time.Now())
		}
	}
}

func (c *MemoryCache) removeExpired(now time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for key, item := range c.data {
		if now.After(item.Expiration) {
			c.removeLocked(key)
		}
	}
}

// Close stops the cleanup goroutine
func (c *MemoryCache) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

// Size returns the current number of items in the cache (for debugging/monitoring)
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.data)
}

// Bytes returns the total size of the stored blobs
func (c *MemoryCache) Bytes() int64 {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.bytes
}

// Clear removes all items from the cache
func (c *MemoryCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.data = make(map[string]cacheItem)
	c.bytes = 0
}
