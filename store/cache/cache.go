// Package cache provides a mutex-guarded in-memory cache with TTL
// expiration. An expired or absent entry is always a miss, never a negative
// answer, and Get performs no I/O; the caller owns the fallback load.
package cache

import (
	"context"
	"sync"
	"time"
)

// Config holds the configuration for a cache instance.
type Config struct {
	// DefaultTTL is the time-to-live applied by Set.
	DefaultTTL time.Duration
	// CleanupInterval is how often expired entries are swept. Zero disables
	// the background sweeper; expired entries are still missed on Get.
	CleanupInterval time.Duration
	// MaxItems caps the number of entries; the oldest entry is evicted
	// when the cap is exceeded. Zero means unbounded.
	MaxItems int
	// OnEviction, if set, is called after an entry is evicted or deleted.
	OnEviction func(key string, value any)
	// OnSet, if set, is called after an entry is stored. The preference
	// store uses this as its last-known-value feed for observers.
	OnSet func(key string, value any)
}

type item struct {
	value    any
	cachedAt time.Time
	ttl      time.Duration
}

func (i *item) expired(now time.Time) bool {
	return now.Sub(i.cachedAt) >= i.ttl
}

// Cache is a TTL cache guarded by a single mutex.
type Cache struct {
	config Config

	mu    sync.Mutex
	items map[string]*item
	done  chan struct{}
	once  sync.Once
}

// New creates a cache and starts its cleanup goroutine if configured.
func New(config Config) *Cache {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 5 * time.Minute
	}
	c := &Cache{
		config: config,
		items:  make(map[string]*item),
		done:   make(chan struct{}),
	}
	if config.CleanupInterval > 0 {
		go c.cleanupLoop()
	}
	return c
}

// Get returns the cached value for key. Expired entries are removed and
// reported as a miss.
func (c *Cache) Get(_ context.Context, key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if it.expired(time.Now()) {
		delete(c.items, key)
		return nil, false
	}
	return it.value, true
}

// Set stores value under key with the default TTL.
func (c *Cache) Set(ctx context.Context, key string, value any) {
	c.SetWithTTL(ctx, key, value, c.config.DefaultTTL)
}

// SetWithTTL stores value under key with an explicit TTL.
func (c *Cache) SetWithTTL(_ context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	c.mu.Lock()
	c.items[key] = &item{value: value, cachedAt: time.Now(), ttl: ttl}
	var evictedKey string
	var evictedValue any
	if c.config.MaxItems > 0 && len(c.items) > c.config.MaxItems {
		evictedKey, evictedValue = c.evictOldestLocked(key)
	}
	c.mu.Unlock()

	if evictedKey != "" && c.config.OnEviction != nil {
		c.config.OnEviction(evictedKey, evictedValue)
	}
	if c.config.OnSet != nil {
		c.config.OnSet(key, value)
	}
}

// Delete removes key from the cache.
func (c *Cache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	it, ok := c.items[key]
	if ok {
		delete(c.items, key)
	}
	c.mu.Unlock()

	if ok && c.config.OnEviction != nil {
		c.config.OnEviction(key, it.value)
	}
}

// Clear removes every entry.
func (c *Cache) Clear(_ context.Context) {
	c.mu.Lock()
	c.items = make(map[string]*item)
	c.mu.Unlock()
}

// Size returns the current number of entries, expired ones included.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Close stops the cleanup goroutine.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.done) })
}

// evictOldestLocked removes the entry with the oldest cachedAt, never the
// key that was just stored. Caller must hold c.mu.
func (c *Cache) evictOldestLocked(justSet string) (string, any) {
	var oldestKey string
	var oldest *item
	for k, it := range c.items {
		if k == justSet {
			continue
		}
		if oldest == nil || it.cachedAt.Before(oldest.cachedAt) {
			oldestKey, oldest = k, it
		}
	}
	if oldest == nil {
		return "", nil
	}
	delete(c.items, oldestKey)
	return oldestKey, oldest.value
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *Cache) removeExpired() {
	now := time.Now()
	type evicted struct {
		key   string
		value any
	}
	var removed []evicted

	c.mu.Lock()
	for k, it := range c.items {
		if it.expired(now) {
			removed = append(removed, evicted{key: k, value: it.value})
			delete(c.items, k)
		}
	}
	c.mu.Unlock()

	if c.config.OnEviction != nil {
		for _, e := range removed {
			c.config.OnEviction(e.key, e.value)
		}
	}
}
