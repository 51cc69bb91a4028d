package infra

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/seenimoa/macroquery/pkg/models"
)

// TTLFor returns the cache lifetime for a series frequency. Faster
// cadences expire sooner.
func TTLFor(freq models.Frequency) time.Duration {
	switch freq {
	case models.FreqDaily:
		return time.Hour
	case models.FreqWeekly:
		return 6 * time.Hour
	case models.FreqMonthly, models.FreqQuarterly:
		return 12 * time.Hour
	case models.FreqAnnual:
		return 24 * time.Hour
	}
	return time.Hour
}

// TTLIntraday applies to sub-daily data (crypto spot, live FX).
const TTLIntraday = 60 * time.Second

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

type cacheEntry struct {
	key       string
	value     any
	expiresAt time.Time
	elem      *list.Element
}

// Cache is the response cache: bounded LRU with per-entry TTL and
// single-flight request coalescing. Values are treated as immutable
// once stored.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	lru     *list.List // front = most recent
	maxSize int

	hits      int64
	misses    int64
	evictions int64

	group singleflight.Group
	stop  chan struct{}
	once  sync.Once
}

// NewCache creates a cache holding at most maxSize entries. A sweeper
// goroutine drops expired entries every sweepInterval; pass zero to
// disable sweeping (tests).
func NewCache(maxSize int, sweepInterval time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 1024
	}
	c := &Cache{
		entries: make(map[string]*cacheEntry),
		lru:     list.New(),
		maxSize: maxSize,
		stop:    make(chan struct{}),
	}
	if sweepInterval > 0 {
		go c.sweep(sweepInterval)
	}
	return c
}

// Close stops the sweeper.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stop) })
}

// Get returns the live entry for key, if any.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		c.misses++
		return nil, false
	}
	c.lru.MoveToFront(e.elem)
	c.hits++
	return e.value, true
}

// Set stores value under key with the given TTL, evicting the least
// recently used entry when full.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value, ttl)
}

func (c *Cache) setLocked(key string, value any, ttl time.Duration) {
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = time.Now().Add(ttl)
		c.lru.MoveToFront(e.elem)
		return
	}
	for len(c.entries) >= c.maxSize {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		victim := oldest.Value.(*cacheEntry)
		c.lru.Remove(oldest)
		delete(c.entries, victim.key)
		c.evictions++
	}
	e := &cacheEntry{key: key, value: value, expiresAt: time.Now().Add(ttl)}
	e.elem = c.lru.PushFront(e)
	c.entries[key] = e
}

// GetOrCompute returns the cached value for key, or runs producer to
// fill it. Concurrent calls for the same key share one producer run.
// Producer failures cache nothing. The shared result is handed to every
// waiter, so producers must return values that are safe to share.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, producer func(ctx context.Context) (any, error)) (any, bool, error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		v, err := producer(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, v, ttl)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val, res.Shared, nil
	case <-ctx.Done():
		// The in-flight producer keeps running for other waiters.
		return nil, false, ctx.Err()
	}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.lru.Init()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Entries:   len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

func (c *Cache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, e := range c.entries {
				if now.After(e.expiresAt) {
					c.lru.Remove(e.elem)
					delete(c.entries, key)
					c.evictions++
				}
			}
			c.mu.Unlock()
		}
	}
}
