package cache

import (
	"context"
	"sync"
	"time"
)

// entry holds a copied value. A zero deadline never expires, matching Redis SET without EX.
type entry struct {
	value    []byte
	deadline time.Time
}

func (e entry) liveAt(now time.Time) bool {
	return e.deadline.IsZero() || now.Before(e.deadline)
}

// MemoryCache is an in-process Cache for single-instance deployments.
// Expired entries are hidden immediately and reclaimed by a periodic sweep.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time

	done     chan struct{}
	doneOnce sync.Once
}

// NewMemoryCache creates a cache that reclaims expired entries every sweepInterval.
// A non-positive interval defaults to one minute.
func NewMemoryCache(sweepInterval time.Duration) *MemoryCache {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	c := &MemoryCache{
		entries: make(map[string]entry),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.run(sweepInterval)
	return c
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !e.liveAt(c.now()) {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores a copy of value. A non-positive ttl keeps it until deleted.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.deadline = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, e := range c.entries {
		if e.liveAt(now) {
			n++
		}
	}
	return n
}

// Close stops the sweeper. Safe to call more than once.
func (c *MemoryCache) Close() error {
	c.doneOnce.Do(func() { close(c.done) })
	return nil
}

func (c *MemoryCache) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep drops expired entries and reports how many were removed.
func (c *MemoryCache) sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if !e.liveAt(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

var _ Cache = (*MemoryCache)(nil)
