package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxEntries bounds the memory backend; aggregated completions can be
// large, so the map may not grow with traffic.
const DefaultMaxEntries = 1024

// DefaultSweepInterval is how often the memory backend drops expired entries.
const DefaultSweepInterval = 5 * time.Minute

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool { return now.After(e.expiresAt) }

// MemoryExactCache is a process-local ExactCache with per-entry TTLs and a
// fixed capacity. When full, expired entries go first, then the entry closest
// to expiry.
type MemoryExactCache struct {
	mu         sync.Mutex
	items      map[string]memoryEntry
	maxEntries int

	sweepEvery time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewMemoryExactCache starts a sweeper that runs every sweepEvery
// (DefaultSweepInterval when <= 0). Call Close to stop it.
func NewMemoryExactCache(sweepEvery time.Duration) *MemoryExactCache {
	if sweepEvery <= 0 {
		sweepEvery = DefaultSweepInterval
	}
	c := &MemoryExactCache{
		items:      make(map[string]memoryEntry),
		maxEntries: DefaultMaxEntries,
		sweepEvery: sweepEvery,
		stop:       make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

func (c *MemoryExactCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	if entry.expired(time.Now()) {
		delete(c.items, key)
		return nil, false, nil
	}
	return append([]byte(nil), entry.value...), true, nil
}

// Set stores a copy of value. A non-positive ttl evicts the key.
func (c *MemoryExactCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		delete(c.items, key)
		return nil
	}

	now := time.Now()
	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.items[key] = memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: now.Add(ttl),
	}
	return nil
}

// evictLocked frees at least one slot. c.mu must be held.
func (c *MemoryExactCache) evictLocked(now time.Time) {
	if c.sweepLocked(now) > 0 {
		return
	}
	var (
		victim string
		soon   time.Time
	)
	for k, e := range c.items {
		if victim == "" || e.expiresAt.Before(soon) {
			victim, soon = k, e.expiresAt
		}
	}
	delete(c.items, victim)
}

func (c *MemoryExactCache) sweepLocked(now time.Time) int {
	removed := 0
	for k, e := range c.items {
		if e.expired(now) {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}

func (c *MemoryExactCache) sweepLoop() {
	ticker := time.NewTicker(c.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			c.mu.Lock()
			c.sweepLocked(now)
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}

// Close stops the sweeper. Safe to call more than once.
func (c *MemoryExactCache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryExactCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
