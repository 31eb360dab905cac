// Package cache stores resolved responses per conversation with a TTL and a
// per-conversation capacity.
package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Record is one cached response.
type Record struct {
	Value     string
	CreatedAt time.Time
	seq       uint64
}

// bucket owns one conversation's entries and its lock.
type bucket struct {
	mu      sync.Mutex
	entries map[string]Record
}

// Cache is an arena of per-conversation buckets. The arena lock is held only
// to find or create a bucket; reads and writes lock the bucket alone.
type Cache struct {
	ttl      time.Duration
	capacity int
	clock    Clock

	mu      sync.RWMutex
	buckets map[string]*bucket

	seq    atomic.Uint64
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a Cache whose entries expire ttl after insertion and whose
// conversations hold at most capacity entries each.
func New(ttl time.Duration, capacity int) *Cache {
	return NewWithClock(ttl, capacity, realClock{})
}

// NewWithClock creates a Cache with a custom clock (for testing).
func NewWithClock(ttl time.Duration, capacity int, clock Clock) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		ttl:      ttl,
		capacity: capacity,
		clock:    clock,
		buckets:  make(map[string]*bucket),
	}
}

func (c *Cache) bucket(conv string, create bool) *bucket {
	c.mu.RLock()
	b := c.buckets[conv]
	c.mu.RUnlock()
	if b != nil || !create {
		return b
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if b = c.buckets[conv]; b == nil {
		b = &bucket{entries: make(map[string]Record)}
		c.buckets[conv] = b
	}
	return b
}

func (c *Cache) expired(r Record, now time.Time) bool {
	return !now.Before(r.CreatedAt.Add(c.ttl))
}

// Get returns the value cached for key in conversation conv. An expired
// entry is removed and reported as a miss.
func (c *Cache) Get(conv, key string) (string, bool) {
	b := c.bucket(conv, false)
	if b == nil {
		c.misses.Add(1)
		return "", false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.entries[key]
	if !ok {
		c.misses.Add(1)
		return "", false
	}
	if c.expired(r, c.clock.Now()) {
		delete(b.entries, key)
		c.misses.Add(1)
		return "", false
	}
	c.hits.Add(1)
	return r.Value, true
}

// Set stores value under key. When the conversation is full, expired entries
// are dropped first and then the oldest-created entry is evicted. Overwriting
// an existing key refreshes its creation time and never evicts.
func (c *Cache) Set(conv, key, value string) {
	b := c.bucket(conv, true)
	now := c.clock.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.entries[key]; !exists && len(b.entries) >= c.capacity {
		for k, r := range b.entries {
			if c.expired(r, now) {
				delete(b.entries, k)
			}
		}
		if len(b.entries) >= c.capacity {
			evictOldest(b.entries)
		}
	}
	b.entries[key] = Record{Value: value, CreatedAt: now, seq: c.seq.Add(1)}
}

func evictOldest(entries map[string]Record) {
	var (
		oldestKey string
		oldest    Record
		found     bool
	)
	for k, r := range entries {
		if !found || r.CreatedAt.Before(oldest.CreatedAt) ||
			(r.CreatedAt.Equal(oldest.CreatedAt) && r.seq < oldest.seq) {
			oldestKey, oldest, found = k, r, true
		}
	}
	if found {
		delete(entries, oldestKey)
	}
}

// Clear drops every entry of one conversation.
func (c *Cache) Clear(conv string) {
	c.mu.Lock()
	delete(c.buckets, conv)
	c.mu.Unlock()
}

// ClearAll drops every entry and resets the hit counters.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	c.buckets = make(map[string]*bucket)
	c.mu.Unlock()
	c.hits.Store(0)
	c.misses.Store(0)
}

// Stats is a point-in-time view of cache usage.
type Stats struct {
	Size          int           `json:"size"`
	Conversations int           `json:"conversations"`
	Hits          int64         `json:"hits"`
	Misses        int64         `json:"misses"`
	HitRate       float64       `json:"hit_rate"`
	TTL           time.Duration `json:"ttl"`
	Capacity      int           `json:"capacity"`
}

// Stats returns current usage. Size counts live, unexpired entries.
func (c *Cache) Stats() Stats {
	now := c.clock.Now()

	c.mu.RLock()
	buckets := make([]*bucket, 0, len(c.buckets))
	for _, b := range c.buckets {
		buckets = append(buckets, b)
	}
	c.mu.RUnlock()

	s := Stats{TTL: c.ttl, Capacity: c.capacity}
	for _, b := range buckets {
		b.mu.Lock()
		live := 0
		for _, r := range b.entries {
			if !c.expired(r, now) {
				live++
			}
		}
		b.mu.Unlock()
		if live > 0 {
			s.Size += live
			s.Conversations++
		}
	}
	s.Hits = c.hits.Load()
	s.Misses = c.misses.Load()
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
