package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config describes one cache instance.
type Config struct {
	// Name tags log lines and stats for this instance.
	Name string
	// TTL evicts entries idle longer than this.
	TTL time.Duration
	// MaxEntries caps the cache size; 0 means unbounded.
	MaxEntries int
	// CleanupInterval overrides the periodic sweep interval. Zero derives
	// TTL/2 with a one second floor.
	CleanupInterval time.Duration
}

// Stats is a read-only snapshot of one cache's state and sweep counters.
type Stats struct {
	Entries         int           `json:"entries"`
	TTL             time.Duration `json:"-"`
	TTLMillis       int64         `json:"ttlMs"`
	MaxEntries      int           `json:"maxEntries,omitempty"`
	CleanupInterval int64         `json:"cleanupIntervalMs"`
	CleanupRuns     int64         `json:"cleanupRuns"`
	StaleEvictions  int64         `json:"staleEvictions"`
	MaxEvictions    int64         `json:"maxEvictions"`
	LastCleanupAt   *time.Time    `json:"lastCleanupAt"`
}

type entry[V any] struct {
	key       string
	value     V
	touchedAt time.Time
}

// Cache is a string-keyed cache with TTL eviction and optional capacity
// eviction in strict last-touch order. Both Get and Touch mark an entry as
// most recently used, so capacity overflow always removes the entry idle
// longest. Every operation starts with an opportunistic sweep; a background
// ticker sweeps independently of traffic.
type Cache[V any] struct {
	cfg      Config
	interval time.Duration
	now      func() time.Time
	logger   *logrus.Logger

	mu      sync.Mutex
	entries map[string]*list.Element
	// order holds *entry[V], front = least recently touched.
	order *list.List

	cleanupRuns    int64
	staleEvictions int64
	maxEvictions   int64
	lastCleanupAt  time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// New constructs a cache and starts its periodic sweeper. The clock is
// injected so tests can drive eviction deterministically; pass time.Now in
// production.
func New[V any](cfg Config, now func() time.Time, logger *logrus.Logger) *Cache[V] {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = cfg.TTL / 2
	}
	if interval < time.Second {
		interval = time.Second
	}

	c := &Cache[V]{
		cfg:      cfg,
		interval: interval,
		now:      now,
		logger:   logger,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		done:     make(chan struct{}),
	}

	go c.run()
	return c
}

func (c *Cache[V]) run() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.Sweep(c.now())
		}
	}
}

// Close stops the periodic sweeper. Entries remain readable.
func (c *Cache[V]) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Get returns the value for key and marks it most recently used.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweepLocked(now)

	elem, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	ent := elem.Value.(*entry[V])
	ent.touchedAt = now
	c.order.MoveToBack(elem)
	return ent.value, true
}

// Peek returns the value for key without refreshing its recency, so a read
// that must not extend an entry's life (cooldown checks) stays side-effect
// free.
func (c *Cache[V]) Peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweepLocked(c.now())

	elem, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	return elem.Value.(*entry[V]).value, true
}

// Touch inserts or updates key and marks it most recently used, then
// enforces the capacity bound.
func (c *Cache[V]) Touch(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweepLocked(now)

	if elem, ok := c.entries[key]; ok {
		ent := elem.Value.(*entry[V])
		ent.value = value
		ent.touchedAt = now
		c.order.MoveToBack(elem)
		return
	}

	c.entries[key] = c.order.PushBack(&entry[V]{key: key, value: value, touchedAt: now})
	c.evictOverflowLocked()
}

// Delete removes key, reporting whether it was present.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	c.order.Remove(elem)
	delete(c.entries, key)
	return true
}

// Flush removes every entry and returns the prior count.
func (c *Cache[V]) Flush() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	c.entries = make(map[string]*list.Element)
	c.order.Init()
	return n
}

// Len reports the current entry count.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes TTL-expired entries and enforces the capacity bound. Safe to
// call from any goroutine and cheap when nothing is stale; both the periodic
// ticker and request-driven operations funnel through it.
func (c *Cache[V]) Sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked(now)
}

func (c *Cache[V]) sweepLocked(now time.Time) {
	var stale, overCap int64

	// The list is ordered by last touch, so expired entries form a prefix.
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		ent := front.Value.(*entry[V])
		if now.Sub(ent.touchedAt) <= c.cfg.TTL {
			break
		}
		c.order.Remove(front)
		delete(c.entries, ent.key)
		stale++
	}

	if c.cfg.MaxEntries > 0 {
		for len(c.entries) > c.cfg.MaxEntries {
			front := c.order.Front()
			ent := front.Value.(*entry[V])
			c.order.Remove(front)
			delete(c.entries, ent.key)
			overCap++
		}
	}

	c.cleanupRuns++
	c.staleEvictions += stale
	c.maxEvictions += overCap
	c.lastCleanupAt = now

	if stale > 0 || overCap > 0 {
		c.logger.WithFields(logrus.Fields{
			"cache":     c.cfg.Name,
			"stale":     stale,
			"overCap":   overCap,
			"remaining": len(c.entries),
		}).Debug("Cache sweep evicted entries")
	}
}

func (c *Cache[V]) evictOverflowLocked() {
	if c.cfg.MaxEntries <= 0 {
		return
	}
	var overCap int64
	for len(c.entries) > c.cfg.MaxEntries {
		front := c.order.Front()
		ent := front.Value.(*entry[V])
		c.order.Remove(front)
		delete(c.entries, ent.key)
		overCap++
	}
	if overCap > 0 {
		c.maxEvictions += overCap
		c.logger.WithFields(logrus.Fields{
			"cache":   c.cfg.Name,
			"evicted": overCap,
		}).Debug("Capacity eviction after insert")
	}
}

// Stats snapshots the sweep counters for observability endpoints.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Entries:         len(c.entries),
		TTL:             c.cfg.TTL,
		TTLMillis:       c.cfg.TTL.Milliseconds(),
		MaxEntries:      c.cfg.MaxEntries,
		CleanupInterval: c.interval.Milliseconds(),
		CleanupRuns:     c.cleanupRuns,
		StaleEvictions:  c.staleEvictions,
		MaxEvictions:    c.maxEvictions,
	}
	if !c.lastCleanupAt.IsZero() {
		t := c.lastCleanupAt
		s.LastCleanupAt = &t
	}
	return s
}
