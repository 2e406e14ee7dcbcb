// ABOUTME: Thread-safe TTL cache of per-key token bucket limiters.
// ABOUTME: Idle keys expire so a stream of distinct client IPs cannot grow memory without bound.

package ratelimit

import (
	"container/list"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// cacheEntry stores a key's limiter and when it was last used.
type cacheEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	element  *list.Element
}

// limiterCache hands out one rate.Limiter per key. Entries idle longer than
// ttl are dropped by a background janitor; when maxSize keys are live the
// least recently used is evicted. An evicted key starts over with a full bucket.
type limiterCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	order   *list.List // keys by last use (least recent at front)
	ttl     time.Duration
	maxSize int
	limit   rate.Limit
	burst   int
	done    chan struct{}
	closed  bool
}

// newLimiterCache creates a cache producing limiters with the given rate and
// burst. A background goroutine periodically removes idle entries.
func newLimiterCache(limit rate.Limit, burst int, ttl time.Duration, maxSize int) *limiterCache {
	c := &limiterCache{
		entries: make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		limit:   limit,
		burst:   burst,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// get returns the limiter for key, creating it if needed, and marks it used.
func (c *limiterCache) get(key string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if entry, ok := c.entries[key]; ok {
		entry.lastSeen = now
		c.order.MoveToBack(entry.element)
		return entry.limiter
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	lim := rate.NewLimiter(c.limit, c.burst)
	c.entries[key] = &cacheEntry{
		limiter:  lim,
		lastSeen: now,
		element:  c.order.PushBack(key),
	}
	return lim
}

// len reports the number of tracked keys.
func (c *limiterCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldest removes the least recently used entry. Must be called with mu held.
func (c *limiterCache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, key)
}

// cleanup runs in a background goroutine, periodically removing idle entries.
func (c *limiterCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes entries idle for longer than ttl.
func (c *limiterCache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for front := c.order.Front(); front != nil; {
		key, _ := front.Value.(string)
		entry := c.entries[key]
		if now.Sub(entry.lastSeen) <= c.ttl {
			// Order is by last use, so everything after is fresher
			return
		}
		next := front.Next()
		c.order.Remove(front)
		delete(c.entries, key)
		front = next
	}
}

// close stops the background janitor. It is safe to call multiple times.
func (c *limiterCache) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
