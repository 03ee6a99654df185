// Package cache provides the engine's sliding-TTL query cache and the debounced
// persister that carries compiled template shapes across sessions.
//
// One QueryCache holds several logical partitions distinguished only by key
// prefix: PrefixPredicate for compiled predicates and PrefixAnalysis for
// planner analyses. Partitions are cleared and inspected independently.
package cache

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/nonibytes/mango/mango/metrics"
)

const (
	// DefaultExpiry evicts an entry this long after its last access or write.
	DefaultExpiry = 5 * time.Minute

	PrefixPredicate = "tp:"
	PrefixAnalysis  = "td:"
)

// Cache is the injectable cache service used by the engine and the planner.
type Cache interface {
	// Get returns the value for key and resets its expiry.
	Get(key string) (any, bool)
	// Set stores value under key with a fresh expiry.
	Set(key string, value any)
	// Contains reports whether key is live without touching it.
	Contains(key string) bool
	// ClearByPrefix removes every key starting with prefix and returns how many.
	ClearByPrefix(prefix string) int
	Clear()
	Stats(prefix string) Stats
}

// Stats describes the live entries of one partition.
type Stats struct {
	Size int      `json:"size"`
	Keys []string `json:"keys,omitempty"`
}

// Options configures a QueryCache.
type Options struct {
	Expiry  time.Duration
	Now     func() time.Time
	Metrics *metrics.Metrics
}

// DefaultOptions returns a five minute sliding expiry on the wall clock.
func DefaultOptions() Options {
	return Options{
		Expiry: DefaultExpiry,
		Now:    time.Now,
	}
}

type entry struct {
	value any

	mu           sync.Mutex
	lastAccessed time.Time
	timer        *time.Timer
}

// QueryCache is a concurrent map with per-entry sliding expiry.
//
// Expiry is decided against Options.Now, so an injected clock fully controls
// visibility. A per-entry timer on the real clock reclaims memory for entries
// nobody asks for again.
type QueryCache struct {
	entries *xsync.MapOf[string, *entry]
	expiry  time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
}

var _ Cache = (*QueryCache)(nil)

// New creates a QueryCache.
func New(opts Options) *QueryCache {
	if opts.Expiry <= 0 {
		opts.Expiry = DefaultExpiry
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &QueryCache{
		entries: xsync.NewMapOf[string, *entry](),
		expiry:  opts.Expiry,
		now:     opts.Now,
		metrics: opts.Metrics,
	}
}

func (c *QueryCache) Get(key string) (any, bool) {
	e, ok := c.entries.Load(key)
	if !ok {
		c.metrics.CacheMiss(partition(key))
		return nil, false
	}
	now := c.now()
	e.mu.Lock()
	if c.expired(e, now) {
		e.mu.Unlock()
		c.evict(key, e)
		c.metrics.CacheMiss(partition(key))
		return nil, false
	}
	e.lastAccessed = now
	e.mu.Unlock()
	c.metrics.CacheHit(partition(key))
	return e.value, true
}

func (c *QueryCache) Set(key string, value any) {
	e := &entry{value: value, lastAccessed: c.now()}
	e.mu.Lock()
	e.timer = time.AfterFunc(c.expiry, func() { c.sweep(key, e) })
	e.mu.Unlock()
	if old, loaded := c.entries.LoadAndStore(key, e); loaded {
		old.stop()
	}
}

func (c *QueryCache) Contains(key string) bool {
	e, ok := c.entries.Load(key)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return !c.expired(e, c.now())
}

func (c *QueryCache) ClearByPrefix(prefix string) int {
	var removed int
	c.entries.Range(func(key string, e *entry) bool {
		if strings.HasPrefix(key, prefix) && c.remove(key, e) {
			removed++
		}
		return true
	})
	return removed
}

func (c *QueryCache) Clear() {
	c.ClearByPrefix("")
}

// Stats lists the live keys starting with prefix, sorted.
func (c *QueryCache) Stats(prefix string) Stats {
	now := c.now()
	keys := []string{}
	c.entries.Range(func(key string, e *entry) bool {
		if !strings.HasPrefix(key, prefix) {
			return true
		}
		e.mu.Lock()
		live := !c.expired(e, now)
		e.mu.Unlock()
		if live {
			keys = append(keys, key)
		}
		return true
	})
	sort.Strings(keys)
	return Stats{Size: len(keys), Keys: keys}
}

func (c *QueryCache) expired(e *entry, now time.Time) bool {
	return now.Sub(e.lastAccessed) >= c.expiry
}

// sweep runs on the entry's timer. Entries touched since the timer was armed
// are rescheduled for the remainder of their interval.
func (c *QueryCache) sweep(key string, e *entry) {
	now := c.now()
	e.mu.Lock()
	if !c.expired(e, now) {
		remaining := c.expiry - now.Sub(e.lastAccessed)
		if e.timer != nil {
			e.timer.Reset(remaining)
		}
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	c.evict(key, e)
}

func (c *QueryCache) evict(key string, e *entry) {
	if c.remove(key, e) {
		c.metrics.CacheEviction(partition(key))
	}
}

// remove deletes key only while it still maps to e.
func (c *QueryCache) remove(key string, e *entry) bool {
	var removed bool
	c.entries.Compute(key, func(cur *entry, loaded bool) (*entry, bool) {
		if !loaded {
			return nil, true
		}
		if cur != e {
			return cur, false
		}
		removed = true
		return nil, true
	})
	if removed {
		e.stop()
	}
	return removed
}

func (e *entry) stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// partition returns the "xx:" prefix of key, or "" for unpartitioned keys.
func partition(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i+1]
	}
	return ""
}
