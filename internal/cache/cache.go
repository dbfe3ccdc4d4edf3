// Package cache implements the two-tier canvas cache.
//
// Tier 1 is an in-process LRU bounded by entry count and total payload
// bytes; recency is tracked with a global monotonic access counter. Tier 2
// is a persistent on-device SQLite store that survives restarts. Reads
// check L1 first and promote L2 hits; writes go to both tiers unless the
// caller asks for L1 only.
//
// The cache is never a correctness source: every tier-2 failure degrades
// to a miss (reads) or is logged and swallowed (writes). A cache failure
// must never fail the caller's primary operation.
package cache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Entry is the stored record for one cache key.
type Entry struct {
	Key          string
	Value        []byte
	Timestamp    time.Time // creation time, basis for TTL expiry
	LastAccessed time.Time
	AccessCount  int64
	Size         int64
	TTL          time.Duration // 0 = never expires
	Tags         []string
}

// expired reports whether the entry's TTL has elapsed at now.
func (e *Entry) expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.Timestamp) >= e.TTL
}

// SetOptions controls a single Set call.
type SetOptions struct {
	// TTL overrides the cache default. Zero means "use default";
	// a negative TTL stores a never-expiring entry.
	TTL time.Duration

	// Tags enable coarse invalidation via InvalidateByTags.
	Tags []string

	// L1Only skips the persistent tier (e.g. cheap preview payloads).
	L1Only bool
}

// Stats carries cheap debugging counters.
type Stats struct {
	Hits            int64
	Misses          int64
	Evictions       int64
	ResidentEntries int
	ResidentBytes   int64
}

// Config configures a TwoTier cache.
type Config struct {
	L1MaxEntries int
	L1MaxBytes   int64
	DefaultTTL   time.Duration

	// Path is the on-device SQLite file backing tier 2.
	// Empty disables the persistent tier entirely.
	Path string
}

// TwoTier combines the in-process LRU with the persistent store.
//
// TwoTier is safe for concurrent use by multiple goroutines.
type TwoTier struct {
	l1         *l1Cache
	l2         *diskStore // nil when tier 2 is disabled
	defaultTTL time.Duration
	logger     *slog.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New opens a two-tier cache. When cfg.Path is empty the cache runs
// memory-only, which is also the mode used by most unit tests.
func New(cfg Config, logger *slog.Logger) (*TwoTier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &TwoTier{
		l1:         newL1Cache(cfg.L1MaxEntries, cfg.L1MaxBytes),
		defaultTTL: cfg.DefaultTTL,
		logger:     logger,
	}

	if cfg.Path != "" {
		l2, err := openDiskStore(cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		c.l2 = l2
	}

	return c, nil
}

// Get returns the cached value for key, or ok=false on a miss.
// An entry whose TTL has elapsed is invisible and purged lazily.
// An L2 hit is promoted into L1 before returning.
func (c *TwoTier) Get(ctx context.Context, key string) ([]byte, bool) {
	now := time.Now()

	if e, ok := c.l1.get(key, now); ok {
		c.hits.Add(1)
		return e.Value, true
	}

	if c.l2 != nil {
		e, ok, err := c.l2.get(ctx, key, now)
		if err != nil {
			// Degrade to miss; the cache never fails its caller.
			c.logger.Warn("cache tier-2 read failed", "key", key, "error", err)
		} else if ok {
			c.evictions.Add(c.l1.put(*e, now))
			c.hits.Add(1)
			return e.Value, true
		}
	}

	c.misses.Add(1)
	return nil, false
}

// Set stores value under key. L1 is always written; L2 is written unless
// opts.L1Only is set. Tier-2 write failures are logged and swallowed.
func (c *TwoTier) Set(ctx context.Context, key string, value []byte, opts SetOptions) {
	now := time.Now()

	ttl := opts.TTL
	switch {
	case ttl == 0:
		ttl = c.defaultTTL
	case ttl < 0:
		ttl = 0 // caller explicitly asked for no expiry
	}

	e := Entry{
		Key:          key,
		Value:        value,
		Timestamp:    now,
		LastAccessed: now,
		AccessCount:  0,
		Size:         int64(len(value)),
		TTL:          ttl,
		Tags:         opts.Tags,
	}

	c.evictions.Add(c.l1.put(e, now))

	if c.l2 != nil && !opts.L1Only {
		if err := c.l2.set(ctx, e); err != nil {
			c.logger.Warn("cache tier-2 write failed", "key", key, "error", err)
		}
	}
}

// Delete removes key from both tiers. Returns true if either tier held it.
func (c *TwoTier) Delete(ctx context.Context, key string) bool {
	removed := c.l1.delete(key)

	if c.l2 != nil {
		ok, err := c.l2.delete(ctx, key)
		if err != nil {
			c.logger.Warn("cache tier-2 delete failed", "key", key, "error", err)
		}
		removed = removed || ok
	}

	return removed
}

// Has reports whether key resides, unexpired, in either tier.
func (c *TwoTier) Has(ctx context.Context, key string) bool {
	now := time.Now()

	if c.l1.has(key, now) {
		return true
	}
	if c.l2 == nil {
		return false
	}

	ok, err := c.l2.has(ctx, key, now)
	if err != nil {
		c.logger.Warn("cache tier-2 lookup failed", "key", key, "error", err)
		return false
	}
	return ok
}

// Clear empties both tiers.
func (c *TwoTier) Clear(ctx context.Context) {
	c.l1.clear()

	if c.l2 != nil {
		if err := c.l2.clear(ctx); err != nil {
			c.logger.Warn("cache tier-2 clear failed", "error", err)
		}
	}
}

// InvalidateByTags removes every entry (both tiers) whose tag set
// intersects tags, returning the number of distinct keys removed.
// Used for coarse invalidation, e.g. conversation deletion.
func (c *TwoTier) InvalidateByTags(ctx context.Context, tags []string) int {
	removed := make(map[string]struct{})

	for _, key := range c.l1.deleteByTags(tags) {
		removed[key] = struct{}{}
	}

	if c.l2 != nil {
		keys, err := c.l2.deleteByTags(ctx, tags)
		if err != nil {
			c.logger.Warn("cache tier-2 tag invalidation failed", "tags", tags, "error", err)
		}
		for _, key := range keys {
			removed[key] = struct{}{}
		}
	}

	return len(removed)
}

// Stats returns a snapshot of the cache counters.
func (c *TwoTier) Stats() Stats {
	entries, bytes := c.l1.size()
	return Stats{
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		Evictions:       c.evictions.Load(),
		ResidentEntries: entries,
		ResidentBytes:   bytes,
	}
}

// Close releases the persistent tier (database handle and file lock).
func (c *TwoTier) Close() error {
	if c.l2 == nil {
		return nil
	}
	return c.l2.close()
}
