package cache

import (
	"slices"
	"sync"
	"time"
)

// l1Cache is the in-process tier: a map of entries evicted in
// least-recently-used order. Recency is a global monotonic counter
// bumped on every access, not wall-clock time, so two accesses in the
// same nanosecond still have a total order.
type l1Cache struct {
	mu         sync.Mutex
	entries    map[string]*l1Entry
	maxEntries int
	maxBytes   int64
	totalBytes int64
	tick       uint64
}

type l1Entry struct {
	entry    Entry
	lastTick uint64
}

func newL1Cache(maxEntries int, maxBytes int64) *l1Cache {
	return &l1Cache{
		entries:    make(map[string]*l1Entry),
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
	}
}

// get returns the entry for key, bumping its recency.
// An expired entry is purged and reported as a miss.
func (l *l1Cache) get(key string, now time.Time) (*Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	le, ok := l.entries[key]
	if !ok {
		return nil, false
	}
	if le.entry.expired(now) {
		l.remove(key, le)
		return nil, false
	}

	l.tick++
	le.lastTick = l.tick
	le.entry.LastAccessed = now
	le.entry.AccessCount++

	e := le.entry
	return &e, true
}

// put inserts or replaces an entry, then evicts least-recently-used
// entries until the count and byte limits hold again. Returns the number
// of entries evicted (not counting the replacement itself).
func (l *l1Cache) put(e Entry, now time.Time) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if old, ok := l.entries[e.Key]; ok {
		l.totalBytes -= old.entry.Size
	}

	l.tick++
	l.entries[e.Key] = &l1Entry{entry: e, lastTick: l.tick}
	l.totalBytes += e.Size

	var evicted int64
	for (l.maxEntries > 0 && len(l.entries) > l.maxEntries) ||
		(l.maxBytes > 0 && l.totalBytes > l.maxBytes) {
		key, le := l.oldest(e.Key)
		if le == nil {
			// Only the fresh entry remains; an oversized single value
			// stays resident rather than thrashing.
			break
		}
		l.remove(key, le)
		evicted++
	}

	return evicted
}

// oldest returns the least-recently-used entry, skipping skipKey.
func (l *l1Cache) oldest(skipKey string) (string, *l1Entry) {
	var (
		oldestKey string
		oldest    *l1Entry
	)
	for key, le := range l.entries {
		if key == skipKey {
			continue
		}
		if oldest == nil || le.lastTick < oldest.lastTick {
			oldestKey, oldest = key, le
		}
	}
	return oldestKey, oldest
}

func (l *l1Cache) has(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	le, ok := l.entries[key]
	if !ok {
		return false
	}
	if le.entry.expired(now) {
		l.remove(key, le)
		return false
	}
	return true
}

func (l *l1Cache) delete(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	le, ok := l.entries[key]
	if !ok {
		return false
	}
	l.remove(key, le)
	return true
}

// deleteByTags removes every entry whose tag set intersects tags and
// returns the removed keys.
func (l *l1Cache) deleteByTags(tags []string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var removed []string
	for key, le := range l.entries {
		if intersects(le.entry.Tags, tags) {
			l.remove(key, le)
			removed = append(removed, key)
		}
	}
	return removed
}

func (l *l1Cache) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = make(map[string]*l1Entry)
	l.totalBytes = 0
}

func (l *l1Cache) size() (int, int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries), l.totalBytes
}

// remove deletes an entry; callers must hold l.mu.
func (l *l1Cache) remove(key string, le *l1Entry) {
	l.totalBytes -= le.entry.Size
	delete(l.entries, key)
}

func intersects(a, b []string) bool {
	for _, tag := range a {
		if slices.Contains(b, tag) {
			return true
		}
	}
	return false
}
