package cache

import (
	"sort"
	"time"
)

// evictionSlack is how far below the cap an LRU eviction drains the memory
// tier, so back-to-back sets do not thrash the eviction path.
const evictionSlack = 100

type memoryEntry struct {
	value    interface{}
	bucket   Bucket
	created  time.Time
	accessed time.Time
	ttl      time.Duration
}

func (e *memoryEntry) expired(now time.Time) bool {
	return now.Sub(e.created) > e.ttl
}

// memoryStore is the hot tier: a bounded map with per-entry TTLs and
// batched least-recently-accessed eviction. It is not safe for concurrent
// use on its own; TieredCache serializes access through its lock.
type memoryStore struct {
	entries    map[string]*memoryEntry
	maxEntries int
}

func newMemoryStore(maxEntries int) *memoryStore {
	return &memoryStore{
		entries:    make(map[string]*memoryEntry),
		maxEntries: maxEntries,
	}
}

// get returns the live value for key, refreshing its access time. Expired
// entries are deleted in place and reported as a miss.
func (m *memoryStore) get(key string, now time.Time) (interface{}, bool) {
	entry, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if entry.expired(now) {
		delete(m.entries, key)
		return nil, false
	}
	entry.accessed = now
	return entry.value, true
}

// set inserts or replaces key. When the tier grows past its cap the oldest
// accessed entries are evicted in one batch.
func (m *memoryStore) set(key string, bucket Bucket, value interface{}, ttl time.Duration, now time.Time) {
	m.entries[key] = &memoryEntry{
		value:    value,
		bucket:   bucket,
		created:  now,
		accessed: now,
		ttl:      ttl,
	}
	if m.maxEntries > 0 && len(m.entries) > m.maxEntries {
		m.evictLRU()
	}
}

func (m *memoryStore) evictLRU() {
	type aged struct {
		key      string
		accessed time.Time
	}
	order := make([]aged, 0, len(m.entries))
	for key, entry := range m.entries {
		order = append(order, aged{key: key, accessed: entry.accessed})
	}
	sort.Slice(order, func(i, j int) bool {
		return order[i].accessed.Before(order[j].accessed)
	})

	drop := len(m.entries) - m.maxEntries + evictionSlack
	if drop > len(order) {
		drop = len(order)
	}
	for _, victim := range order[:drop] {
		delete(m.entries, victim.key)
	}
}

// removeExpired drops every dead entry in one bucket and reports the count.
func (m *memoryStore) removeExpired(bucket Bucket, now time.Time) int {
	removed := 0
	for key, entry := range m.entries {
		if entry.bucket == bucket && entry.expired(now) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

func (m *memoryStore) size() int { return len(m.entries) }

func (m *memoryStore) clear() int {
	n := len(m.entries)
	m.entries = make(map[string]*memoryEntry)
	return n
}
