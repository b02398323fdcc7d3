package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	base := time.Now()

	t.Run("read_your_writes", func(t *testing.T) {
		m := newMemoryStore(10)
		m.set("k1", BucketData, "v1", time.Minute, base)

		v, ok := m.get("k1", base)
		require.True(t, ok)
		assert.Equal(t, "v1", v)
	})

	t.Run("expired_entry_misses_and_is_removed", func(t *testing.T) {
		m := newMemoryStore(10)
		m.set("k1", BucketData, "v1", time.Minute, base)

		_, ok := m.get("k1", base.Add(2*time.Minute))
		assert.False(t, ok)
		assert.Zero(t, m.size())
	})

	t.Run("at_ttl_boundary_still_live", func(t *testing.T) {
		m := newMemoryStore(10)
		m.set("k1", BucketData, "v1", time.Minute, base)

		_, ok := m.get("k1", base.Add(time.Minute))
		assert.True(t, ok)
	})

	t.Run("set_is_idempotent", func(t *testing.T) {
		m := newMemoryStore(10)
		m.set("k1", BucketData, "v1", time.Minute, base)
		m.set("k1", BucketData, "v2", time.Minute, base.Add(time.Second))

		assert.Equal(t, 1, m.size())
		v, _ := m.get("k1", base.Add(2*time.Second))
		assert.Equal(t, "v2", v)
	})

	t.Run("remove_expired_is_bucket_scoped", func(t *testing.T) {
		m := newMemoryStore(10)
		m.set("d1", BucketData, "v", time.Minute, base)
		m.set("c1", BucketChart, "v", time.Hour, base)

		removed := m.removeExpired(BucketData, base.Add(5*time.Minute))
		assert.Equal(t, 1, removed)
		assert.Equal(t, 0, m.removeExpired(BucketChart, base.Add(5*time.Minute)))
		assert.Equal(t, 1, m.size())
	})
}

func TestMemoryStoreEviction(t *testing.T) {
	const capacity = 1000
	base := time.Now()

	m := newMemoryStore(capacity)
	for i := 0; i < capacity; i++ {
		m.set(fmt.Sprintf("k%d", i), BucketData, i, time.Hour, base.Add(time.Duration(i)*time.Millisecond))
	}
	require.Equal(t, capacity, m.size())

	// One set past the cap drains a batch of the oldest-accessed entries.
	overflow := base.Add(time.Duration(capacity) * time.Millisecond)
	m.set("overflow", BucketData, "v", time.Hour, overflow)

	assert.Equal(t, capacity-evictionSlack, m.size())
	assert.LessOrEqual(t, m.size(), capacity)

	probe := overflow.Add(time.Second)
	_, ok := m.get("k0", probe)
	assert.False(t, ok, "oldest entry should be evicted first")
	_, ok = m.get("k100", probe)
	assert.False(t, ok)
	_, ok = m.get("k101", probe)
	assert.True(t, ok, "entries after the eviction batch survive")
	_, ok = m.get("overflow", probe)
	assert.True(t, ok, "the entry that triggered eviction survives")
}

func TestMemoryStoreEvictionFavorsRecentlyRead(t *testing.T) {
	const capacity = 1000
	base := time.Now()

	m := newMemoryStore(capacity)
	for i := 0; i < capacity; i++ {
		m.set(fmt.Sprintf("k%d", i), BucketData, i, time.Hour, base.Add(time.Duration(i)*time.Millisecond))
	}

	// Reading k0 refreshes its access time past every other entry.
	touch := base.Add(time.Duration(capacity+1) * time.Millisecond)
	_, ok := m.get("k0", touch)
	require.True(t, ok)

	m.set("overflow", BucketData, "v", time.Hour, touch.Add(time.Millisecond))

	probe := touch.Add(time.Second)
	_, ok = m.get("k0", probe)
	assert.True(t, ok, "recently read entry should outlive older ones")
	_, ok = m.get("k1", probe)
	assert.False(t, ok)
}
