package cache

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/chartpulse/internal/config"
	"github.com/sawpanic/chartpulse/internal/market"
)

// BlobStore is the cold tier behind the in-memory map. The disk store is the
// default; a redis store can be swapped in for shared deployments.
type BlobStore interface {
	Get(bucket Bucket, key string, ttl time.Duration) ([]byte, bool)
	Set(bucket Bucket, key string, payload []byte, ttl time.Duration) error
	Delete(bucket Bucket, key string)
	SweepExpired(bucket Bucket, ttl time.Duration) int
	EnforceSizeCap(maxBytes int64) int
	Stats() BlobStats
	ClearAll() int
	Close() error
}

// BlobStats is the cold tier usage snapshot.
type BlobStats struct {
	Files     int
	SizeBytes int64
}

// MemoryStats is the hot tier usage snapshot.
type MemoryStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	UsedPct    float64 `json:"used_pct"`
}

// BlobUsage is BlobStats converted for reporting.
type BlobUsage struct {
	Files     int     `json:"files"`
	SizeMB    float64 `json:"size_mb"`
	MaxSizeMB int     `json:"max_size_mb"`
}

// Stats aggregates both tiers for the operator surface.
type Stats struct {
	Enabled    bool           `json:"enabled"`
	Backend    string         `json:"backend"`
	Memory     MemoryStats    `json:"memory"`
	Blob       BlobUsage      `json:"blob"`
	TTLSeconds map[string]int `json:"ttl_seconds"`
}

// TieredCache fronts a blob store with a bounded in-memory map. Reads go
// memory first, then the blob store with promotion back into memory; writes
// land in memory synchronously and stream to the blob store in the
// background. One lock guards the memory tier, blob I/O happens outside it.
type TieredCache struct {
	mu     sync.Mutex
	mem    *memoryStore
	blobs  BlobStore
	ttls   map[Bucket]time.Duration
	cfg    *config.CacheConfig
	stopCh chan struct{}
	stop   sync.Once
	writes sync.WaitGroup
	now    func() time.Time
}

// New builds the cache described by cfg and starts its sweeper. A disabled
// config yields an inert cache whose operations all miss.
func New(cfg *config.CacheConfig) (*TieredCache, error) {
	c := &TieredCache{
		cfg:    cfg,
		stopCh: make(chan struct{}),
		now:    time.Now,
	}
	if !cfg.Enabled {
		return c, nil
	}

	switch cfg.Backend {
	case config.CacheBackendRedis:
		c.blobs = newRedisStore(cfg.Redis.Addr, cfg.Redis.DB)
	default:
		store, err := newDiskStore(cfg.StoragePath)
		if err != nil {
			return nil, err
		}
		c.blobs = store
	}

	c.mem = newMemoryStore(cfg.MaxMemoryEntries)
	c.ttls = map[Bucket]time.Duration{
		BucketData:     cfg.DataTTL(),
		BucketChart:    cfg.ChartTTL(),
		BucketAnalysis: cfg.AnalysisTTL(),
	}
	go c.sweepLoop()
	return c, nil
}

func (c *TieredCache) enabled() bool { return c.cfg != nil && c.cfg.Enabled }

// Enabled reports whether the cache is active.
func (c *TieredCache) Enabled() bool { return c.enabled() }

// GetData returns the cached OHLCV series for ticker and interval.
func (c *TieredCache) GetData(ticker string, interval market.Interval) (market.Series, bool) {
	v, ok := c.get(BucketData, DataKey(ticker, string(interval)), decodeSeries)
	if !ok {
		return market.Series{}, false
	}
	return v.(market.Series), true
}

// SetData caches a fetched series. Empty series are never cached so a failed
// fetch cannot mask a later good one.
func (c *TieredCache) SetData(ticker string, interval market.Interval, series market.Series) {
	if series.Empty() {
		return
	}
	c.set(BucketData, DataKey(ticker, string(interval)), series, encodeSeries)
}

// GetChart returns cached chart image bytes for a dataset fingerprint.
func (c *TieredCache) GetChart(ticker string, interval market.Interval, fingerprint string) ([]byte, bool) {
	v, ok := c.get(BucketChart, ChartKey(ticker, string(interval), fingerprint), decodeBytes)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// SetChart caches rendered chart bytes.
func (c *TieredCache) SetChart(ticker string, interval market.Interval, fingerprint string, png []byte) {
	if len(png) == 0 {
		return
	}
	c.set(BucketChart, ChartKey(ticker, string(interval), fingerprint), png, encodeBytes)
}

// GetAnalysis returns cached analysis text for a dataset fingerprint. The
// key carries no interval: the fingerprint already identifies the data.
func (c *TieredCache) GetAnalysis(ticker, fingerprint string) (string, bool) {
	v, ok := c.get(BucketAnalysis, AnalysisKey(ticker, fingerprint), decodeText)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// SetAnalysis caches analysis text.
func (c *TieredCache) SetAnalysis(ticker, fingerprint, text string) {
	if text == "" {
		return
	}
	c.set(BucketAnalysis, AnalysisKey(ticker, fingerprint), text, encodeText)
}

func (c *TieredCache) get(bucket Bucket, key string, decode func([]byte) (interface{}, error)) (interface{}, bool) {
	if !c.enabled() {
		return nil, false
	}

	c.mu.Lock()
	if v, ok := c.mem.get(key, c.now()); ok {
		c.mu.Unlock()
		return v, true
	}
	c.mu.Unlock()

	payload, ok := c.blobs.Get(bucket, key, c.ttls[bucket])
	if !ok {
		return nil, false
	}
	v, err := decode(payload)
	if err != nil {
		log.Warn().Err(err).Str("bucket", string(bucket)).Str("key", key).
			Msg("Dropping corrupt cache blob")
		c.blobs.Delete(bucket, key)
		return nil, false
	}

	c.mu.Lock()
	c.mem.set(key, bucket, v, c.ttls[bucket], c.now())
	c.mu.Unlock()
	return v, true
}

func (c *TieredCache) set(bucket Bucket, key string, v interface{}, encode func(interface{}) ([]byte, error)) {
	if !c.enabled() {
		return
	}

	c.mu.Lock()
	c.mem.set(key, bucket, v, c.ttls[bucket], c.now())
	c.mu.Unlock()

	c.writes.Add(1)
	go func() {
		defer c.writes.Done()
		payload, err := encode(v)
		if err != nil {
			log.Warn().Err(err).Str("bucket", string(bucket)).Str("key", key).
				Msg("Cache blob encode failed")
			return
		}
		if err := c.blobs.Set(bucket, key, payload, c.ttls[bucket]); err != nil {
			log.Debug().Err(err).Str("bucket", string(bucket)).Str("key", key).
				Msg("Cache blob write failed")
		}
	}()
}

// ClearExpired removes dead entries from both tiers, locking the memory map
// once per bucket so long sweeps never stall readers.
func (c *TieredCache) ClearExpired() int {
	if !c.enabled() {
		return 0
	}
	removed := 0
	for _, b := range buckets {
		c.mu.Lock()
		removed += c.mem.removeExpired(b, c.now())
		c.mu.Unlock()
		removed += c.blobs.SweepExpired(b, c.ttls[b])
	}
	return removed
}

// ClearAll drops everything from both tiers and reports the entry count.
func (c *TieredCache) ClearAll() int {
	if !c.enabled() {
		return 0
	}
	c.writes.Wait()

	c.mu.Lock()
	removed := c.mem.clear()
	c.mu.Unlock()
	return removed + c.blobs.ClearAll()
}

// Stats reports usage across both tiers.
func (c *TieredCache) Stats() Stats {
	stats := Stats{Backend: config.CacheBackendDisk}
	if c.cfg != nil {
		stats.Backend = c.cfg.Backend
	}
	if !c.enabled() {
		return stats
	}
	stats.Enabled = true

	c.mu.Lock()
	stats.Memory = MemoryStats{
		Entries:    c.mem.size(),
		MaxEntries: c.cfg.MaxMemoryEntries,
	}
	c.mu.Unlock()
	if stats.Memory.MaxEntries > 0 {
		stats.Memory.UsedPct = 100 * float64(stats.Memory.Entries) / float64(stats.Memory.MaxEntries)
	}

	blob := c.blobs.Stats()
	stats.Blob = BlobUsage{
		Files:     blob.Files,
		SizeMB:    float64(blob.SizeBytes) / (1024 * 1024),
		MaxSizeMB: c.cfg.MaxDiskSizeMB,
	}
	stats.TTLSeconds = map[string]int{
		string(BucketData):     c.cfg.DataTTLSeconds,
		string(BucketChart):    c.cfg.ChartTTLSeconds,
		string(BucketAnalysis): c.cfg.AnalysisTTLSeconds,
	}
	return stats
}

// Close stops the sweeper, drains pending blob writes and releases the
// backing store.
func (c *TieredCache) Close() error {
	c.stop.Do(func() { close(c.stopCh) })
	c.writes.Wait()
	if c.blobs == nil {
		return nil
	}
	return c.blobs.Close()
}

func (c *TieredCache) sweepLoop() {
	ticker := time.NewTicker(c.cfg.CleanupInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			removed := c.ClearExpired()
			freed := c.blobs.EnforceSizeCap(int64(c.cfg.MaxDiskSizeMB) * 1024 * 1024)
			if removed > 0 || freed > 0 {
				log.Debug().Int("expired", removed).Int("size_capped", freed).
					Msg("Cache sweep complete")
			}
		case <-c.stopCh:
			return
		}
	}
}

func encodeSeries(v interface{}) ([]byte, error) { return json.Marshal(v.(market.Series)) }

func decodeSeries(payload []byte) (interface{}, error) {
	var s market.Series
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, err
	}
	return s, nil
}

func encodeBytes(v interface{}) ([]byte, error) { return v.([]byte), nil }

func decodeBytes(payload []byte) (interface{}, error) { return payload, nil }

func encodeText(v interface{}) ([]byte, error) { return []byte(v.(string)), nil }

func decodeText(payload []byte) (interface{}, error) { return string(payload), nil }
