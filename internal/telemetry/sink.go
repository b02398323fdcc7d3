package telemetry

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// Op names one tracked pipeline operation.
type Op string

const (
	OpDataFetch  Op = "data_fetch"
	OpChartGen   Op = "chart_generation"
	OpLLMAnalyze Op = "llm_analysis"
	OpReportGen  Op = "report_generation"
)

// Cache bucket labels used for hit/miss accounting.
const (
	BucketData     = "data"
	BucketChart    = "chart"
	BucketAnalysis = "analysis"
)

// opBucket maps cacheable operations to their cache bucket.
var opBucket = map[Op]string{
	OpDataFetch:  BucketData,
	OpChartGen:   BucketChart,
	OpLLMAnalyze: BucketAnalysis,
}

// ringCapacity bounds each per-op record buffer.
const ringCapacity = 1000

// reportWindow is the aggregation window used by Report.
const reportWindow = 60 * time.Minute

// Record is one completed operation.
type Record struct {
	Op         Op                `json:"op"`
	DurationMS float64           `json:"duration_ms"`
	CacheHit   bool              `json:"cache_hit"`
	WallTime   time.Time         `json:"wall_time"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ring is a fixed-capacity overwrite-oldest buffer.
type ring struct {
	records []Record
	maxSize int
	current int
	full    bool
}

func newRing(maxSize int) *ring {
	return &ring{
		records: make([]Record, maxSize),
		maxSize: maxSize,
	}
}

func (r *ring) add(rec Record) {
	r.records[r.current] = rec
	r.current = (r.current + 1) % r.maxSize
	if r.current == 0 {
		r.full = true
	}
}

func (r *ring) snapshot() []Record {
	if r.full {
		out := make([]Record, 0, r.maxSize)
		out = append(out, r.records[r.current:]...)
		out = append(out, r.records[:r.current]...)
		return out
	}
	out := make([]Record, r.current)
	copy(out, r.records[:r.current])
	return out
}

func (r *ring) reset() {
	r.current = 0
	r.full = false
}

type hitMiss struct {
	hits   int64
	misses int64
}

// SessionStats are the rolling totals for the process session.
type SessionStats struct {
	TotalRequests      int64     `json:"total_requests"`
	SuccessfulRequests int64     `json:"successful_requests"`
	FailedRequests     int64     `json:"failed_requests"`
	AvgResponseMS      float64   `json:"avg_response_ms"`
	SessionStart       time.Time `json:"session_start"`
}

// OpStats aggregates one operation's records over a time window.
type OpStats struct {
	Count        int     `json:"count"`
	AvgMS        float64 `json:"avg_ms"`
	MinMS        float64 `json:"min_ms"`
	MaxMS        float64 `json:"max_ms"`
	P50MS        float64 `json:"p50_ms"`
	P95MS        float64 `json:"p95_ms"`
	P99MS        float64 `json:"p99_ms"`
	CacheHitRate float64 `json:"cache_hit_rate"`
}

// Observer receives a copy of each tracked event, outside the sink lock.
// The Prometheus registry implements this.
type Observer interface {
	ObserveOperation(op string, durationMS float64, cacheHit bool)
	ObserveRequest(success bool, totalMS float64)
}

// Sink records per-operation timings, cache outcomes, and session rollups.
// One instance per process, shared by reference.
type Sink struct {
	mu       sync.Mutex
	rings    map[Op]*ring
	buckets  map[string]*hitMiss
	session  SessionStats
	observer Observer
	now      func() time.Time
}

// NewSink creates an empty sink with the session clock started.
func NewSink() *Sink {
	s := &Sink{
		rings:   make(map[Op]*ring),
		buckets: make(map[string]*hitMiss),
		now:     time.Now,
	}
	s.session.SessionStart = s.now()
	return s
}

// SetObserver installs a mirror for tracked events. Call before use; not
// synchronized against concurrent tracking.
func (s *Sink) SetObserver(obs Observer) {
	s.observer = obs
}

// TrackOperation appends a record to the op's ring buffer and, for cacheable
// operations, bumps the bucket hit or miss counter.
func (s *Sink) TrackOperation(op Op, durationMS float64, cacheHit bool, metadata map[string]string) {
	s.mu.Lock()
	r, ok := s.rings[op]
	if !ok {
		r = newRing(ringCapacity)
		s.rings[op] = r
	}
	r.add(Record{
		Op:         op,
		DurationMS: durationMS,
		CacheHit:   cacheHit,
		WallTime:   s.now(),
		Metadata:   metadata,
	})
	if bucket, cacheable := opBucket[op]; cacheable {
		hm, ok := s.buckets[bucket]
		if !ok {
			hm = &hitMiss{}
			s.buckets[bucket] = hm
		}
		if cacheHit {
			hm.hits++
		} else {
			hm.misses++
		}
	}
	obs := s.observer
	s.mu.Unlock()

	if obs != nil {
		obs.ObserveOperation(string(op), durationMS, cacheHit)
	}
}

// TrackRequest updates session totals. AvgResponseMS is a weighted running
// mean over every request seen this session.
func (s *Sink) TrackRequest(success bool, totalMS float64) {
	s.mu.Lock()
	s.session.TotalRequests++
	if success {
		s.session.SuccessfulRequests++
	} else {
		s.session.FailedRequests++
	}
	n := float64(s.session.TotalRequests)
	s.session.AvgResponseMS = (s.session.AvgResponseMS*(n-1) + totalMS) / n
	obs := s.observer
	s.mu.Unlock()

	if obs != nil {
		obs.ObserveRequest(success, totalMS)
	}
}

// OpStats aggregates the op's records newer than now-window.
func (s *Sink) OpStats(op Op, window time.Duration) OpStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rings[op]
	if !ok {
		return OpStats{}
	}
	cutoff := s.now().Add(-window)

	var stats OpStats
	var hits int
	var durations []float64
	for _, rec := range r.snapshot() {
		if rec.WallTime.Before(cutoff) {
			continue
		}
		if stats.Count == 0 || rec.DurationMS < stats.MinMS {
			stats.MinMS = rec.DurationMS
		}
		if rec.DurationMS > stats.MaxMS {
			stats.MaxMS = rec.DurationMS
		}
		stats.AvgMS += rec.DurationMS
		durations = append(durations, rec.DurationMS)
		if rec.CacheHit {
			hits++
		}
		stats.Count++
	}
	if stats.Count > 0 {
		stats.AvgMS /= float64(stats.Count)
		stats.CacheHitRate = float64(hits) / float64(stats.Count) * 100
		sort.Float64s(durations)
		stats.P50MS = percentile(durations, 0.50)
		stats.P95MS = percentile(durations, 0.95)
		stats.P99MS = percentile(durations, 0.99)
	}
	return stats
}

// percentile interpolates linearly between the two samples straddling the
// requested rank. values must be sorted ascending and non-empty.
func percentile(values []float64, p float64) float64 {
	index := p * float64(len(values)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return values[lower]
	}
	weight := index - float64(lower)
	return values[lower]*(1-weight) + values[upper]*weight
}

// CacheHitRates returns the hit percentage per cache bucket.
func (s *Sink) CacheHitRates() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]float64, len(s.buckets))
	for bucket, hm := range s.buckets {
		total := hm.hits + hm.misses
		if total == 0 {
			out[bucket] = 0
			continue
		}
		out[bucket] = float64(hm.hits) / float64(total) * 100
	}
	return out
}

// Session returns a copy of the session totals.
func (s *Sink) Session() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Reset clears every ring and counter and restarts the session clock.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rings {
		r.reset()
	}
	s.buckets = make(map[string]*hitMiss)
	s.session = SessionStats{SessionStart: s.now()}
}

// Report renders the per-op latency and hit-rate rollup for operators.
func (s *Sink) Report() string {
	session := s.Session()
	rates := s.CacheHitRates()

	var b strings.Builder
	uptime := s.nowSafe().Sub(session.SessionStart).Round(time.Second)
	fmt.Fprintf(&b, "Performance Report (session up %s)\n", uptime)
	fmt.Fprintf(&b, "Requests: %d total, %d ok, %d failed, avg %.1fms\n",
		session.TotalRequests, session.SuccessfulRequests, session.FailedRequests,
		session.AvgResponseMS)

	bucketNames := make([]string, 0, len(rates))
	for bucket := range rates {
		bucketNames = append(bucketNames, bucket)
	}
	sort.Strings(bucketNames)
	if len(bucketNames) > 0 {
		parts := make([]string, 0, len(bucketNames))
		for _, bucket := range bucketNames {
			parts = append(parts, fmt.Sprintf("%s %.1f%%", bucket, rates[bucket]))
		}
		fmt.Fprintf(&b, "Cache hit rates: %s\n", strings.Join(parts, " | "))
	}

	for _, op := range []Op{OpDataFetch, OpChartGen, OpLLMAnalyze, OpReportGen} {
		stats := s.OpStats(op, reportWindow)
		if stats.Count == 0 {
			continue
		}
		fmt.Fprintf(&b, "%-18s n=%-5d avg=%.1fms min=%.1fms p95=%.1fms max=%.1fms hits=%.1f%%\n",
			op, stats.Count, stats.AvgMS, stats.MinMS, stats.P95MS, stats.MaxMS, stats.CacheHitRate)
	}
	return b.String()
}

func (s *Sink) nowSafe() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now()
}
