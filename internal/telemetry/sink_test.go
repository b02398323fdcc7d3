package telemetry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackOperation(t *testing.T) {
	t.Run("aggregates_count_avg_min_max", func(t *testing.T) {
		s := NewSink()
		s.TrackOperation(OpDataFetch, 100, false, nil)
		s.TrackOperation(OpDataFetch, 200, false, nil)
		s.TrackOperation(OpDataFetch, 300, true, nil)

		stats := s.OpStats(OpDataFetch, time.Hour)
		assert.Equal(t, 3, stats.Count)
		assert.InDelta(t, 200.0, stats.AvgMS, 0.001)
		assert.InDelta(t, 100.0, stats.MinMS, 0.001)
		assert.InDelta(t, 300.0, stats.MaxMS, 0.001)
		assert.InDelta(t, 100.0/3.0, stats.CacheHitRate, 0.001)
	})

	t.Run("unknown_op_returns_zero_stats", func(t *testing.T) {
		s := NewSink()
		assert.Equal(t, OpStats{}, s.OpStats(OpChartGen, time.Hour))
	})

	t.Run("ring_buffer_bounded_at_capacity", func(t *testing.T) {
		s := NewSink()
		for i := 0; i < ringCapacity+50; i++ {
			s.TrackOperation(OpLLMAnalyze, float64(i), false, nil)
		}
		stats := s.OpStats(OpLLMAnalyze, time.Hour)
		assert.Equal(t, ringCapacity, stats.Count)
		// The 50 oldest records were overwritten.
		assert.InDelta(t, 50.0, stats.MinMS, 0.001)
		assert.InDelta(t, float64(ringCapacity+49), stats.MaxMS, 0.001)
	})

	t.Run("percentiles_interpolate_between_samples", func(t *testing.T) {
		s := NewSink()
		for i := 1; i <= 100; i++ {
			s.TrackOperation(OpChartGen, float64(i*10), false, nil)
		}

		stats := s.OpStats(OpChartGen, time.Hour)
		assert.InDelta(t, 505.0, stats.P50MS, 0.001)
		assert.InDelta(t, 950.5, stats.P95MS, 0.001)
		assert.InDelta(t, 990.1, stats.P99MS, 0.001)
	})

	t.Run("single_sample_percentiles_collapse", func(t *testing.T) {
		s := NewSink()
		s.TrackOperation(OpDataFetch, 42, false, nil)

		stats := s.OpStats(OpDataFetch, time.Hour)
		assert.InDelta(t, 42.0, stats.P50MS, 0.001)
		assert.InDelta(t, 42.0, stats.P99MS, 0.001)
	})

	t.Run("window_excludes_old_records", func(t *testing.T) {
		s := NewSink()
		clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		s.now = func() time.Time { return clock }

		s.TrackOperation(OpDataFetch, 50, false, nil)
		clock = clock.Add(30 * time.Minute)
		s.TrackOperation(OpDataFetch, 150, true, nil)

		recent := s.OpStats(OpDataFetch, 10*time.Minute)
		assert.Equal(t, 1, recent.Count)
		assert.InDelta(t, 150.0, recent.AvgMS, 0.001)

		all := s.OpStats(OpDataFetch, time.Hour)
		assert.Equal(t, 2, all.Count)
	})

	t.Run("metadata_preserved_in_records", func(t *testing.T) {
		s := NewSink()
		s.TrackOperation(OpChartGen, 10, false, map[string]string{"ticker": "AAPL"})
		recs := s.rings[OpChartGen].snapshot()
		require.Len(t, recs, 1)
		assert.Equal(t, "AAPL", recs[0].Metadata["ticker"])
	})
}

func TestCacheHitRates(t *testing.T) {
	t.Run("rates_per_bucket", func(t *testing.T) {
		s := NewSink()
		s.TrackOperation(OpDataFetch, 1, true, nil)
		s.TrackOperation(OpDataFetch, 1, true, nil)
		s.TrackOperation(OpDataFetch, 1, false, nil)
		s.TrackOperation(OpChartGen, 1, true, nil)
		s.TrackOperation(OpLLMAnalyze, 1, false, nil)

		rates := s.CacheHitRates()
		assert.InDelta(t, 200.0/3.0, rates[BucketData], 0.001)
		assert.InDelta(t, 100.0, rates[BucketChart], 0.001)
		assert.InDelta(t, 0.0, rates[BucketAnalysis], 0.001)
	})

	t.Run("report_generation_not_counted_as_bucket", func(t *testing.T) {
		s := NewSink()
		s.TrackOperation(OpReportGen, 1, false, nil)
		assert.Empty(t, s.CacheHitRates())
	})
}

func TestTrackRequest(t *testing.T) {
	t.Run("totals_balance", func(t *testing.T) {
		s := NewSink()
		s.TrackRequest(true, 100)
		s.TrackRequest(true, 200)
		s.TrackRequest(false, 600)

		session := s.Session()
		assert.Equal(t, int64(3), session.TotalRequests)
		assert.Equal(t, int64(2), session.SuccessfulRequests)
		assert.Equal(t, int64(1), session.FailedRequests)
		assert.Equal(t, session.TotalRequests,
			session.SuccessfulRequests+session.FailedRequests)
	})

	t.Run("weighted_running_mean", func(t *testing.T) {
		s := NewSink()
		s.TrackRequest(true, 100)
		s.TrackRequest(true, 200)
		s.TrackRequest(false, 600)
		assert.InDelta(t, 300.0, s.Session().AvgResponseMS, 0.001)
	})

	t.Run("concurrent_updates_are_consistent", func(t *testing.T) {
		s := NewSink()
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				s.TrackRequest(i%2 == 0, float64(i))
				s.TrackOperation(OpDataFetch, float64(i), i%3 == 0, nil)
			}(i)
		}
		wg.Wait()

		session := s.Session()
		assert.Equal(t, int64(100), session.TotalRequests)
		assert.Equal(t, session.TotalRequests,
			session.SuccessfulRequests+session.FailedRequests)
		assert.Equal(t, 100, s.OpStats(OpDataFetch, time.Hour).Count)
	})
}

func TestReset(t *testing.T) {
	s := NewSink()
	s.TrackOperation(OpDataFetch, 10, true, nil)
	s.TrackRequest(true, 10)

	s.Reset()

	assert.Equal(t, 0, s.OpStats(OpDataFetch, time.Hour).Count)
	assert.Empty(t, s.CacheHitRates())
	session := s.Session()
	assert.Equal(t, int64(0), session.TotalRequests)
	assert.InDelta(t, 0.0, session.AvgResponseMS, 0.001)
}

func TestReport(t *testing.T) {
	s := NewSink()
	s.TrackRequest(true, 120)
	s.TrackOperation(OpDataFetch, 80, true, nil)
	s.TrackOperation(OpChartGen, 400, false, nil)
	s.TrackOperation(OpReportGen, 500, false, nil)

	report := s.Report()
	assert.Contains(t, report, "Requests: 1 total, 1 ok, 0 failed")
	assert.Contains(t, report, "data_fetch")
	assert.Contains(t, report, "chart_generation")
	assert.Contains(t, report, "report_generation")
	assert.Contains(t, report, "Cache hit rates:")
}

type captureObserver struct {
	mu   sync.Mutex
	ops  []string
	reqs []bool
}

func (c *captureObserver) ObserveOperation(op string, durationMS float64, cacheHit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = append(c.ops, fmt.Sprintf("%s:%v", op, cacheHit))
}

func (c *captureObserver) ObserveRequest(success bool, totalMS float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqs = append(c.reqs, success)
}

func TestObserverMirroring(t *testing.T) {
	s := NewSink()
	obs := &captureObserver{}
	s.SetObserver(obs)

	s.TrackOperation(OpDataFetch, 10, true, nil)
	s.TrackRequest(false, 10)

	assert.Equal(t, []string{"data_fetch:true"}, obs.ops)
	assert.Equal(t, []bool{false}, obs.reqs)
}
