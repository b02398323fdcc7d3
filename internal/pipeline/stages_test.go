package pipeline

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/chartpulse/internal/cache"
	"github.com/sawpanic/chartpulse/internal/config"
	"github.com/sawpanic/chartpulse/internal/errs"
	"github.com/sawpanic/chartpulse/internal/indicators"
	"github.com/sawpanic/chartpulse/internal/market"
	"github.com/sawpanic/chartpulse/internal/render"
	"github.com/sawpanic/chartpulse/internal/telemetry"
)

func newStageCache(t *testing.T) *cache.TieredCache {
	t.Helper()
	cfg := config.GetDefaultCacheConfig()
	cfg.StoragePath = t.TempDir()
	store, err := cache.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func stageSnapshot() indicators.Snapshot {
	return indicators.Snapshot{
		LatestClose: 104.5,
		PeriodHigh:  110,
		PeriodLow:   98,
		BBUpper:     108.42,
		BBMiddle:    104.1,
		BBLower:     99.78,
		StochK:      61,
		StochD:      math.NaN(),
	}
}

func chartReq(interval market.Interval) render.ChartRequest {
	return render.ChartRequest{
		DumpPath:   "/tmp/ohlcv.json",
		Ticker:     "AAPL",
		Interval:   interval,
		OutputPath: "/tmp/chart.png",
	}
}

func TestChartStage(t *testing.T) {
	ctx := context.Background()

	t.Run("miss_invokes_renderer_then_hit", func(t *testing.T) {
		renderer := &fakeRenderer{png: []byte("png-1")}
		sink := telemetry.NewSink()
		stage := NewChartStage(renderer, newStageCache(t), sink)

		png, err := stage.RunCached(ctx, chartReq(market.Interval1h), "fp-1")
		require.NoError(t, err)
		assert.Equal(t, []byte("png-1"), png)

		png, err = stage.RunCached(ctx, chartReq(market.Interval1h), "fp-1")
		require.NoError(t, err)
		assert.Equal(t, []byte("png-1"), png)
		assert.Equal(t, 1, renderer.calls)

		stats := sink.OpStats(telemetry.OpChartGen, time.Hour)
		assert.Equal(t, 2, stats.Count)
		assert.Equal(t, 50.0, stats.CacheHitRate)
	})

	t.Run("key_includes_interval", func(t *testing.T) {
		renderer := &fakeRenderer{png: []byte("png-1")}
		stage := NewChartStage(renderer, newStageCache(t), telemetry.NewSink())

		_, err := stage.RunCached(ctx, chartReq(market.Interval1h), "fp-1")
		require.NoError(t, err)
		_, err = stage.RunCached(ctx, chartReq(market.Interval4h), "fp-1")
		require.NoError(t, err)

		assert.Equal(t, 2, renderer.calls)
	})

	t.Run("key_includes_fingerprint", func(t *testing.T) {
		renderer := &fakeRenderer{png: []byte("png-1")}
		stage := NewChartStage(renderer, newStageCache(t), telemetry.NewSink())

		_, err := stage.RunCached(ctx, chartReq(market.Interval1h), "fp-1")
		require.NoError(t, err)
		_, err = stage.RunCached(ctx, chartReq(market.Interval1h), "fp-2")
		require.NoError(t, err)

		assert.Equal(t, 2, renderer.calls)
	})

	t.Run("failure_propagates_and_is_not_cached", func(t *testing.T) {
		renderer := &fakeRenderer{err: errs.New(errs.ChartRenderFailed, "chart_generation", "AAPL", "exit status 3")}
		sink := telemetry.NewSink()
		stage := NewChartStage(renderer, newStageCache(t), sink)

		_, err := stage.RunCached(ctx, chartReq(market.Interval1h), "fp-1")
		require.Error(t, err)
		assert.True(t, errs.IsKind(err, errs.ChartRenderFailed))

		_, err = stage.RunCached(ctx, chartReq(market.Interval1h), "fp-1")
		require.Error(t, err)
		assert.Equal(t, 2, renderer.calls)

		stats := sink.OpStats(telemetry.OpChartGen, time.Hour)
		assert.Equal(t, 2, stats.Count)
		assert.Equal(t, 0.0, stats.CacheHitRate)
	})
}

func TestAnalyzeStage(t *testing.T) {
	ctx := context.Background()

	t.Run("miss_invokes_analyzer_then_hit", func(t *testing.T) {
		analyzer := &fakeAnalyzer{text: "analysis body"}
		sink := telemetry.NewSink()
		stage := NewAnalyzeStage(analyzer, newStageCache(t), sink)

		text, err := stage.RunCached(ctx, "AAPL", market.Interval1h, stageSnapshot(), "fp-1")
		require.NoError(t, err)
		assert.Equal(t, "analysis body", text)

		text, err = stage.RunCached(ctx, "AAPL", market.Interval1h, stageSnapshot(), "fp-1")
		require.NoError(t, err)
		assert.Equal(t, "analysis body", text)
		assert.Equal(t, 1, analyzer.calls)

		stats := sink.OpStats(telemetry.OpLLMAnalyze, time.Hour)
		assert.Equal(t, 2, stats.Count)
		assert.Equal(t, 50.0, stats.CacheHitRate)
	})

	t.Run("key_ignores_interval", func(t *testing.T) {
		analyzer := &fakeAnalyzer{text: "analysis body"}
		stage := NewAnalyzeStage(analyzer, newStageCache(t), telemetry.NewSink())

		_, err := stage.RunCached(ctx, "AAPL", market.Interval1h, stageSnapshot(), "fp-1")
		require.NoError(t, err)
		_, err = stage.RunCached(ctx, "AAPL", market.Interval4h, stageSnapshot(), "fp-1")
		require.NoError(t, err)

		assert.Equal(t, 1, analyzer.calls)
	})

	t.Run("key_includes_fingerprint", func(t *testing.T) {
		analyzer := &fakeAnalyzer{text: "analysis body"}
		stage := NewAnalyzeStage(analyzer, newStageCache(t), telemetry.NewSink())

		_, err := stage.RunCached(ctx, "AAPL", market.Interval1h, stageSnapshot(), "fp-1")
		require.NoError(t, err)
		_, err = stage.RunCached(ctx, "AAPL", market.Interval1h, stageSnapshot(), "fp-2")
		require.NoError(t, err)

		assert.Equal(t, 2, analyzer.calls)
	})

	t.Run("failure_propagates_and_is_not_cached", func(t *testing.T) {
		analyzer := &fakeAnalyzer{err: errs.New(errs.AnalysisEmpty, "llm_analysis", "AAPL", "model returned empty analysis")}
		stage := NewAnalyzeStage(analyzer, newStageCache(t), telemetry.NewSink())

		_, err := stage.RunCached(ctx, "AAPL", market.Interval1h, stageSnapshot(), "fp-1")
		require.Error(t, err)
		assert.True(t, errs.IsKind(err, errs.AnalysisEmpty))

		_, err = stage.RunCached(ctx, "AAPL", market.Interval1h, stageSnapshot(), "fp-1")
		require.Error(t, err)
		assert.Equal(t, 2, analyzer.calls)
	})
}
