package pipeline

import (
	"context"
	"time"

	"github.com/sawpanic/chartpulse/internal/analyze"
	"github.com/sawpanic/chartpulse/internal/cache"
	"github.com/sawpanic/chartpulse/internal/errs"
	"github.com/sawpanic/chartpulse/internal/indicators"
	"github.com/sawpanic/chartpulse/internal/market"
	"github.com/sawpanic/chartpulse/internal/render"
	"github.com/sawpanic/chartpulse/internal/telemetry"
)

// ChartRenderer abstracts the chart subprocess for the pipeline.
type ChartRenderer interface {
	Render(ctx context.Context, req render.ChartRequest) ([]byte, error)
}

// ReportComposer abstracts the markdown-to-image subprocess.
type ReportComposer interface {
	Compose(ctx context.Context, req render.ComposeRequest) error
}

// ChartStage renders charts through the chart cache bucket. The key combines
// ticker, interval, and the series fingerprint, so identical windows reuse
// the rendered PNG without byte-level comparison.
type ChartStage struct {
	renderer ChartRenderer
	cache    *cache.TieredCache
	sink     *telemetry.Sink
}

// NewChartStage wires the renderer behind the chart cache bucket.
func NewChartStage(renderer ChartRenderer, store *cache.TieredCache, sink *telemetry.Sink) *ChartStage {
	return &ChartStage{
		renderer: renderer,
		cache:    store,
		sink:     sink,
	}
}

// RunCached returns the chart PNG for the request's series, consulting the
// chart bucket before invoking the renderer subprocess.
func (s *ChartStage) RunCached(ctx context.Context, req render.ChartRequest, fingerprint string) ([]byte, error) {
	start := time.Now()

	if png, ok := s.cache.GetChart(req.Ticker, req.Interval, fingerprint); ok {
		s.sink.TrackOperation(telemetry.OpChartGen, sinceMS(start), true, opMeta(req.Ticker, req.Interval))
		return png, nil
	}

	png, err := s.renderer.Render(ctx, req)
	if err != nil {
		s.sink.TrackOperation(telemetry.OpChartGen, sinceMS(start), false, failMeta(req.Ticker, req.Interval, err))
		return nil, err
	}

	s.cache.SetChart(req.Ticker, req.Interval, fingerprint, png)
	s.sink.TrackOperation(telemetry.OpChartGen, sinceMS(start), false, opMeta(req.Ticker, req.Interval))
	return png, nil
}

// AnalyzeStage produces LLM analysis through the analysis cache bucket. The
// key deliberately omits the interval: the fingerprint already pins the exact
// candle window the snapshot was computed from.
type AnalyzeStage struct {
	analyzer analyze.Analyzer
	cache    *cache.TieredCache
	sink     *telemetry.Sink
}

// NewAnalyzeStage wires the analyzer behind the analysis cache bucket.
func NewAnalyzeStage(analyzer analyze.Analyzer, store *cache.TieredCache, sink *telemetry.Sink) *AnalyzeStage {
	return &AnalyzeStage{
		analyzer: analyzer,
		cache:    store,
		sink:     sink,
	}
}

// RunCached returns the analysis text for the snapshot, consulting the
// analysis bucket before invoking the model. Empty responses surface as
// errors from the analyzer and are never cached.
func (s *AnalyzeStage) RunCached(ctx context.Context, ticker string, interval market.Interval, snap indicators.Snapshot, fingerprint string) (string, error) {
	start := time.Now()

	if text, ok := s.cache.GetAnalysis(ticker, fingerprint); ok {
		s.sink.TrackOperation(telemetry.OpLLMAnalyze, sinceMS(start), true, opMeta(ticker, interval))
		return text, nil
	}

	text, err := s.analyzer.Analyze(ctx, ticker, snap)
	if err != nil {
		s.sink.TrackOperation(telemetry.OpLLMAnalyze, sinceMS(start), false, failMeta(ticker, interval, err))
		return "", err
	}

	s.cache.SetAnalysis(ticker, fingerprint, text)
	s.sink.TrackOperation(telemetry.OpLLMAnalyze, sinceMS(start), false, opMeta(ticker, interval))
	return text, nil
}

func sinceMS(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}

func opMeta(ticker string, interval market.Interval) map[string]string {
	return map[string]string{
		"ticker":   ticker,
		"interval": string(interval),
	}
}

// failMeta tags the record with the stable error kind when one is attached,
// falling back to the raw message.
func failMeta(ticker string, interval market.Interval, err error) map[string]string {
	m := opMeta(ticker, interval)
	if kind := errs.KindOf(err); kind != "" {
		m["error"] = string(kind)
	} else {
		m["error"] = err.Error()
	}
	return m
}
