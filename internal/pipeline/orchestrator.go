package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/chartpulse/internal/analyze"
	"github.com/sawpanic/chartpulse/internal/cache"
	"github.com/sawpanic/chartpulse/internal/config"
	"github.com/sawpanic/chartpulse/internal/errs"
	"github.com/sawpanic/chartpulse/internal/indicators"
	"github.com/sawpanic/chartpulse/internal/market"
	"github.com/sawpanic/chartpulse/internal/persistence"
	"github.com/sawpanic/chartpulse/internal/providers/marketdata"
	"github.com/sawpanic/chartpulse/internal/render"
	"github.com/sawpanic/chartpulse/internal/telemetry"
)

// stageOrchestrate labels orchestrator-level failures in error chains.
const stageOrchestrate = "report_generation"

// Artifact file names inside the per-request directory.
const (
	dumpFileName     = "ohlcv.json"
	chartFileName    = "chart.png"
	analysisFileName = "analysis.md"
	reportFileName   = "final_report.png"
)

// ReportResult is the outcome of one successful generate-report request.
type ReportResult struct {
	Path      string        `json:"path"`
	Message   string        `json:"message"`
	RequestID string        `json:"request_id"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Deps carries the orchestrator's collaborators. Cache and Sink are shared
// process-wide; the rest are stateless adapters.
type Deps struct {
	Provider marketdata.Provider
	Cache    *cache.TieredCache
	Renderer ChartRenderer
	Analyzer analyze.Analyzer
	Composer ReportComposer
	Reports  persistence.ReportsRepo
	Sink     *telemetry.Sink
}

// Orchestrator drives one report request through data fetch, indicator
// computation, the parallel chart and analysis stages, and composition.
// Safe for concurrent use; each request owns its working directory.
type Orchestrator struct {
	cfg      *config.Config
	provider marketdata.Provider
	cache    *cache.TieredCache
	chart    *ChartStage
	analyze  *AnalyzeStage
	composer ReportComposer
	reports  persistence.ReportsRepo
	sink     *telemetry.Sink
	loc      *time.Location
	now      func() time.Time
}

// New builds the orchestrator and its cached stage runners.
func New(cfg *config.Config, deps Deps) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		provider: deps.Provider,
		cache:    deps.Cache,
		chart:    NewChartStage(deps.Renderer, deps.Cache, deps.Sink),
		analyze:  NewAnalyzeStage(deps.Analyzer, deps.Cache, deps.Sink),
		composer: deps.Composer,
		reports:  deps.Reports,
		sink:     deps.Sink,
		loc:      cfg.Location(),
		now:      time.Now,
	}
}

// GenerateReport runs the full pipeline for one request and returns the path
// of the composed report image. Every request is tracked in the telemetry
// session whether it succeeds or not.
func (o *Orchestrator) GenerateReport(ctx context.Context, spec market.RequestSpec) (*ReportResult, error) {
	start := o.now()
	spec = spec.Normalize()
	if err := spec.Validate(); err != nil {
		o.sink.TrackRequest(false, 0)
		return nil, errs.Wrap(errs.ConfigInvalid, stageOrchestrate, spec.Ticker, err)
	}

	requestID := uuid.NewString()[:8]
	logger := log.With().
		Str("request_id", requestID).
		Str("ticker", spec.Ticker).
		Str("interval", string(spec.Interval)).
		Logger()

	result, err := o.run(ctx, logger, spec)
	elapsed := o.now().Sub(start)
	totalMS := float64(elapsed) / float64(time.Millisecond)

	o.sink.TrackRequest(err == nil, totalMS)
	if err != nil {
		logger.Error().Err(err).Dur("elapsed", elapsed).Msg("report generation failed")
		return nil, err
	}

	o.sink.TrackOperation(telemetry.OpReportGen, totalMS, false, map[string]string{
		"ticker":     spec.Ticker,
		"interval":   string(spec.Interval),
		"request_id": requestID,
	})

	result.RequestID = requestID
	result.Elapsed = elapsed
	logger.Info().Str("path", result.Path).Dur("elapsed", elapsed).Msg("report generated")
	return result, nil
}

// requestPaths are the artifact locations for one request.
type requestPaths struct {
	dir      string
	dump     string
	chart    string
	analysis string
	report   string
}

func (o *Orchestrator) composePaths(spec market.RequestSpec) (requestPaths, error) {
	now := o.now().In(o.loc)
	dir := filepath.Join(o.cfg.Report.OutputDir, now.Format("2006-01-02"),
		fmt.Sprintf("report_%s_%s_%s", spec.Ticker, spec.Interval, now.Format("20060102_150405")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return requestPaths{}, errs.Wrap(errs.ConfigInvalid, stageOrchestrate, spec.Ticker,
			fmt.Errorf("cannot create report directory: %w", err))
	}
	return requestPaths{
		dir:      dir,
		dump:     filepath.Join(dir, dumpFileName),
		chart:    filepath.Join(dir, chartFileName),
		analysis: filepath.Join(dir, analysisFileName),
		report:   filepath.Join(dir, reportFileName),
	}, nil
}

func (o *Orchestrator) run(ctx context.Context, logger zerolog.Logger, spec market.RequestSpec) (*ReportResult, error) {
	paths, err := o.composePaths(spec)
	if err != nil {
		return nil, err
	}

	series, err := o.fetchData(ctx, spec)
	if err != nil {
		return nil, err
	}
	logger.Debug().Int("candles", series.Len()).Msg("data ready")

	snap, err := indicators.Compute(series)
	if err != nil {
		return nil, err
	}
	logger.Debug().Msg("snapshot ready")

	if err := market.WriteDump(paths.dump, series); err != nil {
		return nil, errs.Wrap(errs.ChartRenderFailed, stageOrchestrate, spec.Ticker, err)
	}
	defer func() {
		if err := os.Remove(paths.dump); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", paths.dump).Msg("failed to remove ohlcv dump")
		}
	}()

	png, text, err := o.runStages(ctx, spec, series, snap, paths)
	if err != nil {
		return nil, err
	}
	logger.Debug().Int("chart_bytes", len(png)).Int("analysis_bytes", len(text)).Msg("stages complete")

	if err := os.WriteFile(paths.chart, png, 0o644); err != nil {
		return nil, errs.Wrap(errs.ChartRenderFailed, stageOrchestrate, spec.Ticker, err)
	}
	if err := os.WriteFile(paths.analysis, []byte(text), 0o644); err != nil {
		return nil, errs.Wrap(errs.ReportComposeFailed, stageOrchestrate, spec.Ticker, err)
	}

	keyData, err := json.Marshal(snap)
	if err != nil {
		return nil, errs.Wrap(errs.ReportComposeFailed, stageOrchestrate, spec.Ticker, err)
	}

	if err := o.composer.Compose(ctx, render.ComposeRequest{
		MarkdownPath: paths.analysis,
		ChartPath:    paths.chart,
		OutputPath:   paths.report,
		Ticker:       spec.Ticker,
		Interval:     spec.Interval,
		KeyDataJSON:  string(keyData),
	}); err != nil {
		return nil, err
	}
	logger.Debug().Msg("report composed")

	o.recordReport(ctx, logger, spec, snap, paths.report)

	return &ReportResult{
		Path:    paths.report,
		Message: fmt.Sprintf("report for %s (%s) generated", spec.Ticker, spec.Interval),
	}, nil
}

// fetchData serves the series from the data bucket or the provider.
func (o *Orchestrator) fetchData(ctx context.Context, spec market.RequestSpec) (market.Series, error) {
	start := time.Now()

	if series, ok := o.cache.GetData(spec.Ticker, spec.Interval); ok {
		o.sink.TrackOperation(telemetry.OpDataFetch, sinceMS(start), true, opMeta(spec.Ticker, spec.Interval))
		return series, nil
	}

	series, err := o.provider.Fetch(ctx, spec)
	if err != nil {
		o.sink.TrackOperation(telemetry.OpDataFetch, sinceMS(start), false, failMeta(spec.Ticker, spec.Interval, err))
		return market.Series{}, err
	}

	o.cache.SetData(spec.Ticker, spec.Interval, series)
	o.sink.TrackOperation(telemetry.OpDataFetch, sinceMS(start), false, opMeta(spec.Ticker, spec.Interval))
	return series, nil
}

// runStages executes the chart and analysis runners concurrently. Both run
// to completion even when the sibling fails; a failed stage's partner may
// still populate its cache bucket. The chart error wins when both fail.
func (o *Orchestrator) runStages(ctx context.Context, spec market.RequestSpec, series market.Series, snap indicators.Snapshot, paths requestPaths) ([]byte, string, error) {
	fingerprint := series.Fingerprint()

	var (
		wg         sync.WaitGroup
		png        []byte
		text       string
		chartErr   error
		analyzeErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		png, chartErr = o.chart.RunCached(ctx, render.ChartRequest{
			DumpPath:   paths.dump,
			Ticker:     spec.Ticker,
			Interval:   spec.Interval,
			OutputPath: paths.chart,
		}, fingerprint)
	}()
	go func() {
		defer wg.Done()
		text, analyzeErr = o.analyze.RunCached(ctx, spec.Ticker, spec.Interval, snap, fingerprint)
	}()
	wg.Wait()

	if chartErr != nil {
		return nil, "", chartErr
	}
	if analyzeErr != nil {
		return nil, "", analyzeErr
	}
	return png, text, nil
}

// recordReport inserts the report-index row. Failures are logged and never
// fail the request: the artifact already exists on disk.
func (o *Orchestrator) recordReport(ctx context.Context, logger zerolog.Logger, spec market.RequestSpec, snap indicators.Snapshot, path string) {
	if o.reports == nil {
		return
	}
	rec := persistence.ReportRecord{
		UserID:          persistence.LocalUserID,
		Symbol:          spec.Ticker,
		Interval:        string(spec.Interval),
		Filepath:        path,
		GeneratedAt:     o.now().UTC(),
		LatestClose:     snap.LatestClose,
		BollingerUpper:  snap.BBUpper,
		BollingerMiddle: snap.BBMiddle,
		BollingerLower:  snap.BBLower,
		StochRSIK:       snap.StochK,
		StochRSID:       snap.StochD,
	}
	if err := o.reports.Insert(ctx, rec); err != nil {
		logger.Warn().Err(err).Msg("report index insert failed")
		return
	}
	logger.Debug().Msg("report recorded")
}
