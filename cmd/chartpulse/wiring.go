package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sawpanic/chartpulse/internal/analyze"
	"github.com/sawpanic/chartpulse/internal/cache"
	"github.com/sawpanic/chartpulse/internal/config"
	"github.com/sawpanic/chartpulse/internal/infrastructure/db"
	"github.com/sawpanic/chartpulse/internal/market"
	"github.com/sawpanic/chartpulse/internal/pipeline"
	"github.com/sawpanic/chartpulse/internal/providers/marketdata"
	"github.com/sawpanic/chartpulse/internal/render"
	"github.com/sawpanic/chartpulse/internal/telemetry"
)

// addRequestFlags declares the shared report-request flags.
func addRequestFlags(fs *pflag.FlagSet) {
	fs.String("ticker", "", "Ticker symbol, e.g. AAPL or BTC-USD (required)")
	fs.String("interval", "1d", "Candle interval: 1m 5m 15m 30m 1h 4h 1d 1w 1mo")
	fs.Int("candles", 150, "Number of candles to fetch")
	fs.String("exchange", "", "Crypto venue hint, e.g. BINANCE")
}

// specFromFlags assembles the request spec from the command's flags.
func specFromFlags(fs *pflag.FlagSet) (market.RequestSpec, error) {
	ticker, _ := fs.GetString("ticker")
	rawInterval, _ := fs.GetString("interval")
	candles, _ := fs.GetInt("candles")
	exchange, _ := fs.GetString("exchange")

	interval, err := market.ParseInterval(rawInterval)
	if err != nil {
		return market.RequestSpec{}, err
	}
	return market.RequestSpec{
		Ticker:     ticker,
		Interval:   interval,
		NumCandles: candles,
		Exchange:   exchange,
	}, nil
}

// loadConfig resolves the persistent --config flag into a validated config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// runtime bundles the process-wide components every pipeline command needs.
type runtime struct {
	cfg   *config.Config
	store *cache.TieredCache
	sink  *telemetry.Sink
	dbm   *db.Manager
	orch  *pipeline.Orchestrator
}

// buildRuntime constructs the cache, telemetry sink, report index, and the
// orchestrator with its provider, renderer, analyzer, and composer adapters.
func buildRuntime(cfg *config.Config) (*runtime, error) {
	store, err := cache.New(&cfg.Cache)
	if err != nil {
		return nil, err
	}

	renderer, err := render.NewExecChartRenderer(cfg.Render)
	if err != nil {
		store.Close()
		return nil, err
	}
	composer, err := render.NewExecReportComposer(cfg.Render, cfg.Report)
	if err != nil {
		store.Close()
		return nil, err
	}

	dbm, err := db.NewManager(cfg.Database)
	if err != nil {
		store.Close()
		return nil, err
	}

	sink := telemetry.NewSink()
	orch := pipeline.New(cfg, pipeline.Deps{
		Provider: marketdata.NewAlphaVantage(cfg.Provider),
		Cache:    store,
		Renderer: renderer,
		Analyzer: analyze.NewDeepSeek(cfg.LLM),
		Composer: composer,
		Reports:  dbm.Reports(),
		Sink:     sink,
	})

	return &runtime{cfg: cfg, store: store, sink: sink, dbm: dbm, orch: orch}, nil
}

// close releases the cache and database handles, logging rather than failing
// on shutdown errors.
func (rt *runtime) close() {
	if err := rt.store.Close(); err != nil {
		log.Warn().Err(err).Msg("cache close failed")
	}
	if err := rt.dbm.Close(); err != nil {
		log.Warn().Err(err).Msg("database close failed")
	}
}
