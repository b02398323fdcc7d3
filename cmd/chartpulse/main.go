package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "ChartPulse"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     "chartpulse",
		Short:   "Financial chart analysis pipeline",
		Version: version,
		Long: `ChartPulse turns a ticker into a composite PNG report: an OHLCV candlestick
chart with indicator overlays plus a narrative technical analysis.

The pipeline fetches market data, computes the indicator snapshot, renders the
chart and requests the analysis concurrently, then composes the final report
image. Data, chart, and analysis results are served from a two-tier TTL cache.`,
	}

	rootCmd.PersistentFlags().String("config", "config/chartpulse.yaml", "Path to the YAML config file")

	// Generate one report directly from the CLI.
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Generate one analysis report",
		Long:  "Run the full pipeline for a single ticker and print the composed report path",
		RunE:  runReport,
	}
	addRequestFlags(reportCmd.Flags())
	reportCmd.Flags().Duration("timeout", 5*time.Minute, "Overall request deadline")

	// Run the operator HTTP surface.
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the operator HTTP server",
		Long:  "Serve health, cache controls, telemetry, Prometheus metrics, the live telemetry websocket, and report generation",
		RunE:  runServe,
	}

	// Cache management against the shared blob store.
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the tiered cache",
		Long:  "Operate on the cache blob store configured in the config file",
	}

	cacheStatusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show cache tier utilization and TTLs",
		RunE:  runCacheStatus,
	}

	cacheClearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cache entry",
		RunE:  runCacheClear,
	}

	cacheClearExpiredCmd := &cobra.Command{
		Use:   "clear-expired",
		Short: "Remove entries past their bucket TTL",
		RunE:  runCacheClearExpired,
	}

	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheClearExpiredCmd)

	// Telemetry commands talk to a running serve instance, since operation
	// records live in that process.
	telemetryCmd := &cobra.Command{
		Use:   "telemetry",
		Short: "Query the telemetry of a running server",
		Long:  "Fetch or reset performance telemetry over the operator HTTP surface",
	}

	telemetryReportCmd := &cobra.Command{
		Use:   "report",
		Short: "Print the per-operation latency and hit-rate rollup",
		RunE:  runTelemetryReport,
	}

	telemetryResetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Zero the telemetry accumulators",
		RunE:  runTelemetryReset,
	}

	for _, cmd := range []*cobra.Command{telemetryReportCmd, telemetryResetCmd} {
		cmd.Flags().String("addr", "", "Operator server address (defaults to the configured host:port)")
	}

	telemetryCmd.AddCommand(telemetryReportCmd)
	telemetryCmd.AddCommand(telemetryResetCmd)

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(telemetryCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
