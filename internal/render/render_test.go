package render

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/chartpulse/internal/config"
	"github.com/sawpanic/chartpulse/internal/errs"
	"github.com/sawpanic/chartpulse/internal/market"
)

func shellRenderer(t *testing.T, script string) *ExecChartRenderer {
	t.Helper()
	r, err := NewExecChartRenderer(config.RenderConfig{
		ChartCommand:   []string{"/bin/sh", "-c", script, "chart"},
		TimeoutSeconds: 10,
	})
	require.NoError(t, err)
	return r
}

func shellComposer(t *testing.T, script string) *ExecReportComposer {
	t.Helper()
	c, err := NewExecReportComposer(config.RenderConfig{
		ComposerCommand: []string{"/bin/sh", "-c", script, "composer"},
		TimeoutSeconds:  10,
	}, config.ReportConfig{Author: "AI Analyst"})
	require.NoError(t, err)
	return c
}

func TestExecChartRenderer(t *testing.T) {
	t.Run("empty_command_rejected", func(t *testing.T) {
		_, err := NewExecChartRenderer(config.RenderConfig{})
		require.Error(t, err)
		assert.True(t, errs.IsKind(err, errs.ConfigInvalid))
	})

	t.Run("returns_bytes_written_by_subprocess", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "chart.png")
		r := shellRenderer(t, "printf 'png-bytes' > "+out)

		png, err := r.Render(context.Background(), ChartRequest{
			DumpPath: "/tmp/ohlcv.json", Ticker: "AAPL",
			Interval: market.Interval1h, OutputPath: out,
		})
		require.NoError(t, err)
		assert.Equal(t, []byte("png-bytes"), png)
	})

	t.Run("nonzero_exit_fails_with_output", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "chart.png")
		r := shellRenderer(t, "echo 'renderer blew up' >&2; exit 3")

		_, err := r.Render(context.Background(), ChartRequest{
			Ticker: "AAPL", Interval: market.Interval1h, OutputPath: out,
		})
		require.Error(t, err)
		assert.True(t, errs.IsKind(err, errs.ChartRenderFailed))
		assert.Contains(t, err.Error(), "renderer blew up")
	})

	t.Run("clean_exit_without_output_file_fails", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "chart.png")
		r := shellRenderer(t, "true")

		_, err := r.Render(context.Background(), ChartRequest{
			Ticker: "AAPL", Interval: market.Interval1h, OutputPath: out,
		})
		require.Error(t, err)
		assert.True(t, errs.IsKind(err, errs.ChartRenderFailed))
	})

	t.Run("empty_output_file_fails", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "chart.png")
		r := shellRenderer(t, ": > "+out)

		_, err := r.Render(context.Background(), ChartRequest{
			Ticker: "AAPL", Interval: market.Interval1h, OutputPath: out,
		})
		require.Error(t, err)
		assert.True(t, errs.IsKind(err, errs.ChartRenderFailed))
	})

	t.Run("deadline_kills_hung_renderer", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "chart.png")
		r := &ExecChartRenderer{
			command: []string{"/bin/sh", "-c", "sleep 5", "chart"},
			timeout: 100 * time.Millisecond,
		}

		start := time.Now()
		_, err := r.Render(context.Background(), ChartRequest{
			Ticker: "AAPL", Interval: market.Interval1h, OutputPath: out,
		})
		require.Error(t, err)
		assert.True(t, errs.IsKind(err, errs.ChartRenderFailed))
		assert.Less(t, time.Since(start), 3*time.Second)
	})

	t.Run("argument_contract", func(t *testing.T) {
		r := shellRenderer(t, "true")
		args := r.args(ChartRequest{
			DumpPath: "/run/ohlcv.json", Ticker: "BTC-USD",
			Interval: market.Interval4h, OutputPath: "/run/chart.png",
		})
		assert.Equal(t, []string{
			"--input-data", "/run/ohlcv.json",
			"--ticker", "BTC-USD",
			"--interval", "4h",
			"--output-image", "/run/chart.png",
		}, args)
	})
}

func TestExecReportComposer(t *testing.T) {
	t.Run("empty_command_rejected", func(t *testing.T) {
		_, err := NewExecReportComposer(config.RenderConfig{}, config.ReportConfig{})
		require.Error(t, err)
		assert.True(t, errs.IsKind(err, errs.ConfigInvalid))
	})

	t.Run("success_requires_output_file", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "final_report.png")
		c := shellComposer(t, "printf 'composite' > "+out)

		err := c.Compose(context.Background(), ComposeRequest{
			MarkdownPath: "/tmp/analysis.md", ChartPath: "/tmp/chart.png",
			OutputPath: out, Ticker: "AAPL", Interval: market.Interval1d,
			KeyDataJSON: `{"latest_close":104.5}`,
		})
		assert.NoError(t, err)
	})

	t.Run("nonzero_exit_fails", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "final_report.png")
		c := shellComposer(t, "exit 1")

		err := c.Compose(context.Background(), ComposeRequest{
			OutputPath: out, Ticker: "AAPL", Interval: market.Interval1d,
		})
		require.Error(t, err)
		assert.True(t, errs.IsKind(err, errs.ReportComposeFailed))
	})

	t.Run("missing_output_fails", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "final_report.png")
		c := shellComposer(t, "true")

		err := c.Compose(context.Background(), ComposeRequest{
			OutputPath: out, Ticker: "AAPL", Interval: market.Interval1d,
		})
		require.Error(t, err)
		assert.True(t, errs.IsKind(err, errs.ReportComposeFailed))
	})

	t.Run("argument_contract_with_avatar", func(t *testing.T) {
		c := shellComposer(t, "true")
		c.avatarPath = "/assets/avatar.png"

		args := c.args(ComposeRequest{
			MarkdownPath: "/run/analysis.md", ChartPath: "/run/chart.png",
			OutputPath: "/run/final.png", Ticker: "AAPL",
			Interval: market.Interval1d, KeyDataJSON: `{"stoch_k":61}`,
		})
		assert.Equal(t, []string{
			"--markdown-file", "/run/analysis.md",
			"--chart-file", "/run/chart.png",
			"--output-file", "/run/final.png",
			"--ticker", "AAPL",
			"--interval", "1d",
			"--key-data-json", `{"stoch_k":61}`,
			"--author", "AI Analyst",
			"--avatar-path", "/assets/avatar.png",
		}, args)
	})

	t.Run("avatar_flag_omitted_when_unset", func(t *testing.T) {
		c := shellComposer(t, "true")
		args := c.args(ComposeRequest{Ticker: "AAPL", Interval: market.Interval1d})
		assert.NotContains(t, args, "--avatar-path")
	})
}
