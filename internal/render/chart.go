package render

import (
	"context"
	"os"
	"time"

	"github.com/sawpanic/chartpulse/internal/config"
	"github.com/sawpanic/chartpulse/internal/errs"
	"github.com/sawpanic/chartpulse/internal/market"
)

const stageChart = "chart_generation"

// ChartRequest names the inputs and output of one chart render.
type ChartRequest struct {
	DumpPath   string
	Ticker     string
	Interval   market.Interval
	OutputPath string
}

// ExecChartRenderer drives the external headless-browser chart CLI. The
// series is handed over as a file dump so the subprocess never refetches
// market data.
type ExecChartRenderer struct {
	command []string
	timeout time.Duration
}

// NewExecChartRenderer validates the configured command line.
func NewExecChartRenderer(cfg config.RenderConfig) (*ExecChartRenderer, error) {
	if len(cfg.ChartCommand) == 0 {
		return nil, errs.New(errs.ConfigInvalid, "startup", "", "render.chart_command is empty")
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &ExecChartRenderer{command: cfg.ChartCommand, timeout: timeout}, nil
}

// Render runs the chart CLI and returns the PNG bytes it wrote. A non-zero
// exit, a missing output file or an empty image all fail the stage.
func (r *ExecChartRenderer) Render(ctx context.Context, req ChartRequest) ([]byte, error) {
	args := r.args(req)
	output, err := runCommand(ctx, r.timeout, r.command, args)
	if err != nil {
		return nil, errs.New(errs.ChartRenderFailed, stageChart, req.Ticker,
			"chart renderer failed: %v: %s", err, outputTail(output))
	}

	png, err := os.ReadFile(req.OutputPath)
	if err != nil {
		return nil, errs.New(errs.ChartRenderFailed, stageChart, req.Ticker,
			"chart renderer exited clean but wrote no image: %v", err)
	}
	if len(png) == 0 {
		return nil, errs.New(errs.ChartRenderFailed, stageChart, req.Ticker,
			"chart renderer produced an empty image")
	}
	return png, nil
}

func (r *ExecChartRenderer) args(req ChartRequest) []string {
	return []string{
		"--input-data", req.DumpPath,
		"--ticker", req.Ticker,
		"--interval", string(req.Interval),
		"--output-image", req.OutputPath,
	}
}
