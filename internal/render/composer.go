package render

import (
	"context"
	"os"
	"time"

	"github.com/sawpanic/chartpulse/internal/config"
	"github.com/sawpanic/chartpulse/internal/errs"
	"github.com/sawpanic/chartpulse/internal/market"
)

const stageCompose = "report_generation"

// ComposeRequest carries everything the markdown-to-image CLI needs.
type ComposeRequest struct {
	MarkdownPath string
	ChartPath    string
	OutputPath   string
	Ticker       string
	Interval     market.Interval
	KeyDataJSON  string
}

// ExecReportComposer drives the external composer CLI that merges analysis
// markdown, the chart image and the key-data block into the final report
// image.
type ExecReportComposer struct {
	command    []string
	timeout    time.Duration
	author     string
	avatarPath string
}

// NewExecReportComposer validates the configured command line.
func NewExecReportComposer(cfg config.RenderConfig, report config.ReportConfig) (*ExecReportComposer, error) {
	if len(cfg.ComposerCommand) == 0 {
		return nil, errs.New(errs.ConfigInvalid, "startup", "", "render.composer_command is empty")
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &ExecReportComposer{
		command:    cfg.ComposerCommand,
		timeout:    timeout,
		author:     report.Author,
		avatarPath: report.AvatarPath,
	}, nil
}

// Compose runs the composer CLI. Success requires a zero exit and a
// non-empty output file at the requested path.
func (c *ExecReportComposer) Compose(ctx context.Context, req ComposeRequest) error {
	args := c.args(req)
	output, err := runCommand(ctx, c.timeout, c.command, args)
	if err != nil {
		return errs.New(errs.ReportComposeFailed, stageCompose, req.Ticker,
			"report composer failed: %v: %s", err, outputTail(output))
	}

	info, err := os.Stat(req.OutputPath)
	if err != nil {
		return errs.New(errs.ReportComposeFailed, stageCompose, req.Ticker,
			"report composer exited clean but wrote no file: %v", err)
	}
	if info.Size() == 0 {
		return errs.New(errs.ReportComposeFailed, stageCompose, req.Ticker,
			"report composer produced an empty file")
	}
	return nil
}

func (c *ExecReportComposer) args(req ComposeRequest) []string {
	args := []string{
		"--markdown-file", req.MarkdownPath,
		"--chart-file", req.ChartPath,
		"--output-file", req.OutputPath,
		"--ticker", req.Ticker,
		"--interval", string(req.Interval),
		"--key-data-json", req.KeyDataJSON,
		"--author", c.author,
	}
	if c.avatarPath != "" {
		args = append(args, "--avatar-path", c.avatarPath)
	}
	return args
}
