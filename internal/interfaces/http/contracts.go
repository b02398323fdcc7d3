package http

import (
	"context"
	"time"

	"github.com/sawpanic/chartpulse/internal/market"
	"github.com/sawpanic/chartpulse/internal/persistence"
	"github.com/sawpanic/chartpulse/internal/pipeline"
	"github.com/sawpanic/chartpulse/internal/telemetry"
)

// ReportGenerator runs the full report pipeline for one request. Satisfied by
// pipeline.Orchestrator.
type ReportGenerator interface {
	GenerateReport(ctx context.Context, spec market.RequestSpec) (*pipeline.ReportResult, error)
}

// GenerateRequest is the body of POST /reports/generate. Ticker and interval
// are required; num_candles defaults to 150.
type GenerateRequest struct {
	Ticker     string `json:"ticker"`
	Interval   string `json:"interval"`
	NumCandles int    `json:"num_candles"`
	Exchange   string `json:"exchange,omitempty"`
}

// GenerateResponse returns the composed report location.
type GenerateResponse struct {
	Path      string  `json:"path"`
	Message   string  `json:"message"`
	RequestID string  `json:"request_id"`
	ElapsedMS float64 `json:"elapsed_ms"`
}

// HealthResponse reports process and component health for GET /health.
type HealthResponse struct {
	Status        string                 `json:"status"`
	Timestamp     time.Time              `json:"timestamp"`
	UptimeSeconds float64                `json:"uptime_seconds"`
	CacheEnabled  bool                   `json:"cache_enabled"`
	Database      map[string]interface{} `json:"database"`
}

// ClearResponse reports how many cache entries an operation removed.
type ClearResponse struct {
	Removed int `json:"removed"`
}

// TelemetryStatsResponse is the JSON rollup for GET /telemetry/stats and the
// frame pushed on /ws/telemetry.
type TelemetryStatsResponse struct {
	Timestamp     time.Time                    `json:"timestamp"`
	Session       telemetry.SessionStats       `json:"session"`
	CacheHitRates map[string]float64           `json:"cache_hit_rates"`
	Ops           map[string]telemetry.OpStats `json:"ops"`
}

// ReportsResponse lists report-index rows for GET /reports.
type ReportsResponse struct {
	Count   int                        `json:"count"`
	Reports []persistence.ReportRecord `json:"reports"`
}

// StatusResponse acknowledges a state-changing operation.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}
