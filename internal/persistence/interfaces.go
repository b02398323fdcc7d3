package persistence

import (
	"context"
	"time"
)

// LocalUserID tags rows written by the local CLI, which has no user accounts.
const LocalUserID = "local"

// ReportRecord is one generated report in the report index. Indicator columns
// mirror the snapshot at generation time; values that were unavailable for
// the window are stored as NULL.
type ReportRecord struct {
	ID              int64     `json:"id" db:"id"`
	UserID          string    `json:"user_id" db:"user_id"`
	Symbol          string    `json:"symbol" db:"symbol"`
	Interval        string    `json:"interval" db:"interval"`
	Filepath        string    `json:"filepath" db:"filepath"`
	GeneratedAt     time.Time `json:"generated_at" db:"generated_at"`
	LatestClose     float64   `json:"latest_close" db:"latest_close"`
	BollingerUpper  float64   `json:"bollinger_upper" db:"bollinger_upper"`
	BollingerMiddle float64   `json:"bollinger_middle" db:"bollinger_middle"`
	BollingerLower  float64   `json:"bollinger_lower" db:"bollinger_lower"`
	StochRSIK       float64   `json:"stoch_rsi_k" db:"stoch_rsi_k"`
	StochRSID       float64   `json:"stoch_rsi_d" db:"stoch_rsi_d"`
}

// ReportsRepo indexes generated reports. Inserts happen once per successful
// request; an insert failure is logged by the caller and never fails the
// request, since the artifact already exists on disk.
type ReportsRepo interface {
	// Insert adds one report row.
	Insert(ctx context.Context, rec ReportRecord) error

	// ListBySymbol returns the most recent reports for a symbol, newest first.
	ListBySymbol(ctx context.Context, symbol string, limit int) ([]ReportRecord, error)

	// Latest returns the most recent reports across all symbols, newest first.
	Latest(ctx context.Context, limit int) ([]ReportRecord, error)
}
