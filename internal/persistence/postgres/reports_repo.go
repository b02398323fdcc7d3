package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/chartpulse/internal/persistence"
)

// reportsRepo implements persistence.ReportsRepo for PostgreSQL.
type reportsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewReportsRepo creates a PostgreSQL report index repository.
func NewReportsRepo(db *sqlx.DB, timeout time.Duration) persistence.ReportsRepo {
	return &reportsRepo{
		db:      db,
		timeout: timeout,
	}
}

// reportColumns lists the selected columns. "interval" needs quoting since it
// collides with the SQL type keyword.
const reportColumns = `id, user_id, symbol, "interval", filepath, generated_at,
	latest_close, bollinger_upper, bollinger_middle, bollinger_lower,
	stoch_rsi_k, stoch_rsi_d`

// Insert adds one report row. NaN indicator values are stored as NULL.
func (r *reportsRepo) Insert(ctx context.Context, rec persistence.ReportRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO reports (user_id, symbol, "interval", filepath, generated_at,
			latest_close, bollinger_upper, bollinger_middle, bollinger_lower,
			stoch_rsi_k, stoch_rsi_d)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.ExecContext(ctx, query,
		rec.UserID, rec.Symbol, rec.Interval, rec.Filepath, rec.GeneratedAt,
		nullIfNaN(rec.LatestClose), nullIfNaN(rec.BollingerUpper),
		nullIfNaN(rec.BollingerMiddle), nullIfNaN(rec.BollingerLower),
		nullIfNaN(rec.StochRSIK), nullIfNaN(rec.StochRSID))
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate report row: %w", err)
		}
		return fmt.Errorf("failed to insert report record: %w", err)
	}
	return nil
}

// ListBySymbol retrieves the most recent reports for a symbol, newest first.
func (r *reportsRepo) ListBySymbol(ctx context.Context, symbol string, limit int) ([]persistence.ReportRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + reportColumns + `
		FROM reports
		WHERE symbol = $1
		ORDER BY generated_at DESC
		LIMIT $2`

	rows, err := r.db.QueryxContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports by symbol: %w", err)
	}
	defer rows.Close()

	return scanReports(rows)
}

// Latest retrieves the most recent reports across all symbols, newest first.
func (r *reportsRepo) Latest(ctx context.Context, limit int) ([]persistence.ReportRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + reportColumns + `
		FROM reports
		ORDER BY generated_at DESC
		LIMIT $1`

	rows, err := r.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest reports: %w", err)
	}
	defer rows.Close()

	return scanReports(rows)
}

// reportRow mirrors the table schema with NULL-able indicator columns.
type reportRow struct {
	ID              int64           `db:"id"`
	UserID          string          `db:"user_id"`
	Symbol          string          `db:"symbol"`
	Interval        string          `db:"interval"`
	Filepath        string          `db:"filepath"`
	GeneratedAt     time.Time       `db:"generated_at"`
	LatestClose     sql.NullFloat64 `db:"latest_close"`
	BollingerUpper  sql.NullFloat64 `db:"bollinger_upper"`
	BollingerMiddle sql.NullFloat64 `db:"bollinger_middle"`
	BollingerLower  sql.NullFloat64 `db:"bollinger_lower"`
	StochRSIK       sql.NullFloat64 `db:"stoch_rsi_k"`
	StochRSID       sql.NullFloat64 `db:"stoch_rsi_d"`
}

func (row reportRow) record() persistence.ReportRecord {
	return persistence.ReportRecord{
		ID:              row.ID,
		UserID:          row.UserID,
		Symbol:          row.Symbol,
		Interval:        row.Interval,
		Filepath:        row.Filepath,
		GeneratedAt:     row.GeneratedAt,
		LatestClose:     floatOrNaN(row.LatestClose),
		BollingerUpper:  floatOrNaN(row.BollingerUpper),
		BollingerMiddle: floatOrNaN(row.BollingerMiddle),
		BollingerLower:  floatOrNaN(row.BollingerLower),
		StochRSIK:       floatOrNaN(row.StochRSIK),
		StochRSID:       floatOrNaN(row.StochRSID),
	}
}

func scanReports(rows *sqlx.Rows) ([]persistence.ReportRecord, error) {
	var out []persistence.ReportRecord
	for rows.Next() {
		var row reportRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		out = append(out, row.record())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate report rows: %w", err)
	}
	return out, nil
}

// nullIfNaN maps unavailable indicator values to SQL NULL.
func nullIfNaN(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
