package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/sawpanic/chartpulse/internal/config"
	"github.com/sawpanic/chartpulse/internal/persistence"
	"github.com/sawpanic/chartpulse/internal/persistence/postgres"
)

// pingTimeout bounds the startup connectivity probe.
const pingTimeout = 10 * time.Second

// Manager manages the report-index connection pool and its repositories.
// When the database block is disabled the manager is inert and Reports
// returns nil.
type Manager struct {
	db      *sqlx.DB
	cfg     config.DatabaseConfig
	reports persistence.ReportsRepo
}

// NewManager opens the report-index database when enabled. The connection is
// verified with a ping so a bad DSN fails at startup rather than on the
// first insert.
func NewManager(cfg config.DatabaseConfig) (*Manager, error) {
	if !cfg.Enabled {
		return &Manager{cfg: cfg}, nil
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required when enabled")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Manager{
		db:      db,
		cfg:     cfg,
		reports: postgres.NewReportsRepo(db, cfg.QueryTimeout()),
	}, nil
}

// Reports returns the report index repository, or nil when disabled.
func (m *Manager) Reports() persistence.ReportsRepo {
	return m.reports
}

// IsEnabled returns whether the report index is active.
func (m *Manager) IsEnabled() bool {
	return m.cfg.Enabled && m.db != nil
}

// Ping tests connectivity for health endpoints. A disabled manager is
// always healthy.
func (m *Manager) Ping(ctx context.Context) error {
	if m.db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.QueryTimeout())
	defer cancel()
	return m.db.PingContext(ctx)
}

// Stats returns connection pool statistics for the operator surface.
func (m *Manager) Stats() map[string]interface{} {
	if m.db == nil {
		return map[string]interface{}{"enabled": false}
	}
	stats := m.db.Stats()
	return map[string]interface{}{
		"enabled":          true,
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
		"wait_count":       stats.WaitCount,
		"wait_duration_ms": stats.WaitDuration.Milliseconds(),
	}
}

// Close releases the connection pool.
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}
