// Package database opens the sqlx/pgx connection pools the rest of the
// control plane shares: one sized for the HTTP surface's request
// concurrency, one sized for the six reconciliation loops, per spec.md
// §5's "size it separately for HTTP and for controllers" guidance.
package database

import (
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	riseerrors "github.com/rise-sh/rise/internal/errors"
)

// PoolConfig tunes a single *sqlx.DB's underlying connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultHTTPPoolConfig sizes the pool backing the HTTP surface, whose
// request concurrency spec.md §5 estimates at "≈10".
func DefaultHTTPPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// DefaultControllerPoolConfig sizes the pool shared by the six
// reconciliation loops, at spec.md §5's "≈3 per loop peer".
func DefaultControllerPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    18,
		MaxIdleConns:    6,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// Validate reports the first configuration error found.
func (p PoolConfig) Validate() error {
	if p.MaxOpenConns <= 0 {
		return riseerrors.ValidationError("max_open_conns", "must be greater than 0")
	}
	if p.MaxIdleConns < 0 {
		return riseerrors.ValidationError("max_idle_conns", "must be non-negative")
	}
	return nil
}

// Apply sets db's pool limits from p.
func (p PoolConfig) Apply(db *sqlx.DB) {
	db.SetMaxOpenConns(p.MaxOpenConns)
	db.SetMaxIdleConns(p.MaxIdleConns)
	db.SetConnMaxLifetime(p.ConnMaxLifetime)
	db.SetConnMaxIdleTime(p.ConnMaxIdleTime)
}

// Connect opens a pgx-backed *sqlx.DB against dsn, applies pool, and
// pings before returning so callers fail fast on a bad DSN rather than
// discovering it on the first query.
func Connect(dsn string, pool PoolConfig, logger *zap.Logger) (*sqlx.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.Validate(); err != nil {
		return nil, riseerrors.FailedTo("validate pool configuration", err)
	}

	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, riseerrors.FailedTo("open database connection", err)
	}
	pool.Apply(db)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, riseerrors.FailedTo("ping database", err)
	}

	logger.Info("connected to database",
		zap.Int("max_open_conns", pool.MaxOpenConns),
		zap.Int("max_idle_conns", pool.MaxIdleConns),
	)
	return db, nil
}
