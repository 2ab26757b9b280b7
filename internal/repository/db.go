package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/casetrack/docketwatch/internal/common"
)

// DB bundles a sql.DB with the statement builder for its dialect. All
// repositories build queries through SB so placeholders match the
// driver ($1 for Postgres, ? for SQLite).
type DB struct {
	SQL     *sql.DB
	SB      sq.StatementBuilderType
	Dialect string // "postgres" | "sqlite"

	pool *pgxpool.Pool // nil for sqlite
}

// Open creates a pgx pool, wraps it as a *sql.DB, and returns the bundle.
func Open(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	logger.Info("connecting to database", "dsn", cfg.DSN)
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database config", "error", err)
		return nil, err
	}

	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "docketwatch"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = cfg.StatementTimeout.String()
	}

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}

	db := stdlib.OpenDBFromPool(pool)
	d := &DB{
		SQL:     db,
		SB:      sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		Dialect: "postgres",
		pool:    pool,
	}
	// The DDL is all IF NOT EXISTS, so a fresh deployment gets its
	// schema and an existing one is untouched.
	if err := Migrate(ctx, d); err != nil {
		_ = db.Close()
		pool.Close()
		return nil, err
	}
	logger.Info("successfully connected to database")
	return d, nil
}

// OpenSQLite opens a SQLite database (":memory:" for the in-memory
// batch mode and tests) and applies the schema.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps :memory: databases from vanishing
	// between pooled connections.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, err
	}
	d := &DB{
		SQL:     db,
		SB:      sq.StatementBuilder.PlaceholderFormat(sq.Question),
		Dialect: "sqlite",
	}
	if err := Migrate(ctx, d); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("sqlite database ready", "path", path)
	return d, nil
}

// Close closes the database connections gracefully
func (d *DB) Close(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("closing database connections")
	if d.SQL != nil {
		if err := d.SQL.Close(); err != nil {
			logger.Error("failed to close sql db", "error", err)
		}
	}
	if d.pool != nil {
		d.pool.Close()
	}
	logger.Info("database connections closed")
}

// HealthCheck pings using database/sql to catch DSN issues early.
func (d *DB) HealthCheck(ctx context.Context, timeout time.Duration, logger *slog.Logger) error {
	logger.Debug("pinging database")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := d.SQL.PingContext(ctx); err != nil {
		return err
	}
	logger.Debug("database ping successful")
	return nil
}
