// Package database wraps sqlx with transaction propagation through context,
// Postgres helpers, and schema migration support.
package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

// DB is the database handle shared by all repositories. Statement methods
// taking a context route through an open transaction carried in that context,
// so repository code is transaction-agnostic.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error)
	Rebind(query string) string
	DriverName() string
	Ping() error
	PingContext(ctx context.Context) error
	SetMaxOpenConns(n int)
	SetMaxIdleConns(n int)
	SetConnMaxLifetime(d time.Duration)
	SetConnMaxIdleTime(d time.Duration)
	Stats() sql.DBStats
	Close() error
	// Unwrap exposes the underlying pool for callers that need it directly
	// (migrations, health checks). Repository code never should.
	Unwrap() *sqlx.DB
}

type DatabaseInstance struct {
	*sqlx.DB
	logger ectologger.Logger
}

func NewDatabaseInstance(db *sqlx.DB, logger ectologger.Logger) DB {
	return &DatabaseInstance{
		DB:     db,
		logger: logger,
	}
}

func (db *DatabaseInstance) Unwrap() *sqlx.DB {
	return db.DB
}

// GetTx returns the open transaction carried by ctx, or begins a new one.
// Only the caller that began the transaction can commit or roll it back.
func (db *DatabaseInstance) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error) {
	return GetTx(ctx, db.logger, db, opts)
}

func (db *DatabaseInstance) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if tx, ok := TxFromContext(ctx); ok {
		return tx.ExecContext(ctx, query, args...)
	}
	return db.DB.ExecContext(ctx, query, args...)
}

func (db *DatabaseInstance) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	if tx, ok := TxFromContext(ctx); ok {
		return tx.GetContext(ctx, dest, query, args...)
	}
	return db.DB.GetContext(ctx, dest, query, args...)
}

func (db *DatabaseInstance) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	if tx, ok := TxFromContext(ctx); ok {
		return tx.SelectContext(ctx, dest, query, args...)
	}
	return db.DB.SelectContext(ctx, dest, query, args...)
}

func (db *DatabaseInstance) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if tx, ok := TxFromContext(ctx); ok {
		return tx.QueryContext(ctx, query, args...)
	}
	return db.DB.QueryContext(ctx, query, args...)
}

func (db *DatabaseInstance) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	if tx, ok := TxFromContext(ctx); ok {
		return tx.QueryRowContext(ctx, query, args...)
	}
	return db.DB.QueryRowContext(ctx, query, args...)
}

func (db *DatabaseInstance) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	if tx, ok := TxFromContext(ctx); ok {
		return tx.QueryxContext(ctx, query, args...)
	}
	return db.DB.QueryxContext(ctx, query, args...)
}

func (db *DatabaseInstance) QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row {
	if tx, ok := TxFromContext(ctx); ok {
		return tx.QueryRowxContext(ctx, query, args...)
	}
	return db.DB.QueryRowxContext(ctx, query, args...)
}

func (db *DatabaseInstance) NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error) {
	if tx, ok := TxFromContext(ctx); ok {
		return tx.NamedExecContext(ctx, query, arg)
	}
	return db.DB.NamedExecContext(ctx, query, arg)
}
