// Package storage is the relational data-access layer. A single Repository
// serves every store port over SQLite (default) or MySQL.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Repository implements the data-access ports on top of database/sql.
type Repository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock overrides the clock used for created_at/updated_at columns.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// SQLiteDSN returns the connection string used for a database file.
func SQLiteDSN(dbPath string) string {
	return dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// NewSQLiteRepository opens (creating if needed) and migrates a SQLite
// database file. In-memory databases are not supported because migrations
// run on their own connection.
func NewSQLiteRepository(dbPath string, opts ...Option) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := SQLiteDSN(dbPath)
	db, err := sql.Open(SQLite.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// single writer; never touch r.db while a transaction is open
	db.SetMaxOpenConns(1)

	return open(db, SQLite, dsn, opts)
}

// NewMySQLRepository connects to and migrates a MySQL database.
func NewMySQLRepository(dsn string, opts ...Option) (*Repository, error) {
	db, err := sql.Open(MySQL.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return open(db, MySQL, dsn, opts)
}

func open(db *sql.DB, d Dialect, dsn string, opts []Option) (*Repository, error) {
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(d, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	r := &Repository{db: db, dialect: d, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}

	slog.Info("Storage ready", "backend", string(d))
	return r, nil
}

// Dialect reports the backing database flavour.
func (r *Repository) Dialect() Dialect {
	return r.dialect
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return wrap("ping", r.db.PingContext(ctx))
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// withTx runs fn inside a transaction, committing when fn returns nil.
func (r *Repository) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap(op+": begin", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return wrap(op+": commit", tx.Commit())
}

func (r *Repository) stamp() int64 {
	return r.now().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// affected reports whether a statement changed at least one row.
func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
