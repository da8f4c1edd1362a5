// Package store is the embedded SQLite cache of everything mirrored from the
// configured remote backends.
//
// The store is the sole source of truth for what the UI shows. Every
// operation runs inside a transaction: the one-shot methods on *DB open their
// own, and callers that need several operations to commit atomically (the
// sync engine commits one entity type per transaction) use Update with the
// operations on *Tx.
//
// Architecture:
//   - Database file: $XDG_DATA_HOME/terminalist/cache.db
//   - WAL mode: readers are not blocked by a sync pass writing
//   - Keys: local id is the primary key, (backend_id, remote_id) is unique
//   - Foreign keys: composite (backend_id, parent) so rows can never point
//     across backends; deleting a backend cascades to everything it owns
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrClosed is wrapped in an UnavailableError when the DB has been closed.
var ErrClosed = errors.New("database is closed")

// DB wraps the SQLite connection pool.
type DB struct {
	conn *sql.DB
	path string
	now  func() time.Time
}

// Open creates a new database connection at the specified path.
//
// The database is opened in WAL mode with foreign keys enforced on every
// pooled connection. Write transactions take the write lock up front so two
// writers queue on busy_timeout instead of failing mid-transaction.
//
// The caller MUST call Close() when done to ensure proper cleanup.
//
// Example:
//
//	db, err := store.Open(cfg.Database.Path)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Per-connection pragmas go in the DSN so every pooled connection gets them.
	params := url.Values{}
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "foreign_keys(1)")
	params.Set("_txlock", "immediate")
	connStr := fmt.Sprintf("file:%s?%s", path, params.Encode())

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, classify("open database", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, classify("ping database", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn: conn,
		path: path,
		now:  time.Now,
	}

	// journal_mode is persistent for the file, once is enough.
	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, classify("enable WAL mode", err)
	}

	return db, nil
}

// OpenAndInit opens the database and creates the schema.
func OpenAndInit(ctx context.Context, path string) (*DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchemaContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the connection pool.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
// This is idempotent - safe to call multiple times.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	if db.conn == nil {
		return &UnavailableError{Op: "initialize schema", Err: ErrClosed}
	}
	if _, err := db.conn.ExecContext(ctx, schemaSQL); err != nil {
		return classify("initialize schema", err)
	}
	return nil
}

// Update runs fn inside a read-write transaction. The transaction commits
// when fn returns nil and rolls back otherwise; fn's error is returned as is.
func (db *DB) Update(ctx context.Context, fn func(tx *Tx) error) error {
	return db.runTx(ctx, nil, fn)
}

// View runs fn inside a read-only transaction.
func (db *DB) View(ctx context.Context, fn func(tx *Tx) error) error {
	return db.runTx(ctx, &sql.TxOptions{ReadOnly: true}, fn)
}

func (db *DB) runTx(ctx context.Context, opts *sql.TxOptions, fn func(tx *Tx) error) error {
	if db.conn == nil {
		return &UnavailableError{Op: "begin transaction", Err: ErrClosed}
	}

	sqlTx, err := db.conn.BeginTx(ctx, opts)
	if err != nil {
		return classify("begin transaction", err)
	}
	defer sqlTx.Rollback()

	tx := &Tx{ctx: ctx, q: sqlTx, now: db.now}
	if err := fn(tx); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return classify("commit transaction", err)
	}
	return nil
}

// Tx exposes every store operation bound to one SQL transaction.
// A Tx is only valid inside the Update or View callback that received it.
type Tx struct {
	ctx context.Context
	q   querier
	now func() time.Time
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (tx *Tx) exec(op, query string, args ...any) (sql.Result, error) {
	res, err := tx.q.ExecContext(tx.ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	return res, nil
}

func (tx *Tx) query(op, query string, args ...any) (*sql.Rows, error) {
	rows, err := tx.q.QueryContext(tx.ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	return rows, nil
}

// update and view adapt a Tx method into a one-shot DB call.
func update[T any](ctx context.Context, db *DB, fn func(tx *Tx) (T, error)) (T, error) {
	var out T
	err := db.Update(ctx, func(tx *Tx) error {
		var err error
		out, err = fn(tx)
		return err
	})
	return out, err
}

func view[T any](ctx context.Context, db *DB, fn func(tx *Tx) (T, error)) (T, error) {
	var out T
	err := db.View(ctx, func(tx *Tx) error {
		var err error
		out, err = fn(tx)
		return err
	})
	return out, err
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func ptrToNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullStringToPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// remoteIDToNull stores an empty remote id as NULL so the unique
// (backend_id, remote_id) index ignores rows that were never pushed.
func remoteIDToNull(id string) sql.NullString {
	return sql.NullString{String: id, Valid: id != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
