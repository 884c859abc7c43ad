// Package sqlite is the single-file store used for local runs and tests. It
// implements the same repository ports as the postgres package.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"mediaflow/internal/domain"
	"mediaflow/internal/domain/ports/repository"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Open creates the parent directory, opens the database and applies the schema.
// SQLite allows one writer, so the pool is pinned to a single connection.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := initDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func initDB(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}
	_, err := db.Exec(schemaSQL)
	return err
}

var _ repository.TransactionManager = (*TxManager)(nil)

// TxManager hands *sql.Tx to the callback.
type TxManager struct {
	db *sql.DB
}

func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

func (m *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func getExecutor(db *sql.DB, tx repository.Tx) (executor, error) {
	switch v := tx.(type) {
	case *sql.Tx:
		return v, nil
	case nil:
		if db != nil {
			return db, nil
		}
		return nil, domain.ErrInvalidArgument
	default:
		return nil, domain.ErrInvalidExecContext
	}
}

func execSQL(ctx context.Context, db *sql.DB, tx repository.Tx, q string, args ...any) (sql.Result, error) {
	ex, err := getExecutor(db, tx)
	if err != nil {
		return nil, err
	}
	return ex.ExecContext(ctx, q, args...)
}

func pickRow(ctx context.Context, db *sql.DB, tx repository.Tx, q string, args ...any) (*sql.Row, error) {
	ex, err := getExecutor(db, tx)
	if err != nil {
		return nil, err
	}
	return ex.QueryRowContext(ctx, q, args...), nil
}

func queryRows(ctx context.Context, db *sql.DB, tx repository.Tx, q string, args ...any) (*sql.Rows, error) {
	ex, err := getExecutor(db, tx)
	if err != nil {
		return nil, err
	}
	return ex.QueryContext(ctx, q, args...)
}

func affected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// guarded runs a conditional update and reports whether it matched a row.
func guarded(ctx context.Context, db *sql.DB, tx repository.Tx, q string, args ...any) (bool, error) {
	res, err := execSQL(ctx, db, tx, q, args...)
	if err != nil {
		return false, err
	}
	n, err := affected(res)
	return n == 1, err
}

// mustAffect maps a zero-row write onto ErrNotFound.
func mustAffect(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

func ts(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func now() string { return ts(time.Now()) }

func nullTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return ts(*t)
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTS(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTS(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullable(s sql.NullString) *string {
	if !s.Valid || s.String == "" {
		return nil
	}
	v := s.String
	return &v
}
