// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package sqlite implements the auth repositories on an embedded SQLite
// database. It backs single-node deployments and end-to-end tests.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/samber/oops"
	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/holomush/holochat/internal/auth"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Open opens the SQLite database at path and applies pending migrations.
// SQLite allows one writer, so the pool is limited to a single connection.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, oops.Code("SQLITE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, oops.Code("SQLITE_OPEN_FAILED").
				With("path", path).
				With("pragma", pragma).
				Wrap(err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "set goose dialect").Wrap(err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return oops.Code("MIGRATION_UP_FAILED").With("operation", "goose up").Wrap(err)
	}
	return nil
}

// DBTX is the subset of database/sql used by the repositories.
// Both *sql.DB and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

func conn(ctx context.Context, db *sql.DB) DBTX {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

// Transactor implements auth.Transactor over database/sql.
type Transactor struct {
	db *sql.DB
}

// NewTransactor creates a Transactor for db.
func NewTransactor(db *sql.DB) *Transactor {
	return &Transactor{db: db}
}

// InTransaction runs fn in a transaction carried by its context. It commits
// when fn returns nil and rolls back otherwise, returning fn's error as is.
func (t *Transactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return oops.Code("TX_ROLLBACK_FAILED").With("cause", err.Error()).Wrap(rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return nil
}

// duplicateOf maps a UNIQUE constraint failure to the matching auth sentinel.
func duplicateOf(err error) error {
	var sqliteErr *sqlitedrv.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return nil
	}
	msg := sqliteErr.Error()
	switch {
	case strings.Contains(msg, "identities.username"):
		return auth.ErrDuplicateUsername
	case strings.Contains(msg, "identities.email"), strings.Contains(msg, "credentials.identifier"):
		return auth.ErrDuplicateEmail
	}
	return nil
}

// execCount runs a statement and returns the number of affected rows.
func execCount(ctx context.Context, q DBTX, query string, args ...any) (int64, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err //nolint:wrapcheck // callers wrap with operation context
	}
	return res.RowsAffected() //nolint:wrapcheck // callers wrap with operation context
}

// Times are stored as UTC unix microseconds.
func toMicros(t time.Time) int64 { return t.UnixMicro() }

func fromMicros(us int64) time.Time { return time.UnixMicro(us).UTC() }

var _ auth.Transactor = (*Transactor)(nil)
