// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements the auth repositories on PostgreSQL.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/holomush/holochat/internal/auth"
)

// Unique index names from the accounts migration.
const (
	constraintUsername     = "identities_username_lower_key"
	constraintEmail        = "identities_email_lower_key"
	constraintCredentialID = "credentials_kind_identifier_key"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is a connection pool. *pgxpool.Pool and pgxmock pools satisfy it.
type DB interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

type txKey struct{}

// conn returns the transaction carried by ctx, or db when there is none.
func conn(ctx context.Context, db DB) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return db
}

// Transactor implements auth.Transactor. It stores the active pgx.Tx in
// context so repository calls made with that context join the transaction.
type Transactor struct {
	db DB
}

// NewTransactor creates a Transactor backed by db.
func NewTransactor(db DB) *Transactor {
	return &Transactor{db: db}
}

// InTransaction begins a transaction, stores it in context, and calls fn.
// If fn returns nil the transaction is committed, otherwise it is rolled back
// and fn's error is returned unchanged. A context that already carries a
// transaction is reused.
func (t *Transactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := t.db.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return oops.Code("TX_ROLLBACK_FAILED").
				With("cause", err.Error()).
				Wrap(rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return nil
}

// duplicateOf maps a unique violation to the matching auth sentinel.
// Returns nil if err is not a unique violation on a known index.
func duplicateOf(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return nil
	}
	switch pgErr.ConstraintName {
	case constraintUsername:
		return auth.ErrDuplicateUsername
	case constraintEmail, constraintCredentialID:
		return auth.ErrDuplicateEmail
	}
	return nil
}

var _ auth.Transactor = (*Transactor)(nil)
