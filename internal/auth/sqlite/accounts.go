// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/samber/oops"

	"github.com/holomush/holochat/internal/auth"
)

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// IdentityRepository implements auth.IdentityRepository using SQLite.
type IdentityRepository struct {
	db *sql.DB
}

// NewIdentityRepository creates a new IdentityRepository.
func NewIdentityRepository(db *sql.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// foldKey returns the lower-cased value stored in the *_key columns.
// Unlike NOCASE it folds non-ASCII letters.
func foldKey(s string) string {
	return strings.ToLower(s)
}

const identityCols = `id, username, email, email_verified, created_at`

// Create stores a new identity and sets its ID.
func (r *IdentityRepository) Create(ctx context.Context, identity *auth.Identity) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO identities (username, username_key, email, email_key, email_verified, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		identity.Username, foldKey(identity.Username),
		identity.Email, foldKey(identity.Email),
		identity.EmailVerified, toMicros(identity.CreatedAt),
	)
	if err != nil {
		if dup := duplicateOf(err); dup != nil {
			return oops.Code("IDENTITY_DUPLICATE").
				With("username", identity.Username).
				Wrap(dup)
		}
		return oops.Code("IDENTITY_CREATE_FAILED").
			With("operation", "insert identity").
			With("username", identity.Username).
			Wrap(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return oops.Code("IDENTITY_CREATE_FAILED").
			With("operation", "last insert id").
			Wrap(err)
	}
	identity.ID = id
	return nil
}

// GetByID retrieves an identity by ID.
func (r *IdentityRepository) GetByID(ctx context.Context, id int64) (*auth.Identity, error) {
	return r.getOne(ctx, "id", id, `SELECT `+identityCols+` FROM identities WHERE id = ?`, id)
}

// GetByUsername retrieves an identity by username (case-insensitive).
func (r *IdentityRepository) GetByUsername(ctx context.Context, username string) (*auth.Identity, error) {
	return r.getOne(ctx, "username", username, `SELECT `+identityCols+` FROM identities WHERE username_key = ?`, foldKey(username))
}

// GetByEmail retrieves an identity by email (case-insensitive).
func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	return r.getOne(ctx, "email", email, `SELECT `+identityCols+` FROM identities WHERE email_key = ?`, foldKey(email))
}

// getOne runs query with arg; key and value only label errors.
func (r *IdentityRepository) getOne(ctx context.Context, key string, value any, query string, arg any) (*auth.Identity, error) {
	identity, err := scanIdentity(conn(ctx, r.db).QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("IDENTITY_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("IDENTITY_GET_FAILED").
			With("operation", "get identity by "+key).
			With(key, value).
			Wrap(err)
	}
	return identity, nil
}

// MarkEmailVerified flips the verified flag of an unverified identity.
func (r *IdentityRepository) MarkEmailVerified(ctx context.Context, id int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE identities SET email_verified = 1 WHERE id = ? AND email_verified = 0`, id)
	if err != nil {
		return oops.Code("IDENTITY_VERIFY_FAILED").
			With("operation", "mark email verified").
			With("id", id).
			Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return oops.Code("IDENTITY_VERIFY_FAILED").
			With("operation", "rows affected").
			With("id", id).
			Wrap(err)
	}
	if n == 0 {
		return oops.Code("IDENTITY_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	return nil
}

func scanIdentity(s scanner) (*auth.Identity, error) {
	var (
		identity  auth.Identity
		createdAt int64
	)
	if err := s.Scan(
		&identity.ID,
		&identity.Username,
		&identity.Email,
		&identity.EmailVerified,
		&createdAt,
	); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}
	identity.CreatedAt = fromMicros(createdAt)
	return &identity, nil
}

// CredentialRepository implements auth.CredentialRepository using SQLite.
type CredentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Create stores a new credential and sets its ID.
func (r *CredentialRepository) Create(ctx context.Context, cred *auth.Credential) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO credentials (identity_id, kind, identifier, identifier_key, salt, hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cred.IdentityID, string(cred.Kind), cred.Identifier, foldKey(cred.Identifier),
		cred.Salt, cred.Hash, toMicros(cred.CreatedAt),
	)
	if err != nil {
		if dup := duplicateOf(err); dup != nil {
			return oops.Code("CREDENTIAL_DUPLICATE").
				With("identity_id", cred.IdentityID).
				Wrap(dup)
		}
		return oops.Code("CREDENTIAL_CREATE_FAILED").
			With("operation", "insert credential").
			With("identity_id", cred.IdentityID).
			Wrap(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return oops.Code("CREDENTIAL_CREATE_FAILED").
			With("operation", "last insert id").
			Wrap(err)
	}
	cred.ID = id
	return nil
}

// GetByIdentifier retrieves a credential by kind and identifier (case-insensitive).
func (r *CredentialRepository) GetByIdentifier(ctx context.Context, kind auth.CredentialKind, identifier string) (*auth.Credential, error) {
	var (
		cred      auth.Credential
		kindStr   string
		createdAt int64
	)
	err := conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, identity_id, kind, identifier, salt, hash, created_at
		FROM credentials
		WHERE kind = ? AND identifier_key = ?`,
		string(kind), foldKey(identifier),
	).Scan(&cred.ID, &cred.IdentityID, &kindStr, &cred.Identifier, &cred.Salt, &cred.Hash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("CREDENTIAL_NOT_FOUND").
			With("kind", string(kind)).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("CREDENTIAL_GET_FAILED").
			With("operation", "get credential by identifier").
			With("kind", string(kind)).
			Wrap(err)
	}
	cred.Kind = auth.CredentialKind(kindStr)
	cred.CreatedAt = fromMicros(createdAt)
	return &cred, nil
}

var (
	_ auth.IdentityRepository   = (*IdentityRepository)(nil)
	_ auth.CredentialRepository = (*CredentialRepository)(nil)
)
