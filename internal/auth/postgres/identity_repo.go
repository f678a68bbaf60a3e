// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/holomush/holochat/internal/auth"
)

// IdentityRepository implements auth.IdentityRepository using PostgreSQL.
type IdentityRepository struct {
	db DB
}

// NewIdentityRepository creates a new IdentityRepository.
func NewIdentityRepository(db DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

const identityColumns = `id, username, email, email_verified, created_at`

// Create stores a new identity and sets its ID.
func (r *IdentityRepository) Create(ctx context.Context, identity *auth.Identity) error {
	err := conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO identities (username, email, email_verified, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, identity.Username, identity.Email, identity.EmailVerified, identity.CreatedAt).Scan(&identity.ID)
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
	return nil
}

// GetByID retrieves an identity by ID.
func (r *IdentityRepository) GetByID(ctx context.Context, id int64) (*auth.Identity, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE id = $1
	`, id)
	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("IDENTITY_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("IDENTITY_GET_FAILED").
			With("operation", "get identity by id").
			With("id", id).
			Wrap(err)
	}
	return identity, nil
}

// GetByUsername retrieves an identity by username (case-insensitive).
func (r *IdentityRepository) GetByUsername(ctx context.Context, username string) (*auth.Identity, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE LOWER(username) = LOWER($1)
	`, username)
	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("IDENTITY_NOT_FOUND").With("username", username).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("IDENTITY_GET_FAILED").
			With("operation", "get identity by username").
			With("username", username).
			Wrap(err)
	}
	return identity, nil
}

// GetByEmail retrieves an identity by email (case-insensitive).
func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE LOWER(email) = LOWER($1)
	`, email)
	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("IDENTITY_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("IDENTITY_GET_FAILED").
			With("operation", "get identity by email").
			With("email", email).
			Wrap(err)
	}
	return identity, nil
}

// MarkEmailVerified flips the verified flag of an unverified identity.
func (r *IdentityRepository) MarkEmailVerified(ctx context.Context, id int64) error {
	tag, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE identities SET email_verified = TRUE
		WHERE id = $1 AND email_verified = FALSE
	`, id)
	if err != nil {
		return oops.Code("IDENTITY_VERIFY_FAILED").
			With("operation", "mark email verified").
			With("id", id).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("IDENTITY_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	return nil
}

func scanIdentity(row pgx.Row) (*auth.Identity, error) {
	var identity auth.Identity
	if err := row.Scan(
		&identity.ID,
		&identity.Username,
		&identity.Email,
		&identity.EmailVerified,
		&identity.CreatedAt,
	); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}
	return &identity, nil
}

var _ auth.IdentityRepository = (*IdentityRepository)(nil)
