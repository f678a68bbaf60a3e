// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/holochat/internal/auth"
)

// SessionTokenRepository implements auth.SessionTokenRepository using PostgreSQL.
type SessionTokenRepository struct {
	db DB
}

// NewSessionTokenRepository creates a new SessionTokenRepository.
func NewSessionTokenRepository(db DB) *SessionTokenRepository {
	return &SessionTokenRepository{db: db}
}

// Create stores a new session token.
func (r *SessionTokenRepository) Create(ctx context.Context, token *auth.SessionToken) error {
	_, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO session_tokens (id, identity_id, token_hash, application, scope, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		token.ID.String(),
		token.IdentityID,
		token.TokenHash,
		token.Application,
		string(token.Scope),
		token.IssuedAt,
		token.ExpiresAt,
	)
	if err != nil {
		return oops.Code("TOKEN_CREATE_FAILED").
			With("operation", "insert session token").
			With("id", token.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a session token by its hash.
func (r *SessionTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.SessionToken, error) {
	var (
		token    auth.SessionToken
		idStr    string
		scopeStr string
	)
	err := conn(ctx, r.db).QueryRow(ctx, `
		SELECT id, identity_id, token_hash, application, scope, issued_at, expires_at
		FROM session_tokens
		WHERE token_hash = $1
	`, tokenHash).Scan(
		&idStr,
		&token.IdentityID,
		&token.TokenHash,
		&token.Application,
		&scopeStr,
		&token.IssuedAt,
		&token.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TOKEN_GET_FAILED").
			With("operation", "get session token by hash").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("TOKEN_GET_FAILED").
			With("operation", "parse session token id").
			With("id", idStr).
			Wrap(err)
	}
	token.ID = id
	token.Scope = auth.Scope(scopeStr)
	return &token, nil
}

// DeleteExpired removes tokens expired at now.
func (r *SessionTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM session_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, oops.Code("TOKEN_PURGE_FAILED").
			With("operation", "delete expired session tokens").
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

var _ auth.SessionTokenRepository = (*SessionTokenRepository)(nil)
