// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/holochat/internal/auth"
)

// SessionTokenRepository implements auth.SessionTokenRepository using SQLite.
type SessionTokenRepository struct {
	db *sql.DB
}

// NewSessionTokenRepository creates a new SessionTokenRepository.
func NewSessionTokenRepository(db *sql.DB) *SessionTokenRepository {
	return &SessionTokenRepository{db: db}
}

// Create stores a new session token.
func (r *SessionTokenRepository) Create(ctx context.Context, token *auth.SessionToken) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO session_tokens (id, identity_id, token_hash, application, scope, issued_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		token.ID.String(),
		token.IdentityID,
		token.TokenHash,
		token.Application,
		string(token.Scope),
		toMicros(token.IssuedAt),
		toMicros(token.ExpiresAt),
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
		token               auth.SessionToken
		idStr, scopeStr     string
		issuedAt, expiresAt int64
	)
	err := conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, identity_id, token_hash, application, scope, issued_at, expires_at
		FROM session_tokens
		WHERE token_hash = ?`, tokenHash,
	).Scan(&idStr, &token.IdentityID, &token.TokenHash, &token.Application, &scopeStr, &issuedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
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
	token.IssuedAt = fromMicros(issuedAt)
	token.ExpiresAt = fromMicros(expiresAt)
	return &token, nil
}

// DeleteExpired removes tokens expired at now.
func (r *SessionTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := execCount(ctx, conn(ctx, r.db), `DELETE FROM session_tokens WHERE expires_at <= ?`, toMicros(now))
	if err != nil {
		return 0, oops.Code("TOKEN_PURGE_FAILED").
			With("operation", "delete expired session tokens").
			Wrap(err)
	}
	return n, nil
}

var _ auth.SessionTokenRepository = (*SessionTokenRepository)(nil)
