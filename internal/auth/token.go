// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenBytes  = 32                 // 32 bytes = 64 hex chars
	SessionTokenExpiry = 7 * 24 * time.Hour // 7 day expiry
)

// DefaultApplication is the issuing application tag stamped on tokens.
const DefaultApplication = "holochat"

// Scope is the capability granted by a session token.
type Scope string

// ScopeFullControl is the only scope issued; it grants every capability.
const ScopeFullControl Scope = "full_control"

// SessionToken is a persisted bearer credential. Only the SHA-256 hash of the
// token is stored; the plaintext is handed to the client once.
type SessionToken struct {
	ID          ulid.ULID
	IdentityID  int64
	TokenHash   string
	Application string
	Scope       Scope
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// NewSessionToken creates a full-control SessionToken issued at issuedAt.
// ExpiresAt is always issuedAt plus SessionTokenExpiry.
func NewSessionToken(identityID int64, tokenHash, application string, issuedAt time.Time) (*SessionToken, error) {
	if identityID <= 0 {
		return nil, oops.Code("TOKEN_INVALID_IDENTITY").
			With("identity_id", identityID).
			Errorf("identity ID must be positive")
	}
	if tokenHash == "" {
		return nil, oops.Code("TOKEN_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if application == "" {
		return nil, oops.Code("TOKEN_INVALID_APPLICATION").Errorf("application cannot be empty")
	}
	if issuedAt.IsZero() {
		return nil, oops.Code("TOKEN_INVALID_ISSUE_TIME").Errorf("issue time cannot be zero")
	}

	issuedAt = issuedAt.UTC().Truncate(time.Microsecond)
	return &SessionToken{
		ID:          ulid.Make(),
		IdentityID:  identityID,
		TokenHash:   tokenHash,
		Application: application,
		Scope:       ScopeFullControl,
		IssuedAt:    issuedAt,
		ExpiresAt:   issuedAt.Add(SessionTokenExpiry),
	}, nil
}

// IsExpiredAt returns true if the token would be expired at the given time.
func (t *SessionToken) IsExpiredAt(at time.Time) bool {
	return !at.Before(t.ExpiresAt)
}

// GenerateSessionToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
// The plaintext token is sent to the client; the hash is stored in the database.
func GenerateSessionToken() (token, hash string, err error) {
	tokenBytes := make([]byte, SessionTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	hash = HashSessionToken(token)

	return token, hash, nil
}

// HashSessionToken computes the SHA256 hash of a session token.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// SessionTokenRepository manages session token persistence.
type SessionTokenRepository interface {
	// Create stores a new session token.
	Create(ctx context.Context, token *SessionToken) error

	// GetByTokenHash retrieves a token by its hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*SessionToken, error)

	// DeleteExpired removes tokens expired at now and returns the count
	// of deleted records.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
