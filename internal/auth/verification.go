// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// VerificationCode proves the registrant controls the declared email address.
// It is consumed, and removed, on the identity's first successful login.
type VerificationCode struct {
	Code       string
	IdentityID int64
	CreatedAt  time.Time
}

// NewVerificationCode creates a random code bound to identityID.
func NewVerificationCode(identityID int64) (*VerificationCode, error) {
	if identityID <= 0 {
		return nil, oops.Code("VERIFICATION_INVALID_IDENTITY").
			With("identity_id", identityID).
			Errorf("identity ID must be positive")
	}
	code, err := uuid.NewRandom()
	if err != nil {
		return nil, oops.Code("VERIFICATION_GENERATE_FAILED").
			With("operation", "uuid.NewRandom").
			Wrap(err)
	}
	return &VerificationCode{
		Code:       code.String(),
		IdentityID: identityID,
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}, nil
}

// Matches reports, in constant time, whether candidate is this code and it
// belongs to identityID.
func (v *VerificationCode) Matches(identityID int64, candidate string) bool {
	same := subtle.ConstantTimeCompare([]byte(v.Code), []byte(candidate)) == 1
	return same && v.IdentityID == identityID
}

// IsExpiredAt reports whether the code is older than ttl at t.
// A ttl of zero means codes never expire.
func (v *VerificationCode) IsExpiredAt(t time.Time, ttl time.Duration) bool {
	return ttl > 0 && t.After(v.CreatedAt.Add(ttl))
}

// VerificationCodeRepository manages verification code persistence.
type VerificationCodeRepository interface {
	// Create stores a new code. An identity holds at most one code.
	Create(ctx context.Context, code *VerificationCode) error

	// GetByCode retrieves a code by exact value.
	GetByCode(ctx context.Context, code string) (*VerificationCode, error)

	// Delete removes a code. Returns ErrNotFound if it was already removed.
	Delete(ctx context.Context, code string) error

	// DeleteCreatedBefore removes codes created before cutoff and returns
	// the count of deleted records.
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
