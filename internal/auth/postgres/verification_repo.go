// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/holomush/holochat/internal/auth"
)

// VerificationCodeRepository implements auth.VerificationCodeRepository using PostgreSQL.
type VerificationCodeRepository struct {
	db DB
}

// NewVerificationCodeRepository creates a new VerificationCodeRepository.
func NewVerificationCodeRepository(db DB) *VerificationCodeRepository {
	return &VerificationCodeRepository{db: db}
}

// Create stores a new verification code.
func (r *VerificationCodeRepository) Create(ctx context.Context, code *auth.VerificationCode) error {
	_, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO verification_codes (code, identity_id, created_at)
		VALUES ($1, $2, $3)
	`, code.Code, code.IdentityID, code.CreatedAt)
	if err != nil {
		return oops.Code("VERIFICATION_CREATE_FAILED").
			With("operation", "insert verification code").
			With("identity_id", code.IdentityID).
			Wrap(err)
	}
	return nil
}

// GetByCode retrieves a verification code by exact value.
func (r *VerificationCodeRepository) GetByCode(ctx context.Context, code string) (*auth.VerificationCode, error) {
	var vc auth.VerificationCode
	err := conn(ctx, r.db).QueryRow(ctx, `
		SELECT code, identity_id, created_at
		FROM verification_codes
		WHERE code = $1
	`, code).Scan(&vc.Code, &vc.IdentityID, &vc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("VERIFICATION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("VERIFICATION_GET_FAILED").
			With("operation", "get verification code").
			Wrap(err)
	}
	return &vc, nil
}

// Delete removes a verification code.
func (r *VerificationCodeRepository) Delete(ctx context.Context, code string) error {
	tag, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM verification_codes WHERE code = $1`, code)
	if err != nil {
		return oops.Code("VERIFICATION_DELETE_FAILED").
			With("operation", "delete verification code").
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("VERIFICATION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteCreatedBefore removes codes created before cutoff.
func (r *VerificationCodeRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM verification_codes WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, oops.Code("VERIFICATION_PURGE_FAILED").
			With("operation", "delete expired verification codes").
			With("cutoff", cutoff).
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

var _ auth.VerificationCodeRepository = (*VerificationCodeRepository)(nil)
