// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/holochat/internal/auth"
)

// VerificationCodeRepository implements auth.VerificationCodeRepository using SQLite.
type VerificationCodeRepository struct {
	db *sql.DB
}

// NewVerificationCodeRepository creates a new VerificationCodeRepository.
func NewVerificationCodeRepository(db *sql.DB) *VerificationCodeRepository {
	return &VerificationCodeRepository{db: db}
}

// Create stores a new verification code.
func (r *VerificationCodeRepository) Create(ctx context.Context, code *auth.VerificationCode) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO verification_codes (code, identity_id, created_at) VALUES (?, ?, ?)`,
		code.Code, code.IdentityID, toMicros(code.CreatedAt),
	)
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
	var (
		vc        auth.VerificationCode
		createdAt int64
	)
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT code, identity_id, created_at FROM verification_codes WHERE code = ?`, code,
	).Scan(&vc.Code, &vc.IdentityID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("VERIFICATION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("VERIFICATION_GET_FAILED").
			With("operation", "get verification code").
			Wrap(err)
	}
	vc.CreatedAt = fromMicros(createdAt)
	return &vc, nil
}

// Delete removes a verification code.
func (r *VerificationCodeRepository) Delete(ctx context.Context, code string) error {
	n, err := execCount(ctx, conn(ctx, r.db), `DELETE FROM verification_codes WHERE code = ?`, code)
	if err != nil {
		return oops.Code("VERIFICATION_DELETE_FAILED").
			With("operation", "delete verification code").
			Wrap(err)
	}
	if n == 0 {
		return oops.Code("VERIFICATION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteCreatedBefore removes codes created before cutoff.
func (r *VerificationCodeRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := execCount(ctx, conn(ctx, r.db), `DELETE FROM verification_codes WHERE created_at < ?`, toMicros(cutoff))
	if err != nil {
		return 0, oops.Code("VERIFICATION_PURGE_FAILED").
			With("operation", "delete expired verification codes").
			Wrap(err)
	}
	return n, nil
}

var _ auth.VerificationCodeRepository = (*VerificationCodeRepository)(nil)
