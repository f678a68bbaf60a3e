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

// CredentialRepository implements auth.CredentialRepository using PostgreSQL.
type CredentialRepository struct {
	db DB
}

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(db DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Create stores a new credential and sets its ID.
func (r *CredentialRepository) Create(ctx context.Context, cred *auth.Credential) error {
	err := conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO credentials (identity_id, kind, identifier, salt, hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, cred.IdentityID, string(cred.Kind), cred.Identifier, cred.Salt, cred.Hash, cred.CreatedAt).Scan(&cred.ID)
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
	return nil
}

// GetByIdentifier retrieves a credential by kind and identifier (case-insensitive).
func (r *CredentialRepository) GetByIdentifier(ctx context.Context, kind auth.CredentialKind, identifier string) (*auth.Credential, error) {
	var (
		cred    auth.Credential
		kindStr string
	)
	err := conn(ctx, r.db).QueryRow(ctx, `
		SELECT id, identity_id, kind, identifier, salt, hash, created_at
		FROM credentials
		WHERE kind = $1 AND LOWER(identifier) = LOWER($2)
	`, string(kind), identifier).Scan(
		&cred.ID,
		&cred.IdentityID,
		&kindStr,
		&cred.Identifier,
		&cred.Salt,
		&cred.Hash,
		&cred.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
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
	return &cred, nil
}

var _ auth.CredentialRepository = (*CredentialRepository)(nil)
