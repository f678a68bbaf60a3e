// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"

	"github.com/samber/oops"
)

// CredentialKind names the kind of secret a credential holds.
type CredentialKind string

// CredentialKindPassword is the only kind issued by this service.
const CredentialKindPassword CredentialKind = "password"

// CredentialPhase is the state of an identity's credential.
//
// An Unverified identity accepts only its one-time verification code as the
// secret; a Verified identity accepts only the permanent password.
type CredentialPhase int

// Credential phases.
const (
	PhaseUnverified CredentialPhase = iota
	PhaseVerified
)

// String returns the phase name used in logs.
func (p CredentialPhase) String() string {
	if p == PhaseVerified {
		return "verified"
	}
	return "unverified"
}

// Credential is salted secret material bound to one identity.
type Credential struct {
	ID         int64
	IdentityID int64
	Kind       CredentialKind
	Identifier string
	Salt       []byte
	Hash       []byte
	CreatedAt  time.Time
}

// NewPasswordCredential creates a validated password Credential.
// identifier is the email the identity registered with.
func NewPasswordCredential(identityID int64, identifier string, salt, hash []byte) (*Credential, error) {
	if identityID <= 0 {
		return nil, oops.Code("CREDENTIAL_INVALID_IDENTITY").
			With("identity_id", identityID).
			Errorf("identity ID must be positive")
	}
	if identifier == "" {
		return nil, oops.Code("CREDENTIAL_INVALID_IDENTIFIER").Errorf("identifier cannot be empty")
	}
	if len(salt) != SaltLength {
		return nil, oops.Code("CREDENTIAL_INVALID_SALT").
			With("length", len(salt)).
			Errorf("salt must be %d bytes", SaltLength)
	}
	if len(hash) != DigestLength {
		return nil, oops.Code("CREDENTIAL_INVALID_HASH").
			With("length", len(hash)).
			Errorf("hash must be %d bytes", DigestLength)
	}
	return &Credential{
		IdentityID: identityID,
		Kind:       CredentialKindPassword,
		Identifier: identifier,
		Salt:       salt,
		Hash:       hash,
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}, nil
}

// CredentialRepository manages credential persistence.
type CredentialRepository interface {
	// Create stores a new credential and sets its ID.
	// Returns ErrDuplicateEmail if a credential of the same kind already uses
	// the identifier (case-insensitive).
	Create(ctx context.Context, cred *Credential) error

	// GetByIdentifier retrieves the credential of the given kind whose
	// identifier matches (case-insensitive).
	GetByIdentifier(ctx context.Context, kind CredentialKind, identifier string) (*Credential, error)
}
