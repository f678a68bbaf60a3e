// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
)

// MaxEmailLength is the longest address accepted (RFC 5321 path limit).
const MaxEmailLength = 254

// usernameRegex matches usernames that:
// - Start with a letter (a-z, A-Z)
// - Contain only letters, numbers, and underscores
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// Identity is a registered user account.
type Identity struct {
	ID            int64
	Username      string
	Email         string
	EmailVerified bool
	CreatedAt     time.Time
}

// NewIdentity creates an unverified Identity after validating username and
// email. The ID is assigned by the store on Create.
func NewIdentity(username, email string) (*Identity, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	return &Identity{
		Username:  username,
		Email:     email,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}, nil
}

// Phase returns the credential phase implied by the verified flag.
func (i *Identity) Phase() CredentialPhase {
	if i.EmailVerified {
		return PhaseVerified
	}
	return PhaseUnverified
}

// ValidateUsername validates a username against rules.
// Username requirements:
// - Length: MinUsernameLength to MaxUsernameLength characters
// - Must start with a letter
// - Can contain only letters (a-z, A-Z), numbers (0-9), and underscores (_)
func ValidateUsername(username string) error {
	switch {
	case username == "":
		return validationError("AUTH_INVALID_USERNAME", "username cannot be empty")
	case len(username) < MinUsernameLength || len(username) > MaxUsernameLength:
		return oops.Code("AUTH_INVALID_USERNAME").
			With("min", MinUsernameLength).
			With("max", MaxUsernameLength).
			Public("username must be between 3 and 30 characters").
			Errorf("username length %d out of range", len(username))
	case !usernameRegex.MatchString(username):
		return validationError("AUTH_INVALID_USERNAME",
			"username must start with a letter and contain only letters, numbers, and underscores")
	}
	return nil
}

// ValidateEmail checks that email is a single bare address.
func ValidateEmail(email string) error {
	if email == "" {
		return validationError("AUTH_INVALID_EMAIL", "email address cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return validationError("AUTH_INVALID_EMAIL", "email address is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return validationError("AUTH_INVALID_EMAIL", "email address is not valid")
	}
	return nil
}

// IdentityRepository manages identity persistence.
// Implementations enforce case-insensitive uniqueness of username and email
// and report violations as ErrDuplicateUsername / ErrDuplicateEmail.
type IdentityRepository interface {
	// Create stores a new identity and sets its ID and CreatedAt.
	Create(ctx context.Context, identity *Identity) error

	// GetByID retrieves an identity by ID.
	GetByID(ctx context.Context, id int64) (*Identity, error)

	// GetByUsername retrieves an identity by username (case-insensitive).
	GetByUsername(ctx context.Context, username string) (*Identity, error)

	// GetByEmail retrieves an identity by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*Identity, error)

	// MarkEmailVerified sets the verified flag of an unverified identity.
	// Returns ErrNotFound if no unverified identity has the given ID.
	MarkEmailVerified(ctx context.Context, id int64) error
}
