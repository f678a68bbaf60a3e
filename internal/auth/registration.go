// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"

	"github.com/samber/oops"
	"golang.org/x/sync/errgroup"
)

// RegistrationDeps holds the collaborators of a RegistrationService.
// Policy and Logger are optional; every other field is required.
type RegistrationDeps struct {
	Identities  IdentityRepository
	Credentials CredentialRepository
	Codes       VerificationCodeRepository
	Transactor  Transactor
	Hasher      Hasher
	Notifier    Notifier
	Policy      *PasswordPolicy
	Logger      *slog.Logger
}

// RegistrationService admits new identities.
type RegistrationService struct {
	identities  IdentityRepository
	credentials CredentialRepository
	codes       VerificationCodeRepository
	tx          Transactor
	hasher      Hasher
	notifier    Notifier
	policy      PasswordPolicy
	logger      *slog.Logger
}

// NewRegistrationService creates a new RegistrationService.
func NewRegistrationService(deps RegistrationDeps) (*RegistrationService, error) {
	switch {
	case deps.Identities == nil:
		return nil, oops.Errorf("identity repository is required")
	case deps.Credentials == nil:
		return nil, oops.Errorf("credential repository is required")
	case deps.Codes == nil:
		return nil, oops.Errorf("verification code repository is required")
	case deps.Transactor == nil:
		return nil, oops.Errorf("transactor is required")
	case deps.Hasher == nil:
		return nil, oops.Errorf("hasher is required")
	case deps.Notifier == nil:
		return nil, oops.Errorf("notifier is required")
	}

	policy := DefaultPasswordPolicy()
	if deps.Policy != nil {
		policy = *deps.Policy
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RegistrationService{
		identities:  deps.Identities,
		credentials: deps.Credentials,
		codes:       deps.Codes,
		tx:          deps.Transactor,
		hasher:      deps.Hasher,
		notifier:    deps.Notifier,
		policy:      policy,
		logger:      logger,
	}, nil
}

// Policy returns the password policy applied to registrations.
func (s *RegistrationService) Policy() PasswordPolicy {
	return s.policy
}

// Register creates an unverified identity with a password credential and a
// verification code, then emails the code to the registrant.
//
// Validation failures (bad username or email, duplicates, weak password) carry
// a public message. Any other error is operational; the identity, credential
// and code are written in one transaction so none of them survives it.
func (s *RegistrationService) Register(ctx context.Context, username, email, password string) (*Identity, error) {
	identity, err := NewIdentity(username, email)
	if err != nil {
		return nil, err
	}

	// The policy verdict is only reported after the uniqueness checks.
	var policyCheck errgroup.Group
	policyCheck.Go(func() error {
		return s.policy.Check(password)
	})
	availErr := s.checkAvailable(ctx, identity)
	policyErr := policyCheck.Wait()
	if availErr != nil {
		return nil, availErr
	}
	if policyErr != nil {
		return nil, policyErr
	}

	var code *VerificationCode
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		var txErr error
		code, txErr = s.persist(ctx, identity, password)
		return txErr
	})
	if err != nil {
		if dupErr := duplicateError(err, identity); dupErr != nil {
			return nil, dupErr
		}
		return nil, err
	}

	s.sendVerification(ctx, identity, code)

	s.logger.InfoContext(ctx, "identity registered",
		"identity_id", identity.ID,
		"username", identity.Username,
	)
	return identity, nil
}

// checkAvailable rejects usernames and emails that are already registered.
// The store's unique constraints remain authoritative; see duplicateError.
func (s *RegistrationService) checkAvailable(ctx context.Context, identity *Identity) error {
	_, err := s.identities.GetByUsername(ctx, identity.Username)
	switch {
	case err == nil:
		return duplicateUsername(identity.Username)
	case !errors.Is(err, ErrNotFound):
		return oops.Code("AUTH_REGISTRATION_FAILED").
			With("operation", "get identity by username").
			Wrap(err)
	}

	_, err = s.identities.GetByEmail(ctx, identity.Email)
	switch {
	case err == nil:
		return duplicateEmail()
	case !errors.Is(err, ErrNotFound):
		return oops.Code("AUTH_REGISTRATION_FAILED").
			With("operation", "get identity by email").
			Wrap(err)
	}
	return nil
}

// persist writes the identity, its credential and its verification code.
// It must run inside a transaction.
func (s *RegistrationService) persist(ctx context.Context, identity *Identity, password string) (*VerificationCode, error) {
	if err := s.identities.Create(ctx, identity); err != nil {
		return nil, oops.Code("AUTH_REGISTRATION_FAILED").
			With("operation", "create identity").
			Wrap(err)
	}

	salt, err := s.hasher.GenerateSalt()
	if err != nil {
		return nil, oops.Code("AUTH_REGISTRATION_FAILED").
			With("operation", "generate salt").
			With("identity_id", identity.ID).
			Wrap(err)
	}
	hash, err := s.hasher.Hash(password, salt)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTRATION_FAILED").
			With("operation", "hash password").
			With("identity_id", identity.ID).
			Wrap(err)
	}
	cred, err := NewPasswordCredential(identity.ID, identity.Email, salt, hash)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTRATION_FAILED").
			With("operation", "new credential").
			With("identity_id", identity.ID).
			Wrap(err)
	}
	if err := s.credentials.Create(ctx, cred); err != nil {
		return nil, oops.Code("AUTH_REGISTRATION_FAILED").
			With("operation", "create credential").
			With("identity_id", identity.ID).
			Wrap(err)
	}

	code, err := NewVerificationCode(identity.ID)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTRATION_FAILED").
			With("operation", "new verification code").
			With("identity_id", identity.ID).
			Wrap(err)
	}
	if err := s.codes.Create(ctx, code); err != nil {
		return nil, oops.Code("AUTH_REGISTRATION_FAILED").
			With("operation", "create verification code").
			With("identity_id", identity.ID).
			Wrap(err)
	}
	return code, nil
}

// sendVerification emails the code. Delivery failures are logged, never returned.
func (s *RegistrationService) sendVerification(ctx context.Context, identity *Identity, code *VerificationCode) {
	subject := "Confirm your HoloChat email address"
	plain := fmt.Sprintf(
		"Hi %s,\n\nSign in with your email address and this code as the password to confirm your account:\n\n%s\n\nAfter that, sign in with your password.",
		identity.Username, code.Code,
	)
	htmlBody := fmt.Sprintf(
		`<p>Hi %s,</p><p>Sign in with your email address and this code as the password to confirm your account:</p><p><code>%s</code></p><p>After that, sign in with your password.</p>`,
		html.EscapeString(identity.Username), code.Code,
	)

	if err := s.notifier.SendEmail(ctx, identity.Email, subject, plain, htmlBody); err != nil {
		s.logger.WarnContext(ctx, "best-effort verification email failed",
			"operation", "send_verification_email",
			"identity_id", identity.ID,
			"error", err.Error(),
		)
	}
}

// duplicateError maps a uniqueness violation reported at write time onto the
// same failure the pre-check would have produced. Returns nil for other errors.
func duplicateError(err error, identity *Identity) error {
	switch {
	case errors.Is(err, ErrDuplicateUsername):
		return duplicateUsername(identity.Username)
	case errors.Is(err, ErrDuplicateEmail):
		return duplicateEmail()
	}
	return nil
}

func duplicateUsername(username string) error {
	return validationError("AUTH_DUPLICATE_USERNAME", fmt.Sprintf("username %q is already taken", username))
}

func duplicateEmail() error {
	return validationError("AUTH_DUPLICATE_EMAIL", "email address is already registered")
}
