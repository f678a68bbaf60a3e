// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"
)

// dummySalt and dummyDigest are verified against when no credential exists so
// an unknown email costs the same hashing work as a wrong password.
var (
	dummySalt   = make([]byte, SaltLength)
	dummyDigest = make([]byte, DigestLength)
)

// TokenIssuerDeps holds the collaborators of a TokenIssuer.
// Limiter, Logger, Now, Application and CodeTTL are optional.
type TokenIssuerDeps struct {
	Identities  IdentityRepository
	Credentials CredentialRepository
	Codes       VerificationCodeRepository
	Tokens      SessionTokenRepository
	Transactor  Transactor
	Hasher      Hasher
	Limiter     AttemptLimiter
	Logger      *slog.Logger

	// Application is stamped on issued tokens. Defaults to DefaultApplication.
	Application string

	// CodeTTL bounds the age of a verification code. Zero disables expiry.
	CodeTTL time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// IssuedToken is the outcome of a successful token request.
type IssuedToken struct {
	// Token is the plaintext bearer token; it is not stored anywhere.
	Token   string
	Session *SessionToken
}

// TokenIssuer converts credentials into session tokens.
type TokenIssuer struct {
	identities  IdentityRepository
	credentials CredentialRepository
	codes       VerificationCodeRepository
	tokens      SessionTokenRepository
	tx          Transactor
	hasher      Hasher
	limiter     AttemptLimiter
	logger      *slog.Logger
	application string
	codeTTL     time.Duration
	now         func() time.Time
}

// NewTokenIssuer creates a new TokenIssuer.
func NewTokenIssuer(deps TokenIssuerDeps) (*TokenIssuer, error) {
	switch {
	case deps.Identities == nil:
		return nil, oops.Errorf("identity repository is required")
	case deps.Credentials == nil:
		return nil, oops.Errorf("credential repository is required")
	case deps.Codes == nil:
		return nil, oops.Errorf("verification code repository is required")
	case deps.Tokens == nil:
		return nil, oops.Errorf("session token repository is required")
	case deps.Transactor == nil:
		return nil, oops.Errorf("transactor is required")
	case deps.Hasher == nil:
		return nil, oops.Errorf("hasher is required")
	case deps.CodeTTL < 0:
		return nil, oops.With("code_ttl", deps.CodeTTL).Errorf("code TTL cannot be negative")
	}

	issuer := &TokenIssuer{
		identities:  deps.Identities,
		credentials: deps.Credentials,
		codes:       deps.Codes,
		tokens:      deps.Tokens,
		tx:          deps.Transactor,
		hasher:      deps.Hasher,
		limiter:     deps.Limiter,
		logger:      deps.Logger,
		application: deps.Application,
		codeTTL:     deps.CodeTTL,
		now:         deps.Now,
	}
	if issuer.logger == nil {
		issuer.logger = slog.Default()
	}
	if issuer.application == "" {
		issuer.application = DefaultApplication
	}
	if issuer.now == nil {
		issuer.now = time.Now
	}
	return issuer, nil
}

// RequestToken authenticates email and secret and issues a session token.
//
// While the identity is unverified, secret must be its verification code;
// consuming the code verifies the identity. Once verified, secret must be the
// password. Every credential failure returns the same AUTH_INVALID_CREDENTIALS
// error, whether the account is unknown, the password is wrong or the code is bad.
func (s *TokenIssuer) RequestToken(ctx context.Context, email, secret string) (*IssuedToken, error) {
	email = strings.TrimSpace(email)

	if err := s.throttle(ctx, email); err != nil {
		return nil, err
	}

	cred, err := s.credentials.GetByIdentifier(ctx, CredentialKindPassword, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.hasher.Verify(secret, dummySalt, dummyDigest)
			return nil, invalidCredentials()
		}
		return nil, oops.Code("AUTH_TOKEN_REQUEST_FAILED").
			With("operation", "get credential by identifier").
			Wrap(err)
	}

	identity, err := s.identities.GetByID(ctx, cred.IdentityID)
	if err != nil {
		return nil, oops.Code("AUTH_TOKEN_REQUEST_FAILED").
			With("operation", "get identity by id").
			With("identity_id", cred.IdentityID).
			Wrap(err)
	}

	switch identity.Phase() {
	case PhaseVerified:
		if !s.hasher.Verify(secret, cred.Salt, cred.Hash) {
			return nil, invalidCredentials()
		}
	default:
		// Pay the password hashing cost here too so timing does not reveal
		// that the account is awaiting verification.
		s.hasher.Verify(secret, cred.Salt, cred.Hash)
		if err := s.consumeCode(ctx, identity, secret); err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "email verified", "identity_id", identity.ID)
	}

	return s.mint(ctx, identity)
}

// throttle applies the optional attempt limiter. A limiter outage lets the
// request through.
func (s *TokenIssuer) throttle(ctx context.Context, email string) error {
	if s.limiter == nil {
		return nil
	}
	allowed, err := s.limiter.Allow(ctx, strings.ToLower(email))
	if err != nil {
		s.logger.WarnContext(ctx, "best-effort attempt limiter unavailable",
			"operation", "limiter_allow",
			"error", err.Error(),
		)
		return nil
	}
	if !allowed {
		return validationError("AUTH_RATE_LIMITED", MessageRateLimited)
	}
	return nil
}

// consumeCode checks secret against the identity's verification code and, on
// a match, flips the verified flag and deletes the code in one transaction.
func (s *TokenIssuer) consumeCode(ctx context.Context, identity *Identity, secret string) error {
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		code, err := s.codes.GetByCode(ctx, secret)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return invalidCredentials()
			}
			return oops.Code("AUTH_TOKEN_REQUEST_FAILED").
				With("operation", "get verification code").
				With("identity_id", identity.ID).
				Wrap(err)
		}
		if !code.Matches(identity.ID, secret) || code.IsExpiredAt(s.now(), s.codeTTL) {
			return invalidCredentials()
		}

		if err := s.identities.MarkEmailVerified(ctx, identity.ID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return invalidCredentials()
			}
			return oops.Code("AUTH_TOKEN_REQUEST_FAILED").
				With("operation", "mark email verified").
				With("identity_id", identity.ID).
				Wrap(err)
		}
		if err := s.codes.Delete(ctx, code.Code); err != nil {
			if errors.Is(err, ErrNotFound) {
				return invalidCredentials()
			}
			return oops.Code("AUTH_TOKEN_REQUEST_FAILED").
				With("operation", "delete verification code").
				With("identity_id", identity.ID).
				Wrap(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	identity.EmailVerified = true
	return nil
}

// mint creates and persists a fresh session token for identity.
func (s *TokenIssuer) mint(ctx context.Context, identity *Identity) (*IssuedToken, error) {
	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return nil, oops.Code("AUTH_TOKEN_REQUEST_FAILED").
			With("operation", "generate session token").
			Wrap(err)
	}

	session, err := NewSessionToken(identity.ID, tokenHash, s.application, s.now())
	if err != nil {
		return nil, oops.Code("AUTH_TOKEN_REQUEST_FAILED").
			With("operation", "new session token").
			Wrap(err)
	}

	if err := s.tokens.Create(ctx, session); err != nil {
		return nil, oops.Code("AUTH_TOKEN_REQUEST_FAILED").
			With("operation", "persist session token").
			With("identity_id", identity.ID).
			Wrap(err)
	}

	return &IssuedToken{Token: token, Session: session}, nil
}

// ValidateToken returns the session for a plaintext bearer token.
func (s *TokenIssuer) ValidateToken(ctx context.Context, token string) (*SessionToken, error) {
	if token == "" {
		return nil, validationError("AUTH_TOKEN_INVALID", "invalid session token")
	}

	session, err := s.tokens.GetByTokenHash(ctx, HashSessionToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, validationError("AUTH_TOKEN_INVALID", "invalid session token")
		}
		return nil, oops.Code("AUTH_TOKEN_VALIDATE_FAILED").
			With("operation", "get session token by hash").
			Wrap(err)
	}

	if session.IsExpiredAt(s.now()) {
		return nil, validationError("AUTH_TOKEN_EXPIRED", "session token has expired")
	}
	return session, nil
}

// Purge deletes expired session tokens and, when a code TTL is configured,
// expired verification codes. It returns the number of each removed.
func (s *TokenIssuer) Purge(ctx context.Context) (tokens, codes int64, err error) {
	now := s.now()
	tokens, err = s.tokens.DeleteExpired(ctx, now)
	if err != nil {
		return 0, 0, oops.Code("AUTH_PURGE_FAILED").
			With("operation", "delete expired session tokens").
			Wrap(err)
	}
	if s.codeTTL > 0 {
		codes, err = s.codes.DeleteCreatedBefore(ctx, now.Add(-s.codeTTL))
		if err != nil {
			return tokens, 0, oops.Code("AUTH_PURGE_FAILED").
				With("operation", "delete expired verification codes").
				Wrap(err)
		}
	}
	return tokens, codes, nil
}
