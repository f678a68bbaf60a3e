// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/holochat/pkg/errutil"
)

var tracer = otel.Tracer("holochat/auth")

// FailureKind classifies a failed Result.
type FailureKind int

// Failure kinds.
const (
	FailureNone FailureKind = iota
	// FailureValidation covers malformed input, duplicates and weak passwords.
	FailureValidation
	// FailureInvalidCredentials covers every credential, code and token rejection.
	FailureInvalidCredentials
	// FailureRateLimited means the caller exceeded the attempt limit.
	FailureRateLimited
	// FailureOperational means the store or another dependency failed.
	FailureOperational
)

// String returns the kind name.
func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureValidation:
		return "validation"
	case FailureInvalidCredentials:
		return "invalid_credentials"
	case FailureRateLimited:
		return "rate_limited"
	case FailureOperational:
		return "operational"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Result is the caller-facing outcome of an account operation.
type Result struct {
	Success bool
	Message string

	// Failure and ErrorCode are for logging and transport mapping. ErrorCode
	// is the internal error code and must not be shown to end users.
	Failure   FailureKind
	ErrorCode string
}

// TokenResult is the outcome of RequestToken. TokenID is empty on failure.
type TokenResult struct {
	TokenID string
	Session *SessionToken
	Result  Result
}

// AccountService exposes the account operations to transports.
type AccountService struct {
	registration *RegistrationService
	issuer       *TokenIssuer
	logger       *slog.Logger
	metrics      *Metrics
}

// AccountOption configures an AccountService during construction.
type AccountOption func(*AccountService)

// WithLogger sets the logger used for operational failures.
func WithLogger(logger *slog.Logger) AccountOption {
	return func(a *AccountService) {
		a.logger = logger
	}
}

// WithMetrics records operation outcomes and durations.
// If not provided, metrics are disabled.
func WithMetrics(m *Metrics) AccountOption {
	return func(a *AccountService) {
		a.metrics = m
	}
}

// NewAccountService creates a new AccountService.
func NewAccountService(registration *RegistrationService, issuer *TokenIssuer, opts ...AccountOption) (*AccountService, error) {
	if registration == nil {
		return nil, oops.Errorf("registration service is required")
	}
	if issuer == nil {
		return nil, oops.Errorf("token issuer is required")
	}
	a := &AccountService{
		registration: registration,
		issuer:       issuer,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a, nil
}

// RegisterUser admits a new identity and emails its verification code.
func (a *AccountService) RegisterUser(ctx context.Context, username, email, password string) Result {
	defer a.metrics.observe("register_user", time.Now())
	ctx, span := tracer.Start(ctx, "auth.register_user",
		trace.WithAttributes(attribute.String("auth.username", username)),
	)
	defer span.End()

	identity, err := a.registration.Register(ctx, username, email, password)
	if err != nil {
		result := a.failure(ctx, span, "registration failed", err)
		a.metrics.registration(statusFor(result.Failure))
		return result
	}

	span.SetAttributes(attribute.Int64("auth.identity_id", identity.ID))
	a.metrics.registration(StatusSuccess)
	return Result{
		Success: true,
		Message: fmt.Sprintf("user %s registered; check your email for the verification code", identity.Username),
	}
}

// TestPasswordComplexity reports whether password satisfies the registration
// policy and, if not, why.
func (a *AccountService) TestPasswordComplexity(ctx context.Context, password string) Result {
	defer a.metrics.observe("test_password_complexity", time.Now())
	_, span := tracer.Start(ctx, "auth.test_password_complexity")
	defer span.End()

	return CheckPasswordComplexity(a.registration.Policy(), password)
}

// CheckPasswordComplexity evaluates password against policy. It needs no store.
func CheckPasswordComplexity(policy PasswordPolicy, password string) Result {
	if err := policy.Check(password); err != nil {
		return rejected(err)
	}
	return Result{Success: true, Message: "password meets complexity requirements"}
}

// RequestToken exchanges an email and secret for a session token. The secret
// is the verification code until the email is verified and the password after.
func (a *AccountService) RequestToken(ctx context.Context, email, password string) TokenResult {
	defer a.metrics.observe("request_token", time.Now())
	ctx, span := tracer.Start(ctx, "auth.request_token")
	defer span.End()

	issued, err := a.issuer.RequestToken(ctx, email, password)
	if err != nil {
		result := a.failure(ctx, span, "token request failed", err)
		a.metrics.tokenRequest(statusFor(result.Failure))
		return TokenResult{Result: result}
	}

	span.SetAttributes(
		attribute.Int64("auth.identity_id", issued.Session.IdentityID),
		attribute.String("auth.session_id", issued.Session.ID.String()),
	)
	a.metrics.tokenRequest(StatusSuccess)
	return TokenResult{
		TokenID: issued.Token,
		Session: issued.Session,
		Result: Result{
			Success: true,
			Message: fmt.Sprintf("token issued, valid until %s", issued.Session.ExpiresAt.Format(time.RFC3339)),
		},
	}
}

// ValidateToken resolves a bearer token to its session.
func (a *AccountService) ValidateToken(ctx context.Context, token string) (*SessionToken, Result) {
	defer a.metrics.observe("validate_token", time.Now())
	ctx, span := tracer.Start(ctx, "auth.validate_token")
	defer span.End()

	session, err := a.issuer.ValidateToken(ctx, token)
	if err != nil {
		return nil, a.failure(ctx, span, "token validation failed", err)
	}
	return session, Result{Success: true, Message: "token is valid"}
}

// Purge removes expired session tokens and expired verification codes.
func (a *AccountService) Purge(ctx context.Context) (tokens, verificationCodes int64, err error) {
	defer a.metrics.observe("purge", time.Now())
	tokens, verificationCodes, err = a.issuer.Purge(ctx)
	if err != nil {
		errutil.LogErrorContext(ctx, a.logger, "purge failed", err)
		return tokens, verificationCodes, err
	}
	a.logger.InfoContext(ctx, "purged expired records", "tokens", tokens, "codes", verificationCodes)
	return tokens, verificationCodes, nil
}

// failure converts err into a Result. Operational failures are logged with
// their internal code and reported with the generic critical message.
func (a *AccountService) failure(ctx context.Context, span trace.Span, msg string, err error) Result {
	result := rejected(err)
	if result.Failure == FailureOperational {
		span.RecordError(err)
		span.SetStatus(codes.Error, result.ErrorCode)
		errutil.LogErrorContext(ctx, a.logger, msg, err)
		return result
	}
	span.SetAttributes(attribute.String("auth.failure", result.Failure.String()))
	a.logger.DebugContext(ctx, msg, "code", result.ErrorCode)
	return result
}

// rejected classifies err without logging.
func rejected(err error) Result {
	code := ErrorCode(err)
	message := PublicMessage(err)
	if message == "" {
		return Result{Message: MessageCritical, Failure: FailureOperational, ErrorCode: code}
	}

	kind := FailureValidation
	switch code {
	case "AUTH_INVALID_CREDENTIALS", "AUTH_TOKEN_INVALID", "AUTH_TOKEN_EXPIRED":
		kind = FailureInvalidCredentials
	case "AUTH_RATE_LIMITED":
		kind = FailureRateLimited
	}
	return Result{Message: message, Failure: kind, ErrorCode: code}
}

func statusFor(kind FailureKind) string {
	switch kind {
	case FailureNone:
		return StatusSuccess
	case FailureRateLimited:
		return StatusRateLimited
	case FailureOperational:
		return StatusError
	default:
		return StatusRejected
	}
}
