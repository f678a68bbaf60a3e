// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi exposes the account operations as JSON over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/holomush/holochat/internal/auth"
	"github.com/holomush/holochat/internal/observability"
)

const maxBodyBytes = 1 << 20

// Accounts is the account facade served by the API.
type Accounts interface {
	RegisterUser(ctx context.Context, username, email, password string) auth.Result
	TestPasswordComplexity(ctx context.Context, password string) auth.Result
	RequestToken(ctx context.Context, email, password string) auth.TokenResult
	ValidateToken(ctx context.Context, token string) (*auth.SessionToken, auth.Result)
}

// Server routes API requests to Accounts.
type Server struct {
	accounts Accounts
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics records request counts and durations.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer creates a Server.
func NewServer(accounts Accounts, opts ...Option) *Server {
	s := &Server{accounts: accounts, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Handler returns the API routes wrapped in logging and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/accounts", s.handleRegister)
	mux.HandleFunc("POST /v1/password-checks", s.handlePasswordCheck)
	mux.HandleFunc("POST /v1/tokens", s.handleRequestToken)
	mux.HandleFunc("GET /v1/tokens/self", s.handleTokenSelf)
	return s.instrument(mux)
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type passwordCheckRequest struct {
	Password string `json:"password"`
}

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type resultResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type tokenResponse struct {
	TokenID   string         `json:"token_id,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Result    resultResponse `json:"result"`
}

type sessionResponse struct {
	SessionID   string    `json:"session_id"`
	IdentityID  int64     `json:"identity_id"`
	Application string    `json:"application"`
	Scope       string    `json:"scope"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}
	result := s.accounts.RegisterUser(r.Context(), req.Username, req.Email, req.Password)
	writeJSON(w, statusFor(result, http.StatusCreated), toResponse(result))
}

func (s *Server) handlePasswordCheck(w http.ResponseWriter, r *http.Request) {
	var req passwordCheckRequest
	if !s.decode(w, r, &req) {
		return
	}
	result := s.accounts.TestPasswordComplexity(r.Context(), req.Password)
	writeJSON(w, statusFor(result, http.StatusOK), toResponse(result))
}

func (s *Server) handleRequestToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !s.decode(w, r, &req) {
		return
	}
	tr := s.accounts.RequestToken(r.Context(), req.Email, req.Password)
	resp := tokenResponse{TokenID: tr.TokenID, Result: toResponse(tr.Result)}
	if tr.Session != nil {
		expires := tr.Session.ExpiresAt
		resp.ExpiresAt = &expires
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, statusFor(tr.Result, http.StatusOK), resp)
}

func (s *Server) handleTokenSelf(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		w.Header().Set("WWW-Authenticate", `Bearer realm="holochat"`)
		writeJSON(w, http.StatusUnauthorized, resultResponse{Message: "missing bearer token"})
		return
	}
	session, result := s.accounts.ValidateToken(r.Context(), token)
	if !result.Success {
		if result.Failure == auth.FailureInvalidCredentials {
			w.Header().Set("WWW-Authenticate", `Bearer realm="holochat", error="invalid_token"`)
		}
		writeJSON(w, statusFor(result, http.StatusOK), toResponse(result))
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID:   session.ID.String(),
		IdentityID:  session.IdentityID,
		Application: session.Application,
		Scope:       string(session.Scope),
		IssuedAt:    session.IssuedAt,
		ExpiresAt:   session.ExpiresAt,
	})
}

// decode reads a JSON body into v. It writes a 400 response and returns
// false when the body is missing, oversized or malformed.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		status := http.StatusBadRequest
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		s.logger.DebugContext(r.Context(), "rejected request body", "path", r.URL.Path, "error", err.Error())
		writeJSON(w, status, resultResponse{Message: "malformed request body"})
		return false
	}
	return true
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func toResponse(r auth.Result) resultResponse {
	return resultResponse{Success: r.Success, Message: r.Message}
}

func statusFor(r auth.Result, success int) int {
	if r.Success {
		return success
	}
	switch r.Failure {
	case auth.FailureInvalidCredentials:
		return http.StatusUnauthorized
	case auth.FailureRateLimited:
		return http.StatusTooManyRequests
	case auth.FailureOperational:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may have disconnected
	json.NewEncoder(w).Encode(v)
}
