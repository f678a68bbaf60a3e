// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holochat/internal/auth"
	"github.com/holomush/holochat/internal/observability"
)

// stubAccounts returns canned results and records the arguments it saw.
type stubAccounts struct {
	register   auth.Result
	complexity auth.Result
	token      auth.TokenResult
	session    *auth.SessionToken
	validate   auth.Result

	gotUsername, gotEmail, gotPassword, gotToken string
}

func (s *stubAccounts) RegisterUser(_ context.Context, username, email, password string) auth.Result {
	s.gotUsername, s.gotEmail, s.gotPassword = username, email, password
	return s.register
}

func (s *stubAccounts) TestPasswordComplexity(_ context.Context, password string) auth.Result {
	s.gotPassword = password
	return s.complexity
}

func (s *stubAccounts) RequestToken(_ context.Context, email, password string) auth.TokenResult {
	s.gotEmail, s.gotPassword = email, password
	return s.token
}

func (s *stubAccounts) ValidateToken(_ context.Context, token string) (*auth.SessionToken, auth.Result) {
	s.gotToken = token
	return s.session, s.validate
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func do(t *testing.T, h http.Handler, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRegister_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		result auth.Result
		want   int
	}{
		{"success", auth.Result{Success: true, Message: "user alice registered"}, http.StatusCreated},
		{"validation", auth.Result{Message: "username is taken", Failure: auth.FailureValidation}, http.StatusBadRequest},
		{"operational", auth.Result{Message: auth.MessageCritical, Failure: auth.FailureOperational, ErrorCode: "AUTH_REGISTRATION_FAILED"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubAccounts{register: tt.result}
			h := NewServer(stub, WithLogger(quietLogger())).Handler()

			rec := do(t, h, http.MethodPost, "/v1/accounts",
				`{"username":"alice","email":"alice@example.com","password":"Abcdef1!"}`, nil)

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			body := decodeBody(t, rec)
			assert.Equal(t, tt.result.Success, body["success"])
			assert.Equal(t, tt.result.Message, body["message"])
			assert.NotContains(t, rec.Body.String(), "AUTH_", "internal codes stay out of responses")
			assert.Equal(t, "alice", stub.gotUsername)
			assert.Equal(t, "alice@example.com", stub.gotEmail)
			assert.Equal(t, "Abcdef1!", stub.gotPassword)
		})
	}
}

func TestPasswordCheck(t *testing.T) {
	stub := &stubAccounts{complexity: auth.Result{Message: "password must contain a digit", Failure: auth.FailureValidation}}
	h := NewServer(stub, WithLogger(quietLogger())).Handler()

	rec := do(t, h, http.MethodPost, "/v1/password-checks", `{"password":"abc"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "password must contain a digit", decodeBody(t, rec)["message"])
	assert.Equal(t, "abc", stub.gotPassword)

	stub.complexity = auth.Result{Success: true, Message: "ok"}
	rec = do(t, h, http.MethodPost, "/v1/password-checks", `{"password":"Abcdef1!"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestToken_StatusMapping(t *testing.T) {
	expires := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name   string
		result auth.TokenResult
		want   int
	}{
		{
			name: "success",
			result: auth.TokenResult{
				TokenID: "tok",
				Session: &auth.SessionToken{ExpiresAt: expires},
				Result:  auth.Result{Success: true, Message: "token issued"},
			},
			want: http.StatusOK,
		},
		{"invalid credentials", auth.TokenResult{Result: auth.Result{Message: "invalid", Failure: auth.FailureInvalidCredentials}}, http.StatusUnauthorized},
		{"rate limited", auth.TokenResult{Result: auth.Result{Message: "slow down", Failure: auth.FailureRateLimited}}, http.StatusTooManyRequests},
		{"operational", auth.TokenResult{Result: auth.Result{Message: auth.MessageCritical, Failure: auth.FailureOperational}}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubAccounts{token: tt.result}
			h := NewServer(stub, WithLogger(quietLogger())).Handler()

			rec := do(t, h, http.MethodPost, "/v1/tokens", `{"email":"alice@example.com","password":"secret"}`, nil)

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
			body := decodeBody(t, rec)
			result, ok := body["result"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tt.result.Result.Message, result["message"])
			if tt.result.TokenID == "" {
				assert.NotContains(t, body, "token_id")
				assert.NotContains(t, body, "expires_at")
				return
			}
			assert.Equal(t, "tok", body["token_id"])
			assert.Equal(t, "2026-01-02T03:04:05Z", body["expires_at"])
		})
	}
}

func TestTokenSelf(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	session := &auth.SessionToken{
		ID:          ulid.Make(),
		IdentityID:  42,
		Application: "holochat",
		Scope:       auth.ScopeFullControl,
		IssuedAt:    issued,
		ExpiresAt:   issued.Add(auth.SessionTokenExpiry),
	}

	t.Run("valid bearer token", func(t *testing.T) {
		stub := &stubAccounts{session: session, validate: auth.Result{Success: true}}
		h := NewServer(stub, WithLogger(quietLogger())).Handler()

		rec := do(t, h, http.MethodGet, "/v1/tokens/self", "", http.Header{"Authorization": {"Bearer abc"}})

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "abc", stub.gotToken)
		body := decodeBody(t, rec)
		assert.Equal(t, session.ID.String(), body["session_id"])
		assert.InDelta(t, 42, body["identity_id"], 0)
		assert.Equal(t, "full_control", body["scope"])
	})

	t.Run("missing header", func(t *testing.T) {
		stub := &stubAccounts{}
		h := NewServer(stub, WithLogger(quietLogger())).Handler()

		rec := do(t, h, http.MethodGet, "/v1/tokens/self", "", nil)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
		assert.Empty(t, stub.gotToken)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		stub := &stubAccounts{}
		h := NewServer(stub, WithLogger(quietLogger())).Handler()

		rec := do(t, h, http.MethodGet, "/v1/tokens/self", "", http.Header{"Authorization": {"Basic abc"}})

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejected token", func(t *testing.T) {
		stub := &stubAccounts{validate: auth.Result{Message: "session token has expired", Failure: auth.FailureInvalidCredentials}}
		h := NewServer(stub, WithLogger(quietLogger())).Handler()

		rec := do(t, h, http.MethodGet, "/v1/tokens/self", "", http.Header{"Authorization": {"bearer abc"}})

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
		assert.Equal(t, "session token has expired", decodeBody(t, rec)["message"])
	})
}

func TestMalformedBodies(t *testing.T) {
	h := NewServer(&stubAccounts{}, WithLogger(quietLogger())).Handler()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty", "", http.StatusBadRequest},
		{"not json", "nope", http.StatusBadRequest},
		{"unknown field", `{"password":"x","admin":true}`, http.StatusBadRequest},
		{"too large", `{"password":"` + strings.Repeat("a", maxBodyBytes) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/v1/password-checks", tt.body, nil)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, false, decodeBody(t, rec)["success"])
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := NewServer(&stubAccounts{}, WithLogger(quietLogger())).Handler()

	rec := do(t, h, http.MethodGet, "/v1/accounts", "", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestInstrument_RecordsMetricsAndLogs(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	stub := &stubAccounts{token: auth.TokenResult{Result: auth.Result{Message: "invalid", Failure: auth.FailureInvalidCredentials}}}
	h := NewServer(stub, WithLogger(logger), WithMetrics(metrics)).Handler()

	do(t, h, http.MethodPost, "/v1/tokens", `{"email":"a@b.c","password":"x"}`, nil)
	do(t, h, http.MethodGet, "/nowhere", "", nil)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("POST /v1/tokens", "401")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("unmatched", "404")), 0)

	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	require.Len(t, lines, 2)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "POST /v1/tokens", entry["route"])
	assert.NotContains(t, logs.String(), `"password"`)
}
