// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package email delivers verification mail through Postmark, or to the log
// when no Postmark token is configured.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/holochat/internal/auth"
	"github.com/holomush/holochat/internal/observability"
)

// DefaultEndpoint is Postmark's single-message API.
const DefaultEndpoint = "https://api.postmarkapp.com/email"

// PostmarkClient sends mail through the Postmark HTTP API.
type PostmarkClient struct {
	serverToken string
	from        string
	endpoint    string
	httpClient  *http.Client
	maxRetries  uint64
	baseDelay   time.Duration
}

// Option configures a PostmarkClient.
type Option func(*PostmarkClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *PostmarkClient) {
		p.httpClient = c
	}
}

// WithEndpoint overrides the API URL.
func WithEndpoint(url string) Option {
	return func(p *PostmarkClient) {
		p.endpoint = url
	}
}

// WithRetries sets how often a failed send is retried after 5xx responses
// or transport errors.
func WithRetries(n uint64, baseDelay time.Duration) Option {
	return func(p *PostmarkClient) {
		p.maxRetries = n
		p.baseDelay = baseDelay
	}
}

// NewPostmarkClient creates a PostmarkClient sending as from.
func NewPostmarkClient(serverToken, from string, opts ...Option) (*PostmarkClient, error) {
	if serverToken == "" {
		return nil, oops.Code("EMAIL_NOT_CONFIGURED").Errorf("postmark server token is required")
	}
	if from == "" {
		return nil, oops.Code("EMAIL_NOT_CONFIGURED").Errorf("sender address is required")
	}
	c := &PostmarkClient{
		serverToken: serverToken,
		from:        from,
		endpoint:    DefaultEndpoint,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		maxRetries:  2,
		baseDelay:   250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type postmarkEmail struct {
	From          string `json:"From"`
	To            string `json:"To"`
	Subject       string `json:"Subject"`
	HtmlBody      string `json:"HtmlBody"` //nolint:revive // Postmark field name
	TextBody      string `json:"TextBody"`
	MessageStream string `json:"MessageStream"`
}

type postmarkResponse struct {
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
	MessageID string `json:"MessageID"`
}

// SendEmail delivers one message.
func (c *PostmarkClient) SendEmail(ctx context.Context, to, subject, plainBody, htmlBody string) error {
	body, err := json.Marshal(postmarkEmail{
		From:          c.from,
		To:            to,
		Subject:       subject,
		HtmlBody:      htmlBody,
		TextBody:      plainBody,
		MessageStream: "outbound",
	})
	if err != nil {
		return oops.Code("EMAIL_SEND_FAILED").With("operation", "marshal email").Wrap(err)
	}

	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.baseDelay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		return c.post(ctx, body)
	})
	if err != nil {
		observability.RecordNotificationFailure("postmark")
		return err //nolint:wrapcheck // post wraps with status context
	}
	return nil
}

func (c *PostmarkClient) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return oops.Code("EMAIL_SEND_FAILED").With("operation", "create request").Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.RetryableError(oops.Code("EMAIL_SEND_FAILED").With("operation", "send request").Wrap(err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var pr postmarkResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&pr)
	sendErr := oops.Code("EMAIL_SEND_FAILED").
		With("status", resp.StatusCode).
		With("postmark_code", pr.ErrorCode).
		Errorf("postmark API error: %s", pr.Message)
	if resp.StatusCode >= 500 {
		return retry.RetryableError(sendErr)
	}
	return sendErr
}

// LogNotifier writes outbound mail to a logger instead of sending it.
// It is meant for development, where the verification code is read off the log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// SendEmail logs the message.
func (n *LogNotifier) SendEmail(ctx context.Context, to, subject, plainBody, _ string) error {
	n.logger.InfoContext(ctx, "email not sent, no provider configured",
		"to", to,
		"subject", subject,
		"body", plainBody,
	)
	return nil
}

var (
	_ auth.Notifier = (*PostmarkClient)(nil)
	_ auth.Notifier = (*LogNotifier)(nil)
)
