// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "context"

// Transactor runs fn inside one unit of persistence. Repository calls made
// with the context passed to fn join that unit; it commits when fn returns
// nil and rolls back otherwise.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier delivers outbound email. Callers treat delivery as best effort.
type Notifier interface {
	SendEmail(ctx context.Context, to, subject, plainBody, htmlBody string) error
}

// AttemptLimiter throttles repeated attempts for a key.
type AttemptLimiter interface {
	// Allow records an attempt for key and reports whether it is within the limit.
	Allow(ctx context.Context, key string) (bool, error)
}
