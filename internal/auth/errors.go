// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateUsername is returned by identity stores when the username
// (compared case-insensitively) is already registered.
var ErrDuplicateUsername = errors.New("duplicate username")

// ErrDuplicateEmail is returned by identity and credential stores when the
// email address (compared case-insensitively) is already registered.
var ErrDuplicateEmail = errors.New("duplicate email")

// Caller-facing messages. Credential failures share one message so a caller
// cannot tell an unknown account from a wrong password or a bad code.
const (
	MessageInvalidCredentials = "invalid email or password"
	MessageCritical           = "a critical error occurred, please try again later"
	MessageRateLimited        = "too many attempts, please try again later"
)

// invalidCredentials builds the uniform credential failure.
func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").
		Public(MessageInvalidCredentials).
		Errorf("invalid email or password")
}

// validationError builds a caller-visible failure whose message is safe to
// show as-is.
func validationError(code, message string) error {
	return oops.Code(code).Public(message).Errorf("%s", message)
}

// PublicMessage returns the caller-visible message carried by err, or "" if
// err is an operational failure that must not be described to callers.
func PublicMessage(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok {
		return oopsErr.Public()
	}
	return ""
}

// ErrorCode returns the oops code carried by err, or "" if there is none.
func ErrorCode(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok {
		if code := oopsErr.Code(); code != nil {
			return fmt.Sprint(code)
		}
	}
	return ""
}
