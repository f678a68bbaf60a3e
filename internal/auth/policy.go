// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"fmt"
	"regexp"
)

// Default password policy thresholds.
const (
	DefaultMinPasswordLength = 8
	DefaultMaxPasswordLength = 128
)

var (
	lowerRegex  = regexp.MustCompile(`[a-z]`)
	upperRegex  = regexp.MustCompile(`[A-Z]`)
	digitRegex  = regexp.MustCompile(`[0-9]`)
	symbolRegex = regexp.MustCompile(`[^a-zA-Z0-9\s]`)
)

// PasswordPolicy decides whether a candidate password is strong enough.
// Checks run in a fixed order and the first failure is reported.
type PasswordPolicy struct {
	MinLength     int
	MaxLength     int
	RequireLower  bool
	RequireUpper  bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPasswordPolicy returns the policy used when none is configured.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:     DefaultMinPasswordLength,
		MaxLength:     DefaultMaxPasswordLength,
		RequireLower:  true,
		RequireUpper:  true,
		RequireDigit:  true,
		RequireSymbol: true,
	}
}

// Check returns nil if password satisfies the policy. Otherwise it returns an
// AUTH_WEAK_PASSWORD error whose public message names the failing rule.
func (p PasswordPolicy) Check(password string) error {
	if reason := p.reason(password); reason != "" {
		return validationError("AUTH_WEAK_PASSWORD", reason)
	}
	return nil
}

func (p PasswordPolicy) reason(password string) string {
	switch {
	case len(password) < p.MinLength:
		return fmt.Sprintf("password must be at least %d characters long", p.MinLength)
	case p.MaxLength > 0 && len(password) > p.MaxLength:
		return fmt.Sprintf("password must be at most %d characters long", p.MaxLength)
	case p.RequireLower && !lowerRegex.MatchString(password):
		return "password must contain at least one lowercase letter"
	case p.RequireUpper && !upperRegex.MatchString(password):
		return "password must contain at least one uppercase letter"
	case p.RequireDigit && !digitRegex.MatchString(password):
		return "password must contain at least one digit"
	case p.RequireSymbol && !symbolRegex.MatchString(password):
		return "password must contain at least one symbol"
	}
	return ""
}
