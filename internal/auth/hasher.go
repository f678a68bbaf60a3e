// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
)

// Sizes of the per-credential salt and the derived digest.
const (
	SaltLength   = 32
	DigestLength = 32
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// Hasher derives and checks salted secret digests.
type Hasher interface {
	// GenerateSalt returns SaltLength bytes from a cryptographically secure source.
	GenerateSalt() ([]byte, error)

	// Hash derives a DigestLength-byte digest. The same password and salt
	// always produce the same digest.
	Hash(password string, salt []byte) ([]byte, error)

	// Verify reports whether password hashes to digest under salt.
	// The comparison runs in constant time.
	Verify(password string, salt, digest []byte) bool
}

// Argon2idHasher implements Hasher using argon2id.
type Argon2idHasher struct{}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// GenerateSalt returns a fresh random salt.
func (h *Argon2idHasher) GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, oops.Code("AUTH_SALT_FAILED").
			With("requested_bytes", SaltLength).
			Wrap(err)
	}
	return salt, nil
}

// Hash derives the argon2id digest of password under salt.
func (h *Argon2idHasher) Hash(password string, salt []byte) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	if len(salt) != SaltLength {
		return nil, oops.Code("AUTH_INVALID_SALT").
			With("length", len(salt)).
			Errorf("salt must be %d bytes", SaltLength)
	}
	return argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, DigestLength), nil
}

// Verify recomputes the digest and compares it in constant time.
// Malformed inputs never verify.
func (h *Argon2idHasher) Verify(password string, salt, digest []byte) bool {
	computed, err := h.Hash(password, salt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(computed, digest) == 1
}
