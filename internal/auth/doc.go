// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth implements HoloChat account registration, email verification
// and session token issuance.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewIdentity - validates username and email
//   - NewPasswordCredential - validates owner, salt and hash
//   - NewVerificationCode - creates a random one-time code
//   - NewSessionToken - creates a full-control token expiring after SessionTokenExpiry
//
// Direct struct initialization bypasses validation and may create invalid state.
//
// # Credential Phases
//
// An identity starts Unverified. The only secret accepted for it is its
// verification code, which is consumed together with flipping the verified
// flag. From then on it is Verified and only its password is accepted.
//
// # Services
//
//   - RegistrationService - admits identities and sends verification codes
//   - TokenIssuer - authenticates and mints session tokens
//   - AccountService - caller-facing Result wrappers with metrics and tracing
//
// Services are created with New* constructors that validate dependencies.
package auth
