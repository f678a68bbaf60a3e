// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sqlite_test

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holochat/internal/auth"
	"github.com/holomush/holochat/internal/auth/sqlite"
	"github.com/holomush/holochat/pkg/errutil"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.Open(context.Background(), sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func count(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

type sentEmail struct {
	to, subject, plain, html string
}

// outbox records sent email in memory.
type outbox struct {
	mu   sync.Mutex
	sent []sentEmail
}

func (o *outbox) SendEmail(_ context.Context, to, subject, plain, html string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, sentEmail{to: to, subject: subject, plain: plain, html: html})
	return nil
}

var codePattern = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

func (o *outbox) lastCode(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent)
	code := codePattern.FindString(o.sent[len(o.sent)-1].plain)
	require.NotEmpty(t, code, "no verification code in email body")
	return code
}

type harness struct {
	db      *sql.DB
	outbox  *outbox
	now     time.Time
	account *auth.AccountService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := openTestDB(t)
	h := &harness{
		db:     db,
		outbox: &outbox{},
		now:    time.Now().UTC().Truncate(time.Microsecond),
	}

	identities := sqlite.NewIdentityRepository(db)
	credentials := sqlite.NewCredentialRepository(db)
	codes := sqlite.NewVerificationCodeRepository(db)
	tokens := sqlite.NewSessionTokenRepository(db)
	tx := sqlite.NewTransactor(db)
	hasher := auth.NewArgon2idHasher()

	registration, err := auth.NewRegistrationService(auth.RegistrationDeps{
		Identities:  identities,
		Credentials: credentials,
		Codes:       codes,
		Transactor:  tx,
		Hasher:      hasher,
		Notifier:    h.outbox,
	})
	require.NoError(t, err)

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerDeps{
		Identities:  identities,
		Credentials: credentials,
		Codes:       codes,
		Tokens:      tokens,
		Transactor:  tx,
		Hasher:      hasher,
		Now:         func() time.Time { return h.now },
	})
	require.NoError(t, err)

	h.account, err = auth.NewAccountService(registration, issuer)
	require.NoError(t, err)
	return h
}

func TestOpen_AppliesMigrations(t *testing.T) {
	db := openTestDB(t)

	for _, table := range []string{"identities", "credentials", "verification_codes", "session_tokens"} {
		assert.Equal(t, 0, count(t, db, table), table)
	}

	var fk int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestAccountLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Scenario A
	result := h.account.RegisterUser(ctx, "alice", "alice@x.com", "Str0ngP@ss1")
	require.True(t, result.Success, result.Message)
	assert.Equal(t, 1, count(t, h.db, "identities"))
	assert.Equal(t, 1, count(t, h.db, "credentials"))
	assert.Equal(t, 1, count(t, h.db, "verification_codes"))
	require.Len(t, h.outbox.sent, 1)
	assert.Equal(t, "alice@x.com", h.outbox.sent[0].to)

	var saltLen int
	require.NoError(t, h.db.QueryRow("SELECT length(salt) FROM credentials").Scan(&saltLen))
	assert.Equal(t, auth.SaltLength, saltLen)

	// Scenario B
	result = h.account.RegisterUser(ctx, "Alice", "other@x.com", "Str0ngP@ss1")
	assert.False(t, result.Success)
	assert.Equal(t, auth.FailureValidation, result.Failure)
	assert.Contains(t, result.Message, "already taken")

	code := h.outbox.lastCode(t)

	// Scenario D
	tok := h.account.RequestToken(ctx, "alice@x.com", "wrong-code")
	assert.False(t, tok.Result.Success)
	assert.Equal(t, auth.MessageInvalidCredentials, tok.Result.Message)
	assert.Empty(t, tok.TokenID)
	assert.Equal(t, 0, count(t, h.db, "session_tokens"))

	// The password is not accepted before verification.
	tok = h.account.RequestToken(ctx, "alice@x.com", "Str0ngP@ss1")
	assert.False(t, tok.Result.Success)
	assert.Equal(t, auth.MessageInvalidCredentials, tok.Result.Message)

	// Scenario C
	tok = h.account.RequestToken(ctx, "ALICE@x.com", code)
	require.True(t, tok.Result.Success, tok.Result.Message)
	require.NotEmpty(t, tok.TokenID)
	assert.Equal(t, auth.ScopeFullControl, tok.Session.Scope)
	assert.Equal(t, tok.Session.IssuedAt.Add(7*24*time.Hour), tok.Session.ExpiresAt)
	assert.Equal(t, 0, count(t, h.db, "verification_codes"))

	var verified bool
	require.NoError(t, h.db.QueryRow("SELECT email_verified FROM identities WHERE username = 'alice'").Scan(&verified))
	assert.True(t, verified)

	// The code is single use; the password now works.
	tok = h.account.RequestToken(ctx, "alice@x.com", code)
	assert.False(t, tok.Result.Success)
	tok = h.account.RequestToken(ctx, "alice@x.com", "Str0ngP@ss1")
	require.True(t, tok.Result.Success, tok.Result.Message)

	session, res := h.account.ValidateToken(ctx, tok.TokenID)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, tok.Session.ID, session.ID)
	assert.Equal(t, tok.Session.ExpiresAt, session.ExpiresAt)
	assert.Equal(t, 2, count(t, h.db, "session_tokens"))
}

func TestWeakPasswordCreatesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Scenario E
	check := h.account.TestPasswordComplexity(ctx, "123")
	require.False(t, check.Success)

	result := h.account.RegisterUser(ctx, "bob", "bob@x.com", "123")
	assert.False(t, result.Success)
	assert.Equal(t, check.Message, result.Message)
	assert.Equal(t, 0, count(t, h.db, "identities"))
	assert.Equal(t, 0, count(t, h.db, "credentials"))
	assert.Equal(t, 0, count(t, h.db, "verification_codes"))
	assert.Empty(t, h.outbox.sent)
}

func TestDuplicateEmailIsCaseInsensitive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.True(t, h.account.RegisterUser(ctx, "alice", "alice@x.com", "Str0ngP@ss1").Success)

	result := h.account.RegisterUser(ctx, "alicia", "ALICE@X.COM", "Str0ngP@ss1")
	assert.False(t, result.Success)
	assert.Equal(t, "email address is already registered", result.Message)
	assert.Equal(t, 1, count(t, h.db, "identities"))
}

func TestDuplicateEmailFoldsNonASCII(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.True(t, h.account.RegisterUser(ctx, "juergen", "ärger@x.com", "Str0ngP@ss1").Success)

	result := h.account.RegisterUser(ctx, "juergen2", "ÄRGER@x.com", "Str0ngP@ss1")
	assert.False(t, result.Success)
	assert.Equal(t, "email address is already registered", result.Message)
	assert.Equal(t, 1, count(t, h.db, "identities"))

	code := h.outbox.lastCode(t)
	tok := h.account.RequestToken(ctx, "ÄRGER@X.COM", code)
	assert.True(t, tok.Result.Success, tok.Result.Message)
}

func TestUnknownAccountMatchesWrongPassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	unknown := h.account.RequestToken(ctx, "nobody@x.com", "whatever")
	assert.False(t, unknown.Result.Success)
	assert.Equal(t, auth.MessageInvalidCredentials, unknown.Result.Message)
	assert.Equal(t, auth.FailureInvalidCredentials, unknown.Result.Failure)
}

func TestPurgeExpiredTokens(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.True(t, h.account.RegisterUser(ctx, "alice", "alice@x.com", "Str0ngP@ss1").Success)
	tok := h.account.RequestToken(ctx, "alice@x.com", h.outbox.lastCode(t))
	require.True(t, tok.Result.Success)

	h.now = h.now.Add(auth.SessionTokenExpiry)

	_, res := h.account.ValidateToken(ctx, tok.TokenID)
	assert.False(t, res.Success)
	assert.Equal(t, "AUTH_TOKEN_EXPIRED", res.ErrorCode)

	purged, codes, err := h.account.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
	assert.Equal(t, int64(0), codes)
	assert.Equal(t, 0, count(t, h.db, "session_tokens"))
}

func TestRepositories_WriteTimeDuplicates(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	identities := sqlite.NewIdentityRepository(db)
	credentials := sqlite.NewCredentialRepository(db)

	alice := &auth.Identity{Username: "alice", Email: "alice@x.com", CreatedAt: time.Now().UTC()}
	require.NoError(t, identities.Create(ctx, alice))
	assert.Positive(t, alice.ID)

	err := identities.Create(ctx, &auth.Identity{Username: "ALICE", Email: "a2@x.com", CreatedAt: time.Now()})
	require.ErrorIs(t, err, auth.ErrDuplicateUsername)
	errutil.AssertErrorCode(t, err, "IDENTITY_DUPLICATE")

	err = identities.Create(ctx, &auth.Identity{Username: "alice2", Email: "Alice@X.com", CreatedAt: time.Now()})
	require.ErrorIs(t, err, auth.ErrDuplicateEmail)

	salt := make([]byte, auth.SaltLength)
	hash := make([]byte, auth.DigestLength)
	cred, err := auth.NewPasswordCredential(alice.ID, alice.Email, salt, hash)
	require.NoError(t, err)
	require.NoError(t, credentials.Create(ctx, cred))

	dup, err := auth.NewPasswordCredential(alice.ID, strings.ToUpper(alice.Email), salt, hash)
	require.NoError(t, err)
	err = credentials.Create(ctx, dup)
	require.ErrorIs(t, err, auth.ErrDuplicateEmail)
	errutil.AssertErrorCode(t, err, "CREDENTIAL_DUPLICATE")

	got, err := credentials.GetByIdentifier(ctx, auth.CredentialKindPassword, "ALICE@x.com")
	require.NoError(t, err)
	assert.Equal(t, cred.ID, got.ID)
	assert.Equal(t, salt, got.Salt)
	assert.Equal(t, alice.Email, got.Identifier)

	bob := &auth.Identity{Username: "bob", Email: "öle@x.com", CreatedAt: time.Now()}
	require.NoError(t, identities.Create(ctx, bob))
	err = identities.Create(ctx, &auth.Identity{Username: "bob2", Email: "ÖLE@x.com", CreatedAt: time.Now()})
	require.ErrorIs(t, err, auth.ErrDuplicateEmail)

	found, err := identities.GetByEmail(ctx, "ÖLE@X.COM")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, found.ID)
	assert.Equal(t, "öle@x.com", found.Email)
}

func TestRepositories_NotFound(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := sqlite.NewIdentityRepository(db).GetByID(ctx, 99)
	require.ErrorIs(t, err, auth.ErrNotFound)
	errutil.AssertErrorCode(t, err, "IDENTITY_NOT_FOUND")

	err = sqlite.NewIdentityRepository(db).MarkEmailVerified(ctx, 99)
	require.ErrorIs(t, err, auth.ErrNotFound)

	_, err = sqlite.NewCredentialRepository(db).GetByIdentifier(ctx, auth.CredentialKindPassword, "x@y.z")
	require.ErrorIs(t, err, auth.ErrNotFound)

	err = sqlite.NewVerificationCodeRepository(db).Delete(ctx, "missing")
	require.ErrorIs(t, err, auth.ErrNotFound)

	_, err = sqlite.NewSessionTokenRepository(db).GetByTokenHash(ctx, "missing")
	require.ErrorIs(t, err, auth.ErrNotFound)
	errutil.AssertErrorCode(t, err, "TOKEN_NOT_FOUND")
}

func TestVerificationCodes_DeleteCreatedBefore(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	identities := sqlite.NewIdentityRepository(db)
	codes := sqlite.NewVerificationCodeRepository(db)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"old", "new"} {
		identity := &auth.Identity{Username: name, Email: name + "@x.com", CreatedAt: base}
		require.NoError(t, identities.Create(ctx, identity))
		code, err := auth.NewVerificationCode(identity.ID)
		require.NoError(t, err)
		code.CreatedAt = base.Add(time.Duration(i) * 48 * time.Hour)
		require.NoError(t, codes.Create(ctx, code))
	}

	n, err := codes.DeleteCreatedBefore(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, count(t, db, "verification_codes"))
}

func TestTransactor_RollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	identities := sqlite.NewIdentityRepository(db)
	tx := sqlite.NewTransactor(db)

	err := tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := identities.Create(ctx, &auth.Identity{Username: "carol", Email: "carol@x.com", CreatedAt: time.Now()}); err != nil {
			return err
		}
		// Nested calls join the outer transaction.
		return tx.InTransaction(ctx, func(ctx context.Context) error {
			return identities.Create(ctx, &auth.Identity{Username: "carol", Email: "c2@x.com", CreatedAt: time.Now()})
		})
	})
	require.ErrorIs(t, err, auth.ErrDuplicateUsername)
	assert.Equal(t, 0, count(t, db, "identities"))
}
