// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

// Package accounts_test exercises the HTTP API against PostgreSQL and Redis.
package accounts_test

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/holochat/internal/auth"
	authpg "github.com/holomush/holochat/internal/auth/postgres"
	"github.com/holomush/holochat/internal/httpapi"
	"github.com/holomush/holochat/internal/ratelimit"
	"github.com/holomush/holochat/internal/store"
)

func TestAccounts(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Accounts Integration Suite")
}

// maxAttempts is the limiter budget per email for the suite.
const maxAttempts = 5

var (
	ctx       context.Context
	cancel    context.CancelFunc
	container *postgres.PostgresContainer
	dsn       string
	pool      *pgxpool.Pool
	redisSrv  *miniredis.Miniredis
	api       *httptest.Server
	mail      *outbox
)

var _ = BeforeSuite(func() {
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Minute)

	var err error
	container, err = postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("holochat"),
		postgres.WithUsername("holochat"),
		postgres.WithPassword("holochat"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	Expect(err).NotTo(HaveOccurred())

	dsn, err = container.ConnectionString(ctx, "sslmode=disable")
	Expect(err).NotTo(HaveOccurred())

	migrator, err := store.NewMigrator(dsn)
	Expect(err).NotTo(HaveOccurred())
	Expect(migrator.Up()).To(Succeed())
	Expect(migrator.Close()).To(Succeed())

	pool, err = store.Connect(ctx, dsn, store.ConnectOptions{})
	Expect(err).NotTo(HaveOccurred())

	redisSrv, err = miniredis.Run()
	Expect(err).NotTo(HaveOccurred())
	limiter := ratelimit.NewRedis(
		redis.NewClient(&redis.Options{Addr: redisSrv.Addr()}),
		ratelimit.Config{MaxAttempts: maxAttempts, Window: time.Minute},
	)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mail = &outbox{}
	identities := authpg.NewIdentityRepository(pool)
	credentials := authpg.NewCredentialRepository(pool)
	codes := authpg.NewVerificationCodeRepository(pool)
	tx := authpg.NewTransactor(pool)
	hasher := auth.NewArgon2idHasher()

	registration, err := auth.NewRegistrationService(auth.RegistrationDeps{
		Identities:  identities,
		Credentials: credentials,
		Codes:       codes,
		Transactor:  tx,
		Hasher:      hasher,
		Notifier:    mail,
		Logger:      logger,
	})
	Expect(err).NotTo(HaveOccurred())

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerDeps{
		Identities:  identities,
		Credentials: credentials,
		Codes:       codes,
		Tokens:      authpg.NewSessionTokenRepository(pool),
		Transactor:  tx,
		Hasher:      hasher,
		Limiter:     limiter,
		Logger:      logger,
	})
	Expect(err).NotTo(HaveOccurred())

	accounts, err := auth.NewAccountService(registration, issuer, auth.WithLogger(logger))
	Expect(err).NotTo(HaveOccurred())

	api = httptest.NewServer(httpapi.NewServer(accounts, httpapi.WithLogger(logger)).Handler())
})

var _ = AfterSuite(func() {
	if api != nil {
		api.Close()
	}
	if redisSrv != nil {
		redisSrv.Close()
	}
	if pool != nil {
		pool.Close()
	}
	if container != nil {
		_ = container.Terminate(context.Background()) //nolint:errcheck // best-effort cleanup
	}
	if cancel != nil {
		cancel()
	}
})

var codePattern = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

// outbox records verification email in memory, keyed by recipient.
type outbox struct {
	mu   sync.Mutex
	last map[string]string
}

func (o *outbox) SendEmail(_ context.Context, to, _, plain, _ string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		o.last = make(map[string]string)
	}
	o.last[to] = plain
	return nil
}

func (o *outbox) codeFor(to string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return codePattern.FindString(o.last[to])
}
