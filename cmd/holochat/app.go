// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/holochat/internal/auth"
	"github.com/holomush/holochat/internal/auth/postgres"
	"github.com/holomush/holochat/internal/auth/sqlite"
	"github.com/holomush/holochat/internal/config"
	"github.com/holomush/holochat/internal/email"
	"github.com/holomush/holochat/internal/ratelimit"
	"github.com/holomush/holochat/internal/store"
	"github.com/holomush/holochat/internal/xdg"
)

// repositories is one storage backend's implementation of the auth stores.
type repositories struct {
	identities  auth.IdentityRepository
	credentials auth.CredentialRepository
	codes       auth.VerificationCodeRepository
	tokens      auth.SessionTokenRepository
	tx          auth.Transactor

	// ping reports whether the backend is reachable.
	ping  func(ctx context.Context) error
	close func()
}

// openRepositories connects the configured backend and brings its schema up
// to date.
func openRepositories(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*repositories, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		return openPostgres(ctx, cfg, logger)
	case config.BackendSQLite:
		return openSQLite(ctx, cfg)
	default:
		return nil, oops.Code("CONFIG_INVALID").With("field", "backend").Errorf("unknown backend %q", cfg.Backend)
	}
}

func openPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*repositories, error) {
	migrator, err := store.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	upErr := migrator.Up()
	if closeErr := migrator.Close(); closeErr != nil {
		logger.WarnContext(ctx, "failed to close migrator", "error", closeErr)
	}
	if upErr != nil {
		return nil, upErr
	}

	pool, err := store.Connect(ctx, cfg.DatabaseURL, store.ConnectOptions{Logger: logger})
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "connected to database", "backend", cfg.Backend)

	return &repositories{
		identities:  postgres.NewIdentityRepository(pool),
		credentials: postgres.NewCredentialRepository(pool),
		codes:       postgres.NewVerificationCodeRepository(pool),
		tokens:      postgres.NewSessionTokenRepository(pool),
		tx:          postgres.NewTransactor(pool),
		ping:        pool.Ping,
		close:       pool.Close,
	}, nil
}

func openSQLite(ctx context.Context, cfg *config.Config) (*repositories, error) {
	if cfg.SQLitePath != sqlite.MemoryPath {
		if err := xdg.EnsureDir(filepath.Dir(cfg.SQLitePath)); err != nil {
			return nil, err
		}
	}
	db, err := sqlite.Open(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	return &repositories{
		identities:  sqlite.NewIdentityRepository(db),
		credentials: sqlite.NewCredentialRepository(db),
		codes:       sqlite.NewVerificationCodeRepository(db),
		tokens:      sqlite.NewSessionTokenRepository(db),
		tx:          sqlite.NewTransactor(db),
		ping:        db.PingContext,
		close:       func() { _ = db.Close() }, //nolint:errcheck // nothing to do on shutdown
	}, nil
}

// newLimiter builds the attempt limiter. It returns a nil limiter when
// rate limiting is disabled.
func newLimiter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.AttemptLimiter, func(), error) {
	if cfg.RateLimitAttempts == 0 {
		return nil, func() {}, nil
	}
	limits := ratelimit.Config{MaxAttempts: cfg.RateLimitAttempts, Window: cfg.RateLimitWindow}

	if cfg.RedisAddr == "" {
		return ratelimit.NewMemory(limits), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	limiter := ratelimit.NewRedis(client, limits)
	if err := limiter.Ping(ctx); err != nil {
		_ = client.Close() //nolint:errcheck // ping error takes precedence
		return nil, nil, err
	}
	logger.InfoContext(ctx, "using redis attempt limiter", "addr", cfg.RedisAddr)
	return limiter, func() { _ = client.Close() }, nil //nolint:errcheck // nothing to do on shutdown
}

// newNotifier sends mail through Postmark when a token is configured and
// logs it otherwise.
func newNotifier(cfg *config.Config, logger *slog.Logger) (auth.Notifier, error) {
	if cfg.PostmarkToken == "" {
		logger.Warn("no postmark token configured, verification email will be logged")
		return email.NewLogNotifier(logger), nil
	}
	return email.NewPostmarkClient(cfg.PostmarkToken, cfg.EmailFrom)
}

// app holds the assembled account service and the resources behind it.
type app struct {
	accounts *auth.AccountService
	repos    *repositories
	closers  []func()
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp assembles the account service described by cfg. reg may be nil,
// which disables account metrics.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*app, error) {
	a := &app{}

	repos, err := openRepositories(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.repos = repos
	a.closers = append(a.closers, repos.close)

	limiter, closeLimiter, err := newLimiter(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, closeLimiter)

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	hasher := auth.NewArgon2idHasher()
	policy := cfg.PasswordPolicy()

	registration, err := auth.NewRegistrationService(auth.RegistrationDeps{
		Identities:  repos.identities,
		Credentials: repos.credentials,
		Codes:       repos.codes,
		Transactor:  repos.tx,
		Hasher:      hasher,
		Notifier:    notifier,
		Policy:      &policy,
		Logger:      logger,
	})
	if err != nil {
		a.Close()
		return nil, oops.Code("APP_INIT_FAILED").With("component", "registration").Wrap(err)
	}

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerDeps{
		Identities:  repos.identities,
		Credentials: repos.credentials,
		Codes:       repos.codes,
		Tokens:      repos.tokens,
		Transactor:  repos.tx,
		Hasher:      hasher,
		Limiter:     limiter,
		Logger:      logger,
		Application: cfg.Application,
		CodeTTL:     cfg.CodeTTL,
	})
	if err != nil {
		a.Close()
		return nil, oops.Code("APP_INIT_FAILED").With("component", "token issuer").Wrap(err)
	}

	opts := []auth.AccountOption{auth.WithLogger(logger)}
	if reg != nil {
		opts = append(opts, auth.WithMetrics(auth.NewMetrics(reg)))
	}
	a.accounts, err = auth.NewAccountService(registration, issuer, opts...)
	if err != nil {
		a.Close()
		return nil, oops.Code("APP_INIT_FAILED").With("component", "accounts").Wrap(err)
	}
	return a, nil
}
