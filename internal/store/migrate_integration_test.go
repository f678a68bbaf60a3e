//go:build integration

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/holochat/internal/store"
)

func TestMigrator_FullCycle(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	require.NoError(t, err)
	defer func() { _ = pgContainer.Terminate(ctx) }()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := store.Connect(ctx, connStr, store.ConnectOptions{})
	require.NoError(t, err)
	defer pool.Close()

	migrator, err := store.NewMigrator(connStr)
	require.NoError(t, err)
	defer func() { _ = migrator.Close() }()

	version, dirty, err := migrator.Version()
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)

	require.NoError(t, migrator.Up())
	pending, err := migrator.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)

	var tables int
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_name IN ('identities', 'credentials', 'verification_codes', 'session_tokens')
	`).Scan(&tables))
	assert.Equal(t, 4, tables)

	require.NoError(t, migrator.Down())
	version, _, err = migrator.Version()
	require.NoError(t, err)
	assert.Zero(t, version)

	require.NoError(t, migrator.Up())
	require.NoError(t, migrator.Force(1))
	version, dirty, err = migrator.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}
