// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package ratelimit throttles token requests per account with fixed-window
// counters, in Redis when it is configured and in process memory otherwise.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/holochat/internal/auth"
)

// Defaults allow seven attempts per fifteen minutes.
const (
	DefaultMaxAttempts = 7
	DefaultWindow      = 15 * time.Minute
	DefaultPrefix      = "holochat:attempts:"
)

// Config tunes a limiter. Zero fields take the defaults.
type Config struct {
	MaxAttempts int
	Window      time.Duration
	Prefix      string
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	return c
}

// Redis counts attempts in Redis: INCR, then EXPIRE on the first hit of a window.
// Counts are shared by every process using the same Redis.
type Redis struct {
	client redis.UniversalClient
	cfg    Config
}

// NewRedis creates a Redis-backed limiter.
func NewRedis(client redis.UniversalClient, cfg Config) *Redis {
	return &Redis{client: client, cfg: cfg.withDefaults()}
}

// Allow records an attempt for key and reports whether it is within the limit.
func (l *Redis) Allow(ctx context.Context, key string) (bool, error) {
	k := l.cfg.Prefix + key
	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return false, oops.Code("RATELIMIT_UNAVAILABLE").
			With("operation", "incr").
			Wrap(err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, k, l.cfg.Window).Err(); err != nil {
			return false, oops.Code("RATELIMIT_UNAVAILABLE").
				With("operation", "expire").
				Wrap(err)
		}
	}
	return count <= int64(l.cfg.MaxAttempts), nil
}

// Ping checks connectivity.
func (l *Redis) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return oops.Code("RATELIMIT_UNAVAILABLE").With("operation", "ping").Wrap(err)
	}
	return nil
}

type window struct {
	count   int
	resetAt time.Time
}

// Memory counts attempts in process memory. Counts are lost on restart and
// not shared between processes.
type Memory struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// NewMemory creates an in-process limiter.
func NewMemory(cfg Config) *Memory {
	return &Memory{
		cfg:     cfg.withDefaults(),
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

// Allow records an attempt for key and reports whether it is within the limit.
func (l *Memory) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.cfg.Window)}
		l.windows[key] = w
		l.sweep(now)
	}
	w.count++
	return w.count <= l.cfg.MaxAttempts, nil
}

// sweep drops closed windows. Caller holds mu.
func (l *Memory) sweep(now time.Time) {
	for k, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, k)
		}
	}
}

var (
	_ auth.AttemptLimiter = (*Redis)(nil)
	_ auth.AttemptLimiter = (*Memory)(nil)
)
