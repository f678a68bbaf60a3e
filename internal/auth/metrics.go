// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels recorded on account metrics.
const (
	StatusSuccess     = "success"
	StatusRejected    = "rejected"
	StatusError       = "error"
	StatusRateLimited = "rate_limited"
)

// Metrics holds Prometheus collectors for account operations.
type Metrics struct {
	RegistrationsTotal *prometheus.CounterVec
	TokenRequestsTotal *prometheus.CounterVec
	Duration           *prometheus.HistogramVec
}

// NewMetrics creates and registers account metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RegistrationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holochat_registrations_total",
				Help: "Total number of registration attempts by status",
			},
			[]string{"status"},
		),
		TokenRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holochat_token_requests_total",
				Help: "Total number of token requests by status",
			},
			[]string{"status"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "holochat_auth_duration_seconds",
				Help:    "Duration of account operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}

	reg.MustRegister(m.RegistrationsTotal)
	reg.MustRegister(m.TokenRequestsTotal)
	reg.MustRegister(m.Duration)

	return m
}

func (m *Metrics) observe(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.Duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) registration(status string) {
	if m == nil {
		return
	}
	m.RegistrationsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) tokenRequest(status string) {
	if m == nil {
		return
	}
	m.TokenRequestsTotal.WithLabelValues(status).Inc()
}
