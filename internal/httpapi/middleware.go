// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument logs every request and records it in the HTTP metrics. The
// route label is the matched mux pattern, so paths never become labels.
func (s *Server) instrument(next *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		duration := time.Since(start)
		if s.metrics != nil {
			s.metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
			s.metrics.RequestDuration.WithLabelValues(route).Observe(duration.Seconds())
		}

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", rec.status),
			slog.Duration("duration", duration),
		}
		switch {
		case rec.status >= 500:
			s.logger.LogAttrs(r.Context(), slog.LevelError, "request", attrs...)
		case rec.status >= 400:
			s.logger.LogAttrs(r.Context(), slog.LevelWarn, "request", attrs...)
		default:
			s.logger.LogAttrs(r.Context(), slog.LevelInfo, "request", attrs...)
		}
	})
}
