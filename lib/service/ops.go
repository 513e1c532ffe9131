// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck probes one dependency. A nil return means healthy.
type HealthCheck func(ctx context.Context) error

// OpsConfig configures the operations router.
type OpsConfig struct {
	// Gatherer is scraped by /metrics. Defaults to
	// prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Checks are run by /healthz, keyed by dependency name.
	Checks map[string]HealthCheck

	// CheckTimeout bounds each health check. Defaults to 2 seconds.
	CheckTimeout time.Duration

	Logger *slog.Logger
}

// NewOpsRouter returns a router serving:
//
//	GET /metrics  Prometheus exposition of Gatherer
//	GET /healthz  200 with {"status":"ok"} when every check passes,
//	              503 with the failing checks otherwise
func NewOpsRouter(config OpsConfig) http.Handler {
	gatherer := config.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	timeout := config.CheckTimeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	router.Get("/healthz", func(writer http.ResponseWriter, request *http.Request) {
		failures := make(map[string]string)
		for name, check := range config.Checks {
			ctx, cancel := context.WithTimeout(request.Context(), timeout)
			err := check(ctx)
			cancel()
			if err != nil {
				failures[name] = err.Error()
				logger.Warn("health check failed", "check", name, "error", err)
			}
		}

		writer.Header().Set("Content-Type", "application/json")
		if len(failures) > 0 {
			writer.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(writer).Encode(map[string]any{"status": "unhealthy", "failures": failures})
			return
		}
		json.NewEncoder(writer).Encode(map[string]string{"status": "ok"})
	})
	return router
}
