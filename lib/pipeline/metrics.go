// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "buildwright"

// Outcomes label buildwright_stage_jobs_total.
const (
	OutcomeForwarded      = "forwarded"
	OutcomeFatal          = "fatal"
	OutcomeInfrastructure = "infrastructure"
	OutcomePanic          = "panic"
)

// Metrics are the orchestrator's Prometheus collectors.
type Metrics struct {
	// Jobs counts stage invocations by outcome.
	Jobs *prometheus.CounterVec

	// Duration measures stage invocations, failures included.
	Duration *prometheus.HistogramVec

	// InFlight is 1 while a stage is processing an instruction.
	InFlight *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with registerer.
// A nil registerer leaves them unregistered.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Jobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "stage",
			Name:      "jobs_total",
			Help:      "Stage invocations by outcome.",
		}, []string{"stage", "outcome"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "stage",
			Name:      "duration_seconds",
			Help:      "Time spent in one stage invocation.",
			// Stages range from a key write to a ten-minute build.
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 180, 600, 1800},
		}, []string{"stage"}),
		InFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "stage",
			Name:      "in_flight",
			Help:      "Instructions currently being processed.",
		}, []string{"stage"}),
	}
}
