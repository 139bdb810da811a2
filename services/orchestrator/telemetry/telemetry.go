// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry holds the orchestrator's prometheus metrics and the
// otel tracer handle.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Tracer returns the orchestrator tracer.
func Tracer() oteltrace.Tracer {
	return otel.Tracer("relay/orchestrator")
}

var (
	// PlansTotal counts completed plan executions by outcome.
	PlansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_plans_total",
		Help: "Completed plan executions by outcome (success|error|cancelled|chat).",
	}, []string{"outcome"})

	// NodesTotal counts executed nodes by status.
	NodesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_nodes_total",
		Help: "Executed plan nodes by status (success|error).",
	}, []string{"status"})

	// SynthesisTotal counts on-demand tool syntheses.
	SynthesisTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_synthesis_total",
		Help: "On-demand tool synthesis requests.",
	})

	// AdapterFallbackTotal counts adapter passthrough fallbacks.
	AdapterFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_adapter_fallback_total",
		Help: "Adapter applications that fell back to passthrough.",
	})

	// PlanDuration observes end-to-end plan execution time.
	PlanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_plan_duration_seconds",
		Help:    "End-to-end plan execution duration.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
	})
)
