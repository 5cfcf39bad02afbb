// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package repoquery

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Query outcome labels.
const (
	outcomeOK        = "ok"
	outcomeExhausted = "exhausted"
	outcomeError     = "error"
)

var (
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "repoquery",
		Name:      "queries_total",
		Help:      "Total queries processed, by outcome.",
	}, []string{"outcome"})

	queryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "repoquery",
		Name:      "query_duration_seconds",
		Help:      "Wall time per query.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 12),
	})

	toolCallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "repoquery",
		Name:      "tool_calls_total",
		Help:      "Total tool invocations dispatched to capabilities.",
	})

	chatCallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "repoquery",
		Name:      "chat_calls_total",
		Help:      "Total chat service round trips.",
	})
)

// recordQuery updates the query metrics after a run.
func recordQuery(outcome string, duration time.Duration, toolCalls, chatCalls int) {
	queriesTotal.WithLabelValues(outcome).Inc()
	queryDuration.Observe(duration.Seconds())
	toolCallsTotal.Add(float64(toolCalls))
	chatCallsTotal.Add(float64(chatCalls))
}
