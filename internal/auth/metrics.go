// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationsTotal counts coordinator operations by outcome ("ok" or an
	// error Kind name).
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tasklane_auth_operations_total",
		Help: "Total number of auth operations by operation and outcome",
	}, []string{"operation", "outcome"})

	// operationDuration tracks coordinator latency, hashing included.
	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tasklane_auth_operation_duration_seconds",
		Help:    "Histogram of auth operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// refreshReuseTotal counts refresh tokens presented after rotation or revocation.
	refreshReuseTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tasklane_auth_refresh_reuse_total",
		Help: "Total number of refresh attempts with a revoked, rotated or unknown token",
	})

	// throttledTotal counts silently throttled one-time token requests.
	throttledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tasklane_auth_throttled_total",
		Help: "Total number of throttled one-time token requests by purpose",
	}, []string{"purpose"})
)

func recordOperation(operation string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	operationsTotal.WithLabelValues(operation, outcome).Inc()
	operationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}
