// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/medienhaus/ldapauth/pkg/debug"
)

const (
	opConnect = "connect"
	opSearch  = "search"
	opBind    = "user_bind"

	resultOK       = "ok"
	resultError    = "error"
	resultNotFound = "not_found"
	resultRejected = "rejected"
)

var (
	// OperationsTotal counts directory round-trips by operation and outcome.
	OperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ldapauth",
		Subsystem: "directory",
		Name:      "operations_total",
		Help:      "Total number of directory operations",
	}, []string{"operation", "result"})

	// OperationDuration tracks directory latency.
	OperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ldapauth",
		Subsystem: "directory",
		Name:      "operation_duration_seconds",
		Help:      "Latency of directory operations",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"operation"})
)

func init() {
	debug.Registry().MustRegister(
		OperationsTotal,
		OperationDuration,
	)
}

func observe(operation, result string, start time.Time) {
	OperationsTotal.WithLabelValues(operation, result).Inc()
	OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
