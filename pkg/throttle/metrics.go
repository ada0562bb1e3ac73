// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package throttle

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/medienhaus/ldapauth/pkg/debug"
)

const (
	backendLocal = "local"
	backendRedis = "redis"
)

var (
	// AttemptsTotal counts throttle decisions.
	AttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ldapauth",
		Subsystem: "throttle",
		Name:      "attempts_total",
		Help:      "Total number of login attempts checked by the throttle",
	}, []string{"backend", "result"}) // result: allowed/rejected

	// BackendErrorsTotal counts Redis failures.
	BackendErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ldapauth",
		Subsystem: "throttle",
		Name:      "backend_errors_total",
		Help:      "Total number of throttle backend failures",
	}, []string{"backend"})
)

func init() {
	debug.Registry().MustRegister(AttemptsTotal, BackendErrorsTotal)
}

func record(backend string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "rejected"
	}
	AttemptsTotal.WithLabelValues(backend, result).Inc()
}
