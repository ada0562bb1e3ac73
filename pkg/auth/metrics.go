// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/medienhaus/ldapauth/pkg/autherr"
	"github.com/medienhaus/ldapauth/pkg/debug"
)

var (
	// ReconcileTotal counts identity resolutions by action.
	ReconcileTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ldapauth",
		Subsystem: "auth",
		Name:      "reconcile_total",
		Help:      "Total number of identity resolutions",
	}, []string{"action"}) // action: created/updated/unmanaged/not_found/error

	// PasswordChecksTotal counts password verifications by outcome.
	PasswordChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ldapauth",
		Subsystem: "auth",
		Name:      "password_checks_total",
		Help:      "Total number of password verifications",
	}, []string{"result"}) // result: ok or the error key
)

func init() {
	debug.Registry().MustRegister(ReconcileTotal, PasswordChecksTotal)
}

func recordPasswordCheck(err error) {
	result := "ok"
	if err != nil {
		if code := autherr.CodeOf(err); code != autherr.ErrNone {
			result = code.Key()
		} else {
			result = "error"
		}
	}
	PasswordChecksTotal.WithLabelValues(result).Inc()
}
