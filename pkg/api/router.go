// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

// Package api exposes directory login over HTTP for hosts that do not
// embed the auth package directly.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/medienhaus/ldapauth/pkg/auth"
	reqctx "github.com/medienhaus/ldapauth/pkg/context"
	"github.com/medienhaus/ldapauth/pkg/identity"
	"github.com/medienhaus/ldapauth/pkg/logger"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// NewRouter wires the login routes.
//
// Routes:
//   - GET /health - Liveness probe
//   - POST /api/auth/login - Resolve the identity, then verify the password
//   - GET /api/users/{email}/ldap - Fresh directory attributes of a known identity
func NewRouter(authenticator *auth.Authenticator, store identity.Store) http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	h := NewHandler(authenticator, store)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.Login)
		r.Get("/users/{email}/ldap", h.Attributes)
	})

	return r
}

// requestID tags each request with an ID and a logger carrying it.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := r.Header.Get(RequestIDHeader); id != "" {
			ctx = reqctx.FromRequestID(ctx, id)
		}
		ctx, id := reqctx.WithRequestID(ctx)
		w.Header().Set(RequestIDHeader, id)

		l := logger.Ctx(ctx).With().Str("request_id", id).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithLogger(ctx, &l)))
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		event := logger.Ctx(r.Context()).Info()
		if r.URL.Path == "/health" {
			event = logger.Ctx(r.Context()).Debug()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("API request completed")
	})
}
