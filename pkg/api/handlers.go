// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medienhaus/ldapauth/pkg/auth"
	"github.com/medienhaus/ldapauth/pkg/autherr"
	reqctx "github.com/medienhaus/ldapauth/pkg/context"
	"github.com/medienhaus/ldapauth/pkg/identity"
	"github.com/medienhaus/ldapauth/pkg/logger"
)

// Handler serves the login endpoints.
type Handler struct {
	auth  *auth.Authenticator
	store identity.Store
}

func NewHandler(authenticator *auth.Authenticator, store identity.Store) *Handler {
	return &Handler{auth: authenticator, store: store}
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned on a verified login.
type LoginResponse struct {
	Identity *identity.Identity `json:"identity"`
	Admin    bool               `json:"admin"`
}

// ErrorResponse carries the machine-readable key of an autherr code.
type ErrorResponse struct {
	Key       string `json:"key"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Key: "request.invalid", Message: "Invalid request body"})
		return
	}

	ctx := r.Context()
	id, err := h.auth.ResolveIdentity(ctx, req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.auth.VerifyPassword(ctx, id, req.Password); err != nil {
		writeError(w, r, err)
		return
	}

	logger.Ctx(ctx).Info().Str("id", id.ID).Msg("login verified")
	writeJSON(w, http.StatusOK, LoginResponse{Identity: id, Admin: h.auth.IsElevated(id)})
}

// Attributes handles GET /api/users/{email}/ldap.
func (h *Handler) Attributes(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")

	id, err := h.store.FindByEmail(r.Context(), email)
	if errors.Is(err, identity.ErrIdentityNotFound) {
		writeError(w, r, autherr.ErrUserNotFound)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	record, err := h.auth.Attributes(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := autherr.CodeOf(err)
	if code == autherr.ErrNone {
		logger.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Key:       "internal",
			Message:   "Internal server error",
			RequestID: reqctx.RequestID(r.Context()),
		})
		return
	}
	if code.HTTPStatusCode() >= http.StatusInternalServerError {
		logger.Ctx(r.Context()).Error().Err(err).Str("key", code.Key()).Msg("request failed")
	}
	writeJSON(w, code.HTTPStatusCode(), ErrorResponse{
		Key:       code.Key(),
		Message:   code.Description(),
		RequestID: reqctx.RequestID(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
