// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"context"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// WithRequestID returns c tagged with the request ID, generating one
// when c does not carry it yet.
func WithRequestID(c context.Context) (context.Context, string) {
	if id := RequestID(c); id != "" {
		return c, id
	}
	newID := uuid.New().String()
	return context.WithValue(c, requestIDKey{}, newID), newID
}

// FromRequestID tags c with an ID received from a caller.
func FromRequestID(c context.Context, reqID string) context.Context {
	return context.WithValue(c, requestIDKey{}, reqID)
}

// RequestID returns the request ID carried by c, or "".
func RequestID(c context.Context) string {
	id, _ := c.Value(requestIDKey{}).(string)
	return id
}
