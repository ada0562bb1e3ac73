// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package autherr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode_Table(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code   ErrorCode
		key    string
		status int
		kind   Kind
	}{
		{ErrConfiguration, "ldap.configuration", http.StatusInternalServerError, KindConfiguration},
		{ErrConnection, "ldap.connection", http.StatusServiceUnavailable, KindConnection},
		{ErrUserNotFound, "user.notFound", http.StatusNotFound, KindNotFound},
		{ErrMissingPassword, "user.password.missing", http.StatusForbidden, KindInvalidShape},
		{ErrPasswordTooShort, "user.password.invalid", http.StatusBadRequest, KindInvalidShape},
		{ErrPasswordTooLong, "user.password.excessive", http.StatusBadRequest, KindInvalidShape},
		{ErrCredentialMismatch, "user.password.notSame", http.StatusUnauthorized, KindCredentialMismatch},
		{ErrTooManyAttempts, "user.login.throttled", http.StatusTooManyRequests, KindThrottled},
		{ErrUsage, "ldap.usage", http.StatusInternalServerError, KindUsage},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.key, tt.code.Key())
			assert.Equal(t, tt.key, tt.code.Error())
			assert.Equal(t, tt.status, tt.code.HTTPStatusCode())
			assert.Equal(t, tt.kind, tt.code.Kind())
			assert.NotEmpty(t, tt.code.Description())
		})
	}
}

func TestCodeOf_Wrapped(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("%w: %w", ErrConnection, cause)

	assert.ErrorIs(t, err, ErrConnection)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrConnection, CodeOf(err))
	assert.Equal(t, KindConnection, KindOf(err))

	outer := fmt.Errorf("login failed: %w", err)
	assert.Equal(t, ErrConnection, CodeOf(outer))
}

func TestCodeOf_NoCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ErrNone, CodeOf(nil))
	assert.Equal(t, ErrNone, CodeOf(errors.New("plain")))
	assert.Equal(t, KindNone, KindOf(errors.New("plain")))
	assert.Equal(t, http.StatusInternalServerError, ErrNone.HTTPStatusCode())
}
