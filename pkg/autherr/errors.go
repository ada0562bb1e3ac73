// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

// Package autherr defines the error codes surfaced to the hosting application.
//
// Every code carries a machine-readable key, a user-facing description, an
// HTTP status and a Kind. Codes implement error and are meant to be wrapped:
//
//	return fmt.Errorf("%w: %w", autherr.ErrConnection, err)
//
// so that both errors.Is(err, autherr.ErrConnection) and the original cause
// stay reachable.
package autherr

import (
	"errors"
	"net/http"
)

// Kind groups codes by how the caller is expected to react.
type Kind int

const (
	KindNone Kind = iota
	KindConfiguration
	KindConnection
	KindNotFound
	KindInvalidShape
	KindCredentialMismatch
	KindThrottled
	KindUsage
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindConnection:
		return "connection"
	case KindNotFound:
		return "not_found"
	case KindInvalidShape:
		return "invalid_shape"
	case KindCredentialMismatch:
		return "credential_mismatch"
	case KindThrottled:
		return "throttled"
	case KindUsage:
		return "usage"
	default:
		return "none"
	}
}

// APIError describes a code as presented to the host.
type APIError struct {
	Key            string
	Description    string
	HTTPStatusCode int
	Kind           Kind
}

// ErrorCode enumerates every failure the core reports.
type ErrorCode int

const (
	ErrNone ErrorCode = iota

	// Directory settings missing or malformed.
	ErrConfiguration
	// Directory unreachable, TLS upgrade failed or service bind rejected.
	ErrConnection

	ErrUserNotFound
	ErrNotDirectoryManaged

	// Password shape
	ErrMissingPassword
	ErrPasswordTooShort
	ErrPasswordTooLong

	ErrCredentialMismatch
	ErrTooManyAttempts

	ErrUsage
)

var errorCodeResponse = map[ErrorCode]APIError{
	ErrConfiguration: {
		Key:            "ldap.configuration",
		Description:    "The directory connection is not configured correctly.",
		HTTPStatusCode: http.StatusInternalServerError,
		Kind:           KindConfiguration,
	},
	ErrConnection: {
		Key:            "ldap.connection",
		Description:    "The directory server could not be reached.",
		HTTPStatusCode: http.StatusServiceUnavailable,
		Kind:           KindConnection,
	},
	ErrUserNotFound: {
		Key:            "user.notFound",
		Description:    "The user cannot be found.",
		HTTPStatusCode: http.StatusNotFound,
		Kind:           KindNotFound,
	},
	ErrNotDirectoryManaged: {
		Key:            "user.ldap.unmanaged",
		Description:    "The account is not managed by the directory.",
		HTTPStatusCode: http.StatusNotFound,
		Kind:           KindNotFound,
	},
	ErrMissingPassword: {
		Key:            "user.password.missing",
		Description:    "Please enter a password.",
		HTTPStatusCode: http.StatusForbidden,
		Kind:           KindInvalidShape,
	},
	ErrPasswordTooShort: {
		Key:            "user.password.invalid",
		Description:    "Please enter a valid password. Passwords must be at least 8 characters long.",
		HTTPStatusCode: http.StatusBadRequest,
		Kind:           KindInvalidShape,
	},
	ErrPasswordTooLong: {
		Key:            "user.password.excessive",
		Description:    "Please enter a valid password. Passwords must not exceed 1000 characters.",
		HTTPStatusCode: http.StatusBadRequest,
		Kind:           KindInvalidShape,
	},
	ErrCredentialMismatch: {
		Key:            "user.password.notSame",
		Description:    "Invalid email or password.",
		HTTPStatusCode: http.StatusUnauthorized,
		Kind:           KindCredentialMismatch,
	},
	ErrTooManyAttempts: {
		Key:            "user.login.throttled",
		Description:    "Too many login attempts. Please try again later.",
		HTTPStatusCode: http.StatusTooManyRequests,
		Kind:           KindThrottled,
	},
	ErrUsage: {
		Key:            "ldap.usage",
		Description:    "The directory client was called incorrectly.",
		HTTPStatusCode: http.StatusInternalServerError,
		Kind:           KindUsage,
	},
}

// APIError returns the presentation details for the code.
func (e ErrorCode) APIError() APIError {
	if err, ok := errorCodeResponse[e]; ok {
		return err
	}
	return APIError{
		Key:            "internal",
		Description:    "An internal error occurred.",
		HTTPStatusCode: http.StatusInternalServerError,
	}
}

// Key returns the machine-readable key.
func (e ErrorCode) Key() string {
	return e.APIError().Key
}

// Description returns the user-facing message.
func (e ErrorCode) Description() string {
	return e.APIError().Description
}

// Kind returns the category of the code.
func (e ErrorCode) Kind() Kind {
	return e.APIError().Kind
}

// HTTPStatusCode returns the HTTP status code for this error.
func (e ErrorCode) HTTPStatusCode() int {
	return e.APIError().HTTPStatusCode
}

// Error implements the error interface.
func (e ErrorCode) Error() string {
	return e.Key()
}

// CodeOf extracts the outermost ErrorCode wrapped in err.
// Returns ErrNone for nil and for errors that carry no code.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrNone
	}
	var code ErrorCode
	if errors.As(err, &code) {
		return code
	}
	return ErrNone
}

// KindOf is shorthand for CodeOf(err).Kind().
func KindOf(err error) Kind {
	return CodeOf(err).Kind()
}
