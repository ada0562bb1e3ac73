// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"unicode/utf8"

	"github.com/medienhaus/ldapauth/pkg/autherr"
)

const (
	// MinPasswordLength matches the host's registration policy.
	MinPasswordLength = 8
	// MaxPasswordLength caps input before it reaches the directory.
	MaxPasswordLength = 1000
)

// CheckShape rejects passwords that cannot possibly be valid, without
// contacting the directory. Lengths count characters, not bytes.
func CheckShape(password string) error {
	if password == "" {
		return autherr.ErrMissingPassword
	}
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		return autherr.ErrPasswordTooShort
	}
	if n > MaxPasswordLength {
		return autherr.ErrPasswordTooLong
	}
	return nil
}
