// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"context"
	"errors"
)

var (
	ErrIdentityNotFound = errors.New("identity not found")
	ErrIdentityExists   = errors.New("identity already exists")
)

// Store is the host's identity storage. Emails are unique and matched
// case-insensitively.
type Store interface {
	// FindByEmail returns ErrIdentityNotFound if no identity uses email.
	FindByEmail(ctx context.Context, email string) (*Identity, error)

	// FindByID returns ErrIdentityNotFound if no identity has id.
	FindByID(ctx context.Context, id string) (*Identity, error)

	// Create stores a new identity. Returns ErrIdentityExists on an email or
	// ID collision.
	Create(ctx context.Context, identity *Identity) error

	// Update replaces the identity stored under id. Both the ID and the
	// email may change; ErrIdentityExists is returned when either is taken
	// by another identity.
	Update(ctx context.Context, id string, identity *Identity) error

	// List returns every identity.
	List(ctx context.Context) ([]*Identity, error)
}
