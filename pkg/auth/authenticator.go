// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth is the host-facing side of directory authentication:
// resolving local identities from the directory and verifying passwords
// against it.
package auth

import (
	"context"
	"fmt"

	"github.com/medienhaus/ldapauth/pkg/autherr"
	"github.com/medienhaus/ldapauth/pkg/directory"
	"github.com/medienhaus/ldapauth/pkg/identity"
	"github.com/medienhaus/ldapauth/pkg/logger"
	"github.com/medienhaus/ldapauth/pkg/throttle"
)

// Authenticator combines identity resolution and password verification.
type Authenticator struct {
	dir        Directory
	reconciler *Reconciler
	limiter    throttle.Limiter
	elevated   bool
}

type Option func(*Authenticator)

// WithLimiter throttles password attempts per mail.
func WithLimiter(l throttle.Limiter) Option {
	return func(a *Authenticator) {
		a.limiter = l
	}
}

// WithElevation sets the flag IsElevated reports for directory identities.
func WithElevation(elevated bool) Option {
	return func(a *Authenticator) {
		a.elevated = elevated
	}
}

// WithCollection registers resolved identities in c.
func WithCollection(c *identity.Collection) Option {
	return func(a *Authenticator) {
		a.reconciler.collection = c
	}
}

func NewAuthenticator(dir Directory, store identity.Store, opts ...Option) *Authenticator {
	a := &Authenticator{
		dir:        dir,
		reconciler: NewReconciler(dir, store, nil),
		limiter:    throttle.Unlimited{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Reconciler returns the underlying reconciler.
func (a *Authenticator) Reconciler() *Reconciler {
	return a.reconciler
}

// ResolveIdentity is called once per login before any password check.
func (a *Authenticator) ResolveIdentity(ctx context.Context, email string) (*identity.Identity, error) {
	return a.reconciler.Authenticate(ctx, email)
}

// ResolveIdentityByUsername resolves a login name given as directory uid.
func (a *Authenticator) ResolveIdentityByUsername(ctx context.Context, username string) (*identity.Identity, error) {
	return a.reconciler.AuthenticateByUID(ctx, username)
}

// VerifyPassword returns nil only when the directory accepts password for
// the identity. Every rejection is an autherr code:
//
//   - ErrUsage: no identity
//   - ErrNotDirectoryManaged: the identity is a local account
//   - ErrMissingPassword, ErrPasswordTooShort, ErrPasswordTooLong: bad shape
//   - ErrTooManyAttempts: throttled
//   - ErrCredentialMismatch: the directory rejected the bind
//
// Lookup and connection failures are returned as they come from the
// directory.
func (a *Authenticator) VerifyPassword(ctx context.Context, id *identity.Identity, password string) (err error) {
	defer func() { recordPasswordCheck(err) }()

	if id == nil {
		return fmt.Errorf("%w: verify password without identity", autherr.ErrUsage)
	}
	if !id.IsDirectoryManaged() {
		return autherr.ErrNotDirectoryManaged
	}
	if err := CheckShape(password); err != nil {
		return err
	}

	mail := directoryMail(id)

	allowed, err := a.limiter.Allow(ctx, throttle.Key(mail))
	if err != nil {
		return fmt.Errorf("%w: %w", autherr.ErrTooManyAttempts, err)
	}
	if !allowed {
		logger.Ctx(ctx).Info().Str("id", id.ID).Msg("login throttled")
		return autherr.ErrTooManyAttempts
	}

	ok, err := a.dir.Verify(ctx, mail, password)
	if err != nil {
		return err
	}
	if !ok {
		return autherr.ErrCredentialMismatch
	}
	return nil
}

// IsElevated reports the configured elevation flag for directory identities.
// Local accounts are never elevated by this package.
func (a *Authenticator) IsElevated(id *identity.Identity) bool {
	return a.elevated && id.IsDirectoryManaged()
}

// Attributes reads the identity's directory entry afresh.
func (a *Authenticator) Attributes(ctx context.Context, id *identity.Identity) (directory.Record, error) {
	if !id.IsDirectoryManaged() {
		return directory.Record{}, autherr.ErrNotDirectoryManaged
	}
	mail := directoryMail(id)
	return a.dir.FindByMail(ctx, mail)
}

func directoryMail(id *identity.Identity) string {
	if id.Directory != nil && id.Directory.Mail != "" {
		return id.Directory.Mail
	}
	return id.Email
}
