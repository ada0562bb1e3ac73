// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/medienhaus/ldapauth/pkg/autherr"
	"github.com/medienhaus/ldapauth/pkg/directory"
	"github.com/medienhaus/ldapauth/pkg/identity"
	"github.com/medienhaus/ldapauth/pkg/logger"
)

// Directory is the part of directory.Client the auth layer depends on.
type Directory interface {
	FindByMail(ctx context.Context, mail string) (directory.Record, error)
	FindByUID(ctx context.Context, uid string) (directory.Record, error)
	Verify(ctx context.Context, mail, password string) (bool, error)
}

var _ Directory = (*directory.Client)(nil)

// Reconciler keeps local identities in step with the directory.
//
// Local identities carrying a role other than the directory marker are
// never touched. Everything else found in the directory is created or
// refreshed, keeping a display name the user has already customized.
type Reconciler struct {
	dir        Directory
	store      identity.Store
	collection *identity.Collection
}

// NewReconciler creates a reconciler. collection may be nil.
func NewReconciler(dir Directory, store identity.Store, collection *identity.Collection) *Reconciler {
	if collection == nil {
		collection = identity.NewCollection()
	}
	return &Reconciler{dir: dir, store: store, collection: collection}
}

// Collection returns the identities registered since start-up.
func (r *Reconciler) Collection() *identity.Collection {
	return r.collection
}

// Authenticate resolves the local identity for mail, creating or updating
// it from the directory. Returns ErrUserNotFound when mail is empty or no
// directory entry matches.
func (r *Reconciler) Authenticate(ctx context.Context, mail string) (*identity.Identity, error) {
	if mail == "" {
		return nil, autherr.ErrUserNotFound
	}

	existing, err := r.findLocal(ctx, mail)
	if err != nil {
		ReconcileTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if existing != nil && !syncable(existing) {
		ReconcileTotal.WithLabelValues("unmanaged").Inc()
		return existing, nil
	}

	record, err := r.dir.FindByMail(ctx, mail)
	if err != nil {
		return nil, r.searchFailed(ctx, err)
	}
	if record.Mail == "" {
		record.Mail = mail
	}
	return r.reconcile(ctx, existing, record)
}

// AuthenticateByUID resolves the local identity for a directory uid.
func (r *Reconciler) AuthenticateByUID(ctx context.Context, uid string) (*identity.Identity, error) {
	if uid == "" {
		return nil, autherr.ErrUserNotFound
	}

	record, err := r.dir.FindByUID(ctx, uid)
	if err != nil {
		return nil, r.searchFailed(ctx, err)
	}
	if record.Mail == "" {
		ReconcileTotal.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("%w: entry %s has no mail", autherr.ErrUserNotFound, record.DN)
	}

	return r.reconcile(ctx, nil, record)
}

// reconcile syncs the identity owning the entry: the one stored under the
// entry's mail, else the one with the entry's derived ID, else found.
func (r *Reconciler) reconcile(ctx context.Context, found *identity.Identity, record directory.Record) (*identity.Identity, error) {
	if record.UID == "" {
		ReconcileTotal.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("%w: entry %s has no uid", autherr.ErrUserNotFound, record.DN)
	}

	existing, err := r.findOwner(ctx, found, record)
	if err != nil {
		ReconcileTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if existing != nil && !syncable(existing) {
		ReconcileTotal.WithLabelValues("unmanaged").Inc()
		return existing, nil
	}
	return r.sync(ctx, existing, record)
}

func (r *Reconciler) findOwner(ctx context.Context, found *identity.Identity, record directory.Record) (*identity.Identity, error) {
	if found != nil && identity.NormalizeEmail(found.Email) == identity.NormalizeEmail(record.Mail) {
		return found, nil
	}

	byMail, err := r.findLocal(ctx, record.Mail)
	if err != nil || byMail != nil {
		return byMail, err
	}

	id := identity.IDForUID(record.UID)
	byID, err := r.store.FindByID(ctx, id)
	switch {
	case errors.Is(err, identity.ErrIdentityNotFound):
		return found, nil
	case err != nil:
		return nil, fmt.Errorf("look up identity %s: %w", id, err)
	}
	return byID, nil
}

// syncable reports whether directory data may overwrite the identity:
// directory-managed ones and stubs without a role.
func syncable(i *identity.Identity) bool {
	return i.Role == "" || i.IsDirectoryManaged()
}

func (r *Reconciler) findLocal(ctx context.Context, mail string) (*identity.Identity, error) {
	existing, err := r.store.FindByEmail(ctx, mail)
	if errors.Is(err, identity.ErrIdentityNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up identity %s: %w", mail, err)
	}
	return existing, nil
}

func (r *Reconciler) searchFailed(ctx context.Context, err error) error {
	if errors.Is(err, autherr.ErrUserNotFound) {
		ReconcileTotal.WithLabelValues("not_found").Inc()
	} else {
		ReconcileTotal.WithLabelValues("error").Inc()
		logger.Ctx(ctx).Warn().Err(err).Msg("directory search failed")
	}
	return err
}

// sync builds the complete identity first and only registers it once the
// store has accepted it.
func (r *Reconciler) sync(ctx context.Context, existing *identity.Identity, record directory.Record) (*identity.Identity, error) {
	next := &identity.Identity{
		ID:          identity.IDForUID(record.UID),
		Email:       record.Mail,
		DisplayName: record.Name,
		Language:    identity.DefaultLanguage,
		Role:        identity.RoleDirectory,
		Directory: &identity.DirectoryAttributes{
			DN:   record.DN,
			UID:  record.UID,
			Mail: record.Mail,
			Name: record.Name,
		},
	}

	action := "created"
	var err error
	if existing != nil {
		action = "updated"
		if existing.DisplayName != "" {
			next.DisplayName = existing.DisplayName
		}
		err = r.store.Update(ctx, existing.ID, next)
	} else {
		err = r.store.Create(ctx, next)
	}
	if err != nil {
		ReconcileTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("persist identity %s: %w", next.ID, err)
	}

	r.collection.Add(next)
	ReconcileTotal.WithLabelValues(action).Inc()
	logger.Ctx(ctx).Debug().
		Str("id", next.ID).
		Str("dn", record.DN).
		Str("action", action).
		Msg("identity synced from directory")
	return next, nil
}
