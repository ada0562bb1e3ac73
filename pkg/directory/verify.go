// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/medienhaus/ldapauth/pkg/autherr"
	"github.com/medienhaus/ldapauth/pkg/logger"
)

// Verify reports whether password is valid for the entry registered under
// mail, by binding as that entry's DN on a dedicated connection.
//
// An unknown mail and every bind failure yield false with a nil error. Only
// an empty mail (ErrUsage) or a failure of the service-side lookup is
// returned as an error.
func (c *Client) Verify(ctx context.Context, mail, password string) (bool, error) {
	if mail == "" {
		return false, fmt.Errorf("%w: validate password without mail", autherr.ErrUsage)
	}

	record, err := c.FindByMail(ctx, mail)
	if errors.Is(err, autherr.ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return c.BindAs(ctx, record.DN, password), nil
}

// BindAs attempts a simple bind as dn on a fresh connection that is closed
// afterwards. The shared service connection is never touched.
func (c *Client) BindAs(ctx context.Context, dn, password string) bool {
	// An empty password would turn into an unauthenticated bind, which many
	// servers accept for any DN.
	if dn == "" || password == "" {
		return false
	}

	start := time.Now()
	conn, err := c.open(ctx)
	if err != nil {
		observe(opBind, resultError, start)
		return false
	}
	defer conn.Close()

	if err := conn.Bind(dn, password); err != nil {
		observe(opBind, resultRejected, start)
		logger.Ctx(ctx).Debug().Err(err).Str("dn", dn).Msg("user bind rejected")
		return false
	}

	observe(opBind, resultOK, start)
	return true
}
