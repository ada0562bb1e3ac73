// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"

	"github.com/medienhaus/ldapauth/pkg/logger"
)

var routePacketTrace sync.Once

// Conn is the subset of *ldap.Conn the client relies on.
type Conn interface {
	Bind(username, password string) error
	StartTLS(config *tls.Config) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	SetTimeout(timeout time.Duration)
	IsClosing() bool
	Close() error
}

// Dialer opens a new, unauthenticated connection to url.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}

// netDialer is the production Dialer backed by go-ldap.
type netDialer struct {
	timeout   time.Duration
	tlsConfig *tls.Config // used for ldaps:// only
	debug     bool
}

func (d *netDialer) Dial(ctx context.Context, url string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := []ldap.DialOpt{ldap.DialWithDialer(&net.Dialer{Timeout: d.timeout})}
	if d.tlsConfig != nil {
		opts = append(opts, ldap.DialWithTLSConfig(d.tlsConfig))
	}

	conn, err := ldap.DialURL(url, opts...)
	if err != nil {
		return nil, err
	}
	if d.debug {
		routePacketTrace.Do(func() {
			ldap.Logger(logger.StdLogger("ldap", zerolog.DebugLevel))
		})
		conn.Debug.Enable(true)
	}
	return &ldapConn{Conn: conn}, nil
}

// ldapConn pins Close to a single signature across go-ldap releases.
type ldapConn struct {
	*ldap.Conn
}

func (c *ldapConn) Close() error {
	c.Conn.Close()
	return nil
}
