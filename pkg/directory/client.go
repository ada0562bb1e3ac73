// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

// Package directory is the LDAP side of ldapauth: connection lifecycle,
// attribute mapping, mail/uid search and bind-as-user credential checks.
//
// A Client owns exactly one long-lived connection bound as the service
// account. It is used for searches only. Credential checks always dial a
// second, short-lived connection so that a user bind can never change the
// authorization context of the shared one.
package directory

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/medienhaus/ldapauth/pkg/autherr"
	"github.com/medienhaus/ldapauth/pkg/logger"
)

// Client is safe for concurrent use. Searches are serialized on the shared
// service connection.
type Client struct {
	config    Config
	mapping   AttributeMapping
	lower     AttributeMapping
	tlsConfig *tls.Config
	dialer    Dialer

	mu   sync.Mutex
	conn Conn
}

// Option configures a Client
type Option func(*Client)

// WithDialer replaces the go-ldap dialer, mainly for tests.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// NewClient validates config and prepares a client. No connection is opened
// until the first operation needs one.
func NewClient(config Config, opts ...Option) (*Client, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	tlsConfig, err := config.TLS.Build(config.serverName())
	if err != nil {
		return nil, err
	}

	mapping := ResolveMapping(config.Attributes)
	c := &Client{
		config:    config,
		mapping:   mapping,
		lower:     mapping.Lower(),
		tlsConfig: tlsConfig,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = &netDialer{
			timeout:   config.Timeout,
			tlsConfig: tlsConfig,
			debug:     config.Debug,
		}
	}
	return c, nil
}

// Mapping returns the resolved attribute mapping.
func (c *Client) Mapping() AttributeMapping {
	return c.mapping
}

// Connect returns the service-bound connection, establishing it on first use
// or after the previous one was closed by the server.
func (c *Client) Connect(ctx context.Context) (Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) (Conn, error) {
	if c.conn != nil {
		if !c.conn.IsClosing() {
			return c.conn, nil
		}
		logger.Ctx(ctx).Info().Str("host", c.config.Host).Msg("directory connection closed, reconnecting")
		c.conn.Close()
		c.conn = nil
	}

	start := time.Now()
	conn, err := c.open(ctx)
	if err != nil {
		observe(opConnect, resultError, start)
		return nil, err
	}

	if c.config.BindDN != "" {
		if err := conn.Bind(c.config.BindDN, c.config.BindPassword); err != nil {
			conn.Close()
			observe(opConnect, resultError, start)
			logger.Ctx(ctx).Error().Err(err).Str("bind_dn", c.config.BindDN).Msg("service account bind failed")
			return nil, fmt.Errorf("%w: service account bind: %w", autherr.ErrConnection, err)
		}
	}

	observe(opConnect, resultOK, start)
	logger.Ctx(ctx).Debug().
		Str("host", c.config.Host).
		Bool("start_tls", c.config.UseStartTLS()).
		Msg("directory connection established")

	c.conn = conn
	return conn, nil
}

// open dials and, unless disabled, upgrades to TLS. The returned connection
// is not bound.
func (c *Client) open(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", autherr.ErrConnection, err)
	}

	conn, err := c.dialer.Dial(ctx, c.config.Host)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("host", c.config.Host).Msg("failed to connect to directory")
		return nil, fmt.Errorf("%w: invalid or unreachable host %s: %w", autherr.ErrConnection, c.config.Host, err)
	}
	conn.SetTimeout(c.config.Timeout)

	if c.config.UseStartTLS() {
		if err := conn.StartTLS(c.tlsConfig); err != nil {
			conn.Close()
			logger.Ctx(ctx).Error().Err(err).Str("host", c.config.Host).Msg("StartTLS failed")
			return nil, fmt.Errorf("%w: StartTLS: %w", autherr.ErrConnection, err)
		}
	}
	return conn, nil
}

// dropLocked discards the shared connection so the next operation re-dials.
func (c *Client) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close releases the shared connection. The client can still be used; the
// next operation reconnects.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
