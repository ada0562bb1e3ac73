// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package directory_test

import (
	"context"
	"crypto/tls"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/medienhaus/ldapauth/pkg/autherr"
	"github.com/medienhaus/ldapauth/pkg/directory"
	"github.com/medienhaus/ldapauth/pkg/directory/directorytest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	testBaseDN = "dc=x,dc=org"
	janeDN     = "cn=jdoe,dc=x,dc=org"
)

func newServer(t *testing.T) *directorytest.Server {
	t.Helper()
	srv := directorytest.NewServer()
	srv.SetServiceAccount("cn=admin,dc=x,dc=org", "service-secret")
	srv.AddEntry(janeDN, map[string][]string{
		"uid":  {"jdoe"},
		"mail": {"a@x.org"},
		"cn":   {"Jane Doe"},
		"sn":   {"Doe"},
	}, "longenough1")
	return srv
}

func testConfig() directory.Config {
	return directory.Config{
		Host:         "ldap://ldap.x.org:389",
		BindDN:       "cn=admin,dc=x,dc=org",
		BindPassword: "service-secret",
		BaseDN:       testBaseDN,
	}
}

func newClient(t *testing.T, srv *directorytest.Server, cfg directory.Config) *directory.Client {
	t.Helper()
	c, err := directory.NewClient(cfg, directory.WithDialer(srv.Dialer()))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// =============================================================================
// Configuration
// =============================================================================

func TestNewClient_ConfigurationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*directory.Config)
	}{
		{"missing base_dn", func(c *directory.Config) { c.BaseDN = "" }},
		{"blank base_dn", func(c *directory.Config) { c.BaseDN = "   " }},
		{"missing host", func(c *directory.Config) { c.Host = "" }},
		{"host without scheme", func(c *directory.Config) { c.Host = "ldap.x.org:389" }},
		{"unknown tls version", func(c *directory.Config) { c.TLS.Version = "0.9" }},
		{"unknown validate mode", func(c *directory.Config) { c.TLS.Validate = "sometimes" }},
		{"unknown cipher", func(c *directory.Config) { c.TLS.Ciphers = "TLS_NOT_A_CIPHER" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := newServer(t)
			cfg := testConfig()
			tt.mutate(&cfg)

			_, err := directory.NewClient(cfg, directory.WithDialer(srv.Dialer()))
			require.Error(t, err)
			assert.ErrorIs(t, err, autherr.ErrConfiguration)
			assert.Equal(t, autherr.KindConfiguration, autherr.KindOf(err))
			assert.Zero(t, srv.NetworkCalls(), "configuration errors must not reach the directory")
		})
	}
}

func TestNewClient_DoesNotConnect(t *testing.T) {
	t.Parallel()
	srv := newServer(t)
	newClient(t, srv, testConfig())
	assert.Zero(t, srv.NetworkCalls())
}

func TestResolveMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		overrides directory.AttributeOverrides
		want      directory.AttributeMapping
	}{
		{
			name:      "defaults",
			overrides: directory.AttributeOverrides{},
			want:      directory.AttributeMapping{UID: "uid", Mail: "mail", Name: "cn"},
		},
		{
			name:      "all overridden",
			overrides: directory.AttributeOverrides{UID: "sAMAccountName", Mail: "userPrincipalName", Name: "displayName"},
			want:      directory.AttributeMapping{UID: "sAMAccountName", Mail: "userPrincipalName", Name: "displayName"},
		},
		{
			name:      "blank override falls back",
			overrides: directory.AttributeOverrides{UID: "  ", Name: "displayName"},
			want:      directory.AttributeMapping{UID: "uid", Mail: "mail", Name: "displayName"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := directory.ResolveMapping(tt.overrides)
			assert.Equal(t, tt.want, got)
		})
	}

	lower := directory.AttributeMapping{UID: "sAMAccountName", Mail: "Mail", Name: "displayName"}.Lower()
	assert.Equal(t, directory.AttributeMapping{UID: "samaccountname", Mail: "mail", Name: "displayname"}, lower)
}

func TestTLSOptions_Build(t *testing.T) {
	t.Parallel()

	cfg, err := directory.TLSOptions{}.Build("ldap.x.org")
	require.NoError(t, err)
	assert.Equal(t, "ldap.x.org", cfg.ServerName)
	assert.False(t, cfg.InsecureSkipVerify)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)

	cfg, err = directory.TLSOptions{
		Validate: "never",
		Version:  "1.3",
		Ciphers:  "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256:TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384",
	}.Build("ldap.x.org")
	require.NoError(t, err)
	assert.True(t, cfg.InsecureSkipVerify)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)
	assert.Equal(t, []uint16{
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	}, cfg.CipherSuites)
}

// =============================================================================
// Connection lifecycle
// =============================================================================

func TestConnect_IsIdempotent(t *testing.T) {
	t.Parallel()
	srv := newServer(t)
	c := newClient(t, srv, testConfig())
	ctx := context.Background()

	first, err := c.Connect(ctx)
	require.NoError(t, err)
	second, err := c.Connect(ctx)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, srv.Dials())
	assert.Equal(t, 1, srv.StartTLS(), "StartTLS is on by default")
	assert.Equal(t, 1, srv.Binds())
}

func TestConnect_StartTLSPolicy(t *testing.T) {
	t.Parallel()

	disabled := false
	tests := []struct {
		name         string
		host         string
		startTLS     *bool
		wantStartTLS int
	}{
		{"default upgrades", "ldap://ldap.x.org", nil, 1},
		{"explicitly disabled", "ldap://ldap.x.org", &disabled, 0},
		{"ldaps never upgrades", "ldaps://ldap.x.org:636", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := newServer(t)
			cfg := testConfig()
			cfg.Host = tt.host
			cfg.StartTLS = tt.startTLS
			c := newClient(t, srv, cfg)

			_, err := c.Connect(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantStartTLS, srv.StartTLS())
		})
	}
}

func TestConnect_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(*directorytest.Server, *directory.Config)
	}{
		{
			name: "unreachable host",
			setup: func(s *directorytest.Server, _ *directory.Config) {
				s.DialErr = errors.New("dial tcp: connection refused")
			},
		},
		{
			name: "StartTLS rejected",
			setup: func(s *directorytest.Server, _ *directory.Config) {
				s.StartTLSErr = errors.New("tls: handshake failure")
			},
		},
		{
			name: "service bind rejected",
			setup: func(_ *directorytest.Server, c *directory.Config) {
				c.BindPassword = "wrong"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := newServer(t)
			cfg := testConfig()
			tt.setup(srv, &cfg)
			c := newClient(t, srv, cfg)

			_, err := c.Connect(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, autherr.ErrConnection)
			assert.Zero(t, srv.OpenConns(), "failed connections must be closed")

			_, err = c.FindByMail(context.Background(), "a@x.org")
			assert.ErrorIs(t, err, autherr.ErrConnection)
		})
	}
}

func TestConnect_ReconnectsAfterServerClose(t *testing.T) {
	t.Parallel()
	srv := newServer(t)
	c := newClient(t, srv, testConfig())
	ctx := context.Background()

	_, err := c.FindByMail(ctx, "a@x.org")
	require.NoError(t, err)

	srv.DropConnections()

	_, err = c.FindByMail(ctx, "a@x.org")
	require.NoError(t, err)
	assert.Equal(t, 2, srv.Dials())
}

func TestConnect_CancelledContext(t *testing.T) {
	t.Parallel()
	srv := newServer(t)
	c := newClient(t, srv, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Connect(ctx)
	assert.ErrorIs(t, err, autherr.ErrConnection)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, srv.Dials())
}
