// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

// Package directorytest provides an in-process stand-in for an LDAP server.
//
// Server hands out connections through Dialer and counts every dial, bind,
// StartTLS and search so tests can assert that an operation never reached
// the network. Searches only accept single equality filters such as
// (mail=a@x.org) and require the connection to be bound as the service
// account.
package directorytest

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/medienhaus/ldapauth/pkg/directory"
)

type entry struct {
	dn       string
	attrs    map[string][]string
	password string
}

// Server is a fake directory. The zero value is not usable; call NewServer.
type Server struct {
	mu       sync.Mutex
	bindDN   string
	bindPass string
	entries  []*entry
	conns    []*Conn

	// Errors injected into the next operations of the given kind.
	DialErr     error
	StartTLSErr error
	SearchErr   error

	dials    atomic.Int64
	binds    atomic.Int64
	searches atomic.Int64
	startTLS atomic.Int64
}

// NewServer returns an empty directory whose service account is
// cn=admin,dc=example,dc=org / admin.
func NewServer() *Server {
	return &Server{
		bindDN:   "cn=admin,dc=example,dc=org",
		bindPass: "admin",
	}
}

// ServiceAccount returns the DN and password the server accepts for searches.
func (s *Server) ServiceAccount() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bindDN, s.bindPass
}

// SetServiceAccount changes the service credentials.
func (s *Server) SetServiceAccount(dn, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindDN = dn
	s.bindPass = password
}

// AddEntry stores an entry. Attribute names keep their case, as a real server
// returns them.
func (s *Server) AddEntry(dn string, attrs map[string][]string, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make(map[string][]string, len(attrs))
	for k, v := range attrs {
		copied[k] = append([]string(nil), v...)
	}
	s.entries = append(s.entries, &entry{dn: dn, attrs: copied, password: password})
}

// SetAttribute replaces the values of attr on the entry dn.
func (s *Server) SetAttribute(dn, attr string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if strings.EqualFold(e.dn, dn) {
			for name := range e.attrs {
				if strings.EqualFold(name, attr) {
					delete(e.attrs, name)
				}
			}
			e.attrs[attr] = append([]string(nil), values...)
			return nil
		}
	}
	return fmt.Errorf("no entry %q", dn)
}

// RemoveEntry deletes the entry dn.
func (s *Server) RemoveEntry(dn string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if strings.EqualFold(e.dn, dn) {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return
		}
	}
}

// Dialer returns a directory.Dialer connected to this server.
func (s *Server) Dialer() directory.Dialer {
	return directory.DialerFunc(func(ctx context.Context, url string) (directory.Conn, error) {
		s.dials.Add(1)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.DialErr != nil {
			return nil, s.DialErr
		}
		c := &Conn{server: s}
		s.conns = append(s.conns, c)
		return c, nil
	})
}

// DropConnections closes every open connection, as a server restart would.
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := append([]*Conn(nil), s.conns...)
	s.mu.Unlock()
	for _, c := range conns {
		c.closed.Store(true)
	}
}

// OpenConns counts connections that were dialed and not yet closed.
func (s *Server) OpenConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.conns {
		if !c.closed.Load() {
			n++
		}
	}
	return n
}

func (s *Server) Dials() int    { return int(s.dials.Load()) }
func (s *Server) Binds() int    { return int(s.binds.Load()) }
func (s *Server) Searches() int { return int(s.searches.Load()) }
func (s *Server) StartTLS() int { return int(s.startTLS.Load()) }

// NetworkCalls is the total of every counted operation.
func (s *Server) NetworkCalls() int {
	return s.Dials() + s.Binds() + s.Searches() + s.StartTLS()
}

// Conn is a connection handed out by Server.
type Conn struct {
	server  *Server
	boundDN string
	closed  atomic.Bool
	timeout time.Duration
	tls     *tls.Config
}

var _ directory.Conn = (*Conn)(nil)

func (c *Conn) Bind(username, password string) error {
	c.server.binds.Add(1)
	if c.closed.Load() {
		return ldap.NewError(ldap.ErrorNetwork, errors.New("connection closed"))
	}

	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	if password != "" && strings.EqualFold(username, s.bindDN) && password == s.bindPass {
		c.boundDN = s.bindDN
		return nil
	}
	for _, e := range s.entries {
		if password != "" && strings.EqualFold(e.dn, username) && e.password == password {
			c.boundDN = e.dn
			return nil
		}
	}
	c.boundDN = ""
	return ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("invalid credentials"))
}

func (c *Conn) StartTLS(config *tls.Config) error {
	c.server.startTLS.Add(1)
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if c.server.StartTLSErr != nil {
		return c.server.StartTLSErr
	}
	c.tls = config
	return nil
}

// TLSConfig returns the configuration passed to StartTLS, if any.
func (c *Conn) TLSConfig() *tls.Config {
	return c.tls
}

func (c *Conn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	c.server.searches.Add(1)
	if c.closed.Load() {
		return nil, ldap.NewError(ldap.ErrorNetwork, errors.New("connection closed"))
	}

	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SearchErr != nil {
		return nil, s.SearchErr
	}
	if !strings.EqualFold(c.boundDN, s.bindDN) {
		return nil, ldap.NewError(ldap.LDAPResultInsufficientAccessRights, errors.New("search requires the service account"))
	}

	attr, value, err := parseEquality(req.Filter)
	if err != nil {
		return nil, ldap.NewError(ldap.ErrorFilterCompile, err)
	}

	result := &ldap.SearchResult{}
	for _, e := range s.entries {
		if !strings.HasSuffix(strings.ToLower(e.dn), strings.ToLower(req.BaseDN)) {
			continue
		}
		if !matches(e, attr, value) {
			continue
		}
		result.Entries = append(result.Entries, project(e, req.Attributes))
	}
	return result, nil
}

func (c *Conn) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

func (c *Conn) IsClosing() bool {
	return c.closed.Load()
}

func (c *Conn) Close() error {
	c.closed.Store(true)
	return nil
}

func matches(e *entry, attr, value string) bool {
	for name, values := range e.attrs {
		if !strings.EqualFold(name, attr) {
			continue
		}
		for _, v := range values {
			if strings.EqualFold(v, value) {
				return true
			}
		}
	}
	return false
}

func project(e *entry, attributes []string) *ldap.Entry {
	out := make(map[string][]string)
	for name, values := range e.attrs {
		if len(attributes) == 0 {
			out[name] = values
			continue
		}
		for _, want := range attributes {
			if strings.EqualFold(name, want) {
				out[name] = values
				break
			}
		}
	}
	return ldap.NewEntry(e.dn, out)
}

// parseEquality accepts "(attr=value)" with RFC 4515 hex escapes in value.
func parseEquality(filter string) (string, string, error) {
	if len(filter) < 4 || filter[0] != '(' || filter[len(filter)-1] != ')' {
		return "", "", fmt.Errorf("unsupported filter %q", filter)
	}
	body := filter[1 : len(filter)-1]
	attr, raw, ok := strings.Cut(body, "=")
	if !ok || attr == "" || strings.ContainsAny(attr, "()&|!*") {
		return "", "", fmt.Errorf("unsupported filter %q", filter)
	}

	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' {
			b.WriteByte(raw[i])
			continue
		}
		if i+2 >= len(raw) {
			return "", "", fmt.Errorf("truncated escape in %q", filter)
		}
		n, err := strconv.ParseUint(raw[i+1:i+3], 16, 8)
		if err != nil {
			return "", "", fmt.Errorf("bad escape in %q", filter)
		}
		b.WriteByte(byte(n))
		i += 2
	}
	return attr, b.String(), nil
}
