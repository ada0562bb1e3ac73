// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/medienhaus/ldapauth/pkg/autherr"
)

// DefaultTimeout bounds connect and per-request time when none is configured.
const DefaultTimeout = 10 * time.Second

// Config holds everything needed to reach and query the directory.
// It is captured once by NewClient and never re-read.
type Config struct {
	// Server settings
	Host         string `mapstructure:"host" validate:"required"` // ldap://host:389 or ldaps://host:636
	BindDN       string `mapstructure:"bind_dn"`                  // cn=admin,dc=example,dc=com
	BindPassword string `mapstructure:"bind_pw"`
	BaseDN       string `mapstructure:"base_dn" validate:"required"` // dc=example,dc=com

	// StartTLS upgrades ldap:// connections before any credentials are sent.
	// nil means enabled.
	StartTLS *bool `mapstructure:"start_tls"`

	// Debug turns on protocol-level packet tracing.
	Debug bool `mapstructure:"debug"`

	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`

	TLS        TLSOptions         `mapstructure:"tls_options"`
	Attributes AttributeOverrides `mapstructure:"attributes"`
}

// TLSOptions mirrors the usual OpenLDAP client knobs.
type TLSOptions struct {
	// Validate is the certificate check mode: never, allow, try, demand (default) or hard.
	Validate string `mapstructure:"validate" validate:"omitempty,oneof=never allow try demand hard"`
	// Version is the minimum protocol version: 1.0, 1.1, 1.2 or 1.3.
	Version string `mapstructure:"version" validate:"omitempty,oneof=1.0 1.1 1.2 1.3"`
	// Ciphers is a comma or colon separated list of Go cipher suite names.
	Ciphers string `mapstructure:"ciphers"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	c.Host = strings.TrimSpace(c.Host)
	c.BaseDN = strings.TrimSpace(c.BaseDN)
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
}

// Validate reports the first missing or malformed setting as ErrConfiguration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			if fe.Tag() == "required" {
				return fmt.Errorf("%w: %s is required", autherr.ErrConfiguration, fe.Field())
			}
			return fmt.Errorf("%w: %s has invalid value %q", autherr.ErrConfiguration, fe.Field(), fe.Value())
		}
		return fmt.Errorf("%w: %w", autherr.ErrConfiguration, err)
	}

	u, err := url.Parse(c.Host)
	if err != nil {
		return fmt.Errorf("%w: host: %w", autherr.ErrConfiguration, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ldap", "ldaps", "ldapi":
	default:
		return fmt.Errorf("%w: host should look like ldap://subdomain.domain.tld:port, got %q", autherr.ErrConfiguration, c.Host)
	}
	return nil
}

// UseStartTLS reports whether a plaintext connection must be upgraded.
// ldaps:// is already encrypted and never upgraded.
func (c *Config) UseStartTLS() bool {
	if strings.HasPrefix(strings.ToLower(c.Host), "ldaps://") {
		return false
	}
	return c.StartTLS == nil || *c.StartTLS
}

func (c *Config) serverName() string {
	u, err := url.Parse(c.Host)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

var tlsVersions = map[string]uint16{
	"1.0": tls.VersionTLS10,
	"1.1": tls.VersionTLS11,
	"1.2": tls.VersionTLS12,
	"1.3": tls.VersionTLS13,
}

// Build turns the options into a tls.Config for serverName.
func (o TLSOptions) Build(serverName string) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
	}

	switch strings.ToLower(o.Validate) {
	case "never", "allow":
		cfg.InsecureSkipVerify = true
	case "", "try", "demand", "hard":
	default:
		return nil, fmt.Errorf("%w: unknown tls_options.validate %q", autherr.ErrConfiguration, o.Validate)
	}

	if o.Version != "" {
		v, ok := tlsVersions[o.Version]
		if !ok {
			return nil, fmt.Errorf("%w: unknown tls_options.version %q", autherr.ErrConfiguration, o.Version)
		}
		cfg.MinVersion = v
	}

	if strings.TrimSpace(o.Ciphers) != "" {
		suites, err := parseCipherSuites(o.Ciphers)
		if err != nil {
			return nil, err
		}
		cfg.CipherSuites = suites
	}

	return cfg, nil
}

func parseCipherSuites(list string) ([]uint16, error) {
	known := make(map[string]uint16)
	for _, s := range tls.CipherSuites() {
		known[s.Name] = s.ID
	}
	for _, s := range tls.InsecureCipherSuites() {
		known[s.Name] = s.ID
	}

	names := strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || r == ':' || r == ' '
	})
	ids := make([]uint16, 0, len(names))
	for _, name := range names {
		id, ok := known[strings.ToUpper(name)]
		if !ok {
			return nil, fmt.Errorf("%w: unknown cipher suite %q", autherr.ErrConfiguration, name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
