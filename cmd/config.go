// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/medienhaus/ldapauth/pkg/directory"
	"github.com/medienhaus/ldapauth/pkg/identity"
	"github.com/medienhaus/ldapauth/pkg/logger"
	"github.com/medienhaus/ldapauth/pkg/throttle"
)

// addLDAPFlags registers the flat ldap_* flags. Each one overrides the
// matching key of the [ldap] config section.
func addLDAPFlags(f *pflag.FlagSet) {
	f.String("ldap_host", "", "LDAP server URL (ldap://host:389 or ldaps://host:636)")
	f.String("ldap_bind_dn", "", "Service account DN (cn=admin,dc=example,dc=com)")
	f.String("ldap_bind_pw", "", "Service account password")
	f.String("ldap_base_dn", "", "Base DN for user searches (dc=example,dc=com)")
	f.Bool("ldap_start_tls", true, "Upgrade ldap:// connections with StartTLS")
	f.Bool("ldap_debug", false, "Trace LDAP protocol packets")
	f.Duration("ldap_timeout", directory.DefaultTimeout, "LDAP connect and request timeout")
	f.Bool("ldap_is_admin", false, "Grant elevated rights to every directory user")
}

// getLDAPString returns config value from CLI flag or env (ldap_key) or the
// config file ([ldap] key).
func getLDAPString(key string) string {
	if v := viper.GetString("ldap_" + key); v != "" {
		return v
	}
	return viper.GetString("ldap." + key)
}

func getLDAPBool(key string) bool {
	if viper.IsSet("ldap_" + key) {
		return viper.GetBool("ldap_" + key)
	}
	return viper.GetBool("ldap." + key)
}

// loadDirectoryConfig builds the directory configuration from the [ldap]
// section, with flat ldap_* flags and environment variables on top.
func loadDirectoryConfig() (directory.Config, error) {
	var cfg directory.Config
	if viper.IsSet("ldap") {
		if err := viper.UnmarshalKey("ldap", &cfg); err != nil {
			return cfg, fmt.Errorf("failed to unmarshal ldap config: %w", err)
		}
	}

	for key, dst := range map[string]*string{
		"host":    &cfg.Host,
		"bind_dn": &cfg.BindDN,
		"bind_pw": &cfg.BindPassword,
		"base_dn": &cfg.BaseDN,
	} {
		if v := getLDAPString(key); v != "" {
			*dst = v
		}
	}
	if viper.IsSet("ldap_start_tls") {
		startTLS := viper.GetBool("ldap_start_tls")
		cfg.StartTLS = &startTLS
	}
	if viper.IsSet("ldap_debug") {
		cfg.Debug = viper.GetBool("ldap_debug")
	}
	if viper.IsSet("ldap_timeout") {
		cfg.Timeout = viper.GetDuration("ldap_timeout")
	}

	return cfg, nil
}

// directoryOptions are appended to every client the commands build.
var directoryOptions []directory.Option

// newDirectoryClient builds a client from configuration. No connection is
// made until the first search.
func newDirectoryClient() (*directory.Client, directory.Config, error) {
	cfg, err := loadDirectoryConfig()
	if err != nil {
		return nil, cfg, err
	}
	if cfg.Debug {
		logger.SetLevel(zerolog.DebugLevel)
	}
	client, err := directory.NewClient(cfg, directoryOptions...)
	if err != nil {
		return nil, cfg, err
	}
	return client, cfg, nil
}

// StoreConfig selects where identities are kept.
type StoreConfig struct {
	Type     string                  `mapstructure:"type"` // memory, sqlite or postgres
	SQLite   identity.SQLiteConfig   `mapstructure:"sqlite"`
	Postgres identity.PostgresConfig `mapstructure:"postgres"`
}

// identityStore is a Store that may hold resources.
type identityStore interface {
	identity.Store
	Close() error
}

type memoryStore struct {
	*identity.MemoryStore
}

func (memoryStore) Close() error { return nil }

func openIdentityStore() (identityStore, error) {
	var cfg StoreConfig
	if viper.IsSet("store") {
		if err := viper.UnmarshalKey("store", &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal store config: %w", err)
		}
	}
	if t := viper.GetString("store_type"); t != "" {
		cfg.Type = t
	}

	switch cfg.Type {
	case "", "memory":
		logger.Info().Msg("using in-memory identity store")
		return memoryStore{identity.NewMemoryStore()}, nil
	case string(identity.DatabaseTypeSQLite), string(identity.DatabaseTypePostgres):
		store, err := identity.NewGORMStore(&identity.DBConfig{
			Type:     identity.DatabaseType(cfg.Type),
			SQLite:   cfg.SQLite,
			Postgres: cfg.Postgres,
		})
		if err != nil {
			return nil, err
		}
		logger.Info().Str("type", cfg.Type).Msg("using database identity store")
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}

func loadThrottleConfig() (throttle.Config, error) {
	cfg := throttle.DefaultConfig()
	if viper.IsSet("throttle") {
		if err := viper.UnmarshalKey("throttle", &cfg); err != nil {
			return cfg, fmt.Errorf("failed to unmarshal throttle config: %w", err)
		}
	}
	if viper.IsSet("throttle_enabled") {
		cfg.Enabled = viper.GetBool("throttle_enabled")
	}
	if addr := viper.GetString("throttle_redis_addr"); addr != "" {
		cfg.Redis.Addr = addr
	}
	return cfg, cfg.Validate()
}

const (
	// shutdownTimeout bounds graceful shutdown of the HTTP servers.
	shutdownTimeout = 10 * time.Second
	// connTimeout is the per-read and per-write deadline on accepted connections.
	connTimeout = 60 * time.Second
)
