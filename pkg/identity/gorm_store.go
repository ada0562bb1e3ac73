// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DatabaseType defines the supported database backends.
type DatabaseType string

const (
	// DatabaseTypeSQLite uses SQLite (single-node, default).
	DatabaseTypeSQLite DatabaseType = "sqlite"

	// DatabaseTypePostgres uses PostgreSQL.
	DatabaseTypePostgres DatabaseType = "postgres"
)

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the database file, or ":memory:".
	Path string `mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL-specific configuration.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"` // disable, require, verify-ca, verify-full
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		c.Host, c.Port, c.User, c.Password, c.Database)
	if c.SSLMode != "" {
		dsn += fmt.Sprintf(" sslmode=%s", c.SSLMode)
	}
	return dsn
}

// DBConfig selects and configures the SQL backend.
type DBConfig struct {
	Type     DatabaseType   `mapstructure:"type"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// ApplyDefaults fills in missing configuration with default values.
func (c *DBConfig) ApplyDefaults() {
	if c.Type == "" {
		c.Type = DatabaseTypeSQLite
	}
	if c.Type == DatabaseTypeSQLite && c.SQLite.Path == "" {
		configDir := os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			homeDir, _ := os.UserHomeDir()
			configDir = filepath.Join(homeDir, ".config")
		}
		c.SQLite.Path = filepath.Join(configDir, "ldapauth", "identities.db")
	}
	if c.Type == DatabaseTypePostgres {
		if c.Postgres.Port == 0 {
			c.Postgres.Port = 5432
		}
		if c.Postgres.SSLMode == "" {
			c.Postgres.SSLMode = "disable"
		}
	}
}

// Validate checks if the configuration is valid.
func (c *DBConfig) Validate() error {
	switch c.Type {
	case DatabaseTypeSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case DatabaseTypePostgres:
		if c.Postgres.Host == "" {
			return fmt.Errorf("postgres host is required")
		}
		if c.Postgres.Database == "" {
			return fmt.Errorf("postgres database is required")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Type)
	}
	return nil
}

// identityRecord is the table layout of an Identity.
type identityRecord struct {
	ID          string `gorm:"primaryKey;size:255"`
	Email       string `gorm:"uniqueIndex;size:255;not null"`
	DisplayName string `gorm:"size:255"`
	Language    string `gorm:"size:16"`
	Role        string `gorm:"size:64;index"`
	LdapDN      string `gorm:"column:ldap_dn;size:1024"`
	LdapUID     string `gorm:"column:ldap_uid;size:255"`
	LdapMail    string `gorm:"column:ldap_mail;size:255"`
	LdapName    string `gorm:"column:ldap_name;size:255"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (identityRecord) TableName() string {
	return "identities"
}

func toRecord(i *Identity) *identityRecord {
	r := &identityRecord{
		ID:          i.ID,
		Email:       NormalizeEmail(i.Email),
		DisplayName: i.DisplayName,
		Language:    i.Language,
		Role:        i.Role,
		CreatedAt:   i.CreatedAt,
		UpdatedAt:   i.UpdatedAt,
	}
	if i.Directory != nil {
		r.LdapDN = i.Directory.DN
		r.LdapUID = i.Directory.UID
		r.LdapMail = i.Directory.Mail
		r.LdapName = i.Directory.Name
	}
	return r
}

func (r *identityRecord) toIdentity() *Identity {
	i := &Identity{
		ID:          r.ID,
		Email:       r.Email,
		DisplayName: r.DisplayName,
		Language:    r.Language,
		Role:        r.Role,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.LdapDN != "" || r.LdapUID != "" || r.LdapMail != "" || r.LdapName != "" {
		i.Directory = &DirectoryAttributes{
			DN:   r.LdapDN,
			UID:  r.LdapUID,
			Mail: r.LdapMail,
			Name: r.LdapName,
		}
	}
	return i
}

// GORMStore implements Store on SQLite or PostgreSQL.
type GORMStore struct {
	db     *gorm.DB
	config *DBConfig
}

// NewGORMStore opens the database and migrates the identities table.
func NewGORMStore(config *DBConfig) (*GORMStore, error) {
	if config == nil {
		config = &DBConfig{}
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	var dialector gorm.Dialector
	switch config.Type {
	case DatabaseTypeSQLite:
		path := config.SQLite.Path
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
			path += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		}
		dialector = sqlite.Open(path)
	case DatabaseTypePostgres:
		dialector = postgres.Open(config.Postgres.DSN())
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if config.Type == DatabaseTypeSQLite {
		// One connection keeps ":memory:" databases shared and serializes writers.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying database: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&identityRecord{}); err != nil {
		return nil, fmt.Errorf("failed to run database migration: %w", err)
	}

	return &GORMStore{db: db, config: config}, nil
}

func (s *GORMStore) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	var r identityRecord
	err := s.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&r).Error
	if err != nil {
		return nil, convertNotFound(err)
	}
	return r.toIdentity(), nil
}

func (s *GORMStore) Create(ctx context.Context, identity *Identity) error {
	r := toRecord(identity)
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&identityRecord{}).
			Where("email = ? OR id = ?", r.Email, r.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrIdentityExists
		}
		if err := tx.Create(r).Error; err != nil {
			return err
		}
		identity.CreatedAt, identity.UpdatedAt = r.CreatedAt, r.UpdatedAt
		return nil
	})
}

func (s *GORMStore) FindByID(ctx context.Context, id string) (*Identity, error) {
	var r identityRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&r).Error
	if err != nil {
		return nil, convertNotFound(err)
	}
	return r.toIdentity(), nil
}

func (s *GORMStore) Update(ctx context.Context, id string, identity *Identity) error {
	r := toRecord(identity)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing identityRecord
		if err := tx.Where("id = ?", id).First(&existing).Error; err != nil {
			return convertNotFound(err)
		}

		var count int64
		if err := tx.Model(&identityRecord{}).
			Where("(email = ? OR id = ?) AND id <> ?", r.Email, r.ID, id).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrIdentityExists
		}

		r.CreatedAt = existing.CreatedAt
		r.UpdatedAt = time.Now().UTC()
		if existing.ID != r.ID {
			if err := tx.Delete(&existing).Error; err != nil {
				return err
			}
			if err := tx.Create(r).Error; err != nil {
				return err
			}
		} else if err := tx.Save(r).Error; err != nil {
			return err
		}
		identity.CreatedAt, identity.UpdatedAt = r.CreatedAt, r.UpdatedAt
		return nil
	})
}

func (s *GORMStore) List(ctx context.Context) ([]*Identity, error) {
	var records []identityRecord
	if err := s.db.WithContext(ctx).Order("id").Find(&records).Error; err != nil {
		return nil, err
	}
	identities := make([]*Identity, 0, len(records))
	for i := range records {
		identities = append(identities, records[i].toIdentity())
	}
	return identities, nil
}

// Close closes the underlying database.
func (s *GORMStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func convertNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrIdentityNotFound
	}
	return err
}
