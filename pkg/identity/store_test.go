// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func directoryIdentity(uid, email, name string) *Identity {
	return &Identity{
		ID:          IDForUID(uid),
		Email:       email,
		DisplayName: name,
		Language:    DefaultLanguage,
		Role:        RoleDirectory,
		Directory: &DirectoryAttributes{
			DN:   "cn=" + uid + ",dc=x,dc=org",
			UID:  uid,
			Mail: email,
			Name: name,
		},
	}
}

func newGORMStore(t *testing.T) *GORMStore {
	t.Helper()
	s, err := NewGORMStore(&DBConfig{
		Type:   DatabaseTypeSQLite,
		SQLite: SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// storeFactories runs the same behaviour checks against every Store.
func storeFactories() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Store { return newGORMStore(t) },
	}
}

func TestStore_CreateAndFind(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)

			id := directoryIdentity("jdoe", "a@x.org", "Jane Doe")
			require.NoError(t, s.Create(ctx, id))
			assert.False(t, id.CreatedAt.IsZero())

			got, err := s.FindByEmail(ctx, "A@X.org")
			require.NoError(t, err)
			assert.Equal(t, "LDAP_jdoe", got.ID)
			assert.Equal(t, "Jane Doe", got.DisplayName)
			assert.Equal(t, RoleDirectory, got.Role)
			require.NotNil(t, got.Directory)
			assert.Equal(t, "cn=jdoe,dc=x,dc=org", got.Directory.DN)
		})
	}
}

func TestStore_FindMissing(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			_, err := factory(t).FindByEmail(context.Background(), "nobody@x.org")
			assert.ErrorIs(t, err, ErrIdentityNotFound)
		})
	}
}

func TestStore_CreateDuplicate(t *testing.T) {
	tests := []struct {
		name   string
		second *Identity
	}{
		{"same email", directoryIdentity("other", "a@x.org", "Other")},
		{"same email different case", directoryIdentity("other", "A@X.ORG", "Other")},
		{"same id", directoryIdentity("jdoe", "b@x.org", "Other")},
	}

	for storeName, factory := range storeFactories() {
		for _, tt := range tests {
			t.Run(storeName+"/"+tt.name, func(t *testing.T) {
				ctx := context.Background()
				s := factory(t)
				require.NoError(t, s.Create(ctx, directoryIdentity("jdoe", "a@x.org", "Jane Doe")))
				assert.ErrorIs(t, s.Create(ctx, tt.second), ErrIdentityExists)
			})
		}
	}
}

func TestStore_Update(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)

			local := &Identity{ID: "local-1", Email: "a@x.org", DisplayName: "Jane"}
			require.NoError(t, s.Create(ctx, local))

			promoted := directoryIdentity("jdoe", "a@x.org", "Jane Doe")
			promoted.DisplayName = "Jane"
			require.NoError(t, s.Update(ctx, "local-1", promoted))

			got, err := s.FindByEmail(ctx, "a@x.org")
			require.NoError(t, err)
			assert.Equal(t, "LDAP_jdoe", got.ID)
			assert.Equal(t, "Jane", got.DisplayName)
			assert.True(t, got.IsDirectoryManaged())

			all, err := s.List(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestStore_UpdateMissing(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			err := factory(t).Update(context.Background(), "LDAP_jdoe", directoryIdentity("jdoe", "a@x.org", "Jane Doe"))
			assert.ErrorIs(t, err, ErrIdentityNotFound)
		})
	}
}

func TestStore_UpdateIDCollision(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)
			require.NoError(t, s.Create(ctx, directoryIdentity("jdoe", "a@x.org", "Jane Doe")))
			require.NoError(t, s.Create(ctx, &Identity{ID: "local-2", Email: "b@x.org"}))

			err := s.Update(ctx, "local-2", directoryIdentity("jdoe", "b@x.org", "Bob"))
			assert.ErrorIs(t, err, ErrIdentityExists)

			got, err := s.FindByID(ctx, "local-2")
			require.NoError(t, err)
			assert.Equal(t, "b@x.org", got.Email)
		})
	}
}

func TestStore_UpdateEmailCollision(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)
			require.NoError(t, s.Create(ctx, directoryIdentity("jdoe", "a@x.org", "Jane Doe")))
			require.NoError(t, s.Create(ctx, &Identity{ID: "local-2", Email: "b@x.org"}))

			err := s.Update(ctx, "LDAP_jdoe", directoryIdentity("jdoe", "B@x.org", "Jane Doe"))
			assert.ErrorIs(t, err, ErrIdentityExists)

			got, err := s.FindByID(ctx, "LDAP_jdoe")
			require.NoError(t, err)
			assert.Equal(t, "a@x.org", got.Email)
		})
	}
}

func TestStore_UpdateChangesEmail(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)
			created := directoryIdentity("jdoe", "a@x.org", "Jane Doe")
			require.NoError(t, s.Create(ctx, created))

			moved := directoryIdentity("jdoe", "jane.new@x.org", "Jane Doe")
			require.NoError(t, s.Update(ctx, "LDAP_jdoe", moved))
			assert.Equal(t, created.CreatedAt.Unix(), moved.CreatedAt.Unix())

			_, err := s.FindByEmail(ctx, "a@x.org")
			assert.ErrorIs(t, err, ErrIdentityNotFound)

			got, err := s.FindByEmail(ctx, "jane.new@x.org")
			require.NoError(t, err)
			assert.Equal(t, "LDAP_jdoe", got.ID)

			all, err := s.List(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestStore_FindByID(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)
			require.NoError(t, s.Create(ctx, directoryIdentity("jdoe", "a@x.org", "Jane Doe")))

			got, err := s.FindByID(ctx, "LDAP_jdoe")
			require.NoError(t, err)
			assert.Equal(t, "a@x.org", got.Email)
			assert.Equal(t, "jdoe", got.Directory.UID)

			_, err = s.FindByID(ctx, "LDAP_nobody")
			assert.ErrorIs(t, err, ErrIdentityNotFound)
		})
	}
}

func TestStore_List(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)
			require.NoError(t, s.Create(ctx, directoryIdentity("zed", "z@x.org", "Zed")))
			require.NoError(t, s.Create(ctx, directoryIdentity("amy", "amy@x.org", "Amy")))

			all, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "LDAP_amy", all[0].ID)
			assert.Equal(t, "LDAP_zed", all[1].ID)
		})
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id := directoryIdentity("jdoe", "a@x.org", "Jane Doe")
	require.NoError(t, s.Create(ctx, id))

	id.DisplayName = "mutated"
	got, err := s.FindByEmail(ctx, "a@x.org")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", got.DisplayName)

	got.Directory.UID = "mutated"
	again, err := s.FindByEmail(ctx, "a@x.org")
	require.NoError(t, err)
	assert.Equal(t, "jdoe", again.Directory.UID)
}

func TestDBConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  DBConfig
		wantErr bool
	}{
		{"sqlite default path", DBConfig{}, false},
		{"postgres without host", DBConfig{Type: DatabaseTypePostgres, Postgres: PostgresConfig{Database: "ldapauth"}}, true},
		{"postgres without database", DBConfig{Type: DatabaseTypePostgres, Postgres: PostgresConfig{Host: "db"}}, true},
		{"postgres ok", DBConfig{Type: DatabaseTypePostgres, Postgres: PostgresConfig{Host: "db", Database: "ldapauth"}}, false},
		{"unknown type", DBConfig{Type: "mongo"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.config
			c.ApplyDefaults()
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPostgresConfig_DSN(t *testing.T) {
	c := DBConfig{Type: DatabaseTypePostgres, Postgres: PostgresConfig{
		Host: "db", Database: "ldapauth", User: "u", Password: "p",
	}}
	c.ApplyDefaults()
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=ldapauth sslmode=disable", c.Postgres.DSN())
}
