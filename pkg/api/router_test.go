package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medienhaus/ldapauth/pkg/auth"
	"github.com/medienhaus/ldapauth/pkg/directory"
	"github.com/medienhaus/ldapauth/pkg/directory/directorytest"
	"github.com/medienhaus/ldapauth/pkg/identity"
)

const janeDN = "cn=jdoe,dc=x,dc=org"

func newTestRouter(t *testing.T, opts ...auth.Option) (http.Handler, *identity.MemoryStore, *directorytest.Server) {
	t.Helper()
	srv := directorytest.NewServer()
	srv.SetServiceAccount("cn=admin,dc=x,dc=org", "service-secret")
	srv.AddEntry(janeDN, map[string][]string{
		"uid":  {"jdoe"},
		"mail": {"a@x.org"},
		"cn":   {"Jane Doe"},
	}, "longenough1")

	dir, err := directory.NewClient(directory.Config{
		Host:         "ldap://ldap.x.org",
		BindDN:       "cn=admin,dc=x,dc=org",
		BindPassword: "service-secret",
		BaseDN:       "dc=x,dc=org",
	}, directory.WithDialer(srv.Dialer()))
	require.NoError(t, err)
	t.Cleanup(func() { dir.Close() })

	store := identity.NewMemoryStore()
	return NewRouter(auth.NewAuthenticator(dir, store, opts...), store), store, srv
}

func login(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLogin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantKey    string
	}{
		{"verified", `{"email":"a@x.org","password":"longenough1"}`, http.StatusOK, ""},
		{"wrong password", `{"email":"a@x.org","password":"wrongpassword"}`, http.StatusUnauthorized, "user.password.notSame"},
		{"missing password", `{"email":"a@x.org"}`, http.StatusForbidden, "user.password.missing"},
		{"short password", `{"email":"a@x.org","password":"short1"}`, http.StatusBadRequest, "user.password.invalid"},
		{"unknown user", `{"email":"nobody@x.org","password":"longenough1"}`, http.StatusNotFound, "user.notFound"},
		{"malformed body", `{`, http.StatusBadRequest, "request.invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, _, _ := newTestRouter(t)

			rec := login(t, h, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			if tt.wantKey == "" {
				var resp LoginResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, "LDAP_jdoe", resp.Identity.ID)
				assert.Equal(t, "Jane Doe", resp.Identity.DisplayName)
				assert.False(t, resp.Admin)
				return
			}
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantKey, resp.Key)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestLogin_Elevated(t *testing.T) {
	t.Parallel()
	h, _, _ := newTestRouter(t, auth.WithElevation(true))

	rec := login(t, h, `{"email":"a@x.org","password":"longenough1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Admin)
}

func TestLogin_LocalAccount(t *testing.T) {
	t.Parallel()
	h, store, srv := newTestRouter(t)
	require.NoError(t, store.Create(context.Background(), &identity.Identity{ID: "local-1", Email: "a@x.org", Role: "Admin"}))

	rec := login(t, h, `{"email":"a@x.org","password":"longenough1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "user.ldap.unmanaged")
	assert.Zero(t, srv.NetworkCalls())
}

func TestLogin_DirectoryDown(t *testing.T) {
	t.Parallel()
	h, store, srv := newTestRouter(t)
	srv.DialErr = assert.AnError

	rec := login(t, h, `{"email":"a@x.org","password":"longenough1"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "ldap.connection")

	all, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAttributes(t *testing.T) {
	t.Parallel()
	h, _, srv := newTestRouter(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/a@x.org/ldap", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "identity not resolved yet")

	require.Equal(t, http.StatusOK, login(t, h, `{"email":"a@x.org","password":"longenough1"}`).Code)
	require.NoError(t, srv.SetAttribute(janeDN, "cn", "Jane Q. Doe"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/a@x.org/ldap", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got directory.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, directory.Record{DN: janeDN, UID: "jdoe", Mail: "a@x.org", Name: "Jane Q. Doe"}, got)
}

func TestRequestID(t *testing.T) {
	t.Parallel()
	h, _, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"nobody@x.org","password":"longenough1"}`))
	req.Header.Set(RequestIDHeader, "abc-456")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "abc-456", resp.RequestID)
}
