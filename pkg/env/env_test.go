package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	t.Setenv("LDAPAUTH_ENV", "")
	assert.Equal(t, Local, resolve())

	t.Setenv("LDAPAUTH_ENV", Production)
	assert.Equal(t, Production, resolve())
}
