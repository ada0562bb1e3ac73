// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package env

import (
	"sync"

	"github.com/spf13/viper"
)

const (
	Local      = "local"
	Production = "production"
	Testing    = "testing"
)

var (
	env  string
	once sync.Once
)

// Current returns the deployment environment from LDAPAUTH_ENV, defaulting
// to Local. It is read once per process.
func Current() string {
	once.Do(func() {
		env = resolve()
	})
	return env
}

func IsLocal() bool {
	return Current() == Local
}

func IsProduction() bool {
	return Current() == Production
}

func IsTesting() bool {
	return Current() == Testing
}

func resolve() string {
	v := viper.New()
	v.SetEnvPrefix("ldapauth")
	v.AutomaticEnv()
	if e := v.GetString("env"); e != "" {
		return e
	}
	return Local
}
