// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"errors"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/medienhaus/ldapauth/pkg/logger"
)

var (
	ConfigurationFileDirectory string
)

// LoadConfiguration merges configFileName.{toml,yaml,json,...} from the
// usual locations into viper. Environment variables override file values,
// with dots in keys replaced by underscores.
func LoadConfiguration(configFileName string, required bool) bool {
	viper.SetConfigName(configFileName)
	viper.AddConfigPath(ResolvePath(ConfigurationFileDirectory))
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.ldapauth")
	viper.AddConfigPath("/usr/local/etc/ldapauth/")
	viper.AddConfigPath("/etc/ldapauth/")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			if required {
				logger.Fatal().Msgf("Config file not found: %s", configFileName)
			}
			logger.Info().Msgf("Config file not found: %s", configFileName)
			return false
		}

		if required {
			logger.Fatal().Err(err).Msgf("Failed to load required config file: %s", configFileName)
		}
		logger.Warn().Err(err).Msgf("Failed to load config file: %s", configFileName)
		return false
	}
	logger.Info().Msgf("Loaded config file: %s", viper.ConfigFileUsed())

	return true
}

// ResolvePath expands a leading ~ and environment variables.
func ResolvePath(path string) string {
	if !strings.Contains(path, "~") {
		return path
	}

	if path == "~" {
		if usr, err := user.Current(); err == nil {
			path = usr.HomeDir
		}
	} else if strings.HasPrefix(path, "~/") {
		if usr, err := user.Current(); err == nil {
			path = filepath.Join(usr.HomeDir, path[2:])
		}
	}

	path = os.ExpandEnv(path)
	return path
}
