// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/medienhaus/ldapauth/pkg/logger"
	"github.com/medienhaus/ldapauth/pkg/utils"
)

var rootCmd = &cobra.Command{
	Use:   "ldapauth",
	Short: "ldapauth - LDAP login and identity sync",
	Long: `ldapauth verifies passwords against an LDAP directory and keeps a local
identity record in step with each directory entry that signs in.`,
	PersistentPreRun: initialize,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&utils.ConfigurationFileDirectory, "config_dir", ".", "Directory for configuration files")
	rootCmd.PersistentFlags().String("log_level", "info", "Log level (debug, info, warn, error, fatal)")

	// LDAP flags are shared by every subcommand.
	addLDAPFlags(rootCmd.PersistentFlags())

	viper.BindPFlags(rootCmd.PersistentFlags())
}

// initialize loads ldapauth.{toml,yaml,json} and applies the log level.
func initialize(cmd *cobra.Command, args []string) {
	utils.LoadConfiguration("ldapauth", false)

	if level, err := zerolog.ParseLevel(NewFlagLoader(cmd).String("log_level")); err == nil {
		logger.SetLevel(level)
	}
}

// Execute runs the command line. Cobra has already printed the error.
func Execute() error {
	return rootCmd.Execute()
}
