// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/medienhaus/ldapauth/pkg/directory"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Search the directory for one user",
	Long: `Search the directory by mail or uid and print the entry's DN, uid, mail
and name as JSON. Nothing is written to the identity store.`,
	RunE: runLookup,
}

func init() {
	rootCmd.AddCommand(lookupCmd)

	f := lookupCmd.Flags()
	f.String("mail", "", "Mail address to search for")
	f.String("uid", "", "Directory uid to search for")
	lookupCmd.MarkFlagsMutuallyExclusive("mail", "uid")
	lookupCmd.MarkFlagsOneRequired("mail", "uid")
}

func runLookup(cmd *cobra.Command, args []string) error {
	mail, _ := cmd.Flags().GetString("mail")
	uid, _ := cmd.Flags().GetString("uid")

	client, _, err := newDirectoryClient()
	if err != nil {
		return err
	}
	defer client.Close()

	var record directory.Record
	if mail != "" {
		record, err = client.FindByMail(cmd.Context(), mail)
	} else {
		record, err = client.FindByUID(cmd.Context(), uid)
	}
	if err != nil {
		return fmt.Errorf("lookup failed: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(record)
}
