// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/medienhaus/ldapauth/pkg/auth"
	"github.com/medienhaus/ldapauth/pkg/autherr"
	"github.com/medienhaus/ldapauth/pkg/identity"
)

// PasswordEnv is read before falling back to stdin.
const PasswordEnv = "LDAPAUTH_PASSWORD"

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check a user's password against the directory",
	Long: `Resolve the identity for --mail and verify a password for it, exactly as
a login would. The password is taken from $LDAPAUTH_PASSWORD or the first
line of stdin. Identities are kept in memory only.`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().String("mail", "", "Mail address of the user")
	verifyCmd.MarkFlagRequired("mail")
}

func runVerify(cmd *cobra.Command, args []string) error {
	mail, _ := cmd.Flags().GetString("mail")

	password, err := readPassword(cmd)
	if err != nil {
		return err
	}

	client, _, err := newDirectoryClient()
	if err != nil {
		return err
	}
	defer client.Close()

	a := auth.NewAuthenticator(client, identity.NewMemoryStore(),
		auth.WithElevation(getLDAPBool("is_admin")))

	id, err := a.ResolveIdentity(cmd.Context(), mail)
	if err != nil {
		return describe(err)
	}
	if err := a.VerifyPassword(cmd.Context(), id, password); err != nil {
		return describe(err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "ok: %s (%s) admin=%t\n", id.ID, id.Directory.DN, a.IsElevated(id))
	return nil
}

func readPassword(cmd *cobra.Command) (string, error) {
	if p, ok := os.LookupEnv(PasswordEnv); ok {
		return p, nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// describe prefixes err with its machine-readable key.
func describe(err error) error {
	if code := autherr.CodeOf(err); code != autherr.ErrNone {
		return fmt.Errorf("%s: %s (%w)", code.Key(), code.Description(), err)
	}
	return err
}
