// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"strings"
	"time"
)

const (
	// RoleDirectory marks identities whose source of truth is the directory.
	RoleDirectory = "LdapUser"

	// IDPrefix is prepended to the directory uid to form a stable local ID.
	IDPrefix = "LDAP_"

	DefaultLanguage = "en"
)

// DirectoryAttributes mirrors the directory entry for audit and display.
type DirectoryAttributes struct {
	DN   string `json:"ldap_dn"`
	UID  string `json:"ldap_uid"`
	Mail string `json:"ldap_mail"`
	Name string `json:"ldap_name"`
}

// Identity is a local user record as the host application stores it.
type Identity struct {
	ID          string               `json:"id"`
	Email       string               `json:"email"`
	DisplayName string               `json:"name"`
	Language    string               `json:"language"`
	Role        string               `json:"role"`
	Directory   *DirectoryAttributes `json:"directory,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// IsDirectoryManaged returns true if the identity carries the directory role.
func (i *Identity) IsDirectoryManaged() bool {
	return i != nil && i.Role == RoleDirectory
}

// Clone returns a deep copy.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	if i.Directory != nil {
		d := *i.Directory
		c.Directory = &d
	}
	return &c
}

// IDForUID derives the local ID of a directory entry.
func IDForUID(uid string) string {
	return IDPrefix + uid
}

// NormalizeEmail is the form emails are indexed under.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
