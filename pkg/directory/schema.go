// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import "strings"

// Built-in attribute names, used when no override is configured.
const (
	DefaultUIDAttribute  = "uid"
	DefaultMailAttribute = "mail"
	DefaultNameAttribute = "cn"
)

// AttributeOverrides is the configured attributes.{uid,mail,name} table.
type AttributeOverrides struct {
	UID  string `mapstructure:"uid"`
	Mail string `mapstructure:"mail"`
	Name string `mapstructure:"name"`
}

// AttributeMapping maps the logical fields onto directory attribute names.
type AttributeMapping struct {
	UID  string
	Mail string
	Name string
}

// ResolveMapping applies the overrides on top of the defaults. Blank overrides
// are ignored.
func ResolveMapping(o AttributeOverrides) AttributeMapping {
	return AttributeMapping{
		UID:  firstNonEmpty(o.UID, DefaultUIDAttribute),
		Mail: firstNonEmpty(o.Mail, DefaultMailAttribute),
		Name: firstNonEmpty(o.Name, DefaultNameAttribute),
	}
}

// Lower returns the mapping with lower-cased names. Attribute names in search
// results are compared in this form.
func (m AttributeMapping) Lower() AttributeMapping {
	return AttributeMapping{
		UID:  strings.ToLower(m.UID),
		Mail: strings.ToLower(m.Mail),
		Name: strings.ToLower(m.Name),
	}
}

// Attributes lists the names to request from the server.
func (m AttributeMapping) Attributes() []string {
	return []string{m.UID, m.Mail, m.Name}
}

func firstNonEmpty(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}
