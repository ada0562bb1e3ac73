// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/medienhaus/ldapauth/pkg/autherr"
	"github.com/medienhaus/ldapauth/pkg/logger"
)

// Record is the normalized result of a directory lookup. It is built fresh
// for every search.
type Record struct {
	DN   string `json:"dn"`
	UID  string `json:"uid"`
	Mail string `json:"mail"`
	Name string `json:"name"`
}

// FindByMail looks up the single entry whose mail attribute equals mail.
// Returns autherr.ErrUserNotFound when nothing matches. When several entries
// match, the first one returned by the server wins.
func (c *Client) FindByMail(ctx context.Context, mail string) (Record, error) {
	return c.findOne(ctx, c.mapping.Mail, mail)
}

// FindByUID looks up an entry by its uid attribute.
func (c *Client) FindByUID(ctx context.Context, uid string) (Record, error) {
	return c.findOne(ctx, c.mapping.UID, uid)
}

func (c *Client) findOne(ctx context.Context, attr, value string) (Record, error) {
	if value == "" {
		return Record{}, fmt.Errorf("%w: search by %s without a value", autherr.ErrUsage, attr)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connectLocked(ctx)
	if err != nil {
		return Record{}, err
	}

	filter := fmt.Sprintf("(%s=%s)", attr, ldap.EscapeFilter(value))
	req := ldap.NewSearchRequest(
		c.config.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0,
		int(c.config.Timeout/time.Second),
		false,
		filter,
		c.mapping.Attributes(),
		nil,
	)

	start := time.Now()
	result, err := conn.Search(req)
	if err != nil {
		observe(opSearch, resultError, start)
		if ldap.IsErrorWithCode(err, ldap.ErrorNetwork) || conn.IsClosing() {
			c.dropLocked()
		}
		logger.Ctx(ctx).Error().Err(err).Str("filter", filter).Msg("directory search failed")
		return Record{}, fmt.Errorf("%w: search: %w", autherr.ErrConnection, err)
	}

	if len(result.Entries) == 0 {
		observe(opSearch, resultNotFound, start)
		logger.Ctx(ctx).Debug().Str("filter", filter).Msg("no directory entry")
		return Record{}, autherr.ErrUserNotFound
	}
	observe(opSearch, resultOK, start)

	if len(result.Entries) > 1 {
		logger.Ctx(ctx).Warn().
			Str("filter", filter).
			Int("matches", len(result.Entries)).
			Msg("multiple directory entries matched, using the first")
	}

	return c.recordFrom(result.Entries[0]), nil
}

func (c *Client) recordFrom(entry *ldap.Entry) Record {
	values := make(map[string]string, len(entry.Attributes))
	for _, attr := range entry.Attributes {
		name := strings.ToLower(attr.Name)
		if _, seen := values[name]; seen || len(attr.Values) == 0 {
			continue
		}
		values[name] = attr.Values[0]
	}

	return Record{
		DN:   entry.DN,
		UID:  values[c.lower.UID],
		Mail: values[c.lower.Mail],
		Name: values[c.lower.Name],
	}
}
