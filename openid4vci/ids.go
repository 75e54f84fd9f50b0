/*
 * Copyright (C) 2024 Nuts community
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package openid4vci

import (
	"net/url"
	"strings"

	"github.com/nuts-foundation/openid4vci-wallet/core"
)

// CredentialIssuerId is an absolute HTTPS URL with no fragment and no query, identifying a
// credential issuer. It also serves as the base for deriving the issuer metadata well-known URL.
type CredentialIssuerId string

// ParseCredentialIssuerId validates raw per spec §3: scheme must be https, and the path must
// not end with "/". No fragment or query is allowed either.
func ParseCredentialIssuerId(raw string) (CredentialIssuerId, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", ValidationError("credential issuer id is not a valid URL: %v", err)
	}
	if parsed.Scheme != "https" {
		return "", ValidationError("credential issuer id must use https: %s", raw)
	}
	if parsed.Fragment != "" {
		return "", ValidationError("credential issuer id must not have a fragment: %s", raw)
	}
	if parsed.RawQuery != "" {
		return "", ValidationError("credential issuer id must not have a query: %s", raw)
	}
	if strings.HasSuffix(parsed.Path, "/") {
		return "", ValidationError("credential issuer id must not have a trailing slash: %s", raw)
	}
	return CredentialIssuerId(raw), nil
}

// WellKnownMetadataURL derives the {issuer}/.well-known/openid-credential-issuer URL.
func (id CredentialIssuerId) WellKnownMetadataURL() string {
	return wellKnownURL(string(id), "openid-credential-issuer")
}

// wellKnownURL inserts a well-known path segment directly after the URL's authority, per
// RFC 8615: https://issuer.example/tenant/a -> https://issuer.example/.well-known/x/tenant/a.
func wellKnownURL(issuer string, name string) string {
	parsed, err := url.Parse(issuer)
	if err != nil {
		// Unreachable: issuer was already validated by ParseCredentialIssuerId or AS metadata resolution.
		return core.JoinURLPaths(issuer, ".well-known", name)
	}
	wellKnownPath := core.JoinURLPaths("/.well-known", name, parsed.Path)
	parsed.Path = wellKnownPath
	return parsed.String()
}
