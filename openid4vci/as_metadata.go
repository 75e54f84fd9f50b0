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
	"context"

	"github.com/nuts-foundation/openid4vci-wallet/oauth"
)

// ASMetadataResolver resolves an authorization server's identifier into its
// AuthorizationServerMetadata, probing OIDC discovery before falling back to OAuth2 metadata.
type ASMetadataResolver struct {
	Fetcher Fetcher
}

// Resolve fetches {as}/.well-known/openid-configuration; if that's missing or lacks the
// required fields, it falls back to {as}/.well-known/oauth-authorization-server.
func (r *ASMetadataResolver) Resolve(ctx context.Context, authorizationServer string) (*oauth.AuthorizationServerMetadata, error) {
	oidcMetadata, oidcErr := r.fetchAndValidate(ctx, wellKnownURL(authorizationServer, "openid-configuration"))
	if oidcErr == nil {
		return oidcMetadata, nil
	}

	oauth2Metadata, oauth2Err := r.fetchAndValidate(ctx, wellKnownURL(authorizationServer, "oauth-authorization-server"))
	if oauth2Err == nil {
		return oauth2Metadata, nil
	}

	return nil, MetadataInvalidError(oauth2Err, "could not resolve authorization server metadata for %s (OIDC discovery: %v)", authorizationServer, oidcErr)
}

func (r *ASMetadataResolver) fetchAndValidate(ctx context.Context, url string) (*oauth.AuthorizationServerMetadata, error) {
	response, err := r.Fetcher.Get(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	if !response.IsSuccess() {
		return nil, MetadataInvalidError(nil, "authorization server metadata endpoint %s returned HTTP %d", url, response.StatusCode)
	}

	metadata, err := DecodeJSON[oauth.AuthorizationServerMetadata](response)
	if err != nil {
		return nil, err
	}

	if err := validateASMetadata(metadata); err != nil {
		return nil, err
	}
	return &metadata, nil
}

// validateASMetadata checks the fields spec §4.2 requires: issuer, authorization_endpoint,
// token_endpoint, response_types_supported.
func validateASMetadata(metadata oauth.AuthorizationServerMetadata) error {
	if metadata.Issuer == "" {
		return MetadataInvalidError(nil, "authorization server metadata is missing issuer")
	}
	if metadata.AuthorizationEndpoint == "" {
		return MetadataInvalidError(nil, "authorization server metadata is missing authorization_endpoint")
	}
	if metadata.TokenEndpoint == "" {
		return MetadataInvalidError(nil, "authorization server metadata is missing token_endpoint")
	}
	if len(metadata.ResponseTypesSupported) == 0 {
		return MetadataInvalidError(nil, "authorization server metadata is missing response_types_supported")
	}
	return nil
}
