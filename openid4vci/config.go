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

// AuthorizeIssuanceConfig picks which shape the Issuance Authorizer uses to tell the
// authorization server which credentials are being requested, per spec §4.6 bullet 1.
type AuthorizeIssuanceConfig int

const (
	// FavorScopes requests credentials via the scope parameter, for configurations that
	// advertise one; configurations without a scope still fall back to authorization_details.
	FavorScopes AuthorizeIssuanceConfig = iota
	// FavorAuthorizationDetails requests every credential via authorization_details, even
	// configurations that also advertise a scope.
	FavorAuthorizationDetails
)

// Config gathers every construction-time option the Issuance Authorizer and Issuance Requester
// consult, per spec §6's exhaustive configuration option list. The zero Config is not usable;
// build one with NewConfig.
type Config struct {
	// ClientAuthenticator selects the public-client or attestation-based client variant.
	ClientAuthenticator ClientAuthenticator
	// RedirectURI is the redirect_uri sent with every authorization code flow request.
	RedirectURI string
	// AuthorizeIssuance selects how credentials are described to the authorization server.
	AuthorizeIssuance AuthorizeIssuanceConfig
	// UsePAR enables Pushed Authorization Requests when the authorization server advertises
	// a PAR endpoint. Defaults to true; has no effect if the AS doesn't support PAR.
	UsePAR bool
	// DPoP, if non-nil, is used to attach DPoP proofs to every authorization, token, and
	// credential request. A nil DPoP means the wallet never presents a DPoP proof.
	DPoP *DPoPEngine
	// MetadataPolicy configures signed_metadata verification for the Issuer Metadata Resolver.
	MetadataPolicy MetadataPolicy
	// Profiles resolves a credential_configuration's format to its Profile. Defaults to
	// NewDefaultRegistry() if nil.
	Profiles *Registry
}

// NewConfig returns a Config with PAR enabled and the default format profile registry, the
// shape most issuers and wallets use out of the box.
func NewConfig(authenticator ClientAuthenticator, redirectURI string) Config {
	return Config{
		ClientAuthenticator: authenticator,
		RedirectURI:          redirectURI,
		AuthorizeIssuance:    FavorScopes,
		UsePAR:               true,
		MetadataPolicy:       IgnoreSigned(),
		Profiles:             NewDefaultRegistry(),
	}
}

func (c Config) profiles() *Registry {
	if c.Profiles != nil {
		return c.Profiles
	}
	return NewDefaultRegistry()
}
