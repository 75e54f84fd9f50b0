/*
 * Copyright (C) 2023 Nuts community
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

// Package oauth holds the OAuth2 and OpenID4VCI wire vocabulary shared by the
// issuance authorizer and requester: parameter names, grant types, and the
// metadata/token response shapes returned by an authorization server or
// credential issuer.
package oauth

import (
	"encoding/json"
)

// Wire parameter names used in form-encoded and query-string requests.
const (
	ClientIDParam           = "client_id"
	CodeParam                = "code"
	CodeChallengeParam      = "code_challenge"
	CodeChallengeMethodParam = "code_challenge_method"
	CodeVerifierParam       = "code_verifier"
	GrantTypeParam          = "grant_type"
	RedirectURIParam        = "redirect_uri"
	ResponseTypeParam       = "response_type"
	ScopeParam              = "scope"
	StateParam              = "state"
	RequestURIParam         = "request_uri"
	IssuerStateParam        = "issuer_state"
	PreAuthorizedCodeParam  = "pre-authorized_code"
	TxCodeParam             = "tx_code"
	RefreshTokenParam       = "refresh_token"
	CNonceParam             = "c_nonce"
	CNonceExpiresInParam    = "c_nonce_expires_in"
	AuthorizationDetailsParam = "authorization_details"
)

// HTTP header names for DPoP and Attestation-Based Client Authentication.
const (
	DPoPHeader                    = "DPoP"
	DPoPNonceHeader                = "DPoP-Nonce"
	ClientAttestationHeader        = "OAuth-Client-Attestation"
	ClientAttestationPoPHeader      = "OAuth-Client-Attestation-PoP"
)

// Grant type identifiers.
const (
	AuthorizationCodeGrantType = "authorization_code"
	RefreshTokenGrantType      = "refresh_token"
	// PreAuthorizedCodeGrantType is the draft-15 URN grant type used for pre-authorized issuance.
	PreAuthorizedCodeGrantType = "urn:ietf:params:oauth:grant-type:pre-authorized_code"
)

// Token type identifiers, as returned in a token response's token_type.
const (
	BearerTokenType = "bearer"
	DPoPTokenType   = "DPoP"
)

// CodeChallengeMethodS256 is the only PKCE challenge method this library produces.
const CodeChallengeMethodS256 = "S256"

// ErrorCode is an OAuth2/OpenID4VCI error code as returned in an error response's "error" field.
type ErrorCode string

// Error codes that appear on the wire. use_dpop_nonce and invalid_proof get special handling;
// the rest are surfaced to the caller as OAuthError.
const (
	InvalidRequest          ErrorCode = "invalid_request"
	InvalidClient           ErrorCode = "invalid_client"
	InvalidGrant            ErrorCode = "invalid_grant"
	InvalidToken            ErrorCode = "invalid_token"
	UnsupportedGrantType    ErrorCode = "unsupported_grant_type"
	ServerError             ErrorCode = "server_error"
	UseDPoPNonce            ErrorCode = "use_dpop_nonce"
	InvalidDPoPProof        ErrorCode = "invalid_dpop_proof"
	InvalidProof            ErrorCode = "invalid_proof"
	IssuancePending         ErrorCode = "issuance_pending"
	UnsupportedCredentialType   ErrorCode = "unsupported_credential_type"
	UnsupportedCredentialFormat ErrorCode = "unsupported_credential_format"
)

// ErrorResponse is the structured error body an authorization server or credential issuer
// returns on a non-2xx response, per RFC 6749 §5.2 and the OpenID4VCI error extensions.
type ErrorResponse struct {
	Code             ErrorCode `json:"error"`
	Description      string    `json:"error_description,omitempty"`
	URI              string    `json:"error_uri,omitempty"`
	CNonce           string    `json:"c_nonce,omitempty"`
	CNonceExpiresIn  *int      `json:"c_nonce_expires_in,omitempty"`
	Interval         *int      `json:"interval,omitempty"`
}

// AuthorizationServerMetadata models the subset of OAuth2/OIDC discovery metadata this
// library consumes, per RFC 8414 and the OIDC Discovery 1.0 and OpenID4VCI extensions.
type AuthorizationServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint,omitempty"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	PushedAuthorizationRequestEndpoint string  `json:"pushed_authorization_request_endpoint,omitempty"`
	RequirePushedAuthorizationRequests bool    `json:"pushed_authorization_request_endpoint_required,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported,omitempty"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`
	DPoPSigningAlgValuesSupported     []string `json:"dpop_signing_alg_values_supported,omitempty"`
	ClientAuthenticationMethodsSupported []string `json:"client_authentication_methods_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
}

// SupportsPAR reports whether the authorization server advertises a PAR endpoint.
func (m AuthorizationServerMetadata) SupportsPAR() bool {
	return m.PushedAuthorizationRequestEndpoint != ""
}

// SupportsAttestationBasedClientAuth reports whether attest_jwt_client_auth is one of the
// server's advertised client authentication methods.
func (m AuthorizationServerMetadata) SupportsAttestationBasedClientAuth() bool {
	for _, method := range m.ClientAuthenticationMethodsSupported {
		if method == "attest_jwt_client_auth" {
			return true
		}
	}
	return false
}

// reservedTokenResponseFields lists the fields TokenResponse decodes explicitly;
// everything else round-trips through additionalParams.
var reservedTokenResponseFields = map[string]struct{}{
	"access_token":       {},
	"token_type":         {},
	"expires_in":         {},
	"refresh_token":      {},
	"scope":              {},
	"c_nonce":            {},
	"c_nonce_expires_in": {},
	"authorization_details": {},
}

// TokenResponse is the body of a token endpoint response (RFC 6749 §5.1), extended with the
// OpenID4VCI c_nonce fields. Fields the issuer/AS adds beyond the reserved set (a credential
// issuer may mix in offer-flow extensions) are preserved through additionalParams, so a caller
// round-tripping or forwarding this response loses nothing it didn't explicitly parse.
type TokenResponse struct {
	AccessToken          string  `json:"access_token"`
	TokenType            string  `json:"token_type"`
	ExpiresIn            *int    `json:"expires_in,omitempty"`
	RefreshToken         *string `json:"refresh_token,omitempty"`
	Scope                *string `json:"scope,omitempty"`
	CNonce               *string `json:"c_nonce,omitempty"`
	CNonceExpiresIn      *int    `json:"c_nonce_expires_in,omitempty"`
	AuthorizationDetails json.RawMessage `json:"authorization_details,omitempty"`

	additionalParams map[string]interface{}
}

// Get returns an additional (non-reserved) parameter from the token response, and whether it was present.
func (t TokenResponse) Get(name string) (interface{}, bool) {
	v, ok := t.additionalParams[name]
	return v, ok
}

// With returns a copy of t with the additional parameter name=value set. Used by tests and by
// issuers that want to synthesize a response carrying issuer-specific extensions.
func (t TokenResponse) With(name string, value interface{}) TokenResponse {
	clone := t
	clone.additionalParams = make(map[string]interface{}, len(t.additionalParams)+1)
	for k, v := range t.additionalParams {
		clone.additionalParams[k] = v
	}
	clone.additionalParams[name] = value
	return clone
}

// MarshalJSON flattens the reserved fields and additionalParams into a single JSON object.
func (t TokenResponse) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(t.additionalParams)+7)
	for k, v := range t.additionalParams {
		out[k] = v
	}
	out["access_token"] = t.AccessToken
	out["token_type"] = t.TokenType
	if t.ExpiresIn != nil {
		out["expires_in"] = *t.ExpiresIn
	}
	if t.RefreshToken != nil {
		out["refresh_token"] = *t.RefreshToken
	}
	if t.Scope != nil {
		out["scope"] = *t.Scope
	}
	if t.CNonce != nil {
		out["c_nonce"] = *t.CNonce
	}
	if t.CNonceExpiresIn != nil {
		out["c_nonce_expires_in"] = *t.CNonceExpiresIn
	}
	if len(t.AuthorizationDetails) > 0 {
		out["authorization_details"] = t.AuthorizationDetails
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the reserved fields by name and keeps everything else in additionalParams.
func (t *TokenResponse) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type reserved struct {
		AccessToken          string          `json:"access_token"`
		TokenType            string          `json:"token_type"`
		ExpiresIn            *int            `json:"expires_in,omitempty"`
		RefreshToken         *string         `json:"refresh_token,omitempty"`
		Scope                *string         `json:"scope,omitempty"`
		CNonce               *string         `json:"c_nonce,omitempty"`
		CNonceExpiresIn      *int            `json:"c_nonce_expires_in,omitempty"`
		AuthorizationDetails json.RawMessage `json:"authorization_details,omitempty"`
	}
	var r reserved
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}

	t.AccessToken = r.AccessToken
	t.TokenType = r.TokenType
	t.ExpiresIn = r.ExpiresIn
	t.RefreshToken = r.RefreshToken
	t.Scope = r.Scope
	t.CNonce = r.CNonce
	t.CNonceExpiresIn = r.CNonceExpiresIn
	t.AuthorizationDetails = r.AuthorizationDetails

	t.additionalParams = make(map[string]interface{})
	for k, v := range raw {
		if _, isReserved := reservedTokenResponseFields[k]; isReserved {
			continue
		}
		t.additionalParams[k] = v
	}
	return nil
}
