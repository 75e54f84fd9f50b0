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
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/nuts-foundation/openid4vci-wallet/core"
	"github.com/nuts-foundation/openid4vci-wallet/crypto/pkce"
	"github.com/nuts-foundation/openid4vci-wallet/oauth"
)

// PreparedAuthorization is the result of PushAuthorizationRequest: everything needed to send
// the end user to the authorization server, plus the PKCE verifier the session must hold onto
// and present, unmodified, at token exchange. Per data-model invariant 3, Verifier never leaves
// the process this value lives in.
type PreparedAuthorization struct {
	AuthorizationURL    string
	RequestURI          string
	RequestURIValidity  *core.Period
	PKCEVerifier        string
	State               string
	ConfigurationIDs    []string
	AuthorizationServer string
}

// UnauthorizedToken binds an authorization code received on the redirect URI to the PKCE
// verifier and state that produced it, ready for RequestAccessToken.
type UnauthorizedToken struct {
	Code                string
	PKCEVerifier        string
	AuthorizationServer string
	ConfigurationIDs    []string
}

// Authorizer implements spec §4.6: the authorization-code (with PKCE and optional PAR) and
// pre-authorized-code flows, and the token exchange both converge on.
type Authorizer struct {
	Fetcher Fetcher
	Config  Config
}

// NewAuthorizer returns an Authorizer issuing requests through fetcher per config.
func NewAuthorizer(fetcher Fetcher, config Config) *Authorizer {
	return &Authorizer{Fetcher: fetcher, Config: config}
}

// PushAuthorizationRequest implements spec §4.6 bullet 1: builds the scope/authorization_details
// set for configurationIDs, generates a fresh PKCE pair, and either pushes a PAR request or
// returns a full authorization URL, per the AS's advertised capability and config.UsePAR.
func (a *Authorizer) PushAuthorizationRequest(ctx context.Context, offer *CredentialOffer, configurationIDs []string) (*PreparedAuthorization, error) {
	scopes, authDetails, err := buildAuthorizationParams(offer, configurationIDs, a.Config.AuthorizeIssuance)
	if err != nil {
		return nil, err
	}

	pkceParams, err := pkce.Generate()
	if err != nil {
		return nil, CryptographicError(err, "could not generate PKCE verifier")
	}
	state := uuid.NewString()

	form := url.Values{}
	form.Set(oauth.ResponseTypeParam, "code")
	form.Set(oauth.ClientIDParam, a.Config.ClientAuthenticator.ClientID())
	form.Set(oauth.RedirectURIParam, a.Config.RedirectURI)
	form.Set(oauth.CodeChallengeParam, pkceParams.Challenge)
	form.Set(oauth.CodeChallengeMethodParam, pkceParams.ChallengeMethod)
	form.Set(oauth.StateParam, state)
	if len(scopes) > 0 {
		form.Set(oauth.ScopeParam, joinScopes(scopes))
	}
	if authDetails != "" {
		form.Set(oauth.AuthorizationDetailsParam, authDetails)
	}
	if offer.Grants.AuthorizationCode != nil && offer.Grants.AuthorizationCode.IssuerState != "" {
		form.Set(oauth.IssuerStateParam, offer.Grants.AuthorizationCode.IssuerState)
	}

	prepared := &PreparedAuthorization{
		PKCEVerifier:        pkceParams.Verifier,
		State:               state,
		ConfigurationIDs:    configurationIDs,
		AuthorizationServer: offer.AuthorizationServer,
	}

	asMetadata := offer.AuthorizationServerMetadata
	if asMetadata.SupportsPAR() && a.Config.UsePAR {
		requestURI, validity, err := a.pushPAR(ctx, asMetadata.PushedAuthorizationRequestEndpoint, form, asMetadata.DPoPSigningAlgValuesSupported)
		if err != nil {
			return nil, err
		}
		prepared.RequestURI = requestURI
		prepared.RequestURIValidity = validity
		// Per the wire surface in spec §4.6/§6, a PAR-backed authorization URL carries only
		// client_id and request_uri; everything else already reached the AS in the PAR body.
		form = url.Values{}
		form.Set(oauth.ClientIDParam, a.Config.ClientAuthenticator.ClientID())
		form.Set(oauth.RequestURIParam, requestURI)
	}

	prepared.AuthorizationURL = asMetadata.AuthorizationEndpoint + "?" + form.Encode()
	return prepared, nil
}

// pushPAR submits the pushed authorization request and returns the resulting request_uri
// together with its validity window, derived from the response's expires_in (RFC 9126 §2.2);
// a response that omits expires_in leaves the window nil rather than guessing a default.
func (a *Authorizer) pushPAR(ctx context.Context, endpoint string, form url.Values, supportedAlgs []string) (string, *core.Period, error) {
	headers := http.Header{}
	if err := a.Config.ClientAuthenticator.Authenticate(ctx, endpoint, form, headers); err != nil {
		return "", nil, err
	}

	send := func(dpopProof string) (*Response, error) {
		if dpopProof != "" {
			headers.Set(oauth.DPoPHeader, dpopProof)
		}
		return a.Fetcher.PostForm(ctx, endpoint, form, headers)
	}

	var response *Response
	var err error
	if a.Config.DPoP != nil {
		response, err = a.Config.DPoP.Do(http.MethodPost, endpoint, "", supportedAlgs, send)
	} else {
		response, err = send("")
	}
	if err != nil {
		return "", nil, err
	}
	if !response.IsSuccess() {
		return "", nil, OAuthError(response.StatusCode, dpopErrorBody(response))
	}

	parsed, err := DecodeJSON[struct {
		RequestURI string `json:"request_uri"`
		ExpiresIn  int    `json:"expires_in"`
	}](response)
	if err != nil {
		return "", nil, err
	}
	if parsed.RequestURI == "" {
		return "", nil, MetadataInvalidError(nil, "pushed authorization request response is missing request_uri")
	}

	var validity *core.Period
	if parsed.ExpiresIn > 0 {
		begin := time.Now()
		end := begin.Add(time.Duration(parsed.ExpiresIn) * time.Second)
		validity = &core.Period{Begin: begin, End: &end}
	}
	return parsed.RequestURI, validity, nil
}

// HandleAuthorizationCode implements spec §4.6 bullet 2: binds a received authorization code
// to the PKCE verifier and authorization server prepared carries.
func (a *Authorizer) HandleAuthorizationCode(prepared *PreparedAuthorization, code string) (*UnauthorizedToken, error) {
	if code == "" {
		return nil, ValidationError("authorization code is empty")
	}
	return &UnauthorizedToken{
		Code:                code,
		PKCEVerifier:        prepared.PKCEVerifier,
		AuthorizationServer: prepared.AuthorizationServer,
		ConfigurationIDs:    prepared.ConfigurationIDs,
	}, nil
}

// RequestAccessToken implements spec §4.6 bullet 3: exchanges an authorization code for a
// token, validating the PKCE verifier one final time before it's spent.
func (a *Authorizer) RequestAccessToken(ctx context.Context, offer *CredentialOffer, unauthorized *UnauthorizedToken) (*AuthorizedRequest, error) {
	if err := pkce.Validate(unauthorized.PKCEVerifier, ""); err != nil {
		return nil, ValidationError("PKCE verifier is invalid: %v", err)
	}

	form := url.Values{}
	form.Set(oauth.GrantTypeParam, oauth.AuthorizationCodeGrantType)
	form.Set(oauth.CodeParam, unauthorized.Code)
	form.Set(oauth.CodeVerifierParam, unauthorized.PKCEVerifier)
	form.Set(oauth.RedirectURIParam, a.Config.RedirectURI)

	return a.requestToken(ctx, offer.AuthorizationServerMetadata.TokenEndpoint, form, offer.AuthorizationServerMetadata.DPoPSigningAlgValuesSupported)
}

// AuthorizeWithPreAuthorizedCode implements spec §4.6 bullet 4: exchanges a pre-authorized code
// (and, if the offer requires one, a tx_code) for a token without a user authorization step.
func (a *Authorizer) AuthorizeWithPreAuthorizedCode(ctx context.Context, offer *CredentialOffer, txCode string) (*AuthorizedRequest, error) {
	grant := offer.Grants.PreAuthorizedCode
	if grant == nil {
		return nil, ValidationError("credential offer has no pre-authorized_code grant")
	}
	if grant.TxCode != nil && txCode == "" {
		return nil, ValidationError("credential offer requires a tx_code but none was supplied")
	}

	form := url.Values{}
	form.Set(oauth.GrantTypeParam, oauth.PreAuthorizedCodeGrantType)
	form.Set(oauth.PreAuthorizedCodeParam, grant.PreAuthorizedCode)
	if txCode != "" {
		form.Set(oauth.TxCodeParam, txCode)
	}

	return a.requestToken(ctx, offer.AuthorizationServerMetadata.TokenEndpoint, form, offer.AuthorizationServerMetadata.DPoPSigningAlgValuesSupported)
}

// requestToken POSTs form to the token endpoint with client authentication and DPoP attached,
// and parses the response into a NoProofRequired or ProofRequired AuthorizedRequest.
func (a *Authorizer) requestToken(ctx context.Context, tokenEndpoint string, form url.Values, supportedAlgs []string) (*AuthorizedRequest, error) {
	headers := http.Header{}
	if err := a.Config.ClientAuthenticator.Authenticate(ctx, tokenEndpoint, form, headers); err != nil {
		return nil, err
	}

	send := func(dpopProof string) (*Response, error) {
		if dpopProof != "" {
			headers.Set(oauth.DPoPHeader, dpopProof)
		}
		return a.Fetcher.PostForm(ctx, tokenEndpoint, form, headers)
	}

	var response *Response
	var err error
	if a.Config.DPoP != nil {
		response, err = a.Config.DPoP.Do(http.MethodPost, tokenEndpoint, "", supportedAlgs, send)
	} else {
		response, err = send("")
	}
	if err != nil {
		return nil, err
	}
	if !response.IsSuccess() {
		return nil, OAuthError(response.StatusCode, dpopErrorBody(response))
	}

	wire, err := DecodeJSON[oauth.TokenResponse](response)
	if err != nil {
		return nil, err
	}
	return authorizedRequestFromTokenResponse(wire), nil
}

// buildAuthorizationParams constructs the scope list and authorization_details JSON, per
// spec §4.6 bullet 1 and config.AuthorizeIssuance.
func buildAuthorizationParams(offer *CredentialOffer, configurationIDs []string, mode AuthorizeIssuanceConfig) ([]string, string, error) {
	var scopes []string
	var details []map[string]string

	requested := map[string]bool{}
	for _, id := range configurationIDs {
		requested[id] = true
	}

	for _, credential := range offer.Credentials {
		if !requested[credential.ConfigurationID] {
			continue
		}
		useScope := mode == FavorScopes && credential.Kind == ByScope && credential.Scope != ""
		if useScope {
			scopes = append(scopes, credential.Scope)
		} else {
			details = append(details, map[string]string{
				"type":                         "openid_credential",
				"credential_configuration_id": credential.ConfigurationID,
			})
		}
	}

	if len(scopes) == 0 && len(details) == 0 {
		return nil, "", ValidationError("no requested configuration id matched the resolved offer")
	}

	if len(details) == 0 {
		return scopes, "", nil
	}
	encoded, err := json.Marshal(details)
	if err != nil {
		return nil, "", ValidationError("could not encode authorization_details: %v", err)
	}
	return scopes, string(encoded), nil
}

func joinScopes(scopes []string) string {
	joined := scopes[0]
	for _, scope := range scopes[1:] {
		joined += " " + scope
	}
	return joined
}
