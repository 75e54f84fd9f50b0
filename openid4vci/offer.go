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

	"github.com/nuts-foundation/openid4vci-wallet/oauth"
)

// CredentialOfferRequest is how a wallet learns about an offer: either the offer object itself
// (by_value, typically from a credential_offer= query parameter) or a URL to fetch it from
// (by_reference, from credential_offer_uri=). Exactly one of the two fields is set.
type CredentialOfferRequest struct {
	byValueJSON string
	byReference string
}

// OfferByValue wraps a raw credential_offer JSON string.
func OfferByValue(rawJSON string) CredentialOfferRequest {
	return CredentialOfferRequest{byValueJSON: rawJSON}
}

// OfferByReference wraps a credential_offer_uri to fetch.
func OfferByReference(url string) CredentialOfferRequest {
	return CredentialOfferRequest{byReference: url}
}

// TxCode describes the transaction code a pre-authorized code grant requires at token exchange.
type TxCode struct {
	InputMode   string `json:"input_mode,omitempty"`
	Length      int    `json:"length,omitempty"`
	Description string `json:"description,omitempty"`
}

// AuthorizationCodeGrant is the authorization_code entry of a credential offer's grants.
type AuthorizationCodeGrant struct {
	IssuerState         string `json:"issuer_state,omitempty"`
	AuthorizationServer string `json:"authorization_server,omitempty"`
}

// PreAuthorizedCodeGrant is the pre-authorized_code entry of a credential offer's grants.
type PreAuthorizedCodeGrant struct {
	PreAuthorizedCode string  `json:"pre-authorized_code"`
	TxCode            *TxCode `json:"tx_code,omitempty"`
}

// credentialOfferRequestObjectWire is the wire shape of a credential_offer JSON object.
type credentialOfferRequestObjectWire struct {
	CredentialIssuer           string   `json:"credential_issuer"`
	CredentialConfigurationIDs []string `json:"credential_configuration_ids"`
	Grants                     *struct {
		AuthorizationCode *AuthorizationCodeGrant `json:"authorization_code,omitempty"`
		PreAuthorizedCode *PreAuthorizedCodeGrant `json:"urn:ietf:params:oauth:grant-type:pre-authorized_code,omitempty"`
	} `json:"grants,omitempty"`
}

// Grants is the domain-shaped result of parsing a credential offer's grants object. Both
// fields may be set simultaneously; a wallet picks whichever flow it supports.
type Grants struct {
	AuthorizationCode *AuthorizationCodeGrant
	PreAuthorizedCode *PreAuthorizedCodeGrant
}

// CredentialMetadataKind discriminates how a CredentialMetadata entry names its configuration.
type CredentialMetadataKind int

const (
	ByScope CredentialMetadataKind = iota
	ByProfile
)

// CredentialMetadata is one resolved credential_configuration_ids entry: either the issuer
// exposes a scope for it (ByScope) or it carries a format discriminator to route through the
// format profile registry (ByProfile).
type CredentialMetadata struct {
	ConfigurationID string
	Kind            CredentialMetadataKind
	Scope           string
	Format          string
}

// CredentialOffer is the fully resolved result of offer resolution: everything the Issuer
// Facade needs to start authorizing.
type CredentialOffer struct {
	Issuer                      CredentialIssuerId
	IssuerMetadata              *CredentialIssuerMetadata
	Credentials                 []CredentialMetadata
	Grants                      Grants
	AuthorizationServer         string
	AuthorizationServerMetadata *oauth.AuthorizationServerMetadata
}

// OfferResolver turns a CredentialOfferRequest into a fully resolved CredentialOffer.
type OfferResolver struct {
	Fetcher        Fetcher
	IssuerMetadata *IssuerMetadataResolver
	ASMetadata     *ASMetadataResolver
	MetadataPolicy MetadataPolicy
}

// Resolve implements spec §4.3 steps 1-5.
func (r *OfferResolver) Resolve(ctx context.Context, request CredentialOfferRequest) (*CredentialOffer, error) {
	rawJSON, err := r.rawOfferJSON(ctx, request)
	if err != nil {
		return nil, err
	}

	var wire credentialOfferRequestObjectWire
	if err := json.Unmarshal(rawJSON, &wire); err != nil {
		return nil, OfferInvalidError("credential offer is not valid JSON: %v", err)
	}

	issuer, err := ParseCredentialIssuerId(wire.CredentialIssuer)
	if err != nil {
		return nil, OfferInvalidError("credential offer has invalid credential_issuer: %v", err)
	}

	issuerMetadata, err := r.IssuerMetadata.Resolve(ctx, issuer, r.MetadataPolicy)
	if err != nil {
		return nil, err
	}

	authorizationServer := issuerMetadata.PrimaryAuthorizationServer()
	if wire.Grants != nil && wire.Grants.AuthorizationCode != nil && wire.Grants.AuthorizationCode.AuthorizationServer != "" {
		authorizationServer = wire.Grants.AuthorizationCode.AuthorizationServer
	}
	asMetadata, err := r.ASMetadata.Resolve(ctx, authorizationServer)
	if err != nil {
		return nil, err
	}

	credentials := make([]CredentialMetadata, 0, len(wire.CredentialConfigurationIDs))
	for _, id := range wire.CredentialConfigurationIDs {
		configuration, ok := issuerMetadata.CredentialConfigurationsSupported[id]
		if !ok {
			return nil, OfferInvalidError("credential offer references unknown credential_configuration_id %q", id)
		}
		if configuration.Scope != "" {
			credentials = append(credentials, CredentialMetadata{ConfigurationID: id, Kind: ByScope, Scope: configuration.Scope})
		} else {
			credentials = append(credentials, CredentialMetadata{ConfigurationID: id, Kind: ByProfile, Format: configuration.Format})
		}
	}

	var grants Grants
	if wire.Grants != nil {
		grants.AuthorizationCode = wire.Grants.AuthorizationCode
		grants.PreAuthorizedCode = wire.Grants.PreAuthorizedCode
	}

	return &CredentialOffer{
		Issuer:                      issuer,
		IssuerMetadata:              issuerMetadata,
		Credentials:                 credentials,
		Grants:                      grants,
		AuthorizationServer:         authorizationServer,
		AuthorizationServerMetadata: asMetadata,
	}, nil
}

func (r *OfferResolver) rawOfferJSON(ctx context.Context, request CredentialOfferRequest) ([]byte, error) {
	if request.byValueJSON != "" {
		return []byte(request.byValueJSON), nil
	}
	if request.byReference == "" {
		return nil, OfferInvalidError("credential offer request has neither a value nor a reference")
	}
	response, err := r.Fetcher.Get(ctx, request.byReference, nil)
	if err != nil {
		return nil, err
	}
	if !response.IsSuccess() {
		return nil, OfferInvalidError("credential_offer_uri %s returned HTTP %d", request.byReference, response.StatusCode)
	}
	return response.Body, nil
}
