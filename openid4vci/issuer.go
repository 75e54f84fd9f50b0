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

import "context"

// Issuer is the thin facade spec §4.8 names: it holds only immutable collaborators (Fetcher,
// Config, resolvers) and never mutates session state itself. Every method that advances a
// session's issuance returns a new value; the caller is responsible for not reusing a state
// value once a newer one has been produced, per the "terminal from here only via the Requester"
// note on the authorization state machine.
type Issuer struct {
	Fetcher        Fetcher
	Config         Config
	OfferResolver  *OfferResolver
	ASMetadata     *ASMetadataResolver
	IssuerMetadata *IssuerMetadataResolver
}

// NewIssuer wires together the metadata resolvers, offer resolver, authorizer and requester
// this library needs from a single Fetcher and Config, per SPEC_FULL.md's package layout.
func NewIssuer(fetcher Fetcher, config Config) *Issuer {
	issuerMetadata := &IssuerMetadataResolver{Fetcher: fetcher}
	asMetadata := &ASMetadataResolver{Fetcher: fetcher}
	return &Issuer{
		Fetcher:        fetcher,
		Config:         config,
		IssuerMetadata: issuerMetadata,
		ASMetadata:     asMetadata,
		OfferResolver: &OfferResolver{
			Fetcher:        fetcher,
			IssuerMetadata: issuerMetadata,
			ASMetadata:     asMetadata,
			MetadataPolicy: config.MetadataPolicy,
		},
	}
}

// ResolveOffer implements spec §4.3: turns a CredentialOfferRequest into a fully resolved
// CredentialOffer, ready for authorization.
func (i *Issuer) ResolveOffer(ctx context.Context, request CredentialOfferRequest) (*CredentialOffer, error) {
	return i.OfferResolver.Resolve(ctx, request)
}

// Authorizer returns an Authorizer bound to this facade's Fetcher and Config, implementing
// spec §4.6's authorization-code/PAR and pre-authorized-code flows for offer.
func (i *Issuer) Authorizer() *Authorizer {
	return NewAuthorizer(i.Fetcher, i.Config)
}

// Requester returns a Requester bound to offer's issuer metadata, implementing spec §4.7's
// credential request, deferred polling, notification and refresh operations.
func (i *Issuer) Requester(offer *CredentialOffer) *Requester {
	return NewRequester(i.Fetcher, i.Config, offer.IssuerMetadata)
}

// AuthorizeAndIssue drives the full happy-path sequence spec §2's data-flow diagram describes —
// offer resolution already done by the caller, PAR/auth-code or pre-authorized exchange, then one
// credential request — for the pre-authorized-code case, which needs no user interaction. The
// authorization-code case is necessarily split across PushAuthorizationRequest (before redirect)
// and HandleAuthorizationCode/RequestAccessToken (after redirect returns to the caller), so it
// has no single-call equivalent here; callers drive Authorizer directly for that flow.
func (i *Issuer) AuthorizeAndIssue(ctx context.Context, offer *CredentialOffer, txCode string, payload IssuanceRequestPayload, signer ProofSigner, encryption ResponseEncryptionProvider) (AuthorizedRequest, SubmissionOutcome, error) {
	authorizer := i.Authorizer()
	authorized, err := authorizer.AuthorizeWithPreAuthorizedCode(ctx, offer, txCode)
	if err != nil {
		return AuthorizedRequest{}, SubmissionOutcome{}, err
	}

	requester := i.Requester(offer)
	if authorized.CNonce == nil && offer.IssuerMetadata.NonceEndpoint != "" {
		nonce, expiresIn, err := requester.GetFreshCNonce(ctx)
		if err != nil {
			return AuthorizedRequest{}, SubmissionOutcome{}, err
		}
		updated := authorized.WithCNonce(nonce, expiresIn)
		authorized = &updated
	}

	newAuthorized, outcome, err := requester.RequestCredential(ctx, *authorized, payload, signer, encryption)
	return newAuthorized, outcome, err
}
