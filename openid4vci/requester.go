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

	"github.com/avast/retry-go/v4"

	"github.com/nuts-foundation/openid4vci-wallet/log"
	"github.com/nuts-foundation/openid4vci-wallet/oauth"
)

// IssuanceRequestPayload is either configuration-based (the only variant this library
// produces; identifier-based requests are a Non-goal) carrying an optional format-specific
// claim set to embed via the matching format profile's EncodeRequestFields.
type IssuanceRequestPayload struct {
	ConfigurationID string
	ClaimSet        interface{}
}

// IssuedCredential is one credential entry of a Success SubmissionOutcome.
type IssuedCredential struct {
	Credential string
	Raw        json.RawMessage
}

// OutcomeKind discriminates SubmissionOutcome's variants, per spec §3.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeDeferred
	OutcomeInvalidProof
	OutcomeFailed
)

// SubmissionOutcome is the result of one credential request, per spec §3's SubmissionOutcome.
type SubmissionOutcome struct {
	Kind          OutcomeKind
	Credentials   []IssuedCredential
	TransactionID string
	CNonce        string
	Description   string
	Err           *Error
}

// Requester implements spec §4.7: request body construction, submission, and response
// interpretation for credential issuance, deferred polling, and notifications.
type Requester struct {
	Fetcher  Fetcher
	Config   Config
	Metadata *CredentialIssuerMetadata
}

// NewRequester returns a Requester issuing requests against metadata through fetcher per config.
func NewRequester(fetcher Fetcher, config Config, metadata *CredentialIssuerMetadata) *Requester {
	return &Requester{Fetcher: fetcher, Config: config, Metadata: metadata}
}

// RequestCredential implements spec §4.7's request_credential for the single-proof case: one
// ProofSigner, one proof, per data-model invariant "exactly one of proof or proofs is present."
func (r *Requester) RequestCredential(ctx context.Context, authorized AuthorizedRequest, payload IssuanceRequestPayload, signer ProofSigner, encryption ResponseEncryptionProvider) (AuthorizedRequest, SubmissionOutcome, error) {
	return r.requestCredential(ctx, authorized, payload, []ProofSigner{signer}, encryption)
}

// RequestBatchCredential implements the draft-15 batch variant (spec §9 Open Questions,
// specified in full by SPEC_FULL.md §D): N proof signers produce N proofs under the "proofs"
// wire field, all bound to the same c_nonce.
func (r *Requester) RequestBatchCredential(ctx context.Context, authorized AuthorizedRequest, payload IssuanceRequestPayload, signers []ProofSigner, encryption ResponseEncryptionProvider) (AuthorizedRequest, SubmissionOutcome, error) {
	if len(signers) == 0 {
		return authorized, SubmissionOutcome{}, ValidationError("batch credential request needs at least one proof signer")
	}
	return r.requestCredential(ctx, authorized, payload, signers, encryption)
}

func (r *Requester) requestCredential(ctx context.Context, authorized AuthorizedRequest, payload IssuanceRequestPayload, signers []ProofSigner, encryption ResponseEncryptionProvider) (AuthorizedRequest, SubmissionOutcome, error) {
	configuration, ok := r.Metadata.CredentialConfigurationsSupported[payload.ConfigurationID]
	if !ok {
		return authorized, SubmissionOutcome{}, OfferInvalidError("credential_configuration_id %q is not supported by this issuer", payload.ConfigurationID)
	}

	body := map[string]interface{}{"credential_configuration_id": payload.ConfigurationID}

	if payload.ClaimSet != nil {
		profile := r.Config.profiles().Lookup(configuration.Format)
		fields, err := profile.EncodeRequestFields(payload.ClaimSet)
		if err != nil {
			return authorized, SubmissionOutcome{}, err
		}
		for k, v := range fields {
			body[k] = v
		}
	}

	nonce := ""
	if authorized.CNonce != nil {
		nonce = *authorized.CNonce
	}
	proofs := make([]string, 0, len(signers))
	for _, signer := range signers {
		proof, err := signer.SignProof(ctx, r.Config.ClientAuthenticator.ClientID(), r.Metadata.CredentialIssuer, nonce)
		if err != nil {
			return authorized, SubmissionOutcome{}, err
		}
		proofs = append(proofs, proof)
	}
	if len(proofs) == 1 {
		body["proof"] = map[string]interface{}{"proof_type": "jwt", "jwt": proofs[0]}
	} else {
		body["proofs"] = map[string]interface{}{"jwt": proofs}
	}

	var encryptionSpec *ResponseEncryptionSpec
	if r.Metadata.CredentialResponseEncryption != nil && (r.Metadata.CredentialResponseEncryption.EncryptionRequired || encryption != nil) {
		provider := encryption
		if provider == nil {
			provider = NewEphemeralResponseEncryption
		}
		spec, err := provider(r.Metadata.CredentialResponseEncryption)
		if err != nil {
			return authorized, SubmissionOutcome{}, err
		}
		encryptionSpec = spec
		defer encryptionSpec.Zeroize()
		body["credential_response_encryption"] = map[string]interface{}{
			"jwk": encryptionSpec.JWK,
			"alg": encryptionSpec.Alg.String(),
			"enc": encryptionSpec.Enc.String(),
		}
	}

	headers := http.Header{"Authorization": []string{authorized.AuthorizationHeaderValue()}}
	send := func(dpopProof string) (*Response, error) {
		if dpopProof != "" {
			headers.Set(oauth.DPoPHeader, dpopProof)
		}
		return r.Fetcher.PostJSON(ctx, r.Metadata.CredentialEndpoint, body, headers)
	}

	var response *Response
	var err error
	if authorized.IsDPoP() && r.Config.DPoP != nil {
		response, err = r.Config.DPoP.Do(http.MethodPost, r.Metadata.CredentialEndpoint, authorized.AccessToken, nil, send)
	} else {
		response, err = send("")
	}
	if err != nil {
		return authorized, SubmissionOutcome{}, err
	}

	var responseBody []byte = response.Body
	if encryptionSpec != nil && response.IsSuccess() {
		responseBody, err = encryptionSpec.Decrypt(response.Body)
		if err != nil {
			return authorized, SubmissionOutcome{}, err
		}
	}

	return interpretCredentialResponse(authorized, response.StatusCode, responseBody)
}

// interpretCredentialResponse implements spec §4.7's response interpretation table.
func interpretCredentialResponse(authorized AuthorizedRequest, statusCode int, body []byte) (AuthorizedRequest, SubmissionOutcome, error) {
	if statusCode >= 200 && statusCode < 300 {
		var success struct {
			Credential    string            `json:"credential,omitempty"`
			Credentials   []json.RawMessage `json:"credentials,omitempty"`
			TransactionID string            `json:"transaction_id,omitempty"`
			CNonce        *string           `json:"c_nonce,omitempty"`
			CNonceExpires *int              `json:"c_nonce_expires_in,omitempty"`
		}
		if err := json.Unmarshal(body, &success); err != nil {
			return authorized, SubmissionOutcome{}, TransportError(err, "could not decode credential response")
		}

		updated := authorized
		if success.CNonce != nil {
			updated = authorized.WithCNonce(*success.CNonce, success.CNonceExpires)
		}

		if success.TransactionID != "" {
			return updated, SubmissionOutcome{Kind: OutcomeDeferred, TransactionID: success.TransactionID}, nil
		}

		var credentials []IssuedCredential
		if success.Credential != "" {
			credentials = append(credentials, IssuedCredential{Credential: success.Credential})
		}
		for _, raw := range success.Credentials {
			var entry struct {
				Credential string `json:"credential"`
			}
			_ = json.Unmarshal(raw, &entry)
			credentials = append(credentials, IssuedCredential{Credential: entry.Credential, Raw: raw})
		}
		return updated, SubmissionOutcome{Kind: OutcomeSuccess, Credentials: credentials}, nil
	}

	var oauthErr oauth.ErrorResponse
	_ = json.Unmarshal(body, &oauthErr)

	if oauthErr.Code == oauth.InvalidProof {
		updated := authorized
		if oauthErr.CNonce != "" {
			updated = authorized.WithCNonce(oauthErr.CNonce, oauthErr.CNonceExpiresIn)
		}
		return updated, SubmissionOutcome{Kind: OutcomeInvalidProof, CNonce: oauthErr.CNonce, Description: oauthErr.Description}, nil
	}

	outcomeErr := OAuthError(statusCode, &oauthErr)
	return authorized, SubmissionOutcome{Kind: OutcomeFailed, Description: outcomeErr.Message, Err: outcomeErr}, nil
}

// DeferredOutcomeKind discriminates QueryForDeferred's result, per spec §4.7.
type DeferredOutcomeKind int

const (
	DeferredIssued DeferredOutcomeKind = iota
	DeferredPending
	DeferredFailed
)

// DeferredOutcome is the result of one QueryForDeferred call.
type DeferredOutcome struct {
	Kind        DeferredOutcomeKind
	Credentials []IssuedCredential
	Interval    *int
	Err         *Error
}

// QueryForDeferred implements spec §4.7's query_for_deferred: POSTs {transaction_id} to the
// deferred endpoint and classifies the response as Issued, IssuancePending, or Failed.
func (r *Requester) QueryForDeferred(ctx context.Context, authorized AuthorizedRequest, transactionID string) (AuthorizedRequest, DeferredOutcome, error) {
	if r.Metadata.DeferredCredentialEndpoint == "" {
		return authorized, DeferredOutcome{}, UnsupportedFeatureError("issuer does not advertise a deferred_credential_endpoint")
	}

	headers := http.Header{"Authorization": []string{authorized.AuthorizationHeaderValue()}}
	body := map[string]interface{}{"transaction_id": transactionID}

	send := func(dpopProof string) (*Response, error) {
		if dpopProof != "" {
			headers.Set(oauth.DPoPHeader, dpopProof)
		}
		return r.Fetcher.PostJSON(ctx, r.Metadata.DeferredCredentialEndpoint, body, headers)
	}

	var response *Response
	var err error
	if authorized.IsDPoP() && r.Config.DPoP != nil {
		response, err = r.Config.DPoP.Do(http.MethodPost, r.Metadata.DeferredCredentialEndpoint, authorized.AccessToken, nil, send)
	} else {
		response, err = send("")
	}
	if err != nil {
		return authorized, DeferredOutcome{}, err
	}

	if response.IsSuccess() {
		_, outcome, err := interpretCredentialResponse(authorized, response.StatusCode, response.Body)
		if err != nil {
			return authorized, DeferredOutcome{}, err
		}
		return authorized, DeferredOutcome{Kind: DeferredIssued, Credentials: outcome.Credentials}, nil
	}

	var oauthErr oauth.ErrorResponse
	_ = json.Unmarshal(response.Body, &oauthErr)
	if oauthErr.Code == oauth.IssuancePending {
		return authorized, DeferredOutcome{Kind: DeferredPending, Interval: oauthErr.Interval}, nil
	}

	outcomeErr := OAuthError(response.StatusCode, &oauthErr)
	return authorized, DeferredOutcome{Kind: DeferredFailed, Err: outcomeErr}, nil
}

// PollDeferred wraps QueryForDeferred with avast/retry-go/v4, honoring the issuer-returned
// interval between attempts and capped by maxAttempts, per SPEC_FULL.md §D.
func (r *Requester) PollDeferred(ctx context.Context, authorized AuthorizedRequest, transactionID string, maxAttempts uint) (DeferredOutcome, error) {
	var result DeferredOutcome
	defaultDelay := 5 * time.Second

	err := retry.Do(
		func() error {
			_, outcome, err := r.QueryForDeferred(ctx, authorized, transactionID)
			if err != nil {
				return err
			}
			result = outcome
			if outcome.Kind == DeferredPending {
				delay := defaultDelay
				if outcome.Interval != nil {
					delay = time.Duration(*outcome.Interval) * time.Second
				}
				return &pendingError{delay: delay}
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(maxAttempts),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			_, pending := err.(*pendingError)
			return pending
		}),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			if pending, ok := err.(*pendingError); ok {
				return pending.delay
			}
			return defaultDelay
		}),
	)
	if err != nil {
		if _, pending := err.(*pendingError); pending {
			return result, nil
		}
		return result, TransportError(err, "deferred credential polling did not complete")
	}
	return result, nil
}

// pendingError signals PollDeferred's retry loop to wait Interval before the next attempt.
// It is never surfaced as a failure: reaching maxAttempts while still pending just means the
// caller gets back the last DeferredPending outcome rather than an error.
type pendingError struct {
	delay time.Duration
}

func (e *pendingError) Error() string { return "issuance pending" }

// NotificationEvent is one of the event kinds the notification endpoint accepts, per spec §4.7.
type NotificationEvent string

const (
	CredentialAccepted NotificationEvent = "credential_accepted"
	CredentialFailure  NotificationEvent = "credential_failure"
	CredentialDeleted  NotificationEvent = "credential_deleted"
)

// Notify implements spec §4.7's notify: fire-and-forget semantically for the issuance flow as a
// whole (the caller may still inspect the returned error), POSTing to the notification endpoint.
func (r *Requester) Notify(ctx context.Context, authorized AuthorizedRequest, notificationID string, event NotificationEvent, description string) error {
	if r.Metadata.NotificationEndpoint == "" {
		return UnsupportedFeatureError("issuer does not advertise a notification_endpoint")
	}

	body := map[string]interface{}{"notification_id": notificationID, "event": string(event)}
	if description != "" {
		body["event_description"] = description
	}

	headers := http.Header{"Authorization": []string{authorized.AuthorizationHeaderValue()}}
	response, err := r.Fetcher.PostJSON(ctx, r.Metadata.NotificationEndpoint, body, headers)
	if err != nil {
		log.OpenID4VCI().WithError(err).Warn("credential notification failed")
		return err
	}
	if !response.IsSuccess() {
		return TransportError(nil, "notification endpoint returned HTTP %d", response.StatusCode)
	}
	return nil
}

// Refresh implements spec §4.7's refresh: exchanges authorized's refresh_token for a new
// AuthorizedRequest, preserving DPoP binding (the same DPoP Engine and token type carry over).
func (r *Requester) Refresh(ctx context.Context, authorized AuthorizedRequest, tokenEndpoint string, supportedAlgs []string) (*AuthorizedRequest, error) {
	if authorized.RefreshToken == nil {
		return nil, ValidationError("authorized request has no refresh_token")
	}

	form := url.Values{}
	form.Set(oauth.GrantTypeParam, oauth.RefreshTokenGrantType)
	form.Set(oauth.RefreshTokenParam, *authorized.RefreshToken)
	headers := http.Header{}
	if err := r.Config.ClientAuthenticator.Authenticate(ctx, tokenEndpoint, form, headers); err != nil {
		return nil, err
	}

	send := func(dpopProof string) (*Response, error) {
		if dpopProof != "" {
			headers.Set(oauth.DPoPHeader, dpopProof)
		}
		return r.Fetcher.PostForm(ctx, tokenEndpoint, form, headers)
	}

	var response *Response
	var err error
	if r.Config.DPoP != nil {
		response, err = r.Config.DPoP.Do(http.MethodPost, tokenEndpoint, "", supportedAlgs, send)
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

// GetFreshCNonce implements spec §4.7's nonce endpoint pre-fetch: an unauthenticated POST to
// the issuer's nonce_endpoint, used to upgrade NoProofRequired to ProofRequired before the
// first credential request when the token response carried no c_nonce.
func (r *Requester) GetFreshCNonce(ctx context.Context) (string, *int, error) {
	if r.Metadata.NonceEndpoint == "" {
		return "", nil, UnsupportedFeatureError("issuer does not advertise a nonce_endpoint")
	}

	response, err := r.Fetcher.PostForm(ctx, r.Metadata.NonceEndpoint, nil, nil)
	if err != nil {
		return "", nil, err
	}
	if !response.IsSuccess() {
		return "", nil, TransportError(nil, "nonce endpoint returned HTTP %d", response.StatusCode)
	}

	parsed, err := DecodeJSON[struct {
		CNonce          string `json:"c_nonce"`
		CNonceExpiresIn *int   `json:"c_nonce_expires_in,omitempty"`
	}](response)
	if err != nil {
		return "", nil, err
	}
	if parsed.CNonce == "" {
		return "", nil, TransportError(nil, "nonce endpoint response is missing c_nonce")
	}
	return parsed.CNonce, parsed.CNonceExpiresIn, nil
}
