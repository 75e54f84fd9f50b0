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
	"encoding/json"
	"time"

	"github.com/nuts-foundation/openid4vci-wallet/core"
	"github.com/nuts-foundation/openid4vci-wallet/oauth"
)

// AuthorizedRequest is the terminal state spec §3 names AuthorizedRequest: it always carries a
// token (invariant 2), and carries a non-expired CNonce exactly when the issuer signaled
// ProofRequired at token exchange or on a later credential/nonce-endpoint response. The core
// never mutates a value of this type; every operation that advances the session returns a new
// one (spec §4.8's value-returning state transition contract). It's JSON-tagged because a
// caller driving the authorization-code flow must persist it somewhere across the redirect
// round-trip; ExpiresAt/CNonceExpiresAt use core.RFC3339Time so that persisted form is stable
// across languages and doesn't depend on Go's default time.Time encoding.
type AuthorizedRequest struct {
	AccessToken          string            `json:"access_token"`
	TokenType            string            `json:"token_type"`
	ExpiresAt            *core.RFC3339Time `json:"expires_at,omitempty"`
	RefreshToken         *string           `json:"refresh_token,omitempty"`
	CNonce               *string           `json:"c_nonce,omitempty"`
	CNonceExpiresAt      *core.RFC3339Time `json:"c_nonce_expires_at,omitempty"`
	AuthorizationDetails json.RawMessage   `json:"authorization_details,omitempty"`
}

// ProofRequired reports whether the issuer requires a c_nonce-bound proof before it will issue
// a credential, i.e. whether this value is in the ProofRequired sub-state of spec §3.
func (r AuthorizedRequest) ProofRequired() bool {
	return r.CNonce != nil
}

// IsDPoP reports whether this token must be presented with a DPoP proof, per data-model
// invariant 5 (the authentication scheme on every outgoing request must match the granted type).
func (r AuthorizedRequest) IsDPoP() bool {
	return r.TokenType == oauth.DPoPTokenType
}

// WithCNonce returns a copy of r with a fresh c_nonce and, if provided, its expiry, replacing
// whatever c_nonce r previously carried. Per data-model invariant, a c_nonce returned by one
// response is consumed by at most the next credential request in the same session.
func (r AuthorizedRequest) WithCNonce(nonce string, expiresInSeconds *int) AuthorizedRequest {
	clone := r
	clone.CNonce = &nonce
	clone.CNonceExpiresAt = nil
	if expiresInSeconds != nil {
		expiry := core.RFC3339Time{Time: time.Now().Add(time.Duration(*expiresInSeconds) * time.Second)}
		clone.CNonceExpiresAt = &expiry
	}
	return clone
}

// authorizedRequestFromTokenResponse translates the wire TokenResponse shape into the domain
// AuthorizedRequest, per spec §4.6 bullet 3: a present c_nonce puts the session in the
// ProofRequired sub-state, its absence in NoProofRequired.
func authorizedRequestFromTokenResponse(wire oauth.TokenResponse) *AuthorizedRequest {
	result := &AuthorizedRequest{
		AccessToken:          wire.AccessToken,
		TokenType:            wire.TokenType,
		RefreshToken:         wire.RefreshToken,
		AuthorizationDetails: wire.AuthorizationDetails,
	}
	if wire.ExpiresIn != nil {
		expiry := core.RFC3339Time{Time: time.Now().Add(time.Duration(*wire.ExpiresIn) * time.Second)}
		result.ExpiresAt = &expiry
	}
	if wire.CNonce != nil {
		result.CNonce = wire.CNonce
		if wire.CNonceExpiresIn != nil {
			expiry := core.RFC3339Time{Time: time.Now().Add(time.Duration(*wire.CNonceExpiresIn) * time.Second)}
			result.CNonceExpiresAt = &expiry
		}
	}
	return result
}

// AuthorizationHeaderValue returns the Authorization header value to attach to a request
// presenting this token, selecting the Bearer or DPoP scheme per TokenType.
func (r AuthorizedRequest) AuthorizationHeaderValue() string {
	if r.IsDPoP() {
		return "DPoP " + r.AccessToken
	}
	return "Bearer " + r.AccessToken
}
