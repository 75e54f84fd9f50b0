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
	"crypto"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"

	"github.com/lestrrat-go/jwx/v2/jwa"

	"github.com/nuts-foundation/openid4vci-wallet/crypto/dpop"
	"github.com/nuts-foundation/openid4vci-wallet/crypto/jwx"
	"github.com/nuts-foundation/openid4vci-wallet/log"
	"github.com/nuts-foundation/openid4vci-wallet/oauth"
)

// DPoPEngine constructs DPoP proofs and owns the current server-provided nonce cell, per
// spec §4.4. One Engine is shared by every session bound to the same issuer+AS pair; its nonce
// updates are serialized by mu so concurrent sessions don't race on the shared cell.
type DPoPEngine struct {
	signer crypto.Signer

	mu    sync.Mutex
	nonce string
}

// NewDPoPEngine returns an Engine that signs proofs with signer.
func NewDPoPEngine(signer crypto.Signer) *DPoPEngine {
	return &DPoPEngine{signer: signer}
}

// CurrentNonce returns the nonce cell's current value, read at proof-construction time.
func (e *DPoPEngine) CurrentNonce() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nonce
}

// UpdateNonce sets the nonce cell. Called unconditionally whenever any response, success or
// failure, carries a DPoP-Nonce header.
func (e *DPoPEngine) UpdateNonce(nonce string) {
	if nonce == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nonce = nonce
}

// algorithm picks a DPoP signing algorithm: the signer's natural algorithm, if the AS/issuer
// advertises it or advertises nothing (an issuer silent on dpop_signing_alg_values_supported
// gets whatever the wallet's key naturally produces). A non-empty advertised list without that
// algorithm is an UnsupportedFeature error.
func (e *DPoPEngine) algorithm(supportedAlgs []string) (jwa.SignatureAlgorithm, error) {
	alg, err := jwx.AlgorithmFor(e.signer)
	if err != nil {
		return "", CryptographicError(err, "could not determine DPoP signing algorithm")
	}
	if len(supportedAlgs) == 0 {
		return alg, nil
	}
	for _, supported := range supportedAlgs {
		if supported == alg.String() {
			return alg, nil
		}
	}
	return "", UnsupportedFeatureError("DPoP signer produces %s, but issuer only supports %v", alg, supportedAlgs)
}

// BuildProof constructs and signs one DPoP proof JWT for method/url, binding accessToken (if
// non-empty) via the ath claim, and the current nonce (if set).
func (e *DPoPEngine) BuildProof(method string, rawURL string, accessToken string, supportedAlgs []string) (string, error) {
	alg, err := e.algorithm(supportedAlgs)
	if err != nil {
		return "", err
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "", ValidationError("invalid DPoP request URL %q: %v", rawURL, err)
	}
	request := http.Request{Method: method, URL: parsedURL}
	proof := dpop.New(request)
	if accessToken != "" {
		*proof = proof.GenerateProof(accessToken)
	}
	if nonce := e.CurrentNonce(); nonce != "" {
		_ = proof.Token.Set("nonce", nonce)
	}

	signed, err := proof.Sign(e.signer, alg)
	if err != nil {
		return "", CryptographicError(err, "could not sign DPoP proof")
	}
	return signed, nil
}

// Do sends one DPoP-protected request via send, which receives the DPoP proof header value to
// attach. Per spec §4.4 step 3, if the response signals use_dpop_nonce or invalid_dpop_proof
// together with a fresh DPoP-Nonce header, Do rebuilds the proof with the new nonce and retries
// exactly once; a second such signal is fatal. Any DPoP-Nonce header seen, on any response,
// updates the nonce cell first.
func (e *DPoPEngine) Do(method string, requestURL string, accessToken string, supportedAlgs []string, send func(dpopProof string) (*Response, error)) (*Response, error) {
	proof, err := e.BuildProof(method, requestURL, accessToken, supportedAlgs)
	if err != nil {
		return nil, err
	}
	response, err := send(proof)
	if err != nil {
		return nil, err
	}
	e.UpdateNonce(response.DPoPNonce())

	if !signalsNonceRetry(response) {
		return response, nil
	}
	if response.DPoPNonce() == "" {
		return nil, OAuthError(response.StatusCode, dpopErrorBody(response))
	}

	log.DPoP().Debug("retrying request after use_dpop_nonce")
	proof, err = e.BuildProof(method, requestURL, accessToken, supportedAlgs)
	if err != nil {
		return nil, err
	}
	retried, err := send(proof)
	if err != nil {
		return nil, err
	}
	e.UpdateNonce(retried.DPoPNonce())

	if signalsNonceRetry(retried) {
		return nil, OAuthError(retried.StatusCode, dpopErrorBody(retried))
	}
	return retried, nil
}

func signalsNonceRetry(response *Response) bool {
	if response.IsSuccess() {
		return false
	}
	body := dpopErrorBody(response)
	return body.Code == oauth.UseDPoPNonce || body.Code == oauth.InvalidDPoPProof
}

func dpopErrorBody(response *Response) *oauth.ErrorResponse {
	var body oauth.ErrorResponse
	_ = json.Unmarshal(response.Body, &body)
	return &body
}

