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
	"crypto"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"

	"github.com/nuts-foundation/openid4vci-wallet/crypto/jwx"
	"github.com/nuts-foundation/openid4vci-wallet/oauth"
)

// AttestationProvider obtains the wallet attestation JWT a client presents alongside its PoP
// JWT under Attestation-Based Client Authentication. Its origin (a remote provider call, a
// locally cached attestation) is outside this library's scope, per spec §4.5.
type AttestationProvider interface {
	WalletAttestation(ctx context.Context, clientID string) (string, error)
}

// ClientAuthenticator attaches client authentication to an outgoing PAR or token request, per
// spec §4.5. There are exactly two variants: PublicClientAuthenticator and
// AttestedClientAuthenticator; both satisfy this interface.
type ClientAuthenticator interface {
	// ClientID returns the client_id to attach to authorization and token calls.
	ClientID() string
	// Authenticate adds this authenticator's form parameters and/or headers to an outgoing
	// request bound for targetURL (the PAR or token endpoint).
	Authenticate(ctx context.Context, targetURL string, form url.Values, headers http.Header) error
}

// PublicClientAuthenticator implements the public client variant: it attaches client_id to the
// request body and nothing else.
type PublicClientAuthenticator struct {
	clientID string
}

// NewPublicClientAuthenticator returns a ClientAuthenticator that identifies the wallet by a
// bare client_id, with no proof of possession.
func NewPublicClientAuthenticator(clientID string) *PublicClientAuthenticator {
	return &PublicClientAuthenticator{clientID: clientID}
}

func (a *PublicClientAuthenticator) ClientID() string { return a.clientID }

func (a *PublicClientAuthenticator) Authenticate(_ context.Context, _ string, form url.Values, _ http.Header) error {
	form.Set(oauth.ClientIDParam, a.clientID)
	return nil
}

// AttestedClientAuthenticator implements Attestation-Based Client Authentication: it obtains a
// wallet attestation JWT from attestationProvider and signs a PoP JWT with the client's own
// key, per spec §4.5. Both JWTs are sent as headers, never in the request body.
type AttestedClientAuthenticator struct {
	clientID             string
	attestationProvider  AttestationProvider
	popSigner            crypto.Signer
	popAlg               jwa.SignatureAlgorithm
}

// NewAttestedClientAuthenticator returns a ClientAuthenticator that authenticates with an
// external wallet attestation plus a client-signed proof of possession. The PoP signing
// algorithm is always derived from popSigner's key type.
func NewAttestedClientAuthenticator(clientID string, attestationProvider AttestationProvider, popSigner crypto.Signer) (*AttestedClientAuthenticator, error) {
	alg, err := jwx.AlgorithmFor(popSigner)
	if err != nil {
		return nil, CryptographicError(err, "could not determine client attestation PoP signing algorithm")
	}
	return &AttestedClientAuthenticator{
		clientID:            clientID,
		attestationProvider: attestationProvider,
		popSigner:           popSigner,
		popAlg:              alg,
	}, nil
}

func (a *AttestedClientAuthenticator) ClientID() string { return a.clientID }

// Authenticate fetches a wallet attestation JWT, signs a PoP JWT over {iss: client_id, aud:
// targetURL's origin, iat, exp, jti}, and attaches both as headers. It never
// writes client_id or any secret into the form body; per spec §4.5 bullet 2 attestation-based
// auth replaces, rather than supplements, form-level client identification.
func (a *AttestedClientAuthenticator) Authenticate(ctx context.Context, targetURL string, _ url.Values, headers http.Header) error {
	attestation, err := a.attestationProvider.WalletAttestation(ctx, a.clientID)
	if err != nil {
		return TransportError(err, "could not obtain wallet attestation for client %s", a.clientID)
	}

	audience, err := clientAttestationAudience(targetURL)
	if err != nil {
		return err
	}

	now := time.Now()
	claims := map[string]interface{}{
		"iss": a.clientID,
		"aud": audience,
		"iat": now.Unix(),
		"exp": now.Add(time.Minute).Unix(),
		"jti": uuid.NewString(),
	}
	popHeaders := map[string]interface{}{"typ": "oauth-client-attestation-pop+jwt"}
	if err := jwx.EmbedPublicJWK(popHeaders, a.popSigner, a.popAlg); err != nil {
		return CryptographicError(err, "could not embed client attestation PoP public key")
	}

	pop, err := jwx.Sign(a.popSigner, claims, popHeaders)
	if err != nil {
		return CryptographicError(err, "could not sign client attestation PoP JWT")
	}

	headers.Set(oauth.ClientAttestationHeader, attestation)
	headers.Set(oauth.ClientAttestationPoPHeader, pop)
	return nil
}

// clientAttestationAudience derives the PoP JWT's aud claim: targetURL's scheme and authority
// with no path. This equals the authorization server's issuer identifier only when that
// identifier has no path component; an issuer identifier with a path is not used.
func clientAttestationAudience(targetURL string) (string, error) {
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return "", ValidationError("invalid client attestation target URL %q: %v", targetURL, err)
	}
	return (&url.URL{Scheme: parsed.Scheme, Host: parsed.Host}).String(), nil
}
