/*
 * Nuts node
 * Copyright (C) 2021 Nuts community
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

// Package jwx wraps lestrrat-go/jwx/v2 to sign the proof, DPoP and PoP JWTs this library
// produces. It never holds a private key itself; every Sign call takes a crypto.Signer and
// the caller's own claim/header maps.
package jwx

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// SupportedAlgorithms lists the asymmetric JWS algorithms this library will sign or accept.
// Symmetric algorithms (the HMAC family) and "none" are deliberately excluded: every signer in
// this library wraps a crypto.Signer holding an asymmetric private key.
var SupportedAlgorithms = []jwa.SignatureAlgorithm{
	jwa.ES256, jwa.ES384, jwa.ES512,
	jwa.RS256, jwa.RS384, jwa.RS512,
	jwa.PS256, jwa.PS384, jwa.PS512,
	jwa.EdDSA,
}

// ErrUnsupportedSigningKey is returned when AlgorithmFor doesn't recognize the key's type.
var ErrUnsupportedSigningKey = errors.New("unsupported signing key type")

// AlgorithmFor picks the JWS algorithm matching the given signer's key type: ES256/384/512 for
// the matching NIST curve, EdDSA for Ed25519, RS256 for RSA. Callers with an issuer-advertised
// algorithm list should intersect it against this value rather than assume it's acceptable.
func AlgorithmFor(signer crypto.Signer) (jwa.SignatureAlgorithm, error) {
	switch key := signer.Public().(type) {
	case *ecdsa.PublicKey:
		switch key.Curve.Params().BitSize {
		case 256:
			return jwa.ES256, nil
		case 384:
			return jwa.ES384, nil
		case 521:
			return jwa.ES512, nil
		default:
			return "", fmt.Errorf("%w: unsupported EC curve size %d", ErrUnsupportedSigningKey, key.Curve.Params().BitSize)
		}
	case ed25519.PublicKey:
		return jwa.EdDSA, nil
	case *rsa.PublicKey:
		return jwa.RS256, nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedSigningKey, signer.Public())
	}
}

// Sign builds a compact JWS over claims, with alg set automatically from signer's key type and any
// caller-supplied protected headers (typ, kid, jwk, ...) layered on top. It does not add a jwk
// header itself; callers that embed one use EmbedPublicJWK first. It's the building block the
// proof and attestation PoP JWT constructors in package openid4vci use.
func Sign(signer crypto.Signer, claims map[string]interface{}, headers map[string]interface{}) (string, error) {
	alg, err := AlgorithmFor(signer)
	if err != nil {
		return "", err
	}

	token := jwt.New()
	for k, v := range claims {
		if err := token.Set(k, v); err != nil {
			return "", fmt.Errorf("invalid claim %s: %w", k, err)
		}
	}

	protected := jws.NewHeaders()
	for k, v := range headers {
		if err := protected.Set(k, v); err != nil {
			return "", fmt.Errorf("invalid header %s: %w", k, err)
		}
	}

	signed, err := jwt.Sign(token, jwt.WithKey(alg, signer, jws.WithProtectedHeaders(protected)))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// EmbedPublicJWK sets the jwk header to the public key matching signer, tagged with alg.
// Proof and DPoP JWTs embed the public key directly rather than referencing a kid, since the
// issuer/AS has no other way to learn the wallet's ephemeral or session key.
func EmbedPublicJWK(headers map[string]interface{}, signer crypto.Signer, alg jwa.SignatureAlgorithm) error {
	publicJWK, err := jwk.FromRaw(signer.Public())
	if err != nil {
		return err
	}
	if err := publicJWK.Set(jwk.AlgorithmKey, alg); err != nil {
		return err
	}
	headers[jws.JWKKey] = publicJWK
	return nil
}
