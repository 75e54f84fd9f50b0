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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwe"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// ResponseEncryptionSpec is an ephemeral key pair the wallet offers a credential issuer for
// encrypting its response, per spec §3: "jwk is sent to issuer, private key decrypts." The
// private key never leaves this process; Zeroize must be called once the response (if any) has
// been decrypted, per spec §9's "must zeroize it after decryption."
type ResponseEncryptionSpec struct {
	JWK        jwk.Key
	privateKey *ecdsa.PrivateKey
	Alg        jwa.KeyEncryptionAlgorithm
	Enc        jwa.ContentEncryptionAlgorithm
}

// ResponseEncryptionProvider obtains a ResponseEncryptionSpec suitable for an issuer's
// advertised response-encryption capabilities. The default, NewEphemeralResponseEncryption,
// generates a fresh P-256 key on every call; a caller wanting key reuse or a different curve
// supplies their own.
type ResponseEncryptionProvider func(capabilities *ResponseEncryptionMetadata) (*ResponseEncryptionSpec, error)

// NewEphemeralResponseEncryption generates a fresh ECDH-ES capable key pair, selecting alg/enc
// from capabilities' advertised sets. Per spec §9, the library "must refuse encryption
// algorithms outside issuer's advertised set" — an issuer advertising neither ECDH-ES nor
// ECDH-ES+A128KW is UnsupportedFeature, since this library only ever generates EC key material.
func NewEphemeralResponseEncryption(capabilities *ResponseEncryptionMetadata) (*ResponseEncryptionSpec, error) {
	alg, err := selectKeyEncryptionAlgorithm(capabilities.AlgValuesSupported)
	if err != nil {
		return nil, err
	}
	enc, err := selectContentEncryptionAlgorithm(capabilities.EncValuesSupported)
	if err != nil {
		return nil, err
	}

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, CryptographicError(err, "could not generate ephemeral response encryption key")
	}
	publicJWK, err := jwk.FromRaw(&privateKey.PublicKey)
	if err != nil {
		return nil, CryptographicError(err, "could not build ephemeral response encryption JWK")
	}
	if err := publicJWK.Set(jwk.AlgorithmKey, alg); err != nil {
		return nil, CryptographicError(err, "could not set ephemeral response encryption JWK algorithm")
	}

	return &ResponseEncryptionSpec{JWK: publicJWK, privateKey: privateKey, Alg: alg, Enc: enc}, nil
}

func selectKeyEncryptionAlgorithm(advertised []string) (jwa.KeyEncryptionAlgorithm, error) {
	for _, candidate := range []jwa.KeyEncryptionAlgorithm{jwa.ECDH_ES, jwa.ECDH_ES_A128KW} {
		for _, a := range advertised {
			if a == candidate.String() {
				return candidate, nil
			}
		}
	}
	return "", UnsupportedFeatureError("issuer advertises no EC-based response encryption algorithm in %v", advertised)
}

func selectContentEncryptionAlgorithm(advertised []string) (jwa.ContentEncryptionAlgorithm, error) {
	for _, candidate := range []jwa.ContentEncryptionAlgorithm{jwa.A128GCM, jwa.A256GCM} {
		for _, a := range advertised {
			if a == candidate.String() {
				return candidate, nil
			}
		}
	}
	return "", UnsupportedFeatureError("issuer advertises no supported content encryption algorithm in %v", advertised)
}

// Decrypt decrypts a JWE credential response compact serialization with this spec's private key.
func (s *ResponseEncryptionSpec) Decrypt(compact []byte) ([]byte, error) {
	plaintext, err := jwe.Decrypt(compact, jwe.WithKey(s.Alg, s.privateKey))
	if err != nil {
		return nil, CryptographicError(err, "could not decrypt credential response")
	}
	return plaintext, nil
}

// Zeroize clears the ephemeral private key's scalar in place. Per spec §9, the library "must
// never log the private key, must zeroize it after decryption." Callers must not use s after
// calling Zeroize.
func (s *ResponseEncryptionSpec) Zeroize() {
	if s.privateKey != nil && s.privateKey.D != nil {
		s.privateKey.D.SetInt64(0)
	}
	s.privateKey = nil
}
