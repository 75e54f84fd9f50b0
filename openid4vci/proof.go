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
	"time"

	wcrypto "github.com/nuts-foundation/openid4vci-wallet/crypto"
	"github.com/nuts-foundation/openid4vci-wallet/crypto/jwx"
)

// proofJWTType is the typ header every proof-of-possession JWT this library signs carries,
// per spec §3's Proof contract.
const proofJWTType = "openid4vci-proof+jwt"

// ProofSigner produces one signed proof-of-possession JWT, binding clientID (iss),
// credentialIssuer (aud), and the current c_nonce, per spec §3: "signed over {typ:
// openid4vci-proof+jwt, alg, jwk|kid, iss: client_id, aud: credential_issuer_id, iat, nonce:
// c_nonce?}". A session typically holds one ProofSigner per key it wants bound into an issued
// credential; RequestBatchCredential accepts several to produce a multi-key batch.
type ProofSigner interface {
	SignProof(ctx context.Context, clientID string, credentialIssuer CredentialIssuerId, nonce string) (string, error)
}

// KeyProofSigner signs proofs with a bare crypto.Signer, embedding its public key as the jwk
// header. Use this when the holder key has no stable identifier the issuer could reference.
type KeyProofSigner struct {
	Signer crypto.Signer
}

// NewKeyProofSigner returns a ProofSigner embedding signer's public key in every proof.
func NewKeyProofSigner(signer crypto.Signer) *KeyProofSigner {
	return &KeyProofSigner{Signer: signer}
}

func (s *KeyProofSigner) SignProof(_ context.Context, clientID string, credentialIssuer CredentialIssuerId, nonce string) (string, error) {
	alg, err := jwx.AlgorithmFor(s.Signer)
	if err != nil {
		return "", CryptographicError(err, "could not determine proof signing algorithm")
	}
	claims := proofClaims(clientID, credentialIssuer, nonce)
	headers := map[string]interface{}{"typ": proofJWTType}
	if err := jwx.EmbedPublicJWK(headers, s.Signer, alg); err != nil {
		return "", CryptographicError(err, "could not embed proof public key")
	}
	signed, err := jwx.Sign(s.Signer, claims, headers)
	if err != nil {
		return "", CryptographicError(err, "could not sign proof JWT")
	}
	return signed, nil
}

// KIDProofSigner signs proofs through a wcrypto.JWTSigner keyed by a stable kid, for holders
// whose key the issuer can reference by identifier rather than by embedded JWK.
type KIDProofSigner struct {
	Signer wcrypto.JWTSigner
	KID    string
}

// NewKIDProofSigner returns a ProofSigner that signs through signer, referencing kid rather
// than embedding a public key.
func NewKIDProofSigner(signer wcrypto.JWTSigner, kid string) *KIDProofSigner {
	return &KIDProofSigner{Signer: signer, KID: kid}
}

func (s *KIDProofSigner) SignProof(ctx context.Context, clientID string, credentialIssuer CredentialIssuerId, nonce string) (string, error) {
	claims := proofClaims(clientID, credentialIssuer, nonce)
	headers := map[string]interface{}{"typ": proofJWTType, "kid": s.KID}
	signed, err := s.Signer.SignJWT(ctx, claims, headers, s.KID)
	if err != nil {
		return "", CryptographicError(err, "could not sign proof JWT")
	}
	return signed, nil
}

// proofClaims builds the claim set spec §3 requires of a Proof JWT: iss, aud, iat, and nonce
// when the session has a c_nonce to bind. No jti — unlike a DPoPProof, a Proof is not itself
// required to be one-shot; it's the c_nonce it carries that the issuer consumes once.
func proofClaims(clientID string, credentialIssuer CredentialIssuerId, nonce string) map[string]interface{} {
	claims := map[string]interface{}{
		"iss": clientID,
		"aud": string(credentialIssuer),
		"iat": time.Now().Unix(),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	return claims
}
