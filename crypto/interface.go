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

package crypto

import (
	"context"
	"crypto"
	"errors"
)

// ErrKeyNotFound is returned when the key should exist but does not.
var ErrKeyNotFound = errors.New("key not found")

// KIDNamingFunc is a function passed to a KeyCreator which generates the kid for the pub/priv key.
type KIDNamingFunc func(key crypto.PublicKey) (string, error)

// KeyCreator is the interface for creating key pairs. The wallet never owns key storage itself;
// it's handed a KeyCreator/JWTSigner by the application embedding it.
type KeyCreator interface {
	New(namingFunc KIDNamingFunc) (Key, error)
}

// JWTSigner is the interface the wallet uses to sign proof, DPoP and PoP JWTs.
// Unlike a bare claims-and-kid signer, proof JWTs need caller-controlled protected headers
// (typ, jwk, trust_chain) in addition to the claim set, so the header map travels alongside
// the claims rather than being inferred from the key.
type JWTSigner interface {
	// SignJWT creates a signed JWT using the indicated key, claim set and protected headers.
	// Returns ErrKeyNotFound when the indicated private key is not present.
	SignJWT(ctx context.Context, claims map[string]interface{}, headers map[string]interface{}, kid string) (string, error)
}

// Key is a helper interface which holds a crypto.Signer, KID and public key for a key.
type Key interface {
	// Signer returns a crypto.Signer.
	Signer() crypto.Signer
	// KID returns the unique ID for this key.
	KID() string
	// Public returns the public key. This is a short-hand for Signer().Public()
	Public() crypto.PublicKey
}
