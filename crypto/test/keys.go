/*
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
 *
 */

// Package test holds key generation helpers for test suites; the crypto/jwx
// tests use them.
package test

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
)

// GenerateRSAKey generates a 2048 bit RSA key, for exercising proof/PoP JWTs signed with RS256.
func GenerateRSAKey() *rsa.PrivateKey {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return privateKey
}

// GenerateECKey generates a P-256 EC key, the wallet's default proof/DPoP signing key type.
func GenerateECKey() *ecdsa.PrivateKey {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic(err)
	}
	return key
}

// KIDNamingFunc generates a kid for a freshly generated key. Tests that don't care about
// the kid value can use StringNamingFunc.
type KIDNamingFunc func(key crypto.PublicKey) (string, error)

// StringNamingFunc returns a KIDNamingFunc that always returns the given name, regardless of key.
func StringNamingFunc(name string) KIDNamingFunc {
	return func(_ crypto.PublicKey) (string, error) {
		return name, nil
	}
}

// ErrorNamingFunc returns a KIDNamingFunc that always fails with err, for exercising key-creation error paths.
func ErrorNamingFunc(err error) KIDNamingFunc {
	return func(_ crypto.PublicKey) (string, error) {
		return "", err
	}
}
