/*
 * Copyright (C) 2023 Nuts community
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

// Package pkce generates and validates RFC 7636 Proof Key for Code Exchange
// material. The wallet only ever produces the S256 challenge method.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// verifierLength is the number of random bytes used to build the code_verifier. Base64url
// encoding of 32 bytes yields a 43 character verifier, the minimum RFC 7636 allows.
const verifierLength = 32

// minVerifierLength and maxVerifierLength bound a valid RFC 7636 code_verifier.
const (
	minVerifierLength = 43
	maxVerifierLength = 128
)

// ErrInvalidVerifier is returned when a code_verifier doesn't meet the RFC 7636 length bounds.
var ErrInvalidVerifier = errors.New("invalid pkce verifier")

// Params holds a generated PKCE verifier and its S256 challenge. The Verifier must never leave
// the process; it's sent to the token endpoint exactly once, at code exchange.
type Params struct {
	Verifier        string
	Challenge       string
	ChallengeMethod string
}

// Generate creates a fresh, random PKCE verifier and its S256 challenge.
func Generate() (Params, error) {
	raw := make([]byte, verifierLength)
	if _, err := rand.Read(raw); err != nil {
		return Params{}, err
	}
	verifier := base64.RawURLEncoding.EncodeToString(raw)

	return Params{
		Verifier:        verifier,
		Challenge:       challenge(verifier),
		ChallengeMethod: "S256",
	}, nil
}

// challenge computes the S256 code_challenge for a verifier: BASE64URL-ENCODE(SHA256(verifier)).
func challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Validate checks that verifier is within the RFC 7636 length bounds and, if challenge is
// non-empty, that it is exactly the S256 challenge of verifier. The Issuance Authorizer calls
// this at token exchange with an empty challenge, so there only the length bounds are checked.
func Validate(verifier string, expectedChallenge string) error {
	if len(verifier) < minVerifierLength || len(verifier) > maxVerifierLength {
		return ErrInvalidVerifier
	}
	if expectedChallenge != "" && challenge(verifier) != expectedChallenge {
		return ErrInvalidVerifier
	}
	return nil
}
