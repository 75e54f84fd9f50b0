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
	"crypto/x509"
	"encoding/json"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/nuts-foundation/openid4vci-wallet/core"
)

// DisplayMetadata carries a locale-specific display name, as advertised by an issuer for itself
// or for one of its credential configurations.
type DisplayMetadata struct {
	Name   string `json:"name,omitempty"`
	Locale string `json:"locale,omitempty"`
}

// ProofTypeSupported describes one proof type (e.g. "jwt") a credential configuration accepts,
// and the signing algorithms it will verify.
type ProofTypeSupported struct {
	SigningAlgValuesSupported []string `json:"proof_signing_alg_values_supported,omitempty"`
}

// CredentialConfigurationSupported is one entry of credential_configurations_supported: the
// issuer-declared template identifying a specific credential shape. Format-specific fields
// (mdoc doctype, sd-jwt vct, claims) are not modeled here — they're decoded by the matching
// entry in the format profile registry (see profile.go) from Raw.
type CredentialConfigurationSupported struct {
	Format                                string                         `json:"format"`
	Scope                                 string                         `json:"scope,omitempty"`
	CryptographicBindingMethodsSupported  []string                       `json:"cryptographic_binding_methods_supported,omitempty"`
	CredentialSigningAlgValuesSupported   []string                       `json:"credential_signing_alg_values_supported,omitempty"`
	ProofTypesSupported                   map[string]ProofTypeSupported  `json:"proof_types_supported,omitempty"`
	Display                               []DisplayMetadata              `json:"display,omitempty"`
	Raw                                    json.RawMessage                `json:"-"`
}

// UnmarshalJSON decodes the common fields and keeps the whole configuration object in Raw.
func (c *CredentialConfigurationSupported) UnmarshalJSON(data []byte) error {
	type plain CredentialConfigurationSupported
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*c = CredentialConfigurationSupported(decoded)
	c.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// ResponseEncryptionMetadata is the issuer's credential_response_encryption capability block.
type ResponseEncryptionMetadata struct {
	AlgValuesSupported []string `json:"alg_values_supported"`
	EncValuesSupported []string `json:"enc_values_supported"`
	EncryptionRequired bool     `json:"encryption_required,omitempty"`
}

// CredentialIssuerMetadata is the (possibly signed-metadata-merged) decoded result of
// GET {issuer}/.well-known/openid-credential-issuer.
type CredentialIssuerMetadata struct {
	CredentialIssuer                  CredentialIssuerId                          `json:"credential_issuer"`
	AuthorizationServers              []string                                    `json:"authorization_servers,omitempty"`
	CredentialEndpoint                string                                      `json:"credential_endpoint"`
	NonceEndpoint                     string                                      `json:"nonce_endpoint,omitempty"`
	DeferredCredentialEndpoint        string                                      `json:"deferred_credential_endpoint,omitempty"`
	NotificationEndpoint              string                                      `json:"notification_endpoint,omitempty"`
	BatchCredentialEndpoint           string                                      `json:"batch_credential_endpoint,omitempty"`
	CredentialConfigurationsSupported map[string]CredentialConfigurationSupported `json:"credential_configurations_supported"`
	CredentialResponseEncryption      *ResponseEncryptionMetadata                 `json:"credential_response_encryption,omitempty"`
	Display                           []DisplayMetadata                          `json:"display,omitempty"`
}

// PrimaryAuthorizationServer returns the first authorization server the issuer advertises, or
// the issuer id itself if the issuer is its own AS (authorization_servers omitted).
func (m CredentialIssuerMetadata) PrimaryAuthorizationServer() string {
	if len(m.AuthorizationServers) > 0 {
		return m.AuthorizationServers[0]
	}
	return string(m.CredentialIssuer)
}

// SupportsConfiguration reports whether id names a configuration this issuer supports.
func (m CredentialIssuerMetadata) SupportsConfiguration(id string) bool {
	_, ok := m.CredentialConfigurationsSupported[id]
	return ok
}

// TrustAnchors bounds the keys a signed_metadata JWT may be verified against: a pinned JWK
// set, a JWKS URL resolved lazily through the Fetcher, or a TrustStore validating an x5c
// certificate chain carried in the JWS header.
type TrustAnchors struct {
	Keys       jwk.Set
	JWKSURL    string
	TrustStore *core.TrustStore
}

type policyMode int

const (
	policyIgnoreSigned policyMode = iota
	policyRequireSigned
	policyPreferSigned
)

// MetadataPolicy configures how signed_metadata on credential issuer metadata is handled.
type MetadataPolicy struct {
	mode  policyMode
	trust TrustAnchors
}

// IgnoreSigned uses the unsigned JSON body as-is, even if signed_metadata is present.
func IgnoreSigned() MetadataPolicy {
	return MetadataPolicy{mode: policyIgnoreSigned}
}

// RequireSigned verifies signed_metadata against trust and fails closed (MetadataInvalid) if
// it's missing, unverifiable, or fails its claim checks.
func RequireSigned(trust TrustAnchors) MetadataPolicy {
	return MetadataPolicy{mode: policyRequireSigned, trust: trust}
}

// PreferSigned verifies signed_metadata against trust like RequireSigned, but falls back to
// the unsigned body if signed_metadata is absent or fails verification.
func PreferSigned(trust TrustAnchors) MetadataPolicy {
	return MetadataPolicy{mode: policyPreferSigned, trust: trust}
}

// IssuerMetadataResolver resolves a CredentialIssuerId into its CredentialIssuerMetadata.
type IssuerMetadataResolver struct {
	Fetcher Fetcher
}

// Resolve fetches and, per policy, verifies the credential issuer's metadata.
func (r *IssuerMetadataResolver) Resolve(ctx context.Context, issuer CredentialIssuerId, policy MetadataPolicy) (*CredentialIssuerMetadata, error) {
	response, err := r.Fetcher.Get(ctx, issuer.WellKnownMetadataURL(), nil)
	if err != nil {
		return nil, err
	}
	if !response.IsSuccess() {
		return nil, MetadataInvalidError(nil, "issuer metadata endpoint returned HTTP %d", response.StatusCode)
	}

	var envelope struct {
		SignedMetadata string `json:"signed_metadata,omitempty"`
	}
	if err := json.Unmarshal(response.Body, &envelope); err != nil {
		return nil, MetadataInvalidError(err, "could not decode issuer metadata")
	}

	if envelope.SignedMetadata == "" || policy.mode == policyIgnoreSigned {
		return decodeIssuerMetadata(response.Body, issuer)
	}

	signedPayload, err := verifySignedMetadata(ctx, r.Fetcher, envelope.SignedMetadata, string(issuer), policy.trust)
	if err != nil {
		if policy.mode == policyPreferSigned {
			return decodeIssuerMetadata(response.Body, issuer)
		}
		return nil, err
	}

	merged, err := mergeJSON(response.Body, signedPayload)
	if err != nil {
		return nil, MetadataInvalidError(err, "could not merge signed metadata over unsigned metadata")
	}
	return decodeIssuerMetadata(merged, issuer)
}

func decodeIssuerMetadata(body []byte, issuer CredentialIssuerId) (*CredentialIssuerMetadata, error) {
	var metadata CredentialIssuerMetadata
	if err := json.Unmarshal(body, &metadata); err != nil {
		return nil, MetadataInvalidError(err, "could not decode issuer metadata")
	}
	if metadata.CredentialEndpoint == "" {
		return nil, MetadataInvalidError(nil, "issuer metadata is missing credential_endpoint")
	}
	if metadata.CredentialIssuer == "" {
		metadata.CredentialIssuer = issuer
	}
	if string(metadata.CredentialIssuer) != string(issuer) {
		return nil, MetadataInvalidError(nil, "issuer metadata credential_issuer %q does not match requested issuer %q", metadata.CredentialIssuer, issuer)
	}
	return &metadata, nil
}

// verifySignedMetadata verifies the signed_metadata JWT's signature against trust, then its
// claims (iss == issuer, sub == issuer, iat present, exp in the future if present), and returns
// its raw JSON payload for merging over the unsigned metadata.
func verifySignedMetadata(ctx context.Context, fetcher Fetcher, compact string, issuer string, trust TrustAnchors) ([]byte, error) {
	message, err := jws.ParseString(compact)
	if err != nil {
		return nil, MetadataInvalidError(err, "signed_metadata is not a valid JWS")
	}
	if len(message.Signatures()) != 1 {
		return nil, MetadataInvalidError(nil, "signed_metadata must have exactly one signature")
	}
	headers := message.Signatures()[0].ProtectedHeaders()

	key, err := resolveTrustedKey(ctx, fetcher, headers, trust)
	if err != nil {
		return nil, MetadataInvalidError(err, "could not resolve a trusted key for signed_metadata")
	}

	token, err := jwt.ParseString(compact, jwt.WithKey(headers.Algorithm(), key))
	if err != nil {
		return nil, MetadataInvalidError(err, "signed_metadata signature verification failed")
	}

	if token.Issuer() != issuer {
		return nil, MetadataInvalidError(nil, "signed_metadata iss %q does not match issuer %q", token.Issuer(), issuer)
	}
	if subjects, _ := token.Get("sub"); subjects != issuer {
		return nil, MetadataInvalidError(nil, "signed_metadata sub does not match issuer")
	}
	if token.IssuedAt().IsZero() {
		return nil, MetadataInvalidError(nil, "signed_metadata is missing iat")
	}
	if !token.Expiration().IsZero() && token.Expiration().Before(time.Now()) {
		return nil, MetadataInvalidError(nil, "signed_metadata has expired")
	}

	return json.Marshal(token.PrivateClaims())
}

// resolveTrustedKey finds the key that should verify a signed_metadata JWS: an x5c chain
// validated against trust.TrustStore, a pinned key from trust.Keys matched by kid, or a key
// fetched from trust.JWKSURL matched by kid.
func resolveTrustedKey(ctx context.Context, fetcher Fetcher, headers jws.Headers, trust TrustAnchors) (interface{}, error) {
	if chain := headers.X509CertChain(); chain != nil && chain.Len() > 0 && trust.TrustStore != nil {
		leafAny, ok := chain.Get(0)
		if !ok {
			return nil, ValidationError("empty x5c chain")
		}
		leaf, err := x509.ParseCertificate(leafAny)
		if err != nil {
			return nil, ValidationError("could not parse x5c leaf certificate: %v", err)
		}
		if _, err := leaf.Verify(x509.VerifyOptions{Roots: trust.TrustStore.CertPool}); err != nil {
			return nil, ValidationError("x5c chain does not lead to a trusted root: %v", err)
		}
		return leaf.PublicKey, nil
	}

	kid := headers.KeyID()
	if trust.Keys != nil {
		if key, ok := trust.Keys.LookupKeyID(kid); ok {
			return key, nil
		}
	}
	if trust.JWKSURL != "" {
		response, err := fetcher.Get(ctx, trust.JWKSURL, nil)
		if err != nil {
			return nil, err
		}
		if !response.IsSuccess() {
			return nil, ValidationError("jwks endpoint returned HTTP %d", response.StatusCode)
		}
		set, err := jwk.Parse(response.Body)
		if err != nil {
			return nil, ValidationError("could not parse JWKS response: %v", err)
		}
		if key, ok := set.LookupKeyID(kid); ok {
			return key, nil
		}
	}
	return nil, ValidationError("no trusted key found for kid %q", kid)
}

// mergeJSON shallow-merges signed JSON object fields over unsigned JSON object fields, with
// signed fields winning, per spec §4.2 "merge signed claims over unsigned (signed wins)".
func mergeJSON(unsigned []byte, signed []byte) ([]byte, error) {
	var unsignedMap map[string]interface{}
	if err := json.Unmarshal(unsigned, &unsignedMap); err != nil {
		return nil, err
	}
	var signedMap map[string]interface{}
	if err := json.Unmarshal(signed, &signedMap); err != nil {
		return nil, err
	}
	for k, v := range signedMap {
		unsignedMap[k] = v
	}
	return json.Marshal(unsignedMap)
}
