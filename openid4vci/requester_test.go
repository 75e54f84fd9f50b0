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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuts-foundation/openid4vci-wallet/oauth"
)

func testMetadata(credentialEndpoint string) *CredentialIssuerMetadata {
	return &CredentialIssuerMetadata{
		CredentialIssuer:   CredentialIssuerId("https://issuer.example"),
		CredentialEndpoint: credentialEndpoint,
		CredentialConfigurationsSupported: map[string]CredentialConfigurationSupported{
			"cfg-1": {Format: FormatMsoMdoc},
		},
	}
}

func testAuthorized(cNonce string) AuthorizedRequest {
	authorized := AuthorizedRequest{AccessToken: "at-1", TokenType: oauth.BearerTokenType}
	if cNonce != "" {
		authorized = authorized.WithCNonce(cNonce, nil)
	}
	return authorized
}

func TestRequester_RequestCredential_success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "cfg-1", body["credential_configuration_id"])
		proof, ok := body["proof"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "jwt", proof["proof_type"])

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"credential": "cred-1",
			"c_nonce":    "n-2",
		})
	}))
	t.Cleanup(server.Close)

	requester := NewRequester(NewHTTPFetcher(http.DefaultClient), NewConfig(NewPublicClientAuthenticator("client-1"), "https://wallet.example/cb"), testMetadata(server.URL))
	signer := NewKeyProofSigner(generateTestSigner(t))

	newAuthorized, outcome, err := requester.RequestCredential(context.Background(), testAuthorized("n-1"), IssuanceRequestPayload{ConfigurationID: "cfg-1"}, signer, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome.Kind)
	require.Len(t, outcome.Credentials, 1)
	assert.Equal(t, "cred-1", outcome.Credentials[0].Credential)
	require.NotNil(t, newAuthorized.CNonce)
	assert.Equal(t, "n-2", *newAuthorized.CNonce)
}

func TestRequester_RequestCredential_deferred(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"transaction_id": "tx-1"})
	}))
	t.Cleanup(server.Close)

	requester := NewRequester(NewHTTPFetcher(http.DefaultClient), NewConfig(NewPublicClientAuthenticator("client-1"), "https://wallet.example/cb"), testMetadata(server.URL))
	signer := NewKeyProofSigner(generateTestSigner(t))

	_, outcome, err := requester.RequestCredential(context.Background(), testAuthorized("n-1"), IssuanceRequestPayload{ConfigurationID: "cfg-1"}, signer, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeferred, outcome.Kind)
	assert.Equal(t, "tx-1", outcome.TransactionID)
}

func TestRequester_RequestCredential_invalidProof(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error":   "invalid_proof",
			"c_nonce": "n-fresh",
		})
	}))
	t.Cleanup(server.Close)

	requester := NewRequester(NewHTTPFetcher(http.DefaultClient), NewConfig(NewPublicClientAuthenticator("client-1"), "https://wallet.example/cb"), testMetadata(server.URL))
	signer := NewKeyProofSigner(generateTestSigner(t))

	newAuthorized, outcome, err := requester.RequestCredential(context.Background(), testAuthorized("n-1"), IssuanceRequestPayload{ConfigurationID: "cfg-1"}, signer, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalidProof, outcome.Kind)
	assert.Equal(t, "n-fresh", outcome.CNonce)
	require.NotNil(t, newAuthorized.CNonce)
	assert.Equal(t, "n-fresh", *newAuthorized.CNonce)
}

func TestRequester_RequestCredential_failed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error":             "unsupported_credential_type",
			"error_description": "nope",
		})
	}))
	t.Cleanup(server.Close)

	requester := NewRequester(NewHTTPFetcher(http.DefaultClient), NewConfig(NewPublicClientAuthenticator("client-1"), "https://wallet.example/cb"), testMetadata(server.URL))
	signer := NewKeyProofSigner(generateTestSigner(t))

	_, outcome, err := requester.RequestCredential(context.Background(), testAuthorized("n-1"), IssuanceRequestPayload{ConfigurationID: "cfg-1"}, signer, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome.Kind)
	require.NotNil(t, outcome.Err)
	assert.Equal(t, KindOAuthError, outcome.Err.Kind)
}

func TestRequester_RequestBatchCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		proofs, ok := body["proofs"].(map[string]interface{})
		require.True(t, ok)
		jwts, ok := proofs["jwt"].([]interface{})
		require.True(t, ok)
		assert.Len(t, jwts, 2)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"credentials": []map[string]interface{}{{"credential": "cred-1"}, {"credential": "cred-2"}},
		})
	}))
	t.Cleanup(server.Close)

	requester := NewRequester(NewHTTPFetcher(http.DefaultClient), NewConfig(NewPublicClientAuthenticator("client-1"), "https://wallet.example/cb"), testMetadata(server.URL))
	signers := []ProofSigner{NewKeyProofSigner(generateTestSigner(t)), NewKeyProofSigner(generateTestSigner(t))}

	_, outcome, err := requester.RequestBatchCredential(context.Background(), testAuthorized(""), IssuanceRequestPayload{ConfigurationID: "cfg-1"}, signers, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome.Kind)
	assert.Len(t, outcome.Credentials, 2)
}

func TestRequester_RequestBatchCredential_noSigners(t *testing.T) {
	requester := NewRequester(nil, NewConfig(NewPublicClientAuthenticator("client-1"), "https://wallet.example/cb"), testMetadata(""))
	_, _, err := requester.RequestBatchCredential(context.Background(), testAuthorized(""), IssuanceRequestPayload{ConfigurationID: "cfg-1"}, nil, nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRequester_QueryForDeferred(t *testing.T) {
	t.Run("issued", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "tx-1", body["transaction_id"])
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"credential": "cred-1"})
		}))
		t.Cleanup(server.Close)

		metadata := testMetadata("")
		metadata.DeferredCredentialEndpoint = server.URL
		requester := NewRequester(NewHTTPFetcher(http.DefaultClient), NewConfig(NewPublicClientAuthenticator("client-1"), "https://wallet.example/cb"), metadata)

		_, outcome, err := requester.QueryForDeferred(context.Background(), testAuthorized(""), "tx-1")
		require.NoError(t, err)
		assert.Equal(t, DeferredIssued, outcome.Kind)
		require.Len(t, outcome.Credentials, 1)
	})

	t.Run("pending", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": "issuance_pending", "interval": 3})
		}))
		t.Cleanup(server.Close)

		metadata := testMetadata("")
		metadata.DeferredCredentialEndpoint = server.URL
		requester := NewRequester(NewHTTPFetcher(http.DefaultClient), NewConfig(NewPublicClientAuthenticator("client-1"), "https://wallet.example/cb"), metadata)

		_, outcome, err := requester.QueryForDeferred(context.Background(), testAuthorized(""), "tx-1")
		require.NoError(t, err)
		assert.Equal(t, DeferredPending, outcome.Kind)
		require.NotNil(t, outcome.Interval)
		assert.Equal(t, 3, *outcome.Interval)
	})

	t.Run("no endpoint", func(t *testing.T) {
		requester := NewRequester(nil, NewConfig(NewPublicClientAuthenticator("client-1"), "https://wallet.example/cb"), testMetadata(""))
		_, _, err := requester.QueryForDeferred(context.Background(), testAuthorized(""), "tx-1")
		assert.ErrorIs(t, err, ErrUnsupportedFeature)
	})
}

func TestRequester_PollDeferred(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": "issuance_pending", "interval": 0})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"credential": "cred-1"})
	}))
	t.Cleanup(server.Close)

	metadata := testMetadata("")
	metadata.DeferredCredentialEndpoint = server.URL
	requester := NewRequester(NewHTTPFetcher(http.DefaultClient), NewConfig(NewPublicClientAuthenticator("client-1"), "https://wallet.example/cb"), metadata)

	outcome, err := requester.PollDeferred(context.Background(), testAuthorized(""), "tx-1", 5)
	require.NoError(t, err)
	assert.Equal(t, DeferredIssued, outcome.Kind)
	assert.Equal(t, 3, attempts)
}

func TestRequester_PollDeferred_exhaustedStillPending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": "issuance_pending", "interval": 0})
	}))
	t.Cleanup(server.Close)

	metadata := testMetadata("")
	metadata.DeferredCredentialEndpoint = server.URL
	requester := NewRequester(NewHTTPFetcher(http.DefaultClient), NewConfig(NewPublicClientAuthenticator("client-1"), "https://wallet.example/cb"), metadata)

	outcome, err := requester.PollDeferred(context.Background(), testAuthorized(""), "tx-1", 2)
	require.NoError(t, err, "exhausting attempts while still pending is not itself a failure")
	assert.Equal(t, DeferredPending, outcome.Kind)
}

func TestRequester_Notify(t *testing.T) {
	var receivedBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&receivedBody))
	}))
	t.Cleanup(server.Close)

	metadata := testMetadata("")
	metadata.NotificationEndpoint = server.URL
	requester := NewRequester(NewHTTPFetcher(http.DefaultClient), NewConfig(NewPublicClientAuthenticator("client-1"), "https://wallet.example/cb"), metadata)

	err := requester.Notify(context.Background(), testAuthorized(""), "notif-1", CredentialAccepted, "")
	require.NoError(t, err)
	assert.Equal(t, "notif-1", receivedBody["notification_id"])
	assert.Equal(t, "credential_accepted", receivedBody["event"])
}

func TestRequester_Notify_noEndpoint(t *testing.T) {
	requester := NewRequester(nil, NewConfig(NewPublicClientAuthenticator("client-1"), "https://wallet.example/cb"), testMetadata(""))
	err := requester.Notify(context.Background(), testAuthorized(""), "notif-1", CredentialAccepted, "")
	assert.ErrorIs(t, err, ErrUnsupportedFeature)
}

func TestRequester_Refresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, oauth.RefreshTokenGrantType, r.Form.Get(oauth.GrantTypeParam))
		assert.Equal(t, "rt-1", r.Form.Get(oauth.RefreshTokenParam))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "at-2", "token_type": "bearer"})
	}))
	t.Cleanup(server.Close)

	requester := NewRequester(NewHTTPFetcher(http.DefaultClient), NewConfig(NewPublicClientAuthenticator("client-1"), "https://wallet.example/cb"), testMetadata(""))

	refreshToken := "rt-1"
	authorized := testAuthorized("")
	authorized.RefreshToken = &refreshToken

	refreshed, err := requester.Refresh(context.Background(), authorized, server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "at-2", refreshed.AccessToken)
}

func TestRequester_Refresh_noRefreshToken(t *testing.T) {
	requester := NewRequester(nil, NewConfig(NewPublicClientAuthenticator("client-1"), "https://wallet.example/cb"), testMetadata(""))
	_, err := requester.Refresh(context.Background(), testAuthorized(""), "https://as.example/token", nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRequester_GetFreshCNonce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"c_nonce": "n-1", "c_nonce_expires_in": 300})
	}))
	t.Cleanup(server.Close)

	metadata := testMetadata("")
	metadata.NonceEndpoint = server.URL
	requester := NewRequester(NewHTTPFetcher(http.DefaultClient), NewConfig(NewPublicClientAuthenticator("client-1"), "https://wallet.example/cb"), metadata)

	nonce, expiresIn, err := requester.GetFreshCNonce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "n-1", nonce)
	require.NotNil(t, expiresIn)
	assert.Equal(t, 300, *expiresIn)
}

func TestRequester_GetFreshCNonce_noEndpoint(t *testing.T) {
	requester := NewRequester(nil, NewConfig(NewPublicClientAuthenticator("client-1"), "https://wallet.example/cb"), testMetadata(""))
	_, _, err := requester.GetFreshCNonce(context.Background())
	assert.ErrorIs(t, err, ErrUnsupportedFeature)
}
