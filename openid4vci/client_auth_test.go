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
	"net/http"
	"net/url"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuts-foundation/openid4vci-wallet/oauth"
)

func TestPublicClientAuthenticator(t *testing.T) {
	authenticator := NewPublicClientAuthenticator("client-1")
	assert.Equal(t, "client-1", authenticator.ClientID())

	form := url.Values{}
	headers := http.Header{}
	require.NoError(t, authenticator.Authenticate(context.Background(), "https://as.example/token", form, headers))

	assert.Equal(t, "client-1", form.Get(oauth.ClientIDParam))
	assert.Empty(t, headers)
}

type fakeAttestationProvider struct {
	attestation string
	err         error
}

func (p *fakeAttestationProvider) WalletAttestation(_ context.Context, _ string) (string, error) {
	return p.attestation, p.err
}

func TestAttestedClientAuthenticator(t *testing.T) {
	popSigner := generateTestSigner(t)
	provider := &fakeAttestationProvider{attestation: "attestation-jwt"}

	authenticator, err := NewAttestedClientAuthenticator("client-1", provider, popSigner)
	require.NoError(t, err)
	assert.Equal(t, "client-1", authenticator.ClientID())

	form := url.Values{}
	headers := http.Header{}
	require.NoError(t, authenticator.Authenticate(context.Background(), "https://as.example/token", form, headers))

	assert.Equal(t, "attestation-jwt", headers.Get(oauth.ClientAttestationHeader))

	pop := headers.Get(oauth.ClientAttestationPoPHeader)
	require.NotEmpty(t, pop)
	token, err := jwt.ParseInsecure([]byte(pop))
	require.NoError(t, err)
	assert.Equal(t, "client-1", token.Issuer())
	assert.Equal(t, []string{"https://as.example"}, token.Audience())
}

func TestAttestedClientAuthenticator_attestationProviderFails(t *testing.T) {
	popSigner := generateTestSigner(t)
	provider := &fakeAttestationProvider{err: assert.AnError}

	authenticator, err := NewAttestedClientAuthenticator("client-1", provider, popSigner)
	require.NoError(t, err)

	err = authenticator.Authenticate(context.Background(), "https://as.example/token", url.Values{}, http.Header{})
	assert.ErrorIs(t, err, assert.AnError)
}
