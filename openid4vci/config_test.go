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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_defaults(t *testing.T) {
	authenticator := NewPublicClientAuthenticator("client-1")
	config := NewConfig(authenticator, "https://wallet.example/callback")

	assert.Equal(t, FavorScopes, config.AuthorizeIssuance)
	assert.True(t, config.UsePAR)
	assert.NotNil(t, config.Profiles)
	assert.Equal(t, "client-1", config.ClientAuthenticator.ClientID())
}

func TestConfig_profiles_fallsBackToDefaultRegistry(t *testing.T) {
	config := Config{}
	registry := config.profiles()
	require.NotNil(t, registry)

	_, err := registry.Lookup(FormatMsoMdoc).EncodeRequestFields(nil)
	assert.NoError(t, err, "the default registry must know mso_mdoc")
}

func TestConfig_profiles_usesConfiguredRegistry(t *testing.T) {
	custom := NewRegistry()
	config := Config{Profiles: custom}
	assert.Same(t, custom, config.profiles())
}
