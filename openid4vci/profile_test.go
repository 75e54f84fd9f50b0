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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Lookup_fallsBackToOpaque(t *testing.T) {
	registry := NewRegistry()
	profile := registry.Lookup("some_future_format")
	assert.Equal(t, "some_future_format", profile.Format())

	_, err := profile.EncodeRequestFields(nil)
	assert.ErrorIs(t, err, ErrUnsupportedFeature)

	decoded, err := profile.DecodeConfiguration(json.RawMessage(`{"x":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(decoded.(json.RawMessage)))
}

func TestMsoMdocProfile_roundtrip(t *testing.T) {
	profile := MsoMdocProfile{}
	assert.Equal(t, FormatMsoMdoc, profile.Format())

	raw := json.RawMessage(`{"doctype":"org.iso.18013.5.1.mDL","claims":{"org.iso.18013.5.1":{"given_name":{}}}}`)
	decoded, err := profile.DecodeConfiguration(raw)
	require.NoError(t, err)
	configuration := decoded.(MsoMdocConfiguration)
	assert.Equal(t, "org.iso.18013.5.1.mDL", configuration.DocType)

	fields, err := profile.EncodeRequestFields(configuration)
	require.NoError(t, err)
	assert.Equal(t, "org.iso.18013.5.1.mDL", fields["doctype"])

	_, err = profile.EncodeRequestFields("not a configuration")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSDJWTVCProfile_roundtrip(t *testing.T) {
	profile := SDJWTVCProfile{}
	assert.Equal(t, FormatSDJWTVC, profile.Format())

	raw := json.RawMessage(`{"vct":"https://issuer.example/vct/employee","claims":{"given_name":{}}}`)
	decoded, err := profile.DecodeConfiguration(raw)
	require.NoError(t, err)
	configuration := decoded.(SDJWTVCConfiguration)
	assert.Equal(t, "https://issuer.example/vct/employee", configuration.VCT)

	fields, err := profile.EncodeRequestFields(configuration)
	require.NoError(t, err)
	assert.Equal(t, "https://issuer.example/vct/employee", fields["vct"])

	_, err = profile.EncodeRequestFields(42)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRegistry_NewDefaultRegistry_registersBothProfiles(t *testing.T) {
	registry := NewDefaultRegistry()
	assert.Equal(t, FormatMsoMdoc, registry.Lookup(FormatMsoMdoc).Format())
	assert.Equal(t, FormatSDJWTVC, registry.Lookup(FormatSDJWTVC).Format())
}
