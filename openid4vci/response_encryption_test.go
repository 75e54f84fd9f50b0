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

	"github.com/lestrrat-go/jwx/v2/jwe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEphemeralResponseEncryption_selectsECDHES(t *testing.T) {
	capabilities := &ResponseEncryptionMetadata{
		AlgValuesSupported: []string{"RSA-OAEP-256", "ECDH-ES", "ECDH-ES+A128KW"},
		EncValuesSupported: []string{"A256GCM", "A128GCM"},
	}

	spec, err := NewEphemeralResponseEncryption(capabilities)
	require.NoError(t, err)
	assert.Equal(t, "ECDH-ES", spec.Alg.String())
	assert.Equal(t, "A128GCM", spec.Enc.String())
	assert.NotNil(t, spec.JWK)
}

func TestNewEphemeralResponseEncryption_noCompatibleAlgorithm(t *testing.T) {
	capabilities := &ResponseEncryptionMetadata{
		AlgValuesSupported: []string{"RSA-OAEP-256"},
		EncValuesSupported: []string{"A256GCM"},
	}

	_, err := NewEphemeralResponseEncryption(capabilities)
	require.Error(t, err)
	var typed *Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, KindUnsupportedFeature, typed.Kind)
}

func TestResponseEncryptionSpec_DecryptRoundTrip(t *testing.T) {
	capabilities := &ResponseEncryptionMetadata{
		AlgValuesSupported: []string{"ECDH-ES"},
		EncValuesSupported: []string{"A128GCM"},
	}
	spec, err := NewEphemeralResponseEncryption(capabilities)
	require.NoError(t, err)

	plaintext := []byte(`{"credential":"cred-1"}`)
	encrypted, err := jwe.Encrypt(plaintext, jwe.WithKey(spec.Alg, spec.JWK), jwe.WithContentEncryption(spec.Enc))
	require.NoError(t, err)

	decrypted, err := spec.Decrypt(encrypted)
	require.NoError(t, err)
	assert.JSONEq(t, string(plaintext), string(decrypted))
}

func TestResponseEncryptionSpec_Zeroize(t *testing.T) {
	capabilities := &ResponseEncryptionMetadata{
		AlgValuesSupported: []string{"ECDH-ES"},
		EncValuesSupported: []string{"A128GCM"},
	}
	spec, err := NewEphemeralResponseEncryption(capabilities)
	require.NoError(t, err)

	spec.Zeroize()
	assert.Nil(t, spec.privateKey)

	_, err = spec.Decrypt([]byte("anything"))
	require.Error(t, err, "decrypting after Zeroize must fail rather than silently use a zero key")
}
