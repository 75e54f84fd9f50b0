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

package pkce

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	params, err := Generate()
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(params.Verifier), minVerifierLength)
	assert.LessOrEqual(t, len(params.Verifier), maxVerifierLength)
	assert.Equal(t, "S256", params.ChallengeMethod)
	assert.False(t, strings.Contains(params.Verifier, "="), "verifier must not contain padding")

	assert.NoError(t, Validate(params.Verifier, params.Challenge))
}

func TestGenerate_isRandom(t *testing.T) {
	first, err := Generate()
	require.NoError(t, err)
	second, err := Generate()
	require.NoError(t, err)

	assert.NotEqual(t, first.Verifier, second.Verifier)
}

func TestValidate(t *testing.T) {
	params, err := Generate()
	require.NoError(t, err)

	t.Run("valid verifier and challenge", func(t *testing.T) {
		assert.NoError(t, Validate(params.Verifier, params.Challenge))
	})
	t.Run("challenge mismatch", func(t *testing.T) {
		assert.ErrorIs(t, Validate(params.Verifier, "wrong-challenge"), ErrInvalidVerifier)
	})
	t.Run("verifier too short", func(t *testing.T) {
		assert.ErrorIs(t, Validate("short", ""), ErrInvalidVerifier)
	})
	t.Run("verifier too long", func(t *testing.T) {
		assert.ErrorIs(t, Validate(strings.Repeat("a", 129), ""), ErrInvalidVerifier)
	})
	t.Run("no expected challenge just checks length", func(t *testing.T) {
		assert.NoError(t, Validate(params.Verifier, ""))
	})
}
