/*
 * Copyright (C) 2022 Nuts community
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

package hash

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSHA256Sum(t *testing.T) {
	h := SHA256Sum([]byte("hi"))

	assert.Equal(t, "8f434346648f6b96df89dda901c5176b10a6d83961dd3c1ac88b59b2dc327aa4", hex.EncodeToString(h.Slice()))
}

func TestSHA256Hash_Slice(t *testing.T) {
	h := SHA256Sum([]byte("hi"))

	s1 := h.Slice()
	s2 := h.Slice()
	assert.Equal(t, s1, s2)
	s1[0] = 10
	assert.NotEqual(t, s1, s2, "each Slice call must return its own copy of the array")
}
