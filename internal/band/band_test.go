/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package band

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable(t *testing.T) {
	bands := All()
	require.Len(t, bands, 5)

	expected := []struct {
		name     Name
		min, max float64
	}{
		{Delta, 0.5, 4},
		{Theta, 4, 8},
		{Alpha, 8, 13},
		{Beta, 13, 30},
		{Gamma, 30, 100},
	}

	for i, want := range expected {
		assert.Equal(t, want.name, bands[i].Name)
		assert.Equal(t, want.min, bands[i].MinHz)
		assert.Equal(t, want.max, bands[i].MaxHz)
		assert.Less(t, bands[i].MinHz, bands[i].MaxHz)
	}
}

func TestAllReturnsCopy(t *testing.T) {
	bands := All()
	bands[0].MinHz = 99

	delta, err := Lookup("delta")
	require.NoError(t, err)
	assert.Equal(t, 0.5, delta.MinHz)
}

func TestLookup(t *testing.T) {
	b, err := Lookup("  Theta ")
	require.NoError(t, err)
	assert.Equal(t, Theta, b.Name)

	_, err = Lookup("epsilon")
	assert.Error(t, err)
}

func TestFrequencies(t *testing.T) {
	tests := []struct {
		name Name
		base float64
		beat float64
	}{
		{Delta, 2.25, 1.75},
		{Theta, 6, 2},
		{Alpha, 10.5, 2.5},
		{Beta, 21.5, 5},
		{Gamma, 65, 5},
	}

	for _, tt := range tests {
		t.Run(string(tt.name), func(t *testing.T) {
			b, err := Lookup(string(tt.name))
			require.NoError(t, err)
			assert.InDelta(t, tt.base, b.BaseFrequency(), 1e-9)
			assert.InDelta(t, tt.beat, b.BeatFrequency(), 1e-9)
		})
	}
}

func TestBeatFrequencyCap(t *testing.T) {
	wide := Band{MinHz: 30, MaxHz: 100}
	assert.Equal(t, 5.0, wide.BeatFrequency())

	narrow := Band{MinHz: 0.5, MaxHz: 4}
	assert.Equal(t, 1.75, narrow.BeatFrequency())
}

func TestString(t *testing.T) {
	b, err := Lookup("gamma")
	require.NoError(t, err)
	assert.Equal(t, "gamma (30-100 Hz)", b.String())
}
