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

// Package band holds the fixed brainwave frequency bands used by the
// binaural synthesizer and the visualizer.
package band

import (
	"fmt"
	"math"
	"strings"
)

// Name identifies a brainwave band
type Name string

const (
	Delta Name = "delta"
	Theta Name = "theta"
	Alpha Name = "alpha"
	Beta  Name = "beta"
	Gamma Name = "gamma"
)

// MaxBeatFrequency caps the inter-aural difference so wide bands stay comfortable
const MaxBeatFrequency = 5.0

// Visual carries rendering parameters for the wave animation. The synthesizer
// never reads them.
type Visual struct {
	WaveSpeed float64
	Amplitude float64
	Color     string
}

// Band is a named frequency range in Hz
type Band struct {
	Name        Name
	MinHz       float64
	MaxHz       float64
	Description string
	Visual      Visual
}

var table = []Band{
	{Name: Delta, MinHz: 0.5, MaxHz: 4, Description: "Deep sleep, healing",
		Visual: Visual{WaveSpeed: 0.5, Amplitude: 40, Color: "#6366f1"}},
	{Name: Theta, MinHz: 4, MaxHz: 8, Description: "Meditation, lucid dreaming",
		Visual: Visual{WaveSpeed: 1, Amplitude: 30, Color: "#8b5cf6"}},
	{Name: Alpha, MinHz: 8, MaxHz: 13, Description: "Relaxed focus, calm",
		Visual: Visual{WaveSpeed: 1.5, Amplitude: 25, Color: "#06b6d4"}},
	{Name: Beta, MinHz: 13, MaxHz: 30, Description: "Active thinking, alertness",
		Visual: Visual{WaveSpeed: 2.5, Amplitude: 15, Color: "#10b981"}},
	{Name: Gamma, MinHz: 30, MaxHz: 100, Description: "Peak awareness, insight",
		Visual: Visual{WaveSpeed: 4, Amplitude: 10, Color: "#f59e0b"}},
}

// All returns a copy of the band table ordered from slowest to fastest
func All() []Band {
	out := make([]Band, len(table))
	copy(out, table)
	return out
}

// Lookup finds a band by name, case-insensitively
func Lookup(name string) (Band, error) {
	n := Name(strings.ToLower(strings.TrimSpace(name)))
	for _, b := range table {
		if b.Name == n {
			return b, nil
		}
	}
	return Band{}, fmt.Errorf("unknown brainwave band %q", name)
}

// BaseFrequency is the midpoint of the band, used as the left-ear carrier
func (b Band) BaseFrequency() float64 {
	return (b.MinHz + b.MaxHz) / 2
}

// BeatFrequency is half the band width, capped at MaxBeatFrequency
func (b Band) BeatFrequency() float64 {
	return math.Min(MaxBeatFrequency, (b.MaxHz-b.MinHz)/2)
}

func (b Band) String() string {
	return fmt.Sprintf("%s (%g-%g Hz)", b.Name, b.MinHz, b.MaxHz)
}
