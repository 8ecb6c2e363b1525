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

package synth

import (
	"errors"
	"fmt"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/generators"

	"github.com/loqalabs/loqa-dreamtone/internal/audio"
	"github.com/loqalabs/loqa-dreamtone/internal/band"
)

// ErrAboveNyquist is returned when a tone cannot be represented at the sample rate
var ErrAboveNyquist = errors.New("tone frequency at or above half the sample rate")

// Channel selects the output side a tone is routed to
type Channel int

const (
	Left Channel = iota
	Right
)

// route sends a mono source to one side of the stereo field
type route struct {
	streamer beep.Streamer
	channel  Channel
}

func (r *route) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = r.streamer.Stream(samples)
	for i := range samples[:n] {
		if r.channel == Left {
			samples[i][1] = 0
		} else {
			samples[i][0] = 0
		}
	}
	return n, ok
}

func (r *route) Err() error { return r.streamer.Err() }

// Graph is one binaural tone pair: two sine generators routed left and right,
// summed through a single gain stage. A Graph is never reused once released.
type Graph struct {
	Band           band.Band
	LeftFrequency  float64
	RightFrequency float64

	gain *effects.Gain
	ctrl *beep.Ctrl
}

// NewGraph allocates fresh tone generators for b at the given sample rate
func NewGraph(sr beep.SampleRate, b band.Band, volume float64) (*Graph, error) {
	base := b.BaseFrequency()
	beat := b.BeatFrequency()

	left, err := newTone(sr, base)
	if err != nil {
		return nil, fmt.Errorf("left tone: %w", err)
	}

	right, err := newTone(sr, base+beat)
	if err != nil {
		return nil, fmt.Errorf("right tone: %w", err)
	}

	mix := beep.Mix(
		&route{streamer: left, channel: Left},
		&route{streamer: right, channel: Right},
	)
	gain := &effects.Gain{Streamer: mix, Gain: audio.ClampVolume(volume) - 1}

	return &Graph{
		Band:           b,
		LeftFrequency:  base,
		RightFrequency: base + beat,
		gain:           gain,
		ctrl:           &beep.Ctrl{Streamer: gain},
	}, nil
}

func newTone(sr beep.SampleRate, freq float64) (beep.Streamer, error) {
	if freq*2 >= float64(sr) {
		return nil, fmt.Errorf("%.2f Hz at %d Hz: %w", freq, sr, ErrAboveNyquist)
	}
	return generators.SineTone(sr, freq)
}

// Streamer returns the graph output. It ends once the graph is released.
func (g *Graph) Streamer() beep.Streamer {
	return g.ctrl
}

// Volume returns the gain stage level
func (g *Graph) Volume() float64 {
	return g.gain.Gain + 1
}

// SetVolume changes the gain stage level. Callers playing the graph through an
// audio.Output must hold its lock.
func (g *Graph) SetVolume(v float64) {
	g.gain.Gain = audio.ClampVolume(v) - 1
}

// release detaches the generators so the mixer drops the graph
func (g *Graph) release() {
	g.ctrl.Streamer = nil
}

// Released reports whether the generators have been detached
func (g *Graph) Released() bool {
	return g.ctrl.Streamer == nil
}
