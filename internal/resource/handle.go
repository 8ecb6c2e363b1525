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

package resource

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"

	"github.com/loqalabs/loqa-dreamtone/internal/audio"
)

// LoadState tracks decoding progress of a handle's source
type LoadState int

const (
	Unloaded LoadState = iota
	Loading
	Ready
	Errored
)

func (s LoadState) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Errored:
		return "errored"
	}
	return "unknown"
}

// Options applied when a handle is constructed
type Options struct {
	Volume float64
	Loop   bool
}

// Handle is one named, playable sound
type Handle struct {
	id     string
	source string
	loop   bool
	loaded chan struct{}

	// loadCtx is cancelled on dispose so an in-flight open gives up
	loadCtx    context.Context
	cancelLoad context.CancelFunc

	mu       sync.Mutex
	state    LoadState
	volume   float64
	loadErr  *LoadError
	onError  func(*LoadError)
	disposed bool

	// Fields below are touched by the output pump; mutate under the output lock
	decoder beep.StreamSeekCloser
	format  beep.Format
	gain    *effects.Gain
	ctrl    *beep.Ctrl

	attached atomic.Bool
}

func newHandle(id, source string, opts Options) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handle{
		id:         id,
		source:     source,
		loop:       opts.Loop,
		volume:     audio.ClampVolume(opts.Volume),
		state:      Unloaded,
		loaded:     make(chan struct{}),
		loadCtx:    ctx,
		cancelLoad: cancel,
	}
}

// ID returns the registry key
func (h *Handle) ID() string { return h.id }

// Source returns the location the handle was constructed from
func (h *Handle) Source() string { return h.source }

// Loop reports whether playback repeats
func (h *Handle) Loop() bool { return h.loop }

// Loaded is closed once the source has decoded or failed
func (h *Handle) Loaded() <-chan struct{} { return h.loaded }

// State returns the current load state
func (h *Handle) State() LoadState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Volume returns the effective linear volume
func (h *Handle) Volume() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.volume
}

// Err returns the load failure of an Errored handle
func (h *Handle) Err() *LoadError {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loadErr
}

// build wires decoder -> loop -> resample -> gain -> ctrl for the output rate.
// Called with h.mu held before the graph is visible to the output.
func (h *Handle) build(dec beep.StreamSeekCloser, format beep.Format, rate beep.SampleRate) {
	var s beep.Streamer = dec
	if h.loop {
		s = beep.Loop(-1, dec)
	}
	if format.SampleRate != rate {
		s = beep.Resample(4, format.SampleRate, rate, s)
	}

	h.decoder = dec
	h.format = format
	h.gain = &effects.Gain{Streamer: s, Gain: h.volume - 1}
	h.ctrl = &beep.Ctrl{Streamer: h.gain, Paused: true}
}

// detach runs on the pump goroutine when the handle's sequence drains
func (h *Handle) detach() {
	h.attached.Store(false)
}
