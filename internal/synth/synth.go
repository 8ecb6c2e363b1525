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

// Package synth drives the binaural-beat tone pair. A Synthesizer is either
// Idle or Active; Start while Active tears the old session down first.
package synth

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/loqalabs/loqa-dreamtone/internal/audio"
	"github.com/loqalabs/loqa-dreamtone/internal/band"
	"github.com/loqalabs/loqa-dreamtone/internal/metrics"
)

var log = logrus.WithField("component", "synth")

// ContextFactory provides the output the synthesizer plays through. It is
// called lazily on the first Start and again after the output stops accepting
// streamers.
type ContextFactory func() (audio.Output, error)

// Option configures a Synthesizer
type Option func(*Synthesizer)

// WithMetrics attaches Prometheus collectors
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Synthesizer) {
		s.metrics = m
	}
}

type session struct {
	band   band.Band
	volume float64
	graph  *Graph
}

// Synthesizer owns at most one active binaural session
type Synthesizer struct {
	mu      sync.Mutex
	factory ContextFactory
	output  audio.Output
	session *session
	metrics *metrics.Metrics
}

// New creates an idle synthesizer
func New(factory ContextFactory, opts ...Option) *Synthesizer {
	s := &Synthesizer{factory: factory}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins a session for the named band. It returns false, leaving the
// synthesizer idle, when the band is unknown or audio cannot be initialized.
func (s *Synthesizer) Start(bandName string, volume float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	b, err := band.Lookup(bandName)
	if err != nil {
		log.WithError(err).Warn("⚠️  Cannot start binaural session")
		return false
	}

	out, err := s.contextLocked()
	if err != nil {
		log.WithError(err).Warn("⚠️  Audio context unavailable, binaural beats disabled")
		return false
	}

	graph, err := NewGraph(out.SampleRate(), b, volume)
	if err != nil {
		log.WithError(err).WithField("band", b.Name).Error("❌ Failed to build binaural graph")
		return false
	}

	if err := out.Play(graph.Streamer()); err != nil {
		s.teardown(out, graph)
		if errors.Is(err, audio.ErrEngineStopped) {
			s.output = nil
		}
		log.WithError(err).WithField("band", b.Name).Warn("⚠️  Output refused binaural session")
		return false
	}

	s.session = &session{
		band:   b,
		volume: audio.ClampVolume(volume),
		graph:  graph,
	}
	s.metrics.BinauralStarted(string(b.Name))

	log.WithFields(logrus.Fields{
		"band":     b.Name,
		"left_hz":  graph.LeftFrequency,
		"right_hz": graph.RightFrequency,
		"volume":   s.session.volume,
	}).Info("🧠 Binaural session started")
	return true
}

func (s *Synthesizer) contextLocked() (audio.Output, error) {
	if s.output != nil {
		return s.output, nil
	}
	if s.factory == nil {
		return nil, errors.New("no audio context factory configured")
	}

	out, err := s.factory()
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errors.New("audio context factory returned nil output")
	}

	s.output = out
	return out, nil
}

// Stop halts the active session. Safe to call while idle.
func (s *Synthesizer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Synthesizer) stopLocked() {
	if s.session == nil {
		return
	}

	s.teardown(s.output, s.session.graph)
	log.WithField("band", s.session.band.Name).Info("🛑 Binaural session stopped")
	s.session = nil
	s.metrics.BinauralStopped()
}

// teardown releases a graph; failures are logged, never propagated
func (s *Synthesizer) teardown(out audio.Output, g *Graph) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("❌ Binaural teardown failed")
		}
	}()

	if out == nil {
		g.release()
		return
	}

	out.Lock()
	defer out.Unlock()
	g.release()
}

// SetVolume updates the gain stage of the active session. No-op while idle.
func (s *Synthesizer) SetVolume(volume float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return
	}

	v := audio.ClampVolume(volume)
	s.output.Lock()
	s.session.graph.SetVolume(v)
	s.output.Unlock()
	s.session.volume = v
}

// IsActive reports whether a session is playing
func (s *Synthesizer) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil
}

// CurrentBand returns the band of the active session
func (s *Synthesizer) CurrentBand() (band.Band, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return band.Band{}, false
	}
	return s.session.band, true
}

// Volume returns the active session volume, or 0 while idle
func (s *Synthesizer) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return 0
	}
	return s.session.volume
}

// Close stops any session and forgets the output. The output itself is owned
// by whoever the factory got it from.
func (s *Synthesizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.output = nil
}
