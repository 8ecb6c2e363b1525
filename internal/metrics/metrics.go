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

// Package metrics exposes Prometheus collectors for the audio core. Every
// method tolerates a nil *Metrics so components can run uninstrumented.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dreamtone"

// Playback failure reasons
const (
	ReasonBlocked = "blocked"
	ReasonLoad    = "load"
	ReasonTimeout = "timeout"
)

// Metrics groups the collectors shared by the resource manager and synthesizer
type Metrics struct {
	handlesCreated   prometheus.Counter
	handlesActive    prometheus.Gauge
	loadErrors       prometheus.Counter
	playbackErrors   *prometheus.CounterVec
	binauralSessions *prometheus.CounterVec
	binauralActive   prometheus.Gauge
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		handlesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resource",
			Name:      "handles_created_total",
			Help:      "Audio handles constructed by the resource manager.",
		}),
		handlesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resource",
			Name:      "handles",
			Help:      "Audio handles currently registered.",
		}),
		loadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resource",
			Name:      "load_errors_total",
			Help:      "Sources that failed to open or decode.",
		}),
		playbackErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resource",
			Name:      "playback_errors_total",
			Help:      "Play requests that failed, by reason.",
		}, []string{"reason"}),
		binauralSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "binaural",
			Name:      "sessions_total",
			Help:      "Binaural sessions started, by band.",
		}, []string{"band"}),
		binauralActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "binaural",
			Name:      "active",
			Help:      "1 while a binaural session is playing.",
		}),
	}

	collectors := []prometheus.Collector{
		m.handlesCreated,
		m.handlesActive,
		m.loadErrors,
		m.playbackErrors,
		m.binauralSessions,
		m.binauralActive,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) HandleCreated() {
	if m == nil {
		return
	}
	m.handlesCreated.Inc()
	m.handlesActive.Inc()
}

func (m *Metrics) HandleDisposed() {
	if m == nil {
		return
	}
	m.handlesActive.Dec()
}

func (m *Metrics) LoadFailed() {
	if m == nil {
		return
	}
	m.loadErrors.Inc()
}

func (m *Metrics) PlaybackFailed(reason string) {
	if m == nil {
		return
	}
	m.playbackErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) BinauralStarted(band string) {
	if m == nil {
		return
	}
	m.binauralSessions.WithLabelValues(band).Inc()
	m.binauralActive.Set(1)
}

func (m *Metrics) BinauralStopped() {
	if m == nil {
		return
	}
	m.binauralActive.Set(0)
}
