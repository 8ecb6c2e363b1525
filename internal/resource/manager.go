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

// Package resource keeps the process-wide registry of playable audio handles.
// At most one handle exists per id; constructing, mutating and disposing
// handles all go through the Manager so callers never touch the output graph.
package resource

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/sirupsen/logrus"

	"github.com/loqalabs/loqa-dreamtone/internal/audio"
	"github.com/loqalabs/loqa-dreamtone/internal/metrics"
)

var log = logrus.WithField("component", "resource")

// ErrorObserver receives every *LoadError and *PlaybackError the manager produces
type ErrorObserver func(err error)

// Option configures a Manager
type Option func(*Manager)

// WithOpener replaces the default source resolver
func WithOpener(open Opener) Option {
	return func(m *Manager) {
		m.open = open
	}
}

// WithBlobStore resolves blob: references from store
func WithBlobStore(store *BlobStore) Option {
	return func(m *Manager) {
		m.blobs = store
	}
}

// WithFetcher enables http(s) sources on the default resolver
func WithFetcher(f Fetcher) Option {
	return func(m *Manager) {
		m.fetcher = f
	}
}

// WithMetrics attaches Prometheus collectors
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithErrorObserver installs a process-wide error listener in addition to
// per-handle OnError callbacks
func WithErrorObserver(obs ErrorObserver) Option {
	return func(m *Manager) {
		m.observer = obs
	}
}

// Manager maps ids to handles
type Manager struct {
	output   audio.Output
	open     Opener
	blobs    *BlobStore
	fetcher  Fetcher
	metrics  *metrics.Metrics
	observer ErrorObserver

	mu      sync.Mutex
	handles map[string]*Handle
	wg      sync.WaitGroup
}

// NewManager creates a registry playing through out
func NewManager(out audio.Output, opts ...Option) *Manager {
	m := &Manager{
		output:  out,
		handles: make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.blobs == nil {
		m.blobs = NewBlobStore()
	}
	if m.open == nil {
		resolver := &Resolver{Blobs: m.blobs, Fetcher: m.fetcher}
		m.open = resolver.Open
	}
	return m
}

// Blobs returns the store backing blob: references
func (m *Manager) Blobs() *BlobStore {
	return m.blobs
}

// GetOrCreate returns the handle registered for id, constructing it from
// source when absent. An existing handle wins: source and opts are ignored.
func (m *Manager) GetOrCreate(id, source string, opts Options) *Handle {
	m.mu.Lock()
	if h, ok := m.handles[id]; ok {
		m.mu.Unlock()
		return h
	}
	h := m.registerLocked(id, source, opts)
	m.mu.Unlock()

	m.startLoad(h)
	return h
}

// Replace disposes any handle registered for id and constructs a fresh one
func (m *Manager) Replace(id, source string, opts Options) *Handle {
	m.mu.Lock()
	old := m.handles[id]
	delete(m.handles, id)
	h := m.registerLocked(id, source, opts)
	m.mu.Unlock()

	if old != nil {
		m.release(old)
	}
	m.startLoad(h)
	return h
}

func (m *Manager) registerLocked(id, source string, opts Options) *Handle {
	h := newHandle(id, source, opts)
	h.state = Loading
	m.handles[id] = h
	m.metrics.HandleCreated()

	log.WithFields(logrus.Fields{
		"id":     id,
		"source": source,
		"volume": h.volume,
		"loop":   h.loop,
	}).Debug("🎵 Audio handle created")
	return h
}

func (m *Manager) startLoad(h *Handle) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.load(h)
	}()
}

// load decodes the handle's source and publishes the outcome
func (m *Manager) load(h *Handle) {
	defer h.cancelLoad()
	dec, format, err := m.open(h.loadCtx, h.source)

	h.mu.Lock()
	if h.disposed {
		h.mu.Unlock()
		if dec != nil {
			if cerr := dec.Close(); cerr != nil {
				log.WithError(cerr).WithField("id", h.id).Warn("⚠️  Failed to close decoder of disposed handle")
			}
		}
		close(h.loaded)
		return
	}

	if err != nil {
		loadErr := &LoadError{ID: h.id, Source: h.source, Err: err}
		h.state = Errored
		h.loadErr = loadErr
		cb := h.onError
		h.mu.Unlock()
		close(h.loaded)

		m.metrics.LoadFailed()
		log.WithError(err).WithFields(logrus.Fields{
			"id":     h.id,
			"source": h.source,
		}).Error("❌ Failed to load audio source")

		if cb != nil {
			cb(loadErr)
		}
		m.notify(loadErr)
		return
	}

	h.build(dec, format, m.output.SampleRate())
	h.state = Ready
	h.mu.Unlock()
	close(h.loaded)

	log.WithFields(logrus.Fields{
		"id":          h.id,
		"sample_rate": format.SampleRate,
		"duration":    format.SampleRate.D(dec.Len()).Round(time.Millisecond),
	}).Debug("✅ Audio source loaded")
}

func (m *Manager) notify(err error) {
	if m.observer != nil {
		m.observer(err)
	}
}

func (m *Manager) lookup(id string) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handles[id]
}

// Lookup returns the handle registered for id
func (m *Manager) Lookup(id string) (*Handle, bool) {
	h := m.lookup(id)
	return h, h != nil
}

// IDs returns registered ids in sorted order
func (m *Manager) IDs() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.handles))
	for id := range m.handles {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Play starts or resumes playback, waiting for the source to finish loading.
// Unknown ids are ignored. A load failure is returned as *LoadError, an output
// refusal as *PlaybackError wrapping ErrPlaybackBlocked.
func (m *Manager) Play(ctx context.Context, id string) error {
	h := m.lookup(id)
	if h == nil {
		log.WithField("id", id).Debug("Play on unknown handle ignored")
		return nil
	}

	select {
	case <-h.loaded:
	case <-ctx.Done():
		perr := &PlaybackError{ID: id, Err: ctx.Err()}
		m.metrics.PlaybackFailed(metrics.ReasonTimeout)
		m.notify(perr)
		return perr
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.disposed {
		return nil
	}
	if h.state == Errored {
		m.metrics.PlaybackFailed(metrics.ReasonLoad)
		return h.loadErr
	}

	m.output.Lock()
	h.ctrl.Paused = false
	if !h.attached.Load() && !h.loop && h.decoder.Position() >= h.decoder.Len() {
		if err := h.decoder.Seek(0); err != nil {
			log.WithError(err).WithField("id", id).Warn("⚠️  Failed to rewind finished handle")
		}
	}
	m.output.Unlock()

	if h.attached.Load() {
		return nil
	}

	h.attached.Store(true)
	if err := m.output.Play(beep.Seq(h.ctrl, beep.Callback(h.detach))); err != nil {
		h.attached.Store(false)
		m.output.Lock()
		h.ctrl.Paused = true
		m.output.Unlock()

		perr := &PlaybackError{ID: id, Err: fmt.Errorf("%w: %w", ErrPlaybackBlocked, err)}
		m.metrics.PlaybackFailed(metrics.ReasonBlocked)
		log.WithError(err).WithField("id", id).Warn("⚠️  Playback blocked")
		m.notify(perr)
		return perr
	}

	log.WithField("id", id).Debug("▶️  Playback started")
	return nil
}

// Pause halts playback, keeping the position. No-op for unknown or unloaded ids.
func (m *Manager) Pause(id string) {
	h := m.lookup(id)
	if h == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != Ready || h.disposed {
		return
	}

	m.output.Lock()
	h.ctrl.Paused = true
	m.output.Unlock()
}

// IsPlaying reports whether id is attached to the output and unpaused
func (m *Manager) IsPlaying(id string) bool {
	h := m.lookup(id)
	if h == nil {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != Ready || !h.attached.Load() {
		return false
	}

	m.output.Lock()
	defer m.output.Unlock()
	return !h.ctrl.Paused
}

// SetVolume clamps volume to [0, 1] and applies it live. No-op for unknown ids.
func (m *Manager) SetVolume(id string, volume float64) {
	h := m.lookup(id)
	if h == nil {
		return
	}

	v := audio.ClampVolume(volume)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.volume = v
	if h.gain != nil {
		m.output.Lock()
		h.gain.Gain = v - 1
		m.output.Unlock()
	}
}

// Volume returns the effective volume of id
func (m *Manager) Volume(id string) (float64, bool) {
	h := m.lookup(id)
	if h == nil {
		return 0, false
	}
	return h.Volume(), true
}

// State returns the load state of id
func (m *Manager) State(id string) (LoadState, bool) {
	h := m.lookup(id)
	if h == nil {
		return Unloaded, false
	}
	return h.State(), true
}

// Position returns the playback position of id in seconds
func (m *Manager) Position(id string) (float64, bool) {
	h := m.lookup(id)
	if h == nil {
		return 0, false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != Ready {
		return 0, true
	}

	m.output.Lock()
	pos := h.decoder.Position()
	m.output.Unlock()
	return h.format.SampleRate.D(pos).Seconds(), true
}

// Seek moves the playback position of id, clamped to the stream bounds
func (m *Manager) Seek(id string, seconds float64) error {
	h := m.lookup(id)
	if h == nil {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != Ready {
		return fmt.Errorf("seek %q: %w", id, ErrNotReady)
	}

	m.output.Lock()
	defer m.output.Unlock()

	pos := h.format.SampleRate.N(time.Duration(seconds * float64(time.Second)))
	pos = max(0, min(pos, h.decoder.Len()))
	if err := h.decoder.Seek(pos); err != nil {
		return fmt.Errorf("seek %q: %w", id, err)
	}
	return nil
}

// OnError registers the load-failure callback for id, replacing any previous
// one. If the handle already failed, cb runs immediately.
func (m *Manager) OnError(id string, cb func(*LoadError)) {
	h := m.lookup(id)
	if h == nil {
		return
	}

	h.mu.Lock()
	h.onError = cb
	failed := h.loadErr
	h.mu.Unlock()

	if failed != nil && cb != nil {
		cb(failed)
	}
}

// Dispose stops id, releases its decoder and removes it. Unknown ids are ignored.
func (m *Manager) Dispose(id string) {
	m.mu.Lock()
	h := m.handles[id]
	delete(m.handles, id)
	m.mu.Unlock()

	if h == nil {
		return
	}
	m.release(h)
}

// DisposeAll disposes every handle and waits for in-flight loads
func (m *Manager) DisposeAll() {
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		handles = append(handles, h)
	}
	m.handles = make(map[string]*Handle)
	m.mu.Unlock()

	for _, h := range handles {
		m.release(h)
	}
	m.wg.Wait()
}

func (m *Manager) release(h *Handle) {
	h.cancelLoad()

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.disposed {
		return
	}
	h.disposed = true
	m.metrics.HandleDisposed()

	if h.ctrl == nil {
		return
	}

	m.output.Lock()
	h.ctrl.Streamer = nil
	m.output.Unlock()

	if err := h.decoder.Close(); err != nil {
		log.WithError(err).WithField("id", h.id).Warn("⚠️  Failed to close decoder")
	}
	log.WithField("id", h.id).Debug("🗑️  Audio handle disposed")
}
