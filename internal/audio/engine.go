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

package audio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gopxl/beep"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultSampleRate matches what most consumer output devices run at natively
	DefaultSampleRate = 44100
	// DefaultFramesPerBuffer keeps latency around 23ms at 44.1kHz
	DefaultFramesPerBuffer = 1024
	// outputChannels is fixed: everything is mixed to stereo
	outputChannels = 2
)

var log = logrus.WithField("component", "audio")

// Output is the playback surface consumers route their streamers into.
// Streamers added with Play must only be mutated between Lock and Unlock.
type Output interface {
	Play(s beep.Streamer) error
	Lock()
	Unlock()
	SampleRate() beep.SampleRate
}

// EngineConfig holds output stream parameters
type EngineConfig struct {
	SampleRate      int
	FramesPerBuffer int
}

// DefaultEngineConfig returns the stock output parameters
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		SampleRate:      DefaultSampleRate,
		FramesPerBuffer: DefaultFramesPerBuffer,
	}
}

// Engine pumps a beep mixer into a backend output stream
type Engine struct {
	backend AudioBackend
	config  EngineConfig

	mu     sync.Mutex // Protects mixer and every streamer inside it
	mixer  *beep.Mixer
	stream StreamInterface

	lifecycle sync.Mutex // Serializes Start/Stop
	running   atomic.Bool
	stopCh    chan struct{}
	errCh     chan error
	wg        sync.WaitGroup
}

// NewEngine creates an engine on top of the given backend
func NewEngine(backend AudioBackend, cfg EngineConfig) *Engine {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = DefaultFramesPerBuffer
	}

	return &Engine{
		backend: backend,
		config:  cfg,
		mixer:   &beep.Mixer{},
		errCh:   make(chan error, 1),
	}
}

// Start initializes the backend, opens the output stream and launches the pump
func (e *Engine) Start() error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if e.running.Load() {
		return ErrEngineRunning
	}

	// A failed write leaves the old stream open
	if e.stream != nil {
		if err := e.stopLocked(); err != nil {
			log.WithError(err).Warn("⚠️  Failed to release previous output stream")
		}
	}

	if err := e.backend.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize audio backend: %w", err)
	}

	stream, err := e.backend.CreateOutputStream(float64(e.config.SampleRate), outputChannels, e.config.FramesPerBuffer)
	if err != nil {
		e.terminateBackend()
		return fmt.Errorf("failed to create output stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		if cerr := stream.Close(); cerr != nil {
			log.WithError(cerr).Warn("⚠️  Failed to close output stream after start failure")
		}
		e.terminateBackend()
		return fmt.Errorf("failed to start output stream: %w", err)
	}

	e.stream = stream
	e.stopCh = make(chan struct{})
	e.running.Store(true)

	e.wg.Add(1)
	go e.pump(stream, e.stopCh)

	log.WithFields(logrus.Fields{
		"sample_rate":       e.config.SampleRate,
		"frames_per_buffer": e.config.FramesPerBuffer,
	}).Info("🔊 Audio engine started")
	return nil
}

// pump streams the mixer into the output until stopped or a write fails
func (e *Engine) pump(stream StreamInterface, stopCh <-chan struct{}) {
	defer e.wg.Done()

	samples := make([][2]float64, e.config.FramesPerBuffer)
	out := make([]float32, e.config.FramesPerBuffer*outputChannels)

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		e.mu.Lock()
		n, _ := e.mixer.Stream(samples)
		e.mu.Unlock()

		for i := 0; i < n; i++ {
			out[i*2] = float32(clampSample(samples[i][0]))
			out[i*2+1] = float32(clampSample(samples[i][1]))
		}
		clear(out[n*2:])

		if err := stream.Write(out); err != nil {
			log.WithError(err).Error("❌ Output stream write failed, engine going silent")
			e.running.Store(false)
			select {
			case e.errCh <- fmt.Errorf("output write failed: %w", err):
			default:
			}
			return
		}
	}
}

// Stop halts the pump, clears the mixer and releases the backend
func (e *Engine) Stop() error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	return e.stopLocked()
}

func (e *Engine) stopLocked() error {
	if e.stream == nil {
		return nil
	}

	e.running.Store(false)
	close(e.stopCh)
	e.wg.Wait()

	e.mu.Lock()
	e.mixer.Clear()
	e.mu.Unlock()

	var firstErr error
	if err := e.stream.Stop(); err != nil {
		firstErr = fmt.Errorf("failed to stop output stream: %w", err)
	}
	if err := e.stream.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close output stream: %w", err)
	}
	e.stream = nil

	if err := e.backend.Terminate(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to terminate audio backend: %w", err)
	}

	log.Info("🔇 Audio engine stopped")
	return firstErr
}

func (e *Engine) terminateBackend() {
	if err := e.backend.Terminate(); err != nil {
		log.WithError(err).Warn("⚠️  Failed to terminate audio backend")
	}
}

// Play adds a streamer to the mixer. Finished streamers are dropped by the mixer.
func (e *Engine) Play(s beep.Streamer) error {
	if !e.running.Load() {
		return ErrEngineStopped
	}

	e.mu.Lock()
	e.mixer.Add(s)
	e.mu.Unlock()
	return nil
}

// Lock acquires the graph lock; the pump is blocked until Unlock
func (e *Engine) Lock() {
	e.mu.Lock()
}

// Unlock releases the graph lock
func (e *Engine) Unlock() {
	e.mu.Unlock()
}

// SampleRate returns the output sample rate
func (e *Engine) SampleRate() beep.SampleRate {
	return beep.SampleRate(e.config.SampleRate)
}

// IsRunning returns true while the pump is feeding the output
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// Active returns the number of streamers currently in the mixer
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mixer.Len()
}

// Errors delivers the write failure that silenced the engine, if any
func (e *Engine) Errors() <-chan error {
	return e.errCh
}

func clampSample(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
