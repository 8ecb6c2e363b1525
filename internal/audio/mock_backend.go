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
	"time"
)

// MockAudioBackend implements AudioBackend without hardware dependencies. It
// backs the test suites and the "null" backend used on headless hosts.
type MockAudioBackend struct {
	mu                 sync.Mutex
	initialized        bool
	streams            map[string]*MockStream
	streamCounter      int
	initError          error
	terminateError     error
	createStreamError  error
	simulateRealTiming bool
	capturePlayback    bool
	playbackAudioData  [][]float32
	writeCount         int
}

// NewMockAudioBackend creates a new mock audio backend
func NewMockAudioBackend() *MockAudioBackend {
	return &MockAudioBackend{
		streams:            make(map[string]*MockStream),
		simulateRealTiming: true,
		capturePlayback:    true,
		playbackAudioData:  make([][]float32, 0),
	}
}

// NewNullAudioBackend returns a mock that paces writes in real time and
// discards them, for running on hosts without an output device
func NewNullAudioBackend() *MockAudioBackend {
	m := NewMockAudioBackend()
	m.capturePlayback = false
	return m
}

// SetInitError configures the backend to return an error on Initialize()
func (m *MockAudioBackend) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initError = err
}

// SetTerminateError configures the backend to return an error on Terminate()
func (m *MockAudioBackend) SetTerminateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminateError = err
}

// SetCreateStreamError configures the backend to return an error on stream creation
func (m *MockAudioBackend) SetCreateStreamError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createStreamError = err
}

// SetSimulateRealTiming controls whether writes sleep for the buffer duration
func (m *MockAudioBackend) SetSimulateRealTiming(simulate bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simulateRealTiming = simulate
}

// SetCapturePlayback controls whether written buffers are retained
func (m *MockAudioBackend) SetCapturePlayback(capture bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capturePlayback = capture
}

// GetPlaybackAudioData returns all audio data that was "played back"
func (m *MockAudioBackend) GetPlaybackAudioData() [][]float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([][]float32, len(m.playbackAudioData))
	copy(result, m.playbackAudioData)
	return result
}

// WriteCount returns the number of buffers written across all streams
func (m *MockAudioBackend) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeCount
}

// IsInitialized reports whether Initialize succeeded and Terminate has not run
func (m *MockAudioBackend) IsInitialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// OpenStreams returns the number of streams not yet closed
func (m *MockAudioBackend) OpenStreams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// LastStream returns the most recently created stream, or nil
func (m *MockAudioBackend) LastStream() *MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := fmt.Sprintf("output_%d", m.streamCounter-1)
	return m.streams[id]
}

// Initialize initializes the mock audio subsystem
func (m *MockAudioBackend) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initError != nil {
		return m.initError
	}

	m.initialized = true
	return nil
}

// Terminate closes every open stream and marks the backend uninitialized
func (m *MockAudioBackend) Terminate() error {
	m.mu.Lock()
	if m.terminateError != nil {
		err := m.terminateError
		m.mu.Unlock()
		return err
	}

	streams := make([]*MockStream, 0, len(m.streams))
	for _, stream := range m.streams {
		streams = append(streams, stream)
	}
	m.mu.Unlock()

	// Streams call back into the backend on Close
	for _, stream := range streams {
		_ = stream.Stop()
		_ = stream.Close()
	}

	m.mu.Lock()
	m.initialized = false
	m.mu.Unlock()
	return nil
}

// CreateOutputStream creates a mock output stream
func (m *MockAudioBackend) CreateOutputStream(sampleRate float64, channels, bufferSize int) (StreamInterface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, ErrBackendNotReady
	}

	if m.createStreamError != nil {
		return nil, m.createStreamError
	}

	streamID := fmt.Sprintf("output_%d", m.streamCounter)
	m.streamCounter++

	stream := &MockStream{
		id:         streamID,
		backend:    m,
		sampleRate: sampleRate,
		channels:   channels,
		bufferSize: bufferSize,
		isOpen:     true,
	}

	m.streams[streamID] = stream
	return stream, nil
}

func (m *MockAudioBackend) record(data []float32) (simulate bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writeCount++
	if m.capturePlayback {
		dataCopy := make([]float32, len(data))
		copy(dataCopy, data)
		m.playbackAudioData = append(m.playbackAudioData, dataCopy)
	}
	return m.simulateRealTiming
}

func (m *MockAudioBackend) forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.streams, id)
}

// MockStream implements StreamInterface for testing
type MockStream struct {
	mu         sync.Mutex
	id         string
	backend    *MockAudioBackend
	sampleRate float64
	channels   int
	bufferSize int
	isOpen     bool
	isActive   bool
	startError error
	stopError  error
	closeError error
	writeError error
}

// SetStartError configures the stream to return an error on Start()
func (m *MockStream) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startError = err
}

// SetStopError configures the stream to return an error on Stop()
func (m *MockStream) SetStopError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopError = err
}

// SetWriteError configures the stream to return an error on Write()
func (m *MockStream) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeError = err
}

// Channels returns the channel count the stream was opened with
func (m *MockStream) Channels() int {
	return m.channels
}

// Start starts the mock stream
func (m *MockStream) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startError != nil {
		return m.startError
	}

	if !m.isOpen {
		return ErrStreamNotOpen
	}

	if m.isActive {
		return ErrStreamAlreadyOpen
	}

	m.isActive = true
	return nil
}

// Stop stops the mock stream
func (m *MockStream) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopError != nil {
		return m.stopError
	}

	m.isActive = false
	return nil
}

// Close closes the mock stream
func (m *MockStream) Close() error {
	m.mu.Lock()
	if m.closeError != nil {
		err := m.closeError
		m.mu.Unlock()
		return err
	}

	if !m.isOpen {
		m.mu.Unlock()
		return nil
	}

	m.isOpen = false
	m.isActive = false
	m.mu.Unlock()

	m.backend.forget(m.id)
	return nil
}

// Write records the audio data handed to the mock output stream
func (m *MockStream) Write(data []float32) error {
	m.mu.Lock()
	if m.writeError != nil {
		err := m.writeError
		m.mu.Unlock()
		return err
	}

	if !m.isOpen {
		m.mu.Unlock()
		return ErrStreamNotOpen
	}
	m.mu.Unlock()

	if m.backend.record(data) {
		frames := len(data) / max(m.channels, 1)
		time.Sleep(time.Duration(float64(frames) / m.sampleRate * float64(time.Second)))
	}

	return nil
}

// IsActive returns true if the mock stream is active
func (m *MockStream) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isActive
}
