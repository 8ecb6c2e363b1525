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

import "errors"

// AudioBackend abstracts the platform audio subsystem so the engine can be
// driven by real hardware or by a mock in tests
type AudioBackend interface {
	// Initialize the audio subsystem
	Initialize() error

	// Terminate the audio subsystem
	Terminate() error

	// CreateOutputStream opens an interleaved float32 output stream
	CreateOutputStream(sampleRate float64, channels, bufferSize int) (StreamInterface, error)
}

// StreamInterface abstracts a blocking output stream
type StreamInterface interface {
	// Start the audio stream
	Start() error

	// Stop the audio stream
	Stop() error

	// Close the audio stream and release resources
	Close() error

	// Write blocks until the interleaved buffer has been handed to the device
	Write(data []float32) error

	// IsActive returns true if the stream is currently started
	IsActive() bool
}

// Sentinel errors
var (
	ErrEngineStopped     = errors.New("audio engine not running")
	ErrEngineRunning     = errors.New("audio engine already running")
	ErrBackendNotReady   = errors.New("audio backend not initialized")
	ErrStreamNil         = errors.New("stream is nil")
	ErrStreamNotOpen     = errors.New("stream not open")
	ErrStreamAlreadyOpen = errors.New("stream already active")
)
