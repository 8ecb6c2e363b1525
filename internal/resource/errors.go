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
	"errors"
	"fmt"
)

// Sentinel errors
var (
	// ErrPlaybackBlocked means the output refused to start playback
	ErrPlaybackBlocked = errors.New("playback blocked")
	// ErrNotReady is returned for operations that need a decoded source
	ErrNotReady          = errors.New("audio handle not ready")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrBlobNotFound      = errors.New("blob reference not found")
	ErrRemoteDisabled    = errors.New("remote sources are not enabled")
)

// PlaybackError reports a Play request the platform rejected
type PlaybackError struct {
	ID  string
	Err error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback of %q failed: %v", e.ID, e.Err)
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}

// LoadError reports a source that could not be opened or decoded. The handle
// stays registered in the Errored state until disposed or replaced.
type LoadError struct {
	ID     string
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %q from %s: %v", e.ID, e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
