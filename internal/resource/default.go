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
	"sync"

	"github.com/loqalabs/loqa-dreamtone/internal/audio"
)

var (
	defaultMu      sync.Mutex
	defaultManager *Manager
)

// Init installs the process-wide manager, disposing any previous one
func Init(out audio.Output, opts ...Option) *Manager {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultManager != nil {
		defaultManager.DisposeAll()
	}
	defaultManager = NewManager(out, opts...)
	return defaultManager
}

// Default returns the process-wide manager, or nil before Init
func Default() *Manager {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultManager
}

// Shutdown disposes every handle of the process-wide manager and discards it
func Shutdown() {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultManager != nil {
		defaultManager.DisposeAll()
		defaultManager = nil
	}
}
