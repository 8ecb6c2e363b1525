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

import "sync"

var (
	defaultMu    sync.Mutex
	defaultSynth *Synthesizer
)

// Init installs the process-wide synthesizer, closing any previous one
func Init(factory ContextFactory, opts ...Option) *Synthesizer {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultSynth != nil {
		defaultSynth.Close()
	}
	defaultSynth = New(factory, opts...)
	return defaultSynth
}

// Default returns the process-wide synthesizer, or nil before Init
func Default() *Synthesizer {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultSynth
}

// Shutdown stops and discards the process-wide synthesizer
func Shutdown() {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultSynth != nil {
		defaultSynth.Close()
		defaultSynth = nil
	}
}
