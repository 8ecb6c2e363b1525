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
	"errors"
	"testing"
	"time"

	"github.com/gopxl/beep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestEngine(t *testing.T) (*Engine, *MockAudioBackend) {
	t.Helper()
	backend := NewMockAudioBackend()
	engine := NewEngine(backend, EngineConfig{SampleRate: 8000, FramesPerBuffer: 256})
	return engine, backend
}

func constantStreamer(left, right float64) beep.Streamer {
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			samples[i][0] = left
			samples[i][1] = right
		}
		return len(samples), true
	})
}

func TestEngine_Defaults(t *testing.T) {
	engine := NewEngine(NewMockAudioBackend(), EngineConfig{})

	assert.Equal(t, beep.SampleRate(DefaultSampleRate), engine.SampleRate())
	assert.Equal(t, DefaultFramesPerBuffer, engine.config.FramesPerBuffer)
	assert.False(t, engine.IsRunning())
}

func TestEngine_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine, backend := newTestEngine(t)

	require.NoError(t, engine.Start())
	assert.True(t, engine.IsRunning())
	assert.True(t, backend.IsInitialized())
	assert.Equal(t, 1, backend.OpenStreams())
	assert.Equal(t, outputChannels, backend.LastStream().Channels())

	assert.ErrorIs(t, engine.Start(), ErrEngineRunning)

	require.NoError(t, engine.Stop())
	assert.False(t, engine.IsRunning())
	assert.False(t, backend.IsInitialized())
	assert.Equal(t, 0, backend.OpenStreams())

	// Second stop is a no-op
	assert.NoError(t, engine.Stop())
}

func TestEngine_Restart(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine, _ := newTestEngine(t)

	require.NoError(t, engine.Start())
	require.NoError(t, engine.Stop())
	require.NoError(t, engine.Start())
	assert.True(t, engine.IsRunning())
	require.NoError(t, engine.Stop())
}

func TestEngine_StartFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("init_error", func(t *testing.T) {
		engine, backend := newTestEngine(t)
		initErr := errors.New("device busy")
		backend.SetInitError(initErr)

		err := engine.Start()
		assert.ErrorIs(t, err, initErr)
		assert.False(t, engine.IsRunning())
	})

	t.Run("create_stream_error", func(t *testing.T) {
		engine, backend := newTestEngine(t)
		streamErr := errors.New("no output device")
		backend.SetCreateStreamError(streamErr)

		err := engine.Start()
		assert.ErrorIs(t, err, streamErr)
		assert.False(t, backend.IsInitialized(), "backend should be terminated after failure")
	})

	t.Run("stop_before_start", func(t *testing.T) {
		engine, _ := newTestEngine(t)
		assert.NoError(t, engine.Stop())
	})
}

func TestEngine_PlayRequiresRunning(t *testing.T) {
	engine, _ := newTestEngine(t)

	err := engine.Play(constantStreamer(0.1, 0.1))
	assert.ErrorIs(t, err, ErrEngineStopped)
	assert.Equal(t, 0, engine.Active())
}

func TestEngine_PumpsMixerToOutput(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine, backend := newTestEngine(t)
	require.NoError(t, engine.Start())
	defer engine.Stop()

	require.NoError(t, engine.Play(constantStreamer(0.5, -1.5)))
	assert.Equal(t, 1, engine.Active())

	require.Eventually(t, func() bool {
		for _, buf := range backend.GetPlaybackAudioData() {
			if len(buf) > 1 && buf[0] == 0.5 {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	for _, buf := range backend.GetPlaybackAudioData() {
		if len(buf) > 1 && buf[0] == 0.5 {
			assert.Len(t, buf, 256*outputChannels)
			assert.Equal(t, float32(-1), buf[1], "right channel should be clipped to -1")
			break
		}
	}
}

func TestEngine_WriteFailureSilencesEngine(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine, backend := newTestEngine(t)
	require.NoError(t, engine.Start())

	writeErr := errors.New("device unplugged")
	backend.LastStream().SetWriteError(writeErr)

	select {
	case err := <-engine.Errors():
		assert.ErrorIs(t, err, writeErr)
	case <-time.After(2 * time.Second):
		t.Fatal("expected write failure to be reported")
	}

	assert.False(t, engine.IsRunning())
	assert.ErrorIs(t, engine.Play(constantStreamer(0, 0)), ErrEngineStopped)
	assert.NoError(t, engine.Stop())
}

func TestEngine_LockBlocksPump(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine, backend := newTestEngine(t)
	require.NoError(t, engine.Start())
	defer engine.Stop()

	engine.Lock()
	before := backend.WriteCount()
	time.Sleep(20 * time.Millisecond)
	after := backend.WriteCount()
	engine.Unlock()

	// At most the buffer already past the lock can land
	assert.LessOrEqual(t, after-before, 1)
}

func TestClampSample(t *testing.T) {
	assert.Equal(t, -1.0, clampSample(-3))
	assert.Equal(t, 1.0, clampSample(2))
	assert.Equal(t, 0.25, clampSample(0.25))
}

func TestEngine_RestartAfterWriteFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine, backend := newTestEngine(t)
	require.NoError(t, engine.Start())

	failed := backend.LastStream()
	failed.SetWriteError(errors.New("device unplugged"))

	select {
	case <-engine.Errors():
	case <-time.After(2 * time.Second):
		t.Fatal("expected write failure to be reported")
	}
	require.False(t, engine.IsRunning())

	require.NoError(t, engine.Start())
	assert.True(t, engine.IsRunning())
	assert.NotSame(t, failed, backend.LastStream())
	assert.Equal(t, 1, backend.OpenStreams(), "failed stream must be closed before reopening")
	assert.False(t, failed.IsActive())

	require.NoError(t, engine.Stop())
	assert.Equal(t, 0, backend.OpenStreams())
}

func TestNullAudioBackend_DiscardsOutput(t *testing.T) {
	defer goleak.VerifyNone(t)

	backend := NewNullAudioBackend()
	backend.SetSimulateRealTiming(false)
	engine := NewEngine(backend, EngineConfig{SampleRate: 8000, FramesPerBuffer: 256})
	require.NoError(t, engine.Start())
	require.NoError(t, engine.Play(constantStreamer(0.5, 0.5)))

	require.Eventually(t, func() bool {
		return backend.WriteCount() > 50
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, engine.Stop())

	assert.Empty(t, backend.GetPlaybackAudioData(), "null backend must not retain buffers")
}
