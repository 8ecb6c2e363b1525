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
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFormat(t *testing.T) {
	tests := map[string]string{
		"wav":         "wav",
		".WAV":        "wav",
		"track.wave":  "wav",
		"audio/x-wav": "wav",
		"song.mp3":    "mp3",
		"audio/mpeg":  "mp3",
		"FLAC":        "flac",
		"notes.txt":   "",
		"":            "",
	}

	for in, want := range tests {
		assert.Equal(t, want, normalizeFormat(in), "normalizeFormat(%q)", in)
	}
}

type trackingCloser struct {
	*bytes.Reader
	closed bool
}

func (c *trackingCloser) Close() error {
	c.closed = true
	return nil
}

func TestDecode_ClosesOnFailure(t *testing.T) {
	t.Run("unsupported", func(t *testing.T) {
		rc := &trackingCloser{Reader: bytes.NewReader(nil)}
		_, _, err := Decode(rc, "ogg")
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
		assert.True(t, rc.closed)
	})

	t.Run("corrupt", func(t *testing.T) {
		rc := &trackingCloser{Reader: bytes.NewReader([]byte("definitely not riff"))}
		_, _, err := Decode(rc, "wav")
		assert.Error(t, err)
		assert.True(t, rc.closed)
	})
}

func TestResolver_Locations(t *testing.T) {
	path := writeTone(t, t.TempDir(), "tone.wav", testRate, 100*time.Millisecond)
	r := &Resolver{Blobs: NewBlobStore()}
	ctx := context.Background()

	t.Run("plain_path", func(t *testing.T) {
		s, format, err := r.Open(ctx, path)
		require.NoError(t, err)
		defer s.Close()
		assert.Equal(t, testRate, format.SampleRate)
		assert.Equal(t, testRate.N(100*time.Millisecond), s.Len())
	})

	t.Run("file_url", func(t *testing.T) {
		s, _, err := r.Open(ctx, "file://"+path)
		require.NoError(t, err)
		s.Close()
	})

	t.Run("unknown_blob", func(t *testing.T) {
		_, _, err := r.Open(ctx, "blob:00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, ErrBlobNotFound)
	})

	t.Run("no_blob_store", func(t *testing.T) {
		_, _, err := (&Resolver{}).Open(ctx, "blob:anything")
		assert.ErrorIs(t, err, ErrBlobNotFound)
	})

	t.Run("no_extension", func(t *testing.T) {
		_, _, err := r.Open(ctx, "/tmp/rainfall")
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})
}

func TestBlobStore_UniqueRefs(t *testing.T) {
	store := NewBlobStore()
	a := store.Put([]byte{1}, "wav")
	b := store.Put([]byte{1}, "wav")

	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, store.Len())

	store.Revoke(a)
	store.Revoke("blob:unknown")
	assert.Equal(t, 1, store.Len())
}

func TestLoadState_String(t *testing.T) {
	assert.Equal(t, "unloaded", Unloaded.String())
	assert.Equal(t, "loading", Loading.String())
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "errored", Errored.String())
	assert.Equal(t, "unknown", LoadState(42).String())
}

type stubFetcher struct {
	data   []byte
	format string
	err    error
	urls   []string
}

func (f *stubFetcher) Fetch(_ context.Context, url string) ([]byte, string, error) {
	f.urls = append(f.urls, url)
	return f.data, f.format, f.err
}

func TestResolver_Remote(t *testing.T) {
	path := writeTone(t, t.TempDir(), "tone.wav", testRate, 100*time.Millisecond)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		_, _, err := (&Resolver{}).Open(ctx, "https://example.com/rain.wav")
		assert.ErrorIs(t, err, ErrRemoteDisabled)
	})

	t.Run("fetched", func(t *testing.T) {
		f := &stubFetcher{data: data, format: "audio/wav"}
		s, format, err := (&Resolver{Fetcher: f}).Open(ctx, "https://example.com/rain")
		require.NoError(t, err)
		defer s.Close()

		assert.Equal(t, testRate, format.SampleRate)
		assert.Equal(t, []string{"https://example.com/rain"}, f.urls)
	})

	t.Run("fetch_error", func(t *testing.T) {
		f := &stubFetcher{err: errors.New("connection refused")}
		_, _, err := (&Resolver{Fetcher: f}).Open(ctx, "http://example.com/rain.wav")
		assert.ErrorContains(t, err, "connection refused")
	})

	t.Run("manager_option", func(t *testing.T) {
		f := &stubFetcher{data: data, format: ".wav"}
		m := NewManager(newFakeOutput(), WithFetcher(f))
		defer m.DisposeAll()

		h := m.GetOrCreate("remote", "https://example.com/rain.wav", Options{Volume: 1})
		waitLoaded(t, h)
		assert.Equal(t, Ready, h.State())
	})
}
