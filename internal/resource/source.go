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
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/flac"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/wav"
)

const blobScheme = "blob:"

// Opener turns a source location into a decoded stream. ctx is cancelled when
// the handle being loaded is disposed.
type Opener func(ctx context.Context, location string) (beep.StreamSeekCloser, beep.Format, error)

type blob struct {
	data   []byte
	format string
}

// BlobStore keeps uploaded audio in memory behind opaque blob: references
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string]blob
}

// NewBlobStore creates an empty store
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string]blob)}
}

// Put stores data and returns a reference usable as a source location.
// format is a file extension or name such as "wav" or "track.mp3".
func (s *BlobStore) Put(data []byte, format string) string {
	ref := blobScheme + uuid.NewString()

	s.mu.Lock()
	s.blobs[ref] = blob{data: data, format: normalizeFormat(format)}
	s.mu.Unlock()
	return ref
}

// Revoke releases a reference. Handles already decoded from it keep playing.
func (s *BlobStore) Revoke(ref string) {
	s.mu.Lock()
	delete(s.blobs, ref)
	s.mu.Unlock()
}

// Len returns the number of live references
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

func (s *BlobStore) get(ref string) (blob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[ref]
	return b, ok
}

// Fetcher downloads remote sources, returning the body and a format hint
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// Resolver opens filesystem paths, file:// URLs, blob: references and, when
// a Fetcher is set, http(s) URLs
type Resolver struct {
	Blobs   *BlobStore
	Fetcher Fetcher
}

// Open resolves and decodes a location
func (r *Resolver) Open(ctx context.Context, location string) (beep.StreamSeekCloser, beep.Format, error) {
	if strings.HasPrefix(location, blobScheme) {
		if r.Blobs == nil {
			return nil, beep.Format{}, ErrBlobNotFound
		}
		b, ok := r.Blobs.get(location)
		if !ok {
			return nil, beep.Format{}, fmt.Errorf("%w: %s", ErrBlobNotFound, location)
		}
		return Decode(nopCloser{bytes.NewReader(b.data)}, b.format)
	}

	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		if r.Fetcher == nil {
			return nil, beep.Format{}, fmt.Errorf("%w: %s", ErrRemoteDisabled, location)
		}
		data, format, err := r.Fetcher.Fetch(ctx, location)
		if err != nil {
			return nil, beep.Format{}, err
		}
		return Decode(nopCloser{bytes.NewReader(data)}, format)
	}

	path := location
	if strings.HasPrefix(location, "file://") {
		u, err := url.Parse(location)
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("invalid file URL: %w", err)
		}
		path = u.Path
	}

	format := normalizeFormat(filepath.Ext(path))
	if format == "" {
		return nil, beep.Format{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}
	return Decode(f, format)
}

// Decode decodes rc as the given format. rc is closed on failure and by the
// returned streamer's Close otherwise.
func Decode(rc io.ReadCloser, format string) (beep.StreamSeekCloser, beep.Format, error) {
	var (
		s   beep.StreamSeekCloser
		f   beep.Format
		err error
	)

	switch normalizeFormat(format) {
	case "wav":
		s, f, err = wav.Decode(rc)
	case "mp3":
		s, f, err = mp3.Decode(rc)
	case "flac":
		s, f, err = flac.Decode(rc)
	default:
		rc.Close()
		return nil, beep.Format{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	if err != nil {
		rc.Close()
		return nil, beep.Format{}, fmt.Errorf("decode %s: %w", format, err)
	}
	return s, f, nil
}

func normalizeFormat(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimPrefix(name, "audio/")

	switch name {
	case "wav", "wave", "x-wav":
		return "wav"
	case "mp3", "mpeg":
		return "mp3"
	case "flac", "x-flac":
		return "flac"
	}
	return ""
}

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }
