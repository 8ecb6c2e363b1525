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

package transport

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testURL = "https://sounds.example.com/ambient/rain.mp3"

func newMockClient(t *testing.T, opts ...Option) (*Client, *httpmock.MockTransport) {
	t.Helper()

	mt := httpmock.NewMockTransport()
	opts = append([]Option{
		WithHTTPClient(&http.Client{Transport: mt, Timeout: 5 * time.Second}),
		WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	}, opts...)
	return NewClient("node-1", opts...), mt
}

func audioResponder(status int, body []byte, contentType string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		resp := httpmock.NewBytesResponse(status, body)
		if contentType != "" {
			resp.Header.Set("Content-Type", contentType)
		}
		return resp, nil
	}
}

func TestFetch_Success(t *testing.T) {
	c, mt := newMockClient(t)

	var gotHeaders http.Header
	mt.RegisterResponder(http.MethodGet, testURL, func(req *http.Request) (*http.Response, error) {
		gotHeaders = req.Header.Clone()
		resp := httpmock.NewBytesResponse(http.StatusOK, []byte("ID3 audio"))
		resp.Header.Set("Content-Type", "audio/mpeg")
		return resp, nil
	})

	data, format, err := c.Fetch(context.Background(), testURL)
	require.NoError(t, err)

	assert.Equal(t, []byte("ID3 audio"), data)
	assert.Equal(t, "audio/mpeg", format)
	assert.Equal(t, "node-1", gotHeaders.Get("X-Node-ID"))
	assert.Equal(t, "audio/*", gotHeaders.Get("Accept"))
	assert.Equal(t, userAgent, gotHeaders.Get("User-Agent"))
}

func TestFetch_FormatFromPath(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
	}{
		{name: "no_content_type", contentType: ""},
		{name: "octet_stream", contentType: "application/octet-stream"},
		{name: "unrecognised_audio_subtype", contentType: "audio/x-mp3"},
		{name: "unrecognised_audio_with_params", contentType: "audio/x-mpeg-3; charset=binary"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, mt := newMockClient(t)
			mt.RegisterResponder(http.MethodGet, testURL, audioResponder(http.StatusOK, []byte("data"), tt.contentType))

			_, format, err := c.Fetch(context.Background(), testURL)
			require.NoError(t, err)
			assert.Equal(t, ".mp3", format)
		})
	}
}

func TestFetch_ContentTypeParameters(t *testing.T) {
	c, mt := newMockClient(t)
	mt.RegisterResponder(http.MethodGet, testURL, audioResponder(http.StatusOK, []byte("data"), "audio/wav; codecs=1"))

	_, format, err := c.Fetch(context.Background(), testURL)
	require.NoError(t, err)
	assert.Equal(t, "audio/wav", format)
}

func TestFetch_NonAudioContent(t *testing.T) {
	c, mt := newMockClient(t)
	mt.RegisterResponder(http.MethodGet, testURL, audioResponder(http.StatusOK, []byte("<html>"), "text/html"))

	_, _, err := c.Fetch(context.Background(), testURL)
	assert.ErrorIs(t, err, ErrUnexpectedType)
	assert.Equal(t, 1, mt.GetTotalCallCount(), "content type errors are not retried")
}

func TestFetch_ClientErrorNotRetried(t *testing.T) {
	c, mt := newMockClient(t)
	mt.RegisterResponder(http.MethodGet, testURL, audioResponder(http.StatusNotFound, nil, ""))

	_, _, err := c.Fetch(context.Background(), testURL)

	var status *StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusNotFound, status.Code)
	assert.Equal(t, 1, mt.GetTotalCallCount())
}

func TestFetch_ServerErrorRetried(t *testing.T) {
	c, mt := newMockClient(t, WithMaxRetries(2))

	calls := 0
	mt.RegisterResponder(http.MethodGet, testURL, func(req *http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return httpmock.NewBytesResponse(http.StatusServiceUnavailable, nil), nil
		}
		resp := httpmock.NewBytesResponse(http.StatusOK, []byte("data"))
		resp.Header.Set("Content-Type", "audio/flac")
		return resp, nil
	})

	data, format, err := c.Fetch(context.Background(), testURL)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)
	assert.Equal(t, "audio/flac", format)
	assert.Equal(t, 3, mt.GetTotalCallCount())
}

func TestFetch_RetriesExhausted(t *testing.T) {
	c, mt := newMockClient(t, WithMaxRetries(1))
	mt.RegisterResponder(http.MethodGet, testURL, httpmock.NewErrorResponder(errors.New("connection reset")))

	_, _, err := c.Fetch(context.Background(), testURL)
	assert.ErrorContains(t, err, "connection reset")
	assert.Equal(t, 2, mt.GetTotalCallCount())
}

func TestFetch_TooLarge(t *testing.T) {
	t.Run("declared_length", func(t *testing.T) {
		c, mt := newMockClient(t, WithMaxBytes(4))
		mt.RegisterResponder(http.MethodGet, testURL, func(req *http.Request) (*http.Response, error) {
			resp := httpmock.NewBytesResponse(http.StatusOK, []byte("0123456789"))
			resp.ContentLength = 10
			return resp, nil
		})

		_, _, err := c.Fetch(context.Background(), testURL)
		assert.ErrorIs(t, err, ErrTooLarge)
	})

	t.Run("undeclared_length", func(t *testing.T) {
		c, mt := newMockClient(t, WithMaxBytes(4))
		mt.RegisterResponder(http.MethodGet, testURL, func(req *http.Request) (*http.Response, error) {
			resp := httpmock.NewBytesResponse(http.StatusOK, []byte("0123456789"))
			resp.ContentLength = -1
			return resp, nil
		})

		_, _, err := c.Fetch(context.Background(), testURL)
		assert.ErrorIs(t, err, ErrTooLarge)
		assert.Equal(t, 1, mt.GetTotalCallCount())
	})
}

func TestFetch_InvalidURL(t *testing.T) {
	c, mt := newMockClient(t)

	_, _, err := c.Fetch(context.Background(), "ftp://sounds.example.com/rain.mp3")
	assert.Error(t, err)

	_, _, err = c.Fetch(context.Background(), "http://[::1")
	assert.Error(t, err)

	assert.Equal(t, 0, mt.GetTotalCallCount())
}

func TestFetch_ContextCancelled(t *testing.T) {
	c, mt := newMockClient(t)
	mt.RegisterResponder(http.MethodGet, testURL, audioResponder(http.StatusOK, []byte("data"), "audio/mpeg"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := c.Fetch(ctx, testURL)
	assert.Error(t, err)
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("node-1")
	assert.Equal(t, int64(DefaultMaxBytes), c.maxBytes)
	assert.Equal(t, uint64(DefaultMaxRetries), c.maxRetries)
	assert.Equal(t, DefaultTimeout, c.client.Timeout)
	assert.NotNil(t, c.newBackOff())
}
