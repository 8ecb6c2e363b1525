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

// Package transport fetches remote audio sources over HTTP.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "transport")

const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxBytes   = 64 << 20
	DefaultMaxRetries = 3
	userAgent         = "loqa-dreamtone"
)

var (
	ErrTooLarge       = errors.New("response exceeds size limit")
	ErrUnexpectedType = errors.New("unexpected content type")
)

// StatusError reports a non-2xx response
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithMaxBytes caps the size of a downloaded source
func WithMaxBytes(n int64) Option {
	return func(c *Client) {
		c.maxBytes = n
	}
}

// WithMaxRetries sets how many times transient failures are retried
func WithMaxRetries(n uint64) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithBackOff overrides the retry schedule
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *Client) {
		c.newBackOff = newBackOff
	}
}

// Client downloads audio files for the resource manager
type Client struct {
	client     *http.Client
	nodeID     string
	maxBytes   int64
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

// NewClient creates a client identifying itself as nodeID
func NewClient(nodeID string, opts ...Option) *Client {
	c := &Client{
		client: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		nodeID:     nodeID,
		maxBytes:   DefaultMaxBytes,
		maxRetries: DefaultMaxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = DefaultTimeout
			return b
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch downloads rawURL and returns its body together with a format hint
// taken from the Content-Type header or, failing that, the URL path.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid source URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}

	var data []byte
	var format string
	attempt := 0

	operation := func() error {
		attempt++
		var err error
		data, format, err = c.get(ctx, u)
		if err == nil {
			return nil
		}

		var status *StatusError
		if errors.As(err, &status) && status.Code < http.StatusInternalServerError && status.Code != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		if errors.Is(err, ErrTooLarge) || errors.Is(err, ErrUnexpectedType) {
			return backoff.Permanent(err)
		}

		log.WithError(err).WithFields(logrus.Fields{
			"url":     rawURL,
			"attempt": attempt,
		}).Warn("⚠️  Fetch failed, retrying")
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return nil, "", err
	}

	if format == "" {
		format = path.Ext(u.Path)
	}

	log.WithFields(logrus.Fields{
		"url":    rawURL,
		"bytes":  len(data),
		"format": format,
	}).Debug("📥 Fetched remote source")
	return data, format, nil
}

func (c *Client) get(ctx context.Context, u *url.URL) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "audio/*")
	if c.nodeID != "" {
		req.Header.Set("X-Node-ID", c.nodeID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("GET %s: %w", u.Redacted(), err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("⚠️  Failed to close response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &StatusError{URL: u.Redacted(), Code: resp.StatusCode}
	}
	if c.maxBytes > 0 && resp.ContentLength > c.maxBytes {
		return nil, "", fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	format, err := contentFormat(resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, "", err
	}

	body := io.Reader(resp.Body)
	if c.maxBytes > 0 {
		body = io.LimitReader(resp.Body, c.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", u.Redacted(), err)
	}
	if c.maxBytes > 0 && int64(len(data)) > c.maxBytes {
		return nil, "", fmt.Errorf("%w: more than %d bytes", ErrTooLarge, c.maxBytes)
	}
	return data, format, nil
}

// contentFormat returns a decodable audio media type, "" when the header
// carries no usable hint, or ErrUnexpectedType for non-audio content.
func contentFormat(header string) (string, error) {
	if header == "" {
		return "", nil
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return "", nil
	}
	switch {
	case mediaType == "application/octet-stream":
		return "", nil
	case decodableTypes[mediaType]:
		return mediaType, nil
	case strings.HasPrefix(mediaType, "audio/"):
		// Unrecognised audio subtype, let the URL extension decide
		return "", nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnexpectedType, mediaType)
}

// decodableTypes are the media types the resource decoders recognise
var decodableTypes = map[string]bool{
	"audio/wav":      true,
	"audio/wave":     true,
	"audio/x-wav":    true,
	"audio/vnd.wave": true,
	"audio/mpeg":     true,
	"audio/mp3":      true,
	"audio/flac":     true,
	"audio/x-flac":   true,
}
