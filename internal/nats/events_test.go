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

package nats

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-dreamtone/internal/resource"
)

func decodeEvent(t *testing.T, data []byte) Event {
	t.Helper()
	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestEventPublisher_Classification(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 22, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		err     error
		typ     string
		id      string
		source  string
		blocked bool
	}{
		{
			name:   "load_error",
			err:    &resource.LoadError{ID: "rain", Source: "rain.wav", Err: errors.New("no such file")},
			typ:    EventLoadError,
			id:     "rain",
			source: "rain.wav",
		},
		{
			name:    "blocked_playback",
			err:     &resource.PlaybackError{ID: "waves", Err: fmt.Errorf("%w: engine stopped", resource.ErrPlaybackBlocked)},
			typ:     EventPlaybackError,
			id:      "waves",
			blocked: true,
		},
		{
			name: "timed_out_playback",
			err:  &resource.PlaybackError{ID: "waves", Err: errors.New("context deadline exceeded")},
			typ:  EventPlaybackError,
			id:   "waves",
		},
		{
			name: "plain_error",
			err:  errors.New("boom"),
			typ:  EventPlaybackError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := NewMockNATSConnection()
			pub := NewEventPublisher(conn, "node-1")
			pub.now = func() time.Time { return fixed }

			pub.Publish(tt.err)

			events := conn.Published("dreamtone.node-1.events")
			require.Len(t, events, 1)

			ev := decodeEvent(t, events[0])
			assert.Equal(t, tt.typ, ev.Type)
			assert.Equal(t, tt.id, ev.ID)
			assert.Equal(t, tt.source, ev.Source)
			assert.Equal(t, tt.blocked, ev.Blocked)
			assert.Equal(t, tt.err.Error(), ev.Error)
			assert.True(t, fixed.Equal(ev.Timestamp))
		})
	}
}

func TestEventPublisher_NilSafe(t *testing.T) {
	var pub *EventPublisher
	assert.NotPanics(t, func() { pub.Publish(errors.New("ignored")) })

	conn := NewMockNATSConnection()
	NewEventPublisher(conn, "node-1").Publish(nil)
	assert.Empty(t, conn.Published("dreamtone.node-1.events"))
}

func TestEventPublisher_PublishFailure(t *testing.T) {
	conn := NewMockNATSConnection()
	conn.publishErr = errors.New("slow consumer")

	assert.NotPanics(t, func() {
		NewEventPublisher(conn, "node-1").Publish(errors.New("boom"))
	})
}
