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
	"time"

	"github.com/loqalabs/loqa-dreamtone/internal/resource"
)

// Event types
const (
	EventLoadError     = "load_error"
	EventPlaybackError = "playback_error"
)

// Event is published when a resource fails to load or play
type Event struct {
	Type      string    `json:"type"`
	NodeID    string    `json:"node_id"`
	ID        string    `json:"id,omitempty"`
	Source    string    `json:"source,omitempty"`
	Blocked   bool      `json:"blocked,omitempty"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// EventPublisher turns resource errors into events on the node's event subject
type EventPublisher struct {
	conn    Connection
	nodeID  string
	subject string
	now     func() time.Time
}

func NewEventPublisher(conn Connection, nodeID string) *EventPublisher {
	return &EventPublisher{
		conn:    conn,
		nodeID:  nodeID,
		subject: EventSubject(nodeID),
		now:     time.Now,
	}
}

// Publish reports err. It matches resource.ErrorObserver so it can be handed
// to resource.WithErrorObserver directly.
func (p *EventPublisher) Publish(err error) {
	if p == nil || err == nil {
		return
	}

	ev := Event{
		NodeID:    p.nodeID,
		Error:     err.Error(),
		Timestamp: p.now().UTC(),
	}

	var loadErr *resource.LoadError
	var playErr *resource.PlaybackError
	switch {
	case errors.As(err, &loadErr):
		ev.Type = EventLoadError
		ev.ID = loadErr.ID
		ev.Source = loadErr.Source
	case errors.As(err, &playErr):
		ev.Type = EventPlaybackError
		ev.ID = playErr.ID
		ev.Blocked = errors.Is(err, resource.ErrPlaybackBlocked)
	default:
		ev.Type = EventPlaybackError
	}

	data, merr := json.Marshal(ev)
	if merr != nil {
		log.WithError(merr).Error("❌ Failed to marshal event")
		return
	}

	if perr := p.conn.Publish(p.subject, data); perr != nil {
		log.WithError(perr).WithField("subject", p.subject).Warn("⚠️  Failed to publish event")
		return
	}
	log.WithField("type", ev.Type).WithField("id", ev.ID).Debug("📤 Published event")
}
