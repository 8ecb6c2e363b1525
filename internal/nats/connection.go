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
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "nats")

const (
	connectAttempts = 5
	connectDelay    = 2 * time.Second
)

// Connection is the subset of *nats.Conn used by the control subscriber
type Connection interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	Publish(subject string, data []byte) error
	Close()
}

// ConnectionAdapter adapts *nats.Conn to Connection
type ConnectionAdapter struct {
	conn *nats.Conn
}

func NewConnectionAdapter(conn *nats.Conn) *ConnectionAdapter {
	return &ConnectionAdapter{conn: conn}
}

func (c *ConnectionAdapter) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	return c.conn.Subscribe(subject, cb)
}

func (c *ConnectionAdapter) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

func (c *ConnectionAdapter) Close() {
	c.conn.Close()
}

// Connect dials the NATS server, retrying a few times before giving up
func Connect(url, name string) (*ConnectionAdapter, error) {
	var nc *nats.Conn
	var err error

	for i := 0; i < connectAttempts; i++ {
		nc, err = nats.Connect(url, nats.Name(name))
		if err == nil {
			break
		}
		log.WithError(err).Warnf("⚠️  Failed to connect to NATS (attempt %d/%d)", i+1, connectAttempts)
		if i < connectAttempts-1 {
			time.Sleep(connectDelay)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS after %d attempts: %w", connectAttempts, err)
	}

	log.WithField("url", url).Info("✅ Connected to NATS")
	return NewConnectionAdapter(nc), nil
}

// ControlSubject is the per-node command subject
func ControlSubject(nodeID string) string {
	return fmt.Sprintf("dreamtone.%s.control", nodeID)
}

// BroadcastSubject reaches every node
const BroadcastSubject = "dreamtone.broadcast.control"

// EventSubject carries error events published by a node
func EventSubject(nodeID string) string {
	return fmt.Sprintf("dreamtone.%s.events", nodeID)
}
