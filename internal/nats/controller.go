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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/loqalabs/loqa-dreamtone/internal/audio"
	"github.com/loqalabs/loqa-dreamtone/internal/resource"
	"github.com/loqalabs/loqa-dreamtone/internal/synth"
)

// Command actions
const (
	ActionLoad           = "load"
	ActionReplace        = "replace"
	ActionPlay           = "play"
	ActionPause          = "pause"
	ActionVolume         = "volume"
	ActionSeek           = "seek"
	ActionDispose        = "dispose"
	ActionStatus         = "status"
	ActionBinauralStart  = "binaural_start"
	ActionBinauralStop   = "binaural_stop"
	ActionBinauralVolume = "binaural_volume"
)

// DefaultPlayTimeout bounds how long a play command waits for loading
const DefaultPlayTimeout = 10 * time.Second

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrMissingID     = errors.New("missing resource id")
	ErrMissingSource = errors.New("missing source or data")
	ErrMissingVolume = errors.New("missing volume")
	ErrSynthFailed   = errors.New("binaural session could not start")
)

// Command is a JSON control message. Volumes use the 0-100 UI scale.
type Command struct {
	Action   string   `json:"action"`
	ID       string   `json:"id,omitempty"`
	Source   string   `json:"source,omitempty"`
	Data     []byte   `json:"data,omitempty"`   // inline audio, base64 in JSON
	Format   string   `json:"format,omitempty"` // format of Data, e.g. "mp3"
	Loop     bool     `json:"loop,omitempty"`
	Volume   *float64 `json:"volume,omitempty"`
	Position float64  `json:"position,omitempty"` // seconds
	Band     string   `json:"band,omitempty"`
}

// ResourceStatus describes one registered handle
type ResourceStatus struct {
	ID       string  `json:"id"`
	State    string  `json:"state"`
	Playing  bool    `json:"playing"`
	Volume   float64 `json:"volume"`
	Position float64 `json:"position"`
}

// BinauralStatus describes the synthesizer
type BinauralStatus struct {
	Active bool    `json:"active"`
	Band   string  `json:"band,omitempty"`
	Volume float64 `json:"volume"`
}

// Reply answers a command sent with a reply subject
type Reply struct {
	OK        bool             `json:"ok"`
	Error     string           `json:"error,omitempty"`
	Resources []ResourceStatus `json:"resources,omitempty"`
	Binaural  *BinauralStatus  `json:"binaural,omitempty"`
}

// ControllerConfig holds per-node settings
type ControllerConfig struct {
	NodeID                string
	PlayTimeout           time.Duration
	DefaultAmbientVolume  float64 // 0-100
	DefaultBinauralVolume float64 // 0-100
}

// Controller applies remote commands to the resource manager and synthesizer
type Controller struct {
	conn    Connection
	cfg     ControllerConfig
	manager *resource.Manager
	synth   *synth.Synthesizer
	subs    []*nats.Subscription

	// pending plays wait for loads off the subscription goroutine
	ctx     context.Context
	cancel  context.CancelFunc
	pending sync.WaitGroup
}

func NewController(conn Connection, cfg ControllerConfig, manager *resource.Manager, s *synth.Synthesizer) *Controller {
	if cfg.PlayTimeout <= 0 {
		cfg.PlayTimeout = DefaultPlayTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		conn:    conn,
		cfg:     cfg,
		manager: manager,
		synth:   s,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to the node and broadcast control subjects
func (c *Controller) Start() error {
	for _, subject := range []string{ControlSubject(c.cfg.NodeID), BroadcastSubject} {
		sub, err := c.conn.Subscribe(subject, c.handleMessage)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		c.subs = append(c.subs, sub)
	}

	log.WithFields(logrus.Fields{
		"node":      c.cfg.NodeID,
		"broadcast": BroadcastSubject,
	}).Info("🎧 Subscribed to control subjects")
	return nil
}

// Close abandons pending plays and drops the underlying connection
func (c *Controller) Close() {
	c.cancel()
	c.pending.Wait()
	if c.conn != nil {
		c.conn.Close()
		log.Info("🔌 NATS connection closed")
	}
}

func (c *Controller) handleMessage(msg *nats.Msg) {
	var cmd Command
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		log.WithError(err).Warn("❌ Failed to unmarshal control command")
		c.reply(msg, Reply{Error: fmt.Sprintf("invalid command: %v", err)})
		return
	}

	log.WithFields(logrus.Fields{
		"action":  cmd.Action,
		"id":      cmd.ID,
		"subject": msg.Subject,
	}).Debug("📥 Control command received")

	if cmd.Action == ActionPlay {
		c.pending.Add(1)
		go func() {
			defer c.pending.Done()
			c.execute(msg, cmd)
		}()
		return
	}
	c.execute(msg, cmd)
}

func (c *Controller) execute(msg *nats.Msg, cmd Command) {
	reply, err := c.Execute(cmd)
	if err != nil {
		log.WithError(err).WithField("action", cmd.Action).Warn("⚠️  Control command failed")
		reply.Error = err.Error()
	} else {
		reply.OK = true
	}
	c.reply(msg, reply)
}

func (c *Controller) reply(msg *nats.Msg, r Reply) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(r)
	if err != nil {
		log.WithError(err).Error("❌ Failed to marshal reply")
		return
	}
	if err := c.conn.Publish(msg.Reply, data); err != nil {
		log.WithError(err).Warn("⚠️  Failed to publish reply")
	}
}

// Execute applies one command
func (c *Controller) Execute(cmd Command) (Reply, error) {
	switch cmd.Action {
	case ActionLoad, ActionReplace:
		return Reply{}, c.load(cmd)
	case ActionPlay:
		if cmd.ID == "" {
			return Reply{}, ErrMissingID
		}
		ctx, cancel := context.WithTimeout(c.ctx, c.cfg.PlayTimeout)
		defer cancel()
		return Reply{}, c.manager.Play(ctx, cmd.ID)
	case ActionPause:
		if cmd.ID == "" {
			return Reply{}, ErrMissingID
		}
		c.manager.Pause(cmd.ID)
	case ActionVolume:
		if cmd.ID == "" {
			return Reply{}, ErrMissingID
		}
		if cmd.Volume == nil {
			return Reply{}, ErrMissingVolume
		}
		c.manager.SetVolume(cmd.ID, audio.PercentToVolume(*cmd.Volume))
	case ActionSeek:
		if cmd.ID == "" {
			return Reply{}, ErrMissingID
		}
		return Reply{}, c.manager.Seek(cmd.ID, cmd.Position)
	case ActionDispose:
		if cmd.ID == "" {
			return Reply{}, ErrMissingID
		}
		c.manager.Dispose(cmd.ID)
	case ActionStatus:
		return c.status(), nil
	case ActionBinauralStart:
		if !c.synth.Start(cmd.Band, c.volumeOr(cmd.Volume, c.cfg.DefaultBinauralVolume)) {
			return Reply{}, fmt.Errorf("%w: band %q", ErrSynthFailed, cmd.Band)
		}
	case ActionBinauralStop:
		c.synth.Stop()
	case ActionBinauralVolume:
		if cmd.Volume == nil {
			return Reply{}, ErrMissingVolume
		}
		c.synth.SetVolume(audio.PercentToVolume(*cmd.Volume))
	default:
		return Reply{}, fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}
	return Reply{}, nil
}

func (c *Controller) load(cmd Command) error {
	if cmd.ID == "" {
		return ErrMissingID
	}

	source := cmd.Source
	if len(cmd.Data) > 0 {
		source = c.manager.Blobs().Put(cmd.Data, cmd.Format)
	}
	if source == "" {
		return ErrMissingSource
	}

	opts := resource.Options{
		Volume: c.volumeOr(cmd.Volume, c.cfg.DefaultAmbientVolume),
		Loop:   cmd.Loop,
	}

	var h *resource.Handle
	if cmd.Action == ActionReplace {
		h = c.manager.Replace(cmd.ID, source, opts)
	} else {
		h = c.manager.GetOrCreate(cmd.ID, source, opts)
	}

	if len(cmd.Data) > 0 {
		c.revokeAfterLoad(h, source)
	}
	return nil
}

// revokeAfterLoad drops an uploaded blob once nothing needs to open it again.
// A decoded handle keeps its own reference to the bytes.
func (c *Controller) revokeAfterLoad(h *resource.Handle, ref string) {
	if h.Source() != ref {
		c.manager.Blobs().Revoke(ref)
		return
	}
	go func() {
		<-h.Loaded()
		c.manager.Blobs().Revoke(ref)
	}()
}

func (c *Controller) volumeOr(percent *float64, fallback float64) float64 {
	if percent != nil {
		return audio.PercentToVolume(*percent)
	}
	return audio.PercentToVolume(fallback)
}

func (c *Controller) status() Reply {
	ids := c.manager.IDs()
	resources := make([]ResourceStatus, 0, len(ids))
	for _, id := range ids {
		state, ok := c.manager.State(id)
		if !ok {
			continue
		}
		vol, _ := c.manager.Volume(id)
		pos, _ := c.manager.Position(id)
		resources = append(resources, ResourceStatus{
			ID:       id,
			State:    state.String(),
			Playing:  c.manager.IsPlaying(id),
			Volume:   vol,
			Position: pos,
		})
	}

	bs := &BinauralStatus{Active: c.synth.IsActive(), Volume: c.synth.Volume()}
	if b, ok := c.synth.CurrentBand(); ok {
		bs.Band = string(b.Name)
	}

	return Reply{Resources: resources, Binaural: bs}
}
