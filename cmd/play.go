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

package main

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-dreamtone/internal/audio"
	"github.com/loqalabs/loqa-dreamtone/internal/resource"
)

const (
	loadTimeout  = 30 * time.Second
	pollInterval = 100 * time.Millisecond
)

type playOptions struct {
	volume   float64
	loop     bool
	duration time.Duration
}

func (a *app) playCommand() *cobra.Command {
	opts := playOptions{}

	cmd := &cobra.Command{
		Use:   "play [file|url]",
		Short: "Play an audio file or URL through the output device",
		Long:  "Play a WAV, MP3 or FLAC file or http(s) URL. Looped playback runs until interrupted or --duration elapses.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("volume") {
				opts.volume = a.settings.Volume.Ambient
			}
			return a.play(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().Float64VarP(&opts.volume, "volume", "v", 50, "Volume 0-100")
	cmd.Flags().BoolVarP(&opts.loop, "loop", "l", false, "Loop until stopped")
	cmd.Flags().DurationVar(&opts.duration, "duration", 0, "Stop after this long (0 plays to the end)")
	return cmd
}

func (a *app) play(parent context.Context, path string, opts playOptions) error {
	eng, err := a.startEngine()
	if err != nil {
		return err
	}
	defer eng.Stop()

	manager := resource.NewManager(eng, a.resourceOptions(a.settings.NATS.NodeID)...)
	defer manager.DisposeAll()

	id := filepath.Base(path)
	if u, err := url.Parse(path); err == nil && u.Path != "" {
		id = filepath.Base(u.Path)
	}
	manager.GetOrCreate(id, path, resource.Options{
		Volume: audio.PercentToVolume(opts.volume),
		Loop:   opts.loop,
	})

	ctx, stop := runContext(parent, opts.duration)
	defer stop()

	loadCtx, cancel := context.WithTimeout(ctx, loadTimeout)
	err = manager.Play(loadCtx, id)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to play %s: %w", path, err)
	}

	log.WithField("file", path).Info("🔊 Playing")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-eng.Errors():
			return fmt.Errorf("audio output failed: %w", err)
		case <-ticker.C:
			if !manager.IsPlaying(id) {
				log.WithField("file", path).Info("⏹️  Playback finished")
				return nil
			}
		}
	}
}
