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
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-dreamtone/internal/audio"
	"github.com/loqalabs/loqa-dreamtone/internal/band"
	"github.com/loqalabs/loqa-dreamtone/internal/synth"
)

var errSessionFailed = errors.New("binaural session could not start")

func (a *app) binauralCommand() *cobra.Command {
	var volume float64
	var duration time.Duration

	cmd := &cobra.Command{
		Use:       "binaural [band]",
		Short:     "Play binaural beats for a brainwave band",
		Long:      "Play a binaural beat tuned to delta, theta, alpha, beta or gamma. Headphones required.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: bandNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("volume") {
				volume = a.settings.Volume.Binaural
			}
			return a.binaural(cmd.Context(), args[0], volume, duration)
		},
	}

	cmd.Flags().Float64VarP(&volume, "volume", "v", 30, "Volume 0-100")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	return cmd
}

func (a *app) binaural(parent context.Context, bandName string, volume float64, duration time.Duration) error {
	b, err := band.Lookup(bandName)
	if err != nil {
		return err
	}

	eng, err := a.startEngine()
	if err != nil {
		return err
	}
	defer eng.Stop()

	syn := synth.New(engineOutput(eng))
	defer syn.Close()

	if !syn.Start(string(b.Name), audio.PercentToVolume(volume)) {
		return fmt.Errorf("%w: %s", errSessionFailed, b.Name)
	}

	fmt.Printf("🧠 %s: %s\n", b, b.Description)
	fmt.Println("🎧 Use headphones. Press Ctrl+C to stop")

	ctx, stop := runContext(parent, duration)
	defer stop()

	select {
	case <-ctx.Done():
	case err := <-eng.Errors():
		return fmt.Errorf("audio output failed: %w", err)
	}

	syn.Stop()
	return nil
}

func bandNames() []string {
	bands := band.All()
	names := make([]string, len(bands))
	for i, b := range bands {
		names[i] = string(b.Name)
	}
	return names
}
