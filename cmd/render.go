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
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-dreamtone/internal/audio"
	"github.com/loqalabs/loqa-dreamtone/internal/render"
)

func (a *app) renderCommand() *cobra.Command {
	var output string
	opts := render.Options{}
	var volume float64

	cmd := &cobra.Command{
		Use:   "render [band]",
		Short: "Render a binaural session to a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Band = args[0]
			if cmd.Flags().Changed("volume") {
				opts.Volume = audio.PercentToVolume(volume)
			} else {
				opts.Volume = audio.PercentToVolume(a.settings.Volume.Binaural)
			}
			if opts.SampleRate == 0 {
				opts.SampleRate = a.settings.Audio.SampleRate
			}
			return renderFile(output, opts)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "binaural.wav", "Output WAV path")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 10*time.Minute, "Session length")
	cmd.Flags().Float64VarP(&volume, "volume", "v", 30, "Volume 0-100")
	cmd.Flags().IntVar(&opts.SampleRate, "rate", 0, "Sample rate of the file (default: audio.samplerate)")
	return cmd
}

func renderFile(path string, opts render.Options) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := render.Binaural(f, opts); err != nil {
		return err
	}

	log.WithField("file", path).Info("💾 Binaural session rendered")
	return nil
}
