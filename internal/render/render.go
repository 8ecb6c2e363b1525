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

// Package render writes binaural sessions to WAV files for offline listening.
package render

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gopxl/beep"
	"github.com/sirupsen/logrus"

	"github.com/loqalabs/loqa-dreamtone/internal/audio"
	"github.com/loqalabs/loqa-dreamtone/internal/band"
	"github.com/loqalabs/loqa-dreamtone/internal/synth"
)

const (
	bitDepth     = 16
	channels     = 2
	pcmFormat    = 1
	chunkFrames  = 4096
	maxSampleInt = math.MaxInt16
)

var log = logrus.WithField("component", "render")

// Options describes one rendered session
type Options struct {
	Band       string
	Volume     float64
	Duration   time.Duration
	SampleRate int
}

// Binaural renders opts as 16-bit stereo PCM WAV into w
func Binaural(w io.WriteSeeker, opts Options) error {
	if opts.Duration <= 0 {
		return errors.New("render duration must be positive")
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = audio.DefaultSampleRate
	}

	b, err := band.Lookup(opts.Band)
	if err != nil {
		return err
	}

	rate := beep.SampleRate(opts.SampleRate)
	graph, err := synth.NewGraph(rate, b, opts.Volume)
	if err != nil {
		return fmt.Errorf("build graph: %w", err)
	}

	enc := wav.NewEncoder(w, opts.SampleRate, bitDepth, channels, pcmFormat)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: opts.SampleRate},
		SourceBitDepth: bitDepth,
		Data:           make([]int, 0, chunkFrames*channels),
	}
	samples := make([][2]float64, chunkFrames)
	src := beep.Take(rate.N(opts.Duration), graph.Streamer())

	total := 0
	for {
		n, ok := src.Stream(samples)
		if n > 0 {
			buf.Data = buf.Data[:0]
			for _, s := range samples[:n] {
				buf.Data = append(buf.Data, toInt(s[0]), toInt(s[1]))
			}
			if err := enc.Write(buf); err != nil {
				return fmt.Errorf("write samples: %w", err)
			}
			total += n
		}
		if !ok {
			break
		}
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}

	log.WithFields(logrus.Fields{
		"band":     b.Name,
		"frames":   total,
		"left_hz":  graph.LeftFrequency,
		"right_hz": graph.RightFrequency,
	}).Info("💾 Binaural session rendered")
	return nil
}

func toInt(v float64) int {
	v = max(-1, min(1, v))
	return int(math.Round(v * maxSampleInt))
}
