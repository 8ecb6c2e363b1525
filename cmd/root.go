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
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/loqalabs/loqa-dreamtone/internal/audio"
	"github.com/loqalabs/loqa-dreamtone/internal/config"
	"github.com/loqalabs/loqa-dreamtone/internal/resource"
	"github.com/loqalabs/loqa-dreamtone/internal/transport"
)

var log = logrus.WithField("component", "cli")

// app carries configuration shared by every subcommand
type app struct {
	v          *viper.Viper
	configPath string
	settings   *config.Settings

	// newBackend is swapped in tests
	newBackend func(name string) audio.AudioBackend
}

func newApp() *app {
	return &app{
		v:          config.New(),
		newBackend: defaultBackend,
	}
}

func newRootCommand() *cobra.Command {
	return newApp().rootCommand()
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:               "dreamtone",
		Short:             "Ambient soundscapes and binaural beats for Loqa nodes",
		SilenceUsage:      true,
		PersistentPreRunE: a.initialize,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Path to config file (default ./dreamtone.yaml)")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("backend", config.BackendPortAudio, "Audio backend: portaudio or null")
	flags.Int("sample-rate", audio.DefaultSampleRate, "Output sample rate in Hz")

	bindFlags(a.v, flags, map[string]string{
		"debug":       "debug",
		"log-level":   "loglevel",
		"backend":     "audio.backend",
		"sample-rate": "audio.samplerate",
	})

	root.AddCommand(
		a.serveCommand(),
		a.playCommand(),
		a.binauralCommand(),
		a.renderCommand(),
		a.bandsCommand(),
	)
	return root
}

// bindFlags maps flag names to viper keys. Binding only fails for a nil
// flag, which is a programming error.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("binding flag %q: %v", name, err))
		}
	}
}

func (a *app) initialize(cmd *cobra.Command, _ []string) error {
	settings, err := config.Load(a.v, a.configPath)
	if err != nil {
		return err
	}
	if err := settings.ConfigureLogging(); err != nil {
		return err
	}
	a.settings = settings
	return nil
}

func defaultBackend(name string) audio.AudioBackend {
	if name == config.BackendNull {
		return audio.NewNullAudioBackend()
	}
	return audio.NewPortAudioBackend()
}

// startEngine opens the configured output device
func (a *app) startEngine() (*audio.Engine, error) {
	eng := audio.NewEngine(a.newBackend(a.settings.Audio.Backend), audio.EngineConfig{
		SampleRate:      a.settings.Audio.SampleRate,
		FramesPerBuffer: a.settings.Audio.FramesPerBuffer,
	})
	if err := eng.Start(); err != nil {
		return nil, fmt.Errorf("failed to start audio engine: %w", err)
	}
	return eng, nil
}

// resourceOptions enables remote sources when configured
func (a *app) resourceOptions(nodeID string) []resource.Option {
	if !a.settings.Sources.Remote {
		return nil
	}
	client := transport.NewClient(nodeID,
		transport.WithMaxBytes(a.settings.Sources.MaxBytes),
		transport.WithMaxRetries(a.settings.Sources.Retries),
	)
	return []resource.Option{resource.WithFetcher(client)}
}

// engineOutput hands the running engine to the synthesizer
func engineOutput(eng *audio.Engine) func() (audio.Output, error) {
	return func() (audio.Output, error) {
		if !eng.IsRunning() {
			return nil, audio.ErrEngineStopped
		}
		return eng, nil
	}
}

// runContext is cancelled on SIGINT/SIGTERM or after d when d > 0
func runContext(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	if d <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	return ctx, func() {
		cancel()
		stop()
	}
}
