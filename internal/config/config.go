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

// Package config loads runtime settings from defaults, an optional YAML file
// and DREAMTONE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const envPrefix = "DREAMTONE"

// Backend names
const (
	BackendPortAudio = "portaudio"
	BackendNull      = "null"
)

// AudioSettings configures the output engine
type AudioSettings struct {
	Backend         string `mapstructure:"backend"`
	SampleRate      int    `mapstructure:"samplerate"`
	FramesPerBuffer int    `mapstructure:"framesperbuffer"`
}

// VolumeSettings are default volumes on the 0-100 UI scale
type VolumeSettings struct {
	Ambient  float64 `mapstructure:"ambient"`
	Binaural float64 `mapstructure:"binaural"`
}

// NATSSettings configures the remote control subscriber
type NATSSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	NodeID  string `mapstructure:"nodeid"`
}

// SourceSettings controls where audio may be loaded from
type SourceSettings struct {
	Remote   bool   `mapstructure:"remote"`
	MaxBytes int64  `mapstructure:"maxbytes"`
	Retries  uint64 `mapstructure:"retries"`
}

// MetricsSettings configures the Prometheus endpoint
type MetricsSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// Settings is the full runtime configuration
type Settings struct {
	Debug    bool            `mapstructure:"debug"`
	LogLevel string          `mapstructure:"loglevel"`
	Audio    AudioSettings   `mapstructure:"audio"`
	Volume   VolumeSettings  `mapstructure:"volume"`
	Sources  SourceSettings  `mapstructure:"sources"`
	NATS     NATSSettings    `mapstructure:"nats"`
	Metrics  MetricsSettings `mapstructure:"metrics"`
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("loglevel", "info")

	v.SetDefault("audio.backend", BackendPortAudio)
	v.SetDefault("audio.samplerate", 44100)
	v.SetDefault("audio.framesperbuffer", 1024)

	v.SetDefault("volume.ambient", 50)
	v.SetDefault("volume.binaural", 30)

	v.SetDefault("sources.remote", true)
	v.SetDefault("sources.maxbytes", 64<<20)
	v.SetDefault("sources.retries", 3)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.nodeid", "dreamtone-001")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "localhost:9464")
}

// New returns a viper instance with defaults and environment binding applied
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads an optional config file into v and decodes the result. An empty
// path searches ./dreamtone.yaml and $HOME/.config/dreamtone/.
func Load(v *viper.Viper, path string) (*Settings, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("dreamtone")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/dreamtone")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate rejects settings the engine cannot run with
func (s *Settings) Validate() error {
	switch s.Audio.Backend {
	case BackendPortAudio, BackendNull:
	default:
		return fmt.Errorf("unknown audio backend %q", s.Audio.Backend)
	}
	if s.Audio.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", s.Audio.SampleRate)
	}
	if s.Audio.FramesPerBuffer <= 0 {
		return fmt.Errorf("invalid frames per buffer %d", s.Audio.FramesPerBuffer)
	}
	if s.NATS.Enabled && s.NATS.NodeID == "" {
		return errors.New("nats.nodeid is required when NATS is enabled")
	}
	return nil
}

// ConfigureLogging applies the log level to the global logrus logger
func (s *Settings) ConfigureLogging() error {
	level := s.LogLevel
	if s.Debug {
		level = "debug"
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}
