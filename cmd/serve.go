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
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-dreamtone/internal/metrics"
	"github.com/loqalabs/loqa-dreamtone/internal/nats"
	"github.com/loqalabs/loqa-dreamtone/internal/resource"
	"github.com/loqalabs/loqa-dreamtone/internal/synth"
)

const metricsShutdownTimeout = 5 * time.Second

func (a *app) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the audio node and accept remote control over NATS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.Bool("nats", false, "Enable the NATS control subscriber")
	flags.String("nats-url", "nats://localhost:4222", "NATS server URL")
	flags.String("node-id", "dreamtone-001", "Node identifier used in control subjects")
	flags.Bool("metrics", false, "Serve Prometheus metrics")
	flags.String("metrics-listen", "localhost:9464", "Metrics listen address")

	bindFlags(a.v, flags, map[string]string{
		"nats":           "nats.enabled",
		"nats-url":       "nats.url",
		"node-id":        "nats.nodeid",
		"metrics":        "metrics.enabled",
		"metrics-listen": "metrics.listen",
	})
	return cmd
}

func (a *app) serve(parent context.Context) error {
	s := a.settings

	log.WithFields(logrus.Fields{
		"backend":     s.Audio.Backend,
		"sample_rate": s.Audio.SampleRate,
		"node":        s.NATS.NodeID,
	}).Info("🚀 Starting Dreamtone audio node")

	eng, err := a.startEngine()
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Stop(); err != nil {
			log.WithError(err).Warn("⚠️  Audio engine did not stop cleanly")
		}
	}()

	var mt *metrics.Metrics
	if s.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		if mt, err = metrics.New(reg); err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		srv := startMetricsServer(s.Metrics.Listen, reg)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.WithError(err).Warn("⚠️  Metrics server shutdown failed")
			}
		}()
	}

	var conn nats.Connection
	var events *nats.EventPublisher
	if s.NATS.Enabled {
		adapter, err := nats.Connect(s.NATS.URL, "dreamtone-"+s.NATS.NodeID)
		if err != nil {
			return err
		}
		conn = adapter
		events = nats.NewEventPublisher(conn, s.NATS.NodeID)
	}

	opts := append(a.resourceOptions(s.NATS.NodeID),
		resource.WithMetrics(mt),
		resource.WithErrorObserver(events.Publish),
	)
	manager := resource.Init(eng, opts...)
	defer resource.Shutdown()

	syn := synth.Init(engineOutput(eng), synth.WithMetrics(mt))
	defer synth.Shutdown()

	if conn != nil {
		ctl := nats.NewController(conn, nats.ControllerConfig{
			NodeID:                s.NATS.NodeID,
			DefaultAmbientVolume:  s.Volume.Ambient,
			DefaultBinauralVolume: s.Volume.Binaural,
		}, manager, syn)
		defer ctl.Close()

		if err := ctl.Start(); err != nil {
			return err
		}
	}

	log.Info("✅ Dreamtone node ready, press Ctrl+C to stop")

	ctx, stop := runContext(parent, 0)
	defer stop()

	select {
	case <-ctx.Done():
		log.Info("🛑 Shutting down Dreamtone node...")
		return nil
	case err := <-eng.Errors():
		return fmt.Errorf("audio output failed: %w", err)
	}
}

func startMetricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.WithField("addr", addr).Info("📊 Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("❌ Metrics server failed")
		}
	}()
	return srv
}
