// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/rush_recorder/internal/config"
	"github.com/relabs-tech/rush_recorder/internal/ingest"
	"github.com/relabs-tech/rush_recorder/internal/motion"
	"github.com/relabs-tech/rush_recorder/internal/session"
)

// RunRecorder wires the configured sensor, the classifier client and the
// session controller, and serves the status surfaces until ctx is done.
func RunRecorder(ctx context.Context) error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("config not initialized")
	}

	src, err := motion.Open(cfg)
	if err != nil {
		return err
	}

	logger := slog.Default()
	client := ingest.New(cfg.IngestURL,
		ingest.WithTimeout(cfg.RequestTimeout()),
		ingest.WithMaxInFlight(cfg.MaxInFlight),
		ingest.WithLogger(logger),
	)
	log.Printf("recorder: posting %s windows to %s (timeout %s)",
		cfg.WindowDuration, cfg.IngestURL, client.Timeout())

	ctrl := session.New(src, client, session.Settings{
		WindowDuration: cfg.WindowDuration,
		SampleRateHz:   cfg.SampleRateHz,
	}, session.WithLogger(logger))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ctrl.Run(ctx) })

	if cfg.WebServerPort > 0 {
		addr := fmt.Sprintf(":%d", cfg.WebServerPort)
		g.Go(func() error { return RunWeb(ctx, addr, ctrl, cfg.WebRoot) })
	}

	if cfg.MQTTBroker != "" {
		mq, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDRecorder)
		if err != nil {
			log.Printf("recorder: MQTT connect error (%s): %v; continuing without MQTT", cfg.MQTTBroker, err)
		} else {
			log.Printf("recorder: connected to MQTT broker at %s", cfg.MQTTBroker)
			defer mq.Disconnect(250)
			g.Go(func() error {
				return RunStatusMQTT(ctx, mq, ctrl, cfg.TopicStatus, cfg.TopicCommand)
			})
		}
	}

	if cfg.AutoStart {
		if err := ctrl.Start(ctx); err != nil {
			log.Printf("recorder: auto start failed: %v", err)
		}
	}

	err = g.Wait()

	log.Println("recorder: waiting for in-flight windows")
	client.Wait()
	log.Println("recorder: shut down")
	return err
}
