// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/rush_recorder/internal/app"
	"github.com/relabs-tech/rush_recorder/internal/config"
)

func main() {
	configPath := flag.String("config", "./rush_config.txt", "path to configuration file")
	verbose := flag.Bool("v", false, "log every classified window")
	flag.Parse()

	log.Println("starting rush-recorder (accelerometer → classifier)")

	if *verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunRecorder(ctx); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
