// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/calibration/main.go
//
// Guided 6-point (±X, ±Y, ±Z) accelerometer calibration for the configured
// sensor source. Writes a JSON file with per-axis bias and scale (in g) that
// the recorder applies when ACCEL_CALIBRATION_FILE points to it.
//
// Run:
//
//	go run ./cmd/calibration -config rush_config.txt
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/relabs-tech/rush_recorder/internal/app"
	"github.com/relabs-tech/rush_recorder/internal/config"
	"github.com/relabs-tech/rush_recorder/internal/motion"
)

func main() {
	configPath := flag.String("config", "rush_config.txt", "Path to configuration file")
	outPath := flag.String("out", "accel_calibration.json", "Where to write the calibration")
	poseDuration := flag.Duration("pose", 6*time.Second, "Capture time per pose")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	// Calibrate raw readings, never already-corrected ones.
	cfg := *config.Get()
	cfg.AccelCalibrationFile = ""

	src, err := motion.Open(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}

	if _, err := app.RunAccelCalibration(os.Stdin, os.Stdout, src, cfg.SampleRateHz, *poseDuration, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
