// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/relabs-tech/rush_recorder/internal/motion"
)

// CalibrationReport is written next to the calibration for inspection.
type CalibrationReport struct {
	*motion.Calibration
	PoseStats []motion.PoseStats `json:"pose_stats"`
}

// RunAccelCalibration walks the user through the six static poses, captures
// poseDuration of samples from src in each and writes the resulting
// calibration JSON to outPath. Prompts go to out; ENTER is read from in.
func RunAccelCalibration(in io.Reader, out io.Writer, src motion.Source, rateHz float64, poseDuration time.Duration, outPath string) (*motion.Calibration, error) {
	if !src.Available() {
		return nil, motion.ErrUnavailable
	}
	if err := src.Configure(rateHz); err != nil {
		return nil, err
	}

	reader := bufio.NewReader(in)
	fmt.Fprintln(out, "=== Accelerometer 6-point calibration ===")

	var stats []motion.PoseStats
	for _, pose := range motion.Poses {
		fmt.Fprintf(out, "Pose %s UP: place the device so %s points upward and keep it still.\n", pose, pose)
		fmt.Fprintf(out, "Press ENTER to start capture (%s)...", poseDuration)
		if _, err := reader.ReadString('\n'); err != nil && err != io.EOF {
			return nil, err
		}

		samples, err := capturePose(src, poseDuration)
		if err != nil {
			return nil, fmt.Errorf("pose %s: %w", pose, err)
		}
		st := motion.ComputeStats(pose, samples)
		stats = append(stats, st)
		fmt.Fprintf(out, "\n  Pose %s: n=%d mean=(%.3f, %.3f, %.3f) std=(%.4f, %.4f, %.4f) conf=%.2f\n",
			pose, st.Samples, st.Mean.X, st.Mean.Y, st.Mean.Z, st.StdDev.X, st.StdDev.Y, st.StdDev.Z, st.Confidence)
	}

	cal, err := motion.SixPoint(stats, time.Now())
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Accel bias (g):  X=%+.4f Y=%+.4f Z=%+.4f\n", cal.AccelBias.X, cal.AccelBias.Y, cal.AccelBias.Z)
	fmt.Fprintf(out, "Accel scale (g): X=%.4f Y=%.4f Z=%.4f\n", cal.AccelScale.X, cal.AccelScale.Y, cal.AccelScale.Z)

	b, err := json.MarshalIndent(CalibrationReport{Calibration: cal, PoseStats: stats}, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(outPath, b, 0o644); err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "\nWrote: %s\n", outPath)
	return cal, nil
}

func capturePose(src motion.Source, d time.Duration) ([]motion.Sample, error) {
	var (
		mu      sync.Mutex
		samples []motion.Sample
		lastErr error
	)
	err := src.Start(
		func(s motion.Sample) {
			mu.Lock()
			samples = append(samples, s)
			mu.Unlock()
		},
		func(err error) {
			mu.Lock()
			lastErr = err
			mu.Unlock()
		},
	)
	if err != nil {
		return nil, err
	}
	time.Sleep(d)
	src.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(samples) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, fmt.Errorf("no samples captured")
	}
	return append([]motion.Sample(nil), samples...), nil
}
