// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/relabs-tech/rush_recorder/internal/motion"
	"github.com/relabs-tech/rush_recorder/internal/window"
)

// RunMockConsole streams the mock accelerometer to out and prints a summary
// for every window it would send. The gait alternates between walking and
// rushing every other window. It runs until ctx is done.
func RunMockConsole(ctx context.Context, out io.Writer, rateHz float64, windowDuration time.Duration) error {
	src := motion.NewMockSource()
	if err := src.Configure(rateHz); err != nil {
		return err
	}

	samples := make(chan motion.Sample, 64)
	if err := src.Start(func(s motion.Sample) {
		select {
		case samples <- s:
		case <-ctx.Done():
		}
	}, nil); err != nil {
		return err
	}
	defer src.Stop()

	buf := window.NewBuffer(windowDuration, int(rateHz*windowDuration.Seconds())+1)
	buf.Reset(time.Now().UnixMilli())

	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-samples:
			fmt.Fprintf(out, "t=%d  AX=%6.3f  AY=%6.3f  AZ=%6.3f\n", s.TimestampMs, s.Ax, s.Ay, s.Az)

			w, ok := buf.Add(s)
			if !ok {
				continue
			}
			fmt.Fprintf(out, "[WINDOW %d] %d samples, %d bytes of CSV\n",
				w.Seq, len(w.Samples), len(window.MarshalCSV(w)))

			if w.Seq%2 == 1 {
				src.SetGait(motion.GaitRushing)
			} else {
				src.SetGait(motion.GaitWalking)
			}
		}
	}
}
