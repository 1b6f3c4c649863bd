// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package motion

import "errors"

// Sample is a single timestamped triaxial acceleration reading, in g.
type Sample struct {
	TimestampMs int64   `json:"timestamp_ms"`
	Ax          float64 `json:"ax"`
	Ay          float64 `json:"ay"`
	Az          float64 `json:"az"`
}

// Source is anything that can stream accelerometer samples at a fixed cadence:
// mock source, MPU9250 over SPI, serial-attached accelerometer.
//
// Callbacks for one started stream are invoked from a single goroutine, in
// timestamp order. Stop must not wait for an in-progress callback to return;
// a callback that was already running when Stop was called may still complete.
type Source interface {
	Available() bool
	Configure(rateHz float64) error
	Start(onSample func(Sample), onError func(error)) error
	Stop()
}

var (
	// ErrUnavailable is returned by Start when the sensor cannot be used.
	ErrUnavailable = errors.New("accelerometer not available")

	// ErrAlreadyStarted is returned by Start on a source that is streaming.
	ErrAlreadyStarted = errors.New("accelerometer already started")
)
