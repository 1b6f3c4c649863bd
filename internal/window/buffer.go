// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package window

import (
	"time"

	"github.com/relabs-tech/rush_recorder/internal/motion"
)

// Window is a sealed, fixed-duration run of consecutive samples.
// Samples are in arrival order. The last sample is the one that crossed the
// boundary and may lie past StartMs + duration.
type Window struct {
	Seq     uint64
	StartMs int64
	Samples []motion.Sample
}

// Buffer accumulates samples into the open window and seals it once a sample
// arrives at or past StartMs + duration. Flushing is driven only by sample
// arrival: a stalled source never seals its partial window.
//
// Buffer is not safe for concurrent use. It is owned by a single goroutine.
type Buffer struct {
	durationMs int64
	capHint    int
	startMs    int64
	samples    []motion.Sample
	nextSeq    uint64
}

// NewBuffer creates a buffer sealing every d. capacityHint sizes each new
// window's backing array (expected samples per window); 0 lets it grow.
func NewBuffer(d time.Duration, capacityHint int) *Buffer {
	if capacityHint < 0 {
		capacityHint = 0
	}
	return &Buffer{
		durationMs: d.Milliseconds(),
		capHint:    capacityHint,
		samples:    make([]motion.Sample, 0, capacityHint),
		nextSeq:    1,
	}
}

// Reset drops any open samples and starts a fresh window at startMs.
// Sequence numbers keep increasing across resets.
func (b *Buffer) Reset(startMs int64) {
	b.startMs = startMs
	b.samples = make([]motion.Sample, 0, b.capHint)
}

// Add appends s to the open window. When s reaches the boundary the window
// is sealed and returned with ok set, and a new empty window starting at
// s.TimestampMs is opened in the same step.
func (b *Buffer) Add(s motion.Sample) (w Window, ok bool) {
	b.samples = append(b.samples, s)
	if s.TimestampMs-b.startMs < b.durationMs {
		return Window{}, false
	}

	w = Window{Seq: b.nextSeq, StartMs: b.startMs, Samples: b.samples}
	b.nextSeq++
	b.startMs = s.TimestampMs
	b.samples = make([]motion.Sample, 0, b.capHint)
	return w, true
}

// Len is the number of samples in the open window.
func (b *Buffer) Len() int { return len(b.samples) }

// StartMs is the start time of the open window.
func (b *Buffer) StartMs() int64 { return b.startMs }

// NextSeq is the sequence number the next sealed window will get.
func (b *Buffer) NextSeq() uint64 { return b.nextSeq }

// Discard drops the open window's samples and reports how many there were.
func (b *Buffer) Discard() int {
	n := len(b.samples)
	b.samples = make([]motion.Sample, 0, b.capHint)
	return n
}
