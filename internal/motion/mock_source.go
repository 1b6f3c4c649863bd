// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package motion

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/rush_recorder/internal/wallclock"
)

// Gait selects the synthetic motion the mock source generates.
type Gait int

const (
	GaitWalking Gait = iota
	GaitRushing
)

func (g Gait) String() string {
	if g == GaitRushing {
		return "rushing"
	}
	return "walking"
}

// gaitParams: step frequency (Hz) and peak dynamic acceleration (g).
var gaitParams = map[Gait]struct{ stepHz, amp float64 }{
	GaitWalking: {stepHz: 1.8, amp: 0.25},
	GaitRushing: {stepHz: 2.9, amp: 0.9},
}

// MockSource generates smooth periodic accelerations resembling a phone
// carried while walking or rushing. It is always available.
type MockSource struct {
	mu       sync.Mutex
	interval time.Duration
	gait     Gait
	start    time.Time
	stream   *stream
}

// NewMockSource creates a mock source sampling at 20 Hz in walking gait.
func NewMockSource() *MockSource {
	return &MockSource{interval: intervalFor(20)}
}

func (m *MockSource) Available() bool { return true }

func (m *MockSource) Configure(rateHz float64) error {
	interval := intervalFor(rateHz)
	if interval <= 0 {
		return fmt.Errorf("mock source: invalid sample rate %g Hz", rateHz)
	}
	m.mu.Lock()
	m.interval = interval
	m.mu.Unlock()
	return nil
}

// SetGait switches the generated motion; it takes effect on the next sample.
func (m *MockSource) SetGait(g Gait) {
	m.mu.Lock()
	m.gait = g
	m.mu.Unlock()
}

func (m *MockSource) Start(onSample func(Sample), onError func(error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream != nil {
		return ErrAlreadyStarted
	}
	m.start = wallclock.Instance.Now()
	m.stream = startStream(m.interval, m.sampleAt, onSample, onError)
	return nil
}

func (m *MockSource) Stop() {
	m.mu.Lock()
	s := m.stream
	m.stream = nil
	m.mu.Unlock()

	if s != nil {
		s.Stop()
	}
}

func (m *MockSource) sampleAt(now time.Time) (Sample, error) {
	m.mu.Lock()
	p := gaitParams[m.gait]
	elapsed := now.Sub(m.start).Seconds()
	m.mu.Unlock()

	phase := 2 * math.Pi * p.stepHz * elapsed
	return Sample{
		TimestampMs: now.UnixMilli(),
		Ax:          0.4 * p.amp * math.Sin(phase/2),
		Ay:          p.amp * math.Sin(phase),
		Az:          -1 + 0.6*p.amp*math.Cos(phase),
	}, nil
}
