// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/rush_recorder/internal/ingest"
	"github.com/relabs-tech/rush_recorder/internal/motion"
	"github.com/relabs-tech/rush_recorder/internal/wallclock"
	"github.com/relabs-tech/rush_recorder/internal/window"
)

var (
	// ErrSensorUnavailable is returned by Start when the source reports it
	// cannot be used. The controller stays Idle.
	ErrSensorUnavailable = errors.New("accelerometer not available")

	// ErrAlreadyRecording is returned by Start while a session is running.
	ErrAlreadyRecording = errors.New("already recording")

	// ErrClosed is returned by commands after Run has returned.
	ErrClosed = errors.New("session controller stopped")
)

// Transmitter sends a serialized window without blocking and reports the
// outcome later through done. It returns false when the window was dropped,
// in which case done is never called.
type Transmitter interface {
	Send(ctx context.Context, tx ingest.Transmission, done func(ingest.Outcome)) bool
}

// Settings are the sampling parameters of a session.
type Settings struct {
	WindowDuration time.Duration
	SampleRateHz   float64
}

// Controller runs the Idle/Recording state machine. Every state change
// happens on the goroutine running Run; source callbacks, transmission
// completions and commands reach it as events.
type Controller struct {
	src      motion.Source
	tx       Transmitter
	settings Settings
	clock    wallclock.WallClock
	logger   *slog.Logger

	events chan event
	done   chan struct{}

	// Owned by the Run goroutine.
	state   State
	buf     *window.Buffer
	epoch   uint64
	sendCtx context.Context

	mu      sync.Mutex
	current State
	subs    map[int]chan State
	nextSub int
}

type (
	event interface{}

	sampleEvent struct {
		epoch  uint64
		sample motion.Sample
	}

	sourceErrorEvent struct {
		epoch uint64
		err   error
	}

	outcomeEvent struct {
		outcome ingest.Outcome
	}

	startCommand struct{ reply chan error }
	stopCommand  struct{ reply chan error }
)

// New creates a controller. Call Run to start its event loop.
func New(src motion.Source, tx Transmitter, settings Settings, opt ...Option) *Controller {
	var opts Options
	opts.Apply(opt)
	if opts.Clock == nil {
		opts.Clock = wallclock.Instance
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	capHint := int(settings.SampleRateHz*settings.WindowDuration.Seconds()) + 1
	c := &Controller{
		src:      src,
		tx:       tx,
		settings: settings,
		clock:    opts.Clock,
		logger:   opts.Logger,
		events:   make(chan event, 64),
		done:     make(chan struct{}),
		buf:      window.NewBuffer(settings.WindowDuration, capHint),
		subs:     make(map[int]chan State),
		sendCtx:  context.Background(),
	}
	c.state.UpdatedAt = c.clock.Now()
	c.current = c.state
	return c
}

// Run hosts the event loop until ctx is done. A running session is stopped
// on the way out. Transmissions already in flight are not cancelled by ctx.
// Run must be called once.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	c.sendCtx = context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			if c.state.Lifecycle == Recording {
				c.stop()
			}
			return nil
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

// Start begins a session. It fails with ErrSensorUnavailable when the
// source is unavailable and with ErrAlreadyRecording while recording.
func (c *Controller) Start(ctx context.Context) error {
	return c.command(ctx, func(reply chan error) event { return startCommand{reply} })
}

// Stop ends the running session and discards its unsealed window.
// Transmissions in flight still complete. Stopping while Idle is a no-op.
func (c *Controller) Stop(ctx context.Context) error {
	return c.command(ctx, func(reply chan error) event { return stopCommand{reply} })
}

func (c *Controller) command(ctx context.Context, mk func(chan error) event) error {
	reply := make(chan error, 1)
	select {
	case c.events <- mk(reply):
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the latest published state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Subscribe returns a channel that always holds the newest state. A slow
// reader misses intermediate states, never the latest one. The current state
// is delivered immediately. cancel releases the subscription.
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.current
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// post delivers a callback event to the loop. Events arriving after Run has
// returned are dropped.
func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Controller) handle(ev event) {
	switch ev := ev.(type) {
	case sampleEvent:
		if ev.epoch == c.epoch && c.state.Lifecycle == Recording {
			c.onSample(ev.sample)
		}
		return
	case sourceErrorEvent:
		if ev.epoch != c.epoch || c.state.Lifecycle != Recording {
			return
		}
		c.logger.Warn("session: motion error", slog.Any("err", ev.err))
		c.state.StatusMessage = fmt.Sprintf("Motion error: %v", ev.err)
	case outcomeEvent:
		c.onTransmissionComplete(ev.outcome)
	case startCommand:
		err := c.start()
		c.publish()
		ev.reply <- err
		return
	case stopCommand:
		c.stop()
		c.publish()
		ev.reply <- nil
		return
	}
	c.publish()
}

func (c *Controller) start() error {
	if c.state.Lifecycle == Recording {
		return ErrAlreadyRecording
	}
	if !c.src.Available() {
		c.state.StatusMessage = "Accelerometer not available."
		c.logger.Warn("session: start refused", slog.Any("err", ErrSensorUnavailable))
		return ErrSensorUnavailable
	}
	if err := c.src.Configure(c.settings.SampleRateHz); err != nil {
		c.state.StatusMessage = fmt.Sprintf("Motion error: %v", err)
		return fmt.Errorf("configure source: %w", err)
	}

	c.epoch++
	epoch := c.epoch
	c.buf.Reset(c.clock.Now().UnixMilli())

	err := c.src.Start(
		func(s motion.Sample) { c.post(sampleEvent{epoch: epoch, sample: s}) },
		func(err error) { c.post(sourceErrorEvent{epoch: epoch, err: err}) },
	)
	if err != nil {
		c.epoch++
		if errors.Is(err, motion.ErrUnavailable) {
			c.state.StatusMessage = "Accelerometer not available."
			return fmt.Errorf("%w: %v", ErrSensorUnavailable, err)
		}
		c.state.StatusMessage = fmt.Sprintf("Motion error: %v", err)
		return fmt.Errorf("start source: %w", err)
	}

	c.state.Lifecycle = Recording
	c.state.Running = true
	c.state.SessionID = uuid.NewString()
	c.state.WindowsSealed = 0
	c.state.WindowsDropped = 0
	c.state.StatusMessage = fmt.Sprintf("Recording… (sending every %s)", c.settings.WindowDuration)
	c.logger.Info("session: recording",
		slog.String("session", c.state.SessionID),
		slog.Float64("rate_hz", c.settings.SampleRateHz),
		slog.Duration("window", c.settings.WindowDuration))
	return nil
}

func (c *Controller) stop() {
	if c.state.Lifecycle != Recording {
		return
	}
	c.src.Stop()
	c.epoch++
	discarded := c.buf.Discard()

	c.logger.Info("session: stopped",
		slog.String("session", c.state.SessionID),
		slog.Int("discarded", discarded),
		slog.Int("in_flight", c.state.WindowsInFlight))

	c.state.Lifecycle = Idle
	c.state.Running = false
	c.state.StatusMessage = "Stopped."
}

func (c *Controller) onSample(s motion.Sample) {
	w, sealed := c.buf.Add(s)
	if !sealed {
		return
	}

	n := len(w.Samples)
	c.state.WindowsSealed++
	c.state.LastWindowSeq = w.Seq

	tx := ingest.Transmission{
		Seq:       w.Seq,
		SessionID: c.state.SessionID,
		Samples:   n,
		Payload:   window.MarshalCSV(w),
	}
	if !c.tx.Send(c.sendCtx, tx, func(o ingest.Outcome) { c.post(outcomeEvent{o}) }) {
		c.state.WindowsDropped++
		c.state.StatusMessage = fmt.Sprintf("Skipped %d samples: too many sends in flight.", n)
		c.publish()
		return
	}

	c.state.WindowsInFlight++
	c.state.StatusMessage = fmt.Sprintf("Sending %d samples…", n)
	c.publish()
}

// onTransmissionComplete applies outcomes in completion order; the latest
// completion wins even if it belongs to an older window.
func (c *Controller) onTransmissionComplete(o ingest.Outcome) {
	if c.state.WindowsInFlight > 0 {
		c.state.WindowsInFlight--
	}
	c.state.WindowsCompleted++
	c.state.LastCompletedSeq = o.Seq

	if o.HTTPStatus != 0 {
		code := o.HTTPStatus
		c.state.LastHTTPStatus = &code
	} else {
		c.state.LastHTTPStatus = nil
	}

	var se *ingest.StatusError
	switch {
	case o.OK():
		r := *o.Result
		c.state.LastResult = &r
		c.state.StatusMessage = fmt.Sprintf("Sent %d → p_rush=%.2f %s", o.Samples, r.Probability, r.Status)
	case errors.As(o.Err, &se):
		c.state.StatusMessage = fmt.Sprintf("Sent %d. HTTP %d.", o.Samples, se.Code)
	case errors.Is(o.Err, ingest.ErrResponseParse):
		c.state.StatusMessage = fmt.Sprintf("Sent %d. HTTP %d, unreadable response.", o.Samples, o.HTTPStatus)
	default:
		c.state.StatusMessage = fmt.Sprintf("Send failed: %v", o.Err)
	}
}

func (c *Controller) publish() {
	c.state.UpdatedAt = c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.state
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- c.state
	}
}
