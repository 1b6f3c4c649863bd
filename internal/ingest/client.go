// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/relabs-tech/rush_recorder/internal/window"
)

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 64 << 10

// Request headers describing the window being sent.
const (
	HeaderSessionID   = "X-Session-ID"
	HeaderWindowSeq   = "X-Window-Seq"
	HeaderSampleCount = "X-Sample-Count"
)

// Transmission is one serialized window ready to send.
type Transmission struct {
	Seq       uint64
	SessionID string
	Samples   int
	Payload   []byte
}

// Outcome is what became of one Transmission.
type Outcome struct {
	Seq     uint64
	Samples int
	// HTTPStatus is 0 when no response was obtained.
	HTTPStatus int
	// Result is set only when the body matched the response contract.
	Result  *Result
	Err     error
	Elapsed time.Duration
}

// OK reports whether the window was classified.
func (o Outcome) OK() bool { return o.Err == nil && o.Result != nil }

// Client posts windows to the classifier endpoint. Each request is a single
// attempt; there is no retry.
type Client struct {
	url     string
	timeout time.Duration
	http    *http.Client
	sem     *semaphore.Weighted
	logger  *slog.Logger

	wg sync.WaitGroup
}

// New creates a client for the classifier at url.
func New(url string, opt ...ClientOption) *Client {
	var opts ClientOptions
	opts.Apply(opt)

	c := &Client{
		url:     url,
		timeout: opts.Timeout,
		http:    opts.HTTPClient,
		logger:  opts.Logger,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if opts.MaxInFlight > 0 {
		c.sem = semaphore.NewWeighted(int64(opts.MaxInFlight))
	}
	return c
}

// Timeout is the per-request deadline.
func (c *Client) Timeout() time.Duration { return c.timeout }

// Send transmits tx in the background and returns immediately. done is
// called exactly once from the transmission goroutine with the outcome.
// When the in-flight cap is reached the window is dropped: Send returns
// false and done is never called.
func (c *Client) Send(ctx context.Context, tx Transmission, done func(Outcome)) bool {
	if c.sem != nil && !c.sem.TryAcquire(1) {
		c.logger.Warn("ingest: dropping window",
			slog.Uint64("seq", tx.Seq),
			slog.Int("samples", tx.Samples),
			slog.Any("err", ErrDropped))
		return false
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if c.sem != nil {
			defer c.sem.Release(1)
		}
		out := c.Do(ctx, tx)
		if done != nil {
			done(out)
		}
	}()
	return true
}

// Wait blocks until every transmission started by Send has completed.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Do performs one POST of tx and classifies the result.
func (c *Client) Do(ctx context.Context, tx Transmission) Outcome {
	start := time.Now()
	out := c.do(ctx, tx)
	out.Seq, out.Samples = tx.Seq, tx.Samples
	out.Elapsed = time.Since(start)

	attrs := []any{
		slog.Uint64("seq", tx.Seq),
		slog.Int("samples", tx.Samples),
		slog.Int("status", out.HTTPStatus),
		slog.Duration("elapsed", out.Elapsed),
	}
	switch {
	case out.Err != nil:
		c.logger.Warn("ingest: window not classified", append(attrs, slog.Any("err", out.Err))...)
	default:
		c.logger.Debug("ingest: window classified",
			append(attrs, slog.Float64("p_rush", out.Result.Probability), slog.String("label", out.Result.Status.String()))...)
	}
	return out
}

func (c *Client) do(ctx context.Context, tx Transmission) Outcome {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(tx.Payload))
	if err != nil {
		return Outcome{Err: fmt.Errorf("%w: build request: %v", ErrTransmission, err)}
	}
	req.Header.Set("Content-Type", window.ContentType)
	req.Header.Set("Accept", "application/json")
	if tx.SessionID != "" {
		req.Header.Set(HeaderSessionID, tx.SessionID)
	}
	req.Header.Set(HeaderWindowSeq, strconv.FormatUint(tx.Seq, 10))
	req.Header.Set(HeaderSampleCount, strconv.Itoa(tx.Samples))

	resp, err := c.http.Do(req)
	if err != nil {
		return Outcome{Err: transmissionError(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Outcome{HTTPStatus: resp.StatusCode, Err: transmissionError(err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Outcome{
			HTTPStatus: resp.StatusCode,
			Err:        &StatusError{Code: resp.StatusCode, Body: snippet(body)},
		}
	}

	result, err := ParseResult(body)
	if err != nil {
		return Outcome{HTTPStatus: resp.StatusCode, Err: err}
	}
	return Outcome{HTTPStatus: resp.StatusCode, Result: result}
}

func transmissionError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: timed out: %v", ErrTransmission, err)
	}
	return fmt.Errorf("%w: %v", ErrTransmission, err)
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
