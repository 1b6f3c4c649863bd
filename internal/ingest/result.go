package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Status is the classifier's discrete decision.
type Status int

const (
	Calm Status = iota
	Rush
)

func (s Status) String() string {
	if s == Rush {
		return "RUSH"
	}
	return "CALM"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "RUSH":
		*s = Rush
	case "CALM":
		*s = Calm
	default:
		return fmt.Errorf("unknown status %q", text)
	}
	return nil
}

// Result is a parsed classifier response.
type Result struct {
	Probability float64 `json:"p_rush"`
	Status      Status  `json:"label"`
	Code        int     `json:"status"`
}

// flexNumber accepts a JSON number or a quoted numeric string.
type flexNumber struct {
	set bool
	v   float64
}

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", data)
	}
	n.v, n.set = v, true
	return nil
}

type wireResult struct {
	PRush  flexNumber `json:"p_rush"`
	Status flexNumber `json:"status"`
}

// ParseResult decodes a classifier body of the form
// {"p_rush": <number>, "status": <int>}. Extra fields are ignored.
// Any value other than 1 in status means Calm.
func ParseResult(body []byte) (*Result, error) {
	var w wireResult
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseParse, err)
	}
	if !w.PRush.set {
		return nil, fmt.Errorf("%w: missing p_rush", ErrResponseParse)
	}
	if !w.Status.set {
		return nil, fmt.Errorf("%w: missing status", ErrResponseParse)
	}

	p := w.PRush.v
	if math.IsNaN(p) || p < 0 || p > 1 {
		return nil, fmt.Errorf("%w: p_rush %v outside [0,1]", ErrResponseParse, p)
	}
	code := w.Status.v
	if code != math.Trunc(code) || math.Abs(code) > math.MaxInt32 {
		return nil, fmt.Errorf("%w: status %v is not an integer", ErrResponseParse, code)
	}

	r := &Result{Probability: p, Code: int(code)}
	if r.Code == 1 {
		r.Status = Rush
	}
	return r, nil
}

var (
	// ErrTransmission covers network errors, timeouts and non-2xx replies.
	ErrTransmission = errors.New("transmission failed")

	// ErrResponseParse means a 2xx body did not match the response contract.
	ErrResponseParse = errors.New("malformed classifier response")

	// ErrDropped is logged when a window is not sent because too many
	// transmissions are already in flight.
	ErrDropped = errors.New("window dropped: too many transmissions in flight")
)

// StatusError is a non-2xx reply. It matches ErrTransmission under errors.Is.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrTransmission }
