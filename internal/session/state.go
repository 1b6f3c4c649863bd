package session

import (
	"fmt"
	"time"

	"github.com/relabs-tech/rush_recorder/internal/ingest"
)

// Lifecycle is the controller's state machine position.
type Lifecycle int

const (
	Idle Lifecycle = iota
	Recording
)

func (l Lifecycle) String() string {
	if l == Recording {
		return "recording"
	}
	return "idle"
}

func (l Lifecycle) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Lifecycle) UnmarshalText(text []byte) error {
	switch string(text) {
	case "recording":
		*l = Recording
	case "idle":
		*l = Idle
	default:
		return fmt.Errorf("unknown lifecycle %q", text)
	}
	return nil
}

// State is the observable session status. Values handed out by Snapshot and
// Subscribe are copies; the pointer fields are never mutated after publish.
type State struct {
	Lifecycle     Lifecycle `json:"lifecycle"`
	Running       bool      `json:"running"`
	StatusMessage string    `json:"status_message"`

	// LastResult is the most recently completed successful classification.
	LastResult *ingest.Result `json:"last_result,omitempty"`
	// LastHTTPStatus is from the most recently completed transmission; nil
	// when that transmission got no response.
	LastHTTPStatus *int `json:"last_http_status,omitempty"`

	SessionID        string    `json:"session_id,omitempty"`
	WindowsSealed    int       `json:"windows_sealed"`
	WindowsInFlight  int       `json:"windows_in_flight"`
	WindowsDropped   int       `json:"windows_dropped"`
	WindowsCompleted int       `json:"window_count"`
	LastWindowSeq    uint64    `json:"last_window_seq"`
	LastCompletedSeq uint64    `json:"last_completed_seq"`
	UpdatedAt        time.Time `json:"updated_at"`
}
