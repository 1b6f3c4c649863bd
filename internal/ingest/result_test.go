package ingest_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/rush_recorder/internal/ingest"
)

func TestParseResultAcceptsBoxedNumbers(t *testing.T) {
	cases := []struct {
		body   string
		p      float64
		code   int
		status ingest.Status
	}{
		{`{"p_rush": 0.92, "status": 1}`, 0.92, 1, ingest.Rush},
		{`{"p_rush": "0.92", "status": "1"}`, 0.92, 1, ingest.Rush},
		{`{"p_rush": 0, "status": 1.0}`, 0, 1, ingest.Rush},
		{`{"p_rush": 1, "status": 0, "window_count": 12}`, 1, 0, ingest.Calm},
		{`{"status": 2, "p_rush": " 0.5 "}`, 0.5, 2, ingest.Calm},
		{`{"p_rush": 4e-1, "status": -1}`, 0.4, -1, ingest.Calm},
	}
	for _, tc := range cases {
		r, err := ingest.ParseResult([]byte(tc.body))
		require.NoError(t, err, tc.body)
		assert.InDelta(t, tc.p, r.Probability, 1e-12, tc.body)
		assert.Equal(t, tc.code, r.Code, tc.body)
		assert.Equal(t, tc.status, r.Status, tc.body)
	}
}

func TestParseResultRejects(t *testing.T) {
	for _, body := range []string{
		``,
		`[]`,
		`{"p_rush": null, "status": 1}`,
		`{"p_rush": "high", "status": 1}`,
		`{"p_rush": -0.1, "status": 0}`,
		`{"p_rush": 0.2, "status": "one"}`,
	} {
		_, err := ingest.ParseResult([]byte(body))
		assert.ErrorIs(t, err, ingest.ErrResponseParse, body)
	}
}

func TestStatusErrorMessage(t *testing.T) {
	assert.Equal(t, "HTTP 500", (&ingest.StatusError{Code: 500}).Error())
	assert.Equal(t, "HTTP 404: not found", (&ingest.StatusError{Code: 404, Body: "not found"}).Error())
}
