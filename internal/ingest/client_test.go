package ingest_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/rush_recorder/internal/ingest"
)

func classifier(t *testing.T, status int, body string) (*httptest.Server, <-chan *http.Request) {
	t.Helper()
	reqs := make(chan *http.Request, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		clone := r.Clone(context.Background())
		clone.Body = io.NopCloser(bytes.NewReader(payload))
		reqs <- clone
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, reqs
}

func tx(seq uint64) ingest.Transmission {
	return ingest.Transmission{
		Seq:       seq,
		SessionID: "6f1c1f0e-0000-4000-8000-000000000001",
		Samples:   2,
		Payload:   []byte("timestamp_ms,ax,ay,az\n1,0.1,0.2,-1\n2,0.1,0.2,-1\n"),
	}
}

func TestDoClassifiesRush(t *testing.T) {
	srv, reqs := classifier(t, http.StatusOK, `{"p_rush": 0.92, "status": 1}`)
	c := ingest.New(srv.URL)

	out := c.Do(context.Background(), tx(7))
	require.NoError(t, out.Err)
	require.True(t, out.OK())
	assert.Equal(t, 200, out.HTTPStatus)
	assert.Equal(t, uint64(7), out.Seq)
	assert.Equal(t, 2, out.Samples)
	assert.InDelta(t, 0.92, out.Result.Probability, 1e-12)
	assert.Equal(t, ingest.Rush, out.Result.Status)
	assert.Equal(t, "RUSH", out.Result.Status.String())

	r := <-reqs
	assert.Equal(t, http.MethodPost, r.Method)
	assert.Equal(t, "text/csv", r.Header.Get("Content-Type"))
	assert.Equal(t, "7", r.Header.Get(ingest.HeaderWindowSeq))
	assert.Equal(t, "2", r.Header.Get(ingest.HeaderSampleCount))
	assert.Equal(t, tx(7).SessionID, r.Header.Get(ingest.HeaderSessionID))
	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, tx(7).Payload, body)
}

func TestDoServerErrorWithEmptyBody(t *testing.T) {
	srv, _ := classifier(t, http.StatusInternalServerError, "")
	out := ingest.New(srv.URL).Do(context.Background(), tx(1))

	assert.Equal(t, 500, out.HTTPStatus)
	assert.Nil(t, out.Result)
	require.ErrorIs(t, out.Err, ingest.ErrTransmission)
	var se *ingest.StatusError
	require.True(t, errors.As(out.Err, &se))
	assert.Equal(t, 500, se.Code)
}

func TestDoMalformedBodyKeepsStatus(t *testing.T) {
	for name, body := range map[string]string{
		"empty":          "",
		"not json":       "ok",
		"missing status": `{"p_rush": 0.3}`,
		"missing p_rush": `{"status": 0}`,
		"p out of range": `{"p_rush": 1.5, "status": 1}`,
		"status float":   `{"p_rush": 0.5, "status": 0.5}`,
		"wrong type":     `{"p_rush": true, "status": 1}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv, _ := classifier(t, http.StatusOK, body)
			out := ingest.New(srv.URL).Do(context.Background(), tx(1))

			assert.Equal(t, 200, out.HTTPStatus)
			assert.Nil(t, out.Result)
			assert.ErrorIs(t, out.Err, ingest.ErrResponseParse)
			assert.NotErrorIs(t, out.Err, ingest.ErrTransmission)
		})
	}
}

func TestDoNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	out := ingest.New(url).Do(context.Background(), tx(1))
	assert.Equal(t, 0, out.HTTPStatus)
	assert.ErrorIs(t, out.Err, ingest.ErrTransmission)
}

func TestDoTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := ingest.New(srv.URL, ingest.WithTimeout(50*time.Millisecond))
	assert.Equal(t, 50*time.Millisecond, c.Timeout())

	out := c.Do(context.Background(), tx(1))
	assert.Equal(t, 0, out.HTTPStatus)
	assert.ErrorIs(t, out.Err, ingest.ErrTransmission)
	assert.Less(t, out.Elapsed, 2*time.Second)
}

func TestSendReturnsImmediately(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = io.WriteString(w, `{"p_rush": "0.25", "status": "0"}`)
	}))
	defer srv.Close()

	c := ingest.New(srv.URL, ingest.WithHTTPClient(srv.Client()))
	outcomes := make(chan ingest.Outcome, 1)

	start := time.Now()
	require.True(t, c.Send(context.Background(), tx(3), func(o ingest.Outcome) { outcomes <- o }))
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	select {
	case <-outcomes:
		t.Fatal("outcome delivered before the server answered")
	default:
	}
	close(release)

	o := <-outcomes
	require.True(t, o.OK())
	assert.Equal(t, uint64(3), o.Seq)
	assert.InDelta(t, 0.25, o.Result.Probability, 1e-12)
	assert.Equal(t, ingest.Calm, o.Result.Status)
	c.Wait()
}

func TestSendDropsOverMaxInFlight(t *testing.T) {
	release := make(chan struct{})
	arrived := make(chan struct{}, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}
		<-release
		_, _ = io.WriteString(w, `{"p_rush": 0.1, "status": 0}`)
	}))
	defer srv.Close()

	c := ingest.New(srv.URL, ingest.WithMaxInFlight(1))

	var mu sync.Mutex
	var done []uint64
	record := func(o ingest.Outcome) {
		mu.Lock()
		done = append(done, o.Seq)
		mu.Unlock()
	}

	require.True(t, c.Send(context.Background(), tx(1), record))
	<-arrived
	assert.False(t, c.Send(context.Background(), tx(2), record))

	close(release)
	c.Wait()

	require.True(t, c.Send(context.Background(), tx(3), record))
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1, 3}, done)
}
