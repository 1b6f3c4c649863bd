package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/rush_recorder/internal/app"
	"github.com/relabs-tech/rush_recorder/internal/ingest"
	"github.com/relabs-tech/rush_recorder/internal/motion"
	"github.com/relabs-tech/rush_recorder/internal/session"
)

func getStatus(t *testing.T, base string) session.State {
	t.Helper()
	resp, err := http.Get(base + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st session.State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	return st
}

func post(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestStatusServerEndToEnd(t *testing.T) {
	classifier := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.HasPrefix(string(body), "timestamp_ms,ax,ay,az\n") {
			http.Error(w, "bad csv", http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `{"p_rush": 0.92, "status": 1}`)
	}))
	defer classifier.Close()

	client := ingest.New(classifier.URL, ingest.WithTimeout(time.Second))
	ctrl := session.New(motion.NewMockSource(), client,
		session.Settings{WindowDuration: 200 * time.Millisecond, SampleRateHz: 100})

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- ctrl.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-runDone)
		client.Wait()
	}()

	srv := httptest.NewServer(app.NewStatusHandler(ctrl, ""))
	defer srv.Close()

	assert.Equal(t, session.Idle, getStatus(t, srv.URL).Lifecycle)

	resp := post(t, srv.URL+"/api/session/start")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var started session.State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	assert.True(t, started.Running)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/status", nil)
	require.NoError(t, err)
	defer ws.Close()

	var pushed session.State
	require.NoError(t, ws.ReadJSON(&pushed))
	assert.Equal(t, session.Recording, pushed.Lifecycle)

	require.Eventually(t, func() bool {
		st := getStatus(t, srv.URL)
		return st.WindowsCompleted >= 1 && st.LastResult != nil
	}, 5*time.Second, 20*time.Millisecond)

	st := getStatus(t, srv.URL)
	assert.InDelta(t, 0.92, st.LastResult.Probability, 1e-12)
	assert.Equal(t, ingest.Rush, st.LastResult.Status)
	require.NotNil(t, st.LastHTTPStatus)
	assert.Equal(t, 200, *st.LastHTTPStatus)

	assert.Equal(t, http.StatusConflict, post(t, srv.URL+"/api/session/start").StatusCode)

	resp = post(t, srv.URL+"/api/session/stop")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, session.Idle, getStatus(t, srv.URL).Lifecycle)
}

func TestStartUnavailableIs503(t *testing.T) {
	rec := &fakeRecorder{startErr: session.ErrSensorUnavailable}
	srv := httptest.NewServer(app.NewStatusHandler(rec, ""))
	defer srv.Close()

	resp := post(t, srv.URL+"/api/session/start")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "accelerometer not available", body["error"])

	broken := httptest.NewServer(app.NewStatusHandler(&fakeRecorder{startErr: errors.New("boom")}, ""))
	defer broken.Close()
	assert.Equal(t, http.StatusInternalServerError, post(t, broken.URL+"/api/session/start").StatusCode)
}

func TestStatusRejectsWrongMethod(t *testing.T) {
	srv := httptest.NewServer(app.NewStatusHandler(&fakeRecorder{}, ""))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/session/start")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStatusServesWebRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<h1>rush</h1>"), 0o644))

	srv := httptest.NewServer(app.NewStatusHandler(&fakeRecorder{}, root))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "<h1>rush</h1>", string(body))
}

func TestWebsocketPushesUpdates(t *testing.T) {
	rec := &fakeRecorder{}
	srv := httptest.NewServer(app.NewStatusHandler(rec, ""))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/status", nil)
	require.NoError(t, err)
	defer ws.Close()

	var st session.State
	require.NoError(t, ws.ReadJSON(&st))
	assert.Equal(t, session.Idle, st.Lifecycle)

	rec.publish(session.State{Lifecycle: session.Recording, Running: true, StatusMessage: "Sending 100 samples…"})
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, ws.ReadJSON(&st))
	assert.Equal(t, "Sending 100 samples…", st.StatusMessage)
}
