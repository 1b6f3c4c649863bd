package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/rush_recorder/internal/session"
)

// Recorder is the slice of the session controller the status surfaces use.
type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Snapshot() session.State
	Subscribe() (<-chan session.State, func())
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // status page may be served from another host on the LAN
	},
}

const wsWriteWait = 5 * time.Second

// commandTimeout bounds how long a start/stop request waits for the loop.
const commandTimeout = 3 * time.Second

// NewStatusHandler serves the recorder's JSON status API, the live websocket
// stream and, when webRoot is set, static files from it.
func NewStatusHandler(rec Recorder, webRoot string) http.Handler {
	mux := http.NewServeMux()

	// 1) latest status
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rec.Snapshot())
	})

	// 2) session commands
	mux.HandleFunc("POST /api/session/start", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
		defer cancel()

		err := rec.Start(ctx)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, rec.Snapshot())
		case errors.Is(err, session.ErrSensorUnavailable):
			writeError(w, http.StatusServiceUnavailable, err)
		case errors.Is(err, session.ErrAlreadyRecording):
			writeError(w, http.StatusConflict, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
	})
	mux.HandleFunc("POST /api/session/stop", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
		defer cancel()

		if err := rec.Stop(ctx); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, rec.Snapshot())
	})

	// 3) live stream
	mux.HandleFunc("/ws/status", func(w http.ResponseWriter, r *http.Request) {
		serveStatusWS(rec, w, r)
	})

	// 4) static files
	if webRoot != "" {
		mux.Handle("/", http.FileServer(http.Dir(webRoot)))
	}
	return mux
}

// serveStatusWS pushes every published state to the client until either
// side goes away. Client messages are read only to notice the close.
func serveStatusWS(rec Recorder, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	states, cancel := rec.Subscribe()
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("web: websocket read error: %v", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case st := <-states:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(st); err != nil {
				log.Printf("web: websocket write error: %v", err)
				return
			}
		}
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

// RunWeb serves NewStatusHandler on addr until ctx is done.
func RunWeb(ctx context.Context, addr string, rec Recorder, webRoot string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewStatusHandler(rec, webRoot),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("web: status server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Println("web: status server stopped")
	return nil
}
