package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"watchdog/internal/auth"
	"watchdog/internal/classify"
	"watchdog/internal/config"
	"watchdog/internal/database"
	"watchdog/internal/middleware"
	"watchdog/internal/pipeline"
	"watchdog/internal/store"
	"watchdog/internal/stream"
	"watchdog/internal/ws"
)

type serverDeps struct {
	cfg           *config.Config
	db            *database.Database
	localStore    *store.LocalStore
	mjpeg         *stream.MJPEGStream
	hub           *ws.EventHub
	gating        *pipeline.GatingPipeline
	classifier    *classify.HTTPClassifier
	authenticator *auth.Authenticator
}

// handleHTTPServer configures and starts the HTTP server on the given
// address. It shuts down the server if any error is received in the error
// channel.
func handleHTTPServer(ctx context.Context, addr string, deps *serverDeps, wg *sync.WaitGroup, errc chan error, logger *log.Logger) {
	mux := http.NewServeMux()

	protect := middleware.AuthMiddleware(deps.authenticator)

	mux.HandleFunc("GET /healthz", deps.handleHealth)
	mux.HandleFunc("POST /auth/login", deps.handleLogin)
	mux.Handle("GET /video_feed", deps.mjpeg)
	mux.Handle("/ws/", ws.NewHandler(deps.hub))
	mux.Handle("GET /status", protect(http.HandlerFunc(deps.handleStatus)))
	mux.Handle("GET /incidents", protect(http.HandlerFunc(deps.handleListIncidents)))
	mux.Handle("GET /incident/{id}", protect(http.HandlerFunc(deps.handleGetIncident)))
	mux.Handle("GET /incident/{id}/video", protect(http.HandlerFunc(deps.handleIncidentVideo)))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: time.Second * 60}

	wg.Add(1)
	go func() {
		defer wg.Done()

		// Start HTTP server in a separate goroutine.
		go func() {
			logger.Printf("HTTP server listening on %q", addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()

		<-ctx.Done()
		logger.Printf("shutting down HTTP server at %q", addr)

		// Shutdown gracefully with a 30s timeout.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Printf("failed to shutdown: %v", err)
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (d *serverDeps) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":             "ok",
		"camera_id":          d.cfg.CameraID,
		"classifier_healthy": d.classifier.IsHealthy(),
		"ws_clients":         d.hub.ClientCount(),
	})
}

func (d *serverDeps) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, expiresAt, err := d.authenticator.Authenticate(creds.Username, creds.Password)
	if err != nil {
		if err == auth.ErrAuthDisabled {
			writeError(w, http.StatusNotImplemented, "authentication is disabled")
			return
		}
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_at": expiresAt,
	})
}

func (d *serverDeps) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.gating.GetStats())
}

func (d *serverDeps) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var since *time.Time
	if s := q.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		since = &t
	}

	limit := 100
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	incidents, err := d.db.ListIncidents(q.Get("camera"), since, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list incidents")
		return
	}
	if incidents == nil {
		incidents = []*database.IncidentRecord{}
	}
	writeJSON(w, http.StatusOK, incidents)
}

func (d *serverDeps) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	rec, err := d.db.GetIncident(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load incident")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "incident not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (d *serverDeps) handleIncidentVideo(w http.ResponseWriter, r *http.Request) {
	rec, err := d.db.GetIncident(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load incident")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "incident not found")
		return
	}

	if _, err := os.Stat(rec.VideoPath); err != nil {
		writeError(w, http.StatusNotFound, "video artifact not available")
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	http.ServeFile(w, r, rec.VideoPath)
}
