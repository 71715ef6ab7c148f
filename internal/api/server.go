// Package api serves the HTTP control and status endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/garaged/internal/door"
	"github.com/dokzlo13/garaged/internal/ledger"
	"github.com/dokzlo13/garaged/internal/reconcile"
)

const (
	defaultEventsLimit = 50
	maxEventsLimit     = 500
	maxBodySize        = 1024
)

// Controller is the reconciler surface used by the API.
type Controller interface {
	Snapshot() reconcile.Snapshot
	SetTargetState(ctx context.Context, target door.State, done func(error))
}

// History provides recent ledger entries. May be nil when the ledger is disabled.
type History interface {
	Recent(limit int) ([]*ledger.Entry, error)
}

// Server is the HTTP API server.
type Server struct {
	addr       string
	controller Controller
	history    History
	limiter    *rate.Limiter
	httpServer *http.Server
}

// NewServer creates a new API server. Target commands are limited to rps
// per second with the given burst.
func NewServer(host string, port int, controller Controller, history History, rps float64, burst int) *Server {
	return &Server{
		addr:       fmt.Sprintf("%s:%d", host, port),
		controller: controller,
		history:    history,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("POST /target", s.handleTarget)
	mux.HandleFunc("GET /events", s.handleEvents)
	return mux
}

// Run starts the API server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("API server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.controller.Snapshot().Known {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "waiting for first poll"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type stateResponse struct {
	State            string     `json:"state"`
	Known            bool       `json:"known"`
	ObservedAt       *time.Time `json:"observed_at,omitempty"`
	CorrectionParity int        `json:"correction_parity"`
	AutoCloseArmed   bool       `json:"auto_close_armed"`
	AutoCloseAt      *time.Time `json:"auto_close_at,omitempty"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap := s.controller.Snapshot()
	resp := stateResponse{
		State:            snap.State.String(),
		Known:            snap.Known,
		CorrectionParity: snap.CorrectionParity,
		AutoCloseArmed:   snap.AutoCloseArmed,
	}
	if !snap.Known {
		resp.State = "unknown"
	}
	if !snap.ObservedAt.IsZero() {
		resp.ObservedAt = &snap.ObservedAt
	}
	if !snap.AutoCloseAt.IsZero() {
		resp.AutoCloseAt = &snap.AutoCloseAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTarget(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		log.Error().Err(err).Msg("Failed to read target request body")
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	defer r.Body.Close()

	target, err := parseTargetBody(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log.Debug().Str("target", target.String()).Str("remote", r.RemoteAddr).Msg("API set target")

	// A toggle already sent runs to completion even if the client goes away.
	ctx := context.WithoutCancel(r.Context())

	var toggleErr error
	s.controller.SetTargetState(ctx, target, func(err error) {
		toggleErr = err
	})
	if toggleErr != nil {
		writeError(w, http.StatusBadGateway, toggleErr.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseTargetBody accepts either a plain "open"/"close" body or a JSON
// object {"target": "open"}.
func parseTargetBody(body []byte) (door.State, error) {
	raw := strings.TrimSpace(string(body))
	if strings.HasPrefix(raw, "{") {
		var req struct {
			Target string `json:"target"`
		}
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			return 0, fmt.Errorf("%w: malformed JSON body", door.ErrInvalidCommand)
		}
		raw = req.Target
	}

	target, err := door.ParseTarget(raw)
	if err != nil {
		return 0, err
	}
	if !target.IsTarget() {
		return 0, fmt.Errorf("%w: %s is not a target state", door.ErrInvalidCommand, target)
	}
	return target, nil
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "event ledger disabled")
		return
	}

	limit := defaultEventsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxEventsLimit)
	}

	entries, err := s.history.Recent(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read ledger")
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
