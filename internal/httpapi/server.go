package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/streamlog/streamlog/internal/config"
	"github.com/streamlog/streamlog/internal/session"
	"github.com/streamlog/streamlog/internal/stream"
)

// Per-request idle ceiling bounds (seconds) for the ?idle_timeout
// query parameter.
const (
	minIdleTimeoutSec = 10
	maxIdleTimeoutSec = 3600
)

// Server translates HTTP requests into core session operations. It is
// a thin layer: validation and status-code mapping live here, all
// semantics live in internal/session, internal/monitor and
// internal/stream.
type Server struct {
	registry *session.Registry
	cfg      config.StreamConfig
	log      zerolog.Logger
}

// NewServer creates the HTTP layer over the given registry.
func NewServer(registry *session.Registry, cfg config.StreamConfig, log zerolog.Logger) *Server {
	return &Server{registry: registry, cfg: cfg, log: log}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleHealth)

	r.Route("/api/sessions", func(api chi.Router) {
		api.Post("/", s.handleCreate)
		api.Get("/", s.handleList)
		api.Delete("/", s.handleShutdownAll)

		api.Route("/{sessionID}", func(sr chi.Router) {
			sr.Delete("/", s.handleDelete)
			sr.Post("/start-monitoring", s.handleStartMonitoring)
			sr.Post("/stop-monitoring", s.handleStopMonitoring)
			sr.Post("/logs", s.handleSubmitLog)
			sr.Get("/logs", s.handleStreamSSE)
			sr.Get("/logs/ws", s.handleStreamWS)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "streamlog",
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	sess := s.registry.Create()
	respondJSON(w, http.StatusCreated, map[string]string{"session_id": sess.ID})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleShutdownAll(w http.ResponseWriter, r *http.Request) {
	monitors, sessions := s.registry.Shutdown()
	respondJSON(w, http.StatusOK, map[string]int{
		"monitors_stopped": monitors,
		"sessions_cleared": sessions,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.registry.Delete(id); err != nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("session %s deleted", id),
	})
}

func (s *Server) handleStartMonitoring(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.registry.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	started := sess.StartMonitoring()
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "monitoring started",
		"started": started,
	})
}

func (s *Server) handleStopMonitoring(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.registry.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	stopped := sess.StopMonitoring()
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "monitoring stopped",
		"stopped": stopped,
	})
}

type submitLogRequest struct {
	Message string `json:"message"`
	Level   string `json:"level"`
}

func (s *Server) handleSubmitLog(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.registry.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	var req submitLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}
	level, ok := session.ParseLevel(req.Level)
	if !ok {
		respondError(w, http.StatusBadRequest, "level must be INFO or ERROR")
		return
	}

	sess.Submit(level, req.Message)
	respondJSON(w, http.StatusOK, map[string]string{"message": "log added"})
}

// handleStreamSSE attaches a stream controller to the session's queue
// and drains it as Server-Sent Events. An unknown session id still
// opens the stream and delivers a single session-not-found control
// frame, so a client that raced a delete sees a terminal signal rather
// than an HTTP fault.
func (s *Server) handleStreamSSE(w http.ResponseWriter, r *http.Request) {
	writer, err := stream.NewSSEWriter(w)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sess, ok := s.registry.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		_ = writer.WriteControl(session.ControlSessionNotFound)
		return
	}

	ctrl := stream.NewController(s.cfg.PopTimeout, s.idleLimit(r), s.log)
	if err := ctrl.Stream(r.Context(), sess.Queue(), writer); err != nil {
		// The queue already has its one consumer; this attach attempt
		// fails without affecting the existing stream.
		respondError(w, http.StatusConflict, "stream already attached to this session")
	}
}

// handleStreamWS serves the same frame stream over a WebSocket. The
// queue's single-consumer claim applies across both transports.
func (s *Server) handleStreamWS(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.registry.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if sess.Queue().Attached() {
		respondError(w, http.StatusConflict, "stream already attached to this session")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Reads only serve to notice the peer closing.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	writer := stream.NewWSWriter(conn, s.cfg.WSWriteTimeout)
	ctrl := stream.NewController(s.cfg.PopTimeout, s.idleLimit(r), s.log)
	if err := ctrl.Stream(ctx, sess.Queue(), writer); err != nil {
		// Lost the attach race after the upgrade.
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "stream already attached")
		_ = conn.WriteMessage(websocket.CloseMessage, msg)
	}
}

// idleLimit resolves the per-request idle ceiling: the configured
// default, overridable by ?idle_timeout= seconds within fixed bounds.
func (s *Server) idleLimit(r *http.Request) time.Duration {
	raw := r.URL.Query().Get("idle_timeout")
	if raw == "" {
		return s.cfg.IdleTimeout
	}
	secs, err := strconv.Atoi(raw)
	if err != nil {
		return s.cfg.IdleTimeout
	}
	if secs < minIdleTimeoutSec {
		secs = minIdleTimeoutSec
	}
	if secs > maxIdleTimeoutSec {
		secs = maxIdleTimeoutSec
	}
	return time.Duration(secs) * time.Second
}
