// Package viewer exposes the running pipeline to UI clients: a WebSocket
// stream of bus events plus a small HTTP control surface mapping to the
// orchestrator's idempotent commands. The viewer is a bus subscriber like any
// other; the pipeline runs identically with zero clients connected.
package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/auricle-ai/auricle/internal/bus"
	"github.com/auricle-ai/auricle/internal/config"
	"github.com/auricle-ai/auricle/internal/health"
	"github.com/auricle-ai/auricle/internal/observe"
	"github.com/auricle-ai/auricle/internal/session"
	"github.com/auricle-ai/auricle/pkg/history"
	"github.com/auricle-ai/auricle/pkg/provider/embeddings"
)

// Controller is the subset of the session orchestrator the viewer drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	SetInterviewType(t config.InterviewType) error
	CancelAnswer()
	State() session.State
	SessionID() string
	Exchanges() []history.Exchange
}

// Options configures a [Server]. Controller and Bus are required.
type Options struct {
	Controller Controller
	Bus        *bus.Bus

	// Health, when non-nil, mounts /healthz and /readyz.
	Health *health.Handler

	// History, when non-nil, mounts GET /api/history/search.
	History history.Store

	// Embedder enables semantic history search when both it and History are
	// set.
	Embedder embeddings.Provider

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	Logger *slog.Logger

	// RunCtx bounds sessions started through the control surface; a session
	// must outlive the HTTP request that started it.
	RunCtx context.Context
}

// Server serves the viewer WebSocket and control endpoints.
type Server struct {
	ctrl     Controller
	bus      *bus.Bus
	store    history.Store
	embedder embeddings.Provider
	metrics  *observe.Metrics
	log      *slog.Logger
	runCtx   context.Context

	handler http.Handler
}

// New wires the routes and returns a ready Server.
func New(opts Options) (*Server, error) {
	if opts.Controller == nil || opts.Bus == nil {
		return nil, fmt.Errorf("viewer: controller and bus are required")
	}
	if opts.Metrics == nil {
		opts.Metrics = observe.DefaultMetrics()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RunCtx == nil {
		opts.RunCtx = context.Background()
	}

	s := &Server{
		ctrl:     opts.Controller,
		bus:      opts.Bus,
		store:    opts.History,
		embedder: opts.Embedder,
		metrics:  opts.Metrics,
		log:      opts.Logger,
		runCtx:   opts.RunCtx,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("POST /api/start", s.handleStart)
	mux.HandleFunc("POST /api/stop", s.handleStop)
	mux.HandleFunc("POST /api/interview-type", s.handleInterviewType)
	mux.HandleFunc("POST /api/cancel-answer", s.handleCancelAnswer)
	if s.store != nil {
		mux.HandleFunc("GET /api/history/search", s.handleHistorySearch)
	}
	mux.Handle("GET /metrics", promhttp.Handler())
	if opts.Health != nil {
		opts.Health.Register(mux)
	}

	s.handler = observe.Middleware(s.metrics)(mux)
	return s, nil
}

// Handler returns the fully wired HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// sessionView is the JSON body of GET /api/session.
type sessionView struct {
	State         session.State `json:"state"`
	SessionID     string        `json:"session_id,omitempty"`
	InterviewType string        `json:"interview_type,omitempty"`
	Exchanges     []exchange    `json:"exchanges,omitempty"`
}

type exchange struct {
	ID       string    `json:"id"`
	Question string    `json:"question"`
	Answer   string    `json:"answer,omitempty"`
	AskedAt  time.Time `json:"asked_at"`
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	view := sessionView{
		State:     s.ctrl.State(),
		SessionID: s.ctrl.SessionID(),
	}
	for _, ex := range s.ctrl.Exchanges() {
		if view.InterviewType == "" {
			view.InterviewType = ex.InterviewType
		}
		view.Exchanges = append(view.Exchanges, exchange{
			ID:       ex.ID,
			Question: ex.Question,
			Answer:   ex.Answer,
			AskedAt:  ex.AskedAt,
		})
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleStart(w http.ResponseWriter, _ *http.Request) {
	// The session outlives this request; bind it to the server context.
	if err := s.ctrl.Start(s.runCtx); err != nil {
		s.log.Error("session start failed", "error", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, statusBody{Status: "ok", State: s.ctrl.State()})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	if err := s.ctrl.Stop(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, statusBody{Status: "ok", State: s.ctrl.State()})
}

type interviewTypeBody struct {
	InterviewType string `json:"interview_type"`
}

func (s *Server) handleInterviewType(w http.ResponseWriter, r *http.Request) {
	var body interviewTypeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("viewer: decode body: %w", err))
		return
	}
	if err := s.ctrl.SetInterviewType(config.InterviewType(body.InterviewType)); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, statusBody{Status: "ok", State: s.ctrl.State()})
}

func (s *Server) handleCancelAnswer(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.CancelAnswer()
	writeJSON(w, http.StatusOK, statusBody{Status: "ok", State: s.ctrl.State()})
}

type statusBody struct {
	Status string        `json:"status"`
	State  session.State `json:"state"`
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}
