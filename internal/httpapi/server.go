package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"freebies_claimer/internal/config"
	"freebies_claimer/internal/logbus"
	"freebies_claimer/internal/model"
	"freebies_claimer/internal/ws"
)

type StateSource interface {
	State() model.RunnerState
}

// ClaimSource is the read side of the run ledger.
type ClaimSource interface {
	ListClaims(ctx context.Context, limit int) ([]model.ClaimRecord, error)
	ListRuns(ctx context.Context, limit int) ([]model.RunSummary, error)
	GetRun(ctx context.Context, runID string) (model.RunSummary, error)
}

type Options struct {
	Cfg    config.Config
	Bus    *logbus.Bus
	State  StateSource
	Claims ClaimSource
}

// Server is the read-only status API.
type Server struct {
	cfg    config.Config
	bus    *logbus.Bus
	state  StateSource
	claims ClaimSource
	ws     *ws.Handler
}

func New(opts Options) *Server {
	return &Server{
		cfg:    opts.Cfg,
		bus:    opts.Bus,
		state:  opts.State,
		claims: opts.Claims,
		ws:     ws.NewHandler(opts.Bus, opts.Cfg.Server.Cors.AllowOrigins),
	}
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/ws", s.ws)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/claims", s.handleClaims).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/runs", s.handleRuns).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/runs/{id}", s.handleRun).Methods(http.MethodGet, http.MethodOptions)
	cors := newCORSPolicy(s.cfg.Server.Cors)
	api.Use(cors.middleware())
	// Method mismatches below the subrouter surface at the root router.
	r.MethodNotAllowedHandler = cors.wrap(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
	}))
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.claims.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	if s.state == nil {
		writeJSON(w, http.StatusOK, map[string]any{"data": model.RunnerState{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": s.state.State()})
}

func (s *Server) handleClaims(w http.ResponseWriter, r *http.Request) {
	if !s.requireClaims(w) {
		return
	}
	claims, err := s.claims.ListClaims(r.Context(), queryInt(r, "limit"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if claims == nil {
		claims = []model.ClaimRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": claims})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireClaims(w) {
		return
	}
	runs, err := s.claims.ListRuns(r.Context(), queryInt(r, "limit"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []model.RunSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": runs})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireClaims(w) {
		return
	}
	run, err := s.claims.GetRun(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "run not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": run})
}

func (s *Server) requireClaims(w http.ResponseWriter) bool {
	if s.claims == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "ledger disabled"})
		return false
	}
	return true
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
