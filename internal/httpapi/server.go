package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/antoniostano/agentdispatch/internal/config"
	"github.com/antoniostano/agentdispatch/internal/jobs"
	"github.com/antoniostano/agentdispatch/internal/observability"
	"github.com/antoniostano/agentdispatch/internal/room"
	"github.com/antoniostano/agentdispatch/internal/session"
)

var errEmptyBody = errors.New("request body is empty")

// Dispatcher starts sessions and answers transport pings. The dispatch
// package provides the real one.
type Dispatcher interface {
	StartSession(ctx context.Context, cfg session.Config) (string, error)
	Ping(ctx context.Context) (time.Duration, error)
}

type Server struct {
	cfg        config.Config
	dispatcher Dispatcher
	store      jobs.Store
	statuses   *session.Registry
	metrics    *observability.Metrics
}

func New(cfg config.Config, dispatcher Dispatcher, store jobs.Store, statuses *session.Registry, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		store:      store,
		statuses:   statuses,
		metrics:    metrics,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/call", s.handleCall)
	r.Get("/agent-status", s.handleAgentStatus)
	r.Get("/agent-ping", s.handleAgentPing)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"dispatch_mode": s.cfg.DispatchMode,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ready",
		"dispatch_mode": s.cfg.DispatchMode,
	})
}

// handleCall accepts a call request. In direct mode the session starts
// before the response is written; in queue mode the request becomes a
// pending job for the poller.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	var cfg session.Config
	if err := decodeJSON(r, &cfg); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": session.ErrMissingFields.Error()})
		return
	}
	if err := cfg.Validate(); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	if s.cfg.DispatchMode == config.DispatchQueue {
		job, err := s.store.Enqueue(r.Context(), cfg)
		if err != nil {
			respondJSON(w, http.StatusInternalServerError, map[string]any{
				"error":   "Failed to enqueue job",
				"details": err.Error(),
			})
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"status":   "Job accepted",
			"job_id":   job.ID,
			"received": cfg,
		})
		return
	}

	if _, err := s.dispatcher.StartSession(r.Context(), cfg); err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "Failed to start agent",
			"details": err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "Agent accepted",
		"received": cfg,
	})
}

// agentStatusResponse mirrors what callers poll for. Room and agent
// names are null until a session has been created.
type agentStatusResponse struct {
	Joined    bool    `json:"joined"`
	RoomName  *string `json:"roomName"`
	AgentName *string `json:"agentName"`
	Status    string  `json:"status"`
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.statuses.Latest()
	respondJSON(w, http.StatusOK, agentStatusResponse{
		Joined:    st.Joined,
		RoomName:  nullableString(st.RoomName),
		AgentName: nullableString(st.AgentName),
		Status:    string(st.State),
	})
}

func (s *Server) handleAgentPing(w http.ResponseWriter, r *http.Request) {
	rtt, err := s.dispatcher.Ping(r.Context())
	if err != nil {
		if errors.Is(err, room.ErrNoActiveRoom) {
			respondJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "Ping failed",
			"details": err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"ping_ms": rtt.Milliseconds(),
	})
}

func nullableString(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
