// Package httpapi exposes the session engine over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aretw0/roam/pkg/domain"
)

// Engine is the session surface the API serves.
type Engine interface {
	Run(ctx context.Context, goal string) (*domain.State, error)
	Session(ctx context.Context, sessionID string) (*domain.State, error)
	Sessions(ctx context.Context) ([]string, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Server handles the session routes. Runs are started in the background and
// polled through GET /sessions/{id}.
type Server struct {
	engine Engine
	logger *slog.Logger
}

// NewHandler builds the HTTP handler.
func NewHandler(engine Engine, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{engine: engine, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.health)
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.createSession)
		r.Get("/", s.listSessions)
		r.Get("/{sessionID}", s.getSession)
		r.Delete("/{sessionID}", s.deleteSession)
	})
	return r
}

type createRequest struct {
	Goal string `json:"goal"`
	Wait bool   `json:"wait,omitempty"`
}

type createResponse struct {
	SessionID string        `json:"session_id"`
	Done      bool          `json:"done"`
	Plan      []planEntry   `json:"plan,omitempty"`
	Error     string        `json:"error,omitempty"`
}

type planEntry struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
}

func toPlanEntries(plan domain.Plan) []planEntry {
	out := make([]planEntry, 0, len(plan))
	for _, sg := range plan {
		out = append(out, planEntry{
			ID:          sg.ID,
			Description: sg.Description,
			Status:      string(sg.Status),
			Reason:      sg.CompletionReason,
		})
	}
	return out
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// createSession starts a run. With wait=true the response carries the final
// state; otherwise the run continues in the background.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Goal == "" {
		http.Error(w, "goal is required", http.StatusBadRequest)
		return
	}

	if body.Wait {
		state, err := s.engine.Run(r.Context(), body.Goal)
		resp := createResponse{Done: state != nil && state.Done}
		if state != nil {
			resp.SessionID = state.SessionID
			resp.Plan = toPlanEntries(state.Plan)
		}
		if err != nil {
			resp.Error = err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	// Detached run: the request context dies with the response, so the run
	// gets its own. The session id becomes visible through GET /sessions
	// once the run persists its state.
	go func() {
		if _, err := s.engine.Run(context.Background(), body.Goal); err != nil {
			s.logger.Error("background session failed", "err", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.engine.Sessions(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": sessions})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	state, err := s.engine.Session(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.engine.DeleteSession(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "err", err)
	}
}
