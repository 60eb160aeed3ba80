package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/wodrt/internal/engine"
	"github.com/roach88/wodrt/internal/store"
)

type healthResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type stackResponse struct {
	Depth  int                `json:"depth"`
	Top    *engine.BlockInfo  `json:"top,omitempty"`
	Blocks []engine.BlockInfo `json:"blocks"`
	Done   bool               `json:"done"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.live.Snapshot())
}

func (s *Server) handleStack(w http.ResponseWriter, r *http.Request) {
	snap := s.live.Snapshot()
	resp := stackResponse{
		Depth:  len(snap.Stack),
		Blocks: snap.Stack,
		Done:   snap.Done,
	}
	if resp.Blocks == nil {
		resp.Blocks = []engine.BlockInfo{}
	}
	if n := len(snap.Stack); n > 0 {
		top := snap.Stack[n-1]
		resp.Top = &top
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		s.logger.Error("list sessions", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list sessions"})
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	s.writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		s.storeError(w, "get session", id, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetRecords(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetSession(r.Context(), id); err != nil {
		s.storeError(w, "get session", id, err)
		return
	}
	records, err := s.store.ReadRecords(r.Context(), id)
	if err != nil {
		s.storeError(w, "read records", id, err)
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) storeError(w http.ResponseWriter, op, id string, err error) {
	if store.IsSessionNotFound(err) {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	s.logger.Error(op, "session_id", id, "error", err)
	s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: op + " failed"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}
