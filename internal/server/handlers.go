package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pritam/bingocraft/internal/adapter"
	"github.com/pritam/bingocraft/internal/engine"
)

type createInstanceRequest struct {
	Seed    int64             `json:"seed"`
	Rows    int               `json:"rows"`
	Cols    int               `json:"cols"`
	WinRule string            `json:"win_rule"`
	Teams   []teamSpecRequest `json:"teams"`
}

type teamSpecRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

type abortRequest struct {
	Reason string `json:"reason"`
}

type hostEventRequest struct {
	Type       string    `json:"type"`
	PlayerID   string    `json:"player_id"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleCreateInstance(w http.ResponseWriter, r *http.Request) {
	var req createInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	if req.Seed == 0 {
		// Derive a seed so the stored value still reproduces the board.
		req.Seed = time.Now().UnixNano()
	}
	if req.Rows == 0 {
		req.Rows = s.gameCfg.DefaultRows
	}
	if req.Cols == 0 {
		req.Cols = s.gameCfg.DefaultCols
	}

	params := engine.CreateParams{
		Seed:    req.Seed,
		Rows:    req.Rows,
		Cols:    req.Cols,
		WinRule: engine.WinRule(req.WinRule),
		Teams:   make([]engine.TeamSpec, 0, len(req.Teams)),
	}
	if params.WinRule == "" {
		params.WinRule = engine.WinRuleFullBoard
	}
	for _, t := range req.Teams {
		params.Teams = append(params.Teams, engine.TeamSpec{Name: t.Name, Members: t.Members})
	}

	snap, err := s.engine.CreateInstance(r.Context(), params)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleActivateInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.Activate(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}

	snap, err := s.engine.Snapshot(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleAbortInstance(w http.ResponseWriter, r *http.Request) {
	var req abortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.Reason == "" {
		req.Reason = "aborted by administrator"
	}

	id := chi.URLParam(r, "id")
	if err := s.engine.Abort(r.Context(), id, req.Reason); err != nil {
		writeEngineError(w, err)
		return
	}

	snap, err := s.engine.Snapshot(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"instances": s.engine.Instances(),
	})
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleHostEvent injects a host event through the adapter. Exists for
// integration testing and for host bridges that speak HTTP instead of
// linking the adapter directly.
func (s *Server) handleHostEvent(w http.ResponseWriter, r *http.Request) {
	var req hostEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	s.adapter.HandleHostEvent(r.Context(), adapter.HostEvent{
		Type:       adapter.HostEventType(req.Type),
		PlayerID:   req.PlayerID,
		Detail:     req.Detail,
		OccurredAt: req.OccurredAt,
	})

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	diag, err := s.store.Diagnostics(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, diag)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

// writeEngineError maps engine errors onto HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInstanceNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, engine.ErrDuplicateTeam):
		writeError(w, http.StatusBadRequest, "duplicate_team", err.Error())
	case errors.Is(err, engine.ErrInvalidState), errors.Is(err, engine.ErrInstanceTerminal):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, engine.ErrPlayerConflict):
		writeError(w, http.StatusConflict, "player_conflict", err.Error())
	case errors.Is(err, engine.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", err.Error())
	default:
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	}
}
