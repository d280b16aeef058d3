package server

import (
	"net/http"

	"github.com/ruff-uno/simonini-isms/internal/store"
)

const (
	msgPhaseNotFound = "Phase not found"
	msgPhaseConflict = "Phase code already exists"
)

func (s *Server) handleListPhases(w http.ResponseWriter, r *http.Request) {
	phases, err := s.store.ListPhases(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, phases)
}

func (s *Server) handleGetPhase(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	phase, err := s.store.GetPhase(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err, msgPhaseNotFound, "")
		return
	}
	writeJSON(w, http.StatusOK, phase)
}

func (s *Server) handleGetPhaseByCode(w http.ResponseWriter, r *http.Request) {
	phase, err := s.store.GetPhaseByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		s.storeError(w, r, err, msgPhaseNotFound, "")
		return
	}
	writeJSON(w, http.StatusOK, phase)
}

type createPhaseRequest struct {
	PhaseCode   string  `json:"phase_code"`
	PhaseName   string  `json:"phase_name"`
	Description *string `json:"description"`
	SortOrder   *int    `json:"sort_order"`
}

func (s *Server) handleCreatePhase(w http.ResponseWriter, r *http.Request) {
	var req createPhaseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PhaseCode == "" || req.PhaseName == "" {
		writeError(w, http.StatusBadRequest, "phase_code and phase_name are required")
		return
	}

	phase, err := s.store.CreatePhase(r.Context(), store.NewPhase{
		PhaseCode:   req.PhaseCode,
		PhaseName:   req.PhaseName,
		Description: req.Description,
		SortOrder:   req.SortOrder,
	}, userID(r))
	if err != nil {
		s.storeError(w, r, err, "", msgPhaseConflict)
		return
	}
	writeJSON(w, http.StatusCreated, phase)
}

func (s *Server) handleUpdatePhase(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var patch store.PhasePatch
	if !decodeBody(w, r, &patch) {
		return
	}

	phase, err := s.store.UpdatePhase(r.Context(), id, patch, userID(r))
	if err != nil {
		s.storeError(w, r, err, msgPhaseNotFound, msgPhaseConflict)
		return
	}
	writeJSON(w, http.StatusOK, phase)
}

func (s *Server) handleDeletePhase(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.store.DeletePhase(r.Context(), id, userID(r)); err != nil {
		s.storeError(w, r, err, msgPhaseNotFound, "")
		return
	}
	writeMessage(w, "Phase deleted successfully")
}

func (s *Server) handleReorderPhases(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Order []int64 `json:"order"`
	}
	if err := decode(r, &req); err != nil || req.Order == nil {
		writeError(w, http.StatusBadRequest, "order array required")
		return
	}
	if err := s.store.ReorderPhases(r.Context(), req.Order, userID(r)); err != nil {
		s.serverError(w, r, err)
		return
	}
	writeMessage(w, "Phases reordered successfully")
}
