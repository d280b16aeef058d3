package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/ruff-uno/simonini-isms/internal/store"
)

const (
	msgRuleNotFound    = "Rule not found"
	msgRuleConflict    = "Rule number already exists in this phase"
	msgVersionNotFound = "Version not found"
)

// handleListRules lists rules, filtered by phase_id or searched with q.
// A search query takes precedence over the phase filter.
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		rules, err := s.store.SearchRules(r.Context(), q)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rules)
		return
	}

	phaseID, ok := queryID(w, r, "phase_id")
	if !ok {
		return
	}
	rules, err := s.store.ListRules(r.Context(), phaseID)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	rule, err := s.store.GetRule(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err, msgRuleNotFound, "")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

type createRuleRequest struct {
	PhaseID    int64   `json:"phase_id"`
	RuleText   string  `json:"rule_text"`
	RuleHTML   *string `json:"rule_html"`
	RuleNumber *int    `json:"rule_number"`
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PhaseID == 0 || req.RuleText == "" {
		writeError(w, http.StatusBadRequest, "phase_id and rule_text are required")
		return
	}

	rule, err := s.store.CreateRule(r.Context(), store.NewRule{
		PhaseID:    req.PhaseID,
		RuleText:   req.RuleText,
		RuleHTML:   req.RuleHTML,
		RuleNumber: req.RuleNumber,
	}, userID(r))
	if err != nil {
		s.storeError(w, r, err, msgPhaseNotFound, msgRuleConflict)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var patch store.RulePatch
	if !decodeBody(w, r, &patch) {
		return
	}

	rule, err := s.store.UpdateRule(r.Context(), id, patch, userID(r))
	if err != nil {
		s.storeError(w, r, err, msgRuleNotFound, msgRuleConflict)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.store.DeleteRule(r.Context(), id, userID(r)); err != nil {
		s.storeError(w, r, err, msgRuleNotFound, "")
		return
	}
	writeMessage(w, "Rule deleted successfully")
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	versions, err := s.store.ListRuleVersions(r.Context(), id)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func versionNumber(w http.ResponseWriter, r *http.Request) (int, bool) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n <= 0 {
		writeError(w, http.StatusNotFound, msgVersionNotFound)
		return 0, false
	}
	return n, true
}

// VersionDiff compares a saved version of a rule with its current text.
type VersionDiff struct {
	RuleID        int64        `json:"rule_id"`
	VersionNumber int          `json:"version_number"`
	Patch         string       `json:"patch"`
	Changes       []DiffChange `json:"changes"`
}

// DiffChange is one span of a word-level diff.
type DiffChange struct {
	Op   string `json:"op"` // "equal", "insert" or "delete"
	Text string `json:"text"`
}

// diffText diffs from against to, cleaned up for human reading.
func diffText(from, to string) (string, []DiffChange) {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(from, to, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	changes := make([]DiffChange, 0, len(diffs))
	for _, d := range diffs {
		var op string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = "insert"
		case diffmatchpatch.DiffDelete:
			op = "delete"
		default:
			op = "equal"
		}
		changes = append(changes, DiffChange{Op: op, Text: d.Text})
	}
	patch := dmp.PatchToText(dmp.PatchMake(from, diffs))
	return patch, changes
}

func (s *Server) handleVersionDiff(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	n, ok := versionNumber(w, r)
	if !ok {
		return
	}

	rule, err := s.store.GetRule(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err, msgRuleNotFound, "")
		return
	}
	version, err := s.store.GetRuleVersion(r.Context(), id, n)
	if err != nil {
		s.storeError(w, r, err, msgVersionNotFound, "")
		return
	}

	patch, changes := diffText(version.RuleText, rule.RuleText)
	writeJSON(w, http.StatusOK, VersionDiff{
		RuleID:        id,
		VersionNumber: n,
		Patch:         patch,
		Changes:       changes,
	})
}

func (s *Server) handleRestoreVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	n, ok := versionNumber(w, r)
	if !ok {
		return
	}
	rule, err := s.store.RestoreRuleVersion(r.Context(), id, n, userID(r))
	if err != nil {
		s.storeError(w, r, err, msgVersionNotFound, msgRuleConflict)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}
