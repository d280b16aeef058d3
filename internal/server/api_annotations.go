package server

import (
	"errors"
	"net/http"

	"github.com/ruff-uno/simonini-isms/internal/store"
)

func (s *Server) handleListBookmarks(w http.ResponseWriter, r *http.Request) {
	bookmarks, err := s.store.ListBookmarks(r.Context(), userID(r))
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookmarks)
}

func (s *Server) handleAddBookmark(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RuleID int64   `json:"rule_id"`
		Notes  *string `json:"notes"`
	}
	if err := decode(r, &req); err != nil || req.RuleID == 0 {
		writeError(w, http.StatusBadRequest, "rule_id is required")
		return
	}

	bookmark, err := s.store.AddBookmark(r.Context(), userID(r), req.RuleID, req.Notes)
	if err != nil {
		s.storeError(w, r, err, msgRuleNotFound, "")
		return
	}
	writeJSON(w, http.StatusCreated, bookmark)
}

func (s *Server) handleRemoveBookmark(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := pathID(w, r, "rule_id")
	if !ok {
		return
	}
	if err := s.store.RemoveBookmark(r.Context(), userID(r), ruleID); err != nil {
		s.storeError(w, r, err, "Bookmark not found", "")
		return
	}
	writeMessage(w, "Bookmark removed")
}

func (s *Server) handleCheckBookmark(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := pathID(w, r, "rule_id")
	if !ok {
		return
	}
	bookmark, err := s.store.GetBookmark(r.Context(), userID(r), ruleID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.serverError(w, r, err)
		return
	}

	var body any
	if bookmark != nil {
		body = map[string]any{"bookmark_id": bookmark.BookmarkID, "notes": bookmark.Notes}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bookmarked": bookmark != nil,
		"bookmark":   body,
	})
}

func (s *Server) handleListHighlights(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := queryID(w, r, "rule_id")
	if !ok {
		return
	}
	highlights, err := s.store.ListHighlights(r.Context(), userID(r), ruleID)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, highlights)
}

type addHighlightRequest struct {
	RuleID          *int64  `json:"rule_id"`
	StartOffset     *int    `json:"start_offset"`
	EndOffset       *int    `json:"end_offset"`
	HighlightedText *string `json:"highlighted_text"`
	HighlightColor  string  `json:"highlight_color"`
}

// missing names the first required field absent from the request.
func (req addHighlightRequest) missing() string {
	switch {
	case req.RuleID == nil:
		return "rule_id"
	case req.StartOffset == nil:
		return "start_offset"
	case req.EndOffset == nil:
		return "end_offset"
	case req.HighlightedText == nil:
		return "highlighted_text"
	}
	return ""
}

func (s *Server) handleAddHighlight(w http.ResponseWriter, r *http.Request) {
	var req addHighlightRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if field := req.missing(); field != "" {
		writeError(w, http.StatusBadRequest, field+" is required")
		return
	}
	if *req.StartOffset < 0 || *req.EndOffset < *req.StartOffset {
		writeError(w, http.StatusBadRequest, "end_offset must not precede start_offset")
		return
	}

	highlight, err := s.store.AddHighlight(r.Context(), userID(r), store.NewHighlight{
		RuleID:          *req.RuleID,
		StartOffset:     *req.StartOffset,
		EndOffset:       *req.EndOffset,
		HighlightedText: *req.HighlightedText,
		Color:           req.HighlightColor,
	})
	if err != nil {
		s.storeError(w, r, err, msgRuleNotFound, "")
		return
	}
	writeJSON(w, http.StatusCreated, highlight)
}

func (s *Server) handleRemoveHighlight(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.store.RemoveHighlight(r.Context(), userID(r), id); err != nil {
		s.storeError(w, r, err, "Highlight not found", "")
		return
	}
	writeMessage(w, "Highlight removed")
}

func (s *Server) handleClearHighlights(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := pathID(w, r, "rule_id")
	if !ok {
		return
	}
	if _, err := s.store.ClearHighlights(r.Context(), userID(r), ruleID); err != nil {
		s.serverError(w, r, err)
		return
	}
	writeMessage(w, "Highlights removed")
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := s.store.ListNotes(r.Context(), userID(r))
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

// handleGetRuleNote answers the note on a rule, or null when there is none.
func (s *Server) handleGetRuleNote(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := pathID(w, r, "rule_id")
	if !ok {
		return
	}
	note, err := s.store.GetNote(r.Context(), userID(r), ruleID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusOK, nil)
	case err != nil:
		s.serverError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, note)
	}
}

func (s *Server) handleSaveNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RuleID   int64  `json:"rule_id"`
		NoteText string `json:"note_text"`
	}
	if err := decode(r, &req); err != nil || req.RuleID == 0 || req.NoteText == "" {
		writeError(w, http.StatusBadRequest, "rule_id and note_text are required")
		return
	}

	note, created, err := s.store.SaveNote(r.Context(), userID(r), req.RuleID, req.NoteText)
	if err != nil {
		s.storeError(w, r, err, msgRuleNotFound, "")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, note)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.store.DeleteNote(r.Context(), userID(r), id); err != nil {
		s.storeError(w, r, err, "Note not found", "")
		return
	}
	writeMessage(w, "Note deleted")
}

// handleDeleteRuleNote removes the caller's note on a rule. Deleting a note
// that does not exist succeeds.
func (s *Server) handleDeleteRuleNote(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := pathID(w, r, "rule_id")
	if !ok {
		return
	}
	err := s.store.DeleteRuleNote(r.Context(), userID(r), ruleID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.serverError(w, r, err)
		return
	}
	writeMessage(w, "Note deleted")
}
