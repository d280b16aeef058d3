package server

import (
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/ruff-uno/simonini-isms/internal/jobtread"
	"github.com/ruff-uno/simonini-isms/internal/specdoc"
	"github.com/ruff-uno/simonini-isms/internal/store"
)

// phaseSpecFileLimit is the page size used when looking up a single file.
const phaseSpecFileLimit = 100

// PhaseSpecFile is a phase spec PDF listed from JobTread.
type PhaseSpecFile struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	PhaseCode   *string `json:"phase_code"`
	Description string  `json:"description"`
	URL         string  `json:"url"`
	Size        int64   `json:"size"`
	SizeKB      float64 `json:"size_kb"`
	Type        string  `json:"type"`
	CreatedAt   string  `json:"created_at"`
}

func newPhaseSpecFile(f jobtread.File) PhaseSpecFile {
	code, desc := specdoc.DescribeFile(f.Name)
	var phaseCode *string
	if code != "" {
		phaseCode = &code
	}
	return PhaseSpecFile{
		ID:          f.ID,
		Name:        f.Name,
		PhaseCode:   phaseCode,
		Description: desc,
		URL:         f.URL,
		Size:        f.Size,
		SizeKB:      math.Round(float64(f.Size)/1024*10) / 10,
		Type:        f.Type,
		CreatedAt:   f.CreatedAt,
	}
}

// filesAvailable writes a 503 when JobTread is not configured.
func (s *Server) filesAvailable(w http.ResponseWriter) bool {
	if s.opts.Files == nil || s.opts.PhaseSpecsJobID == "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"success": false,
			"error":   "JobTread is not configured",
		})
		return false
	}
	return true
}

func (s *Server) handleListPhaseSpecs(w http.ResponseWriter, r *http.Request) {
	if !s.filesAvailable(w) {
		return
	}
	files, err := s.opts.Files.PhaseSpecFiles(r.Context(), s.opts.PhaseSpecsJobID)
	if err != nil {
		s.failure(w, r, err, "Failed to fetch phase specs")
		return
	}

	result := make([]PhaseSpecFile, 0, len(files))
	for _, f := range files {
		result = append(result, newPhaseSpecFile(f))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(result),
		"files":   result,
	})
}

func (s *Server) handleGetPhaseSpec(w http.ResponseWriter, r *http.Request) {
	if !s.filesAvailable(w) {
		return
	}
	fileID := r.PathValue("file_id")
	files, err := s.opts.Files.JobFiles(r.Context(), s.opts.PhaseSpecsJobID, phaseSpecFileLimit)
	if err != nil {
		s.failure(w, r, err, "Failed to fetch file")
		return
	}
	for _, f := range files {
		if f.ID == fileID {
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "file": f})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "File not found"})
}

// failure logs err and answers {"success": false, "error": msg}.
func (s *Server) failure(w http.ResponseWriter, r *http.Request, err error, msg string) {
	s.logRequestError(r, err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": msg})
}

func (s *Server) handleListSpecDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.ListSpecDocuments(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		s.failure(w, r, err, "Failed to fetch documents")
		return
	}

	categories := map[string][]store.SpecDocument{}
	for _, d := range docs {
		cat, _, _ := strings.Cut(d.PhaseCode, "-")
		categories[cat] = append(categories[cat], d)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"count":      len(docs),
		"documents":  docs,
		"categories": categories,
	})
}

// specDocumentResponse is a document with the caller's bookmarked item ids.
type specDocumentResponse struct {
	*store.SpecDocumentDetail
	BookmarkedItems []int64 `json:"bookmarked_items"`
}

func (s *Server) handleGetSpecDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	doc, err := s.store.GetSpecDocument(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}
	if err != nil {
		s.failure(w, r, err, "Failed to fetch document")
		return
	}
	bookmarked, err := s.store.BookmarkedSpecItems(r.Context(), userID(r), id)
	if err != nil {
		s.failure(w, r, err, "Failed to fetch document")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"document": specDocumentResponse{SpecDocumentDetail: doc, BookmarkedItems: bookmarked},
	})
}

func (s *Server) handleSearchSpecs(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "Search query required")
		return
	}
	results, err := s.store.SearchSpecItems(r.Context(), q)
	if err != nil {
		s.failure(w, r, err, "Search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"query":   q,
		"count":   len(results),
		"results": results,
	})
}

func (s *Server) handleListSpecBookmarks(w http.ResponseWriter, r *http.Request) {
	bookmarks, err := s.store.ListSpecBookmarks(r.Context(), userID(r))
	if err != nil {
		s.failure(w, r, err, "Failed to fetch bookmarks")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"count":     len(bookmarks),
		"bookmarks": bookmarks,
	})
}

func (s *Server) handleAddSpecBookmark(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemID int64  `json:"item_id"`
		Notes  string `json:"notes"`
	}
	if err := decode(r, &req); err != nil || req.ItemID == 0 {
		writeError(w, http.StatusBadRequest, "item_id required")
		return
	}
	id, err := s.store.AddSpecBookmark(r.Context(), userID(r), req.ItemID, req.Notes)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}
	if err != nil {
		s.failure(w, r, err, "Failed to add bookmark")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "bookmark_id": id})
}

func (s *Server) handleRemoveSpecBookmark(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r, "item_id")
	if !ok {
		return
	}
	if err := s.store.RemoveSpecBookmark(r.Context(), userID(r), itemID); err != nil {
		s.failure(w, r, err, "Failed to remove bookmark")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleListSpecNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := s.store.ListSpecNotes(r.Context(), userID(r))
	if err != nil {
		s.failure(w, r, err, "Failed to fetch notes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(notes),
		"notes":   notes,
	})
}

func (s *Server) handleGetSpecNote(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r, "item_id")
	if !ok {
		return
	}
	note, err := s.store.GetSpecNote(r.Context(), userID(r), itemID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.failure(w, r, err, "Failed to fetch note")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "note": note})
}

// handleSaveSpecNote stores a note on a spec item. Blank text deletes it.
func (s *Server) handleSaveSpecNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemID   int64  `json:"item_id"`
		NoteText string `json:"note_text"`
	}
	if err := decode(r, &req); err != nil || req.ItemID == 0 {
		writeError(w, http.StatusBadRequest, "item_id required")
		return
	}

	note, err := s.store.SaveSpecNote(r.Context(), userID(r), req.ItemID, req.NoteText)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}
	if err != nil {
		s.failure(w, r, err, "Failed to save note")
		return
	}
	if note == nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"note_id":    note.NoteID,
		"created_at": note.CreatedAt,
		"updated_at": note.UpdatedAt,
	})
}

func (s *Server) handleDeleteSpecNote(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r, "item_id")
	if !ok {
		return
	}
	if err := s.store.DeleteSpecNote(r.Context(), userID(r), itemID); err != nil {
		s.failure(w, r, err, "Failed to delete note")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleListFigures(w http.ResponseWriter, r *http.Request) {
	figures, err := s.store.ListSpecFigures(r.Context(), r.URL.Query().Get("phase_code"))
	if err != nil {
		s.failure(w, r, err, "Failed to fetch figures")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(figures),
		"figures": figures,
	})
}
