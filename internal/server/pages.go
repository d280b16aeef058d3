package server

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/ruff-uno/simonini-isms/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// pageSet holds one parsed template tree per page, each sharing the layout.
type pageSet struct {
	pages map[string]*template.Template
}

var templateFuncs = template.FuncMap{
	// trusted marks HTML stored by administrators or the importers.
	"trusted": func(s *string) template.HTML {
		if s == nil {
			return ""
		}
		return template.HTML(*s)
	},
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
	"contains": func(set map[int64]bool, id int64) bool {
		return set[id]
	},
	"initials": initials,
}

// initials returns the upper-cased first letters of a user's names, or of
// the username when both are empty.
func initials(u *store.User) string {
	if u == nil {
		return ""
	}
	var b strings.Builder
	for _, s := range []string{u.FirstName, u.LastName} {
		b.WriteString(firstLetter(s))
	}
	if b.Len() == 0 {
		b.WriteString(firstLetter(u.Username))
	}
	return b.String()
}

func firstLetter(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return ""
	}
	return strings.ToUpper(string(r))
}

func loadPages() (*pageSet, error) {
	names, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	ps := &pageSet{pages: make(map[string]*template.Template)}
	for _, name := range names {
		base := path.Base(name)
		if base == "layout.html" {
			continue
		}
		t, err := template.New(base).Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", base, err)
		}
		ps.pages[strings.TrimSuffix(base, ".html")] = t
	}
	return ps, nil
}

// pageData is passed to every page template.
type pageData struct {
	Title string
	User  *store.User
	Data  any
}

// render executes a page into a buffer first so a template failure can
// still produce the error page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any) {
	t, ok := s.pages.pages[page]
	if !ok {
		s.logRequestError(r, fmt.Errorf("unknown page %q", page))
		http.Error(w, internalErrorMessage, http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	err := t.ExecuteTemplate(&buf, "layout", pageData{Title: title, User: currentUser(r), Data: data})
	if err != nil {
		s.logRequestError(r, fmt.Errorf("render %s: %w", page, err))
		if page != "error" {
			s.render(w, r, http.StatusInternalServerError, "error", "Error", "Something went wrong.")
			return
		}
		http.Error(w, internalErrorMessage, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// pageError renders the 404 page for missing rows and the error page
// otherwise.
func (s *Server) pageError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		s.render(w, r, http.StatusNotFound, "404", "Not Found", nil)
		return
	}
	s.logRequestError(r, err)
	s.render(w, r, http.StatusInternalServerError, "error", "Error", "Something went wrong.")
}

// handleNotFound answers unmatched routes: JSON under /api, HTML elsewhere.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	s.render(w, r, http.StatusNotFound, "404", "Not Found", nil)
}

func (s *Server) bookmarkedRules(r *http.Request) (map[int64]bool, error) {
	bookmarks, err := s.store.ListBookmarks(r.Context(), userID(r))
	if err != nil {
		return nil, err
	}
	ids := make(map[int64]bool, len(bookmarks))
	for _, b := range bookmarks {
		ids[b.RuleID] = true
	}
	return ids, nil
}

type indexPage struct {
	Phases     []store.PhaseDetail
	Bookmarked map[int64]bool
}

func (s *Server) pageIndex(w http.ResponseWriter, r *http.Request) {
	phases, err := s.store.ListPhaseDetails(r.Context())
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	bookmarked, err := s.bookmarkedRules(r)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "index", "Simonini-isms", indexPage{Phases: phases, Bookmarked: bookmarked})
}

type phasePage struct {
	Phase      *store.PhaseDetail
	Bookmarked map[int64]bool
}

func (s *Server) pagePhase(w http.ResponseWriter, r *http.Request) {
	phase, err := s.store.GetPhaseByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	bookmarked, err := s.bookmarkedRules(r)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	title := fmt.Sprintf("Phase %s: %s", phase.PhaseCode, phase.PhaseName)
	s.render(w, r, http.StatusOK, "phase", title, phasePage{Phase: phase, Bookmarked: bookmarked})
}

type rulePage struct {
	Rule       *store.Rule
	Bookmarked bool
	Note       *store.Note
	Highlights []store.Highlight
}

func (s *Server) pageRule(w http.ResponseWriter, r *http.Request) {
	id, err := parsePageID(r.PathValue("id"))
	if err != nil {
		s.pageError(w, r, store.ErrNotFound)
		return
	}
	ctx, uid := r.Context(), userID(r)

	rule, err := s.store.GetRule(ctx, id)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	data := rulePage{Rule: rule}

	if _, err := s.store.GetBookmark(ctx, uid, id); err == nil {
		data.Bookmarked = true
	} else if !errors.Is(err, store.ErrNotFound) {
		s.pageError(w, r, err)
		return
	}
	if note, err := s.store.GetNote(ctx, uid, id); err == nil {
		data.Note = note
	} else if !errors.Is(err, store.ErrNotFound) {
		s.pageError(w, r, err)
		return
	}
	if data.Highlights, err = s.store.ListHighlights(ctx, uid, id); err != nil {
		s.pageError(w, r, err)
		return
	}

	title := fmt.Sprintf("Rule %d - Phase %s", rule.RuleNumber, rule.PhaseCode)
	s.render(w, r, http.StatusOK, "rule", title, data)
}

func (s *Server) pageBookmarks(w http.ResponseWriter, r *http.Request) {
	bookmarks, err := s.store.ListBookmarks(r.Context(), userID(r))
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "bookmarks", "My Bookmarks", bookmarks)
}

func (s *Server) pageSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	data := struct {
		Query string
		Rules []store.Rule
	}{Query: q}
	if q != "" {
		rules, err := s.store.SearchRules(r.Context(), q)
		if err != nil {
			s.pageError(w, r, err)
			return
		}
		data.Rules = rules
	}
	s.render(w, r, http.StatusOK, "search", "Search", data)
}

func (s *Server) pageAdmin(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.Counts(r.Context())
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "admin", "Admin", counts)
}

func (s *Server) pagePhaseSpecs(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "phase_specs", "Phase Specs", nil)
}

type specReferencePage struct {
	Documents  []*store.SpecDocumentDetail
	Bookmarked map[int64]bool
	Notes      map[int64]string
}

func (s *Server) pageSpecReference(w http.ResponseWriter, r *http.Request) {
	ctx, uid := r.Context(), userID(r)

	docs, err := s.store.ListSpecDocuments(ctx, "")
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	data := specReferencePage{
		Documents:  make([]*store.SpecDocumentDetail, 0, len(docs)),
		Bookmarked: map[int64]bool{},
		Notes:      map[int64]string{},
	}
	for _, d := range docs {
		detail, err := s.store.GetSpecDocument(ctx, d.DocumentID)
		if err != nil {
			s.pageError(w, r, err)
			return
		}
		data.Documents = append(data.Documents, detail)
	}

	bookmarks, err := s.store.ListSpecBookmarks(ctx, uid)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	for _, b := range bookmarks {
		data.Bookmarked[b.ItemID] = true
	}
	notes, err := s.store.ListSpecNotes(ctx, uid)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	for _, n := range notes {
		data.Notes[n.ItemID] = n.NoteText
	}

	s.render(w, r, http.StatusOK, "spec_reference", "Phase Spec Reference", data)
}

type specDocumentPage struct {
	Document   *store.SpecDocumentDetail
	Bookmarked map[int64]bool
}

func (s *Server) pageSpecReferenceDetail(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.GetSpecDocumentByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	ids, err := s.store.BookmarkedSpecItems(r.Context(), userID(r), doc.DocumentID)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	bookmarked := make(map[int64]bool, len(ids))
	for _, id := range ids {
		bookmarked[id] = true
	}
	s.render(w, r, http.StatusOK, "spec_reference_detail", doc.FullTitle,
		specDocumentPage{Document: doc, Bookmarked: bookmarked})
}

func (s *Server) pagePendingApproval(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "pending_approval", "Pending Approval", nil)
}

func (s *Server) pageUnauthorized(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "unauthorized", "Unauthorized", nil)
}
