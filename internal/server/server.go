// Package server exposes the rules and phase spec library over HTTP: a
// JSON API under /api and server-rendered pages for the browser.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ruff-uno/simonini-isms/internal/auth"
	"github.com/ruff-uno/simonini-isms/internal/jobtread"
	"github.com/ruff-uno/simonini-isms/internal/store"
)

// AppName is reported by the health check.
const AppName = "simonini-isms"

// shutdownTimeout bounds how long in-flight requests may take to finish.
const shutdownTimeout = 10 * time.Second

// FileLister reads phase spec files from JobTread.
type FileLister interface {
	PhaseSpecFiles(ctx context.Context, jobID string) ([]jobtread.File, error)
	JobFiles(ctx context.Context, jobID string, limit int) ([]jobtread.File, error)
}

// IDGenerator produces request ids.
type IDGenerator interface {
	Generate() string
}

// Options configures a Server.
type Options struct {
	// AppURL is the public base URL used in share links.
	AppURL string
	// CORSOrigins may call the API with credentials.
	CORSOrigins []string
	// PhaseSpecsJobID is the JobTread job holding the phase spec PDFs.
	PhaseSpecsJobID string
	// Files lists JobTread files; nil disables the phase spec library.
	Files  FileLister
	IDs    IDGenerator
	Logger *zap.Logger
}

// Server routes requests to the API and page handlers.
type Server struct {
	store   *store.Store
	auth    *auth.Authenticator
	opts    Options
	ids     IDGenerator
	logger  *zap.Logger
	pages   *pageSet
	handler http.Handler
}

// New creates a Server.
func New(st *store.Store, authn *auth.Authenticator, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ids := opts.IDs
	if ids == nil {
		ids = UUIDv7Generator{}
	}

	pages, err := loadPages()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	s := &Server{
		store:  st,
		auth:   authn,
		opts:   opts,
		ids:    ids,
		logger: logger.Named("http"),
		pages:  pages,
	}

	mux := http.NewServeMux()
	s.routes(mux)
	s.handler = s.requestID(s.accessLog(s.recoverer(s.cors(mux))))
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes(mux *http.ServeMux) {
	api := s.auth.RequireAuth
	admin := s.auth.RequireAdmin
	page := s.auth.RequirePage
	adminPage := s.auth.RequireAdminPage
	h := func(f http.HandlerFunc) http.Handler { return f }

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /static/", http.FileServerFS(staticFS))

	mux.HandleFunc("GET /api/auth/validate", s.handleValidate)
	mux.Handle("GET /api/auth/me", api(h(s.handleMe)))
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)

	mux.Handle("GET /api/phases", api(h(s.handleListPhases)))
	mux.Handle("GET /api/phases/{id}", api(h(s.handleGetPhase)))
	mux.Handle("GET /api/phases/code/{code}", api(h(s.handleGetPhaseByCode)))
	mux.Handle("POST /api/phases", admin(h(s.handleCreatePhase)))
	mux.Handle("PUT /api/phases/{id}", admin(h(s.handleUpdatePhase)))
	mux.Handle("DELETE /api/phases/{id}", admin(h(s.handleDeletePhase)))
	mux.Handle("POST /api/phases/reorder", admin(h(s.handleReorderPhases)))

	mux.Handle("GET /api/rules", api(h(s.handleListRules)))
	mux.Handle("GET /api/rules/{id}", api(h(s.handleGetRule)))
	mux.Handle("POST /api/rules", admin(h(s.handleCreateRule)))
	mux.Handle("PUT /api/rules/{id}", admin(h(s.handleUpdateRule)))
	mux.Handle("DELETE /api/rules/{id}", admin(h(s.handleDeleteRule)))
	mux.Handle("GET /api/rules/{id}/versions", api(h(s.handleListVersions)))
	mux.Handle("GET /api/rules/{id}/versions/{n}/diff", api(h(s.handleVersionDiff)))
	mux.Handle("POST /api/rules/{id}/restore/{n}", admin(h(s.handleRestoreVersion)))

	mux.Handle("GET /api/bookmarks", api(h(s.handleListBookmarks)))
	mux.Handle("POST /api/bookmarks", api(h(s.handleAddBookmark)))
	mux.Handle("DELETE /api/bookmarks/{rule_id}", api(h(s.handleRemoveBookmark)))
	mux.Handle("GET /api/bookmarks/check/{rule_id}", api(h(s.handleCheckBookmark)))

	mux.Handle("GET /api/highlights", api(h(s.handleListHighlights)))
	mux.Handle("POST /api/highlights", api(h(s.handleAddHighlight)))
	mux.Handle("DELETE /api/highlights/{id}", api(h(s.handleRemoveHighlight)))
	mux.Handle("DELETE /api/highlights/rule/{rule_id}", api(h(s.handleClearHighlights)))

	mux.Handle("GET /api/notes", api(h(s.handleListNotes)))
	mux.Handle("GET /api/notes/rule/{rule_id}", api(h(s.handleGetRuleNote)))
	mux.Handle("POST /api/notes", api(h(s.handleSaveNote)))
	mux.Handle("DELETE /api/notes/{id}", api(h(s.handleDeleteNote)))
	mux.Handle("DELETE /api/notes/rule/{rule_id}", api(h(s.handleDeleteRuleNote)))

	mux.Handle("POST /api/share/generate", api(h(s.handleShare)))

	mux.Handle("GET /api/phase-specs", api(h(s.handleListPhaseSpecs)))
	mux.Handle("GET /api/phase-specs/{file_id}", api(h(s.handleGetPhaseSpec)))

	mux.Handle("GET /api/spec-reference/documents", api(h(s.handleListSpecDocuments)))
	mux.Handle("GET /api/spec-reference/documents/{id}", api(h(s.handleGetSpecDocument)))
	mux.Handle("GET /api/spec-reference/search", api(h(s.handleSearchSpecs)))
	mux.Handle("GET /api/spec-reference/bookmarks", api(h(s.handleListSpecBookmarks)))
	mux.Handle("POST /api/spec-reference/bookmarks", api(h(s.handleAddSpecBookmark)))
	mux.Handle("DELETE /api/spec-reference/bookmarks/{item_id}", api(h(s.handleRemoveSpecBookmark)))
	mux.Handle("GET /api/spec-reference/notes", api(h(s.handleListSpecNotes)))
	mux.Handle("GET /api/spec-reference/notes/{item_id}", api(h(s.handleGetSpecNote)))
	mux.Handle("POST /api/spec-reference/notes", api(h(s.handleSaveSpecNote)))
	mux.Handle("DELETE /api/spec-reference/notes/{item_id}", api(h(s.handleDeleteSpecNote)))
	mux.Handle("GET /api/spec-reference/figures", api(h(s.handleListFigures)))

	mux.Handle("GET /{$}", page(h(s.pageIndex)))
	mux.Handle("GET /phase/{code}", page(h(s.pagePhase)))
	mux.Handle("GET /rule/{id}", page(h(s.pageRule)))
	mux.Handle("GET /bookmarks", page(h(s.pageBookmarks)))
	mux.Handle("GET /search", page(h(s.pageSearch)))
	mux.Handle("GET /admin", adminPage(h(s.pageAdmin)))
	mux.Handle("GET /phase-specs", page(h(s.pagePhaseSpecs)))
	mux.Handle("GET /spec-reference", page(h(s.pageSpecReference)))
	mux.Handle("GET /spec-reference/{code}", page(h(s.pageSpecReferenceDetail)))
	mux.HandleFunc("GET /pending-approval", s.pagePendingApproval)
	mux.HandleFunc("GET /unauthorized", s.pageUnauthorized)

	mux.HandleFunc("/", s.handleNotFound)
}

// handleHealth reports 503 while the database is unreachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "app": AppName})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "app": AppName})
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(s.logger),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
