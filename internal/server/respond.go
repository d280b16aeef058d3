package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ruff-uno/simonini-isms/internal/auth"
	"github.com/ruff-uno/simonini-isms/internal/store"
)

const (
	internalErrorMessage = "Internal server error"
	noDataMessage        = "No data provided"
	maxBodyBytes         = 1 << 20
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeMessage writes a {"message": msg} body with status 200.
func writeMessage(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// serverError logs err and writes a generic 500.
func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.logRequestError(r, err)
	writeError(w, http.StatusInternalServerError, internalErrorMessage)
}

func (s *Server) logRequestError(r *http.Request, err error) {
	s.logger.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", r.Header.Get(requestIDHeader)),
		zap.Error(err))
}

// storeError maps store sentinels onto responses. notFound and conflict are
// the messages used for those cases.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error, notFound, conflict string) {
	switch {
	case errors.Is(err, store.ErrNotFound) && notFound != "":
		writeError(w, http.StatusNotFound, notFound)
	case errors.Is(err, store.ErrConflict) && conflict != "":
		writeError(w, http.StatusConflict, conflict)
	default:
		s.serverError(w, r, err)
	}
}

var errEmptyBody = errors.New("empty body")

// decode reads a JSON object body into v. An empty or null body reports
// errEmptyBody.
func decode(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 || string(body) == "null" {
		return errEmptyBody
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// decodeBody decodes the request body and writes a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decode(r, v); err != nil {
		if errors.Is(err, errEmptyBody) {
			writeError(w, http.StatusBadRequest, noDataMessage)
		} else {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
		}
		return false
	}
	return true
}

// pathID parses the named path segment as a positive integer. Non-numeric
// ids answer 404 like an unmatched route.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, "Not found")
		return 0, false
	}
	return id, true
}

// queryID parses an optional integer query parameter. Returns 0 when absent.
func queryID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, name+" must be an integer")
		return 0, false
	}
	return id, true
}

// currentUser returns the user attached by the auth guards.
func currentUser(r *http.Request) *store.User {
	u, _ := auth.UserFrom(r.Context())
	return u
}

func userID(r *http.Request) int64 {
	if u := currentUser(r); u != nil {
		return u.UserID
	}
	return 0
}

func parsePageID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
