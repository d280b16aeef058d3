package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ruff-uno/simonini-isms/internal/auth"
	"github.com/ruff-uno/simonini-isms/internal/jobtread"
	"github.com/ruff-uno/simonini-isms/internal/store"
	"github.com/ruff-uno/simonini-isms/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	userToken    = "tok-user"
	adminToken   = "tok-admin"
	pendingToken = "tok-pending"
	testAppURL   = "https://isms.example.com"
	testLoginURL = "https://login.example.com/login"
)

type fakeFiles struct {
	mu    sync.Mutex
	files []jobtread.File
	err   error
	jobs  []string
}

func (f *fakeFiles) PhaseSpecFiles(_ context.Context, jobID string) ([]jobtread.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, jobID)
	return f.files, f.err
}

func (f *fakeFiles) JobFiles(_ context.Context, jobID string, _ int) ([]jobtread.File, error) {
	return f.PhaseSpecFiles(context.Background(), jobID)
}

type testEnv struct {
	srv    *Server
	store  *store.Store
	files  *fakeFiles
	logs   *observer.ObservedLogs
	userID int64
}

type envOption func(*Options)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(filepath.Join(t.TempDir(), "isms.db"), store.WithClock(testutil.NewClock().Now))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	users := []struct {
		token string
		nu    store.NewUser
	}{
		{userToken, store.NewUser{Username: "alice", Email: "alice@example.com", FirstName: "Alice", LastName: "Reed", IsVerified: true}},
		{adminToken, store.NewUser{Username: "carol", Email: "carol@example.com", FirstName: "Carol", LastName: "Diaz", Role: "admin", CanAdmin: true}},
		{pendingToken, store.NewUser{Username: "bob", Email: "bob@example.com"}},
	}
	var aliceID int64
	for _, u := range users {
		id, err := st.CreateUser(ctx, u.nu)
		require.NoError(t, err)
		_, err = st.CreateSession(ctx, id, u.token, 24*time.Hour)
		require.NoError(t, err)
		if u.token == userToken {
			aliceID = id
		}
	}

	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	files := &fakeFiles{}
	o := Options{
		AppURL:          testAppURL,
		CORSOrigins:     []string{"https://app.example.com"},
		PhaseSpecsJobID: "job-specs",
		Files:           files,
		IDs:             testutil.NewFixedIDGenerator("req-fixed"),
		Logger:          logger,
	}
	for _, opt := range opts {
		opt(&o)
	}

	authn := auth.New(st, st, auth.Options{
		CookieName:     "session_token",
		CookieDomain:   "example.com",
		CookieSecure:   true,
		DemoCookieName: "demo_session",
		LoginURL:       testLoginURL,
		Logger:         logger,
	})
	srv, err := New(st, authn, o)
	require.NoError(t, err)
	return &testEnv{srv: srv, store: st, files: files, logs: logs, userID: aliceID}
}

// do sends a request with an optional bearer token and JSON body.
func (e *testEnv) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	r := httptest.NewRequest(method, target, &buf)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, r)
	return w
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeJSON[map[string]any](t, w)["error"].(string)
}

func (e *testEnv) seedPhase(t *testing.T, code, name string, rules ...string) *store.Phase {
	t.Helper()
	p, err := e.store.CreatePhase(context.Background(), store.NewPhase{PhaseCode: code, PhaseName: name}, 1)
	require.NoError(t, err)
	for _, text := range rules {
		_, err := e.store.CreateRule(context.Background(), store.NewRule{PhaseID: p.PhaseID, RuleText: text}, 1)
		require.NoError(t, err)
	}
	return p
}

func (e *testEnv) firstRule(t *testing.T, phaseID int64) store.Rule {
	t.Helper()
	rules, err := e.store.ListRules(context.Background(), phaseID)
	require.NoError(t, err)
	require.NotEmpty(t, rules)
	return rules[0]
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","app":"simonini-isms"}`, w.Body.String())
}

func TestHealth_DatabaseUnavailable(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.Close())

	w := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","app":"simonini-isms"}`, w.Body.String())
	assert.Equal(t, 1, env.logs.FilterMessage("health check failed").Len())
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, "req-fixed", w.Header().Get("X-Request-ID"))

	incoming := "018f3a2e-7b1c-7def-8abc-0123456789ab"
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("X-Request-ID", incoming)
	w = httptest.NewRecorder()
	env.srv.ServeHTTP(w, r)
	assert.Equal(t, incoming, w.Header().Get("X-Request-ID"))
}

func TestUUIDv7Generator(t *testing.T) {
	a := UUIDv7Generator{}.Generate()
	b := UUIDv7Generator{}.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
	assert.Equal(t, byte('7'), a[14], "version nibble")
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)

	r := httptest.NewRequest(http.MethodOptions, "/api/phases", nil)
	r.Header.Set("Origin", "https://app.example.com")
	r.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	env.srv.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	r = httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	env.srv.ServeHTTP(w, r)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoverer(t *testing.T) {
	env := newTestEnv(t)
	h := env.srv.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", errorBody(t, w))
	assert.Equal(t, 1, env.logs.FilterMessage("handler panic").Len())
}

func TestAccessLog(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/api/phases", "", nil)

	entries := env.logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/api/phases", fields["path"])
	assert.EqualValues(t, http.StatusUnauthorized, fields["status"])
	assert.Equal(t, "req-fixed", fields["request_id"])
}

func TestServe_GracefulShutdown(t *testing.T) {
	env := newTestEnv(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	http.DefaultClient.CloseIdleConnections()
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/nope", userToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not found", errorBody(t, w))

	w = env.do(t, http.MethodGet, "/no/such/page", userToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Page not found")
}

func TestEscapeComponent(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Phase 30-100: Framing", "Phase%2030-100%3A%20Framing"},
		{"https://isms.example.com/rule/7", "https%3A//isms.example.com/rule/7"},
		{"a_b.c~d", "a_b.c~d"},
		{"façade & trim", "fa%C3%A7ade%20%26%20trim"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeComponent(tt.in), tt.in)
	}
}

func TestPreview(t *testing.T) {
	short := strings.Repeat("a", 100)
	assert.Equal(t, short, preview(short))

	long := strings.Repeat("é", 101)
	assert.Equal(t, strings.Repeat("é", 100)+"...", preview(long))
}

func TestDecode_Empty(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	var v map[string]any
	assert.True(t, errors.Is(decode(r, &v), errEmptyBody))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("null"))
	assert.True(t, errors.Is(decode(r, &v), errEmptyBody))
}
