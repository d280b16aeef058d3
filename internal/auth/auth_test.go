package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ruff-uno/simonini-isms/internal/store"
)

type fakeSessions struct {
	users map[string]*store.User
	err   error
	calls int
}

func (f *fakeSessions) LookupSession(_ context.Context, token string) (*store.User, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if u, ok := f.users[token]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeSessions) LookupDemoSession(ctx context.Context, token string) (*store.User, error) {
	return f.LookupSession(ctx, token)
}

var (
	verifiedUser = &store.User{UserID: 1, Username: "alice", IsVerified: true, CanRead: true}
	pendingUser  = &store.User{UserID: 2, Username: "bob"}
	adminUser    = &store.User{UserID: 3, Username: "carol", CanAdmin: true}
	demoUser     = &store.User{UserID: store.DemoUserID, Username: "demo_user", IsVerified: true, IsDemo: true}
	testLoginURL = "https://login.example.com/login"
	okHandler    = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
)

func newTestAuthenticator(t *testing.T) (*Authenticator, *fakeSessions, *fakeSessions) {
	t.Helper()
	sessions := &fakeSessions{users: map[string]*store.User{
		"tok-alice": verifiedUser,
		"tok-bob":   pendingUser,
		"tok-carol": adminUser,
	}}
	demo := &fakeSessions{users: map[string]*store.User{"demo-1": demoUser}}
	a := New(sessions, demo, Options{
		CookieName:     "session_token",
		DemoCookieName: "demo_session",
		LoginURL:       testLoginURL,
	})
	return a, sessions, demo
}

func TestCurrentUser_TokenSources(t *testing.T) {
	a, _, _ := newTestAuthenticator(t)

	tests := []struct {
		name    string
		prepare func(r *http.Request)
		want    *store.User
	}{
		{
			name:    "no credentials",
			prepare: func(r *http.Request) {},
			want:    nil,
		},
		{
			name:    "bearer header",
			prepare: func(r *http.Request) { r.Header.Set("Authorization", "Bearer tok-alice") },
			want:    verifiedUser,
		},
		{
			name: "session cookie",
			prepare: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "session_token", Value: "tok-carol"})
			},
			want: adminUser,
		},
		{
			name: "bearer wins over cookie",
			prepare: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer tok-alice")
				r.AddCookie(&http.Cookie{Name: "session_token", Value: "tok-carol"})
			},
			want: verifiedUser,
		},
		{
			name: "demo cookie alone",
			prepare: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "demo_session", Value: "demo-1"})
			},
			want: demoUser,
		},
		{
			name: "invalid session token does not fall back to demo",
			prepare: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "session_token", Value: "expired"})
				r.AddCookie(&http.Cookie{Name: "demo_session", Value: "demo-1"})
			},
			want: nil,
		},
		{
			name:    "non-bearer authorization ignored",
			prepare: func(r *http.Request) { r.Header.Set("Authorization", "Basic dXNlcjpwYXNz") },
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/phases", nil)
			tt.prepare(r)
			assert.Equal(t, tt.want, a.CurrentUser(r))
		})
	}
}

func TestCurrentUser_NoDemoStore(t *testing.T) {
	a := New(&fakeSessions{}, nil, Options{CookieName: "session_token", DemoCookieName: "demo_session"})
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "demo_session", Value: "demo-1"})
	assert.Nil(t, a.CurrentUser(r))
}

func TestCurrentUser_LookupErrorLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	sessions := &fakeSessions{err: errors.New("database is locked")}
	a := New(sessions, nil, Options{CookieName: "session_token", Logger: zap.New(core)})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer tok-alice")

	assert.Nil(t, a.CurrentUser(r))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "failed to validate session", logs.All()[0].Message)
}

func TestRequireAuth(t *testing.T) {
	a, _, _ := newTestAuthenticator(t)

	tests := []struct {
		name       string
		token      string
		wantStatus int
		wantBody   string
	}{
		{"anonymous", "", http.StatusUnauthorized, `{"error":"Authentication required"}`},
		{"pending approval", "tok-bob", http.StatusForbidden, `{"error":"Account pending approval"}`},
		{"verified", "tok-alice", http.StatusNoContent, ""},
		{"admin counts as verified", "tok-carol", http.StatusNoContent, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/phases", nil)
			if tt.token != "" {
				r.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			a.RequireAuth(okHandler).ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, w.Body.String())
				assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			}
		})
	}
}

func TestRequireAuth_StoresUserInContext(t *testing.T) {
	a, _, _ := newTestAuthenticator(t)

	var got *store.User
	h := a.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = UserFrom(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer tok-alice")
	h.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, verifiedUser, got)
}

func TestRequireAdmin(t *testing.T) {
	a, _, _ := newTestAuthenticator(t)

	tests := []struct {
		name       string
		token      string
		wantStatus int
		wantBody   string
	}{
		{"anonymous", "", http.StatusUnauthorized, `{"error":"Authentication required"}`},
		{"verified non-admin", "tok-alice", http.StatusForbidden, `{"error":"Admin privileges required"}`},
		{"admin", "tok-carol", http.StatusNoContent, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/phases", nil)
			if tt.token != "" {
				r.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			a.RequireAdmin(okHandler).ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, w.Body.String())
			}
		})
	}
}

func TestRequirePage(t *testing.T) {
	a, _, _ := newTestAuthenticator(t)

	t.Run("anonymous redirects to login", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "http://isms.local/rules?phase=3", nil)
		r.Header.Set("X-Forwarded-Proto", "https")
		r.Header.Set("X-Forwarded-Host", "isms.example.com")
		w := httptest.NewRecorder()
		a.RequirePage(okHandler).ServeHTTP(w, r)

		require.Equal(t, http.StatusFound, w.Code)
		loc, err := url.Parse(w.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "login.example.com", loc.Host)
		assert.Equal(t, "/login", loc.Path)
		assert.Equal(t, "https://isms.example.com/rules?phase=3", loc.Query().Get("redirect"))
	})

	t.Run("pending approval", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: "session_token", Value: "tok-bob"})
		w := httptest.NewRecorder()
		a.RequirePage(okHandler).ServeHTTP(w, r)

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/pending-approval", w.Header().Get("Location"))
	})

	t.Run("verified passes", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: "session_token", Value: "tok-alice"})
		w := httptest.NewRecorder()
		a.RequirePage(okHandler).ServeHTTP(w, r)

		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestRequireAdminPage(t *testing.T) {
	a, _, _ := newTestAuthenticator(t)

	r := httptest.NewRequest(http.MethodGet, "/admin", nil)
	r.AddCookie(&http.Cookie{Name: "session_token", Value: "tok-alice"})
	w := httptest.NewRecorder()
	a.RequireAdminPage(okHandler).ServeHTTP(w, r)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/unauthorized", w.Header().Get("Location"))

	r = httptest.NewRequest(http.MethodGet, "/admin", nil)
	r.AddCookie(&http.Cookie{Name: "session_token", Value: "tok-carol"})
	w = httptest.NewRecorder()
	a.RequireAdminPage(okHandler).ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)

	r = httptest.NewRequest(http.MethodGet, "/admin", nil)
	w = httptest.NewRecorder()
	a.RequireAdminPage(okHandler).ServeHTTP(w, r)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), testLoginURL+"?redirect=")
}

func TestExternalURL(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		headers map[string]string
		want    string
	}{
		{"defaults", "http://isms.local:5000/phases", nil, "http://isms.local:5000/phases"},
		{"query kept", "http://isms.local/search?q=nail+spacing", nil, "http://isms.local/search?q=nail+spacing"},
		{
			name:    "forwarded",
			target:  "http://127.0.0.1:5000/specs",
			headers: map[string]string{"X-Forwarded-Proto": "https", "X-Forwarded-Host": "isms.ruff.uno"},
			want:    "https://isms.ruff.uno/specs",
		},
		{
			name:    "forwarded proto only",
			target:  "http://isms.local/",
			headers: map[string]string{"X-Forwarded-Proto": "https"},
			want:    "https://isms.local/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ExternalURL(r))
		})
	}
}

func TestUserFrom_Empty(t *testing.T) {
	u, ok := UserFrom(context.Background())
	assert.False(t, ok)
	assert.Nil(t, u)
}

func TestSessionToken(t *testing.T) {
	a, _, _ := newTestAuthenticator(t)

	r := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	r.AddCookie(&http.Cookie{Name: "session_token", Value: "tok-carol"})
	assert.Equal(t, "tok-carol", a.SessionToken(r))

	r.Header.Set("Authorization", "Bearer tok-alice")
	assert.Equal(t, "tok-alice", a.SessionToken(r))

	demo := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	demo.AddCookie(&http.Cookie{Name: "demo_session", Value: "demo-1"})
	assert.Empty(t, a.SessionToken(demo))
}

func TestClearSessionCookie(t *testing.T) {
	a := New(&fakeSessions{}, nil, Options{
		CookieName:   "session_token",
		CookieDomain: ".example.com",
		CookieSecure: true,
	})

	w := httptest.NewRecorder()
	a.ClearSessionCookie(w)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, "session_token", c.Name)
	assert.Empty(t, c.Value)
	assert.Equal(t, "example.com", c.Domain)
	assert.Equal(t, "/", c.Path)
	assert.True(t, c.Secure)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Negative(t, c.MaxAge)
}
