// Package auth resolves the caller of a request from the shared login
// session tables and guards API and page handlers.
//
// Tokens are taken from, in order: an "Authorization: Bearer" header, the
// session cookie, and finally the demo cookie. The demo cookie is only
// consulted when neither of the first two carries a token.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/ruff-uno/simonini-isms/internal/store"
)

// SessionLookup resolves regular session tokens.
type SessionLookup interface {
	LookupSession(ctx context.Context, token string) (*store.User, error)
}

// DemoLookup resolves demo session tokens.
type DemoLookup interface {
	LookupDemoSession(ctx context.Context, token string) (*store.User, error)
}

// Options configures an Authenticator.
type Options struct {
	CookieName     string // session cookie, e.g. "session_token"
	CookieDomain   string // domain the login service sets the cookie on
	CookieSecure   bool
	DemoCookieName string // demo cookie, e.g. "demo_session"
	LoginURL       string // external login page; receives ?redirect=
	Logger         *zap.Logger
}

// Authenticator resolves users and guards handlers.
type Authenticator struct {
	sessions SessionLookup
	demo     DemoLookup
	opts     Options
	logger   *zap.Logger
}

// New creates an Authenticator. demo may be nil to disable demo sessions.
func New(sessions SessionLookup, demo DemoLookup, opts Options) *Authenticator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{
		sessions: sessions,
		demo:     demo,
		opts:     opts,
		logger:   logger.Named("auth"),
	}
}

type contextKey struct{}

// WithUser returns a context carrying u.
func WithUser(ctx context.Context, u *store.User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// UserFrom returns the user stored by a guard, if any.
func UserFrom(ctx context.Context) (*store.User, bool) {
	u, ok := ctx.Value(contextKey{}).(*store.User)
	return u, ok && u != nil
}

// CurrentUser resolves the caller of r. Returns nil when the request carries
// no valid token. Lookup failures are logged and treated as unauthenticated.
func (a *Authenticator) CurrentUser(r *http.Request) *store.User {
	ctx := r.Context()

	token := a.SessionToken(r)
	if token == "" {
		c, err := r.Cookie(a.opts.DemoCookieName)
		if err != nil || c.Value == "" || a.demo == nil {
			return nil
		}
		u, err := a.demo.LookupDemoSession(ctx, c.Value)
		if err != nil {
			a.logLookupError("demo session", err)
			return nil
		}
		return u
	}

	u, err := a.sessions.LookupSession(ctx, token)
	if err != nil {
		a.logLookupError("session", err)
		return nil
	}
	return u
}

// SessionToken returns the regular session token of r from the bearer header
// or the session cookie. Demo tokens are not returned.
func (a *Authenticator) SessionToken(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		return token
	}
	if c, err := r.Cookie(a.opts.CookieName); err == nil {
		return c.Value
	}
	return ""
}

// ClearSessionCookie expires the session cookie with the same name, domain
// and path the login service set it with.
func (a *Authenticator) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.opts.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   a.opts.CookieDomain,
		MaxAge:   -1,
		Secure:   a.opts.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *Authenticator) logLookupError(kind string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	a.logger.Error("failed to validate "+kind, zap.Error(err))
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

// RequireAuth guards an API handler: 401 without a valid session, 403 for
// accounts that are not yet verified.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := a.CurrentUser(r)
		if u == nil {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		if !u.Verified() {
			writeError(w, http.StatusForbidden, "Account pending approval")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

// RequireAdmin guards an API handler: 401 without a valid session, 403 for
// non-administrators.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := a.CurrentUser(r)
		if u == nil {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		if !u.CanAdmin {
			writeError(w, http.StatusForbidden, "Admin privileges required")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

// RequirePage guards an HTML page: anonymous callers are sent to the login
// page with a redirect back, unverified accounts to /pending-approval.
func (a *Authenticator) RequirePage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := a.CurrentUser(r)
		if u == nil {
			http.Redirect(w, r, a.LoginRedirect(r), http.StatusFound)
			return
		}
		if !u.Verified() {
			http.Redirect(w, r, "/pending-approval", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

// RequireAdminPage guards an admin HTML page; non-administrators are sent to
// /unauthorized.
func (a *Authenticator) RequireAdminPage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := a.CurrentUser(r)
		if u == nil {
			http.Redirect(w, r, a.LoginRedirect(r), http.StatusFound)
			return
		}
		if !u.CanAdmin {
			http.Redirect(w, r, "/unauthorized", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

// LoginRedirect returns the login URL with the caller's external URL as the
// redirect parameter.
func (a *Authenticator) LoginRedirect(r *http.Request) string {
	return a.opts.LoginURL + "?" + url.Values{"redirect": {ExternalURL(r)}}.Encode()
}

// ExternalURL reconstructs the URL the client requested, honouring the
// X-Forwarded-Proto and X-Forwarded-Host headers set by a reverse proxy.
// The scheme defaults to http.
func ExternalURL(r *http.Request) string {
	proto := r.Header.Get("X-Forwarded-Proto")
	if proto == "" {
		proto = "http"
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	u := proto + "://" + host + r.URL.Path
	if r.URL.RawQuery != "" {
		u += "?" + r.URL.RawQuery
	}
	return u
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
