package auth

import (
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/gin-gonic/gin"

	"github.com/mallardmetrics/mallard/internal/apierr"
)

const sessionCookieName = "mm_session"

// Guard bundles the auth state require_auth and require_admin_auth
// need to evaluate a request.
type Guard struct {
	sessions        *SessionStore
	apiKeys         *APIKeyStore
	adminConfigured atomic.Bool
	dashboardOrigin string
}

func NewGuard(sessions *SessionStore, apiKeys *APIKeyStore, adminConfigured bool, dashboardOrigin string) *Guard {
	g := &Guard{sessions: sessions, apiKeys: apiKeys, dashboardOrigin: dashboardOrigin}
	g.adminConfigured.Store(adminConfigured)
	return g
}

// SetAdminConfigured flips the admin-configured flag once /api/auth/setup
// completes, so every guarded route starts requiring credentials
// without a server restart.
func (g *Guard) SetAdminConfigured(v bool) {
	g.adminConfigured.Store(v)
}

func bearerOrHeaderKey(c *gin.Context) (string, bool) {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer "), true
	}
	if k := c.GetHeader("X-API-Key"); k != "" {
		return k, true
	}
	return "", false
}

// RequireAuth is open when no admin password is configured; otherwise
// it accepts a valid session cookie or a valid API key of any scope.
func (g *Guard) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.adminConfigured.Load() {
			c.Next()
			return
		}

		if token, err := c.Cookie(sessionCookieName); err == nil && token != "" {
			if sess, ok := g.sessions.Validate(token); ok {
				c.Set("auth_username", sess.Username)
				c.Next()
				return
			}
		}

		if plaintext, ok := bearerOrHeaderKey(c); ok {
			if key, ok := g.apiKeys.Validate(plaintext); ok {
				c.Set("auth_api_key", key)
				c.Next()
				return
			}
		}

		apierr.Unauthorized("authentication required").Abort(c)
	}
}

// RequireAdminAuth layers two additional checks onto RequireAuth: a
// ReadOnly API key is rejected, and session-authenticated requests
// must pass an Origin check against the configured dashboard origin.
// A request with no Origin or Referer header is allowed through
// unchanged; it did not come from a browser that would set one.
func (g *Guard) RequireAdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.adminConfigured.Load() {
			c.Next()
			return
		}

		if token, err := c.Cookie(sessionCookieName); err == nil && token != "" {
			if sess, ok := g.sessions.Validate(token); ok {
				if !g.originAllowed(c) {
					apierr.Forbidden("origin not allowed").Abort(c)
					return
				}
				c.Set("auth_username", sess.Username)
				c.Next()
				return
			}
		}

		if plaintext, ok := bearerOrHeaderKey(c); ok {
			if key, ok := g.apiKeys.Validate(plaintext); ok {
				if key.Scope == ScopeReadOnly {
					apierr.Forbidden("read-only key cannot perform admin actions").Abort(c)
					return
				}
				c.Set("auth_api_key", key)
				c.Next()
				return
			}
		}

		apierr.Unauthorized("authentication required").Abort(c)
	}
}

// originAllowed checks the Origin header (falling back to Referer)
// against g.dashboardOrigin using exact scheme+host(+port) matching,
// not a starts_with comparison: a host like
// "mallard.example.com.evil.com" must never pass against an
// allow-listed "mallard.example.com".
func (g *Guard) originAllowed(c *gin.Context) bool {
	raw := c.GetHeader("Origin")
	if raw == "" {
		raw = c.GetHeader("Referer")
	}
	if raw == "" {
		return true
	}
	if g.dashboardOrigin == "" {
		return false
	}

	got, err := url.Parse(raw)
	if err != nil {
		return false
	}
	want, err := url.Parse(g.dashboardOrigin)
	if err != nil {
		return false
	}
	return got.Scheme == want.Scheme && got.Host == want.Host
}

// SetSessionCookie writes the session cookie for a freshly created
// session, with SameSite=Strict as part of this server's CSRF posture.
func SetSessionCookie(c *gin.Context, token string, maxAgeSecs int, secure bool) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(sessionCookieName, token, maxAgeSecs, "/", "", secure, true)
}

// ClearSessionCookie removes the session cookie on logout.
func ClearSessionCookie(c *gin.Context, secure bool) {
	c.SetCookie(sessionCookieName, "", -1, "/", "", secure, true)
}
