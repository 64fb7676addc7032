package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newTestRouter(g *Guard, use gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(use)
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})
	return router
}

func TestRequireAuthOpenWhenAdminNotConfigured(t *testing.T) {
	g := NewGuard(NewSessionStore(), NewAPIKeyStore(), false, "")
	router := newTestRouter(g, g.RequireAuth())

	req, _ := http.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRequireAuthRejectsWithNoCredentials(t *testing.T) {
	g := NewGuard(NewSessionStore(), NewAPIKeyStore(), true, "")
	router := newTestRouter(g, g.RequireAuth())

	req, _ := http.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireAuthAcceptsSessionCookie(t *testing.T) {
	sessions := NewSessionStore()
	token, err := sessions.Create("alice", time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	g := NewGuard(sessions, NewAPIKeyStore(), true, "")
	router := newTestRouter(g, g.RequireAuth())

	req, _ := http.NewRequest("GET", "/test", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRequireAuthAcceptsAPIKeyViaBearer(t *testing.T) {
	apiKeys := NewAPIKeyStore()
	plaintext, err := apiKeys.Generate("ci", ScopeReadOnly)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	g := NewGuard(NewSessionStore(), apiKeys, true, "")
	router := newTestRouter(g, g.RequireAuth())

	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+plaintext)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRequireAuthAcceptsAPIKeyViaHeader(t *testing.T) {
	apiKeys := NewAPIKeyStore()
	plaintext, err := apiKeys.Generate("ci", ScopeFull)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	g := NewGuard(NewSessionStore(), apiKeys, true, "")
	router := newTestRouter(g, g.RequireAuth())

	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set("X-API-Key", plaintext)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRequireAdminAuthRejectsReadOnlyKey(t *testing.T) {
	apiKeys := NewAPIKeyStore()
	plaintext, err := apiKeys.Generate("ci", ScopeReadOnly)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	g := NewGuard(NewSessionStore(), apiKeys, true, "")
	router := newTestRouter(g, g.RequireAdminAuth())

	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set("X-API-Key", plaintext)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestRequireAdminAuthAllowsFullScopeKey(t *testing.T) {
	apiKeys := NewAPIKeyStore()
	plaintext, err := apiKeys.Generate("ci", ScopeFull)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	g := NewGuard(NewSessionStore(), apiKeys, true, "")
	router := newTestRouter(g, g.RequireAdminAuth())

	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set("X-API-Key", plaintext)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRequireAdminAuthRejectsMismatchedOrigin(t *testing.T) {
	sessions := NewSessionStore()
	token, err := sessions.Create("alice", time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	g := NewGuard(sessions, NewAPIKeyStore(), true, "https://mallard.example.com")
	router := newTestRouter(g, g.RequireAdminAuth())

	req, _ := http.NewRequest("GET", "/test", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	req.Header.Set("Origin", "https://mallard.example.com.evil.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for suffix-domain origin bypass attempt, got %d", w.Code)
	}
}

func TestRequireAdminAuthAllowsExactOrigin(t *testing.T) {
	sessions := NewSessionStore()
	token, err := sessions.Create("alice", time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	g := NewGuard(sessions, NewAPIKeyStore(), true, "https://mallard.example.com")
	router := newTestRouter(g, g.RequireAdminAuth())

	req, _ := http.NewRequest("GET", "/test", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	req.Header.Set("Origin", "https://mallard.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRequireAdminAuthAllowsMissingOriginAndReferer(t *testing.T) {
	sessions := NewSessionStore()
	token, err := sessions.Create("alice", time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	g := NewGuard(sessions, NewAPIKeyStore(), true, "https://mallard.example.com")
	router := newTestRouter(g, g.RequireAdminAuth())

	req, _ := http.NewRequest("GET", "/test", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestSetAndClearSessionCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	SetSessionCookie(c, "abc123", 3600, true)
	resp := w.Result()
	cookies := resp.Cookies()
	if len(cookies) != 1 || cookies[0].Value != "abc123" {
		t.Fatalf("expected session cookie to be set, got %+v", cookies)
	}

	w2 := httptest.NewRecorder()
	c2, _ := gin.CreateTestContext(w2)
	ClearSessionCookie(c2, true)
	resp2 := w2.Result()
	cookies2 := resp2.Cookies()
	if len(cookies2) != 1 || cookies2[0].MaxAge >= 0 {
		t.Fatalf("expected cleared cookie with negative max-age, got %+v", cookies2)
	}
}
