package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mallardmetrics/mallard/internal/auth"
	"github.com/mallardmetrics/mallard/internal/config"
	"github.com/mallardmetrics/mallard/internal/ingestbuf"
	"github.com/mallardmetrics/mallard/internal/lockout"
	"github.com/mallardmetrics/mallard/internal/models"
	"github.com/mallardmetrics/mallard/internal/query"
	"github.com/mallardmetrics/mallard/internal/ratelimit"
)

// fakeStore is a minimal in-memory stand-in for *store.Store: it backs
// both the query layer's EventSource and the ingest buffer's Store.
type fakeStore struct {
	mu     sync.Mutex
	events []models.Event
}

func (f *fakeStore) InsertHot(ctx context.Context, events []models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, events...)
	return nil
}

func (f *fakeStore) FlushEvents(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.events)
	return n, nil
}

func (f *fakeStore) Scan(ctx context.Context, siteID string, from, to time.Time) ([]models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Event
	for _, e := range f.events {
		if e.SiteID == siteID && !e.Timestamp.Before(from) && e.Timestamp.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeOrchestrator struct {
	mu       sync.Mutex
	ingested uint64
}

func (o *fakeOrchestrator) IncrementIngested() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ingested++
}

func (o *fakeOrchestrator) EventsIngestedTotal() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ingested
}

func newTestServer(t *testing.T, adminPassword string) (*Server, *fakeStore) {
	t.Helper()
	fs := &fakeStore{}
	buf := ingestbuf.New(1, fs)
	querier := query.New(fs, nil, 4)

	cfg := config.Default()
	cfg.Secret = "test-secret"
	cfg.AdminPassword = adminPassword
	cfg.SessionTTLSecs = 3600
	cfg.LoginMaxAttempts = 3
	cfg.LoginLockoutSecs = 60

	srv, err := New(Deps{
		Config:      cfg,
		Store:       fs,
		Buffer:      buf,
		Querier:     querier,
		SiteLimiter: ratelimit.New(0),
		IPLimiter:   ratelimit.New(0),
		Lockout:     lockout.New(cfg.LoginMaxAttempts, cfg.LoginLockoutSecs),
		Sessions:    auth.NewSessionStore(),
		APIKeys:     auth.NewAPIKeyStore(),
		Orchestrator: &fakeOrchestrator{},
	})
	require.NoError(t, err)
	return srv, fs
}

func TestHandleEventAcceptsValidPayload(t *testing.T) {
	srv, fs := newTestServer(t, "")
	router := srv.Router()

	body := `{"d":"example.com","n":"pageview","u":"https://example.com/","w":1920}`
	req := httptest.NewRequest(http.MethodPost, "/api/event", jsonBody(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	deadline := time.Now().Add(time.Second)
	for len(fs.events) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Len(t, fs.events, 1)
	assert.Equal(t, "desktop", fs.events[0].DeviceType)
	assert.Equal(t, "/", fs.events[0].Pathname)
	assert.Len(t, fs.events[0].VisitorID, 64)
}

func TestHandleEventRejectsInvalidSiteID(t *testing.T) {
	srv, _ := newTestServer(t, "")
	router := srv.Router()

	body := `{"d":"../evil","n":"pageview","u":"https://example.com/"}`
	req := httptest.NewRequest(http.MethodPost, "/api/event", jsonBody(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthSetupThenSecondCallConflicts(t *testing.T) {
	srv, _ := newTestServer(t, "")
	router := srv.Router()

	req := httptest.NewRequest(http.MethodPost, "/api/auth/setup", jsonBody(`{"password":"short"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/auth/setup", jsonBody(`{"password":"secure-password-123"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assertSessionCookie(t, w)

	req = httptest.NewRequest(http.MethodPost, "/api/auth/setup", jsonBody(`{"password":"another-password-123"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLoginLockoutAfterMaxAttempts(t *testing.T) {
	srv, _ := newTestServer(t, "correct-password-123")
	router := srv.Router()

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", jsonBody(`{"password":"wrong"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", "10.0.0.5")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", jsonBody(`{"password":"correct-password-123"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "10.0.0.5")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestStatsMainRequiresAuthWhenAdminConfigured(t *testing.T) {
	srv, _ := newTestServer(t, "correct-password-123")
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/stats/main?site_id=example.com&period=30d", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStatsMainComputesCoreMetrics(t *testing.T) {
	srv, fs := newTestServer(t, "")
	router := srv.Router()

	now := time.Now().UTC()
	fs.events = []models.Event{
		{SiteID: "ex.com", VisitorID: "v1", EventName: "pageview", Pathname: "/", Timestamp: now},
		{SiteID: "ex.com", VisitorID: "v1", EventName: "pageview", Pathname: "/b", Timestamp: now},
		{SiteID: "ex.com", VisitorID: "v2", EventName: "pageview", Pathname: "/", Timestamp: now},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/stats/main?site_id=ex.com&period=30d", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var result query.CoreMetrics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, uint64(2), result.UniqueVisitors)
	assert.Equal(t, uint64(3), result.TotalPageviews)
}

func TestCreateAndRevokeAPIKey(t *testing.T) {
	srv, _ := newTestServer(t, "")
	router := srv.Router()

	req := httptest.NewRequest(http.MethodPost, "/api/keys", jsonBody(`{"name":"ci","scope":"full"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var created struct {
		Name string `json:"name"`
		Key  string `json:"key"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.Key)

	keys := srv.apiKeys.List()
	require.Len(t, keys, 1)

	req = httptest.NewRequest(http.MethodDelete, "/api/keys/"+keys[0].KeyHash, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func assertSessionCookie(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == "mm_session" {
			return
		}
	}
	t.Fatal("expected mm_session cookie to be set")
}

func jsonBody(s string) *strings.Reader {
	return strings.NewReader(s)
}
