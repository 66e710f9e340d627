package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-campus/internal/audit"
	audithttp "github.com/odyssey-erp/odyssey-campus/internal/audit/http"
	"github.com/odyssey-erp/odyssey-campus/internal/auth"
	"github.com/odyssey-erp/odyssey-campus/internal/elections"
	"github.com/odyssey-erp/odyssey-campus/internal/elections/gql"
	"github.com/odyssey-erp/odyssey-campus/internal/observability"
	"github.com/odyssey-erp/odyssey-campus/internal/rbac"
	"github.com/odyssey-erp/odyssey-campus/internal/shared"
	_ "github.com/odyssey-erp/odyssey-campus/internal/testing/guard"
	"github.com/odyssey-erp/odyssey-campus/jobs"
)

type client struct {
	t      *testing.T
	router http.Handler
	cookie *http.Cookie
	csrf   string
}

func (c *client) do(method, path string, body any) (*httptest.ResponseRecorder, httpEnvelope) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("Content-Type", "application/json")
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	if c.csrf != "" {
		req.Header.Set(shared.CSRFHeader, c.csrf)
	}
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "campus_session" {
			c.cookie = ck
		}
	}
	var env httpEnvelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

type httpEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second, RateLimitPerMin: 1000}
	sessions := shared.NewSessionManager(rdb, "campus_session", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")

	hash, err := auth.HashPassword("faculty-pass")
	require.NoError(t, err)
	adminHash, err := auth.HashPassword("admin-pass")
	require.NoError(t, err)
	authSvc := auth.NewService(auth.NewMemoryRepository(
		auth.User{ID: "fac-1", Email: "prof@campus.test", DisplayName: "Prof", Role: "faculty", PasswordHash: hash, IsActive: true},
		auth.User{ID: "adm-1", Email: "admin@campus.test", DisplayName: "Admin", Role: "admin", PasswordHash: adminHash, IsActive: true},
	))

	metrics := observability.NewMetrics()
	trail := audit.NewMemoryLog()
	svc := elections.NewService(elections.NewMemoryStore(), elections.ServiceConfig{Metrics: metrics, Audit: trail})
	graphqlHandler, err := gql.NewHandler(svc)
	require.NoError(t, err)

	rbacMW := rbac.Middleware{}
	return NewRouter(RouterParams{
		Config:           cfg,
		SessionManager:   sessions,
		CSRFManager:      csrf,
		RBACMiddleware:   rbacMW,
		AuthHandler:      auth.NewHandler(nil, authSvc, sessions, csrf),
		ElectionsHandler: elections.NewHandler(nil, svc),
		AuditHandler:     audithttp.NewHandler(nil, audit.NewService(trail), rbacMW),
		GraphQLHandler:   graphqlHandler,
		JobHandler:       jobs.NewHandler(nil, nil),
		Metrics:          metrics,
	})
}

func TestRouterOpsEndpoints(t *testing.T) {
	c := &client{t: t, router: newTestServer(t)}

	rec, _ := c.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	rec, env := c.do(http.MethodGet, "/jobs/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	rec, _ = c.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `campus_http_requests_total{code="200",route="/healthz"} 1`)

	rec, _ = c.do(http.MethodGet, "/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterRequiresSessionAndCSRF(t *testing.T) {
	c := &client{t: t, router: newTestServer(t)}

	rec, _ := c.do(http.MethodGet, "/api/elections", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	login := map[string]string{"email": "prof@campus.test", "password": "faculty-pass"}
	rec, _ = c.do(http.MethodPost, "/auth/login", login)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env := c.do(http.MethodGet, "/auth/csrf", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, c.cookie)
	var token struct {
		CSRFToken string `json:"csrf_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &token))
	c.csrf = token.CSRFToken

	rec, env = c.do(http.MethodPost, "/auth/login", login)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &token))
	c.csrf = token.CSRFToken

	start := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	rec, env = c.do(http.MethodPost, "/api/elections", map[string]any{
		"title":     "Student Council",
		"start_at":  start,
		"end_at":    start.Add(48 * time.Hour),
		"positions": []string{"President"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, env.Message)

	rec, env = c.do(http.MethodGet, "/api/elections", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), "Student Council")

	rec, _ = c.do(http.MethodPost, "/graphql", map[string]any{"query": "{ elections { title status } }"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Student Council"`)

	stale := c.csrf
	c.csrf = "forged"
	rec, _ = c.do(http.MethodDelete, "/api/elections/anything", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	c.csrf = stale

	rec, _ = c.do(http.MethodPost, "/auth/logout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = c.do(http.MethodGet, "/api/elections", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func (c *client) login(email, password string) {
	c.t.Helper()
	rec, env := c.do(http.MethodGet, "/auth/csrf", nil)
	require.Equal(c.t, http.StatusOK, rec.Code)
	var token struct {
		CSRFToken string `json:"csrf_token"`
	}
	require.NoError(c.t, json.Unmarshal(env.Data, &token))
	c.csrf = token.CSRFToken

	rec, env = c.do(http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password})
	require.Equal(c.t, http.StatusOK, rec.Code, env.Message)
	require.NoError(c.t, json.Unmarshal(env.Data, &token))
	c.csrf = token.CSRFToken
}

func TestRouterAuditTrailIsAdminOnly(t *testing.T) {
	router := newTestServer(t)

	faculty := &client{t: t, router: router}
	faculty.login("prof@campus.test", "faculty-pass")
	start := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	rec, env := faculty.do(http.MethodPost, "/api/elections", map[string]any{
		"title":     "Faculty Senate",
		"start_at":  start,
		"end_at":    start.Add(24 * time.Hour),
		"positions": []string{"Chair"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, env.Message)

	rec, _ = faculty.do(http.MethodGet, "/api/audit", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := &client{t: t, router: router}
	admin.login("admin@campus.test", "admin-pass")
	rec, env = admin.do(http.MethodGet, "/api/audit?actor=fac-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page audit.Result
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "ELECTION_CREATE", page.Rows[0].Action)

	rec, _ = admin.do(http.MethodGet, "/api/audit/export.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fac-1,ELECTION_CREATE,election,")
}
