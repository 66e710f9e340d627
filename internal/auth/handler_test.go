package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-campus/internal/auth"
	"github.com/odyssey-erp/odyssey-campus/internal/shared"
	_ "github.com/odyssey-erp/odyssey-campus/testing"
)

type harness struct {
	router   http.Handler
	sessions *shared.SessionManager
	mr       *miniredis.Miniredis
}

func newHarness(t *testing.T, users ...auth.User) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, "test_session", time.Hour, false)
	csrf := shared.NewCSRFManager("csrfsecret")
	handler := auth.NewHandler(nil, auth.NewService(auth.NewMemoryRepository(users...)), sessions, csrf)

	r := chi.NewRouter()
	r.Route("/auth", handler.MountRoutes)
	wrapped := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		sess, err := sessions.Load(req.Context(), req)
		require.NoError(t, err)
		ctx := shared.ContextWithSession(req.Context(), sess)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req.WithContext(ctx))
		require.NoError(t, sessions.Commit(ctx, w, sess))
		for k, v := range rec.Header() {
			w.Header()[k] = v
		}
		w.WriteHeader(rec.Code)
		_, _ = w.Write(rec.Body.Bytes())
	})
	return &harness{router: wrapped, sessions: sessions, mr: mr}
}

func (h *harness) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %s not set", name)
	return nil
}

func testUser(t *testing.T) auth.User {
	t.Helper()
	hash, err := auth.HashPassword("correct-horse")
	require.NoError(t, err)
	return auth.User{ID: "stu-1", Email: "alice@campus.test", DisplayName: "Alice", Role: "student", PasswordHash: hash, IsActive: true}
}

func TestLoginInvalidCredentials(t *testing.T) {
	h := newHarness(t, testUser(t))

	rec := h.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "alice@campus.test", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid credentials")

	rec = h.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "nobody@campus.test", "password": "whatever123"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginValidation(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "not-an-email"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var env struct {
		Errors []shared.FieldError `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.ElementsMatch(t, []shared.FieldError{
		{Field: "email", Message: "is invalid"},
		{Field: "password", Message: "is required"},
	}, env.Errors)
}

func TestLoginSessionRoundTrip(t *testing.T) {
	h := newHarness(t, testUser(t))
	ctx := context.Background()

	// An anonymous session exists before login so the id rotation is visible.
	pre := h.do(t, http.MethodGet, "/auth/csrf", nil)
	require.Equal(t, http.StatusOK, pre.Code)
	anon := sessionCookie(t, pre, h.sessions.CookieName())

	rec := h.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "ALICE@campus.test", "password": "correct-horse"}, anon)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookie := sessionCookie(t, rec, h.sessions.CookieName())
	assert.NotEqual(t, anon.Value, cookie.Value)
	assert.False(t, h.mr.Exists("campus:session:"+anon.Value))

	var env struct {
		Data struct {
			User      auth.User `json:"user"`
			CSRFToken string    `json:"csrf_token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "stu-1", env.Data.User.ID)
	assert.NotEmpty(t, env.Data.CSRFToken)
	assert.NotContains(t, rec.Body.String(), "password")

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(cookie)
	sess, err := h.sessions.Load(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "stu-1", sess.User())
	assert.Equal(t, "student", sess.Role())
	assert.Equal(t, "Alice", sess.Get(shared.SessionDisplayNameKey))

	me := h.do(t, http.MethodGet, "/auth/me", nil, cookie)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), "alice@campus.test")

	out := h.do(t, http.MethodPost, "/auth/logout", nil, cookie)
	require.Equal(t, http.StatusOK, out.Code)
	assert.False(t, h.mr.Exists("campus:session:"+cookie.Value))

	me = h.do(t, http.MethodGet, "/auth/me", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, me.Code)
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	u := testUser(t)
	u.IsActive = false
	h := newHarness(t, u)

	rec := h.do(t, http.MethodPost, "/auth/login", map[string]string{"email": u.Email, "password": "correct-horse"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
