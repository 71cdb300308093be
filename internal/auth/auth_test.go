package auth

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/eco-portal/internal/config"
	"github.com/yourusername/eco-portal/internal/logging"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := &config.Config{
		AppUsername:     "admin",
		AppPasswordHash: string(hash),
		SessionSecret:   "test-secret",
	}
	mgr := NewManager(cfg, logging.Discard())

	router := gin.New()
	router.Use(sessions.Sessions(SessionCookieName, cookie.NewStore([]byte(cfg.SessionSecret))))
	router.POST("/api/auth/login", mgr.Login)
	router.POST("/api/auth/logout", mgr.Logout)

	admin := router.Group("/api/admin", mgr.RequireLogin(), mgr.VerifyCSRF())
	admin.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextUserKey)) })
	admin.POST("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return router, mgr
}

func login(t *testing.T, router *gin.Engine, password string) *httptest.ResponseRecorder {
	t.Helper()
	body := bytes.NewBufferString(`{"username":"admin","password":"` + password + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func withCookies(req *http.Request, rec *httptest.ResponseRecorder) *http.Request {
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestLoginAndAccessAdminRoutes(t *testing.T) {
	router, _ := newTestRouter(t)

	loginRec := login(t, router, "s3cret")
	require.Equal(t, http.StatusNoContent, loginRec.Code)
	token := loginRec.Header().Get(CSRFHeader)
	require.NotEmpty(t, token)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, withCookies(httptest.NewRequest(http.MethodGet, "/api/admin/ping", nil), loginRec))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", rec.Body.String())

	// 変更系は CSRF トークンが必要
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, withCookies(httptest.NewRequest(http.MethodPost, "/api/admin/ping", nil), loginRec))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req := withCookies(httptest.NewRequest(http.MethodPost, "/api/admin/ping", nil), loginRec)
	req.Header.Set(CSRFHeader, token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAdminRoutesRequireSession(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/ping", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
}

func TestLoginRejectsWrongPasswordAndLocks(t *testing.T) {
	router, _ := newTestRouter(t)

	for i := 0; i < 5; i++ {
		rec := login(t, router, "wrong")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := login(t, router, "s3cret")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestIdleSessionExpires(t *testing.T) {
	router, mgr := newTestRouter(t)

	loginRec := login(t, router, "s3cret")
	require.Equal(t, http.StatusNoContent, loginRec.Code)

	mgr.now = func() time.Time { return time.Now().Add(idleTimeout + time.Minute) }

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, withCookies(httptest.NewRequest(http.MethodGet, "/api/admin/ping", nil), loginRec))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "SESSION_IDLE_TIMEOUT")
}

func TestAttemptTrackerWindowResets(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tracker := newAttemptTracker(time.Minute, time.Minute, 3)
	tracker.now = func() time.Time { return now }

	assert.Equal(t, 2, tracker.fail("1.2.3.4"))
	assert.Equal(t, 1, tracker.fail("1.2.3.4"))

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, tracker.fail("1.2.3.4"), "window elapsed")
	assert.Zero(t, tracker.lockedFor("1.2.3.4"))

	tracker.fail("1.2.3.4")
	assert.Equal(t, 0, tracker.fail("1.2.3.4"))
	assert.Equal(t, time.Minute, tracker.lockedFor("1.2.3.4"))

	tracker.reset("1.2.3.4")
	assert.Zero(t, tracker.lockedFor("1.2.3.4"))
}
