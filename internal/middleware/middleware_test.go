package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/coachdesk/internal/logger"
	"github.com/soaringjerry/coachdesk/internal/services"
)

func init() { gin.SetMode(gin.TestMode) }

func newEngine(t *testing.T, a *Authenticator) *gin.Engine {
	t.Helper()
	r := gin.New()
	r.Use(NoStore(), SecureHeaders(), RequestLogger(logger.Nop()), Metrics(nil))
	r.GET("/open", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	g := r.Group("/api", a.RequireAuth())
	g.GET("/whoami", func(c *gin.Context) {
		actor, _ := Actor(c)
		c.JSON(http.StatusOK, gin.H{"actor": actor})
	})
	return r
}

func TestRequireAuth(t *testing.T) {
	a, err := NewAuthenticator("test-secret", "coachdesk", nil)
	require.NoError(t, err)
	r := newEngine(t, a)

	tok, err := a.SignToken("coach@example.com", "Coach", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"actor":"coach@example.com"}`, w.Body.String())

	for name, header := range map[string]string{
		"missing":   "",
		"malformed": "Bearer not-a-token",
		"scheme":    "Basic " + tok,
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, name)
		assert.JSONEq(t, `{"error":{"message":"missing or invalid token","code":"unauthorized"}}`, w.Body.String(), name)
	}
}

func TestRequireAuthRejectsExpiredAndForeignTokens(t *testing.T) {
	a, _ := NewAuthenticator("test-secret", "coachdesk", nil)
	other, _ := NewAuthenticator("other-secret", "coachdesk", nil)

	foreign, err := other.SignToken("coach", "", time.Hour)
	require.NoError(t, err)
	_, err = a.Parse(foreign)
	assert.Error(t, err)

	a.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, err := a.SignToken("coach", "", time.Hour)
	require.NoError(t, err)
	a.now = time.Now
	_, err = a.Parse(stale)
	assert.Error(t, err)

	_, err = a.SignToken(" ", "", time.Hour)
	assert.Error(t, err)
	_, err = NewAuthenticator("", "", nil)
	assert.Error(t, err)
}

func TestRequireAuthSetsServiceActor(t *testing.T) {
	a, _ := NewAuthenticator("test-secret", "", nil)
	tok, _ := a.SignToken("owner", "", time.Hour)

	var got string
	r := gin.New()
	r.GET("/x", a.RequireAuth(), func(c *gin.Context) {
		got = services.ActorFrom(c.Request.Context())
		c.Status(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "owner", got)
}

func TestHeaders(t *testing.T) {
	a, _ := NewAuthenticator("s", "", nil)
	r := newEngine(t, a)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open", nil))
	assert.Equal(t, "no-store, no-cache, must-revalidate, max-age=0", w.Header().Get("Cache-Control"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://admin.example.com"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://admin.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
