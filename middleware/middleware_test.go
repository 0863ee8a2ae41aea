package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seo-optimizer/competitor/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type usageSpy struct {
	mu       sync.Mutex
	visitors []string
	requests int
	failed   int
}

func (u *usageSpy) TrackVisitor(ip string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.visitors = append(u.visitors, ip)
}

func (u *usageSpy) RecordRequest(_ time.Duration, failed bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.requests++
	if failed {
		u.failed++
	}
}

func serve(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "192.0.2.1:1234"
	r.ServeHTTP(w, req)
	return w
}

func TestErrorHandlerRecoversPanics(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler(logging.Discard()))
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := serve(r, http.MethodGet, "/boom")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"An unexpected error occurred"}`, w.Body.String())
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"), "burst exhausted")
	assert.True(t, rl.Allow("b"), "clients have separate buckets")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"), "one token refilled")
	assert.False(t, rl.Allow("a"))

	now = now.Add(time.Hour)
	rl.Allow("c")
	rl.mu.Lock()
	assert.Len(t, rl.clients, 1, "idle clients are evicted")
	rl.mu.Unlock()
}

func TestRateLimitMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(NewRateLimiter(0.001, 1).RateLimit())
	r.GET("/api/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/health").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodGet, "/api/health").Code)
}

func TestRequestLoggerRecordsUsage(t *testing.T) {
	spy := &usageSpy{}
	r := gin.New()
	r.Use(RequestLogger(logging.Discard(), spy))
	r.POST("/api/crawl", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/api/compare", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	r.GET("/api/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, http.MethodPost, "/api/crawl")
	serve(r, http.MethodPost, "/api/compare")
	serve(r, http.MethodGet, "/api/health")
	serve(r, http.MethodGet, "/elsewhere")

	require.Equal(t, 2, spy.requests)
	assert.Equal(t, 1, spy.failed)
	assert.Equal(t, []string{"192.0.2.1", "192.0.2.1"}, spy.visitors)
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS())
	r.POST("/api/crawl", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodOptions, "/api/crawl")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
