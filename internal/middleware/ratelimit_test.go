package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func newTestRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		cleanup:  time.Minute,
	}
}

func TestRateLimiter_AllowsUpToBurstThenBlocks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := newTestRateLimiter(0, 2)
	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/ping", func(c *gin.Context) { c.Status(200) })

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/ping", nil)
		req.RemoteAddr = "203.0.113.5:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, 200, w.Code, "request %d within burst should succeed", i+1)
	}

	req := httptest.NewRequest("GET", "/ping", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, 429, w.Code)
}

func TestRateLimiter_TracksClientsIndependently(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := newTestRateLimiter(0, 1)
	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/ping", func(c *gin.Context) { c.Status(200) })

	req1 := httptest.NewRequest("GET", "/ping", nil)
	req1.RemoteAddr = "203.0.113.5:1234"
	w1 := httptest.NewRecorder()
	router.ServeHTTP(w1, req1)
	assert.Equal(t, 200, w1.Code)

	req2 := httptest.NewRequest("GET", "/ping", nil)
	req2.RemoteAddr = "203.0.113.9:1234"
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req2)
	assert.Equal(t, 200, w2.Code, "a different client IP must not share the first client's bucket")
}

func TestRateLimiter_StrictMiddlewareBlocksAfterBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := newTestRateLimiter(1000, 1000)
	router := gin.New()
	router.Use(rl.StrictMiddleware(1))
	router.POST("/sensitive", func(c *gin.Context) { c.Status(200) })

	req := httptest.NewRequest("POST", "/sensitive", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, 200, w.Code)
}
