package cache

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestCacheMiddleware_MissThenHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := NewMemoryCache()
	calls := 0

	router := gin.New()
	router.Use(CacheMiddleware(c, time.Minute))
	router.GET("/items", func(ctx *gin.Context) {
		calls++
		ctx.JSON(200, gin.H{"n": calls})
	})

	req := httptest.NewRequest("GET", "/items", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Equal(t, 1, calls)

	// The async Set happens in a goroutine; give it a moment to land.
	time.Sleep(20 * time.Millisecond)

	req2 := httptest.NewRequest("GET", "/items", nil)
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req2)
	assert.Equal(t, 200, w2.Code)
	assert.Equal(t, "HIT", w2.Header().Get("X-Cache"))
	assert.Equal(t, 1, calls, "a cache hit must not invoke the handler again")
}

func TestCacheMiddleware_NonGETBypassesCache(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := NewMemoryCache()

	router := gin.New()
	router.Use(CacheMiddleware(c, time.Minute))
	router.POST("/items", func(ctx *gin.Context) { ctx.Status(201) })

	req := httptest.NewRequest("POST", "/items", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 201, w.Code)
	assert.Empty(t, w.Header().Get("X-Cache"))
}

func TestCacheMiddleware_DisabledCacheSkipsCaching(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := NewRemoteCache(Config{Enabled: false})

	router := gin.New()
	router.Use(CacheMiddleware(c, time.Minute))
	router.GET("/items", func(ctx *gin.Context) { ctx.Status(200) })

	req := httptest.NewRequest("GET", "/items", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	assert.Empty(t, w.Header().Get("X-Cache"))
}

func TestInvalidateCacheMiddleware_ClearsOnSuccessfulMutation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := NewMemoryCache()
	require := assert.New(t)
	require.NoError(c.Set(context.Background(), "analysis:ev1:fp1", "v", time.Minute))

	router := gin.New()
	router.POST("/evidence/:id/reprocess", InvalidateCacheMiddleware(c, "analysis:ev1:*"), func(ctx *gin.Context) {
		ctx.Status(200)
	})

	req := httptest.NewRequest("POST", "/evidence/ev1/reprocess", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, 200, w.Code)

	time.Sleep(20 * time.Millisecond)
	exists, _ := c.Exists(context.Background(), "analysis:ev1:fp1")
	assert.False(t, exists)
}

func TestCacheControl_SetsHeaderByMethod(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CacheControl(5 * time.Minute))
	router.GET("/a", func(ctx *gin.Context) { ctx.Status(200) })
	router.POST("/a", func(ctx *gin.Context) { ctx.Status(200) })

	req := httptest.NewRequest("GET", "/a", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "public, max-age=300", w.Header().Get("Cache-Control"))

	req2 := httptest.NewRequest("POST", "/a", nil)
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req2)
	assert.Equal(t, "no-store, no-cache, must-revalidate", w2.Header().Get("Cache-Control"))
}
