package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/DTMBX/evident/internal/cache"
)

// HealthHandler implements GET /health, reporting the reachability of
// every Service Substrate dependency the request path touches.
type HealthHandler struct {
	db    *sql.DB
	cache cache.Cache
}

// NewHealthHandler builds a HealthHandler.
func NewHealthHandler(db *sql.DB, c cache.Cache) *HealthHandler {
	return &HealthHandler{db: db, cache: c}
}

// RegisterRoutes mounts /health directly on the root router group (no
// auth, no rate limiting — spec.md §6.1).
func (h *HealthHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", h.Health)
}

// Health pings the database and cache and reports an overall status of
// healthy, degraded (cache unreachable, still servable from the database),
// or unhealthy (database unreachable).
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	components := gin.H{}
	status := http.StatusOK
	overall := "healthy"

	if err := h.db.PingContext(ctx); err != nil {
		components["database"] = gin.H{"status": "unreachable", "error": err.Error()}
		overall = "unhealthy"
		status = http.StatusServiceUnavailable
	} else {
		components["database"] = gin.H{"status": "reachable"}
	}

	if h.cache == nil || !h.cache.IsEnabled() {
		components["cache"] = gin.H{"status": "disabled"}
	} else if _, err := h.cache.Exists(ctx, "healthcheck"); err != nil {
		components["cache"] = gin.H{"status": "unreachable", "error": err.Error()}
		if overall == "healthy" {
			overall = "degraded"
		}
	} else {
		components["cache"] = gin.H{"status": "reachable"}
	}

	c.JSON(status, gin.H{"status": overall, "components": components})
}
