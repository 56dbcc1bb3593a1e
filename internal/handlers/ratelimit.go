package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/DTMBX/evident/internal/auth"
	"github.com/DTMBX/evident/internal/config"
	"github.com/DTMBX/evident/internal/db"
	"github.com/DTMBX/evident/internal/models"
	"github.com/DTMBX/evident/internal/ratebucket"
)

// RateLimitHandler implements GET /api/rate-limit/status.
type RateLimitHandler struct {
	buckets *ratebucket.Buckets
	usageDB *db.UsageDB
	cfg     *config.Config
}

// NewRateLimitHandler builds a RateLimitHandler.
func NewRateLimitHandler(b *ratebucket.Buckets, usageDB *db.UsageDB, cfg *config.Config) *RateLimitHandler {
	return &RateLimitHandler{buckets: b, usageDB: usageDB, cfg: cfg}
}

// RegisterRoutes mounts this handler's route on rg, expected to sit behind
// auth.Middleware.
func (h *RateLimitHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/status", h.Status)
}

// operationClasses are the rate-bucket keys a caller's status is reported
// for, mirroring the classes internal/gate's OperationDescriptors gate
// against (upload, process, export).
var operationClasses = []string{"upload", "process", "export"}

// Status reports remaining tokens per operation class and the caller's
// monthly usage counters (spec.md §6.1), without consuming any bucket
// tokens itself.
func (h *RateLimitHandler) Status(c *gin.Context) {
	principal := auth.PrincipalFromContext(c)
	limit := h.cfg.LimitFor(string(principal.Tier))

	classes := make(gin.H, len(operationClasses))
	for _, class := range operationClasses {
		remaining := h.buckets.Remaining(principal.UserID+":"+class, limit.RateBucketCapacity)
		classes[class] = gin.H{
			"limit":     limit.RateBucketCapacity,
			"remaining": remaining,
		}
		c.Header("X-RateLimit-Limit-"+class, strconv.FormatFloat(limit.RateBucketCapacity, 'f', -1, 64))
		c.Header("X-RateLimit-Remaining-"+class, strconv.FormatFloat(remaining, 'f', -1, 64))
	}

	usage, err := h.usageDB.Get(c.Request.Context(), principal.UserID)
	if err != nil {
		usage = &models.UsageCounter{UserID: principal.UserID}
	}

	c.JSON(http.StatusOK, gin.H{
		"tier":    principal.Tier,
		"buckets": classes,
		"usage": gin.H{
			"yearMonth":             usage.YearMonth,
			"pdfDocumentsProcessed": usage.PDFDocumentsProcessed,
			"videosProcessed":       usage.VideosProcessed,
			"videoHours":            usage.VideoHours,
			"transcriptionMinutes":  usage.TranscriptionMinutes,
			"apiCalls":              usage.APICalls,
			"casesCreated":          usage.CasesCreated,
		},
		"limits": limit,
	})
}
