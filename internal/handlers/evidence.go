package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/DTMBX/evident/internal/apperrors"
	"github.com/DTMBX/evident/internal/auth"
	"github.com/DTMBX/evident/internal/config"
	"github.com/DTMBX/evident/internal/gate"
	"github.com/DTMBX/evident/internal/models"
	"github.com/DTMBX/evident/internal/processor"
	"github.com/DTMBX/evident/internal/queue"
)

var opIngest = gate.OperationDescriptor{
	Name:           "evidence.ingest",
	TierFloor:      models.TierFree,
	OperationClass: "upload",
	AuditWorthy:    true,
}

var opProcess = gate.OperationDescriptor{
	Name:           "evidence.process",
	TierFloor:      models.TierFree,
	OperationClass: "process",
	AuditWorthy:    true,
}

// EvidenceHandler implements POST /api/evidence/upload and
// POST /api/evidence/{id}/process.
type EvidenceHandler struct {
	gate      *gate.Gate
	processor *processor.Processor
	queue     *queue.Queue
	cfg       *config.Config
}

// NewEvidenceHandler builds an EvidenceHandler.
func NewEvidenceHandler(g *gate.Gate, p *processor.Processor, q *queue.Queue, cfg *config.Config) *EvidenceHandler {
	return &EvidenceHandler{gate: g, processor: p, queue: q, cfg: cfg}
}

// RegisterRoutes mounts this handler's routes on rg, expected to sit behind
// auth.Middleware.
func (h *EvidenceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/upload", h.Upload)
	rg.POST("/:id/process", h.Process)
}

// counterFor maps a declared evidence type onto the monthly counter its
// ingestion charges, per spec.md §6.4's tier limits table.
func counterFor(t models.EvidenceType) models.CounterName {
	if t.IsAV() {
		return models.CounterVideosProcessed
	}
	return models.CounterPDFDocuments
}

// Upload ingests one multipart file into the Content Store.
func (h *EvidenceHandler) Upload(c *gin.Context) {
	principal := auth.PrincipalFromContext(c)

	declaredType := models.EvidenceType(c.PostForm("type"))
	if !declaredType.Valid() {
		writeError(c, apperrors.New(apperrors.UnsupportedType, "type must be one of video, audio, document, image, other"))
		return
	}
	caseNumber := c.PostForm("caseNumber")
	arrestDate := c.PostForm("arrestDate")
	var involvedParties []string
	if raw := c.PostForm("involvedParties"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				involvedParties = append(involvedParties, name)
			}
		}
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		writeError(c, apperrors.New(apperrors.MalformedRequest, "file form field is required"))
		return
	}

	op := opIngest
	op.Counter = counterFor(declaredType)

	token, err := h.gate.Gate(c.Request.Context(), principal, op, 1)
	if err != nil {
		writeError(c, err)
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		writeError(c, apperrors.Wrap(apperrors.Internal, "failed to open upload stream", err))
		return
	}
	defer f.Close()

	limit := h.cfg.LimitFor(string(principal.Tier))
	ev, err := h.processor.Ingest(c.Request.Context(), principal.UserID, f, declaredType, fileHeader.Filename, caseNumber, arrestDate, involvedParties, limit.MaxUploadBytesOverride)
	if err != nil {
		writeError(c, err)
		return
	}
	_ = h.gate.Charge(c.Request.Context(), token, 1)

	c.JSON(http.StatusCreated, gin.H{
		"evidenceId":    ev.ID,
		"contentDigest": ev.ContentDigest,
		"bytes":         ev.ByteSize,
		"status":        ev.Status,
	})
}

type processRequest struct {
	AnalyzerProfileVersion string `json:"analyzer_profile_version"`
}

// Process dispatches the Evidence Processor's pipeline for evidence id to
// the worker queue and returns a polling URL, or returns the result
// directly when one is already cached for this (evidence, context)
// fingerprint (spec.md §6.1: "202 with analysis id and polling URL, or 200
// with result if already cached").
func (h *EvidenceHandler) Process(c *gin.Context) {
	principal := auth.PrincipalFromContext(c)
	evidenceID := c.Param("id")

	var req processRequest
	_ = c.ShouldBindJSON(&req)
	pctx := processor.Context{AnalyzerProfileVersion: req.AnalyzerProfileVersion}

	token, err := h.gate.Gate(c.Request.Context(), principal, opProcess, 1)
	if err != nil {
		writeError(c, err)
		return
	}

	analysisID, cached, err := h.processor.BeginProcessing(c.Request.Context(), evidenceID, pctx)
	if err != nil {
		writeError(c, err)
		return
	}

	if cached {
		result, err := h.processor.GetResult(c.Request.Context(), analysisID)
		if err != nil {
			writeError(c, err)
			return
		}
		_ = h.gate.Charge(c.Request.Context(), token, 0)
		c.JSON(http.StatusOK, result)
		return
	}

	_, err = h.queue.Submit(context.Background(), func(ctx context.Context) error {
		_, procErr := h.processor.Process(ctx, evidenceID, pctx)
		if procErr == nil {
			_ = h.gate.Charge(ctx, token, 1)
		}
		return procErr
	})
	if err != nil {
		writeError(c, apperrors.Wrap(apperrors.DependencyUnavailable, "processing queue is at capacity", err))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"analysisId": analysisID,
		"pollUrl":    fmt.Sprintf("/api/analysis/%s", analysisID),
	})
}
