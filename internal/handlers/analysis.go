package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DTMBX/evident/internal/apperrors"
	"github.com/DTMBX/evident/internal/auth"
	"github.com/DTMBX/evident/internal/export"
	"github.com/DTMBX/evident/internal/gate"
	"github.com/DTMBX/evident/internal/models"
	"github.com/DTMBX/evident/internal/processor"
	"github.com/DTMBX/evident/internal/report"
)

var opExport = gate.OperationDescriptor{
	Name:           "analysis.export",
	TierFloor:      models.TierProfessional,
	OperationClass: "export",
	AuditWorthy:    true,
}

// AnalysisHandler implements GET /api/analysis/{id}, its report rendering
// and audit-bundle export sub-routes.
type AnalysisHandler struct {
	processor *processor.Processor
	bundler   *export.Bundler
	gate      *gate.Gate
}

// NewAnalysisHandler builds an AnalysisHandler.
func NewAnalysisHandler(p *processor.Processor, b *export.Bundler, g *gate.Gate) *AnalysisHandler {
	return &AnalysisHandler{processor: p, bundler: b, gate: g}
}

// RegisterRoutes mounts this handler's routes on rg.
func (h *AnalysisHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id", h.Get)
	rg.GET("/:id/report", h.Report)
	rg.GET("/:id/export", h.Export)
}

// Get returns the current state of an AnalysisResult: 200 once it has
// reached a terminal state, 202 while still pending/running (spec.md
// §6.1).
func (h *AnalysisHandler) Get(c *gin.Context) {
	result, err := h.processor.GetResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	if result.State == models.AnalysisCompleted || result.State == models.AnalysisFailed {
		c.JSON(http.StatusOK, result)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

// Report renders a completed analysis in the requested format, 400 on an
// unrecognized one (spec.md §6.1).
func (h *AnalysisHandler) Report(c *gin.Context) {
	format := report.Format(c.DefaultQuery("format", string(report.FormatCanonicalJSON)))
	switch format {
	case report.FormatCanonicalJSON, report.FormatMarkdown, report.FormatHTML, report.FormatPDF:
	default:
		writeError(c, apperrors.New(apperrors.MalformedRequest, fmt.Sprintf("unknown report format %q", format)))
		return
	}

	out, err := h.processor.Report(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Data(http.StatusOK, contentTypeFor(format), out)
}

// Export builds and streams the audit export bundle for a completed
// analysis (spec.md §6.3). This route is additive: representative HTTP
// surfaces in the original design named upload/process/report/status but
// never gave the Audit Export Bundle a route of its own to be served from.
func (h *AnalysisHandler) Export(c *gin.Context) {
	principal := auth.PrincipalFromContext(c)

	token, err := h.gate.Gate(c.Request.Context(), principal, opExport, 1)
	if err != nil {
		writeError(c, err)
		return
	}

	bundle, err := h.bundler.Build(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	_ = h.gate.Charge(c.Request.Context(), token, 1)

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", c.Param("id")+"-audit-export.zip"))
	c.Data(http.StatusOK, "application/zip", bundle)
}

func contentTypeFor(format report.Format) string {
	switch format {
	case report.FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case report.FormatHTML:
		return "text/html; charset=utf-8"
	case report.FormatPDF:
		return "application/pdf"
	default:
		return "application/json"
	}
}
