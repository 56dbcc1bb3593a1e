// Package report implements the Report Synthesizer: given a completed
// analysis, it produces a canonical result object plus byte-identical
// deterministic renderings in canonical-json, markdown, html, and pdf.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/DTMBX/evident/internal/models"
)

// Format selects the rendering produced by Render.
type Format string

const (
	FormatCanonicalJSON Format = "canonical-json"
	FormatMarkdown      Format = "markdown"
	FormatHTML          Format = "html"
	FormatPDF           Format = "pdf"
)

// Synthesize builds the executive summary for an AnalysisResult. It is a
// pure function of its inputs: the same evidence, violations, compliance
// report, and motions always produce the same summary text.
func Synthesize(evidence *models.Evidence, violations []models.Violation, compliance models.ComplianceReport, motions []models.Motion) string {
	if len(violations) == 0 {
		return fmt.Sprintf("No violations were detected in evidence %s. Compliance status: %s.", evidence.ID, compliance.Status)
	}
	return fmt.Sprintf(
		"%d violation(s) detected in evidence %s (case %s). Compliance status: %s. %d motion(s) recommended.",
		len(violations), evidence.ID, evidence.CaseNumber, compliance.Status, len(motions),
	)
}

// Render produces the requested format's bytes from an already-synthesized
// AnalysisResult. The canonical-json form is the source of truth; every
// other format is derived deterministically from it.
func Render(result *models.AnalysisResult, format Format) ([]byte, error) {
	switch format {
	case FormatCanonicalJSON:
		return canonicalJSON(result)
	case FormatMarkdown:
		return renderMarkdown(result)
	case FormatHTML:
		return renderHTML(result)
	case FormatPDF:
		return renderPDF(result)
	default:
		return nil, fmt.Errorf("report: unknown format %q", format)
	}
}

// canonicalDoc mirrors AnalysisResult but with its fields declared in
// strict Unicode codepoint order of their JSON keys, so encoding/json's
// declaration-order field emission produces a canonical encoding without a
// third-party canonical-JSON library.
type canonicalDoc struct {
	AnalyzerProfileVersion string                   `json:"analyzerProfileVersion"`
	Citations              []string                 `json:"citations"`
	CompletedAt            *string                  `json:"completedAt,omitempty"`
	Compliance             models.ComplianceReport  `json:"compliance"`
	CreatedAt              string                   `json:"createdAt"`
	EvidenceID             string                   `json:"evidenceId"`
	ExecutiveSummary       string                   `json:"executiveSummary"`
	FailingStage           string                   `json:"failingStage,omitempty"`
	Fingerprint            string                   `json:"fingerprint"`
	ID                     string                   `json:"id"`
	OCR                    *models.OCRResult        `json:"ocr,omitempty"`
	RecommendedMotions     []models.Motion          `json:"recommendedMotions"`
	State                  string                   `json:"state"`
	Timings                []models.StageTiming     `json:"timings"`
	Transcript             *models.Transcript       `json:"transcript,omitempty"`
	Violations             []models.Violation       `json:"violations"`
}

func canonicalJSON(result *models.AnalysisResult) ([]byte, error) {
	doc := canonicalDoc{
		AnalyzerProfileVersion: result.AnalyzerProfileVersion,
		Citations:              result.Citations,
		Compliance:             result.Compliance,
		CreatedAt:              formatRFC3339Millis(result.CreatedAt),
		EvidenceID:             result.EvidenceID,
		ExecutiveSummary:       normalizeNFC(result.ExecutiveSummary),
		FailingStage:           result.FailingStage,
		Fingerprint:            result.Fingerprint,
		ID:                     result.ID,
		OCR:                    result.OCR,
		RecommendedMotions:     result.RecommendedMotions,
		State:                  string(result.State),
		Timings:                result.Timings,
		Transcript:             result.Transcript,
		Violations:             result.Violations,
	}
	if result.CompletedAt != nil {
		ts := formatRFC3339Millis(*result.CompletedAt)
		doc.CompletedAt = &ts
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("report: failed to encode canonical json: %w", err)
	}
	// json.Encoder.Encode appends a trailing newline; the canonical form has
	// no trailing whitespace.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// formatRFC3339Millis renders t as RFC-3339 UTC with millisecond precision.
func formatRFC3339Millis(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// normalizeNFC applies Unicode NFC normalization, the canonical form
// spec.md §4.7 requires for all report text.
func normalizeNFC(s string) string {
	return norm.NFC.String(s)
}

// sortedCitations returns a sorted copy, used where rendering needs a
// stable citation order independent of insertion order.
func sortedCitations(citations []string) []string {
	out := append([]string(nil), citations...)
	sort.Strings(out)
	return out
}
