package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DTMBX/evident/internal/models"
)

func sampleResult() *models.AnalysisResult {
	return &models.AnalysisResult{
		ID:                     "res1",
		EvidenceID:             "ev1",
		Fingerprint:            "abc123",
		AnalyzerProfileVersion: "v1",
		Violations: []models.Violation{
			{RuleID: "R1", RuleName: "miranda", Severity: models.SeverityHigh, MatchOffset: 3, Excerpt: "<b>silent</b>"},
		},
		Compliance:         models.ComplianceReport{Status: models.CompliantWithCaveats},
		RecommendedMotions: []models.Motion{{Name: "Motion to Suppress", Rationale: "x"}},
		ExecutiveSummary:   "1 violation(s) detected",
		State:              models.AnalysisCompleted,
		CreatedAt:          time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestSynthesize_NoViolations(t *testing.T) {
	ev := &models.Evidence{ID: "ev1"}
	summary := Synthesize(ev, nil, models.ComplianceReport{Status: models.Compliant}, nil)
	assert.Contains(t, summary, "No violations")
}

func TestSynthesize_WithViolations(t *testing.T) {
	ev := &models.Evidence{ID: "ev1", CaseNumber: "CASE-1"}
	violations := []models.Violation{{RuleID: "R1"}}
	summary := Synthesize(ev, violations, models.ComplianceReport{Status: models.NonCompliant}, nil)
	assert.Contains(t, summary, "1 violation")
	assert.Contains(t, summary, "CASE-1")
}

func TestRender_CanonicalJSONIsDeterministic(t *testing.T) {
	result := sampleResult()
	first, err := Render(result, FormatCanonicalJSON)
	require.NoError(t, err)
	second, err := Render(result, FormatCanonicalJSON)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NotContains(t, string(first), "\n\n")
}

func TestRender_Markdown(t *testing.T) {
	out, err := Render(sampleResult(), FormatMarkdown)
	require.NoError(t, err)
	assert.Contains(t, string(out), "Analysis Report res1")
}

func TestRender_HTMLSanitizesExcerpts(t *testing.T) {
	out, err := Render(sampleResult(), FormatHTML)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "<b>silent</b>")
	assert.Contains(t, string(out), "silent")
}

func TestRender_PDFProducesValidHeader(t *testing.T) {
	out, err := Render(sampleResult(), FormatPDF)
	require.NoError(t, err)
	assert.Contains(t, string(out[:8]), "%PDF-1.4")
	assert.Contains(t, string(out), "%%EOF")
}

func TestRender_UnknownFormat(t *testing.T) {
	_, err := Render(sampleResult(), Format("xml"))
	require.Error(t, err)
}
