package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DTMBX/evident/internal/models"
)

func TestCheck_CleanEvidenceIsCompliant(t *testing.T) {
	attrs := models.Attributes{IsOriginal: true, Authenticated: true, ChainOfCustodyLength: 3}
	report := Check(attrs, nil)
	assert.Equal(t, models.Compliant, report.Status)
	assert.Empty(t, report.Issues)
}

func TestCheck_NotOriginalIsCompliantWithCaveats(t *testing.T) {
	attrs := models.Attributes{IsOriginal: false, Authenticated: true, ChainOfCustodyLength: 3}
	report := Check(attrs, nil)
	assert.Equal(t, models.CompliantWithCaveats, report.Status)
}

func TestCheck_MissingChainOfCustodyIsNonCompliant(t *testing.T) {
	attrs := models.Attributes{IsOriginal: true, Authenticated: true, ChainOfCustodyLength: 0}
	report := Check(attrs, nil)
	assert.Equal(t, models.NonCompliant, report.Status)
}

func TestCheck_HighSeverityViolationEscalatesStatus(t *testing.T) {
	attrs := models.Attributes{IsOriginal: true, Authenticated: true, ChainOfCustodyLength: 3}
	violations := []models.Violation{{RuleID: "R1", RuleName: "x", Severity: models.SeverityHigh}}
	report := Check(attrs, violations)
	assert.Equal(t, models.NonCompliant, report.Status)
}

func TestCheck_IssuesOrderedBySeverityThenRuleID(t *testing.T) {
	attrs := models.Attributes{IsOriginal: false, Authenticated: false, ChainOfCustodyLength: 0}
	report := Check(attrs, nil)
	for i := 1; i < len(report.Issues); i++ {
		assert.GreaterOrEqual(t, report.Issues[i-1].Severity.Rank(), report.Issues[i].Severity.Rank())
	}
}
