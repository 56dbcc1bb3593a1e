package motions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DTMBX/evident/internal/models"
)

func templates() []Template {
	return []Template{
		{RuleID: "R1", Name: "Motion to Suppress", Rationale: "miranda violation", Citations: []string{"Miranda v. Arizona"}},
		{RuleID: "R2", Name: "Motion to Dismiss", Rationale: "chain of custody broken", Citations: []string{"Fed. R. Evid. 901"}},
	}
}

func TestRecommend_OneMotionPerDistinctRule(t *testing.T) {
	violations := []models.Violation{
		{RuleID: "R1", Severity: models.SeverityHigh},
		{RuleID: "R1", Severity: models.SeverityCritical},
	}
	out := Recommend(violations, nil, templates())
	require.Len(t, out, 1)
	assert.Equal(t, models.SeverityCritical, out[0].MaxSeverity())
}

func TestRecommend_IgnoresRulesWithoutTemplate(t *testing.T) {
	violations := []models.Violation{{RuleID: "R99", Severity: models.SeverityHigh}}
	out := Recommend(violations, nil, templates())
	assert.Empty(t, out)
}

func TestRecommend_OrdersBySeverityThenRuleID(t *testing.T) {
	violations := []models.Violation{
		{RuleID: "R2", Severity: models.SeverityLow},
		{RuleID: "R1", Severity: models.SeverityCritical},
	}
	out := Recommend(violations, nil, templates())
	require.Len(t, out, 2)
	assert.Equal(t, "Motion to Suppress", out[0].Name)
	assert.Equal(t, "Motion to Dismiss", out[1].Name)
}

func TestRecommend_ConsidersComplianceIssuesToo(t *testing.T) {
	issues := []models.ComplianceIssue{{RuleID: "R2", Severity: models.SeverityHigh}}
	out := Recommend(nil, issues, templates())
	require.Len(t, out, 1)
	assert.Equal(t, "Motion to Dismiss", out[0].Name)
}
