package violations

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DTMBX/evident/internal/models"
)

func ruleSet(rules ...Rule) *RuleSet {
	return &RuleSet{ProfileVersion: "test", Rules: rules}
}

func TestScan_ReportsOneViolationPerMatch(t *testing.T) {
	rs := ruleSet(Rule{ID: "R1", Name: "miranda", Severity: models.SeverityHigh, Pattern: regexp.MustCompile(`silent`)})
	s := New(rs)

	got := s.Scan("you have the right to remain silent, very silent indeed", Context{})
	assert.Len(t, got, 2)
	assert.Equal(t, "R1", got[0].RuleID)
}

func TestScan_CollapsesOverlappingMatchesOfSameRule(t *testing.T) {
	rs := ruleSet(Rule{ID: "R1", Name: "overlap", Severity: models.SeverityLow, Pattern: regexp.MustCompile(`a+`)})
	s := New(rs)

	got := s.Scan("aaaa bbbb", Context{})
	assert.Len(t, got, 1)
	assert.Equal(t, 0, got[0].MatchOffset)
	assert.Equal(t, 4, got[0].MatchLength)
}

func TestScan_ReportsOverlappingMatchesOfDistinctRules(t *testing.T) {
	rs := ruleSet(
		Rule{ID: "R1", Name: "r1", Severity: models.SeverityHigh, Pattern: regexp.MustCompile(`abc`)},
		Rule{ID: "R2", Name: "r2", Severity: models.SeverityHigh, Pattern: regexp.MustCompile(`bcd`)},
	)
	s := New(rs)

	got := s.Scan("abcd", Context{})
	assert.Len(t, got, 2)
}

func TestScan_OrdersBySeverityThenRuleIDThenOffset(t *testing.T) {
	rs := ruleSet(
		Rule{ID: "R2", Name: "low-rule", Severity: models.SeverityLow, Pattern: regexp.MustCompile(`zzz`)},
		Rule{ID: "R1", Name: "critical-rule", Severity: models.SeverityCritical, Pattern: regexp.MustCompile(`zzz`)},
	)
	s := New(rs)

	got := s.Scan("zzz zzz", Context{})
	assert.Equal(t, "R1", got[0].RuleID)
	assert.Equal(t, models.SeverityCritical, got[0].Severity)
	assert.Equal(t, "R2", got[len(got)-1].RuleID)
}

func TestScan_MatchesRulesAgainstContextFields(t *testing.T) {
	rs := ruleSet(
		Rule{ID: "R1", Name: "case", Severity: models.SeverityLow, Pattern: regexp.MustCompile(`CR-2024-\d+`)},
		Rule{ID: "R2", Name: "party", Severity: models.SeverityLow, Pattern: regexp.MustCompile(`Doe`)},
	)
	s := New(rs)

	got := s.Scan("no mention of a case here", Context{
		CaseNumber:      "CR-2024-001",
		ArrestDate:      "2024-01-02",
		InvolvedParties: []string{"Jane Doe"},
	})

	require.Len(t, got, 2)
	var ruleIDs []string
	for _, v := range got {
		ruleIDs = append(ruleIDs, v.RuleID)
	}
	assert.Contains(t, ruleIDs, "R1")
	assert.Contains(t, ruleIDs, "R2")
}

func TestScan_EmptyContextAddsNothingToCorpus(t *testing.T) {
	rs := ruleSet(Rule{ID: "R1", Name: "x", Severity: models.SeverityMedium, Pattern: regexp.MustCompile(`x`)})
	s := New(rs)

	got := s.Scan("xxx", Context{})
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].MatchOffset)
}

func TestScan_DeterministicAcrossRuns(t *testing.T) {
	rs := ruleSet(Rule{ID: "R1", Name: "x", Severity: models.SeverityMedium, Pattern: regexp.MustCompile(`x`)})
	s := New(rs)

	first := s.Scan("xxx", Context{})
	second := s.Scan("xxx", Context{})
	assert.Equal(t, first, second)
}
