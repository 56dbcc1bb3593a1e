// Package compliance implements the Compliance Checker: a pure function
// over evidence attributes and a violation list that rolls them up into an
// overall compliance status.
package compliance

import (
	"fmt"
	"sort"

	"github.com/DTMBX/evident/internal/models"
)

// Check derives the compliance issue list and overall status from the
// evidence's attributes and the violations already found. Overall status
// is the maximum severity present: any critical/high escalates to
// non-compliant, any medium to compliant-with-caveats, otherwise compliant.
func Check(attrs models.Attributes, violations []models.Violation) models.ComplianceReport {
	var issues []models.ComplianceIssue

	if !attrs.IsOriginal {
		issues = append(issues, models.ComplianceIssue{
			RuleID:   "evidence.not-original",
			Severity: models.SeverityMedium,
			Message:  "evidence is not the original artifact",
		})
	}
	if !attrs.Authenticated {
		issues = append(issues, models.ComplianceIssue{
			RuleID:   "evidence.not-authenticated",
			Severity: models.SeverityHigh,
			Message:  "evidence has not been authenticated",
		})
	}
	if attrs.ChainOfCustodyLength == 0 {
		issues = append(issues, models.ComplianceIssue{
			RuleID:   "evidence.no-chain-of-custody",
			Severity: models.SeverityCritical,
			Message:  "evidence has no recorded chain of custody",
		})
	}

	for _, v := range violations {
		issues = append(issues, models.ComplianceIssue{
			RuleID:   v.RuleID,
			Severity: v.Severity,
			Message:  fmt.Sprintf("%s: %s", v.RuleName, v.Excerpt),
		})
	}

	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Severity.Rank() != issues[j].Severity.Rank() {
			return issues[i].Severity.Rank() > issues[j].Severity.Rank()
		}
		return issues[i].RuleID < issues[j].RuleID
	})

	return models.ComplianceReport{Issues: issues, Status: overallStatus(issues)}
}

func overallStatus(issues []models.ComplianceIssue) models.ComplianceStatus {
	maxRank := -1
	for _, issue := range issues {
		if r := issue.Severity.Rank(); r > maxRank {
			maxRank = r
		}
	}
	switch {
	case maxRank >= models.SeverityHigh.Rank():
		return models.NonCompliant
	case maxRank >= models.SeverityMedium.Rank():
		return models.CompliantWithCaveats
	default:
		return models.Compliant
	}
}
