// Package motions implements the Motion Recommender: given violations and
// compliance issues, it produces an ordered list of suggested legal
// motions, at most one per distinct violation rule.
package motions

import (
	"context"
	"fmt"
	"sort"

	"github.com/DTMBX/evident/internal/db"
	"github.com/DTMBX/evident/internal/models"
)

// Template maps one violation rule to the motion it supports. Templates
// are looked up by rule id; a rule with no matching template contributes
// no motion.
type Template struct {
	RuleID    string
	Name      string
	Rationale string
	Citations []string
}

// Load compiles every analyzer_rules row of kind "motion" pinned to
// profileVersion into a Template, mirroring violations.Load's startup
// read of the same table. The row's pattern column holds the motion's
// rationale text rather than a regular expression, since a motion
// template has nothing to match against.
func Load(ctx context.Context, rulesDB *db.AnalyzerRuleDB, profileVersion string) ([]Template, error) {
	rows, err := rulesDB.ListByProfileVersion(ctx, profileVersion)
	if err != nil {
		return nil, fmt.Errorf("motions: failed to load templates %q: %w", profileVersion, err)
	}

	templates := make([]Template, 0, len(rows))
	for _, row := range rows {
		if row.Kind != "motion" {
			continue
		}
		templates = append(templates, Template{
			RuleID:    row.ID,
			Name:      row.Name,
			Rationale: row.Pattern,
			Citations: row.Citations,
		})
	}
	return templates, nil
}

// Recommend builds the ordered motion list from violations and compliance
// issues, using templates to translate a rule id into a concrete motion.
// At most one motion is produced per distinct rule; ties in ordering are
// broken by rule id ascending.
func Recommend(violations []models.Violation, issues []models.ComplianceIssue, templates []Template) []models.Motion {
	byRule := make(map[string]Template, len(templates))
	for _, t := range templates {
		byRule[t.RuleID] = t
	}

	type supported struct {
		motion      models.Motion
		maxSeverity models.Severity
		ruleID      string
	}

	bestByRule := make(map[string]*supported)

	consider := func(ruleID string, severity models.Severity) {
		tmpl, ok := byRule[ruleID]
		if !ok {
			return
		}
		if existing, ok := bestByRule[ruleID]; ok {
			if severity.Rank() > existing.maxSeverity.Rank() {
				existing.maxSeverity = severity
			}
			return
		}
		m := models.Motion{
			Name:              tmpl.Name,
			Rationale:         tmpl.Rationale,
			SupportingRuleIDs: []string{ruleID},
			Citations:         tmpl.Citations,
		}
		m.SetMaxSeverity(severity)
		bestByRule[ruleID] = &supported{motion: m, maxSeverity: severity, ruleID: ruleID}
	}

	for _, v := range violations {
		consider(v.RuleID, v.Severity)
	}
	for _, i := range issues {
		consider(i.RuleID, i.Severity)
	}

	out := make([]models.Motion, 0, len(bestByRule))
	for _, s := range bestByRule {
		s.motion.SetMaxSeverity(s.maxSeverity)
		out = append(out, s.motion)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MaxSeverity().Rank() != out[j].MaxSeverity().Rank() {
			return out[i].MaxSeverity().Rank() > out[j].MaxSeverity().Rank()
		}
		return out[i].SupportingRuleIDs[0] < out[j].SupportingRuleIDs[0]
	})

	return out
}
