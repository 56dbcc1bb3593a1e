// Package violations implements the Violation Scanner: a deterministic,
// rule-based pass over a textual corpus that never does anything the rule
// set itself doesn't specify. Given the same corpus, context, and rule
// set version, it always returns the same ordered list.
package violations

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/DTMBX/evident/internal/db"
	"github.com/DTMBX/evident/internal/models"
)

// Rule is one compiled detection rule, pinned to a profile version.
type Rule struct {
	ID        string
	Name      string
	Severity  models.Severity
	Pattern   *regexp.Regexp
	Citations []string
}

// Context carries the request-scoped facts a rule's output is annotated
// with; the rules themselves do not branch on these fields beyond what a
// given pattern matches in the corpus.
type Context struct {
	CaseNumber      string
	ArrestDate      string
	InvolvedParties []string
}

// RuleSet is an immutable, versioned collection of rules loaded once at
// processor startup and never mutated afterward, mirroring the way tier
// limits are loaded into memory once at config load rather than read from
// the database on every check.
type RuleSet struct {
	ProfileVersion string
	Rules          []Rule
}

// Load compiles every analyzer_rules row pinned to profileVersion into a
// RuleSet. Rows with an invalid regex pattern are skipped with an error
// appended to the returned slice's accompanying error rather than
// aborting the whole load, since one bad rule should not take down every
// other rule in the profile.
func Load(ctx context.Context, rulesDB *db.AnalyzerRuleDB, profileVersion string) (*RuleSet, error) {
	rows, err := rulesDB.ListByProfileVersion(ctx, profileVersion)
	if err != nil {
		return nil, fmt.Errorf("violations: failed to load rule set %q: %w", profileVersion, err)
	}

	rules := make([]Rule, 0, len(rows))
	for _, row := range rows {
		if row.Kind != "violation" {
			continue
		}
		pattern, err := regexp.Compile(row.Pattern)
		if err != nil {
			return nil, fmt.Errorf("violations: rule %s has invalid pattern: %w", row.ID, err)
		}
		rules = append(rules, Rule{
			ID:        row.ID,
			Name:      row.Name,
			Severity:  models.Severity(row.Severity),
			Pattern:   pattern,
			Citations: row.Citations,
		})
	}

	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return &RuleSet{ProfileVersion: profileVersion, Rules: rules}, nil
}

// Scanner runs a pinned RuleSet against a textual corpus.
type Scanner struct {
	ruleSet *RuleSet
}

// New builds a Scanner over the given rule set.
func New(ruleSet *RuleSet) *Scanner {
	return &Scanner{ruleSet: ruleSet}
}

// Scan is a pure function of (corpus, context, rule set version): the same
// inputs always produce the same ordered violation list. The corpus scanned
// is transcript ∪ OCR text ∪ textual context — ctx's case number, arrest
// date, and involved parties are appended so a rule pattern can match
// against them exactly as it would against transcript or OCR text. Rules
// run in ID order; every match of a rule is reported as its own violation,
// except that overlapping matches of the *same* rule collapse to the
// earliest offset. Overlapping matches of distinct rules are independently
// reported.
func (s *Scanner) Scan(corpus string, ctx Context) []models.Violation {
	corpus = appendContext(corpus, ctx)
	var violations []models.Violation

	for _, rule := range s.ruleSet.Rules {
		matches := rule.Pattern.FindAllStringIndex(corpus, -1)
		for _, m := range collapseOverlaps(matches) {
			start, end := m[0], m[1]
			violations = append(violations, models.Violation{
				RuleID:      rule.ID,
				RuleName:    rule.Name,
				Severity:    rule.Severity,
				MatchOffset: start,
				MatchLength: end - start,
				Excerpt:     corpus[start:end],
				Citations:   rule.Citations,
			})
		}
	}

	sortViolations(violations)
	return violations
}

// appendContext folds ctx's textual facets onto the end of corpus, each on
// its own line, so offsets for a match already inside corpus are unaffected
// and a match against case number, arrest date, or involved parties is
// reported exactly like any other.
func appendContext(corpus string, ctx Context) string {
	var extra []string
	if ctx.CaseNumber != "" {
		extra = append(extra, ctx.CaseNumber)
	}
	if ctx.ArrestDate != "" {
		extra = append(extra, ctx.ArrestDate)
	}
	if len(ctx.InvolvedParties) > 0 {
		extra = append(extra, strings.Join(ctx.InvolvedParties, "\n"))
	}
	if len(extra) == 0 {
		return corpus
	}
	return corpus + "\n" + strings.Join(extra, "\n")
}

// collapseOverlaps merges overlapping or adjacent-by-containment match
// spans from a single rule's FindAllStringIndex output down to the
// earliest-offset span per overlapping cluster.
func collapseOverlaps(matches [][]int) [][]int {
	if len(matches) == 0 {
		return nil
	}
	out := [][]int{matches[0]}
	for _, m := range matches[1:] {
		last := out[len(out)-1]
		if m[0] < last[1] { // overlaps the previous span
			if m[1] > last[1] {
				last[1] = m[1]
			}
			continue
		}
		out = append(out, m)
	}
	return out
}

// sortViolations orders by severity descending, rule id ascending, match
// offset ascending — the deterministic-ordering policy shared by the
// Violation Scanner and Compliance Checker.
func sortViolations(violations []models.Violation) {
	sort.SliceStable(violations, func(i, j int) bool {
		a, b := violations[i], violations[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		return a.MatchOffset < b.MatchOffset
	})
}
