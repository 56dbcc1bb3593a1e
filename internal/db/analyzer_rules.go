package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// RuleRow is one row of the analyzer_rules table: a versioned, read-only
// rule definition consumed by internal/analyzers/violations at startup.
type RuleRow struct {
	ID             string
	ProfileVersion string
	Kind           string
	Name           string
	Pattern        string
	Severity       string
	Citations      []string
}

// AnalyzerRuleDB reads the pinned rule set. Rules are never written back
// through this type; rule-set changes ship as a new profile version via
// migration or seed data.
type AnalyzerRuleDB struct {
	db *sql.DB
}

// NewAnalyzerRuleDB creates a new AnalyzerRuleDB bound to an open
// connection pool.
func NewAnalyzerRuleDB(db *sql.DB) *AnalyzerRuleDB {
	return &AnalyzerRuleDB{db: db}
}

// ListByProfileVersion returns every rule pinned to the given
// analyzer-profile-version, ordered by rule id ascending so callers can
// rely on deterministic scan order without re-sorting.
func (a *AnalyzerRuleDB) ListByProfileVersion(ctx context.Context, profileVersion string) ([]RuleRow, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, profile_version, kind, name, pattern, severity, citations
		FROM analyzer_rules WHERE profile_version = $1 ORDER BY id ASC
	`, profileVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyzer rules: %w", err)
	}
	defer rows.Close()

	var out []RuleRow
	for rows.Next() {
		var r RuleRow
		var citations pq.StringArray
		if err := rows.Scan(&r.ID, &r.ProfileVersion, &r.Kind, &r.Name, &r.Pattern, &r.Severity, &citations); err != nil {
			return nil, fmt.Errorf("failed to scan analyzer rule row: %w", err)
		}
		r.Citations = []string(citations)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analyzer rule rows: %w", err)
	}
	return out, nil
}
