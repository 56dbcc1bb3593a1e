package report

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/microcosm-cc/bluemonday"

	"github.com/DTMBX/evident/internal/models"
)

// sanitizer strips any markup from free-text fields (excerpts, rationale,
// case numbers) that ultimately originated as user input, before they are
// embedded in the HTML report. These fields are never meant to carry
// markup, so the strict policy is correct here.
var sanitizer = bluemonday.StrictPolicy()

var htmlTemplate = template.Must(template.New("report.html").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Analysis Report {{.ID}}</title></head>
<body>
<h1>Analysis Report {{.ID}}</h1>
<p>Evidence: {{.EvidenceID}}<br>
Fingerprint: {{.Fingerprint}}<br>
Analyzer profile: {{.AnalyzerProfileVersion}}<br>
State: {{.State}}</p>
<h2>Executive Summary</h2>
<p>{{.ExecutiveSummary}}</p>
<h2>Compliance: {{.Compliance.Status}}</h2>
<ul>
{{range .Compliance.Issues}}<li>[{{.Severity}}] {{.RuleID}}: {{.Message}}</li>
{{end}}</ul>
<h2>Violations</h2>
<ul>
{{range .Violations}}<li>[{{.Severity}}] {{.RuleID}} ({{.RuleName}}): {{.Excerpt}}</li>
{{end}}</ul>
<h2>Recommended Motions</h2>
<ul>
{{range .RecommendedMotions}}<li>{{.Name}}: {{.Rationale}}</li>
{{end}}</ul>
</body></html>
`))

// renderHTML sanitizes free-text fields and renders through html/template,
// which itself escapes the remaining interpolated values.
func renderHTML(result *models.AnalysisResult) ([]byte, error) {
	sanitized := *result
	sanitized.ExecutiveSummary = sanitizer.Sanitize(result.ExecutiveSummary)

	sanitizedViolations := make([]models.Violation, len(result.Violations))
	for i, v := range result.Violations {
		v.Excerpt = sanitizer.Sanitize(v.Excerpt)
		sanitizedViolations[i] = v
	}
	sanitized.Violations = sanitizedViolations

	sanitizedIssues := make([]models.ComplianceIssue, len(result.Compliance.Issues))
	for i, issue := range result.Compliance.Issues {
		issue.Message = sanitizer.Sanitize(issue.Message)
		sanitizedIssues[i] = issue
	}
	sanitized.Compliance.Issues = sanitizedIssues

	sanitizedMotions := make([]models.Motion, len(result.RecommendedMotions))
	for i, m := range result.RecommendedMotions {
		m.Rationale = sanitizer.Sanitize(m.Rationale)
		sanitizedMotions[i] = m
	}
	sanitized.RecommendedMotions = sanitizedMotions

	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, &sanitized); err != nil {
		return nil, fmt.Errorf("report: failed to render html: %w", err)
	}
	return buf.Bytes(), nil
}
