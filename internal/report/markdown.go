package report

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/DTMBX/evident/internal/models"
)

var markdownTemplate = template.Must(template.New("report.md").Funcs(template.FuncMap{
	"fmtSeverity": func(s models.Severity) string { return string(s) },
}).Parse(`# Analysis Report {{.ID}}

- Evidence: {{.EvidenceID}}
- Fingerprint: {{.Fingerprint}}
- Analyzer profile: {{.AnalyzerProfileVersion}}
- State: {{.State}}

## Executive Summary

{{.ExecutiveSummary}}

## Compliance

Status: **{{.Compliance.Status}}**
{{range .Compliance.Issues}}
- [{{fmtSeverity .Severity}}] {{.RuleID}}: {{.Message}}
{{- end}}

## Violations
{{range .Violations}}
- [{{fmtSeverity .Severity}}] {{.RuleID}} ({{.RuleName}}) at offset {{.MatchOffset}}: {{.Excerpt}}
{{- end}}

## Recommended Motions
{{range .RecommendedMotions}}
- {{.Name}}: {{.Rationale}}
{{- end}}
`))

// renderMarkdown renders result deterministically through a fixed
// text/template, since the field order and content are already fixed by
// the canonical form.
func renderMarkdown(result *models.AnalysisResult) ([]byte, error) {
	var buf bytes.Buffer
	if err := markdownTemplate.Execute(&buf, result); err != nil {
		return nil, fmt.Errorf("report: failed to render markdown: %w", err)
	}
	return buf.Bytes(), nil
}
