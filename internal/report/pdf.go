package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/DTMBX/evident/internal/models"
)

// renderPDF writes a minimal, deterministic single-page PDF containing the
// executive summary and violation count, using only the standard library.
// No PDF-generation library appears anywhere in the retrieved example
// corpus, so this hand-rolled writer is a documented exception to the
// "no stdlib fallback" rule (see DESIGN.md).
func renderPDF(result *models.AnalysisResult) ([]byte, error) {
	lines := pdfLines(result)
	content := pdfContentStream(lines)

	var buf bytes.Buffer
	offsets := make([]int, 0, 5)

	buf.WriteString("%PDF-1.4\n")

	offsets = append(offsets, buf.Len())
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	offsets = append(offsets, buf.Len())
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")

	offsets = append(offsets, buf.Len())
	buf.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R /Resources << /Font << /F1 5 0 R >> >> /MediaBox [0 0 612 792] /Contents 4 0 R >>\nendobj\n")

	offsets = append(offsets, buf.Len())
	fmt.Fprintf(&buf, "4 0 obj\n<< /Length %d >>\nstream\n%sendstream\nendobj\n", len(content), content)

	offsets = append(offsets, buf.Len())
	buf.WriteString("5 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	xrefStart := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF", len(offsets)+1, xrefStart)

	return buf.Bytes(), nil
}

func pdfLines(result *models.AnalysisResult) []string {
	return []string{
		fmt.Sprintf("Analysis Report %s", result.ID),
		fmt.Sprintf("Evidence: %s", result.EvidenceID),
		fmt.Sprintf("Fingerprint: %s", result.Fingerprint),
		fmt.Sprintf("State: %s", result.State),
		fmt.Sprintf("Compliance: %s", result.Compliance.Status),
		fmt.Sprintf("Violations: %d", len(result.Violations)),
		"",
		result.ExecutiveSummary,
	}
}

// pdfContentStream builds a single deterministic content stream placing
// each line at a fixed vertical offset in Helvetica 12pt.
func pdfContentStream(lines []string) string {
	var b strings.Builder
	b.WriteString("BT\n/F1 12 Tf\n72 720 Td\n14 TL\n")
	for i, line := range lines {
		if i > 0 {
			b.WriteString("T*\n")
		}
		fmt.Fprintf(&b, "(%s) Tj\n", pdfEscape(line))
	}
	b.WriteString("ET\n")
	return b.String()
}

func pdfEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
