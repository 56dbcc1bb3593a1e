package processor

import (
	"context"

	"github.com/DTMBX/evident/internal/apperrors"
	"github.com/DTMBX/evident/internal/report"
)

// Report renders a previously completed analysis result in the requested
// format (spec.md §4.1 "Report"). Every non-canonical-json format is
// derived deterministically from the canonical form, so the same analysis
// id and format always produce byte-identical output.
func (p *Processor) Report(ctx context.Context, analysisID string, format report.Format) ([]byte, error) {
	result, err := p.analysisDB.GetByID(ctx, analysisID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.NotFound, "analysis result not found", err)
	}

	out, err := report.Render(result, format)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.MalformedRequest, "failed to render report", err)
	}
	return out, nil
}
