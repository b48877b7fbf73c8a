package analyzers

import (
	"context"
	"fmt"

	"github.com/dshills/critic/internal/review"
)

// Size warns when a single file gains more lines than a reviewer can take in
// at once.
type Size struct {
	MaxAdditions int
}

// NewSize returns a Size analyzer with the given threshold.
func NewSize(maxAdditions int) *Size {
	return &Size{MaxAdditions: maxAdditions}
}

// Name implements review.Analyzer.
func (*Size) Name() string { return "size" }

// Analyze implements review.Analyzer.
func (s *Size) Analyze(_ context.Context, rec review.ChangeRecord) (*review.AnalysisResult, error) {
	res := &review.AnalysisResult{Findings: []review.Finding{}, Succeeded: true}
	if s.MaxAdditions > 0 && rec.Additions > s.MaxAdditions {
		res.Findings = append(res.Findings, review.Finding{
			Body: fmt.Sprintf("[size large-change] Large file change: %d lines added (limit %d). Consider splitting it into smaller changes.",
				rec.Additions, s.MaxAdditions),
			Severity: review.SeverityWarning,
			Path:     rec.Path,
		})
	}
	return res, nil
}
