package analysis

import (
	"context"
	"strings"

	"github.com/ratemymr/pkg/models"
)

// Severity buckets for scanner findings.
const (
	SeverityHigh   = "HIGH"
	SeverityMedium = "MEDIUM"
	SeverityLow    = "LOW"
)

// Scanner inspects newly added code and reports findings. The input maps a
// file name to its added content; implementations must not mutate it.
type Scanner interface {
	Scan(ctx context.Context, files map[string]string) ([]models.SecurityFinding, error)
}

// buildSecurityResult buckets the findings and derives the issues-per-line
// ratio over the added line count.
func buildSecurityResult(findings []models.SecurityFinding, addedLines int, extraction string) models.SecurityResult {
	counts := map[string]int{SeverityHigh: 0, SeverityMedium: 0, SeverityLow: 0}
	for i := range findings {
		sev := strings.ToUpper(findings[i].Severity)
		switch sev {
		case SeverityHigh, SeverityMedium, SeverityLow:
		default:
			sev = SeverityLow
		}
		findings[i].Severity = sev
		counts[sev]++
	}

	ratio := 0.0
	if addedLines > 0 {
		ratio = float64(len(findings)) / float64(addedLines)
	}

	return models.SecurityResult{
		Findings:      findings,
		SeverityCount: counts,
		AddedLines:    addedLines,
		IssuesPerLine: ratio,
		Extraction:    extraction,
	}
}
