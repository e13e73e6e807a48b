package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratemymr/internal/config"
	"github.com/ratemymr/internal/rating"
	"github.com/ratemymr/pkg/models"
)

func fullReport() models.AnalysisReport {
	r := models.AnalysisReport{DiffMethod: models.DiffMethodRange}
	r.Add(models.AnalysisOutcome{Kind: models.AnalysisSummary, Success: true,
		Payload: models.SummaryResult{Text: "Adds a retry loop."}})
	r.Add(models.AnalysisOutcome{Kind: models.AnalysisCodeReview, Success: true,
		Payload: models.ReviewResult{Text: "Looks fine overall."}})
	r.Add(models.AnalysisOutcome{Kind: models.AnalysisLOC, Success: true,
		Payload: models.LOCResult{Added: 140, Removed: 7, Net: 133}})
	r.Add(models.AnalysisOutcome{Kind: models.AnalysisLintDisable, Success: true,
		Payload: models.LintResult{NumLintDisable: 2, DisabledRules: "unused-variable, noqa"}})
	r.Add(models.AnalysisOutcome{Kind: models.AnalysisComplexity, Success: true,
		Payload: models.ComplexityResult{Average: 4.2, PerFunction: map[string]int{"handler": 4, "worker": 14}}})
	r.Add(models.AnalysisOutcome{Kind: models.AnalysisSecurity, Success: true,
		Payload: models.SecurityResult{
			SeverityCount: map[string]int{"HIGH": 0, "MEDIUM": 1, "LOW": 0},
			Findings: []models.SecurityFinding{
				{Severity: "MEDIUM", RuleID: "generic-api-key", Description: "Possible API key", File: "added_code", Line: 3},
			},
			AddedLines:    140,
			IssuesPerLine: 1.0 / 140.0,
		}})
	return r
}

func TestRenderStartsWithMarker(t *testing.T) {
	report := fullReport()
	cfg := config.DefaultRatingConfig()
	record := rating.Calculate(report, cfg)

	body := Render(report, record, cfg)

	assert.True(t, strings.HasPrefix(body, Marker), "marker must be the first thing in the body")
}

func TestRenderFullReport(t *testing.T) {
	report := fullReport()
	cfg := config.DefaultRatingConfig()
	record := rating.Calculate(report, cfg)

	body := Render(report, record, cfg)

	assert.Contains(t, body, "## Overall Rating: 4/5")
	assert.Contains(t, body, "Adds a retry loop.")
	assert.Contains(t, body, "Looks fine overall.")
	assert.Contains(t, body, "- **Net Change**: 133")
	assert.Contains(t, body, "- **New Lint Disables**: 2")
	assert.Contains(t, body, "- **Average Complexity**: 4.2 (Good)")
	assert.Contains(t, body, "`worker`: 14")
	assert.Contains(t, body, "- **MEDIUM Severity Issues**: 1")
	assert.Contains(t, body, "### Scoring Breakdown")
	assert.Contains(t, body, "**Final Score**: 4/5 points")
	assert.Contains(t, body, "Quality assessment passed")
	assert.NotContains(t, body, ":bomb:")
}

func TestRenderBlockingFooter(t *testing.T) {
	report := fullReport()
	report.Add(models.AnalysisOutcome{Kind: models.AnalysisLOC, Success: true,
		Payload: models.LOCResult{Added: 900, Removed: 65, Net: 835}})
	report.Add(models.AnalysisOutcome{Kind: models.AnalysisLintDisable, Success: true,
		Payload: models.LintResult{NumLintDisable: 5, DisabledRules: "many"}})

	cfg := config.DefaultRatingConfig()
	record := rating.Calculate(report, cfg)
	require.Equal(t, 2, record.Score)

	body := Render(report, record, cfg)

	assert.Contains(t, body, "## Overall Rating: 2/5")
	assert.Contains(t, body, ":bomb: **QUALITY ISSUES IDENTIFIED** :bomb:")
	assert.Contains(t, body, "Exceeds 500 line limit (-2)")
}

func TestRenderMarksFailedSectionsUnavailable(t *testing.T) {
	report := fullReport()
	report.Add(models.AnalysisOutcome{Kind: models.AnalysisSummary, Error: "connection refused"})
	report.Add(models.AnalysisOutcome{Kind: models.AnalysisCodeReview, Error: "connection refused"})
	report.Add(models.AnalysisOutcome{Kind: models.AnalysisLintDisable, Error: "connection refused"})

	cfg := config.DefaultRatingConfig()
	record := rating.Calculate(report, cfg)

	body := Render(report, record, cfg)

	assert.Contains(t, body, ":x: AI summary unavailable - connection refused")
	assert.Contains(t, body, ":x: AI code review unavailable - connection refused")
	assert.Contains(t, body, "| Lint Disables | unavailable | No impact |")
	// Local analyses still render normally.
	assert.Contains(t, body, "- **Net Change**: 133")
}

func TestRenderMarksDisabledSections(t *testing.T) {
	report := fullReport()
	report.Add(models.AnalysisOutcome{Kind: models.AnalysisSecurity, Skipped: true})

	cfg := config.DefaultRatingConfig()
	body := Render(report, rating.Calculate(report, cfg), cfg)

	assert.Contains(t, body, ":heavy_minus_sign: Security scan disabled for this repository")
}

func TestRenderIsDeterministic(t *testing.T) {
	report := fullReport()
	// Several offenders so map iteration order would show if unsorted.
	report.Add(models.AnalysisOutcome{Kind: models.AnalysisComplexity, Success: true,
		Payload: models.ComplexityResult{Average: 14, PerFunction: map[string]int{
			"a": 12, "b": 12, "c": 13, "d": 15, "e": 11, "f": 20,
		}}})
	cfg := config.DefaultRatingConfig()
	record := rating.Calculate(report, cfg)

	first := Render(report, record, cfg)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Render(report, record, cfg))
	}
}

func TestRenderError(t *testing.T) {
	sub := &models.Submission{ProjectID: "group/app", MRIID: 42}
	attempts := []models.DiffAttempt{
		{Method: models.DiffMethodRange, Error: "unknown revision main"},
		{Method: models.DiffMethodCommitList, Error: "bad object"},
		{Method: models.DiffMethodHeadShow, Error: "bad object"},
	}

	body := RenderError(sub, attempts)

	assert.True(t, strings.HasPrefix(body, Marker))
	assert.Contains(t, body, "`group/app!42`")
	assert.Contains(t, body, "- **range**: unknown revision main")
	assert.Contains(t, body, "- **head-show**: bad object")
}
