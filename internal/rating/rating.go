// Package rating maps an analysis report onto a deterministic quality score.
// The calculation is a pure function: identical inputs produce bit-identical
// records, with no wall-clock or random influence.
package rating

import (
	"github.com/ratemymr/internal/config"
	"github.com/ratemymr/pkg/models"
)

// Penalty names, in the order penalties are evaluated and reported.
const (
	PenaltyLOC        = "loc"
	PenaltyLint       = "lint_disable"
	PenaltyComplexity = "cyclomatic_complexity"
	PenaltySecurity   = "security"
)

// Calculate scores one analysis report against the run's thresholds. The
// score starts at the configured total and loses each penalty whose metric
// crossed its limit; an analysis that was skipped or failed contributes no
// deduction. The result is clamped at zero: both live scoring paths of the
// system's predecessor clamped there, and a floor of zero keeps "lost every
// point" distinguishable from "lost all but one".
func Calculate(report models.AnalysisReport, cfg config.RatingConfig) models.RatingRecord {
	record := models.RatingRecord{
		Score:     cfg.Rating.Total,
		Total:     cfg.Rating.Total,
		Penalties: []models.Penalty{},
	}

	if loc, ok := locResult(report); ok && loc.Net > cfg.LOC.MaxLines {
		apply(&record, PenaltyLOC, cfg.Rating.LOCPenalty)
	}

	if lint, ok := lintResult(report); ok && lint.NumLintDisable > 0 {
		apply(&record, PenaltyLint, cfg.Rating.LintPenalty)
	}

	if cc, ok := complexityResult(report); ok && cc.Average > cfg.Complexity.MaxAverage {
		apply(&record, PenaltyComplexity, cfg.Rating.ComplexityPenalty)
	}

	if sec, ok := securityResult(report); ok {
		highs := sec.SeverityCount["HIGH"]
		if (cfg.Security.FailOnHigh && highs > 0) || sec.IssuesPerLine > cfg.Security.MaxIssuesPerLine {
			apply(&record, PenaltySecurity, cfg.Rating.SecurityPenalty)
		}
	}

	if record.Score < 0 {
		record.Score = 0
	}
	record.Passed = record.Score >= cfg.Rating.PassScore
	return record
}

func apply(record *models.RatingRecord, name string, points int) {
	record.Score -= points
	record.Penalties = append(record.Penalties, models.Penalty{Name: name, Points: points})
}

func locResult(report models.AnalysisReport) (models.LOCResult, bool) {
	if !report.Succeeded(models.AnalysisLOC) {
		return models.LOCResult{}, false
	}
	o, _ := report.Outcome(models.AnalysisLOC)
	r, ok := o.Payload.(models.LOCResult)
	return r, ok
}

func lintResult(report models.AnalysisReport) (models.LintResult, bool) {
	if !report.Succeeded(models.AnalysisLintDisable) {
		return models.LintResult{}, false
	}
	o, _ := report.Outcome(models.AnalysisLintDisable)
	r, ok := o.Payload.(models.LintResult)
	return r, ok
}

func complexityResult(report models.AnalysisReport) (models.ComplexityResult, bool) {
	if !report.Succeeded(models.AnalysisComplexity) {
		return models.ComplexityResult{}, false
	}
	o, _ := report.Outcome(models.AnalysisComplexity)
	r, ok := o.Payload.(models.ComplexityResult)
	return r, ok
}

func securityResult(report models.AnalysisReport) (models.SecurityResult, bool) {
	if !report.Succeeded(models.AnalysisSecurity) {
		return models.SecurityResult{}, false
	}
	o, _ := report.Outcome(models.AnalysisSecurity)
	r, ok := o.Payload.(models.SecurityResult)
	return r, ok
}
