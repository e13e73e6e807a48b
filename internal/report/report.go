// Package report renders the markdown body of the single rating comment.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ratemymr/internal/config"
	"github.com/ratemymr/internal/rating"
	"github.com/ratemymr/pkg/models"
)

// Marker is the stable prefix identifying this service's comment on a merge
// request. The synchronizer matches on it; changing it orphans every existing
// comment.
const Marker = ":star2: MR Quality Rating Report :star2:"

const header = Marker + "\n========================================\n"

// maxSecurityIssuesShown caps the expander list; full findings stay in logs.
const maxSecurityIssuesShown = 10

// maxComplexMethodsShown caps the high-complexity offender list.
const maxComplexMethodsShown = 5

// Render formats the full rating report body. Failed and skipped analyses
// are explicitly marked unavailable in their sections, never omitted.
func Render(report models.AnalysisReport, record models.RatingRecord, cfg config.RatingConfig) string {
	var b strings.Builder

	b.WriteString(header)
	fmt.Fprintf(&b, "\n## Overall Rating: %d/%d\n\n", record.Score, record.Total)
	b.WriteString("### Quality Assessment Results\n\n")

	writeSummarySection(&b, report)
	writeReviewSection(&b, report)
	writeLOCSection(&b, report)
	writeLintSection(&b, report)
	writeComplexitySection(&b, report, cfg)
	writeSecuritySection(&b, report)
	writeBreakdown(&b, report, record, cfg)
	writeFooter(&b, record)

	return b.String()
}

// RenderError formats the comment published when diff reconstruction is
// exhausted: it names the submission and every attempted method with its
// cause. Same marker as the rating report, never blocking.
func RenderError(sub *models.Submission, attempts []models.DiffAttempt) string {
	var b strings.Builder

	b.WriteString(header)
	b.WriteString("\n## Analysis Failed\n\n")
	fmt.Fprintf(&b, ":x: The quality assessment for `%s!%d` could not run: "+
		"the merge request diff could not be reconstructed.\n\n", sub.ProjectID, sub.MRIID)

	b.WriteString("### Reconstruction Attempts\n")
	for _, a := range attempts {
		fmt.Fprintf(&b, "- **%s**: %s\n", a.Method, a.Error)
	}

	b.WriteString("\nThe assessment will retry automatically on the next push.\n")
	b.WriteString(footerRule)
	return b.String()
}

const footerRule = "\n---\n*Generated by AI-powered MR quality assessment*\n"

func unavailable(b *strings.Builder, o models.AnalysisOutcome, what string) {
	if o.Skipped {
		fmt.Fprintf(b, ":heavy_minus_sign: %s disabled for this repository\n\n", what)
		return
	}
	fmt.Fprintf(b, ":x: %s unavailable - %s\n\n", what, o.Error)
}

func writeSummarySection(b *strings.Builder, report models.AnalysisReport) {
	b.WriteString("#### :mag: Summary Analysis\n")

	o, _ := report.Outcome(models.AnalysisSummary)
	result, ok := o.Payload.(models.SummaryResult)
	if !report.Succeeded(models.AnalysisSummary) || !ok {
		unavailable(b, o, "AI summary")
		return
	}

	b.WriteString(":white_check_mark: AI-powered summary generated successfully\n\n")
	fmt.Fprintf(b, "<details>\n<summary>Click to expand AI Summary</summary>\n\n%s\n\n</details>\n\n", result.Text)
}

func writeReviewSection(b *strings.Builder, report models.AnalysisReport) {
	b.WriteString("#### :microscope: Code Review Analysis\n")

	o, _ := report.Outcome(models.AnalysisCodeReview)
	result, ok := o.Payload.(models.ReviewResult)
	if !report.Succeeded(models.AnalysisCodeReview) || !ok {
		unavailable(b, o, "AI code review")
		return
	}

	b.WriteString(":white_check_mark: Comprehensive AI code review completed\n\n")
	fmt.Fprintf(b, "<details>\n<summary>Click to expand AI Code Review</summary>\n\n%s\n\n</details>\n\n", result.Text)
}

func writeLOCSection(b *strings.Builder, report models.AnalysisReport) {
	b.WriteString("#### :chart_with_upwards_trend: Lines of Code Analysis\n")

	o, _ := report.Outcome(models.AnalysisLOC)
	result, ok := o.Payload.(models.LOCResult)
	if !report.Succeeded(models.AnalysisLOC) || !ok {
		unavailable(b, o, "Line-count analysis")
		return
	}

	fmt.Fprintf(b, "- **Lines Added**: %d\n", result.Added)
	fmt.Fprintf(b, "- **Lines Removed**: %d\n", result.Removed)
	fmt.Fprintf(b, "- **Net Change**: %d\n\n", result.Net)
}

func writeLintSection(b *strings.Builder, report models.AnalysisReport) {
	b.WriteString("#### :warning: Lint Disable Analysis\n")

	o, _ := report.Outcome(models.AnalysisLintDisable)
	result, ok := o.Payload.(models.LintResult)
	if !report.Succeeded(models.AnalysisLintDisable) || !ok {
		unavailable(b, o, "Lint-suppression detection")
		return
	}

	rules := result.DisabledRules
	if rules == "" {
		rules = "None"
	}
	fmt.Fprintf(b, "- **New Lint Disables**: %d\n", result.NumLintDisable)
	fmt.Fprintf(b, "- **Disabled Rules**: %s\n\n", rules)
}

func writeComplexitySection(b *strings.Builder, report models.AnalysisReport, cfg config.RatingConfig) {
	b.WriteString("#### :cyclone: Cyclomatic Complexity Analysis\n")

	o, _ := report.Outcome(models.AnalysisComplexity)
	result, ok := o.Payload.(models.ComplexityResult)
	if !report.Succeeded(models.AnalysisComplexity) || !ok {
		unavailable(b, o, "Complexity analysis")
		return
	}

	status := "Good"
	if result.Average > cfg.Complexity.MaxAverage {
		status = "High complexity"
	}
	fmt.Fprintf(b, "- **Average Complexity**: %g (%s)\n", result.Average, status)
	fmt.Fprintf(b, "- **Methods Analyzed**: %d\n", len(result.PerFunction))

	offenders := highComplexityMethods(result, cfg.Complexity.MaxAverage)
	if len(offenders) > 0 {
		fmt.Fprintf(b, "- **High Complexity Methods** (CC > %g):\n", cfg.Complexity.MaxAverage)
		for _, m := range offenders {
			fmt.Fprintf(b, "  - `%s`: %d\n", m.name, m.cc)
		}
	}
	b.WriteString("\n")
}

type methodCC struct {
	name string
	cc   int
}

// highComplexityMethods returns the worst offenders above the threshold,
// highest first, name-ordered within equal scores so output is stable.
func highComplexityMethods(result models.ComplexityResult, max float64) []methodCC {
	var offenders []methodCC
	for name, cc := range result.PerFunction {
		if float64(cc) > max {
			offenders = append(offenders, methodCC{name, cc})
		}
	}
	sort.Slice(offenders, func(i, j int) bool {
		if offenders[i].cc != offenders[j].cc {
			return offenders[i].cc > offenders[j].cc
		}
		return offenders[i].name < offenders[j].name
	})
	if len(offenders) > maxComplexMethodsShown {
		offenders = offenders[:maxComplexMethodsShown]
	}
	return offenders
}

func writeSecuritySection(b *strings.Builder, report models.AnalysisReport) {
	b.WriteString("#### :shield: Security Scan Analysis\n")

	o, _ := report.Outcome(models.AnalysisSecurity)
	result, ok := o.Payload.(models.SecurityResult)
	if !report.Succeeded(models.AnalysisSecurity) || !ok {
		unavailable(b, o, "Security scan")
		return
	}

	high := result.SeverityCount["HIGH"]
	critical := ""
	if high > 0 {
		critical = " (Critical!)"
	}
	fmt.Fprintf(b, "- **HIGH Severity Issues**: %d%s\n", high, critical)
	fmt.Fprintf(b, "- **MEDIUM Severity Issues**: %d\n", result.SeverityCount["MEDIUM"])
	fmt.Fprintf(b, "- **LOW Severity Issues**: %d\n", result.SeverityCount["LOW"])
	fmt.Fprintf(b, "- **Security Score**: %.4f issues/LOC\n", result.IssuesPerLine)

	if len(result.Findings) > 0 {
		b.WriteString("\n<details>\n<summary>Click to expand Security Issues</summary>\n\n")
		shown := result.Findings
		if len(shown) > maxSecurityIssuesShown {
			shown = shown[:maxSecurityIssuesShown]
		}
		for _, f := range shown {
			fmt.Fprintf(b, "- **%s** - %s\n", f.Severity, f.Description)
			fmt.Fprintf(b, "  - Rule: `%s`\n", f.RuleID)
			fmt.Fprintf(b, "  - File: `%s`, Line: %d\n\n", f.File, f.Line)
		}
		b.WriteString("</details>\n")
	}
	b.WriteString("\n")
}

func writeBreakdown(b *strings.Builder, report models.AnalysisReport, record models.RatingRecord, cfg config.RatingConfig) {
	applied := make(map[string]int, len(record.Penalties))
	for _, p := range record.Penalties {
		applied[p.Name] = p.Points
	}
	impact := func(name string, within string, exceeded string) string {
		if points, ok := applied[name]; ok {
			return fmt.Sprintf("%s (-%d)", exceeded, points)
		}
		return within
	}

	b.WriteString("### Scoring Breakdown\n")
	b.WriteString("| Metric | Status | Impact |\n")
	b.WriteString("|--------|--------|--------|\n")

	if loc, ok := payloadLOC(report); ok {
		fmt.Fprintf(b, "| Lines of Code | %d lines | %s |\n", loc.Net,
			impact(rating.PenaltyLOC, "Within limits", fmt.Sprintf("Exceeds %d line limit", cfg.LOC.MaxLines)))
	} else {
		b.WriteString("| Lines of Code | unavailable | No impact |\n")
	}

	if lint, ok := payloadLint(report); ok {
		fmt.Fprintf(b, "| Lint Disables | %d new disables | %s |\n", lint.NumLintDisable,
			impact(rating.PenaltyLint, "No new disables", "New lint suppressions added"))
	} else {
		b.WriteString("| Lint Disables | unavailable | No impact |\n")
	}

	if cc, ok := payloadComplexity(report); ok {
		fmt.Fprintf(b, "| Cyclomatic Complexity | Avg: %g | %s |\n", cc.Average,
			impact(rating.PenaltyComplexity, "Good", "High complexity"))
	} else {
		b.WriteString("| Cyclomatic Complexity | unavailable | No impact |\n")
	}

	if sec, ok := payloadSecurity(report); ok {
		fmt.Fprintf(b, "| Security Issues | %d HIGH/MEDIUM | %s |\n",
			sec.SeverityCount["HIGH"]+sec.SeverityCount["MEDIUM"],
			impact(rating.PenaltySecurity, "No critical issues", "Security concerns"))
	} else {
		b.WriteString("| Security Issues | unavailable | No impact |\n")
	}

	fmt.Fprintf(b, "\n**Final Score**: %d/%d points\n", record.Score, record.Total)
}

func writeFooter(b *strings.Builder, record models.RatingRecord) {
	if !record.Passed {
		b.WriteString(`
:bomb: **QUALITY ISSUES IDENTIFIED** :bomb:<br>
This MR has significant quality concerns that should be addressed before merging.<br>
The assessment will be automatically updated when changes are pushed.

### Recommended Actions:
- Address the penalties listed in the scoring breakdown
- Consider breaking large changes into smaller MRs
- Remove unnecessary lint disable statements
`)
	} else {
		b.WriteString(`
:white_check_mark: **Quality assessment passed** - MR meets quality standards.
`)
	}
	b.WriteString(footerRule)
}

func payloadLOC(report models.AnalysisReport) (models.LOCResult, bool) {
	if !report.Succeeded(models.AnalysisLOC) {
		return models.LOCResult{}, false
	}
	o, _ := report.Outcome(models.AnalysisLOC)
	r, ok := o.Payload.(models.LOCResult)
	return r, ok
}

func payloadLint(report models.AnalysisReport) (models.LintResult, bool) {
	if !report.Succeeded(models.AnalysisLintDisable) {
		return models.LintResult{}, false
	}
	o, _ := report.Outcome(models.AnalysisLintDisable)
	r, ok := o.Payload.(models.LintResult)
	return r, ok
}

func payloadComplexity(report models.AnalysisReport) (models.ComplexityResult, bool) {
	if !report.Succeeded(models.AnalysisComplexity) {
		return models.ComplexityResult{}, false
	}
	o, _ := report.Outcome(models.AnalysisComplexity)
	r, ok := o.Payload.(models.ComplexityResult)
	return r, ok
}

func payloadSecurity(report models.AnalysisReport) (models.SecurityResult, bool) {
	if !report.Succeeded(models.AnalysisSecurity) {
		return models.SecurityResult{}, false
	}
	o, _ := report.Outcome(models.AnalysisSecurity)
	r, ok := o.Payload.(models.SecurityResult)
	return r, ok
}
