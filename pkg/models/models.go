package models

// Analysis kinds, in the order they appear in the published report.
const (
	AnalysisSummary     = "ai_summary"
	AnalysisCodeReview  = "ai_code_review"
	AnalysisLOC         = "loc_analysis"
	AnalysisLintDisable = "lint_disable_check"
	AnalysisComplexity  = "cyclomatic_complexity"
	AnalysisSecurity    = "security_scan"
)

// AnalysisKinds lists every analysis kind in report order.
var AnalysisKinds = []string{
	AnalysisSummary,
	AnalysisCodeReview,
	AnalysisLOC,
	AnalysisLintDisable,
	AnalysisComplexity,
	AnalysisSecurity,
}

// Submission identifies one merge request under assessment. Built once from
// the platform API at pipeline start and immutable afterwards.
type Submission struct {
	ProjectID    string   `json:"project_id"`
	MRIID        int      `json:"mr_iid"`
	Title        string   `json:"title"`
	SourceBranch string   `json:"source_branch"`
	TargetBranch string   `json:"target_branch"`
	Author       string   `json:"author"`
	HeadCommit   string   `json:"head_commit"`
	WebURL       string   `json:"web_url"`
	Commits      []string `json:"commits"` // commit SHAs, newest first as the API returns them
}

// DiffMethod names the reconstruction strategy that produced a diff.
type DiffMethod string

const (
	DiffMethodRange      DiffMethod = "range"
	DiffMethodCommitList DiffMethod = "commit-list"
	DiffMethodHeadShow   DiffMethod = "head-show"
)

// DiffAttempt records one failed reconstruction attempt.
type DiffAttempt struct {
	Method DiffMethod `json:"method"`
	Error  string     `json:"error"`
}

// DiffArtifact is the reconstructed unified diff for a submission. Consumed
// read-only by every analysis and discarded with the workspace at run end.
type DiffArtifact struct {
	Text     string        `json:"-"`
	Path     string        `json:"path"`
	Method   DiffMethod    `json:"method"`
	Success  bool          `json:"success"`
	Attempts []DiffAttempt `json:"attempts,omitempty"`
}

// AnalysisOutcome is the result of one analysis kind. A failing analysis is
// recorded here; it never escapes the coordinator.
type AnalysisOutcome struct {
	Kind    string      `json:"kind"`
	Success bool        `json:"success"`
	Skipped bool        `json:"skipped"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// AnalysisReport collects the outcome of every enabled analysis kind for one
// run, in report order, plus the reconstruction method that fed them.
type AnalysisReport struct {
	Outcomes   []AnalysisOutcome `json:"outcomes"`
	DiffMethod DiffMethod        `json:"diff_method"`
}

// Add appends an outcome, replacing any earlier outcome of the same kind.
func (r *AnalysisReport) Add(o AnalysisOutcome) {
	for i := range r.Outcomes {
		if r.Outcomes[i].Kind == o.Kind {
			r.Outcomes[i] = o
			return
		}
	}
	r.Outcomes = append(r.Outcomes, o)
}

// Outcome returns the outcome recorded for kind.
func (r *AnalysisReport) Outcome(kind string) (AnalysisOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Kind == kind {
			return o, true
		}
	}
	return AnalysisOutcome{}, false
}

// Succeeded reports whether kind ran and completed successfully.
func (r *AnalysisReport) Succeeded(kind string) bool {
	o, ok := r.Outcome(kind)
	return ok && o.Success && !o.Skipped
}

// SummaryResult is the payload of a successful AI summary analysis.
type SummaryResult struct {
	Text string `json:"text"`
}

// ReviewResult is the payload of a successful AI code review analysis.
type ReviewResult struct {
	Text string `json:"text"`
}

// LOCResult is the payload of the line-count analysis.
type LOCResult struct {
	Added   int `json:"lines_of_code_added"`
	Removed int `json:"lines_of_code_removed"`
	Net     int `json:"net_lines_of_code_change"`
}

// LintResult is the payload of the lint-suppression analysis. The field names
// follow the JSON object the model is asked to produce.
type LintResult struct {
	NumLintDisable int    `json:"num_lint_disable"`
	DisabledRules  string `json:"lints_that_disabled"`
}

// ComplexityResult is the payload of the complexity analysis.
type ComplexityResult struct {
	Average     float64        `json:"avg_cc"`
	PerFunction map[string]int `json:"method_wise_cc"`
}

// SecurityFinding is one issue reported by a scanner.
type SecurityFinding struct {
	Severity    string `json:"severity"`
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	File        string `json:"file"`
	Line        int    `json:"line"`
}

// SecurityResult is the payload of the security scan analysis.
type SecurityResult struct {
	Findings      []SecurityFinding `json:"findings"`
	SeverityCount map[string]int    `json:"severity_count"`
	AddedLines    int               `json:"added_lines"`
	IssuesPerLine float64           `json:"issues_per_line"`
	Extraction    string            `json:"extraction"` // "llm" or "mechanical"
}

// Penalty is one named deduction applied by the rating calculator.
type Penalty struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// RatingRecord is the deterministic output of the rating calculator.
type RatingRecord struct {
	Score     int       `json:"score"`
	Total     int       `json:"total"`
	Penalties []Penalty `json:"penalties"`
	Passed    bool      `json:"passed"`
}

// DiscussionState is the remote state of the single rating comment, read once
// before mutation and written back at most once per run.
type DiscussionState struct {
	Found        bool   `json:"found"`
	DiscussionID string `json:"discussion_id,omitempty"`
	NoteID       int    `json:"note_id,omitempty"`
	Body         string `json:"body,omitempty"`
	Resolved     bool   `json:"resolved"`
}
