package analysis

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ratemymr/internal/config"
	"github.com/ratemymr/internal/llmclient"
	"github.com/ratemymr/pkg/models"
)

// Coordinator runs every enabled analysis kind over one diff artifact,
// isolating failures per analysis. It always returns a complete report; an
// individual failure is captured in its outcome and never aborts siblings.
type Coordinator struct {
	completer  llmclient.Completer
	scanner    Scanner
	logger     zerolog.Logger
	concurrent bool
	warmup     func(context.Context) error
}

// New builds a coordinator. The three AI-backed analyses run sequentially by
// default.
func New(completer llmclient.Completer, scanner Scanner, logger zerolog.Logger) *Coordinator {
	return &Coordinator{completer: completer, scanner: scanner, logger: logger}
}

// WithConcurrentAI fans the AI-backed analyses out in parallel. warmup runs
// once before the fan-out so the session token is acquired before any
// parallel call needs it.
func (c *Coordinator) WithConcurrentAI(warmup func(context.Context) error) *Coordinator {
	c.concurrent = true
	c.warmup = warmup
	return c
}

// Run executes every enabled analysis kind against the artifact and returns
// a report covering each of them exactly once, in report order.
func (c *Coordinator) Run(ctx context.Context, artifact models.DiffArtifact, cfg config.RatingConfig) models.AnalysisReport {
	diff := artifact.Text

	runners := map[string]func() (interface{}, error){
		models.AnalysisSummary:     func() (interface{}, error) { return c.runSummary(ctx, diff) },
		models.AnalysisCodeReview:  func() (interface{}, error) { return c.runReview(ctx, diff) },
		models.AnalysisLintDisable: func() (interface{}, error) { return c.runLintCheck(ctx, diff) },
		models.AnalysisLOC:         func() (interface{}, error) { return computeLOC(diff) },
		models.AnalysisComplexity:  func() (interface{}, error) { return computeComplexity(diff), nil },
		models.AnalysisSecurity:    func() (interface{}, error) { return c.runSecurityScan(ctx, diff, cfg) },
	}
	enabled := map[string]bool{
		models.AnalysisSummary:     cfg.Features.AISummary,
		models.AnalysisCodeReview:  cfg.Features.AICodeReview,
		models.AnalysisLintDisable: cfg.Features.LintDisableCheck,
		models.AnalysisLOC:         cfg.Features.LOCAnalysis,
		models.AnalysisComplexity:  cfg.Features.CyclomaticComplexity,
		models.AnalysisSecurity:    cfg.Features.SecurityScan,
	}
	aiBacked := map[string]bool{
		models.AnalysisSummary:     true,
		models.AnalysisCodeReview:  true,
		models.AnalysisLintDisable: true,
	}

	outcomes := make(map[string]models.AnalysisOutcome, len(runners))
	var mu sync.Mutex
	record := func(o models.AnalysisOutcome) {
		mu.Lock()
		outcomes[o.Kind] = o
		mu.Unlock()
	}

	var aiKinds, localKinds []string
	for _, kind := range models.AnalysisKinds {
		if !enabled[kind] {
			c.logger.Debug().Str("analysis", kind).Msg("Analysis disabled, skipping")
			record(models.AnalysisOutcome{Kind: kind, Skipped: true})
			continue
		}
		if aiBacked[kind] {
			aiKinds = append(aiKinds, kind)
		} else {
			localKinds = append(localKinds, kind)
		}
	}

	if c.concurrent && len(aiKinds) > 1 {
		// Acquire the session token once; the fan-out must never race the
		// first acquisition.
		if c.warmup != nil {
			if err := c.warmup(ctx); err != nil {
				c.logger.Warn().Err(err).Msg("Token warmup failed, AI calls will retry individually")
			}
		}
		var wg sync.WaitGroup
		for _, kind := range aiKinds {
			wg.Add(1)
			go func(kind string) {
				defer wg.Done()
				record(c.runOne(kind, runners[kind]))
			}(kind)
		}
		wg.Wait()
	} else {
		for _, kind := range aiKinds {
			record(c.runOne(kind, runners[kind]))
		}
	}

	for _, kind := range localKinds {
		record(c.runOne(kind, runners[kind]))
	}

	report := models.AnalysisReport{DiffMethod: artifact.Method}
	for _, kind := range models.AnalysisKinds {
		report.Add(outcomes[kind])
	}
	return report
}

// runOne executes a single analysis, converting both errors and panics into
// a failed outcome.
func (c *Coordinator) runOne(kind string, fn func() (interface{}, error)) (outcome models.AnalysisOutcome) {
	outcome = models.AnalysisOutcome{Kind: kind}

	defer func() {
		if r := recover(); r != nil {
			outcome = models.AnalysisOutcome{Kind: kind, Error: fmt.Sprintf("analysis panicked: %v", r)}
			c.logger.Error().Str("analysis", kind).Interface("panic", r).Msg("Analysis panicked")
		}
	}()

	payload, err := fn()
	if err != nil {
		c.logger.Warn().Err(err).Str("analysis", kind).Msg("Analysis failed")
		outcome.Error = err.Error()
		return outcome
	}

	c.logger.Info().Str("analysis", kind).Msg("Analysis completed")
	outcome.Success = true
	outcome.Payload = payload
	return outcome
}

func (c *Coordinator) runSummary(ctx context.Context, diff string) (models.SummaryResult, error) {
	resp, err := c.completer.Complete(ctx, summaryRequest(diff))
	if err != nil {
		return models.SummaryResult{}, err
	}
	text := resp.Text()
	if text == "" {
		return models.SummaryResult{}, fmt.Errorf("summary response contained no text")
	}
	return models.SummaryResult{Text: text}, nil
}

func (c *Coordinator) runReview(ctx context.Context, diff string) (models.ReviewResult, error) {
	resp, err := c.completer.Complete(ctx, reviewRequest(diff))
	if err != nil {
		return models.ReviewResult{}, err
	}
	text := resp.Text()
	if text == "" {
		return models.ReviewResult{}, fmt.Errorf("review response contained no text")
	}
	return models.ReviewResult{Text: text}, nil
}

func (c *Coordinator) runLintCheck(ctx context.Context, diff string) (models.LintResult, error) {
	resp, err := c.completer.Complete(ctx, lintRequest(nullifyMovedLines(diff)))
	if err != nil {
		return models.LintResult{}, err
	}
	return parseLintResult(resp.Text())
}

// runSecurityScan scans the newly added code. Extraction is LLM-assisted
// when enabled and the adapter answers; otherwise (and on any extraction
// failure) it falls back to the mechanical per-file added lines, so the scan
// never depends on adapter availability.
func (c *Coordinator) runSecurityScan(ctx context.Context, diff string, cfg config.RatingConfig) (models.SecurityResult, error) {
	loc, err := computeLOC(diff)
	if err != nil {
		return models.SecurityResult{}, err
	}

	files, err := extractAddedCode(diff)
	if err != nil {
		return models.SecurityResult{}, err
	}
	extraction := "mechanical"

	if cfg.Security.LLMExtraction {
		resp, err := c.completer.Complete(ctx, extractionRequest(diff))
		if err != nil {
			c.logger.Warn().Err(err).Msg("LLM extraction failed, using mechanical added-code extraction")
		} else if text := resp.Text(); text != "" {
			files = map[string]string{"added_code": text}
			extraction = "llm"
		}
	}

	if len(files) == 0 {
		return buildSecurityResult(nil, loc.Added, extraction), nil
	}

	findings, err := c.scanner.Scan(ctx, files)
	if err != nil {
		return models.SecurityResult{}, fmt.Errorf("security scan failed: %w", err)
	}
	return buildSecurityResult(findings, loc.Added, extraction), nil
}
