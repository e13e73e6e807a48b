// Package pipeline orchestrates one submission's quality assessment run:
// correlation, platform reads, diff reconstruction, analysis, rating, and
// the single synchronized comment.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/ratemymr/internal/analysis"
	"github.com/ratemymr/internal/config"
	"github.com/ratemymr/internal/correlation"
	"github.com/ratemymr/internal/diffsource"
	"github.com/ratemymr/internal/discussion"
	"github.com/ratemymr/internal/llmclient"
	"github.com/ratemymr/internal/logging"
	"github.com/ratemymr/internal/platform/gitlab"
	"github.com/ratemymr/internal/rating"
	"github.com/ratemymr/internal/report"
	"github.com/ratemymr/internal/retry"
	"github.com/ratemymr/pkg/models"
)

// Params is the dispatcher-to-pipeline contract: which submission to assess
// and under which correlation identifier.
type Params struct {
	ProjectID     string
	MRIID         int
	CorrelationID string
}

// Result summarizes a completed run.
type Result struct {
	CorrelationID string
	Rating        models.RatingRecord
	Report        models.AnalysisReport
}

// Run executes one full assessment. It owns the run lifecycle: the workspace
// is removed on every exit path, and a terminal diff failure still publishes
// an error comment before returning. Nothing here outlives the call except
// the one remote comment.
func Run(ctx context.Context, cfg *config.Config, params Params, logSink io.Writer) (*Result, error) {
	id := correlation.FromString(params.CorrelationID)
	logger := logging.NewRunLogger(logSink, id, logging.ParseLevel(cfg.Log.Level))

	if cfg.Log.Dir != "" {
		f, err := logging.OpenRunLogFile(cfg.Log.Dir, id)
		if err != nil {
			logger.Warn().Err(err).Msg("Could not open run log file, logging to sink only")
		} else {
			defer f.Close()
			logger = logging.NewRunLogger(zerolog.MultiLevelWriter(logSink, f), id, logging.ParseLevel(cfg.Log.Level))
		}
	}

	logger.Info().
		Str("project", params.ProjectID).
		Int("mr_iid", params.MRIID).
		Msg("Pipeline run starting")

	client, err := gitlab.NewClient(gitlab.Config{URL: cfg.Platform.URL, Token: cfg.Platform.Token}, id.String(), logger)
	if err != nil {
		logger.Error().Err(err).Msg("Platform client construction failed")
		return nil, err
	}

	sub, err := client.FetchSubmission(ctx, params.ProjectID, params.MRIID)
	if err != nil {
		// Without submission metadata there is nowhere to publish an error
		// comment; the failure is terminal and fully logged.
		logger.Error().Err(err).Msg("Could not load submission context")
		return nil, err
	}

	sync := discussion.New(client.HTTP(), report.Marker, logger)

	recon := diffsource.New(nil, logger)
	workspace, err := recon.Prepare(ctx, cfg.Workspace.Root, client.CloneURLForSubmission(sub), sub)
	if err != nil {
		logger.Error().Err(err).Msg("Workspace preparation failed")
		publishError(ctx, sync, sub, []models.DiffAttempt{{Method: "workspace", Error: err.Error()}}, logger)
		return nil, err
	}
	defer recon.Cleanup(workspace)

	ratingCfg := config.LoadRepoOverride(cfg.RatingConfig, workspace, logger)

	artifact, err := recon.Reconstruct(ctx, workspace, sub)
	if err != nil {
		var rerr *diffsource.ReconstructError
		if errors.As(err, &rerr) {
			publishError(ctx, sync, sub, rerr.Attempts, logger)
		}
		logger.Error().Err(err).Msg("Diff reconstruction exhausted, aborting before analysis")
		return nil, err
	}

	completer := llmclient.New(llmclient.Config{
		CompletionURL:    cfg.AI.CompletionURL,
		IntermediaryHost: cfg.AI.IntermediaryHost,
		Timeout:          time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
		Retry: retry.Config{
			MaxAttempts: cfg.AI.MaxAttempts,
			BaseDelay:   2 * time.Second,
			MaxDelay:    30 * time.Second,
			Multiplier:  2.0,
		},
	}, sub, logger)

	scanner, err := buildScanner(ratingCfg)
	if err != nil {
		logger.Error().Err(err).Msg("Security scanner construction failed")
		return nil, err
	}

	coordinator := analysis.New(completer, scanner, logger)
	if cfg.AI.Concurrent {
		coordinator = coordinator.WithConcurrentAI(completer.EnsureToken)
	}

	analysisReport := coordinator.Run(ctx, artifact, ratingCfg)
	record := rating.Calculate(analysisReport, ratingCfg)

	logger.Info().
		Int("score", record.Score).
		Int("total", record.Total).
		Bool("passed", record.Passed).
		Str("diff_method", string(artifact.Method)).
		Msg("Rating computed")

	body := report.Render(analysisReport, record, ratingCfg)
	if err := sync.Publish(ctx, sub, body, !record.Passed); err != nil {
		return nil, fmt.Errorf("rating computed but comment publication failed: %w", err)
	}

	logger.Info().Msg("Pipeline run complete, comment synchronized")
	return &Result{
		CorrelationID: id.String(),
		Rating:        record,
		Report:        analysisReport,
	}, nil
}

// publishError best-effort publishes the terminal failure comment. Best
// effort, but never silent: a publish failure is logged in full.
func publishError(ctx context.Context, sync *discussion.Synchronizer, sub *models.Submission, attempts []models.DiffAttempt, logger zerolog.Logger) {
	body := report.RenderError(sub, attempts)
	if err := sync.Publish(ctx, sub, body, false); err != nil {
		logger.Error().Err(err).Msg("Could not publish the error comment")
	}
}

func buildScanner(cfg config.RatingConfig) (analysis.Scanner, error) {
	if cfg.Security.Scanner == "" || cfg.Security.Scanner == "gitleaks" {
		return analysis.NewGitleaksScanner()
	}
	return analysis.NewCommandScanner(cfg.Security.Scanner)
}
