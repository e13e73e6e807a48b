package diffsource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ratemymr/pkg/models"
)

// headRef is the local name the merge request head is fetched into.
const headRef = "mr-head"

// diffFileName is the on-disk copy of the reconstructed diff inside the
// workspace, for collaborators that want a path instead of the text.
const diffFileName = "artifact.diff"

// ReconstructError reports that every reconstruction method was exhausted.
// It is terminal for the pipeline: an error comment is published and no
// analysis runs.
type ReconstructError struct {
	Attempts []models.DiffAttempt
}

func (e *ReconstructError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Method, a.Error))
	}
	return "all diff reconstruction methods failed: " + strings.Join(parts, "; ")
}

// Reconstructor prepares a throwaway git workspace for one submission and
// rebuilds its unified diff with a layered fallback strategy.
type Reconstructor struct {
	runner Runner
	logger zerolog.Logger
}

// New builds a reconstructor. A nil runner defaults to ExecRunner.
func New(runner Runner, logger zerolog.Logger) *Reconstructor {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Reconstructor{runner: runner, logger: logger}
}

// Prepare creates the run's workspace under root (the OS temp dir when root
// is empty), fetches the merge request head and the target branch, and checks
// out the head commit so the repository override file is readable. The caller
// must remove the returned directory on every exit path.
func (r *Reconstructor) Prepare(ctx context.Context, root, remoteURL string, sub *models.Submission) (string, error) {
	dir, err := os.MkdirTemp(root, "ratemymr-run-")
	if err != nil {
		return "", fmt.Errorf("failed to create workspace: %w", err)
	}

	depth := len(sub.Commits)
	if depth < 100 {
		depth = 100
	}

	steps := [][]string{
		{"init", "--quiet"},
		{"remote", "add", "origin", remoteURL},
		{"fetch", "--quiet", "--depth", fmt.Sprint(depth), "origin",
			fmt.Sprintf("refs/merge-requests/%d/head:%s", sub.MRIID, headRef),
			fmt.Sprintf("refs/heads/%s:%s", sub.TargetBranch, sub.TargetBranch)},
		{"checkout", "--quiet", "--force", headRef},
	}
	for _, args := range steps {
		if _, err := r.runner.Run(ctx, dir, args...); err != nil {
			os.RemoveAll(dir)
			return "", fmt.Errorf("workspace preparation failed: %w", err)
		}
	}

	r.logger.Debug().
		Str("workspace", dir).
		Int("fetch_depth", depth).
		Msg("Workspace prepared")

	return dir, nil
}

// Cleanup removes the run's workspace. Safe to call with an empty path.
func (r *Reconstructor) Cleanup(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		r.logger.Warn().Err(err).Str("workspace", dir).Msg("Could not remove workspace")
	}
}

// Reconstruct rebuilds the submission's unified diff inside a prepared
// workspace. Methods run in strict priority order; the first one returning
// non-empty output wins and the artifact records it. Empty output and command
// error both count as method failure. When every method fails the artifact
// comes back failed, carrying the attempt log, and the error is a
// *ReconstructError.
func (r *Reconstructor) Reconstruct(ctx context.Context, dir string, sub *models.Submission) (models.DiffArtifact, error) {
	methods := []struct {
		name models.DiffMethod
		args []string
	}{
		{models.DiffMethodRange, []string{"diff", "--no-color", fmt.Sprintf("%s...%s", sub.TargetBranch, headRef)}},
		{models.DiffMethodCommitList, commitListArgs(sub)},
		{models.DiffMethodHeadShow, []string{"show", "--no-color", sub.HeadCommit}},
	}

	artifact := models.DiffArtifact{}
	for _, m := range methods {
		if m.args == nil {
			artifact.Attempts = append(artifact.Attempts, models.DiffAttempt{
				Method: m.name,
				Error:  "no commits listed on the submission",
			})
			continue
		}

		out, err := r.runner.Run(ctx, dir, m.args...)
		if err != nil {
			r.logger.Warn().Err(err).Str("method", string(m.name)).Msg("Diff method failed")
			artifact.Attempts = append(artifact.Attempts, models.DiffAttempt{Method: m.name, Error: err.Error()})
			continue
		}
		if strings.TrimSpace(out) == "" {
			r.logger.Warn().Str("method", string(m.name)).Msg("Diff method produced empty output")
			artifact.Attempts = append(artifact.Attempts, models.DiffAttempt{Method: m.name, Error: "empty diff output"})
			continue
		}

		artifact.Text = out
		artifact.Method = m.name
		artifact.Success = true

		path := filepath.Join(dir, diffFileName)
		if err := os.WriteFile(path, []byte(out), 0644); err != nil {
			r.logger.Warn().Err(err).Msg("Could not write diff artifact file")
		} else {
			artifact.Path = path
		}

		r.logger.Info().
			Str("method", string(m.name)).
			Int("bytes", len(out)).
			Msg("Diff reconstructed")
		return artifact, nil
	}

	return artifact, &ReconstructError{Attempts: artifact.Attempts}
}

// commitListArgs builds the commit-list diff from the submission's own
// commits; it handles rebases and force-pushes where the range diff is
// ambiguous. The API returns commits newest first.
func commitListArgs(sub *models.Submission) []string {
	if len(sub.Commits) == 0 {
		return nil
	}
	first := sub.Commits[len(sub.Commits)-1]
	last := sub.Commits[0]
	return []string{"diff", "--no-color", fmt.Sprintf("%s^..%s", first, last)}
}
