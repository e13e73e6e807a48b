package diffsource

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratemymr/pkg/models"
)

// stubRunner answers each git invocation from a canned table keyed by the
// joined argument string.
type stubRunner struct {
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func (s *stubRunner) Run(_ context.Context, _ string, args ...string) (string, error) {
	key := strings.Join(args, " ")
	s.calls = append(s.calls, key)
	if err, ok := s.errs[key]; ok {
		return "", err
	}
	return s.outputs[key], nil
}

func testSubmission() *models.Submission {
	return &models.Submission{
		ProjectID:    "group/app",
		MRIID:        42,
		TargetBranch: "main",
		HeadCommit:   "cafe42",
		Commits:      []string{"cafe42", "beef01"}, // newest first
	}
}

const sampleDiff = `diff --git a/a.go b/a.go
--- a/a.go
+++ b/a.go
@@ -1 +1,2 @@
 package a
+var x = 1
`

func TestReconstructRangeWins(t *testing.T) {
	runner := &stubRunner{outputs: map[string]string{
		"diff --no-color main...mr-head": sampleDiff,
	}}
	r := New(runner, zerolog.Nop())

	artifact, err := r.Reconstruct(context.Background(), t.TempDir(), testSubmission())
	require.NoError(t, err)

	assert.True(t, artifact.Success)
	assert.Equal(t, models.DiffMethodRange, artifact.Method)
	assert.Equal(t, sampleDiff, artifact.Text)
	assert.Empty(t, artifact.Attempts)
	assert.Len(t, runner.calls, 1)
}

func TestReconstructFallsBackToCommitList(t *testing.T) {
	runner := &stubRunner{
		outputs: map[string]string{
			"diff --no-color beef01^..cafe42": sampleDiff,
		},
		errs: map[string]error{
			"diff --no-color main...mr-head": errors.New("unknown revision main"),
		},
	}
	r := New(runner, zerolog.Nop())

	artifact, err := r.Reconstruct(context.Background(), t.TempDir(), testSubmission())
	require.NoError(t, err)

	assert.Equal(t, models.DiffMethodCommitList, artifact.Method)
	require.Len(t, artifact.Attempts, 1)
	assert.Equal(t, models.DiffMethodRange, artifact.Attempts[0].Method)
}

func TestReconstructEmptyOutputCountsAsFailure(t *testing.T) {
	runner := &stubRunner{outputs: map[string]string{
		"diff --no-color main...mr-head":  "   \n",
		"diff --no-color beef01^..cafe42": "",
		"show --no-color cafe42":          sampleDiff,
	}}
	r := New(runner, zerolog.Nop())

	artifact, err := r.Reconstruct(context.Background(), t.TempDir(), testSubmission())
	require.NoError(t, err)

	assert.Equal(t, models.DiffMethodHeadShow, artifact.Method)
	assert.Len(t, artifact.Attempts, 2)
}

func TestReconstructAllMethodsExhausted(t *testing.T) {
	runner := &stubRunner{errs: map[string]error{
		"diff --no-color main...mr-head":  errors.New("boom"),
		"diff --no-color beef01^..cafe42": errors.New("boom"),
		"show --no-color cafe42":          errors.New("boom"),
	}}
	r := New(runner, zerolog.Nop())

	artifact, err := r.Reconstruct(context.Background(), t.TempDir(), testSubmission())

	require.Error(t, err)
	var rerr *ReconstructError
	require.ErrorAs(t, err, &rerr)
	assert.Len(t, rerr.Attempts, 3)

	assert.False(t, artifact.Success)
	assert.Empty(t, artifact.Text)
	assert.Len(t, artifact.Attempts, 3)
}

func TestReconstructNoCommitsSkipsCommitList(t *testing.T) {
	sub := testSubmission()
	sub.Commits = nil

	runner := &stubRunner{outputs: map[string]string{
		"show --no-color cafe42": sampleDiff,
	}, errs: map[string]error{
		"diff --no-color main...mr-head": errors.New("boom"),
	}}
	r := New(runner, zerolog.Nop())

	artifact, err := r.Reconstruct(context.Background(), t.TempDir(), sub)
	require.NoError(t, err)

	assert.Equal(t, models.DiffMethodHeadShow, artifact.Method)
	// commit-list attempt is recorded even though git was never invoked
	require.Len(t, artifact.Attempts, 2)
	assert.Equal(t, models.DiffMethodCommitList, artifact.Attempts[1].Method)
	assert.Len(t, runner.calls, 2)
}

func TestReconstructWritesArtifactFile(t *testing.T) {
	runner := &stubRunner{outputs: map[string]string{
		"diff --no-color main...mr-head": sampleDiff,
	}}
	r := New(runner, zerolog.Nop())

	dir := t.TempDir()
	artifact, err := r.Reconstruct(context.Background(), dir, testSubmission())
	require.NoError(t, err)
	require.NotEmpty(t, artifact.Path)
	assert.FileExists(t, artifact.Path)
}
