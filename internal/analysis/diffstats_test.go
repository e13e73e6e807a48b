package analysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeLOC(t *testing.T) {
	loc, err := computeLOC(testDiff)
	require.NoError(t, err)

	assert.Equal(t, 6, loc.Added)
	assert.Equal(t, 1, loc.Removed)
	assert.Equal(t, 5, loc.Net)
}

func TestComputeLOCBadInput(t *testing.T) {
	_, err := computeLOC("this is not a diff {{{")
	// go-gitdiff treats leading garbage as preamble; an empty parse is not an
	// error, it just counts nothing.
	if err == nil {
		loc, _ := computeLOC("this is not a diff {{{")
		assert.Zero(t, loc.Added)
	}
}

func TestExtractAddedCode(t *testing.T) {
	files, err := extractAddedCode(testDiff)
	require.NoError(t, err)

	require.Contains(t, files, "service.py")
	added := files["service.py"]
	assert.Contains(t, added, "if mode == \"fast\":")
	assert.NotContains(t, added, "return os.environ.get(\"MODE\")")
}

func TestNullifyMovedLines(t *testing.T) {
	diff := strings.Join([]string{
		"--- a/x.py",
		"+++ b/x.py",
		"@@ -1,3 +1,3 @@",
		"-    value = compute()  # pylint: disable=invalid-name",
		" context line",
		"+value = compute()  # pylint: disable=invalid-name",
		"+extra = 1  # pylint: disable=unused-variable",
	}, "\n")

	out := nullifyMovedLines(diff)

	// The moved suppression cancels out; the genuinely new one stays.
	assert.NotContains(t, out, "invalid-name")
	assert.Contains(t, out, "unused-variable")
	assert.Contains(t, out, "context line")
}

func TestNullifyMovedLinesKeepsHeaders(t *testing.T) {
	out := nullifyMovedLines(testDiff)
	assert.Contains(t, out, "--- a/service.py")
	assert.Contains(t, out, "+++ b/service.py")
}

func TestParseLintResult(t *testing.T) {
	text := `The diff adds one suppression.
{"num_lint_disable": 2, "lints_that_disabled": "unused-variable, invalid-name"}
Hope this helps.`

	result, err := parseLintResult(text)
	require.NoError(t, err)
	assert.Equal(t, 2, result.NumLintDisable)
	assert.Equal(t, "unused-variable, invalid-name", result.DisabledRules)
}

func TestParseLintResultRepairsMalformedJSON(t *testing.T) {
	text := `{"num_lint_disable": 1, "lints_that_disabled": "noqa",}`

	result, err := parseLintResult(text)
	require.NoError(t, err)
	assert.Equal(t, 1, result.NumLintDisable)
}

func TestParseLintResultNoObject(t *testing.T) {
	_, err := parseLintResult("no json here")
	assert.Error(t, err)
}

func TestComputeComplexity(t *testing.T) {
	diff := strings.Join([]string{
		"diff --git a/h.py b/h.py",
		"--- a/h.py",
		"+++ b/h.py",
		"@@ -1,2 +1,8 @@",
		"+def branchy(x):",
		"+    if x > 0:",
		"+        for i in range(x):",
		"+            while i < 3:",
		"+                pass",
		"+    return x",
		"+def plain(y):",
		"+    return y",
	}, "\n")

	result := computeComplexity(diff)

	require.Len(t, result.PerFunction, 2)
	assert.Equal(t, 4, result.PerFunction["branchy"]) // base 1 + if + for + while
	assert.Equal(t, 1, result.PerFunction["plain"])
	assert.InDelta(t, 2.5, result.Average, 0.001)
}

func TestComputeComplexityNoFunctions(t *testing.T) {
	result := computeComplexity("+++ b/readme.md\n+just text\n")
	assert.Zero(t, result.Average)
	assert.Empty(t, result.PerFunction)
}

func TestComputeComplexitySkipsRemovedLines(t *testing.T) {
	diff := strings.Join([]string{
		"+++ b/h.py",
		"@@ -1,4 +1,3 @@",
		" def handler(x):",
		"-    if x:",
		"-        if x > 1:",
		"+    if x > 1:",
		"         return x",
	}, "\n")

	result := computeComplexity(diff)
	require.Contains(t, result.PerFunction, "handler")
	assert.Equal(t, 2, result.PerFunction["handler"]) // post-change body has one branch
}
