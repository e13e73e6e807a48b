package analysis

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/kaptinlin/jsonrepair"

	"github.com/ratemymr/pkg/models"
)

// lintJSONPattern locates the report object inside the model's free text.
var lintJSONPattern = regexp.MustCompile(`\{[^{}]*"num_lint_disable"[^{}]*\}`)

// parseLintResult extracts the lint report object from a model response.
// Models wrap the JSON in prose and sometimes emit malformed objects, so the
// candidate is repaired before decoding.
func parseLintResult(text string) (models.LintResult, error) {
	candidate := lintJSONPattern.FindString(text)
	if candidate == "" {
		return models.LintResult{}, fmt.Errorf("no lint report object found in response")
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return models.LintResult{}, fmt.Errorf("lint report object could not be repaired: %w", err)
	}

	var result models.LintResult
	if err := json.Unmarshal([]byte(repaired), &result); err != nil {
		return models.LintResult{}, fmt.Errorf("lint report object did not decode: %w", err)
	}
	return result, nil
}
