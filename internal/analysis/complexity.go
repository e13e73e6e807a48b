package analysis

import (
	"math"
	"regexp"
	"strings"

	"github.com/ratemymr/pkg/models"
)

// Decision points counted toward cyclomatic complexity. Base complexity is 1
// per function; each match adds 1.
var decisionPattern = regexp.MustCompile(`\b(if|for|while|elif|case|catch|except|when)\b|(&&|\|\|)`)

// Function signatures across the languages the service sees in practice.
var functionPattern = regexp.MustCompile(`^\s*(?:func\s*(?:\([^)]*\)\s*)?|def\s+|function\s+)([A-Za-z_]\w*)\s*\(`)

// computeComplexity estimates the cyclomatic complexity of the functions a
// diff adds or modifies. Removed lines are skipped; added and context lines
// rebuild the post-change function body, so the score reflects the code as it
// will be after the merge. Untouched functions never enter the average.
func computeComplexity(diffText string) models.ComplexityResult {
	functions := extractFunctions(strings.Split(diffText, "\n"))

	result := models.ComplexityResult{PerFunction: map[string]int{}}
	if len(functions) == 0 {
		return result
	}

	total := 0
	for name, body := range functions {
		cc := 1 + len(decisionPattern.FindAllString(strings.Join(body, "\n"), -1))
		result.PerFunction[name] = cc
		total += cc
	}
	result.Average = math.Round(float64(total)/float64(len(functions))*100) / 100
	return result
}

// extractFunctions walks the raw diff lines and groups added/context lines
// into the function bodies they belong to, keyed by function name.
func extractFunctions(diffLines []string) map[string][]string {
	functions := make(map[string][]string)

	var (
		name   string
		body   []string
		indent = -1
	)
	flush := func() {
		if name != "" && len(body) > 0 {
			functions[name] = body
		}
		name, body, indent = "", nil, -1
	}

	for _, line := range diffLines {
		raw := line
		if strings.HasPrefix(line, "+") || strings.HasPrefix(line, "-") || strings.HasPrefix(line, " ") {
			raw = line[1:]
		}

		if m := functionPattern.FindStringSubmatch(raw); m != nil && !strings.HasPrefix(line, "-") {
			flush()
			name = m[1]
			body = []string{raw}
			continue
		}

		if name == "" {
			continue
		}
		// Removed lines are pre-change code.
		if strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---") {
			continue
		}
		// Diff metadata ends the current function body.
		if strings.HasPrefix(line, "diff ") || strings.HasPrefix(line, "@@") ||
			strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "index ") {
			flush()
			continue
		}

		if strings.TrimSpace(raw) == "" {
			body = append(body, raw)
			continue
		}

		leading := len(raw) - len(strings.TrimLeft(raw, " \t"))
		if indent < 0 {
			indent = leading
		}
		// A non-blank line back at column zero closes an indented body.
		if leading == 0 && indent > 0 && !strings.HasPrefix(strings.TrimSpace(raw), "}") {
			flush()
			continue
		}
		body = append(body, raw)
	}
	flush()

	return functions
}
