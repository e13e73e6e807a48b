package analysis

import (
	"fmt"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"

	"github.com/ratemymr/pkg/models"
)

// parseDiff decodes a unified diff into go-gitdiff's file structures.
func parseDiff(text string) ([]*gitdiff.File, error) {
	files, _, err := gitdiff.Parse(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("failed to parse diff: %w", err)
	}
	return files, nil
}

// computeLOC counts added, removed, and net changed lines across the diff.
func computeLOC(text string) (models.LOCResult, error) {
	files, err := parseDiff(text)
	if err != nil {
		return models.LOCResult{}, err
	}

	var result models.LOCResult
	for _, f := range files {
		if f.IsBinary {
			continue
		}
		for _, frag := range f.TextFragments {
			for _, line := range frag.Lines {
				switch line.Op {
				case gitdiff.OpAdd:
					result.Added++
				case gitdiff.OpDelete:
					result.Removed++
				}
			}
		}
	}
	result.Net = result.Added - result.Removed
	return result, nil
}

// fileName returns the post-change name of a diff file.
func fileName(f *gitdiff.File) string {
	if f.NewName != "" {
		return f.NewName
	}
	return f.OldName
}

// extractAddedCode mechanically rebuilds the newly added code per file:
// stripped '+' lines grouped in file order. Used directly by the security
// scan when LLM-assisted extraction is disabled or fails.
func extractAddedCode(text string) (map[string]string, error) {
	files, err := parseDiff(text)
	if err != nil {
		return nil, err
	}

	added := make(map[string]string)
	for _, f := range files {
		if f.IsBinary || f.IsDelete {
			continue
		}
		var lines []string
		for _, frag := range f.TextFragments {
			for _, line := range frag.Lines {
				if line.Op == gitdiff.OpAdd {
					lines = append(lines, strings.TrimRight(line.Line, "\n"))
				}
			}
		}
		if len(lines) > 0 {
			added[fileName(f)] = strings.Join(lines, "\n") + "\n"
		}
	}
	return added, nil
}

// nullifyMovedLines drops add/remove pairs with identical content from the
// diff text handed to the lint prompt: a line that was only moved is not a
// newly added suppression. The structure of the diff is preserved; only the
// cancelled +/- lines are omitted.
func nullifyMovedLines(text string) string {
	lines := strings.Split(text, "\n")

	removed := make(map[string]int)
	for _, line := range lines {
		if strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---") {
			removed[strings.TrimSpace(line[1:])]++
		}
	}

	// First pass marks which additions cancel a removal.
	cancelledAdd := make([]bool, len(lines))
	cancel := make(map[string]int, len(removed))
	for i, line := range lines {
		if strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++") {
			content := strings.TrimSpace(line[1:])
			if content == "" {
				continue
			}
			if cancel[content] < removed[content] {
				cancel[content]++
				cancelledAdd[i] = true
			}
		}
	}

	kept := make([]string, 0, len(lines))
	dropped := make(map[string]int, len(cancel))
	for i, line := range lines {
		switch {
		case cancelledAdd[i]:
			continue
		case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
			content := strings.TrimSpace(line[1:])
			if content != "" && dropped[content] < cancel[content] {
				dropped[content]++
				continue
			}
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
