package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ratemymr/pkg/models"
)

// CommandScanner delegates the security scan to an external tool. The added
// code is written into a scratch directory, the tool is invoked with that
// directory as its last argument, and its stdout must be a JSON array of
// findings:
//
//	[{"severity": "HIGH", "rule_id": "...", "description": "...",
//	  "file": "...", "line": 12}, ...]
//
// A non-zero exit with findings on stdout is normal scanner behavior and is
// not an error.
type CommandScanner struct {
	command string
	args    []string
}

// NewCommandScanner splits a configured command line into the executable and
// its fixed arguments.
func NewCommandScanner(commandLine string) (*CommandScanner, error) {
	parts := strings.Fields(commandLine)
	if len(parts) == 0 {
		return nil, fmt.Errorf("security scanner command is empty")
	}
	return &CommandScanner{command: parts[0], args: parts[1:]}, nil
}

func (s *CommandScanner) Scan(ctx context.Context, files map[string]string) ([]models.SecurityFinding, error) {
	dir, err := os.MkdirTemp("", "ratemymr-scan-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scan directory: %w", err)
	}
	defer os.RemoveAll(dir)

	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to lay out scan input: %w", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return nil, fmt.Errorf("failed to write scan input: %w", err)
		}
	}

	args := append(append([]string{}, s.args...), dir)
	cmd := exec.CommandContext(ctx, s.command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	var findings []models.SecurityFinding
	if err := json.Unmarshal(stdout.Bytes(), &findings); err != nil {
		if runErr != nil {
			return nil, fmt.Errorf("security scanner failed: %v: %s", runErr, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("security scanner output did not decode: %w", err)
	}
	return findings, nil
}
