package analysis

import (
	"context"
	"fmt"

	"github.com/zricethezav/gitleaks/v8/detect"

	"github.com/ratemymr/pkg/models"
)

// GitleaksScanner runs the embedded gitleaks ruleset over added code. Every
// leaked credential is a high-severity finding.
type GitleaksScanner struct {
	detector *detect.Detector
}

// NewGitleaksScanner builds a scanner with the default gitleaks ruleset.
func NewGitleaksScanner() (*GitleaksScanner, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gitleaks detector: %w", err)
	}
	return &GitleaksScanner{detector: detector}, nil
}

func (s *GitleaksScanner) Scan(ctx context.Context, files map[string]string) ([]models.SecurityFinding, error) {
	var findings []models.SecurityFinding
	for path, content := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, f := range s.detector.Detect(detect.Fragment{Raw: content, FilePath: path}) {
			findings = append(findings, models.SecurityFinding{
				Severity:    SeverityHigh,
				RuleID:      f.RuleID,
				Description: f.Description,
				File:        path,
				Line:        f.StartLine + 1,
			})
		}
	}
	return findings, nil
}
