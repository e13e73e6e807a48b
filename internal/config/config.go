package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// FeatureConfig toggles individual analyses on or off.
type FeatureConfig struct {
	AISummary            bool `koanf:"ai_summary"`
	AICodeReview         bool `koanf:"ai_code_review"`
	LOCAnalysis          bool `koanf:"loc_analysis"`
	LintDisableCheck     bool `koanf:"lint_disable_check"`
	CyclomaticComplexity bool `koanf:"cyclomatic_complexity"`
	SecurityScan         bool `koanf:"security_scan"`
}

// RatingConfig holds every per-repository overridable threshold, weight, and
// feature flag. The section names match the override document so the same
// koanf keys parse both the deployment file and a repo's own override.
type RatingConfig struct {
	Features FeatureConfig `koanf:"features"`

	LOC struct {
		MaxLines int `koanf:"max_lines"`
	} `koanf:"loc"`

	Complexity struct {
		MaxAverage float64 `koanf:"max_average"`
	} `koanf:"cyclomatic_complexity"`

	Security struct {
		FailOnHigh       bool    `koanf:"fail_on_high"`
		MaxIssuesPerLine float64 `koanf:"max_issues_per_line"`
		LLMExtraction    bool    `koanf:"llm_extraction"`
		Scanner          string  `koanf:"scanner"` // "gitleaks" or an external command
	} `koanf:"security"`

	Rating struct {
		Total             int `koanf:"total"`
		PassScore         int `koanf:"pass_score"`
		LOCPenalty        int `koanf:"loc_penalty"`
		LintPenalty       int `koanf:"lint_penalty"`
		ComplexityPenalty int `koanf:"complexity_penalty"`
		SecurityPenalty   int `koanf:"security_penalty"`
	} `koanf:"rating"`
}

// Config is the deployment configuration.
type Config struct {
	RatingConfig `koanf:",squash"`

	Platform struct {
		URL   string `koanf:"url"`
		Token string `koanf:"token"`
	} `koanf:"platform"`

	AI struct {
		CompletionURL    string `koanf:"completion_url"`
		IntermediaryHost string `koanf:"intermediary_host"`
		TimeoutSeconds   int    `koanf:"timeout_seconds"`
		MaxAttempts      int    `koanf:"max_attempts"`
		Concurrent       bool   `koanf:"concurrent"`
	} `koanf:"ai"`

	Workspace struct {
		Root string `koanf:"root"` // parent dir for per-run checkouts; empty means the OS temp dir
	} `koanf:"workspace"`

	Server struct {
		ListenAddr    string `koanf:"listen_addr"`
		WebhookSecret string `koanf:"webhook_secret"`
		Workers       int    `koanf:"workers"`
		QueueSize     int    `koanf:"queue_size"`
	} `koanf:"server"`

	Log struct {
		Level string `koanf:"level"`
		Dir   string `koanf:"dir"` // per-run log files when set
	} `koanf:"log"`
}

// OverrideFileName is the per-repository override looked up in the
// submission's source tree.
const OverrideFileName = ".ratemymr.toml"

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"platform.url": "https://gitlab.com",

		"ai.timeout_seconds": 180,
		"ai.max_attempts":    3,
		"ai.concurrent":      false,

		"features.ai_summary":            true,
		"features.ai_code_review":        true,
		"features.loc_analysis":          true,
		"features.lint_disable_check":    true,
		"features.cyclomatic_complexity": true,
		"features.security_scan":         true,

		"loc.max_lines":                     500,
		"cyclomatic_complexity.max_average": 10.0,

		"security.fail_on_high":        true,
		"security.max_issues_per_line": 0.05,
		"security.llm_extraction":      true,
		"security.scanner":             "gitleaks",

		"rating.total":              5,
		"rating.pass_score":         3,
		"rating.loc_penalty":        2,
		"rating.lint_penalty":       1,
		"rating.complexity_penalty": 1,
		"rating.security_penalty":   1,

		"server.listen_addr": ":8844",
		"server.workers":     4,
		"server.queue_size":  64,

		"log.level": "info",
	}
}

// LoadConfig loads the deployment configuration: defaults, then an optional
// TOML file, then RATEMYMR_* environment variables.
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	k.Load(confmap.Provider(defaults(), "."), nil)

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./ratemymr.toml", "/etc/ratemymr/config.toml", "$HOME/.ratemymr.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Double underscore separates sections so keys like loc.max_lines stay
	// reachable: RATEMYMR_LOC__MAX_LINES.
	k.Load(env.Provider("RATEMYMR_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "RATEMYMR_")), "__", ".")
	}), nil)

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// DefaultRatingConfig returns the built-in thresholds used when no deployment
// file and no repo override are present.
func DefaultRatingConfig() RatingConfig {
	var rc RatingConfig
	rc.Features = FeatureConfig{
		AISummary:            true,
		AICodeReview:         true,
		LOCAnalysis:          true,
		LintDisableCheck:     true,
		CyclomaticComplexity: true,
		SecurityScan:         true,
	}
	rc.LOC.MaxLines = 500
	rc.Complexity.MaxAverage = 10.0
	rc.Security.FailOnHigh = true
	rc.Security.MaxIssuesPerLine = 0.05
	rc.Security.LLMExtraction = true
	rc.Security.Scanner = "gitleaks"
	rc.Rating.Total = 5
	rc.Rating.PassScore = 3
	rc.Rating.LOCPenalty = 2
	rc.Rating.LintPenalty = 1
	rc.Rating.ComplexityPenalty = 1
	rc.Rating.SecurityPenalty = 1
	return rc
}

// Validate checks the deployment configuration before any run starts.
func Validate(config *Config) error {
	if config.Platform.URL == "" {
		return fmt.Errorf("platform url is required")
	}

	if config.Platform.Token == "" {
		return fmt.Errorf("platform token is required")
	}

	if config.AI.CompletionURL == "" && config.AI.IntermediaryHost == "" {
		return fmt.Errorf("either ai completion_url or ai intermediary_host is required")
	}

	if config.AI.TimeoutSeconds <= 0 {
		return fmt.Errorf("ai timeout_seconds must be positive")
	}

	if config.AI.MaxAttempts <= 0 {
		return fmt.Errorf("ai max_attempts must be positive")
	}

	if config.Rating.Total <= 0 {
		return fmt.Errorf("rating total must be positive")
	}

	if config.Rating.PassScore > config.Rating.Total {
		return fmt.Errorf("rating pass_score cannot exceed total")
	}

	return nil
}

// InitConfig writes a starter configuration file.
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# ratemymr configuration

[platform]
url = "https://gitlab.example.com"
token = "your-gitlab-token"

[ai]
# Direct mode: completion endpoint taking {"messages": [...]}
completion_url = "http://ai.internal:6006/generate"
# Adapter mode: uncomment to route through the token-issuing intermediary
# intermediary_host = "http://bfa.internal:8000/api"
timeout_seconds = 180
max_attempts = 3

[rating]
total = 5
pass_score = 3

[loc]
max_lines = 500

[server]
listen_addr = ":8844"
webhook_secret = "change-me"
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}
