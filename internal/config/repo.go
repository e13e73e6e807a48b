package config

import (
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

// MergeRepoOverride layers a repository's own override document over base.
// A malformed document never fails the run: it logs a warning and returns
// base unchanged.
func MergeRepoOverride(base RatingConfig, raw []byte, logger zerolog.Logger) RatingConfig {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(raw), toml.Parser()); err != nil {
		logger.Warn().Err(err).Msg("Malformed repository override, using defaults")
		return base
	}

	merged := base
	if err := k.Unmarshal("", &merged); err != nil {
		logger.Warn().Err(err).Msg("Repository override did not unmarshal, using defaults")
		return base
	}

	logger.Debug().
		Strs("keys", k.Keys()).
		Msg("Repository override applied")
	return merged
}

// LoadRepoOverride reads the override document from a prepared workspace
// checkout. A missing file is the normal case and returns base as-is.
func LoadRepoOverride(base RatingConfig, workspaceDir string, logger zerolog.Logger) RatingConfig {
	path := filepath.Join(workspaceDir, OverrideFileName)

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", path).Msg("Could not read repository override")
		}
		return base
	}

	logger.Debug().Str("path", path).Int("bytes", len(raw)).Msg("Repository override found")
	return MergeRepoOverride(base, raw, logger)
}
