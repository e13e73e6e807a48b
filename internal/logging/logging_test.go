package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratemymr/internal/correlation"
)

func TestRunLoggerTagsRequestID(t *testing.T) {
	var buf bytes.Buffer
	id := correlation.ID("ratemymr_1755860521_3f1c9aa04b2d")

	logger := NewRunLogger(&buf, id, zerolog.DebugLevel)
	logger.Info().Str("component", "pipeline").Msg("run started")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ratemymr_1755860521_3f1c9aa04b2d", line["request_id"])
	assert.Equal(t, "run started", line["message"])
	assert.Equal(t, "pipeline", line["component"])
}

func TestRunLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRunLogger(&buf, correlation.New(), zerolog.WarnLevel)

	logger.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("visible")
	assert.NotZero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("WARNING"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("bogus"))
}

func TestOpenRunLogFile(t *testing.T) {
	dir := t.TempDir()
	id := correlation.ID("ratemymr_1_abcdef123456")

	f, err := OpenRunLogFile(dir, id)
	require.NoError(t, err)
	defer f.Close()

	assert.Contains(t, f.Name(), "run_abcdef12")
}
