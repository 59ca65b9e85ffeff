package logging_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/crmsync/pkg/logging"
)

func restoreGlobals(t *testing.T) {
	t.Helper()
	prevLogger := *logging.Default()
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		logging.SetDefault(prevLogger)
		zerolog.SetGlobalLevel(prevLevel)
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, logging.ParseLevel(tt.in))
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("DEBUG", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("LOG_OUTPUT", "")

	cfg := logging.ConfigFromEnv()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, logging.FormatAuto, cfg.Format)
	assert.Equal(t, "stderr", cfg.Output)

	t.Setenv("DEBUG", "1")
	assert.Equal(t, "debug", logging.ConfigFromEnv().Level)

	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_OUTPUT", "stdout")
	cfg = logging.ConfigFromEnv()
	assert.Equal(t, "warn", cfg.Level)
	assert.Equal(t, logging.FormatJSON, cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
}

func TestNewLoggerFromConfigWritesFile(t *testing.T) {
	restoreGlobals(t)
	path := filepath.Join(t.TempDir(), "sync.log")

	logger := logging.NewLoggerFromConfig(&logging.Config{
		Level:  "info",
		Format: logging.FormatJSON,
		Output: path,
		Fields: map[string]any{"tenant": "acme", "shard": 2},
	})
	logger.Debug().Msg("dropped")
	logger.Info().Int("page", 4).Msg("Page checkpointed")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"page":4`)
	assert.Contains(t, out, `"tenant":"acme"`)
	assert.Contains(t, out, `"shard":2`)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestConfigureReplacesDefault(t *testing.T) {
	restoreGlobals(t)
	path := filepath.Join(t.TempDir(), "default.log")

	logging.Configure(&logging.Config{Level: "warn", Format: logging.FormatJSON, Output: path})
	logging.Info().Msg("quiet")
	logging.Warn().Msg("Remote cooldown")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "quiet")
	assert.Contains(t, string(data), "Remote cooldown")
}

func TestNilConfigUsesDefaults(t *testing.T) {
	restoreGlobals(t)
	t.Setenv("NO_COLOR", "1")
	_ = logging.NewLoggerFromConfig(nil)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
