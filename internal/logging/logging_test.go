package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ruff-uno/simonini-isms/internal/config"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		verbose bool
		debug   bool
	}{
		{"info json", config.LoggingConfig{Level: "info", Format: "json"}, false, false},
		{"debug console", config.LoggingConfig{Level: "debug", Format: "console"}, false, true},
		{"verbose forces debug", config.LoggingConfig{Level: "error", Format: "json"}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg, tt.verbose)
			require.NoError(t, err)
			assert.Equal(t, tt.debug, logger.Core().Enabled(zapcore.DebugLevel))
		})
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "loud"}, false)
	assert.Error(t, err)
}

func TestNewWriter_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, zapcore.InfoLevel)

	logger.Debug("hidden")
	logger.Info("imported", zap.Int("documents", 3))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "imported", entry["msg"])
	assert.Equal(t, "isms", entry["logger"])
	assert.Equal(t, float64(3), entry["documents"])
}
