package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/l0p7/worryhero/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNewAcceptsKnownLevelsAndFormats(t *testing.T) {
	for _, level := range []string{"", "debug", "info", "warn", "error"} {
		for _, format := range []string{"", "json", "text"} {
			logger, err := New(config.LoggingConfig{Level: level, Format: format})
			require.NoError(t, err)
			require.NotNil(t, logger)
		}
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "verbose"})
	require.Error(t, err)
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(config.LoggingConfig{Format: "binary"})
	require.Error(t, err)
}

func TestNewWithWriterTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info("asset cache loaded")
	logger.Debug("suppressed below level")

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record))
	require.Equal(t, "worryhero", record["component"])
	require.Equal(t, "asset cache loaded", record["msg"])
}

func TestNewMatchesLevelCaseInsensitively(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(config.LoggingConfig{Level: "WARN", Format: "Text"}, &buf)
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("batch degraded")
	require.NotContains(t, buf.String(), "dropped")
	require.Contains(t, buf.String(), "batch degraded")
	require.Contains(t, buf.String(), "component=worryhero")
}
