package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Run("writes json to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "nfe.log")

		logger, err := NewLogger(LoggerConfig{Level: "info", OutputPath: path, Format: "json", Service: "nfe-ingest"})
		require.NoError(t, err)

		logger.Info("invoice accepted")
		logger.Debug("not written")
		require.NoError(t, logger.Sync())

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), `"msg":"invoice accepted"`)
		assert.Contains(t, string(content), `"service":"nfe-ingest"`)
		assert.NotContains(t, string(content), "not written")
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		logger, err := NewLogger(LoggerConfig{Level: "loud", OutputPath: "stderr", Format: "console"})
		require.NoError(t, err)
		assert.False(t, logger.Core().Enabled(-1))
		assert.True(t, logger.Core().Enabled(0))
	})
}
