package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerHonorsConfiguredPath(t *testing.T) {
	dir := t.TempDir()
	viper.Set("logging.path", dir)
	viper.Set("logging.output", "file")
	viper.Set("logging.level", "debug")
	t.Cleanup(func() {
		viper.Set("logging.path", "")
		viper.Set("logging.output", "")
		viper.Set("logging.level", "")
	})

	logger, err := NewLogger()
	require.NoError(t, err)
	t.Cleanup(func() { logger.Close() })

	require.Equal(t, dir, logger.logDir)

	// The dated log file lands under the configured directory
	dateDir := filepath.Join(dir, logger.started.Format("2006-01-02"))
	entries, err := os.ReadDir(dateDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, ".log", filepath.Ext(entries[0].Name()))
}
