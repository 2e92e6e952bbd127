package logs

import (
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLogger(t *testing.T) {
	flags := log.Flags()
	defer log.SetFlags(flags)

	dir := filepath.Join(t.TempDir(), "cache")
	require.NoError(t, openLogFile(dir))
	log.Print("FilterOverJoin applied")
	CloseLogger()

	data, err := os.ReadFile(filepath.Join(dir, "octoplan.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "FilterOverJoin applied")
	assert.Equal(t, os.Stderr, log.Writer())

	// Closing again is a no-op.
	CloseLogger()
	assert.Nil(t, logFile)
}

func TestFileLoggerReopenTruncates(t *testing.T) {
	flags := log.Flags()
	defer log.SetFlags(flags)
	defer CloseLogger()

	dir := t.TempDir()
	require.NoError(t, openLogFile(dir))
	log.Print("first run")
	require.NoError(t, openLogFile(dir))
	log.Print("second run")
	CloseLogger()

	data, err := os.ReadFile(filepath.Join(dir, "octoplan.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "first run")
	assert.Contains(t, string(data), "second run")
}

func TestFileLoggerUnwritableDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	assert.Error(t, openLogFile(filepath.Join(file, "cache")))
	assert.Nil(t, logFile)
}
