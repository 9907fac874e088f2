package app

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bytesWriter is a bytes.Buffer usable as io.Writer and io.ReaderFrom in tests.
type bytesWriter struct{ bytes.Buffer }

func TestLogFile_LazyAndNonClobbering(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nodepipe.0.log"), []byte("old"), 0o644))

	cfg := &Config{LogLevel: "info", LogFileLevel: "warn", LogFormat: "text"}
	file, err := openLogFile("", dir)
	require.NoError(t, err)
	defer file.Close()
	console := &bytesWriter{}
	logger := newLogger(cfg, console, file)

	logger.Info("Only on the console.")
	assert.Empty(t, file.Path(), "no file until a record reaches the file level")
	assert.NoFileExists(t, filepath.Join(dir, "nodepipe.1.log"))

	logger.Warn("Something is off.", "node", "x")
	require.Equal(t, filepath.Join(dir, "nodepipe.1.log"), file.Path())
	require.NoError(t, file.Close())

	data, err := os.ReadFile(file.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "Something is off.")
	assert.NotContains(t, string(data), "Only on the console.")
	assert.Contains(t, console.String(), "Only on the console.")

	old, err := os.ReadFile(filepath.Join(dir, "nodepipe.0.log"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(old))
}

func TestLogFile_Explicit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "run.log")
	file, err := openLogFile(path, "")
	require.NoError(t, err)
	assert.Equal(t, path, file.Path())
	assert.FileExists(t, path)

	cfg := &Config{LogLevel: "error", LogFileLevel: "debug", LogFormat: "json"}
	console := &bytesWriter{}
	logger := newLogger(cfg, console, file).With("workerID", 1)
	logger.Debug("Details.")
	require.NoError(t, file.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Details.")
	assert.Contains(t, string(data), "workerID=1")
	assert.Empty(t, console.String())
}
