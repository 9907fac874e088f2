package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, shouldExit, err := Parse([]string{"pipeline.hcl"}, &bytes.Buffer{})
	require.NoError(t, err)
	require.False(t, shouldExit)
	assert.Equal(t, []string{"pipeline.hcl"}, cfg.PipelinePaths)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "warn", cfg.LogFileLevel)
	assert.Positive(t, cfg.WorkerCount)
	assert.NotEmpty(t, cfg.TempRoot)
	assert.False(t, cfg.Force)
}

func TestParse_Flags(t *testing.T) {
	cfg, _, err := Parse([]string{
		"-p", "a.hcl", "-p", "dir",
		"--workers", "3", "--log-level", "DEBUG", "--log-format", "json",
		"--force", "--dry-run", "--keep-failed-temp",
		"--temp-root", "/scratch", "--report", "out.yaml",
		"--notify-url", "http://localhost:3000", "--notify-namespace", "/runs",
	}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.hcl", "dir"}, cfg.PipelinePaths)
	assert.Equal(t, 3, cfg.WorkerCount)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.True(t, cfg.Force)
	assert.True(t, cfg.DryRun)
	assert.True(t, cfg.KeepFailedTemp)
	assert.Equal(t, "/scratch", cfg.TempRoot)
	assert.Equal(t, "out.yaml", cfg.ReportPath)
	assert.Equal(t, "http://localhost:3000", cfg.NotifyURL)
	assert.Equal(t, "/runs", cfg.NotifyNamespace)
}

func TestParse_EnvAndConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "nodepipe.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("workers: 7\nlog-level: warn\npipeline:\n  - from-file.hcl\n"), 0o644))
	t.Setenv("NODEPIPE_LOG_LEVEL", "error")

	cfg, _, err := Parse([]string{"--config", cfgFile}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, []string{"from-file.hcl"}, cfg.PipelinePaths)
	assert.Equal(t, 7, cfg.WorkerCount)
	assert.Equal(t, "error", cfg.LogLevel, "environment wins over the config file")

	cfg, _, err = Parse([]string{"--config", cfgFile, "--workers", "2", "x.hcl"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.WorkerCount, "flags win over the config file")
	assert.Equal(t, []string{"x.hcl"}, cfg.PipelinePaths)
}

func TestParse_HelpAndNoPath(t *testing.T) {
	for _, args := range [][]string{{"-h"}, {}} {
		out := &bytes.Buffer{}
		cfg, shouldExit, err := Parse(args, out)
		require.NoError(t, err)
		assert.True(t, shouldExit)
		assert.Nil(t, cfg)
		assert.Contains(t, out.String(), "Usage:")
	}
}

func TestParse_UsageErrors(t *testing.T) {
	testCases := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"unknown flag", []string{"--nope", "a.hcl"}, "unknown flag: --nope"},
		{"bad level", []string{"--log-level", "loud", "a.hcl"}, "invalid log level"},
		{"bad format", []string{"--log-format", "xml", "a.hcl"}, "invalid log format"},
		{"zero workers", []string{"--workers", "0", "a.hcl"}, "worker count"},
		{"missing config file", []string{"--config", "/does/not/exist.yaml", "a.hcl"}, "reading config file"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Parse(tc.args, &bytes.Buffer{})
			var exitErr *ExitError
			require.True(t, errors.As(err, &exitErr))
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.wantErr)
		})
	}
}
