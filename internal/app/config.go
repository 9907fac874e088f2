package app

import (
	"errors"
	"fmt"
	"os"
	"slices"
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	PipelinePaths []string // hcl files or directories
	TempRoot      string

	LogFormat string
	LogLevel  string
	// LogFile is written at LogFileLevel and above. When empty, a
	// nodepipe.<n>.log file is created in TempRoot on the first such record.
	LogFile      string
	LogFileLevel string

	WorkerCount     int
	KeepFailedTemp  bool
	Force           bool // run nodes even when their outputs are up to date
	DryRun          bool
	HealthcheckPort int

	NotifyURL       string
	NotifyNamespace string
	ReportPath      string
}

// NewConfig validates cfg and fills in defaults.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.PipelinePaths) == 0 {
		return nil, errors.New("at least one pipeline path is required")
	}
	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("worker count must be at least 1, got %d", cfg.WorkerCount)
	}
	if cfg.TempRoot == "" {
		cfg.TempRoot = os.TempDir()
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFileLevel == "" {
		cfg.LogFileLevel = "warn"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	for _, level := range []string{cfg.LogLevel, cfg.LogFileLevel} {
		if !slices.Contains(validLogLevels, level) {
			return nil, fmt.Errorf("invalid log level %q: must be one of %v", level, validLogLevels)
		}
	}
	if !slices.Contains(validLogFormats, cfg.LogFormat) {
		return nil, fmt.Errorf("invalid log format %q: must be one of %v", cfg.LogFormat, validLogFormats)
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("invalid healthcheck port %d", cfg.HealthcheckPort)
	}
	if cfg.NotifyNamespace == "" {
		cfg.NotifyNamespace = "/"
	}
	return &cfg, nil
}
