package app

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/vk/nodepipe/internal/config"
	"github.com/vk/nodepipe/internal/metrics"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	logFile *logFile
	config  *Config
	loader  config.Loader

	metricsRegistry *prometheus.Registry
	metrics         *metrics.Collector
	httpServer      *http.Server
}

// NewApp is the constructor for the main application. It returns an App with
// its own isolated logger and metrics registry. Pipelines are only loaded by
// Run.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader) (*App, error) {
	file, err := openLogFile(cfg.LogFile, cfg.TempRoot)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, outW, file)
	logger.Debug("Logger configured successfully.")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &App{
		outW:            outW,
		logger:          logger,
		logFile:         file,
		config:          cfg,
		loader:          loader,
		metricsRegistry: reg,
		metrics:         metrics.New(reg),
	}, nil
}

// LogFilePath returns the path of the log file, or "" if none was written.
func (a *App) LogFilePath() string {
	return a.logFile.Path()
}

// Close releases the health check server and the log file.
func (a *App) Close() error {
	return errors.Join(a.closeHealthcheckServer(), a.logFile.Close())
}
