package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/nodepipe/internal/builder"
	"github.com/vk/nodepipe/internal/ctxlog"
	"github.com/vk/nodepipe/internal/notify"
	"github.com/vk/nodepipe/internal/scheduler"
)

// Run loads, builds and executes the configured pipelines. Node failures are
// reported through the returned result, not the error; the error is reserved
// for problems that prevented the run itself. A dry run returns a nil result.
func (a *App) Run(ctx context.Context) (*scheduler.Result, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	model, err := a.loader.Load(ctx, a.config.PipelinePaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline: %w", err)
	}
	a.logger.Debug("Pipeline loaded and translated into unified model.", "nodes", len(model.Nodes))

	pipeline, err := builder.Build(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("failed to build node graph: %w", err)
	}

	opts := []scheduler.Option{
		scheduler.WithTempRoot(a.config.TempRoot),
		scheduler.WithKeepFailedTemp(a.config.KeepFailedTemp),
		scheduler.WithSkipUpToDate(!a.config.Force),
		scheduler.WithObserver(a.metrics),
	}

	if a.config.DryRun {
		entries, err := scheduler.New(opts...).Plan(pipeline.Roots)
		if err != nil {
			return nil, fmt.Errorf("failed to plan pipeline: %w", err)
		}
		writePlan(a, entries)
		return nil, nil
	}

	if a.config.HealthcheckPort > 0 {
		if err := a.startHealthcheckServer(ctx); err != nil {
			return nil, err
		}
	}

	var reporter *notify.Reporter
	if a.config.NotifyURL != "" {
		reporter, err = notify.Dial(ctx, a.config.NotifyURL, a.config.NotifyNamespace)
		if err != nil {
			return nil, fmt.Errorf("failed to connect progress reporter: %w", err)
		}
		defer reporter.Close()
		opts = append(opts, scheduler.WithObserver(reporter))
	}

	a.logger.Info("🚀 Starting pipeline.", "nodes", len(pipeline.Nodes), "workers", a.config.WorkerCount)
	res, err := scheduler.New(opts...).Run(ctx, pipeline.Roots, a.config.WorkerCount)
	if err != nil {
		return nil, fmt.Errorf("execution failed: %w", err)
	}
	a.logger.Info("🏁 Pipeline finished.",
		"succeeded", res.Succeeded, "failed", res.Failed, "skipped", res.Skipped,
		"duration", res.Duration, "maxConcurrent", res.MaxConcurrent)

	if reporter != nil {
		reporter.Done(ctx, res)
	}
	if a.config.ReportPath != "" {
		if err := writeReport(a.config.ReportPath, res); err != nil {
			return res, err
		}
		a.logger.Info("Report written.", "path", a.config.ReportPath)
	}
	return res, nil
}

func writePlan(a *App, entries []scheduler.PlanEntry) {
	for _, e := range entries {
		status := "run"
		if e.UpToDate {
			status = "up to date"
		}
		deps := make([]string, len(e.Dependencies))
		for i, d := range e.Dependencies {
			deps[i] = d.Description()
		}
		line := fmt.Sprintf("[%s] %s", status, e.Node.Description())
		if len(deps) > 0 {
			line += " <- " + strings.Join(deps, ", ")
		}
		fmt.Fprintln(a.outW, line)
		if r := e.Node.Runnable(); r != nil && !e.Node.IsMeta() {
			fmt.Fprintf(a.outW, "    %s\n", r)
		}
	}
}
