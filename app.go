// Package testtree wires the plan loader, the execution engine and the
// reporting stack into a runnable service.
package testtree

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/infra-ci/testtree/engine"
	"github.com/infra-ci/testtree/metrics"
	"github.com/infra-ci/testtree/plan"
	"github.com/infra-ci/testtree/reporting"
	"github.com/infra-ci/testtree/ui"
)

// App runs plans, either once or periodically at the configured interval.
type App struct {
	config    *Config
	version   string
	loader    *plan.Loader
	engine    *engine.Engine
	scheduler RunScheduler

	lastStats atomic.Pointer[reporting.Stats]
}

// New creates the app: it loads the plan file eagerly so configuration
// mistakes surface before the first run.
func New(config *Config, version string) (*App, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating app with config",
		"planFile", config.PlanFile,
		"plan", config.Plan,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"parallel", config.Parallel)

	loader, err := plan.NewLoader(plan.LoaderConfig{
		Log:            config.Log,
		PlanFile:       config.PlanFile,
		DefaultTimeout: config.DefaultTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create plan loader: %w", err)
	}
	if _, err := loader.PlanByID(config.Plan); err != nil {
		return nil, err
	}

	return &App{
		config:    config,
		version:   version,
		loader:    loader,
		engine:    engine.New(engine.Config{Log: config.Log}),
		scheduler: NewDefaultRunScheduler(config.RunInterval, config.RunOnce, config.Log),
	}, nil
}

// Start runs the plan immediately. In run-once mode it returns the outcome:
// nil on success, a TestFailureError when tests failed, a RuntimeError when
// the run broke down. In continuous mode it starts the periodic loop and
// returns; Stop ends the loop.
func (a *App) Start(ctx context.Context) error {
	a.scheduler.RegisterCallback(func() error {
		return a.runPlan(ctx)
	})

	if err := a.scheduler.Start(ctx); err != nil {
		a.config.Log.Error("Runtime error running plan", "error", err)
		return NewRuntimeError(err)
	}

	if a.config.RunOnce {
		a.config.Log.Info("Run completed, exiting (run-once mode)")
		if stats := a.LastStats(); stats != nil && !stats.Passing() {
			return NewTestFailureError(fmt.Sprintf("%d of %d tests failed", stats.Failed, stats.Total))
		}
	}
	return nil
}

// Stop ends the periodic loop and waits for an in-flight run to finish.
func (a *App) Stop(ctx context.Context) error {
	if err := a.scheduler.Stop(); err != nil {
		return err
	}
	if err := a.scheduler.WaitForShutdown(ctx); err != nil {
		return err
	}
	a.config.Log.Info("testtree stopped")
	return nil
}

// LastStats returns the stats of the most recent completed run, or nil.
func (a *App) LastStats() *reporting.Stats {
	return a.lastStats.Load()
}

// runPlan executes one full run of the configured plan and reports it.
func (a *App) runPlan(ctx context.Context) error {
	tree, err := a.loader.BuildTree(a.config.Plan)
	if err != nil {
		return fmt.Errorf("failed to build plan tree: %w", err)
	}

	runID := uuid.New().String()
	collector := reporting.NewCollector()
	listener := engine.MultiListener{
		collector,
		metrics.NewListener(a.config.Plan, runID),
		ui.NewConsoleListener(os.Stdout, a.config.Verbose),
	}

	start := time.Now()
	runErr := a.engine.Run(ctx, engine.Request{
		Tree:     tree,
		Listener: listener,
		Params:   a.engineParams(),
		RunID:    runID,
	})

	stats := collector.Stats()
	a.lastStats.Store(&stats)

	if err := reporting.WriteSummary(os.Stdout, collector, a.config.UseColor); err != nil {
		a.config.Log.Warn("Failed to write run summary", "error", err)
	}

	if a.config.LogDir != "" {
		runDir, err := reporting.WriteRunDirectory(a.config.LogDir, runID, collector)
		if err != nil {
			a.config.Log.Warn("Failed to write run artifacts", "error", err)
		} else {
			a.config.Log.Info("Run artifacts written", "dir", runDir)
		}
	}

	result := "pass"
	if !stats.Passing() || runErr != nil {
		result = "fail"
	}
	metrics.RecordRun(a.config.Plan, runID, result, stats.Total, stats.Failed, time.Since(start))

	if runErr != nil {
		return fmt.Errorf("run aborted: %w", runErr)
	}
	return nil
}

// engineParams translates the app config into engine parameters.
func (a *App) engineParams() engine.Parameters {
	params := engine.Parameters{}
	if a.config.Parallel {
		params[engine.ParamParallelEnabled] = "true"
		params[engine.ParamParallelScope] = a.config.ParallelScope
		if a.config.PoolSize > 0 {
			params[engine.ParamParallelPoolSize] = strconv.Itoa(a.config.PoolSize)
		}
	}
	if a.config.FailureThreshold > 0 {
		params[engine.ParamFailureThreshold] = strconv.FormatInt(a.config.FailureThreshold, 10)
	}
	return params
}
