package testtree

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/infra-ci/testtree/flags"
)

// Config holds the application configuration
type Config struct {
	PlanFile         string        // Path to the plan file
	Plan             string        // Plan to run
	RunInterval      time.Duration // Interval between runs
	RunOnce          bool          // Indicates if the service should exit after one run
	DefaultTimeout   time.Duration // Default timeout for individual tests, can be overridden by plan config
	Parallel         bool          // Whether to run concurrent-mode nodes on a worker pool
	ParallelScope    string        // What runs in parallel: 'classes', 'methods' or both
	PoolSize         int           // Worker pool size (0 = number of CPUs)
	FailureThreshold int64         // Stop the run after this many failures (0 = unbounded)
	LogDir           string        // Directory for per-run artifacts, empty disables file output
	Verbose          bool          // Print every execution event
	UseColor         bool          // Colored console output
	Log              log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, logger log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	planFile := ctx.String(flags.PlanFile.Name)
	if planFile == "" {
		return nil, errors.New("plan file is required")
	}
	plan := ctx.String(flags.Plan.Name)
	if plan == "" {
		return nil, errors.New("plan is required")
	}

	absPlanFile, err := filepath.Abs(planFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for plan file '%s': %w", planFile, err)
	}

	scope := ctx.String(flags.ParallelScope.Name)
	for _, s := range strings.Split(scope, ",") {
		switch strings.TrimSpace(s) {
		case "classes", "methods":
		default:
			return nil, fmt.Errorf("invalid parallel scope %q, must be 'classes', 'methods' or 'classes,methods'", scope)
		}
	}

	threshold := ctx.Int64(flags.FailureThreshold.Name)
	if threshold < 0 {
		return nil, fmt.Errorf("failure threshold must not be negative, got %d", threshold)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	logDir := ctx.String(flags.LogDir.Name)
	if logDir != "" {
		logDir, err = filepath.Abs(logDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for log directory: %w", err)
		}
	}

	return &Config{
		PlanFile:         absPlanFile,
		Plan:             plan,
		RunInterval:      runInterval,
		RunOnce:          runOnce,
		DefaultTimeout:   ctx.Duration(flags.DefaultTimeout.Name),
		Parallel:         ctx.Bool(flags.Parallel.Name),
		ParallelScope:    scope,
		PoolSize:         ctx.Int(flags.PoolSize.Name),
		FailureThreshold: threshold,
		LogDir:           logDir,
		Verbose:          ctx.Bool(flags.Verbose.Name),
		UseColor:         !ctx.Bool(flags.NoColor.Name),
		Log:              logger,
	}, nil
}
