package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "TESTTREE"

func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	PlanFile = &cli.StringFlag{
		Name:     "plans",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVars("PLANS"),
		Usage:    "Path to plan file (eg. 'plans.yaml')",
	}
	Plan = &cli.StringFlag{
		Name:     "plan",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVars("PLAN"),
		Usage:    "Plan to run (eg. 'smoke')",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: prefixEnvVars("RUN_INTERVAL"),
		Usage:   "Interval between runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	DefaultTimeout = &cli.DurationFlag{
		Name:    "default-timeout",
		Value:   0,
		EnvVars: prefixEnvVars("DEFAULT_TIMEOUT"),
		Usage:   "Default timeout for individual tests; plan files can override it",
	}
	Parallel = &cli.BoolFlag{
		Name:    "parallel",
		Value:   false,
		EnvVars: prefixEnvVars("PARALLEL"),
		Usage:   "Run concurrent-mode nodes on a worker pool",
	}
	ParallelScope = &cli.StringFlag{
		Name:    "parallel-scope",
		Value:   "classes",
		EnvVars: prefixEnvVars("PARALLEL_SCOPE"),
		Usage:   "What runs in parallel: 'classes', 'methods' or 'classes,methods'",
	}
	PoolSize = &cli.IntFlag{
		Name:    "pool-size",
		Value:   0,
		EnvVars: prefixEnvVars("POOL_SIZE"),
		Usage:   "Worker pool size (0 = number of CPUs)",
	}
	FailureThreshold = &cli.Int64Flag{
		Name:    "failure-threshold",
		Value:   0,
		EnvVars: prefixEnvVars("FAILURE_THRESHOLD"),
		Usage:   "Stop the run after this many test failures (0 = unbounded)",
	}
	LogDir = &cli.StringFlag{
		Name:    "log-dir",
		Value:   "",
		EnvVars: prefixEnvVars("LOG_DIR"),
		Usage:   "Directory for per-run artifacts (summary, results.json, failure logs). Empty disables file output.",
	}
	Verbose = &cli.BoolFlag{
		Name:    "verbose",
		Value:   false,
		EnvVars: prefixEnvVars("VERBOSE"),
		Usage:   "Print every execution event, not just terminal ones",
	}
	NoColor = &cli.BoolFlag{
		Name:    "no-color",
		Value:   false,
		EnvVars: prefixEnvVars("NO_COLOR"),
		Usage:   "Disable colored output",
	}
)

var requiredFlags = []cli.Flag{
	PlanFile,
	Plan,
}

var optionalFlags = []cli.Flag{
	RunInterval,
	DefaultTimeout,
	Parallel,
	ParallelScope,
	PoolSize,
	FailureThreshold,
	LogDir,
	Verbose,
	NoColor,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
