package plan

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/infra-ci/testtree/engine"
)

// maxReportedOutput caps how much command output is attached to a failure.
const maxReportedOutput = 4096

// CommandNode runs one plan test as a subprocess. It implements the engine
// node protocol: the static skip gate honors the plan's skip annotation, the
// body runs the command with the configured timeout and publishes its
// output as a report entry.
type CommandNode struct {
	engine.DefaultNode

	cfg     TestConfig
	timeout time.Duration
}

// NewCommandNode creates a node for the test config. defaultTimeout applies
// when the test declares none.
func NewCommandNode(cfg TestConfig, defaultTimeout time.Duration) *CommandNode {
	timeout := defaultTimeout
	if cfg.Timeout != nil {
		timeout = time.Duration(*cfg.Timeout)
	}
	return &CommandNode{cfg: cfg, timeout: timeout}
}

func (n *CommandNode) ShouldSkip(params engine.Parameters) (engine.SkipResult, error) {
	if n.cfg.Skip != "" {
		return engine.Skip(n.cfg.Skip), nil
	}
	return engine.DontSkip(), nil
}

func (n *CommandNode) Run(nctx *engine.NodeContext) error {
	ctx := nctx.Context()
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, n.cfg.Command[0], n.cfg.Command[1:]...)
	cmd.Dir = n.cfg.Dir
	cmd.Env = mergedEnv(n.cfg.Env)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	nctx.PublishReportEntry(engine.ReportEntry{
		"command":  strings.Join(n.cfg.Command, " "),
		"duration": duration.String(),
		"output":   truncateOutput(output.String()),
	})

	if err == nil {
		return nil
	}
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("test %q timed out after %s", n.cfg.Name, n.timeout)
	}
	return fmt.Errorf("test %q failed: %w\n%s", n.cfg.Name, err, truncateOutput(output.String()))
}

var _ engine.Node = (*CommandNode)(nil)

// mergedEnv layers the test's env entries over the process environment.
func mergedEnv(extra map[string]string) []string {
	if len(extra) == 0 {
		return nil
	}
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

func truncateOutput(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxReportedOutput {
		return s
	}
	return s[:maxReportedOutput] + "\n... (output truncated)"
}
