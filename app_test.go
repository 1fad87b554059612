package testtree

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestPlanFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestConfig(t *testing.T, planFile, plan string) *Config {
	t.Helper()
	return &Config{
		PlanFile:      planFile,
		Plan:          plan,
		RunOnce:       true,
		ParallelScope: "classes",
		Log:           log.NewLogger(log.DiscardHandler()),
	}
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(nil, "test")
	require.Error(t, err)
}

func TestNewRejectsUnknownPlan(t *testing.T) {
	planFile := writeTestPlanFile(t, `
plans:
  - id: smoke
    tests:
      - name: ping
        command: ["true"]
`)

	_, err := New(newTestConfig(t, planFile, "ghost"), "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestAppRunOnceSuccess(t *testing.T) {
	planFile := writeTestPlanFile(t, `
plans:
  - id: smoke
    tests:
      - name: ping
        command: ["true"]
`)

	app, err := New(newTestConfig(t, planFile, "smoke"), "test")
	require.NoError(t, err)

	require.NoError(t, app.Start(context.Background()))

	stats := app.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Passed)
	assert.True(t, stats.Passing())
}

func TestAppRunOnceReportsTestFailures(t *testing.T) {
	planFile := writeTestPlanFile(t, `
plans:
  - id: smoke
    tests:
      - name: ok
        command: ["true"]
      - name: broken
        command: ["false"]
`)

	app, err := New(newTestConfig(t, planFile, "smoke"), "test")
	require.NoError(t, err)

	err = app.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsTestFailureError(err), "test failures must map to a TestFailureError, got %v", err)

	stats := app.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.Failed)
}

func TestAppRunOnceWritesArtifacts(t *testing.T) {
	planFile := writeTestPlanFile(t, `
plans:
  - id: smoke
    tests:
      - name: ping
        command: ["true"]
`)

	cfg := newTestConfig(t, planFile, "smoke")
	cfg.LogDir = t.TempDir()

	app, err := New(cfg, "test")
	require.NoError(t, err)
	require.NoError(t, app.Start(context.Background()))

	entries, err := os.ReadDir(cfg.LogDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "testrun-")

	_, err = os.Stat(filepath.Join(cfg.LogDir, entries[0].Name(), "summary.log"))
	assert.NoError(t, err)
}

func TestAppStopEndsContinuousMode(t *testing.T) {
	planFile := writeTestPlanFile(t, `
plans:
  - id: smoke
    tests:
      - name: ping
        command: ["true"]
`)

	cfg := newTestConfig(t, planFile, "smoke")
	cfg.RunOnce = false
	cfg.RunInterval = time.Hour

	app, err := New(cfg, "test")
	require.NoError(t, err)
	require.NoError(t, app.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, app.Stop(ctx))
}
