package reporting

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infra-ci/testtree/descriptor"
	"github.com/infra-ci/testtree/engine"
	"github.com/infra-ci/testtree/uid"
)

func planDescriptor() *descriptor.Descriptor {
	return descriptor.New(uid.Root("plan", "smoke"), "smoke", descriptor.TypeContainer)
}

func testDescriptor(name string) *descriptor.Descriptor {
	return descriptor.New(uid.Root("plan", "smoke").Append("test", name), name, descriptor.TypeTest)
}

func collectSampleRun() *Collector {
	c := NewCollector()
	root := planDescriptor()
	c.Started(root)

	pass := testDescriptor("ping")
	c.Started(pass)
	c.Finished(pass, engine.Successful())

	fail := testDescriptor("migrate")
	c.Started(fail)
	c.Finished(fail, engine.Result{
		Status:   engine.StatusFailed,
		Failures: []error{errors.New("connection refused"), errors.New("teardown leaked")},
	})

	c.Skipped(testDescriptor("optional"), "not supported here")

	abort := testDescriptor("flaky")
	c.Started(abort)
	c.Finished(abort, engine.Result{
		Status:   engine.StatusAborted,
		Failures: []error{engine.Aborted("environment too slow")},
	})

	c.Finished(root, engine.Successful())
	return c
}

func TestCollectorStats(t *testing.T) {
	c := collectSampleRun()
	stats := c.Stats()

	assert.Equal(t, 4, stats.Total, "container nodes are not counted")
	assert.Equal(t, 1, stats.Passed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Aborted)
	assert.False(t, stats.Passing())
}

func TestCollectorRecordsTerminalOrder(t *testing.T) {
	c := collectSampleRun()
	records := c.Records()

	require.Len(t, records, 5)
	assert.Equal(t, "ping", records[0].DisplayName)
	assert.Equal(t, "smoke", records[4].DisplayName, "the container reports after its children")
	assert.Equal(t, "not supported here", records[2].SkipReason)
	require.Len(t, records[1].Failures, 2)
}

func TestWriteSummaryPlain(t *testing.T) {
	c := collectSampleRun()

	var buf strings.Builder
	require.NoError(t, WriteSummary(&buf, c, false))
	out := buf.String()

	assert.NotContains(t, out, "\x1b[", "plain output must carry no ANSI escapes")
	assert.Contains(t, out, "Run Summary")
	assert.Contains(t, out, "4 total: 1 passed, 1 failed, 1 aborted, 1 skipped")
	assert.Contains(t, out, "ping")
	assert.Contains(t, out, "connection refused (+1 suppressed)")
	assert.Contains(t, out, "not supported here")
	assert.NotContains(t, out, "smoke\n", "container nodes stay out of the test table")
}

func TestWriteTreeShape(t *testing.T) {
	c := collectSampleRun()

	var buf strings.Builder
	require.NoError(t, WriteTree(&buf, c, false))
	out := buf.String()

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "PASS smoke"), "the plan renders as the tree root: %q", lines[0])

	assert.Contains(t, out, "├── ")
	assert.Contains(t, out, "└── ")
	assert.Contains(t, out, "FAIL migrate: connection refused")
}

func TestWriteTreeShapePlanIsRoot(t *testing.T) {
	c := collectSampleRun()

	var buf strings.Builder
	require.NoError(t, WriteTree(&buf, c, false))

	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, "ping") {
			assert.True(t, strings.HasPrefix(line, "├── ") || strings.HasPrefix(line, "└── "),
				"tests indent one level under the plan: %q", line)
		}
	}
}
