package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/infra-ci/testtree/descriptor"
	"github.com/infra-ci/testtree/engine"
)

var (
	passColor  = color.New(color.FgGreen)
	failColor  = color.New(color.FgRed)
	skipColor  = color.New(color.FgYellow)
	abortColor = color.New(color.FgYellow)
	dimColor   = color.New(color.Faint)
)

// ConsoleListener streams execution events to a terminal as they happen,
// one line per event, indented by tree depth. When verbose is off only
// terminal events are printed.
type ConsoleListener struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
	started map[string]time.Time
}

// NewConsoleListener creates a console listener writing to out.
func NewConsoleListener(out io.Writer, verbose bool) *ConsoleListener {
	return &ConsoleListener{
		out:     out,
		verbose: verbose,
		started: make(map[string]time.Time),
	}
}

func (c *ConsoleListener) Started(d *descriptor.Descriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started[d.Key()] = time.Now()
	if c.verbose {
		fmt.Fprintf(c.out, "%s%s %s\n", indentFor(d), dimColor.Sprint("▶"), d.DisplayName)
	}
}

func (c *ConsoleListener) Skipped(d *descriptor.Descriptor, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.started, d.Key())
	fmt.Fprintf(c.out, "%s%s %s (%s)\n", indentFor(d), skipColor.Sprint("SKIP"), d.DisplayName, reason)
}

func (c *ConsoleListener) Finished(d *descriptor.Descriptor, result engine.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var duration string
	if start, ok := c.started[d.Key()]; ok {
		duration = dimColor.Sprintf(" (%s)", time.Since(start).Round(time.Millisecond))
		delete(c.started, d.Key())
	}

	switch result.Status {
	case engine.StatusSuccessful:
		if d.Type.IsTest() || c.verbose {
			fmt.Fprintf(c.out, "%s%s %s%s\n", indentFor(d), passColor.Sprint("PASS"), d.DisplayName, duration)
		}
	case engine.StatusAborted:
		fmt.Fprintf(c.out, "%s%s %s%s: %v\n", indentFor(d), abortColor.Sprint("ABORT"), d.DisplayName, duration, result.Primary())
	default:
		fmt.Fprintf(c.out, "%s%s %s%s: %v\n", indentFor(d), failColor.Sprint("FAIL"), d.DisplayName, duration, result.Primary())
		for _, suppressed := range result.Suppressed() {
			fmt.Fprintf(c.out, "%s     %s %v\n", indentFor(d), dimColor.Sprint("also:"), suppressed)
		}
	}
}

func (c *ConsoleListener) ReportingEntryPublished(d *descriptor.Descriptor, entry engine.ReportEntry) {
	if !c.verbose {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range entry {
		fmt.Fprintf(c.out, "%s  %s\n", indentFor(d), dimColor.Sprintf("%s: %s", k, v))
	}
}

func (c *ConsoleListener) FileEntryPublished(d *descriptor.Descriptor, path string, mediaType string) {
	if !c.verbose {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s  %s\n", indentFor(d), dimColor.Sprintf("file: %s (%s)", path, mediaType))
}

// indentFor indents by the node's depth in the id hierarchy, root excluded.
func indentFor(d *descriptor.Descriptor) string {
	depth := d.ID.Length() - 1
	if depth <= 0 {
		return ""
	}
	var indent string
	for i := 0; i < depth; i++ {
		indent += TreeIndent
	}
	return indent
}

var _ engine.Listener = (*ConsoleListener)(nil)
