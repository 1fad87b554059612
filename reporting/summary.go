package reporting

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/acarl005/stripansi"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/infra-ci/testtree/engine"
	"github.com/infra-ci/testtree/ui"
)

var (
	passLabel  = color.New(color.FgGreen).Sprint("PASS")
	failLabel  = color.New(color.FgRed).Sprint("FAIL")
	skipLabel  = color.New(color.FgYellow).Sprint("SKIP")
	abortLabel = color.New(color.FgYellow).Sprint("ABORT")
)

// WriteSummary renders the end-of-run summary: a table of test outcomes
// followed by the aggregate line. With useColor off all ANSI sequences are
// stripped, for plain log files.
func WriteSummary(w io.Writer, c *Collector, useColor bool) error {
	records := c.Records()
	stats := c.Stats()

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Status", "Test", "Duration", "Detail"})
	for _, r := range records {
		if !r.Type.IsTest() {
			continue
		}
		t.AppendRow(table.Row{statusLabel(r), r.DisplayName, r.Duration.Round(durationPrecision), detailFor(r)})
	}

	line := statsLine(stats)
	width := utf8.RuneCountInString(line) + 4
	if width < minSummaryBoxWidth {
		width = minSummaryBoxWidth
	}

	var b strings.Builder
	b.WriteString(ui.BuildBoxHeader("Run Summary", width))
	b.WriteString(ui.BuildBoxLine(line, width))
	b.WriteString(ui.BuildBoxFooter(width))
	b.WriteString(t.Render())
	b.WriteString("\n")

	out := b.String()
	if !useColor {
		out = stripansi.Strip(out)
	}
	_, err := io.WriteString(w, out)
	return err
}

const (
	durationPrecision  = time.Millisecond
	minSummaryBoxWidth = 40
)

func statusLabel(r Record) string {
	switch {
	case r.Skipped:
		return skipLabel
	case r.Status == engine.StatusSuccessful:
		return passLabel
	case r.Status == engine.StatusAborted:
		return abortLabel
	default:
		return failLabel
	}
}

func detailFor(r Record) string {
	if r.Skipped {
		return r.SkipReason
	}
	if len(r.Failures) == 0 {
		return ""
	}
	detail := firstLine(r.Failures[0].Error())
	if len(r.Failures) > 1 {
		detail = fmt.Sprintf("%s (+%d suppressed)", detail, len(r.Failures)-1)
	}
	return detail
}

func statsLine(s Stats) string {
	return fmt.Sprintf("%d total: %d passed, %d failed, %d aborted, %d skipped in %s",
		s.Total, s.Passed, s.Failed, s.Aborted, s.Skipped, s.Duration.Round(durationPrecision))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
