package metrics

import (
	"github.com/infra-ci/testtree/descriptor"
	"github.com/infra-ci/testtree/engine"
)

// Listener feeds execution events into the Prometheus metrics, labeled with
// the plan and run they belong to.
type Listener struct {
	plan  string
	runID string
}

// NewListener creates a metrics listener for one run.
func NewListener(plan string, runID string) *Listener {
	return &Listener{plan: plan, runID: runID}
}

func (l *Listener) Started(d *descriptor.Descriptor) {}

func (l *Listener) Skipped(d *descriptor.Descriptor, reason string) {
	RecordNode(l.plan, l.runID, d.Type.String(), "skipped")
}

func (l *Listener) Finished(d *descriptor.Descriptor, result engine.Result) {
	RecordNode(l.plan, l.runID, d.Type.String(), string(result.Status))
	if result.Status == engine.StatusFailed {
		RecordErrorDetails("node failed", result.Primary())
	}
}

func (l *Listener) ReportingEntryPublished(d *descriptor.Descriptor, entry engine.ReportEntry) {}

func (l *Listener) FileEntryPublished(d *descriptor.Descriptor, path string, mediaType string) {}

var _ engine.Listener = (*Listener)(nil)
