// Package reporting collects execution events into run records and renders
// end-of-run summaries.
package reporting

import (
	"sync"
	"time"

	"github.com/infra-ci/testtree/descriptor"
	"github.com/infra-ci/testtree/engine"
	"github.com/infra-ci/testtree/uid"
)

// Record is the reported outcome of one node.
type Record struct {
	ID          uid.UniqueId
	DisplayName string
	Type        descriptor.Type
	Status      engine.Status
	Skipped     bool
	SkipReason  string
	Failures    []error
	Duration    time.Duration
}

// Stats aggregates the outcomes of a run's test nodes.
type Stats struct {
	Total    int
	Passed   int
	Failed   int
	Aborted  int
	Skipped  int
	Duration time.Duration
}

// Passing reports whether the run had no test failures.
func (s Stats) Passing() bool {
	return s.Failed == 0
}

// Collector is a listener that records every node's outcome for end-of-run
// reporting. Records are appended in terminal-event order.
type Collector struct {
	mu      sync.Mutex
	started map[string]time.Time
	records []Record
	begun   time.Time
	ended   time.Time
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{started: make(map[string]time.Time)}
}

func (c *Collector) Started(d *descriptor.Descriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if c.begun.IsZero() {
		c.begun = now
	}
	c.started[d.Key()] = now
}

func (c *Collector) Skipped(d *descriptor.Descriptor, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.started, d.Key())
	c.ended = time.Now()
	c.records = append(c.records, Record{
		ID:          d.ID,
		DisplayName: d.DisplayName,
		Type:        d.Type,
		Skipped:     true,
		SkipReason:  reason,
	})
}

func (c *Collector) Finished(d *descriptor.Descriptor, result engine.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ended = time.Now()
	var duration time.Duration
	if start, ok := c.started[d.Key()]; ok {
		duration = c.ended.Sub(start)
		delete(c.started, d.Key())
	}
	c.records = append(c.records, Record{
		ID:          d.ID,
		DisplayName: d.DisplayName,
		Type:        d.Type,
		Status:      result.Status,
		Failures:    result.Failures,
		Duration:    duration,
	})
}

func (c *Collector) ReportingEntryPublished(d *descriptor.Descriptor, entry engine.ReportEntry) {}

func (c *Collector) FileEntryPublished(d *descriptor.Descriptor, path string, mediaType string) {}

// Records returns a snapshot of the recorded outcomes.
func (c *Collector) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	records := make([]Record, len(c.records))
	copy(records, c.records)
	return records
}

// Stats aggregates the recorded test outcomes.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var stats Stats
	for _, r := range c.records {
		if !r.Type.IsTest() {
			continue
		}
		stats.Total++
		switch {
		case r.Skipped:
			stats.Skipped++
		case r.Status == engine.StatusSuccessful:
			stats.Passed++
		case r.Status == engine.StatusAborted:
			stats.Aborted++
		default:
			stats.Failed++
		}
	}
	if !c.begun.IsZero() && !c.ended.IsZero() {
		stats.Duration = c.ended.Sub(c.begun)
	}
	return stats
}

var _ engine.Listener = (*Collector)(nil)
