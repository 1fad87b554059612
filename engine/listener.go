package engine

import (
	"github.com/infra-ci/testtree/descriptor"
)

// ReportEntry is an arbitrary key-value map published by a node while it
// executes, forwarded verbatim to the listener.
type ReportEntry map[string]string

// Listener receives execution events for every node in a run. Started is
// emitted once per node that passes its skip check; exactly one of Skipped
// or Finished follows as the node's terminal event.
//
// When subtrees execute concurrently, callbacks for different nodes may
// arrive from different goroutines and in no particular order across
// subtrees; implementations must be safe for concurrent use.
type Listener interface {
	Started(d *descriptor.Descriptor)
	Skipped(d *descriptor.Descriptor, reason string)
	Finished(d *descriptor.Descriptor, result Result)
	ReportingEntryPublished(d *descriptor.Descriptor, entry ReportEntry)
	FileEntryPublished(d *descriptor.Descriptor, path string, mediaType string)
}

// NoopListener discards all events.
type NoopListener struct{}

func (NoopListener) Started(d *descriptor.Descriptor)                                 {}
func (NoopListener) Skipped(d *descriptor.Descriptor, reason string)                  {}
func (NoopListener) Finished(d *descriptor.Descriptor, result Result)                 {}
func (NoopListener) ReportingEntryPublished(d *descriptor.Descriptor, e ReportEntry)  {}
func (NoopListener) FileEntryPublished(d *descriptor.Descriptor, path, mediaType string) {}

var _ Listener = NoopListener{}

// FuncListener adapts plain functions to the Listener interface; nil fields
// discard their events.
type FuncListener struct {
	OnStarted                 func(d *descriptor.Descriptor)
	OnSkipped                 func(d *descriptor.Descriptor, reason string)
	OnFinished                func(d *descriptor.Descriptor, result Result)
	OnReportingEntryPublished func(d *descriptor.Descriptor, entry ReportEntry)
	OnFileEntryPublished      func(d *descriptor.Descriptor, path string, mediaType string)
}

func (l *FuncListener) Started(d *descriptor.Descriptor) {
	if l.OnStarted != nil {
		l.OnStarted(d)
	}
}

func (l *FuncListener) Skipped(d *descriptor.Descriptor, reason string) {
	if l.OnSkipped != nil {
		l.OnSkipped(d, reason)
	}
}

func (l *FuncListener) Finished(d *descriptor.Descriptor, result Result) {
	if l.OnFinished != nil {
		l.OnFinished(d, result)
	}
}

func (l *FuncListener) ReportingEntryPublished(d *descriptor.Descriptor, entry ReportEntry) {
	if l.OnReportingEntryPublished != nil {
		l.OnReportingEntryPublished(d, entry)
	}
}

func (l *FuncListener) FileEntryPublished(d *descriptor.Descriptor, path string, mediaType string) {
	if l.OnFileEntryPublished != nil {
		l.OnFileEntryPublished(d, path, mediaType)
	}
}

var _ Listener = (*FuncListener)(nil)

// MultiListener fans every event out to its listeners, in order.
type MultiListener []Listener

func (m MultiListener) Started(d *descriptor.Descriptor) {
	for _, l := range m {
		l.Started(d)
	}
}

func (m MultiListener) Skipped(d *descriptor.Descriptor, reason string) {
	for _, l := range m {
		l.Skipped(d, reason)
	}
}

func (m MultiListener) Finished(d *descriptor.Descriptor, result Result) {
	for _, l := range m {
		l.Finished(d, result)
	}
}

func (m MultiListener) ReportingEntryPublished(d *descriptor.Descriptor, entry ReportEntry) {
	for _, l := range m {
		l.ReportingEntryPublished(d, entry)
	}
}

func (m MultiListener) FileEntryPublished(d *descriptor.Descriptor, path string, mediaType string) {
	for _, l := range m {
		l.FileEntryPublished(d, path, mediaType)
	}
}

var _ Listener = MultiListener(nil)
