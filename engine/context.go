package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/infra-ci/testtree/descriptor"
	"github.com/infra-ci/testtree/uid"
)

// NodeContext is the per-node execution context handed to every lifecycle
// phase. It is exclusively owned by the goroutine currently executing the
// node and must not be retained past the node's terminal event.
type NodeContext struct {
	ctx        context.Context
	descriptor *descriptor.Descriptor
	params     Parameters
	store      *Store
	listener   Listener
	control    TestExecutionControl
}

// Context returns the run context; it is cancelled on force-terminate.
func (n *NodeContext) Context() context.Context {
	return n.ctx
}

// UniqueId returns the id of the node being executed.
func (n *NodeContext) UniqueId() uid.UniqueId {
	return n.descriptor.ID
}

// DisplayName returns the node's display name.
func (n *NodeContext) DisplayName() string {
	return n.descriptor.DisplayName
}

// Tags returns a read-only snapshot of the node's tags.
func (n *NodeContext) Tags() []string {
	return n.descriptor.Tags()
}

// Parameters returns the run's configuration parameter lookup.
func (n *NodeContext) Parameters() Parameters {
	return n.params
}

// Store returns the node's layer of the hierarchical key-value store. Reads
// fall through to ancestor, run-wide and session-wide layers; registered
// close actions run when this node finishes.
func (n *NodeContext) Store() *Store {
	return n.store
}

// Control returns the run's execution control surface.
func (n *NodeContext) Control() TestExecutionControl {
	return n.control
}

// PublishReportEntry forwards an arbitrary key-value map to the listener,
// attributed to this node.
func (n *NodeContext) PublishReportEntry(entry ReportEntry) {
	if len(entry) == 0 {
		return
	}
	n.listener.ReportingEntryPublished(n.descriptor, entry)
}

// PublishFile publishes a file or directory produced by this node. The path
// must exist as a regular file or directory at the moment of publication.
func (n *NodeContext) PublishFile(path string, mediaType string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot publish %q: %w", path, err)
	}
	if !info.Mode().IsRegular() && !info.IsDir() {
		return fmt.Errorf("cannot publish %q: not a regular file or directory", path)
	}
	n.listener.FileEntryPublished(n.descriptor, path, mediaType)
	return nil
}
