package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel/trace"

	"github.com/infra-ci/testtree/descriptor"
)

// SkipReasonCancelled is the reason attached to nodes that never entered the
// lifecycle because the run was cancelled.
const SkipReasonCancelled = "execution cancelled"

// executor walks a descriptor subtree depth-first and drives every node
// through the lifecycle protocol. One executor serves a whole run; all
// per-node state lives in the node task below.
type executor struct {
	tree     *descriptor.Tree
	listener Listener
	control  *ExecutionControl
	params   Parameters
	locks    *lockRegistry

	// pool is non-nil when parallel execution is enabled; nestedParallel
	// additionally allows concurrent-mode nodes below the top level to use
	// it (the "methods" scope).
	pool           *workerPool
	nestedParallel bool

	log    log.Logger
	tracer trace.Tracer
}

// executeNode runs one descriptor and its subtree. held carries the resource
// keys the ancestor chain has already locked, so a nested declaration of the
// same key does not re-acquire it. yield, when non-nil, releases the caller's
// worker-pool slot and is invoked before blocking on concurrently scheduled
// children so a bounded pool cannot deadlock on nested subtrees.
//
// The returned error is non-nil only for unrecoverable failures, which abort
// the entire run.
func (e *executor) executeNode(ctx context.Context, d *descriptor.Descriptor, parentStore *Store, inherited descriptor.ExecutionMode, held map[string]descriptor.LockMode, yield func()) error {
	// Cancellation is cooperative and checked only here, before a node
	// starts; in-flight nodes are never interrupted mid-phase.
	if e.control.Cancelled() {
		e.skipSubtree(d)
		return nil
	}

	node, err := bindNode(d.Behavior)
	if err != nil {
		e.listener.Started(d)
		e.finish(d, Result{Status: StatusFailed, Failures: []error{err}})
		return nil
	}

	// Phase 1: static skip gate, before any resources are touched.
	skip, err := node.ShouldSkip(e.params)
	if err != nil {
		if IsUnrecoverable(err) {
			e.control.Cancel()
			return err
		}
		e.listener.Started(d)
		e.finish(d, Result{Status: StatusFailed, Failures: []error{err}})
		return nil
	}
	if skip.Skip {
		e.log.Debug("Node skipped", "node", d.DisplayName, "reason", skip.Reason)
		e.listener.Skipped(d, skip.Reason)
		return nil
	}

	e.listener.Started(d)

	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("node %s", d.DisplayName))
	defer span.End()

	// Resource locks span the full lifecycle, phases 2 through 7. Keys the
	// ancestor chain holds are resolved away before acquisition.
	resources := effectiveResources(e.tree, d, held)
	acquired := e.locks.acquire(resources)
	defer acquired.release()

	childHeld := held
	if len(resources) > 0 {
		childHeld = make(map[string]descriptor.LockMode, len(held)+len(resources))
		for key, mode := range held {
			childHeld[key] = mode
		}
		for _, res := range resources {
			childHeld[res.Key] = res.Mode
		}
	}

	collector := NewFailureCollector()
	nctx := &NodeContext{
		ctx:        ctx,
		descriptor: d,
		params:     e.params,
		store:      NewStore(parentStore),
		listener:   e.listener,
		control:    e.control,
	}

	// Phase 2: prepare node-local resources.
	if unrec := collector.Execute(func() error { return node.Prepare(nctx) }); unrec != nil {
		e.finishUnrecoverable(d, collector, unrec)
		return unrec
	}

	// Phase 3: context-aware skip gate, only reachable after a clean prepare.
	if collector.Empty() {
		skip, err := node.ShouldExecute(nctx)
		switch {
		case err != nil && IsUnrecoverable(err):
			e.finishUnrecoverable(d, collector, err)
			return err
		case err != nil:
			_ = collector.Execute(func() error { return err })
		case skip.Skip:
			e.closeSkipped(d, node, nctx)
			e.log.Debug("Node skipped after prepare", "node", d.DisplayName, "reason", skip.Reason)
			e.listener.Skipped(d, skip.Reason)
			return nil
		}
	}

	// Phase 4: before hooks. A failure here skips the body but not the
	// cleanup-style phases below.
	if collector.Empty() {
		if unrec := collector.Execute(func() error { return node.Before(nctx) }); unrec != nil {
			e.finishUnrecoverable(d, collector, unrec)
			return unrec
		}
	}

	// Phase 5: the body. Test nodes run their own body; container nodes
	// recursively drive the executor over their children.
	if collector.Empty() && d.Type.IsTest() {
		if unrec := collector.Execute(func() error { return node.Run(nctx) }); unrec != nil {
			e.finishUnrecoverable(d, collector, unrec)
			return unrec
		}
	}
	if collector.Empty() && d.Type.IsContainer() {
		if err := e.executeChildren(ctx, d, nctx.store, resolveMode(d.Mode, inherited), childHeld, yield); err != nil {
			e.finishUnrecoverable(d, collector, err)
			return err
		}
	}

	// Phase 6: after hooks, always attempted; failures join the chain as
	// suppressed.
	if unrec := collector.Execute(func() error { return node.After(nctx) }); unrec != nil {
		e.finishUnrecoverable(d, collector, unrec)
		return unrec
	}

	// Final teardown: node cleanup, then the store layer's close actions.
	if unrec := collector.Execute(func() error { return node.Cleanup(nctx) }); unrec != nil {
		e.finishUnrecoverable(d, collector, unrec)
		return unrec
	}
	_ = collector.Execute(nctx.store.Close)

	// Phase 7: exactly one terminal event.
	e.finish(d, collector.Result())
	return nil
}

// executeChildren runs a container's children, honoring per-child execution
// modes. Sequential children start in declared order on the current
// goroutine; concurrent children are scheduled onto the worker pool and
// awaited before the container's after hooks run.
func (e *executor) executeChildren(ctx context.Context, d *descriptor.Descriptor, parentStore *Store, inherited descriptor.ExecutionMode, held map[string]descriptor.LockMode, yield func()) error {
	children := e.tree.Children(d.ID)
	if len(children) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var unrec error

	recordUnrecoverable := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if unrec == nil {
			unrec = err
		}
	}

	scheduled := false
	for _, child := range children {
		mode := resolveMode(child.Mode, inherited)

		if mode == descriptor.ModeConcurrent && e.pool != nil && e.nestedParallel {
			scheduled = true
			wg.Add(1)
			go func(child *descriptor.Descriptor) {
				defer wg.Done()
				release := e.pool.acquire(ctx)
				var once sync.Once
				releaseOnce := func() { once.Do(release) }
				defer releaseOnce()
				if err := e.executeNode(ctx, child, parentStore, mode, held, releaseOnce); err != nil {
					recordUnrecoverable(err)
				}
			}(child)
			continue
		}

		if err := e.executeNode(ctx, child, parentStore, mode, held, yield); err != nil {
			recordUnrecoverable(err)
			break
		}
	}

	if scheduled {
		// Give the slot back before blocking so a bounded pool can make
		// progress on the children we just scheduled.
		if yield != nil {
			yield()
		}
		wg.Wait()
	}

	mu.Lock()
	defer mu.Unlock()
	return unrec
}

// skipSubtree reports the node and its entire unvisited subtree as skipped
// due to cancellation, without entering the lifecycle protocol.
func (e *executor) skipSubtree(d *descriptor.Descriptor) {
	e.tree.Walk(d.ID, func(n *descriptor.Descriptor) bool {
		e.listener.Skipped(n, SkipReasonCancelled)
		return true
	})
}

// finish emits the terminal event and feeds failed results into the failure
// threshold accounting.
func (e *executor) finish(d *descriptor.Descriptor, result Result) {
	e.listener.Finished(d, result)
	if result.Status == StatusFailed {
		count := e.control.RegisterFailure()
		e.log.Debug("Node failed", "node", d.DisplayName, "failure_count", count, "error", result.Primary())
	}
}

// finishUnrecoverable still emits a terminal event for the node that hit an
// unrecoverable error, carrying everything collected so far, before the run
// aborts. The failure is not registered against the threshold; the run is
// over regardless. The cooperative cancel flag is flipped so nodes that have
// not started yet take the skip path instead of running to completion.
func (e *executor) finishUnrecoverable(d *descriptor.Descriptor, collector *FailureCollector, unrec error) {
	e.log.Error("Unrecoverable error, aborting run", "node", d.DisplayName, "error", unrec)
	e.control.Cancel()
	failures := append(collector.Failures(), unrec)
	e.listener.Finished(d, Result{Status: StatusFailed, Failures: failures})
}

// closeSkipped tears down the context of a node skipped by the phase-3 gate.
// The node never ran, so teardown failures are logged rather than reported.
func (e *executor) closeSkipped(d *descriptor.Descriptor, node Node, nctx *NodeContext) {
	c := NewFailureCollector()
	_ = c.Execute(func() error { return node.Cleanup(nctx) })
	_ = c.Execute(nctx.store.Close)
	for _, err := range c.Failures() {
		e.log.Warn("Teardown failure after context-aware skip", "node", d.DisplayName, "error", err)
	}
}

// resolveMode applies mode inheritance: a node without a declared mode takes
// the mode of its enclosing container.
func resolveMode(declared, inherited descriptor.ExecutionMode) descriptor.ExecutionMode {
	if declared == descriptor.ModeInherit {
		return inherited
	}
	return declared
}

// workerPool is a bounded slot pool for concurrent-mode subtrees. Acquire
// blocks until a slot frees up or the run context is cancelled; in the
// latter case the caller proceeds inline and the cancellation check inside
// executeNode turns the subtree into skip events.
type workerPool struct {
	slots chan struct{}
}

func newWorkerPool(size int) *workerPool {
	return &workerPool{slots: make(chan struct{}, size)}
}

// acquire claims a slot and returns its release function. The release
// function must be called exactly once.
func (p *workerPool) acquire(ctx context.Context) func() {
	select {
	case p.slots <- struct{}{}:
		return func() { <-p.slots }
	case <-ctx.Done():
		return func() {}
	}
}
