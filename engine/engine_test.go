package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infra-ci/testtree/descriptor"
	"github.com/infra-ci/testtree/uid"
)

type recordedEvent struct {
	kind   string
	name   string
	reason string
	result Result
	entry  ReportEntry
}

// recordingListener captures execution events for assertions. Safe for
// concurrent use since parallel runs emit events from worker goroutines.
type recordingListener struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (l *recordingListener) Started(d *descriptor.Descriptor) {
	l.record(recordedEvent{kind: "started", name: d.DisplayName})
}

func (l *recordingListener) Skipped(d *descriptor.Descriptor, reason string) {
	l.record(recordedEvent{kind: "skipped", name: d.DisplayName, reason: reason})
}

func (l *recordingListener) Finished(d *descriptor.Descriptor, result Result) {
	l.record(recordedEvent{kind: "finished", name: d.DisplayName, result: result})
}

func (l *recordingListener) ReportingEntryPublished(d *descriptor.Descriptor, entry ReportEntry) {
	l.record(recordedEvent{kind: "report", name: d.DisplayName, entry: entry})
}

func (l *recordingListener) FileEntryPublished(d *descriptor.Descriptor, path string, mediaType string) {
	l.record(recordedEvent{kind: "file", name: d.DisplayName, reason: path})
}

func (l *recordingListener) record(ev recordedEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *recordingListener) all() []recordedEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	events := make([]recordedEvent, len(l.events))
	copy(events, l.events)
	return events
}

func (l *recordingListener) find(kind, name string) (recordedEvent, bool) {
	for _, ev := range l.all() {
		if ev.kind == kind && ev.name == name {
			return ev, true
		}
	}
	return recordedEvent{}, false
}

func (l *recordingListener) count(kind, name string) int {
	n := 0
	for _, ev := range l.all() {
		if ev.kind == kind && ev.name == name {
			n++
		}
	}
	return n
}

var _ Listener = (*recordingListener)(nil)

func newTestEngine() *Engine {
	return New(Config{Log: log.NewLogger(log.DiscardHandler())})
}

func newTestTree(t *testing.T) *descriptor.Tree {
	t.Helper()
	root := descriptor.New(uid.Root("engine", "testtree"), "testtree", descriptor.TypeContainer)
	tree, err := descriptor.NewTree(root)
	require.NoError(t, err)
	return tree
}

func addTest(t *testing.T, tree *descriptor.Tree, parent *descriptor.Descriptor, name string, node Node) *descriptor.Descriptor {
	t.Helper()
	d := descriptor.New(parent.ID.Append("test", name), name, descriptor.TypeTest)
	d.Behavior = node
	require.NoError(t, tree.Add(parent.ID, d))
	return d
}

func addContainer(t *testing.T, tree *descriptor.Tree, parent *descriptor.Descriptor, name string, node Node) *descriptor.Descriptor {
	t.Helper()
	d := descriptor.New(parent.ID.Append("container", name), name, descriptor.TypeContainer)
	d.Behavior = node
	require.NoError(t, tree.Add(parent.ID, d))
	return d
}

// phaseRecorder builds a FuncNode that appends each visited phase to the
// shared trace.
type phaseRecorder struct {
	mu    sync.Mutex
	trace []string
}

func (r *phaseRecorder) mark(phase string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trace = append(r.trace, phase)
}

func (r *phaseRecorder) phases() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	trace := make([]string, len(r.trace))
	copy(trace, r.trace)
	return trace
}

func (r *phaseRecorder) node(prefix string) *FuncNode {
	return &FuncNode{
		OnPrepare: func(nctx *NodeContext) error { r.mark(prefix + "prepare"); return nil },
		OnShouldExecute: func(nctx *NodeContext) (SkipResult, error) {
			r.mark(prefix + "shouldExecute")
			return DontSkip(), nil
		},
		OnBefore:  func(nctx *NodeContext) error { r.mark(prefix + "before"); return nil },
		OnRun:     func(nctx *NodeContext) error { r.mark(prefix + "run"); return nil },
		OnAfter:   func(nctx *NodeContext) error { r.mark(prefix + "after"); return nil },
		OnCleanup: func(nctx *NodeContext) error { r.mark(prefix + "cleanup"); return nil },
	}
}

func TestRunLifecyclePhaseOrder(t *testing.T) {
	tree := newTestTree(t)
	rec := &phaseRecorder{}
	addTest(t, tree, tree.Root(), "phases", rec.node(""))

	listener := &recordingListener{}
	err := newTestEngine().Run(context.Background(), Request{Tree: tree, Listener: listener})
	require.NoError(t, err)

	assert.Equal(t, []string{"prepare", "shouldExecute", "before", "run", "after", "cleanup"}, rec.phases())

	finished, ok := listener.find("finished", "phases")
	require.True(t, ok)
	assert.Equal(t, StatusSuccessful, finished.result.Status)
	assert.Equal(t, 1, listener.count("finished", "phases"))
}

func TestRunPrepareFailureSkipsBodyButRunsTeardown(t *testing.T) {
	tree := newTestTree(t)
	prepareErr := errors.New("prepare blew up")
	var visited []string
	addTest(t, tree, tree.Root(), "broken", &FuncNode{
		OnPrepare: func(nctx *NodeContext) error { return prepareErr },
		OnBefore:  func(nctx *NodeContext) error { visited = append(visited, "before"); return nil },
		OnRun:     func(nctx *NodeContext) error { visited = append(visited, "run"); return nil },
		OnAfter:   func(nctx *NodeContext) error { visited = append(visited, "after"); return nil },
		OnCleanup: func(nctx *NodeContext) error { visited = append(visited, "cleanup"); return nil },
	})

	listener := &recordingListener{}
	err := newTestEngine().Run(context.Background(), Request{Tree: tree, Listener: listener})
	require.NoError(t, err)

	assert.Equal(t, []string{"after", "cleanup"}, visited, "before hooks and body must not run after a prepare failure")

	finished, ok := listener.find("finished", "broken")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, finished.result.Status)
	assert.ErrorIs(t, finished.result.Primary(), prepareErr)
}

func TestRunBodyAndAfterFailuresProduceOneResult(t *testing.T) {
	tree := newTestTree(t)
	bodyErr := errors.New("body failed")
	afterErr := errors.New("after hook failed")
	addTest(t, tree, tree.Root(), "double", &FuncNode{
		OnRun:   func(nctx *NodeContext) error { return bodyErr },
		OnAfter: func(nctx *NodeContext) error { return afterErr },
	})

	listener := &recordingListener{}
	err := newTestEngine().Run(context.Background(), Request{Tree: tree, Listener: listener})
	require.NoError(t, err)

	assert.Equal(t, 1, listener.count("finished", "double"))
	finished, _ := listener.find("finished", "double")
	require.Len(t, finished.result.Failures, 2)
	assert.ErrorIs(t, finished.result.Failures[0], bodyErr, "the body failure is primary")
	assert.ErrorIs(t, finished.result.Failures[1], afterErr, "the after-hook failure is suppressed")
}

func TestRunPanicInBodyIsCapturedAsFailure(t *testing.T) {
	tree := newTestTree(t)
	addTest(t, tree, tree.Root(), "panicky", &FuncNode{
		OnRun: func(nctx *NodeContext) error { panic("boom") },
	})

	listener := &recordingListener{}
	err := newTestEngine().Run(context.Background(), Request{Tree: tree, Listener: listener})
	require.NoError(t, err)

	finished, ok := listener.find("finished", "panicky")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, finished.result.Status)
	assert.ErrorContains(t, finished.result.Primary(), "boom")
}

func TestRunStaticSkipEmitsNoStartedEvent(t *testing.T) {
	tree := newTestTree(t)
	addTest(t, tree, tree.Root(), "disabled", &FuncNode{
		OnShouldSkip: func(params Parameters) (SkipResult, error) {
			return Skip("disabled on this platform"), nil
		},
		OnRun: func(nctx *NodeContext) error { t.Error("body must not run"); return nil },
	})

	listener := &recordingListener{}
	err := newTestEngine().Run(context.Background(), Request{Tree: tree, Listener: listener})
	require.NoError(t, err)

	skipped, ok := listener.find("skipped", "disabled")
	require.True(t, ok)
	assert.Equal(t, "disabled on this platform", skipped.reason)
	assert.Equal(t, 0, listener.count("started", "disabled"))
	assert.Equal(t, 0, listener.count("finished", "disabled"))
}

func TestRunContextAwareSkipAfterStart(t *testing.T) {
	tree := newTestTree(t)
	cleanedUp := false
	addTest(t, tree, tree.Root(), "conditional", &FuncNode{
		OnShouldExecute: func(nctx *NodeContext) (SkipResult, error) {
			return Skip("precondition not met"), nil
		},
		OnRun:     func(nctx *NodeContext) error { t.Error("body must not run"); return nil },
		OnCleanup: func(nctx *NodeContext) error { cleanedUp = true; return nil },
	})

	listener := &recordingListener{}
	err := newTestEngine().Run(context.Background(), Request{Tree: tree, Listener: listener})
	require.NoError(t, err)

	assert.Equal(t, 1, listener.count("started", "conditional"))
	skipped, ok := listener.find("skipped", "conditional")
	require.True(t, ok)
	assert.Equal(t, "precondition not met", skipped.reason)
	assert.Equal(t, 0, listener.count("finished", "conditional"))
	assert.True(t, cleanedUp, "teardown still runs for a node skipped after preparation")
}

func TestRunAssumptionAbortYieldsAbortedResult(t *testing.T) {
	tree := newTestTree(t)
	addTest(t, tree, tree.Root(), "assumption", &FuncNode{
		OnRun: func(nctx *NodeContext) error { return Aborted("environment too slow") },
	})

	listener := &recordingListener{}
	err := newTestEngine().Run(context.Background(), Request{Tree: tree, Listener: listener})
	require.NoError(t, err)

	finished, ok := listener.find("finished", "assumption")
	require.True(t, ok)
	assert.Equal(t, StatusAborted, finished.result.Status)
	assert.True(t, IsAbort(finished.result.Primary()))
}

func TestRunFailureThresholdCancelsRemainingNodes(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	addTest(t, tree, root, "passes", &FuncNode{})
	addTest(t, tree, root, "fails", &FuncNode{
		OnRun: func(nctx *NodeContext) error { return errors.New("nope") },
	})
	addTest(t, tree, root, "never-runs", &FuncNode{
		OnRun: func(nctx *NodeContext) error { t.Error("threshold should have cancelled this node"); return nil },
	})

	listener := &recordingListener{}
	err := newTestEngine().Run(context.Background(), Request{
		Tree:     tree,
		Listener: listener,
		Params:   Parameters{ParamFailureThreshold: "1"},
	})
	require.NoError(t, err)

	passed, _ := listener.find("finished", "passes")
	assert.Equal(t, StatusSuccessful, passed.result.Status)
	failed, _ := listener.find("finished", "fails")
	assert.Equal(t, StatusFailed, failed.result.Status)

	skipped, ok := listener.find("skipped", "never-runs")
	require.True(t, ok)
	assert.Equal(t, SkipReasonCancelled, skipped.reason)

	rootFinished, ok := listener.find("finished", "testtree")
	require.True(t, ok)
	assert.Equal(t, StatusSuccessful, rootFinished.result.Status, "a threshold stop is not a run breakdown")
}

func TestRunCancelBeforeStartSkipsEverything(t *testing.T) {
	tree := newTestTree(t)
	container := addContainer(t, tree, tree.Root(), "suite", nil)
	addTest(t, tree, container, "inner", &FuncNode{
		OnRun: func(nctx *NodeContext) error { t.Error("cancelled run must not execute nodes"); return nil },
	})

	control := NewExecutionControl()
	control.Cancel()

	listener := &recordingListener{}
	err := newTestEngine().Run(context.Background(), Request{Tree: tree, Listener: listener, Control: control})
	require.NoError(t, err)

	for _, name := range []string{"suite", "inner"} {
		skipped, ok := listener.find("skipped", name)
		require.True(t, ok, "expected %s to be skipped", name)
		assert.Equal(t, SkipReasonCancelled, skipped.reason)
	}
}

func TestRunUnrecoverableErrorAbortsRun(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	fatal := Unrecoverable(errors.New("out of memory"))
	addTest(t, tree, root, "fatal", &FuncNode{
		OnRun: func(nctx *NodeContext) error { return fatal },
	})
	addTest(t, tree, root, "sibling", &FuncNode{
		OnRun: func(nctx *NodeContext) error { t.Error("run must abort before the sibling"); return nil },
	})

	listener := &recordingListener{}
	err := newTestEngine().Run(context.Background(), Request{Tree: tree, Listener: listener})
	require.Error(t, err)
	assert.True(t, IsUnrecoverable(err))

	finished, ok := listener.find("finished", "fatal")
	require.True(t, ok, "the failing node still gets a terminal event")
	assert.Equal(t, StatusFailed, finished.result.Status)
	assert.Equal(t, 0, listener.count("started", "sibling"))
}

func TestRunStoreHierarchyAndCloseOrder(t *testing.T) {
	tree := newTestTree(t)
	var closed []string
	var mu sync.Mutex
	onClose := func(name string) func() error {
		return func() error {
			mu.Lock()
			defer mu.Unlock()
			closed = append(closed, name)
			return nil
		}
	}

	container := addContainer(t, tree, tree.Root(), "suite", &FuncNode{
		OnPrepare: func(nctx *NodeContext) error {
			nctx.Store().Put("database", "postgres://localhost")
			nctx.Store().OnClose(onClose("suite-first"))
			nctx.Store().OnClose(onClose("suite-second"))
			return nil
		},
	})
	addTest(t, tree, container, "reader", &FuncNode{
		OnRun: func(nctx *NodeContext) error {
			v, ok := nctx.Store().Get("database")
			assert.True(t, ok, "child layers must see ancestor values")
			assert.Equal(t, "postgres://localhost", v)

			_, local := nctx.Store().GetLocal("database")
			assert.False(t, local)

			nctx.Store().OnClose(onClose("reader"))
			return nil
		},
	})

	err := newTestEngine().Run(context.Background(), Request{Tree: tree, Listener: &recordingListener{}})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"reader", "suite-second", "suite-first"}, closed,
		"child layers close before parents, actions in reverse registration order")
}

func TestRunSessionStoreVisibleAcrossRuns(t *testing.T) {
	session := NewStore(nil)
	session.Put("shared", 42)

	tree := newTestTree(t)
	addTest(t, tree, tree.Root(), "reader", &FuncNode{
		OnRun: func(nctx *NodeContext) error {
			v, ok := nctx.Store().Get("shared")
			assert.True(t, ok)
			assert.Equal(t, 42, v)
			return nil
		},
	})

	err := newTestEngine().Run(context.Background(), Request{Tree: tree, Listener: &recordingListener{}, SessionStore: session})
	require.NoError(t, err)

	_, ok := session.Get("shared")
	assert.True(t, ok, "the session layer survives the run")
}

func TestRunQueueSemanticsRemoveFinishedSubtrees(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	suite := addContainer(t, tree, root, "suite", nil)
	addTest(t, tree, suite, "one", &FuncNode{})
	addTest(t, tree, suite, "two", &FuncNode{})
	require.Equal(t, 4, tree.Size())

	err := newTestEngine().Run(context.Background(), Request{Tree: tree, Listener: &recordingListener{}})
	require.NoError(t, err)

	assert.Equal(t, 1, tree.Size(), "finished top-level subtrees are removed from the tree")
	assert.Empty(t, tree.Children(root.ID))
}

func TestRunParallelClassesExecuteConcurrently(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()

	// Each body waits until both have arrived; this only completes if both
	// containers run at the same time.
	bothArrived := make(chan struct{})
	var arrivals atomic.Int32
	barrier := func(nctx *NodeContext) error {
		if arrivals.Add(1) == 2 {
			close(bothArrived)
		}
		select {
		case <-bothArrived:
			return nil
		case <-time.After(5 * time.Second):
			return errors.New("peer never arrived, containers ran sequentially")
		}
	}

	first := addContainer(t, tree, root, "first", nil)
	addTest(t, tree, first, "first-test", &FuncNode{OnRun: barrier})
	second := addContainer(t, tree, root, "second", nil)
	addTest(t, tree, second, "second-test", &FuncNode{OnRun: barrier})

	listener := &recordingListener{}
	err := newTestEngine().Run(context.Background(), Request{
		Tree:     tree,
		Listener: listener,
		Params: Parameters{
			ParamParallelEnabled:  "true",
			ParamParallelScope:    ScopeClasses,
			ParamParallelPoolSize: "2",
		},
	})
	require.NoError(t, err)

	for _, name := range []string{"first-test", "second-test"} {
		finished, ok := listener.find("finished", name)
		require.True(t, ok)
		assert.Equal(t, StatusSuccessful, finished.result.Status)
	}
}

func TestRunParallelWithoutScopeFallsBackToSequential(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()

	var active, overlap atomic.Int32
	body := func(nctx *NodeContext) error {
		if active.Add(1) > 1 {
			overlap.Add(1)
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return nil
	}
	addTest(t, tree, root, "a", &FuncNode{OnRun: body})
	addTest(t, tree, root, "b", &FuncNode{OnRun: body})

	err := newTestEngine().Run(context.Background(), Request{
		Tree:     tree,
		Listener: &recordingListener{},
		Params:   Parameters{ParamParallelEnabled: "true"},
	})
	require.NoError(t, err)
	assert.Zero(t, overlap.Load(), "without a scope the run must stay sequential")
}

func TestRunExclusiveResourceLocksSerialize(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()

	var active, overlap atomic.Int32
	for _, name := range []string{"w1", "w2", "w3"} {
		suite := addContainer(t, tree, root, name, nil)
		d := addTest(t, tree, suite, name+"-test", &FuncNode{
			OnRun: func(nctx *NodeContext) error {
				if active.Add(1) > 1 {
					overlap.Add(1)
				}
				time.Sleep(5 * time.Millisecond)
				active.Add(-1)
				return nil
			},
		})
		d.Resources = []descriptor.Resource{{Key: "db", Mode: descriptor.LockModeExclusive}}
	}

	err := newTestEngine().Run(context.Background(), Request{
		Tree:     tree,
		Listener: &recordingListener{},
		Params: Parameters{
			ParamParallelEnabled:  "true",
			ParamParallelScope:    ScopeClasses,
			ParamParallelPoolSize: "3",
		},
	})
	require.NoError(t, err)
	assert.Zero(t, overlap.Load(), "exclusive holders of the same resource must never overlap")
}

func TestRunNestedResourceDeclarationsDoNotDeadlock(t *testing.T) {
	tree := newTestTree(t)
	suite := addContainer(t, tree, tree.Root(), "suite", nil)
	suite.Resources = []descriptor.Resource{{Key: "db", Mode: descriptor.LockModeExclusive}}
	d := addTest(t, tree, suite, "migrate", &FuncNode{})
	d.Resources = []descriptor.Resource{{Key: "db", Mode: descriptor.LockModeExclusive}}

	listener := &recordingListener{}
	done := make(chan error, 1)
	go func() {
		done <- newTestEngine().Run(context.Background(), Request{Tree: tree, Listener: listener})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run never finished: the child blocked on a lock its container already holds")
	}

	finished, ok := listener.find("finished", "migrate")
	require.True(t, ok)
	assert.Equal(t, StatusSuccessful, finished.result.Status)
}

func TestRunSharedDeclarationPromotedForExclusiveDescendant(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()

	var active, overlap atomic.Int32
	body := func(nctx *NodeContext) error {
		if active.Add(1) > 1 {
			overlap.Add(1)
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return nil
	}
	for _, name := range []string{"a", "b"} {
		suite := addContainer(t, tree, root, name, nil)
		suite.Resources = []descriptor.Resource{{Key: "db", Mode: descriptor.LockModeShared}}
		d := addTest(t, tree, suite, name+"-write", &FuncNode{OnRun: body})
		d.Resources = []descriptor.Resource{{Key: "db", Mode: descriptor.LockModeExclusive}}
	}

	done := make(chan error, 1)
	go func() {
		done <- newTestEngine().Run(context.Background(), Request{
			Tree:     tree,
			Listener: &recordingListener{},
			Params: Parameters{
				ParamParallelEnabled:  "true",
				ParamParallelScope:    ScopeClasses,
				ParamParallelPoolSize: "2",
			},
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run never finished: an exclusive child waited behind its container's shared hold")
	}
	assert.Zero(t, overlap.Load(), "exclusive writers under shared containers must still serialize")
}

func TestRunParallelUnrecoverableErrorCancelsPendingSubtrees(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	control := NewExecutionControl()

	fatal := addContainer(t, tree, root, "fatal", nil)
	addTest(t, tree, fatal, "fatal-test", &FuncNode{
		OnRun: func(nctx *NodeContext) error { return Unrecoverable(errors.New("backend gone")) },
	})

	// The sibling container holds in prepare until the run has been
	// cancelled, so its child deterministically reaches the cancellation
	// check after the abort.
	pending := addContainer(t, tree, root, "pending", &FuncNode{
		OnPrepare: func(nctx *NodeContext) error {
			deadline := time.Now().Add(5 * time.Second)
			for !control.Cancelled() {
				if time.Now().After(deadline) {
					return errors.New("run was never cancelled after the unrecoverable error")
				}
				time.Sleep(time.Millisecond)
			}
			return nil
		},
	})
	addTest(t, tree, pending, "pending-test", &FuncNode{
		OnRun: func(nctx *NodeContext) error { t.Error("sibling subtree must not run after the run aborts"); return nil },
	})

	listener := &recordingListener{}
	err := newTestEngine().Run(context.Background(), Request{
		Tree:     tree,
		Listener: listener,
		Control:  control,
		Params: Parameters{
			ParamParallelEnabled:  "true",
			ParamParallelScope:    ScopeClasses,
			ParamParallelPoolSize: "2",
		},
	})
	require.Error(t, err)
	assert.True(t, IsUnrecoverable(err))

	skipped, ok := listener.find("skipped", "pending-test")
	require.True(t, ok)
	assert.Equal(t, SkipReasonCancelled, skipped.reason)
	assert.Equal(t, 0, listener.count("started", "pending-test"))
}

func TestRunLeavesCallerControlUncancelledAfterSuccess(t *testing.T) {
	tree := newTestTree(t)
	addTest(t, tree, tree.Root(), "healthy", &FuncNode{})

	control := NewExecutionControl()
	err := newTestEngine().Run(context.Background(), Request{Tree: tree, Listener: &recordingListener{}, Control: control})
	require.NoError(t, err)

	// Give the context watcher a chance to observe the completed run.
	time.Sleep(10 * time.Millisecond)
	assert.False(t, control.Cancelled(), "a completed run must not mark the caller's control as cancelled")
	assert.False(t, control.ForceTerminated())
}

func TestRunReportEntryForwardedToListener(t *testing.T) {
	tree := newTestTree(t)
	addTest(t, tree, tree.Root(), "publisher", &FuncNode{
		OnRun: func(nctx *NodeContext) error {
			nctx.PublishReportEntry(ReportEntry{"stdout": "hello"})
			return nil
		},
	})

	listener := &recordingListener{}
	err := newTestEngine().Run(context.Background(), Request{Tree: tree, Listener: listener})
	require.NoError(t, err)

	entry, ok := listener.find("report", "publisher")
	require.True(t, ok)
	assert.Equal(t, "hello", entry.entry["stdout"])
}

func TestRunRequiresTree(t *testing.T) {
	err := newTestEngine().Run(context.Background(), Request{})
	require.Error(t, err)
}

func TestFailureThresholdRejectsNonPositive(t *testing.T) {
	control := NewExecutionControl()
	assert.Panics(t, func() { control.FailureThreshold(0) })
	assert.Panics(t, func() { control.FailureThreshold(-3) })
	assert.Equal(t, int64(5), control.FailureThreshold(5))
}

func TestForceTerminateInterruptsRun(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()

	control := NewExecutionControl()
	release := make(chan struct{})
	addTest(t, tree, root, "slow", &FuncNode{
		OnRun: func(nctx *NodeContext) error {
			control.ForceTerminate()
			close(release)
			select {
			case <-nctx.Context().Done():
				return nctx.Context().Err()
			case <-time.After(5 * time.Second):
				return errors.New("context was not cancelled by force-terminate")
			}
		},
	})
	addTest(t, tree, root, "after-slow", &FuncNode{
		OnRun: func(nctx *NodeContext) error { t.Error("must not start after force-terminate"); return nil },
	})

	listener := &recordingListener{}
	err := newTestEngine().Run(context.Background(), Request{Tree: tree, Listener: listener, Control: control})
	require.NoError(t, err)

	<-release
	finished, ok := listener.find("finished", "slow")
	require.True(t, ok, "the in-flight node still reports a terminal event")
	assert.Equal(t, StatusFailed, finished.result.Status)

	skipped, ok := listener.find("skipped", "after-slow")
	require.True(t, ok)
	assert.Equal(t, SkipReasonCancelled, skipped.reason)
	assert.True(t, control.ForceTerminated())
}
