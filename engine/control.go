package engine

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

// UnboundedFailureThreshold disables the failure threshold: the run never
// stops because of accumulated failures.
const UnboundedFailureThreshold = math.MaxInt64

// TestExecutionControl is the control surface exposed to external
// collaborators for steering an in-flight run.
type TestExecutionControl interface {
	// Cancel initiates a graceful stop: running nodes finish, no new node
	// starts.
	Cancel()

	// ForceTerminate requests an abrupt stop: in addition to Cancel
	// semantics, blocked workers are interrupted where possible. Results
	// already collected are kept.
	ForceTerminate()

	// FailureThreshold sets and returns the number of node failures after
	// which the run stops as if Cancel had been called. The value must be
	// positive; UnboundedFailureThreshold disables the mechanism.
	FailureThreshold(n int64) int64
}

// ExecutionControl is the shared mutable control surface for one run. A
// single instance is created at run start, passed by reference to every
// executor worker, and discarded at run end. All operations are safe under
// concurrent invocation.
type ExecutionControl struct {
	cancelled        atomic.Bool
	forceTerminated  atomic.Bool
	failureThreshold atomic.Int64
	failureCount     atomic.Int64

	mu        sync.Mutex
	interrupt func()
}

// NewExecutionControl creates a control with an unbounded failure threshold.
func NewExecutionControl() *ExecutionControl {
	c := &ExecutionControl{}
	c.failureThreshold.Store(UnboundedFailureThreshold)
	return c
}

// Cancel sets the cancellation flag. The executor checks it before starting
// any new node; nodes already running are not interrupted.
func (c *ExecutionControl) Cancel() {
	c.cancelled.Store(true)
}

// Cancelled reports whether the run has been cancelled.
func (c *ExecutionControl) Cancelled() bool {
	return c.cancelled.Load()
}

// ForceTerminate cancels the run and additionally interrupts blocked
// workers via the bound interrupt hook. In-flight nodes are best-effort
// marked aborted; finished results are kept.
func (c *ExecutionControl) ForceTerminate() {
	c.forceTerminated.Store(true)
	c.cancelled.Store(true)

	c.mu.Lock()
	interrupt := c.interrupt
	c.mu.Unlock()
	if interrupt != nil {
		interrupt()
	}
}

// ForceTerminated reports whether an abrupt stop was requested.
func (c *ExecutionControl) ForceTerminated() bool {
	return c.forceTerminated.Load()
}

// FailureThreshold sets and returns the failure threshold. It panics on a
// non-positive value; contract violations fail fast before any state
// mutation.
func (c *ExecutionControl) FailureThreshold(n int64) int64 {
	if n <= 0 {
		panic(fmt.Errorf("failure threshold must be positive, got %d", n))
	}
	c.failureThreshold.Store(n)
	return n
}

// RegisterFailure atomically increments the failure counter and cancels the
// run once the counter reaches the threshold. It returns the new count.
func (c *ExecutionControl) RegisterFailure() int64 {
	count := c.failureCount.Add(1)
	if count >= c.failureThreshold.Load() {
		c.Cancel()
	}
	return count
}

// FailureCount returns the number of node failures registered so far.
func (c *ExecutionControl) FailureCount() int64 {
	return c.failureCount.Load()
}

// bindInterrupt installs the hook ForceTerminate uses to unblock workers.
// The engine binds the run context's cancel function here at run start.
func (c *ExecutionControl) bindInterrupt(interrupt func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interrupt = interrupt
}

var _ TestExecutionControl = (*ExecutionControl)(nil)
