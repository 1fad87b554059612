package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/infra-ci/testtree/descriptor"
)

// DefaultShutdownTimeout bounds how long a run waits for in-flight workers
// after the top-level loop has finished handing out work.
const DefaultShutdownTimeout = 30 * time.Second

var (
	errForceTerminated = errors.New("run force-terminated")
	errRunComplete     = errors.New("run complete")
)

// Config configures an Engine.
type Config struct {
	Log log.Logger

	// ShutdownTimeout overrides DefaultShutdownTimeout when positive.
	ShutdownTimeout time.Duration
}

// Engine executes descriptor trees. An Engine is stateless across runs and
// safe for concurrent use; all per-run state lives in the Request and the
// executor it spawns.
type Engine struct {
	log             log.Logger
	shutdownTimeout time.Duration
}

// New creates an Engine from the config, applying defaults for anything
// unset.
func New(cfg Config) *Engine {
	logger := cfg.Log
	if logger == nil {
		logger = log.New()
	}
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	return &Engine{log: logger, shutdownTimeout: timeout}
}

// Request describes one run. Tree is required; everything else defaults.
type Request struct {
	// Tree is the fully built descriptor tree to execute. Top-level children
	// of the root are consumed with queue semantics: each is detached before
	// execution and removed from the tree afterwards, so a completed
	// top-level subtree is no longer reachable.
	Tree *descriptor.Tree

	// Listener receives the run's execution events; defaults to NoopListener.
	Listener Listener

	// Control steers the run from outside; a fresh ExecutionControl is
	// created when nil.
	Control *ExecutionControl

	// Params is the run's flat configuration; see the Param* keys.
	Params Parameters

	// SessionStore, when non-nil, becomes the outermost store layer so state
	// can be shared across runs of one session. It is not closed by the run.
	SessionStore *Store

	// RunID labels the run in logs; a fresh id is generated when empty.
	RunID string
}

// Run executes the request's tree and blocks until the run completes, is
// cancelled, or hits an unrecoverable error. Node failures are reported
// through the listener, not the returned error; a non-nil error means the
// run itself broke down.
func (e *Engine) Run(ctx context.Context, req Request) error {
	if req.Tree == nil {
		return errors.New("run request requires a descriptor tree")
	}
	listener := req.Listener
	if listener == nil {
		listener = NoopListener{}
	}
	control := req.Control
	if control == nil {
		control = NewExecutionControl()
	}
	params := req.Params
	if params == nil {
		params = Parameters{}
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	logger := e.log.New("run_id", runID)

	if params.Has(ParamFailureThreshold) {
		if n := params.Int(ParamFailureThreshold, 0); n > 0 {
			control.FailureThreshold(int64(n))
		} else {
			logger.Warn("Ignoring non-positive failure threshold", "value", params[ParamFailureThreshold])
		}
	}

	parallel := params.Bool(ParamParallelEnabled, false)
	classes, methods := params.scopes()
	if parallel && !classes && !methods {
		logger.Warn("Parallel execution enabled without a scope, falling back to sequential execution",
			"scope_param", ParamParallelScope)
		parallel = false
	}
	poolSize := params.Int(ParamParallelPoolSize, runtime.NumCPU())
	if poolSize <= 0 {
		logger.Warn("Ignoring non-positive pool size", "value", params[ParamParallelPoolSize])
		poolSize = runtime.NumCPU()
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(errRunComplete)
	control.bindInterrupt(func() { cancel(errForceTerminated) })

	// An externally cancelled context stops the run the cooperative way. The
	// completion cause set by the deferred cancel is ignored so a finished
	// run does not mark the caller's control as cancelled.
	go func() {
		<-runCtx.Done()
		if errors.Is(context.Cause(runCtx), errRunComplete) {
			return
		}
		control.Cancel()
	}()

	runStore := NewStore(req.SessionStore)
	defer func() {
		if err := runStore.Close(); err != nil {
			logger.Error("Run store teardown failed", "error", err)
		}
	}()

	exec := &executor{
		tree:           req.Tree,
		listener:       listener,
		control:        control,
		params:         params,
		locks:          newLockRegistry(),
		nestedParallel: methods,
		log:            logger,
		tracer:         otel.Tracer("testtree-engine"),
	}
	if parallel {
		exec.pool = newWorkerPool(poolSize)
	}

	root := req.Tree.Root()
	logger.Info("Starting run",
		"root", root.DisplayName,
		"nodes", req.Tree.Size(),
		"parallel", parallel,
		"pool_size", poolSize)

	start := time.Now()
	listener.Started(root)

	var unrec error
	if parallel && classes {
		unrec = e.runTopLevelConcurrent(runCtx, exec, req.Tree, root)
	} else {
		unrec = e.runTopLevelSequential(runCtx, exec, req.Tree, root)
	}

	if unrec != nil {
		listener.Finished(root, Result{Status: StatusFailed, Failures: []error{unrec}})
		logger.Error("Run aborted", "duration", time.Since(start), "error", unrec)
		return unrec
	}

	listener.Finished(root, Successful())
	logger.Info("Run complete",
		"duration", time.Since(start),
		"failures", control.FailureCount(),
		"cancelled", control.Cancelled(),
		"force_terminated", control.ForceTerminated())
	return nil
}

// runTopLevelSequential consumes the root's children one at a time, in
// order, removing each finished subtree from the tree.
func (e *Engine) runTopLevelSequential(ctx context.Context, exec *executor, tree *descriptor.Tree, root *descriptor.Descriptor) error {
	for {
		child := tree.ShiftChild(root.ID)
		if child == nil {
			return nil
		}
		err := exec.executeNode(ctx, child, nil, descriptor.ModeSameThread, nil, nil)
		if removeErr := tree.Remove(child.ID); removeErr != nil {
			e.log.Warn("Failed to remove finished subtree", "node", child.DisplayName, "error", removeErr)
		}
		if err != nil {
			return err
		}
	}
}

// runTopLevelConcurrent schedules every top-level child onto the worker pool
// and waits for them, bounded by the shutdown timeout once the run has been
// force-terminated or all work is handed out.
func (e *Engine) runTopLevelConcurrent(ctx context.Context, exec *executor, tree *descriptor.Tree, root *descriptor.Descriptor) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var unrec error

	for {
		child := tree.ShiftChild(root.ID)
		if child == nil {
			break
		}
		wg.Add(1)
		go func(child *descriptor.Descriptor) {
			defer wg.Done()
			release := exec.pool.acquire(ctx)
			var once sync.Once
			releaseOnce := func() { once.Do(release) }
			defer releaseOnce()

			err := exec.executeNode(ctx, child, nil, descriptor.ModeConcurrent, nil, releaseOnce)
			if removeErr := tree.Remove(child.ID); removeErr != nil {
				e.log.Warn("Failed to remove finished subtree", "node", child.DisplayName, "error", removeErr)
			}
			if err != nil {
				mu.Lock()
				if unrec == nil {
					unrec = err
				}
				mu.Unlock()
			}
		}(child)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	// A healthy run waits as long as the work takes. Once the run has been
	// interrupted the remaining drain is bounded by the shutdown timeout.
	select {
	case <-done:
	case <-ctx.Done():
		select {
		case <-done:
		case <-time.After(e.shutdownTimeout):
			e.log.Warn("Workers did not finish within the shutdown timeout, abandoning them",
				"timeout", e.shutdownTimeout)
			return fmt.Errorf("run did not shut down within %s", e.shutdownTimeout)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	return unrec
}
