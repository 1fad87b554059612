package engine

import (
	"fmt"
)

// FailureCollector accumulates failures across a node's lifecycle phases so
// that, for example, a body failure and a cleanup failure are both surfaced.
// The first failure becomes the primary one; later failures are appended as
// suppressed, in phase order. A collector is created fresh per node and
// discarded after the terminal result is reported.
//
// Unrecoverable errors are never collected: Execute returns them (or
// re-panics, for unrecoverable panics) so the caller can abort the run.
type FailureCollector struct {
	failures []error
}

// NewFailureCollector creates an empty collector.
func NewFailureCollector() *FailureCollector {
	return &FailureCollector{}
}

// Execute runs action, capturing a returned error or recovered panic instead
// of propagating it. Actions keep running after earlier failures; each new
// failure is appended. The returned error is non-nil only for unrecoverable
// failures, which bypass collection entirely.
func (c *FailureCollector) Execute(action func() error) (unrecoverable error) {
	err := c.runRecovered(action)
	if err == nil {
		return nil
	}
	if IsUnrecoverable(err) {
		return err
	}
	c.failures = append(c.failures, err)
	return nil
}

// runRecovered invokes action, converting a panic into an error. Panics
// carrying an unrecoverable error are re-raised untouched so they cannot be
// silently absorbed further up.
func (c *FailureCollector) runRecovered(action func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if recErr, ok := rec.(error); ok {
				if IsUnrecoverable(recErr) {
					panic(rec)
				}
				err = fmt.Errorf("panic: %w", recErr)
				return
			}
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return action()
}

// Empty reports whether any failure has been recorded.
func (c *FailureCollector) Empty() bool {
	return len(c.failures) == 0
}

// Primary returns the first recorded failure, or nil.
func (c *FailureCollector) Primary() error {
	if len(c.failures) == 0 {
		return nil
	}
	return c.failures[0]
}

// Failures returns the recorded failures in order, primary first.
func (c *FailureCollector) Failures() []error {
	failures := make([]error, len(c.failures))
	copy(failures, c.failures)
	return failures
}

// Result converts the collected failures into a terminal result. An
// assumption-style abort as the primary failure yields an aborted result;
// any other failure yields a failed one.
func (c *FailureCollector) Result() Result {
	if len(c.failures) == 0 {
		return Successful()
	}
	status := StatusFailed
	if IsAbort(c.failures[0]) {
		status = StatusAborted
	}
	return Result{Status: status, Failures: c.Failures()}
}
