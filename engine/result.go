package engine

import (
	"errors"
	"fmt"
)

// Status is the terminal status of a node's execution.
type Status string

const (
	// StatusSuccessful means every lifecycle phase completed without failure.
	StatusSuccessful Status = "successful"
	// StatusFailed means at least one lifecycle phase failed; the result
	// carries the full failure chain.
	StatusFailed Status = "failed"
	// StatusAborted means the node's body bailed out early because its
	// preconditions were not met. Aborts do not count toward the failure
	// threshold.
	StatusAborted Status = "aborted"
)

// Result is the terminal outcome of one node, reported exactly once via
// Listener.Finished. Failures holds the primary failure first followed by
// suppressed failures in phase order; no failure is ever dropped.
type Result struct {
	Status   Status
	Failures []error
}

// Successful returns a successful result.
func Successful() Result {
	return Result{Status: StatusSuccessful}
}

// Primary returns the primary (first) failure, or nil.
func (r Result) Primary() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return r.Failures[0]
}

// Suppressed returns the failures recorded after the primary one, in phase
// order.
func (r Result) Suppressed() []error {
	if len(r.Failures) <= 1 {
		return nil
	}
	return r.Failures[1:]
}

// Err returns all recorded failures joined into one error, or nil.
func (r Result) Err() error {
	return errors.Join(r.Failures...)
}

func (r Result) String() string {
	if len(r.Failures) == 0 {
		return string(r.Status)
	}
	return fmt.Sprintf("%s (%d failure(s), primary: %v)", r.Status, len(r.Failures), r.Failures[0])
}

// AbortError is an assumption-style early exit from a node's body: the node
// stops (except always-run cleanup) without counting as a failure.
type AbortError struct {
	Reason string
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("execution aborted: %s", e.Reason)
}

// Aborted creates an assumption-style abort with the given reason.
func Aborted(reason string) error {
	return &AbortError{Reason: reason}
}

// IsAbort reports whether err is an assumption-style abort.
func IsAbort(err error) bool {
	var abort *AbortError
	return errors.As(err, &abort)
}

// ErrUnrecoverable marks a failure class signaling the host process itself
// may be compromised. Errors wrapping it are never captured by the failure
// collector; they propagate immediately and abort the whole run.
var ErrUnrecoverable = errors.New("unrecoverable engine error")

// Unrecoverable wraps err so that it bypasses failure collection and aborts
// the run.
func Unrecoverable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrUnrecoverable, err)
}

// IsUnrecoverable reports whether err belongs to the unrecoverable class.
func IsUnrecoverable(err error) bool {
	return errors.Is(err, ErrUnrecoverable)
}
