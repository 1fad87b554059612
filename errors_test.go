package testtree

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuntimeErrorWrapping(t *testing.T) {
	cause := errors.New("plan file unreadable")
	err := NewRuntimeError(cause)

	assert.EqualError(t, err, "runtime error: plan file unreadable")
	assert.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("starting app: %w", err)
	assert.True(t, IsRuntimeError(wrapped))
	assert.False(t, IsRuntimeError(cause))
	assert.False(t, IsRuntimeError(nil))
}

func TestTestFailureErrorDetection(t *testing.T) {
	err := NewTestFailureError("3 of 7 tests failed")

	assert.EqualError(t, err, "test failure: 3 of 7 tests failed")

	wrapped := fmt.Errorf("run: %w", err)
	assert.True(t, IsTestFailureError(wrapped))
	assert.False(t, IsTestFailureError(errors.New("unrelated")))
	assert.False(t, IsRuntimeError(err), "the two exit-code categories must not overlap")
}
