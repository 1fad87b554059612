package metrics

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/infra-ci/testtree/descriptor"
	"github.com/infra-ci/testtree/engine"
	"github.com/infra-ci/testtree/uid"
)

func TestErrToLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name: "simple error",
			err:  errors.New("test error"),
		},
		{
			name: "error with special chars",
			err:  errors.New("test@error#123"),
		},
		{
			name: "error with multiple spaces",
			err:  errors.New("test   error"),
		},
		{
			name: "error with multiple underscores",
			err:  errors.New("test__error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errToLabel(tt.err)
			validLabelRegex := regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
			if !validLabelRegex.MatchString(result) {
				t.Errorf("errLabel() = %v, is not a valid Prometheus label", result)
			}
		})
	}
}

func TestRecordError(t *testing.T) {
	// just test that it doesn't panic
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("RecordError panic'd")
		}
	}()

	RecordError("test_error")
}

func TestRecordErrorDetails(t *testing.T) {
	// Test with nil error
	RecordErrorDetails("test", nil)

	// Test with actual error
	RecordErrorDetails("test", errors.New("sample error"))
}

func TestRecordNode(t *testing.T) {
	RecordNode("smoke", "run1", "test", "successful")
	RecordNode("smoke", "run1", "test", "failed")
	RecordNode("smoke", "run1", "container", "skipped")
}

func TestRecordRun(t *testing.T) {
	RecordRun("smoke", "run1", "pass", 3, 0, time.Second)
	RecordRun("smoke", "run1", "fail", 3, 1, time.Second)
}

func TestListenerRecordsEvents(t *testing.T) {
	l := NewListener("smoke", "run1")
	d := descriptor.New(uid.Root("plan", "smoke").Append("test", "ping"), "ping", descriptor.TypeTest)

	l.Started(d)
	l.Skipped(d, "not supported")
	l.Finished(d, engine.Successful())
	l.Finished(d, engine.Result{
		Status:   engine.StatusFailed,
		Failures: []error{errors.New("boom")},
	})
}
