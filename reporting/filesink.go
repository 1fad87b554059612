package reporting

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/infra-ci/testtree/engine"
)

// RunDirectoryPrefix is the standardized prefix for per-run artifact
// directories.
const RunDirectoryPrefix = "testrun-"

// jsonRecord is the serialized form of a Record in results.json.
type jsonRecord struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Status     string   `json:"status"`
	SkipReason string   `json:"skip_reason,omitempty"`
	Failures   []string `json:"failures,omitempty"`
	Duration   string   `json:"duration"`
}

// WriteRunDirectory persists a run's outcome under baseDir. It creates
// baseDir/testrun-<runID>/ containing a plain-text summary, the full record
// list as JSON, and one log file per failed node under failed/. It returns
// the run directory path.
func WriteRunDirectory(baseDir, runID string, c *Collector) (string, error) {
	if baseDir == "" {
		return "", errors.New("base directory is required")
	}
	if runID == "" {
		return "", errors.New("run id is required")
	}

	runDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}

	if err := writeSummaryFile(runDir, c); err != nil {
		return "", err
	}
	if err := writeResultsJSON(runDir, c); err != nil {
		return "", err
	}
	if err := writeFailureLogs(runDir, c); err != nil {
		return "", err
	}
	return runDir, nil
}

func writeSummaryFile(runDir string, c *Collector) error {
	f, err := os.Create(filepath.Join(runDir, "summary.log"))
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer f.Close()

	if err := WriteTree(f, c, false); err != nil {
		return err
	}
	return WriteSummary(f, c, false)
}

func writeResultsJSON(runDir string, c *Collector) error {
	records := c.Records()
	out := make([]jsonRecord, 0, len(records))
	for _, r := range records {
		jr := jsonRecord{
			ID:       r.ID.String(),
			Name:     r.DisplayName,
			Type:     r.Type.String(),
			Status:   string(r.Status),
			Duration: r.Duration.String(),
		}
		if r.Skipped {
			jr.Status = "skipped"
			jr.SkipReason = r.SkipReason
		}
		for _, failure := range r.Failures {
			jr.Failures = append(jr.Failures, failure.Error())
		}
		out = append(out, jr)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "results.json"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write results file: %w", err)
	}
	return nil
}

func writeFailureLogs(runDir string, c *Collector) error {
	var failed []Record
	for _, r := range c.Records() {
		if !r.Skipped && r.Status == engine.StatusFailed {
			failed = append(failed, r)
		}
	}
	if len(failed) == 0 {
		return nil
	}

	failedDir := filepath.Join(runDir, "failed")
	if err := os.MkdirAll(failedDir, 0o755); err != nil {
		return fmt.Errorf("failed to create failure log directory: %w", err)
	}

	for _, r := range failed {
		var b strings.Builder
		fmt.Fprintf(&b, "node: %s\n", r.ID)
		fmt.Fprintf(&b, "name: %s\n", r.DisplayName)
		fmt.Fprintf(&b, "duration: %s\n\n", r.Duration)
		for i, failure := range r.Failures {
			label := "failure"
			if i > 0 {
				label = "suppressed"
			}
			fmt.Fprintf(&b, "%s: %v\n", label, failure)
		}

		path := filepath.Join(failedDir, sanitizeFilename(r.DisplayName)+".log")
		if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
			return fmt.Errorf("failed to write failure log for %s: %w", r.DisplayName, err)
		}
	}
	return nil
}

// sanitizeFilename replaces characters that are unsafe in file names.
func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, name)
}
