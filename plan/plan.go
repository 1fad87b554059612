// Package plan loads declarative plan files and turns them into executable
// descriptor trees.
package plan

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from the human-readable forms
// used in plan files ("30s", "2m").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config represents a complete plan file.
type Config struct {
	Plans    []PlanConfig `yaml:"plans"`
	Metadata struct {
		DefaultTimeout Duration `yaml:"default_timeout"`
	} `yaml:"metadata"`
}

// PlanConfig is a named collection of tests and suites.
type PlanConfig struct {
	ID          string                 `yaml:"id"`
	Description string                 `yaml:"description"`
	Inherits    []string               `yaml:"inherits,omitempty"`
	Parallel    bool                   `yaml:"parallel,omitempty"`
	Tests       []TestConfig           `yaml:"tests,omitempty"`
	Suites      map[string]SuiteConfig `yaml:"suites,omitempty"`
}

// SuiteConfig groups related tests under a plan.
type SuiteConfig struct {
	Description string       `yaml:"description"`
	Parallel    bool         `yaml:"parallel,omitempty"`
	Tests       []TestConfig `yaml:"tests,omitempty"`
}

// TestConfig describes a single runnable test.
type TestConfig struct {
	Name      string            `yaml:"name"`
	Command   []string          `yaml:"command"`
	Dir       string            `yaml:"dir,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	Timeout   *Duration         `yaml:"timeout,omitempty"`
	Parallel  bool              `yaml:"parallel,omitempty"`
	Skip      string            `yaml:"skip,omitempty"`
	Tags      []string          `yaml:"tags,omitempty"`
	Resources []ResourceConfig  `yaml:"resources,omitempty"`
}

// ResourceConfig names an external resource the test needs, with its lock
// mode ("exclusive" or "shared").
type ResourceConfig struct {
	Key  string `yaml:"key"`
	Mode string `yaml:"mode,omitempty"`
}

// Resource lock mode values accepted in plan files.
const (
	ResourceModeExclusive = "exclusive"
	ResourceModeShared    = "shared"
)

// ResolveInherited merges test configurations from parent plans into this
// plan, recursively. A plan can inherit from other plans named in its
// 'Inherits' field. The rules are:
// - Suites: parent suites are only inherited if absent in the child plan
// - Tests: parent tests are merged with deduplication by name
// - The child's own configuration always takes precedence
func (p *PlanConfig) ResolveInherited(plans map[string]PlanConfig) error {
	processed := make(map[string]bool)
	return p.resolveInheritedRecursive(plans, processed)
}

func (p *PlanConfig) resolveInheritedRecursive(plans map[string]PlanConfig, processed map[string]bool) error {
	if len(p.Inherits) == 0 {
		return nil
	}

	mergedSuites := make(map[string]SuiteConfig)
	var mergedTests []TestConfig
	seenTests := make(map[string]bool)

	for k, v := range p.Suites {
		mergedSuites[k] = v
	}
	for _, test := range p.Tests {
		if !seenTests[test.Name] {
			mergedTests = append(mergedTests, test)
			seenTests[test.Name] = true
		}
	}

	for _, inheritFrom := range p.Inherits {
		if processed[inheritFrom] {
			return fmt.Errorf("circular inheritance detected for plan %q", inheritFrom)
		}

		parent, ok := plans[inheritFrom]
		if !ok {
			return fmt.Errorf("plan %q inherits from non-existent plan %q", p.ID, inheritFrom)
		}

		processed[inheritFrom] = true

		if err := parent.resolveInheritedRecursive(plans, processed); err != nil {
			return fmt.Errorf("resolving inheritance for parent plan %q: %w", inheritFrom, err)
		}

		for k, v := range parent.Suites {
			if _, exists := mergedSuites[k]; !exists {
				mergedSuites[k] = v
			}
		}
		for _, test := range parent.Tests {
			if !seenTests[test.Name] {
				mergedTests = append(mergedTests, test)
				seenTests[test.Name] = true
			}
		}

		processed[inheritFrom] = false
	}

	p.Suites = mergedSuites
	p.Tests = mergedTests
	return nil
}

// validate checks a test config for the mistakes a plan author is most
// likely to make.
func (t *TestConfig) validate() error {
	if t.Name == "" {
		return fmt.Errorf("test requires a name")
	}
	if len(t.Command) == 0 {
		return fmt.Errorf("test %q requires a command", t.Name)
	}
	for _, res := range t.Resources {
		if res.Key == "" {
			return fmt.Errorf("test %q declares a resource without a key", t.Name)
		}
		switch res.Mode {
		case "", ResourceModeExclusive, ResourceModeShared:
		default:
			return fmt.Errorf("test %q resource %q has invalid mode %q", t.Name, res.Key, res.Mode)
		}
	}
	return nil
}
