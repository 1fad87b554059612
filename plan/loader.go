package plan

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"
)

// DefaultTestTimeout applies to tests without their own timeout when the
// plan file sets none either.
const DefaultTestTimeout = 10 * time.Minute

// Loader loads and indexes the plans of one plan file.
type Loader struct {
	config LoaderConfig

	mu    sync.RWMutex
	plans []PlanConfig
}

// LoaderConfig contains loader configuration.
type LoaderConfig struct {
	Log            log.Logger
	PlanFile       string
	DefaultTimeout time.Duration
}

// NewLoader creates a loader and eagerly loads the plan file.
func NewLoader(cfg LoaderConfig) (*Loader, error) {
	if cfg.PlanFile == "" {
		return nil, fmt.Errorf("plan file is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTestTimeout
	}

	l := &Loader{config: cfg}
	if err := l.load(cfg.PlanFile); err != nil {
		return nil, fmt.Errorf("failed to load plan file: %w", err)
	}

	cfg.Log.Debug("Plan file loaded", "path", cfg.PlanFile, "len(plans)", len(l.plans))
	return l, nil
}

func (l *Loader) load(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg, err := readConfig(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := resolveInheritance(cfg); err != nil {
		return fmt.Errorf("failed to resolve plan inheritance: %w", err)
	}

	if err := validatePlans(cfg); err != nil {
		return fmt.Errorf("invalid plan file: %w", err)
	}

	if cfg.Metadata.DefaultTimeout > 0 {
		l.config.DefaultTimeout = time.Duration(cfg.Metadata.DefaultTimeout)
	}
	l.plans = cfg.Plans
	return nil
}

// readConfig loads a plan config from a file.
func readConfig(path string) (*Config, error) {
	log.Debug("Reading plan file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing plan file: %w", err)
	}

	return &cfg, nil
}

// resolveInheritance checks for inheritance cycles and then merges parent
// plans into their children.
func resolveInheritance(cfg *Config) error {
	if cfg.Plans == nil {
		return nil
	}

	planMap := make(map[string]PlanConfig)
	for _, p := range cfg.Plans {
		planMap[p.ID] = p
	}

	for _, p := range cfg.Plans {
		if err := checkCircularInheritance(p.ID, p.Inherits, planMap, make(map[string]bool)); err != nil {
			return fmt.Errorf("circular inheritance detected: %w", err)
		}
	}

	for i := range cfg.Plans {
		if err := cfg.Plans[i].ResolveInherited(planMap); err != nil {
			return fmt.Errorf("invalid plan inheritance: %w", err)
		}
	}

	return nil
}

// checkCircularInheritance detects cycles in plan inheritance.
func checkCircularInheritance(currentID string, inherits []string, planMap map[string]PlanConfig, visited map[string]bool) error {
	if visited[currentID] {
		return fmt.Errorf("circular inheritance detected at plan %s", currentID)
	}

	visited[currentID] = true
	defer delete(visited, currentID)

	for _, inheritedID := range inherits {
		inherited, exists := planMap[inheritedID]
		if !exists {
			return fmt.Errorf("plan %s inherits from non-existent plan %s", currentID, inheritedID)
		}

		if err := checkCircularInheritance(inheritedID, inherited.Inherits, planMap, visited); err != nil {
			return err
		}
	}

	return nil
}

// validatePlans rejects duplicate plan ids and malformed test entries.
func validatePlans(cfg *Config) error {
	seen := make(map[string]bool)
	for i := range cfg.Plans {
		p := &cfg.Plans[i]
		if p.ID == "" {
			return fmt.Errorf("plan %d has no id", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate plan id %q", p.ID)
		}
		seen[p.ID] = true

		for j := range p.Tests {
			if err := p.Tests[j].validate(); err != nil {
				return fmt.Errorf("plan %q: %w", p.ID, err)
			}
		}
		for suiteID, suite := range p.Suites {
			for j := range suite.Tests {
				if err := suite.Tests[j].validate(); err != nil {
					return fmt.Errorf("plan %q suite %q: %w", p.ID, suiteID, err)
				}
			}
		}
	}
	return nil
}

// Plans returns all loaded plans.
func (l *Loader) Plans() []PlanConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.plans
}

// PlanByID returns the plan with the given id.
func (l *Loader) PlanByID(id string) (PlanConfig, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, p := range l.plans {
		if p.ID == id {
			return p, nil
		}
	}
	return PlanConfig{}, fmt.Errorf("plan %q not found", id)
}

// DefaultTimeout returns the effective default test timeout.
func (l *Loader) DefaultTimeout() time.Duration {
	return l.config.DefaultTimeout
}
