package engine

import (
	"strconv"
	"strings"
)

// Configuration parameter keys recognized by the engine.
const (
	// ParamParallelEnabled turns parallel execution on ("true"/"false").
	ParamParallelEnabled = "testtree.parallel.enabled"
	// ParamParallelScope selects what runs in parallel: "classes", "methods"
	// or "classes,methods".
	ParamParallelScope = "testtree.parallel.scope"
	// ParamParallelPoolSize bounds the worker pool; defaults to the
	// available hardware parallelism.
	ParamParallelPoolSize = "testtree.parallel.poolsize"
	// ParamFailureThreshold stops the run after this many node failures.
	ParamFailureThreshold = "testtree.failure.threshold"
)

// Parallel scope values.
const (
	ScopeClasses = "classes"
	ScopeMethods = "methods"
)

// Parameters is the flat string-keyed configuration lookup handed to the
// engine and exposed to nodes through their execution context.
type Parameters map[string]string

// Get returns the raw value for key and whether it was present.
func (p Parameters) Get(key string) (string, bool) {
	v, ok := p[key]
	return v, ok
}

// Bool parses the value for key as a boolean; absent or malformed values
// yield the fallback.
func (p Parameters) Bool(key string, fallback bool) bool {
	v, ok := p[key]
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return parsed
}

// Int parses the value for key as an integer; absent or malformed values
// yield the fallback.
func (p Parameters) Int(key string, fallback int) int {
	v, ok := p[key]
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return parsed
}

// Has reports whether key is present.
func (p Parameters) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// scopes splits the parallel scope value into its flags.
func (p Parameters) scopes() (classes, methods bool) {
	v, ok := p[ParamParallelScope]
	if !ok {
		return false, false
	}
	for _, scope := range strings.Split(v, ",") {
		switch strings.TrimSpace(scope) {
		case ScopeClasses:
			classes = true
		case ScopeMethods:
			methods = true
		}
	}
	return classes, methods
}
