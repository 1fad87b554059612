package engine

import (
	"errors"
	"fmt"
	"sync"
)

// Store is one layer of the hierarchical key-value store available to nodes.
// Layers chain upward through the ancestor nodes to the run-wide and
// session-wide layers: Get falls through to the parent on a miss, Put always
// writes the local layer. Each layer runs its registered close actions when
// its owning node finishes, in reverse registration order; parent layers
// outlive their children.
type Store struct {
	parent *Store

	mu      sync.Mutex
	values  map[string]any
	closers []func() error
	closed  bool
}

// NewStore creates a store layer chained to parent (nil for a top layer).
func NewStore(parent *Store) *Store {
	return &Store{parent: parent, values: make(map[string]any)}
}

// Put stores a value in this layer, shadowing any value under the same key
// in ancestor layers.
func (s *Store) Put(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Get looks the key up in this layer, then up the ancestor chain.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	v, ok := s.values[key]
	s.mu.Unlock()
	if ok {
		return v, true
	}
	if s.parent != nil {
		return s.parent.Get(key)
	}
	return nil, false
}

// GetLocal looks the key up in this layer only.
func (s *Store) GetLocal(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// OnClose registers a resource release action to run when this layer closes.
func (s *Store) OnClose(fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, fn)
}

// PutCloseable stores a value and registers its release action in one step.
func (s *Store) PutCloseable(key string, value any, close func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.closers = append(s.closers, close)
}

// Close runs the registered close actions in reverse registration order and
// joins their errors. Closing an already-closed layer is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, fmt.Errorf("store close action %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
