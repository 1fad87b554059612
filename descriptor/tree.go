package descriptor

import (
	"fmt"
	"sync"

	"github.com/infra-ci/testtree/uid"
)

// Tree is the ownership hierarchy of descriptors: an arena indexed by
// canonical id, with the parent held as an index key (weak back-reference)
// and children as an ordered key slice. The tree is acyclic and single-parent
// by construction; child order is preserved from insertion.
//
// Structure is read-only during execution, with one exception: the top-level
// engine loop consumes root children with queue semantics (process-and-remove),
// so mutating operations take the write lock.
type Tree struct {
	mu    sync.RWMutex
	nodes map[string]*Descriptor
	root  string
}

// NewTree creates a tree owning the given root descriptor.
func NewTree(root *Descriptor) (*Tree, error) {
	if root == nil {
		return nil, fmt.Errorf("root descriptor is required")
	}
	if root.ID.IsZero() {
		return nil, fmt.Errorf("root descriptor must have a unique id")
	}
	t := &Tree{
		nodes: map[string]*Descriptor{root.Key(): root},
		root:  root.Key(),
	}
	return t, nil
}

// Root returns the root descriptor.
func (t *Tree) Root() *Descriptor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[t.root]
}

// Add inserts a descriptor as the last child of parentID.
// It fails if the parent is unknown, the id is already present, or the
// descriptor has no id; these are contract violations caught before any
// state is mutated.
func (t *Tree) Add(parentID uid.UniqueId, d *Descriptor) error {
	if d == nil {
		return fmt.Errorf("descriptor is required")
	}
	if d.ID.IsZero() {
		return fmt.Errorf("descriptor must have a unique id")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	parentKey := parentID.String()
	parent, ok := t.nodes[parentKey]
	if !ok {
		return fmt.Errorf("unknown parent %s", parentKey)
	}
	key := d.Key()
	if _, exists := t.nodes[key]; exists {
		return fmt.Errorf("descriptor %s already present", key)
	}

	d.parent = parentKey
	t.nodes[key] = d
	parent.children = append(parent.children, key)
	return nil
}

// Get looks up a descriptor by id.
func (t *Tree) Get(id uid.UniqueId) (*Descriptor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.nodes[id.String()]
	return d, ok
}

// Parent returns the parent of the given descriptor, or false for the root.
func (t *Tree) Parent(id uid.UniqueId) (*Descriptor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.nodes[id.String()]
	if !ok || d.parent == "" {
		return nil, false
	}
	parent, ok := t.nodes[d.parent]
	return parent, ok
}

// Children returns the ordered children of the given descriptor.
func (t *Tree) Children(id uid.UniqueId) []*Descriptor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.nodes[id.String()]
	if !ok {
		return nil
	}
	children := make([]*Descriptor, 0, len(d.children))
	for _, key := range d.children {
		children = append(children, t.nodes[key])
	}
	return children
}

// ShiftChild detaches and returns the first child of the given descriptor,
// or nil when it has none. The detached subtree stays resolvable in the arena
// so in-flight execution keeps working; call Remove once it has been fully
// processed. This is the queue-semantics accessor used by the top-level
// engine loop.
func (t *Tree) ShiftChild(id uid.UniqueId) *Descriptor {
	t.mu.Lock()
	defer t.mu.Unlock()

	d, ok := t.nodes[id.String()]
	if !ok || len(d.children) == 0 {
		return nil
	}
	firstKey := d.children[0]
	d.children = d.children[1:]
	first := t.nodes[firstKey]
	first.parent = ""
	return first
}

// Remove detaches the descriptor and its entire subtree from the arena.
// Removing the root is not allowed.
func (t *Tree) Remove(id uid.UniqueId) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := id.String()
	if key == t.root {
		return fmt.Errorf("cannot remove the root descriptor")
	}
	d, ok := t.nodes[key]
	if !ok {
		return fmt.Errorf("unknown descriptor %s", key)
	}

	// Detach from the parent's child list, then drop the subtree.
	if parent, ok := t.nodes[d.parent]; ok {
		for i, childKey := range parent.children {
			if childKey == key {
				parent.children = append(parent.children[:i], parent.children[i+1:]...)
				break
			}
		}
	}
	t.removeSubtreeLocked(key)
	return nil
}

// removeSubtreeLocked drops a descriptor and its descendants from the arena
// index. The caller holds the write lock and has already detached the node
// from its parent's child list.
func (t *Tree) removeSubtreeLocked(key string) {
	d, ok := t.nodes[key]
	if !ok {
		return
	}
	for _, childKey := range d.children {
		t.removeSubtreeLocked(childKey)
	}
	delete(t.nodes, key)
	d.parent = ""
}

// Walk visits the subtree rooted at id depth-first in child order. The visit
// function returns false to stop descending below the current descriptor.
// The visit function must not mutate the tree.
func (t *Tree) Walk(id uid.UniqueId, visit func(*Descriptor) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	t.walkLocked(id.String(), visit)
}

func (t *Tree) walkLocked(key string, visit func(*Descriptor) bool) {
	d, ok := t.nodes[key]
	if !ok {
		return
	}
	if !visit(d) {
		return
	}
	for _, childKey := range d.children {
		t.walkLocked(childKey, visit)
	}
}

// Size returns the number of descriptors currently in the arena.
func (t *Tree) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}
