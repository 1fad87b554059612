package engine

import (
	"sort"
	"sync"

	"github.com/infra-ci/testtree/descriptor"
)

// lockRegistry hands out key-based read-write locks for named external
// resources. Locks are acquired in globally sorted key order so that two
// nodes wanting overlapping resource sets cannot deadlock, and held for a
// node's full lifecycle (acquired before prepare, released after the
// terminal event).
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]*sync.RWMutex)}
}

// heldLocks is the ordered set of locks a node currently holds.
type heldLocks struct {
	entries []heldLock
}

type heldLock struct {
	lock      *sync.RWMutex
	exclusive bool
}

// acquire blocks until every requested resource lock is held. Duplicate keys
// collapse to one acquisition; exclusive wins over shared for the same key.
func (r *lockRegistry) acquire(resources []descriptor.Resource) *heldLocks {
	if len(resources) == 0 {
		return &heldLocks{}
	}

	exclusive := make(map[string]bool, len(resources))
	for _, res := range resources {
		if res.Mode == descriptor.LockModeExclusive {
			exclusive[res.Key] = true
		} else if _, seen := exclusive[res.Key]; !seen {
			exclusive[res.Key] = false
		}
	}

	keys := make([]string, 0, len(exclusive))
	for key := range exclusive {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	held := &heldLocks{entries: make([]heldLock, 0, len(keys))}
	for _, key := range keys {
		lock := r.lockFor(key)
		if exclusive[key] {
			lock.Lock()
		} else {
			lock.RLock()
		}
		held.entries = append(held.entries, heldLock{lock: lock, exclusive: exclusive[key]})
	}
	return held
}

func (r *lockRegistry) lockFor(key string) *sync.RWMutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[key]
	if !ok {
		lock = &sync.RWMutex{}
		r.locks[key] = lock
	}
	return lock
}

// effectiveResources resolves a node's resource declarations against the
// keys its ancestor chain already holds. A key an ancestor holds is dropped:
// the subtree is already running under that lock, and re-acquiring a
// non-reentrant lock would block the child on its own ancestor forever. A
// shared declaration is promoted to exclusive when any descendant declares
// the same key exclusively, which guarantees an ancestor's hold is always at
// least as strong as anything declared below it, making the drop safe.
func effectiveResources(tree *descriptor.Tree, d *descriptor.Descriptor, held map[string]descriptor.LockMode) []descriptor.Resource {
	if len(d.Resources) == 0 {
		return nil
	}

	modes := make(map[string]descriptor.LockMode, len(d.Resources))
	keys := make([]string, 0, len(d.Resources))
	for _, res := range d.Resources {
		if _, ok := held[res.Key]; ok {
			continue
		}
		if _, seen := modes[res.Key]; !seen {
			keys = append(keys, res.Key)
			modes[res.Key] = res.Mode
		} else if res.Mode == descriptor.LockModeExclusive {
			modes[res.Key] = res.Mode
		}
	}

	for _, key := range keys {
		if modes[key] == descriptor.LockModeShared && subtreeDeclaresExclusive(tree, d, key) {
			modes[key] = descriptor.LockModeExclusive
		}
	}

	resources := make([]descriptor.Resource, 0, len(keys))
	for _, key := range keys {
		resources = append(resources, descriptor.Resource{Key: key, Mode: modes[key]})
	}
	return resources
}

func subtreeDeclaresExclusive(tree *descriptor.Tree, d *descriptor.Descriptor, key string) bool {
	found := false
	tree.Walk(d.ID, func(n *descriptor.Descriptor) bool {
		if found {
			return false
		}
		for _, res := range n.Resources {
			if res.Key == key && res.Mode == descriptor.LockModeExclusive && !n.ID.Equals(d.ID) {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// release unlocks everything in reverse acquisition order.
func (h *heldLocks) release() {
	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].exclusive {
			h.entries[i].lock.Unlock()
		} else {
			h.entries[i].lock.RUnlock()
		}
	}
	h.entries = nil
}
