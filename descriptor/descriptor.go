package descriptor

import (
	"github.com/infra-ci/testtree/uid"
)

// Type describes the capabilities of a descriptor: whether it has a runnable
// body of its own, may own children, or both.
type Type uint8

const (
	// TypeTest marks a descriptor with a runnable body.
	TypeTest Type = 1 << iota
	// TypeContainer marks a descriptor that may own children.
	TypeContainer
)

// TypeContainerAndTest marks a descriptor that both runs a body and owns
// children.
const TypeContainerAndTest = TypeTest | TypeContainer

// IsTest reports whether the descriptor has a runnable body.
func (t Type) IsTest() bool { return t&TypeTest != 0 }

// IsContainer reports whether the descriptor may own children.
func (t Type) IsContainer() bool { return t&TypeContainer != 0 }

func (t Type) String() string {
	switch t {
	case TypeTest:
		return "test"
	case TypeContainer:
		return "container"
	case TypeContainerAndTest:
		return "container-and-test"
	}
	return "unknown"
}

// ExecutionMode selects the concurrency mode for a descriptor's subtree.
type ExecutionMode int

const (
	// ModeInherit takes the mode of the enclosing container.
	ModeInherit ExecutionMode = iota
	// ModeSameThread runs the subtree inline on whichever worker reached it.
	ModeSameThread
	// ModeConcurrent schedules the subtree onto the worker pool when one is
	// configured.
	ModeConcurrent
)

func (m ExecutionMode) String() string {
	switch m {
	case ModeSameThread:
		return "same-thread"
	case ModeConcurrent:
		return "concurrent"
	}
	return "inherit"
}

// LockMode distinguishes exclusive from shared resource access.
type LockMode int

const (
	LockModeExclusive LockMode = iota
	LockModeShared
)

// Resource names an external resource a descriptor needs while it executes.
// Two descriptors holding the same key conflict unless both access it in
// shared mode.
type Resource struct {
	Key  string
	Mode LockMode
}

// Descriptor is one node of the execution tree. Structure (parent, children)
// is owned by the Tree arena; a Descriptor only carries its own attributes
// plus the behavior object the engine drives through the lifecycle protocol.
type Descriptor struct {
	ID          uid.UniqueId
	DisplayName string
	Type        Type
	Mode        ExecutionMode
	Resources   []Resource

	// Behavior is the runtime behavior bound to this descriptor. The engine
	// asserts it to its Node interface; nil means every lifecycle phase is a
	// no-op (pure structural container).
	Behavior any

	tags []string

	// arena bookkeeping, managed by Tree
	parent   string
	children []string
}

// New creates a descriptor with the given identity, display name and type.
func New(id uid.UniqueId, displayName string, descriptorType Type) *Descriptor {
	return &Descriptor{
		ID:          id,
		DisplayName: displayName,
		Type:        descriptorType,
	}
}

// AddTag appends a tag, preserving insertion order and dropping duplicates.
func (d *Descriptor) AddTag(tag string) {
	for _, existing := range d.tags {
		if existing == tag {
			return
		}
	}
	d.tags = append(d.tags, tag)
}

// Tags returns a read-only snapshot of the descriptor's tags.
func (d *Descriptor) Tags() []string {
	tags := make([]string, len(d.tags))
	copy(tags, d.tags)
	return tags
}

// Key returns the canonical string form of the descriptor's id, used as the
// arena index.
func (d *Descriptor) Key() string {
	return d.ID.String()
}
