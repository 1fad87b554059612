package uid

import (
	"fmt"
)

// Segment is a single (type, value) element of a UniqueId.
type Segment struct {
	Type  string
	Value string
}

// UniqueId is an ordered, non-empty sequence of segments identifying a single
// node in an execution tree. It is immutable; Append returns a new value.
type UniqueId struct {
	segments []Segment
}

// Root creates a new UniqueId containing a single segment.
// It panics if the type or value is empty; callers building ids
// programmatically are expected to pass well-formed input.
func Root(segmentType, value string) UniqueId {
	return UniqueId{}.Append(segmentType, value)
}

// Parse parses a UniqueId from its string representation using the default
// format.
func Parse(source string) (UniqueId, error) {
	return DefaultFormat().Parse(source)
}

// Append returns a new UniqueId with an additional segment appended.
// The receiver is left unchanged. Like Root, it panics on empty input;
// reserved characters in the type or value are fine, the codec escapes them.
func (u UniqueId) Append(segmentType, value string) UniqueId {
	if segmentType == "" || value == "" {
		panic(fmt.Errorf("segment type and value must not be empty (type=%q, value=%q)", segmentType, value))
	}
	segments := make([]Segment, len(u.segments), len(u.segments)+1)
	copy(segments, u.segments)
	return UniqueId{segments: append(segments, Segment{Type: segmentType, Value: value})}
}

// Segments returns a copy of the segment sequence.
func (u UniqueId) Segments() []Segment {
	segments := make([]Segment, len(u.segments))
	copy(segments, u.segments)
	return segments
}

// LastSegment returns the final segment of the id.
func (u UniqueId) LastSegment() Segment {
	if len(u.segments) == 0 {
		return Segment{}
	}
	return u.segments[len(u.segments)-1]
}

// IsZero reports whether the id has no segments.
func (u UniqueId) IsZero() bool {
	return len(u.segments) == 0
}

// Length returns the number of segments.
func (u UniqueId) Length() int {
	return len(u.segments)
}

// Equals reports whether two ids have element-wise equal segment sequences.
func (u UniqueId) Equals(other UniqueId) bool {
	if len(u.segments) != len(other.segments) {
		return false
	}
	for i, segment := range u.segments {
		if other.segments[i] != segment {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is an ancestor of (or equal to) this id.
func (u UniqueId) HasPrefix(prefix UniqueId) bool {
	if len(prefix.segments) > len(u.segments) {
		return false
	}
	for i, segment := range prefix.segments {
		if u.segments[i] != segment {
			return false
		}
	}
	return true
}

// String returns the canonical string representation using the default
// format. The result is stable across runs and round-trips through Parse.
func (u UniqueId) String() string {
	return DefaultFormat().Format(u)
}

// DisplayValue returns a short human-readable rendering of the id's last
// segment, eg. "class:MyTest".
func (u UniqueId) DisplayValue() string {
	last := u.LastSegment()
	if last == (Segment{}) {
		return ""
	}
	return fmt.Sprintf("%s:%s", last.Type, last.Value)
}

// ParentId returns the id with the last segment removed, and whether one
// exists (a root id has no parent).
func (u UniqueId) ParentId() (UniqueId, bool) {
	if len(u.segments) <= 1 {
		return UniqueId{}, false
	}
	segments := make([]Segment, len(u.segments)-1)
	copy(segments, u.segments)
	return UniqueId{segments: segments}, true
}

var _ fmt.Stringer = UniqueId{}
