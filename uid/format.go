package uid

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrForbiddenCharacter signals that a decoded segment type or value contains
// one of the raw structural characters. Encoding is supposed to prevent this,
// so hitting it indicates a bug in whatever produced the id string.
var ErrForbiddenCharacter = errors.New("segment contains reserved structural character")

// ParseError describes an encoded segment that does not match the structural
// pattern.
type ParseError struct {
	Segment string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%q is not a well-formed unique id segment", e.Segment)
}

// Format converts between UniqueId values and their string representation.
// Each segment is rendered as open + encode(type) + separator + encode(value)
// + close, and segments are joined with the delimiter. Encoding escapes only
// '%', '+' and the four structural characters; all other bytes pass through
// unchanged, which keeps ids human-readable.
type Format struct {
	openSegment        byte
	typeValueSeparator byte
	closeSegment       byte
	segmentDelimiter   byte
	segmentPattern     *regexp.Regexp
	encoded            map[byte]string
}

var defaultFormat = NewFormat('[', ':', ']', '/')

// DefaultFormat returns the shared default format: "[type:value]" segments
// joined by "/".
func DefaultFormat() *Format {
	return defaultFormat
}

// NewFormat creates a Format with the given structural characters.
func NewFormat(openSegment, typeValueSeparator, closeSegment, segmentDelimiter byte) *Format {
	pattern := regexp.MustCompile(fmt.Sprintf(`(?s)^%s(.+)%s(.+)%s$`,
		regexp.QuoteMeta(string(openSegment)),
		regexp.QuoteMeta(string(typeValueSeparator)),
		regexp.QuoteMeta(string(closeSegment))))

	encoded := make(map[byte]string, 6)
	for _, c := range []byte{'%', '+', openSegment, typeValueSeparator, closeSegment, segmentDelimiter} {
		encoded[c] = fmt.Sprintf("%%%02X", c)
	}

	return &Format{
		openSegment:        openSegment,
		typeValueSeparator: typeValueSeparator,
		closeSegment:       closeSegment,
		segmentDelimiter:   segmentDelimiter,
		segmentPattern:     pattern,
		encoded:            encoded,
	}
}

// Parse parses a UniqueId from its string representation.
func (f *Format) Parse(source string) (UniqueId, error) {
	parts := strings.Split(source, string(f.segmentDelimiter))
	segments := make([]Segment, 0, len(parts))
	for _, part := range parts {
		segment, err := f.parseSegment(part)
		if err != nil {
			return UniqueId{}, err
		}
		segments = append(segments, segment)
	}
	return UniqueId{segments: segments}, nil
}

func (f *Format) parseSegment(segmentString string) (Segment, error) {
	match := f.segmentPattern.FindStringSubmatch(segmentString)
	if match == nil {
		return Segment{}, &ParseError{Segment: segmentString}
	}
	if err := f.checkAllowed(match[1]); err != nil {
		return Segment{}, err
	}
	if err := f.checkAllowed(match[2]); err != nil {
		return Segment{}, err
	}
	segmentType, err := f.decode(match[1])
	if err != nil {
		return Segment{}, err
	}
	value, err := f.decode(match[2])
	if err != nil {
		return Segment{}, err
	}
	return Segment{Type: segmentType, Value: value}, nil
}

// Format returns the string representation of the supplied UniqueId.
func (f *Format) Format(id UniqueId) string {
	var b strings.Builder
	for i, segment := range id.segments {
		if i > 0 {
			b.WriteByte(f.segmentDelimiter)
		}
		b.WriteByte(f.openSegment)
		b.WriteString(f.encode(segment.Type))
		b.WriteByte(f.typeValueSeparator)
		b.WriteString(f.encode(segment.Value))
		b.WriteByte(f.closeSegment)
	}
	return b.String()
}

// checkAllowed verifies that an encoded type or value body carries no raw
// structural character. The encoder escapes all of them, so a violation means
// the string was produced by something other than Format.
func (f *Format) checkAllowed(encoded string) error {
	for _, c := range []byte{f.openSegment, f.typeValueSeparator, f.closeSegment, f.segmentDelimiter} {
		if strings.IndexByte(encoded, c) >= 0 {
			return fmt.Errorf("type or value %q must not contain %q: %w", encoded, string(c), ErrForbiddenCharacter)
		}
	}
	return nil
}

func (f *Format) encode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if escaped, ok := f.encoded[s[i]]; ok {
			b.WriteString(escaped)
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func (f *Format) decode(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			b.WriteByte(s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", &ParseError{Segment: s}
		}
		hi, ok1 := unhex(s[i+1])
		lo, ok2 := unhex(s[i+2])
		if !ok1 || !ok2 {
			return "", &ParseError{Segment: s}
		}
		b.WriteByte(hi<<4 | lo)
		i += 2
	}
	return b.String(), nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
