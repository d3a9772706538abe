package selector

import (
	"errors"
	"fmt"
)

// PathResolutionError reports a selector path that cannot be walked, e.g.
// a segment read off null after a missing intermediate key.
type PathResolutionError struct {
	// Path is the dotted path being resolved.
	Path string

	// Segment is the segment that could not be read.
	Segment string

	// Message describes the failure.
	Message string
}

func (e *PathResolutionError) Error() string {
	if e.Segment != "" {
		return fmt.Sprintf("resolve %q: segment %q: %s", e.Path, e.Segment, e.Message)
	}
	return fmt.Sprintf("resolve %q: %s", e.Path, e.Message)
}

// SyntaxError reports a malformed selector expression.
type SyntaxError struct {
	// Selector is the full expression.
	Selector string

	// Token is the index of the offending token, or -1.
	Token int

	// Message describes the problem.
	Message string
}

func (e *SyntaxError) Error() string {
	if e.Token >= 0 {
		return fmt.Sprintf("selector %q: token %d: %s", e.Selector, e.Token, e.Message)
	}
	return fmt.Sprintf("selector %q: %s", e.Selector, e.Message)
}

// IsPathResolutionError reports whether err wraps a *PathResolutionError.
func IsPathResolutionError(err error) bool {
	var pe *PathResolutionError
	return errors.As(err, &pe)
}

// IsSyntaxError reports whether err wraps a *SyntaxError.
func IsSyntaxError(err error) bool {
	var se *SyntaxError
	return errors.As(err, &se)
}
