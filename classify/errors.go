package classify

import (
	"errors"
	"fmt"
	"strings"
)

// ErrClassification matches every *ClassificationError with errors.Is.
var ErrClassification = errors.New("classification failed")

// ClassificationError reports that a classification produced no usable
// result: the completion call failed, or the reply did not satisfy the schema
// (including values outside a declared enumeration).
type ClassificationError struct {
	// Schema is the name of the schema that was requested.
	Schema string

	// Reason is a short description of what went wrong.
	Reason string

	// Violations lists schema violations, one per offending field.
	Violations []string

	// Cause is the underlying error, if any.
	Cause error

	// Transient marks failures another attempt may fix.
	Transient bool
}

func (e *ClassificationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "classify %s: %s", e.Schema, e.Reason)
	if len(e.Violations) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(e.Violations, "; "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *ClassificationError) Unwrap() error { return e.Cause }

func (e *ClassificationError) Is(target error) bool { return target == ErrClassification }

// Retryable reports whether the engine should try the node again.
func (e *ClassificationError) Retryable() bool { return e.Transient }
