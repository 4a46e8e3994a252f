package assemble

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is returned when inputs disagree on a dimension.
var ErrShapeMismatch = errors.New("shape mismatch")

// ShapeMismatchError names the offending field.
type ShapeMismatchError struct {
	Field  string
	Want   int
	Got    int
	Detail string
}

func (e *ShapeMismatchError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("shape mismatch: %s: %s", e.Field, e.Detail)
	}
	return fmt.Sprintf("shape mismatch: %s has %d, want %d", e.Field, e.Got, e.Want)
}

func (e *ShapeMismatchError) Is(target error) bool { return target == ErrShapeMismatch }

func checkLen(field string, got, want int) error {
	if got != want {
		return &ShapeMismatchError{Field: field, Want: want, Got: got}
	}
	return nil
}
