package geo

import (
	"errors"
	"fmt"

	"github.com/ctessum/geom"
)

var (
	// ErrInvalidReferenceSystem is returned for an unrecognized or
	// unparsable reference system identifier.
	ErrInvalidReferenceSystem = errors.New("invalid reference system")

	// ErrTransformFailure is returned when a coordinate lies outside the
	// domain of validity of a transform.
	ErrTransformFailure = errors.New("transform failure")
)

// TransformError identifies the coordinate that could not be transformed.
// It matches ErrTransformFailure with errors.Is.
type TransformError struct {
	Index int
	Point geom.Point
	From  string
	To    string
	Err   error
}

func (e *TransformError) Error() string {
	msg := fmt.Sprintf("transform point %d (%g, %g) from %s to %s", e.Index, e.Point.X, e.Point.Y, e.From, e.To)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransformError) Is(target error) bool { return target == ErrTransformFailure }

func (e *TransformError) Unwrap() error { return e.Err }
