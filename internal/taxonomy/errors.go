package taxonomy

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnmappedTaxon is returned when a raw label has no map entry.
	ErrUnmappedTaxon = errors.New("unmapped taxon")
	// ErrTaxonMismatch is returned when two target vocabularies differ.
	ErrTaxonMismatch = errors.New("taxon vocabulary mismatch")
	// ErrMissingColumn is returned when a named column is absent from a table.
	ErrMissingColumn = errors.New("missing column")
	// ErrInvalidMap is returned for malformed translation tables.
	ErrInvalidMap = errors.New("invalid taxon map")
)

// UnmappedTaxonError names the raw label that has no entry in a map.
type UnmappedTaxonError struct {
	Label string
	Map   string
}

func (e *UnmappedTaxonError) Error() string {
	if e.Map == "" {
		return fmt.Sprintf("unmapped taxon %q", e.Label)
	}
	return fmt.Sprintf("unmapped taxon %q in map %q", e.Label, e.Map)
}

func (e *UnmappedTaxonError) Is(target error) bool { return target == ErrUnmappedTaxon }

// TaxonMismatchError lists the targets present on only one side.
type TaxonMismatchError struct {
	Left, Right  string
	OnlyLeft     []string
	OnlyRight    []string
	OrderDiffers bool
}

func (e *TaxonMismatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "taxon vocabulary mismatch between %s and %s", e.Left, e.Right)
	if len(e.OnlyLeft) > 0 {
		fmt.Fprintf(&b, "; only in %s: %s", e.Left, strings.Join(e.OnlyLeft, ", "))
	}
	if len(e.OnlyRight) > 0 {
		fmt.Fprintf(&b, "; only in %s: %s", e.Right, strings.Join(e.OnlyRight, ", "))
	}
	if e.OrderDiffers {
		b.WriteString("; same taxa in different order")
	}
	return b.String()
}

func (e *TaxonMismatchError) Is(target error) bool { return target == ErrTaxonMismatch }
