package taxonomy

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeLabel returns the lookup key of a raw taxon label: Unicode NFC,
// internal whitespace collapsed to single spaces, case folded. Archive exports
// are inconsistent about all three ("Pinus  strobus", "PINUS strobus").
func NormalizeLabel(s string) string {
	s = norm.NFC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	return cases.Fold().String(s)
}

// cleanTarget trims a target label. Targets are compared exactly: they are
// the column names handed to the model, so both maps must spell them alike.
func cleanTarget(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
