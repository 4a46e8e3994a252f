// Package testutil provides shared test utilities and fixtures.
//
// Helpers take testing.TB so they work from tests, benchmarks and fuzz
// targets alike.
package testutil

import (
	"errors"
	"math"
	"testing"
)

// DefaultTolerance is the relative tolerance used for mass and distance checks.
const DefaultTolerance = 1e-9

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
}

// AssertErrorIs fails the test unless errors.Is(err, target).
func AssertErrorIs(t testing.TB, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("error = %v, want errors.Is(%v)", err, target)
	}
}

// Close reports whether a and b agree within rel relative tolerance
// (absolute near zero).
func Close(a, b, rel float64) bool {
	if a == b {
		return true
	}
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= rel*scale
}

// AssertClose fails the test unless got and want agree within rel.
func AssertClose(t testing.TB, got, want, rel float64) {
	t.Helper()
	if !Close(got, want, rel) {
		t.Errorf("got %.15g, want %.15g (rel tol %g)", got, want, rel)
	}
}

// AssertSliceClose compares two float slices element-wise.
func AssertSliceClose(t testing.TB, got, want []float64, rel float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length = %d, want %d", len(got), len(want))
	}
	for i := range got {
		if !Close(got[i], want[i], rel) {
			t.Errorf("[%d] = %.15g, want %.15g", i, got[i], want[i])
		}
	}
}
