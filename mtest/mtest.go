// Package mtest provides small comparison helpers shared by this module's
// test files.
package mtest

import "testing"

// Equate fails the test unless value == expected.
func Equate[T comparable](t *testing.T, value, expected T) {
	t.Helper()
	if value != expected {
		t.Errorf("equation failed: got %v, wanted %v", value, expected)
	}
}

// InRange fails the test unless lo <= value <= hi.
func InRange[T int | int16 | int32 | int64 | uint16 | uint32 | uint64 | float64](t *testing.T, value, lo, hi T) {
	t.Helper()
	if value < lo || value > hi {
		t.Errorf("value %v out of range [%v; %v]", value, lo, hi)
	}
}
