// Package assert provides minimal test assertion helpers.
package assert

import (
	"cmp"
	"math"
	"reflect"
	"testing"
)

// Equal fails the test if expected != actual.
func Equal[T comparable](t *testing.T, expected, actual T, label string) {
	t.Helper()
	if expected != actual {
		t.Errorf("Expected %v, got %v for %s", expected, actual, label)
	}
}

// DeepEqual fails the test if expected and actual are not deeply equal.
func DeepEqual(t *testing.T, expected, actual any, label string) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Errorf("Expected %v, got %v for %s", expected, actual, label)
	}
}

// Nil fails the test if v is a non-nil value.
func Nil(t *testing.T, v any, label string) {
	t.Helper()
	if !isNil(v) {
		t.Errorf("Expected nil, got %v for %s", v, label)
	}
}

// NotNil fails the test if v is nil.
func NotNil(t *testing.T, v any, label string) {
	t.Helper()
	if isNil(v) {
		t.Errorf("Expected non-nil value for %s", label)
	}
}

// True fails the test if v is false.
func True(t *testing.T, v bool, label string) {
	t.Helper()
	if !v {
		t.Errorf("Expected true for %s", label)
	}
}

// False fails the test if v is true.
func False(t *testing.T, v bool, label string) {
	t.Helper()
	if v {
		t.Errorf("Expected false for %s", label)
	}
}

// Greater fails the test if value <= threshold.
func Greater[T cmp.Ordered](t *testing.T, value, threshold T, label string) {
	t.Helper()
	if value <= threshold {
		t.Errorf("Expected %v > %v for %s", value, threshold, label)
	}
}

// InDelta fails the test if actual is not within delta of expected.
func InDelta(t *testing.T, expected, actual, delta float64, label string) {
	t.Helper()
	if math.Abs(expected-actual) > delta {
		t.Errorf("Expected %v within %v of %v for %s", actual, delta, expected, label)
	}
}

// NoError fails the test if err is non-nil.
func NoError(t *testing.T, err error, label string) {
	t.Helper()
	if err != nil {
		t.Errorf("Unexpected error for %s: %v", label, err)
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
