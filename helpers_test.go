package jsongraph

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

// TestHelper provides assertions for codec tests
type TestHelper struct {
	t *testing.T
}

// NewTestHelper creates a new test helper
func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{t: t}
}

func message(fallback string, msgAndArgs []any) string {
	if len(msgAndArgs) > 0 {
		return fmt.Sprintf(msgAndArgs[0].(string), msgAndArgs[1:]...)
	}
	return fallback
}

// AssertEqual checks if two values are deeply equal
func (h *TestHelper) AssertEqual(expected, actual any, msgAndArgs ...any) {
	h.t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		h.t.Errorf("%s\nExpected: %v (%T)\nActual: %v (%T)",
			message("Values are not equal", msgAndArgs), expected, expected, actual, actual)
	}
}

// AssertNoError fails the test immediately when err is not nil
func (h *TestHelper) AssertNoError(err error, msgAndArgs ...any) {
	h.t.Helper()
	if err != nil {
		h.t.Fatalf("%s, but got: %v", message("Expected no error", msgAndArgs), err)
	}
}

// AssertError checks that err is not nil
func (h *TestHelper) AssertError(err error, msgAndArgs ...any) {
	h.t.Helper()
	if err == nil {
		h.t.Error(message("Expected an error", msgAndArgs) + ", but got nil")
	}
}

// AssertErrorIs checks that err matches target with errors.Is
func (h *TestHelper) AssertErrorIs(err, target error, msgAndArgs ...any) {
	h.t.Helper()
	if !errors.Is(err, target) {
		h.t.Errorf("%s: expected %v, got %v", message("Unexpected error", msgAndArgs), target, err)
	}
}

// AssertErrorContains checks that the error text contains a substring
func (h *TestHelper) AssertErrorContains(err error, contains string, msgAndArgs ...any) {
	h.t.Helper()
	if err == nil {
		h.t.Error(message("Expected an error", msgAndArgs) + ", but got nil")
		return
	}
	if !strings.Contains(err.Error(), contains) {
		h.t.Errorf("%s, but got: %v", message(fmt.Sprintf("Expected error to contain '%s'", contains), msgAndArgs), err)
	}
}

// AssertPanic checks that fn panics
func (h *TestHelper) AssertPanic(fn func(), msgAndArgs ...any) {
	h.t.Helper()
	defer func() {
		if r := recover(); r == nil {
			h.t.Error(message("Expected function to panic", msgAndArgs) + ", but it didn't")
		}
	}()
	fn()
}

// AssertTrue checks that condition is true
func (h *TestHelper) AssertTrue(condition bool, msgAndArgs ...any) {
	h.t.Helper()
	if !condition {
		h.t.Error(message("Expected condition to be true", msgAndArgs))
	}
}

// AssertFalse checks that condition is false
func (h *TestHelper) AssertFalse(condition bool, msgAndArgs ...any) {
	h.t.Helper()
	if condition {
		h.t.Error(message("Expected condition to be false", msgAndArgs))
	}
}

// AssertNil checks that value is nil, including typed nil pointers
func (h *TestHelper) AssertNil(value any, msgAndArgs ...any) {
	h.t.Helper()
	if value == nil {
		return
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		if rv.IsNil() {
			return
		}
	}
	h.t.Errorf("%s, got %v", message("Expected nil", msgAndArgs), value)
}

// ConcurrencyTester runs one operation from many goroutines
type ConcurrencyTester struct {
	t           *testing.T
	concurrency int
	iterations  int
}

// NewConcurrencyTester creates a new concurrency tester
func NewConcurrencyTester(t *testing.T, concurrency, iterations int) *ConcurrencyTester {
	return &ConcurrencyTester{t: t, concurrency: concurrency, iterations: iterations}
}

// Run runs operation concurrently and reports the first failure of each worker
func (ct *ConcurrencyTester) Run(operation func(workerID, iteration int) error) {
	ct.t.Helper()
	done := make(chan error, ct.concurrency)
	for i := 0; i < ct.concurrency; i++ {
		go func(workerID int) {
			for j := 0; j < ct.iterations; j++ {
				if err := operation(workerID, j); err != nil {
					done <- fmt.Errorf("worker %d, iteration %d: %w", workerID, j, err)
					return
				}
			}
			done <- nil
		}(i)
	}
	for i := 0; i < ct.concurrency; i++ {
		if err := <-done; err != nil {
			ct.t.Errorf("Concurrent operation failed: %v", err)
		}
	}
}
