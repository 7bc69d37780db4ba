package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// EvaluateAssertions checks every assertion against result and returns the
// failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for _, a := range assertions {
		if err := evaluate(result, a); err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertDispatched:
		return assertDispatched(result, a)
	case AssertDispatchCount:
		return assertDispatchCount(result, a)
	case AssertEvents:
		return assertEvents(result, a)
	case AssertFinalStage:
		if result.Stage != a.Stage {
			return &AssertionError{Type: a.Type, Expected: a.Stage, Actual: result.Stage}
		}
		return nil
	case AssertInvocations:
		if got := len(result.Reports); got != a.Count {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprint(a.Count), Actual: fmt.Sprint(got)}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertDispatched(result *Result, a Assertion) error {
	got := result.Paths()
	want := a.Paths
	if want == nil {
		want = []string{}
	}
	if slices.Equal(got, want) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: "[" + strings.Join(want, ", ") + "]",
		Actual:   "[" + strings.Join(got, ", ") + "]",
	}
}

func assertDispatchCount(result *Result, a Assertion) error {
	n := 0
	for _, p := range result.Paths() {
		if p == a.Path {
			n++
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s dispatched %d times", a.Path, a.Count),
			Actual:   fmt.Sprintf("%d times", n),
		}
	}
	return nil
}

func assertEvents(result *Result, a Assertion) error {
	prefix := "[" + a.Level + "]"
	if a.Code != "" {
		prefix += "[" + a.Code + "]"
	}
	n := 0
	for _, line := range result.Events {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d events matching %s", a.Count, prefix),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}
