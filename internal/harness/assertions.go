package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/tagbatch/internal/engine"
)

// AssertionContext is the final state assertions inspect.
type AssertionContext struct {
	Engine *engine.Engine
	Result *Result
}

// AssertionError is a failed assertion.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Order    []string // visit order of the last sweep, for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	if len(e.Order) > 0 {
		fmt.Fprintf(&buf, "\n  Last sweep order: %s", strings.Join(e.Order, ", "))
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure
// messages, in assertion order.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func evaluate(a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertLiveCount:
		return assertCount(a, actx.Engine.Len())
	case AssertRunCount:
		return assertCount(a, actx.Engine.RunCount())
	case AssertLookups:
		return assertCount(a, actx.Engine.LastSweep().Lookups)
	case AssertHandleValid:
		if !actx.Engine.Contains(a.ID) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s resolves to a live record", a.ID),
				Actual:   "handle is not live",
			}
		}
		return nil
	case AssertHandleInvalid:
		if actx.Engine.Contains(a.ID) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s does not resolve", a.ID),
				Actual:   "handle is live",
			}
		}
		return nil
	case AssertSweepOrder:
		return assertSweepOrder(a, actx.Result)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertCount(a Assertion, got int) error {
	if got == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d", a.Count),
		Actual:   fmt.Sprintf("%d", got),
	}
}

// assertSweepOrder checks the exact visit order of the last sweep.
func assertSweepOrder(a Assertion, result *Result) error {
	last, ok := result.LastSweep()
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("[%s]", strings.Join(a.IDs, ", ")),
			Actual:   "no sweep was run",
		}
	}
	order := make([]string, len(last.Outputs))
	for i, o := range last.Outputs {
		order[i] = o.ID
	}
	if slices.Equal(order, a.IDs) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("[%s]", strings.Join(a.IDs, ", ")),
		Actual:   fmt.Sprintf("[%s]", strings.Join(order, ", ")),
		Order:    order,
	}
}
