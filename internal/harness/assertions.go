package harness

import (
	"fmt"
	"strings"

	"github.com/NotDec/NotDec-sub000/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string         // Assertion type for categorization
	Expected string         // Human-readable expected outcome
	Actual   string         // Human-readable actual outcome
	Values   []ir.ValueType // All recovered values for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Values) > 0 {
		fmt.Fprintf(&buf, "\nRecovered values:\n")
		for _, v := range e.Values {
			fmt.Fprintf(&buf, "  %s: %s\n", v.Value, v.Upper)
		}
	}
	return buf.String()
}

// assertValueType checks the types of one value. Lower and Size are only
// compared when set in the assertion.
func assertValueType(res *ir.Result, a Assertion) error {
	v, ok := res.Value(a.Value)
	if !ok {
		return &AssertionError{
			Type:     AssertValueType,
			Expected: fmt.Sprintf("value %s", a.Value),
			Actual:   "not found in result",
			Values:   res.Values,
		}
	}
	if v.Upper != a.Upper {
		return &AssertionError{
			Type:     AssertValueType,
			Expected: fmt.Sprintf("%s: %q", a.Value, a.Upper),
			Actual:   fmt.Sprintf("%q", v.Upper),
			Values:   res.Values,
		}
	}
	if a.Lower != "" && v.Lower != a.Lower {
		return &AssertionError{
			Type:     AssertValueType,
			Expected: fmt.Sprintf("%s lower: %q", a.Value, a.Lower),
			Actual:   fmt.Sprintf("%q", v.Lower),
			Values:   res.Values,
		}
	}
	if a.Size != 0 && v.Size != a.Size {
		return &AssertionError{
			Type:     AssertValueType,
			Expected: fmt.Sprintf("%s size: %d", a.Value, a.Size),
			Actual:   fmt.Sprintf("%d", v.Size),
			Values:   res.Values,
		}
	}
	return nil
}

// assertValueContains checks that the upper type of a value contains a
// substring.
func assertValueContains(res *ir.Result, a Assertion) error {
	v, ok := res.Value(a.Value)
	if !ok {
		return &AssertionError{
			Type:     AssertValueContains,
			Expected: fmt.Sprintf("value %s", a.Value),
			Actual:   "not found in result",
			Values:   res.Values,
		}
	}
	if !strings.Contains(v.Upper, a.Contains) {
		return &AssertionError{
			Type:     AssertValueContains,
			Expected: fmt.Sprintf("%s containing %q", a.Value, a.Contains),
			Actual:   fmt.Sprintf("%q", v.Upper),
			Values:   res.Values,
		}
	}
	return nil
}

func assertDeclarationContains(res *ir.Result, a Assertion) error {
	for _, d := range res.Declarations {
		if strings.Contains(d, a.Contains) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertDeclarationContains,
		Expected: fmt.Sprintf("a declaration containing %q", a.Contains),
		Actual:   fmt.Sprintf("%d declarations, none matching", len(res.Declarations)),
	}
}

// assertUnhandledCall checks that a call is reported unhandled. Reason is
// only compared when set in the assertion.
func assertUnhandledCall(res *ir.Result, a Assertion) error {
	for _, u := range res.Unhandled {
		if u.Call != a.Call {
			continue
		}
		if a.Reason != "" && u.Reason != a.Reason {
			return &AssertionError{
				Type:     AssertUnhandledCall,
				Expected: fmt.Sprintf("%s unhandled: %s", a.Call, a.Reason),
				Actual:   fmt.Sprintf("unhandled: %s", u.Reason),
			}
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertUnhandledCall,
		Expected: fmt.Sprintf("%s unhandled", a.Call),
		Actual:   "call was handled",
	}
}

func assertUnhandledCount(res *ir.Result, a Assertion) error {
	if n := len(res.Unhandled); n != a.Count {
		return &AssertionError{
			Type:     AssertUnhandledCount,
			Expected: fmt.Sprintf("%d unhandled calls", a.Count),
			Actual:   fmt.Sprintf("%d unhandled calls", n),
		}
	}
	return nil
}

func assertMemoryType(res *ir.Result, a Assertion) error {
	if !strings.Contains(res.Memory, a.Contains) {
		return &AssertionError{
			Type:     AssertMemoryType,
			Expected: fmt.Sprintf("memory type containing %q", a.Contains),
			Actual:   fmt.Sprintf("%q", res.Memory),
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the engine result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(res *ir.Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertValueType:
			err = assertValueType(res, assertion)
		case AssertValueContains:
			err = assertValueContains(res, assertion)
		case AssertDeclarationContains:
			err = assertDeclarationContains(res, assertion)
		case AssertUnhandledCall:
			err = assertUnhandledCall(res, assertion)
		case AssertUnhandledCount:
			err = assertUnhandledCount(res, assertion)
		case AssertMemoryType:
			err = assertMemoryType(res, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
