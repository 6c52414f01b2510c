package compiler

import (
	"fmt"
	"maps"
	"slices"

	"github.com/NotDec/NotDec-sub000/internal/ir"
	"github.com/NotDec/NotDec-sub000/internal/pni"
	"github.com/NotDec/NotDec-sub000/internal/schema"
)

// Validation error codes (E200-E299)
const (
	ErrDuplicateFunction   = "E201" // two functions share a name
	ErrEmptyName           = "E202" // function name is empty
	ErrMalformedConstraint = "E203" // constraint text does not parse
	ErrInvalidArithOp      = "E204" // arith op is not add/sub
	ErrDuplicateCall       = "E205" // call id reused within a function
	ErrMalformedCell       = "E206" // cell text does not parse
	ErrDeclarationBody     = "E207" // declaration carries a body
	ErrInvalidPointerSize  = "E208" // pointer size is not 16, 32 or 64
	ErrMalformedVar        = "E209" // value/arith/call variable does not parse
	ErrDuplicateValue      = "E210" // value id reused within a function
	ErrArgOutOfRange       = "E211" // call passes more args than a non-vararg callee takes
)

// ValidationError is a coded problem in an input program.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidateProgram checks a decoded program. It returns every problem
// found instead of stopping at the first.
func ValidateProgram(p *ir.Program) []ValidationError {
	var errs []ValidationError

	switch p.PointerSize {
	case 0, 16, 32, 64:
	default:
		errs = append(errs, ValidationError{
			Field:   "pointer_size",
			Message: fmt.Sprintf("unsupported pointer size %d", p.PointerSize),
			Code:    ErrInvalidPointerSize,
		})
	}

	pool := schema.NewPool()
	seen := make(map[string]bool)
	for i := range p.Functions {
		f := &p.Functions[i]
		field := fmt.Sprintf("functions[%d]", i)

		if f.Name == "" {
			errs = append(errs, ValidationError{Field: field + ".name", Message: "name is required", Code: ErrEmptyName})
		} else if seen[f.Name] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate function name: %q", f.Name),
				Code:    ErrDuplicateFunction,
			})
		}
		seen[f.Name] = true

		if f.Declaration && (len(f.Constraints) > 0 || len(f.Calls) > 0 || len(f.Arith) > 0) {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("declaration %q must not have a body", f.Name),
				Code:    ErrDeclarationBody,
			})
		}
		errs = append(errs, validateBody(p, f, field, pool)...)
	}
	return errs
}

func validateBody(p *ir.Program, f *ir.Function, field string, pool *schema.Pool) []ValidationError {
	var errs []ValidationError
	checkVar := func(at, text string) {
		if text == "" {
			return
		}
		if _, err := schema.ParseTypeVar(pool, text); err != nil {
			errs = append(errs, ValidationError{Field: at, Message: err.Error(), Code: ErrMalformedVar})
		}
	}

	for j, c := range f.Constraints {
		if _, err := schema.ParseConstraint(pool, c); err != nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.constraints[%d]", field, j),
				Message: err.Error(),
				Code:    ErrMalformedConstraint,
			})
		}
	}

	ids := make(map[string]bool)
	for j, v := range f.Values {
		at := fmt.Sprintf("%s.values[%d]", field, j)
		if ids[v.ID] {
			errs = append(errs, ValidationError{Field: at + ".id", Message: fmt.Sprintf("duplicate value id: %q", v.ID), Code: ErrDuplicateValue})
		}
		ids[v.ID] = true
		checkVar(at+".var", v.Var)
	}

	for j, a := range f.Arith {
		at := fmt.Sprintf("%s.arith[%d]", field, j)
		if a.Op != ir.OpAdd && a.Op != ir.OpSub {
			errs = append(errs, ValidationError{Field: at + ".op", Message: fmt.Sprintf("unknown op %q", a.Op), Code: ErrInvalidArithOp})
		}
		checkVar(at+".left", a.Left)
		checkVar(at+".right", a.Right)
		checkVar(at+".result", a.Result)
	}

	calls := make(map[string]bool)
	for j, c := range f.Calls {
		at := fmt.Sprintf("%s.calls[%d]", field, j)
		if calls[c.ID] {
			errs = append(errs, ValidationError{Field: at + ".id", Message: fmt.Sprintf("duplicate call id: %q", c.ID), Code: ErrDuplicateCall})
		}
		calls[c.ID] = true
		for k, arg := range c.Args {
			checkVar(fmt.Sprintf("%s.args[%d]", at, k), arg)
		}
		checkVar(at+".result", c.Result)
		if callee, ok := p.Function(c.Callee); ok && !callee.VarArg && c.Format == "" && len(c.Args) > callee.Params {
			errs = append(errs, ValidationError{
				Field:   at + ".args",
				Message: fmt.Sprintf("%q takes %d arguments, got %d", callee.Name, callee.Params, len(c.Args)),
				Code:    ErrArgOutOfRange,
			})
		}
	}

	for _, name := range sortedKeys(f.Cells) {
		at := fmt.Sprintf("%s.cells[%q]", field, name)
		checkVar(at, name)
		if _, err := pni.ParseCell(f.Cells[name], p.Pointer()); err != nil {
			errs = append(errs, ValidationError{Field: at, Message: err.Error(), Code: ErrMalformedCell})
		}
	}

	for j, c := range f.Constants {
		checkVar(fmt.Sprintf("%s.constants[%d].var", field, j), c.Var)
	}
	return errs
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
