package compiler

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/NotDec/NotDec-sub000/internal/ir"
)

//go:embed program.cue
var programSchema string

// LoadProgram reads a program from a .cue or .json file. JSON is a subset
// of CUE, so both go through the same #Program schema.
func LoadProgram(path string) (*ir.Program, error) {
	switch ext := filepath.Ext(path); ext {
	case ".cue", ".json":
	default:
		return nil, &CompileError{Field: "file", Message: fmt.Sprintf("unsupported program file extension %q", ext)}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read program: %w", err)
	}
	return CompileProgramBytes(data, path)
}

// CompileProgramBytes compiles program source. filename is used in error
// positions only.
func CompileProgramBytes(data []byte, filename string) (*ir.Program, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileProgram(v)
}

// CompileProgram unifies a CUE value with the #Program schema and decodes
// it. A value with a top-level `program` field is unwrapped first.
func CompileProgram(v cue.Value) (*ir.Program, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if inner := v.LookupPath(cue.ParsePath("program")); inner.Exists() {
		v = inner
	}
	schema := v.Context().CompileString(programSchema, cue.Filename("program.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile program schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Program"))
	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}
	var p ir.Program
	if err := unified.Decode(&p); err != nil {
		return nil, formatCUEError(err)
	}
	return &p, nil
}

// CompileError is a load or schema error with its source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
