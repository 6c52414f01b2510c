package engine

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/NotDec/NotDec-sub000/internal/compiler"
	"github.com/NotDec/NotDec-sub000/internal/ir"
)

// BuildUnit builds the graph of funcs on their own and saturates it.
// Callee summaries are not linked, so calls leaving the unit stay open.
// It backs graph inspection; Run is the analysis entry point.
func BuildUnit(p *ir.Program, cfg Config, logger *slog.Logger, funcs []string) (*Generator, error) {
	if len(funcs) == 0 {
		return nil, fmt.Errorf("build unit: no functions")
	}
	if verrs := compiler.ValidateProgram(p); len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, v := range verrs {
			msgs[i] = v.Error()
		}
		return nil, &AnalysisError{Code: ErrCodeInvalidProgram, Message: strings.Join(msgs, "; ")}
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := NewContext(p, cfg, logger)
	name := ir.JoinFuncNames(funcs)
	gen := c.NewGenerator(name, funcs)
	for _, f := range funcs {
		fn, ok := p.Function(f)
		if !ok {
			return nil, &AnalysisError{Code: ErrCodeInvalidProgram, Message: "unknown function " + f, SCC: name, Phase: "build"}
		}
		if err := gen.BuildFunction(fn); err != nil {
			return nil, wrapPhase(err, name, "build")
		}
	}
	if err := gen.CG.Saturate(cfg.saturateOptions()); err != nil {
		return nil, wrapPhase(err, name, "build")
	}
	return gen, nil
}
