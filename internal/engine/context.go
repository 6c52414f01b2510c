package engine

import (
	"log/slog"

	"github.com/NotDec/NotDec-sub000/internal/graph"
	"github.com/NotDec/NotDec-sub000/internal/ir"
	"github.com/NotDec/NotDec-sub000/internal/schema"
)

// Context is the state shared by every generator of one run. It is
// threaded explicitly; nothing in the engine is global.
type Context struct {
	Pool        *schema.Pool
	Namer       *schema.Namer
	PointerSize uint32
	Logger      *slog.Logger
	Config      Config
	Program     *ir.Program

	// Overrides by function name. Keys of the override files may list
	// several functions.
	Summaries  ir.SummaryFile
	Signatures ir.SummaryFile
}

// NewContext builds the context for analysing p.
func NewContext(p *ir.Program, cfg Config, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	ps := p.Pointer()
	if cfg.PointerSize != 0 {
		ps = cfg.PointerSize
	}
	return &Context{
		Pool:        schema.NewPool(),
		Namer:       schema.NewNamer(),
		PointerSize: ps,
		Logger:      logger,
		Config:      cfg,
		Program:     p,
	}
}

// NewGraph creates an empty graph configured for this run.
func (c *Context) NewGraph(name string, opts ...graph.Option) *graph.Graph {
	base := []graph.Option{
		graph.WithLogger(c.Logger),
		graph.WithPointerSize(c.PointerSize),
		graph.WithTrace(c.Config.TraceIDs...),
	}
	return graph.New(c.Pool, name, append(base, opts...)...)
}

// NewGenerator creates an empty generator for the given functions.
func (c *Context) NewGenerator(name string, funcs []string) *Generator {
	return newGenerator(c, name, funcs, c.NewGraph(name))
}

// isPolymorphic reports whether f must keep its own unit.
func (c *Context) isPolymorphic(f string) bool {
	if fn, ok := c.Program.Function(f); ok && fn.Polymorphic {
		return true
	}
	for _, name := range c.Config.PolyFuncs {
		if name == f {
			return true
		}
	}
	return false
}
