package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/NotDec/NotDec-sub000/internal/compiler"
	"github.com/NotDec/NotDec-sub000/internal/graph"
	"github.com/NotDec/NotDec-sub000/internal/ir"
	"github.com/NotDec/NotDec-sub000/internal/layout"
	"github.com/NotDec/NotDec-sub000/internal/schema"
)

// SummaryStore caches SCC summaries across runs and records finished
// runs. Implemented by *store.Store.
type SummaryStore interface {
	// LoadSummary returns the summary cached under key. ok is false on a
	// miss.
	LoadSummary(ctx context.Context, key string) (s *ir.Summary, ok bool, err error)
	SaveSummary(ctx context.Context, key, scc string, s *ir.Summary) error
	RecordRun(ctx context.Context, res *ir.Result) error
}

// Engine drives the type recovery of whole programs.
//
// A run walks the call graph twice. Bottom-up, every SCC is built from
// its functions, linked to the summaries of its callees and saturated; a
// summary of the SCC is then extracted for its callers. Top-down, every
// SCC receives a signature determinized from the call instances of its
// callers and is saturated again. Global memory gets its own graph built
// from every top-down MEMORY node. Finally each graph is post-processed
// into sketches, laid out and rendered as C types.
//
// Thread-safety model:
//   - Run(): safe to call from several goroutines; runs share nothing but
//     the optional store
//   - Each run is single-threaded and deterministic for a given program
//     and configuration (up to the run id)
type Engine struct {
	logger *slog.Logger
	store  SummaryStore
	runIDs RunIDGenerator
	cfg    Config
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithStore enables the summary cache and run history.
func WithStore(s SummaryStore) EngineOption {
	return func(e *Engine) {
		e.store = s
	}
}

// WithRunIDGenerator sets the run id source. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) EngineOption {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// WithConfig sets the run configuration. Default: DefaultConfig().
func WithConfig(c Config) EngineOption {
	return func(e *Engine) {
		e.cfg = c
	}
}

// New creates an Engine.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		logger: slog.Default(),
		runIDs: UUIDv7Generator{},
		cfg:    DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the configuration runs use.
func (e *Engine) Config() Config { return e.cfg }

// unit is one call-graph SCC, or several merged monomorphic ones.
type unit struct {
	Name  string
	Funcs []string
}

// analysis is the state of one run.
type analysis struct {
	eng   *Engine
	ctx   *Context
	cg    *compiler.CallGraph
	runID string

	units    []*unit
	funcUnit map[string]*unit

	bottomUp  map[string]*Generator
	topDown   map[string]*Generator
	summaries map[string]*Generator // by function
	overrides map[string]*Generator // by override key
	keys      map[string]string     // cache key by unit

	diags []ir.Diagnostic
}

// Run analyses p and returns the recovered types.
//
// The program is validated first; a program with validation errors is
// rejected with ErrCodeInvalidProgram. Invariant violations abort the run
// and are returned as *AnalysisError naming the SCC and phase.
func (e *Engine) Run(ctx context.Context, p *ir.Program) (*ir.Result, error) {
	if verrs := compiler.ValidateProgram(p); len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, v := range verrs {
			msgs[i] = v.Error()
		}
		return nil, &AnalysisError{Code: ErrCodeInvalidProgram, Message: strings.Join(msgs, "; ")}
	}
	hash, err := ir.ProgramHash(p)
	if err != nil {
		return nil, err
	}

	runID := e.runIDs.Generate()
	logger := e.logger.With("run", runID)
	a := &analysis{
		eng:       e,
		ctx:       NewContext(p, e.cfg, logger),
		cg:        compiler.BuildCallGraph(p),
		runID:     runID,
		funcUnit:  make(map[string]*unit),
		bottomUp:  make(map[string]*Generator),
		topDown:   make(map[string]*Generator),
		summaries: make(map[string]*Generator),
		overrides: make(map[string]*Generator),
		keys:      make(map[string]string),
	}
	if err := a.loadOverrides(); err != nil {
		return nil, err
	}
	a.prepareSCCs()
	logger.Info("engine: run starting", "functions", len(p.Functions), "units", len(a.units))

	for _, u := range a.units {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := a.runBottomUp(ctx, u); err != nil {
			return nil, a.fail(u, "bottom-up", err)
		}
	}
	for i := len(a.units) - 1; i >= 0; i-- {
		u := a.units[i]
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := a.runTopDown(u); err != nil {
			return nil, a.fail(u, "top-down", err)
		}
	}
	mem, err := a.globalMemory()
	if err != nil {
		return nil, wrapPhase(err, "", "global")
	}

	res, err := a.results(mem)
	if err != nil {
		return nil, err
	}
	res.RunID = runID
	res.ProgramHash = hash
	if e.store != nil {
		if err := e.store.RecordRun(ctx, res); err != nil {
			logger.Warn("engine: failed to record run", "error", err)
		}
	}
	logger.Info("engine: run finished", "values", len(res.Values), "unhandled", len(res.Unhandled))
	return res, nil
}

// fail wraps err for unit u and dumps the unit's graphs when debugging.
func (a *analysis) fail(u *unit, phase string, err error) error {
	err = wrapPhase(err, u.Name, phase)
	if g, ok := a.topDown[u.Name]; ok {
		a.dump(g, "failed")
	} else if g, ok := a.bottomUp[u.Name]; ok {
		a.dump(g, "failed")
	}
	a.ctx.Logger.Error("engine: analysis aborted", "scc", u.Name, "phase", phase, "error", err)
	return err
}

func (a *analysis) loadOverrides() error {
	load := func(path string, dst *ir.SummaryFile) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return &AnalysisError{Code: ErrCodeOverride, Message: "read " + path, Err: err}
		}
		if err := json.Unmarshal(data, dst); err != nil {
			return &AnalysisError{Code: ErrCodeOverride, Message: "parse " + path, Err: err}
		}
		return nil
	}
	cfg := a.ctx.Config
	if err := load(cfg.SummaryOverride, &a.ctx.Summaries); err != nil {
		return err
	}
	return load(cfg.SignatureOverride, &a.ctx.Signatures)
}

// prepareSCCs splits the program into units in post order, skipping SCCs
// made only of declarations and intrinsics.
func (a *analysis) prepareSCCs() {
	p := a.ctx.Program
	cfg := a.ctx.Config
	var sccs [][]string
	for _, scc := range a.cg.SCCs() {
		if cfg.NoSCC || cfg.DisableInterproc {
			for _, f := range scc {
				sccs = append(sccs, []string{f})
			}
			continue
		}
		sccs = append(sccs, scc)
	}

	poly := func(funcs []string) bool {
		return slices.ContainsFunc(funcs, a.ctx.isPolymorphic)
	}
	for _, scc := range sccs {
		body := slices.ContainsFunc(scc, func(f string) bool {
			fn, _ := p.Function(f)
			return !fn.Declaration && !fn.Intrinsic
		})
		if !body {
			continue
		}
		if n := len(a.units); cfg.MergeMonomorphic && n > 0 && !poly(scc) && !poly(a.units[n-1].Funcs) {
			a.units[n-1].Funcs = append(a.units[n-1].Funcs, scc...)
			continue
		}
		a.units = append(a.units, &unit{Funcs: slices.Clone(scc)})
	}
	for _, u := range a.units {
		u.Name = ir.JoinFuncNames(u.Funcs)
		for _, f := range u.Funcs {
			a.funcUnit[f] = u
		}
	}
}

// runBottomUp builds and saturates u, then records its summary.
func (a *analysis) runBottomUp(ctx context.Context, u *unit) error {
	c := a.ctx
	gen, err := a.overrideSummary(u.Funcs[0])
	if err != nil {
		return err
	}
	if gen != nil && sameFuncs(gen.Funcs, u.Funcs) {
		c.Logger.Debug("engine: bottom-up from summary override", "scc", u.Name)
		gen = gen.Clone(u.Name)
	} else {
		gen = c.NewGenerator(u.Name, u.Funcs)
		for _, f := range u.Funcs {
			fn, _ := c.Program.Function(f)
			if err := gen.BuildFunction(fn); err != nil {
				return err
			}
		}
		for _, call := range gen.Calls() {
			callee := gen.CallTargets[call]
			sum, err := a.calleeSummary(call, callee)
			if err != nil {
				return err
			}
			if sum == nil {
				caller, _, _ := strings.Cut(call, "/")
				gen.addUnhandled(caller, call, callee, "no summary for callee")
				continue
			}
			if err := gen.InstantiateSummary(call, sum); err != nil {
				return err
			}
		}
	}
	a.dump(gen, "bottom-up-built")
	if err := gen.CG.Saturate(c.Config.saturateOptions()); err != nil {
		return err
	}
	a.bottomUp[u.Name] = gen
	a.dump(gen, "bottom-up")

	if c.Config.DisableInterproc {
		return nil
	}
	sum, err := a.summarize(ctx, u, gen)
	if err != nil {
		return err
	}
	if sum == nil {
		return nil
	}
	sg, err := FromSummary(c, u.Name+"-summary", u.Funcs, *sum)
	if err != nil {
		return err
	}
	if sg == nil {
		return nil
	}
	for _, f := range u.Funcs {
		a.summaries[f] = sg
	}
	return nil
}

// summarize returns the summary of u, from the cache when possible.
func (a *analysis) summarize(ctx context.Context, u *unit, gen *Generator) (*ir.Summary, error) {
	st := a.eng.store
	key, cacheable := a.cacheKey(u)
	if st != nil && cacheable {
		s, ok, err := st.LoadSummary(ctx, key)
		if err != nil {
			a.ctx.Logger.Warn("engine: summary cache read failed", "scc", u.Name, "error", err)
		} else if ok {
			a.ctx.Logger.Debug("engine: summary cache hit", "scc", u.Name)
			return s, nil
		}
	}
	s, err := GenSummary(gen)
	if err != nil {
		return nil, err
	}
	if st != nil && cacheable && s != nil {
		if err := st.SaveSummary(ctx, key, u.Name, s); err != nil {
			a.ctx.Logger.Warn("engine: summary cache write failed", "scc", u.Name, "error", err)
		}
	}
	return s, nil
}

// cacheKey derives the content key of u's summary. Runs with override
// files are never cached.
func (a *analysis) cacheKey(u *unit) (string, bool) {
	c := a.ctx
	if c.Config.SummaryOverride != "" || c.Config.SignatureOverride != "" {
		return "", false
	}
	members := make([]string, 0, len(u.Funcs))
	var callees []string
	for _, f := range u.Funcs {
		fn, _ := c.Program.Function(f)
		h, err := ir.FunctionHash(fn, c.PointerSize)
		if err != nil {
			return "", false
		}
		members = append(members, h)
		for _, callee := range a.cg.Callees(f) {
			cu, ok := a.funcUnit[callee]
			switch {
			case ok && cu == u:
			case ok:
				callees = append(callees, a.keys[cu.Name])
			default:
				callees = append(callees, "decl:"+callee)
			}
		}
	}
	callees = append(callees, fmt.Sprintf("cfg:ptr=%v,sat=%v,poly=%s",
		c.Config.NoPointerRule, c.Config.SatDisable, strings.Join(c.Config.PolyFuncs, ",")))
	key, err := ir.SummaryKey(members, callees)
	if err != nil {
		return "", false
	}
	a.keys[u.Name] = key
	return key, true
}

// calleeSummary picks the summary instantiated for a call: a callsite
// override, then a printf format summary, then a summary override, then
// the summary computed for the callee's SCC.
func (a *analysis) calleeSummary(callID, callee string) (*Generator, error) {
	c := a.ctx
	if s, ok := c.Summaries[callID]; ok {
		return a.buildOverride(callID, []string{callee}, s)
	}
	if call, ok := a.findCall(callID); ok && call.Format != "" {
		return PrintfSummary(c, callee, call.Format)
	}
	gen, err := a.overrideSummary(callee)
	if err != nil || gen != nil {
		return gen, err
	}
	if c.Config.DisableInterproc {
		return nil, nil
	}
	return a.summaries[callee], nil
}

// overrideSummary returns the summary override listing f, or nil.
func (a *analysis) overrideSummary(f string) (*Generator, error) {
	s, key, ok := a.ctx.Summaries.Lookup(f)
	if !ok {
		return nil, nil
	}
	return a.buildOverride(key, ir.SplitFuncNames(key), s)
}

func (a *analysis) buildOverride(key string, funcs []string, s ir.Summary) (*Generator, error) {
	if g, ok := a.overrides[key]; ok {
		return g, nil
	}
	g, err := FromSummary(a.ctx, key+"-override", funcs, s)
	if err != nil {
		return nil, err
	}
	a.overrides[key] = g
	return g, nil
}

func (a *analysis) findCall(callID string) (ir.Call, bool) {
	caller, id, ok := strings.Cut(callID, "/")
	if !ok {
		return ir.Call{}, false
	}
	fn, ok := a.ctx.Program.Function(caller)
	if !ok {
		return ir.Call{}, false
	}
	for _, call := range fn.Calls {
		if call.ID == id {
			return call, true
		}
	}
	return ir.Call{}, false
}

// runTopDown refines u with its signature and saturates it.
func (a *analysis) runTopDown(u *unit) error {
	c := a.ctx
	td := a.bottomUp[u.Name].Clone(u.Name + "-td")
	sig, err := a.signature(u)
	if err != nil {
		return err
	}
	if sig != nil {
		old2new := graph.CloneInto(td.CG, sig.CG, nil)
		for _, f := range u.Funcs {
			ref := ir.FuncRef(f)
			fn, ok1 := td.V2N[ref]
			s, ok2 := sig.V2N[ref]
			if !ok1 || !ok2 || old2new[s] == fn {
				continue
			}
			td.CG.AddEdge(fn, old2new[s], graph.One())
			if fc, sc := td.CG.Dual(fn), td.CG.Dual(old2new[s]); fc != graph.NoNode && sc != graph.NoNode {
				td.CG.AddEdge(sc, fc, graph.One())
			}
		}
		a.dump(sig, "signature")
	}
	if err := td.CG.Saturate(c.Config.saturateOptions()); err != nil {
		return err
	}
	td.CG.LinkConstantPtrToMemory()
	td.CG.LinkPrimitives()
	a.topDown[u.Name] = td
	a.dump(td, "top-down")
	return nil
}

// signature builds the signature of u: the signature override when one
// exists, otherwise the determinized call instances of every caller
// outside u.
func (a *analysis) signature(u *unit) (*Generator, error) {
	c := a.ctx
	if s, key, ok := c.Signatures.Lookup(u.Funcs[0]); ok {
		return FromSummary(c, key+"-sig", ir.SplitFuncNames(key), s)
	}
	if c.Config.DisableInterproc {
		return nil, nil
	}
	sig := c.NewGenerator(u.Name+"-sig", u.Funcs)
	for _, f := range u.Funcs {
		var co, contra []GraphNode
		for _, site := range a.cg.Callers(f) {
			cu, ok := a.funcUnit[site.Caller]
			if !ok || cu == u {
				continue
			}
			td, ok := a.topDown[cu.Name]
			if !ok {
				continue
			}
			p, ok := td.CallToInstance[site.Caller+"/"+site.CallID]
			if !ok {
				continue
			}
			co = append(co, GraphNode{G: td.CG, ID: p.Co})
			if p.Contra != graph.NoNode {
				contra = append(contra, GraphNode{G: td.CG, ID: p.Contra})
			}
		}
		if len(co) == 0 {
			continue
		}
		ref := ir.FuncRef(f)
		if id := sig.MultiGraphDeterminizeTo(co, "act_"); id != graph.NoNode {
			sig.V2N[ref] = id
		}
		if id := sig.MultiGraphDeterminizeTo(contra, "actc_"); id != graph.NoNode {
			sig.V2NContra[ref] = id
		}
	}
	if len(sig.V2N) == 0 {
		return nil, nil
	}
	sig.CG.MakeSymmetry()
	return sig, nil
}

// globalMemory determinizes the MEMORY nodes of every top-down graph into
// one graph. It returns nil when no function touches memory.
func (a *analysis) globalMemory() (*Generator, error) {
	c := a.ctx
	key := graph.Key(c.Pool.Memory())
	var starts []GraphNode
	for _, u := range a.units {
		td := a.topDown[u.Name]
		if id := td.CG.Lookup(key); id != graph.NoNode && td.CG.Node(id).OutDegree() > 0 {
			starts = append(starts, GraphNode{G: td.CG, ID: id})
		}
	}
	if len(starts) == 0 {
		return nil, nil
	}
	gm := c.NewGenerator("global-memory", nil)
	top := gm.MultiGraphDeterminizeTo(starts, "mdtm")
	gm.CG.MakeSymmetry()
	mem := gm.CG.Memory(schema.Covariant)
	gm.CG.AddEdge(mem, top, graph.One())
	if tc, mc := gm.CG.Dual(top), gm.CG.Memory(schema.Contravariant); tc != graph.NoNode {
		gm.CG.AddEdge(tc, mc, graph.One())
	}
	if err := gm.CG.Saturate(c.Config.saturateOptions()); err != nil {
		return nil, err
	}
	a.dump(gm, "global-memory")
	return gm, nil
}

// results post-processes every top-down graph and renders the types.
func (a *analysis) results(mem *Generator) (*ir.Result, error) {
	c := a.ctx
	level := c.Config.PostProcessLevel
	res := &ir.Result{}
	var decl *layout.Declarer
	use := func(l *layout.Layouts) *layout.Declarer {
		if decl == nil {
			decl = layout.NewDeclarer(l)
		} else {
			decl.SetLayouts(l)
		}
		return decl
	}

	seen := make(map[string]bool)
	for _, u := range a.units {
		td := a.topDown[u.Name]
		sk, err := td.PostProcess(level)
		if err != nil {
			return nil, wrapPhase(err, u.Name, "layout")
		}
		a.dump(sk.Gen, "sketch")
		d := use(sk.Layouts)
		for _, v := range sk.Gen.Values() {
			vt := ir.ValueType{Value: v.String()}
			if id, ok := sk.Gen.V2N[v]; ok {
				vt.Upper = d.TypeOf(id).String()
				cell := sk.Gen.CG.Cell(id)
				vt.Size = byteSize(cell.Size)
				if cell.Conflict {
					a.diags = append(a.diags, ir.Diagnostic{
						Severity: ir.SeverityWarning,
						Function: v.Func,
						Message:  fmt.Sprintf("%s has conflicting pointer and number uses", v),
					})
				}
			}
			if id, ok := sk.Gen.V2NContra[v]; ok {
				vt.Lower = d.TypeOf(id).String()
			}
			res.Values = append(res.Values, vt)
		}
		for _, uc := range td.UnhandledCalls {
			if seen[uc.Call] {
				continue
			}
			seen[uc.Call] = true
			res.Unhandled = append(res.Unhandled, uc)
		}
	}

	if mem != nil {
		sk, err := mem.PostProcess(level)
		if err != nil {
			return nil, wrapPhase(err, mem.Name, "layout")
		}
		d := use(sk.Layouts)
		if id := sk.Gen.CG.Lookup(graph.Key(c.Pool.Memory())); id != graph.NoNode {
			res.Memory = d.Pointee(id).String()
		}
	}
	if decl != nil {
		res.Declarations = decl.Declarations()
	}

	slices.SortFunc(res.Values, func(x, y ir.ValueType) int { return strings.Compare(x.Value, y.Value) })
	slices.SortFunc(res.Unhandled, func(x, y ir.UnhandledCall) int { return strings.Compare(x.Call, y.Call) })
	res.Diagnostics = a.diags
	return res, nil
}

func sameFuncs(a, b []string) bool {
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}

// errNoProgram is returned by RunFile for an empty path.
var errNoProgram = errors.New("no program path")

// RunFile loads the program at path (CUE or JSON) and runs it.
func (e *Engine) RunFile(ctx context.Context, path string) (*ir.Result, error) {
	if path == "" {
		return nil, errNoProgram
	}
	p, err := compiler.LoadProgram(path)
	if err != nil {
		return nil, &AnalysisError{Code: ErrCodeInvalidProgram, Message: "load " + path, Err: err}
	}
	return e.Run(ctx, p)
}

// byteSize converts a cell width in bits to bytes. A bool occupies one
// byte.
func byteSize(bits uint32) uint32 {
	if bits > 0 && bits < 8 {
		return 1
	}
	return bits / 8
}
