package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/NotDec/NotDec-sub000/internal/ir"
)

// CallSite is one direct call of a function.
type CallSite struct {
	Caller string
	CallID string
}

// CallGraph is the direct call relation of a program. Indirect calls and
// calls to names outside the program have no edge.
type CallGraph struct {
	// Order lists the functions in declaration order.
	Order []string

	callees map[string][]string
	callers map[string][]CallSite
}

// BuildCallGraph collects the direct calls of every function.
func BuildCallGraph(p *ir.Program) *CallGraph {
	g := &CallGraph{
		Order:   p.FunctionNames(),
		callees: make(map[string][]string),
		callers: make(map[string][]CallSite),
	}
	for _, f := range p.Functions {
		for _, c := range f.Calls {
			if c.Callee == "" || !p.IsFunction(c.Callee) {
				continue
			}
			if !slices.Contains(g.callees[f.Name], c.Callee) {
				g.callees[f.Name] = append(g.callees[f.Name], c.Callee)
			}
			g.callers[c.Callee] = append(g.callers[c.Callee], CallSite{Caller: f.Name, CallID: c.ID})
		}
	}
	return g
}

// Callees returns the distinct direct callees of f in call order.
func (g *CallGraph) Callees(f string) []string { return g.callees[f] }

// Callers returns every call site of f in declaration order.
func (g *CallGraph) Callers(f string) []CallSite { return g.callers[f] }

// SCCs returns the strongly connected components in post order: every
// component comes after the components it calls. Members keep declaration
// order and the result is deterministic for a given program.
func (g *CallGraph) SCCs() [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)
	pos := make(map[string]int, len(g.Order))
	for i, name := range g.Order {
		pos[name] = i
	}

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.callees[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.SortFunc(scc, func(a, b string) int { return pos[a] - pos[b] })
			sccs = append(sccs, scc)
		}
	}

	for _, name := range g.Order {
		if _, visited := indices[name]; !visited {
			strongConnect(name)
		}
	}
	return sccs
}

// IsRecursive reports whether the component calls itself.
func (g *CallGraph) IsRecursive(scc []string) bool {
	if len(scc) > 1 {
		return true
	}
	return len(scc) == 1 && slices.Contains(g.callees[scc[0]], scc[0])
}

// RecursionWarning reports a recursive component. Recursion is legal; the
// functions of the component are analysed together and share one summary.
type RecursionWarning struct {
	Path    []string `json:"path"`
	Message string   `json:"message"`
	Level   string   `json:"level"`
}

// AnalyzeRecursion lists one warning per recursive component.
func AnalyzeRecursion(g *CallGraph) []RecursionWarning {
	var warnings []RecursionWarning
	for _, scc := range g.SCCs() {
		if !g.IsRecursive(scc) {
			continue
		}
		if len(scc) == 1 {
			warnings = append(warnings, RecursionWarning{
				Path:    []string{scc[0], scc[0]},
				Message: fmt.Sprintf("self-recursive function: %s", scc[0]),
				Level:   "info",
			})
			continue
		}
		path := cyclePath(scc, g)
		warnings = append(warnings, RecursionWarning{
			Path:    path,
			Message: fmt.Sprintf("mutually recursive functions: %s", strings.Join(path, " → ")),
			Level:   "info",
		})
	}
	return warnings
}

// cyclePath follows calls inside the component from its first member until
// it returns there or gets stuck.
func cyclePath(scc []string, g *CallGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}
	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)
	for {
		visited[current] = true
		var next string
		for _, w := range g.callees[current] {
			if members[w] && (!visited[w] || w == start) {
				next = w
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
