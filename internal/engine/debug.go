package engine

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// dump writes the graph of g at the given stage under the debug
// directory as `<dir>/<unit>/<stage>.dot`, `.txt` and `.values.txt`.
// Failures are logged and otherwise ignored.
func (a *analysis) dump(g *Generator, stage string) {
	dir := a.ctx.Config.DebugDir
	if dir == "" {
		return
	}
	if err := DumpGenerator(g, filepath.Join(dir, a.runID, dumpName(g.Name)), stage); err != nil {
		a.ctx.Logger.Warn("engine: debug dump failed", "graph", g.Name, "stage", stage, "error", err)
	}
}

// DumpGenerator writes the dot rendering, the edge list and the value map
// of g into dir, named after stage.
func DumpGenerator(g *Generator, dir, stage string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dump dir: %w", err)
	}
	write := func(name string, fn func(io.Writer) error) error {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
	if err := write(stage+".dot", g.CG.WriteDot); err != nil {
		return err
	}
	if err := write(stage+".txt", g.CG.WriteText); err != nil {
		return err
	}
	return write(stage+".values.txt", g.WriteValues)
}

// WriteValues writes one line per mapped value: the value, then its
// covariant and contravariant node keys.
func (g *Generator) WriteValues(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, v := range g.Values() {
		co, contra := "-", "-"
		if id, ok := g.V2N[v]; ok {
			co = g.CG.Node(id).Key.String()
		}
		if id, ok := g.V2NContra[v]; ok {
			contra = g.CG.Node(id).Key.String()
		}
		fmt.Fprintf(bw, "%s\t%s\t%s\n", v, co, contra)
	}
	for _, call := range g.Calls() {
		p := g.CallToInstance[call]
		fmt.Fprintf(bw, "call %s -> %s\n", call, g.CG.Node(p.Co).Key)
	}
	return bw.Flush()
}

// dumpName makes a unit name safe as a directory name.
func dumpName(name string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_")
	return r.Replace(name)
}
