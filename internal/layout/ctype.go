package layout

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/NotDec/NotDec-sub000/internal/graph"
	"github.com/NotDec/NotDec-sub000/internal/pni"
)

type ctKind uint8

const (
	ctPrim ctKind = iota
	ctPointer
	ctArray
	ctRecord
)

// CType is a rendered C type.
type CType struct {
	kind  ctKind
	name  string
	elem  *CType
	count int64
}

func prim(name string) *CType { return &CType{kind: ctPrim, name: name} }

func pointerTo(t *CType) *CType { return &CType{kind: ctPointer, elem: t} }

// IsPointer reports whether t is a pointer type.
func (t *CType) IsPointer() bool { return t.kind == ctPointer }

// Declare renders a declaration of name with type t. An empty name gives
// the abstract type.
func (t *CType) Declare(name string) string {
	switch t.kind {
	case ctPointer:
		inner := "*" + name
		if t.elem.kind == ctArray {
			inner = "(" + inner + ")"
		}
		return t.elem.Declare(inner)
	case ctArray:
		return t.elem.Declare(name + "[" + strconv.FormatInt(t.count, 10) + "]")
	}
	if name == "" {
		return t.name
	}
	return t.name + " " + name
}

func (t *CType) String() string {
	return strings.TrimSpace(t.Declare(""))
}

// Declarer renders the layouts of a graph as C types. Struct and union
// declarations are named `s_N` and `u_N` and listed in creation order.
// Records with the same fields share one declaration.
type Declarer struct {
	l        *Layouts
	records  map[graph.NodeID]*CType
	shapes   map[string]*CType
	decls    []string
	visiting map[graph.NodeID]bool
	fieldSeq int
	declSeq  int
}

// NewDeclarer creates a Declarer over l.
func NewDeclarer(l *Layouts) *Declarer {
	return &Declarer{
		l:        l,
		records:  make(map[graph.NodeID]*CType),
		shapes:   make(map[string]*CType),
		visiting: make(map[graph.NodeID]bool),
	}
}

// SetLayouts switches d to the layouts of another graph. Declarations
// name counters and known record shapes carry over.
func (d *Declarer) SetLayouts(l *Layouts) {
	d.l = l
	d.records = make(map[graph.NodeID]*CType)
	d.visiting = make(map[graph.NodeID]bool)
}

// Declarations returns the struct and union definitions rendered so far.
func (d *Declarer) Declarations() []string {
	out := make([]string, 0, len(d.decls))
	for _, s := range d.decls {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// TypeOf returns the C type of the value at id.
func (d *Declarer) TypeOf(id graph.NodeID) *CType {
	if d.l.g.Node(id) == nil || d.l.g.IsStartOrEnd(id) {
		return prim("void")
	}
	if d.l.IsPointer(id) {
		return pointerTo(d.pointee(id, 0))
	}
	return d.primitive(id)
}

// Pointee returns the C type of the object id points to.
func (d *Declarer) Pointee(id graph.NodeID) *CType {
	if d.l.g.Node(id) == nil {
		return prim("void")
	}
	return d.pointee(id, 0)
}

// pointee returns the type id points to. A positive sizeHint bounds the
// element count of arrays.
func (d *Declarer) pointee(id graph.NodeID, sizeHint int64) *CType {
	if rec, ok := d.records[id]; ok {
		return rec
	}
	info, ok := d.l.infos[id]
	if !ok || d.visiting[id] {
		return prim("void")
	}
	d.visiting[id] = true
	defer delete(d.visiting, id)

	switch info.Kind {
	case KindSimple:
		if info.Target == graph.NoNode {
			return prim("void")
		}
		return d.TypeOf(info.Target)
	case KindArray:
		count := int64(1)
		if info.ElemSize > 0 {
			count = max(1, info.Size/info.ElemSize)
			if sizeHint > 0 {
				count = max(1, sizeHint/info.ElemSize)
			}
		}
		return &CType{kind: ctArray, elem: d.pointee(info.Target, info.ElemSize), count: count}
	case KindStruct:
		return d.record(id, info, "struct", "s_")
	case KindUnion:
		return d.record(id, info, "union", "u_")
	}
	return prim("void")
}

// fieldSlot stands for the field name while a record body is rendered.
const fieldSlot = "\x00"

type fieldLine struct {
	text   string
	prefix string
}

// record declares the struct or union at id. A record whose fields match
// an earlier declaration reuses it, unless the new one is referenced from
// its own body or from a record nested in it.
func (d *Declarer) record(id graph.NodeID, info *TypeInfo, keyword, prefix string) *CType {
	d.declSeq++
	name := keyword + " " + prefix + strconv.Itoa(d.declSeq)
	rec := &CType{kind: ctRecord, name: name}
	d.records[id] = rec
	slot := len(d.decls)
	d.decls = append(d.decls, "")

	var lines []fieldLine
	if keyword == "union" {
		for _, m := range info.Members {
			ft := d.pointee(m, info.Size)
			lines = append(lines, fieldLine{ft.Declare(fieldSlot) + ";", "field_"})
		}
	} else {
		for _, f := range AddPaddings(info.Fields, info.Size) {
			if f.Padding {
				lines = append(lines, fieldLine{fmt.Sprintf("char %s[%d]; // at offset %d", fieldSlot, f.Size, f.Start), "padding_"})
				continue
			}
			ft := d.pointee(f.Target, f.Size)
			lines = append(lines, fieldLine{fmt.Sprintf("%s; // at offset %d", ft.Declare(fieldSlot), f.Start), "field_"})
		}
	}

	var key strings.Builder
	key.WriteString(keyword)
	for _, l := range lines {
		key.WriteString("\n")
		key.WriteString(l.text)
	}
	if prev, ok := d.shapes[key.String()]; ok && !d.referenced(name, slot, lines) {
		d.records[id] = prev
		if slot == len(d.decls)-1 {
			d.decls = d.decls[:slot]
			d.declSeq--
		}
		return prev
	}
	d.shapes[key.String()] = rec

	var b strings.Builder
	b.WriteString(name)
	b.WriteString(" {\n")
	for _, l := range lines {
		fmt.Fprintf(&b, "  %s\n", strings.Replace(l.text, fieldSlot, d.fieldName(l.prefix), 1))
	}
	b.WriteString("};")
	d.decls[slot] = b.String()
	return rec
}

// referenced reports whether name is used by the field lines or by a
// declaration made after slot.
func (d *Declarer) referenced(name string, slot int, lines []fieldLine) bool {
	use := name + " "
	for _, l := range lines {
		if strings.Contains(l.text, use) {
			return true
		}
	}
	for _, s := range d.decls[slot+1:] {
		if strings.Contains(s, use) {
			return true
		}
	}
	return false
}

func (d *Declarer) fieldName(prefix string) string {
	d.fieldSeq++
	return prefix + strconv.Itoa(d.fieldSeq)
}

// AddPaddings returns fields sorted by start with a padding field in every
// gap, including the gap up to size.
func AddPaddings(fields []Field, size int64) []Field {
	sorted := slices.Clone(fields)
	slices.SortStableFunc(sorted, func(a, b Field) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})
	var out []Field
	var pos int64
	if len(sorted) > 0 {
		pos = min(0, sorted[0].Start)
	}
	for _, f := range sorted {
		if f.Start > pos {
			out = append(out, Field{Start: pos, Size: f.Start - pos, Target: graph.NoNode, Padding: true})
		}
		out = append(out, f)
		pos = max(pos, f.End())
	}
	if size > pos {
		out = append(out, Field{Start: pos, Size: size - pos, Target: graph.NoNode, Padding: true})
	}
	return out
}

// primitive maps the primitive bases a node flows into, or else its cell,
// to a C type.
func (d *Declarer) primitive(id graph.NodeID) *CType {
	g := d.l.g
	cell := g.Cell(id)
	var names []string
	for _, e := range g.Node(id).Out() {
		if e.Label.IsForgetPrimitive() {
			names = append(names, e.Label.Base.BaseName())
		}
	}
	slices.Sort(names)
	name := ""
	if len(names) > 0 {
		name = names[0]
	} else if cell.Kind == pni.NotPN {
		name = cell.Elem
	}
	return prim(CPrimitive(name, cell))
}

// CPrimitive returns the C spelling of a primitive type name at the size
// of cell. An empty name falls back to the cell kind.
func CPrimitive(name string, cell pni.Cell) string {
	bits := cell.Size
	switch {
	case bits == 1 || name == "bool":
		return "bool"
	case name == "char" || (bits == 8 && !strings.HasPrefix(name, "u")):
		return "char"
	case name == "float":
		return "float"
	case name == "double":
		return "double"
	case name == "ptr" || name == "pointer":
		return "void *"
	case name == "uint" || name == "ulonglong" || (strings.HasPrefix(name, "u") && isDigits(name[1:])):
		return intType(bits, false)
	case name == "int" || name == "sint" || name == "short" || name == "long" || name == "longlong" ||
		(strings.HasPrefix(name, "i") && isDigits(name[1:])):
		return intType(bits, true)
	}
	switch cell.Kind {
	case pni.Pointer:
		return "void *"
	case pni.Number:
		return intType(bits, true)
	}
	return "undefined" + strconv.FormatUint(uint64(bits), 10)
}

func intType(bits uint32, signed bool) string {
	switch bits {
	case 8, 16, 32, 64:
	default:
		bits = 32
	}
	if signed {
		return "int" + strconv.FormatUint(uint64(bits), 10) + "_t"
	}
	return "uint" + strconv.FormatUint(uint64(bits), 10) + "_t"
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
