package pni

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the pointer/number classification of a cell.
type Kind uint8

const (
	Unknown Kind = iota
	Number
	Pointer
	// Null marks a cell whose low level type is not known yet. Any
	// classification replaces it.
	Null
	// NotPN marks values that can never be pointers, such as floats or
	// integers narrower than a pointer. Elem names the concrete type.
	NotPN
)

// String returns the lattice name used in serialized cells.
func (k Kind) String() string {
	switch k {
	case Number:
		return "int"
	case Pointer:
		return "ptr"
	case Null:
		return "null"
	case NotPN:
		return "notPN"
	default:
		return "unk"
	}
}

// Char returns the one letter form used by the rule tables.
func (k Kind) Char() byte {
	switch k {
	case Number:
		return 'i'
	case Pointer:
		return 'p'
	case Null:
		return 'n'
	case NotPN:
		return 'o'
	default:
		return 'u'
	}
}

// KindFromString maps a lattice name to a Kind. Names that are not part of
// the lattice are concrete NotPN types.
func KindFromString(s string) (Kind, bool) {
	switch s {
	case "int", "num":
		return Number, true
	case "ptr":
		return Pointer, true
	case "null":
		return Null, true
	case "notPN":
		return NotPN, true
	case "unk", "func":
		// A function carries no pointer/number information of its own.
		return Unknown, true
	}
	return NotPN, false
}

// Cell is one lattice element.
type Cell struct {
	Kind     Kind
	Size     uint32
	Elem     string
	Conflict bool
}

// NewCell returns a cell of the given kind and size.
func NewCell(k Kind, size uint32) Cell {
	return Cell{Kind: k, Size: size}
}

// ParseCell parses the serialized form `<lattice> <size|p>`. A size of `p`
// (or a missing size) means the pointer size.
func ParseCell(s string, pointerSize uint32) (Cell, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 || len(fields) > 2 {
		return Cell{}, fmt.Errorf("pni: malformed cell %q", s)
	}
	c := Cell{Size: pointerSize}
	kind, known := KindFromString(fields[0])
	c.Kind = kind
	if !known {
		c.Elem = fields[0]
	}
	if len(fields) == 2 && fields[1] != "p" {
		n, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return Cell{}, fmt.Errorf("pni: malformed cell size %q: %w", s, err)
		}
		c.Size = uint32(n)
	}
	return c, nil
}

// MustParseCell is ParseCell for literals known to be valid.
func MustParseCell(s string, pointerSize uint32) Cell {
	c, err := ParseCell(s, pointerSize)
	if err != nil {
		panic(err)
	}
	return c
}

// String renders the cell as `<lattice> <size>`.
func (c Cell) String() string {
	lattice := c.Kind.String()
	if c.Kind == NotPN && c.Elem != "" {
		lattice = c.Elem
	}
	return lattice + " " + strconv.FormatUint(uint64(c.Size), 10)
}

func (c Cell) IsUnknown() bool { return c.Kind == Unknown }
func (c Cell) IsNumber() bool  { return c.Kind == Number }
func (c Cell) IsPointer() bool { return c.Kind == Pointer }

// IsPNRelated reports whether the cell takes part in pointer/number
// inference at all.
func (c Cell) IsPNRelated() bool {
	return c.Kind != NotPN && c.Kind != Null
}

// Equal compares the lattice content, ignoring the conflict flag.
func (c Cell) Equal(o Cell) bool {
	if c.Size != o.Size || c.Kind != o.Kind {
		return false
	}
	if c.Kind == NotPN {
		return c.Elem == o.Elem
	}
	return true
}

// Outcome describes what setKind did to a cell.
type Outcome uint8

const (
	Unchanged Outcome = iota
	Changed
	// Mixed means a pointer/number collision set the conflict flag.
	Mixed
	// Rejected means a NotPN cell met a pointer/number classification.
	Rejected
)

// setKind moves the cell toward k. It never moves a classified cell back to
// Unknown. A Number/Pointer collision sets Conflict and settles on Pointer.
func (c *Cell) setKind(k Kind) (bool, Outcome) {
	if c.Kind == Null {
		if k == Null {
			return false, Unchanged
		}
		c.Kind = k
		return true, Changed
	}
	if c.Kind == NotPN || k == NotPN {
		if c.Kind != k && k != Null {
			return false, Rejected
		}
		return false, Unchanged
	}
	switch {
	case c.Kind == k, k == Unknown, k == Null:
		return false, Unchanged
	case c.Kind == Unknown:
		c.Kind = k
		return true, Changed
	}
	c.Conflict = true
	if c.Kind == Number && k == Pointer {
		c.Kind = Pointer
		return true, Mixed
	}
	return false, Mixed
}

// merge folds o into c, returning whether c changed.
func (c *Cell) merge(o Cell) (bool, Outcome) {
	changed, outcome := c.setKind(o.Kind)
	if o.Conflict && !c.Conflict {
		c.Conflict = true
		changed = true
	}
	if c.Size == 0 && o.Size != 0 {
		c.Size = o.Size
		changed = true
	}
	if c.Kind == NotPN && o.Elem != "" {
		elem := meetElem(c.Elem, o.Elem)
		if elem != c.Elem {
			c.Elem = elem
			changed = true
		}
	}
	return changed, outcome
}

// meetElem picks the more precise of two concrete type names. `top` is the
// absent type.
func meetElem(a, b string) string {
	switch {
	case a == "" || a == "top":
		return b
	case b == "" || b == "top":
		return a
	}
	return a
}

// CellForBits returns the initial cell of an integer value of the given
// width. Only pointer-sized values take part in pointer/number inference.
func CellForBits(bits, pointerSize uint32) Cell {
	if bits == pointerSize {
		return NewCell(Unknown, bits)
	}
	return Cell{Kind: NotPN, Size: bits, Elem: intElem(bits, pointerSize)}
}

func intElem(bits, pointerSize uint32) string {
	switch bits {
	case 1:
		return "bool"
	case 8:
		return "char"
	case 16:
		return "short"
	case 64:
		if pointerSize == 32 {
			return "longlong"
		}
	}
	return "i" + strconv.FormatUint(uint64(bits), 10)
}

// CellForPrimitive returns the fixed cell of a primitive type name such as
// int, double or i16.
func CellForPrimitive(name string, pointerSize uint32) Cell {
	switch name {
	case "float":
		return Cell{Kind: NotPN, Size: 32, Elem: name}
	case "double":
		return Cell{Kind: NotPN, Size: 64, Elem: name}
	case "ptr", "pointer":
		return NewCell(Pointer, pointerSize)
	case "bool":
		return CellForBits(1, pointerSize)
	case "char":
		return CellForBits(8, pointerSize)
	case "short":
		return CellForBits(16, pointerSize)
	case "int", "sint", "uint":
		return primitiveInt(32, pointerSize)
	case "long", "longlong", "ulonglong":
		return primitiveInt(64, pointerSize)
	}
	if strings.HasPrefix(name, "i") || strings.HasPrefix(name, "u") {
		if n, err := strconv.ParseUint(name[1:], 10, 32); err == nil {
			return primitiveInt(uint32(n), pointerSize)
		}
	}
	return NewCell(Unknown, pointerSize)
}

func primitiveInt(bits, pointerSize uint32) Cell {
	if bits == pointerSize {
		return NewCell(Number, bits)
	}
	return CellForBits(bits, pointerSize)
}
