package schema

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ArrayOffset is one `a*x` component of an access expression: Size is the
// stride and Count an optional bound (0 means unbounded).
type ArrayOffset struct {
	Size  uint64
	Count uint64
}

// OffsetRange describes every byte offset an access may hit, in the form
// `Offset + a1*x1 + a2*x2 ...`.
type OffsetRange struct {
	Offset int64
	Access []ArrayOffset
}

// IsZero reports whether the range is exactly offset 0.
func (r OffsetRange) IsZero() bool {
	return r.Offset == 0 && len(r.Access) == 0
}

// Equal compares two ranges structurally.
func (r OffsetRange) Equal(o OffsetRange) bool {
	return r.Offset == o.Offset && slices.Equal(r.Access, o.Access)
}

// Compare orders ranges by offset and then by access list.
func (r OffsetRange) Compare(o OffsetRange) int {
	if r.Offset != o.Offset {
		if r.Offset < o.Offset {
			return -1
		}
		return 1
	}
	return slices.CompareFunc(r.Access, o.Access, func(a, b ArrayOffset) int {
		switch {
		case a.Size != b.Size:
			if a.Size < b.Size {
				return -1
			}
			return 1
		case a.Count < b.Count:
			return -1
		case a.Count > b.Count:
			return 1
		}
		return 0
	})
}

// Add sums two ranges. Strides are merged and a stride that is a multiple
// of a smaller one already present is dropped, since the smaller stride
// already covers every offset it can reach.
func (r OffsetRange) Add(o OffsetRange) OffsetRange {
	ret := OffsetRange{Offset: r.Offset + o.Offset, Access: slices.Clone(r.Access)}
	seen := make(map[uint64]bool)
	var strides []uint64
	for _, a := range append(slices.Clone(r.Access), o.Access...) {
		if !seen[a.Size] {
			seen[a.Size] = true
			strides = append(strides, a.Size)
		}
	}
	slices.Sort(strides)
	ret.Access = ret.Access[:0]
	for i, s := range strides {
		covered := false
		for _, f := range strides[:i] {
			if f != 0 && s%f == 0 {
				covered = true
				break
			}
		}
		if !covered {
			ret.Access = append(ret.Access, ArrayOffset{Size: s})
		}
	}
	if len(ret.Access) == 0 {
		ret.Access = nil
	}
	return ret
}

// Neg negates the constant part.
func (r OffsetRange) Neg() OffsetRange {
	return OffsetRange{Offset: -r.Offset, Access: slices.Clone(r.Access)}
}

// String renders the range as `@off+stride[count]...`.
func (r OffsetRange) String() string {
	var b strings.Builder
	b.WriteByte('@')
	b.WriteString(strconv.FormatInt(r.Offset, 10))
	for _, a := range r.Access {
		b.WriteByte('+')
		b.WriteString(strconv.FormatUint(a.Size, 10))
		if a.Count > 0 {
			fmt.Fprintf(&b, "[%d]", a.Count)
		}
	}
	return b.String()
}

// LabelKind discriminates FieldLabel.
type LabelKind uint8

const (
	LabelIn LabelKind = iota + 1
	LabelOut
	LabelOffset
	LabelLoad
	LabelStore
)

// FieldLabel is one step of a type variable path.
//
//   - In(name): a parameter of a function, contravariant.
//   - Out(name): a return value, covariant. The empty name is plain `out`.
//   - Offset(range): a pointer moved by range bytes, covariant.
//   - Load(bits): the value read through a pointer, covariant.
//   - Store(bits): the value written through a pointer, contravariant.
type FieldLabel struct {
	Kind  LabelKind
	Name  string
	Size  uint32
	Range OffsetRange
}

// In builds an In label for parameter index i.
func In(i int) FieldLabel { return FieldLabel{Kind: LabelIn, Name: strconv.Itoa(i)} }

// Out builds the plain return label.
func Out() FieldLabel { return FieldLabel{Kind: LabelOut} }

// NamedOut builds `out_<name>`.
func NamedOut(name string) FieldLabel { return FieldLabel{Kind: LabelOut, Name: name} }

// Offset builds an Offset label.
func Offset(r OffsetRange) FieldLabel { return FieldLabel{Kind: LabelOffset, Range: r} }

// ConstOffset builds an Offset label for a single constant offset.
func ConstOffset(off int64) FieldLabel { return Offset(OffsetRange{Offset: off}) }

// Load builds a Load label of the given bit size.
func Load(bits uint32) FieldLabel { return FieldLabel{Kind: LabelLoad, Size: bits} }

// Store builds a Store label of the given bit size.
func Store(bits uint32) FieldLabel { return FieldLabel{Kind: LabelStore, Size: bits} }

// Variance returns the intrinsic variance of the label.
func (l FieldLabel) Variance() Variance {
	switch l.Kind {
	case LabelIn, LabelStore:
		return Contravariant
	default:
		return Covariant
	}
}

func (l FieldLabel) IsOffset() bool { return l.Kind == LabelOffset }
func (l FieldLabel) IsLoad() bool   { return l.Kind == LabelLoad }
func (l FieldLabel) IsStore() bool  { return l.Kind == LabelStore }

// IsZeroOffset reports whether the label is the Offset(@0) label.
func (l FieldLabel) IsZeroOffset() bool {
	return l.Kind == LabelOffset && l.Range.IsZero()
}

// ToLoad turns a Store label into the Load label of the same size.
func (l FieldLabel) ToLoad() FieldLabel {
	if l.Kind == LabelStore {
		return Load(l.Size)
	}
	return l
}

// ToStore turns a Load label into the Store label of the same size.
func (l FieldLabel) ToStore() FieldLabel {
	if l.Kind == LabelLoad {
		return Store(l.Size)
	}
	return l
}

// Equal compares two labels structurally.
func (l FieldLabel) Equal(o FieldLabel) bool {
	return l.Kind == o.Kind && l.Name == o.Name && l.Size == o.Size && l.Range.Equal(o.Range)
}

// Compare orders labels by kind and then by payload.
func (l FieldLabel) Compare(o FieldLabel) int {
	if l.Kind != o.Kind {
		if l.Kind < o.Kind {
			return -1
		}
		return 1
	}
	switch l.Kind {
	case LabelIn, LabelOut:
		return strings.Compare(l.Name, o.Name)
	case LabelOffset:
		return l.Range.Compare(o.Range)
	default:
		switch {
		case l.Size < o.Size:
			return -1
		case l.Size > o.Size:
			return 1
		}
		return 0
	}
}

// String renders the label in the constraint syntax.
func (l FieldLabel) String() string {
	switch l.Kind {
	case LabelIn:
		return "in_" + l.Name
	case LabelOut:
		if l.Name == "" {
			return "out"
		}
		return "out_" + l.Name
	case LabelOffset:
		return l.Range.String()
	case LabelLoad:
		return "load" + strconv.FormatUint(uint64(l.Size), 10)
	case LabelStore:
		return "store" + strconv.FormatUint(uint64(l.Size), 10)
	}
	return fmt.Sprintf("label(%d)", l.Kind)
}

// PathVariance returns the combined variance of a label path.
func PathVariance(labels []FieldLabel) Variance {
	v := Covariant
	for _, l := range labels {
		v = v.Combine(l.Variance())
	}
	return v
}
