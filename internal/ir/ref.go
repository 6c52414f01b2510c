package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// RefKind discriminates ValueRef.
type RefKind uint8

const (
	RefFunc RefKind = iota + 1
	RefArg
	RefReturn
	RefLocal
)

// ValueRef addresses a value of the program: a function, one of its
// arguments, its return value, or a tracked local.
//
// Text forms: `f`, `f#arg0`, `f#ret`, `f/name`.
type ValueRef struct {
	Func  string
	Kind  RefKind
	Index int
	Name  string
}

func FuncRef(f string) ValueRef { return ValueRef{Func: f, Kind: RefFunc} }
func ArgRef(f string, i int) ValueRef { return ValueRef{Func: f, Kind: RefArg, Index: i} }
func ReturnRef(f string) ValueRef { return ValueRef{Func: f, Kind: RefReturn} }
func LocalRef(f, name string) ValueRef { return ValueRef{Func: f, Kind: RefLocal, Name: name} }

func (r ValueRef) String() string {
	switch r.Kind {
	case RefArg:
		return r.Func + "#arg" + strconv.Itoa(r.Index)
	case RefReturn:
		return r.Func + "#ret"
	case RefLocal:
		return r.Func + "/" + r.Name
	}
	return r.Func
}

// ParseValueRef parses the text form of a ValueRef.
func ParseValueRef(s string) (ValueRef, error) {
	if f, name, ok := strings.Cut(s, "/"); ok {
		if f == "" || name == "" {
			return ValueRef{}, fmt.Errorf("ir: malformed value ref %q", s)
		}
		return LocalRef(f, name), nil
	}
	if f, rest, ok := strings.Cut(s, "#"); ok {
		switch {
		case f == "":
		case rest == "ret":
			return ReturnRef(f), nil
		case strings.HasPrefix(rest, "arg"):
			i, err := strconv.Atoi(rest[3:])
			if err == nil && i >= 0 {
				return ArgRef(f, i), nil
			}
		}
		return ValueRef{}, fmt.Errorf("ir: malformed value ref %q", s)
	}
	if s == "" {
		return ValueRef{}, fmt.Errorf("ir: empty value ref")
	}
	return FuncRef(s), nil
}
