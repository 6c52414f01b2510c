package schema

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Constraint is a subtype obligation Sub ⊑ Sup.
type Constraint struct {
	Sub *TypeVar
	Sup *TypeVar
}

// String renders the constraint as `sub <= sup`.
func (c Constraint) String() string {
	return c.Sub.String() + " <= " + c.Sup.String()
}

// ParseError reports malformed constraint text.
type ParseError struct {
	// Input is the full text being parsed.
	Input string

	// Offset is the byte offset where parsing failed.
	Offset int

	// Message describes what was expected.
	Message string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	near := e.Input[e.Offset:]
	if len(near) > 10 {
		near = near[:10]
	}
	return fmt.Sprintf("parse %q at %d: %s (near %q)", e.Input, e.Offset, e.Message, near)
}

// ParseConstraint parses `sub <= sup` (or `sub ⊑ sup`).
func ParseConstraint(p *Pool, text string) (Constraint, error) {
	s := &scanner{src: text, pool: p}
	sub, err := s.typeVar()
	if err != nil {
		return Constraint{}, err
	}
	s.skipSpace()
	if !s.consume("<=") && !s.consume("⊑") {
		return Constraint{}, s.fail("expect <= or ⊑")
	}
	sup, err := s.typeVar()
	if err != nil {
		return Constraint{}, err
	}
	s.skipSpace()
	if !s.eof() {
		return Constraint{}, s.fail("unexpected trailing text")
	}
	return Constraint{Sub: sub, Sup: sup}, nil
}

// ParseTypeVar parses one type variable.
func ParseTypeVar(p *Pool, text string) (*TypeVar, error) {
	s := &scanner{src: text, pool: p}
	tv, err := s.typeVar()
	if err != nil {
		return nil, err
	}
	s.skipSpace()
	if !s.eof() {
		return nil, s.fail("unexpected trailing text")
	}
	return tv, nil
}

// ParseLabel parses one field label such as `load32` or `@4+8`.
func ParseLabel(text string) (FieldLabel, error) {
	s := &scanner{src: text}
	l, err := s.label()
	if err != nil {
		return FieldLabel{}, err
	}
	if !s.eof() {
		return FieldLabel{}, s.fail("unexpected trailing text")
	}
	return l, nil
}

type scanner struct {
	src  string
	pos  int
	pool *Pool
}

func (s *scanner) rest() string { return s.src[s.pos:] }
func (s *scanner) eof() bool    { return s.pos >= len(s.src) }

func (s *scanner) fail(msg string) *ParseError {
	return &ParseError{Input: s.src, Offset: s.pos, Message: msg}
}

func (s *scanner) consume(prefix string) bool {
	if strings.HasPrefix(s.rest(), prefix) {
		s.pos += len(prefix)
		return true
	}
	return false
}

func (s *scanner) skipSpace() {
	for !s.eof() {
		r, n := utf8.DecodeRuneInString(s.rest())
		if !unicode.IsSpace(r) {
			return
		}
		s.pos += n
	}
}

// atVarEnd reports whether the variable ends here.
func (s *scanner) atVarEnd() bool {
	if s.eof() {
		return true
	}
	r := s.rest()
	c := r[0]
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '<' || c == '=' || strings.HasPrefix(r, "⊑")
}

func (s *scanner) atSeparator() bool {
	return s.atVarEnd() || s.rest()[0] == '.'
}

func (s *scanner) ident() (string, error) {
	start := s.pos
	for !s.atSeparator() {
		_, n := utf8.DecodeRuneInString(s.rest())
		s.pos += n
	}
	if s.pos == start {
		return "", s.fail("expect name")
	}
	return s.src[start:s.pos], nil
}

func (s *scanner) digits() (uint64, error) {
	start := s.pos
	for !s.eof() && s.src[s.pos] >= '0' && s.src[s.pos] <= '9' {
		s.pos++
	}
	if s.pos == start {
		return 0, s.fail("expect number")
	}
	return strconv.ParseUint(s.src[start:s.pos], 10, 64)
}

func (s *scanner) typeVar() (*TypeVar, error) {
	s.skipSpace()
	if strings.HasPrefix(s.rest(), "#Int#") {
		return nil, s.fail("integer constant variables cannot be parsed")
	}
	if s.consume("#") {
		name, err := s.ident()
		if err != nil {
			return nil, err
		}
		return s.pool.Intern(Primitive(name), nil), nil
	}
	name, err := s.ident()
	if err != nil {
		return nil, err
	}
	base := Named(name)
	if name == MemoryName {
		base = Memory()
	}
	var labels []FieldLabel
	for !s.atVarEnd() {
		if !s.consume(".") {
			return nil, s.fail("expect .")
		}
		l, err := s.label()
		if err != nil {
			return nil, err
		}
		labels = append(labels, l)
	}
	return s.pool.Intern(base, labels), nil
}

func (s *scanner) label() (FieldLabel, error) {
	switch r := s.rest(); {
	case strings.HasPrefix(r, "@"):
		s.pos++
		return s.offset()
	case strings.HasPrefix(r, "load"):
		s.pos += len("load")
		n, err := s.digits()
		return Load(uint32(n)), err
	case strings.HasPrefix(r, "store"):
		s.pos += len("store")
		n, err := s.digits()
		return Store(uint32(n)), err
	}
	start := s.pos
	name, err := s.ident()
	if err != nil {
		return FieldLabel{}, err
	}
	switch {
	case strings.HasPrefix(name, "in_"):
		return FieldLabel{Kind: LabelIn, Name: strings.TrimPrefix(name, "in_")}, nil
	case strings.HasPrefix(name, "out_"):
		return NamedOut(strings.TrimPrefix(name, "out_")), nil
	case name == "out":
		return Out(), nil
	}
	s.pos = start
	return FieldLabel{}, s.fail("expect field label")
}

func (s *scanner) offset() (FieldLabel, error) {
	neg := s.consume("-")
	off, err := s.digits()
	if err != nil {
		return FieldLabel{}, err
	}
	r := OffsetRange{Offset: int64(off)}
	if neg {
		r.Offset = -r.Offset
	}
	for s.consume("+") {
		size, err := s.digits()
		if err != nil {
			return FieldLabel{}, err
		}
		s.consume("i")
		a := ArrayOffset{Size: size}
		if s.consume("[") {
			if a.Count, err = s.digits(); err != nil {
				return FieldLabel{}, err
			}
			if !s.consume("]") {
				return FieldLabel{}, s.fail("expect ]")
			}
		}
		r.Access = append(r.Access, a)
	}
	return Offset(r), nil
}
