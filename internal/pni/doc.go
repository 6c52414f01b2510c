// Package pni implements pointer/number identification.
//
// Every constraint graph node owns a Ref into a Graph of lattice cells. A
// cell records whether the value is a pointer, a number, or still unknown,
// together with its bit size. Cells are merged with an index based
// union-find, so a node and its dual always observe the same
// classification.
//
// Add and Sub constraints from arithmetic instructions are kept in a FIFO
// worklist. Solve applies a fixed rule table to each constraint:
//
//	add: i+i=I  I+I=i  p+I=P  P+i=p  I+p=P  i+P=p
//	sub: i-I=I  I-i=i  P-i=p  P-p=I  p-P=i  p-i=P  p-I=p
//
// Lower case letters must already hold, upper case letters are inferred.
// When no rule matches, operand aliasing forces numbers, and a constraint
// with exactly two unknown operands unifies them. Classification only moves
// away from unknown, so Solve always terminates.
package pni
