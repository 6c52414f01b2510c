package engine

import (
	"strconv"

	"github.com/NotDec/NotDec-sub000/internal/ir"
)

// printfSummary is the summary of a printf-like function before the
// format directives are added.
var printfSummary = struct {
	constraints []string
	pniMap      map[string]string
}{
	constraints: []string{
		"printf.in_0 <= cstr",
		"cstr.load8 <= #char",
		"printf.out <= #sint",
	},
	pniMap: map[string]string{
		"printf":      "func p #1",
		"printf.in_0": "ptr p #2",
		"cstr":        "ptr p #2",
		"cstr.load8":  "int 8 #3",
		"#char":       "int 8 #3",
		"printf.out":  "int 32 #4",
		"#sint":       "int 32 #4",
		"#double":     "float 64 #5",
	},
}

// formatArgType maps a conversion character to the type variable of its
// argument.
func formatArgType(conv byte) (string, bool) {
	switch conv {
	case 'c':
		return "#char", true
	case 's':
		return "cstr", true
	case 'd', 'i', 'x', 'u':
		return "#sint", true
	case 'f', 'e', 'g':
		return "#double", true
	}
	return "", false
}

// formatDirectives returns the conversion characters of format in order.
// Flags, width, precision and length modifiers are skipped; `%%` is a
// literal percent sign.
func formatDirectives(format string) []byte {
	var out []byte
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			continue
		}
		i++
		for i < len(format) && isFormatModifier(format[i]) {
			i++
		}
		if i >= len(format) {
			break
		}
		if format[i] == '%' {
			continue
		}
		out = append(out, format[i])
	}
	return out
}

func isFormatModifier(c byte) bool {
	if c >= '0' && c <= '9' {
		return true
	}
	switch c {
	case '-', '+', ' ', '#', '.', '*', 'l', 'h', 'z', 'j', 't', 'L':
		return true
	}
	return false
}

// PrintfSummary builds the summary of a printf call with the given
// constant format string, under the callee name callee. Unknown
// directives are reported and left unconstrained.
func PrintfSummary(ctx *Context, callee, format string) (*Generator, error) {
	cons := make([]string, 0, len(printfSummary.constraints))
	for _, c := range printfSummary.constraints {
		cons = append(cons, renameCallee(c, callee))
	}
	pm := make(map[string]string, len(printfSummary.pniMap))
	for k, v := range printfSummary.pniMap {
		pm[renameCallee(k, callee)] = v
	}

	for i, conv := range formatDirectives(format) {
		ty, ok := formatArgType(conv)
		if !ok {
			ctx.Logger.Warn("engine: unsupported format directive",
				"callee", callee, "directive", "%"+string(conv))
			continue
		}
		arg := callee + ".in_" + strconv.Itoa(i+1)
		cons = append(cons, arg+" <= "+ty)
		pm[arg] = pm[ty]
	}
	return FromSummary(ctx, callee+"-printf", []string{callee}, ir.Summary{Constraints: cons, PNIMap: pm})
}

// renameCallee replaces the leading `printf` of a variable or constraint
// text with callee.
func renameCallee(text, callee string) string {
	const name = "printf"
	if len(text) >= len(name) && text[:len(name)] == name {
		return callee + text[len(name):]
	}
	return text
}
