package expr

import (
	"strconv"
	"strings"
)

type precedence int

const (
	precNone precedence = iota
	precEq
	precAdd
	precMult
	precCall
	precAtom
)

// Pretty renders e with minimal parentheses. _let, _if and _fun are laid out
// over several lines, with continuation lines aligned to the column where
// the keyword started.
func Pretty(e Expr) string {
	w := &prettyWriter{}
	w.print(e, precNone, true)
	return w.b.String()
}

type prettyWriter struct {
	b         strings.Builder
	lineStart int
}

func (w *prettyWriter) write(s string) {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		w.lineStart = w.b.Len() + i + 1
	}
	w.b.WriteString(s)
}

// column is the number of bytes written since the last newline.
func (w *prettyWriter) column() int {
	return w.b.Len() - w.lineStart
}

func (w *prettyWriter) newline(indent int) {
	w.write("\n" + strings.Repeat(" ", indent))
}

// print writes e in a position that requires at least min precedence to go
// without parentheses. tail is true when nothing follows e before the end of
// the enclosing parentheses (or the input), which lets _let, _if and _fun
// run to the end unparenthesized.
func (w *prettyWriter) print(e Expr, min precedence, tail bool) {
	switch x := e.(type) {
	case *Num:
		w.write(strconv.FormatInt(int64(x.Value), 10))
	case *Bool:
		w.write(boolKeyword(x.Value))
	case *Var:
		w.write(x.Name)
	case *Eq:
		w.binary(x.Lhs, " == ", x.Rhs, precEq, min, tail)
	case *Add:
		w.binary(x.Lhs, " + ", x.Rhs, precAdd, min, tail)
	case *Mult:
		w.binary(x.Lhs, " * ", x.Rhs, precMult, min, tail)
	case *Call:
		w.print(x.Callee, precCall, false)
		w.write("(")
		w.print(x.Arg, precNone, true)
		w.write(")")
	case *Let:
		w.keywordForm(min, tail, func() {
			col := w.column()
			w.write("_let " + x.Name + " = ")
			w.print(x.Rhs, precNone, false)
			w.newline(col)
			w.write("_in  ")
			w.print(x.Body, precNone, true)
		})
	case *If:
		w.keywordForm(min, tail, func() {
			col := w.column()
			w.write("_if ")
			w.print(x.Cond, precNone, false)
			w.newline(col)
			w.write("_then ")
			w.print(x.Then, precNone, false)
			w.newline(col)
			w.write("_else ")
			w.print(x.Else, precNone, true)
		})
	case *Fun:
		w.keywordForm(min, tail, func() {
			col := w.column()
			w.write("_fun (" + x.Arg + ")")
			w.newline(col + 2)
			w.print(x.Body, precNone, true)
		})
	}
}

// binary prints a right-associative operator of precedence op.
func (w *prettyWriter) binary(lhs Expr, sym string, rhs Expr, op, min precedence, tail bool) {
	parens := op < min
	if parens {
		w.write("(")
		tail = true
	}
	w.print(lhs, op+1, false)
	w.write(sym)
	w.print(rhs, op, tail)
	if parens {
		w.write(")")
	}
}

func (w *prettyWriter) keywordForm(min precedence, tail bool, body func()) {
	parens := min > precNone && !tail
	if parens {
		w.write("(")
	}
	body()
	if parens {
		w.write(")")
	}
}
