package expr

import (
	"strconv"
	"strings"
)

// String renders e in the canonical, fully parenthesized form. The output
// always re-parses to a tree Equal to e.
func String(e Expr) string {
	var b strings.Builder
	writeCanonical(&b, e)
	return b.String()
}

func writeCanonical(b *strings.Builder, e Expr) {
	switch x := e.(type) {
	case *Num:
		b.WriteString(strconv.FormatInt(int64(x.Value), 10))
	case *Bool:
		b.WriteString(boolKeyword(x.Value))
	case *Var:
		b.WriteString(x.Name)
	case *Add:
		writeBinary(b, x.Lhs, "+", x.Rhs)
	case *Mult:
		writeBinary(b, x.Lhs, "*", x.Rhs)
	case *Eq:
		writeBinary(b, x.Lhs, "==", x.Rhs)
	case *Let:
		b.WriteString("(_let ")
		b.WriteString(x.Name)
		b.WriteByte('=')
		writeCanonical(b, x.Rhs)
		b.WriteString(" _in ")
		writeCanonical(b, x.Body)
		b.WriteByte(')')
	case *If:
		b.WriteString("(_if ")
		writeCanonical(b, x.Cond)
		b.WriteString(" _then ")
		writeCanonical(b, x.Then)
		b.WriteString(" _else ")
		writeCanonical(b, x.Else)
		b.WriteByte(')')
	case *Fun:
		b.WriteString("(_fun (")
		b.WriteString(x.Arg)
		b.WriteString(") ")
		writeCanonical(b, x.Body)
		b.WriteByte(')')
	case *Call:
		writeCanonical(b, x.Callee)
		b.WriteByte('(')
		writeCanonical(b, x.Arg)
		b.WriteByte(')')
	}
}

func writeBinary(b *strings.Builder, lhs Expr, op string, rhs Expr) {
	b.WriteByte('(')
	writeCanonical(b, lhs)
	b.WriteString(op)
	writeCanonical(b, rhs)
	b.WriteByte(')')
}

func boolKeyword(v bool) string {
	if v {
		return "_true"
	}
	return "_false"
}
