package interp

import (
	"strconv"

	"github.com/InsulaLabs/msdscript/pkg/expr"
)

// Value is the result of evaluating an expression.
type Value interface {
	String() string
	isValue()
}

type NumVal struct {
	Value int32
}

type BoolVal struct {
	Value bool
}

// FunVal is a closure: a function literal together with the environment that
// was active where it was evaluated.
type FunVal struct {
	Arg  string
	Body expr.Expr
	Env  *Env
}

func (*NumVal) isValue()  {}
func (*BoolVal) isValue() {}
func (*FunVal) isValue()  {}

func (v *NumVal) String() string {
	return strconv.FormatInt(int64(v.Value), 10)
}

func (v *BoolVal) String() string {
	if v.Value {
		return "_true"
	}
	return "_false"
}

func (*FunVal) String() string {
	return "[function]"
}

// ValuesEqual implements the == operator. Numbers and booleans compare by
// value, values of different kinds are never equal, and functions are never
// equal to anything, themselves included.
func ValuesEqual(a, b Value) bool {
	switch x := a.(type) {
	case *NumVal:
		y, ok := b.(*NumVal)
		return ok && x.Value == y.Value
	case *BoolVal:
		y, ok := b.(*BoolVal)
		return ok && x.Value == y.Value
	default:
		return false
	}
}

// ToExpr converts v back into an expression. A closure loses its captured
// environment.
func ToExpr(v Value) expr.Expr {
	switch x := v.(type) {
	case *NumVal:
		return &expr.Num{Value: x.Value}
	case *BoolVal:
		return &expr.Bool{Value: x.Value}
	case *FunVal:
		return &expr.Fun{Arg: x.Arg, Body: x.Body}
	default:
		return nil
	}
}

func typeName(v Value) string {
	switch v.(type) {
	case *NumVal:
		return "number"
	case *BoolVal:
		return "boolean"
	case *FunVal:
		return "function"
	default:
		return "unknown"
	}
}
