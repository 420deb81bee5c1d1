package fuzz

import (
	"math/rand/v2"
	"strconv"
)

var (
	names     = []string{"x", "y", "z", "w"}
	funcNames = []string{"f", "g", "h"}
)

// Generator produces random, syntactically valid msdscript source. Numeric
// positions receive numeric expressions and _if conditions receive boolean
// ones, so most generated programs also evaluate without a type error.
type Generator struct {
	rng *rand.Rand

	// MaxDepth bounds nesting; leaves are produced at this depth.
	MaxDepth int
}

func NewGenerator(seed uint64) *Generator {
	return &Generator{
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		MaxDepth: 4,
	}
}

// Expr returns one closed expression.
func (g *Generator) Expr() string {
	return g.num(0, nil)
}

// Exprs returns n closed expressions.
func (g *Generator) Exprs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = g.Expr()
	}
	return out
}

func (g *Generator) literal() string {
	n := g.rng.IntN(10)
	if g.rng.IntN(5) == 0 {
		n = -n
	}
	return strconv.Itoa(n)
}

func (g *Generator) leaf(scope []string) string {
	if len(scope) > 0 && g.rng.IntN(2) == 0 {
		return scope[g.rng.IntN(len(scope))]
	}
	return g.literal()
}

func (g *Generator) name() string {
	return names[g.rng.IntN(len(names))]
}

func (g *Generator) num(depth int, scope []string) string {
	if depth >= g.MaxDepth {
		return g.leaf(scope)
	}
	d := depth + 1

	switch g.rng.IntN(8) {
	case 0:
		return g.leaf(scope)
	case 1:
		return g.num(d, scope) + " + " + g.num(d, scope)
	case 2:
		return g.num(d, scope) + " * " + g.num(d, scope)
	case 3:
		return "(" + g.num(d, scope) + ")"
	case 4:
		n := g.name()
		return "_let " + n + " = " + g.num(d, scope) + " _in " + g.num(d, append(scope[:len(scope):len(scope)], n))
	case 5:
		return "_if " + g.boolean(d, scope) + " _then " + g.num(d, scope) + " _else " + g.num(d, scope)
	case 6:
		n := g.name()
		return "(_fun (" + n + ") " + g.num(d, append(scope[:len(scope):len(scope)], n)) + ")(" + g.num(d, scope) + ")"
	default:
		fn, arg := funcNames[g.rng.IntN(len(funcNames))], g.name()
		body := g.num(d, append(scope[:len(scope):len(scope)], arg))
		return "_let " + fn + " = _fun (" + arg + ") " + body + " _in " + fn + "(" + g.num(d, scope) + ")"
	}
}

func (g *Generator) boolean(depth int, scope []string) string {
	if depth >= g.MaxDepth {
		if g.rng.IntN(2) == 0 {
			return "_true"
		}
		return "_false"
	}
	d := depth + 1

	switch g.rng.IntN(4) {
	case 0:
		if g.rng.IntN(2) == 0 {
			return "_true"
		}
		return "_false"
	case 1:
		return "(" + g.boolean(d, scope) + ")"
	default:
		return "(" + g.num(d, scope) + " == " + g.num(d, scope) + ")"
	}
}
