package expr

// Expr is a node of the parsed program. Nodes are immutable once built and
// may be shared between parents.
type Expr interface {
	isExpr()
}

type Num struct {
	Value int32
}

type Bool struct {
	Value bool
}

type Var struct {
	Name string
}

type Add struct {
	Lhs Expr
	Rhs Expr
}

type Mult struct {
	Lhs Expr
	Rhs Expr
}

type Eq struct {
	Lhs Expr
	Rhs Expr
}

// Let binds Name to the value of Rhs while evaluating Body.
type Let struct {
	Name string
	Rhs  Expr
	Body Expr
}

type If struct {
	Cond Expr
	Then Expr
	Else Expr
}

// Fun is a one-argument function literal.
type Fun struct {
	Arg  string
	Body Expr
}

type Call struct {
	Callee Expr
	Arg    Expr
}

func (*Num) isExpr()  {}
func (*Bool) isExpr() {}
func (*Var) isExpr()  {}
func (*Add) isExpr()  {}
func (*Mult) isExpr() {}
func (*Eq) isExpr()   {}
func (*Let) isExpr()  {}
func (*If) isExpr()   {}
func (*Fun) isExpr()  {}
func (*Call) isExpr() {}

// Equal reports whether a and b are structurally identical trees.
func Equal(a, b Expr) bool {
	switch x := a.(type) {
	case *Num:
		y, ok := b.(*Num)
		return ok && x.Value == y.Value
	case *Bool:
		y, ok := b.(*Bool)
		return ok && x.Value == y.Value
	case *Var:
		y, ok := b.(*Var)
		return ok && x.Name == y.Name
	case *Add:
		y, ok := b.(*Add)
		return ok && Equal(x.Lhs, y.Lhs) && Equal(x.Rhs, y.Rhs)
	case *Mult:
		y, ok := b.(*Mult)
		return ok && Equal(x.Lhs, y.Lhs) && Equal(x.Rhs, y.Rhs)
	case *Eq:
		y, ok := b.(*Eq)
		return ok && Equal(x.Lhs, y.Lhs) && Equal(x.Rhs, y.Rhs)
	case *Let:
		y, ok := b.(*Let)
		return ok && x.Name == y.Name && Equal(x.Rhs, y.Rhs) && Equal(x.Body, y.Body)
	case *If:
		y, ok := b.(*If)
		return ok && Equal(x.Cond, y.Cond) && Equal(x.Then, y.Then) && Equal(x.Else, y.Else)
	case *Fun:
		y, ok := b.(*Fun)
		return ok && x.Arg == y.Arg && Equal(x.Body, y.Body)
	case *Call:
		y, ok := b.(*Call)
		return ok && Equal(x.Callee, y.Callee) && Equal(x.Arg, y.Arg)
	case nil:
		return b == nil
	default:
		return false
	}
}

// HasVariable reports whether any variable reference occurs in e.
func HasVariable(e Expr) bool {
	switch x := e.(type) {
	case *Var:
		return true
	case *Add:
		return HasVariable(x.Lhs) || HasVariable(x.Rhs)
	case *Mult:
		return HasVariable(x.Lhs) || HasVariable(x.Rhs)
	case *Eq:
		return HasVariable(x.Lhs) || HasVariable(x.Rhs)
	case *Let:
		return HasVariable(x.Rhs) || HasVariable(x.Body)
	case *If:
		return HasVariable(x.Cond) || HasVariable(x.Then) || HasVariable(x.Else)
	case *Fun:
		return HasVariable(x.Body)
	case *Call:
		return HasVariable(x.Callee) || HasVariable(x.Arg)
	default:
		return false
	}
}

// Depth is the number of nodes on the longest path from e to a leaf. It
// walks the tree with an explicit stack, so arbitrarily deep trees are safe.
func Depth(e Expr) int {
	type item struct {
		e     Expr
		depth int
	}
	maxDepth := 0
	stack := []item{{e, 1}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if it.e == nil {
			continue
		}
		maxDepth = max(maxDepth, it.depth)
		for _, c := range children(it.e) {
			stack = append(stack, item{c, it.depth + 1})
		}
	}
	return maxDepth
}

func children(e Expr) []Expr {
	switch x := e.(type) {
	case *Add:
		return []Expr{x.Lhs, x.Rhs}
	case *Mult:
		return []Expr{x.Lhs, x.Rhs}
	case *Eq:
		return []Expr{x.Lhs, x.Rhs}
	case *Let:
		return []Expr{x.Rhs, x.Body}
	case *If:
		return []Expr{x.Cond, x.Then, x.Else}
	case *Fun:
		return []Expr{x.Body}
	case *Call:
		return []Expr{x.Callee, x.Arg}
	default:
		return nil
	}
}
