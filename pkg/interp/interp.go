package interp

import (
	"context"
	"math"

	"github.com/InsulaLabs/msdscript/pkg/expr"
)

// DefaultMaxDepth bounds nested evaluation when an Evaluator sets no limit.
const DefaultMaxDepth = 10000

// Interp evaluates e in env with the default limits and no cancellation.
func Interp(e expr.Expr, env *Env) (Value, error) {
	return (&Evaluator{}).Eval(context.Background(), e, env)
}

// Evaluator walks an expression tree. It holds no state between calls, so a
// single Evaluator may run many evaluations concurrently.
type Evaluator struct {
	// MaxDepth limits recursion; zero means DefaultMaxDepth.
	MaxDepth int
}

// Eval evaluates e in env. ctx is checked on every function call, which is
// the only way evaluation can run unboundedly long. A nil ctx is treated as
// context.Background.
func (ev *Evaluator) Eval(ctx context.Context, e expr.Expr, env *Env) (Value, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if env == nil {
		env = Empty
	}
	limit := ev.MaxDepth
	if limit <= 0 {
		limit = DefaultMaxDepth
	}
	r := &run{ctx: ctx, limit: limit}
	return r.eval(e, env)
}

type run struct {
	ctx   context.Context
	limit int
	depth int
}

func (r *run) eval(e expr.Expr, env *Env) (Value, error) {
	r.depth++
	defer func() { r.depth-- }()
	if r.depth > r.limit {
		return nil, runtimeErrorf(KindDepth, "evaluation nested too deeply (limit %d)", r.limit)
	}

	switch x := e.(type) {
	case *expr.Num:
		return &NumVal{Value: x.Value}, nil
	case *expr.Bool:
		return &BoolVal{Value: x.Value}, nil
	case *expr.Var:
		return env.Lookup(x.Name)
	case *expr.Add:
		return r.arith(x.Lhs, x.Rhs, env, "+", func(a, b int64) int64 { return a + b })
	case *expr.Mult:
		return r.arith(x.Lhs, x.Rhs, env, "*", func(a, b int64) int64 { return a * b })
	case *expr.Eq:
		lhs, err := r.eval(x.Lhs, env)
		if err != nil {
			return nil, err
		}
		rhs, err := r.eval(x.Rhs, env)
		if err != nil {
			return nil, err
		}
		return &BoolVal{Value: ValuesEqual(lhs, rhs)}, nil
	case *expr.Let:
		rhs, err := r.eval(x.Rhs, env)
		if err != nil {
			return nil, err
		}
		return r.eval(x.Body, Extend(x.Name, rhs, env))
	case *expr.If:
		cond, err := r.eval(x.Cond, env)
		if err != nil {
			return nil, err
		}
		b, ok := cond.(*BoolVal)
		if !ok {
			return nil, runtimeErrorf(KindType, "_if condition must be a boolean, got %s", typeName(cond))
		}
		if b.Value {
			return r.eval(x.Then, env)
		}
		return r.eval(x.Else, env)
	case *expr.Fun:
		return &FunVal{Arg: x.Arg, Body: x.Body, Env: env}, nil
	case *expr.Call:
		return r.call(x, env)
	default:
		return nil, runtimeErrorf(KindType, "unknown expression %T", e)
	}
}

func (r *run) arith(l, rr expr.Expr, env *Env, op string, apply func(a, b int64) int64) (Value, error) {
	lhs, err := r.eval(l, env)
	if err != nil {
		return nil, err
	}
	rhs, err := r.eval(rr, env)
	if err != nil {
		return nil, err
	}
	a, ok := lhs.(*NumVal)
	if !ok {
		return nil, runtimeErrorf(KindType, "%s expects numbers, got %s", op, typeName(lhs))
	}
	b, ok := rhs.(*NumVal)
	if !ok {
		return nil, runtimeErrorf(KindType, "%s expects numbers, got %s", op, typeName(rhs))
	}
	n := apply(int64(a.Value), int64(b.Value))
	if n > math.MaxInt32 || n < math.MinInt32 {
		return nil, runtimeErrorf(KindOverflow, "integer overflow: %d %s %d", a.Value, op, b.Value)
	}
	return &NumVal{Value: int32(n)}, nil
}

func (r *run) call(c *expr.Call, env *Env) (Value, error) {
	if err := r.ctx.Err(); err != nil {
		return nil, runtimeErrorf(KindCanceled, "evaluation canceled: %v", err)
	}
	callee, err := r.eval(c.Callee, env)
	if err != nil {
		return nil, err
	}
	fn, ok := callee.(*FunVal)
	if !ok {
		return nil, runtimeErrorf(KindNotFunction, "cannot call a %s", typeName(callee))
	}
	arg, err := r.eval(c.Arg, env)
	if err != nil {
		return nil, err
	}
	return r.eval(fn.Body, Extend(fn.Arg, arg, fn.Env))
}
