package parse

import (
	"strings"
	"testing"

	"github.com/InsulaLabs/msdscript/pkg/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func num(n int32) expr.Expr   { return &expr.Num{Value: n} }
func v(name string) expr.Expr { return &expr.Var{Name: name} }
func add(l, r expr.Expr) expr.Expr {
	return &expr.Add{Lhs: l, Rhs: r}
}
func mult(l, r expr.Expr) expr.Expr {
	return &expr.Mult{Lhs: l, Rhs: r}
}
func eq(l, r expr.Expr) expr.Expr {
	return &expr.Eq{Lhs: l, Rhs: r}
}
func call(f, a expr.Expr) expr.Expr {
	return &expr.Call{Callee: f, Arg: a}
}

func TestParseString_SuccessCases(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  expr.Expr
	}{
		{"number", "42", num(42)},
		{"negative number", "-17", num(-17)},
		{"max int", "2147483647", num(2147483647)},
		{"surrounding whitespace", "  \n 7 \t", num(7)},
		{"variable", "xyz", v("xyz")},
		{"booleans", "_true == _false", eq(&expr.Bool{Value: true}, &expr.Bool{Value: false})},
		{"mult binds tighter than add", "2 + 3 * 4", add(num(2), mult(num(3), num(4)))},
		{"parens", "(2 + 3) * 4", mult(add(num(2), num(3)), num(4))},
		{"add is right associative", "1 + 2 + 3", add(num(1), add(num(2), num(3)))},
		{"mult is right associative", "1 * 2 * 3", mult(num(1), mult(num(2), num(3)))},
		{"eq binds looser than add", "1 + 2 == 3", eq(add(num(1), num(2)), num(3))},
		{"eq on the left of add", "3 == 1 + 2", eq(num(3), add(num(1), num(2)))},
		{"eq is right associative", "1 == 2 == 3", eq(num(1), eq(num(2), num(3)))},
		{"subtraction by negative literal", "x + -3", add(v("x"), num(-3))},
		{
			"let",
			"_let x = 5 _in x + 1",
			&expr.Let{Name: "x", Rhs: num(5), Body: add(v("x"), num(1))},
		},
		{
			"canonical let",
			"(_let x=5 _in (x+1))",
			&expr.Let{Name: "x", Rhs: num(5), Body: add(v("x"), num(1))},
		},
		{
			"pretty let",
			"_let x = 5\n_in  x + 1",
			&expr.Let{Name: "x", Rhs: num(5), Body: add(v("x"), num(1))},
		},
		{
			"if",
			"_if x == 1 _then 2 _else 3",
			&expr.If{Cond: eq(v("x"), num(1)), Then: num(2), Else: num(3)},
		},
		{
			"fun",
			"_fun (x) x * x",
			&expr.Fun{Arg: "x", Body: mult(v("x"), v("x"))},
		},
		{
			"fun body swallows a trailing call",
			"_fun (x) x * x (5)",
			&expr.Fun{Arg: "x", Body: mult(v("x"), call(v("x"), num(5)))},
		},
		{
			"parenthesized fun call",
			"(_fun (x) x * x)(5)",
			call(&expr.Fun{Arg: "x", Body: mult(v("x"), v("x"))}, num(5)),
		},
		{"curried call", "f(1)(2)", call(call(v("f"), num(1)), num(2))},
		{"call binds tighter than mult", "2 * f(3)", mult(num(2), call(v("f"), num(3)))},
		{"whitespace before argument", "f (1)", call(v("f"), num(1))},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseString(tc.input)
			require.NoError(t, err)
			assert.True(t, expr.Equal(tc.want, got), "want %s, got %s", expr.String(tc.want), expr.String(got))
		})
	}
}

func TestParseString_ErrorCases(t *testing.T) {
	testCases := []struct {
		name       string
		input      string
		message    string
		incomplete bool
	}{
		{"empty", "", "unexpected end of input", true},
		{"number too large", "2147483648", "number too large", false},
		{"very large number", "99999999999999999999999", "number too large", false},
		{"most negative int is rejected", "-2147483648", "number too large", false},
		{"dangling minus", "-", "expected a digit after '-'", true},
		{"minus then letter", "-x", "expected a digit after '-'", false},
		{"underscore in identifier", "ab_c", "'_' is not allowed in an identifier", false},
		{"unclosed paren", "(1 + 2", "expected ')', found end of input", true},
		{"unclosed call", "f(1", "expected ')', found end of input", true},
		{"unexpected character", "1 + $", "unexpected character '$'", false},
		{"trailing input", "1 2", "unexpected input after expression", false},
		{"single equals", "1 = 2", "expected '=', found ' '", false},
		{"unknown keyword", "_foo", "unknown keyword", false},
		{"keyword with extra letters", "_trueish", "unknown keyword", false},
		{"bare underscore", "_", "unexpected end of input after '_'", true},
		{"let without in", "_let x = 1", "expected '_', found end of input", true},
		{"let without identifier", "_let = 1 _in 2", "expected an identifier", false},
		{"let without equals", "_let x 1 _in 2", "expected '=', found '1'", false},
		{"if without else", "_if _true _then 1", "end of input", true},
		{"if with wrong keyword", "_if _true _then 1 _elsewhere 2", "expected '_else'", false},
		{"fun without parens", "_fun x x", "expected '(', found 'x'", false},
		{"fun without arg", "_fun () 1", "expected an identifier, found ')'", false},
		{"in outside let", "_in", "expected 'f', found 'n'", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseString(tc.input)
			require.Error(t, err)
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Contains(t, pe.Message, tc.message)
			assert.Equal(t, tc.incomplete, IsIncomplete(err))
		})
	}
}

func TestParse_Reader(t *testing.T) {
	e, err := Parse(strings.NewReader("_let x = 2 _in x * 3"))
	require.NoError(t, err)
	assert.Equal(t, "(_let x=2 _in (x*3))", expr.String(e))
}

func TestParser_MaxDepth(t *testing.T) {
	deep := strings.Repeat("(", 50) + "1" + strings.Repeat(")", 50)

	p := &Parser{MaxDepth: 20}
	_, err := p.ParseString(deep)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nested too deeply")
	assert.False(t, IsIncomplete(err))

	p = &Parser{MaxDepth: 1000}
	e, err := p.ParseString(deep)
	require.NoError(t, err)
	assert.True(t, expr.Equal(num(1), e))
}

func TestParser_MaxDepthCountsTreeNesting(t *testing.T) {
	p := &Parser{MaxDepth: 100}

	// 99 additions nest 100 nodes deep.
	_, err := p.ParseString(strings.Repeat("1+", 99) + "1")
	require.NoError(t, err)

	_, err = p.ParseString(strings.Repeat("1+", 100) + "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nested too deeply")
	assert.False(t, IsIncomplete(err))

	// Redundant parentheses cost recursion but not tree depth.
	_, err = p.ParseString(strings.Repeat("(", 150) + "1" + strings.Repeat(")", 150))
	require.NoError(t, err)
}

func TestRoundTrip_DeepTrees(t *testing.T) {
	leftNested := "1"
	for i := 0; i < 60; i++ {
		leftNested = "(" + leftNested + ") * 2"
	}
	inputs := map[string]string{
		"long sum":           strings.Repeat("1+", 4000) + "1",
		"long product":       strings.Repeat("x*", 3000) + "x",
		"chained equality":   strings.Repeat("1==", 2000) + "1",
		"left nested":        leftNested,
		"nested lets":        strings.Repeat("_let x = 1 _in ", 500) + "x",
		"nested ifs":         strings.Repeat("_if _true _then ", 300) + "1" + strings.Repeat(" _else 2", 300),
		"nested funs":        strings.Repeat("_fun (x) ", 500) + "x",
		"curried call chain": "f" + strings.Repeat("(1)", 500),
		"nested call args":   strings.Repeat("f(", 500) + "1" + strings.Repeat(")", 500),
		"sums in call args":  strings.Repeat("f(1+", 300) + "1" + strings.Repeat(")", 300),
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			orig, err := ParseString(input)
			require.NoError(t, err)

			// A parser that only just admits the tree must admit both
			// printed forms of it as well.
			p := &Parser{MaxDepth: expr.Depth(orig)}
			_, err = p.ParseString(input)
			require.NoError(t, err)

			canonical, err := p.ParseString(expr.String(orig))
			require.NoError(t, err)
			assert.True(t, expr.Equal(orig, canonical))

			pretty, err := p.ParseString(expr.Pretty(orig))
			require.NoError(t, err)
			assert.True(t, expr.Equal(orig, pretty))
		})
	}
}

func TestRoundTrip(t *testing.T) {
	inputs := []string{
		"1",
		"-5 + x",
		"2 + 3 * 4",
		"(2 + 3) * 4",
		"(1 + 2) + 3",
		"1 + 2 == 3",
		"(1 == 2) == _false",
		"1 + (2 == 3)",
		"_let x = 5 _in (_let y = 3 _in y + 2) + x",
		"_let x = _let y = 1 _in y _in x",
		"2 * (_let x = 2 _in x) + 1",
		"_if x == 1 _then _let y = 2 _in y _else _fun (z) z * z",
		"(_if _true _then 1 _else 2) + 3",
		"(_fun (x) x * x)(5)",
		"_let f = _fun (x) _fun (y) x + y _in f(1)(2)",
		"(_fun (f) f(f))(_fun (g) g)",
		"(f + g)(1)",
		"_let add = _fun (x) _fun (y) x + y _in (_let x = 999 _in add(1))(10)",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			orig, err := ParseString(input)
			require.NoError(t, err)

			canonical, err := ParseString(expr.String(orig))
			require.NoError(t, err, "canonical form: %s", expr.String(orig))
			assert.True(t, expr.Equal(orig, canonical), "canonical form: %s", expr.String(orig))

			pretty, err := ParseString(expr.Pretty(orig))
			require.NoError(t, err, "pretty form:\n%s", expr.Pretty(orig))
			assert.True(t, expr.Equal(orig, pretty), "pretty form:\n%s", expr.Pretty(orig))
		})
	}
}

func TestSnippet(t *testing.T) {
	src := "_let x = 1\n_in  (x +\n"
	_, err := ParseString(src)
	require.Error(t, err)

	out := Snippet(err, src)
	assert.True(t, strings.HasPrefix(out, "parse error at 3:1:"), out)
	assert.Contains(t, out, "2 | _in  (x +")
	assert.Contains(t, out, "^")

	_, err = ParseString("1 + $")
	require.Error(t, err)
	out = Snippet(err, "1 + $")
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "  1 | 1 + $", lines[2])
	assert.Equal(t, "    |     ^", lines[3])
}
