package parse

import (
	"fmt"
	"io"
	"math"

	"github.com/InsulaLabs/msdscript/pkg/expr"
)

// DefaultMaxDepth bounds how deeply a parsed tree may nest.
const DefaultMaxDepth = 10000

/*
	Grammar, loosest binding first:

	expr      := comparg ( '==' expr )?
	comparg   := addend ( '+' comparg )?
	addend    := multicand ( '*' addend )?
	multicand := inner ( '(' expr ')' )*
	inner     := number | '(' expr ')' | identifier
	           | _true | _false
	           | _if expr _then expr _else expr
	           | _let identifier = expr _in expr
	           | _fun ( identifier ) expr

	'==' and '+' both associate to the right; calls chain to the left.
*/

type Parser struct {
	// MaxDepth limits expr.Depth of the result; zero means DefaultMaxDepth.
	// Recursion is separately held to twice that, which is enough for the
	// printed forms of any tree the parser accepts.
	MaxDepth int

	s     *Scanner
	depth int
}

// ParseString parses a complete expression. Anything other than whitespace
// after the expression is an error.
func ParseString(src string) (expr.Expr, error) {
	return (&Parser{}).ParseString(src)
}

// Parse reads r to the end and parses the result.
func Parse(r io.Reader) (expr.Expr, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseString(string(data))
}

func (p *Parser) ParseString(src string) (expr.Expr, error) {
	p.s = NewScanner(src)
	p.depth = 0

	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.s.SkipWhitespace()
	if !p.s.AtEnd() {
		return nil, p.s.errorAt(p.s.Pos(), fmt.Sprintf("unexpected input after expression: '%c'", p.s.Peek()))
	}
	if expr.Depth(e) > p.limit() {
		err := p.s.errorAt(0, "expression nested too deeply")
		err.Incomplete = false
		return nil, err
	}
	return e, nil
}

func (p *Parser) limit() int {
	if p.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return p.MaxDepth
}

// nested runs parse one level deeper. Every recursive descent into a
// subexpression goes through here: operator right operands, parenthesized
// groups, call arguments and the parts of keyword forms.
func (p *Parser) nested(parse func() (expr.Expr, error)) (expr.Expr, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	return parse()
}

func (p *Parser) enter() error {
	p.depth++
	if p.depth > 2*p.limit() {
		err := p.s.errorAt(p.s.Pos(), "expression nested too deeply")
		err.Incomplete = false
		return err
	}
	return nil
}

func (p *Parser) leave() {
	p.depth--
}

func (p *Parser) parseExpr() (expr.Expr, error) {
	lhs, err := p.parseComparg()
	if err != nil {
		return nil, err
	}

	p.s.SkipWhitespace()
	if p.s.Peek() != '=' {
		return lhs, nil
	}
	if err := p.consumeAll("=="); err != nil {
		return nil, err
	}
	rhs, err := p.nested(p.parseExpr)
	if err != nil {
		return nil, err
	}
	return &expr.Eq{Lhs: lhs, Rhs: rhs}, nil
}

func (p *Parser) parseComparg() (expr.Expr, error) {
	lhs, err := p.parseAddend()
	if err != nil {
		return nil, err
	}

	p.s.SkipWhitespace()
	if p.s.Peek() != '+' {
		return lhs, nil
	}
	p.s.Advance()
	rhs, err := p.nested(p.parseComparg)
	if err != nil {
		return nil, err
	}
	return &expr.Add{Lhs: lhs, Rhs: rhs}, nil
}

func (p *Parser) parseAddend() (expr.Expr, error) {
	lhs, err := p.parseMulticand()
	if err != nil {
		return nil, err
	}

	p.s.SkipWhitespace()
	if p.s.Peek() != '*' {
		return lhs, nil
	}
	p.s.Advance()
	rhs, err := p.nested(p.parseAddend)
	if err != nil {
		return nil, err
	}
	return &expr.Mult{Lhs: lhs, Rhs: rhs}, nil
}

func (p *Parser) parseMulticand() (expr.Expr, error) {
	e, err := p.parseInner()
	if err != nil {
		return nil, err
	}

	for {
		p.s.SkipWhitespace()
		if p.s.Peek() != '(' {
			return e, nil
		}
		p.s.Advance()
		arg, err := p.nested(p.parseExpr)
		if err != nil {
			return nil, err
		}
		p.s.SkipWhitespace()
		if err := p.s.Consume(')'); err != nil {
			return nil, err
		}
		e = &expr.Call{Callee: e, Arg: arg}
	}
}

func (p *Parser) parseInner() (expr.Expr, error) {
	p.s.SkipWhitespace()
	c := p.s.Peek()

	switch {
	case p.s.AtEnd():
		return nil, p.s.errorAt(p.s.Pos(), "unexpected end of input")
	case c == '-' || isDigit(c):
		return p.parseNumber()
	case c == '(':
		p.s.Advance()
		e, err := p.nested(p.parseExpr)
		if err != nil {
			return nil, err
		}
		p.s.SkipWhitespace()
		if err := p.s.Consume(')'); err != nil {
			return nil, err
		}
		return e, nil
	case isLetter(c):
		name, err := p.parseIdentifier()
		if err != nil {
			return nil, err
		}
		return &expr.Var{Name: name}, nil
	case c == '_':
		return p.parseKeywordForm()
	default:
		return nil, p.s.errorAt(p.s.Pos(), fmt.Sprintf("unexpected character '%c'", c))
	}
}

// parseNumber accumulates digits unsigned and rejects anything above
// math.MaxInt32 before the sign is applied.
func (p *Parser) parseNumber() (expr.Expr, error) {
	start := p.s.Pos()
	negative := false
	if p.s.Peek() == '-' {
		negative = true
		p.s.Advance()
		if !isDigit(p.s.Peek()) {
			return nil, p.s.errorAt(p.s.Pos(), "expected a digit after '-'")
		}
	}

	var n uint64
	for isDigit(p.s.Peek()) {
		n = n*10 + uint64(p.s.Advance()-'0')
		if n > math.MaxInt32 {
			return nil, p.s.errorAt(start, "number too large")
		}
	}

	v := int64(n)
	if negative {
		v = -v
	}
	return &expr.Num{Value: int32(v)}, nil
}

// parseIdentifier reads one or more letters. An underscore inside an
// identifier is reserved for keywords and rejected.
func (p *Parser) parseIdentifier() (string, error) {
	start := p.s.Pos()
	for isLetter(p.s.Peek()) {
		p.s.Advance()
	}
	if p.s.Peek() == '_' {
		return "", p.s.errorAt(p.s.Pos(), "'_' is not allowed in an identifier")
	}
	if p.s.Pos() == start {
		if p.s.AtEnd() {
			return "", p.s.errorAt(start, "expected an identifier, found end of input")
		}
		return "", p.s.errorAt(start, fmt.Sprintf("expected an identifier, found '%c'", p.s.Peek()))
	}
	return p.s.input[start:p.s.Pos()], nil
}

func (p *Parser) parseKeywordForm() (expr.Expr, error) {
	start := p.s.Pos()
	if err := p.s.Consume('_'); err != nil {
		return nil, err
	}

	switch p.s.Peek() {
	case 't':
		if err := p.keywordRest(start, "true"); err != nil {
			return nil, err
		}
		return &expr.Bool{Value: true}, nil
	case 'f':
		p.s.Advance()
		switch p.s.Peek() {
		case 'a':
			if err := p.keywordRest(start, "alse"); err != nil {
				return nil, err
			}
			return &expr.Bool{Value: false}, nil
		case 'u':
			if err := p.keywordRest(start, "un"); err != nil {
				return nil, err
			}
			return p.parseFun()
		}
	case 'i':
		if err := p.keywordRest(start, "if"); err != nil {
			return nil, err
		}
		return p.parseIf()
	case 'l':
		if err := p.keywordRest(start, "let"); err != nil {
			return nil, err
		}
		return p.parseLet()
	}

	if p.s.AtEnd() {
		return nil, p.s.errorAt(p.s.Pos(), "unexpected end of input after '_'")
	}
	return nil, p.s.errorAt(start, "unknown keyword")
}

// keywordRest consumes the remaining letters of a keyword and requires that
// no further letter follows it.
func (p *Parser) keywordRest(start int, rest string) error {
	if err := p.consumeAll(rest); err != nil {
		return err
	}
	if isLetter(p.s.Peek()) {
		return p.s.errorAt(start, "unknown keyword")
	}
	return nil
}

// expectKeyword skips whitespace and consumes a full keyword such as "_in".
func (p *Parser) expectKeyword(kw string) error {
	p.s.SkipWhitespace()
	start := p.s.Pos()
	if err := p.consumeAll(kw); err != nil {
		return err
	}
	if isLetter(p.s.Peek()) {
		return p.s.errorAt(start, fmt.Sprintf("expected '%s'", kw))
	}
	return nil
}

func (p *Parser) consumeAll(s string) error {
	for i := 0; i < len(s); i++ {
		if err := p.s.Consume(s[i]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) parseLet() (expr.Expr, error) {
	p.s.SkipWhitespace()
	name, err := p.parseIdentifier()
	if err != nil {
		return nil, err
	}
	p.s.SkipWhitespace()
	if err := p.s.Consume('='); err != nil {
		return nil, err
	}
	rhs, err := p.nested(p.parseExpr)
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("_in"); err != nil {
		return nil, err
	}
	body, err := p.nested(p.parseExpr)
	if err != nil {
		return nil, err
	}
	return &expr.Let{Name: name, Rhs: rhs, Body: body}, nil
}

func (p *Parser) parseIf() (expr.Expr, error) {
	cond, err := p.nested(p.parseExpr)
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("_then"); err != nil {
		return nil, err
	}
	then, err := p.nested(p.parseExpr)
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("_else"); err != nil {
		return nil, err
	}
	els, err := p.nested(p.parseExpr)
	if err != nil {
		return nil, err
	}
	return &expr.If{Cond: cond, Then: then, Else: els}, nil
}

func (p *Parser) parseFun() (expr.Expr, error) {
	p.s.SkipWhitespace()
	if err := p.s.Consume('('); err != nil {
		return nil, err
	}
	p.s.SkipWhitespace()
	arg, err := p.parseIdentifier()
	if err != nil {
		return nil, err
	}
	p.s.SkipWhitespace()
	if err := p.s.Consume(')'); err != nil {
		return nil, err
	}
	body, err := p.nested(p.parseExpr)
	if err != nil {
		return nil, err
	}
	return &expr.Fun{Arg: arg, Body: body}, nil
}
