package expression

import (
	"fmt"
	"sort"

	"github.com/aretw0/osdl/pkg/domain"
)

// Program is a parsed expression, safe for concurrent evaluation.
type Program struct {
	src  string
	root node
}

// Source returns the original expression text.
func (p *Program) Source() string { return p.src }

// Roots returns the sorted root identifiers the expression reads.
func (p *Program) Roots() []string {
	set := make(map[string]struct{})
	collectRoots(p.root, set)
	roots := make([]string, 0, len(set))
	for r := range set {
		roots = append(roots, r)
	}
	sort.Strings(roots)
	return roots
}

// Parse compiles src into a Program. Errors are *domain.ParseError.
func Parse(src string) (*Program, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	if p.peek().kind == tokEOF {
		return nil, p.errorf("empty expression")
	}
	root, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf("unexpected %q", t.text)
	}
	return &Program{src: src, root: root}, nil
}

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isPunct(texts ...string) bool {
	t := p.peek()
	if t.kind != tokPunct {
		return false
	}
	for _, s := range texts {
		if t.text == s {
			return true
		}
	}
	return false
}

func (p *parser) expect(text string) error {
	if !p.isPunct(text) {
		t := p.peek()
		if t.kind == tokEOF {
			return p.errorf("expected %q, got end of expression", text)
		}
		return p.errorf("expected %q, got %q", text, t.text)
	}
	p.next()
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return &domain.ParseError{Expr: p.src, Pos: p.peek().pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseTernary() (node, error) {
	test, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.isPunct("?") {
		return test, nil
	}
	p.next()
	cons, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if err := p.expect(":"); err != nil {
		return nil, err
	}
	alt, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	return &conditional{test: test, consequent: cons, alternate: alt}, nil
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isPunct("||") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &logical{op: "||", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.isPunct("&&") {
		p.next()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &logical{op: "&&", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.isPunct("==", "!=", "===", "!==", ">=", "<=", ">", "<") {
		op := p.next().text
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &binary{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.isPunct("+", "-") {
		op := p.next().text
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &binary{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isPunct("*", "/", "%") {
		op := p.next().text
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binary{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.isPunct("!", "-") {
		op := p.next().text
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unary{op: op, x: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (node, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isPunct("."):
			p.next()
			t := p.next()
			if t.kind != tokIdent {
				return nil, &domain.ParseError{Expr: p.src, Pos: t.pos, Msg: "expected property name after '.'"}
			}
			if p.isPunct("(") {
				args, err := p.parseArgs()
				if err != nil {
					return nil, err
				}
				expr = &methodCall{receiver: expr, name: t.text, args: args}
				continue
			}
			expr = &member{object: expr, property: t.text}
		case p.isPunct("["):
			p.next()
			key, err := p.parseTernary()
			if err != nil {
				return nil, err
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			expr = &index{object: expr, key: key}
		case p.isPunct("("):
			id, ok := expr.(*ident)
			if !ok {
				return nil, p.errorf("only named functions can be called")
			}
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			expr = &call{name: id.name, args: args}
		default:
			return expr, nil
		}
	}
}

func (p *parser) parseArgs() ([]node, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	var args []node
	if p.isPunct(")") {
		p.next()
		return args, nil
	}
	for {
		arg, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.isPunct(",") {
			p.next()
			continue
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return args, nil
	}
}

func (p *parser) parsePrimary() (node, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.next()
		return &literal{value: t.num}, nil
	case tokString:
		p.next()
		return &literal{value: t.text}, nil
	case tokIdent:
		p.next()
		switch t.text {
		case "true":
			return &literal{value: true}, nil
		case "false":
			return &literal{value: false}, nil
		case "null":
			return &literal{value: nil}, nil
		case "undefined":
			return &literal{value: Undefined}, nil
		}
		return &ident{name: t.text}, nil
	case tokPunct:
		if t.text == "(" {
			p.next()
			inner, err := p.parseTernary()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return inner, nil
		}
		return nil, p.errorf("unexpected %q", t.text)
	}
	return nil, p.errorf("unexpected end of expression")
}
