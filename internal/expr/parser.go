package expr

import (
	"fmt"
	"strconv"
)

// node is an expression tree node.
type node interface {
	eval(s Scope) (any, error)
}

type literal struct{ value any }

type ident struct{ name string }

type member struct {
	object   node
	property node
}

type unary struct {
	op string
	x  node
}

type binary struct {
	op   string
	x, y node
}

type logical struct {
	op   string
	x, y node
}

type conditional struct {
	cond, then, otherwise node
}

// Program is a parsed expression, safe to evaluate repeatedly.
type Program struct {
	src  string
	root node
}

// Source returns the text the program was parsed from.
func (p *Program) Source() string {
	return p.src
}

// Parse compiles src into a Program.
func Parse(src string) (*Program, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	root, err := p.expression()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, unexpected(tok)
	}
	return &Program{src: src, root: root}, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) accept(ops ...string) (string, bool) {
	tok := p.peek()
	if tok.kind != tokPunct {
		return "", false
	}
	for _, op := range ops {
		if tok.text == op {
			p.pos++
			return op, true
		}
	}
	return "", false
}

func (p *parser) expect(op string) error {
	if _, ok := p.accept(op); !ok {
		return unexpected(p.peek())
	}
	return nil
}

func (p *parser) expression() (node, error) {
	cond, err := p.nullish()
	if err != nil {
		return nil, err
	}
	if _, ok := p.accept("?"); !ok {
		return cond, nil
	}
	then, err := p.expression()
	if err != nil {
		return nil, err
	}
	if err := p.expect(":"); err != nil {
		return nil, err
	}
	otherwise, err := p.expression()
	if err != nil {
		return nil, err
	}
	return &conditional{cond: cond, then: then, otherwise: otherwise}, nil
}

func (p *parser) nullish() (node, error) {
	return p.logicalChain(p.or, "??")
}

func (p *parser) or() (node, error) {
	return p.logicalChain(p.and, "||")
}

func (p *parser) and() (node, error) {
	return p.logicalChain(p.equality, "&&")
}

func (p *parser) logicalChain(operand func() (node, error), op string) (node, error) {
	x, err := operand()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.accept(op); !ok {
			return x, nil
		}
		y, err := operand()
		if err != nil {
			return nil, err
		}
		x = &logical{op: op, x: x, y: y}
	}
}

func (p *parser) binaryChain(operand func() (node, error), ops ...string) (node, error) {
	x, err := operand()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.accept(ops...)
		if !ok {
			return x, nil
		}
		y, err := operand()
		if err != nil {
			return nil, err
		}
		x = &binary{op: op, x: x, y: y}
	}
}

func (p *parser) equality() (node, error) {
	return p.binaryChain(p.relational, "===", "!==", "==", "!=")
}

func (p *parser) relational() (node, error) {
	return p.binaryChain(p.additive, "<=", ">=", "<", ">")
}

func (p *parser) additive() (node, error) {
	return p.binaryChain(p.multiplicative, "+", "-")
}

func (p *parser) multiplicative() (node, error) {
	return p.binaryChain(p.unary, "*", "/", "%")
}

func (p *parser) unary() (node, error) {
	if op, ok := p.accept("!", "-", "+"); ok {
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &unary{op: op, x: x}, nil
	}
	return p.exponent()
}

// exponent is right associative: 2 ** 3 ** 2 is 2 ** 9.
func (p *parser) exponent() (node, error) {
	x, err := p.postfix()
	if err != nil {
		return nil, err
	}
	if _, ok := p.accept("**"); !ok {
		return x, nil
	}
	y, err := p.unary()
	if err != nil {
		return nil, err
	}
	return &binary{op: "**", x: x, y: y}, nil
}

func (p *parser) postfix() (node, error) {
	x, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.accept("."); ok {
			tok := p.next()
			if tok.kind != tokIdent {
				return nil, unexpected(tok)
			}
			x = &member{object: x, property: &literal{value: tok.text}}
			continue
		}
		if _, ok := p.accept("["); ok {
			prop, err := p.expression()
			if err != nil {
				return nil, err
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			x = &member{object: x, property: prop}
			continue
		}
		if tok := p.peek(); tok.kind == tokPunct && tok.text == "(" {
			return nil, &Error{Kind: TypeError, Msg: "function calls are not supported"}
		}
		return x, nil
	}
}

func (p *parser) primary() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, &Error{Kind: SyntaxError, Msg: fmt.Sprintf("Invalid number %q", tok.text)}
		}
		return &literal{value: f}, nil
	case tokString:
		return &literal{value: tok.text}, nil
	case tokIdent:
		switch tok.text {
		case "true":
			return &literal{value: true}, nil
		case "false":
			return &literal{value: false}, nil
		case "null":
			return &literal{value: nil}, nil
		case "undefined":
			return &literal{value: Undefined}, nil
		}
		return &ident{name: tok.text}, nil
	case tokPunct:
		if tok.text == "(" {
			x, err := p.expression()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return x, nil
		}
	}
	return nil, unexpected(tok)
}

func unexpected(tok token) error {
	if tok.kind == tokEOF {
		return &Error{Kind: SyntaxError, Msg: "Unexpected end of input"}
	}
	return &Error{Kind: SyntaxError, Msg: fmt.Sprintf("Unexpected token '%s'", tok.text)}
}
