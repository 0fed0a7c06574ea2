package expr

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// Parse compiles the string form of a style condition, e.g.
//
//	kind == 'road' && $zoom >= 10
//	has name || population > 10000
//	class in ('residential', 'suburb')
//
// Bare identifiers read feature tags; $zoom reads the evaluation zoom.
// The result is the same Expr tree the array syntax compiles to.
func Parse(src string) (Expr, error) {
	p := &parser{src: src}
	p.next()
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind == tokErr {
		return nil, errors.Errorf("expr: %s at offset %d", p.tok.text, p.tok.pos)
	}
	if p.tok.kind != tokEOF {
		return nil, errors.Errorf("expr: unexpected %q at offset %d", p.tok.text, p.tok.pos)
	}
	return e, nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokErr
	tokIdent
	tokNumber
	tokString
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokKind
	text string
	pos  int
}

type parser struct {
	src string
	off int
	tok token
}

func (p *parser) next() {
	for p.off < len(p.src) && (p.src[p.off] == ' ' || p.src[p.off] == '\t' || p.src[p.off] == '\n') {
		p.off++
	}
	start := p.off
	if p.off >= len(p.src) {
		p.tok = token{kind: tokEOF, pos: start}
		return
	}

	c := p.src[p.off]
	switch {
	case c == '(':
		p.off++
		p.tok = token{kind: tokLParen, text: "(", pos: start}
	case c == ')':
		p.off++
		p.tok = token{kind: tokRParen, text: ")", pos: start}
	case c == ',':
		p.off++
		p.tok = token{kind: tokComma, text: ",", pos: start}
	case c == '\'' || c == '"':
		quote := c
		p.off++
		var sb strings.Builder
		for p.off < len(p.src) && p.src[p.off] != quote {
			sb.WriteByte(p.src[p.off])
			p.off++
		}
		if p.off >= len(p.src) {
			p.tok = token{kind: tokErr, text: "unterminated string", pos: start}
			return
		}
		p.off++
		p.tok = token{kind: tokString, text: sb.String(), pos: start}
	case c >= '0' && c <= '9' || c == '.':
		for p.off < len(p.src) && (p.src[p.off] >= '0' && p.src[p.off] <= '9' || p.src[p.off] == '.') {
			p.off++
		}
		p.tok = token{kind: tokNumber, text: p.src[start:p.off], pos: start}
	case isIdentStart(rune(c)):
		p.off++
		for p.off < len(p.src) && isIdentPart(rune(p.src[p.off])) {
			p.off++
		}
		p.tok = token{kind: tokIdent, text: p.src[start:p.off], pos: start}
	default:
		// Two-character operators first.
		if p.off+1 < len(p.src) {
			two := p.src[p.off : p.off+2]
			switch two {
			case "==", "!=", "<=", ">=", "&&", "||":
				p.off += 2
				p.tok = token{kind: tokOp, text: two, pos: start}
				return
			}
		}
		switch c {
		case '<', '>', '!', '+', '-', '*', '/', '%':
			p.off++
			p.tok = token{kind: tokOp, text: string(c), pos: start}
		default:
			p.tok = token{kind: tokErr, text: "bad character " + strconv.Quote(string(c)), pos: start}
		}
	}
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_' || r == '$'
}

func isIdentPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == ':' || r == '-' || r == '.'
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp && p.tok.text == "||" {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Call{Op: "any", Args: []Expr{left, right}}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp && p.tok.text == "&&" {
		p.next()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = Call{Op: "all", Args: []Expr{left, right}}
	}
	return left, nil
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	if p.tok.kind == tokIdent && p.tok.text == "in" {
		p.next()
		candidates, err := p.parseList()
		if err != nil {
			return nil, err
		}
		return Call{Op: "in", Args: append([]Expr{left}, candidates...)}, nil
	}

	if p.tok.kind == tokOp {
		switch p.tok.text {
		case "==", "!=", "<", "<=", ">", ">=":
			op := p.tok.text
			p.next()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			return Call{Op: op, Args: []Expr{left, right}}, nil
		}
	}
	return left, nil
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp && (p.tok.text == "+" || p.tok.text == "-") {
		op := p.tok.text
		p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = Call{Op: op, Args: []Expr{left, right}}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp && (p.tok.text == "*" || p.tok.text == "/" || p.tok.text == "%") {
		op := p.tok.text
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = Call{Op: op, Args: []Expr{left, right}}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.tok.kind == tokOp && p.tok.text == "!" {
		p.next()
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Call{Op: "!", Args: []Expr{e}}, nil
	}
	if p.tok.kind == tokOp && p.tok.text == "-" {
		p.next()
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Call{Op: "-", Args: []Expr{Literal{Value: 0.0}, e}}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	switch p.tok.kind {
	case tokNumber:
		n, err := strconv.ParseFloat(p.tok.text, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "expr: bad number at offset %d", p.tok.pos)
		}
		p.next()
		return Literal{Value: n}, nil

	case tokString:
		s := p.tok.text
		p.next()
		return Literal{Value: s}, nil

	case tokIdent:
		name := p.tok.text
		p.next()
		switch name {
		case "true":
			return Literal{Value: true}, nil
		case "false":
			return Literal{Value: false}, nil
		case "has":
			if p.tok.kind != tokIdent {
				return nil, errors.Errorf("expr: has needs a tag name at offset %d", p.tok.pos)
			}
			key := p.tok.text
			p.next()
			return Has{Key: key}, nil
		case "$zoom":
			return Zoom{}, nil
		default:
			// $layer and $geometryType are injected into the tag
			// environment by the evaluator, so a plain Get works.
			return Get{Key: name}, nil
		}

	case tokLParen:
		p.next()
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, errors.Errorf("expr: missing ) at offset %d", p.tok.pos)
		}
		p.next()
		return e, nil

	case tokErr:
		return nil, errors.Errorf("expr: %s at offset %d", p.tok.text, p.tok.pos)

	default:
		return nil, errors.Errorf("expr: unexpected %q at offset %d", p.tok.text, p.tok.pos)
	}
}

// parseList parses ('a', 'b', 3) after an "in" keyword.
func (p *parser) parseList() ([]Expr, error) {
	if p.tok.kind != tokLParen {
		return nil, errors.Errorf("expr: in needs a ( list at offset %d", p.tok.pos)
	}
	p.next()
	var items []Expr
	for {
		e, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		items = append(items, e)
		if p.tok.kind == tokComma {
			p.next()
			continue
		}
		break
	}
	if p.tok.kind != tokRParen {
		return nil, errors.Errorf("expr: missing ) at offset %d", p.tok.pos)
	}
	p.next()
	if len(items) == 0 {
		return nil, errors.New("expr: empty in list")
	}
	return items, nil
}
