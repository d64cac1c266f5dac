package predicate

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokOp     // = != < <= > >=
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokNot
	tokNull
	tokTrue
	tokFalse
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	num  float64
}

var keywords = map[string]tokenKind{
	"and":   tokAnd,
	"or":    tokOr,
	"not":   tokNot,
	"null":  tokNull,
	"true":  tokTrue,
	"false": tokFalse,
}

func lex(src string) ([]token, error) {
	var toks []token
	rs := []rune(src)
	i := 0

	for i < len(rs) {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case r == '(':
			toks = append(toks, token{kind: tokLParen, text: "("})
			i++
		case r == ')':
			toks = append(toks, token{kind: tokRParen, text: ")"})
			i++

		case r == '=':
			toks = append(toks, token{kind: tokOp, text: "="})
			i++
		case r == '!':
			if i+1 >= len(rs) || rs[i+1] != '=' {
				return nil, fmt.Errorf("unexpected %q at offset %d", r, i)
			}
			toks = append(toks, token{kind: tokOp, text: "!="})
			i += 2
		case r == '<' || r == '>':
			op := string(r)
			i++
			if i < len(rs) && rs[i] == '=' {
				op += "="
				i++
			}
			toks = append(toks, token{kind: tokOp, text: op})

		case r == '\'' || r == '"':
			quote := r
			j := i + 1
			var sb strings.Builder
			for j < len(rs) && rs[j] != quote {
				sb.WriteRune(rs[j])
				j++
			}
			if j >= len(rs) {
				return nil, fmt.Errorf("unterminated string starting at offset %d", i)
			}
			toks = append(toks, token{kind: tokString, text: sb.String()})
			i = j + 1

		case unicode.IsDigit(r) || (r == '-' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			j := i + 1
			for j < len(rs) && (unicode.IsDigit(rs[j]) || rs[j] == '.') {
				j++
			}
			text := string(rs[i:j])
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q at offset %d", text, i)
			}
			toks = append(toks, token{kind: tokNumber, text: text, num: f})
			i = j

		case unicode.IsLetter(r) || r == '_':
			j := i + 1
			for j < len(rs) && (unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j]) || rs[j] == '_') {
				j++
			}
			word := string(rs[i:j])
			if kind, ok := keywords[strings.ToLower(word)]; ok {
				toks = append(toks, token{kind: kind, text: word})
			} else {
				toks = append(toks, token{kind: tokIdent, text: word})
			}
			i = j

		default:
			return nil, fmt.Errorf("unexpected %q at offset %d", r, i)
		}
	}

	toks = append(toks, token{kind: tokEOF})
	return toks, nil
}

// ---- parser ----

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }
func (p *parser) next() token { t := p.toks[p.pos]; p.pos++; return t }
func (p *parser) eof() bool   { return p.peek().kind == tokEOF }

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.peek().kind == tokNot {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notNode{inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	if p.peek().kind == tokLParen {
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.next()
		return inner, nil
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	if p.peek().kind != tokOp {
		// A bare column reference is only valid when it names a boolean column.
		if ref, ok := left.(columnRef); ok {
			return &boolColumnNode{col: ref}, nil
		}
		return nil, fmt.Errorf("expected comparison operator, got %q", p.peek().text)
	}
	op := p.next().text

	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return &compareNode{op: op, left: left, right: right}, nil
}

func (p *parser) parseOperand() (operand, error) {
	switch t := p.next(); t.kind {
	case tokIdent:
		return columnRef{name: t.text}, nil
	case tokNumber:
		return literal{val: t.num}, nil
	case tokString:
		return literal{val: t.text}, nil
	case tokNull:
		return literal{val: nil}, nil
	case tokTrue:
		return literal{val: true}, nil
	case tokFalse:
		return literal{val: false}, nil
	default:
		return nil, fmt.Errorf("expected value or column, got %q", t.text)
	}
}
