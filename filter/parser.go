package filter

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokIdent
	tokInt
	tokFloat
	tokString
	tokOp       // < <= > >= == !=
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
)

type token struct {
	kind tokenKind
	pos  int
	text string
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) errf(pos int, format string, args ...any) *ParseError {
	return &ParseError{Expr: l.input, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (l *lexer) next() (token, *ParseError) {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.input[l.pos]

	switch {
	case c == '(':
		l.pos++
		return token{kind: tokLParen, pos: start, text: "("}, nil
	case c == ')':
		l.pos++
		return token{kind: tokRParen, pos: start, text: ")"}, nil
	case c == '[':
		l.pos++
		return token{kind: tokLBracket, pos: start, text: "["}, nil
	case c == ']':
		l.pos++
		return token{kind: tokRBracket, pos: start, text: "]"}, nil
	case c == ',':
		l.pos++
		return token{kind: tokComma, pos: start, text: ","}, nil

	case c == '<' || c == '>':
		l.pos++
		if l.pos < len(l.input) && l.input[l.pos] == '=' {
			l.pos++
		}
		return token{kind: tokOp, pos: start, text: l.input[start:l.pos]}, nil

	case c == '=' || c == '!':
		l.pos++
		if l.pos >= len(l.input) || l.input[l.pos] != '=' {
			return token{}, l.errf(start, "unexpected %q", string(c))
		}
		l.pos++
		return token{kind: tokOp, pos: start, text: l.input[start:l.pos]}, nil

	case c == '\'' || c == '"':
		quote := c
		l.pos++
		var sb strings.Builder
		for l.pos < len(l.input) {
			ch := l.input[l.pos]
			if ch == quote {
				l.pos++
				return token{kind: tokString, pos: start, text: sb.String()}, nil
			}
			if ch == '\\' && l.pos+1 < len(l.input) {
				l.pos++
				ch = l.input[l.pos]
			}
			sb.WriteByte(ch)
			l.pos++
		}
		return token{}, l.errf(start, "unterminated string")

	case c == '-' || c == '+' || unicode.IsDigit(rune(c)):
		l.pos++
		isFloat := false
		for l.pos < len(l.input) {
			ch := l.input[l.pos]
			if unicode.IsDigit(rune(ch)) {
				l.pos++
				continue
			}
			if ch == '.' || ch == 'e' || ch == 'E' {
				isFloat = true
				l.pos++
				continue
			}
			if (ch == '-' || ch == '+') && isFloat {
				// exponent sign
				l.pos++
				continue
			}
			break
		}
		text := l.input[start:l.pos]
		if isFloat {
			return token{kind: tokFloat, pos: start, text: text}, nil
		}
		return token{kind: tokInt, pos: start, text: text}, nil

	case c == '_' || unicode.IsLetter(rune(c)):
		l.pos++
		for l.pos < len(l.input) {
			ch := rune(l.input[l.pos])
			if ch == '_' || unicode.IsLetter(ch) || unicode.IsDigit(ch) {
				l.pos++
				continue
			}
			break
		}
		return token{kind: tokIdent, pos: start, text: l.input[start:l.pos]}, nil

	default:
		return token{}, l.errf(start, "unexpected character %q", string(c))
	}
}

type parser struct {
	lex  *lexer
	cur  token
	peek bool
}

func (p *parser) advance() *ParseError {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *parser) errf(format string, args ...any) *ParseError {
	return p.lex.errf(p.cur.pos, format, args...)
}

// Parse parses an expression into its AST. A blank expression yields a nil
// Expr with no error, which callers treat as match-all.
func Parse(expr string) (Expr, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}

	p := &parser{lex: &lexer{input: expr}}
	if err := p.advance(); err != nil {
		return nil, err
	}

	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokEOF {
		return nil, p.errf("unexpected trailing %q", p.cur.text)
	}
	return node, nil
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokIdent && strings.EqualFold(p.cur.text, "or") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokIdent && strings.EqualFold(p.cur.text, "and") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseTerm() (Expr, error) {
	if p.cur.kind == tokLParen {
		if err := p.advance(); err != nil {
			return nil, err
		}
		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tokRParen {
			return nil, p.errf("expected ')'")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return node, nil
	}

	if p.cur.kind != tokIdent {
		return nil, p.errf("expected field name, got %q", p.cur.text)
	}
	field := p.cur.text
	if err := p.advance(); err != nil {
		return nil, err
	}

	if p.cur.kind == tokIdent && strings.EqualFold(p.cur.text, "in") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		return p.parseInList(field)
	}

	if p.cur.kind != tokOp {
		return nil, p.errf("expected comparison operator after %q", field)
	}
	op, ok := compareOpFrom(p.cur.text)
	if !ok {
		return nil, p.errf("unknown operator %q", p.cur.text)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	lit, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	return &Comparison{Field: field, Op: op, Literal: lit}, nil
}

func (p *parser) parseInList(field string) (Expr, error) {
	if p.cur.kind != tokLBracket {
		return nil, p.errf("expected '[' after in")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	var lits []Literal
	for {
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		lits = append(lits, lit)

		if p.cur.kind == tokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}

	if p.cur.kind != tokRBracket {
		return nil, p.errf("expected ']' to close in-list")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return &Membership{Field: field, Literals: lits}, nil
}

func (p *parser) parseLiteral() (Literal, error) {
	tok := p.cur
	switch tok.kind {
	case tokInt:
		v, err := strconv.ParseInt(tok.text, 10, 64)
		if err != nil {
			return Literal{}, p.errf("invalid integer %q", tok.text)
		}
		if err := p.advance(); err != nil {
			return Literal{}, err
		}
		return Literal{Kind: LitInt, I64: v}, nil

	case tokFloat:
		v, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return Literal{}, p.errf("invalid number %q", tok.text)
		}
		if err := p.advance(); err != nil {
			return Literal{}, err
		}
		return Literal{Kind: LitFloat, F64: v}, nil

	case tokString:
		if err := p.advance(); err != nil {
			return Literal{}, err
		}
		return Literal{Kind: LitString, S: tok.text}, nil

	case tokIdent:
		switch strings.ToLower(tok.text) {
		case "true":
			if err := p.advance(); err != nil {
				return Literal{}, err
			}
			return Literal{Kind: LitBool, B: true}, nil
		case "false":
			if err := p.advance(); err != nil {
				return Literal{}, err
			}
			return Literal{Kind: LitBool, B: false}, nil
		}
		return Literal{}, p.errf("expected literal, got identifier %q", tok.text)

	default:
		return Literal{}, p.errf("expected literal, got %q", tok.text)
	}
}

func compareOpFrom(text string) (CompareOp, bool) {
	switch text {
	case "<":
		return OpLT, true
	case "<=":
		return OpLE, true
	case ">":
		return OpGT, true
	case ">=":
		return OpGE, true
	case "==":
		return OpEQ, true
	case "!=":
		return OpNE, true
	default:
		return 0, false
	}
}
