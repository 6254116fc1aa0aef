package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/parth1006/workflow-engine/types"
)

// Parse compiles a guard condition into an expression tree. Syntax
// errors carry the CONDITION_EVALUATION code so that a malformed guard
// surfaces the same way as a runtime evaluation failure.
//
// Grammar:
//
//	expr    = or
//	or      = and { ("||" | "or") and }
//	and     = unary { ("&&" | "and") unary }
//	unary   = ("!" | "not") unary | term
//	term    = "(" expr ")" | "true" | "false" | path [ cmpop literal ]
//	path    = ident { "." ident }
//	literal = number | string | "true" | "false" | "null"
func Parse(src string) (*Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.eof() {
		return nil, p.errorf("unexpected %q after expression", p.peek().text)
	}
	return &Expr{src: src, root: root}, nil
}

// MustParse is Parse for tests and static graph literals; it panics on
// syntax errors.
func MustParse(src string) *Expr {
	e, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return e
}

type tokKind int

const (
	tokIdent tokKind = iota
	tokNumber
	tokString
	tokOp    // == != < <= > >=
	tokLogic // && || ! and or not
	tokLParen
	tokRParen
)

type token struct {
	kind tokKind
	text string
	pos  int
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := rune(src[i])
		switch {
		case unicode.IsSpace(c):
			i++

		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++

		case c == '&' || c == '|':
			if i+1 >= len(src) || src[i+1] != src[i] {
				return nil, syntaxErr(src, i, fmt.Sprintf("unexpected %q", c))
			}
			toks = append(toks, token{tokLogic, src[i : i+2], i})
			i += 2

		case c == '!':
			if i+1 < len(src) && src[i+1] == '=' {
				toks = append(toks, token{tokOp, "!=", i})
				i += 2
			} else {
				toks = append(toks, token{tokLogic, "!", i})
				i++
			}

		case c == '=':
			if i+1 >= len(src) || src[i+1] != '=' {
				return nil, syntaxErr(src, i, "single '=' is not an operator, use '=='")
			}
			toks = append(toks, token{tokOp, "==", i})
			i += 2

		case c == '<' || c == '>':
			if i+1 < len(src) && src[i+1] == '=' {
				toks = append(toks, token{tokOp, src[i : i+2], i})
				i += 2
			} else {
				toks = append(toks, token{tokOp, string(c), i})
				i++
			}

		case c == '"' || c == '\'':
			quote := byte(c)
			j := i + 1
			for j < len(src) && src[j] != quote {
				j++
			}
			if j >= len(src) {
				return nil, syntaxErr(src, i, "unterminated string literal")
			}
			toks = append(toks, token{tokString, src[i+1 : j], i})
			i = j + 1

		case unicode.IsDigit(c) || c == '-':
			j := i + 1
			for j < len(src) && (unicode.IsDigit(rune(src[j])) || src[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, src[i:j], i})
			i = j

		case unicode.IsLetter(c) || c == '_':
			j := i + 1
			for j < len(src) && isIdentChar(rune(src[j])) {
				j++
			}
			word := src[i:j]
			switch word {
			case "and", "or", "not":
				toks = append(toks, token{tokLogic, word, i})
			default:
				toks = append(toks, token{tokIdent, word, i})
			}
			i = j

		default:
			return nil, syntaxErr(src, i, fmt.Sprintf("unexpected character %q", c))
		}
	}
	return toks, nil
}

func isIdentChar(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' || c == '.'
}

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) eof() bool     { return p.pos >= len(p.toks) }
func (p *parser) peek() token   { return p.toks[p.pos] }
func (p *parser) advance() token { t := p.toks[p.pos]; p.pos++; return t }

func (p *parser) errorf(format string, args ...any) error {
	pos := len(p.src)
	if !p.eof() {
		pos = p.peek().pos
	}
	return syntaxErr(p.src, pos, fmt.Sprintf(format, args...))
}

func syntaxErr(src string, pos int, msg string) error {
	return types.NewError(types.ErrConditionEvaluation,
		fmt.Sprintf("invalid condition %q at offset %d: %s", src, pos, msg))
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for !p.eof() && p.peek().kind == tokLogic && (p.peek().text == "||" || p.peek().text == "or") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &orNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for !p.eof() && p.peek().kind == tokLogic && (p.peek().text == "&&" || p.peek().text == "and") {
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &andNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if !p.eof() && p.peek().kind == tokLogic && (p.peek().text == "!" || p.peek().text == "not") {
		p.advance()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notNode{inner: inner}, nil
	}
	return p.parseTerm()
}

func (p *parser) parseTerm() (node, error) {
	if p.eof() {
		return nil, p.errorf("unexpected end of expression")
	}

	switch t := p.peek(); t.kind {
	case tokLParen:
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.eof() || p.peek().kind != tokRParen {
			return nil, p.errorf("missing closing parenthesis")
		}
		p.advance()
		return inner, nil

	case tokIdent:
		p.advance()
		if t.text == "true" || t.text == "false" {
			return &constNode{val: t.text == "true"}, nil
		}
		path := strings.Split(t.text, ".")
		for _, seg := range path {
			if seg == "" {
				return nil, syntaxErr(p.src, t.pos, fmt.Sprintf("malformed field path %q", t.text))
			}
		}
		if p.eof() || p.toks[p.pos].kind != tokOp {
			// Bare field reference used as a boolean term.
			return &pathNode{path: path}, nil
		}
		op := cmpOp(p.advance().text)
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return &cmpNode{path: path, op: op, lit: lit}, nil

	default:
		return nil, p.errorf("expected field path or '(', got %q", t.text)
	}
}

func (p *parser) parseLiteral() (literal, error) {
	if p.eof() {
		return literal{}, p.errorf("expected literal after comparison operator")
	}
	t := p.advance()
	switch t.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return literal{}, syntaxErr(p.src, t.pos, fmt.Sprintf("malformed number %q", t.text))
		}
		return literal{kind: litNumber, num: f}, nil

	case tokString:
		return literal{kind: litString, str: t.text}, nil

	case tokIdent:
		switch t.text {
		case "true":
			return literal{kind: litBool, b: true}, nil
		case "false":
			return literal{kind: litBool, b: false}, nil
		case "null":
			return literal{kind: litNull}, nil
		}
		return literal{}, syntaxErr(p.src, t.pos,
			fmt.Sprintf("comparison right-hand side must be a literal, got field %q", t.text))

	default:
		return literal{}, syntaxErr(p.src, t.pos, fmt.Sprintf("expected literal, got %q", t.text))
	}
}
