package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Value expressions get a real tokenizer and parser: unlike conditions they
// support nesting, arithmetic and calls ("max(1, damage) * 2 + rand(1, 6)").
// The function set is a fixed allow-list checked at compile time.

var valueFns = map[string]bool{
	"max": true, "min": true, "abs": true, "round": true, "rand": true,
	"has_flag": true, "has_item": true, "exists": true,
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokNum
	tokStr
	tokIdent
	tokOp     // + - * / %
	tokCmp    // == != >= <= > <
	tokLParen // (
	tokRParen // )
	tokComma
	tokDot
	tokAnd
	tokOr
	tokNot
)

type token struct {
	kind  tokKind
	text  string
	num   float64
	isInt bool
}

// CompileValue compiles a value expression. Unparseable sources compile to
// Bad (which evaluates to 0) and return an error for the loader.
func CompileValue(src string) (Node, error) {
	trimmed := strings.TrimSpace(src)
	if trimmed == "" {
		return Lit{Val: nil}, nil
	}
	toks, err := lexValue(trimmed)
	if err != nil {
		return Bad{Src: src}, err
	}
	p := &vparser{toks: toks}
	n, err := p.parseOr()
	if err != nil {
		return Bad{Src: src}, err
	}
	if p.cur().kind != tokEOF {
		return Bad{Src: src}, fmt.Errorf("trailing input in value expression %q", src)
	}
	return n, nil
}

func lexValue(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c >= '0' && c <= '9':
			j := i
			isInt := true
			for j < len(src) && (src[j] >= '0' && src[j] <= '9' || src[j] == '.') {
				if src[j] == '.' {
					isInt = false
				}
				j++
			}
			f, err := strconv.ParseFloat(src[i:j], 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q", src[i:j])
			}
			toks = append(toks, token{kind: tokNum, num: f, isInt: isInt})
			i = j
		case c == '"' || c == '\'':
			j := i + 1
			for j < len(src) && src[j] != c {
				j++
			}
			if j >= len(src) {
				return nil, fmt.Errorf("unterminated string in %q", src)
			}
			toks = append(toks, token{kind: tokStr, text: src[i+1 : j]})
			i = j + 1
		case unicode.IsLetter(rune(c)) || c == '_':
			j := i
			for j < len(src) && (unicode.IsLetter(rune(src[j])) || unicode.IsDigit(rune(src[j])) || src[j] == '_') {
				j++
			}
			word := src[i:j]
			switch word {
			case "and":
				toks = append(toks, token{kind: tokAnd})
			case "or":
				toks = append(toks, token{kind: tokOr})
			case "not":
				toks = append(toks, token{kind: tokNot})
			default:
				toks = append(toks, token{kind: tokIdent, text: word})
			}
			i = j
		case c == '=' && i+1 < len(src) && src[i+1] == '=':
			toks = append(toks, token{kind: tokCmp, text: "=="})
			i += 2
		case c == '!' && i+1 < len(src) && src[i+1] == '=':
			toks = append(toks, token{kind: tokCmp, text: "!="})
			i += 2
		case c == '>' || c == '<':
			if i+1 < len(src) && src[i+1] == '=' {
				toks = append(toks, token{kind: tokCmp, text: src[i : i+2]})
				i += 2
			} else {
				toks = append(toks, token{kind: tokCmp, text: string(c)})
				i++
			}
		case c == '!':
			toks = append(toks, token{kind: tokNot})
			i++
		case c == '+' || c == '-' || c == '*' || c == '/' || c == '%':
			toks = append(toks, token{kind: tokOp, text: string(c)})
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma})
			i++
		case c == '.':
			toks = append(toks, token{kind: tokDot})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q in value expression", c)
		}
	}
	toks = append(toks, token{kind: tokEOF})
	return toks, nil
}

type vparser struct {
	toks []token
	pos  int
}

func (p *vparser) cur() token { return p.toks[p.pos] }

func (p *vparser) next() token {
	t := p.toks[p.pos]
	p.pos++
	return t
}

func (p *vparser) parseOr() (Node, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tokOr {
		p.next()
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = Logic{Op: "or", L: l, R: r}
	}
	return l, nil
}

func (p *vparser) parseAnd() (Node, error) {
	l, err := p.parseCmp()
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tokAnd {
		p.next()
		r, err := p.parseCmp()
		if err != nil {
			return nil, err
		}
		l = Logic{Op: "and", L: l, R: r}
	}
	return l, nil
}

func (p *vparser) parseCmp() (Node, error) {
	l, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	if p.cur().kind == tokCmp {
		op := p.next().text
		r, err := p.parseAdd()
		if err != nil {
			return nil, err
		}
		return Cmp{Op: op, L: l, R: r}, nil
	}
	return l, nil
}

func (p *vparser) parseAdd() (Node, error) {
	l, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tokOp && (p.cur().text == "+" || p.cur().text == "-") {
		op := p.next().text[0]
		r, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		l = Arith{Op: op, L: l, R: r}
	}
	return l, nil
}

func (p *vparser) parseMul() (Node, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tokOp && (p.cur().text == "*" || p.cur().text == "/" || p.cur().text == "%") {
		op := p.next().text[0]
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l = Arith{Op: op, L: l, R: r}
	}
	return l, nil
}

func (p *vparser) parseUnary() (Node, error) {
	switch {
	case p.cur().kind == tokNot:
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Not{X: x}, nil
	case p.cur().kind == tokOp && p.cur().text == "-":
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Arith{Op: '-', L: Lit{Val: 0}, R: x}, nil
	}
	return p.parsePrimary()
}

func (p *vparser) parsePrimary() (Node, error) {
	t := p.cur()
	switch t.kind {
	case tokNum:
		p.next()
		if t.isInt {
			return Lit{Val: int(t.num)}, nil
		}
		return Lit{Val: t.num}, nil

	case tokStr:
		p.next()
		return Lit{Val: t.text}, nil

	case tokIdent:
		p.next()
		switch t.text {
		case "true":
			return Lit{Val: true}, nil
		case "false":
			return Lit{Val: false}, nil
		}
		if p.cur().kind == tokLParen {
			return p.parseCall(t.text)
		}
		parts := []string{t.text}
		for p.cur().kind == tokDot {
			p.next()
			part := p.next()
			if part.kind != tokIdent {
				return nil, fmt.Errorf("expected identifier after '.'")
			}
			parts = append(parts, part.text)
		}
		if len(parts) == 1 {
			return Ref{Name: parts[0]}, nil
		}
		return Path{Parts: parts}, nil

	case tokLParen:
		p.next()
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.cur().kind != tokRParen {
			return nil, fmt.Errorf("missing ')'")
		}
		p.next()
		return n, nil
	}
	return nil, fmt.Errorf("unexpected token in value expression")
}

func (p *vparser) parseCall(fn string) (Node, error) {
	if !valueFns[fn] {
		return nil, fmt.Errorf("function %q is not allowed", fn)
	}
	p.next() // consume '('
	var args []Node
	if p.cur().kind != tokRParen {
		for {
			a, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.cur().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if p.cur().kind != tokRParen {
		return nil, fmt.Errorf("missing ')' after %s arguments", fn)
	}
	p.next()
	return Call{Fn: fn, Args: args}, nil
}
