// Copyright 2025 The packwright Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package query implements the indexed store and paged/filtered read API
// (C10): it sits above store.Context and protocol.Driver, rematerializing
// detail views on demand and evaluating the frame-list filter-predicate
// grammar from spec §4.7.
package query

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Op is one of the filter grammar's comparison operators.
type Op string

const (
	OpEq  Op = "=="
	OpNe  Op = "!="
	OpGt  Op = ">"
	OpLt  Op = "<"
	OpGe  Op = ">="
	OpLe  Op = "<="
	OpExists Op = ""
)

// Term is `value (op value)?`: a bare key (existence test) or a
// key/operator/value comparison.
type Term struct {
	Key   string
	Op    Op
	Value string
}

// Expr is a boolean combination of terms: `term (("&&"|"||") term)*` with
// parenthesized sub-expressions.
type Expr struct {
	Term     *Term
	Sub      *Expr
	Next     *Expr
	Combinator string // "&&", "||", or "" for a leaf
}

// ErrBadFilter wraps a malformed filter-predicate expression.
var ErrBadFilter = errors.New("query: malformed filter expression")

// ParseFilter tokenizes and parses expr into an Expr tree. An empty string
// parses to a nil Expr that Evaluate always satisfies.
func ParseFilter(expr string) (*Expr, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	toks := tokenize(expr)
	if len(toks) == 0 {
		return nil, nil
	}
	p := &parser{toks: toks}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, errors.Wrapf(ErrBadFilter, "trailing tokens at %d", p.pos)
	}
	return e, nil
}

// Evaluate checks props (a frame's side-table built by dissectors) against
// the expression tree.
func (e *Expr) Evaluate(props map[string]string) bool {
	if e == nil {
		return true
	}
	if e.Term != nil {
		return e.Term.evaluate(props)
	}

	left := e.Sub.Evaluate(props)
	if e.Next == nil {
		return left
	}
	switch e.Combinator {
	case "&&":
		return left && e.Next.Evaluate(props)
	case "||":
		return left || e.Next.Evaluate(props)
	default:
		return left
	}
}

func (t *Term) evaluate(props map[string]string) bool {
	v, ok := props[t.Key]
	if t.Op == OpExists {
		return ok
	}
	if !ok {
		return false
	}
	if nv, nerr := strconv.ParseFloat(v, 64); nerr == nil {
		if tv, terr := strconv.ParseFloat(t.Value, 64); terr == nil {
			return compareNum(nv, t.Op, tv)
		}
	}
	return compareStr(v, t.Op, t.Value)
}

func compareNum(a float64, op Op, b float64) bool {
	switch op {
	case OpEq:
		return a == b
	case OpNe:
		return a != b
	case OpGt:
		return a > b
	case OpLt:
		return a < b
	case OpGe:
		return a >= b
	case OpLe:
		return a <= b
	}
	return false
}

func compareStr(a string, op Op, b string) bool {
	switch op {
	case OpEq:
		return a == b
	case OpNe:
		return a != b
	case OpGt:
		return a > b
	case OpLt:
		return a < b
	case OpGe:
		return a >= b
	case OpLe:
		return a <= b
	}
	return false
}

// --- tokenizer + recursive-descent parser ----------------------------

type tokKind int

const (
	tokValue tokKind = iota
	tokOp
	tokAnd
	tokOr
	tokLParen
	tokRParen
)

type token struct {
	kind tokKind
	text string
}

var operators = []string{"==", "!=", ">=", "<=", ">", "<"}

func tokenize(s string) []token {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case strings.HasPrefix(s[i:], "&&"):
			toks = append(toks, token{tokAnd, "&&"})
			i += 2
		case strings.HasPrefix(s[i:], "||"):
			toks = append(toks, token{tokOr, "||"})
			i += 2
		default:
			matched := false
			for _, op := range operators {
				if strings.HasPrefix(s[i:], op) {
					toks = append(toks, token{tokOp, op})
					i += len(op)
					matched = true
					break
				}
			}
			if matched {
				continue
			}
			j := i
			for j < len(s) && s[j] != ' ' && s[j] != '(' && s[j] != ')' &&
				!strings.HasPrefix(s[j:], "&&") && !strings.HasPrefix(s[j:], "||") &&
				!hasOpPrefix(s[j:]) {
				j++
			}
			if j == i {
				j = i + 1 // avoid an infinite loop on a stray character
			}
			toks = append(toks, token{tokValue, s[i:j]})
			i = j
		}
	}
	return toks
}

func hasOpPrefix(s string) bool {
	for _, op := range operators {
		if strings.HasPrefix(s, op) {
			return true
		}
	}
	return false
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) parseExpr() (*Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	tok, ok := p.peek()
	if !ok || (tok.kind != tokAnd && tok.kind != tokOr) {
		return left, nil
	}
	p.pos++
	right, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	combinator := "&&"
	if tok.kind == tokOr {
		combinator = "||"
	}
	return &Expr{Sub: left, Combinator: combinator, Next: right}, nil
}

func (p *parser) parseTerm() (*Expr, error) {
	tok, ok := p.peek()
	if !ok {
		return nil, errors.Wrap(ErrBadFilter, "unexpected end of expression")
	}
	if tok.kind == tokLParen {
		p.pos++
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		closing, ok := p.peek()
		if !ok || closing.kind != tokRParen {
			return nil, errors.Wrap(ErrBadFilter, "missing closing paren")
		}
		p.pos++
		return &Expr{Sub: e}, nil
	}

	if tok.kind != tokValue {
		return nil, errors.Wrapf(ErrBadFilter, "expected value at token %d", p.pos)
	}
	key := tok.text
	p.pos++

	opTok, ok := p.peek()
	if !ok || opTok.kind != tokOp {
		return &Expr{Term: &Term{Key: key, Op: OpExists}}, nil
	}
	p.pos++
	valTok, ok := p.peek()
	if !ok || valTok.kind != tokValue {
		return nil, errors.Wrap(ErrBadFilter, "expected value after operator")
	}
	p.pos++
	return &Expr{Term: &Term{Key: key, Op: Op(opTok.text), Value: valTok.text}}, nil
}
