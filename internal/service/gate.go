package service

import (
	"fmt"
	"strings"
	"unicode"
)

// GateContext is the run context a job gate expression is evaluated
// against.
type GateContext struct {
	Repository string
	Branch     string
	Event      string
}

func (gc GateContext) Field(name string) (string, error) {
	switch name {
	case "repository":
		return gc.Repository, nil
	case "branch":
		return gc.Branch, nil
	case "event":
		return gc.Event, nil
	default:
		return "", ConfigError{Message: fmt.Sprintf("unknown gate field '%s'", name)}
	}
}

type GateEvaluator interface {
	Evaluate(expression string, gctx GateContext) (bool, error)
}

func NewPredicateGate() *PredicateGate {
	return &PredicateGate{}
}

type PredicateGate struct{}

// Evaluate parses and evaluates a gate expression. An empty expression
// always passes.
func (pg *PredicateGate) Evaluate(expression string, gctx GateContext) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return true, nil
	}
	pred, err := ParsePredicate(expression)
	if err != nil {
		return false, err
	}
	return pred.Evaluate(gctx)
}

type Predicate interface {
	Evaluate(gctx GateContext) (bool, error)
}

type comparison struct {
	field   string
	negated bool
	literal string
}

func (c comparison) Evaluate(gctx GateContext) (bool, error) {
	value, err := gctx.Field(c.field)
	if err != nil {
		return false, err
	}
	if c.negated {
		return value != c.literal, nil
	}
	return value == c.literal, nil
}

type allOf []Predicate

func (p allOf) Evaluate(gctx GateContext) (bool, error) {
	for _, sub := range p {
		ok, err := sub.Evaluate(gctx)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

type anyOf []Predicate

func (p anyOf) Evaluate(gctx GateContext) (bool, error) {
	for _, sub := range p {
		ok, err := sub.Evaluate(gctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// ParsePredicate parses a gate expression of the grammar
//
//	or   := and ('||' and)*
//	and  := cmp ('&&' cmp)*
//	cmp  := IDENT ('==' | '!=') 'literal'
//
// where && binds tighter than ||.
func ParsePredicate(expression string) (Predicate, error) {
	tokens, err := tokenizePredicate(expression)
	if err != nil {
		return nil, err
	}
	parser := &predicateParser{tokens: tokens}
	pred, err := parser.parseOr()
	if err != nil {
		return nil, err
	}
	if parser.pos != len(parser.tokens) {
		return nil, ConfigError{
			Message: fmt.Sprintf("unexpected '%s' in gate expression", parser.tokens[parser.pos].value),
		}
	}
	return pred, nil
}

type tokenKind int

const (
	tokenIdent tokenKind = iota
	tokenString
	tokenEq
	tokenNeq
	tokenAnd
	tokenOr
)

type token struct {
	kind  tokenKind
	value string
}

func tokenizePredicate(expression string) ([]token, error) {
	var tokens []token
	runes := []rune(expression)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '\'' || r == '"':
			quote := r
			j := i + 1
			for j < len(runes) && runes[j] != quote {
				j++
			}
			if j == len(runes) {
				return nil, ConfigError{Message: "unterminated string in gate expression"}
			}
			tokens = append(tokens, token{kind: tokenString, value: string(runes[i+1 : j])})
			i = j + 1
		case r == '=' && i+1 < len(runes) && runes[i+1] == '=':
			tokens = append(tokens, token{kind: tokenEq, value: "=="})
			i += 2
		case r == '!' && i+1 < len(runes) && runes[i+1] == '=':
			tokens = append(tokens, token{kind: tokenNeq, value: "!="})
			i += 2
		case r == '&' && i+1 < len(runes) && runes[i+1] == '&':
			tokens = append(tokens, token{kind: tokenAnd, value: "&&"})
			i += 2
		case r == '|' && i+1 < len(runes) && runes[i+1] == '|':
			tokens = append(tokens, token{kind: tokenOr, value: "||"})
			i += 2
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || runes[j] == '_') {
				j++
			}
			tokens = append(tokens, token{kind: tokenIdent, value: string(runes[i:j])})
			i = j
		default:
			return nil, ConfigError{
				Message: fmt.Sprintf("unexpected character '%c' in gate expression", r),
			}
		}
	}
	return tokens, nil
}

type predicateParser struct {
	tokens []token
	pos    int
}

func (p *predicateParser) parseOr() (Predicate, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	preds := anyOf{left}
	for p.pos < len(p.tokens) && p.tokens[p.pos].kind == tokenOr {
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		preds = append(preds, right)
	}
	if len(preds) == 1 {
		return preds[0], nil
	}
	return preds, nil
}

func (p *predicateParser) parseAnd() (Predicate, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	preds := allOf{left}
	for p.pos < len(p.tokens) && p.tokens[p.pos].kind == tokenAnd {
		p.pos++
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		preds = append(preds, right)
	}
	if len(preds) == 1 {
		return preds[0], nil
	}
	return preds, nil
}

func (p *predicateParser) parseComparison() (Predicate, error) {
	if p.pos >= len(p.tokens) || p.tokens[p.pos].kind != tokenIdent {
		return nil, ConfigError{Message: "expected field name in gate expression"}
	}
	field := p.tokens[p.pos].value
	p.pos++

	if p.pos >= len(p.tokens) ||
		(p.tokens[p.pos].kind != tokenEq && p.tokens[p.pos].kind != tokenNeq) {
		return nil, ConfigError{
			Message: fmt.Sprintf("expected '==' or '!=' after '%s' in gate expression", field),
		}
	}
	negated := p.tokens[p.pos].kind == tokenNeq
	p.pos++

	if p.pos >= len(p.tokens) || p.tokens[p.pos].kind != tokenString {
		return nil, ConfigError{
			Message: fmt.Sprintf("expected quoted literal after '%s' in gate expression", field),
		}
	}
	literal := p.tokens[p.pos].value
	p.pos++

	return comparison{field: field, negated: negated, literal: literal}, nil
}
