package extractor

import (
	"fmt"
	"strings"

	"bytemomo/autopen/internal/domain"
)

// ExprKind tags a field expression.
type ExprKind int

const (
	// Literal is a single-quoted string with {{var}} placeholders.
	Literal ExprKind = iota
	// Query is evaluated against the current record or node.
	Query
)

func (k ExprKind) String() string {
	if k == Literal {
		return "literal"
	}
	return "query"
}

// evalFunc evaluates a compiled query against one item.
type evalFunc func(item any) (any, error)

// Expression is a field mapping compiled once when the rule is loaded.
// A query that fails to compile keeps its error and yields null on every
// evaluation.
type Expression struct {
	Kind ExprKind
	// Text is the literal body (quotes removed) or the query source.
	Text string

	eval evalFunc
	err  error
}

// compileExpression decides between Literal and Query. Values that are
// not strings cannot be evaluated and become failing queries.
func compileExpression(raw any, compile func(string) (evalFunc, error)) Expression {
	s, ok := raw.(string)
	if !ok {
		return Expression{Kind: Query, Text: fmt.Sprint(raw), err: fmt.Errorf("expression must be a string, got %T", raw)}
	}
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return Expression{Kind: Literal, Text: s[1 : len(s)-1]}
	}

	fn, err := compile(s)
	return Expression{Kind: Query, Text: s, eval: fn, err: err}
}

// Evaluate returns the field value for item.
func (e Expression) Evaluate(item any, rc domain.RunContext) (v any, err error) {
	if e.Kind == Literal {
		return substitute(e.Text, rc), nil
	}
	if e.err != nil {
		return nil, e.err
	}

	// Query engines can panic on inputs they do not expect.
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, fmt.Errorf("evaluate %q: %v", e.Text, r)
		}
	}()
	return e.eval(item)
}

func substitute(s string, rc domain.RunContext) string {
	if len(rc) == 0 || !strings.Contains(s, "{{") {
		return s
	}
	pairs := make([]string, 0, 2*len(rc))
	for k, v := range rc {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}
