package expr

import (
	"errors"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/roach88/weft/internal/event"
)

// Lookup selects how names missing from every scope are treated.
type Lookup int

const (
	// Strict fails with UndefinedVariableError.
	Strict Lookup = iota
	// Lenient evaluates to an Undefined value, which is falsy and renders
	// as nothing.
	Lenient
)

// ParseLookup maps a configuration string to a Lookup mode.
func ParseLookup(s string) (Lookup, error) {
	switch strings.ToLower(s) {
	case "", "strict":
		return Strict, nil
	case "lenient":
		return Lenient, nil
	default:
		return Strict, errorf("invalid lookup mode %q: must be strict or lenient", s)
	}
}

func (l Lookup) String() string {
	if l == Lenient {
		return "lenient"
	}
	return "strict"
}

// Env resolves variable names during evaluation.
type Env interface {
	Lookup(name string) (any, bool)
}

// MapEnv is an Env backed by a single map.
type MapEnv map[string]any

// Lookup implements Env.
func (m MapEnv) Lookup(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// Expr is a parsed expression: an opaque evaluable unit. It is immutable
// and safe to evaluate concurrently against independent environments.
type Expr struct {
	source string
	pos    event.Pos
	root   *ternaryNode
}

// Parse checks src lexically and syntactically. pos is the template
// location of the first character of src; syntax errors are reported
// relative to it. Name resolution and type errors are deferred to
// Evaluate.
func Parse(src string, pos event.Pos) (*Expr, error) {
	root, err := exprParser.ParseString(pos.Filename, src)
	if err != nil {
		return nil, syntaxError(src, pos, err)
	}
	return &Expr{source: src, pos: pos, root: root}, nil
}

// MustParse is Parse for tests and constant expressions; it panics on error.
func MustParse(src string) *Expr {
	e, err := Parse(src, event.Pos{})
	if err != nil {
		panic(err)
	}
	return e
}

// Source returns the expression text.
func (e *Expr) Source() string {
	return e.source
}

// Pos returns the template location of the expression.
func (e *Expr) Pos() event.Pos {
	return e.pos
}

func (e *Expr) String() string {
	return e.source
}

// Evaluate computes the expression's value in env.
func (e *Expr) Evaluate(env Env, mode Lookup) (any, error) {
	ev := &evaluator{env: env, mode: mode}
	v, err := ev.ternary(e.root)
	if err != nil {
		var ee *ExpressionError
		if errors.As(err, &ee) && ee.Source == "" {
			ee.Source = e.source
		}
		return nil, err
	}
	return v, nil
}

// subExpr wraps a grammar node parsed as part of a larger header.
func subExpr(src string, base event.Pos, node *ternaryNode) *Expr {
	text := src
	start, end := node.Pos.Offset, node.EndPos.Offset
	if start >= 0 && end <= len(src) && start < end {
		text = strings.TrimSpace(src[start:end])
	}
	return &Expr{source: text, pos: offsetPos(base, node.Pos), root: node}
}

func offsetPos(base event.Pos, p lexer.Position) event.Pos {
	if p.Line < 1 {
		p.Line, p.Column = 1, max(p.Column, 1)
	}
	if !base.IsValid() {
		return event.Pos{Filename: base.Filename, Line: p.Line, Column: p.Column}
	}
	out := event.Pos{Filename: base.Filename, Line: base.Line + p.Line - 1, Column: p.Column}
	if p.Line == 1 {
		out.Column = base.Column + p.Column - 1
	}
	return out
}

func syntaxError(src string, base event.Pos, err error) error {
	se := &SyntaxError{Source: src, Message: err.Error(), Line: base.Line, Column: base.Column}
	var perr participle.Error
	if errors.As(err, &perr) {
		p := offsetPos(base, perr.Position())
		se.Line, se.Column, se.Message = p.Line, p.Column, perr.Message()
	}
	return se
}

// ForClause is the parsed parameter of a for directive.
type ForClause struct {
	Targets []string
	Iter    *Expr
}

// ParseFor parses "target in iterable" or "a, b in iterable".
func ParseFor(src string, pos event.Pos) (*ForClause, error) {
	h, err := forParser.ParseString(pos.Filename, src)
	if err != nil {
		return nil, syntaxError(src, pos, err)
	}
	return &ForClause{Targets: h.Targets, Iter: subExpr(src, pos, h.Iter)}, nil
}

// Binding is one name = value pair of a with directive.
type Binding struct {
	Name  string
	Value *Expr
}

// ParseBindings parses "a = x; b = y".
func ParseBindings(src string, pos event.Pos) ([]Binding, error) {
	h, err := bindingsParser.ParseString(pos.Filename, src)
	if err != nil {
		return nil, syntaxError(src, pos, err)
	}
	out := make([]Binding, 0, len(h.Bindings))
	seen := make(map[string]bool, len(h.Bindings))
	for _, b := range h.Bindings {
		if seen[b.Name] {
			p := offsetPos(pos, b.Pos)
			return nil, &SyntaxError{Source: src, Line: p.Line, Column: p.Column, Message: "duplicate binding " + b.Name}
		}
		seen[b.Name] = true
		out = append(out, Binding{Name: b.Name, Value: subExpr(src, pos, b.Value)})
	}
	return out, nil
}

// Param is a declared parameter of a def directive. Default is nil for
// required parameters.
type Param struct {
	Name    string
	Default *Expr
}

// Signature is the parsed parameter of a def directive.
type Signature struct {
	Name   string
	Params []Param
}

// ParseSignature parses "name", "name()" or "name(a, b=default)".
func ParseSignature(src string, pos event.Pos) (*Signature, error) {
	h, err := signatureParser.ParseString(pos.Filename, src)
	if err != nil {
		return nil, syntaxError(src, pos, err)
	}
	sig := &Signature{Name: h.Name}
	optional := false
	for _, p := range h.Params {
		param := Param{Name: p.Name}
		if p.Default != nil {
			param.Default = subExpr(src, pos, p.Default)
			optional = true
		} else if optional {
			return nil, &SyntaxError{Source: src, Line: pos.Line, Column: pos.Column,
				Message: "required parameter " + p.Name + " follows a parameter with a default"}
		}
		sig.Params = append(sig.Params, param)
	}
	return sig, nil
}

// Arg is one argument of a call. Name is empty for positional arguments.
type Arg struct {
	Name  string
	Value *Expr
}

// CallClause is the parsed parameter of a call directive.
type CallClause struct {
	Name string
	Args []Arg
}

// ParseCall parses "name" or "name(a, key=b)".
func ParseCall(src string, pos event.Pos) (*CallClause, error) {
	h, err := callParser.ParseString(pos.Filename, src)
	if err != nil {
		return nil, syntaxError(src, pos, err)
	}
	c := &CallClause{Name: h.Name}
	if h.Call != nil {
		for _, a := range h.Call.Args {
			arg := Arg{Value: subExpr(src, pos, a.Value)}
			if a.Name != nil {
				arg.Name = *a.Name
			}
			c.Args = append(c.Args, arg)
		}
	}
	return c, nil
}
