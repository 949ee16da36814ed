package engine

import (
	"fmt"

	"github.com/roach88/weft/internal/compiler"
	"github.com/roach88/weft/internal/event"
	"github.com/roach88/weft/internal/expr"
)

// Scope is one frame of variable bindings. Lookups walk outward through
// the parent chain, so inner bindings shadow outer ones.
//
// Scopes are never popped: a directive renders its children with a child
// scope and simply stops using it afterwards. A Scope is private to one
// render.
type Scope struct {
	vars   map[string]any
	parent *Scope
}

// NewScope creates a root scope over vars. The map is read but never
// written.
func NewScope(vars map[string]any) *Scope {
	return &Scope{vars: vars}
}

// Lookup implements expr.Env.
func (s *Scope) Lookup(name string) (any, bool) {
	for f := s; f != nil; f = f.parent {
		if v, ok := f.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Child returns a new scope over vars whose parent is s.
func (s *Scope) Child(vars map[string]any) *Scope {
	return &Scope{vars: vars, parent: s}
}

// set binds name in this frame.
func (s *Scope) set(name string, v any) {
	if s.vars == nil {
		s.vars = make(map[string]any)
	}
	s.vars[name] = v
}

// macro returns the innermost binding of name that is an activation of
// def, or nil.
func (s *Scope) macro(name string, def *compiler.Directive) *Macro {
	for f := s; f != nil; f = f.parent {
		if m, ok := f.vars[name].(*Macro); ok && m.def == def {
			return m
		}
	}
	return nil
}

// Macro is a def bound at render time. It keeps the scope the def executed
// in: calling it renders the body in a child of that scope holding the
// parameters, so free names resolve where the def was written.
type Macro struct {
	def      *compiler.Directive
	scope    *Scope
	template string
	r        *renderer
}

// Name returns the def's name.
func (m *Macro) Name() string {
	return m.def.Signature.Name
}

// Call implements expr.Callable, so ${greet('Ann')} renders the macro in
// place. The result is the macro's output as a Fragment.
func (m *Macro) Call(args []any, kwargs map[string]any) (any, error) {
	var out Fragment
	err := m.r.invoke(m, args, kwargs, event.Pos{}, func(ev event.Event) error {
		out = append(out, ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Macro) String() string {
	return fmt.Sprintf("<macro %s>", m.Name())
}

// bind assigns call arguments to the macro's parameters. Missing
// parameters take their defaults, evaluated in the def's scope.
func (m *Macro) bind(r *renderer, args []any, kwargs map[string]any, pos event.Pos) (map[string]any, error) {
	sig := m.def.Signature
	shape := make([]expr.Arg, 0, len(args)+len(kwargs))
	for range args {
		shape = append(shape, expr.Arg{})
	}
	for name := range kwargs {
		shape = append(shape, expr.Arg{Name: name})
	}
	err := compiler.CheckArity(shape, sig, func(format string, a ...any) error {
		return &DirectiveError{
			Kind:   compiler.KindCall,
			Reason: fmt.Sprintf("%s() %s", sig.Name, fmt.Sprintf(format, a...)),
			Pos:    pos,
		}
	})
	if err != nil {
		return nil, err
	}

	vars := make(map[string]any, len(sig.Params))
	for i, p := range sig.Params {
		if i < len(args) {
			vars[p.Name] = args[i]
			continue
		}
		if v, ok := kwargs[p.Name]; ok {
			vars[p.Name] = v
			continue
		}
		v, err := r.eval(p.Default, m.scope)
		if err != nil {
			return nil, err
		}
		vars[p.Name] = v
	}
	return vars, nil
}
