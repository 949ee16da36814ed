package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/weft/internal/compiler"
	"github.com/roach88/weft/internal/event"
	"github.com/roach88/weft/internal/expr"
	"github.com/roach88/weft/internal/xpath"
)

// emitFunc receives output events. It returns errStopped once the consumer
// stops pulling.
type emitFunc func(event.Event) error

// renderer is the context of one render: registered match templates, the
// open choose blocks and the nesting depth. It is never shared between
// renders.
type renderer struct {
	engine *Engine
	id     string
	// template names the template whose nodes are executing.
	template string
	depth    depthGuard

	choices   []*choice
	templates []*matchTemplate
	seq       int
	patterns  map[patternKey]*xpath.Pattern
}

// choice is the state of an open choose directive.
type choice struct {
	value    any
	hasValue bool
	matched  bool
}

func (r *renderer) nodes(nodes []compiler.Node, sc *Scope, out emitFunc) error {
	for _, n := range nodes {
		if err := r.node(n, sc, out); err != nil {
			return err
		}
	}
	return nil
}

func (r *renderer) node(n compiler.Node, sc *Scope, out emitFunc) error {
	var err error
	switch n := n.(type) {
	case *compiler.Literal:
		err = emitAll(n.Events, out)
	case *compiler.Expression:
		var v any
		if v, err = r.eval(n.Expr, sc); err == nil {
			err = splice(v, n.Expr.Pos(), out)
		}
	case *compiler.Element:
		err = r.element(n, sc, out)
	case *compiler.Directive:
		err = r.directive(n, sc, out)
	case *compiler.Include:
		err = r.include(n, sc, out)
	}
	return r.wrap(err, n.Position())
}

// wrap attaches the current template and pos to err unless it already
// carries a location.
func (r *renderer) wrap(err error, pos event.Pos) error {
	if err == nil || errors.Is(err, errStopped) || IsRenderError(err) {
		return err
	}
	var de *DirectiveError
	if errors.As(err, &de) && de.Pos.IsValid() {
		pos = de.Pos
	}
	return &RenderError{Template: r.template, Pos: pos, Err: err}
}

func (r *renderer) eval(e *expr.Expr, sc *Scope) (any, error) {
	v, err := e.Evaluate(sc, r.engine.lookup)
	if err != nil {
		return nil, r.wrap(err, e.Pos())
	}
	return v, nil
}

func emitAll(events []event.Event, out emitFunc) error {
	for _, ev := range events {
		if err := out(ev); err != nil {
			return err
		}
	}
	return nil
}

// element renders an element with dynamic attributes or rewrite flags.
// Flags apply in order: attrs, content, strip.
func (r *renderer) element(el *compiler.Element, sc *Scope, out emitFunc) error {
	var attrs event.Attrs
	for _, a := range el.Attrs {
		v, ok, err := r.attrValue(a, sc)
		if err != nil {
			return err
		}
		if ok {
			attrs = append(attrs, event.Attr{Name: a.Name, Value: v})
		}
	}
	if el.AttrsExpr != nil {
		v, err := r.eval(el.AttrsExpr, sc)
		if err != nil {
			return err
		}
		if attrs, err = mergeAttrs(attrs, v); err != nil {
			return &DirectiveError{Kind: compiler.KindAttrs, Reason: err.Error(), Pos: el.AttrsExpr.Pos()}
		}
	}

	var content any
	if el.Content != nil {
		v, err := r.eval(el.Content, sc)
		if err != nil {
			return err
		}
		content = v
	}

	strip := el.StripAlways
	if !strip && el.Strip != nil {
		v, err := r.eval(el.Strip, sc)
		if err != nil {
			return err
		}
		strip = expr.Truthy(v)
	}

	if !strip {
		if err := out(event.StartEvent(el.Name, attrs, el.Pos)); err != nil {
			return err
		}
	}
	var err error
	if el.Content != nil {
		err = splice(content, el.Content.Pos(), out)
	} else {
		err = r.nodes(el.Children, sc.Child(nil), out)
	}
	if err != nil {
		return err
	}
	if !strip {
		return out(event.EndEvent(el.Name, el.Pos))
	}
	return nil
}

// attrValue interpolates an attribute. The attribute is dropped when it
// consists only of expressions that all yield None or Undefined.
func (r *renderer) attrValue(a compiler.AttrTemplate, sc *Scope) (string, bool, error) {
	var b strings.Builder
	produced := false
	for _, p := range a.Parts {
		if p.Expr == nil {
			b.WriteString(p.Text)
			produced = true
			continue
		}
		v, err := r.eval(p.Expr, sc)
		if err != nil {
			return "", false, err
		}
		switch v.(type) {
		case nil, expr.Undefined:
			continue
		}
		b.WriteString(expr.ToString(v))
		produced = true
	}
	return b.String(), produced, nil
}

func (r *renderer) directive(d *compiler.Directive, sc *Scope, out emitFunc) error {
	switch d.Kind {
	case compiler.KindFor:
		return r.forEach(d, sc, out)
	case compiler.KindIf:
		v, err := r.eval(d.Expr, sc)
		if err != nil || !expr.Truthy(v) {
			return err
		}
		return r.nodes(d.Children, sc.Child(nil), out)
	case compiler.KindChoose:
		return r.choose(d, sc, out)
	case compiler.KindWhen, compiler.KindOtherwise:
		return r.branch(d, sc, out)
	case compiler.KindWith:
		vars := make(map[string]any, len(d.Bindings))
		for _, b := range d.Bindings {
			v, err := r.eval(b.Value, sc)
			if err != nil {
				return err
			}
			vars[b.Name] = v
		}
		return r.nodes(d.Children, sc.Child(vars), out)
	case compiler.KindDef:
		sc.set(d.Signature.Name, &Macro{def: d, scope: sc, template: r.template, r: r})
		return nil
	case compiler.KindCall:
		return r.call(d, sc, out)
	case compiler.KindMatch:
		r.register(d, sc)
		return nil
	}
	return &DirectiveError{Kind: d.Kind, Reason: "cannot be rendered as a structural directive", Pos: d.Pos}
}

func (r *renderer) forEach(d *compiler.Directive, sc *Scope, out emitFunc) error {
	v, err := r.eval(d.Expr, sc)
	if err != nil {
		return err
	}
	items, err := expr.Iterate(v)
	if err != nil {
		return &DirectiveError{Kind: compiler.KindFor, Reason: fmt.Sprintf("%s: %v", d.Expr.Source(), err), Pos: d.Pos}
	}
	for i, item := range items {
		vars := make(map[string]any, len(d.Targets)+1)
		if len(d.Targets) == 1 {
			vars[d.Targets[0]] = item
		} else {
			parts, err := expr.Iterate(item)
			if err != nil || len(parts) != len(d.Targets) {
				return &DirectiveError{
					Kind:   compiler.KindFor,
					Reason: fmt.Sprintf("cannot unpack item %d of %s into %d names", i, d.Expr.Source(), len(d.Targets)),
					Pos:    d.Pos,
				}
			}
			for j, name := range d.Targets {
				vars[name] = parts[j]
			}
		}
		if d.IndexVar != "" {
			vars[d.IndexVar] = i
		}
		if err := r.nodes(d.Children, sc.Child(vars), out); err != nil {
			return err
		}
	}
	return nil
}

func (r *renderer) choose(d *compiler.Directive, sc *Scope, out emitFunc) error {
	c := &choice{}
	if d.Expr != nil {
		v, err := r.eval(d.Expr, sc)
		if err != nil {
			return err
		}
		c.value, c.hasValue = v, true
	}
	r.choices = append(r.choices, c)
	defer func() { r.choices = r.choices[:len(r.choices)-1] }()
	return r.nodes(d.Children, sc.Child(nil), out)
}

// branch renders a when or otherwise of the innermost open choose. With a
// choose value, a when matches when its test equals the value; otherwise
// it matches when the test is truthy. Only the first match renders.
func (r *renderer) branch(d *compiler.Directive, sc *Scope, out emitFunc) error {
	if len(r.choices) == 0 {
		return &DirectiveError{Kind: d.Kind, Reason: "rendered outside a choose", Pos: d.Pos}
	}
	c := r.choices[len(r.choices)-1]
	if c.matched {
		return nil
	}
	if d.Kind == compiler.KindWhen {
		v, err := r.eval(d.Expr, sc)
		if err != nil {
			return err
		}
		ok := expr.Truthy(v)
		if c.hasValue {
			ok = expr.Equal(c.value, v)
		}
		if !ok {
			return nil
		}
	}
	c.matched = true
	return r.nodes(d.Children, sc.Child(nil), out)
}

func (r *renderer) call(d *compiler.Directive, sc *Scope, out emitFunc) error {
	m, err := r.resolve(d, sc)
	if err != nil {
		return err
	}
	var args []any
	var kwargs map[string]any
	for _, a := range d.Call.Args {
		v, err := r.eval(a.Value, sc)
		if err != nil {
			return err
		}
		if a.Name == "" {
			args = append(args, v)
			continue
		}
		if kwargs == nil {
			kwargs = make(map[string]any)
		}
		kwargs[a.Name] = v
	}
	return r.invoke(m, args, kwargs, d.Pos, out)
}

// resolve finds the macro a call names. A call bound to a def at compile
// time takes the innermost activation of that def on the scope chain;
// otherwise it takes whatever macro the name holds in scope.
func (r *renderer) resolve(d *compiler.Directive, sc *Scope) (*Macro, error) {
	if d.Target != nil {
		if m := sc.macro(d.Call.Name, d.Target); m != nil {
			return m, nil
		}
	}
	if v, ok := sc.Lookup(d.Call.Name); ok {
		if m, ok := v.(*Macro); ok {
			return m, nil
		}
		return nil, &DirectiveError{Kind: compiler.KindCall, Reason: fmt.Sprintf("%s is not a macro", d.Call.Name), Pos: d.Pos}
	}
	return nil, &DirectiveError{Kind: compiler.KindCall, Reason: fmt.Sprintf("no macro named %s", d.Call.Name), Pos: d.Pos}
}

func (r *renderer) invoke(m *Macro, args []any, kwargs map[string]any, pos event.Pos, out emitFunc) error {
	vars, err := m.bind(r, args, kwargs, pos)
	if err != nil {
		return err
	}
	if err := r.depth.enter(compiler.KindCall, pos); err != nil {
		return err
	}
	defer r.depth.leave()
	defer r.enterTemplate(m.template)()
	return r.nodes(m.def.Children, m.scope.Child(vars), out)
}

// enterTemplate switches the template name used for error locations and
// returns a func restoring the previous one.
func (r *renderer) enterTemplate(name string) func() {
	prev := r.template
	r.template = name
	return func() { r.template = prev }
}

// notFound is implemented by loader errors for a missing template.
type notFound interface {
	NotFound() bool
}

func isNotFound(err error) bool {
	var nf notFound
	return errors.As(err, &nf) && nf.NotFound()
}

// include renders another template inline, in the including scope, so
// its defs and match templates stay visible after the include. The
// fallback renders only when the template does not exist.
func (r *renderer) include(n *compiler.Include, sc *Scope, out emitFunc) error {
	var href strings.Builder
	for _, p := range n.Href {
		if p.Expr == nil {
			href.WriteString(p.Text)
			continue
		}
		v, err := r.eval(p.Expr, sc)
		if err != nil {
			return err
		}
		href.WriteString(expr.ToString(v))
	}
	name := href.String()

	if r.engine.loader == nil {
		return &DirectiveError{Kind: compiler.KindInclude, Reason: fmt.Sprintf("no loader configured to include %s", name), Pos: n.Pos}
	}
	tree, err := r.engine.loader.Load(name, r.template)
	if err != nil {
		if n.HasFallback && isNotFound(err) {
			slog.Debug("include fell back", "template", r.template, "href", name, "render_id", r.id)
			return r.nodes(n.Fallback, sc.Child(nil), out)
		}
		return err
	}
	slog.Debug("include resolved", "template", r.template, "href", name, "resolved", tree.Name, "render_id", r.id)

	if err := r.depth.enter(compiler.KindInclude, n.Pos); err != nil {
		return err
	}
	defer r.depth.leave()
	defer r.enterTemplate(tree.Name)()
	return r.nodes(tree.Nodes, sc, out)
}
