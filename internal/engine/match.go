package engine

import (
	"fmt"
	"log/slog"

	"github.com/roach88/weft/internal/compiler"
	"github.com/roach88/weft/internal/event"
	"github.com/roach88/weft/internal/expr"
	"github.com/roach88/weft/internal/xpath"
)

// matchTemplate is a match directive registered during a render. seq
// orders registrations; newer templates are tried first.
type matchTemplate struct {
	seq      int
	dir      *compiler.Directive
	scope    *Scope
	template string
	live     bool
}

func (r *renderer) register(d *compiler.Directive, sc *Scope) {
	r.seq++
	r.templates = append(r.templates, &matchTemplate{
		seq:      r.seq,
		dir:      d,
		scope:    sc,
		template: r.template,
		live:     true,
	})
	slog.Debug("match template registered", "path", d.Pattern.String(), "seq", r.seq, "template", r.template, "render_id", r.id)
}

func allowAll(*matchTemplate) bool { return true }

// stage is one match filter. Events flow through it to next; the first
// element whose start matches an allowed template is captured up to its
// end and replaced by the template's body.
//
// Matching a template T opens two further stages:
//   - the content stage filters the events inside the matched element,
//     allowing templates newer than T, and T itself when it is recursive
//   - the body stage filters T's output, allowing every template except T
//     and those that were newer than T when it matched
//
// A template therefore never sees its own body, and nesting beyond that
// is bounded by the depth guard.
type stage struct {
	r     *renderer
	allow func(*matchTemplate) bool
	chain *xpath.Chain
	next  emitFunc
	cap   *capture
}

// capture buffers the element a template matched.
type capture struct {
	mt *matchTemplate
	// newest is the newest registration when the match fired.
	newest  int
	depth   int
	events  Fragment
	content *stage
}

func (s *stage) emit(ev event.Event) error {
	if c := s.cap; c != nil {
		switch ev.Kind {
		case event.Start:
			c.depth++
		case event.End:
			c.depth--
		}
		if c.depth > 0 {
			return c.content.emit(ev)
		}
		c.events = append(c.events, ev)
		s.cap = nil
		s.chain.Pop()
		return s.apply(c)
	}

	switch ev.Kind {
	case event.Start:
		node := s.chain.Push(ev.Name, ev.Attrs)
		if mt := s.match(node); mt != nil {
			s.capture(mt, ev)
			return nil
		}
	case event.End:
		s.chain.Pop()
	}
	return s.next(ev)
}

// match returns the newest live template this stage allows whose pattern
// matches node.
func (s *stage) match(node xpath.Node) *matchTemplate {
	nodes := s.chain.Nodes()
	ancestors := nodes[:len(nodes)-1]
	for i := len(s.r.templates) - 1; i >= 0; i-- {
		mt := s.r.templates[i]
		if mt.live && s.allow(mt) && mt.dir.Pattern.Test(ancestors, node) {
			return mt
		}
	}
	return nil
}

func (s *stage) capture(mt *matchTemplate, start event.Event) {
	if mt.dir.Once {
		mt.live = false
	}
	c := &capture{mt: mt, newest: s.r.seq, depth: 1, events: Fragment{start}}
	c.content = &stage{
		r: s.r,
		allow: func(m *matchTemplate) bool {
			if m == mt {
				return mt.dir.Recursive && s.allow(m)
			}
			return m.seq > mt.seq && m.seq <= c.newest && s.allow(m)
		},
		chain: s.chain.Clone(),
		next: func(ev event.Event) error {
			c.events = append(c.events, ev)
			return nil
		},
	}
	s.cap = c
}

// apply renders the body of the template that captured c in place of the
// captured element.
func (s *stage) apply(c *capture) error {
	r, mt := s.r, c.mt
	if err := r.depth.enter(compiler.KindMatch, mt.dir.Pos); err != nil {
		return r.wrap(err, mt.dir.Pos)
	}
	defer r.depth.leave()

	body := &stage{
		r: r,
		allow: func(m *matchTemplate) bool {
			return (m.seq < mt.seq || m.seq > c.newest) && s.allow(m)
		},
		chain: s.chain.Clone(),
		next:  s.next,
	}
	vars := map[string]any{
		"this":   c.events,
		"select": r.selector(c.events, mt.dir),
	}
	defer r.enterTemplate(mt.template)()
	return r.nodes(mt.dir.Children, mt.scope.Child(vars), body.emit)
}

type patternKey struct {
	dir  *compiler.Directive
	path string
}

// selector builds the select function of a match body. Paths are
// evaluated against the matched element; attribute paths return
// event.Attrs and all others a Fragment.
func (r *renderer) selector(events Fragment, d *compiler.Directive) expr.Func {
	return func(args []any, kwargs map[string]any) (any, error) {
		if len(args) != 1 || len(kwargs) != 0 {
			return nil, fmt.Errorf("select() takes 1 argument, got %d", len(args)+len(kwargs))
		}
		p, err := r.pattern(d, expr.ToString(args[0]))
		if err != nil {
			return nil, err
		}
		if p.Attributes() {
			attrs, err := xpath.SelectAttrs(events.Stream(), p)
			return attrs, err
		}
		out, err := event.Collect(xpath.Select(events.Stream(), p))
		return Fragment(out), err
	}
}

func (r *renderer) pattern(d *compiler.Directive, path string) (*xpath.Pattern, error) {
	key := patternKey{dir: d, path: path}
	if p, ok := r.patterns[key]; ok {
		return p, nil
	}
	p, err := xpath.Compile(path, xpath.WithNamespaces(d.Namespaces))
	if err != nil {
		return nil, err
	}
	if r.patterns == nil {
		r.patterns = make(map[patternKey]*xpath.Pattern)
	}
	r.patterns[key] = p
	return p, nil
}
