package compiler

import (
	"fmt"
	"io"
	"strings"

	"github.com/roach88/weft/internal/event"
	"github.com/roach88/weft/internal/expr"
	"github.com/roach88/weft/internal/xpath"
)

// Node is one node of a directive tree: *Literal, *Expression, *Element,
// *Directive or *Include.
type Node interface {
	Position() event.Pos
	isNode()
}

// Literal is a coalesced run of events emitted verbatim. A run may open
// or close elements whose other half lives in a sibling run.
type Literal struct {
	Events []event.Event
}

// Expression splices the value of an embedded expression.
type Expression struct {
	Expr *expr.Expr
}

// Part is one piece of an interpolated string: literal text or an
// expression, never both.
type Part struct {
	Text string
	Expr *expr.Expr
}

// AttrTemplate is an attribute whose value may be interpolated.
type AttrTemplate struct {
	Name  event.QName
	Parts []Part
}

// Static reports whether the value has no expressions.
func (a AttrTemplate) Static() bool {
	for _, p := range a.Parts {
		if p.Expr != nil {
			return false
		}
	}
	return true
}

// Element is an element that carries interpolated attributes or rewrite
// flags. Flags are applied by the engine in a fixed order: attrs, then
// content, then strip.
type Element struct {
	Name  event.QName
	Attrs []AttrTemplate

	// Content replaces the children with its value.
	Content *expr.Expr
	// AttrsExpr is merged into the attributes; computed values win and a
	// None value removes the attribute.
	AttrsExpr *expr.Expr
	// Strip drops the start and end tags when it evaluates truthy.
	// StripAlways is set for an empty strip parameter and for replace.
	Strip       *expr.Expr
	StripAlways bool

	Children []Node
	Pos      event.Pos
}

// Directive is a structural directive with its children.
type Directive struct {
	Kind Kind
	// Source is the raw primary parameter, for diagnostics.
	Source string

	// Expr is the parameter of if, when, choose and the iterable of for.
	Expr *expr.Expr
	// Targets are the loop variables of for; IndexVar optionally binds
	// the zero-based iteration index.
	Targets  []string
	IndexVar string
	Bindings []expr.Binding

	Signature *expr.Signature

	Call *expr.CallClause
	// Target is the def a call resolved to at compile time, or nil when
	// resolution is deferred to render time.
	Target *Directive

	Pattern *xpath.Pattern
	// Namespaces are the prefixes in scope at a match, for the paths
	// passed to select in its body.
	Namespaces map[string]string
	Once       bool
	Recursive  bool

	Children []Node
	Pos      event.Pos
}

// Include pulls in another template by reference.
type Include struct {
	Href     []Part
	Fallback []Node
	// HasFallback distinguishes an empty fallback from none.
	HasFallback bool
	Pos         event.Pos
}

func (n *Literal) Position() event.Pos {
	if len(n.Events) == 0 {
		return event.Pos{}
	}
	return n.Events[0].Pos
}

func (n *Expression) Position() event.Pos { return n.Expr.Pos() }
func (n *Element) Position() event.Pos    { return n.Pos }
func (n *Directive) Position() event.Pos  { return n.Pos }
func (n *Include) Position() event.Pos    { return n.Pos }

func (*Literal) isNode()    {}
func (*Expression) isNode() {}
func (*Element) isNode()    {}
func (*Directive) isNode()  {}
func (*Include) isNode()    {}

// Tree is a compiled template. It is immutable and may be rendered
// concurrently.
type Tree struct {
	Name    string
	Dialect string
	Nodes   []Node
	// Defs are the top-level defs by name. Later definitions shadow
	// earlier ones.
	Defs map[string]*Directive
}

// OutlineNode is a printable summary of a tree node.
type OutlineNode struct {
	Kind     string        `json:"kind"`
	Detail   string        `json:"detail,omitempty"`
	Line     int           `json:"line,omitempty"`
	Children []OutlineNode `json:"children,omitempty"`
}

// Outline summarizes the tree for diagnostics and JSON dumps. Two
// compilations of the same source produce equal outlines.
func (t *Tree) Outline() []OutlineNode {
	return outline(t.Nodes)
}

func outline(nodes []Node) []OutlineNode {
	out := make([]OutlineNode, 0, len(nodes))
	for _, n := range nodes {
		o := OutlineNode{Line: n.Position().Line}
		switch n := n.(type) {
		case *Literal:
			o.Kind = "literal"
			o.Detail = literalDetail(n.Events)
		case *Expression:
			o.Kind = "expr"
			o.Detail = n.Expr.Source()
		case *Element:
			o.Kind = "element"
			o.Detail = elementDetail(n)
			o.Children = outline(n.Children)
		case *Directive:
			o.Kind = n.Kind.String()
			o.Detail = n.Source
			o.Children = outline(n.Children)
		case *Include:
			o.Kind = "include"
			o.Detail = partsSource(n.Href)
			if n.HasFallback {
				o.Children = []OutlineNode{{Kind: "fallback", Line: n.Pos.Line, Children: outline(n.Fallback)}}
			}
		}
		out = append(out, o)
	}
	return out
}

func literalDetail(events []event.Event) string {
	parts := make([]string, 0, len(events))
	for _, ev := range events {
		switch ev.Kind {
		case event.Start:
			parts = append(parts, "<"+ev.Name.Local+">")
		case event.End:
			parts = append(parts, "</"+ev.Name.Local+">")
		case event.Text:
			if s := strings.TrimSpace(ev.Data); s != "" {
				parts = append(parts, fmt.Sprintf("%q", s))
			}
		default:
			parts = append(parts, ev.Kind.String())
		}
	}
	return strings.Join(parts, " ")
}

func elementDetail(el *Element) string {
	var b strings.Builder
	b.WriteString("<" + el.Name.Local)
	for _, a := range el.Attrs {
		fmt.Fprintf(&b, " %s=%q", a.Name.Local, partsSource(a.Parts))
	}
	b.WriteString(">")
	if el.AttrsExpr != nil {
		b.WriteString(" attrs=" + el.AttrsExpr.Source())
	}
	if el.Content != nil {
		b.WriteString(" content=" + el.Content.Source())
	}
	if el.StripAlways {
		b.WriteString(" strip")
	} else if el.Strip != nil {
		b.WriteString(" strip=" + el.Strip.Source())
	}
	return b.String()
}

func partsSource(parts []Part) string {
	var b strings.Builder
	for _, p := range parts {
		if p.Expr != nil {
			b.WriteString("${" + p.Expr.Source() + "}")
		} else {
			b.WriteString(strings.ReplaceAll(p.Text, "$", "$$"))
		}
	}
	return b.String()
}

// WriteOutline prints an indented outline, one node per line.
func WriteOutline(w io.Writer, nodes []OutlineNode) error {
	return writeOutline(w, nodes, 0)
}

func writeOutline(w io.Writer, nodes []OutlineNode, depth int) error {
	for _, n := range nodes {
		line := strings.Repeat("  ", depth) + n.Kind
		if n.Detail != "" {
			line += " " + n.Detail
		}
		if n.Line > 0 {
			line += fmt.Sprintf("  (line %d)", n.Line)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
		if err := writeOutline(w, n.Children, depth+1); err != nil {
			return err
		}
	}
	return nil
}
