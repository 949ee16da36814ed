package xpath

import (
	"errors"
	"fmt"

	"github.com/alecthomas/participle/v2"

	"github.com/roach88/weft/internal/event"
)

// PatternSyntaxError reports a malformed pattern or an unsupported axis.
// Offset is the byte offset into Pattern.
type PatternSyntaxError struct {
	Pattern string
	Offset  int
	Message string
}

func (e *PatternSyntaxError) Error() string {
	return fmt.Sprintf("invalid path %q at offset %d: %s", e.Pattern, e.Offset, e.Message)
}

// IsPatternSyntaxError reports whether err is a PatternSyntaxError.
func IsPatternSyntaxError(err error) bool {
	var pe *PatternSyntaxError
	return errors.As(err, &pe)
}

// Axis is the relation between a step and the step before it.
type Axis int

const (
	Child Axis = iota
	Descendant
	DescendantOrSelf
	Attribute
)

var axisNames = [...]string{
	Child:            "child",
	Descendant:       "descendant",
	DescendantOrSelf: "descendant-or-self",
	Attribute:        "attribute",
}

func parseAxis(name string) (Axis, bool) {
	for a, n := range axisNames {
		if n == name {
			return Axis(a), true
		}
	}
	return Child, false
}

func (a Axis) String() string {
	if a >= 0 && int(a) < len(axisNames) {
		return axisNames[a]
	}
	return fmt.Sprintf("Axis(%d)", int(a))
}

type testKind int

const (
	testName testKind = iota
	testText
	testNode
)

type nodeTest struct {
	kind testKind
	// anySpace is set for unprefixed names, which match the local name in
	// any namespace.
	anySpace bool
	space    string
	local    string // "*" matches any name
}

type predKind int

const (
	predIndex predKind = iota
	predLast
	predHasAttr
	predAttrEq
	predAttrNe
)

type predicate struct {
	kind  predKind
	index int
	attr  nodeTest
	value string
}

// Step is one location step of a path.
type Step struct {
	Axis  Axis
	test  nodeTest
	preds []predicate
}

type path struct {
	absolute bool
	steps    []Step
}

// Pattern is a compiled path pattern. It is immutable and safe for
// concurrent use.
type Pattern struct {
	source string
	paths  []path
}

// Option configures Compile.
type Option func(*options)

type options struct {
	namespaces map[string]string
}

// WithNamespaces resolves prefixed names in the pattern. Prefixes that
// are not in the map are syntax errors.
func WithNamespaces(ns map[string]string) Option {
	return func(o *options) {
		o.namespaces = ns
	}
}

// Compile parses a path pattern.
func Compile(pattern string, opts ...Option) (*Pattern, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	ast, err := patternParser.ParseString("", pattern)
	if err != nil {
		pe := &PatternSyntaxError{Pattern: pattern, Message: err.Error()}
		var perr participle.Error
		if errors.As(err, &perr) {
			pe.Offset, pe.Message = perr.Position().Offset, perr.Message()
		}
		return nil, pe
	}
	c := &compiler{source: pattern, opts: o}
	p := &Pattern{source: pattern}
	for _, pa := range ast.Paths {
		compiled, err := c.path(pa)
		if err != nil {
			return nil, err
		}
		p.paths = append(p.paths, compiled)
	}
	return p, nil
}

// MustCompile is Compile that panics on error.
func MustCompile(pattern string, opts ...Option) *Pattern {
	p, err := Compile(pattern, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Pattern) String() string {
	return p.source
}

// Attributes reports whether every alternative of the pattern ends in an
// attribute step, so selecting it yields attributes rather than nodes.
func (p *Pattern) Attributes() bool {
	for _, pa := range p.paths {
		if pa.steps[len(pa.steps)-1].Axis != Attribute {
			return false
		}
	}
	return len(p.paths) > 0
}

type compiler struct {
	source string
	opts   options
}

func (c *compiler) errorAt(offset int, format string, args ...any) error {
	return &PatternSyntaxError{Pattern: c.source, Offset: offset, Message: fmt.Sprintf(format, args...)}
}

func (c *compiler) path(pa *pathAST) (path, error) {
	out := path{absolute: pa.Lead != ""}
	first, err := c.step(pa.First, pa.Lead == "//")
	if err != nil {
		return out, err
	}
	out.steps = append(out.steps, first)
	for _, r := range pa.Rest {
		s, err := c.step(r.Step, r.Sep == "//")
		if err != nil {
			return out, err
		}
		out.steps = append(out.steps, s)
	}
	for i, s := range out.steps[:len(out.steps)-1] {
		if s.Axis == Attribute {
			return out, c.errorAt(0, "attribute step %d must be the last step", i+1)
		}
	}
	return out, nil
}

func (c *compiler) step(s *stepAST, descendant bool) (Step, error) {
	if s.Attr != nil {
		t, err := c.nameTest(s.Attr.Prefix, s.Attr.Local, s.Pos.Offset)
		return Step{Axis: Attribute, test: t}, err
	}
	out := Step{Axis: Child}
	if s.Axis != "" {
		axis, ok := parseAxis(s.Axis)
		if !ok {
			return out, c.errorAt(s.Pos.Offset, "unsupported axis %q", s.Axis)
		}
		out.Axis = axis
	}
	if descendant && out.Axis == Child {
		out.Axis = Descendant
	}
	switch s.Node.Kind {
	case "text":
		out.test = nodeTest{kind: testText}
	case "node":
		out.test = nodeTest{kind: testNode}
	default:
		t, err := c.nameTest(s.Node.Prefix, s.Node.Local, s.Pos.Offset)
		if err != nil {
			return out, err
		}
		out.test = t
	}
	for _, pr := range s.Preds {
		p, err := c.predicate(pr)
		if err != nil {
			return out, err
		}
		out.preds = append(out.preds, p)
	}
	return out, nil
}

func (c *compiler) nameTest(prefix, local string, offset int) (nodeTest, error) {
	if prefix == "" {
		return nodeTest{kind: testName, anySpace: true, local: local}, nil
	}
	uri, ok := c.opts.namespaces[prefix]
	if !ok {
		return nodeTest{}, c.errorAt(offset, "undeclared namespace prefix %q", prefix)
	}
	return nodeTest{kind: testName, space: uri, local: local}, nil
}

func (c *compiler) predicate(pr *predicateAST) (predicate, error) {
	switch {
	case pr.Index != nil:
		return predicate{kind: predIndex, index: *pr.Index}, nil
	case pr.Attr != nil:
		t, err := c.nameTest(pr.Attr.Prefix, pr.Attr.Local, pr.Pos.Offset)
		if err != nil {
			return predicate{}, err
		}
		p := predicate{kind: predHasAttr, attr: t}
		if pr.Value != nil {
			p.value = unquote(*pr.Value)
			p.kind = predAttrEq
			if pr.Op == "!=" {
				p.kind = predAttrNe
			}
		}
		return p, nil
	}
	switch pr.Func {
	case "first":
		if pr.FuncArg == nil {
			return predicate{kind: predIndex, index: 1}, nil
		}
	case "last":
		if pr.FuncArg == nil {
			return predicate{kind: predLast}, nil
		}
	case "position":
		if pr.FuncArg != nil {
			return predicate{kind: predIndex, index: *pr.FuncArg}, nil
		}
		return predicate{}, c.errorAt(pr.Pos.Offset, "position() must be compared to a number")
	}
	return predicate{}, c.errorAt(pr.Pos.Offset, "unsupported predicate function %s()", pr.Func)
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') {
		return s[1 : len(s)-1]
	}
	return s
}

// matchName reports whether name satisfies a name test.
func (t nodeTest) matchName(name event.QName) bool {
	if !t.anySpace && t.space != name.Space {
		return false
	}
	return t.local == "*" || t.local == name.Local
}
