package compiler

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/roach88/weft/internal/event"
	"github.com/roach88/weft/internal/expr"
	"github.com/roach88/weft/internal/xpath"
)

// Option configures Compile.
type Option func(*builder)

// WithVocabulary replaces the default directive table.
func WithVocabulary(v *Vocabulary) Option {
	return func(b *builder) {
		b.vocab = v
	}
}

// WithName sets the tree name. It defaults to the filename.
func WithName(name string) Option {
	return func(b *builder) {
		b.tree.Name = name
	}
}

// Compile turns template source into a directive tree in one pass over
// the front end's tokens. It fails on the first error and never returns a
// partial tree.
func Compile(r io.Reader, filename string, fe Frontend, opts ...Option) (*Tree, error) {
	b := &builder{
		filename: filename,
		vocab:    DefaultVocabulary(),
		tree:     &Tree{Name: filename, Dialect: fe.Name(), Defs: make(map[string]*Directive)},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.push(&frame{kind: frameRoot})

	for tok, err := range fe.Tokens(r, filename, b.vocab) {
		if err != nil {
			var se *TemplateSyntaxError
			if errors.As(err, &se) {
				return nil, se
			}
			return nil, &TemplateSyntaxError{Code: ErrMalformedSource, Filename: filename, Message: err.Error()}
		}
		if err := b.token(tok); err != nil {
			return nil, err
		}
	}
	if err := b.finish(); err != nil {
		return nil, err
	}
	return b.tree, nil
}

// CompileString is Compile over a string.
func CompileString(src, filename string, fe Frontend, opts ...Option) (*Tree, error) {
	return Compile(strings.NewReader(src), filename, fe, opts...)
}

type frameKind int

const (
	frameRoot frameKind = iota
	frameDirective
	frameElement
	frameFlag
	frameInclude
	frameFallback
)

type frame struct {
	kind frameKind
	name string // directive name closes must match
	pos  event.Pos

	dir     *Directive
	elem    *Element
	include *Include

	// flag frames wait for the next element start.
	flag  Kind
	arg   string
	bound bool

	nodes []Node
	lit   []event.Event
	// open holds literal element starts whose end is still pending.
	open []event.QName
	// defs is the lexical symbol table of this block.
	defs map[string]*Directive
}

type builder struct {
	filename string
	vocab    *Vocabulary
	tree     *Tree
	stack    []*frame
}

func (b *builder) push(f *frame) {
	b.stack = append(b.stack, f)
}

func (b *builder) pop() *frame {
	f := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
	return f
}

func (b *builder) top() *frame {
	return b.stack[len(b.stack)-1]
}

// container is the innermost frame that collects child nodes.
func (b *builder) container() *frame {
	for i := len(b.stack) - 1; i >= 0; i-- {
		if b.stack[i].kind != frameFlag {
			return b.stack[i]
		}
	}
	return b.stack[0]
}

func (b *builder) flush(f *frame) {
	if len(f.lit) > 0 {
		f.nodes = append(f.nodes, &Literal{Events: f.lit})
		f.lit = nil
	}
}

func (b *builder) token(tok Token) error {
	switch tok.Kind {
	case TokenEvent:
		return b.event(tok.Event)
	case TokenExpr:
		return b.expression(tok)
	case TokenOpen:
		return b.open(tok)
	case TokenClose:
		return b.close(tok)
	}
	return SyntaxErrorf(ErrMalformedSource, tok.Pos, "unknown token kind %d", tok.Kind)
}

func (b *builder) danglingFlag(pos event.Pos) error {
	if f := b.top(); f.kind == frameFlag && !f.bound {
		return SyntaxErrorf(ErrDanglingFlag, pos, "%s directive must be followed by an element", f.name)
	}
	return nil
}

func (b *builder) event(ev event.Event) error {
	if ev.Kind != event.Start {
		if err := b.danglingFlag(ev.Pos); err != nil {
			return err
		}
	}
	c := b.container()
	switch ev.Kind {
	case event.Start:
		attrs, dynamic, err := b.attrTemplates(ev)
		if err != nil {
			return err
		}
		flags := b.pendingFlags()
		if len(flags) == 0 && !dynamic {
			ev.Attrs = staticAttrs(attrs)
			c.lit = append(c.lit, ev)
			c.open = append(c.open, ev.Name)
			return nil
		}
		el := &Element{Name: ev.Name, Attrs: attrs, Pos: ev.Pos}
		for _, f := range flags {
			if err := b.applyFlag(el, f); err != nil {
				return err
			}
			f.bound = true
		}
		b.flush(c)
		b.push(&frame{kind: frameElement, elem: el, pos: ev.Pos})
	case event.End:
		if n := len(c.open); n > 0 {
			if c.open[n-1] != ev.Name {
				return SyntaxErrorf(ErrMismatchedTag, ev.Pos, "end tag </%s> does not match <%s>", ev.Name.Local, c.open[n-1].Local)
			}
			c.open = c.open[:n-1]
			c.lit = append(c.lit, ev)
			return nil
		}
		if c.kind != frameElement {
			return SyntaxErrorf(ErrMismatchedTag, ev.Pos, "end tag </%s> has no matching start tag in this block", ev.Name.Local)
		}
		if c.elem.Name != ev.Name {
			return SyntaxErrorf(ErrMismatchedTag, ev.Pos, "end tag </%s> does not match <%s>", ev.Name.Local, c.elem.Name.Local)
		}
		b.flush(c)
		c.elem.Children = c.nodes
		b.pop()
		parent := b.container()
		parent.nodes = append(parent.nodes, c.elem)
	default:
		c.lit = append(c.lit, ev)
	}
	return nil
}

// pendingFlags returns the unbound flag frames on top of the stack.
func (b *builder) pendingFlags() []*frame {
	var out []*frame
	for i := len(b.stack) - 1; i >= 0; i-- {
		f := b.stack[i]
		if f.kind != frameFlag || f.bound {
			break
		}
		out = append(out, f)
	}
	return out
}

func (b *builder) attrTemplates(ev event.Event) ([]AttrTemplate, bool, error) {
	out := make([]AttrTemplate, 0, len(ev.Attrs))
	dynamic := false
	for _, a := range ev.Attrs {
		parts, err := Interpolate(a.Value, ev.Pos)
		if err != nil {
			return nil, false, err
		}
		t := AttrTemplate{Name: a.Name, Parts: parts}
		if !t.Static() {
			dynamic = true
		}
		out = append(out, t)
	}
	return out, dynamic, nil
}

func staticAttrs(attrs []AttrTemplate) event.Attrs {
	if len(attrs) == 0 {
		return nil
	}
	out := make(event.Attrs, len(attrs))
	for i, a := range attrs {
		out[i] = event.Attr{Name: a.Name, Value: partsText(a.Parts)}
	}
	return out
}

func partsText(parts []Part) string {
	if len(parts) == 1 {
		return parts[0].Text
	}
	var sb strings.Builder
	for _, p := range parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func (b *builder) applyFlag(el *Element, f *frame) error {
	parse := func() (*expr.Expr, error) {
		if strings.TrimSpace(f.arg) == "" {
			return nil, SyntaxErrorf(ErrMissingArgument, f.pos, "%s directive requires an expression", f.name)
		}
		e, err := expr.Parse(f.arg, f.pos)
		if err != nil {
			return nil, wrapExprError(err, f.pos)
		}
		return e, nil
	}
	var err error
	switch f.flag {
	case KindContent:
		el.Content, err = parse()
	case KindReplace:
		el.Content, err = parse()
		el.StripAlways = true
	case KindAttrs:
		el.AttrsExpr, err = parse()
	case KindStrip:
		if strings.TrimSpace(f.arg) == "" {
			el.StripAlways = true
			return nil
		}
		el.Strip, err = parse()
	}
	return err
}

func (b *builder) expression(tok Token) error {
	if err := b.danglingFlag(tok.Pos); err != nil {
		return err
	}
	e, err := expr.Parse(tok.Expr, tok.Pos)
	if err != nil {
		return wrapExprError(err, tok.Pos)
	}
	c := b.container()
	b.flush(c)
	c.nodes = append(c.nodes, &Expression{Expr: e})
	return nil
}

func (b *builder) open(tok Token) error {
	spec, ok := b.vocab.Lookup(tok.Directive)
	if !ok {
		return SyntaxErrorf(ErrUnknownDirective, tok.Pos, "unknown directive %q", tok.Directive)
	}
	if spec.Kind.IsFlag() {
		b.push(&frame{kind: frameFlag, name: spec.Name, flag: spec.Kind, arg: tok.Args[""], pos: tok.Pos})
		return nil
	}
	if err := b.danglingFlag(tok.Pos); err != nil {
		return err
	}
	c := b.container()
	b.flush(c)

	switch spec.Kind {
	case KindInclude:
		href := strings.TrimSpace(tok.Args[""])
		if href == "" {
			return SyntaxErrorf(ErrMissingArgument, tok.Pos, "include requires an href")
		}
		parts, err := Interpolate(href, tok.Pos)
		if err != nil {
			return err
		}
		inc := &Include{Href: parts, Pos: tok.Pos}
		b.push(&frame{kind: frameInclude, name: spec.Name, include: inc, pos: tok.Pos})
		return nil
	case KindFallback:
		if c.kind != frameInclude {
			return SyntaxErrorf(ErrBranchOutside, tok.Pos, "fallback must be directly inside include")
		}
		b.push(&frame{kind: frameFallback, name: spec.Name, pos: tok.Pos})
		return nil
	}

	d, err := b.directive(spec, tok)
	if err != nil {
		return err
	}
	switch d.Kind {
	case KindWhen, KindOtherwise:
		if !b.insideChoose() {
			return SyntaxErrorf(ErrBranchOutside, tok.Pos, "%s directive must be inside a choose", spec.Name)
		}
	case KindDef:
		if c.defs == nil {
			c.defs = make(map[string]*Directive)
		}
		c.defs[d.Signature.Name] = d
		if c.kind == frameRoot {
			b.tree.Defs[d.Signature.Name] = d
		}
	case KindCall:
		if target := b.resolve(d.Call.Name); target != nil {
			if err := checkArity(d.Call, target.Signature, tok.Pos); err != nil {
				return err
			}
			d.Target = target
		}
	}
	b.push(&frame{kind: frameDirective, name: spec.Name, dir: d, pos: tok.Pos})
	return nil
}

func (b *builder) insideChoose() bool {
	for i := len(b.stack) - 1; i >= 0; i-- {
		if d := b.stack[i].dir; d != nil && d.Kind == KindChoose {
			return true
		}
	}
	return false
}

// resolve looks a def up through the enclosing blocks, innermost first.
func (b *builder) resolve(name string) *Directive {
	for i := len(b.stack) - 1; i >= 0; i-- {
		if d, ok := b.stack[i].defs[name]; ok {
			return d
		}
	}
	return nil
}

func (b *builder) directive(spec DirectiveSpec, tok Token) (*Directive, error) {
	arg := strings.TrimSpace(tok.Args[""])
	d := &Directive{Kind: spec.Kind, Source: arg, Pos: tok.Pos}
	required := func() error {
		if arg == "" {
			attr := spec.ElementAttr
			if attr == "" {
				attr = "parameter"
			}
			return SyntaxErrorf(ErrMissingArgument, tok.Pos, "%s directive requires a %s", spec.Name, attr)
		}
		return nil
	}
	var err error
	switch spec.Kind {
	case KindFor:
		if err = required(); err != nil {
			return nil, err
		}
		var fc *expr.ForClause
		if fc, err = expr.ParseFor(arg, tok.Pos); err == nil {
			d.Targets, d.Expr = fc.Targets, fc.Iter
		}
		if idx := strings.TrimSpace(tok.Args["index"]); idx != "" {
			if !validName(idx) {
				return nil, SyntaxErrorf(ErrMissingArgument, tok.Pos, "invalid index variable %q", idx)
			}
			d.IndexVar = idx
		}
	case KindIf, KindWhen:
		if err = required(); err != nil {
			return nil, err
		}
		d.Expr, err = expr.Parse(arg, tok.Pos)
	case KindChoose:
		if arg != "" {
			d.Expr, err = expr.Parse(arg, tok.Pos)
		}
	case KindOtherwise:
	case KindWith:
		if err = required(); err != nil {
			return nil, err
		}
		d.Bindings, err = expr.ParseBindings(arg, tok.Pos)
	case KindDef:
		if err = required(); err != nil {
			return nil, err
		}
		d.Signature, err = expr.ParseSignature(arg, tok.Pos)
	case KindCall:
		if err = required(); err != nil {
			return nil, err
		}
		d.Call, err = expr.ParseCall(arg, tok.Pos)
	case KindMatch:
		if err = required(); err != nil {
			return nil, err
		}
		p, perr := xpath.Compile(arg, xpath.WithNamespaces(tok.Namespaces))
		if perr != nil {
			return nil, SyntaxErrorf(ErrInvalidPattern, tok.Pos, "%v", perr)
		}
		d.Pattern = p
		d.Namespaces = tok.Namespaces
		if d.Once, err = hint(tok.Args, "once", false, tok.Pos); err != nil {
			return nil, err
		}
		if d.Recursive, err = hint(tok.Args, "recursive", true, tok.Pos); err != nil {
			return nil, err
		}
	default:
		return nil, SyntaxErrorf(ErrUnknownDirective, tok.Pos, "%s cannot be used as a structural directive", spec.Name)
	}
	if err != nil {
		return nil, wrapExprError(err, tok.Pos)
	}
	return d, nil
}

func hint(args map[string]string, name string, def bool, pos event.Pos) (bool, error) {
	v, ok := args[name]
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def, SyntaxErrorf(ErrMissingArgument, pos, "%s must be true or false, got %q", name, v)
	}
	return b, nil
}

func validName(s string) bool {
	if s == "" || !isNameStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isNameChar(s[i]) {
			return false
		}
	}
	return true
}

// checkArity validates call arguments against a signature.
func checkArity(call *expr.CallClause, sig *expr.Signature, pos event.Pos) error {
	return CheckArity(call.Args, sig, func(format string, args ...any) error {
		return SyntaxErrorf(ErrCallArity, pos, "call to %s: %s", sig.Name, fmt.Sprintf(format, args...))
	})
}

// CheckArity reports whether positional and keyword arguments fit sig.
// The engine reuses it for calls resolved at render time.
func CheckArity(args []expr.Arg, sig *expr.Signature, fail func(format string, args ...any) error) error {
	positional := 0
	seen := make(map[string]bool)
	for _, a := range args {
		if a.Name == "" {
			positional++
			continue
		}
		seen[a.Name] = true
	}
	if positional > len(sig.Params) {
		return fail("takes %d arguments, got %d", len(sig.Params), positional)
	}
	for name := range seen {
		found := false
		for i, p := range sig.Params {
			if p.Name == name {
				if i < positional {
					return fail("got multiple values for %s", name)
				}
				found = true
			}
		}
		if !found {
			return fail("unexpected keyword argument %s", name)
		}
	}
	for i, p := range sig.Params {
		if i >= positional && !seen[p.Name] && p.Default == nil {
			return fail("missing required argument %s", p.Name)
		}
	}
	return nil
}

func (b *builder) close(tok Token) error {
	f := b.top()
	if f.kind == frameRoot {
		return SyntaxErrorf(ErrMismatchedClose, tok.Pos, "close of %s without a matching open", tok.Directive)
	}
	if f.kind == frameElement {
		return SyntaxErrorf(ErrMismatchedTag, tok.Pos, "%s closed while <%s> is still open", tok.Directive, f.elem.Name.Local)
	}
	if f.name != tok.Directive {
		return SyntaxErrorf(ErrMismatchedClose, tok.Pos, "close of %s does not match open %s at line %d", tok.Directive, f.name, f.pos.Line)
	}
	if f.kind == frameFlag {
		if !f.bound {
			return SyntaxErrorf(ErrDanglingFlag, f.pos, "%s directive must be followed by an element", f.name)
		}
		b.pop()
		return nil
	}
	if n := len(f.open); n > 0 {
		return SyntaxErrorf(ErrMismatchedTag, tok.Pos, "<%s> is not closed before the end of %s", f.open[n-1].Local, f.name)
	}
	b.flush(f)
	b.pop()
	parent := b.container()
	switch f.kind {
	case frameInclude:
		parent.nodes = append(parent.nodes, f.include)
	case frameFallback:
		parent.include.Fallback = f.nodes
		parent.include.HasFallback = true
	default:
		f.dir.Children = f.nodes
		parent.nodes = append(parent.nodes, f.dir)
	}
	return nil
}

func (b *builder) finish() error {
	if len(b.stack) > 1 {
		f := b.top()
		if f.kind == frameElement {
			return SyntaxErrorf(ErrMismatchedTag, f.pos, "<%s> is never closed", f.elem.Name.Local)
		}
		return SyntaxErrorf(ErrUnclosedDirective, f.pos, "%s directive is never closed", f.name)
	}
	root := b.stack[0]
	if n := len(root.open); n > 0 {
		return SyntaxErrorf(ErrMismatchedTag, event.Pos{Filename: b.filename}, "<%s> is never closed", root.open[n-1].Local)
	}
	b.flush(root)
	b.tree.Nodes = root.nodes
	return nil
}
