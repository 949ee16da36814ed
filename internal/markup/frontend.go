package markup

import (
	"errors"
	"io"
	"iter"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/weft/internal/compiler"
	"github.com/roach88/weft/internal/event"
)

// Namespace URIs recognized by the front end.
const (
	Namespace       = "https://weft.dev/ns/template"
	GenshiNamespace = "http://genshi.edgewall.org/"
	XIncludeURI     = "http://www.w3.org/2001/XInclude"
)

// Prefixes that name the directive and XInclude namespaces when used
// without a declaration.
const (
	directivePrefix = "py"
	includePrefix   = "xi"
)

// Frontend is the XML template dialect.
type Frontend struct{}

// Name implements compiler.Frontend.
func (Frontend) Name() string { return "markup" }

// Tokens implements compiler.Frontend.
//
// A directive attribute opens its directive just before the element's
// Start and closes it just after the End. Several directives on one
// element open in vocabulary order, so lower orders wrap higher ones.
// A directive element opens at its start tag and closes at its end tag;
// the tags themselves are not emitted.
func (Frontend) Tokens(r io.Reader, filename string, vocab *compiler.Vocabulary) iter.Seq2[compiler.Token, error] {
	return func(yield func(compiler.Token, error) bool) {
		t := &tokenizer{vocab: vocab, yield: yield, ns: map[string]string{}}
		for ev, err := range ParseXML(r, filename) {
			if err != nil {
				var pe *ParseError
				if errors.As(err, &pe) {
					err = compiler.SyntaxErrorf(compiler.ErrMalformedSource, pe.Pos(), "%s", pe.Message)
				}
				yield(compiler.Token{}, err)
				return
			}
			if err := t.event(ev); err != nil {
				if !errors.Is(err, errStopped) {
					yield(compiler.Token{}, err)
				}
				return
			}
		}
	}
}

var errStopped = errors.New("consumer stopped")

type openElement struct {
	// closes lists the directives to close after the element, innermost
	// first.
	closes []string
	// directive is set when the element itself is a directive, so its
	// tags are not emitted.
	directive bool
}

type nsBinding struct {
	prefix string
	prev   string
	had    bool
}

type tokenizer struct {
	vocab *compiler.Vocabulary
	yield func(compiler.Token, error) bool

	stack []openElement
	// skip counts open elements inside an element-form replace, whose
	// body is discarded.
	skip int

	ns      map[string]string
	nsStack []nsBinding
}

func (t *tokenizer) emit(tok compiler.Token) error {
	if !t.yield(tok, nil) {
		return errStopped
	}
	return nil
}

func (t *tokenizer) passthrough(ev event.Event) error {
	return t.emit(compiler.Token{Kind: compiler.TokenEvent, Event: ev, Pos: ev.Pos})
}

func (t *tokenizer) event(ev event.Event) error {
	if t.skip > 0 {
		switch ev.Kind {
		case event.Start:
			t.skip++
		case event.End:
			t.skip--
			if t.skip == 0 {
				return t.end(ev)
			}
		}
		return nil
	}
	switch ev.Kind {
	case event.Start:
		return t.start(ev)
	case event.End:
		return t.end(ev)
	case event.Text:
		return t.text(ev)
	case event.Comment:
		if strings.HasPrefix(strings.TrimSpace(ev.Data), "!") {
			return nil
		}
		return t.passthrough(ev)
	case event.StartNS:
		t.nsStack = append(t.nsStack, t.bind(ev.Prefix, ev.URI))
		if isDirectiveURI(ev.URI) || ev.URI == XIncludeURI {
			return nil
		}
		return t.passthrough(ev)
	case event.EndNS:
		b := t.nsStack[len(t.nsStack)-1]
		t.nsStack = t.nsStack[:len(t.nsStack)-1]
		if b.had {
			t.ns[b.prefix] = b.prev
		} else {
			delete(t.ns, b.prefix)
		}
		if isDirectiveURI(ev.URI) || ev.URI == XIncludeURI {
			return nil
		}
		return t.passthrough(ev)
	default:
		return t.passthrough(ev)
	}
}

func (t *tokenizer) bind(prefix, uri string) nsBinding {
	prev, had := t.ns[prefix]
	t.ns[prefix] = uri
	return nsBinding{prefix: prefix, prev: prev, had: had}
}

func isDirectiveURI(space string) bool {
	return space == Namespace || space == GenshiNamespace
}

func isDirectiveSpace(space string) bool {
	return isDirectiveURI(space) || space == directivePrefix
}

func isIncludeSpace(space string) bool {
	return space == XIncludeURI || space == includePrefix
}

// text splits interpolated text into literal text and expression tokens.
func (t *tokenizer) text(ev event.Event) error {
	parts, err := compiler.Interpolate(ev.Data, ev.Pos)
	if err != nil {
		return err
	}
	for _, p := range parts {
		var tok compiler.Token
		switch {
		case p.Expr != nil:
			tok = compiler.Token{Kind: compiler.TokenExpr, Expr: p.Expr.Source(), Pos: p.Expr.Pos()}
		case p.Text != "":
			tok = compiler.Token{Kind: compiler.TokenEvent, Event: event.TextEvent(p.Text, ev.Pos), Pos: ev.Pos}
		default:
			continue
		}
		if err := t.emit(tok); err != nil {
			return err
		}
	}
	return nil
}

// attrDirective is a directive attribute found on an element.
type attrDirective struct {
	spec compiler.DirectiveSpec
	arg  string
}

func (t *tokenizer) start(ev event.Event) error {
	directives, hints, attrs, err := t.splitAttrs(ev)
	if err != nil {
		return err
	}

	var elemSpec *compiler.DirectiveSpec
	var elemArgs map[string]string
	if isDirectiveSpace(ev.Name.Space) || isIncludeSpace(ev.Name.Space) {
		spec, args, err := t.elementDirective(ev, attrs)
		if err != nil {
			return err
		}
		elemSpec, elemArgs = &spec, args
		attrs = nil
	}

	slices.SortStableFunc(directives, func(a, b attrDirective) int {
		return a.spec.Order - b.spec.Order
	})
	open := openElement{directive: elemSpec != nil}
	for _, d := range directives {
		args := map[string]string{"": d.arg}
		for _, h := range d.spec.Hints {
			if v, ok := hints[h]; ok {
				args[h] = v
			}
		}
		if err := t.open(d.spec, args, ev.Pos); err != nil {
			return err
		}
		open.closes = append([]string{d.spec.Name}, open.closes...)
	}

	if elemSpec == nil {
		t.stack = append(t.stack, open)
		ev.Attrs = attrs
		return t.passthrough(ev)
	}

	if elemSpec.Kind == compiler.KindReplace {
		if strings.TrimSpace(elemArgs[""]) == "" {
			return compiler.SyntaxErrorf(compiler.ErrMissingArgument, ev.Pos, "replace directive requires a value")
		}
		t.stack = append(t.stack, open)
		t.skip = 1
		return t.emit(compiler.Token{Kind: compiler.TokenExpr, Expr: elemArgs[""], Pos: ev.Pos})
	}
	if err := t.open(*elemSpec, elemArgs, ev.Pos); err != nil {
		return err
	}
	open.closes = append([]string{elemSpec.Name}, open.closes...)
	t.stack = append(t.stack, open)
	return nil
}

// splitAttrs separates directive attributes and their hints from the
// attributes that are output.
func (t *tokenizer) splitAttrs(ev event.Event) ([]attrDirective, map[string]string, event.Attrs, error) {
	var directives []attrDirective
	var hints map[string]string
	var attrs event.Attrs
	for _, a := range ev.Attrs {
		if !isDirectiveSpace(a.Name.Space) {
			attrs = append(attrs, a)
			continue
		}
		spec, ok := t.vocab.Lookup(a.Name.Local)
		switch {
		case ok && spec.AttributeForm:
			directives = append(directives, attrDirective{spec: spec, arg: a.Value})
		case ok:
			return nil, nil, nil, compiler.SyntaxErrorf(compiler.ErrUnknownDirective, ev.Pos, "%s directive cannot be used as an attribute", a.Name.Local)
		case t.vocab.IsHint(a.Name.Local):
			if hints == nil {
				hints = make(map[string]string)
			}
			hints[a.Name.Local] = a.Value
		default:
			return nil, nil, nil, compiler.SyntaxErrorf(compiler.ErrUnknownDirective, ev.Pos, "unknown directive %q", a.Name.Local)
		}
	}
	for h := range hints {
		used := false
		for _, d := range directives {
			used = used || slices.Contains(d.spec.Hints, h)
		}
		if !used {
			return nil, nil, nil, compiler.SyntaxErrorf(compiler.ErrUnexpectedParam, ev.Pos, "%s has no directive to apply to", h)
		}
	}
	return directives, hints, attrs, nil
}

// elementDirective resolves a directive element and its parameters.
func (t *tokenizer) elementDirective(ev event.Event, attrs event.Attrs) (compiler.DirectiveSpec, map[string]string, error) {
	local := ev.Name.Local
	if isIncludeSpace(ev.Name.Space) && local != "include" && local != "fallback" {
		return compiler.DirectiveSpec{}, nil, compiler.SyntaxErrorf(compiler.ErrUnknownDirective, ev.Pos, "unknown XInclude element %q", local)
	}
	spec, ok := t.vocab.Lookup(local)
	if !ok {
		return spec, nil, compiler.SyntaxErrorf(compiler.ErrUnknownDirective, ev.Pos, "unknown directive %q", local)
	}
	if !spec.ElementForm {
		return spec, nil, compiler.SyntaxErrorf(compiler.ErrUnknownDirective, ev.Pos, "%s directive cannot be used as an element", local)
	}
	args := map[string]string{}
	for _, a := range attrs {
		switch {
		case a.Name.Space != "":
			return spec, nil, compiler.SyntaxErrorf(compiler.ErrUnexpectedParam, ev.Pos, "unexpected attribute %s on %s", a.Name, local)
		case spec.ElementAttr != "" && a.Name.Local == spec.ElementAttr:
			args[""] = a.Value
		case slices.Contains(spec.Hints, a.Name.Local):
			args[a.Name.Local] = a.Value
		default:
			return spec, nil, compiler.SyntaxErrorf(compiler.ErrUnexpectedParam, ev.Pos, "unexpected attribute %q on %s", a.Name.Local, local)
		}
	}
	return spec, args, nil
}

func (t *tokenizer) open(spec compiler.DirectiveSpec, args map[string]string, pos event.Pos) error {
	tok := compiler.Token{Kind: compiler.TokenOpen, Directive: spec.Name, Args: args, Pos: pos}
	if spec.Kind == compiler.KindMatch {
		tok.Namespaces = maps.Clone(t.ns)
	}
	return t.emit(tok)
}

func (t *tokenizer) end(ev event.Event) error {
	open := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]
	if !open.directive {
		if err := t.passthrough(ev); err != nil {
			return err
		}
	}
	for _, name := range open.closes {
		if err := t.emit(compiler.Token{Kind: compiler.TokenClose, Directive: name, Pos: ev.Pos}); err != nil {
			return err
		}
	}
	return nil
}
