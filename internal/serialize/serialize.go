// Package serialize turns event streams into text.
//
// Output is produced incrementally: Serialize yields one chunk per event
// as the source stream advances, holding back only a start tag until it
// knows whether the element is empty. The method picks a Format, which
// decides how empty elements, boolean attributes and namespaces are
// written.
package serialize

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/weft/internal/event"
)

// DefaultMethod is used when Options.Method is empty.
const DefaultMethod = "xml"

// Options control serialization.
type Options struct {
	// Method names a format: xml, xhtml, html or text.
	Method string
	// Doctype names a well-known declaration (see LookupDoctype). When
	// set it is written first and Doctype events in the stream are dropped.
	Doctype string
	// Normalize applies Unicode NFC to text and attribute values.
	Normalize bool
	// StripWhitespace trims trailing spaces and collapses blank lines in
	// text outside whitespace-preserving elements.
	StripWhitespace bool
}

// SerializationError reports a stream that is not well formed.
type SerializationError struct {
	Message string
	Pos     event.Pos
}

func (e *SerializationError) Error() string {
	if e.Pos.IsValid() || e.Pos.Filename != "" {
		return fmt.Sprintf("%s: %s", e.Pos, e.Message)
	}
	return e.Message
}

// IsSerializationError reports whether err is a SerializationError.
func IsSerializationError(err error) bool {
	var se *SerializationError
	return errors.As(err, &se)
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&#34;", "'", "&#39;")
)

var errStopped = errors.New("serialize: stopped")

// Serialize returns the text of s as a sequence of chunks. Errors from the
// source stream are passed through unchanged; serialization stops at the
// first error.
func Serialize(s event.Stream, opts Options) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		w, err := newWriter(opts, yield)
		if err != nil {
			yield("", err)
			return
		}
		src := s
		if opts.StripWhitespace && !w.format.TextOnly {
			src = stripWhitespace(src)
		}
		for ev, err := range src {
			if err != nil {
				yield("", err)
				return
			}
			if err := w.event(ev); err != nil {
				if !errors.Is(err, errStopped) {
					yield("", err)
				}
				return
			}
		}
		if err := w.finish(); err != nil && !errors.Is(err, errStopped) {
			yield("", err)
		}
	}
}

// Render writes the serialization of s to out.
func Render(out io.Writer, s event.Stream, opts Options) error {
	for chunk, err := range Serialize(s, opts) {
		if err != nil {
			return err
		}
		if _, err := io.WriteString(out, chunk); err != nil {
			return err
		}
	}
	return nil
}

// String returns the serialization of s.
func String(s event.Stream, opts Options) (string, error) {
	var b strings.Builder
	if err := Render(&b, s, opts); err != nil {
		return "", err
	}
	return b.String(), nil
}

type openTag struct {
	name event.QName
	tag  string
}

type writer struct {
	format  *Format
	opts    Options
	yield   func(string, error) bool
	ns      *namespaces
	doctype string
	started bool

	open []openTag
	// pending is a start tag without its closing bracket, held until the
	// next event shows whether the element is empty.
	pending string
}

func newWriter(opts Options, yield func(string, error) bool) (*writer, error) {
	method := opts.Method
	if method == "" {
		method = DefaultMethod
	}
	f, ok := formats[method]
	if !ok {
		return nil, fmt.Errorf("serialize: unknown method %q", method)
	}
	w := &writer{format: f, opts: opts, yield: yield, ns: newNamespaces()}
	if opts.Doctype != "" {
		decl, ok := doctypes[opts.Doctype]
		if !ok {
			return nil, fmt.Errorf("serialize: unknown doctype %q", opts.Doctype)
		}
		w.doctype = FormatDoctype(decl)
	}
	return w, nil
}

func (w *writer) write(s string) error {
	if s == "" {
		return nil
	}
	if !w.yield(s, nil) {
		return errStopped
	}
	return nil
}

func (w *writer) flush() error {
	if w.pending == "" {
		return nil
	}
	s := w.pending + ">"
	w.pending = ""
	return w.write(s)
}

func (w *writer) normalize(s string) string {
	if w.opts.Normalize {
		return norm.NFC.String(s)
	}
	return s
}

func (w *writer) event(ev event.Event) error {
	if !w.started {
		w.started = true
		if w.doctype != "" && !w.format.TextOnly {
			if err := w.write(w.doctype); err != nil {
				return err
			}
		}
	}
	if w.format.TextOnly {
		return w.text(ev)
	}

	switch ev.Kind {
	case event.Start:
		if err := w.flush(); err != nil {
			return err
		}
		return w.start(ev)
	case event.End:
		return w.end(ev)
	case event.Text:
		if err := w.flush(); err != nil {
			return err
		}
		data := w.normalize(ev.Data)
		if len(w.open) == 0 || !w.format.isRaw(w.open[len(w.open)-1].name) {
			data = textEscaper.Replace(data)
		}
		return w.write(data)
	case event.Comment:
		if err := w.flush(); err != nil {
			return err
		}
		return w.write("<!--" + ev.Data + "-->")
	case event.PI:
		if err := w.flush(); err != nil {
			return err
		}
		pi := "<?" + ev.Target
		if ev.Data != "" {
			pi += " " + ev.Data
		}
		return w.write(pi + "?>")
	case event.Doctype:
		if w.doctype != "" {
			return nil
		}
		if err := w.flush(); err != nil {
			return err
		}
		return w.write(FormatDoctype(ev.Doctype))
	case event.StartNS:
		if w.format.Namespaces {
			w.ns.startNS(ev.Prefix, ev.URI)
		}
	case event.EndNS:
		if w.format.Namespaces {
			w.ns.endNS(ev.Prefix)
		}
	}
	return nil
}

// text handles the text method, which keeps only character data but
// still checks nesting.
func (w *writer) text(ev event.Event) error {
	switch ev.Kind {
	case event.Start:
		w.open = append(w.open, openTag{name: ev.Name})
	case event.End:
		if _, err := w.pop(ev); err != nil {
			return err
		}
	case event.Text:
		return w.write(w.normalize(ev.Data))
	}
	return nil
}

func (w *writer) start(ev event.Event) error {
	var b strings.Builder
	var tag string
	if w.format.Namespaces {
		t, decls, names := w.ns.start(ev.Name, ev.Attrs)
		tag = t
		b.WriteString("<" + tag)
		for _, d := range decls {
			if d.prefix == "" {
				b.WriteString(` xmlns="`)
			} else {
				b.WriteString(" xmlns:" + d.prefix + `="`)
			}
			b.WriteString(attrEscaper.Replace(d.uri))
			b.WriteByte('"')
		}
		for i, a := range ev.Attrs {
			w.attr(&b, names[i], a)
		}
	} else {
		tag = ev.Name.Local
		b.WriteString("<" + tag)
		for _, a := range ev.Attrs {
			name := a.Name.Local
			if a.Name.Space == xmlNamespace {
				name = "xml:" + name
			}
			w.attr(&b, name, a)
		}
	}
	w.open = append(w.open, openTag{name: ev.Name, tag: tag})

	if w.format.CollapseEmpty || (w.format.isVoid(ev.Name) && !w.format.OmitVoidEnd) {
		w.pending = b.String()
		return nil
	}
	b.WriteByte('>')
	return w.write(b.String())
}

func (w *writer) attr(b *strings.Builder, name string, a event.Attr) {
	if w.format.BooleanAttrs[name] && a.Name.Space == "" {
		if a.Value == "" {
			return
		}
		if w.format.MinimizeBoolean {
			b.WriteString(" " + name)
			return
		}
		b.WriteString(" " + name + `="` + name + `"`)
		return
	}
	b.WriteString(" " + name + `="`)
	b.WriteString(attrEscaper.Replace(w.normalize(a.Value)))
	b.WriteByte('"')
}

func (w *writer) end(ev event.Event) error {
	top, err := w.pop(ev)
	if err != nil {
		return err
	}
	if w.format.Namespaces {
		defer w.ns.end()
	}
	if w.pending != "" {
		s := w.pending + w.format.EmptyTag
		w.pending = ""
		return w.write(s)
	}
	if w.format.OmitVoidEnd && w.format.isVoid(top.name) {
		return nil
	}
	return w.write("</" + top.tag + ">")
}

func (w *writer) pop(ev event.Event) (openTag, error) {
	if len(w.open) == 0 {
		return openTag{}, &SerializationError{
			Message: fmt.Sprintf("end tag %s without a start tag", ev.Name),
			Pos:     ev.Pos,
		}
	}
	top := w.open[len(w.open)-1]
	if top.name != ev.Name {
		return openTag{}, &SerializationError{
			Message: fmt.Sprintf("end tag %s does not match start tag %s", ev.Name, top.name),
			Pos:     ev.Pos,
		}
	}
	w.open = w.open[:len(w.open)-1]
	return top, nil
}

func (w *writer) finish() error {
	if !w.started && w.doctype != "" && !w.format.TextOnly {
		return w.write(w.doctype)
	}
	return w.flush()
}
