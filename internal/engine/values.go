package engine

import (
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/roach88/weft/internal/event"
	"github.com/roach88/weft/internal/expr"
	"github.com/roach88/weft/internal/markup"
)

// Fragment is a captured run of events: a macro's output, the element a
// match template matched, a selection, or parsed markup. Spliced into the
// output it contributes its events; in text contexts it stands for its
// text content.
type Fragment []event.Event

// Stream returns the fragment's events as a stream.
func (f Fragment) Stream() event.Stream {
	return event.FromSlice(f)
}

// Attr implements expr.Object for the first element of the fragment:
// name is its local name, tag its qualified name, attrs a mapping of its
// attributes and text the text content of the whole fragment.
func (f Fragment) Attr(name string) (any, bool) {
	var root *event.Event
	for i := range f {
		if f[i].Kind == event.Start {
			root = &f[i]
			break
		}
	}
	switch name {
	case "text":
		return f.String(), true
	case "name", "tag", "attrs":
		if root == nil {
			return nil, true
		}
	default:
		return nil, false
	}
	switch name {
	case "name":
		return root.Name.Local, true
	case "tag":
		return root.Name.String(), true
	}
	attrs := make(map[string]any, len(root.Attrs))
	for _, a := range root.Attrs {
		attrs[a.Name.String()] = a.Value
	}
	return attrs, true
}

// String returns the text content.
func (f Fragment) String() string {
	var b strings.Builder
	for _, ev := range f {
		if ev.Kind == event.Text {
			b.WriteString(ev.Data)
		}
	}
	return b.String()
}

// splice emits the value of an expression. Events, fragments and streams
// are spliced as markup and slices are flattened; any other value becomes
// a text event at pos. None, Undefined and the empty string emit nothing.
func splice(v any, pos event.Pos, out emitFunc) error {
	switch x := v.(type) {
	case nil, expr.Undefined:
		return nil
	case string:
		if x == "" {
			return nil
		}
		return out(event.TextEvent(x, pos))
	case event.Event:
		return out(x)
	case Fragment:
		return emitAll(x, out)
	case []event.Event:
		return emitAll(x, out)
	case event.Stream:
		for ev, err := range x {
			if err != nil {
				return err
			}
			if err := out(ev); err != nil {
				return err
			}
		}
		return nil
	case event.Attrs, []byte:
		return splice(expr.ToString(x), pos, out)
	case []any:
		for _, item := range x {
			if err := splice(item, pos, out); err != nil {
				return err
			}
		}
		return nil
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := range rv.Len() {
			if err := splice(rv.Index(i).Interface(), pos, out); err != nil {
				return err
			}
		}
		return nil
	}
	return splice(expr.ToString(v), pos, out)
}

// mergeAttrs applies the value of an attrs flag. The value may be
// event.Attrs, a mapping (applied in sorted key order) or a list of
// (name, value) pairs. Computed values win; a None value removes the
// attribute.
func mergeAttrs(attrs event.Attrs, v any) (event.Attrs, error) {
	switch x := v.(type) {
	case nil, expr.Undefined:
		return attrs, nil
	case event.Attrs:
		return attrs.Merge(x), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map {
		keys, err := expr.Iterate(v)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			attrs = setAttr(attrs, expr.ToString(k), rv.MapIndex(reflect.ValueOf(k)).Interface())
		}
		return attrs, nil
	}
	items, err := expr.Iterate(v)
	if err != nil {
		return nil, fmt.Errorf("want a mapping or a list of pairs, got %T", v)
	}
	for _, item := range items {
		pair, err := expr.Iterate(item)
		if err != nil || len(pair) != 2 {
			return nil, fmt.Errorf("want (name, value) pairs, got %v", item)
		}
		attrs = setAttr(attrs, expr.ToString(pair[0]), pair[1])
	}
	return attrs, nil
}

func setAttr(attrs event.Attrs, name string, v any) event.Attrs {
	qn := parseQName(name)
	switch v.(type) {
	case nil, expr.Undefined:
		return attrs.Delete(qn)
	}
	return attrs.Set(qn, expr.ToString(v))
}

// parseQName reads a plain local name or the {uri}local form.
func parseQName(s string) event.QName {
	if strings.HasPrefix(s, "{") {
		if uri, local, ok := strings.Cut(s[1:], "}"); ok {
			return event.QName{Space: uri, Local: local}
		}
	}
	return event.Name(s)
}

func defaultGlobals() map[string]any {
	return map[string]any{
		"HTML": parseFunc("HTML", markup.ParseHTML),
		"XML":  parseFunc("XML", markup.ParseXML),
	}
}

// parseFunc wraps a markup parser as a template function returning a
// Fragment.
func parseFunc(name string, parse func(io.Reader, string) event.Stream) expr.Func {
	return func(args []any, kwargs map[string]any) (any, error) {
		if len(args) != 1 || len(kwargs) != 0 {
			return nil, fmt.Errorf("%s() takes 1 argument, got %d", name, len(args)+len(kwargs))
		}
		events, err := event.Collect(parse(strings.NewReader(expr.ToString(args[0])), ""))
		if err != nil {
			return nil, err
		}
		return Fragment(events), nil
	}
}
