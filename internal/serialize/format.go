package serialize

import (
	"maps"
	"strings"

	"github.com/roach88/weft/internal/event"
)

// XHTMLNamespace is the namespace of XHTML elements. The html and xhtml
// formats treat elements in it like unqualified ones.
const XHTMLNamespace = "http://www.w3.org/1999/xhtml"

// Format is the table of output rules for one serialization method.
type Format struct {
	Name string

	// TextOnly writes the data of Text events and nothing else.
	TextOnly bool

	// CollapseEmpty writes every element without content in short form.
	// Otherwise only VoidElements are.
	CollapseEmpty bool
	// EmptyTag closes a short-form element.
	EmptyTag string
	// VoidElements never have content. With OmitVoidEnd their end tag is
	// dropped instead of written in short form.
	VoidElements map[string]bool
	OmitVoidEnd  bool

	// BooleanAttrs are written as name="name" when set, or as a bare name
	// with MinimizeBoolean. An empty value drops the attribute.
	BooleanAttrs    map[string]bool
	MinimizeBoolean bool

	// RawText elements have their text written unescaped.
	RawText map[string]bool

	// Namespaces writes namespace declarations and prefixed names. When
	// false, names are written by local name only.
	Namespaces bool
}

var voidElements = map[string]bool{
	"area": true, "base": true, "basefont": true, "br": true, "col": true,
	"embed": true, "frame": true, "hr": true, "img": true, "input": true,
	"isindex": true, "keygen": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

var booleanAttrs = map[string]bool{
	"async": true, "autofocus": true, "autoplay": true, "checked": true,
	"compact": true, "controls": true, "declare": true, "default": true,
	"defer": true, "disabled": true, "formnovalidate": true, "hidden": true,
	"inert": true, "ismap": true, "itemscope": true, "loop": true,
	"multiple": true, "muted": true, "nohref": true, "noresize": true,
	"noshade": true, "novalidate": true, "nowrap": true, "open": true,
	"readonly": true, "required": true, "reversed": true, "selected": true,
}

// formats are the serialization methods by name. The table is read-only;
// callers get copies through LookupFormat.
var formats = map[string]*Format{
	"xml": {
		Name:          "xml",
		CollapseEmpty: true,
		EmptyTag:      "/>",
		Namespaces:    true,
	},
	"xhtml": {
		Name:         "xhtml",
		EmptyTag:     " />",
		VoidElements: voidElements,
		BooleanAttrs: booleanAttrs,
		Namespaces:   true,
	},
	"html": {
		Name:            "html",
		VoidElements:    voidElements,
		OmitVoidEnd:     true,
		BooleanAttrs:    booleanAttrs,
		MinimizeBoolean: true,
		RawText:         map[string]bool{"script": true, "style": true},
	},
	"text": {
		Name:     "text",
		TextOnly: true,
	},
}

// LookupFormat returns a copy of the named method's table.
func LookupFormat(name string) (Format, bool) {
	f, ok := formats[name]
	if !ok {
		return Format{}, false
	}
	c := *f
	c.VoidElements = maps.Clone(f.VoidElements)
	c.BooleanAttrs = maps.Clone(f.BooleanAttrs)
	c.RawText = maps.Clone(f.RawText)
	return c, true
}

// htmlName returns the lowercase local name of an element the HTML tables
// apply to, or "" for elements in other namespaces.
func htmlName(q event.QName) string {
	if q.Space != "" && q.Space != XHTMLNamespace {
		return ""
	}
	return strings.ToLower(q.Local)
}

func (f *Format) isVoid(q event.QName) bool {
	return f.VoidElements[htmlName(q)]
}

func (f *Format) isRaw(q event.QName) bool {
	return f.RawText[htmlName(q)]
}
