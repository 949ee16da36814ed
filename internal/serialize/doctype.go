package serialize

import (
	"strings"

	"github.com/roach88/weft/internal/event"
)

// doctypes are the well-known document type declarations by name.
var doctypes = map[string]event.DoctypeDecl{
	"html":              {Name: "html", PublicID: "-//W3C//DTD HTML 4.01//EN", SystemID: "http://www.w3.org/TR/html4/strict.dtd"},
	"html-strict":       {Name: "html", PublicID: "-//W3C//DTD HTML 4.01//EN", SystemID: "http://www.w3.org/TR/html4/strict.dtd"},
	"html-transitional": {Name: "html", PublicID: "-//W3C//DTD HTML 4.01 Transitional//EN", SystemID: "http://www.w3.org/TR/html4/loose.dtd"},
	"html-frameset":     {Name: "html", PublicID: "-//W3C//DTD HTML 4.01 Frameset//EN", SystemID: "http://www.w3.org/TR/html4/frameset.dtd"},
	"html5":             {Name: "html"},

	"xhtml":              {Name: "html", PublicID: "-//W3C//DTD XHTML 1.0 Strict//EN", SystemID: "http://www.w3.org/TR/xhtml1/DTD/xhtml1-strict.dtd"},
	"xhtml-strict":       {Name: "html", PublicID: "-//W3C//DTD XHTML 1.0 Strict//EN", SystemID: "http://www.w3.org/TR/xhtml1/DTD/xhtml1-strict.dtd"},
	"xhtml-transitional": {Name: "html", PublicID: "-//W3C//DTD XHTML 1.0 Transitional//EN", SystemID: "http://www.w3.org/TR/xhtml1/DTD/xhtml1-transitional.dtd"},
	"xhtml-frameset":     {Name: "html", PublicID: "-//W3C//DTD XHTML 1.0 Frameset//EN", SystemID: "http://www.w3.org/TR/xhtml1/DTD/xhtml1-frameset.dtd"},
	"xhtml11":            {Name: "html", PublicID: "-//W3C//DTD XHTML 1.1//EN", SystemID: "http://www.w3.org/TR/xhtml11/DTD/xhtml11.dtd"},

	"svg":       {Name: "svg", PublicID: "-//W3C//DTD SVG 1.1//EN", SystemID: "http://www.w3.org/Graphics/SVG/1.1/DTD/svg11.dtd"},
	"svg-full":  {Name: "svg", PublicID: "-//W3C//DTD SVG 1.1//EN", SystemID: "http://www.w3.org/Graphics/SVG/1.1/DTD/svg11.dtd"},
	"svg-basic": {Name: "svg", PublicID: "-//W3C//DTD SVG Basic 1.1//EN", SystemID: "http://www.w3.org/Graphics/SVG/1.1/DTD/svg11-basic.dtd"},
	"svg-tiny":  {Name: "svg", PublicID: "-//W3C//DTD SVG Tiny 1.1//EN", SystemID: "http://www.w3.org/Graphics/SVG/1.1/DTD/svg11-tiny.dtd"},
}

// LookupDoctype returns the named well-known declaration.
func LookupDoctype(name string) (event.DoctypeDecl, bool) {
	d, ok := doctypes[name]
	return d, ok
}

// FormatDoctype renders a declaration followed by a newline.
func FormatDoctype(d event.DoctypeDecl) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE ")
	b.WriteString(d.Name)
	switch {
	case d.PublicID != "":
		b.WriteString(` PUBLIC "`)
		b.WriteString(d.PublicID)
		b.WriteByte('"')
		if d.SystemID != "" {
			b.WriteString(` "`)
			b.WriteString(d.SystemID)
			b.WriteByte('"')
		}
	case d.SystemID != "":
		b.WriteString(` SYSTEM "`)
		b.WriteString(d.SystemID)
		b.WriteByte('"')
	}
	b.WriteString(">\n")
	return b.String()
}
