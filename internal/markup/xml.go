package markup

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/weft/internal/event"
)

// ParseError reports malformed input markup.
type ParseError struct {
	Filename string
	Line     int
	Column   int
	Message  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos(), e.Message)
}

// Pos returns the error location.
func (e *ParseError) Pos() event.Pos {
	return event.Pos{Filename: e.Filename, Line: e.Line, Column: e.Column}
}

// IsParseError reports whether err is a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// xmlnsURI is the attribute space encoding/xml gives prefixed namespace
// declarations.
const xmlnsURI = "xmlns"

// ParseXML returns a lazy stream over the events of an XML document.
//
// Element and attribute names carry namespace URIs. Namespace
// declarations become StartNS events before the element that declares
// them and EndNS events after its end tag, and are removed from the
// attributes. HTML character entities such as &nbsp; are accepted. The
// XML declaration is dropped.
func ParseXML(r io.Reader, filename string) event.Stream {
	return func(yield func(event.Event, error) bool) {
		d := xml.NewDecoder(r)
		d.Strict = true
		d.Entity = xml.HTMLEntity

		var scopes [][]event.Event
		for {
			line, col := d.InputPos()
			pos := event.Pos{Filename: filename, Line: line, Column: col}
			tok, err := d.Token()
			if err == io.EOF {
				if len(scopes) > 0 {
					yield(event.Event{}, &ParseError{Filename: filename, Line: line, Column: col, Message: "unexpected end of input"})
				}
				return
			}
			if err != nil {
				yield(event.Event{}, xmlError(filename, d, err))
				return
			}

			switch t := tok.(type) {
			case xml.StartElement:
				attrs, decls := splitNamespaces(t.Attr, pos)
				for _, ns := range decls {
					if !yield(event.StartNSEvent(ns.Prefix, ns.URI, pos), nil) {
						return
					}
				}
				scopes = append(scopes, decls)
				if !yield(event.StartEvent(qname(t.Name), attrs, pos), nil) {
					return
				}
			case xml.EndElement:
				if !yield(event.EndEvent(qname(t.Name), pos), nil) {
					return
				}
				decls := scopes[len(scopes)-1]
				scopes = scopes[:len(scopes)-1]
				for i := len(decls) - 1; i >= 0; i-- {
					if !yield(event.EndNSEvent(decls[i].Prefix, decls[i].URI, pos), nil) {
						return
					}
				}
			case xml.CharData:
				if !yield(event.TextEvent(string(t), pos), nil) {
					return
				}
			case xml.Comment:
				if !yield(event.CommentEvent(string(t), pos), nil) {
					return
				}
			case xml.ProcInst:
				if t.Target == "xml" {
					continue
				}
				if !yield(event.PIEvent(t.Target, string(t.Inst), pos), nil) {
					return
				}
			case xml.Directive:
				decl, ok := parseDoctype(string(t))
				if !ok {
					continue
				}
				if !yield(event.DoctypeEvent(decl, pos), nil) {
					return
				}
			}
		}
	}
}

func xmlError(filename string, d *xml.Decoder, err error) error {
	line, col := d.InputPos()
	var se *xml.SyntaxError
	if errors.As(err, &se) {
		if se.Line != line {
			col = 0
		}
		return &ParseError{Filename: filename, Line: se.Line, Column: col, Message: se.Msg}
	}
	return &ParseError{Filename: filename, Line: line, Column: col, Message: err.Error()}
}

func qname(n xml.Name) event.QName {
	return event.QName{Space: n.Space, Local: n.Local}
}

// splitNamespaces separates namespace declarations from ordinary
// attributes, keeping source order for both.
func splitNamespaces(in []xml.Attr, pos event.Pos) (event.Attrs, []event.Event) {
	var attrs event.Attrs
	var decls []event.Event
	for _, a := range in {
		switch {
		case a.Name.Space == xmlnsURI:
			decls = append(decls, event.StartNSEvent(a.Name.Local, a.Value, pos))
		case a.Name.Space == "" && a.Name.Local == "xmlns":
			decls = append(decls, event.StartNSEvent("", a.Value, pos))
		default:
			attrs = append(attrs, event.Attr{Name: qname(a.Name), Value: a.Value})
		}
	}
	return attrs, decls
}

// parseDoctype reads the body of a <!DOCTYPE ...> declaration. It reports
// false for other declarations. Internal subsets are ignored.
func parseDoctype(s string) (event.DoctypeDecl, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 7 || !strings.EqualFold(s[:7], "DOCTYPE") {
		return event.DoctypeDecl{}, false
	}
	if i := strings.IndexByte(s, '['); i >= 0 {
		s = s[:i]
	}
	fields := doctypeFields(s[7:])
	if len(fields) == 0 {
		return event.DoctypeDecl{}, false
	}
	decl := event.DoctypeDecl{Name: fields[0]}
	switch {
	case len(fields) >= 3 && strings.EqualFold(fields[1], "PUBLIC"):
		decl.PublicID = fields[2]
		if len(fields) >= 4 {
			decl.SystemID = fields[3]
		}
	case len(fields) >= 3 && strings.EqualFold(fields[1], "SYSTEM"):
		decl.SystemID = fields[2]
	}
	return decl, true
}

// doctypeFields splits on whitespace, keeping quoted strings whole and
// unquoted.
func doctypeFields(s string) []string {
	var out []string
	for {
		s = strings.TrimLeft(s, " \t\r\n")
		if s == "" {
			return out
		}
		if q := s[0]; q == '"' || q == '\'' {
			end := strings.IndexByte(s[1:], q)
			if end < 0 {
				return append(out, s[1:])
			}
			out = append(out, s[1:end+1])
			s = s[end+2:]
			continue
		}
		end := strings.IndexAny(s, " \t\r\n")
		if end < 0 {
			return append(out, s)
		}
		out = append(out, s[:end])
		s = s[end:]
	}
}
