package markup

import (
	"errors"
	"io"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/roach88/weft/internal/event"
)

// voidElements never have content; the parser closes them immediately.
var voidElements = map[atom.Atom]bool{
	atom.Area:   true,
	atom.Base:   true,
	atom.Br:     true,
	atom.Col:    true,
	atom.Embed:  true,
	atom.Hr:     true,
	atom.Img:    true,
	atom.Input:  true,
	atom.Keygen: true,
	atom.Link:   true,
	atom.Meta:   true,
	atom.Param:  true,
	atom.Source: true,
	atom.Track:  true,
	atom.Wbr:    true,
}

// ParseHTML returns a lazy stream over the events of an HTML document or
// fragment.
//
// Unlike a full HTML5 tree builder it does not insert html, head or body
// elements. It does keep the stream well-formed: void elements get an End
// event right after their Start, an end tag closes any elements still open
// inside it, stray end tags are dropped, and elements open at end of input
// are closed.
func ParseHTML(r io.Reader, filename string) event.Stream {
	return func(yield func(event.Event, error) bool) {
		z := html.NewTokenizer(r)
		pos := event.Pos{Filename: filename, Line: 1, Column: 1}
		var open []event.QName

		closeTo := func(depth int, at event.Pos) bool {
			for len(open) > depth {
				name := open[len(open)-1]
				open = open[:len(open)-1]
				if !yield(event.EndEvent(name, at), nil) {
					return false
				}
			}
			return true
		}

		for {
			tt := z.Next()
			at := pos
			pos = advancePos(pos, z.Raw())

			switch tt {
			case html.ErrorToken:
				if err := z.Err(); !errors.Is(err, io.EOF) {
					yield(event.Event{}, &ParseError{Filename: filename, Line: at.Line, Column: at.Column, Message: err.Error()})
					return
				}
				closeTo(0, at)
				return
			case html.TextToken:
				if !yield(event.TextEvent(string(z.Text()), at), nil) {
					return
				}
			case html.StartTagToken, html.SelfClosingTagToken:
				tok := z.Token()
				name := event.Name(tok.Data)
				var attrs event.Attrs
				for _, a := range tok.Attr {
					attrs = attrs.Set(event.QName{Space: a.Namespace, Local: a.Key}, a.Val)
				}
				if !yield(event.StartEvent(name, attrs, at), nil) {
					return
				}
				if tt == html.SelfClosingTagToken || voidElements[tok.DataAtom] {
					if !yield(event.EndEvent(name, at), nil) {
						return
					}
					continue
				}
				open = append(open, name)
			case html.EndTagToken:
				tok := z.Token()
				name := event.Name(tok.Data)
				for i := len(open) - 1; i >= 0; i-- {
					if open[i] == name {
						if !closeTo(i, at) {
							return
						}
						break
					}
				}
			case html.CommentToken:
				if !yield(event.CommentEvent(string(z.Text()), at), nil) {
					return
				}
			case html.DoctypeToken:
				decl, ok := parseDoctype("DOCTYPE " + string(z.Text()))
				if !ok {
					continue
				}
				if !yield(event.DoctypeEvent(decl, at), nil) {
					return
				}
			}
		}
	}
}

// advancePos moves pos past raw source bytes.
func advancePos(pos event.Pos, raw []byte) event.Pos {
	for _, c := range raw {
		switch {
		case c == '\n':
			pos.Line++
			pos.Column = 1
		case c&0xC0 != 0x80:
			pos.Column++
		}
	}
	return pos
}
