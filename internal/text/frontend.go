// Package text provides the line-based text template front end.
//
//	Dear ${name},
//	{% for item in items %}
//	  * ${item.title}{% if item.urgent %} (urgent){% end %}
//	{% end %}
//	{# signature follows #}
//	{% call signature() %}
//
// Directives are written {% name parameter %}. Block directives (for, if,
// choose, when, otherwise, with, def) run until the matching {% end %};
// call and include stand alone. {# ... #} is a comment. A line holding
// nothing but one directive or comment is removed together with its line
// break. A backslash before {% or {# makes it literal.
package text

import (
	"errors"
	"io"
	"iter"
	"strings"

	"github.com/roach88/weft/internal/compiler"
	"github.com/roach88/weft/internal/event"
)

// Frontend is the text template dialect.
type Frontend struct{}

// Name implements compiler.Frontend.
func (Frontend) Name() string { return "text" }

// Tokens implements compiler.Frontend.
func (Frontend) Tokens(r io.Reader, filename string, vocab *compiler.Vocabulary) iter.Seq2[compiler.Token, error] {
	return func(yield func(compiler.Token, error) bool) {
		data, err := io.ReadAll(r)
		if err != nil {
			yield(compiler.Token{}, err)
			return
		}
		s := &scanner{
			src:   string(data),
			vocab: vocab,
			yield: yield,
			pos:   event.Pos{Filename: filename, Line: 1, Column: 1},
		}
		if err := s.run(); err != nil && !errors.Is(err, errStopped) {
			yield(compiler.Token{}, err)
		}
	}
}

var errStopped = errors.New("consumer stopped")

// blockKinds are the directives that take a body closed by {% end %}.
var blockKinds = map[compiler.Kind]bool{
	compiler.KindFor:       true,
	compiler.KindIf:        true,
	compiler.KindChoose:    true,
	compiler.KindWhen:      true,
	compiler.KindOtherwise: true,
	compiler.KindWith:      true,
	compiler.KindDef:       true,
}

// standaloneKinds are the directives without a body.
var standaloneKinds = map[compiler.Kind]bool{
	compiler.KindCall:    true,
	compiler.KindInclude: true,
}

type openBlock struct {
	name string
	pos  event.Pos
}

type scanner struct {
	src   string
	vocab *compiler.Vocabulary
	yield func(compiler.Token, error) bool

	// i is the scan offset and pos its location.
	i   int
	pos event.Pos

	buf    []byte
	bufPos event.Pos

	open []openBlock
}

func (s *scanner) emit(tok compiler.Token) error {
	if !s.yield(tok, nil) {
		return errStopped
	}
	return nil
}

// move advances the scan offset to j.
func (s *scanner) move(j int) {
	for _, r := range s.src[s.i:j] {
		if r == '\n' {
			s.pos.Line++
			s.pos.Column = 1
		} else {
			s.pos.Column++
		}
	}
	s.i = j
}

// appendText buffers literal text from the scan offset up to j.
func (s *scanner) appendText(j int) {
	if len(s.buf) == 0 {
		s.bufPos = s.pos
	}
	s.buf = append(s.buf, s.src[s.i:j]...)
	s.move(j)
}

func (s *scanner) appendLiteral(lit string, j int) {
	if len(s.buf) == 0 {
		s.bufPos = s.pos
	}
	s.buf = append(s.buf, lit...)
	s.move(j)
}

func (s *scanner) flush() error {
	if len(s.buf) == 0 {
		return nil
	}
	text := string(s.buf)
	s.buf = s.buf[:0]
	parts, err := compiler.Interpolate(text, s.bufPos)
	if err != nil {
		return err
	}
	for _, p := range parts {
		var tok compiler.Token
		switch {
		case p.Expr != nil:
			tok = compiler.Token{Kind: compiler.TokenExpr, Expr: p.Expr.Source(), Pos: p.Expr.Pos()}
		case p.Text != "":
			tok = compiler.Token{Kind: compiler.TokenEvent, Event: event.TextEvent(p.Text, s.bufPos), Pos: s.bufPos}
		default:
			continue
		}
		if err := s.emit(tok); err != nil {
			return err
		}
	}
	return nil
}

func (s *scanner) run() error {
	for s.i < len(s.src) {
		j := nextTag(s.src, s.i)
		if j < 0 {
			s.appendText(len(s.src))
			break
		}
		if j > 0 && s.src[j-1] == '\\' {
			s.appendText(j - 1)
			s.move(j)
			s.appendLiteral(s.src[j:j+2], j+2)
			continue
		}

		closer := "%}"
		if s.src[j+1] == '#' {
			closer = "#}"
		}
		end := strings.Index(s.src[j+2:], closer)
		if end < 0 {
			s.appendText(j)
			return compiler.SyntaxErrorf(compiler.ErrMalformedSource, s.pos, "unterminated %s", s.src[j:j+2])
		}
		end += j + 2 + len(closer)
		body := s.src[j+2 : end-len(closer)]

		textEnd, after := j, end
		if lineStart := strings.LastIndexByte(s.src[:j], '\n') + 1; lineStart >= s.i && standalone(s.src, lineStart, j, end) {
			textEnd, after = lineStart, lineEnd(s.src, end)
		}
		s.appendText(textEnd)
		if err := s.flush(); err != nil {
			return err
		}
		s.move(j)
		tagPos := s.pos
		s.move(after)

		if closer == "#}" {
			continue
		}
		if err := s.directive(strings.TrimSpace(body), tagPos); err != nil {
			return err
		}
	}
	if err := s.flush(); err != nil {
		return err
	}
	if n := len(s.open); n > 0 {
		return compiler.SyntaxErrorf(compiler.ErrUnclosedDirective, s.open[n-1].pos, "%s directive is never closed; add {%% end %%}", s.open[n-1].name)
	}
	return nil
}

// nextTag returns the offset of the next "{%" or "{#" at or after i.
func nextTag(src string, i int) int {
	for {
		k := strings.IndexByte(src[i:], '{')
		if k < 0 || i+k+1 >= len(src) {
			return -1
		}
		j := i + k
		if c := src[j+1]; c == '%' || c == '#' {
			return j
		}
		i = j + 1
	}
}

// standalone reports whether the tag at [j, end) is alone on its line.
func standalone(src string, lineStart, j, end int) bool {
	if strings.TrimLeft(src[lineStart:j], " \t") != "" {
		return false
	}
	rest := src[end:]
	if k := strings.IndexByte(rest, '\n'); k >= 0 {
		rest = rest[:k]
	}
	return strings.TrimRight(rest, " \t\r") == ""
}

// lineEnd returns the offset just past the line break that ends the line
// containing i, or the end of src.
func lineEnd(src string, i int) int {
	if k := strings.IndexByte(src[i:], '\n'); k >= 0 {
		return i + k + 1
	}
	return len(src)
}

func (s *scanner) directive(body string, pos event.Pos) error {
	name, arg := body, ""
	if k := strings.IndexAny(body, " \t\r\n"); k >= 0 {
		name, arg = body[:k], strings.TrimSpace(body[k:])
	}
	if name == "end" {
		n := len(s.open)
		if n == 0 {
			return compiler.SyntaxErrorf(compiler.ErrMismatchedClose, pos, "{%% end %%} without an open directive")
		}
		block := s.open[n-1]
		s.open = s.open[:n-1]
		return s.emit(compiler.Token{Kind: compiler.TokenClose, Directive: block.name, Pos: pos})
	}

	spec, ok := s.vocab.Lookup(name)
	if !ok {
		return compiler.SyntaxErrorf(compiler.ErrUnknownDirective, pos, "unknown directive %q", name)
	}
	block := blockKinds[spec.Kind]
	if !block && !standaloneKinds[spec.Kind] {
		return compiler.SyntaxErrorf(compiler.ErrUnknownDirective, pos, "%s directive is not available in text templates", name)
	}
	tok := compiler.Token{Kind: compiler.TokenOpen, Directive: spec.Name, Args: map[string]string{"": arg}, Pos: pos}
	if err := s.emit(tok); err != nil {
		return err
	}
	if block {
		s.open = append(s.open, openBlock{name: spec.Name, pos: pos})
		return nil
	}
	return s.emit(compiler.Token{Kind: compiler.TokenClose, Directive: spec.Name, Pos: pos})
}
