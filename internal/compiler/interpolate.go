package compiler

import (
	"strings"

	"github.com/roach88/weft/internal/event"
	"github.com/roach88/weft/internal/expr"
)

// Interpolate splits text into literal and expression parts.
//
//	${expr}        any expression; braces and quotes may nest
//	$name.attr     a dotted name
//	$$             a literal dollar sign
//
// A "$" followed by anything else is literal. pos is the location of the
// first character of text; expression positions are computed from it.
// Adjacent literal text is merged into one part.
func Interpolate(text string, pos event.Pos) ([]Part, error) {
	if !strings.Contains(text, "$") {
		return []Part{{Text: text}}, nil
	}
	var parts []Part
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, Part{Text: lit.String()})
			lit.Reset()
		}
	}
	i := 0
	for i < len(text) {
		c := text[i]
		if c != '$' || i+1 == len(text) {
			lit.WriteByte(c)
			i++
			continue
		}
		next := text[i+1]
		switch {
		case next == '$':
			lit.WriteByte('$')
			i += 2
		case next == '{':
			end, ok := closingBrace(text, i+2)
			if !ok {
				return nil, SyntaxErrorf(ErrInvalidExpression, advance(pos, text[:i]), "unterminated expression %q", text[i:])
			}
			src := text[i+2 : end]
			e, err := expr.Parse(src, advance(pos, text[:i+2]))
			if err != nil {
				return nil, wrapExprError(err, advance(pos, text[:i]))
			}
			flush()
			parts = append(parts, Part{Expr: e})
			i = end + 1
		case isNameStart(next):
			end := dottedName(text, i+1)
			src := text[i+1 : end]
			e, err := expr.Parse(src, advance(pos, text[:i+1]))
			if err != nil {
				return nil, wrapExprError(err, advance(pos, text[:i]))
			}
			flush()
			parts = append(parts, Part{Expr: e})
			i = end
		default:
			lit.WriteByte(c)
			i++
		}
	}
	flush()
	if len(parts) == 0 {
		parts = append(parts, Part{})
	}
	return parts, nil
}

// closingBrace finds the "}" that closes an expression starting at start,
// skipping nested braces and quoted strings.
func closingBrace(s string, start int) (int, bool) {
	depth := 0
	var quote byte
	for i := start; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return i, true
			}
			depth--
		}
	}
	return 0, false
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}

// dottedName returns the end of a name.name.name run starting at start.
// A trailing dot is not part of the name.
func dottedName(s string, start int) int {
	i := start
	for {
		for i < len(s) && isNameChar(s[i]) {
			i++
		}
		if i+1 < len(s) && s[i] == '.' && isNameStart(s[i+1]) {
			i++
			continue
		}
		return i
	}
}

// advance moves pos past text.
func advance(pos event.Pos, text string) event.Pos {
	if !pos.IsValid() {
		return pos
	}
	for _, r := range text {
		if r == '\n' {
			pos.Line++
			pos.Column = 1
		} else {
			pos.Column++
		}
	}
	return pos
}
