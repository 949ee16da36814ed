package markup

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/weft/internal/compiler"
	"github.com/roach88/weft/internal/event"
)

func collect(t *testing.T, s event.Stream) []string {
	t.Helper()
	events, err := event.Collect(s)
	require.NoError(t, err)
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.String()
	}
	return out
}

func TestParseXML(t *testing.T) {
	src := `<?xml version="1.0"?>
<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Strict//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-strict.dtd">
<html xmlns="http://www.w3.org/1999/xhtml" lang="en"><!-- c --><p class="a" id='b'>x&nbsp;&amp;y</p><?php echo 1 ?></html>`

	got := collect(t, ParseXML(strings.NewReader(src), "t.xml"))
	assert.Equal(t, []string{
		`TEXT "\n"`,
		"DOCTYPE html",
		`TEXT "\n"`,
		"START_NS =http://www.w3.org/1999/xhtml",
		`START {http://www.w3.org/1999/xhtml}html [lang="en"]`,
		`COMMENT " c "`,
		`START {http://www.w3.org/1999/xhtml}p [class="a" id="b"]`,
		`TEXT "x\u00a0&y"`,
		"END {http://www.w3.org/1999/xhtml}p",
		`PI php "echo 1 "`,
		"END {http://www.w3.org/1999/xhtml}html",
		"END_NS =http://www.w3.org/1999/xhtml",
	}, got)
}

func TestParseXMLDoctypeIDs(t *testing.T) {
	events, err := event.Collect(ParseXML(strings.NewReader(`<!DOCTYPE svg PUBLIC "-//W3C//DTD SVG 1.1//EN" "http://www.w3.org/Graphics/SVG/1.1/DTD/svg11.dtd"><svg/>`), ""))
	require.NoError(t, err)
	require.Equal(t, event.Doctype, events[0].Kind)
	assert.Equal(t, event.DoctypeDecl{
		Name:     "svg",
		PublicID: "-//W3C//DTD SVG 1.1//EN",
		SystemID: "http://www.w3.org/Graphics/SVG/1.1/DTD/svg11.dtd",
	}, events[0].Doctype)
}

func TestParseXMLPositions(t *testing.T) {
	events, err := event.Collect(ParseXML(strings.NewReader("<a>\n  <b/>\n</a>"), "t.xml"))
	require.NoError(t, err)
	var b event.Event
	for _, ev := range events {
		if ev.Kind == event.Start && ev.Name.Local == "b" {
			b = ev
		}
	}
	assert.Equal(t, "t.xml", b.Pos.Filename)
	assert.Equal(t, 2, b.Pos.Line)
	assert.Equal(t, 3, b.Pos.Column)
}

func TestParseXMLErrors(t *testing.T) {
	for _, src := range []string{"<a><b></a>", "<a>", "<a x=1/>"} {
		t.Run(src, func(t *testing.T) {
			_, err := event.Collect(ParseXML(strings.NewReader(src), "bad.xml"))
			require.Error(t, err)
			assert.True(t, IsParseError(err), "%T: %v", err, err)
			assert.Contains(t, err.Error(), "bad.xml:1")
		})
	}
}

func TestParseXMLEarlyStop(t *testing.T) {
	events, err := event.Take(ParseXML(strings.NewReader("<a><b/><c/></a>"), ""), 2)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestParseHTML(t *testing.T) {
	src := `<!DOCTYPE html><ul><li>one<li>two<br>three</ul></b><img src="x.png"/><p>open`

	got := collect(t, ParseHTML(strings.NewReader(src), "t.html"))
	assert.Equal(t, []string{
		"DOCTYPE html",
		"START ul []",
		"START li []",
		`TEXT "one"`,
		"START li []",
		`TEXT "two"`,
		"START br []",
		"END br",
		`TEXT "three"`,
		"END li",
		"END li",
		"END ul",
		`START img [src="x.png"]`,
		"END img",
		"START p []",
		`TEXT "open"`,
		"END p",
	}, got)
}

func TestParseHTMLRawText(t *testing.T) {
	got := collect(t, ParseHTML(strings.NewReader(`<script>if (a < b && c) {}</script><p>&lt;&amp;</p>`), ""))
	assert.Equal(t, `TEXT "if (a < b && c) {}"`, got[1])
	assert.Equal(t, `TEXT "<&"`, got[4])
}

func TestParseHTMLPositions(t *testing.T) {
	events, err := event.Collect(ParseHTML(strings.NewReader("<div>\n  <span>x</span></div>"), "p.html"))
	require.NoError(t, err)
	assert.Equal(t, event.Pos{Filename: "p.html", Line: 2, Column: 3}, events[2].Pos)
}

// tokenString renders a token compactly for comparisons.
func tokenString(tok compiler.Token) string {
	switch tok.Kind {
	case compiler.TokenEvent:
		return tok.Event.String()
	case compiler.TokenExpr:
		return "EXPR " + tok.Expr
	case compiler.TokenOpen:
		var hints []string
		for k, v := range tok.Args {
			if k != "" {
				hints = append(hints, fmt.Sprintf(" %s=%s", k, v))
			}
		}
		return fmt.Sprintf("OPEN %s %q%s", tok.Directive, tok.Args[""], strings.Join(hints, ""))
	case compiler.TokenClose:
		return "CLOSE " + tok.Directive
	}
	return tok.Kind.String()
}

func tokens(t *testing.T, src string) ([]string, error) {
	t.Helper()
	var out []string
	for tok, err := range (Frontend{}).Tokens(strings.NewReader(src), "t.html", compiler.DefaultVocabulary()) {
		if err != nil {
			return out, err
		}
		out = append(out, tokenString(tok))
	}
	return out, nil
}

func TestFrontendAttributeDirectives(t *testing.T) {
	got, err := tokens(t, `<ul><li py:if="x.visible" py:for="x in items" class="i">${x.title}!</li></ul>`)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"START ul []",
		`OPEN for "x in items"`,
		`OPEN if "x.visible"`,
		`START li [class="i"]`,
		"EXPR x.title",
		`TEXT "!"`,
		"END li",
		"CLOSE if",
		"CLOSE for",
		"END ul",
	}, got)
}

func TestFrontendDeclaredNamespace(t *testing.T) {
	got, err := tokens(t, `<div xmlns:t="https://weft.dev/ns/template"><t:if test="a">y</t:if></div>`)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"START div []",
		`OPEN if "a"`,
		`TEXT "y"`,
		"CLOSE if",
		"END div",
	}, got)
}

func TestFrontendElementDirectives(t *testing.T) {
	got, err := tokens(t, `<r><py:match path="span" once="true"><b/></py:match><py:for each="i in r" index="n"/><py:replace value="v"><i>gone</i></py:replace></r>`)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"START r []",
		`OPEN match "span" once=true`,
		"START b []",
		"END b",
		"CLOSE match",
		`OPEN for "i in r" index=n`,
		"CLOSE for",
		"EXPR v",
		"END r",
	}, got)
}

func TestFrontendIncludeAndComments(t *testing.T) {
	got, err := tokens(t, `<r xmlns:xi="http://www.w3.org/2001/XInclude"><!-- kept --><!-- ! dropped --><xi:include href="a.html"><xi:fallback>none</xi:fallback></xi:include></r>`)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"START r []",
		`COMMENT " kept "`,
		`OPEN include "a.html"`,
		`OPEN fallback ""`,
		`TEXT "none"`,
		"CLOSE fallback",
		"CLOSE include",
		"END r",
	}, got)
}

func TestFrontendKeepsOtherNamespaces(t *testing.T) {
	got, err := tokens(t, `<svg xmlns="http://www.w3.org/2000/svg" xmlns:py="http://genshi.edgewall.org/"><g py:strip="">x</g></svg>`)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"START_NS =http://www.w3.org/2000/svg",
		"START {http://www.w3.org/2000/svg}svg []",
		`OPEN strip ""`,
		"START {http://www.w3.org/2000/svg}g []",
		`TEXT "x"`,
		"END {http://www.w3.org/2000/svg}g",
		"CLOSE strip",
		"END {http://www.w3.org/2000/svg}svg",
		"END_NS =http://www.w3.org/2000/svg",
	}, got)
}

func TestFrontendMatchNamespaces(t *testing.T) {
	var open compiler.Token
	src := `<r xmlns:h="http://www.w3.org/1999/xhtml"><py:match path="h:div"/></r>`
	for tok, err := range (Frontend{}).Tokens(strings.NewReader(src), "", compiler.DefaultVocabulary()) {
		require.NoError(t, err)
		if tok.Kind == compiler.TokenOpen {
			open = tok
		}
	}
	assert.Equal(t, "http://www.w3.org/1999/xhtml", open.Namespaces["h"])
}

func TestFrontendErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
	}{
		{"unknown attribute directive", `<p py:loop="x"/>`, compiler.ErrUnknownDirective},
		{"unknown element directive", `<py:loop each="x"/>`, compiler.ErrUnknownDirective},
		{"element only directive as attribute", `<p py:include="x"/>`, compiler.ErrUnknownDirective},
		{"attribute only directive as element", `<py:content value="x"/>`, compiler.ErrUnknownDirective},
		{"unknown XInclude element", `<xi:import href="x"/>`, compiler.ErrUnknownDirective},
		{"stray hint", `<p py:once="true"/>`, compiler.ErrUnexpectedParam},
		{"unexpected element parameter", `<py:if cond="x"/>`, compiler.ErrUnexpectedParam},
		{"replace without value", `<py:replace/>`, compiler.ErrMissingArgument},
		{"malformed xml", `<p>`, compiler.ErrMalformedSource},
		{"bad interpolation", `<p>${x</p>`, compiler.ErrInvalidExpression},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tokens(t, tt.src)
			require.Error(t, err)
			se, ok := err.(*compiler.TemplateSyntaxError)
			require.True(t, ok, "%T: %v", err, err)
			assert.Equal(t, tt.code, se.Code, se.Error())
			assert.Equal(t, 1, se.Line)
		})
	}
}

func TestFrontendCompiles(t *testing.T) {
	src := `<p py:if="show">hi ${name}</p>`
	a, err := compiler.CompileString(src, "p.html", Frontend{})
	require.NoError(t, err)
	b, err := compiler.CompileString(src, "p.html", Frontend{})
	require.NoError(t, err)
	assert.Equal(t, "markup", a.Dialect)
	assert.Equal(t, a.Outline(), b.Outline())

	require.Len(t, a.Nodes, 1)
	d, ok := a.Nodes[0].(*compiler.Directive)
	require.True(t, ok)
	assert.Equal(t, compiler.KindIf, d.Kind)
}

func TestFrontendMismatchedFlags(t *testing.T) {
	_, err := compiler.CompileString(`<py:for each="x in y" py:content="x"/>`, "f.html", Frontend{})
	require.Error(t, err)
	assert.True(t, compiler.IsTemplateSyntaxError(err))
}
