package engine

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/weft/internal/compiler"
	"github.com/roach88/weft/internal/event"
	"github.com/roach88/weft/internal/expr"
	"github.com/roach88/weft/internal/markup"
	"github.com/roach88/weft/internal/text"
)

func compileMarkup(t *testing.T, src string) *compiler.Tree {
	t.Helper()
	tree, err := compiler.CompileString(src, "t.html", markup.Frontend{})
	require.NoError(t, err)
	return tree
}

func dump(events []event.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.String()
	}
	return out
}

func render(t *testing.T, src string, data map[string]any, opts ...EngineOption) ([]string, error) {
	t.Helper()
	events, err := event.Collect(New(opts...).Render(compileMarkup(t, src), data))
	return dump(events), err
}

func mustRender(t *testing.T, src string, data map[string]any, opts ...EngineOption) []string {
	t.Helper()
	got, err := render(t, src, data, opts...)
	require.NoError(t, err)
	return got
}

func renderText(t *testing.T, src string, data map[string]any, opts ...EngineOption) string {
	t.Helper()
	s, err := event.TextContent(New(opts...).Render(compileMarkup(t, src), data))
	require.NoError(t, err)
	return s
}

// mapLoader serves markup templates from memory.
type mapLoader map[string]string

type missingError struct{ name string }

func (e *missingError) Error() string  { return "template not found: " + e.name }
func (e *missingError) NotFound() bool { return true }

func (m mapLoader) Load(name, _ string) (*compiler.Tree, error) {
	src, ok := m[name]
	if !ok {
		return nil, &missingError{name: name}
	}
	return compiler.CompileString(src, name, markup.Frontend{})
}

func TestIdentityLaw(t *testing.T) {
	src := `<html lang="en"><body class="x"><p>a &amp; b</p><!-- note --><br/><?pi data?></body></html>`
	want, err := event.Collect(markup.ParseXML(strings.NewReader(src), "t.html"))
	require.NoError(t, err)

	got, err := event.Collect(New().Render(compileMarkup(t, src), nil))
	require.NoError(t, err)
	assert.True(t, event.Equal(want, got), "got %v", dump(got))
}

func TestIfEndToEnd(t *testing.T) {
	src := `<p py:if="show">hi ${name}</p>`

	got := mustRender(t, src, map[string]any{"show": true, "name": "Ann"})
	assert.Equal(t, []string{"START p []", `TEXT "hi "`, `TEXT "Ann"`, "END p"}, got)

	got = mustRender(t, src, map[string]any{"show": false})
	assert.Empty(t, got)

	_, err := render(t, src, map[string]any{"show": true})
	require.Error(t, err)
	var ue *expr.UndefinedVariableError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "name", ue.Name)

	var re *RenderError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "t.html", re.Template)
	assert.Equal(t, 1, re.Pos.Line)
	assert.Contains(t, err.Error(), "t.html:1:")
}

func TestForRepeatsChildren(t *testing.T) {
	src := `<ul><li py:for="i in items">${i}</li></ul>`
	for n := range 4 {
		items := make([]any, n)
		for i := range items {
			items[i] = i
		}
		got := mustRender(t, src, map[string]any{"items": items})
		assert.Equal(t, n, strings.Count(strings.Join(got, "\n"), "START li"), "n=%d", n)
		assert.Equal(t, n, strings.Count(strings.Join(got, "\n"), "END li"), "n=%d", n)
	}
}

func TestForUnpackingIndexAndMaps(t *testing.T) {
	src := `<r><py:for each="k, v in pairs" index="i">${i}:${k}=${v};</py:for>|<py:for each="k in m">${k}</py:for></r>`
	got := renderText(t, src, map[string]any{
		"pairs": []any{[]any{"a", 1}, []any{"b", 2}},
		"m":     map[string]any{"b": 1, "c": 2, "a": 3},
	})
	assert.Equal(t, "0:a=1;1:b=2;|abc", got)
}

func TestForErrors(t *testing.T) {
	_, err := render(t, `<r>
<p py:for="x in n">${x}</p></r>`, map[string]any{"n": 5})
	require.Error(t, err)
	assert.True(t, IsDirectiveError(err))
	var re *RenderError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 2, re.Pos.Line)

	_, err = render(t, `<py:for each="a, b in items">${a}</py:for>`, map[string]any{"items": []any{[]any{1, 2, 3}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot unpack")
}

func TestChooseRendersAtMostOneBranch(t *testing.T) {
	src := `<div py:choose="n"><span py:when="1">one</span><span py:when="1">again</span><span py:otherwise="">other</span></div>`
	assert.Equal(t, "one", renderText(t, src, map[string]any{"n": 1}))
	assert.Equal(t, "other", renderText(t, src, map[string]any{"n": 2}))

	bare := `<div py:choose=""><i py:when="n &gt; 1">many</i><i py:when="n &gt; 0">some</i></div>`
	assert.Equal(t, "many", renderText(t, bare, map[string]any{"n": 5}))
	assert.Equal(t, "some", renderText(t, bare, map[string]any{"n": 1}))
	assert.Equal(t, []string{"START div []", "END div"}, mustRender(t, bare, map[string]any{"n": 0}))
}

func TestWithBindsSimultaneously(t *testing.T) {
	src := `<p py:with="a = x; b = a">${a} ${b}</p>`
	assert.Equal(t, "1 outer", renderText(t, src, map[string]any{"x": 1, "a": "outer"}))
}

func TestElementFlags(t *testing.T) {
	tests := []struct {
		name string
		src  string
		data map[string]any
		want []string
	}{
		{
			name: "content",
			src:  `<p class="c" py:content="x">old</p>`,
			data: map[string]any{"x": "new"},
			want: []string{`START p [class="c"]`, `TEXT "new"`, "END p"},
		},
		{
			name: "replace",
			src:  `<r><p py:replace="x">old</p></r>`,
			data: map[string]any{"x": "new"},
			want: []string{"START r []", `TEXT "new"`, "END r"},
		},
		{
			name: "attrs merge",
			src:  `<a href="/" class="c" py:attrs="extra">x</a>`,
			data: map[string]any{"extra": map[string]any{"class": nil, "href": "/x", "title": "T"}},
			want: []string{`START a [href="/x" title="T"]`, `TEXT "x"`, "END a"},
		},
		{
			name: "attrs pairs",
			src:  `<a py:attrs="[['id', 7]]"/>`,
			want: []string{`START a [id="7"]`, "END a"},
		},
		{
			name: "strip true",
			src:  `<r><div py:strip="s">in</div></r>`,
			data: map[string]any{"s": true},
			want: []string{"START r []", `TEXT "in"`, "END r"},
		},
		{
			name: "strip false",
			src:  `<div py:strip="s">in</div>`,
			data: map[string]any{"s": false},
			want: []string{"START div []", `TEXT "in"`, "END div"},
		},
		{
			name: "none attribute dropped",
			src:  `<input value="${v}" checked="${c}" title="t ${c}"/>`,
			data: map[string]any{"v": "x", "c": nil},
			want: []string{`START input [value="x" title="t "]`, "END input"},
		},
		{
			name: "markup value spliced",
			src:  `<div>${HTML(body)}</div>`,
			data: map[string]any{"body": "<b>hi</b><br>"},
			want: []string{"START div []", "START b []", `TEXT "hi"`, "END b", "START br []", "END br", "END div"},
		},
		{
			name: "lists flattened",
			src:  `<p>${items}${none}${''}</p>`,
			data: map[string]any{"items": []any{"a", []any{1, true}}, "none": nil},
			want: []string{"START p []", `TEXT "a"`, `TEXT "1"`, `TEXT "true"`, "END p"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mustRender(t, tt.src, tt.data))
		})
	}
}

func TestAttrsRejectsScalars(t *testing.T) {
	_, err := render(t, `<a py:attrs="5"/>`, nil)
	require.Error(t, err)
	assert.True(t, IsDirectiveError(err))
}

func TestMacros(t *testing.T) {
	src := `<r><py:def function="greet(name, punct='!')"><b>Hi ${name}${punct}</b></py:def><py:call template="greet('Ann')"/>${greet('Bo', punct='?')}</r>`
	assert.Equal(t, []string{
		"START r []",
		"START b []", `TEXT "Hi "`, `TEXT "Ann"`, `TEXT "!"`, "END b",
		"START b []", `TEXT "Hi "`, `TEXT "Bo"`, `TEXT "?"`, "END b",
		"END r",
	}, mustRender(t, src, nil))
}

func TestMacrosAreLexicallyScoped(t *testing.T) {
	src := `<r py:with="who = 'outer'"><py:def function="show()">${who}</py:def><p py:with="who = 'inner'"><py:call template="show()"/></p></r>`
	assert.Equal(t, "outer", renderText(t, src, nil))
}

func TestMacroShadowingFollowsNesting(t *testing.T) {
	tests := []struct {
		name string
		src  string
		data map[string]any
		want string
	}{
		{
			name: "nested def in recursive macro",
			src:  `<r><py:def function="f(n)"><py:def function="g()">[${n}]</py:def><py:if test="n &gt; 0">${f(n - 1)}</py:if><py:call template="g()"/></py:def>${f(2)}</r>`,
			want: "[0][1][2]",
		},
		{
			name: "nested def in recursive macro from expression",
			src:  `<r><py:def function="f(n)"><py:def function="g()">[${n}]</py:def><py:if test="n &gt; 0">${f(n - 1)}</py:if>${g()}</py:def>${f(2)}</r>`,
			want: "[0][1][2]",
		},
		{
			name: "def inside element stays in the element",
			src:  `<r><py:def function="g()">outer</py:def><div py:strip=""><py:def function="g()">inner</py:def></div>[<py:call template="g()"/>|${g()}]</r>`,
			want: "[outer|outer]",
		},
		{
			name: "def inside if shadows only within the if",
			src:  `<r><py:def function="g()">outer</py:def><py:if test="True"><py:def function="g()">inner</py:def>(<py:call template="g()"/>|${g()})</py:if>${g()}</r>`,
			want: "(inner|inner)outer",
		},
		{
			name: "def inside when stays in the branch",
			src:  `<r><py:def function="g()">outer</py:def><py:choose><py:when test="True"><py:def function="g()">inner</py:def><py:call template="g()"/></py:when></py:choose>|<py:call template="g()"/></r>`,
			want: "inner|outer",
		},
		{
			name: "def inside loop binds each iteration",
			src:  `<r><py:for each="x in xs"><py:def function="show()">${x}</py:def><py:call template="show()"/>;</py:for></r>`,
			data: map[string]any{"xs": []any{"a", "b"}},
			want: "a;b;",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renderText(t, tt.src, tt.data))
		})
	}
}

func TestMacroMutualRecursion(t *testing.T) {
	src := `<r><py:def function="even(n)">${'E' if n == 0 else odd(n - 1)}</py:def><py:def function="odd(n)">${'O' if n == 0 else even(n - 1)}</py:def>${even(3)}</r>`
	assert.Equal(t, "O", renderText(t, src, nil))
}

func TestMacroErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"missing argument", `<r><py:def function="greet(name)">x</py:def>${greet()}</r>`, "missing required argument name"},
		{"unknown macro", `<r><py:call template="nope()"/></r>`, "no macro named nope"},
		{"not a macro", `<r><py:call template="x()"/></r>`, "x is not a macro"},
		{"runaway recursion", `<r><py:def function="f(n)">${f(n)}</py:def>${f(1)}</r>`, "max depth 5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := render(t, tt.src, map[string]any{"x": 1}, WithMaxDepth(5))
			require.Error(t, err)
			assert.True(t, IsDirectiveError(err), "%T: %v", err, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMatchReplacesElements(t *testing.T) {
	src := `<r><py:match path="greeting"><h1>Hello ${this.attrs['name']}</h1></py:match><greeting name="Ann"/></r>`
	assert.Equal(t, []string{
		"START r []", "START h1 []", `TEXT "Hello "`, `TEXT "Ann"`, "END h1", "END r",
	}, mustRender(t, src, nil))
}

func TestMatchSelect(t *testing.T) {
	src := `<r><py:match path="box"><div class="box" py:attrs="select('@*')">${select('*|text()')}</div></py:match><box id="b1">a<b>c</b></box></r>`
	assert.Equal(t, []string{
		"START r []",
		`START div [class="box" id="b1"]`, `TEXT "a"`, "START b []", `TEXT "c"`, "END b", "END div",
		"END r",
	}, mustRender(t, src, nil))
}

func TestMatchDoesNotRematchItsOwnBody(t *testing.T) {
	for _, recursive := range []string{"true", "false"} {
		t.Run(recursive, func(t *testing.T) {
			src := `<r><py:match path="div[@class='box']" recursive="` + recursive + `"><div class="box"><span>${select('text()')}</span></div></py:match><div class="box">x</div></r>`
			assert.Equal(t, []string{
				"START r []",
				`START div [class="box"]`, "START span []", `TEXT "x"`, "END span", "END div",
				"END r",
			}, mustRender(t, src, nil))
		})
	}
}

func TestMatchRecursiveContent(t *testing.T) {
	tmpl := `<r><py:match path="box" recursive="%s"><div>${select('*|text()')}</div></py:match><box><box>in</box></box></r>`

	got := mustRender(t, strings.Replace(tmpl, "%s", "true", 1), nil)
	assert.Equal(t, []string{"START r []", "START div []", "START div []", `TEXT "in"`, "END div", "END div", "END r"}, got)

	got = mustRender(t, strings.Replace(tmpl, "%s", "false", 1), nil)
	assert.Equal(t, []string{"START r []", "START div []", "START box []", `TEXT "in"`, "END box", "END div", "END r"}, got)
}

func TestMatchOnce(t *testing.T) {
	src := `<r><py:match path="i" once="true"><b/></py:match><i/><i/></r>`
	assert.Equal(t, []string{"START r []", "START b []", "END b", "START i []", "END i", "END r"}, mustRender(t, src, nil))
}

func TestMatchNewestWinsAndOlderSeesBody(t *testing.T) {
	src := `<r><py:match path="x"><one/></py:match><py:match path="x"><two/></py:match><x/></r>`
	assert.Equal(t, []string{"START r []", "START two []", "END two", "END r"}, mustRender(t, src, nil))

	src = `<r><py:match path="y"><z/></py:match><py:match path="x"><y/></py:match><x/></r>`
	assert.Equal(t, []string{"START r []", "START z []", "END z", "END r"}, mustRender(t, src, nil))
}

func TestMatchNestingIsBounded(t *testing.T) {
	// Each body registers a fresh template that matches the body's own
	// output, so only the depth guard ends it.
	src := `<r><py:def function="install()"><py:match path="x"><py:call template="install()"/><x/></py:match></py:def><py:call template="install()"/><x/></r>`
	_, err := render(t, src, nil, WithMaxDepth(8))
	require.Error(t, err)
	assert.True(t, IsDirectiveError(err))
	assert.Contains(t, err.Error(), "max depth 8")
}

func TestIncludeLayout(t *testing.T) {
	loader := mapLoader{
		"layout.html": `<py:match path="body"><body><h1>${title}</h1>${select('*')}</body></py:match>`,
		"lib.html":    `<py:def function="hi(n)"><b>${n}</b></py:def>`,
	}
	src := `<html xmlns:xi="http://www.w3.org/2001/XInclude"><xi:include href="layout.html"/><xi:include href="lib.html"/><body><p>${hi('x')}</p></body></html>`
	got := mustRender(t, src, map[string]any{"title": "T"}, WithLoader(loader))
	assert.Equal(t, []string{
		"START html []",
		"START body []",
		"START h1 []", `TEXT "T"`, "END h1",
		"START p []", "START b []", `TEXT "x"`, "END b", "END p",
		"END body",
		"END html",
	}, got)
}

func TestIncludeFallbackAndErrors(t *testing.T) {
	const xi = `xmlns:xi="http://www.w3.org/2001/XInclude"`
	loader := mapLoader{"self.html": `<xi:include ` + xi + ` href="self.html"/>`}

	got := renderText(t, `<r `+xi+`><xi:include href="${name}.html"><xi:fallback>none</xi:fallback></xi:include></r>`,
		map[string]any{"name": "missing"}, WithLoader(loader))
	assert.Equal(t, "none", got)

	_, err := render(t, `<r `+xi+`><xi:include href="missing.html"/></r>`, nil, WithLoader(loader))
	require.Error(t, err)
	var me *missingError
	assert.True(t, errors.As(err, &me))
	assert.True(t, IsRenderError(err))

	_, err = render(t, `<r `+xi+`><xi:include href="a.html"/></r>`, nil)
	require.Error(t, err)
	assert.True(t, IsDirectiveError(err))

	_, err = render(t, `<r `+xi+`><xi:include href="self.html"/></r>`, nil, WithLoader(loader), WithMaxDepth(3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max depth 3")
}

func TestLenientLookup(t *testing.T) {
	got := mustRender(t, `<p title="${missing}">${missing.deeper}</p>`, nil, WithLookup(expr.Lenient))
	assert.Equal(t, []string{"START p []", "END p"}, got)
}

func TestGlobals(t *testing.T) {
	shout := expr.Func(func(args []any, _ map[string]any) (any, error) {
		return strings.ToUpper(expr.ToString(args[0])) + "!", nil
	})
	eng := New(WithGlobals(map[string]any{"shout": shout, "site": "weft"}))
	s, err := event.TextContent(eng.Render(compileMarkup(t, `<p>${shout(site)} ${site}</p>`), map[string]any{"site": "data"}))
	require.NoError(t, err)
	assert.Equal(t, "DATA! data", s)
}

func TestRenderIsLazy(t *testing.T) {
	calls := 0
	data := map[string]any{"tick": func() int { calls++; return calls }}
	tree := compileMarkup(t, `<r><i py:for="n in range(1000)">${tick()}</i></r>`)

	events, err := event.Take(New().Render(tree, data), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"START r []", "START i []", `TEXT "1"`}, dump(events))
	assert.Equal(t, 1, calls)
}

func TestRenderIsDeterministic(t *testing.T) {
	tree := compileMarkup(t, `<r><py:for each="k in m"><a py:attrs="m[k]">${k}</a></py:for></r>`)
	data := func() map[string]any {
		return map[string]any{"m": map[string]any{
			"z": map[string]any{"b": 1, "a": 2},
			"y": map[string]any{"d": 3, "c": 4},
		}}
	}
	eng := New()
	first, err := event.Collect(eng.Render(tree, data()))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]event.Event, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = event.Collect(eng.Render(tree, data()))
		}()
	}
	wg.Wait()
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, dump(first), dump(results[i]))
	}
	assert.Equal(t, `START a [c="4" d="3"]`, dump(first)[1])
}

func TestRenderIDsStayOutOfOutput(t *testing.T) {
	tree := compileMarkup(t, `<p>x</p>`)
	eng := New(WithRenderIDs(NewFixedGenerator("r-1", "r-2")))
	a, err := event.Collect(eng.Render(tree, nil))
	require.NoError(t, err)
	b, err := event.Collect(eng.Render(tree, nil))
	require.NoError(t, err)
	assert.Equal(t, dump(a), dump(b))
}

func assertGolden(t *testing.T, name string, data []byte) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}

func TestGoldenLayoutPage(t *testing.T) {
	loader := mapLoader{
		"layout.html": `<py:match path="body"><body><h1>${title}</h1>${select('*')}</body></py:match>`,
	}
	src := `<html xmlns:xi="http://www.w3.org/2001/XInclude"><xi:include href="layout.html"/><body>` +
		`<ul py:if="items"><li py:for="i, item in enumerate(items)" class="${'odd' if i % 2 else None}">${item}</li></ul>` +
		`<py:choose test="len(items)"><p py:when="0">empty</p><p py:when="1">one</p><p py:otherwise="">${len(items)} items</p></py:choose>` +
		`</body></html>`
	got := mustRender(t, src, map[string]any{"title": "Welcome", "items": []any{"a", "b", "c"}}, WithLoader(loader))
	assertGolden(t, "layout_page", []byte(strings.Join(got, "\n")+"\n"))
}

func TestGoldenTextLetter(t *testing.T) {
	src := `Dear ${name},
{% for item in items %}
  * ${item.title}{% if item.urgent %} (urgent){% end %}
{% end %}
{% def sig(who) %}
-- ${who}
{% end %}
{% choose %}
{% when len(items) > 1 %}
You have ${len(items)} items.
{% end %}
{% otherwise %}
Just one.
{% end %}
{% end %}
{% call sig('The Team') %}
`
	tree, err := compiler.CompileString(src, "letter.txt", text.Frontend{})
	require.NoError(t, err)
	out, err := event.TextContent(New().Render(tree, map[string]any{
		"name": "Ann",
		"items": []any{
			map[string]any{"title": "Milk", "urgent": true},
			map[string]any{"title": "Eggs", "urgent": false},
		},
	}))
	require.NoError(t, err)
	assertGolden(t, "text_letter", []byte(out))
}
