package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pageTemplate = `<html xmlns:py="http://genshi.edgewall.org/"><h1>Hello ${name}</h1><ul><li py:for="i in items">${i}</li></ul></html>`

func TestRenderWithSet(t *testing.T) {
	dir := writeFiles(t, map[string]string{"page.html": pageTemplate})

	out, _, err := execute(t, "render", filepath.Join(dir, "page.html"), "--set", "name=Ann", "--set", "items=[1, 2]")
	require.NoError(t, err)
	assert.Equal(t, `<html><h1>Hello Ann</h1><ul><li>1</li><li>2</li></ul></html>`, out)
}

func TestRenderDataFiles(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"page.html": pageTemplate,
		"ctx.yaml":  "name: Bob\nitems: [x]\n",
		"ctx.json":  `{"name": "Dee", "items": ["j"]}`,
		"ctx.cue":   "name: \"Cy\"\nitems: [\"p\", \"q\"]\n",
	})
	page := filepath.Join(dir, "page.html")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"yaml", []string{"--data", filepath.Join(dir, "ctx.yaml")}, `<html><h1>Hello Bob</h1><ul><li>x</li></ul></html>`},
		{"json", []string{"--data", filepath.Join(dir, "ctx.json")}, `<html><h1>Hello Dee</h1><ul><li>j</li></ul></html>`},
		{"cue", []string{"--data", filepath.Join(dir, "ctx.cue")}, `<html><h1>Hello Cy</h1><ul><li>p</li><li>q</li></ul></html>`},
		{"set wins over file", []string{"--data", filepath.Join(dir, "ctx.yaml"), "--set", "name=Ann"}, `<html><h1>Hello Ann</h1><ul><li>x</li></ul></html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, append([]string{"render", page}, tt.args...)...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestRenderIncludeFromTemplateDir(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"page.html":   `<div xmlns:xi="http://www.w3.org/2001/XInclude"><xi:include href="header.html"/><p>body</p></div>`,
		"header.html": `<h1>Top</h1>`,
	})

	out, _, err := execute(t, "render", filepath.Join(dir, "page.html"))
	require.NoError(t, err)
	assert.Equal(t, `<div><h1>Top</h1><p>body</p></div>`, out)
}

func TestRenderSearchPath(t *testing.T) {
	dir := writeFiles(t, map[string]string{"mail/letter.txt": "Dear ${name},\n{% for item in items %}\n  * ${item}\n{% end %}\nBye\n"})

	out, _, err := execute(t, "render", "mail/letter.txt", "--search-path", dir, "--method", "text",
		"--set", "name=Ann", "--set", "items=[a, b]")
	require.NoError(t, err)
	assert.Equal(t, "Dear Ann,\n  * a\n  * b\nBye\n", out)
}

func TestRenderHTMLDoctype(t *testing.T) {
	dir := writeFiles(t, map[string]string{"page.html": `<html><body><br/><input checked="checked"/></body></html>`})

	out, _, err := execute(t, "render", filepath.Join(dir, "page.html"), "--method", "html", "--doctype", "html5")
	require.NoError(t, err)
	assert.Equal(t, "<!DOCTYPE html>\n<html><body><br><input checked></body></html>", out)
}

func TestRenderOutputFile(t *testing.T) {
	dir := writeFiles(t, map[string]string{"page.html": pageTemplate})
	target := filepath.Join(dir, "out.html")

	out, _, err := execute(t, "render", filepath.Join(dir, "page.html"), "--set", "name=Ann", "--set", "items=[]", "-o", target)
	require.NoError(t, err)

	want := `<html><h1>Hello Ann</h1><ul/></html>`
	assert.Equal(t, fmt.Sprintf("Wrote %d bytes to %s\n", len(want), target), out)
	written, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, want, string(written))
}

func TestRenderJSON(t *testing.T) {
	dir := writeFiles(t, map[string]string{"page.html": pageTemplate})

	out, _, err := execute(t, "--format", "json", "render", filepath.Join(dir, "page.html"), "--set", "name=Ann", "--set", "items=[z]")
	require.NoError(t, err)

	var result RenderResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "page.html", result.Template)
	assert.Equal(t, `<html><h1>Hello Ann</h1><ul><li>z</li></ul></html>`, result.Output)
	assert.Equal(t, len(result.Output), result.Bytes)
}

func TestRenderUndefinedName(t *testing.T) {
	dir := writeFiles(t, map[string]string{"page.html": `<p>${missing}</p>`})
	page := filepath.Join(dir, "page.html")

	out, _, err := execute(t, "render", page)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeRender+"]")
	assert.Contains(t, out, "missing")

	out, _, err = execute(t, "render", page, "--lenient")
	require.NoError(t, err)
	assert.Equal(t, "<p/>", out)
}

func TestRenderFailures(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"page.html": pageTemplate,
		"bad.html":  `<p py:loop="x">oops</p>`,
		"ctx.toml":  `name = "x"`,
		"open.cue":  "name: string\n",
	})
	page := filepath.Join(dir, "page.html")

	tests := []struct {
		name string
		args []string
		code string
		exit int
	}{
		{"missing template", []string{"render", "nope.html", "--search-path", dir}, ErrCodeNotFound, ExitCommandError},
		{"syntax error", []string{"render", filepath.Join(dir, "bad.html")}, ErrCodeSyntax, ExitCommandError},
		{"unsupported data", []string{"render", page, "--data", filepath.Join(dir, "ctx.toml")}, ErrCodeData, ExitCommandError},
		{"incomplete cue", []string{"render", page, "--data", filepath.Join(dir, "open.cue")}, ErrCodeData, ExitCommandError},
		{"bad set", []string{"render", page, "--set", "novalue"}, ErrCodeData, ExitCommandError},
		{"bad method", []string{"render", page, "--method", "pdf"}, ErrCodeConfig, ExitCommandError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, append([]string{"--format", "json"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, tt.exit, GetExitCode(err))

			resp := decodeResponse(t, out, nil)
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestRenderConfigFile(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"templates/page.html": `<p>${name}</p>`,
		"weft.yaml":           "search_path: [templates]\nmethod: xhtml\ndoctype: xhtml-strict\n",
	})

	out, _, err := execute(t, "--config", filepath.Join(dir, "weft.yaml"), "render", "page.html", "--set", "name=Ann")
	require.NoError(t, err)
	assert.Contains(t, out, `<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Strict//EN"`)
	assert.Contains(t, out, "<p>Ann</p>")

	_, _, err = execute(t, "--config", filepath.Join(dir, "missing.yaml"), "render", "page.html")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
