package cli

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/weft/internal/compiler"
	"github.com/roach88/weft/internal/event"
)

func TestCompileText(t *testing.T) {
	dir := writeFiles(t, map[string]string{"page.html": `<div><p py:if="show">${name}</p></div>`})

	out, _, err := execute(t, "compile", filepath.Join(dir, "page.html"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Compiled page.html (markup)")
	assert.Contains(t, out, "if show")
	assert.Contains(t, out, "expr name")
}

func TestCompileJSONAndOutputFile(t *testing.T) {
	dir := writeFiles(t, map[string]string{"page.html": `<div><p py:if="show">${name}</p></div>`})
	target := filepath.Join(dir, "outline.json")

	out, _, err := execute(t, "--format", "json", "compile", filepath.Join(dir, "page.html"), "-o", target)
	require.NoError(t, err)

	var result CompilationResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "page.html", result.Template)
	assert.Equal(t, "markup", result.Dialect)
	require.NotEmpty(t, result.Outline)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	var written CompilationResult
	require.NoError(t, json.Unmarshal(data, &written))
	assert.Equal(t, result.Outline, written.Outline)
}

func TestCompileSyntaxError(t *testing.T) {
	dir := writeFiles(t, map[string]string{"bad.html": `<p py:loop="x">oops</p>`})

	out, _, err := execute(t, "compile", filepath.Join(dir, "bad.html"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "✗ Compilation failed")
	assert.Contains(t, out, "E201")
	assert.Contains(t, out, "loop")

	out, _, err = execute(t, "--format", "json", "compile", filepath.Join(dir, "bad.html"))
	require.Error(t, err)
	resp := decodeResponse(t, out, nil)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E201", resp.Error.Code)
}

func TestCompileReportsRecursion(t *testing.T) {
	src := `<div xmlns:py="http://genshi.edgewall.org/">` +
		`<py:def function="node(n)"><ul><py:for each="c in n.children"><py:call template="node(c)"/></py:for></ul></py:def>` +
		`</div>`
	dir := writeFiles(t, map[string]string{"tree.html": src})

	out, _, err := execute(t, "--format", "json", "compile", filepath.Join(dir, "tree.html"))
	require.NoError(t, err)

	var result CompilationResult
	decodeResponse(t, out, &result)
	require.NotEmpty(t, result.Cycles)
	assert.Equal(t, []string{"node", "node"}, result.Cycles[0].Path)
}

func TestCompileMissingTemplate(t *testing.T) {
	out, _, err := execute(t, "compile", "does-not-exist.html", "--dialect", "markup")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeNotFound+"]")
}

func TestCompileSyntaxErrorReportsWriteFailure(t *testing.T) {
	closed := errors.New("stdout closed")
	se := compiler.SyntaxErrorf(compiler.ErrUnknownDirective, event.Pos{Filename: "page.html", Line: 1, Column: 4}, "unknown directive %q", "loop")
	for _, format := range []string{"text", "json"} {
		t.Run(format, func(t *testing.T) {
			err := outputSyntaxError(&OutputFormatter{Format: format, Writer: failingWriter{closed}}, se)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.ErrorIs(t, err, closed)
			assert.True(t, compiler.IsTemplateSyntaxError(err))
		})
	}
}
