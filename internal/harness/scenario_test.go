package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "for_loop.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "for_loop", s.Name)
	assert.Equal(t, "list.html", s.Entry)
	assert.Equal(t, `<ul><li py:for="i in items">${i}</li></ul>`, s.Templates["list.html"])
	assert.Equal(t, []any{"a", "b"}, s.Data["items"])
	require.NotNil(t, s.Expect)
	require.NotNil(t, s.Expect.Output)
	assert.Equal(t, "<ul><li>a</li><li>b</li></ul>", *s.Expect.Output)
	require.Len(t, s.Assertions, 3)
	assert.Equal(t, AssertSelectCount, s.Assertions[0].Type)
	assert.Equal(t, 2, s.Assertions[0].Count)
}

func TestLoadScenarioMissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join("testdata", "scenarios", "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenarioRejectsUnknownFields(t *testing.T) {
	src := `
name: typo
description: "d"
entry: a.html
templates:
  a.html: <a/>
assertion:
  - type: output_contains
    text: a
`
	_, err := ParseScenario(strings.NewReader(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenarioValidation(t *testing.T) {
	const base = "name: n\ndescription: d\n"
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"missing name", "description: d\nentry: a.html\ntemplates: {a.html: x}\nexpect: {output: x}\n", "name is required"},
		{"missing description", "name: n\nentry: a.html\ntemplates: {a.html: x}\nexpect: {output: x}\n", "description is required"},
		{"no templates", base + "entry: a.html\nexpect: {output: x}\n", "templates map is required"},
		{"missing entry", base + "templates: {a.html: x}\nexpect: {output: x}\n", "entry is required"},
		{"unknown entry", base + "entry: b.html\ntemplates: {a.html: x}\nexpect: {output: x}\n", `entry "b.html" is not among the templates`},
		{"nothing to check", base + "entry: a.html\ntemplates: {a.html: x}\n", "expect or assertions is required"},
		{"output and error", base + "entry: a.html\ntemplates: {a.html: x}\nexpect: {output: x, error: y}\n", "mutually exclusive"},
		{"bad error kind", base + "entry: a.html\ntemplates: {a.html: x}\nexpect: {error_kind: boom}\n", `unknown error_kind "boom"`},
		{"assertion without type", base + "entry: a.html\ntemplates: {a.html: x}\nassertions: [{text: x}]\n", "assertions[0]: type is required"},
		{"unknown assertion", base + "entry: a.html\ntemplates: {a.html: x}\nassertions: [{type: nope}]\n", `unknown assertion type "nope"`},
		{"contains without text", base + "entry: a.html\ntemplates: {a.html: x}\nassertions: [{type: output_contains}]\n", "text is required"},
		{"select without path", base + "entry: a.html\ntemplates: {a.html: x}\nassertions: [{type: select_count, count: 1}]\n", "path is required"},
		{"negative count", base + "entry: a.html\ntemplates: {a.html: x}\nassertions: [{type: trace_count, kind: TEXT, count: -1}]\n", "count must be non-negative"},
		{"order without elements", base + "entry: a.html\ntemplates: {a.html: x}\nassertions: [{type: trace_order}]\n", "elements list is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario(strings.NewReader(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
