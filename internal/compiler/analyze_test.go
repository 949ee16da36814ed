package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/weft/internal/event"
)

func TestInterpolate(t *testing.T) {
	tests := []struct {
		in    string
		parts []string // literal text, or "=" + expression source
	}{
		{"plain", []string{"plain"}},
		{"", []string{""}},
		{"Hello ${name}!", []string{"Hello ", "=name", "!"}},
		{"$user.name.", []string{"=user.name", "."}},
		{"cost: $$5", []string{"cost: $5"}},
		{"$ alone", []string{"$ alone"}},
		{"trailing $", []string{"trailing $"}},
		{"${ {'a': 1}['a'] }", []string{"= {'a': 1}['a'] "}},
		{"${'}'}x", []string{"='}'", "x"}},
		{"$a$b", []string{"=a", "=b"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			parts, err := Interpolate(tt.in, event.Pos{Line: 1, Column: 1})
			require.NoError(t, err)
			got := make([]string, len(parts))
			for i, p := range parts {
				if p.Expr != nil {
					got[i] = "=" + p.Expr.Source()
				} else {
					got[i] = p.Text
				}
			}
			assert.Equal(t, tt.parts, got)
		})
	}
}

func TestInterpolateErrors(t *testing.T) {
	_, err := Interpolate("a ${b", event.Pos{Filename: "x", Line: 3, Column: 5})
	se := requireCode(t, err, ErrInvalidExpression)
	assert.Equal(t, 3, se.Line)
	assert.Equal(t, 7, se.Column)

	_, err = Interpolate("${1 +}", event.Pos{Line: 1, Column: 1})
	requireCode(t, err, ErrInvalidExpression)
}

func TestInterpolatePositionAcrossLines(t *testing.T) {
	parts, err := Interpolate("a\nb ${x}", event.Pos{Line: 4, Column: 9})
	require.NoError(t, err)
	require.Len(t, parts, 2)
	pos := parts[1].Expr.Pos()
	assert.Equal(t, 5, pos.Line)
	assert.Equal(t, 5, pos.Column)
}

func TestValidate(t *testing.T) {
	tree := mustCompile(t,
		open("def", "item()", 1),
		closeTok("def", 1),
		open("if", "x", 2),
		open("def", "item()", 3),
		closeTok("def", 3),
		closeTok("if", 3),
		open("content", "body", 4),
		start("div", 4),
		text("ignored", 4),
		end("div", 4),
		closeTok("content", 4),
		open("choose", "", 5),
		open("otherwise", "", 6),
		closeTok("otherwise", 6),
		open("when", "a", 7),
		closeTok("when", 7),
		closeTok("choose", 8),
		open("choose", "", 9),
		text("  ", 9),
		closeTok("choose", 9),
	)

	errs := Validate(tree)
	codes := make([]string, len(errs))
	for i, e := range errs {
		codes[i] = e.Code
	}
	assert.Equal(t, []string{WarnShadowedDef, WarnDiscardedBody, WarnUnreachableArm, WarnEmptyChoose}, codes)
	assert.Equal(t, 3, errs[0].Line)
	assert.Contains(t, errs[1].Error(), "<div>")
}

func TestValidateCleanTree(t *testing.T) {
	tree := mustCompile(t,
		open("def", "row(x)", 1),
		exprTok("x", 1),
		closeTok("def", 1),
		open("for", "x in xs", 2),
		open("call", "row(x)", 2),
		text("\n  ", 2),
		closeTok("call", 2),
		closeTok("for", 2),
	)
	assert.Empty(t, Validate(tree))
}

func TestAnalyzeRecursionSelfLoop(t *testing.T) {
	tree := mustCompile(t,
		open("def", "node(n)", 1),
		open("for", "c in n.children", 2),
		open("call", "node(c)", 3),
		closeTok("call", 3),
		closeTok("for", 4),
		closeTok("def", 5),
	)

	warnings := AnalyzeRecursion(tree)
	require.Len(t, warnings, 1)
	assert.Equal(t, "info", warnings[0].Level)
	assert.Equal(t, []string{"node", "node"}, warnings[0].Path)
}

func TestAnalyzeRecursionMutual(t *testing.T) {
	tree := mustCompile(t,
		open("def", "even(n)", 1),
		open("call", "odd(n)", 2),
		closeTok("call", 2),
		closeTok("def", 3),
		open("def", "odd(n)", 4),
		open("call", "even(n)", 5),
		closeTok("call", 5),
		closeTok("def", 6),
		open("def", "leaf()", 7),
		closeTok("def", 7),
	)

	warnings := AnalyzeRecursion(tree)
	require.Len(t, warnings, 1)
	assert.Equal(t, "warning", warnings[0].Level)
	assert.Equal(t, []string{"even", "odd", "even"}, warnings[0].Path)
	assert.Contains(t, warnings[0].Message, "even → odd → even")
}

func TestAnalyzeRecursionNone(t *testing.T) {
	tree := mustCompile(t, text("static", 1))
	assert.Empty(t, AnalyzeRecursion(tree))
}
