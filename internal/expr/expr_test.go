package expr

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/weft/internal/event"
)

type user struct {
	Name  string
	Admin bool
	tags  []string
}

func (u user) Greeting(prefix string) string {
	return prefix + " " + u.Name
}

func eval(t *testing.T, src string, env MapEnv) any {
	t.Helper()
	e, err := Parse(src, event.Pos{})
	require.NoError(t, err, src)
	v, err := e.Evaluate(env, Strict)
	require.NoError(t, err, src)
	return v
}

func TestEvaluateOperators(t *testing.T) {
	env := MapEnv{"n": 7, "s": "abc", "items": []string{"a", "b"}, "f": 2.5}
	tests := []struct {
		src  string
		want any
	}{
		{"1 + 2 * 3", int64(7)},
		{"(1 + 2) * 3", int64(9)},
		{"7 / 2", 3.5},
		{"7 // 2", int64(3)},
		{"-7 // 2", int64(-4)},
		{"-7 % 3", int64(2)},
		{"n - 10", int64(-3)},
		{"f * 2", 5.0},
		{"'ab' + 'cd'", "abcd"},
		{"'-' * 3", "---"},
		{"[1] + [2, 3]", []any{int64(1), int64(2), int64(3)}},
		{"n > 5 and n < 10", true},
		{"n == 7.0", true},
		{"n != 7", false},
		{"not n", false},
		{"'b' in s", true},
		{"'z' not in s", true},
		{"'a' in items", true},
		{"0 or 'x'", "x"},
		{"1 and 0", int64(0)},
		{"'yes' if n > 3 else 'no'", "yes"},
		{"'yes' if n > 30 else 'no'", "no"},
		{"None", nil},
		{"True", true},
		{"{'a': 1}['a']", int64(1)},
		{"s[-1]", "c"},
		{"items[0]", "a"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, eval(t, tt.src, env))
		})
	}
}

func TestEvaluateAttributeAccess(t *testing.T) {
	env := MapEnv{
		"user": user{Name: "Ann", Admin: true},
		"page": map[string]any{"title": "Home", "meta": map[string]string{"lang": "en"}},
	}
	assert.Equal(t, "Ann", eval(t, "user.name", env))
	assert.Equal(t, true, eval(t, "user.Admin", env))
	assert.Equal(t, "hi Ann", eval(t, "user.greeting('hi')", env))
	assert.Equal(t, "Home", eval(t, "page.title", env))
	assert.Equal(t, "en", eval(t, "page['meta'].lang", env))
	assert.Equal(t, "HOME", eval(t, "page.title.upper()", env))
	assert.Equal(t, []any{"meta", "title"}, eval(t, "page.keys()", env))
}

func TestEvaluateUnexportedFieldIsUndefined(t *testing.T) {
	e := MustParse("user.tags")
	_, err := e.Evaluate(MapEnv{"user": user{tags: []string{"x"}}}, Strict)
	var ue *UndefinedVariableError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "user.tags", ue.Name)
}

func TestEvaluateStrictUndefined(t *testing.T) {
	e := MustParse("name")
	_, err := e.Evaluate(MapEnv{}, Strict)
	var ue *UndefinedVariableError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "name", ue.Name)
	assert.True(t, IsUndefined(err))
}

func TestEvaluateLenientUndefined(t *testing.T) {
	v, err := MustParse("missing.attr").Evaluate(MapEnv{}, Lenient)
	require.NoError(t, err)
	assert.Equal(t, Undefined{Name: "missing.attr"}, v)
	assert.False(t, Truthy(v))
	assert.Equal(t, "", ToString(v))

	v, err = MustParse("'x' if missing else 'y'").Evaluate(MapEnv{}, Lenient)
	require.NoError(t, err)
	assert.Equal(t, "y", v)

	_, err = MustParse("missing()").Evaluate(MapEnv{}, Lenient)
	assert.True(t, IsUndefined(err))
}

func TestBuiltins(t *testing.T) {
	env := MapEnv{"xs": []int{3, 1, 2}, "name": "Weft", "present": 1}
	assert.Equal(t, true, eval(t, "defined('present')", env))
	assert.Equal(t, false, eval(t, "defined('absent')", env))
	assert.Equal(t, "dflt", eval(t, "value_of('absent', 'dflt')", env))
	assert.Equal(t, 1, eval(t, "value_of('present')", env))
	assert.Equal(t, int64(3), eval(t, "len(xs)", env))
	assert.Equal(t, []any{1, 2, 3}, eval(t, "sorted(xs)", env))
	assert.Equal(t, []any{3, 2, 1}, eval(t, "sorted(xs, reverse=True)", env))
	assert.Equal(t, []any{int64(0), int64(1), int64(2)}, eval(t, "range(3)", env))
	assert.Equal(t, []any{int64(5), int64(3)}, eval(t, "range(5, 1, -2)", env))
	assert.Equal(t, []any{[]any{int64(1), "a"}}, eval(t, "enumerate(['a'], start=1)", env))
	assert.Equal(t, "3-1-2", eval(t, "join(xs, '-')", env))
	assert.Equal(t, "a,b", eval(t, "','.join(['a', 'b'])", env))
	assert.Equal(t, "weft", eval(t, "lower(name)", env))
	assert.Equal(t, int64(42), eval(t, "int('42')", env))
	assert.Equal(t, 1.5, eval(t, "float('1.5')", env))
	assert.Equal(t, "7", eval(t, "str(7)", env))
	assert.Equal(t, false, eval(t, "bool('')", env))
}

func TestDataShadowsBuiltins(t *testing.T) {
	assert.Equal(t, "mine", eval(t, "len", MapEnv{"len": "mine"}))
}

func TestCallables(t *testing.T) {
	env := MapEnv{
		"greet": Func(func(args []any, kwargs map[string]any) (any, error) {
			return "hello " + ToString(args[0]) + ToString(kwargs["punct"]), nil
		}),
		"double": func(n int) int { return n * 2 },
		"fail":   func() (string, error) { return "", errors.New("nope") },
	}
	assert.Equal(t, "hello Ann!", eval(t, "greet('Ann', punct='!')", env))
	assert.Equal(t, 8, eval(t, "double(4)", env))

	_, err := MustParse("fail()").Evaluate(env, Strict)
	var ee *ExpressionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "fail()", ee.Source)
	assert.Contains(t, err.Error(), "nope")
}

func TestEvaluateTypeErrors(t *testing.T) {
	tests := []string{
		"1 + 'a'",
		"1 / 0",
		"None.attr",
		"len(None)",
		"'a' < 1",
		"5()",
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			_, err := MustParse(src).Evaluate(MapEnv{}, Strict)
			var ee *ExpressionError
			assert.ErrorAs(t, err, &ee)
		})
	}
}

func TestParseSyntaxError(t *testing.T) {
	_, err := Parse("a +", event.Pos{Filename: "t.html", Line: 3, Column: 10})
	var se *SyntaxError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 3, se.Line)
	assert.GreaterOrEqual(t, se.Column, 10)

	_, err = Parse("foo(", event.Pos{})
	assert.Error(t, err)
	_, err = Parse("a b", event.Pos{})
	assert.Error(t, err)
}

func TestParseFor(t *testing.T) {
	fc, err := ParseFor("k, v in items.items()", event.Pos{Line: 1, Column: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"k", "v"}, fc.Targets)
	assert.Equal(t, "items.items()", fc.Iter.Source())

	_, err = ParseFor("in items", event.Pos{})
	assert.Error(t, err)
}

func TestParseBindings(t *testing.T) {
	bs, err := ParseBindings("a = 1; b = a + 1;", event.Pos{})
	require.NoError(t, err)
	require.Len(t, bs, 2)
	assert.Equal(t, "a", bs[0].Name)
	assert.Equal(t, "1", bs[0].Value.Source())
	assert.Equal(t, "a + 1", bs[1].Value.Source())

	_, err = ParseBindings("a = 1; a = 2", event.Pos{})
	var se *SyntaxError
	require.ErrorAs(t, err, &se)
	assert.True(t, strings.Contains(se.Message, "duplicate"))
}

func TestParseSignature(t *testing.T) {
	sig, err := ParseSignature("greet(name, punct='!')", event.Pos{})
	require.NoError(t, err)
	assert.Equal(t, "greet", sig.Name)
	require.Len(t, sig.Params, 2)
	assert.Nil(t, sig.Params[0].Default)
	assert.Equal(t, "'!'", sig.Params[1].Default.Source())

	sig, err = ParseSignature("footer", event.Pos{})
	require.NoError(t, err)
	assert.Empty(t, sig.Params)

	_, err = ParseSignature("bad(a=1, b)", event.Pos{})
	assert.Error(t, err)
}

func TestParseCall(t *testing.T) {
	c, err := ParseCall("greet('Ann', punct='?')", event.Pos{})
	require.NoError(t, err)
	assert.Equal(t, "greet", c.Name)
	require.Len(t, c.Args, 2)
	assert.Equal(t, "", c.Args[0].Name)
	assert.Equal(t, "punct", c.Args[1].Name)

	c, err = ParseCall("footer", event.Pos{})
	require.NoError(t, err)
	assert.Empty(t, c.Args)
}

func TestIterateMapSortedKeys(t *testing.T) {
	items, err := Iterate(map[string]int{"b": 2, "a": 1, "c": 3})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c"}, items)

	_, err = Iterate(nil)
	assert.Error(t, err)
	_, err = Iterate(42)
	assert.Error(t, err)
}

func TestToString(t *testing.T) {
	assert.Equal(t, "", ToString(nil))
	assert.Equal(t, "true", ToString(true))
	assert.Equal(t, "1.5", ToString(1.5))
	assert.Equal(t, "3", ToString(int32(3)))
	assert.Equal(t, "x", ToString([]byte("x")))
}

func TestParseLookup(t *testing.T) {
	m, err := ParseLookup("lenient")
	require.NoError(t, err)
	assert.Equal(t, Lenient, m)
	_, err = ParseLookup("loose")
	assert.Error(t, err)
}
