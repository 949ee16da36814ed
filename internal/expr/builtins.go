package expr

import (
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"
)

type builtin func(ev *evaluator, args []any, kwargs map[string]any) (any, error)

// builtins are resolved after every scope. Data bindings shadow them.
var builtins = map[string]builtin{
	"defined":   builtinDefined,
	"value_of":  builtinValueOf,
	"len":       builtinLen,
	"str":       builtinStr,
	"int":       builtinInt,
	"float":     builtinFloat,
	"bool":      builtinBool,
	"range":     builtinRange,
	"enumerate": builtinEnumerate,
	"sorted":    builtinSorted,
	"join":      builtinJoin,
	"lower":     builtinLower,
	"upper":     builtinUpper,
}

// arg returns the i-th positional argument or the keyword argument name.
func arg(args []any, kwargs map[string]any, i int, name string) (any, bool) {
	if i < len(args) {
		return args[i], true
	}
	v, ok := kwargs[name]
	return v, ok
}

func arity(fn string, args []any, minArgs, maxArgs int) error {
	if len(args) < minArgs || len(args) > maxArgs {
		if minArgs == maxArgs {
			return errorf("%s() takes %d arguments, got %d", fn, minArgs, len(args))
		}
		return errorf("%s() takes %d to %d arguments, got %d", fn, minArgs, maxArgs, len(args))
	}
	return nil
}

func builtinDefined(ev *evaluator, args []any, _ map[string]any) (any, error) {
	if err := arity("defined", args, 1, 1); err != nil {
		return nil, err
	}
	if ev.env == nil {
		return false, nil
	}
	v, ok := ev.env.Lookup(ToString(args[0]))
	if _, undef := v.(Undefined); undef {
		return false, nil
	}
	return ok, nil
}

func builtinValueOf(ev *evaluator, args []any, kwargs map[string]any) (any, error) {
	if err := arity("value_of", args, 1, 2); err != nil {
		return nil, err
	}
	if ev.env != nil {
		if v, ok := ev.env.Lookup(ToString(args[0])); ok {
			if _, undef := v.(Undefined); !undef {
				return v, nil
			}
		}
	}
	def, _ := arg(args, kwargs, 1, "default")
	return def, nil
}

func builtinLen(_ *evaluator, args []any, _ map[string]any) (any, error) {
	if err := arity("len", args, 1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case string:
		return int64(utf8.RuneCountInString(x)), nil
	case Undefined:
		return int64(0), nil
	case nil:
		return nil, errorf("object of type None has no len()")
	}
	items, err := Iterate(args[0])
	if err != nil {
		return nil, errorf("object of type %s has no len()", typeName(args[0]))
	}
	return int64(len(items)), nil
}

func builtinStr(_ *evaluator, args []any, _ map[string]any) (any, error) {
	if err := arity("str", args, 1, 1); err != nil {
		return nil, err
	}
	return ToString(args[0]), nil
}

func builtinInt(_ *evaluator, args []any, _ map[string]any) (any, error) {
	if err := arity("int", args, 1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case bool:
		return boolInt(x), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return nil, errorf("invalid literal for int(): %q", x)
		}
		return i, nil
	}
	switch n := numeric(args[0]).(type) {
	case int64:
		return n, nil
	case float64:
		return int64(math.Trunc(n)), nil
	}
	return nil, errorf("int() argument must be a string or a number, not %s", typeName(args[0]))
}

func builtinFloat(_ *evaluator, args []any, _ map[string]any) (any, error) {
	if err := arity("float", args, 1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case bool:
		return float64(boolInt(x)), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil, errorf("could not convert string to float: %q", x)
		}
		return f, nil
	}
	if n := numeric(args[0]); n != nil {
		return toFloat(n), nil
	}
	return nil, errorf("float() argument must be a string or a number, not %s", typeName(args[0]))
}

func builtinBool(_ *evaluator, args []any, _ map[string]any) (any, error) {
	if err := arity("bool", args, 0, 1); err != nil {
		return nil, err
	}
	return len(args) == 1 && Truthy(args[0]), nil
}

func builtinRange(_ *evaluator, args []any, _ map[string]any) (any, error) {
	if err := arity("range", args, 1, 3); err != nil {
		return nil, err
	}
	bounds := make([]int64, len(args))
	for i, a := range args {
		n, ok := numeric(a).(int64)
		if !ok {
			return nil, errorf("range() arguments must be integers, not %s", typeName(a))
		}
		bounds[i] = n
	}
	start, stop, step := int64(0), bounds[0], int64(1)
	if len(bounds) > 1 {
		start, stop = bounds[0], bounds[1]
	}
	if len(bounds) > 2 {
		step = bounds[2]
	}
	if step == 0 {
		return nil, errorf("range() step must not be zero")
	}
	var out []any
	for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
		out = append(out, i)
	}
	return out, nil
}

func builtinEnumerate(_ *evaluator, args []any, kwargs map[string]any) (any, error) {
	if err := arity("enumerate", args, 1, 2); err != nil {
		return nil, err
	}
	items, err := Iterate(args[0])
	if err != nil {
		return nil, err
	}
	start := int64(0)
	if s, ok := arg(args, kwargs, 1, "start"); ok {
		n, ok := numeric(s).(int64)
		if !ok {
			return nil, errorf("enumerate() start must be an integer, not %s", typeName(s))
		}
		start = n
	}
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = []any{start + int64(i), item}
	}
	return out, nil
}

func builtinSorted(_ *evaluator, args []any, kwargs map[string]any) (any, error) {
	if err := arity("sorted", args, 1, 1); err != nil {
		return nil, err
	}
	items, err := Iterate(args[0])
	if err != nil {
		return nil, err
	}
	out := slices.Clone(items)
	var cmpErr error
	slices.SortStableFunc(out, func(a, b any) int {
		c, err := compare(a, b)
		if err != nil && cmpErr == nil {
			cmpErr = err
		}
		return c
	})
	if cmpErr != nil {
		return nil, cmpErr
	}
	if r, ok := kwargs["reverse"]; ok && Truthy(r) {
		slices.Reverse(out)
	}
	return out, nil
}

func builtinJoin(_ *evaluator, args []any, kwargs map[string]any) (any, error) {
	if err := arity("join", args, 1, 2); err != nil {
		return nil, err
	}
	sep, _ := arg(args, kwargs, 1, "sep")
	return joinItems(args[0], ToString(sep))
}

func builtinLower(_ *evaluator, args []any, _ map[string]any) (any, error) {
	if err := arity("lower", args, 1, 1); err != nil {
		return nil, err
	}
	return strings.ToLower(ToString(args[0])), nil
}

func builtinUpper(_ *evaluator, args []any, _ map[string]any) (any, error) {
	if err := arity("upper", args, 1, 1); err != nil {
		return nil, err
	}
	return strings.ToUpper(ToString(args[0])), nil
}
