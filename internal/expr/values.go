package expr

import (
	"fmt"
	"iter"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// Truthy applies Python truthiness: None, Undefined, false, zero numbers
// and empty strings, slices and maps are false.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil, Undefined:
		return false
	case bool:
		return x
	case string:
		return x != ""
	}
	if n := numeric(v); n != nil {
		if i, ok := n.(int64); ok {
			return i != 0
		}
		return n.(float64) != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

// Iterate materializes the items of an iterable value. Strings iterate
// by character and maps by sorted key. Undefined iterates as empty; None
// and scalars are errors.
func Iterate(v any) ([]any, error) {
	switch x := v.(type) {
	case nil:
		return nil, errorf("None is not iterable")
	case Undefined:
		return nil, nil
	case []any:
		return x, nil
	case string:
		out := make([]any, 0, len(x))
		for _, r := range x {
			out = append(out, string(r))
		}
		return out, nil
	case iter.Seq[any]:
		return slices.Collect(x), nil
	}
	rv := reflect.Indirect(reflect.ValueOf(v))
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, nil
	case reflect.Map:
		keys := make([]any, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.Interface())
		}
		sortValues(keys)
		return keys, nil
	}
	return nil, errorf("%s is not iterable", typeName(v))
}

// sortValues orders values deterministically. Comparable values use
// compare; anything else falls back to the string form.
func sortValues(items []any) {
	slices.SortStableFunc(items, func(a, b any) int {
		if c, err := compare(a, b); err == nil {
			return c
		}
		return strings.Compare(ToString(a), ToString(b))
	})
}

// Equal compares two values with numeric normalization, so 1 == 1.0 and
// int32(2) == int64(2).
func Equal(a, b any) bool {
	an, bn := numeric(a), numeric(b)
	if an != nil && bn != nil {
		c, _ := compare(an, bn)
		return c == 0
	}
	if isList(a) && isList(b) {
		x, _ := Iterate(a)
		y, _ := Iterate(b)
		return slices.EqualFunc(x, y, Equal)
	}
	return reflect.DeepEqual(a, b)
}

// ToString converts a value to the text it renders as. None and Undefined
// render as the empty string.
func ToString(v any) string {
	switch x := v.(type) {
	case nil, Undefined:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	case error:
		return x.Error()
	}
	switch n := numeric(v).(type) {
	case int64:
		return strconv.FormatInt(n, 10)
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
