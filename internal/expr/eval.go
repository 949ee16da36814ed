package expr

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"unicode"
)

// Undefined is the value of a missing name under lenient lookup. It is
// falsy, iterates as empty and renders as nothing. Attribute and item
// access on it yield another Undefined.
type Undefined struct {
	Name string
}

func (u Undefined) String() string {
	return ""
}

// Callable is a value that can be invoked from an expression.
type Callable interface {
	Call(args []any, kwargs map[string]any) (any, error)
}

// Func adapts a plain function to Callable.
type Func func(args []any, kwargs map[string]any) (any, error)

// Call implements Callable.
func (f Func) Call(args []any, kwargs map[string]any) (any, error) {
	return f(args, kwargs)
}

// Object is implemented by values that resolve attribute access
// themselves instead of through reflection.
type Object interface {
	Attr(name string) (any, bool)
}

type evaluator struct {
	env  Env
	mode Lookup
}

func (ev *evaluator) undefined(name string) (any, error) {
	if ev.mode == Lenient {
		return Undefined{Name: name}, nil
	}
	return nil, &UndefinedVariableError{Name: name}
}

func (ev *evaluator) ternary(n *ternaryNode) (any, error) {
	if n.Cond == nil {
		return ev.or(n.Body)
	}
	cond, err := ev.or(n.Cond)
	if err != nil {
		return nil, err
	}
	if Truthy(cond) {
		return ev.or(n.Body)
	}
	return ev.ternary(n.Else)
}

// or and and return the deciding operand, not a bool.
func (ev *evaluator) or(n *orNode) (any, error) {
	v, err := ev.and(n.Left)
	if err != nil {
		return nil, err
	}
	for _, r := range n.Right {
		if Truthy(v) {
			return v, nil
		}
		if v, err = ev.and(r); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (ev *evaluator) and(n *andNode) (any, error) {
	v, err := ev.not(n.Left)
	if err != nil {
		return nil, err
	}
	for _, r := range n.Right {
		if !Truthy(v) {
			return v, nil
		}
		if v, err = ev.not(r); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (ev *evaluator) not(n *notNode) (any, error) {
	if n.Not != nil {
		v, err := ev.not(n.Not)
		if err != nil {
			return nil, err
		}
		return !Truthy(v), nil
	}
	return ev.comparison(n.Comp)
}

func (ev *evaluator) comparison(n *comparisonNode) (any, error) {
	left, err := ev.additive(n.Left)
	if err != nil || n.Op == "" {
		return left, err
	}
	right, err := ev.additive(n.Right)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "==":
		return Equal(left, right), nil
	case "!=":
		return !Equal(left, right), nil
	case "in":
		return contains(right, left)
	case "notin":
		ok, err := contains(right, left)
		return !ok, err
	}
	c, err := compare(left, right)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	default:
		return c >= 0, nil
	}
}

func (ev *evaluator) additive(n *additiveNode) (any, error) {
	v, err := ev.term(n.Left)
	if err != nil {
		return nil, err
	}
	for _, op := range n.Rest {
		r, err := ev.term(op.Right)
		if err != nil {
			return nil, err
		}
		if v, err = arith(op.Op, v, r); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (ev *evaluator) term(n *termNode) (any, error) {
	v, err := ev.unary(n.Left)
	if err != nil {
		return nil, err
	}
	for _, op := range n.Rest {
		r, err := ev.unary(op.Right)
		if err != nil {
			return nil, err
		}
		if v, err = arith(op.Op, v, r); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (ev *evaluator) unary(n *unaryNode) (any, error) {
	if n.Neg == nil {
		return ev.postfix(n.Value)
	}
	v, err := ev.unary(n.Neg)
	if err != nil {
		return nil, err
	}
	switch x := numeric(v).(type) {
	case int64:
		return -x, nil
	case float64:
		return -x, nil
	}
	return nil, errorf("bad operand type for unary -: %s", typeName(v))
}

func (ev *evaluator) postfix(n *postfixNode) (any, error) {
	v, err := ev.primary(n.Primary)
	if err != nil {
		return nil, err
	}
	label := primaryLabel(n.Primary)
	for _, s := range n.Suffix {
		switch {
		case s.Attr != nil:
			label += "." + *s.Attr
			v, err = ev.attr(v, *s.Attr, label)
		case s.Index != nil:
			var key any
			if key, err = ev.ternary(s.Index); err != nil {
				return nil, err
			}
			label += "[" + ToString(key) + "]"
			v, err = ev.item(v, key, label)
		default:
			v, err = ev.call(v, s.Call, label)
		}
		if err != nil {
			return nil, err
		}
	}
	return v, nil
}

func primaryLabel(p *primaryNode) string {
	if p.Ident != nil {
		return *p.Ident
	}
	return "<expr>"
}

func (ev *evaluator) primary(n *primaryNode) (any, error) {
	switch {
	case n.Float != nil:
		return *n.Float, nil
	case n.Int != nil:
		return *n.Int, nil
	case n.Str != nil:
		return *n.Str, nil
	case n.Bool != nil:
		return *n.Bool == "True", nil
	case n.None:
		return nil, nil
	case n.Ident != nil:
		return ev.lookup(*n.Ident)
	case n.List != nil:
		out := make([]any, 0, len(n.List.Items))
		for _, item := range n.List.Items {
			v, err := ev.ternary(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case n.Dict != nil:
		out := make(map[string]any, len(n.Dict.Entries))
		for _, e := range n.Dict.Entries {
			k, err := ev.ternary(e.Key)
			if err != nil {
				return nil, err
			}
			v, err := ev.ternary(e.Value)
			if err != nil {
				return nil, err
			}
			out[ToString(k)] = v
		}
		return out, nil
	default:
		return ev.ternary(n.Sub)
	}
}

func (ev *evaluator) lookup(name string) (any, error) {
	if ev.env != nil {
		if v, ok := ev.env.Lookup(name); ok {
			return v, nil
		}
	}
	if b, ok := builtins[name]; ok {
		return Func(func(args []any, kwargs map[string]any) (any, error) {
			return b(ev, args, kwargs)
		}), nil
	}
	return ev.undefined(name)
}

func (ev *evaluator) attr(v any, name, label string) (any, error) {
	if u, ok := v.(Undefined); ok {
		return Undefined{Name: u.Name + "." + name}, nil
	}
	if o, ok := v.(Object); ok {
		if r, ok := o.Attr(name); ok {
			return r, nil
		}
		return ev.undefined(label)
	}
	if s, ok := v.(string); ok {
		if m, ok := stringMethod(s, name); ok {
			return m, nil
		}
		return ev.undefined(label)
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, errorf("cannot access attribute %q of None", name)
	}
	if m := methodByName(rv, name); m.IsValid() {
		return goFunc(m), nil
	}
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, errorf("cannot access attribute %q of nil %s", name, typeName(v))
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if r, ok := mapIndex(rv, name); ok {
			return r, nil
		}
		if m, ok := mapMethod(rv, name); ok {
			return m, nil
		}
	case reflect.Struct:
		if f := fieldByName(rv, name); f.IsValid() {
			return f.Interface(), nil
		}
	}
	return ev.undefined(label)
}

func (ev *evaluator) item(v, key any, label string) (any, error) {
	if u, ok := v.(Undefined); ok {
		return Undefined{Name: u.Name + "[" + ToString(key) + "]"}, nil
	}
	if s, ok := v.(string); ok {
		i, ok := numeric(key).(int64)
		if !ok {
			return nil, errorf("string indices must be integers, not %s", typeName(key))
		}
		runes := []rune(s)
		if i < 0 {
			i += int64(len(runes))
		}
		if i < 0 || i >= int64(len(runes)) {
			return ev.undefined(label)
		}
		return string(runes[i]), nil
	}
	rv := reflect.Indirect(reflect.ValueOf(v))
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		i, ok := numeric(key).(int64)
		if !ok {
			return nil, errorf("list indices must be integers, not %s", typeName(key))
		}
		if i < 0 {
			i += int64(rv.Len())
		}
		if i < 0 || i >= int64(rv.Len()) {
			return ev.undefined(label)
		}
		return rv.Index(int(i)).Interface(), nil
	case reflect.Map:
		if r, ok := mapIndex(rv, key); ok {
			return r, nil
		}
		return ev.undefined(label)
	case reflect.Struct:
		if name, ok := key.(string); ok {
			if f := fieldByName(rv, name); f.IsValid() {
				return f.Interface(), nil
			}
		}
		return ev.undefined(label)
	case reflect.Invalid:
		return nil, errorf("None is not subscriptable")
	}
	return nil, errorf("%s is not subscriptable", typeName(v))
}

func (ev *evaluator) call(v any, c *callNode, label string) (any, error) {
	var args []any
	var kwargs map[string]any
	for _, a := range c.Args {
		val, err := ev.ternary(a.Value)
		if err != nil {
			return nil, err
		}
		if a.Name == nil {
			if kwargs != nil {
				return nil, errorf("positional argument follows keyword argument in call to %s", label)
			}
			args = append(args, val)
			continue
		}
		if kwargs == nil {
			kwargs = make(map[string]any)
		}
		kwargs[*a.Name] = val
	}
	switch f := v.(type) {
	case Callable:
		return f.Call(args, kwargs)
	case Undefined:
		return nil, &UndefinedVariableError{Name: f.Name}
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Func {
		return nil, errorf("%s (%s) is not callable", label, typeName(v))
	}
	return goFunc(rv).Call(args, kwargs)
}

// goFunc wraps a reflected Go function as a Callable. Keyword arguments
// are rejected; results follow the (value), (value, error) or (error)
// conventions.
func goFunc(fn reflect.Value) Callable {
	return Func(func(args []any, kwargs map[string]any) (any, error) {
		if len(kwargs) > 0 {
			return nil, errorf("keyword arguments are not supported for %s", fn.Type())
		}
		t := fn.Type()
		n := t.NumIn()
		if t.IsVariadic() {
			if len(args) < n-1 {
				return nil, errorf("%s expects at least %d arguments, got %d", t, n-1, len(args))
			}
		} else if len(args) != n {
			return nil, errorf("%s expects %d arguments, got %d", t, n, len(args))
		}
		in := make([]reflect.Value, len(args))
		for i, a := range args {
			var pt reflect.Type
			if t.IsVariadic() && i >= n-1 {
				pt = t.In(n - 1).Elem()
			} else {
				pt = t.In(i)
			}
			av, err := convertArg(a, pt)
			if err != nil {
				return nil, err
			}
			in[i] = av
		}
		out := fn.Call(in)
		errType := reflect.TypeFor[error]()
		switch len(out) {
		case 0:
			return nil, nil
		case 1:
			if t.Out(0) == errType {
				return nil, asError(out[0])
			}
			return out[0].Interface(), nil
		default:
			if t.Out(len(out)-1) == errType {
				if err := asError(out[len(out)-1]); err != nil {
					return nil, err
				}
			}
			return out[0].Interface(), nil
		}
	})
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return &ExpressionError{Err: v.Interface().(error)}
}

func convertArg(a any, t reflect.Type) (reflect.Value, error) {
	if a == nil {
		return reflect.Zero(t), nil
	}
	av := reflect.ValueOf(a)
	if av.Type().AssignableTo(t) {
		return av, nil
	}
	if n := numeric(a); n != nil && isNumericKind(t.Kind()) {
		return reflect.ValueOf(n).Convert(t), nil
	}
	if av.Type().ConvertibleTo(t) && av.Kind() == t.Kind() {
		return av.Convert(t), nil
	}
	return reflect.Value{}, errorf("cannot use %s as %s", typeName(a), t)
}

func isNumericKind(k reflect.Kind) bool {
	return (k >= reflect.Int && k <= reflect.Uint64) || k == reflect.Float32 || k == reflect.Float64
}

func methodByName(rv reflect.Value, name string) reflect.Value {
	if m := rv.MethodByName(name); m.IsValid() {
		return m
	}
	if exported := exportName(name); exported != name {
		return rv.MethodByName(exported)
	}
	return reflect.Value{}
}

func fieldByName(rv reflect.Value, name string) reflect.Value {
	for _, n := range []string{name, exportName(name)} {
		sf, ok := rv.Type().FieldByName(n)
		if ok && sf.IsExported() {
			return rv.FieldByIndex(sf.Index)
		}
	}
	return reflect.Value{}
}

func exportName(name string) string {
	if name == "" {
		return name
	}
	r := []rune(name)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func mapIndex(m reflect.Value, key any) (any, bool) {
	kv := reflect.ValueOf(key)
	if !kv.IsValid() {
		return nil, false
	}
	kt := m.Type().Key()
	if !kv.Type().AssignableTo(kt) {
		if n := numeric(key); n != nil && isNumericKind(kt.Kind()) {
			kv = reflect.ValueOf(n).Convert(kt)
		} else if kv.Type().ConvertibleTo(kt) && kv.Kind() == kt.Kind() {
			kv = kv.Convert(kt)
		} else {
			return nil, false
		}
	}
	r := m.MapIndex(kv)
	if !r.IsValid() {
		return nil, false
	}
	return r.Interface(), true
}

func mapMethod(m reflect.Value, name string) (any, bool) {
	switch name {
	case "keys":
		return Func(func([]any, map[string]any) (any, error) {
			return Iterate(m.Interface())
		}), true
	case "values", "items":
		return Func(func([]any, map[string]any) (any, error) {
			keys, err := Iterate(m.Interface())
			if err != nil {
				return nil, err
			}
			out := make([]any, len(keys))
			for i, k := range keys {
				v, _ := mapIndex(m, k)
				if name == "values" {
					out[i] = v
				} else {
					out[i] = []any{k, v}
				}
			}
			return out, nil
		}), true
	case "get":
		return Func(func(args []any, _ map[string]any) (any, error) {
			if len(args) == 0 || len(args) > 2 {
				return nil, errorf("get expects 1 or 2 arguments, got %d", len(args))
			}
			if v, ok := mapIndex(m, args[0]); ok {
				return v, nil
			}
			if len(args) == 2 {
				return args[1], nil
			}
			return nil, nil
		}), true
	}
	return nil, false
}

func stringMethod(s, name string) (Callable, bool) {
	str := func(args []any, i int, def string) string {
		if i < len(args) {
			return ToString(args[i])
		}
		return def
	}
	var f func(args []any) (any, error)
	switch name {
	case "upper":
		f = func([]any) (any, error) { return strings.ToUpper(s), nil }
	case "lower":
		f = func([]any) (any, error) { return strings.ToLower(s), nil }
	case "strip":
		f = func(a []any) (any, error) {
			if len(a) > 0 {
				return strings.Trim(s, str(a, 0, "")), nil
			}
			return strings.TrimSpace(s), nil
		}
	case "lstrip":
		f = func(a []any) (any, error) { return strings.TrimLeft(s, str(a, 0, " \t\r\n")), nil }
	case "rstrip":
		f = func(a []any) (any, error) { return strings.TrimRight(s, str(a, 0, " \t\r\n")), nil }
	case "startswith":
		f = func(a []any) (any, error) { return strings.HasPrefix(s, str(a, 0, "")), nil }
	case "endswith":
		f = func(a []any) (any, error) { return strings.HasSuffix(s, str(a, 0, "")), nil }
	case "replace":
		f = func(a []any) (any, error) {
			if len(a) != 2 {
				return nil, errorf("replace expects 2 arguments, got %d", len(a))
			}
			return strings.ReplaceAll(s, str(a, 0, ""), str(a, 1, "")), nil
		}
	case "split":
		f = func(a []any) (any, error) {
			var parts []string
			if len(a) == 0 || a[0] == nil {
				parts = strings.Fields(s)
			} else {
				parts = strings.Split(s, str(a, 0, ""))
			}
			out := make([]any, len(parts))
			for i, p := range parts {
				out[i] = p
			}
			return out, nil
		}
	case "join":
		f = func(a []any) (any, error) {
			if len(a) != 1 {
				return nil, errorf("join expects 1 argument, got %d", len(a))
			}
			return joinItems(a[0], s)
		}
	default:
		return nil, false
	}
	return Func(func(args []any, _ map[string]any) (any, error) { return f(args) }), true
}

func joinItems(v any, sep string) (any, error) {
	items, err := Iterate(v)
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = ToString(item)
	}
	return strings.Join(parts, sep), nil
}

// numeric normalizes Go integer and float kinds to int64 or float64. It
// returns nil for anything else, including bool.
func numeric(v any) any {
	switch n := v.(type) {
	case int64, float64:
		return n
	case int:
		return int64(n)
	case bool, string, nil:
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return nil
}

func toFloat(n any) float64 {
	if i, ok := n.(int64); ok {
		return float64(i)
	}
	return n.(float64)
}

func arith(op string, l, r any) (any, error) {
	if op == "+" {
		if ls, ok := l.(string); ok {
			if rs, ok := r.(string); ok {
				return ls + rs, nil
			}
		}
		if isList(l) && isList(r) {
			a, _ := Iterate(l)
			b, _ := Iterate(r)
			return append(append(make([]any, 0, len(a)+len(b)), a...), b...), nil
		}
	}
	ln, rn := numeric(l), numeric(r)
	if op == "*" {
		if s, ok := l.(string); ok && rn != nil {
			return repeat(s, rn)
		}
		if s, ok := r.(string); ok && ln != nil {
			return repeat(s, ln)
		}
	}
	if ln == nil || rn == nil {
		return nil, errorf("unsupported operand types for %s: %s and %s", op, typeName(l), typeName(r))
	}
	li, lInt := ln.(int64)
	ri, rInt := rn.(int64)
	if lInt && rInt {
		switch op {
		case "+":
			return li + ri, nil
		case "-":
			return li - ri, nil
		case "*":
			return li * ri, nil
		case "/":
			if ri == 0 {
				return nil, errorf("division by zero")
			}
			return float64(li) / float64(ri), nil
		case "//":
			if ri == 0 {
				return nil, errorf("integer division by zero")
			}
			q := li / ri
			if li%ri != 0 && (li < 0) != (ri < 0) {
				q--
			}
			return q, nil
		case "%":
			if ri == 0 {
				return nil, errorf("integer modulo by zero")
			}
			m := li % ri
			if m != 0 && (m < 0) != (ri < 0) {
				m += ri
			}
			return m, nil
		}
	}
	lf, rf := toFloat(ln), toFloat(rn)
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	}
	if rf == 0 {
		return nil, errorf("float division by zero")
	}
	switch op {
	case "/":
		return lf / rf, nil
	case "//":
		return math.Floor(lf / rf), nil
	default:
		m := math.Mod(lf, rf)
		if m != 0 && (m < 0) != (rf < 0) {
			m += rf
		}
		return m, nil
	}
}

func repeat(s string, n any) (any, error) {
	i, ok := n.(int64)
	if !ok {
		return nil, errorf("can't multiply string by non-int of type float")
	}
	if i <= 0 {
		return "", nil
	}
	return strings.Repeat(s, int(i)), nil
}

func isList(v any) bool {
	k := reflect.ValueOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func contains(container, item any) (bool, error) {
	switch c := container.(type) {
	case Undefined:
		return false, nil
	case string:
		s, ok := item.(string)
		if !ok {
			return false, errorf("'in <string>' requires string as left operand, not %s", typeName(item))
		}
		return strings.Contains(c, s), nil
	}
	rv := reflect.Indirect(reflect.ValueOf(container))
	switch rv.Kind() {
	case reflect.Map:
		_, ok := mapIndex(rv, item)
		return ok, nil
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if Equal(rv.Index(i).Interface(), item) {
				return true, nil
			}
		}
		return false, nil
	}
	return false, errorf("argument of type %s is not iterable", typeName(container))
}

func compare(a, b any) (int, error) {
	an, bn := numeric(a), numeric(b)
	if an != nil && bn != nil {
		ai, aInt := an.(int64)
		bi, bInt := bn.(int64)
		if aInt && bInt {
			return cmpOrdered(ai, bi), nil
		}
		return cmpOrdered(toFloat(an), toFloat(bn)), nil
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(as, bs), nil
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return cmpOrdered(boolInt(ab), boolInt(bb)), nil
		}
	}
	return 0, errorf("cannot compare %s and %s", typeName(a), typeName(b))
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "None"
	case Undefined:
		return "Undefined"
	}
	return fmt.Sprintf("%T", v)
}
