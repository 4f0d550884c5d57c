// Package hostobj gives logic programs reflective access to live Go values:
// attribute reads and writes, method calls, indexed access and iteration.
//
// Attribute and method names coming from programs are usually written in
// snake_case; they are matched against Go identifiers exactly first, then
// with the first letter upper-cased, then converted to CamelCase. Types that
// want to expose attributes reflection cannot see implement Attributer and
// AttrSetter.
package hostobj

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Attributer is implemented by values that resolve attributes themselves.
type Attributer interface {
	Attr(name string) (any, bool)
}

// AttrSetter is implemented by values that accept attribute writes themselves.
type AttrSetter interface {
	SetAttr(name string, value any) bool
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// GetAttribute reads the named attribute of obj: an exported struct field, a
// string-keyed map entry or a method value. It reports false if obj has no
// such attribute.
func GetAttribute(obj any, name string) (any, bool) {
	if obj == nil {
		return nil, false
	}
	if a, ok := obj.(Attributer); ok {
		return a.Attr(name)
	}
	v := reflect.ValueOf(obj)
	if f, ok := field(v, name); ok && f.CanInterface() {
		return f.Interface(), true
	}
	if m, ok := method(v, name); ok {
		return m.Interface(), true
	}
	return nil, false
}

// SetAttribute writes the named attribute of obj. Struct fields are only
// writable through a pointer. It reports false if the attribute is absent,
// not settable, or value cannot be converted to the attribute's type.
func SetAttribute(obj any, name string, value any) bool {
	if obj == nil {
		return false
	}
	if s, ok := obj.(AttrSetter); ok {
		return s.SetAttr(name, value)
	}
	v := indirect(reflect.ValueOf(obj))
	if v.Kind() == reflect.Map {
		if v.IsNil() || v.Type().Key().Kind() != reflect.String {
			return false
		}
		key := reflect.ValueOf(name).Convert(v.Type().Key())
		if !v.MapIndex(key).IsValid() {
			return false
		}
		cv, err := Convert(value, v.Type().Elem())
		if err != nil {
			return false
		}
		v.SetMapIndex(key, cv)
		return true
	}
	f, ok := field(v, name)
	if !ok || !f.CanSet() {
		return false
	}
	cv, err := Convert(value, f.Type())
	if err != nil {
		return false
	}
	f.Set(cv)
	return true
}

// HasMethod reports whether obj has a callable attribute with the given name.
func HasMethod(obj any, name string) bool {
	_, ok := callable(obj, name)
	return ok
}

// CallMethod invokes the named method (or function-valued attribute) of obj
// with args. found is false when the attribute is absent or not callable. A
// trailing error result is stripped from results and returned as err.
func CallMethod(obj any, name string, args []any) (results []any, found bool, err error) {
	fn, ok := callable(obj, name)
	if !ok {
		return nil, false, nil
	}
	in, err := arguments(fn.Type(), args)
	if err != nil {
		return nil, true, fmt.Errorf("calling %s: %w", name, err)
	}
	out := fn.Call(in)
	if n := len(out); n > 0 && fn.Type().Out(n-1).Implements(errorType) {
		if e := out[n-1]; !e.IsNil() {
			return nil, true, e.Interface().(error)
		}
		out = out[:n-1]
	}
	results = make([]any, len(out))
	for i, r := range out {
		results[i] = r.Interface()
	}
	return results, true, nil
}

// Index returns element i of a slice, array or string (as a one-rune string),
// or the entry keyed by i in an int-keyed map. It reports false when i is out
// of range or coll is not indexable.
func Index(coll any, i int) (any, bool) {
	if coll == nil || i < 0 {
		return nil, false
	}
	if s, ok := coll.(string); ok {
		runes := []rune(s)
		if i >= len(runes) {
			return nil, false
		}
		return string(runes[i]), true
	}
	v := indirect(reflect.ValueOf(coll))
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if i >= v.Len() {
			return nil, false
		}
		return v.Index(i).Interface(), true
	case reflect.Map:
		key, err := Convert(int64(i), v.Type().Key())
		if err != nil {
			return nil, false
		}
		e := v.MapIndex(key)
		if !e.IsValid() {
			return nil, false
		}
		return e.Interface(), true
	}
	return nil, false
}

// Len returns the length of a sized collection.
func Len(coll any) (int, bool) {
	if s, ok := coll.(string); ok {
		return utf8.RuneCountInString(s), true
	}
	if coll == nil {
		return 0, false
	}
	v := indirect(reflect.ValueOf(coll))
	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
		return v.Len(), true
	}
	return 0, false
}

// TypeName returns the Go type name of v, "nil" for nil.
func TypeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}

// callable resolves name on obj to a function value.
func callable(obj any, name string) (reflect.Value, bool) {
	if obj == nil {
		return reflect.Value{}, false
	}
	v := reflect.ValueOf(obj)
	if m, ok := method(v, name); ok {
		return m, true
	}
	attr, ok := GetAttribute(obj, name)
	if !ok || attr == nil {
		return reflect.Value{}, false
	}
	fv := reflect.ValueOf(attr)
	if fv.Kind() != reflect.Func || fv.IsNil() {
		return reflect.Value{}, false
	}
	return fv, true
}

// arguments converts args to the parameter types of fn, honouring variadic
// signatures.
func arguments(fn reflect.Type, args []any) ([]reflect.Value, error) {
	n := fn.NumIn()
	if fn.IsVariadic() {
		if len(args) < n-1 {
			return nil, fmt.Errorf("expected at least %d arguments, got %d", n-1, len(args))
		}
	} else if len(args) != n {
		return nil, fmt.Errorf("expected %d arguments, got %d", n, len(args))
	}
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		var t reflect.Type
		if fn.IsVariadic() && i >= n-1 {
			t = fn.In(n - 1).Elem()
		} else {
			t = fn.In(i)
		}
		cv, err := Convert(arg, t)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		in[i] = cv
	}
	return in, nil
}

func field(v reflect.Value, name string) (reflect.Value, bool) {
	v = indirect(v)
	switch v.Kind() {
	case reflect.Struct:
		for _, n := range candidates(name) {
			sf, ok := v.Type().FieldByName(n)
			if !ok || !sf.IsExported() {
				continue
			}
			f, err := v.FieldByIndexErr(sf.Index)
			if err != nil {
				return reflect.Value{}, false
			}
			return f, true
		}
	case reflect.Map:
		if v.IsNil() || v.Type().Key().Kind() != reflect.String {
			return reflect.Value{}, false
		}
		e := v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key()))
		if e.IsValid() {
			return e, true
		}
	}
	return reflect.Value{}, false
}

func method(v reflect.Value, name string) (reflect.Value, bool) {
	for _, n := range candidates(name) {
		if m := v.MethodByName(n); m.IsValid() {
			return m, true
		}
		if iv := indirect(v); iv.IsValid() && iv != v {
			if m := iv.MethodByName(n); m.IsValid() {
				return m, true
			}
		}
	}
	return reflect.Value{}, false
}

// indirect follows pointers and interfaces down to a concrete value.
func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return v
		}
		v = v.Elem()
	}
	return v
}

// candidates returns the Go identifiers a program-side name may refer to.
func candidates(name string) []string {
	out := []string{name}
	if name == "" {
		return out
	}
	r, size := utf8.DecodeRuneInString(name)
	if upper := string(unicode.ToUpper(r)) + name[size:]; upper != name {
		out = append(out, upper)
	}
	if strings.Contains(name, "_") {
		var b strings.Builder
		for _, part := range strings.Split(name, "_") {
			if part == "" {
				continue
			}
			r, size := utf8.DecodeRuneInString(part)
			b.WriteRune(unicode.ToUpper(r))
			b.WriteString(part[size:])
		}
		if camel := b.String(); camel != "" && camel != out[len(out)-1] {
			out = append(out, camel)
		}
	}
	return out
}
