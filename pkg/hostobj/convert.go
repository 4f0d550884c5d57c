package hostobj

import (
	"fmt"
	"math"
	"reflect"
)

// Convert adapts a dereferenced term value to type t so it can be passed to a
// Go function or stored in a field. Numbers convert between kinds when no
// precision is lost, sequences convert element-wise, nil becomes the zero
// value of nillable types. Anything else must be assignable as it is.
func Convert(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		switch t.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("cannot use nil as %s", t)
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	// Structs stored under a handle are held by pointer.
	if rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Kind() == reflect.Struct && rv.Elem().Type().AssignableTo(t) {
		return rv.Elem(), nil
	}
	switch sk, tk := rv.Kind(), t.Kind(); {
	case isNumber(sk) && isNumber(tk):
		return convertNumber(rv, t)
	case sk == tk && (sk == reflect.String || sk == reflect.Bool):
		return rv.Convert(t), nil
	case isSequence(sk) && isSequence(tk):
		return convertSequence(rv, t)
	case sk == reflect.String && tk == reflect.Slice && t.Elem().Kind() == reflect.Uint8:
		return rv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %s as %s", rv.Type(), t)
}

func isNumber(k reflect.Kind) bool {
	return isInt(k) || isUint(k) || k == reflect.Float32 || k == reflect.Float64
}

func isInt(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isSequence(k reflect.Kind) bool {
	return k == reflect.Slice || k == reflect.Array
}

func convertNumber(rv reflect.Value, t reflect.Type) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	fail := func() (reflect.Value, error) {
		return reflect.Value{}, fmt.Errorf("cannot represent %v as %s", rv.Interface(), t)
	}
	switch sk := rv.Kind(); {
	case isInt(sk):
		n := rv.Int()
		switch {
		case isInt(t.Kind()):
			if out.OverflowInt(n) {
				return fail()
			}
			out.SetInt(n)
		case isUint(t.Kind()):
			if n < 0 || out.OverflowUint(uint64(n)) {
				return fail()
			}
			out.SetUint(uint64(n))
		default:
			out.SetFloat(float64(n))
		}
	case isUint(sk):
		u := rv.Uint()
		switch {
		case isInt(t.Kind()):
			if u > math.MaxInt64 || out.OverflowInt(int64(u)) {
				return fail()
			}
			out.SetInt(int64(u))
		case isUint(t.Kind()):
			if out.OverflowUint(u) {
				return fail()
			}
			out.SetUint(u)
		default:
			out.SetFloat(float64(u))
		}
	default:
		f := rv.Float()
		switch {
		case isInt(t.Kind()):
			if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 || out.OverflowInt(int64(f)) {
				return fail()
			}
			out.SetInt(int64(f))
		case isUint(t.Kind()):
			if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 || out.OverflowUint(uint64(f)) {
				return fail()
			}
			out.SetUint(uint64(f))
		default:
			if out.OverflowFloat(f) {
				return fail()
			}
			out.SetFloat(f)
		}
	}
	return out, nil
}

func convertSequence(rv reflect.Value, t reflect.Type) (reflect.Value, error) {
	n := rv.Len()
	var out reflect.Value
	if t.Kind() == reflect.Array {
		if t.Len() != n {
			return reflect.Value{}, fmt.Errorf("cannot use %d elements as %s", n, t)
		}
		out = reflect.New(t).Elem()
	} else {
		out = reflect.MakeSlice(t, n, n)
	}
	for i := 0; i < n; i++ {
		e, err := Convert(rv.Index(i).Interface(), t.Elem())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
		}
		out.Index(i).Set(e)
	}
	return out, nil
}
