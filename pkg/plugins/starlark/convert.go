package starlark

import (
	"fmt"
	"math/big"
	"reflect"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/geolog/geolog/pkg/hostobj"
	"github.com/geolog/geolog/pkg/marshal"
)

// FromStarlark converts a Starlark value to a Go value. Scalars, sequences,
// string-keyed dicts and structs convert structurally; anything else is
// wrapped in an Object.
func FromStarlark(v starlark.Value) any {
	switch val := v.(type) {
	case nil, starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(val)
	case starlark.Int:
		if i, ok := val.Int64(); ok {
			return i
		}
		return val.BigInt()
	case starlark.Float:
		return float64(val)
	case starlark.String:
		return string(val)
	case starlark.Bytes:
		return []byte(val)
	case *starlark.List, starlark.Tuple, *starlark.Set:
		return fromIterable(val.(starlark.Iterable))
	case *starlark.Dict:
		out := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return &Object{v: val}
			}
			out[string(key)] = FromStarlark(item[1])
		}
		return out
	case *starlarkstruct.Struct:
		out := make(map[string]any)
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			out[name] = FromStarlark(attr)
		}
		return out
	case *hostValue:
		return val.v
	default:
		return &Object{v: v}
	}
}

func fromIterable(it starlark.Iterable) []any {
	iter := it.Iterate()
	defer iter.Done()
	var out []any
	var x starlark.Value
	for iter.Next(&x) {
		out = append(out, FromStarlark(x))
	}
	if out == nil {
		out = []any{}
	}
	return out
}

// ToStarlark converts a Go value to a Starlark value. Host objects are
// exposed with their fields and methods as attributes.
func ToStarlark(v any) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return val, nil
	case *Object:
		return val.v, nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case int32:
		return starlark.MakeInt64(int64(val)), nil
	case uint:
		return starlark.MakeUint(val), nil
	case uint64:
		return starlark.MakeUint64(val), nil
	case *big.Int:
		return starlark.MakeBigInt(val), nil
	case float32:
		return starlark.Float(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []byte:
		return starlark.Bytes(val), nil
	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := ToStarlark(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	}
	if seq, ok := marshal.Sequence(v); ok {
		list := make([]starlark.Value, len(seq))
		for i, item := range seq {
			sv, err := ToStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	}
	if k := reflect.ValueOf(v).Kind(); k == reflect.Func || k == reflect.Chan {
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
	return &hostValue{v: v}, nil
}

// Object is a Starlark value without a Go counterpart, such as a function
// or a dict with non-string keys. Its Starlark attributes are readable
// through get_attribute and callable values through call_method(Obj, call,
// Args, Result).
type Object struct {
	v starlark.Value
}

// Attr implements hostobj.Attributer.
func (o *Object) Attr(name string) (any, bool) {
	ha, ok := o.v.(starlark.HasAttrs)
	if !ok {
		return nil, false
	}
	attr, err := ha.Attr(name)
	if err != nil || attr == nil {
		return nil, false
	}
	return FromStarlark(attr), true
}

// Call calls the wrapped value if it is callable.
func (o *Object) Call(args ...any) (any, error) {
	fn, ok := o.v.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("%s is not callable", o.v.Type())
	}
	tuple := make(starlark.Tuple, len(args))
	for i, a := range args {
		sv, err := ToStarlark(a)
		if err != nil {
			return nil, err
		}
		tuple[i] = sv
	}
	thread := &starlark.Thread{Name: "geolog-call"}
	res, err := starlark.Call(thread, fn, tuple, nil)
	if err != nil {
		return nil, err
	}
	return FromStarlark(res), nil
}

// Type returns the Starlark type name.
func (o *Object) Type() string {
	return o.v.Type()
}

// String returns the Starlark representation.
func (o *Object) String() string {
	return o.v.String()
}

// hostValue exposes a Go value to Starlark. Attribute access goes through
// hostobj, so exported fields, map entries and methods are all reachable.
type hostValue struct {
	v any
}

var _ starlark.HasAttrs = (*hostValue)(nil)

func (h *hostValue) String() string        { return fmt.Sprintf("<%s>", hostobj.TypeName(h.v)) }
func (h *hostValue) Type() string          { return hostobj.TypeName(h.v) }
func (h *hostValue) Freeze()               {}
func (h *hostValue) Truth() starlark.Bool  { return starlark.True }
func (h *hostValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: %s", h.Type()) }
func (h *hostValue) AttrNames() []string   { return nil }

func (h *hostValue) Attr(name string) (starlark.Value, error) {
	if hostobj.HasMethod(h.v, name) {
		return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if len(kwargs) > 0 {
				return nil, fmt.Errorf("%s: keyword arguments are not supported", b.Name())
			}
			in := make([]any, len(args))
			for i, a := range args {
				in[i] = FromStarlark(a)
			}
			results, _, err := hostobj.CallMethod(h.v, name, in)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", b.Name(), err)
			}
			switch len(results) {
			case 0:
				return starlark.None, nil
			case 1:
				return ToStarlark(results[0])
			default:
				return ToStarlark(results)
			}
		}), nil
	}
	value, ok := hostobj.GetAttribute(h.v, name)
	if !ok {
		return nil, nil
	}
	return ToStarlark(value)
}
