package hostobj

import (
	"cmp"
	"fmt"
	"iter"
	"reflect"
	"slices"
)

// Iterator yields host values one at a time. Stop releases resources held by
// the iterator; it is safe to call more than once and after exhaustion.
type Iterator interface {
	Next() (any, bool)
	Stop()
}

// Iterable is implemented by values that provide their own element sequence.
type Iterable interface {
	Iter() iter.Seq[any]
}

// Iterate returns an iterator over v. Supported are Iterator values (returned
// as they are), Iterable values, iter.Seq functions of any element type,
// slices, arrays, strings (one-rune strings), maps (keys, in sorted order) and
// receive channels. It reports false for anything else.
func Iterate(v any) (Iterator, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case Iterator:
		return x, true
	case Iterable:
		return Pull(x.Iter()), true
	case iter.Seq[any]:
		return Pull(x), true
	case string:
		return &sliceIterator{v: reflect.ValueOf(runeStrings(x))}, true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if !rv.IsNil() && rv.Elem().Kind() == reflect.Array {
			return &sliceIterator{v: rv.Elem()}, true
		}
	case reflect.Slice, reflect.Array:
		return &sliceIterator{v: rv}, true
	case reflect.Map:
		keys := rv.MapKeys()
		slices.SortFunc(keys, func(a, b reflect.Value) int {
			return compareKeys(a, b)
		})
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = k.Interface()
		}
		return &sliceIterator{v: reflect.ValueOf(out)}, true
	case reflect.Chan:
		if rv.Type().ChanDir()&reflect.RecvDir != 0 {
			return &chanIterator{v: rv}, true
		}
	case reflect.Func:
		if seq, ok := seqOf(rv); ok {
			return Pull(seq), true
		}
	}
	return nil, false
}

// IsIterable reports whether Iterate accepts v.
func IsIterable(v any) bool {
	it, ok := Iterate(v)
	if _, self := v.(Iterator); ok && !self {
		it.Stop()
	}
	return ok
}

// Pull turns a push sequence into an Iterator.
func Pull(seq iter.Seq[any]) Iterator {
	next, stop := iter.Pull(seq)
	return &pullIterator{next: next, stop: stop}
}

// FromSlice returns an iterator over a copy of values.
func FromSlice(values []any) Iterator {
	return &sliceIterator{v: reflect.ValueOf(slices.Clone(values))}
}

type pullIterator struct {
	next func() (any, bool)
	stop func()
}

func (it *pullIterator) Next() (any, bool) {
	return it.next()
}

func (it *pullIterator) Stop() {
	it.stop()
}

// sliceIterator walks a slice or array by index, so appends made to a slice
// through a pointer after the iterator was created are not observed.
type sliceIterator struct {
	v   reflect.Value
	pos int
}

func (it *sliceIterator) Next() (any, bool) {
	if it.pos >= it.v.Len() {
		return nil, false
	}
	e := it.v.Index(it.pos).Interface()
	it.pos++
	return e, true
}

func (it *sliceIterator) Stop() {
	it.pos = it.v.Len()
}

type chanIterator struct {
	v    reflect.Value
	done bool
}

func (it *chanIterator) Next() (any, bool) {
	if it.done {
		return nil, false
	}
	e, ok := it.v.Recv()
	if !ok {
		it.done = true
		return nil, false
	}
	return e.Interface(), true
}

func (it *chanIterator) Stop() {
	it.done = true
}

var boolType = reflect.TypeOf(true)

// seqOf adapts a func(func(T) bool) value to iter.Seq[any].
func seqOf(fn reflect.Value) (iter.Seq[any], bool) {
	t := fn.Type()
	if fn.IsNil() || t.NumIn() != 1 || t.NumOut() != 0 {
		return nil, false
	}
	yt := t.In(0)
	if yt.Kind() != reflect.Func || yt.NumIn() != 1 || yt.NumOut() != 1 || yt.Out(0) != boolType {
		return nil, false
	}
	return func(yield func(any) bool) {
		y := reflect.MakeFunc(yt, func(args []reflect.Value) []reflect.Value {
			return []reflect.Value{reflect.ValueOf(yield(args[0].Interface()))}
		})
		fn.Call([]reflect.Value{y})
	}, true
}

func runeStrings(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

func compareKeys(a, b reflect.Value) int {
	switch {
	case a.CanInt() && b.CanInt():
		return cmp.Compare(a.Int(), b.Int())
	case a.CanUint() && b.CanUint():
		return cmp.Compare(a.Uint(), b.Uint())
	case a.CanFloat() && b.CanFloat():
		return cmp.Compare(a.Float(), b.Float())
	case a.Kind() == reflect.String && b.Kind() == reflect.String:
		return cmp.Compare(a.String(), b.String())
	}
	return cmp.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
}
