// Package marshal converts between engine terms and Go values.
//
// Going into Go, reserved atoms become literals and every other atom is
// resolved through the reference table. Going into term space, primitives are
// inlined, sequences become lists and any other value is stored in the
// reference table and represented by the atom of its handle.
package marshal

import (
	"fmt"
	"math"
	"math/big"
	"reflect"

	"github.com/geolog/geolog/pkg/engine"
	"github.com/geolog/geolog/pkg/refs"
	"github.com/geolog/geolog/pkg/term"
)

// Marshaler crosses the term/host boundary. It holds no state of its own
// beyond the reference table it resolves handles against.
type Marshaler struct {
	refs *refs.Manager
}

// New creates a marshaler over the given reference table.
func New(r *refs.Manager) *Marshaler {
	return &Marshaler{refs: r}
}

// References returns the reference table.
func (m *Marshaler) References() *refs.Manager {
	return m.refs
}

// Dereference converts a term into the Go value it denotes. Primitives and
// unbound variables pass through; lists and compound arguments are
// dereferenced element-wise. An atom that is neither reserved nor a live
// handle is a lookup fault.
func (m *Marshaler) Dereference(t term.Term) (any, error) {
	switch x := t.(type) {
	case term.Atom:
		switch x {
		case term.AtomTrue:
			return true, nil
		case term.AtomFalse:
			return false, nil
		case term.AtomNone:
			return nil, nil
		}
		return m.refs.Get(refs.Handle(x))
	case *term.Variable:
		if v, ok := x.Value(); ok {
			return m.Dereference(v)
		}
		return x, nil
	case []term.Term:
		out := make([]any, len(x))
		for i, e := range x {
			v, err := m.Dereference(e)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case term.Compound:
		args := make([]term.Term, len(x.Args))
		for i, e := range x.Args {
			v, err := m.Dereference(e)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return term.Compound{Functor: x.Functor, Args: args}, nil
	default:
		return t, nil
	}
}

// Unify unifies target with value.
//
// A list target is unified pairwise with value, which must be a sequence of
// the same length; anything else is a contract violation. An unbound variable
// is bound to the term form of value. Any other target succeeds only if its
// dereferenced form equals value.
func (m *Marshaler) Unify(target term.Term, value any) (bool, error) {
	switch t := target.(type) {
	case []term.Term:
		seq, ok := Sequence(value)
		if !ok {
			return false, engine.NewContractError(engine.ErrCodeLengthMismatch,
				fmt.Sprintf("cannot unify a list of %d elements with %T", len(t), value))
		}
		if len(seq) != len(t) {
			return false, engine.NewContractError(engine.ErrCodeLengthMismatch,
				fmt.Sprintf("cannot unify a list of %d elements with %d values", len(t), len(seq)))
		}
		for i := range t {
			ok, err := m.Unify(t[i], seq[i])
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case *term.Variable:
		if bound, ok := t.Value(); ok {
			return m.Unify(bound, value)
		}
		return t.Bind(m.ToTerm(value)), nil
	default:
		d, err := m.Dereference(target)
		if err != nil {
			return false, err
		}
		return Equal(d, value), nil
	}
}

// ToTerm converts a Go value into term form, minting handles for values that
// have no term representation.
func (m *Marshaler) ToTerm(value any) term.Term {
	if p, ok := Primitive(value); ok {
		return p
	}
	switch value.(type) {
	case term.Atom, term.Compound, *term.Variable:
		return value
	}
	if seq, ok := Sequence(value); ok {
		list := make([]term.Term, len(seq))
		for i, e := range seq {
			list[i] = m.ToTerm(e)
		}
		return list
	}
	return term.Atom(m.refs.Store(addressable(value)))
}

// addressable moves a struct held by value behind a pointer to a copy, so
// its fields stay writable through the handle.
func addressable(value any) any {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Struct {
		return value
	}
	p := reflect.New(rv.Type())
	p.Elem().Set(rv)
	return p.Interface()
}

// Primitive returns the term form of a primitive Go value: nil becomes none,
// integers widen to int64, floats to float64. Big integers and unsigned
// values that do not fit an int64 stay as *big.Int.
func Primitive(value any) (term.Term, bool) {
	switch v := value.(type) {
	case nil:
		return term.AtomNone, true
	case bool, int64, float64, string:
		return v, true
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint:
		return widenUnsigned(uint64(v))
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return widenUnsigned(v)
	case float32:
		return float64(v), true
	case *big.Int:
		if v == nil {
			return nil, false
		}
		if v.IsInt64() {
			return v.Int64(), true
		}
		return v, true
	}
	return nil, false
}

func widenUnsigned(u uint64) (term.Term, bool) {
	if u > math.MaxInt64 {
		return new(big.Int).SetUint64(u), true
	}
	return int64(u), true
}

// Sequence returns the elements of a slice or array value. Strings and byte
// slices are not sequences.
func Sequence(value any) ([]any, bool) {
	if list, ok := value.([]any); ok {
		return list, true
	}
	if value == nil {
		return nil, false
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil, false
		}
	case reflect.Array:
	default:
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// Equal compares a dereferenced term with a Go value. Numbers compare by
// value across integer and float kinds; sequences compare element-wise.
func Equal(a, b any) bool {
	if pa, ok := Primitive(a); ok {
		if pb, ok := Primitive(b); ok {
			return primitiveEqual(pa, pb)
		}
		return false
	}
	if sa, ok := Sequence(a); ok {
		sb, ok := Sequence(b)
		if !ok || len(sa) != len(sb) {
			return false
		}
		for i := range sa {
			if !Equal(sa[i], sb[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(indirectStruct(a), indirectStruct(b))
}

// indirectStruct unwraps a pointer to a struct so a value stored by
// addressable still equals the struct it was made from.
func indirectStruct(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Kind() == reflect.Struct {
		return rv.Elem().Interface()
	}
	return v
}

func primitiveEqual(a, b term.Term) bool {
	if x, ok := a.(*big.Int); ok {
		return bigEqual(x, b)
	}
	if y, ok := b.(*big.Int); ok {
		return bigEqual(y, a)
	}
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return x == y
		case float64:
			return float64(x) == y
		}
		return false
	case float64:
		switch y := b.(type) {
		case int64:
			return x == float64(y)
		case float64:
			return x == y
		}
		return false
	}
	return a == b
}

func bigEqual(x *big.Int, other term.Term) bool {
	switch y := other.(type) {
	case *big.Int:
		return x.Cmp(y) == 0
	case int64:
		return x.Cmp(big.NewInt(y)) == 0
	}
	return false
}
