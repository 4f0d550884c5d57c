// Package term defines the values that cross the boundary between the logic
// engine and Go.
//
// A Term is one of:
//
//   - *Variable: an unbound logic variable that a foreign predicate may bind once
//   - Atom: a symbolic constant; handles and the reserved literals true/false/none are atoms
//   - Compound: a functor applied to arguments
//   - []Term: a proper list
//   - int64, float64, bool or string: primitives
//   - *big.Int: an integer outside the int64 range
//
// The engine adapter owns the conversion from its native representation into
// these values; everything above it (marshal, predicate) works on this model only.
package term

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
)

// Term is any value understood by the engine boundary.
type Term = any

// Atom is a symbolic constant.
type Atom string

// Reserved atoms that map to Go literals when dereferenced.
const (
	AtomTrue  Atom = "true"
	AtomFalse Atom = "false"
	AtomNone  Atom = "none"
)

// Of builds a compound term with the atom as functor.
func (a Atom) Of(args ...Term) Compound {
	return Compound{Functor: a, Args: args}
}

// String implements fmt.Stringer.
func (a Atom) String() string {
	return string(a)
}

// IsReserved reports whether the atom is one of true, false or none.
func (a Atom) IsReserved() bool {
	switch a {
	case AtomTrue, AtomFalse, AtomNone:
		return true
	}
	return false
}

// Compound is a functor applied to one or more arguments.
type Compound struct {
	Functor Atom
	Args    []Term
}

// Arity returns the number of arguments.
func (c Compound) Arity() int {
	return len(c.Args)
}

// Indicator returns the Name/Arity predicate indicator of the compound.
func (c Compound) Indicator() string {
	return fmt.Sprintf("%s/%d", c.Functor, len(c.Args))
}

// String renders the compound in canonical form.
func (c Compound) String() string {
	parts := make([]string, len(c.Args))
	for i, arg := range c.Args {
		parts[i] = Format(arg)
	}
	return fmt.Sprintf("%s(%s)", c.Functor, strings.Join(parts, ", "))
}

// Variable is a logic variable slot. Foreign predicates receive unbound
// variables for their output positions and bind them through the marshaler;
// the engine adapter copies the binding back into the engine when the call
// succeeds.
type Variable struct {
	Name string

	mu    sync.Mutex
	value Term
	bound bool
}

// NewVariable returns an unbound variable.
func NewVariable(name string) *Variable {
	return &Variable{Name: name}
}

// Bind binds the variable. A variable is bound at most once; binding it again
// reports false and leaves the first value in place.
func (v *Variable) Bind(value Term) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.bound {
		return false
	}
	v.value = value
	v.bound = true
	return true
}

// Value returns the bound value, if any.
func (v *Variable) Value() (Term, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value, v.bound
}

// Bound reports whether the variable has a value.
func (v *Variable) Bound() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.bound
}

// String implements fmt.Stringer.
func (v *Variable) String() string {
	if val, ok := v.Value(); ok {
		return Format(val)
	}
	if v.Name == "" {
		return "_"
	}
	return v.Name
}

// Resolve replaces every bound variable inside t by its value, recursively.
// Unbound variables are returned as they are.
func Resolve(t Term) Term {
	switch x := t.(type) {
	case *Variable:
		if val, ok := x.Value(); ok {
			return Resolve(val)
		}
		return x
	case []Term:
		out := make([]Term, len(x))
		for i, e := range x {
			out[i] = Resolve(e)
		}
		return out
	case Compound:
		args := make([]Term, len(x.Args))
		for i, e := range x.Args {
			args[i] = Resolve(e)
		}
		return Compound{Functor: x.Functor, Args: args}
	default:
		return t
	}
}

// IsPrimitive reports whether t is one of the primitive term types.
func IsPrimitive(t Term) bool {
	switch t.(type) {
	case int64, float64, bool, string, *big.Int:
		return true
	}
	return false
}

// Format renders a term for logs and CLI output.
func Format(t Term) string {
	switch x := t.(type) {
	case nil:
		return string(AtomNone)
	case string:
		return fmt.Sprintf("%q", x)
	case Atom:
		return string(x)
	case *Variable:
		return x.String()
	case Compound:
		return x.String()
	case []Term:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = Format(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(x)
	}
}
