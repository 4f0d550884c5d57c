package prolog

import (
	"fmt"
	"math/big"

	"github.com/trealla-prolog/go/trealla"

	"github.com/geolog/geolog/pkg/term"
)

// decoder converts engine terms into the term model. Variables with the same
// name map to the same *term.Variable within one decoder.
type decoder struct {
	vars map[string]*term.Variable
}

func newDecoder() *decoder {
	return &decoder{vars: make(map[string]*term.Variable)}
}

func (d *decoder) decode(t trealla.Term) term.Term {
	switch x := t.(type) {
	case trealla.Atom:
		return term.Atom(x)
	case string:
		return x
	case int64:
		return x
	case int:
		return int64(x)
	case float64:
		return x
	case *big.Int:
		if x.IsInt64() {
			return x.Int64()
		}
		return x
	case trealla.Variable:
		if x.Name == "_" {
			return term.NewVariable(x.Name)
		}
		v, ok := d.vars[x.Name]
		if !ok {
			v = term.NewVariable(x.Name)
			d.vars[x.Name] = v
		}
		return v
	case trealla.Compound:
		args := make([]term.Term, len(x.Args))
		for i, a := range x.Args {
			args[i] = d.decode(a)
		}
		return term.Compound{Functor: term.Atom(x.Functor), Args: args}
	case []trealla.Term:
		list := make([]term.Term, len(x))
		for i, e := range x {
			list[i] = d.decode(e)
		}
		return list
	default:
		return t
	}
}

// encode converts a term back into engine form. Bound variables are replaced
// by their values.
func encode(t term.Term) (trealla.Term, error) {
	switch x := t.(type) {
	case nil:
		return trealla.Atom(term.AtomNone), nil
	case term.Atom:
		return trealla.Atom(x), nil
	case bool:
		if x {
			return trealla.Atom(term.AtomTrue), nil
		}
		return trealla.Atom(term.AtomFalse), nil
	case string, int64, float64, *big.Int:
		return x, nil
	case *term.Variable:
		if v, ok := x.Value(); ok {
			return encode(v)
		}
		return trealla.Variable{Name: x.Name}, nil
	case term.Compound:
		args := make([]trealla.Term, len(x.Args))
		for i, a := range x.Args {
			e, err := encode(a)
			if err != nil {
				return nil, err
			}
			args[i] = e
		}
		return trealla.Compound{Functor: trealla.Atom(x.Functor), Args: args}, nil
	case []term.Term:
		list := make([]trealla.Term, len(x))
		for i, a := range x {
			e, err := encode(a)
			if err != nil {
				return nil, err
			}
			list[i] = e
		}
		return list, nil
	default:
		return nil, fmt.Errorf("no engine representation for %T", t)
	}
}

// goalArgs returns the arguments of a goal term in the term model.
func goalArgs(goal trealla.Term) []term.Term {
	c, ok := goal.(trealla.Compound)
	if !ok {
		return nil
	}
	d := newDecoder()
	args := make([]term.Term, len(c.Args))
	for i, a := range c.Args {
		args[i] = d.decode(a)
	}
	return args
}

// bindGoal rebuilds goal with args, which carry the bindings made by the
// predicate. The engine unifies the result with the original goal.
func bindGoal(goal trealla.Term, args []term.Term) (trealla.Term, error) {
	c, ok := goal.(trealla.Compound)
	if !ok {
		return goal, nil
	}
	out := make([]trealla.Term, len(args))
	for i, a := range args {
		e, err := encode(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		out[i] = e
	}
	return trealla.Compound{Functor: c.Functor, Args: out}, nil
}
