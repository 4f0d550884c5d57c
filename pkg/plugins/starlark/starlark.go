// Package starlark lets logic programs evaluate Starlark expressions and
// scripts.
//
//	?- starlark:eval("len(names) * scale", ["names"-["a", "b"], "scale"-2], N).
//
// Globals are Name-Value pairs with string names. Values cross in both
// directions through the usual marshaling: host objects passed in are
// readable from Starlark through their fields and methods, and Starlark
// values without a Go counterpart come back as objects usable with
// geolog:get_attribute/3 and geolog:call_method/2..4.
package starlark

import (
	"fmt"

	"github.com/geolog/geolog/pkg/engine"
	"github.com/geolog/geolog/pkg/predicate"
	"github.com/geolog/geolog/pkg/term"
)

const (
	// Module is the engine module of the predicates.
	Module = "starlark"
	// Namespace is the catalog namespace of the predicates.
	Namespace = "geolog_plugins/starlark"
)

func init() {
	predicate.Register(Namespace,
		func(env *predicate.Env) (predicate.Predicate, error) {
			ev := NewEvaluator(0, env.Logger)
			return predicate.New("eval", ev.evalPredicate).Module(Module).Defaults(nil).Build(env)
		},
		func(env *predicate.Env) (predicate.Predicate, error) {
			ev := NewEvaluator(0, env.Logger)
			return predicate.New("exec", ev.execPredicate).Module(Module).Defaults(nil).Build(env)
		},
	)
}

// evalPredicate is eval(Expr, Result) or eval(Expr, Globals, Result).
func (e *Evaluator) evalPredicate(c *predicate.Context, expr string, third, fourth any) (bool, error) {
	globals, out, ok := splitGlobals(c, third, fourth)
	if !ok {
		return false, nil
	}
	value, err := e.Eval(c, expr, globals)
	if err != nil {
		return false, engine.NewHostError("starlark eval", err).WithDetail("expr", expr)
	}
	return c.Unify(out, value)
}

// execPredicate is exec(Script, Module) or exec(Script, Globals, Module);
// Module is unified with the script's globals as a string-keyed map.
func (e *Evaluator) execPredicate(c *predicate.Context, script string, third, fourth any) (bool, error) {
	globals, out, ok := splitGlobals(c, third, fourth)
	if !ok {
		return false, nil
	}
	module, err := e.Exec(c, script, globals)
	if err != nil {
		return false, engine.NewHostError("starlark exec", err)
	}
	return c.Unify(out, module)
}

// splitGlobals sorts out the optional globals argument.
func splitGlobals(c *predicate.Context, third, fourth any) (map[string]any, any, bool) {
	if c.Arity() < 3 {
		return nil, third, true
	}
	globals, err := Globals(third)
	if err != nil {
		logger := c.Logger()
		logger.Debug().Err(err).Str("predicate", c.Indicator()).Msg("bad globals, failing")
		return nil, nil, false
	}
	return globals, fourth, true
}

// Globals converts a dereferenced list of Name-Value pairs into a map.
func Globals(v any) (map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	pairs, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("globals must be a list, got %T", v)
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		c, ok := p.(term.Compound)
		if !ok || c.Functor != "-" || len(c.Args) != 2 {
			return nil, fmt.Errorf("global %v is not a Name-Value pair", p)
		}
		name, ok := c.Args[0].(string)
		if !ok {
			return nil, fmt.Errorf("global name %v is not a string", c.Args[0])
		}
		out[name] = c.Args[1]
	}
	return out, nil
}
