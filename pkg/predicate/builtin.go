package predicate

import (
	"strings"

	"github.com/google/uuid"

	"github.com/geolog/geolog/pkg/engine"
	"github.com/geolog/geolog/pkg/hostobj"
	"github.com/geolog/geolog/pkg/refs"
)

// BuiltinModule is the module of the host-object predicates.
const BuiltinModule = "geolog"

// CoreNamespace is the catalog namespace of the built-in predicates.
const CoreNamespace = "geolog_core"

func init() {
	Register(CoreNamespace,
		builtin("delete", deleteHandle),
		builtin("get_attribute", getAttribute),
		builtin("set_attribute", setAttribute),
		func(env *Env) (Predicate, error) {
			return New("call_method", callMethod).Module(BuiltinModule).Defaults(nil, nil).Build(env)
		},
		func(env *Env) (Predicate, error) {
			return New("iterate", iterate).Module(BuiltinModule).Nondeterministic().OnPrune(stopCursor).Build(env)
		},
		builtin("next", next),
		builtin("get_by_index", getByIndex),
		builtin("iterator", iterator),
		builtin("replace", replace),
		builtin("uuid", newUUID),
		builtin("type_of", typeOf),
		builtin("size", size),
	)
}

func builtin(name string, fn any) Factory {
	return func(env *Env) (Predicate, error) {
		return New(name, fn).Module(BuiltinModule).Build(env)
	}
}

// deleteHandle drops a handle from the reference table. An iterator behind
// the handle is stopped, releasing whatever it reads from.
func deleteHandle(c *Context, h refs.Handle) bool {
	c.References().Clear(h)
	return true
}

func getAttribute(c *Context, obj any, name string, out any) (bool, error) {
	value, ok := hostobj.GetAttribute(obj, name)
	if !ok {
		return false, nil
	}
	return c.Unify(out, value)
}

func setAttribute(obj any, name string, value any) bool {
	return hostobj.SetAttribute(obj, name, value)
}

// callMethod calls a method with an optional argument list and optionally
// unifies its result. Methods without results unify none, methods with
// several results unify the list of them.
func callMethod(c *Context, obj any, name string, args []any, out any) (bool, error) {
	results, found, err := hostobj.CallMethod(obj, name, args)
	if !found {
		return false, nil
	}
	if err != nil {
		return false, engine.NewHostError("method "+name+" failed", err)
	}
	if out == nil {
		return true, nil
	}
	switch len(results) {
	case 0:
		return c.Unify(out, nil)
	case 1:
		return c.Unify(out, results[0])
	default:
		return c.Unify(out, results)
	}
}

// cursor is the choice-point state of iterate.
type cursor struct {
	it    hostobj.Iterator
	owned bool
}

// iterate yields the elements of an iterator or iterable one per solution.
// An iterator stored under a handle is advanced in place and left in the
// table when exhausted; any other iterable gets a private iterator that
// lives as long as the choice point.
func iterate(c *Context, source any, out any) (bool, error) {
	cp := c.ChoicePoint()
	if cp == nil {
		cp = &engine.ChoicePoint{}
	}
	cur, _ := cp.State.(*cursor)
	if cur == nil {
		if it, ok := source.(hostobj.Iterator); ok {
			cur = &cursor{it: it}
		} else {
			it, ok := hostobj.Iterate(source)
			if !ok {
				return false, nil
			}
			cur = &cursor{it: it, owned: true}
		}
		cp.State = cur
	}
	for {
		value, ok := cur.it.Next()
		if !ok {
			stopCursor(cp)
			return false, nil
		}
		unified, err := c.Unify(out, value)
		if err != nil || unified {
			return unified, err
		}
	}
}

func stopCursor(cp *engine.ChoicePoint) {
	if cur, ok := cp.State.(*cursor); ok && cur.owned {
		cur.it.Stop()
	}
	cp.State = nil
}

// next pulls one element from the iterator stored under h. On exhaustion it
// stops the iterator, clears the handle and fails.
func next(c *Context, h refs.Handle, out any) (bool, error) {
	value, err := c.References().Get(h)
	if err != nil {
		return false, err
	}
	it, ok := value.(hostobj.Iterator)
	if !ok {
		return false, nil
	}
	elem, ok := it.Next()
	if !ok {
		it.Stop()
		c.References().Clear(h)
		return false, nil
	}
	return c.Unify(out, elem)
}

func getByIndex(c *Context, coll any, index int, out any) (bool, error) {
	value, ok := hostobj.Index(coll, index)
	if !ok {
		return false, nil
	}
	return c.Unify(out, value)
}

func iterator(c *Context, coll any, out any) (bool, error) {
	it, ok := hostobj.Iterate(coll)
	if !ok {
		return false, nil
	}
	return c.Unify(out, it)
}

func replace(c *Context, old, replacement, s string, out any) (bool, error) {
	return c.Unify(out, strings.ReplaceAll(s, old, replacement))
}

// newUUID unifies a fresh uuid with underscores instead of dashes.
func newUUID(c *Context, out any) (bool, error) {
	return c.Unify(out, strings.ReplaceAll(uuid.NewString(), "-", "_"))
}

func typeOf(c *Context, value any, out any) (bool, error) {
	return c.Unify(out, hostobj.TypeName(value))
}

func size(c *Context, coll any, out any) (bool, error) {
	n, ok := hostobj.Len(coll)
	if !ok {
		return false, nil
	}
	return c.Unify(out, n)
}
