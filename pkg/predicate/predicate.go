// Package predicate is the framework foreign predicates are written against:
// a static catalog that plugins register into, a builder that turns a plain
// Go function into a predicate with derived arity bounds, and the dispatch
// logic that runs deterministic and non-deterministic calls.
//
// A handler is an ordinary Go function. Its parameters receive the
// dereferenced call arguments converted to the parameter types; output
// positions arrive as unbound *term.Variable values (declare them as any)
// and are bound through Context.Unify. Two parameter types get special
// treatment: refs.Handle receives the handle atom itself without looking it
// up, and string receives the name of a plain atom as text.
//
//	func init() {
//		predicate.Register("geolog_plugins/text", func(env *predicate.Env) (predicate.Predicate, error) {
//			return predicate.New("upper", func(c *predicate.Context, s string, out any) (bool, error) {
//				return c.Unify(out, strings.ToUpper(s))
//			}).Module("text").Build(env)
//		})
//	}
package predicate

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/geolog/geolog/pkg/engine"
	"github.com/geolog/geolog/pkg/marshal"
	"github.com/geolog/geolog/pkg/refs"
	"github.com/geolog/geolog/pkg/telemetry"
	"github.com/geolog/geolog/pkg/term"
)

// Predicate is the capability set the registry needs from a foreign predicate.
type Predicate interface {
	// Name is the predicate name inside its module.
	Name() string

	// Module is the module the predicate is defined in.
	Module() string

	// MinArity and MaxArity bound the arities the predicate is registered
	// with. They never change.
	MinArity() int
	MaxArity() int

	// Deterministic reports whether the predicate produces at most one
	// solution per call.
	Deterministic() bool

	// References returns the reference table the predicate resolves handles
	// against.
	References() *refs.Manager

	// Execute runs one call.
	Execute(ctx context.Context, call *engine.Call) (engine.Result, error)
}

// Env is what predicates are built against: the shared marshaler plus
// logging, metrics and the call-trace switch.
type Env struct {
	Marshaler *marshal.Marshaler
	Logger    zerolog.Logger
	Metrics   *telemetry.Metrics

	trace atomic.Bool
}

// NewEnv creates an environment over the given reference table.
func NewEnv(r *refs.Manager, logger zerolog.Logger, metrics *telemetry.Metrics) *Env {
	return &Env{
		Marshaler: marshal.New(r),
		Logger:    logger.With().Str("component", "predicate").Logger(),
		Metrics:   metrics,
	}
}

// SetTrace switches call tracing on or off.
func (e *Env) SetTrace(on bool) {
	e.trace.Store(on)
}

// Tracing reports whether call tracing is on.
func (e *Env) Tracing() bool {
	return e.trace.Load()
}

// References returns the reference table.
func (e *Env) References() *refs.Manager {
	return e.Marshaler.References()
}

// Context is handed to handlers that declare it as their first parameter.
type Context struct {
	context.Context

	pred *Func
	call *engine.Call
}

// Unify unifies target (usually an output argument) with a Go value.
func (c *Context) Unify(target term.Term, value any) (bool, error) {
	return c.pred.env.Marshaler.Unify(target, value)
}

// Dereference converts a term into the Go value it denotes.
func (c *Context) Dereference(t term.Term) (any, error) {
	return c.pred.env.Marshaler.Dereference(t)
}

// References returns the reference table.
func (c *Context) References() *refs.Manager {
	return c.pred.env.References()
}

// Arg returns the raw term of argument i, or nil if the call has fewer
// arguments.
func (c *Context) Arg(i int) term.Term {
	if i < 0 || i >= len(c.call.Args) {
		return nil
	}
	return c.call.Args[i]
}

// Arity returns the number of arguments of the current call.
func (c *Context) Arity() int {
	return len(c.call.Args)
}

// Control returns the call state of a non-deterministic call.
func (c *Context) Control() engine.Control {
	return c.call.Control
}

// ChoicePoint returns the choice point of a non-deterministic call, nil for
// deterministic ones.
func (c *Context) ChoicePoint() *engine.ChoicePoint {
	return c.call.ChoicePoint
}

// Logger returns the predicate's logger.
func (c *Context) Logger() zerolog.Logger {
	return c.pred.logger
}

// Indicator returns module:name/arity for the current call.
func (c *Context) Indicator() string {
	return engine.Foreign{Module: c.pred.module, Name: c.pred.name, Arity: len(c.call.Args)}.Indicator()
}
