package predicate

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/geolog/geolog/pkg/engine"
	"github.com/geolog/geolog/pkg/hostobj"
	"github.com/geolog/geolog/pkg/refs"
	"github.com/geolog/geolog/pkg/telemetry"
	"github.com/geolog/geolog/pkg/term"
)

// DefaultModule is the module of predicates built without an explicit one.
const DefaultModule = "user"

var (
	contextType = reflect.TypeOf((*Context)(nil))
	handleType  = reflect.TypeOf(refs.Handle(""))
	boolType    = reflect.TypeOf(true)
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Builder configures a Func.
type Builder struct {
	name          string
	module        string
	fn            any
	defaults      []any
	deterministic bool
	onPrune       func(*engine.ChoicePoint)
}

// New starts building a predicate named name that runs fn.
func New(name string, fn any) *Builder {
	return &Builder{
		name:          name,
		module:        DefaultModule,
		fn:            fn,
		deterministic: true,
	}
}

// Module sets the module the predicate is defined in.
func (b *Builder) Module(module string) *Builder {
	if module == "" {
		module = DefaultModule
	}
	b.module = module
	return b
}

// Defaults declares default values for the trailing parameters of the
// handler. Calls with fewer arguments than parameters get the defaults of
// the missing positions.
func (b *Builder) Defaults(values ...any) *Builder {
	b.defaults = values
	return b
}

// Nondeterministic marks the predicate as able to produce several solutions.
// Its handler is called on the first call and on every redo of a choice
// point; returning true yields a solution and keeps the choice point open,
// returning false closes it.
func (b *Builder) Nondeterministic() *Builder {
	b.deterministic = false
	return b
}

// OnPrune sets a hook run when a choice point of a non-deterministic
// predicate is cut away.
func (b *Builder) OnPrune(fn func(*engine.ChoicePoint)) *Builder {
	b.onPrune = fn
	return b
}

// Build validates the handler and returns the predicate.
func (b *Builder) Build(env *Env) (*Func, error) {
	if env == nil {
		return nil, engine.NewContractError(engine.ErrCodeBadHandler, "predicate environment is nil")
	}
	if b.fn == nil {
		return nil, engine.NewContractError(engine.ErrCodeBadHandler, fmt.Sprintf("predicate %s has no handler", b.name))
	}
	fn := reflect.ValueOf(b.fn)
	if fn.Kind() != reflect.Func || fn.IsNil() {
		return nil, engine.NewContractError(engine.ErrCodeBadHandler,
			fmt.Sprintf("handler of %s is %T, not a function", b.name, b.fn))
	}
	t := fn.Type()
	if err := checkResults(t); err != nil {
		return nil, err.WithPredicate(b.module + ":" + b.name)
	}

	min, max, offset, err := inferArity(t, len(b.defaults))
	if err != nil {
		return nil, err.WithPredicate(b.module + ":" + b.name)
	}

	params := make([]reflect.Type, max)
	for i := range params {
		params[i] = t.In(offset + i)
	}
	for i, d := range b.defaults {
		if _, err := hostobj.Convert(d, params[min+i]); err != nil {
			return nil, engine.NewContractError(engine.ErrCodeBadHandler,
				fmt.Sprintf("default for parameter %d: %v", min+i+1, err)).WithPredicate(b.module + ":" + b.name)
		}
	}

	return &Func{
		name:          b.name,
		module:        b.module,
		fn:            fn,
		withContext:   offset == 1,
		params:        params,
		defaults:      b.defaults,
		min:           min,
		max:           max,
		deterministic: b.deterministic,
		onPrune:       b.onPrune,
		env:           env,
		logger:        env.Logger.With().Str("predicate", b.module+":"+b.name).Logger(),
	}, nil
}

// InferArity derives the arity bounds of a handler: max is the number of
// declared parameters, min is max less the number of trailing defaults. A
// leading *Context parameter and a variadic tail are not counted.
func InferArity(fn any, defaults int) (min, max int, err error) {
	t := reflect.TypeOf(fn)
	if t == nil || t.Kind() != reflect.Func {
		return 0, 0, engine.NewContractError(engine.ErrCodeBadHandler, fmt.Sprintf("%T is not a function", fn))
	}
	min, max, _, cerr := inferArity(t, defaults)
	if cerr != nil {
		return 0, 0, cerr
	}
	return min, max, nil
}

func inferArity(t reflect.Type, defaults int) (min, max, offset int, err *engine.Error) {
	if t.NumIn() > 0 && t.In(0) == contextType {
		offset = 1
	}
	max = t.NumIn() - offset
	if t.IsVariadic() {
		max--
	}
	if max < 0 {
		max = 0
	}
	if defaults > max {
		return 0, 0, 0, engine.NewContractError(engine.ErrCodeArityMismatch,
			fmt.Sprintf("%d defaults declared for %d parameters", defaults, max))
	}
	return max - defaults, max, offset, nil
}

func checkResults(t reflect.Type) *engine.Error {
	switch t.NumOut() {
	case 0:
		return nil
	case 1:
		if t.Out(0) == boolType || t.Out(0) == errorType {
			return nil
		}
	case 2:
		if t.Out(0) == boolType && t.Out(1) == errorType {
			return nil
		}
	}
	return engine.NewContractError(engine.ErrCodeBadHandler,
		fmt.Sprintf("handler %s must return bool, error or (bool, error)", t))
}

// Func is a predicate backed by a Go function.
type Func struct {
	name          string
	module        string
	fn            reflect.Value
	withContext   bool
	params        []reflect.Type
	defaults      []any
	min, max      int
	deterministic bool
	onPrune       func(*engine.ChoicePoint)
	env           *Env
	logger        zerolog.Logger
}

var _ Predicate = (*Func)(nil)

// Name implements Predicate.
func (f *Func) Name() string { return f.name }

// Module implements Predicate.
func (f *Func) Module() string { return f.module }

// MinArity implements Predicate.
func (f *Func) MinArity() int { return f.min }

// MaxArity implements Predicate.
func (f *Func) MaxArity() int { return f.max }

// Deterministic implements Predicate.
func (f *Func) Deterministic() bool { return f.deterministic }

// References implements Predicate.
func (f *Func) References() *refs.Manager { return f.env.References() }

// Execute implements Predicate.
func (f *Func) Execute(ctx context.Context, call *engine.Call) (result engine.Result, err error) {
	timer := telemetry.NewTimer()
	defer func() {
		outcome := result.String()
		if err != nil {
			outcome = "error"
			f.env.Metrics.RecordError(string(engine.ClassOf(err)), codeOf(err))
		}
		f.env.Metrics.RecordPredicateCall(f.module, f.name, outcome, timer.Duration())
	}()

	if f.env.Tracing() {
		f.logger.Info().Str("control", call.Control.String()).Msgf("CALL: %s:%s", f.module, f.name)
	}

	if n := len(call.Args); n < f.min || n > f.max {
		return engine.Fail, engine.NewContractError(engine.ErrCodeArityMismatch,
			fmt.Sprintf("called with %d arguments, accepts %d to %d", n, f.min, f.max)).WithPredicate(f.indicator(n))
	}

	if !f.deterministic {
		if call.Control == engine.Pruned {
			if f.onPrune != nil && call.ChoicePoint != nil {
				f.onPrune(call.ChoicePoint)
			}
			return engine.Fail, nil
		}
		if call.ChoicePoint != nil {
			call.ChoicePoint.Calls++
		}
	}

	ok, err := f.invoke(ctx, call)
	switch {
	case err != nil:
		return engine.Fail, f.classify(err, len(call.Args))
	case !ok:
		return engine.Fail, nil
	case f.deterministic:
		return engine.Succeed, nil
	default:
		return engine.Retry, nil
	}
}

func (f *Func) indicator(arity int) string {
	return engine.Foreign{Module: f.module, Name: f.name, Arity: arity}.Indicator()
}

func (f *Func) invoke(ctx context.Context, call *engine.Call) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("handler panicked: %v", r)
		}
	}()

	in := make([]reflect.Value, 0, len(f.params)+1)
	if f.withContext {
		in = append(in, reflect.ValueOf(&Context{Context: ctx, pred: f, call: call}))
	}
	for i, pt := range f.params {
		var (
			v    reflect.Value
			good bool
		)
		if i < len(call.Args) {
			v, good, err = f.decode(call.Args[i], pt)
			if err != nil {
				return false, err
			}
		} else {
			v, err = hostobj.Convert(f.defaults[i-f.min], pt)
			good = err == nil
		}
		if !good {
			f.logger.Debug().Int("argument", i+1).Str("want", pt.String()).Msg("argument does not convert, failing")
			return false, nil
		}
		in = append(in, v)
	}

	return results(f.fn.Call(in))
}

// decode turns one call argument into a handler argument. It reports false
// when the argument cannot be converted to the parameter type.
func (f *Func) decode(arg term.Term, pt reflect.Type) (reflect.Value, bool, error) {
	arg = term.Resolve(arg)
	if pt == handleType {
		if a, ok := arg.(term.Atom); ok {
			return reflect.ValueOf(refs.Handle(a)), true, nil
		}
		return reflect.Value{}, false, nil
	}
	if pt.Kind() == reflect.String {
		if a, ok := arg.(term.Atom); ok && !a.IsReserved() {
			return reflect.ValueOf(string(a)).Convert(pt), true, nil
		}
	}
	value, err := f.env.Marshaler.Dereference(arg)
	if err != nil {
		return reflect.Value{}, false, err
	}
	cv, err := hostobj.Convert(value, pt)
	if err != nil {
		return reflect.Value{}, false, nil
	}
	return cv, true, nil
}

func results(out []reflect.Value) (bool, error) {
	switch len(out) {
	case 0:
		return true, nil
	case 1:
		if out[0].Type() == boolType {
			return out[0].Bool(), nil
		}
		if err, _ := out[0].Interface().(error); err != nil {
			return false, err
		}
		return true, nil
	default:
		if err, _ := out[1].Interface().(error); err != nil {
			return false, err
		}
		return out[0].Bool(), nil
	}
}

// classify attaches the predicate indicator to err, wrapping plain errors as
// host errors.
func (f *Func) classify(err error, arity int) error {
	var ee *engine.Error
	if errors.As(err, &ee) {
		cp := *ee
		cp.Predicate = f.indicator(arity)
		return &cp
	}
	return engine.NewHostError(fmt.Sprintf("%s failed", f.name), err).WithPredicate(f.indicator(arity))
}

func codeOf(err error) string {
	var ee *engine.Error
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// Foreigns returns one engine registration per arity the predicate accepts.
func Foreigns(p Predicate) []engine.Foreign {
	out := make([]engine.Foreign, 0, p.MaxArity()-p.MinArity()+1)
	for arity := p.MinArity(); arity <= p.MaxArity(); arity++ {
		out = append(out, engine.Foreign{
			Module:        p.Module(),
			Name:          p.Name(),
			Arity:         arity,
			Deterministic: p.Deterministic(),
			Func:          p.Execute,
		})
	}
	return out
}
