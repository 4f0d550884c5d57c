// Package prolog adapts the Trealla Prolog engine to engine.Engine.
//
// Foreign predicates are registered with Trealla under mangled names in the
// user module (host__<module>__<name>) and exposed in their own module by a
// generated shim clause per arity, so geolog:iterate/2 calls the Go side
// through user:host__geolog__iterate/2. Non-deterministic predicates are
// driven through an iter.Seq: every pull is a FirstCall or Redo, and the
// engine abandoning the sequence is reported as Pruned.
package prolog

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/trealla-prolog/go/trealla"

	"github.com/geolog/geolog/pkg/engine"
)

// SourceFilePredicate is the dynamic user predicate recording every file
// loaded through Consult.
const SourceFilePredicate = "geolog_source_file"

// Options configures the engine.
type Options struct {
	// Root is the host directory mounted as the engine's filesystem root.
	// Files outside it cannot be consulted. Defaults to "/".
	Root string

	Logger zerolog.Logger
}

// Engine is an engine.Engine backed by one Trealla interpreter. Queries,
// consults and registrations are serialized.
type Engine struct {
	pl     trealla.Prolog
	root   string
	logger zerolog.Logger

	mu    sync.Mutex
	shims map[string]map[string]string

	current atomic.Pointer[callContext]
}

type callContext struct {
	ctx context.Context
}

var _ engine.Engine = (*Engine)(nil)

// New starts a Trealla interpreter.
func New(ctx context.Context, opts Options) (*Engine, error) {
	root := opts.Root
	if root == "" {
		root = "/"
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, engine.NewConfigError("resolving engine root "+opts.Root, err)
	}
	pl, err := trealla.New(trealla.WithPreopenDir(root))
	if err != nil {
		return nil, engine.NewEngineError(engine.ErrCodeEngineStart, "starting trealla", err)
	}
	e := &Engine{
		pl:     pl,
		root:   root,
		logger: opts.Logger.With().Str("component", "trealla").Logger(),
		shims:  make(map[string]map[string]string),
	}
	if _, err := pl.QueryOnce(ctx, fmt.Sprintf("dynamic(%s/1).", SourceFilePredicate)); err != nil {
		pl.Close()
		return nil, engine.NewEngineError(engine.ErrCodeEngineStart, "declaring source file table", err)
	}
	return e, nil
}

// Factory returns an engine.Factory building engines with opts.
func Factory(opts Options) engine.Factory {
	return func(ctx context.Context) (engine.Engine, error) {
		return New(ctx, opts)
	}
}

// Register implements engine.Engine.
func (e *Engine) Register(ctx context.Context, preds []engine.Foreign) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	touched := make(map[string]bool)
	for _, f := range preds {
		name := hostName(f.Module, f.Name)
		var err error
		if f.Deterministic {
			err = e.pl.Register(ctx, name, f.Arity, e.deterministic(f))
		} else {
			err = e.pl.RegisterNondet(ctx, name, f.Arity, e.nondeterministic(f))
		}
		if err != nil {
			return engine.NewEngineError(engine.ErrCodeRegister, "registering "+f.Indicator(), err)
		}
		if e.shims[f.Module] == nil {
			e.shims[f.Module] = make(map[string]string)
		}
		e.shims[f.Module][f.Indicator()] = shim(f.Name, name, f.Arity)
		touched[f.Module] = true
	}

	for module := range touched {
		clauses := make([]string, 0, len(e.shims[module]))
		for _, c := range e.shims[module] {
			clauses = append(clauses, c)
		}
		slices.Sort(clauses)
		if err := e.pl.ConsultText(ctx, module, strings.Join(clauses, "\n")); err != nil {
			return engine.NewEngineError(engine.ErrCodeRegister, "loading shims for module "+module, err)
		}
	}
	return nil
}

// Consult implements engine.Engine. The path is resolved on the host and
// handed to the engine quoted, so it is loaded literally.
func (e *Engine) Consult(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return engine.NewEngineError(engine.ErrCodeConsult, "resolving "+path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return engine.NewEngineError(engine.ErrCodeConsult, "consulting "+path, err)
	}
	rel, ok := withinRoot(e.root, abs)
	if !ok {
		return engine.NewEngineError(engine.ErrCodeConsult,
			fmt.Sprintf("%s is outside the engine root %s", path, e.root), nil)
	}
	quoted := QuotePath("/" + filepath.ToSlash(rel))

	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.enter(ctx)()

	if _, err := e.pl.QueryOnce(ctx, fmt.Sprintf("consult(%s).", quoted)); err != nil {
		return engine.NewEngineError(engine.ErrCodeConsult, "consulting "+path, err)
	}
	record := fmt.Sprintf("( %[1]s(%[2]s) -> true ; assertz(%[1]s(%[2]s)) ).", SourceFilePredicate, QuotePath(abs))
	if _, err := e.pl.QueryOnce(ctx, record); err != nil {
		e.logger.Warn().Err(err).Str("path", path).Msg("could not record source file")
	}
	return nil
}

// withinRoot returns abs relative to root, or false when abs lies outside it.
// Names such as "..x.pl" inside root are fine.
func withinRoot(root, abs string) (string, bool) {
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

// ConsultText implements engine.Engine.
func (e *Engine) ConsultText(ctx context.Context, module, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.enter(ctx)()

	if err := e.pl.ConsultText(ctx, module, text); err != nil {
		return engine.NewEngineError(engine.ErrCodeConsult, "consulting text into "+module, err)
	}
	return nil
}

// Query implements engine.Engine.
func (e *Engine) Query(ctx context.Context, text string) ([]engine.Solution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.enter(ctx)()

	q := e.pl.Query(ctx, terminate(text))
	defer q.Close()

	var out []engine.Solution
	for q.Next(ctx) {
		answer := q.Current()
		d := newDecoder()
		sol := make(engine.Solution, len(answer.Solution))
		for name, value := range answer.Solution {
			sol[name] = d.decode(value)
		}
		out = append(out, sol)
	}
	if err := q.Err(); err != nil && !errors.Is(err, trealla.ErrFailure) {
		return nil, engine.NewEngineError(engine.ErrCodeQuery, "query raised an error", err).WithDetail("query", text)
	}
	return out, nil
}

// Close implements engine.Engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pl.Close()
	return nil
}

// enter makes ctx the context foreign predicates run with until the returned
// function is called.
func (e *Engine) enter(ctx context.Context) func() {
	prev := e.current.Swap(&callContext{ctx: ctx})
	return func() { e.current.Store(prev) }
}

func (e *Engine) callContext() context.Context {
	if c := e.current.Load(); c != nil {
		return c.ctx
	}
	return context.Background()
}

func (e *Engine) deterministic(f engine.Foreign) trealla.Predicate {
	return func(_ trealla.Prolog, _ trealla.Subquery, goal trealla.Term) trealla.Term {
		call := &engine.Call{Args: goalArgs(goal), Control: engine.FirstCall}
		res, err := f.Func(e.callContext(), call)
		if err != nil {
			return throwTerm(err, f)
		}
		if res == engine.Fail {
			return trealla.Atom("fail")
		}
		bound, err := bindGoal(goal, call.Args)
		if err != nil {
			return throwTerm(engine.NewContractError(engine.ErrCodeUnsupportedTerm, err.Error()), f)
		}
		return bound
	}
}

func (e *Engine) nondeterministic(f engine.Foreign) trealla.NondetPredicate {
	return func(_ trealla.Prolog, _ trealla.Subquery, goal trealla.Term) iter.Seq[trealla.Term] {
		return func(yield func(trealla.Term) bool) {
			ctx := e.callContext()
			cp := &engine.ChoicePoint{}
			control := engine.FirstCall
			for {
				call := &engine.Call{Args: goalArgs(goal), Control: control, ChoicePoint: cp}
				res, err := f.Func(ctx, call)
				if err != nil {
					yield(throwTerm(err, f))
					return
				}
				if res == engine.Fail {
					return
				}
				bound, err := bindGoal(goal, call.Args)
				if err != nil {
					yield(throwTerm(engine.NewContractError(engine.ErrCodeUnsupportedTerm, err.Error()), f))
					return
				}
				if !yield(bound) {
					_, _ = f.Func(ctx, &engine.Call{Args: goalArgs(goal), Control: engine.Pruned, ChoicePoint: cp})
					return
				}
				if res == engine.Succeed {
					return
				}
				control = engine.Redo
			}
		}
	}
}

// throwTerm builds throw(error(Formal, Module:Name/Arity)) for err. Lookup
// faults become existence_error(handle, H); everything else
// geolog_error(Class, Message).
func throwTerm(err error, f engine.Foreign) trealla.Term {
	where := trealla.Atom(":").Of(trealla.Atom(f.Module), trealla.Atom("/").Of(trealla.Atom(f.Name), int64(f.Arity)))
	var formal trealla.Term
	var ee *engine.Error
	switch {
	case errors.As(err, &ee) && ee.Class == engine.ErrorClassLookup:
		handle, _ := ee.Details["handle"].(string)
		formal = trealla.Atom("existence_error").Of(trealla.Atom("handle"), trealla.Atom(handle))
	case errors.As(err, &ee):
		formal = trealla.Atom("geolog_error").Of(trealla.Atom(ee.Class), err.Error())
	default:
		formal = trealla.Atom("geolog_error").Of(trealla.Atom(engine.ErrorClassHost), err.Error())
	}
	return trealla.Atom("throw").Of(trealla.Atom("error").Of(formal, where))
}

// hostName is the user-module name a foreign predicate is registered under.
func hostName(module, name string) string {
	return "host__" + module + "__" + name
}

// shim is the clause exposing a registered foreign predicate in its module.
func shim(name, host string, arity int) string {
	if arity == 0 {
		return fmt.Sprintf("%s :- user:%s.", QuoteAtom(name), QuoteAtom(host))
	}
	vars := make([]string, arity)
	for i := range vars {
		vars[i] = fmt.Sprintf("A%d", i+1)
	}
	args := strings.Join(vars, ", ")
	return fmt.Sprintf("%s(%s) :- user:%s(%s).", QuoteAtom(name), args, QuoteAtom(host), args)
}
