package starlark

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// DefaultTimeout bounds a single evaluation.
const DefaultTimeout = 30 * time.Second

// Evaluator runs Starlark expressions and scripts. Evaluations are
// cancelled when the context is done or the timeout expires.
type Evaluator struct {
	timeout time.Duration
	logger  zerolog.Logger
}

// NewEvaluator creates an evaluator. A zero timeout means DefaultTimeout.
func NewEvaluator(timeout time.Duration, logger zerolog.Logger) *Evaluator {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Evaluator{timeout: timeout, logger: logger}
}

// Eval evaluates one expression with the given globals.
func (e *Evaluator) Eval(ctx context.Context, expr string, globals map[string]any) (any, error) {
	var out starlark.Value
	err := e.run(ctx, globals, func(thread *starlark.Thread, env starlark.StringDict) error {
		v, err := starlark.EvalOptions(syntax.LegacyFileOptions(), thread, "<expr>", expr, env)
		out = v
		return err
	})
	if err != nil {
		return nil, err
	}
	return FromStarlark(out), nil
}

// Exec runs a script and returns its exported globals; names starting with
// an underscore are skipped.
func (e *Evaluator) Exec(ctx context.Context, script string, globals map[string]any) (map[string]any, error) {
	var result starlark.StringDict
	err := e.run(ctx, globals, func(thread *starlark.Thread, env starlark.StringDict) error {
		g, err := starlark.ExecFileOptions(syntax.LegacyFileOptions(), thread, "<script>", script, env)
		result = g
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(result))
	for name, v := range result {
		if len(name) > 0 && name[0] == '_' {
			continue
		}
		out[name] = FromStarlark(v)
	}
	return out, nil
}

func (e *Evaluator) run(ctx context.Context, globals map[string]any, fn func(*starlark.Thread, starlark.StringDict) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name: "geolog",
		Print: func(_ *starlark.Thread, msg string) {
			e.logger.Debug().Str("source", "starlark").Msg(msg)
		},
	}

	env := starlark.StringDict{"struct": starlark.NewBuiltin("struct", starlarkstruct.Make)}
	for name, v := range globals {
		sv, err := ToStarlark(v)
		if err != nil {
			return fmt.Errorf("failed to convert global %s: %w", name, err)
		}
		env[name] = sv
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()

	if err := fn(thread, env); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("starlark evaluation cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("starlark evaluation failed: %w", err)
	}
	return nil
}
