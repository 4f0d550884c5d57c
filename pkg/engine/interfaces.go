package engine

import (
	"context"
	"fmt"

	"github.com/geolog/geolog/pkg/term"
)

// Control is the call-state signal the engine passes to a non-deterministic
// predicate.
type Control int

const (
	// FirstCall is the first invocation for a fresh choice point.
	FirstCall Control = iota
	// Redo asks for the next solution of an existing choice point.
	Redo
	// Pruned tells the predicate that the choice point was cut away and will
	// not be resumed.
	Pruned
)

// String implements fmt.Stringer.
func (c Control) String() string {
	switch c {
	case FirstCall:
		return "first_call"
	case Redo:
		return "redo"
	case Pruned:
		return "pruned"
	default:
		return fmt.Sprintf("control(%d)", int(c))
	}
}

// Result is what a foreign predicate reports back to the engine.
type Result int

const (
	// Fail is a logical failure; for a non-deterministic predicate the choice
	// point is discarded.
	Fail Result = iota
	// Succeed is a single (last) solution.
	Succeed
	// Retry is a solution that keeps the choice point alive for a later Redo.
	Retry
)

// String implements fmt.Stringer.
func (r Result) String() string {
	switch r {
	case Fail:
		return "fail"
	case Succeed:
		return "succeed"
	case Retry:
		return "retry"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// ChoicePoint is the opaque per-choice-point context handed to every call of
// a non-deterministic predicate. Predicates may keep private state in State
// between FirstCall and the following Redo calls.
type ChoicePoint struct {
	// State is owned by the predicate.
	State any

	// Calls counts the invocations made against this choice point.
	Calls int
}

// Call is a single invocation of a foreign predicate.
type Call struct {
	// Args are the call arguments in engine term form. Output positions hold
	// unbound *term.Variable values.
	Args []term.Term

	// Control is FirstCall for deterministic predicates.
	Control Control

	// ChoicePoint is nil for deterministic predicates.
	ChoicePoint *ChoicePoint
}

// ForeignFunc implements a foreign predicate.
type ForeignFunc func(ctx context.Context, call *Call) (Result, error)

// Foreign describes one fixed-arity foreign predicate registration.
type Foreign struct {
	Module        string
	Name          string
	Arity         int
	Deterministic bool
	Func          ForeignFunc
}

// Indicator returns module:name/arity.
func (f Foreign) Indicator() string {
	if f.Module == "" {
		return fmt.Sprintf("%s/%d", f.Name, f.Arity)
	}
	return fmt.Sprintf("%s:%s/%d", f.Module, f.Name, f.Arity)
}

// Solution maps query variable names to their bindings.
type Solution map[string]term.Term

// Engine is the contract the interpreter needs from a logic engine. The
// resolution algorithm is entirely the engine's business.
type Engine interface {
	// Register installs foreign predicates. Registering an indicator that is
	// already known replaces it.
	Register(ctx context.Context, preds []Foreign) error

	// Consult loads one program file. The path is used literally.
	Consult(ctx context.Context, path string) error

	// ConsultText loads program text into the given module.
	ConsultText(ctx context.Context, module, text string) error

	// Query runs a query to exhaustion and returns every solution.
	Query(ctx context.Context, text string) ([]Solution, error)

	// Close releases the engine.
	Close() error
}

// Factory constructs an engine.
type Factory func(ctx context.Context) (Engine, error)
