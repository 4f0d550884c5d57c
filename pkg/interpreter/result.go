package interpreter

import (
	"github.com/geolog/geolog/pkg/engine"
	"github.com/geolog/geolog/pkg/telemetry"
)

// Outcome says which of the three query result shapes a QueryResult has.
type Outcome int

const (
	// False means the query had no answers.
	False Outcome = iota
	// True means exactly one answer that bound no variables.
	True
	// Solutions means one or more answers carrying bindings.
	Solutions
)

// String implements fmt.Stringer. The values match the query metric labels.
func (o Outcome) String() string {
	switch o {
	case True:
		return telemetry.OutcomeTrue
	case Solutions:
		return telemetry.OutcomeSolutions
	default:
		return telemetry.OutcomeFalse
	}
}

// QueryResult is the result of one query. Callers must switch on Outcome;
// Solutions is only populated for the Solutions outcome.
type QueryResult struct {
	Outcome   Outcome
	Solutions []engine.Solution
}

// Bool reports the truth value for the True and False outcomes. ok is false
// for a Solutions result.
func (r QueryResult) Bool() (value, ok bool) {
	switch r.Outcome {
	case True:
		return true, true
	case False:
		return false, true
	default:
		return false, false
	}
}

func newQueryResult(solutions []engine.Solution) QueryResult {
	switch {
	case len(solutions) == 0:
		return QueryResult{Outcome: False}
	case len(solutions) == 1 && len(solutions[0]) == 0:
		return QueryResult{Outcome: True}
	default:
		return QueryResult{Outcome: Solutions, Solutions: solutions}
	}
}

// CallOption adjusts a single Consult or Query call.
type CallOption func(*callOptions)

type callOptions struct {
	catchErrors bool
	debug       bool
}

// CatchErrors overrides the configured error policy for one call: when
// true, failures are logged and swallowed.
func CatchErrors(catch bool) CallOption {
	return func(o *callOptions) { o.catchErrors = catch }
}

// Debug traces every foreign predicate call made while the query runs.
func Debug() CallOption {
	return func(o *callOptions) { o.debug = true }
}

func (i *Interpreter) callOptions(opts []CallOption) callOptions {
	o := callOptions{catchErrors: i.cfg.CatchErrors}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
