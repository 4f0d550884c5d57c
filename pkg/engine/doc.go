// Package engine defines the contract between geolog and the logic engine it
// embeds.
//
// # Overview
//
// The logic engine is an opaque dependency. geolog needs exactly four things
// from it:
//
//  1. Register - install fixed-arity foreign predicates, deterministic or not
//  2. Consult - load program files and program text
//  3. Query - run a query to exhaustion and collect the solutions
//  4. Close - release the engine
//
// # Foreign Predicates
//
// Each foreign predicate is a ForeignFunc. Deterministic predicates are
// called once per goal and answer Succeed or Fail. Non-deterministic
// predicates follow the choice-point protocol:
//
//	FirstCall -> Retry (solution, keep choice point)
//	Redo      -> Retry ... until Fail (exhausted, choice point discarded)
//	Pruned    -> the engine cut the choice point; nothing is resumed
//
// Output arguments arrive as unbound *term.Variable values. A predicate binds
// them and the engine adapter copies the bindings back into the engine.
//
// # Errors
//
// Errors crossing the boundary are classified *Error values (lookup,
// contract, host, engine, config). Lookup faults, raised for stale or unknown
// handles, are defects rather than logical failures and propagate as engine
// exceptions.
//
// The Trealla-backed implementation lives in the prolog sub-package.
package engine
