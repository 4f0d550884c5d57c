package starlark

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/geolog/geolog/pkg/engine"
	"github.com/geolog/geolog/pkg/hostobj"
	"github.com/geolog/geolog/pkg/predicate"
	"github.com/geolog/geolog/pkg/refs"
	"github.com/geolog/geolog/pkg/term"
)

type layer struct {
	Name     string
	Features int
}

func (l *layer) Scaled(factor int) int {
	return l.Features * factor
}

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func discover(t *testing.T) (map[string]predicate.Predicate, *refs.Manager) {
	t.Helper()
	r := refs.NewManager()
	env := predicate.NewEnv(r, testLogger(), nil)
	preds, err := predicate.NewRegistry(env, testLogger()).Discover([]predicate.Plugin{{Namespace: Namespace}})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	out := make(map[string]predicate.Predicate)
	for _, p := range preds {
		out[p.Name()] = p
	}
	return out, r
}

func bound(t *testing.T, v *term.Variable) term.Term {
	t.Helper()
	value, ok := v.Value()
	if !ok {
		t.Fatalf("variable %s is unbound", v.Name)
	}
	return value
}

func pair(name string, value term.Term) term.Compound {
	return term.Atom("-").Of(name, value)
}

func TestEval(t *testing.T) {
	ev := NewEvaluator(time.Second, testLogger())
	tests := []struct {
		expr    string
		globals map[string]any
		want    any
	}{
		{"1 + 2", nil, int64(3)},
		{"'a' + 'b'", nil, "ab"},
		{"[x * 2 for x in xs]", map[string]any{"xs": []any{int64(1), int64(2)}}, []any{int64(2), int64(4)}},
		{"{'k': v}", map[string]any{"v": 1.5}, map[string]any{"k": 1.5}},
		{"None", nil, nil},
		{"n > 1", map[string]any{"n": int64(2)}, true},
		{"struct(a = 1).a", nil, int64(1)},
	}
	for _, tt := range tests {
		got, err := ev.Eval(context.Background(), tt.expr, tt.globals)
		if err != nil {
			t.Fatalf("Eval(%q): %v", tt.expr, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Eval(%q) = %#v, want %#v", tt.expr, got, tt.want)
		}
	}
}

func TestEvalHostObject(t *testing.T) {
	ev := NewEvaluator(time.Second, testLogger())
	l := &layer{Name: "roads", Features: 10}

	got, err := ev.Eval(context.Background(), "l.Name + ':' + str(l.Scaled(3))", map[string]any{"l": l})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if got != "roads:30" {
		t.Fatalf("Eval = %#v", got)
	}

	got, err = ev.Eval(context.Background(), "l", map[string]any{"l": l})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if got != l {
		t.Fatalf("expected the host object back, got %#v", got)
	}
}

func TestEvalCancelled(t *testing.T) {
	ev := NewEvaluator(50*time.Millisecond, testLogger())
	_, err := ev.Exec(context.Background(), "def spin():\n    for i in range(1000000000):\n        pass\nspin()\n", nil)
	if err == nil || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected a deadline error, got %v", err)
	}
}

func TestExecGlobals(t *testing.T) {
	ev := NewEvaluator(time.Second, testLogger())
	module, err := ev.Exec(context.Background(), "_hidden = 1\narea = w * h\ndef double(x):\n    return 2 * x\n", map[string]any{"w": int64(3), "h": int64(4)})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if module["area"] != int64(12) {
		t.Fatalf("area = %#v", module["area"])
	}
	if _, ok := module["_hidden"]; ok {
		t.Fatal("expected underscore globals to be skipped")
	}
	fn, ok := module["double"].(*Object)
	if !ok {
		t.Fatalf("expected a function object, got %T", module["double"])
	}
	results, found, err := hostobj.CallMethod(fn, "call", []any{int64(21)})
	if !found || err != nil {
		t.Fatalf("call: found=%v err=%v", found, err)
	}
	if !reflect.DeepEqual(results, []any{int64(42)}) {
		t.Fatalf("call results = %#v", results)
	}
}

func TestEvalPredicate(t *testing.T) {
	preds, r := discover(t)
	eval := preds["eval"]
	if eval.MinArity() != 2 || eval.MaxArity() != 3 {
		t.Fatalf("eval arity %d..%d", eval.MinArity(), eval.MaxArity())
	}

	out := term.NewVariable("N")
	globals := []term.Term{pair("names", []term.Term{"a", "b"}), pair("scale", int64(2))}
	res, err := eval.Execute(context.Background(), &engine.Call{Args: []term.Term{"len(names) * scale", globals, out}})
	if err != nil || res != engine.Succeed {
		t.Fatalf("eval/3 = %v, %v", res, err)
	}
	if got := bound(t, out); got != int64(4) {
		t.Fatalf("N = %#v", got)
	}

	out = term.NewVariable("L")
	if _, err := eval.Execute(context.Background(), &engine.Call{Args: []term.Term{"[1, 'x']", out}}); err != nil {
		t.Fatalf("eval/2: %v", err)
	}
	if got := bound(t, out); !reflect.DeepEqual(got, []term.Term{int64(1), "x"}) {
		t.Fatalf("L = %#v", got)
	}

	// Host objects go in by handle and come back as the same handle value.
	h := r.Store(&layer{Name: "rivers", Features: 4})
	out = term.NewVariable("Name")
	globals = []term.Term{pair("l", term.Atom(h))}
	if _, err := eval.Execute(context.Background(), &engine.Call{Args: []term.Term{"l.name", globals, out}}); err != nil {
		t.Fatalf("eval host attribute: %v", err)
	}
	if got := bound(t, out); got != "rivers" {
		t.Fatalf("Name = %#v", got)
	}
}

func TestEvalPredicateErrors(t *testing.T) {
	preds, _ := discover(t)
	eval := preds["eval"]

	_, err := eval.Execute(context.Background(), &engine.Call{Args: []term.Term{"1 +", term.NewVariable("X")}})
	if !engine.IsHost(err) {
		t.Fatalf("expected host error for a syntax error, got %v", err)
	}

	res, err := eval.Execute(context.Background(), &engine.Call{Args: []term.Term{"1", []term.Term{int64(7)}, term.NewVariable("X")}})
	if err != nil || res != engine.Fail {
		t.Fatalf("expected failure for malformed globals, got %v, %v", res, err)
	}
}

func TestExecPredicate(t *testing.T) {
	preds, r := discover(t)
	out := term.NewVariable("M")
	_, err := preds["exec"].Execute(context.Background(), &engine.Call{Args: []term.Term{"zoom = 12\n", out}})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	h, ok := bound(t, out).(term.Atom)
	if !ok {
		t.Fatalf("expected a handle, got %#v", bound(t, out))
	}
	module, err := r.Get(refs.Handle(h))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if zoom, _ := hostobj.GetAttribute(module, "zoom"); zoom != int64(12) {
		t.Fatalf("zoom = %#v", zoom)
	}
}

func TestGlobals(t *testing.T) {
	if g, err := Globals(nil); err != nil || g != nil {
		t.Fatalf("Globals(nil) = %v, %v", g, err)
	}
	bad := []any{
		"not a list",
		[]any{term.Atom("-").Of(int64(1), int64(2))},
		[]any{term.Atom("=").Of("a", int64(2))},
	}
	for _, b := range bad {
		if _, err := Globals(b); err == nil {
			t.Errorf("Globals(%#v) expected an error", b)
		}
	}
}
