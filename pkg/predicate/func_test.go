package predicate

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/geolog/geolog/pkg/engine"
	"github.com/geolog/geolog/pkg/refs"
	"github.com/geolog/geolog/pkg/term"
)

func newTestEnv() *Env {
	return NewEnv(refs.NewManager(), zerolog.New(nil).Level(zerolog.Disabled), nil)
}

func mustBuild(t *testing.T, b *Builder, env *Env) *Func {
	t.Helper()
	f, err := b.Build(env)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return f
}

func run(t *testing.T, p Predicate, args ...term.Term) (engine.Result, error) {
	t.Helper()
	return p.Execute(context.Background(), &engine.Call{Args: args})
}

type counter struct{ n int }

func (c *counter) Add(a, b int) int { return c.n + a + b }

func TestInferArity(t *testing.T) {
	c := &counter{}
	tests := []struct {
		name     string
		fn       any
		defaults int
		wantMin  int
		wantMax  int
		wantErr  bool
	}{
		{"two required two optional", func(a, b, x, y any) bool { return true }, 2, 2, 4, false},
		{"leading context excluded", func(c *Context, a, b any) bool { return true }, 0, 2, 2, false},
		{"bound method excludes receiver", c.Add, 0, 2, 2, false},
		{"variadic tail not counted", func(a any, rest ...any) bool { return true }, 0, 1, 1, false},
		{"context and defaults", func(c *Context, a, b, d any) bool { return true }, 1, 2, 3, false},
		{"no parameters", func() bool { return true }, 0, 0, 0, false},
		{"too many defaults", func(a any) bool { return true }, 2, 0, 0, true},
		{"not a function", 42, 0, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			min, max, err := InferArity(tt.fn, tt.defaults)
			if (err != nil) != tt.wantErr {
				t.Fatalf("InferArity() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !engine.IsContract(err) {
					t.Errorf("error class = %q, want contract", engine.ClassOf(err))
				}
				return
			}
			if min != tt.wantMin || max != tt.wantMax {
				t.Errorf("InferArity() = (%d, %d), want (%d, %d)", min, max, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestBuildRejectsBadHandlers(t *testing.T) {
	env := newTestEnv()
	tests := []struct {
		name string
		b    *Builder
	}{
		{"nil handler", New("p", nil)},
		{"not a function", New("p", "nope")},
		{"bad result type", New("p", func() int { return 1 })},
		{"reversed results", New("p", func() (error, bool) { return nil, true })},
		{"defaults exceed parameters", New("p", func(a any) bool { return true }).Defaults(1, 2)},
		{"default of wrong type", New("p", func(a int) bool { return true }).Defaults("x")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.b.Build(env)
			if !engine.IsContract(err) {
				t.Errorf("Build() error = %v, want a contract error", err)
			}
		})
	}

	if _, err := New("p", func() bool { return true }).Build(nil); err == nil {
		t.Error("Build(nil) should fail")
	}
}

func TestBuilderDescriptor(t *testing.T) {
	env := newTestEnv()
	f := mustBuild(t, New("pick", func(a, b any) bool { return true }).Module("lists").Nondeterministic(), env)

	if f.Name() != "pick" || f.Module() != "lists" {
		t.Errorf("descriptor = %s:%s", f.Module(), f.Name())
	}
	if f.Deterministic() {
		t.Error("expected non-deterministic predicate")
	}
	if f.References() != env.References() {
		t.Error("predicate does not share the environment's reference table")
	}

	d := mustBuild(t, New("plain", func() bool { return true }), env)
	if d.Module() != DefaultModule || !d.Deterministic() {
		t.Errorf("defaults not applied: module=%s deterministic=%v", d.Module(), d.Deterministic())
	}
}

func TestExecuteResults(t *testing.T) {
	env := newTestEnv()
	boom := errors.New("boom")

	tests := []struct {
		name    string
		fn      any
		want    engine.Result
		wantErr bool
	}{
		{"bool true", func() bool { return true }, engine.Succeed, false},
		{"bool false", func() bool { return false }, engine.Fail, false},
		{"nil error", func() error { return nil }, engine.Succeed, false},
		{"error", func() error { return boom }, engine.Fail, true},
		{"bool and error", func() (bool, error) { return true, nil }, engine.Succeed, false},
		{"bool and failing error", func() (bool, error) { return true, boom }, engine.Fail, true},
		{"no results", func() {}, engine.Succeed, false},
		{"panic", func() bool { panic("bad") }, engine.Fail, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := mustBuild(t, New("p", tt.fn), env)
			got, err := run(t, f)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Execute() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExecuteWrapsHostErrors(t *testing.T) {
	env := newTestEnv()
	boom := errors.New("boom")
	f := mustBuild(t, New("explode", func(a any) error { return boom }).Module("m"), env)

	_, err := run(t, f, int64(1))
	if !engine.IsHost(err) {
		t.Fatalf("error class = %q, want host", engine.ClassOf(err))
	}
	if !errors.Is(err, boom) {
		t.Error("host error does not wrap the handler error")
	}
	var ee *engine.Error
	if !errors.As(err, &ee) || ee.Predicate != "m:explode/1" {
		t.Errorf("predicate indicator = %q, want m:explode/1", ee.Predicate)
	}
}

func TestExecuteConvertsArguments(t *testing.T) {
	env := newTestEnv()
	var gotN int
	var gotNames []string
	f := mustBuild(t, New("p", func(n int, names []string) bool {
		gotN, gotNames = n, names
		return true
	}), env)

	res, err := run(t, f, int64(3), []term.Term{"a", "b"})
	if err != nil || res != engine.Succeed {
		t.Fatalf("Execute() = %v, %v", res, err)
	}
	if gotN != 3 || len(gotNames) != 2 || gotNames[1] != "b" {
		t.Errorf("handler got n=%d names=%v", gotN, gotNames)
	}

	res, err = run(t, f, "three", []term.Term{})
	if err != nil || res != engine.Fail {
		t.Errorf("unconvertible argument: Execute() = %v, %v, want fail", res, err)
	}
}

func TestExecuteAtomAsString(t *testing.T) {
	env := newTestEnv()
	var got string
	f := mustBuild(t, New("p", func(s string) bool { got = s; return true }), env)

	if res, err := run(t, f, term.Atom("name")); err != nil || res != engine.Succeed {
		t.Fatalf("Execute() = %v, %v", res, err)
	}
	if got != "name" {
		t.Errorf("string parameter got %q, want name", got)
	}
}

func TestExecuteDefaults(t *testing.T) {
	env := newTestEnv()
	var got []any
	f := mustBuild(t, New("p", func(a, b, c any) bool {
		got = []any{a, b, c}
		return true
	}).Defaults("x", nil), env)

	if f.MinArity() != 1 || f.MaxArity() != 3 {
		t.Fatalf("arity = %d..%d, want 1..3", f.MinArity(), f.MaxArity())
	}

	if _, err := run(t, f, int64(1)); err != nil {
		t.Fatal(err)
	}
	if got[0] != int64(1) || got[1] != "x" || got[2] != nil {
		t.Errorf("one argument: got %v", got)
	}

	if _, err := run(t, f, int64(1), "y"); err != nil {
		t.Fatal(err)
	}
	if got[1] != "y" || got[2] != nil {
		t.Errorf("two arguments: got %v", got)
	}
}

func TestExecuteArityOutOfBounds(t *testing.T) {
	env := newTestEnv()
	f := mustBuild(t, New("p", func(a any) bool { return true }), env)

	_, err := run(t, f)
	if !errors.Is(err, engine.ErrArity) {
		t.Errorf("error = %v, want ErrArity", err)
	}
}

func TestExecuteMissingHandle(t *testing.T) {
	env := newTestEnv()
	f := mustBuild(t, New("p", func(obj any) bool { return true }), env)

	_, err := run(t, f, term.Atom("gone"))
	if !errors.Is(err, engine.ErrHandleNotFound) {
		t.Errorf("error = %v, want ErrHandleNotFound", err)
	}
}

func TestExecuteHandleParameter(t *testing.T) {
	env := newTestEnv()
	var got refs.Handle
	f := mustBuild(t, New("p", func(h refs.Handle) bool { got = h; return true }), env)

	if res, err := run(t, f, term.Atom("not_in_table")); err != nil || res != engine.Succeed {
		t.Fatalf("Execute() = %v, %v", res, err)
	}
	if got != "not_in_table" {
		t.Errorf("handle = %q", got)
	}
	if res, _ := run(t, f, int64(1)); res != engine.Fail {
		t.Error("non-atom handle argument should fail")
	}
}

func TestNondeterministicPruned(t *testing.T) {
	env := newTestEnv()
	called, pruned := false, false
	f := mustBuild(t, New("p", func(a any) bool {
		called = true
		return true
	}).Nondeterministic().OnPrune(func(*engine.ChoicePoint) { pruned = true }), env)

	cp := &engine.ChoicePoint{}
	res, err := f.Execute(context.Background(), &engine.Call{
		Args:        []term.Term{int64(1)},
		Control:     engine.Pruned,
		ChoicePoint: cp,
	})
	if err != nil || res != engine.Fail {
		t.Errorf("Execute(pruned) = %v, %v, want fail", res, err)
	}
	if called {
		t.Error("handler must not run on a pruned call")
	}
	if !pruned {
		t.Error("prune hook not run")
	}

	res, _ = f.Execute(context.Background(), &engine.Call{
		Args:        []term.Term{int64(1)},
		Control:     engine.FirstCall,
		ChoicePoint: cp,
	})
	if res != engine.Retry || cp.Calls != 1 {
		t.Errorf("first call = %v (calls=%d), want retry after one call", res, cp.Calls)
	}
}

func TestTracingToggle(t *testing.T) {
	var buf bytes.Buffer
	env := NewEnv(refs.NewManager(), zerolog.New(&buf).Level(zerolog.InfoLevel), nil)
	if env.Tracing() {
		t.Fatal("tracing should start off")
	}
	f := mustBuild(t, New("p", func() bool { return true }).Module("m"), env)

	env.SetTrace(true)
	if res, err := run(t, f); err != nil || res != engine.Succeed {
		t.Errorf("traced call = %v, %v", res, err)
	}
	if !strings.Contains(buf.String(), "CALL: m:p") {
		t.Fatalf("trace output = %q, want a CALL line at the default level", buf.String())
	}

	env.SetTrace(false)
	if env.Tracing() {
		t.Error("tracing should be off")
	}
	buf.Reset()
	if _, err := run(t, f); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("untraced call logged %q", buf.String())
	}
}

func TestForeigns(t *testing.T) {
	env := newTestEnv()
	f := mustBuild(t, New("p", func(a, b, c any) bool { return true }).Module("m").Defaults(nil), env)

	regs := Foreigns(f)
	if len(regs) != 2 {
		t.Fatalf("registrations = %d, want 2", len(regs))
	}
	if regs[0].Indicator() != "m:p/2" || regs[1].Indicator() != "m:p/3" {
		t.Errorf("indicators = %s, %s", regs[0].Indicator(), regs[1].Indicator())
	}
	for _, r := range regs {
		if !r.Deterministic || r.Func == nil {
			t.Errorf("registration %s incomplete", r.Indicator())
		}
	}
}
