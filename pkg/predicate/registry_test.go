package predicate

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/rs/zerolog"

	"github.com/geolog/geolog/pkg/engine"
)

type recordingEngine struct {
	registered []engine.Foreign
	err        error
}

func (e *recordingEngine) Register(_ context.Context, preds []engine.Foreign) error {
	if e.err != nil {
		return e.err
	}
	e.registered = append(e.registered, preds...)
	return nil
}

func (e *recordingEngine) Consult(context.Context, string) error             { return nil }
func (e *recordingEngine) ConsultText(context.Context, string, string) error { return nil }
func (e *recordingEngine) Query(context.Context, string) ([]engine.Solution, error) {
	return nil, nil
}
func (e *recordingEngine) Close() error { return nil }

func constant(name string) Factory {
	return func(env *Env) (Predicate, error) {
		return New(name, func(out any) bool { return true }).Module("test").Build(env)
	}
}

func names(preds []Predicate) []string {
	var out []string
	for _, p := range preds {
		out = append(out, p.Name())
	}
	slices.Sort(out)
	return out
}

func TestDiscoverNamespaces(t *testing.T) {
	Register("test_discover", constant("root_a"))
	Register("test_discover/child", constant("child_b"))
	Register("test_discover/child/leaf", constant("leaf_c"))
	Register("test_discover_other", constant("other_d"))

	tests := []struct {
		name    string
		plugins []Plugin
		want    []string
	}{
		{"root covers children", []Plugin{{Namespace: "test_discover"}}, []string{"child_b", "leaf_c", "root_a"}},
		{"child only", []Plugin{{Namespace: "test_discover/child"}}, []string{"child_b", "leaf_c"}},
		{"prefix is not a parent", []Plugin{{Namespace: "test_disc"}}, nil},
		{"overlap deduplicated", []Plugin{{Namespace: "test_discover"}, {Namespace: "test_discover/child"}}, []string{"child_b", "leaf_c", "root_a"}},
		{"two roots", []Plugin{{Namespace: "test_discover/child/leaf"}, {Namespace: "test_discover_other"}}, []string{"leaf_c", "other_d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(newTestEnv(), zerolog.New(nil).Level(zerolog.Disabled))
			preds, err := r.Discover(tt.plugins)
			if err != nil {
				t.Fatalf("Discover() error = %v", err)
			}
			if got := names(preds); !slices.Equal(got, tt.want) {
				t.Errorf("Discover() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDiscoverSkipsUnnamedAndNil(t *testing.T) {
	Register("test_skip",
		func(env *Env) (Predicate, error) { return nil, nil },
		func(env *Env) (Predicate, error) {
			return New("", func() bool { return true }).Build(env)
		},
		constant("kept"),
	)

	r := NewRegistry(newTestEnv(), zerolog.New(nil).Level(zerolog.Disabled))
	preds, err := r.Discover([]Plugin{{Namespace: "test_skip"}})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if got := names(preds); !slices.Equal(got, []string{"kept"}) {
		t.Errorf("Discover() = %v", got)
	}
}

func TestDiscoverFactoryError(t *testing.T) {
	Register("test_broken", func(env *Env) (Predicate, error) {
		return New("broken", 42).Build(env)
	})

	r := NewRegistry(newTestEnv(), zerolog.New(nil).Level(zerolog.Disabled))
	if _, err := r.Discover([]Plugin{{Namespace: "test_broken"}}); !engine.IsContract(err) {
		t.Errorf("Discover() error = %v, want contract error", err)
	}
}

func TestAddPluginRescans(t *testing.T) {
	Register("test_add_one", constant("one"))
	Register("test_add_two", constant("two"))

	r := NewRegistry(newTestEnv(), zerolog.New(nil).Level(zerolog.Disabled))
	if _, err := r.Discover([]Plugin{{Path: "a", Namespace: "test_add_one"}}); err != nil {
		t.Fatal(err)
	}

	preds, err := r.AddPlugin(Plugin{Path: "b", Namespace: "test_add_two"})
	if err != nil {
		t.Fatal(err)
	}
	if got := names(preds); !slices.Equal(got, []string{"one", "two"}) {
		t.Errorf("after AddPlugin = %v", got)
	}

	preds, _ = r.AddPlugin(Plugin{Path: "b", Namespace: "test_add_two"})
	if len(preds) != 2 || len(r.Plugins()) != 2 {
		t.Errorf("adding the same plugin twice changed the registry: %d predicates, %d plugins", len(preds), len(r.Plugins()))
	}
	if len(r.Predicates()) != 2 {
		t.Errorf("Predicates() = %d", len(r.Predicates()))
	}
}

func TestInstallRegistersEveryArity(t *testing.T) {
	env := newTestEnv()
	p := mustBuild(t, New("opt", func(a, b, c any) bool { return true }).Module("m").Defaults(nil, nil), env)
	q := mustBuild(t, New("each", func(a, b any) bool { return true }).Module("m").Nondeterministic(), env)

	eng := &recordingEngine{}
	r := NewRegistry(env, zerolog.New(nil).Level(zerolog.Disabled))
	if err := r.Install(context.Background(), eng, []Predicate{p, q}); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	var got []string
	for _, f := range eng.registered {
		got = append(got, f.Indicator())
		if f.Name == "each" && f.Deterministic {
			t.Error("non-deterministic predicate registered as deterministic")
		}
	}
	want := []string{"m:opt/1", "m:opt/2", "m:opt/3", "m:each/2"}
	if !slices.Equal(got, want) {
		t.Errorf("registered %v, want %v", got, want)
	}

	if got := Indicators([]Predicate{p, q}); !slices.Equal(got, []string{"m:each/2", "m:opt/1", "m:opt/2", "m:opt/3"}) {
		t.Errorf("Indicators() = %v", got)
	}

	failing := &recordingEngine{err: errors.New("engine closed")}
	if err := r.Install(context.Background(), failing, []Predicate{p}); err == nil {
		t.Error("Install() should report engine errors")
	}
}

func TestNamespaces(t *testing.T) {
	Register("test_ns_listing", constant("x"))
	if !slices.Contains(Namespaces(), "test_ns_listing") {
		t.Errorf("Namespaces() = %v", Namespaces())
	}
	if !slices.Contains(Namespaces(), CoreNamespace) {
		t.Error("core namespace missing")
	}
}
