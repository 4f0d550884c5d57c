package commands

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/geolog/geolog/pkg/config"
	"github.com/geolog/geolog/pkg/engine"
	"github.com/geolog/geolog/pkg/term"
)

type fakeEngine struct {
	mu        sync.Mutex
	consulted []string
	queries   []string
	closed    bool

	answers  map[string][]engine.Solution
	queryErr map[string]error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		answers:  make(map[string][]engine.Solution),
		queryErr: make(map[string]error),
	}
}

func (f *fakeEngine) Register(context.Context, []engine.Foreign) error { return nil }

func (f *fakeEngine) Consult(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consulted = append(f.consulted, path)
	return nil
}

func (f *fakeEngine) ConsultText(context.Context, string, string) error { return nil }

func (f *fakeEngine) Query(_ context.Context, text string) ([]engine.Solution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, text)
	return f.answers[text], f.queryErr[text]
}

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// run executes the root command against eng and returns stdout and stderr.
func run(t *testing.T, eng *fakeEngine, stdin string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv("LOG_LEVEL", "")

	prev := newEngine
	newEngine = func(*config.Config, zerolog.Logger) engine.Factory {
		return func(context.Context) (engine.Engine, error) { return eng, nil }
	}
	t.Cleanup(func() { newEngine = prev })

	var stdout, stderr bytes.Buffer
	cmd := newRootCommand("test", "none", "today")
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestQueryCommand(t *testing.T) {
	eng := newFakeEngine()
	eng.answers["true"] = []engine.Solution{{}}
	eng.answers["member(X, [a, b])"] = []engine.Solution{
		{"X": term.Atom("a")},
		{"X": term.Atom("b")},
	}
	eng.answers["pair(X, Y)"] = []engine.Solution{
		{"Y": []term.Term{int64(1), "two"}, "X": term.Atom("p")},
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"true", []string{"query", "true"}, "true.\n"},
		{"false", []string{"query", "fail"}, "false.\n"},
		{"solutions", []string{"query", "member(X, [a, b])"}, "X = a.\nX = b.\n"},
		{"sorted bindings", []string{"query", "pair(X, Y)"}, "X = p, Y = [1, \"two\"].\n"},
		{
			"json",
			[]string{"--json", "query", "member(X, [a, b])"},
			"{\n  \"outcome\": \"solutions\",\n  \"solutions\": [\n    {\n      \"X\": \"a\"\n    },\n    {\n      \"X\": \"b\"\n    }\n  ]\n}\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := run(t, eng, "", tt.args...)
			if err != nil {
				t.Fatalf("execute: %v", err)
			}
			if out != tt.want {
				t.Fatalf("output = %q, want %q", out, tt.want)
			}
		})
	}

	if !eng.closed {
		t.Fatal("engine was not closed")
	}
}

func TestQueryErrors(t *testing.T) {
	eng := newFakeEngine()
	eng.queryErr["boom"] = engine.NewEngineError(engine.ErrCodeQuery, "query raised an error", errors.New("type_error"))

	out, _, err := run(t, eng, "", "query", "boom")
	if err != nil {
		t.Fatalf("caught query returned error: %v", err)
	}
	if out != "false.\n" {
		t.Fatalf("output = %q, want false", out)
	}

	_, _, err = run(t, eng, "", "query", "--fail-on-error", "boom")
	if !errors.Is(err, engine.ErrQuery) {
		t.Fatalf("error = %v, want query error", err)
	}
}

func TestConsultCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.pl")
	if err := os.WriteFile(path, []byte("edge(a, b).\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	eng := newFakeEngine()
	eng.answers["edge(a, X)"] = []engine.Solution{{"X": term.Atom("b")}}

	out, _, err := run(t, eng, "", "consult", path, "-q", "edge(a, X)")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !slices.Contains(eng.consulted, path) {
		t.Fatalf("consulted = %v, want %s", eng.consulted, path)
	}
	if out != "X = b.\n" {
		t.Fatalf("output = %q", out)
	}
}

func TestPredicatesCommand(t *testing.T) {
	out, _, err := run(t, newFakeEngine(), "", "predicates")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for _, want := range []string{"geolog:iterate/2", "sqlite:query/3", "starlark:eval/2"} {
		if !slices.Contains(lines, want) {
			t.Errorf("missing %s in %v", want, lines)
		}
	}
}

func TestRepl(t *testing.T) {
	eng := newFakeEngine()
	eng.answers["true"] = []engine.Solution{{}}

	input := strings.Join([]string{
		"true",
		"",
		":trace",
		":trace",
		":reset",
		":bogus",
		":plugin onlypath",
		":quit",
		"true",
	}, "\n")

	out, errOut, err := run(t, eng, input, "repl")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	for _, want := range []string{"?- true.", "trace on", "trace off", "handles cleared"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
	for _, want := range []string{"unknown command :bogus", "usage: :plugin"} {
		if !strings.Contains(errOut, want) {
			t.Errorf("stderr %q missing %q", errOut, want)
		}
	}
	if n := len(eng.queries); n != 1 {
		t.Fatalf("ran %d queries, want 1 (nothing after :quit)", n)
	}
}

func TestGlobalFlags(t *testing.T) {
	eng := newFakeEngine()

	_, _, err := run(t, eng, "", "--plugin", "no-namespace", "predicates")
	if err == nil {
		t.Fatal("expected error for malformed --plugin")
	}
	if got := engine.ClassOf(err); got != engine.ErrorClassConfig {
		t.Fatalf("class = %v, want config", got)
	}

	_, _, err = run(t, eng, "", "--plugin", "./rules=Bad-NS", "predicates")
	if got := engine.ClassOf(err); got != engine.ErrorClassConfig {
		t.Fatalf("class = %v, want config for invalid namespace", got)
	}
}

func TestLoadConfigAppliesFlags(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv("LOG_LEVEL", "warn")

	cmd := newRootCommand("test", "none", "today")
	if err := cmd.ParseFlags([]string{
		"--plugin", "./rules=mylib",
		"--metrics-addr", "127.0.0.1:0",
	}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if len(cfg.Plugins) != 1 || cfg.Plugins[0] != (config.Plugin{Path: "./rules", Namespace: "mylib"}) {
		t.Fatalf("plugins = %+v", cfg.Plugins)
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Fatalf("level = %s, want warn from LOG_LEVEL", cfg.Telemetry.Logging.Level)
	}
	if !cfg.Telemetry.Metrics.Enabled || cfg.Telemetry.Metrics.ListenAddress != "127.0.0.1:0" {
		t.Fatalf("metrics = %+v", cfg.Telemetry.Metrics)
	}

	if err := cmd.ParseFlags([]string{"--trace"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cfg, err = loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if !cfg.Trace || cfg.Telemetry.Logging.Level != "debug" {
		t.Fatalf("trace = %v level = %s", cfg.Trace, cfg.Telemetry.Logging.Level)
	}
}
