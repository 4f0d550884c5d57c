package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/geolog/geolog/pkg/engine"
	"github.com/geolog/geolog/pkg/predicate"
	"github.com/geolog/geolog/pkg/refs"
	"github.com/geolog/geolog/pkg/term"
)

type fixture struct {
	refs  *refs.Manager
	preds map[string]predicate.Predicate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	r := refs.NewManager()
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	env := predicate.NewEnv(r, logger, nil)
	preds, err := predicate.NewRegistry(env, logger).Discover([]predicate.Plugin{
		{Namespace: Namespace},
		{Namespace: predicate.CoreNamespace},
	})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	f := &fixture{refs: r, preds: make(map[string]predicate.Predicate)}
	for _, p := range preds {
		f.preds[p.Module()+":"+p.Name()] = p
	}
	return f
}

func (f *fixture) call(t *testing.T, name string, args ...term.Term) engine.Result {
	t.Helper()
	p, ok := f.preds[name]
	if !ok {
		t.Fatalf("predicate %s not discovered", name)
	}
	res, err := p.Execute(context.Background(), &engine.Call{Args: args})
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return res
}

func (f *fixture) open(t *testing.T, path string) term.Term {
	t.Helper()
	db := term.NewVariable("Db")
	if res := f.call(t, "sqlite:open", path, db); res != engine.Succeed {
		t.Fatalf("open returned %v", res)
	}
	h := bound(t, db)
	t.Cleanup(func() {
		if f.refs.Contains(refs.Handle(h.(term.Atom))) {
			f.call(t, "sqlite:close", h)
		}
	})
	return h
}

// rows drains a row iterator through geolog:iterate/2.
func (f *fixture) rows(t *testing.T, it term.Term) [][]any {
	t.Helper()
	var out [][]any
	cp := &engine.ChoicePoint{}
	control := engine.FirstCall
	for {
		row := term.NewVariable("Row")
		res, err := f.preds["geolog:iterate"].Execute(context.Background(), &engine.Call{
			Args:        []term.Term{it, row},
			Control:     control,
			ChoicePoint: cp,
		})
		if err != nil {
			t.Fatalf("iterate: %v", err)
		}
		if res == engine.Fail {
			return out
		}
		var values []any
		for _, v := range bound(t, row).([]term.Term) {
			values = append(values, v)
		}
		out = append(out, values)
		control = engine.Redo
	}
}

func bound(t *testing.T, v *term.Variable) term.Term {
	t.Helper()
	value, ok := v.Value()
	if !ok {
		t.Fatalf("variable %s is unbound", v.Name)
	}
	return value
}

func TestDescriptors(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name     string
		min, max int
	}{
		{"sqlite:open", 2, 2},
		{"sqlite:close", 1, 1},
		{"sqlite:exec", 2, 4},
		{"sqlite:query", 3, 4},
		{"sqlite:migrate", 2, 3},
		{"sqlite:remove_table_name", 2, 2},
	}
	for _, tt := range tests {
		p := f.preds[tt.name]
		if p == nil {
			t.Errorf("%s not discovered", tt.name)
			continue
		}
		if p.MinArity() != tt.min || p.MaxArity() != tt.max || !p.Deterministic() {
			t.Errorf("%s: arity %d..%d deterministic=%v", tt.name, p.MinArity(), p.MaxArity(), p.Deterministic())
		}
	}
}

func TestExecAndQuery(t *testing.T) {
	f := newFixture(t)
	db := f.open(t, ":memory:")

	f.call(t, "sqlite:exec", db, "CREATE TABLE layers (name TEXT, kind TEXT, features INTEGER)")
	for _, row := range [][]term.Term{
		{"roads", "vector", int64(120)},
		{"elevation", "raster", int64(1)},
		{"rivers", "vector", int64(40)},
	} {
		affected := term.NewVariable("N")
		f.call(t, "sqlite:exec", db, "INSERT INTO layers VALUES (?, ?, ?)", row, affected)
		if got := bound(t, affected); got != int64(1) {
			t.Fatalf("affected = %#v, want 1", got)
		}
	}

	rows := term.NewVariable("Rows")
	f.call(t, "sqlite:query", db, "SELECT name, features FROM layers WHERE kind = ? ORDER BY name", []term.Term{"vector"}, rows)
	got := f.rows(t, bound(t, rows))
	want := [][]any{{"rivers", int64(40)}, {"roads", int64(120)}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("rows = %#v, want %#v", got, want)
	}

	rows = term.NewVariable("Rows")
	f.call(t, "sqlite:query", db, "SELECT count(*) FROM layers", rows)
	if got := f.rows(t, bound(t, rows)); !reflect.DeepEqual(got, [][]any{{int64(3)}}) {
		t.Fatalf("count rows = %#v", got)
	}
}

func TestExecErrorIsHostError(t *testing.T) {
	f := newFixture(t)
	db := f.open(t, ":memory:")

	_, err := f.preds["sqlite:exec"].Execute(context.Background(), &engine.Call{
		Args: []term.Term{db, "INSERT INTO missing VALUES (1)"},
	})
	if !engine.IsHost(err) {
		t.Fatalf("expected host error, got %v", err)
	}
}

func TestCloseDropsHandle(t *testing.T) {
	f := newFixture(t)
	db := f.open(t, ":memory:")

	f.call(t, "sqlite:close", db)
	if f.refs.Contains(refs.Handle(db.(term.Atom))) {
		t.Fatal("expected close to clear the handle")
	}
}

func TestDeleteReleasesRows(t *testing.T) {
	f := newFixture(t)
	db := f.open(t, ":memory:")

	f.call(t, "sqlite:exec", db, "CREATE TABLE layers (name TEXT)")
	f.call(t, "sqlite:exec", db, "INSERT INTO layers VALUES ('roads'), ('rivers')")

	rows := term.NewVariable("Rows")
	f.call(t, "sqlite:query", db, "SELECT name FROM layers ORDER BY name", rows)
	it := bound(t, rows)

	cols := term.NewVariable("Cols")
	if res := f.call(t, "geolog:get_attribute", it, "columns", cols); res != engine.Succeed {
		t.Fatalf("get_attribute columns = %v", res)
	}
	if got := bound(t, cols); !reflect.DeepEqual(got, []term.Term{"name"}) {
		t.Fatalf("columns = %#v", got)
	}

	row := term.NewVariable("Row")
	if res := f.call(t, "geolog:next", it, row); res != engine.Succeed {
		t.Fatalf("next = %v", res)
	}
	f.call(t, "geolog:delete", it)

	// The open result set holds the only connection of an in-memory
	// database until the iterator is stopped.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := f.preds["sqlite:exec"].Execute(ctx, &engine.Call{
		Args: []term.Term{db, "INSERT INTO layers VALUES ('rails')"},
	})
	if err != nil || res != engine.Succeed {
		t.Fatalf("exec after delete = %v, %v", res, err)
	}
}

func TestMigrate(t *testing.T) {
	dir := t.TempDir()
	migrations := filepath.Join(dir, "migrations")
	if err := os.Mkdir(migrations, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"1_layers.up.sql":   "CREATE TABLE layers (name TEXT PRIMARY KEY);",
		"1_layers.down.sql": "DROP TABLE layers;",
		"2_seed.up.sql":     "INSERT INTO layers (name) VALUES ('roads');",
		"2_seed.down.sql":   "DELETE FROM layers;",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(migrations, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	f := newFixture(t)
	db := f.open(t, filepath.Join(dir, "gis.db"))

	version := term.NewVariable("V")
	f.call(t, "sqlite:migrate", db, migrations, version)
	if got := bound(t, version); got != int64(2) {
		t.Fatalf("version = %#v, want 2", got)
	}

	rows := term.NewVariable("Rows")
	f.call(t, "sqlite:query", db, "SELECT name FROM layers", rows)
	if got := f.rows(t, bound(t, rows)); !reflect.DeepEqual(got, [][]any{{"roads"}}) {
		t.Fatalf("rows = %#v", got)
	}

	// Nothing left to apply.
	f.call(t, "sqlite:migrate", db, migrations)
}

func TestRemoveTableName(t *testing.T) {
	f := newFixture(t)
	tests := map[string]string{
		"layers.name":     "name",
		"gis.layers.geom": "geom",
		"unqualified":     "unqualified",
		"trailing.":       "",
	}
	for in, want := range tests {
		out := term.NewVariable("Out")
		f.call(t, "sqlite:remove_table_name", in, out)
		if got := bound(t, out); got != want {
			t.Errorf("remove_table_name(%q) = %#v, want %q", in, got, want)
		}
	}
}

func TestDSN(t *testing.T) {
	tests := map[string]string{
		":memory:":            "file::memory:?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		"gis.db":              "gis.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		"file:gis.db?mode=ro": "file:gis.db?mode=ro&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
	}
	for in, want := range tests {
		if got := dsn(in); got != want {
			t.Errorf("dsn(%q) = %q, want %q", in, got, want)
		}
	}
}
