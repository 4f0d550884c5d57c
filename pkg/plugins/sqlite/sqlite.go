// Package sqlite exposes SQLite databases to logic programs.
//
// Databases and result sets cross into the engine as handles:
//
//	?- sqlite:open('gis.db', Db),
//	   sqlite:query(Db, "SELECT name FROM layers WHERE kind = ?", ["vector"], Rows),
//	   geolog:iterate(Rows, [Name]).
//
// Rows stream lazily; each row is a list of column values. Statement
// parameters must be numbers or strings: atoms in a parameter list are read
// as handles.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/geolog/geolog/pkg/engine"
	"github.com/geolog/geolog/pkg/predicate"
	"github.com/geolog/geolog/pkg/refs"
)

const (
	// Module is the engine module of the predicates.
	Module = "sqlite"
	// Namespace is the catalog namespace of the predicates.
	Namespace = "geolog_plugins/sqlite"
)

const driver = "sqlite"

func init() {
	predicate.Register(Namespace,
		build(predicate.New("open", open)),
		build(predicate.New("close", closeDB)),
		build(predicate.New("exec", exec).Defaults(nil, nil)),
		build(predicate.New("query", query).Defaults(nil)),
		build(predicate.New("migrate", migrateUp).Defaults(nil)),
		build(predicate.New("remove_table_name", removeTableName)),
	)
}

func build(b *predicate.Builder) predicate.Factory {
	return func(env *predicate.Env) (predicate.Predicate, error) {
		return b.Module(Module).Build(env)
	}
}

// Open opens a database. In-memory databases are limited to one connection
// so every statement sees the same data.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if isMemory(path) {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	return db, nil
}

func dsn(path string) string {
	params := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if isMemory(path) {
		return "file::memory:?" + params
	}
	if strings.Contains(path, "?") {
		return path + "&" + params
	}
	return path + "?" + params
}

func isMemory(path string) bool {
	return path == ":memory:" || path == ""
}

func open(c *predicate.Context, path string, out any) (bool, error) {
	db, err := Open(path)
	if err != nil {
		return false, engine.NewHostError("sqlite open "+path, err)
	}
	if err := db.PingContext(c); err != nil {
		_ = db.Close()
		return false, engine.NewHostError("sqlite open "+path, err)
	}
	ok, err := c.Unify(out, db)
	if !ok || err != nil {
		_ = db.Close()
	}
	return ok, err
}

// closeDB closes the database under h and drops the handle.
func closeDB(c *predicate.Context, h refs.Handle) (bool, error) {
	value, err := c.References().Get(h)
	if err != nil {
		return false, err
	}
	db, ok := value.(*sql.DB)
	if !ok {
		return false, nil
	}
	c.References().Clear(h)
	if err := db.Close(); err != nil {
		return false, engine.NewHostError("sqlite close", err)
	}
	return true, nil
}

// exec runs a statement with optional parameters and optionally unifies the
// number of affected rows.
func exec(c *predicate.Context, db *sql.DB, stmt string, params []any, affected any) (bool, error) {
	res, err := db.ExecContext(c, stmt, params...)
	if err != nil {
		return false, engine.NewHostError("sqlite exec", err).WithDetail("sql", stmt)
	}
	if affected == nil {
		return true, nil
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, engine.NewHostError("sqlite exec", err)
	}
	return c.Unify(affected, n)
}

// query runs a SELECT and unifies a row iterator. With three arguments the
// third is the iterator; with four, the third is the parameter list.
func query(c *predicate.Context, db *sql.DB, stmt string, third, fourth any) (bool, error) {
	params, out := []any(nil), third
	if c.Arity() == 4 {
		list, ok := third.([]any)
		if !ok && third != nil {
			return false, nil
		}
		params, out = list, fourth
	}
	rows, err := db.QueryContext(c, stmt, params...)
	if err != nil {
		return false, engine.NewHostError("sqlite query", err).WithDetail("sql", stmt)
	}
	it, err := newRowIterator(rows)
	if err != nil {
		return false, engine.NewHostError("sqlite query", err).WithDetail("sql", stmt)
	}
	ok, err := c.Unify(out, it)
	if !ok || err != nil {
		it.Stop()
	}
	return ok, err
}

// removeTableName strips a qualifying table name: "layers.name" -> "name".
func removeTableName(c *predicate.Context, column string, out any) (bool, error) {
	if i := strings.LastIndexByte(column, '.'); i >= 0 {
		column = column[i+1:]
	}
	return c.Unify(out, column)
}
