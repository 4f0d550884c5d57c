package sqlite

import (
	"database/sql"
	"sync"
)

// rowIterator streams a result set. Each element is the row as []any;
// BLOB columns are copied, TEXT returned as string. The underlying rows are
// closed on exhaustion or Stop.
type rowIterator struct {
	mu      sync.Mutex
	rows    *sql.Rows
	columns []string
	done    bool
	err     error
}

func newRowIterator(rows *sql.Rows) (*rowIterator, error) {
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, err
	}
	return &rowIterator{rows: rows, columns: cols}, nil
}

// Columns returns the column names of the result set.
func (it *rowIterator) Columns() []string {
	return it.columns
}

// Attr implements hostobj.Attributer: "columns" is the list of column names,
// "error" the message of the error that ended iteration or none.
func (it *rowIterator) Attr(name string) (any, bool) {
	switch name {
	case "columns":
		return it.Columns(), true
	case "error":
		if err := it.Err(); err != nil {
			return err.Error(), true
		}
		return nil, true
	}
	return nil, false
}

// Next implements hostobj.Iterator.
func (it *rowIterator) Next() (any, bool) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.done {
		return nil, false
	}
	if !it.rows.Next() {
		it.close()
		return nil, false
	}
	values := make([]any, len(it.columns))
	ptrs := make([]any, len(values))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := it.rows.Scan(ptrs...); err != nil {
		it.err = err
		it.close()
		return nil, false
	}
	for i, v := range values {
		if b, ok := v.([]byte); ok {
			values[i] = append([]byte(nil), b...)
		}
	}
	return values, true
}

// Stop implements hostobj.Iterator.
func (it *rowIterator) Stop() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.close()
}

// Err returns the error that ended iteration, if any.
func (it *rowIterator) Err() error {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.err != nil {
		return it.err
	}
	return it.rows.Err()
}

func (it *rowIterator) close() {
	if !it.done {
		it.done = true
		_ = it.rows.Close()
	}
}
