// Package table holds the column-oriented in-memory tables every SDTM domain is
// stored as. Cells are plain Go scalars: nil (missing), string, float64, int64,
// bool or time.Time. A float64 NaN is treated as missing, matching how SAS
// numeric missings arrive from readers.
package table

import (
	"fmt"
	"slices"
)

// Table is an ordered set of equally long columns.
//
// Tables are treated as values by the sdtm package: operations that change
// shape return a new Table and never mutate the receiver, so a reader holding
// an old *Table keeps a consistent snapshot.
type Table struct {
	names []string
	cols  map[string][]any
	rows  int
}

// New returns an empty table with the given columns and zero rows.
func New(names ...string) *Table {
	t := &Table{cols: make(map[string][]any, len(names))}
	for _, n := range names {
		if _, dup := t.cols[n]; dup {
			continue
		}
		t.names = append(t.names, n)
		t.cols[n] = []any{}
	}
	return t
}

// FromColumns builds a table from named columns in the given order.
func FromColumns(names []string, cols [][]any) (*Table, error) {
	if len(names) != len(cols) {
		return nil, fmt.Errorf("table: %d names for %d columns", len(names), len(cols))
	}
	t := &Table{cols: make(map[string][]any, len(names))}
	for i, n := range names {
		if _, dup := t.cols[n]; dup {
			return nil, fmt.Errorf("table: duplicate column %q", n)
		}
		if i > 0 && len(cols[i]) != t.rows {
			return nil, fmt.Errorf("table: column %q has %d rows, want %d", n, len(cols[i]), t.rows)
		}
		if i == 0 {
			t.rows = len(cols[i])
		}
		t.names = append(t.names, n)
		t.cols[n] = cols[i]
	}
	return t, nil
}

// FromRecords builds a table from row-major records. Short records are padded
// with nulls.
func FromRecords(names []string, records [][]any) (*Table, error) {
	cols := make([][]any, len(names))
	for i := range cols {
		cols[i] = make([]any, len(records))
	}
	for r, rec := range records {
		if len(rec) > len(names) {
			return nil, fmt.Errorf("table: record %d has %d fields, want at most %d", r, len(rec), len(names))
		}
		for c, v := range rec {
			cols[c][r] = v
		}
	}
	return FromColumns(names, cols)
}

// MustFromRecords is FromRecords for literals in tests and fixtures.
func MustFromRecords(names []string, records ...[]any) *Table {
	t, err := FromRecords(names, records)
	if err != nil {
		panic(err)
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return t.rows
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	if t == nil {
		return nil
	}
	return slices.Clone(t.names)
}

// Has reports whether the table has a column named name.
func (t *Table) Has(name string) bool {
	if t == nil {
		return false
	}
	_, ok := t.cols[name]
	return ok
}

// Col returns the backing slice of a column, or nil when it does not exist.
// Callers must not modify it.
func (t *Table) Col(name string) []any {
	if t == nil {
		return nil
	}
	return t.cols[name]
}

// Value returns one cell, nil when the column does not exist.
func (t *Table) Value(name string, row int) any {
	col := t.Col(name)
	if col == nil || row < 0 || row >= len(col) {
		return nil
	}
	return col[row]
}

// Clone returns a deep copy of the column slices.
func (t *Table) Clone() *Table {
	if t == nil {
		return New()
	}
	out := &Table{
		names: slices.Clone(t.names),
		cols:  make(map[string][]any, len(t.cols)),
		rows:  t.rows,
	}
	for n, c := range t.cols {
		out.cols[n] = slices.Clone(c)
	}
	return out
}

// WithColumn returns a copy of t where column name holds vals. An existing
// column keeps its position; a new one is appended.
func (t *Table) WithColumn(name string, vals []any) (*Table, error) {
	if len(t.names) > 0 && len(vals) != t.rows {
		return nil, fmt.Errorf("table: column %q has %d rows, want %d", name, len(vals), t.rows)
	}
	out := t.shallow()
	if _, ok := out.cols[name]; !ok {
		out.names = append(out.names, name)
	}
	out.cols[name] = vals
	out.rows = len(vals)
	return out, nil
}

// Without returns a copy of t without the named columns. Unknown names are
// ignored.
func (t *Table) Without(names ...string) *Table {
	out := t.shallow()
	for _, n := range names {
		if _, ok := out.cols[n]; !ok {
			continue
		}
		delete(out.cols, n)
		out.names = slices.DeleteFunc(out.names, func(s string) bool { return s == n })
	}
	return out
}

// Filter returns the rows for which keep reports true.
func (t *Table) Filter(keep func(row int) bool) *Table {
	idx := make([]int, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	return t.Take(idx)
}

// Take returns the rows at the given positions, in that order.
func (t *Table) Take(idx []int) *Table {
	out := &Table{
		names: slices.Clone(t.names),
		cols:  make(map[string][]any, len(t.cols)),
		rows:  len(idx),
	}
	for n, c := range t.cols {
		nc := make([]any, len(idx))
		for i, r := range idx {
			nc[i] = c[r]
		}
		out.cols[n] = nc
	}
	return out
}

// Slice returns rows [offset, offset+limit). A limit <= 0 means all remaining
// rows.
func (t *Table) Slice(offset, limit int) *Table {
	n := t.Len()
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	end := n
	if limit > 0 && offset+limit < n {
		end = offset + limit
	}
	idx := make([]int, 0, end-offset)
	for i := offset; i < end; i++ {
		idx = append(idx, i)
	}
	return t.Take(idx)
}

// Records returns the rows as maps keyed by column name.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, t.Len())
	for i := range out {
		rec := make(map[string]any, len(t.names))
		for _, n := range t.names {
			rec[n] = t.cols[n][i]
		}
		out[i] = rec
	}
	return out
}

// Equal reports whether both tables have the same columns in the same order
// and the same cells. NaN equals NaN.
func (t *Table) Equal(o *Table) bool {
	if t.Len() != o.Len() || !slices.Equal(t.Columns(), o.Columns()) {
		return false
	}
	for _, n := range t.names {
		a, b := t.cols[n], o.cols[n]
		for i := range a {
			if !SameValue(a[i], b[i]) {
				return false
			}
		}
	}
	return true
}

func (t *Table) shallow() *Table {
	if t == nil {
		return New()
	}
	out := &Table{
		names: slices.Clone(t.names),
		cols:  make(map[string][]any, len(t.cols)),
		rows:  t.rows,
	}
	for n, c := range t.cols {
		out.cols[n] = c
	}
	return out
}
