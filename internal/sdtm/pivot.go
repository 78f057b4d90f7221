package sdtm

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/table"
)

type nullIndexPolicy int

const (
	// dropNullIndex skips rows with a null index cell.
	dropNullIndex nullIndexPolicy = iota
	// failNullIndex rejects the whole pivot when any index cell is null.
	failNullIndex
	// keepNullIndex groups null index cells together.
	keepNullIndex
)

var errNullIndex = errors.New("null index value")

const nullKeyPart = "\x00"

// pivoted is a SUPP table spread to one row per index key and one column per
// QNAM. Cells hold the first non-null QVAL seen for (key, QNAM).
type pivoted struct {
	index  []string
	qnams  []string
	order  []string
	keyRow map[string][]any
	cells  map[string]map[string]any
	// labels maps QNAM to the first non-empty QLABEL.
	labels     map[string]string
	collisions int
}

func (p *pivoted) value(key, qnam string) any {
	return p.cells[key][qnam]
}

// pivotSupp groups the rows of a cast SUPP table by the index columns. When
// normalize is set, index cells are passed through NormalizeKey first so the
// resulting keys can be matched against normalized parent keys.
func pivotSupp(s *table.Table, index []string, normalize bool, policy nullIndexPolicy) (*pivoted, error) {
	if !s.Has(colQNam) || !s.Has(colQVal) {
		return nil, fmt.Errorf("pivot: missing %s/%s: %w", colQNam, colQVal, ErrSchemaMismatch)
	}
	for _, c := range index {
		if !s.Has(c) {
			return nil, fmt.Errorf("pivot: missing index column %s: %w", c, ErrSchemaMismatch)
		}
	}

	p := &pivoted{
		index:  slices.Clone(index),
		keyRow: make(map[string][]any),
		cells:  make(map[string]map[string]any),
		labels: make(map[string]string),
	}
	seenQ := make(map[string]struct{})
	qnam, qval := s.Col(colQNam), s.Col(colQVal)
	qlabel := s.Col(colQLabel)
	idxCols := make([][]any, len(index))
	for i, c := range index {
		idxCols[i] = s.Col(c)
	}

	for r := 0; r < s.Len(); r++ {
		q := strings.TrimSpace(table.String(qnam[r]))
		if q == "" {
			continue
		}
		vals := make([]any, len(index))
		parts := make([]string, len(index))
		skip := false
		for i, col := range idxCols {
			v := col[r]
			if normalize {
				v = NormalizeKey(v)
			} else {
				v = table.StringOrNull(v)
			}
			if v == nil {
				switch policy {
				case dropNullIndex:
					skip = true
				case failNullIndex:
					return nil, fmt.Errorf("pivot: row %d column %s: %w", r, index[i], errNullIndex)
				}
				parts[i] = nullKeyPart
			} else {
				parts[i] = v.(string)
			}
			vals[i] = v
		}
		if skip {
			continue
		}
		key := strings.Join(parts, "\x1f")

		if _, ok := p.keyRow[key]; !ok {
			p.keyRow[key] = vals
			p.order = append(p.order, key)
			p.cells[key] = make(map[string]any)
		}
		if _, ok := seenQ[q]; !ok {
			seenQ[q] = struct{}{}
			p.qnams = append(p.qnams, q)
		}
		if qlabel != nil {
			if _, ok := p.labels[q]; !ok {
				if l := strings.TrimSpace(table.String(qlabel[r])); l != "" {
					p.labels[q] = l
				}
			}
		}

		v := qval[r]
		if prev, ok := p.cells[key][q]; ok && !table.IsNull(prev) {
			p.collisions++
			continue
		}
		p.cells[key][q] = table.StringOrNull(v)
	}

	slices.Sort(p.qnams)
	slices.Sort(p.order)
	return p, nil
}

// toTable lays the pivot out as a wide table: index columns then QNAM columns
// in lexical order, rows ordered by index key.
func (p *pivoted) toTable() *table.Table {
	names := append(slices.Clone(p.index), p.qnams...)
	cols := make([][]any, len(names))
	for i := range cols {
		cols[i] = make([]any, len(p.order))
	}
	for r, key := range p.order {
		for i, v := range p.keyRow[key] {
			cols[i][r] = v
		}
		for j, q := range p.qnams {
			cols[len(p.index)+j][r] = p.cells[key][q]
		}
	}
	t, err := table.FromColumns(names, cols)
	if err != nil {
		// A QNAM equal to an index column name; keep the index column.
		return p.dedupedTable(names, cols)
	}
	return t
}

func (p *pivoted) dedupedTable(names []string, cols [][]any) *table.Table {
	seen := make(map[string]struct{}, len(names))
	var outNames []string
	var outCols [][]any
	for i, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		outNames = append(outNames, n)
		outCols = append(outCols, cols[i])
	}
	t, _ := table.FromColumns(outNames, outCols)
	return t
}

// castSupp applies the Q-format casts: STUDYID, USUBJID, QNAM, QVAL and RDOMAIN
// become strings (nulls stay null); IDVAR and IDVARVAL blanks, "nan" and
// "None" become null.
func castSupp(s *table.Table) *table.Table {
	out := s
	for _, c := range []string{colStudyID, colUSubjID, colQNam, colQVal, colRDomain} {
		if !out.Has(c) {
			continue
		}
		out, _ = out.WithColumn(c, mapCol(out.Col(c), table.StringOrNull))
	}
	for _, c := range []string{colIDVar, colIDVarVal} {
		if !out.Has(c) {
			continue
		}
		out, _ = out.WithColumn(c, mapCol(out.Col(c), nullIfBlank))
	}
	return out
}

func nullIfBlank(v any) any {
	if table.IsNull(v) {
		return nil
	}
	s := strings.TrimSpace(table.String(v))
	switch s {
	case "", "nan", "None":
		return nil
	}
	return s
}

func mapCol(col []any, fn func(any) any) []any {
	out := make([]any, len(col))
	for i, v := range col {
		out[i] = fn(v)
	}
	return out
}

// displayIndex is the longest prefix of the Q-format key columns present in s.
func displayIndex(s *table.Table) []string {
	var idx []string
	for _, c := range []string{colStudyID, colUSubjID, colRDomain, colIDVar, colIDVarVal} {
		if !s.Has(c) {
			break
		}
		idx = append(idx, c)
	}
	return idx
}

// BuildSuppPivot turns a SUPP dataset into its wide display form. It first
// pivots on the longest available key prefix and falls back to
// (STUDYID, USUBJID) when that index cannot key every row.
func BuildSuppPivot(s *table.Table) (*table.Table, error) {
	if !s.Has(colStudyID) || !s.Has(colUSubjID) {
		return nil, fmt.Errorf("pivot: missing %s/%s: %w", colStudyID, colUSubjID, ErrSchemaMismatch)
	}
	cast := castSupp(s)
	p, err := pivotSupp(cast, displayIndex(cast), false, failNullIndex)
	if err != nil {
		if errors.Is(err, ErrSchemaMismatch) {
			return nil, err
		}
		p, err = pivotSupp(cast, []string{colStudyID, colUSubjID}, false, keepNullIndex)
		if err != nil {
			return nil, err
		}
	}
	return p.toTable(), nil
}
