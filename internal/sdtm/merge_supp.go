package sdtm

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/table"
)

// suppMerge is the result of left-joining one SUPP dataset onto a parent.
type suppMerge struct {
	table   *table.Table
	origins OriginMap
	// labels maps each new column to the QLABEL of its QNAM.
	labels map[string]string
	// qlabels maps QNAM to QLABEL for every QNAM seen in the matching rows.
	qlabels map[string]string
}

// mergeSupp left-joins the qualifiers of supp whose RDOMAIN names the parent
// onto parent. The parent's row count and existing columns are never changed;
// shape problems make the pair contribute no columns.
func mergeSupp(log zerolog.Logger, parentName string, parent *table.Table, suppName string, supp *table.Table) suppMerge {
	res := suppMerge{
		table:   parent,
		origins: OriginMap{},
		labels:  map[string]string{},
		qlabels: map[string]string{},
	}
	l := log.With().Str("parent", parentName).Str("supp", suppName).Logger()

	if !supp.Has(colRDomain) {
		l.Debug().Msg("supp has no RDOMAIN column; not merged")
		return res
	}
	for _, c := range []string{colStudyID, colUSubjID, colQNam, colQVal} {
		if !supp.Has(c) {
			l.Debug().Err(ErrSchemaMismatch).Str("column", c).Msg("supp missing required column")
			return res
		}
	}
	for _, c := range []string{colStudyID, colUSubjID} {
		if !parent.Has(c) {
			l.Debug().Err(ErrSchemaMismatch).Str("column", c).Msg("parent missing key column")
			return res
		}
	}

	want := domainKey(parentName)
	cast := castSupp(supp)
	rdomain := cast.Col(colRDomain)
	sel := cast.Filter(func(i int) bool {
		return domainKey(table.String(rdomain[i])) == want
	})
	if sel.Len() == 0 {
		return res
	}
	collectQLabels(sel, res.qlabels)

	parentKeys := [][]any{
		NormalizeKeys(parent.Col(colStudyID)),
		NormalizeKeys(parent.Col(colUSubjID)),
	}

	if !anyNonNull(sel.Col(colIDVar)) {
		p, err := pivotSupp(sel, []string{colStudyID, colUSubjID}, true, dropNullIndex)
		if err != nil {
			l.Debug().Err(err).Msg("subject-level pivot failed")
			return res
		}
		logCollisions(l, p)
		res.join(p, parentKeys, suppName, "")
		return res
	}

	idvar := sel.Col(colIDVar)
	for _, iv := range distinctStrings(idvar) {
		joinCol := iv
		if !parent.Has(joinCol) {
			joinCol = firstSeqColumn(parent)
		}
		if joinCol == "" {
			l.Debug().Err(ErrKeyRegimeUnresolved).Str("idvar", iv).Msg("no IDVAR-named or *SEQ column in parent; partition dropped")
			continue
		}
		if !sel.Has(colIDVarVal) {
			l.Debug().Err(ErrSchemaMismatch).Str("idvar", iv).Msg("supp has IDVAR but no IDVARVAL")
			continue
		}
		sub := sel.Filter(func(i int) bool { return idvar[i] == iv })
		p, err := pivotSupp(sub, []string{colStudyID, colUSubjID, colIDVarVal}, true, dropNullIndex)
		if err != nil {
			l.Debug().Err(err).Str("idvar", iv).Msg("IDVAR pivot failed")
			continue
		}
		logCollisions(l, p)
		keys := append(parentKeys[:2:2], NormalizeKeys(parent.Col(joinCol)))
		res.join(p, keys, suppName, iv)
	}
	return res
}

// join appends one column per pivoted QNAM, aligned to the parent rows through
// their normalized keys.
func (r *suppMerge) join(p *pivoted, parentKeys [][]any, suppName, idvar string) {
	n := r.table.Len()
	parts := make([]any, len(parentKeys))
	rowKeys := make([]string, n)
	rowOK := make([]bool, n)
	for i := 0; i < n; i++ {
		for k := range parentKeys {
			parts[k] = parentKeys[k][i]
		}
		rowKeys[i], rowOK[i] = keyTuple(parts...)
	}

	for _, q := range p.qnams {
		vals := make([]any, n)
		for i := 0; i < n; i++ {
			if rowOK[i] {
				vals[i] = p.value(rowKeys[i], q)
			}
		}
		name := uniqueColumn(r.table, q)
		next, err := r.table.WithColumn(name, vals)
		if err != nil {
			continue
		}
		r.table = next
		r.origins[name] = Origin{SuppDataset: suppName, QNAM: q, IDVar: idvar}
		if l, ok := p.labels[q]; ok {
			r.labels[name] = l
		}
	}
}

// uniqueColumn returns c, or the first of c_SUPP, c_SUPP2, c_SUPP3, ... not
// already a column of t.
func uniqueColumn(t *table.Table, c string) string {
	if !t.Has(c) {
		return c
	}
	cand := c + "_SUPP"
	for n := 2; t.Has(cand); n++ {
		cand = fmt.Sprintf("%s_SUPP%d", c, n)
	}
	return cand
}

func firstSeqColumn(t *table.Table) string {
	for _, c := range t.Columns() {
		if strings.HasSuffix(strings.ToUpper(c), "SEQ") {
			return c
		}
	}
	return ""
}

func collectQLabels(sel *table.Table, dst map[string]string) {
	qlabel := sel.Col(colQLabel)
	if qlabel == nil {
		return
	}
	qnam := sel.Col(colQNam)
	for i := range qnam {
		q := strings.TrimSpace(table.String(qnam[i]))
		if q == "" {
			continue
		}
		if _, ok := dst[q]; ok {
			continue
		}
		if l := strings.TrimSpace(table.String(qlabel[i])); l != "" {
			dst[q] = l
		}
	}
}

func anyNonNull(col []any) bool {
	for _, v := range col {
		if !table.IsNull(v) {
			return true
		}
	}
	return false
}

// distinctStrings returns the distinct non-null values of col as strings, in
// first-seen order.
func distinctStrings(col []any) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, v := range col {
		if table.IsNull(v) {
			continue
		}
		s := table.String(v)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func logCollisions(l zerolog.Logger, p *pivoted) {
	if p.collisions == 0 {
		return
	}
	l.Debug().Err(ErrPivotCollision).Int("duplicates", p.collisions).Msg("duplicate (key, QNAM) rows; first seen kept")
}
