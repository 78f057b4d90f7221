package sdtm

import (
	"maps"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/table"
	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/schema"
)

// Rule outcomes reported to the Observer.
const (
	OutcomeApplied = "applied"
	OutcomeSkipped = "skipped"
)

// MergeReport summarizes one ApplyMerge batch.
type MergeReport struct {
	Applied []string `json:"applied"`
	Skipped []string `json:"skipped"`
	// ConsumedQNAMs maps a SUPP dataset to the QNAMs removed from it.
	ConsumedQNAMs map[string][]string `json:"consumed_qnams"`
}

// ApplyMerge runs the rules in order, then marks merge_executed and rebuilds
// every view. Invalid rules and rules naming unknown datasets are logged and
// skipped; row counts of target domains never change.
func (c *Catalog) ApplyMerge(rules []MergeRule) MergeReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	rep := MergeReport{ConsumedQNAMs: map[string][]string{}}
	for _, r := range rules {
		consumed, ok := c.applyRuleLocked(r)
		if !ok {
			rep.Skipped = append(rep.Skipped, r.String())
			c.obs.RuleApplied(OutcomeSkipped)
			continue
		}
		rep.Applied = append(rep.Applied, r.String())
		c.obs.RuleApplied(OutcomeApplied)
		for ds, qs := range consumed {
			for _, q := range qs {
				if !slices.Contains(rep.ConsumedQNAMs[ds], q) {
					rep.ConsumedQNAMs[ds] = append(rep.ConsumedQNAMs[ds], q)
				}
			}
		}
	}
	for ds := range rep.ConsumedQNAMs {
		slices.Sort(rep.ConsumedQNAMs[ds])
	}

	c.flags.MergeExecuted = true
	c.refreshLocked()
	c.log.Info().
		Int("applied", len(rep.Applied)).
		Int("skipped", len(rep.Skipped)).
		Msg("merge batch committed")
	return rep
}

// refreshLocked brings derived tables back in line with raw after a batch. In
// SDTM mode the committed SUPP columns are re-applied to data first.
func (c *Catalog) refreshLocked() {
	if c.mode == schema.IngestModeSDTM {
		c.commitSuppLocked()
	}
	c.rebuildViewsLocked()
}

// consumption collects the QNAMs a rule takes out of SUPP datasets.
type consumption map[string]map[string]struct{}

func (m consumption) add(ds, qnam string) {
	if m[ds] == nil {
		m[ds] = map[string]struct{}{}
	}
	m[ds][qnam] = struct{}{}
}

func (m consumption) lists() map[string][]string {
	out := make(map[string][]string, len(m))
	for ds, set := range m {
		if len(set) > 0 {
			out[ds] = slices.Sorted(maps.Keys(set))
		}
	}
	return out
}

func (c *Catalog) applyRuleLocked(r MergeRule) (map[string][]string, bool) {
	l := c.log.With().Str("rule", r.String()).Logger()
	if !r.Valid() {
		l.Warn().Msg("merge rule has no target; skipped")
		return nil, false
	}
	d, err := c.lookupLocked(r.Target.Dataset)
	if err != nil {
		l.Warn().Err(err).Msg("merge rule skipped")
		return nil, false
	}
	if d.IsSupp() {
		return c.applySuppTargetLocked(l, r, d)
	}
	return c.applyParentTargetLocked(l, r, d), true
}

// applyParentTargetLocked rewrites one parent column from its sources. Raw and
// data both receive the result; same-table sources other than the target are
// dropped.
func (c *Catalog) applyParentTargetLocked(l zerolog.Logger, r MergeRule, d *Domain) map[string][]string {
	base := d.Raw
	target := r.Target.Column
	consumed := consumption{}

	parts := [][]any{base.Col(target)}
	var labels []string
	for _, src := range r.Sources {
		sd, err := c.lookupLocked(src.Dataset)
		if err != nil {
			l.Warn().Err(err).Str("source", src.String()).Msg("merge source ignored")
			parts = append(parts, nil)
			continue
		}
		var vals []any
		switch {
		case sd == d:
			vals = base.Col(src.Column)
			if vals == nil {
				vals = d.Data.Col(src.Column)
			}
			if vals == nil {
				l.Warn().Err(ErrNotFound).Str("source", src.String()).Msg("merge source column missing")
			}
			if lb := d.ColumnLabels[src.Column]; lb != "" {
				labels = append(labels, lb)
			}
		case sd.IsSupp():
			var found bool
			vals, found = alignSuppSource(d.Name, base, sd.Raw, src.Column)
			if found {
				consumed.add(sd.Name, src.Column)
			}
			if lb := suppLabel(sd.Raw, src.Column, d.Extra.SuppVariableLabels); lb != "" {
				labels = append(labels, lb)
			}
		default:
			vals = alignParentSource(base, sd.Raw, src.Column)
			if vals == nil {
				l.Warn().Str("source", src.String()).Msg("merge source has no shared keys or column; ignored")
			}
			if lb := sd.ColumnLabels[src.Column]; lb != "" {
				labels = append(labels, lb)
			}
		}
		parts = append(parts, vals)
	}

	sep := c.flags.Direction.Separator()
	out := make([]any, base.Len())
	for i := range out {
		out[i] = concatParts(parts, i, sep)
	}
	next, err := base.WithColumn(target, out)
	if err != nil {
		l.Warn().Err(err).Msg("merge result not written")
		return nil
	}

	var drop []string
	for _, src := range r.Sources {
		if domainKey(src.Dataset) == d.Name && src.Column != target {
			drop = append(drop, src.Column)
		}
	}
	next = next.Without(drop...)
	d.Raw = next
	d.Data = next

	if _, ok := d.ColumnLabels[target]; !ok {
		if len(labels) > 0 {
			d.ColumnLabels[target] = strings.Join(labels, " + ")
		} else {
			d.ColumnLabels[target] = "merged: " + target
		}
	}

	c.consumeLocked(consumed)
	return consumed.lists()
}

// applySuppTargetLocked rewrites QVAL of the rows whose QNAM is the target.
// Source QNAMs are then removed from their SUPP datasets; the target QNAM is
// never removed.
func (c *Catalog) applySuppTargetLocked(l zerolog.Logger, r MergeRule, s *Domain) (map[string][]string, bool) {
	raw := s.Raw
	if !raw.Has(colQNam) || !raw.Has(colQVal) {
		l.Warn().Err(ErrSchemaMismatch).Msg("target supp has no QNAM/QVAL; skipped")
		return nil, false
	}
	cast := castSupp(raw)
	qnam := cast.Col(colQNam)
	var idx []int
	for i, v := range qnam {
		if table.String(v) == r.Target.Column {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		l.Warn().Msg("no rows carry the target QNAM; skipped")
		return nil, false
	}
	tgt := cast.Take(idx)
	consumed := consumption{}

	parts := [][]any{tgt.Col(colQVal)}
	for _, src := range r.Sources {
		sd, err := c.lookupLocked(src.Dataset)
		if err != nil {
			l.Warn().Err(err).Str("source", src.String()).Msg("merge source ignored")
			parts = append(parts, nil)
			continue
		}
		if sd.IsSupp() {
			vals, found := alignSuppToSupp(tgt, sd.Raw, src.Column)
			if found {
				consumed.add(sd.Name, src.Column)
			}
			parts = append(parts, vals)
			continue
		}
		parts = append(parts, alignParentToSupp(tgt, sd.Data, src.Column))
	}

	sep := c.flags.Direction.Separator()
	qval := slices.Clone(raw.Col(colQVal))
	for j, i := range idx {
		qval[i] = concatParts(parts, j, sep)
	}
	next, err := raw.WithColumn(colQVal, qval)
	if err != nil {
		l.Warn().Err(err).Msg("merge result not written")
		return nil, false
	}
	s.Raw = next
	s.Data = next

	if set := consumed[s.Name]; set != nil {
		delete(set, r.Target.Column)
	}
	c.consumeLocked(consumed)
	return consumed.lists(), true
}

// consumeLocked removes consumed QNAM rows from the raw and data of each SUPP.
func (c *Catalog) consumeLocked(consumed consumption) {
	for ds, set := range consumed {
		if len(set) == 0 {
			continue
		}
		s, ok := c.domains[ds]
		if !ok {
			continue
		}
		s.Raw = dropQNAMs(s.Raw, set)
		s.Data = dropQNAMs(s.Data, set)
		c.log.Debug().Str("supp", ds).Strs("qnams", slices.Sorted(maps.Keys(set))).Msg("consumed QNAMs removed")
	}
}

func dropQNAMs(t *table.Table, set map[string]struct{}) *table.Table {
	q := t.Col(colQNam)
	if q == nil {
		return t
	}
	return t.Filter(func(i int) bool {
		_, gone := set[strings.TrimSpace(table.String(q[i]))]
		return !gone
	})
}

// concatParts joins the usable values of row i across parts. Nulls, empty
// strings and "nan" are skipped; values are otherwise used verbatim.
func concatParts(parts [][]any, i int, sep string) string {
	var vals []string
	for _, p := range parts {
		if i >= len(p) {
			continue
		}
		v := p[i]
		if table.IsNull(v) {
			continue
		}
		s := table.String(v)
		if s == "" || strings.ToLower(s) == "nan" {
			continue
		}
		vals = append(vals, s)
	}
	return strings.Join(vals, sep)
}

// suppRows returns the cast rows of supp carrying qnam, restricted to the
// target domain when RDOMAIN exists. An empty targetDomain keeps every domain.
func suppRows(supp *table.Table, qnam, targetDomain string) *table.Table {
	if !supp.Has(colQNam) || !supp.Has(colQVal) {
		return nil
	}
	cast := castSupp(supp)
	q := cast.Col(colQNam)
	rd := cast.Col(colRDomain)
	return cast.Filter(func(i int) bool {
		if table.String(q[i]) != qnam {
			return false
		}
		if targetDomain != "" && rd != nil && domainKey(table.String(rd[i])) != targetDomain {
			return false
		}
		return true
	})
}

// alignSuppSource aligns the QVALs of one QNAM to the rows of a parent.
// found reports whether any SUPP row carried the QNAM.
func alignSuppSource(parentName string, base, supp *table.Table, qnam string) (vals []any, found bool) {
	rows := suppRows(supp, qnam, parentName)
	if rows == nil || rows.Len() == 0 {
		return nil, false
	}
	if !rows.Has(colStudyID) || !rows.Has(colUSubjID) || !base.Has(colStudyID) || !base.Has(colUSubjID) {
		return nil, true
	}

	left := [][]any{NormalizeKeys(base.Col(colStudyID)), NormalizeKeys(base.Col(colUSubjID))}
	right := [][]any{NormalizeKeys(rows.Col(colStudyID)), NormalizeKeys(rows.Col(colUSubjID))}
	if rows.Has(colIDVarVal) {
		for _, iv := range distinctStrings(rows.Col(colIDVar)) {
			if base.Has(iv) {
				left = append(left, NormalizeKeys(base.Col(iv)))
				right = append(right, NormalizeKeys(rows.Col(colIDVarVal)))
				break
			}
		}
	}
	return lookupAligned(left, right, rows.Col(colQVal), false), true
}

// alignParentSource aligns a column of another parent to base on the shared
// subject keys plus the first shared *SEQ column. It returns nil when no key or
// the column is missing.
func alignParentSource(base, src *table.Table, col string) []any {
	if !src.Has(col) {
		return nil
	}
	var keys []string
	for _, k := range []string{colStudyID, colUSubjID} {
		if base.Has(k) && src.Has(k) {
			keys = append(keys, k)
		}
	}
	for _, k := range base.Columns() {
		if strings.HasSuffix(strings.ToUpper(k), "SEQ") && src.Has(k) {
			keys = append(keys, k)
			break
		}
	}
	if len(keys) == 0 {
		return nil
	}
	left := make([][]any, len(keys))
	right := make([][]any, len(keys))
	for i, k := range keys {
		left[i] = NormalizeKeys(base.Col(k))
		right[i] = NormalizeKeys(src.Col(k))
	}
	return lookupAligned(left, right, src.Col(col), false)
}

// alignSuppToSupp aligns the QVALs of one QNAM to target SUPP rows on the
// shared Q-format keys. Null key cells match each other.
func alignSuppToSupp(tgt, src *table.Table, qnam string) ([]any, bool) {
	rows := suppRows(src, qnam, "")
	if rows == nil || rows.Len() == 0 {
		return nil, false
	}
	var keys []string
	for _, k := range []string{colStudyID, colUSubjID} {
		if tgt.Has(k) && rows.Has(k) {
			keys = append(keys, k)
		}
	}
	switch {
	case tgt.Has(colIDVar) && rows.Has(colIDVar) && tgt.Has(colIDVarVal) && rows.Has(colIDVarVal):
		keys = append(keys, colIDVar, colIDVarVal)
	case tgt.Has(colIDVarVal) && rows.Has(colIDVarVal):
		keys = append(keys, colIDVarVal)
	}
	if len(keys) == 0 {
		return nil, true
	}
	left := make([][]any, len(keys))
	right := make([][]any, len(keys))
	for i, k := range keys {
		left[i] = NormalizeKeys(tgt.Col(k))
		right[i] = NormalizeKeys(rows.Col(k))
	}
	return lookupAligned(left, right, rows.Col(colQVal), true), true
}

// alignParentToSupp aligns a parent column to target SUPP rows, through the
// first IDVAR that names a parent column when possible and on the subject keys
// otherwise.
func alignParentToSupp(tgt, parent *table.Table, col string) []any {
	if !parent.Has(col) {
		return nil
	}
	var left, right [][]any
	for _, k := range []string{colStudyID, colUSubjID} {
		if tgt.Has(k) && parent.Has(k) {
			left = append(left, NormalizeKeys(tgt.Col(k)))
			right = append(right, NormalizeKeys(parent.Col(k)))
		}
	}
	if tgt.Has(colIDVarVal) {
		for _, iv := range distinctStrings(tgt.Col(colIDVar)) {
			if parent.Has(iv) {
				left = append(left, NormalizeKeys(tgt.Col(colIDVarVal)))
				right = append(right, NormalizeKeys(parent.Col(iv)))
				break
			}
		}
	}
	if len(left) == 0 {
		return nil
	}
	return lookupAligned(left, right, parent.Col(col), false)
}

// lookupAligned returns, for every left row, the value of the first right row
// with the same key. With matchNull unset, rows with a null key part never
// match.
func lookupAligned(left, right [][]any, vals []any, matchNull bool) []any {
	index := make(map[string]any)
	rk := make([]any, len(right))
	for r := range vals {
		for k := range right {
			rk[k] = right[k][r]
		}
		key, ok := alignKey(rk, matchNull)
		if !ok {
			continue
		}
		if _, dup := index[key]; !dup {
			index[key] = vals[r]
		}
	}

	n := len(left[0])
	out := make([]any, n)
	lk := make([]any, len(left))
	for i := 0; i < n; i++ {
		for k := range left {
			lk[k] = left[k][i]
		}
		if key, ok := alignKey(lk, matchNull); ok {
			out[i] = index[key]
		}
	}
	return out
}

func alignKey(parts []any, matchNull bool) (string, bool) {
	if !matchNull {
		return keyTuple(parts...)
	}
	s := make([]string, len(parts))
	for i, p := range parts {
		if p == nil {
			s[i] = nullKeyPart
			continue
		}
		s[i] = p.(string)
	}
	return strings.Join(s, "\x1f"), true
}

// suppLabel is the first QLABEL for qnam in supp, else the label recorded on
// the parent.
func suppLabel(supp *table.Table, qnam string, fallback map[string]string) string {
	rows := suppRows(supp, qnam, "")
	if rows != nil && rows.Len() > 0 {
		labels := map[string]string{}
		collectQLabels(rows, labels)
		if l := labels[qnam]; l != "" {
			return l
		}
	}
	return fallback[qnam]
}
