package translate

import (
	"context"
	"fmt"
	"strings"
)

// Plan splits a worklist into rows reusable from a prior run and the distinct
// requests still to translate.
type Plan struct {
	Rows    []Row
	Pending []Item
	// Cached counts reused rows; Waiting counts rows filled by Apply.
	Cached  int
	Waiting int

	items      []Item
	pendingIdx map[string][]int
}

// NewPlan reuses prior rows with status ok that match an item on kind, domain,
// variable, code and text. The remaining items are deduplicated by dictionary,
// code and text so each distinct lookup runs once.
func NewPlan(items []Item, prior []Row) *Plan {
	byKey := make(map[string]Row, len(prior))
	for _, r := range prior {
		if strings.EqualFold(strings.TrimSpace(r.Status), StatusOK) {
			byKey[rowKey(r)] = r
		}
	}

	p := &Plan{
		Rows:       make([]Row, len(items)),
		items:      items,
		pendingIdx: map[string][]int{},
	}
	for i, it := range items {
		base := rowFor(it)
		if prev, ok := byKey[rowKey(base)]; ok {
			p.Rows[i] = prev
			p.Cached++
			continue
		}
		k := lookupKey(it)
		if _, seen := p.pendingIdx[k]; !seen {
			p.Pending = append(p.Pending, it)
		}
		p.pendingIdx[k] = append(p.pendingIdx[k], i)
		p.Waiting++
	}
	return p
}

// Apply fills the plan with the rows produced for Pending, which must be in
// Pending order.
func (p *Plan) Apply(rows []Row) error {
	if len(rows) != len(p.Pending) {
		return fmt.Errorf("incremental translation mismatch: got %d rows for %d pending items", len(rows), len(p.Pending))
	}
	for i, it := range p.Pending {
		idxs := p.pendingIdx[lookupKey(it)]
		if len(idxs) == 0 {
			return fmt.Errorf("incremental translation mismatch: no rows wait for %q", it.Text)
		}
		for _, idx := range idxs {
			r := rowFor(p.items[idx])
			r.TargetText = rows[i].TargetText
			r.Source = rows[i].Source
			r.Status = rows[i].Status
			r.Error = rows[i].Error
			p.Rows[idx] = r
		}
	}
	return nil
}

// TranslateIncremental plans against prior, translates what is pending and
// returns the full row set in item order.
func TranslateIncremental(ctx context.Context, items []Item, prior []Row, tr Translator, opts Options) (*Plan, error) {
	p := NewPlan(items, prior)
	if len(p.Pending) == 0 {
		return p, nil
	}
	rows, err := TranslateWorklist(ctx, p.Pending, tr, opts)
	if err != nil {
		return nil, err
	}
	if err := p.Apply(rows); err != nil {
		return nil, err
	}
	return p, nil
}

func rowKey(r Row) string {
	return strings.Join([]string{
		r.Kind,
		r.Domain,
		r.Variable,
		strings.TrimSpace(r.Code),
		strings.TrimSpace(r.SourceText),
	}, "\x1f")
}

func lookupKey(it Item) string {
	return strings.Join([]string{
		string(it.Dictionary),
		strings.TrimSpace(it.Code),
		strings.TrimSpace(it.Text),
	}, "\x1f")
}
