package sdtm

import (
	"maps"
	"slices"
	"strings"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/table"
)

// StubMessage is the single preview row shown for a SUPP dataset once its
// qualifiers are displayed inside the parent views.
const StubMessage = "SUPP merged into parent"

// Preview is one page of a dataset as shown to the user.
type Preview struct {
	Dataset    string           `json:"dataset"`
	Columns    []string         `json:"columns"`
	Rows       []map[string]any `json:"data"`
	TotalRows  int              `json:"total_rows"`
	Offset     int              `json:"offset"`
	Limit      int              `json:"limit"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
	Stub       bool             `json:"stub,omitempty"`
}

func (p *Preview) paginate() {
	p.PageSize = p.Limit
	if p.PageSize <= 0 {
		p.PageSize = p.TotalRows
	}
	if p.PageSize <= 0 {
		p.Page, p.TotalPages = 1, 0
		return
	}
	p.Page = p.Offset/p.PageSize + 1
	p.TotalPages = (p.TotalRows + p.PageSize - 1) / p.PageSize
}

// Preview returns rows [offset, offset+limit) of a dataset; limit <= 0 returns
// every row. With hide_supp_in_preview set, parents are read from their merged
// view and SUPP datasets return a single informational row. Otherwise the
// dataset's data is shown, or its pivot for a SUPP with one.
func (c *Catalog) Preview(name string, offset, limit int) (Preview, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, err := c.lookupLocked(name)
	if err != nil {
		return Preview{}, err
	}

	var t *table.Table
	if c.flags.HideSuppInPreview {
		if d.IsSupp() {
			p := Preview{
				Dataset:   d.Name,
				Columns:   []string{"MESSAGE"},
				Rows:      []map[string]any{{"MESSAGE": StubMessage}},
				TotalRows: 1,
				Limit:     limit,
				Stub:      true,
			}
			p.paginate()
			return p, nil
		}
		t = d.Working()
	} else {
		t = c.previewTableLocked(d)
	}

	if offset < 0 {
		offset = 0
	}
	p := Preview{
		Dataset:   d.Name,
		Columns:   t.Columns(),
		Rows:      previewRecords(t.Slice(offset, limit)),
		TotalRows: t.Len(),
		Offset:    offset,
		Limit:     limit,
	}
	p.paginate()
	return p, nil
}

// previewRecords renders rows with missing and infinite numbers as nil.
func previewRecords(t *table.Table) []map[string]any {
	recs := t.Records()
	for _, rec := range recs {
		for k, v := range rec {
			rec[k] = table.Finite(v)
		}
	}
	return recs
}

func (c *Catalog) previewTableLocked(d *Domain) *table.Table {
	if d.IsSupp() && d.UsePivotPreview && d.PivotForDisplay != nil {
		return d.PivotForDisplay
	}
	return d.Data
}

// DatasetInfo summarizes one dataset for selection screens.
type DatasetInfo struct {
	Name              string            `json:"name"`
	Label             string            `json:"label"`
	IsSupp            bool              `json:"is_supp"`
	Rows              int               `json:"rows"`
	Columns           int               `json:"columns"`
	ColumnNames       []string          `json:"column_names"`
	ColumnLabels      map[string]string `json:"column_labels"`
	SelectableColumns []string          `json:"selectable_columns"`
	SuppOriginColumns []string          `json:"supp_origin_columns,omitempty"`
	SuppOriginDetail  OriginMap         `json:"supp_origin_detail,omitempty"`
	// SuppFailedColumns are merged columns that matched no parent row.
	SuppFailedColumns []string `json:"supp_failed_columns,omitempty"`
}

// Info describes every dataset in name order. In hide_supp_in_preview mode
// SUPP datasets are omitted and parents are described by their views.
func (c *Catalog) Info() []DatasetInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	hidden := c.flags.HideSuppInPreview
	var out []DatasetInfo
	for _, name := range slices.Sorted(maps.Keys(c.domains)) {
		d := c.domains[name]
		if hidden && d.IsSupp() {
			continue
		}

		t := d.Data
		origins := d.Extra.SuppOriginMap
		if hidden && d.View != nil {
			t = d.View
			origins = d.Extra.PreviewOriginMap
		}

		info := DatasetInfo{
			Name:         d.Name,
			Label:        d.Label,
			IsSupp:       d.IsSupp(),
			Rows:         t.Len(),
			Columns:      len(t.Columns()),
			ColumnNames:  t.Columns(),
			ColumnLabels: maps.Clone(d.ColumnLabels),
		}
		if d.IsSupp() {
			for _, col := range c.previewTableLocked(d).Columns() {
				if !isReserved(col) {
					info.SelectableColumns = append(info.SelectableColumns, col)
				}
			}
		} else {
			info.SelectableColumns = t.Columns()
		}

		if len(origins) > 0 {
			info.SuppOriginDetail = maps.Clone(origins)
			for _, col := range t.Columns() {
				if _, ok := origins[col]; !ok {
					continue
				}
				info.SuppOriginColumns = append(info.SuppOriginColumns, col)
				if !anyNonNull(t.Col(col)) {
					info.SuppFailedColumns = append(info.SuppFailedColumns, col)
				}
			}
		}
		out = append(out, info)
	}
	return out
}

// SourceVariables lists the QNAMs a SUPP dataset offers for the given parent,
// in first-seen order, together with the SUPP's name. The SUPP is SUPP<parent>
// when present, otherwise the first SUPP whose name contains the parent name.
func (c *Catalog) SourceVariables(parent string) ([]string, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := domainKey(parent)
	if _, err := c.lookupLocked(p); err != nil {
		return nil, "", err
	}
	s, ok := c.domains["SUPP"+p]
	if !ok {
		for _, cand := range c.sortedLocked(true) {
			if strings.Contains(cand.Name[len("SUPP"):], p) {
				s = cand
				ok = true
				break
			}
		}
	}
	if !ok || !s.Data.Has(colQNam) {
		return nil, "", nil
	}

	qnam := s.Data.Col(colQNam)
	rdomain := s.Data.Col(colRDomain)
	seen := map[string]struct{}{}
	var out []string
	for i, v := range qnam {
		if rdomain != nil && domainKey(table.String(rdomain[i])) != p {
			continue
		}
		q := strings.TrimSpace(table.String(v))
		switch q {
		case "", "nan", "None":
			continue
		}
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out, s.Name, nil
}
